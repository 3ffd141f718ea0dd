package utils

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2"

	"leadpilot/models"
)

type oauthEndpoint struct {
	TokenURL    string
	ClientIDEnv string
	SecretEnv   string
}

var oauthEndpoints = map[string]oauthEndpoint{
	models.ProviderGmail: {
		TokenURL:    "https://oauth2.googleapis.com/token",
		ClientIDEnv: "GOOGLE_CLIENT_ID",
		SecretEnv:   "GOOGLE_CLIENT_SECRET",
	},
	models.ProviderOutlook: {
		TokenURL:    "https://login.microsoftonline.com/common/oauth2/v2.0/token",
		ClientIDEnv: "MICROSOFT_CLIENT_ID",
		SecretEnv:   "MICROSOFT_CLIENT_SECRET",
	},
}

// RefreshAccessToken exchanges the account's stored refresh token for a
// fresh access token.
func RefreshAccessToken(account *models.EmailAccount) (string, error) {
	endpoint, ok := oauthEndpoints[account.Provider]
	if !ok {
		return "", fmt.Errorf("provider %s does not use OAuth", account.Provider)
	}

	refreshToken, err := Decrypt(account.OAuthRefreshToken)
	if err != nil {
		return "", fmt.Errorf("decrypt refresh token: %w", err)
	}
	if refreshToken == "" {
		return "", fmt.Errorf("account %d has no refresh token", account.ID)
	}

	conf := &oauth2.Config{
		ClientID:     os.Getenv(endpoint.ClientIDEnv),
		ClientSecret: os.Getenv(endpoint.SecretEnv),
		Endpoint:     oauth2.Endpoint{TokenURL: endpoint.TokenURL},
	}

	token, err := conf.TokenSource(context.Background(), &oauth2.Token{
		RefreshToken: refreshToken,
	}).Token()
	if err != nil {
		return "", fmt.Errorf("refresh access token: %w", err)
	}
	return token.AccessToken, nil
}
