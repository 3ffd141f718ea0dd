package controllers

import (
	"github.com/gofiber/fiber/v2"

	"leadpilot/config"
	"leadpilot/middleware"
	"leadpilot/models"
	"leadpilot/utils"
)

type CreateAccountRequest struct {
	Email    string `json:"email" validate:"required,email"`
	FromName string `json:"from_name"`
	Provider string `json:"provider" validate:"required,oneof=gmail outlook smtp"`

	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port"`
	SMTPUsername string `json:"smtp_username"`
	SMTPPassword string `json:"smtp_password"`
	IMAPHost     string `json:"imap_host"`
	IMAPPort     int    `json:"imap_port"`
	IMAPUsername string `json:"imap_username"`
	IMAPPassword string `json:"imap_password"`

	OAuthRefreshToken string `json:"oauth_refresh_token"`

	DailyLimit int `json:"daily_limit"`
}

// CreateEmailAccount stores a sending account with its secrets encrypted.
func CreateEmailAccount(c *fiber.Ctx) error {
	workspaceID := middleware.WorkspaceID(c)

	var req CreateAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if msgs := utils.ValidateStruct(req); len(msgs) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"errors": msgs})
	}
	if req.Provider == models.ProviderSMTP && (req.SMTPHost == "" || req.SMTPPort == 0) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "smtp accounts need smtp_host and smtp_port"})
	}

	smtpPassword, err := utils.Encrypt(req.SMTPPassword)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to store credentials"})
	}
	imapPassword, err := utils.Encrypt(req.IMAPPassword)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to store credentials"})
	}
	refreshToken, err := utils.Encrypt(req.OAuthRefreshToken)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to store credentials"})
	}

	dailyLimit := req.DailyLimit
	if dailyLimit <= 0 {
		dailyLimit = 100
	}

	account := models.EmailAccount{
		WorkspaceID:       workspaceID,
		Email:             req.Email,
		FromName:          req.FromName,
		Provider:          req.Provider,
		IsActive:          true,
		SMTPHost:          req.SMTPHost,
		SMTPPort:          req.SMTPPort,
		SMTPUsername:      req.SMTPUsername,
		SMTPPassword:      smtpPassword,
		IMAPHost:          req.IMAPHost,
		IMAPPort:          req.IMAPPort,
		IMAPUsername:      req.IMAPUsername,
		IMAPPassword:      imapPassword,
		OAuthRefreshToken: refreshToken,
		DailyLimit:        dailyLimit,
	}
	if err := config.DB.Create(&account).Error; err != nil {
		utils.ReportError(err, "account_create_failed", map[string]interface{}{"workspace_id": workspaceID})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create account"})
	}

	account.Sanitize()
	return c.Status(fiber.StatusCreated).JSON(account)
}

func GetEmailAccounts(c *fiber.Ctx) error {
	workspaceID := middleware.WorkspaceID(c)

	var accounts []models.EmailAccount
	err := config.DB.Where("workspace_id = ?", workspaceID).
		Order("created_at asc").Find(&accounts).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load accounts"})
	}

	for i := range accounts {
		accounts[i].Sanitize()
	}
	return c.JSON(fiber.Map{"items": accounts})
}

// SyncAccount triggers an immediate inbox sync for one account.
func SyncAccount(c *fiber.Ctx) error {
	workspaceID := middleware.WorkspaceID(c)
	accountID, err := utils.ParseUint(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid account id"})
	}

	var account models.EmailAccount
	if err := config.DB.Where("id = ? AND workspace_id = ?", accountID, workspaceID).
		First(&account).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "account not found"})
	}

	if err := orchestrator.SyncInbox(account.ID); err != nil {
		utils.ReportError(err, "manual_sync_failed", map[string]interface{}{"account_id": account.ID})
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "sync failed: " + err.Error()})
	}
	return c.JSON(fiber.Map{"message": "inbox synced"})
}
