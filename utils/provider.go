package utils

import (
	"crypto/tls"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"leadpilot/models"
)

// SendResult carries the provider-assigned identifiers of a delivered message.
type SendResult struct {
	MessageID string
	ThreadID  string
}

// InboundMessage is a normalized message pulled from an inbox.
type InboundMessage struct {
	MessageID  string
	ThreadID   string
	From       string
	Subject    string
	Body       string
	InReplyTo  string
	ReceivedAt time.Time
}

// EmailProvider abstracts the outbound/inbound transport for one account.
type EmailProvider interface {
	Send(to, subject, body string) (*SendResult, error)
	FetchRecent() ([]InboundMessage, error)
}

// NewProvider builds a provider for the account, filling in host presets
// for the well-known providers.
func NewProvider(account *models.EmailAccount) (EmailProvider, error) {
	p := &smtpIMAPProvider{account: account}

	switch account.Provider {
	case models.ProviderGmail:
		p.smtpHost, p.smtpPort = "smtp.gmail.com", 587
		p.imapHost, p.imapPort = "imap.gmail.com", 993
		p.useOAuth = account.OAuthRefreshToken != ""
	case models.ProviderOutlook:
		p.smtpHost, p.smtpPort = "smtp.office365.com", 587
		p.imapHost, p.imapPort = "outlook.office365.com", 993
		p.useOAuth = account.OAuthRefreshToken != ""
	case models.ProviderSMTP:
		p.smtpHost, p.smtpPort = account.SMTPHost, account.SMTPPort
		p.imapHost, p.imapPort = account.IMAPHost, account.IMAPPort
	default:
		return nil, fmt.Errorf("unsupported provider: %s", account.Provider)
	}

	if p.smtpHost == "" {
		return nil, fmt.Errorf("account %d has no SMTP host configured", account.ID)
	}
	return p, nil
}

type smtpIMAPProvider struct {
	account  *models.EmailAccount
	smtpHost string
	smtpPort int
	imapHost string
	imapPort int
	useOAuth bool
}

func (p *smtpIMAPProvider) Send(to, subject, body string) (*SendResult, error) {
	password, err := Decrypt(p.account.SMTPPassword)
	if err != nil {
		return nil, fmt.Errorf("decrypt smtp password: %w", err)
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), p.smtpHost)

	m := gomail.NewMessage()
	m.SetAddressHeader("From", p.account.Email, p.account.FromName)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetHeader("Message-ID", messageID)
	m.SetBody("text/html", body)

	d := gomail.NewDialer(p.smtpHost, p.smtpPort, p.account.SMTPUser(), password)
	d.TLSConfig = &tls.Config{ServerName: p.smtpHost}

	if err := d.DialAndSend(m); err != nil {
		return nil, fmt.Errorf("send via %s: %w", p.smtpHost, err)
	}

	return &SendResult{MessageID: messageID, ThreadID: messageID}, nil
}

func (p *smtpIMAPProvider) FetchRecent() ([]InboundMessage, error) {
	if p.imapHost == "" {
		return nil, fmt.Errorf("account %d has no IMAP host configured", p.account.ID)
	}

	c, err := client.DialTLS(fmt.Sprintf("%s:%d", p.imapHost, p.imapPort), nil)
	if err != nil {
		return nil, fmt.Errorf("imap dial %s: %w", p.imapHost, err)
	}
	defer c.Logout()

	if err := p.authenticate(c); err != nil {
		return nil, err
	}

	mbox, err := c.Select("INBOX", false)
	if err != nil {
		return nil, fmt.Errorf("select inbox: %w", err)
	}
	if mbox.Messages == 0 {
		return nil, nil
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("search unseen: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, section.FetchItem()}

	messages := make(chan *imap.Message, len(ids))
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, items, messages)
	}()

	var result []InboundMessage
	for msg := range messages {
		inbound, err := parseMessage(msg, section)
		if err != nil {
			continue
		}
		result = append(result, inbound)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	return result, nil
}

func (p *smtpIMAPProvider) authenticate(c *client.Client) error {
	if p.useOAuth {
		accessToken, err := RefreshAccessToken(p.account)
		if err != nil {
			return err
		}
		saslClient := sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
			Username: p.account.Email,
			Token:    accessToken,
			Host:     p.imapHost,
			Port:     p.imapPort,
		})
		if err := c.Authenticate(saslClient); err != nil {
			return fmt.Errorf("imap oauth auth: %w", err)
		}
		return nil
	}

	password, err := Decrypt(p.account.IMAPPassword)
	if err != nil {
		return fmt.Errorf("decrypt imap password: %w", err)
	}
	if err := c.Login(p.account.IMAPUser(), password); err != nil {
		return fmt.Errorf("imap login: %w", err)
	}
	return nil
}

func parseMessage(msg *imap.Message, section *imap.BodySectionName) (InboundMessage, error) {
	if msg.Envelope == nil {
		return InboundMessage{}, fmt.Errorf("message without envelope")
	}

	inbound := InboundMessage{
		MessageID:  msg.Envelope.MessageId,
		Subject:    msg.Envelope.Subject,
		InReplyTo:  msg.Envelope.InReplyTo,
		ReceivedAt: msg.Envelope.Date,
	}
	if len(msg.Envelope.From) > 0 {
		inbound.From = msg.Envelope.From[0].Address()
	}
	if inbound.InReplyTo != "" {
		inbound.ThreadID = inbound.InReplyTo
	} else {
		inbound.ThreadID = inbound.MessageID
	}

	body := msg.GetBody(section)
	if body == nil {
		return inbound, nil
	}
	mr, err := mail.CreateReader(body)
	if err != nil {
		return inbound, nil
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		if _, ok := part.Header.(*mail.InlineHeader); ok {
			b, err := io.ReadAll(part.Body)
			if err == nil {
				inbound.Body = strings.TrimSpace(string(b))
				break
			}
		}
	}
	return inbound, nil
}
