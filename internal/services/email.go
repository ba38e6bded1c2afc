package services

import (
	"context"
	"crypto/tls"
	"fmt"
	"html"

	"github.com/princeprakhar/reviewnext-backend/internal/config"
	"github.com/princeprakhar/reviewnext-backend/internal/models"
	"gopkg.in/gomail.v2"
)

// mailSender is satisfied by *gomail.Dialer.
type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

type EmailService struct {
	config *config.Config
	sender mailSender
}

func NewEmailService(config *config.Config) *EmailService {
	d := gomail.NewDialer(config.SMTPHost, config.SMTPPort, config.SMTPUsername, config.SMTPPassword)
	d.TLSConfig = &tls.Config{ServerName: config.SMTPHost}
	return &EmailService{config: config, sender: d}
}

func (s *EmailService) newMessage(to []string, subject, body string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", s.config.FromEmail)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)
	return m
}

func (s *EmailService) SendEmail(to []string, subject, body string) error {
	return s.sender.DialAndSend(s.newMessage(to, subject, body))
}

// NotifyLogFlagged emails the admins about a flagged log.
func (s *EmailService) NotifyLogFlagged(ctx context.Context, to []string, category string, log models.Log) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject := fmt.Sprintf("Flagged %s review", category)
	body := fmt.Sprintf(`
		<h2>A review was flagged for moderation</h2>
		<p><strong>Category:</strong> %s</p>
		<p><strong>Log ID:</strong> %s</p>
		<p><strong>Author:</strong> %s</p>
		<p><strong>Rating:</strong> %d</p>
		<blockquote>%s</blockquote>
		<p>Review it from the admin dashboard.</p>
	`, html.EscapeString(category), log.ID, html.EscapeString(log.Username), log.Rating, html.EscapeString(log.ReviewText))

	return s.SendEmail(to, subject, body)
}

// SendImportReport tells an admin how a catalog import went.
func (s *EmailService) SendImportReport(to, category string, result *models.CatalogUploadResponse) error {
	body := fmt.Sprintf(`
		<h2>Catalog import finished</h2>
		<p><strong>Category:</strong> %s</p>
		<p><strong>Items added:</strong> %d</p>
		<p><strong>Rows failed:</strong> %d</p>
	`, html.EscapeString(category), result.ProcessedCount, len(result.FailedRows))
	return s.SendEmail([]string{to}, "Catalog import completed", body)
}
