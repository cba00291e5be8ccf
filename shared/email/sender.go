package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"os"

	"seo-agent/internal/models"
	"seo-agent/shared/config"
)

type Sender struct {
	config *config.EmailConfig
}

func NewSender(cfg *config.EmailConfig) *Sender {
	return &Sender{
		config: cfg,
	}
}

// SendAuditDigest mails the summary of one completed audit run.
func (s *Sender) SendAuditDigest(digest *models.AuditDigest) error {
	if digest == nil || digest.Run == nil {
		return fmt.Errorf("digest cannot be nil")
	}

	subject := fmt.Sprintf("SEO Audit Digest - %d of %d videos needing fix (%s)",
		digest.Run.VideosNeedingFix, digest.Run.VideosInspected, digest.Date.Format("Jan 2, 2006"))

	body, err := s.generateEmailBody(digest)
	if err != nil {
		return fmt.Errorf("failed to generate email body: %w", err)
	}

	return s.SendHTML(subject, body)
}

// SendHTML sends an email with custom HTML content
func (s *Sender) SendHTML(subject, htmlBody string) error {
	return s.sendViaSMTP(subject, htmlBody)
}

func (s *Sender) sendViaSMTP(subject, body string) error {
	auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.SMTPServer)

	to := []string{s.config.ToEmail}
	msg := []byte(fmt.Sprintf(`To: %s
From: %s
Subject: %s
MIME-Version: 1.0
Content-Type: text/html; charset=UTF-8

%s`, s.config.ToEmail, s.config.FromEmail, subject, body))

	addr := fmt.Sprintf("%s:%d", s.config.SMTPServer, s.config.SMTPPort)
	return smtp.SendMail(addr, auth, s.config.FromEmail, to, msg)
}

func (s *Sender) generateEmailBody(digest *models.AuditDigest) (string, error) {
	// Read template from external file
	templatePath := "agents/seo-auditor/email_template.html"
	tmplBytes, err := os.ReadFile(templatePath)
	if err != nil {
		return "", fmt.Errorf("failed to read email template: %w", err)
	}

	tmpl, err := template.New("email").Parse(string(tmplBytes))
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, digest); err != nil {
		return "", err
	}

	return buf.String(), nil
}
