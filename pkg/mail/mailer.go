// Package mail 通过 SMTP 发送通知邮件。
package mail

import (
	"convai-builder-go/internal/config"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
)

// Mailer 发送纯文本邮件，未配置 SMTP 时 Send 直接返回。
type Mailer struct {
	cfg config.MailConfig
}

// NewMailer 创建 Mailer。
func NewMailer(cfg config.MailConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

// Enabled 判断是否配置了 SMTP 与收件人。
func (m *Mailer) Enabled() bool {
	return m.cfg.SMTPHost != "" && m.cfg.AlertTo != ""
}

func (m *Mailer) compose(subject, body string) *email.Email {
	e := email.NewEmail()
	e.From = m.cfg.From
	if e.From == "" {
		e.From = m.cfg.Username
	}
	for _, to := range strings.Split(m.cfg.AlertTo, ",") {
		if to = strings.TrimSpace(to); to != "" {
			e.To = append(e.To, to)
		}
	}
	e.Subject = subject
	e.Text = []byte(body)
	return e
}

// Send 发送一封邮件。
func (m *Mailer) Send(subject, body string) error {
	if !m.Enabled() {
		return nil
	}
	addr := fmt.Sprintf("%s:%d", m.cfg.SMTPHost, m.cfg.SMTPPort)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.SMTPHost)
	}
	if err := m.compose(subject, body).Send(addr, auth); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	return nil
}
