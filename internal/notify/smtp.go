package notify

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
)

// smtpSender mails the summary to the configured recipients.
type smtpSender struct {
	addr string
	from string
	to   []string

	// send is swappable for tests.
	send func(addr, from string, to []string, msg []byte) error
}

// NewSMTP builds an SMTP sender from config.
func NewSMTP(cfg SMTPConfig) (Sender, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("smtp addr is required")
	}
	if strings.TrimSpace(cfg.From) == "" || len(cfg.To) == 0 {
		return nil, errors.New("smtp from and to are required")
	}
	return &smtpSender{
		addr: cfg.Addr,
		from: cfg.From,
		to:   cfg.To,
		send: func(addr, from string, to []string, msg []byte) error {
			return smtp.SendMail(addr, nil, from, to, msg)
		},
	}, nil
}

func (s *smtpSender) Name() string { return "smtp" }

func (s *smtpSender) Send(ctx context.Context, msg Message) error {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(s.to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.Body)
	return s.send(s.addr, s.from, s.to, []byte(b.String()))
}
