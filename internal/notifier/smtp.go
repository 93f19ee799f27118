package notifier

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

// SMTPNotifier sends mail through a plain SMTP relay with AUTH PLAIN over
// STARTTLS, which net/smtp negotiates when the server offers it.
type SMTPNotifier struct {
	host     string
	port     int
	sender   string
	password string
}

var _ Notifier = (*SMTPNotifier)(nil)

// NewSMTPNotifier constructs a notifier for the given relay.
func NewSMTPNotifier(host string, port int, sender, password string) *SMTPNotifier {
	return &SMTPNotifier{host: host, port: port, sender: sender, password: password}
}

// Send delivers a single HTML message. The context deadline is honored up to
// connection setup; net/smtp does not support mid-session cancellation.
func (n *SMTPNotifier) Send(ctx context.Context, recipient, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := net.JoinHostPort(n.host, strconv.Itoa(n.port))
	auth := smtp.PlainAuth("", n.sender, n.password, n.host)

	var msg strings.Builder
	msg.WriteString("From: " + n.sender + "\r\n")
	msg.WriteString("To: " + recipient + "\r\n")
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)
	msg.WriteString("\r\n")

	if err := smtp.SendMail(addr, auth, n.sender, []string{recipient}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send mail to %s: %w", recipient, err)
	}
	return nil
}
