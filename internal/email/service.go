package email

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"notifyhub/internal/apperr"
)

// Message is a single outbound email, already rendered.
type Message struct {
	To      string
	Subject string
	HTML    string // when set, sent as text/html
	Text    string // used when HTML is empty
}

// Sender delivers Messages over SMTP. It holds no retry logic of its own —
// retries are the Dispatcher's composed retry.Manager's job, not this
// transport's.
type Sender struct {
	Config *Config
}

// NewSender builds a Sender.
func NewSender(config *Config) *Sender {
	return &Sender{Config: config}
}

// Send delivers msg over SMTP, classifying failures for the circuit
// breaker/retry policy composed around this adapter.
func (s *Sender) Send(msg Message) error {
	contentType := "text/plain; charset=UTF-8"
	body := msg.Text
	if msg.HTML != "" {
		contentType = "text/html; charset=UTF-8"
		body = msg.HTML
	}

	headers := map[string]string{
		"From":         fmt.Sprintf("%s <%s>", s.Config.FromName, s.Config.FromAddr),
		"To":           msg.To,
		"Subject":      msg.Subject,
		"MIME-Version": "1.0",
		"Content-Type": contentType,
		"Date":         time.Now().Format(time.RFC1123Z),
	}

	var message bytes.Buffer
	for k, v := range headers {
		message.WriteString(fmt.Sprintf("%s: %s\r\n", k, v))
	}
	message.WriteString("\r\n")
	message.WriteString(body)

	conn, err := tls.Dial("tcp", s.Config.SMTPAddr(), s.Config.TLSConfig())
	if err != nil {
		return apperr.Wrap(apperr.KindAdapterTransient, "smtp tls dial failed", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.Config.Host)
	if err != nil {
		return apperr.Wrap(apperr.KindAdapterTransient, "smtp client init failed", err)
	}
	defer client.Close()

	if s.Config.Username != "" {
		auth := smtp.PlainAuth("", s.Config.Username, s.Config.Password, s.Config.Host)
		if err := client.Auth(auth); err != nil {
			return apperr.Wrap(apperr.KindMissingConfig, "smtp authentication failed", err)
		}
	}

	if err := client.Mail(s.Config.FromAddr); err != nil {
		return apperr.Wrap(apperr.KindAdapterPermanent, "smtp sender rejected", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return apperr.Wrap(apperr.KindAdapterPermanent, "smtp recipient rejected", err)
	}

	w, err := client.Data()
	if err != nil {
		return apperr.Wrap(apperr.KindAdapterTransient, "smtp data command failed", err)
	}
	if _, err := w.Write(message.Bytes()); err != nil {
		return apperr.Wrap(apperr.KindAdapterTransient, "smtp write failed", err)
	}
	if err := w.Close(); err != nil {
		return apperr.Wrap(apperr.KindAdapterTransient, "smtp close failed", err)
	}

	return nil
}

// ValidAddress does a minimal sanity check before attempting delivery, to
// reject obviously malformed addresses without spending a provider call.
func ValidAddress(addr string) bool {
	at := strings.IndexByte(addr, '@')
	return at > 0 && at < len(addr)-1
}
