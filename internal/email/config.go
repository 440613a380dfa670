// Package email provides the SMTP transport behind the EMAIL channel
// adapter: connection settings and a raw net/smtp+crypto/tls send path,
// adapted from the same SMTP mechanics the teacher used, with credentials
// now sourced from configuration/secrets instead of hardcoded defaults.
package email

import (
	"crypto/tls"
	"fmt"
)

// Config holds the SMTP connection settings for the EMAIL channel.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	FromAddr string
	FromName string
	TLS      bool
}

// SMTPAddr returns the SMTP address with port.
func (c *Config) SMTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TLSConfig returns the TLS configuration used to dial the SMTP server.
func (c *Config) TLSConfig() *tls.Config {
	return &tls.Config{
		ServerName: c.Host,
		MinVersion: tls.VersionTLS12,
	}
}
