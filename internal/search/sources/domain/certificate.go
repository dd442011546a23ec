package domain

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"net"
	"strings"
	"time"

	"recon/internal/search/models"
)

// Certificate reads the leaf certificate a domain serves on its TLS port.
type Certificate struct {
	port    string
	timeout time.Duration
	config  *tls.Config
	now     func() time.Time
}

type CertificateOption func(*Certificate)

// WithPort overrides the default port 443.
func WithPort(port string) CertificateOption {
	return func(c *Certificate) {
		c.port = port
	}
}

// WithTLSConfig sets the base TLS config, for example custom root CAs.
// ServerName is always set from the looked-up domain.
func WithTLSConfig(cfg *tls.Config) CertificateOption {
	return func(c *Certificate) {
		c.config = cfg
	}
}

func WithDialTimeout(d time.Duration) CertificateOption {
	return func(c *Certificate) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func NewCertificate(opts ...CertificateOption) *Certificate {
	c := &Certificate{
		port:    "443",
		timeout: 10 * time.Second,
		config:  &tls.Config{MinVersion: tls.VersionTLS12},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Certificate) Name() string { return "ssl_certificate" }

func (c *Certificate) Lookup(ctx context.Context, domain string) (models.Document, error) {
	cfg := c.config.Clone()
	cfg.ServerName = domain

	dialer := &tls.Dialer{NetDialer: &net.Dialer{Timeout: c.timeout}, Config: cfg}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(domain, c.port))
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return nil, errors.New("connection is not TLS")
	}
	state := tlsConn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return nil, errors.New("no peer certificate presented")
	}
	leaf := state.PeerCertificates[0]
	fingerprint := sha256.Sum256(leaf.Raw)
	now := c.now()

	return models.Document{
		"issuer":         leaf.Issuer.String(),
		"subject":        leaf.Subject.String(),
		"valid_from":     leaf.NotBefore.UTC().Format(time.RFC3339),
		"valid_to":       leaf.NotAfter.UTC().Format(time.RFC3339),
		"days_remaining": int(leaf.NotAfter.Sub(now).Hours() / 24),
		"expired":        now.After(leaf.NotAfter),
		"serial_number":  strings.ToUpper(leaf.SerialNumber.Text(16)),
		"fingerprint":    "SHA256:" + hex.EncodeToString(fingerprint[:]),
		"dns_names":      leaf.DNSNames,
		"tls_version":    tls.VersionName(state.Version),
		"found":          true,
		"source":         c.Name(),
		"confidence":     0.9,
	}, nil
}
