// Package publish implements the outbound transport: a NATS connection
// with optional mutual TLS, the button-event drain from the dispatch
// queue, and the Opus-encoded audio stream publisher.
package publish

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Publisher is the subset of the NATS client the publishers need.
// *nats.Conn satisfies it; tests substitute a recorder.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// ConnConfig holds the NATS connection settings.
type ConnConfig struct {
	// URL is the server address, e.g. "tls://nats.local:4222".
	URL string

	// Name identifies the client connection on the server.
	Name string

	// UseTLS enables mutual TLS. When disabled a tls:// scheme in URL is
	// rewritten to nats:// so a shared config works in development rigs.
	UseTLS bool

	// CACert is the PEM file of the CA that signed the server cert.
	// Required with UseTLS.
	CACert string

	// ClientCert and ClientKey are the PEM files for the client
	// certificate. Required with UseTLS.
	ClientCert string
	ClientKey  string
}

// Conn wraps a live NATS connection.
type Conn struct {
	nc *nats.Conn
}

// Connect dials the NATS server. With TLS enabled the server certificate
// is verified against the configured CA and the client authenticates with
// its own certificate.
func Connect(cfg ConnConfig) (*Conn, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}

	url := cfg.URL
	if cfg.UseTLS {
		tlsConf, err := clientTLS(cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, nats.Secure(tlsConf))
	} else {
		url = strings.Replace(url, "tls://", "nats://", 1)
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("publish: connect %s: %w", url, err)
	}
	slog.Info("nats connected", "url", nc.ConnectedUrl(), "tls", cfg.UseTLS)
	return &Conn{nc: nc}, nil
}

// clientTLS assembles the mutual-TLS configuration from the PEM files.
func clientTLS(cfg ConnConfig) (*tls.Config, error) {
	if cfg.CACert == "" || cfg.ClientCert == "" || cfg.ClientKey == "" {
		return nil, fmt.Errorf("publish: TLS requires ca_cert, client_cert and client_key")
	}

	caPEM, err := os.ReadFile(cfg.CACert)
	if err != nil {
		return nil, fmt.Errorf("publish: read CA cert: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("publish: no certificates in %s", cfg.CACert)
	}

	cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("publish: load client cert: %w", err)
	}

	return &tls.Config{
		RootCAs:      pool,
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// Publish sends one message fire-and-forget.
func (c *Conn) Publish(subject string, data []byte) error {
	return c.nc.Publish(subject, data)
}

// IsConnected reports whether the connection is currently up. Used by the
// readiness checker.
func (c *Conn) IsConnected() bool {
	return c.nc.IsConnected()
}

// Close flushes pending messages and closes the connection.
func (c *Conn) Close() {
	if err := c.nc.FlushTimeout(2 * time.Second); err != nil {
		slog.Warn("nats flush on close failed", "err", err)
	}
	c.nc.Close()
}
