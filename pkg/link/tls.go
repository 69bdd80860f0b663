package link

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"strings"

	"github.com/linkmq/linkmq-go/pkg/cert"
)

// VerifyMode controls peer certificate verification.
type VerifyMode string

const (
	// VerifyNone accepts any peer certificate.
	VerifyNone VerifyMode = "none"
	// VerifyOptional verifies a certificate if the peer presents one. Clients
	// verify the chain but not the server name.
	VerifyOptional VerifyMode = "optional"
	// VerifyRequired demands a valid certificate from the peer.
	VerifyRequired VerifyMode = "required"
)

// TLSConfig holds TLS options of a listener or connector.
type TLSConfig struct {
	// CertFile and KeyFile hold the PEM encoded local certificate and key.
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	// CAFile is a PEM bundle of trusted certificates.
	CAFile string `yaml:"ca_file"`

	// Verify defaults to VerifyNone.
	Verify VerifyMode `yaml:"verify"`

	// MinVersion is "1.0", "1.1", "1.2" or "1.3". Defaults to "1.2".
	MinVersion string `yaml:"min_version"`

	// ServerName overrides the host name checked by connectors.
	ServerName string `yaml:"server_name"`

	// Certificates and RootCAs are used in addition to the files.
	Certificates []tls.Certificate `yaml:"-"`
	RootCAs      *x509.CertPool    `yaml:"-"`
}

func (c *TLSConfig) certificates() ([]tls.Certificate, error) {
	certs := append([]tls.Certificate(nil), c.Certificates...)
	if c.CertFile != "" || c.KeyFile != "" {
		kp, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load key pair: %w", err)
		}
		certs = append(certs, kp)
	}
	return certs, nil
}

func (c *TLSConfig) pool() (*x509.CertPool, error) {
	if c.CAFile == "" {
		return c.RootCAs, nil
	}
	pool := x509.NewCertPool()
	if c.RootCAs != nil {
		pool = c.RootCAs.Clone()
	}
	if err := cert.AppendCertsFromFile(pool, c.CAFile); err != nil {
		return nil, fmt.Errorf("load CA bundle: %w", err)
	}
	return pool, nil
}

func (c *TLSConfig) minVersion() (uint16, error) {
	switch strings.TrimPrefix(c.MinVersion, "TLS") {
	case "", "1.2":
		return tls.VersionTLS12, nil
	case "1.0":
		return tls.VersionTLS10, nil
	case "1.1":
		return tls.VersionTLS11, nil
	case "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("%w: unknown TLS version %q", ErrInvalidConfig, c.MinVersion)
	}
}

func (c *TLSConfig) verifyMode() (VerifyMode, error) {
	switch c.Verify {
	case "":
		return VerifyNone, nil
	case VerifyNone, VerifyOptional, VerifyRequired:
		return c.Verify, nil
	default:
		return "", fmt.Errorf("%w: unknown verify mode %q", ErrInvalidConfig, c.Verify)
	}
}

// ServerConfig builds the tls.Config used by a listener.
func (c *TLSConfig) ServerConfig() (*tls.Config, error) {
	certs, err := c.certificates()
	if err != nil {
		return nil, err
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("%w: listener certificate is required", ErrInvalidConfig)
	}
	minVersion, err := c.minVersion()
	if err != nil {
		return nil, err
	}
	mode, err := c.verifyMode()
	if err != nil {
		return nil, err
	}
	pool, err := c.pool()
	if err != nil {
		return nil, err
	}

	cfg := &tls.Config{
		MinVersion:   minVersion,
		Certificates: certs,
		ClientCAs:    pool,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
	}
	switch mode {
	case VerifyNone:
		cfg.ClientAuth = tls.NoClientCert
	case VerifyOptional:
		cfg.ClientAuth = tls.VerifyClientCertIfGiven
	case VerifyRequired:
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return cfg, nil
}

// ClientConfig builds the tls.Config used by a connector to host.
func (c *TLSConfig) ClientConfig(host string) (*tls.Config, error) {
	certs, err := c.certificates()
	if err != nil {
		return nil, err
	}
	minVersion, err := c.minVersion()
	if err != nil {
		return nil, err
	}
	mode, err := c.verifyMode()
	if err != nil {
		return nil, err
	}
	pool, err := c.pool()
	if err != nil {
		return nil, err
	}

	serverName := c.ServerName
	if serverName == "" {
		serverName = host
	}
	cfg := &tls.Config{
		MinVersion:   minVersion,
		Certificates: certs,
		RootCAs:      pool,
		ServerName:   serverName,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
	}
	switch mode {
	case VerifyNone:
		cfg.InsecureSkipVerify = true
	case VerifyOptional:
		cfg.InsecureSkipVerify = true
		cfg.VerifyConnection = verifyChain(pool)
	}
	return cfg, nil
}

// verifyChain checks the peer chain against roots without matching the
// server name.
func verifyChain(roots *x509.CertPool) func(tls.ConnectionState) error {
	return func(cs tls.ConnectionState) error {
		if len(cs.PeerCertificates) == 0 {
			return errors.New("tls: peer presented no certificate")
		}
		opts := x509.VerifyOptions{
			Roots:         roots,
			Intermediates: x509.NewCertPool(),
		}
		for _, ic := range cs.PeerCertificates[1:] {
			opts.Intermediates.AddCert(ic)
		}
		_, err := cs.PeerCertificates[0].Verify(opts)
		return err
	}
}
