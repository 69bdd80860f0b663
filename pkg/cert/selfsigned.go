package cert

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"time"
)

// SelfSignedOptions controls GenerateSelfSigned.
type SelfSignedOptions struct {
	// CommonName defaults to the first host.
	CommonName string

	// Hosts become DNS or IP subject alternative names.
	Hosts []string

	// Validity defaults to 24 hours.
	Validity time.Duration

	// IsCA marks the certificate as a CA so it can be used as a trust root
	// by peers verifying it.
	IsCA bool
}

// GenerateSelfSigned creates an ECDSA P-256 certificate signed by its own key,
// valid for both server and client authentication.
func GenerateSelfSigned(opts SelfSignedOptions) (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate serial: %w", err)
	}

	validity := opts.Validity
	if validity <= 0 {
		validity = 24 * time.Hour
	}
	cn := opts.CommonName
	if cn == "" && len(opts.Hosts) > 0 {
		cn = opts.Hosts[0]
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  opts.IsCA,
	}
	if opts.IsCA {
		template.KeyUsage |= x509.KeyUsageCertSign
	}
	for _, h := range opts.Hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("create certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("parse certificate: %w", err)
	}

	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
		Leaf:        leaf,
	}, nil
}

// WriteKeyPair writes the leaf certificate and key of c to PEM files.
func WriteKeyPair(c tls.Certificate, certPath, keyPath string) error {
	if c.Leaf == nil {
		return fmt.Errorf("%w: certificate has no parsed leaf", ErrNoCerts)
	}
	key, ok := c.PrivateKey.(crypto.Signer)
	if !ok {
		return fmt.Errorf("%w: %T", ErrInvalidKey, c.PrivateKey)
	}
	if err := WriteCertFile(certPath, c.Leaf); err != nil {
		return err
	}
	return WriteKeyFile(keyPath, key)
}
