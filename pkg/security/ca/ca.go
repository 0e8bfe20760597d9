package ca

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	rootKeyFile  = "root.key"
	rootCertFile = "root.crt"

	rootKeyBits = 2048
	leafKeyBits = 2048

	rootValidity = 3 * 365 * 24 * time.Hour
	leafValidity = 365 * 24 * time.Hour
)

// Authority owns the root-of-trust and issues per-host leaf certificates
// for TLS interception. The root key pair is created once under Dir and
// reloaded on subsequent starts; leaf certificates are generated lazily
// and cached in memory for the process lifetime.
type Authority struct {
	dir        string
	commonName string

	rootCert *x509.Certificate
	rootKey  *rsa.PrivateKey

	// mu guards the whole read-check-generate-insert sequence on the
	// leaf cache so concurrent CONNECTs never double-generate a host.
	mu    sync.Mutex
	leafs map[string]*tls.Config

	logger *slog.Logger
}

// New creates an Authority rooted at dir and ensures the root key pair
// exists, generating and persisting it when absent. It is idempotent
// across process restarts: an existing valid pair is never regenerated.
func New(dir, commonName string) (*Authority, error) {
	a := &Authority{
		dir:        dir,
		commonName: commonName,
		leafs:      make(map[string]*tls.Config),
		logger:     slog.Default().With("component", "security.ca"),
	}

	if err := a.ensureRoot(); err != nil {
		return nil, err
	}
	return a, nil
}

// RootCertificatePEM returns the PEM-encoded root certificate, suitable
// for installing into a client trust store.
func (a *Authority) RootCertificatePEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: a.rootCert.Raw})
}

// RootCertificate returns the parsed root certificate.
func (a *Authority) RootCertificate() *x509.Certificate {
	return a.rootCert
}

// ensureRoot loads the root key pair from disk, generating a fresh
// self-signed root when either file is missing.
func (a *Authority) ensureRoot() error {
	keyPath := filepath.Join(a.dir, rootKeyFile)
	certPath := filepath.Join(a.dir, rootCertFile)

	keyBytes, keyErr := os.ReadFile(keyPath)
	certBytes, certErr := os.ReadFile(certPath)
	if keyErr == nil && certErr == nil {
		if err := a.loadRoot(keyBytes, certBytes); err != nil {
			return fmt.Errorf("failed to load existing root authority: %w", err)
		}
		a.logger.Debug("loaded root authority", "dir", a.dir, "expires", a.rootCert.NotAfter)
		return nil
	}

	if err := os.MkdirAll(a.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create CA directory %q: %w", a.dir, err)
	}

	key, err := rsa.GenerateKey(rand.Reader, rootKeyBits)
	if err != nil {
		return fmt.Errorf("failed to generate root key: %w", err)
	}

	serial, err := randomSerial()
	if err != nil {
		return err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: a.commonName},
		NotBefore:             now.Add(-1 * time.Hour),
		NotAfter:              now.Add(rootValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		IsCA:                  true,
		BasicConstraintsValid: true,
		MaxPathLen:            0,
		MaxPathLenZero:        true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("failed to create root certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return fmt.Errorf("failed to parse generated root certificate: %w", err)
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})

	if err := writeFileAtomic(keyPath, keyPEM, 0o600); err != nil {
		return fmt.Errorf("failed to persist root key: %w", err)
	}
	if err := writeFileAtomic(certPath, certPEM, 0o644); err != nil {
		return fmt.Errorf("failed to persist root certificate: %w", err)
	}

	a.rootKey = key
	a.rootCert = cert
	a.logger.Info("generated new root authority",
		"dir", a.dir,
		"common_name", a.commonName,
		"expires", cert.NotAfter,
	)
	return nil
}

func (a *Authority) loadRoot(keyPEM, certPEM []byte) error {
	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return fmt.Errorf("no PEM block in root key file")
	}
	key, err := x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
	if err != nil {
		// Older installs may have written PKCS8.
		k, err8 := x509.ParsePKCS8PrivateKey(keyBlock.Bytes)
		if err8 != nil {
			return fmt.Errorf("failed to parse root key: %w", err)
		}
		rsaKey, ok := k.(*rsa.PrivateKey)
		if !ok {
			return fmt.Errorf("root key is not RSA")
		}
		key = rsaKey
	}

	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil {
		return fmt.Errorf("no PEM block in root certificate file")
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return fmt.Errorf("failed to parse root certificate: %w", err)
	}

	a.rootKey = key
	a.rootCert = cert
	return nil
}

// CertificateFor returns a server-side TLS configuration presenting a leaf
// certificate for host, signed by the root. Results are cached per host;
// the cache is guarded so concurrent requests for the same host generate
// the certificate exactly once. A generation failure affects only the
// requesting session, never the authority or other cached entries.
func (a *Authority) CertificateFor(host string) (*tls.Config, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if cfg, ok := a.leafs[host]; ok {
		return cfg, nil
	}

	cert, err := a.generateLeaf(host)
	if err != nil {
		return nil, fmt.Errorf("failed to issue certificate for %q: %w", host, err)
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"http/1.1"},
		MinVersion:   tls.VersionTLS12,
	}
	a.leafs[host] = cfg
	a.logger.Debug("issued leaf certificate", "host", host)
	return cfg, nil
}

// CachedHosts returns the hostnames with cached leaf certificates,
// primarily for diagnostics.
func (a *Authority) CachedHosts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	hosts := make([]string, 0, len(a.leafs))
	for h := range a.leafs {
		hosts = append(hosts, h)
	}
	return hosts
}

func (a *Authority) generateLeaf(host string) (tls.Certificate, error) {
	key, err := rsa.GenerateKey(rand.Reader, leafKeyBits)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to generate leaf key: %w", err)
	}

	serial, err := randomSerial()
	if err != nil {
		return tls.Certificate{}, err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: host},
		NotBefore:    now.Add(-1 * time.Hour),
		NotAfter:     now.Add(leafValidity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	if ip := net.ParseIP(host); ip != nil {
		template.IPAddresses = []net.IP{ip}
	} else {
		template.DNSNames = []string{host}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, a.rootCert, &key.PublicKey, a.rootKey)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to sign leaf certificate: %w", err)
	}

	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to parse leaf certificate: %w", err)
	}

	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
		Leaf:        leaf,
	}, nil
}

// randomSerial returns a cryptographically random 128-bit serial number.
func randomSerial() (*big.Int, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}
	return serial, nil
}

// writeFileAtomic writes data to path via a temporary file and rename.
func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, mode); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
