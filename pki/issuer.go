// Package pki issues the self-signed certificate pair used by the TUIC server.
package pki

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/ruteri/proxy-provisioning/cryptoutils"
	"github.com/ruteri/proxy-provisioning/executil"
)

// NativeIssuer issues ECDSA P-256 certificates in-process.
type NativeIssuer struct{}

// Issue implements interfaces.CertificateIssuer.
func (NativeIssuer) Issue(ctx context.Context, commonName string, validity time.Duration) ([]byte, []byte, error) {
	return cryptoutils.GenerateSelfSignedCertificate(commonName, validity)
}

// Name implements interfaces.CertificateIssuer.
func (NativeIssuer) Name() string {
	return "native"
}

// OpenSSLIssuer issues certificates with the openssl binary.
type OpenSSLIssuer struct {
	Runner executil.Runner

	// Binary defaults to "openssl".
	Binary string
}

// Issue runs `openssl req -x509` into a scratch directory and reads the pair back.
func (o OpenSSLIssuer) Issue(ctx context.Context, commonName string, validity time.Duration) ([]byte, []byte, error) {
	days := int(math.Ceil(validity.Hours() / 24))
	if days < 1 {
		return nil, nil, fmt.Errorf("invalid certificate validity %s", validity)
	}

	dir, err := os.MkdirTemp("", "provision-cert-")
	if err != nil {
		return nil, nil, fmt.Errorf("could not create scratch directory: %w", err)
	}
	defer os.RemoveAll(dir)

	keyPath := filepath.Join(dir, "key.pem")
	certPath := filepath.Join(dir, "cert.pem")

	runner := o.Runner
	if runner == nil {
		runner = executil.OSRunner{}
	}
	binary := o.Binary
	if binary == "" {
		binary = "openssl"
	}

	_, err = runner.Output(ctx, binary, OpenSSLArgs(keyPath, certPath, commonName, days)...)
	if err != nil {
		return nil, nil, fmt.Errorf("certificate issuance failed: %w", err)
	}

	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("could not read issued key: %w", err)
	}
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, nil, fmt.Errorf("could not read issued certificate: %w", err)
	}
	return keyPEM, certPEM, nil
}

// Name implements interfaces.CertificateIssuer.
func (OpenSSLIssuer) Name() string {
	return "openssl"
}

// OpenSSLArgs returns the arguments for a self-signed prime256v1 certificate
// with commonName as subject and DNS name.
func OpenSSLArgs(keyPath, certPath, commonName string, days int) []string {
	return []string{
		"req", "-x509",
		"-newkey", "ec",
		"-pkeyopt", "ec_paramgen_curve:prime256v1",
		"-keyout", keyPath,
		"-out", certPath,
		"-subj", "/CN=" + commonName,
		"-addext", "subjectAltName=DNS:" + commonName,
		"-days", fmt.Sprint(days),
		"-nodes",
	}
}
