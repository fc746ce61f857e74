// Package main generates the token signing key pair and, for local HTTPS,
// a CA with a server certificate signed by it.
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"flag"
	"fmt"
	"log"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/atinyakov/smartstamp/internal/credential"
)

func main() {
	var (
		keysDir  string
		certsDir string
		withTLS  bool
	)
	flag.StringVar(&keysDir, "keys", "keys", "directory for the signing key pair")
	flag.StringVar(&certsDir, "certs", "certs", "directory for TLS certificates")
	flag.BoolVar(&withTLS, "tls", false, "also generate a CA and a localhost server certificate")
	flag.Parse()

	// 1. Token signing key pair
	key, err := credential.GenerateKey()
	if err != nil {
		log.Fatal(err)
	}
	if err := writeSigningKeys(keysDir, key); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Signing keys written to ./%s\n", keysDir)

	if !withTLS {
		return
	}

	// 2. CA and server certificate for HTTPS
	caCert, caKey, err := generateCA()
	if err != nil {
		log.Fatal(err)
	}
	serverCert, serverKey, err := generateServerCert("localhost", caCert, caKey)
	if err != nil {
		log.Fatal(err)
	}
	if err := os.MkdirAll(certsDir, 0o755); err != nil {
		log.Fatal(err)
	}
	if err := writeCertAndKey(filepath.Join(certsDir, "ca.crt"), filepath.Join(certsDir, "ca.key"), caCert, caKey); err != nil {
		log.Fatal(err)
	}
	if err := writeCertAndKey(filepath.Join(certsDir, "server.crt"), filepath.Join(certsDir, "server.key"), serverCert, serverKey); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Certificates written to ./%s\n", certsDir)
}

// writeSigningKeys stores key as private_key.pem (PKCS#1) and its public
// half as public_key.pem inside dir.
func writeSigningKeys(dir string, key *rsa.PrivateKey) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "private_key.pem"), credential.EncodePrivateKeyPEM(key), 0o600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	pub, err := credential.EncodePublicKeyPEM(&key.PublicKey)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "public_key.pem"), pub, 0o644); err != nil {
		return fmt.Errorf("write public key: %w", err)
	}
	return nil
}

// generateCA creates a self-signed CA certificate valid for 10 years.
func generateCA() (*x509.Certificate, *rsa.PrivateKey, error) {
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName: "Smart Stamp Dev CA",
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().AddDate(10, 0, 0),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	key, err := rsa.GenerateKey(rand.Reader, credential.KeyBits)
	if err != nil {
		return nil, nil, fmt.Errorf("gen ca key: %w", err)
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, nil, fmt.Errorf("create ca cert: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, err
	}
	return cert, key, nil
}

// generateServerCert creates a server certificate for host signed by ca,
// valid for one year.
func generateServerCert(host string, ca *x509.Certificate, caKey *rsa.PrivateKey) (*x509.Certificate, *rsa.PrivateKey, error) {
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject: pkix.Name{
			CommonName: host,
		},
		DNSNames:              []string{host},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().AddDate(1, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	key, err := rsa.GenerateKey(rand.Reader, credential.KeyBits)
	if err != nil {
		return nil, nil, fmt.Errorf("gen server key: %w", err)
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, ca, &key.PublicKey, caKey)
	if err != nil {
		return nil, nil, fmt.Errorf("create server cert: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, err
	}
	return cert, key, nil
}

// writeCertAndKey writes cert as a CERTIFICATE block and key as an
// RSA PRIVATE KEY block.
func writeCertAndKey(certPath, keyPath string, cert *x509.Certificate, key *rsa.PrivateKey) error {
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	if err := os.WriteFile(certPath, certPEM, 0o644); err != nil {
		return err
	}
	return os.WriteFile(keyPath, credential.EncodePrivateKeyPEM(key), 0o600)
}
