package signing

import (
	"context"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/digitorus/pdfsign/sign"

	"esign-backend/internal/envelopes"
)

// Signer applies a PKCS#7 digital signature to completed documents using a
// configured certificate and private key.
type Signer struct {
	cert    *x509.Certificate
	key     crypto.Signer
	timeout time.Duration
	now     func() time.Time
}

// New loads the PEM-encoded certificate and private key from disk.
func New(certFile, keyFile string, timeout time.Duration) (*Signer, error) {
	cert, err := loadCertificate(certFile)
	if err != nil {
		return nil, fmt.Errorf("load signing certificate: %w", err)
	}
	key, err := loadPrivateKey(keyFile)
	if err != nil {
		return nil, fmt.Errorf("load signing key: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Signer{cert: cert, key: key, timeout: timeout, now: time.Now}, nil
}

// Sign embeds a certification signature into the document. The underlying
// library works on files, so the document round-trips through a temp
// directory.
func (s *Signer) Sign(ctx context.Context, pdfBytes []byte, info envelopes.SigningInfo) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := s.signFile(pdfBytes, info)
		done <- result{data, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("signing: %w", ctx.Err())
	case res := <-done:
		return res.data, res.err
	}
}

func (s *Signer) signFile(pdfBytes []byte, info envelopes.SigningInfo) ([]byte, error) {
	dir, err := os.MkdirTemp("", "pdf-sign-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in.pdf")
	out := filepath.Join(dir, "out.pdf")
	if err := os.WriteFile(in, pdfBytes, 0o600); err != nil {
		return nil, fmt.Errorf("write temp pdf: %w", err)
	}

	err = sign.SignFile(in, out, sign.SignData{
		Signature: sign.SignDataSignature{
			Info: sign.SignDataSignatureInfo{
				Name:        info.Name,
				Location:    info.Location,
				Reason:      info.Reason,
				ContactInfo: info.Email,
				Date:        s.now(),
			},
			CertType:   sign.CertificationSignature,
			DocMDPPerm: sign.AllowFillingExistingFormFieldsAndSignaturesPerms,
		},
		Signer:          s.key,
		DigestAlgorithm: crypto.SHA256,
		Certificate:     s.cert,
	})
	if err != nil {
		return nil, fmt.Errorf("sign pdf: %w", err)
	}

	signed, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("read signed pdf: %w", err)
	}
	return signed, nil
}

func loadCertificate(path string) (*x509.Certificate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, errors.New("no CERTIFICATE block in pem file")
	}
	return x509.ParseCertificate(block.Bytes)
}

func loadPrivateKey(path string) (crypto.Signer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.New("no pem block in key file")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, errors.New("pkcs8 key does not implement crypto.Signer")
		}
		return signer, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	return nil, errors.New("unsupported private key format")
}

var _ envelopes.SignatureApplier = (*Signer)(nil)
