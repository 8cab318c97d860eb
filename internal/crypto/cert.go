package crypto

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"

	"github.com/sufield/popc/internal/domain"
)

// ParseCertificate accepts a PEM block or base64 DER.
func ParseCertificate(enc string) (*x509.Certificate, error) {
	s := strings.TrimSpace(enc)
	if block, _ := pem.Decode([]byte(s)); block != nil {
		return x509.ParseCertificate(block.Bytes)
	}
	der, err := DecodeBase64(s)
	if err != nil {
		return nil, fmt.Errorf("certificate is neither PEM nor base64 DER: %w", err)
	}
	return x509.ParseCertificate(der)
}

// DescribeCertificate derives the persisted summary of cert.
func DescribeCertificate(cert *x509.Certificate) domain.CertificateInfo {
	return domain.CertificateInfo{
		FingerprintSHA256: Fingerprint(cert.Raw),
		Subject:           cert.Subject.String(),
		Issuer:            cert.Issuer.String(),
		NotBefore:         cert.NotBefore.UTC(),
		NotAfter:          cert.NotAfter.UTC(),
	}
}
