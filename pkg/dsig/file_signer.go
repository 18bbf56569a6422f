// Package dsig supplies this entity's signing key as a crypto.Signer,
// wrapped for use with the Signed Statement Codec (pkg/jws). It does not
// produce XML signatures: every object this federation signs is a compact
// JWS, so Load returns a jws.SigningKey directly rather than a detached
// signature over some payload.
package dsig

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/lestrrat-go/jwx/v3/jwa"

	"github.com/SUNET/fedtrust/pkg/jws"
)

// Signer produces the signing key this entity uses to sign its statements.
type Signer interface {
	Load() (jws.SigningKey, error)
}

// FileSigner loads a PEM certificate and private key from disk.
type FileSigner struct {
	CertFile string
	KeyFile  string
	KeyID    string // defaults to the certificate's serial number in hex
}

// NewFileSigner creates a new FileSigner from certificate and key file paths.
func NewFileSigner(certFile, keyFile string) *FileSigner {
	return &FileSigner{CertFile: certFile, KeyFile: keyFile}
}

// Load reads and parses the certificate and key, returning a SigningKey
// whose algorithm is inferred from the key type (RSA -> RS256, EC -> ES256/
// ES384/ES512 by curve).
func (fs *FileSigner) Load() (jws.SigningKey, error) {
	certData, err := os.ReadFile(fs.CertFile)
	if err != nil {
		return jws.SigningKey{}, fmt.Errorf("read certificate file: %w", err)
	}
	keyData, err := os.ReadFile(fs.KeyFile)
	if err != nil {
		return jws.SigningKey{}, fmt.Errorf("read key file: %w", err)
	}

	certBlock, _ := pem.Decode(certData)
	if certBlock == nil {
		return jws.SigningKey{}, fmt.Errorf("decode certificate PEM")
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return jws.SigningKey{}, fmt.Errorf("parse certificate: %w", err)
	}

	keyBlock, _ := pem.Decode(keyData)
	if keyBlock == nil {
		return jws.SigningKey{}, fmt.Errorf("decode key PEM")
	}

	signer, alg, err := parsePrivateKey(keyBlock.Bytes)
	if err != nil {
		return jws.SigningKey{}, err
	}

	kid := fs.KeyID
	if kid == "" {
		kid = fmt.Sprintf("%x", cert.SerialNumber)
	}

	return jws.SigningKey{KeyID: kid, Algorithm: alg, Signer: signer}, nil
}

// parsePrivateKey tries PKCS1, then EC-specific DER, then PKCS8, returning
// the signer and the algorithm its key type/curve implies.
func parsePrivateKey(der []byte) (crypto.Signer, jwa.SignatureAlgorithm, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, jwa.RS256(), nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, ecAlgorithm(key), nil
	}
	keyAny, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, "", fmt.Errorf("parse private key: %w", err)
	}
	switch key := keyAny.(type) {
	case *rsa.PrivateKey:
		return key, jwa.RS256(), nil
	case *ecdsa.PrivateKey:
		return key, ecAlgorithm(key), nil
	default:
		return nil, "", fmt.Errorf("unsupported private key type %T", keyAny)
	}
}

func ecAlgorithm(key *ecdsa.PrivateKey) jwa.SignatureAlgorithm {
	switch key.Curve.Params().BitSize {
	case 384:
		return jwa.ES384()
	case 521:
		return jwa.ES512()
	default:
		return jwa.ES256()
	}
}
