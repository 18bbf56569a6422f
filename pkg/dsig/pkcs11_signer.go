package dsig

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ThalesGroup/crypto11"
	"github.com/lestrrat-go/jwx/v3/jwa"

	"github.com/SUNET/fedtrust/pkg/jws"
)

// PKCS11Signer loads this entity's signing key from a PKCS#11 hardware
// token via crypto11, whose returned key already implements crypto.Signer.
type PKCS11Signer struct {
	Config      *crypto11.Config
	context     *crypto11.Context
	keyLabel    string
	keyID       string // ID for the key (and its paired certificate, if any)
	initialized bool
}

// NewPKCS11Signer creates a new PKCS11Signer from a PKCS#11 configuration and key label.
func NewPKCS11Signer(config *crypto11.Config, keyLabel string) *PKCS11Signer {
	return &PKCS11Signer{
		Config:   config,
		keyLabel: keyLabel,
		keyID:    "01", // Default ID, can be set with SetKeyID
	}
}

// NewPKCS11SignerFromURI creates a new PKCS11Signer from a PKCS#11 URI.
func NewPKCS11SignerFromURI(pkcs11URI, keyLabel string) (*PKCS11Signer, error) {
	config := ExtractPKCS11Config(pkcs11URI)
	if config == nil {
		return nil, fmt.Errorf("invalid PKCS#11 URI: %s", pkcs11URI)
	}
	return NewPKCS11Signer(config, keyLabel), nil
}

// initialize ensures the PKCS#11 context is created.
func (ps *PKCS11Signer) initialize() error {
	if ps.initialized {
		return nil
	}
	context, err := crypto11.Configure(ps.Config)
	if err != nil {
		return fmt.Errorf("failed to configure PKCS#11 context: %w", err)
	}
	ps.context = context
	ps.initialized = true
	return nil
}

// Close releases the PKCS#11 context.
func (ps *PKCS11Signer) Close() error {
	if ps.context != nil {
		err := ps.context.Close()
		ps.initialized = false
		ps.context = nil
		return err
	}
	return nil
}

// SetKeyID sets the ID to use for key lookups.
func (ps *PKCS11Signer) SetKeyID(id string) {
	ps.keyID = id
}

// hexToBytes converts a hex string to bytes (handling both with and without '0x' prefix).
func hexToBytes(hexStr string) ([]byte, error) {
	hexStr = strings.TrimPrefix(hexStr, "0x")
	if len(hexStr)%2 != 0 {
		hexStr = "0" + hexStr
	}
	return hex.DecodeString(hexStr)
}

// Load finds the private key on the token and wraps it as a jws.SigningKey,
// inferring the signature algorithm from the key's public component.
func (ps *PKCS11Signer) Load() (jws.SigningKey, error) {
	if err := ps.initialize(); err != nil {
		return jws.SigningKey{}, err
	}

	idBytes, err := hexToBytes(ps.keyID)
	if err != nil {
		return jws.SigningKey{}, fmt.Errorf("failed to convert key ID to bytes: %w", err)
	}

	signer, err := ps.context.FindKeyPair(idBytes, []byte(ps.keyLabel))
	if err != nil {
		return jws.SigningKey{}, fmt.Errorf("failed to find private key with label '%s' and ID '%s': %w",
			ps.keyLabel, ps.keyID, err)
	}
	if signer == nil {
		return jws.SigningKey{}, fmt.Errorf("no key found with label '%s' and ID '%s'", ps.keyLabel, ps.keyID)
	}

	alg, err := algorithmFor(signer.Public())
	if err != nil {
		return jws.SigningKey{}, err
	}

	return jws.SigningKey{KeyID: ps.keyLabel, Algorithm: alg, Signer: signer}, nil
}

func algorithmFor(pub crypto.PublicKey) (jwa.SignatureAlgorithm, error) {
	switch key := pub.(type) {
	case *rsa.PublicKey:
		return jwa.RS256(), nil
	case *ecdsa.PublicKey:
		switch key.Curve.Params().BitSize {
		case 384:
			return jwa.ES384(), nil
		case 521:
			return jwa.ES512(), nil
		default:
			return jwa.ES256(), nil
		}
	default:
		return "", fmt.Errorf("unsupported PKCS#11 key type %T", pub)
	}
}

// ExtractPKCS11Config extracts a PKCS#11 configuration from a URI per RFC 7512.
func ExtractPKCS11Config(pkcs11URI string) *crypto11.Config {
	u, err := url.Parse(pkcs11URI)
	if err != nil || u.Scheme != "pkcs11" {
		return nil
	}
	if u.Opaque == "" {
		return nil
	}

	params := strings.Split(u.Opaque, ";")
	config := &crypto11.Config{}

	for _, param := range params {
		if param == "" {
			continue
		}
		kv := strings.SplitN(param, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key, value := kv[0], kv[1]
		switch key {
		case "module":
			config.Path = value
		case "pin":
			config.Pin = value
		case "token":
			config.TokenLabel = value
		case "slot-id":
			if slotID, err := strconv.Atoi(value); err == nil {
				config.SlotNumber = &slotID
			}
		}
	}

	if config.Path == "" {
		return nil
	}
	return config
}
