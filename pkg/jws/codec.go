// Package jws implements the Signed Statement Codec (spec.md section 4.1):
// encoding, signing, and verifying the compact JWS objects that carry every
// entity statement and trust mark in this federation. It has no federation
// semantics of its own — it only knows about headers, payloads, and keys.
package jws

import (
	"crypto"
	"encoding/json"
	"fmt"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jws"

	"github.com/SUNET/fedtrust/pkg/federation"
)

// SupportedAlgorithms lists the signature algorithms this codec will sign
// or verify with, per spec.md section 4.1. "none" is never supported.
var SupportedAlgorithms = []jwa.SignatureAlgorithm{
	jwa.RS256(), jwa.RS384(), jwa.RS512(), jwa.PS256(),
	jwa.ES256(), jwa.ES384(), jwa.ES512(),
}

func isSupported(alg jwa.SignatureAlgorithm) bool {
	for _, a := range SupportedAlgorithms {
		if a == alg {
			return true
		}
	}
	return false
}

// SigningKey pairs a crypto.Signer with the key id and algorithm it should
// be used under, so the codec can set the right "kid"/"alg" header values.
type SigningKey struct {
	KeyID     string
	Algorithm jwa.SignatureAlgorithm
	Signer    crypto.Signer
}

// Sign encodes payload as JSON and produces a compact JWS signed with key,
// stamping the given typ header ("entity-statement+jwt" or
// "trust-mark+jwt"). typ may be empty.
func Sign(payload any, key SigningKey, typ string) (string, error) {
	if !isSupported(key.Algorithm) {
		return "", federation.NewError(federation.KindUnknownAlgorithm, string(key.Algorithm.String()), nil)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", federation.NewError(federation.KindMalformedToken, "marshal payload", err)
	}

	headers := jws.NewHeaders()
	if key.KeyID != "" {
		if err := headers.Set(jws.KeyIDKey, key.KeyID); err != nil {
			return "", federation.NewError(federation.KindMalformedToken, "set kid header", err)
		}
	}
	if typ != "" {
		if err := headers.Set(jws.TypeKey, typ); err != nil {
			return "", federation.NewError(federation.KindMalformedToken, "set typ header", err)
		}
	}

	signed, err := jws.Sign(body, jws.WithKey(key.Algorithm, key.Signer, jws.WithProtectedHeaders(headers)))
	if err != nil {
		return "", federation.NewError(federation.KindBadSignature, "sign statement", err)
	}
	return string(signed), nil
}

// Verify decodes and verifies a compact JWS string against keys, a
// candidate key set for the issuer. On success it returns the raw JSON
// payload bytes; callers unmarshal into the concrete claim type they
// expect (EntityStatement or TrustMarkClaim).
//
// Key selection tries the header's "kid" first; if no kid is present, or no
// key in the set carries that kid, every key compatible with the header's
// algorithm family is tried in order. "none" is never accepted because
// SupportedAlgorithms never contains it, and an unrecognized alg is
// rejected outright.
func Verify(token string, keys jwk.Set) ([]byte, error) {
	msg, err := jws.Parse([]byte(token))
	if err != nil {
		return nil, federation.NewError(federation.KindMalformedToken, "parse compact JWS", err)
	}
	sigs := msg.Signatures()
	if len(sigs) != 1 {
		return nil, federation.NewError(federation.KindMalformedToken, "expected exactly one signature", nil)
	}
	hdrs := sigs[0].ProtectedHeaders()
	alg := hdrs.Algorithm()
	if !isSupported(alg) {
		return nil, federation.NewError(federation.KindUnknownAlgorithm, alg.String(), nil)
	}

	candidates, err := candidateKeys(keys, hdrs.KeyID(), alg)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, federation.NewError(federation.KindUnknownKey, "no candidate verification key", nil)
	}

	var lastErr error
	for _, key := range candidates {
		payload, err := jws.Verify([]byte(token), jws.WithKey(alg, key))
		if err == nil {
			return payload, nil
		}
		lastErr = err
	}
	return nil, federation.NewError(federation.KindBadSignature, "no candidate key verified the signature", lastErr)
}

// candidateKeys returns the keys from set that should be tried to verify a
// signature with the given kid (may be empty) and algorithm.
func candidateKeys(set jwk.Set, kid string, alg jwa.SignatureAlgorithm) ([]jwk.Key, error) {
	if set == nil {
		return nil, federation.NewError(federation.KindUnknownKey, "nil key set", nil)
	}
	var byKid []jwk.Key
	var byFamily []jwk.Key
	it := set.Keys(nil)
	for it.Next(nil) {
		key, ok := it.Pair().Value.(jwk.Key)
		if !ok {
			continue
		}
		if kid != "" && key.KeyID() == kid {
			byKid = append(byKid, key)
			continue
		}
		if keyCompatibleWithAlg(key, alg) {
			byFamily = append(byFamily, key)
		}
	}
	if len(byKid) > 0 {
		return byKid, nil
	}
	return byFamily, nil
}

func keyCompatibleWithAlg(key jwk.Key, alg jwa.SignatureAlgorithm) bool {
	switch alg {
	case jwa.RS256(), jwa.RS384(), jwa.RS512(), jwa.PS256():
		return key.KeyType().String() == "RSA"
	case jwa.ES256(), jwa.ES384(), jwa.ES512():
		return key.KeyType().String() == "EC"
	default:
		return false
	}
}

// HeaderType returns the "typ" header of token without verifying its
// signature. Used by callers that want to dispatch on statement shape
// (entity configuration vs. trust mark) before selecting a key set.
func HeaderType(token string) (string, error) {
	msg, err := jws.Parse([]byte(token))
	if err != nil {
		return "", fmt.Errorf("parse compact JWS: %w", err)
	}
	sigs := msg.Signatures()
	if len(sigs) != 1 {
		return "", fmt.Errorf("expected exactly one signature")
	}
	return sigs[0].ProtectedHeaders().Type(), nil
}

// PeekPayload returns token's payload bytes without verifying its
// signature. Used to bootstrap self-signature verification of an entity
// configuration: the jwks needed to verify the token lives inside the
// token's own (as yet unverified) payload.
func PeekPayload(token string) ([]byte, error) {
	msg, err := jws.Parse([]byte(token))
	if err != nil {
		return nil, federation.NewError(federation.KindMalformedToken, "parse compact JWS", err)
	}
	return msg.Payload(), nil
}
