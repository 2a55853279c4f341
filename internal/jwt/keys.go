package jwt

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"

	jose "github.com/go-jose/go-jose/v4"
)

var (
	// ErrUnsupportedAlgorithm rejects algorithm/size combinations outside
	// the supported table. Unsupported input is never silently downgraded.
	ErrUnsupportedAlgorithm = errors.New("jwt: unsupported algorithm")
	// ErrKeyGeneration wraps failures while drawing or encoding key material.
	ErrKeyGeneration = errors.New("jwt: key generation failed")
)

// Algorithm is a closed enum of the signing algorithms this server issues
// tokens with. Values match the JOSE registry names.
type Algorithm string

const (
	HS256 Algorithm = "HS256"
	HS384 Algorithm = "HS384"
	HS512 Algorithm = "HS512"

	ES256 Algorithm = "ES256"
	ES384 Algorithm = "ES384"

	RS256 Algorithm = "RS256"
	RS384 Algorithm = "RS384"
	RS512 Algorithm = "RS512"

	PS256 Algorithm = "PS256"
	PS384 Algorithm = "PS384"
	PS512 Algorithm = "PS512"

	EdDSA Algorithm = "EdDSA"
)

// Family groups algorithms by the key-material operations they share.
type Family int

const (
	FamilyHMAC Family = iota
	FamilyRSA
	FamilyEC
	FamilyEd
)

// Family maps the algorithm to its key family.
func (a Algorithm) Family() (Family, error) {
	switch a {
	case HS256, HS384, HS512:
		return FamilyHMAC, nil
	case ES256, ES384:
		return FamilyEC, nil
	case RS256, RS384, RS512, PS256, PS384, PS512:
		return FamilyRSA, nil
	case EdDSA:
		return FamilyEd, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, a)
	}
}

// BitSize returns the fixed key strength for the algorithm: digest bits for
// HMAC, modulus bits for RSA, curve bits for EC. EdDSA has no size parameter
// and returns 0.
func (a Algorithm) BitSize() int {
	switch a {
	case HS256, ES256:
		return 256
	case HS384, ES384:
		return 384
	case HS512:
		return 512
	case RS256, PS256:
		return 2048
	case RS384, PS384:
		return 3072
	case RS512, PS512:
		return 4096
	default:
		return 0
	}
}

func (a Algorithm) curve() (elliptic.Curve, error) {
	switch a {
	case ES256:
		return elliptic.P256(), nil
	case ES384:
		return elliptic.P384(), nil
	default:
		return nil, fmt.Errorf("%w: %s is not an EC algorithm", ErrUnsupportedAlgorithm, a)
	}
}

// KeyPair is an algorithm tag plus raw private key material: the shared MAC
// secret for HMAC, or a DER-encoded private key for the asymmetric families.
// Pairs are created by Generate and consumed by the Issuer; this core never
// persists them.
type KeyPair struct {
	Algorithm Algorithm `json:"alg"`
	Private   []byte    `json:"key"`
}

// Generate draws a fresh key pair for the algorithm. RSA generation can be
// slow for large moduli; callers on a request path should treat it as
// background work.
func Generate(alg Algorithm) (*KeyPair, error) {
	family, err := alg.Family()
	if err != nil {
		return nil, err
	}

	var material []byte
	switch family {
	case FamilyHMAC:
		material = make([]byte, alg.BitSize()/8)
		if _, err := rand.Read(material); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrKeyGeneration, alg, err)
		}
	case FamilyRSA:
		key, err := rsa.GenerateKey(rand.Reader, alg.BitSize())
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrKeyGeneration, alg, err)
		}
		material = x509.MarshalPKCS1PrivateKey(key)
	case FamilyEC:
		curve, err := alg.curve()
		if err != nil {
			return nil, err
		}
		key, err := ecdsa.GenerateKey(curve, rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrKeyGeneration, alg, err)
		}
		material, err = x509.MarshalECPrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrKeyGeneration, alg, err)
		}
	case FamilyEd:
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrKeyGeneration, alg, err)
		}
		material, err = x509.MarshalPKCS8PrivateKey(priv)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrKeyGeneration, alg, err)
		}
	}

	return &KeyPair{Algorithm: alg, Private: material}, nil
}

// signingKey parses the private material into the form go-jose signs with.
func (p *KeyPair) signingKey() (any, error) {
	family, err := p.Algorithm.Family()
	if err != nil {
		return nil, err
	}
	switch family {
	case FamilyHMAC:
		return p.Private, nil
	case FamilyRSA:
		return x509.ParsePKCS1PrivateKey(p.Private)
	case FamilyEC:
		return x509.ParseECPrivateKey(p.Private)
	default:
		key, err := x509.ParsePKCS8PrivateKey(p.Private)
		if err != nil {
			return nil, err
		}
		priv, ok := key.(ed25519.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an Ed25519 key", ErrUnsupportedAlgorithm)
		}
		return priv, nil
	}
}

// verificationKey derives the key go-jose verifies with: the shared secret
// for HMAC, the public half otherwise.
func (p *KeyPair) verificationKey() (any, error) {
	family, err := p.Algorithm.Family()
	if err != nil {
		return nil, err
	}
	if family == FamilyHMAC {
		return p.Private, nil
	}
	key, err := p.signingKey()
	if err != nil {
		return nil, err
	}
	switch priv := key.(type) {
	case *rsa.PrivateKey:
		return &priv.PublicKey, nil
	case *ecdsa.PrivateKey:
		return &priv.PublicKey, nil
	case ed25519.PrivateKey:
		return priv.Public(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, p.Algorithm)
	}
}

// Public exports the public key material: HMAC returns the secret itself (a
// MAC key verifies as it signs), the asymmetric families return the PKIX DER
// encoding derived from the private key.
func (p *KeyPair) Public() ([]byte, error) {
	key, err := p.verificationKey()
	if err != nil {
		return nil, err
	}
	if secret, ok := key.([]byte); ok {
		out := make([]byte, len(secret))
		copy(out, secret)
		return out, nil
	}
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, fmt.Errorf("export public key: %w", err)
	}
	return der, nil
}

// KeyManager holds the process signing key, generated once at bootstrap.
type KeyManager struct {
	pair *KeyPair
}

// NewKeyManager generates the active signing key for the configured algorithm.
func NewKeyManager(alg Algorithm) (*KeyManager, error) {
	pair, err := Generate(alg)
	if err != nil {
		return nil, fmt.Errorf("ensure signing key: %w", err)
	}
	return &KeyManager{pair: pair}, nil
}

// ActivePair returns the current signing key pair.
func (m *KeyManager) ActivePair() *KeyPair {
	return m.pair
}

// JWKS returns the public JSON Web Key Set for the active key.
func (m *KeyManager) JWKS(kid string) (jose.JSONWebKeySet, error) {
	key, err := m.pair.verificationKey()
	if err != nil {
		return jose.JSONWebKeySet{}, fmt.Errorf("jwks active key: %w", err)
	}
	jwk := jose.JSONWebKey{
		KeyID:     kid,
		Use:       "sig",
		Algorithm: string(m.pair.Algorithm),
		Key:       key,
	}
	return jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}}, nil
}
