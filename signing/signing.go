// Package signing is a thin ECC helper used by callers that need to attach
// a verifiable signature to an identity or a blob of bytes. It mirrors the
// reference cortex's digest-then-sign helper: P-384, SHA-256, DER encoding.
// It is not part of the tuple store's core; the store never signs anything
// itself.
package signing

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"

	"github.com/pkg/errors"
)

// PrivateKey wraps an ECDSA P-384 private key.
type PrivateKey struct {
	key *ecdsa.PrivateKey
}

// PublicKey wraps an ECDSA P-384 public key.
type PublicKey struct {
	key *ecdsa.PublicKey
}

// GenerateKey creates a new P-384 PrivateKey.
func GenerateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "signing: generate key")
	}
	return &PrivateKey{key: key}, nil
}

// Public returns the PublicKey corresponding to priv.
func (priv *PrivateKey) Public() *PublicKey {
	return &PublicKey{key: &priv.key.PublicKey}
}

// Iden returns a SHA-256 hash of the public key's DER encoding, suitable for
// use as a stable identifier.
func (priv *PrivateKey) Iden() (string, error) {
	return priv.Public().Iden()
}

// Sign computes the ECDSA signature over SHA256(data).
func (priv *PrivateKey) Sign(data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	sig, err := ecdsa.SignASN1(rand.Reader, priv.key, digest[:])
	if err != nil {
		return nil, errors.Wrap(err, "signing: sign")
	}
	return sig, nil
}

// Dump serializes priv in DER/PKCS8 form.
func (priv *PrivateKey) Dump() ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv.key)
	if err != nil {
		return nil, errors.Wrap(err, "signing: marshal private key")
	}
	return der, nil
}

// LoadPrivateKey parses a DER/PKCS8 encoded private key.
func LoadPrivateKey(der []byte) (*PrivateKey, error) {
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, errors.Wrap(err, "signing: parse private key")
	}
	ecKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.New("signing: private key is not ECDSA")
	}
	return &PrivateKey{key: ecKey}, nil
}

// Dump serializes pub in DER/SubjectPublicKeyInfo form.
func (pub *PublicKey) Dump() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub.key)
	if err != nil {
		return nil, errors.Wrap(err, "signing: marshal public key")
	}
	return der, nil
}

// LoadPublicKey parses a DER/SubjectPublicKeyInfo encoded public key.
func LoadPublicKey(der []byte) (*PublicKey, error) {
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, errors.Wrap(err, "signing: parse public key")
	}
	ecKey, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("signing: public key is not ECDSA")
	}
	return &PublicKey{key: ecKey}, nil
}

// Verify reports whether sig is a valid ECDSA signature over SHA256(data)
// made by the corresponding private key.
func (pub *PublicKey) Verify(data, sig []byte) bool {
	digest := sha256.Sum256(data)
	return ecdsa.VerifyASN1(pub.key, digest[:], sig)
}

// Iden returns a SHA-256 hash of the public key's DER encoding.
func (pub *PublicKey) Iden() (string, error) {
	der, err := pub.Dump()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:]), nil
}
