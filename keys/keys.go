// Package keys loads, generates, and encodes the RSA keypairs actors sign
// federation requests with. Keys travel as PEM blobs so they can live in
// config files or user records interchangeably.
package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

const defaultBits = 2048

// Keypair holds a parsed RSA keypair together with its PEM encodings.
type Keypair struct {
	Private    *rsa.PrivateKey
	Public     *rsa.PublicKey
	PrivatePEM []byte
	PublicPEM  []byte
}

// Generate creates a fresh keypair for a newly provisioned actor.
func Generate() (*Keypair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, defaultBits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa keypair: %w", err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	})

	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("encode public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	return &Keypair{
		Private:    priv,
		Public:     &priv.PublicKey,
		PrivatePEM: privPEM,
		PublicPEM:  pubPEM,
	}, nil
}

// Parse reconstructs a keypair from PEM blobs. The public blob may be empty,
// in which case the public key is derived from the private one.
func Parse(privatePEM, publicPEM []byte) (*Keypair, error) {
	privBlock, _ := pem.Decode(privatePEM)
	if privBlock == nil {
		return nil, fmt.Errorf("private key is not PEM encoded")
	}
	priv, err := x509.ParsePKCS1PrivateKey(privBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	kp := &Keypair{
		Private:    priv,
		Public:     &priv.PublicKey,
		PrivatePEM: privatePEM,
		PublicPEM:  publicPEM,
	}

	if len(publicPEM) == 0 {
		pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("encode public key: %w", err)
		}
		kp.PublicPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
		return kp, nil
	}

	pubBlock, _ := pem.Decode(publicPEM)
	if pubBlock == nil {
		return nil, fmt.Errorf("public key is not PEM encoded")
	}
	pubAny, err := x509.ParsePKIXPublicKey(pubBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := pubAny.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not RSA")
	}
	kp.Public = pub
	return kp, nil
}

// Load reads a keypair from PEM files on disk, the layout server operators
// configure for the instance key.
func Load(privatePath, publicPath string) (*Keypair, error) {
	privPEM, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("read private key %s: %w", privatePath, err)
	}
	var pubPEM []byte
	if publicPath != "" {
		pubPEM, err = os.ReadFile(publicPath)
		if err != nil {
			return nil, fmt.Errorf("read public key %s: %w", publicPath, err)
		}
	}
	return Parse(privPEM, pubPEM)
}

// ParsePublic decodes a standalone PEM public key, the form cached for
// remote actors.
func ParsePublic(publicPEM []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(publicPEM)
	if block == nil {
		return nil, fmt.Errorf("public key is not PEM encoded")
	}
	pubAny, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := pubAny.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not RSA")
	}
	return pub, nil
}
