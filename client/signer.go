// Package client speaks HTTP to other servers: signed POSTs to remote
// inboxes and GETs that dereference remote objects. Signatures follow the
// draft-cavage HTTP signature scheme over (request-target), host, and date,
// which is what the rest of the fediverse interoperates on.
package client

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-federation/pkg/types"
)

const (
	signatureAlgorithm = "rsa-sha256"
	signedHeaderList   = "(request-target) host date"
)

// Signer signs outbound requests with an actor's RSA key. The key id is the
// actor URI plus the #main-key fragment, which tells the receiving server
// where to fetch the public half.
type Signer struct {
	keyID string
	key   *rsa.PrivateKey
	clock types.Clock
}

// NewSigner builds a signer for one actor key.
func NewSigner(keyID string, key *rsa.PrivateKey, clock types.Clock) (*Signer, error) {
	if strings.TrimSpace(keyID) == "" {
		return nil, fmt.Errorf("client: key id required")
	}
	if key == nil {
		return nil, fmt.Errorf("client: private key required")
	}
	if clock == nil {
		clock = types.SystemClock{}
	}
	return &Signer{keyID: keyID, key: key, clock: clock}, nil
}

// KeyID returns the key identifier advertised in the Signature header.
func (s *Signer) KeyID() string { return s.keyID }

// Sign sets the Date header and attaches the Signature header covering
// (request-target), host, and date.
func (s *Signer) Sign(req *http.Request) error {
	date := s.clock.Now().UTC().Format(http.TimeFormat)
	req.Header.Set("Date", date)

	host := req.Host
	if host == "" {
		host = req.URL.Host
	}
	signingString := buildSigningString(strings.ToLower(req.Method), req.URL.RequestURI(), host, date)

	digest := sha256.Sum256([]byte(signingString))
	signature, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return fmt.Errorf("client: sign request: %w", err)
	}

	req.Header.Set("Signature", fmt.Sprintf(
		`keyId="%s",algorithm="%s",headers="%s",signature="%s"`,
		s.keyID,
		signatureAlgorithm,
		signedHeaderList,
		base64.StdEncoding.EncodeToString(signature),
	))
	return nil
}

func buildSigningString(method, requestURI, host, date string) string {
	lines := []string{
		"(request-target): " + method + " " + requestURI,
		"host: " + host,
		"date: " + date,
	}
	return strings.Join(lines, "\n")
}

// Verify checks an inbound request's Signature header against the supplied
// public key. Only the (request-target) host date profile is accepted.
func Verify(req *http.Request, pub *rsa.PublicKey) error {
	if pub == nil {
		return fmt.Errorf("client: public key required")
	}
	params, err := parseSignatureHeader(req.Header.Get("Signature"))
	if err != nil {
		return err
	}
	if params["algorithm"] != "" && params["algorithm"] != signatureAlgorithm {
		return fmt.Errorf("client: unsupported signature algorithm %q", params["algorithm"])
	}
	headers := params["headers"]
	if headers == "" {
		headers = "date"
	}
	if headers != signedHeaderList {
		return fmt.Errorf("client: unsupported signed header list %q", headers)
	}

	raw, err := base64.StdEncoding.DecodeString(params["signature"])
	if err != nil {
		return fmt.Errorf("client: decode signature: %w", err)
	}

	host := req.Host
	if host == "" {
		host = req.URL.Host
	}
	signingString := buildSigningString(strings.ToLower(req.Method), req.URL.RequestURI(), host, req.Header.Get("Date"))
	digest := sha256.Sum256([]byte(signingString))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], raw); err != nil {
		return fmt.Errorf("client: signature mismatch: %w", err)
	}
	return nil
}

func parseSignatureHeader(header string) (map[string]string, error) {
	if strings.TrimSpace(header) == "" {
		return nil, fmt.Errorf("client: signature header missing")
	}
	params := make(map[string]string)
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return nil, fmt.Errorf("client: malformed signature header")
		}
		params[key] = strings.Trim(value, `"`)
	}
	if params["keyId"] == "" || params["signature"] == "" {
		return nil, fmt.Errorf("client: signature header missing keyId or signature")
	}
	return params, nil
}
