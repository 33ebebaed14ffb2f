package types

import (
	"fmt"
	"net/url"
	"strings"
)

// Namespace builds and recognizes the canonical URIs this server owns.
// Identifiers under the base URL are resolved locally and never fetched.
type Namespace struct {
	base *url.URL
}

// NewNamespace parses the server's public base URL, e.g. "https://a.example".
func NewNamespace(baseURL string) (*Namespace, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	return &Namespace{base: base}, nil
}

// Contains reports whether the identifier lives inside the local namespace.
func (n *Namespace) Contains(iri string) bool {
	u, err := url.Parse(iri)
	if err != nil {
		return false
	}
	return u.Scheme == n.base.Scheme && u.Host == n.base.Host
}

// UserURL returns the canonical actor profile URL for a local username.
func (n *Namespace) UserURL(username string) string {
	return n.base.String() + "/user/" + url.PathEscape(username)
}

// InboxURL returns the inbox endpoint for a local username.
func (n *Namespace) InboxURL(username string) string {
	return n.UserURL(username) + "/inbox"
}

// OutboxURL returns the outbox endpoint for a local username.
func (n *Namespace) OutboxURL(username string) string {
	return n.UserURL(username) + "/outbox"
}

// KeyID returns the signature key identifier advertised for a local username.
func (n *Namespace) KeyID(username string) string {
	return n.UserURL(username) + "#main-key"
}

// ObjectURL returns the canonical URL for a locally authored activity or
// object.
func (n *Namespace) ObjectURL(id string) string {
	return n.base.String() + "/objects/" + url.PathEscape(id)
}

// Username extracts the local username from an identifier inside the
// namespace. The second return is false when the identifier does not match
// the /user/<name> layout.
func (n *Namespace) Username(iri string) (string, bool) {
	if !n.Contains(iri) {
		return "", false
	}
	u, err := url.Parse(iri)
	if err != nil {
		return "", false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] != "user" || parts[1] == "" {
		return "", false
	}
	name, err := url.PathUnescape(parts[1])
	if err != nil {
		return "", false
	}
	return name, true
}

// Base returns the canonical base URL string.
func (n *Namespace) Base() string { return n.base.String() }
