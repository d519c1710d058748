// Package avatar resolves a default profile picture for an email address
// through Gravatar.
package avatar

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const DefaultBaseURL = "https://www.gravatar.com/avatar"

var ErrNotFound = errors.New("no avatar for email")

type Gravatar struct {
	baseURL string
	verify  bool
	client  *http.Client
}

type Option func(*Gravatar)

func WithBaseURL(baseURL string) Option {
	return func(g *Gravatar) {
		if baseURL != "" {
			g.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithVerify makes Lookup ask Gravatar whether an image exists instead of
// returning the default-image URL unconditionally.
func WithVerify(verify bool) Option {
	return func(g *Gravatar) {
		g.verify = verify
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(g *Gravatar) {
		if client != nil {
			g.client = client
		}
	}
}

func NewGravatar(timeout time.Duration, opts ...Option) *Gravatar {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	g := &Gravatar{
		baseURL: DefaultBaseURL,
		client:  &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// URL returns the image address for email without touching the network.
func (g *Gravatar) URL(email string) string {
	return g.baseURL + "/" + Hash(email)
}

func (g *Gravatar) Lookup(ctx context.Context, email string) (string, error) {
	url := g.URL(email)
	if !g.verify {
		return url, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url+"?d=404", nil)
	if err != nil {
		return "", err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gravatar lookup: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", ErrNotFound
	case resp.StatusCode >= 300:
		return "", fmt.Errorf("gravatar lookup: unexpected status %d", resp.StatusCode)
	}

	return url, nil
}

// Hash is the Gravatar key for email: hex SHA-256 of the trimmed, lower-cased
// address.
func Hash(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}
