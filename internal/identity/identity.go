// Package identity resolves the public address a caller is known by, which
// is the partition key its texts are stored under.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultLookupURL answers a plain GET with {"ip": "..."}.
const DefaultLookupURL = "https://api.ipify.org?format=json"

// HTTPDoer is the interface for making HTTP requests.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Resolver queries an external IP-lookup service. Each call re-queries the
// service; there is no caching and no retry.
type Resolver struct {
	URL    string
	Client HTTPDoer
}

func NewResolver(lookupURL string, client HTTPDoer) *Resolver {
	if lookupURL == "" {
		lookupURL = DefaultLookupURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Resolver{URL: lookupURL, Client: client}
}

// Resolve returns the caller's public IP address as reported by the lookup
// service.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return "", fmt.Errorf("build ip lookup request: %w", err)
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ip lookup request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ip lookup returned status %d", resp.StatusCode)
	}

	var body struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4*1024)).Decode(&body); err != nil {
		return "", fmt.Errorf("decode ip lookup response: %w", err)
	}
	ip := strings.TrimSpace(body.IP)
	if ip == "" {
		return "", errors.New("ip lookup returned an empty address")
	}
	return ip, nil
}
