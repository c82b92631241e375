// Package gravatar resolves avatar URLs from email addresses using the
// Gravatar URL scheme.
package gravatar

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	baseURL        = "https://www.gravatar.com/avatar/"
	requestTimeout = 5 * time.Second
)

// Client looks up Gravatar images. The zero value is not usable; use
// NewClient.
type Client struct {
	httpClient *http.Client
}

func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// URL returns the avatar URL for the given email, or an error when no
// Gravatar image exists or the service is unreachable. Callers treat a
// failure as "no avatar", not as a fatal condition.
func (c *Client) URL(ctx context.Context, email string) (string, error) {
	hash := emailHash(email)
	probe := baseURL + hash + "?d=404"

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, probe, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("no gravatar image for %s", email)
	}
	return baseURL + hash, nil
}

func emailHash(email string) string {
	normalized := strings.ToLower(strings.TrimSpace(email))
	sum := md5.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
