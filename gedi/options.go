package gedi

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	internalhttp "github.com/example/go-gedi/gedi/internal/http"
)

// Option configures a Client.
type Option func(*Client) error

// WithBaseURL overrides the data pool root. The URL must be absolute and is
// normalized to end with a slash so collection paths join cleanly.
func WithBaseURL(rawURL string) Option {
	return func(c *Client) error {
		if !strings.HasSuffix(rawURL, "/") {
			rawURL += "/"
		}
		u, err := url.Parse(rawURL)
		if err != nil {
			return fmt.Errorf("gedi: invalid base url %q: %w", rawURL, err)
		}
		if !u.IsAbs() {
			return fmt.Errorf("gedi: base url %q is not absolute", rawURL)
		}
		c.baseURL = u
		return nil
	}
}

// WithHTTPClient supplies a custom HTTP client. A cookie jar is installed if
// the client lacks one, and the redirect policy is replaced to carry
// Earthdata credentials across the URS handshake.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) error {
		if client == nil {
			return fmt.Errorf("gedi: nil http client")
		}
		c.httpClient = client
		return nil
	}
}

// WithUserAgent sets the User-Agent header on every request.
func WithUserAgent(agent string) Option {
	return func(c *Client) error {
		c.userAgent = agent
		return nil
	}
}

// WithRetryPolicy replaces the default retry policy for transient failures.
func WithRetryPolicy(policy internalhttp.RetryPolicy) Option {
	return func(c *Client) error {
		c.retry = policy
		return nil
	}
}

// WithFetchTimeout bounds each individual fetch, listing pages included.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("gedi: fetch timeout must be positive, got %v", d)
		}
		c.fetchTimeout = d
		return nil
	}
}

// WithS3CredentialsURL enables fetching s3:// URLs. The URL must serve
// temporary AWS credentials for Earthdata in-region access; credentials are
// cached and refreshed shortly before they expire.
func WithS3CredentialsURL(rawURL string) Option {
	return func(c *Client) error {
		if _, err := url.Parse(rawURL); err != nil {
			return fmt.Errorf("gedi: invalid s3 credentials url %q: %w", rawURL, err)
		}
		c.s3 = &s3Config{
			credentialsURL: rawURL,
			newDownloader:  defaultNewDownloader,
		}
		return nil
	}
}
