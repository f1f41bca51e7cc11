// Package gedi provides credentialed access to GEDI granules on the LP DAAC
// data pool: lazy enumeration of granule URLs by date range, in-memory
// retrieval of granule content, and parsing of the footprint metadata that
// drives granule-level filtering. Raw granule bytes never touch disk; most
// of each file is discarded after filtering, so content is fetched straight
// into memory.
package gedi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	internalhttp "github.com/example/go-gedi/gedi/internal/http"
)

const (
	defaultBaseURL      = "https://e4ftl01.cr.usgs.gov/GEDI/"
	defaultUserAgent    = "go-gedi/0.1"
	defaultFetchTimeout = 5 * time.Minute
	maxRedirects        = 10

	// credentialProbePath is a small, stable metadata document used to
	// verify that Earthdata credentials actually work before a long batch.
	credentialProbePath = "GEDI02_A.002/2020.05.25/GEDI02_A_2020146010156_O08211_03_T02527_02_003_01_V002.h5.xml"
)

// ErrMissingCredentials is returned when a client is constructed without a
// complete Earthdata username/password pair.
var ErrMissingCredentials = errors.New("gedi: missing earthdata credentials")

// authDomains lists the hosts that receive HTTP basic credentials. The data
// pool redirects through urs.earthdata.nasa.gov for authentication.
var authDomains = []string{"earthdata.nasa.gov", "usgs.gov"}

// ProductLevel selects a GEDI product collection.
type ProductLevel string

const (
	LevelL1B ProductLevel = "GEDI01_B"
	LevelL2A ProductLevel = "GEDI02_A"
	LevelL2B ProductLevel = "GEDI02_B"
)

// baseFileRE matches the shared tail of GEDI granule filenames.
const baseFileRE = `_(\d{4})(\d{3})(\d{2})(\d{2})(\d{2})_O(\d+)_(\d+)_T(\d+)_(\d{2})_(\d{3})_(\d{2})_V002\.h5$`

var levelFileRE = map[ProductLevel]*regexp.Regexp{
	LevelL1B: regexp.MustCompile("^GEDI01_B" + baseFileRE),
	LevelL2A: regexp.MustCompile("^GEDI02_A" + baseFileRE),
	LevelL2B: regexp.MustCompile("^GEDI02_B" + baseFileRE),
}

// Valid reports whether the level is one of the supported collections.
func (l ProductLevel) Valid() bool {
	_, ok := levelFileRE[l]
	return ok
}

// collection returns the versioned collection directory on the data pool.
func (l ProductLevel) collection() string { return string(l) + ".002" }

// Credentials is the explicit Earthdata login record. The library never
// reads environment variables; callers decide where credentials come from.
type Credentials struct {
	Username string
	Password string
}

// Client mediates authenticated access to the data pool.
type Client struct {
	baseURL      *url.URL
	httpClient   *http.Client
	creds        Credentials
	userAgent    string
	retry        internalhttp.RetryPolicy
	fetchTimeout time.Duration
	s3           *s3Config
}

// NewClient validates the credentials and builds a client. Missing
// credentials are a configuration error surfaced here, before any
// enumeration begins, never as a per-granule failure.
func NewClient(creds Credentials, opts ...Option) (*Client, error) {
	if creds.Username == "" || creds.Password == "" {
		return nil, ErrMissingCredentials
	}
	base, err := url.Parse(defaultBaseURL)
	if err != nil {
		return nil, fmt.Errorf("gedi: parse base url: %w", err)
	}
	c := &Client{
		baseURL:      base,
		creds:        creds,
		userAgent:    defaultUserAgent,
		retry:        internalhttp.DefaultRetryPolicy(),
		fetchTimeout: defaultFetchTimeout,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("gedi: create cookie jar: %w", err)
		}
		c.httpClient.Jar = jar
	}
	c.httpClient = c.redirectAwareClient(c.httpClient)
	return c, nil
}

// redirectAwareClient clones the HTTP client with a redirect policy that
// re-applies basic credentials on Earthdata hosts and strips them elsewhere.
// The data pool bounces every authenticated request through URS, and the
// default client drops Authorization headers across hosts.
func (c *Client) redirectAwareClient(base *http.Client) *http.Client {
	clone := *base
	clone.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		if len(via) > 0 {
			req.Header = via[len(via)-1].Header.Clone()
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}
		if hostRequiresAuth(req.URL.Hostname()) {
			req.SetBasicAuth(c.creds.Username, c.creds.Password)
		} else {
			req.Header.Del("Authorization")
		}
		return nil
	}
	return &clone
}

func hostRequiresAuth(host string) bool {
	lower := strings.ToLower(host)
	for _, domain := range authDomains {
		if lower == domain || strings.HasSuffix(lower, "."+domain) {
			return true
		}
	}
	return false
}

// FetchInMemory retrieves a remote file's bytes directly into memory. URLs
// with an s3 scheme are fetched through the client's S3 configuration; see
// WithS3CredentialsURL. Each fetch is bounded by the client's fetch timeout
// so an unresponsive server cannot stall a worker pool indefinitely.
func (c *Client) FetchInMemory(ctx context.Context, rawURL string) ([]byte, error) {
	if c == nil {
		return nil, errors.New("gedi: nil client")
	}
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	if strings.HasPrefix(rawURL, "s3://") {
		if c.s3 == nil {
			return nil, fmt.Errorf("gedi: s3 url %s requires WithS3CredentialsURL", rawURL)
		}
		bucket, key, err := parseS3URL(rawURL)
		if err != nil {
			return nil, err
		}
		return c.s3.fetch(ctx, c, bucket, key)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("gedi: create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if hostRequiresAuth(req.URL.Hostname()) {
		req.SetBasicAuth(c.creds.Username, c.creds.Password)
	}

	resp, err := internalhttp.Do(ctx, c.httpClient, req, c.retry)
	if err != nil {
		return nil, fmt.Errorf("gedi: fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gedi: fetch %s: %w", rawURL, internalhttp.HTTPError(resp))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gedi: read %s: %w", rawURL, err)
	}
	return data, nil
}

// CheckCredentials fetches a known metadata document, failing fast when the
// Earthdata login is rejected.
func (c *Client) CheckCredentials(ctx context.Context) error {
	probe := c.baseURL.JoinPath(strings.Split(credentialProbePath, "/")...)
	if _, err := c.FetchInMemory(ctx, probe.String()); err != nil {
		return fmt.Errorf("gedi: credential check failed: %w", err)
	}
	return nil
}
