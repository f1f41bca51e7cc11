package gedi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	internalhttp "github.com/example/go-gedi/gedi/internal/http"
)

// defaultS3Region is where NASA hosts Earthdata cloud holdings. Direct S3
// access only works from compute running in the same region.
const defaultS3Region = "us-west-2"

// expiryMargin is how early cached temporary credentials are refreshed.
const expiryMargin = time.Minute

// s3Downloader abstracts the AWS transfer manager so tests can substitute
// an in-memory implementation.
type s3Downloader interface {
	Download(ctx context.Context, w io.WriterAt, input *s3.GetObjectInput, optFns ...func(*manager.Downloader)) (int64, error)
}

func defaultNewDownloader(cfg aws.Config) s3Downloader {
	return manager.NewDownloader(s3.NewFromConfig(cfg))
}

// s3Config holds cached temporary credentials and the downloader factory.
// Temporary credentials from the Earthdata endpoint last about an hour;
// they are reused until shortly before expiry so a large batch does not
// hammer the credential service.
type s3Config struct {
	credentialsURL string
	newDownloader  func(aws.Config) s3Downloader

	mu          sync.Mutex
	creds       aws.Credentials
	downloaders map[string]s3Downloader
}

// temporaryCredentials is the JSON document served by the Earthdata S3
// credentials endpoint.
type temporaryCredentials struct {
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	SessionToken    string `json:"sessionToken"`
	Expiration      string `json:"expiration"`
}

// expirationLayouts covers the formats the endpoint has been observed to use.
var expirationLayouts = []string{
	"2006-01-02 15:04:05-07:00",
	time.RFC3339,
}

func (s *s3Config) fetch(ctx context.Context, c *Client, bucket, key string) ([]byte, error) {
	dl, err := s.downloader(ctx, c)
	if err != nil {
		return nil, err
	}
	buf := manager.NewWriteAtBuffer(nil)
	_, err = dl.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("gedi: download s3://%s/%s: %w", bucket, key, err)
	}
	return buf.Bytes(), nil
}

// downloader returns a transfer manager backed by fresh temporary
// credentials, reusing a cached instance while the credentials remain valid.
func (s *s3Config) downloader(ctx context.Context, c *Client) (s3Downloader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.credsValid() {
		creds, err := s.fetchCredentials(ctx, c)
		if err != nil {
			return nil, err
		}
		s.creds = creds
	}
	if s.downloaders == nil {
		s.downloaders = make(map[string]s3Downloader)
	}
	if dl, ok := s.downloaders[s.creds.AccessKeyID]; ok {
		return dl, nil
	}
	cfg := aws.Config{
		Region:      defaultS3Region,
		Credentials: credentials.StaticCredentialsProvider{Value: s.creds},
	}
	dl := s.newDownloader(cfg)
	s.downloaders[s.creds.AccessKeyID] = dl
	return dl, nil
}

func (s *s3Config) credsValid() bool {
	if s.creds.AccessKeyID == "" {
		return false
	}
	if !s.creds.CanExpire {
		return true
	}
	return time.Until(s.creds.Expires) > expiryMargin
}

// fetchCredentials requests temporary AWS credentials from the Earthdata
// endpoint, authenticating with the client's basic credentials. Called with
// s.mu held.
func (s *s3Config) fetchCredentials(ctx context.Context, c *Client) (aws.Credentials, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.credentialsURL, nil)
	if err != nil {
		return aws.Credentials{}, fmt.Errorf("gedi: create s3 credentials request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.SetBasicAuth(c.creds.Username, c.creds.Password)

	resp, err := internalhttp.Do(ctx, c.httpClient, req, c.retry)
	if err != nil {
		return aws.Credentials{}, fmt.Errorf("gedi: fetch s3 credentials: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return aws.Credentials{}, fmt.Errorf("gedi: fetch s3 credentials: %w", internalhttp.HTTPError(resp))
	}

	var tc temporaryCredentials
	if err := json.NewDecoder(resp.Body).Decode(&tc); err != nil {
		return aws.Credentials{}, fmt.Errorf("gedi: decode s3 credentials: %w", err)
	}
	if tc.AccessKeyID == "" || tc.SecretAccessKey == "" {
		return aws.Credentials{}, fmt.Errorf("gedi: s3 credentials response missing key material")
	}

	creds := aws.Credentials{
		AccessKeyID:     tc.AccessKeyID,
		SecretAccessKey: tc.SecretAccessKey,
		SessionToken:    tc.SessionToken,
		Source:          "EarthdataS3Credentials",
	}
	if tc.Expiration != "" {
		expires, err := parseExpiration(tc.Expiration)
		if err != nil {
			return aws.Credentials{}, err
		}
		creds.CanExpire = true
		creds.Expires = expires
	}
	return creds, nil
}

func parseExpiration(value string) (time.Time, error) {
	for _, layout := range expirationLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("gedi: unrecognized s3 credential expiration %q", value)
}

// parseS3URL splits an s3://bucket/key URL into bucket and key.
func parseS3URL(rawURL string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(rawURL, "s3://")
	bucket, key, found := strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", fmt.Errorf("gedi: malformed s3 url %q", rawURL)
	}
	return bucket, key, nil
}
