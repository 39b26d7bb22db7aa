package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Media describes a remote video after its audio has been fetched.
type Media struct {
	URL             string    `json:"url"`
	Title           string    `json:"title"`
	Uploader        string    `json:"uploader,omitempty"`
	DurationSeconds float64   `json:"duration_seconds"`
	FileSizeBytes   int64     `json:"file_size_bytes"`
	FetchedAt       time.Time `json:"fetched_at"`
}

// ParseSourceURL validates that input is an absolute http(s) URL.
func ParseSourceURL(input string) (*url.URL, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyURL
	}

	u, err := url.Parse(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedURL, input)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedURL, input)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host in %s", ErrUnsupportedURL, input)
	}
	return u, nil
}

// MediaKey returns a stable cache key for a source URL.
func MediaKey(rawURL string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(rawURL)))
	return hex.EncodeToString(sum[:])[:16]
}
