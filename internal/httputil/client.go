package httputil

import (
	"net/http"
	"time"
)

const DefaultTimeout = 30 * time.Second

// UserAgent identifies dataset downloads.
const UserAgent = "pvclearsky/1.0"

// NewClient returns an HTTP client with standard timeout configuration.
func NewClient() *http.Client {
	return &http.Client{
		Timeout: DefaultTimeout,
	}
}

// NewRequest builds a GET request carrying the standard headers.
func NewRequest(url string) (*http.Request, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)
	return req, nil
}
