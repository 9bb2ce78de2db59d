package client

import (
	"context"
	"net/http"
	"time"
)

// SpoofClient wraps http.Client and stamps every outbound request with the
// spoofed desktop identity the upstream sources expect: a fixed desktop
// user agent plus per-request Referer/Origin headers. Upstream sources gate
// access on those headers, so this client is the only place that knows the
// correct identity for a given origin.
type SpoofClient struct {
	Client    *http.Client
	userAgent string
}

// NewSpoofClient builds a SpoofClient with the given overall request timeout.
// A zero timeout disables the client-side deadline, which is what segment
// streaming wants; playlist and key fetches pass the configured proxy timeout.
func NewSpoofClient(userAgent string, timeout time.Duration) *SpoofClient {
	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
		},
	}

	return &SpoofClient{
		Client:    client,
		userAgent: userAgent,
	}
}

// Do sends the request with only the user agent set; no origin spoofing.
func (sc *SpoofClient) Do(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", sc.userAgent)
	req.Header.Set("Accept", "*/*")
	return sc.Client.Do(req)
}

// Get issues a plain GET for the given URL.
func (sc *SpoofClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return sc.Do(req)
}

// GetWithOrigin issues a GET for the given URL pretending the request was
// made from a page on the given origin. The Referer carries a trailing slash
// since that is what a browser navigating from the origin's root would send.
func (sc *SpoofClient) GetWithOrigin(ctx context.Context, url, origin string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Referer", origin+"/")
	req.Header.Set("Origin", origin)
	return sc.Do(req)
}
