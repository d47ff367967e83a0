package executor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// newHTTPClient builds a client with the engine's own keep-alive tuning,
// one per transfer attempt; no client is shared across transfers.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   15 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// newRequest builds the GET for a job's transfer attempt, attaching a
// Range header when resuming from a nonzero start offset.
func newRequest(ctx context.Context, jobURL, userAgent string, startByte int64, resume bool) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jobURL, nil)
	if err != nil {
		return nil, err
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	if resume {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", startByte))
	}
	return req, nil
}

// friendlyError translates a transport-level failure into an
// operator-readable string for log lines. It never substitutes for the
// typed error returned to callers.
func friendlyError(err error) string {
	if err == nil {
		return ""
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "connection timed out"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Sprintf("could not resolve host %q", dnsErr.Name)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Sprintf("network error: %s", opErr.Op)
	}

	return err.Error()
}

func friendlyHTTPError(statusCode int) string {
	switch {
	case statusCode == http.StatusForbidden:
		return "access denied (403); the link may have expired"
	case statusCode == http.StatusNotFound:
		return "remote file not found (404)"
	case statusCode >= 500:
		return fmt.Sprintf("server error (%d)", statusCode)
	case statusCode >= 400:
		return fmt.Sprintf("client error (%d)", statusCode)
	default:
		return fmt.Sprintf("unexpected status (%d)", statusCode)
	}
}
