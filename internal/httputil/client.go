package httputil

import (
	"net/http"
	"time"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "reservoirviz/1.0"
)

// userAgent sets a User-Agent on requests that have none.
type userAgent struct {
	agent string
	next  http.RoundTripper
}

func (t userAgent) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.next.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.agent)
	return t.next.RoundTrip(req)
}

// NewClient returns an HTTP client with the standard timeout that
// identifies itself with DefaultUserAgent. Some file servers reject
// requests without one.
func NewClient() *http.Client {
	return &http.Client{
		Timeout:   DefaultTimeout,
		Transport: userAgent{agent: DefaultUserAgent, next: http.DefaultTransport},
	}
}
