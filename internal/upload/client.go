package upload

import (
	"net"
	"net/http"
	"time"
)

// ClientConfig holds the HTTP client timeouts used for uploads.
type ClientConfig struct {
	// Timeout bounds the entire request, including reading the response.
	Timeout time.Duration

	DialTimeout     time.Duration
	KeepAlive       time.Duration
	TLSHandshake    time.Duration
	ResponseHeader  time.Duration
	IdleConnTimeout time.Duration
}

// DefaultClientConfig returns timeouts suitable for a single results upload.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:         30 * time.Second,
		DialTimeout:     5 * time.Second,
		KeepAlive:       30 * time.Second,
		TLSHandshake:    5 * time.Second,
		ResponseHeader:  10 * time.Second,
		IdleConnTimeout: 90 * time.Second,
	}
}

// NewClient builds an HTTP client with explicit transport timeouts.
func NewClient(cfg ClientConfig) *http.Client {
	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: cfg.KeepAlive,
	}

	tr := &http.Transport{
		Proxy:       http.ProxyFromEnvironment,
		DialContext: dialer.DialContext,

		ForceAttemptHTTP2: true,
		MaxIdleConns:      4,
		IdleConnTimeout:   cfg.IdleConnTimeout,

		TLSHandshakeTimeout:   cfg.TLSHandshake,
		ResponseHeaderTimeout: cfg.ResponseHeader,
	}

	return &http.Client{
		Transport: tr,
		Timeout:   cfg.Timeout,
	}
}
