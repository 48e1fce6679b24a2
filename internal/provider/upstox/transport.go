package upstox

import (
	"net/http"
	"time"
)

// baseTransportConfig returns the shared HTTP transport used by Upstox
// clients. Connections are kept alive: every worker talks to the same host.
func baseTransportConfig(maxConns int) *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: 2 * time.Minute,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          maxConns,
		MaxIdleConnsPerHost:   maxConns,
		MaxConnsPerHost:       maxConns,
	}
}

// newHTTPClient creates an HTTP client for API and instrument downloads.
func newHTTPClient(maxConns int) *http.Client {
	if maxConns < 1 {
		maxConns = 1
	}
	return &http.Client{
		Transport: baseTransportConfig(maxConns),
		Timeout:   10 * time.Minute,
	}
}
