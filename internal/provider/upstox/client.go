package upstox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"upstox-data/internal/model"
	"upstox-data/internal/provider"
)

const (
	DefaultBaseURL        = "https://api.upstox.com/v3/historical-candle"
	DefaultInstrumentsURL = "https://assets.upstox.com/market-quote/instruments/exchange/complete.json.gz"
	DefaultUserAgent      = "upstox-data/1.0"

	// error bodies are quoted in messages up to this length
	maxBodyQuote = 200
)

// Client calls the Upstox v3 historical candle endpoint. It makes exactly
// one request per call and classifies failures as transient or fatal.
type Client struct {
	BaseURL   string
	Token     string
	UserAgent string

	client *http.Client
}

// NewClient returns a client sized for maxConns concurrent requests. An
// empty token sends no Authorization header.
func NewClient(token string, maxConns int) *Client {
	return &Client{
		BaseURL:   DefaultBaseURL,
		Token:     token,
		UserAgent: DefaultUserAgent,
		client:    newHTTPClient(maxConns),
	}
}

var _ provider.CandleFetcher = (*Client)(nil)

// FetchCandles requests GET {base}/{key}/{unit}/{interval}/{to}/{from}.
func (c *Client) FetchCandles(ctx context.Context, instrumentKey string, tf model.Timeframe, from, to model.Date) ([]model.RawCandleRow, error) {
	req, err := c.buildCandleRequest(ctx, instrumentKey, tf, from, to)
	if err != nil {
		return nil, provider.Fatal(0, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, provider.Transient(0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, provider.Transient(resp.StatusCode, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		cause := fmt.Errorf("%s: %s", req.URL.Path, quoteBody(body))
		if retryableStatus(resp.StatusCode) {
			return nil, provider.Transient(resp.StatusCode, cause)
		}
		return nil, provider.Fatal(resp.StatusCode, cause)
	}

	var result candleResponse
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&result); err != nil {
		return nil, provider.Transient(resp.StatusCode, fmt.Errorf("parse JSON: %w", err))
	}
	if result.Status != "success" {
		return nil, provider.Fatal(resp.StatusCode, errors.New(result.errorText()))
	}
	return result.Data.Candles, nil
}

func (c *Client) buildCandleRequest(ctx context.Context, instrumentKey string, tf model.Timeframe, from, to model.Date) (*http.Request, error) {
	segments := []string{instrumentKey, tf.Unit, tf.Interval, to.String(), from.String()}
	var b strings.Builder
	b.WriteString(strings.TrimRight(c.BaseURL, "/"))
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.UserAgent)
	if c.Token != "" {
		req.Header.Set("Authorization", authorization(c.Token))
	}
	return req, nil
}

// authorization accepts either a bare access token or a full header value.
func authorization(token string) string {
	if strings.Contains(token, " ") {
		return token
	}
	return "Bearer " + token
}

func retryableStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}

func quoteBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxBodyQuote {
		s = s[:maxBodyQuote] + "..."
	}
	return s
}
