package upstox

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"upstox-data/internal/model"
)

// Filter selects directory entries. Empty Segments means every segment.
type Filter struct {
	InstrumentTypes []string
	Segments        []string
}

// DefaultFilter keeps cash equities only.
var DefaultFilter = Filter{InstrumentTypes: []string{"EQ"}}

func (f Filter) match(e instrumentEntry) bool {
	if len(f.InstrumentTypes) > 0 && !containsFold(f.InstrumentTypes, e.InstrumentType) {
		return false
	}
	if len(f.Segments) > 0 && !containsFold(f.Segments, e.Segment) {
		return false
	}
	return true
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// DownloadInstruments fetches the instrument directory (gzip JSON array).
func (c *Client) DownloadInstruments(ctx context.Context, url string, f Filter) ([]model.Instrument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.UserAgent)

	slog.Info("downloading instruments", "url", url)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download instruments: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyQuote))
		return nil, fmt.Errorf("download instruments: status %d: %s", resp.StatusCode, quoteBody(body))
	}
	return decodeInstruments(resp.Body, f)
}

// LoadInstrumentsFile reads a local directory dump, plain or gzipped JSON.
func LoadInstrumentsFile(path string, f Filter) ([]model.Instrument, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file %s: %w", path, err)
	}
	defer file.Close()
	out, err := decodeInstruments(file, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

// decodeInstruments sniffs the gzip magic so the extension does not matter.
func decodeInstruments(r io.Reader, f Filter) ([]model.Instrument, error) {
	br := bufio.NewReader(r)
	var src io.Reader = br
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("gunzip: %w", err)
		}
		defer zr.Close()
		src = zr
	}

	var entries []instrumentEntry
	if err := json.NewDecoder(src).Decode(&entries); err != nil {
		return nil, fmt.Errorf("parse instruments: %w", err)
	}

	seen := make(map[string]bool, len(entries))
	var out []model.Instrument
	for _, e := range entries {
		e.InstrumentKey = strings.TrimSpace(e.InstrumentKey)
		if e.InstrumentKey == "" || seen[e.InstrumentKey] || !f.match(e) {
			continue
		}
		seen[e.InstrumentKey] = true
		out = append(out, e.toInstrument())
	}
	slog.Info("parsed instruments", "total", len(entries), "selected", len(out))
	return out, nil
}
