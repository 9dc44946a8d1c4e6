// Package gasprice fetches the current network gas price for the gas
// monitor automation task.
package gasprice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/tidwall/gjson"

	"github.com/CryptoStream-Network/stream_layer/pkg/logger"
)

// Fetcher polls an HTTP endpoint and extracts the price from its JSON
// response. Dotted paths use the gjson fast path; paths starting with "$"
// are evaluated as JSONPath expressions.
type Fetcher struct {
	client   *http.Client
	endpoint *url.URL
	path     string
	log      *logger.Logger
}

// NewFetcher constructs a fetcher. The extraction path defaults to "price".
func NewFetcher(client *http.Client, endpoint, path string, log *logger.Logger) (*Fetcher, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("gas price endpoint required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse gas price endpoint: %w", err)
	}
	path = strings.TrimSpace(path)
	if path == "" {
		path = "price"
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("gasprice")
	}
	return &Fetcher{client: client, endpoint: parsed, path: path, log: log}, nil
}

// Fetch retrieves and extracts the current gas price.
func (f *Fetcher) Fetch(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("build gas price request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("gas price request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("gas price status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("read gas price response: %w", err)
	}
	return f.extract(body)
}

func (f *Fetcher) extract(body []byte) (float64, error) {
	if strings.HasPrefix(f.path, "$") {
		var doc interface{}
		if err := json.Unmarshal(body, &doc); err != nil {
			return 0, fmt.Errorf("decode gas price response: %w", err)
		}
		value, err := jsonpath.Get(f.path, doc)
		if err != nil {
			return 0, fmt.Errorf("evaluate %q: %w", f.path, err)
		}
		return toFloat(value)
	}

	result := gjson.GetBytes(body, f.path)
	if !result.Exists() {
		return 0, fmt.Errorf("path %q not found in gas price response", f.path)
	}
	return toFloat(result.Value())
}

func toFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case string:
		price, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("parse gas price %q: %w", v, err)
		}
		return price, nil
	default:
		return 0, fmt.Errorf("gas price has unsupported type %T", value)
	}
}
