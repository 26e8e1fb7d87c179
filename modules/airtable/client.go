// Package airtable is a small client for the Airtable table that stores donations.
package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://api.airtable.com/v0"

var (
	// ErrStoreUnavailable is returned when the store could not be reached or failed on its side (5xx, 429).
	ErrStoreUnavailable = errors.New("donation store unavailable")

	// ErrStoreRejected is returned for any other non-2xx response.
	ErrStoreRejected = errors.New("donation store rejected the request")
)

type Fields struct {
	Name    string          `json:"name"`
	Message string          `json:"message"`
	Amount  decimal.Decimal `json:"amount"` // major currency units
}

// MarshalJSON encodes the amount as a json number since the table column is numeric.
func (f Fields) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name    string      `json:"name"`
		Message string      `json:"message"`
		Amount  json.Number `json:"amount"`
	}{f.Name, f.Message, json.Number(f.Amount.String())})
}

// Record is a donation as stored by Airtable. ID and CreatedTime are assigned by the store.
type Record struct {
	ID          string    `json:"id"`
	CreatedTime time.Time `json:"createdTime"`
	Fields      Fields    `json:"fields"`
}

type Options struct {
	BaseURL string
	BaseID  string
	Table   string
	APIKey  string

	// RPS limits outgoing requests. Airtable allows 5 per second per base.
	RPS     int
	Timeout time.Duration
}

type Client struct {
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter
}

func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}

	hc := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.APIKey}))
	hc.Timeout = opts.Timeout

	limit := rate.Inf
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
	}

	return &Client{
		endpoint: fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(opts.BaseURL, "/"), url.PathEscape(opts.BaseID), url.PathEscape(opts.Table)),
		http:     hc,
		limiter:  rate.NewLimiter(limit, max(opts.RPS, 1)),
	}
}

type createRequest struct {
	Records []createRecord `json:"records"`
}

type createRecord struct {
	Fields Fields `json:"fields"`
}

type recordsResponse struct {
	Records []Record `json:"records"`
}

// Insert creates a single donation record. The returned record carries whatever the store
// sent back, which may be empty if the store responded without records.
func (c *Client) Insert(ctx context.Context, fields Fields) (*Record, error) {
	body, err := json.Marshal(&createRequest{Records: []createRecord{{Fields: fields}}})
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}

	resp := &recordsResponse{}
	if err := c.roundtrip(ctx, http.MethodPost, c.endpoint, body, resp); err != nil {
		return nil, fmt.Errorf("inserting donation: %w", err)
	}
	if len(resp.Records) == 0 {
		return &Record{}, nil
	}
	return &resp.Records[0], nil
}

// ListRecent returns at most limit records in the store's default order.
func (c *Client) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	resp := &recordsResponse{}
	uri := c.endpoint + "?maxRecords=" + strconv.Itoa(limit)
	if err := c.roundtrip(ctx, http.MethodGet, uri, nil, resp); err != nil {
		return nil, fmt.Errorf("listing donations: %w", err)
	}

	records := resp.Records
	if len(records) > limit {
		records = records[:limit]
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

func (c *Client) roundtrip(ctx context.Context, method, uri string, body []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %s", ErrStoreUnavailable, err)
	}

	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, uri, r)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		kind := ErrStoreRejected
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			kind = ErrStoreUnavailable
		}
		return fmt.Errorf("%w: status %d: %s", kind, resp.StatusCode, bytes.TrimSpace(msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
