// Package quickbooks syncs purchases, deposits and bank balances from the
// QuickBooks Online accounting API into the record store.
package quickbooks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
	"github.com/rumor-ml/commons.systems/strdash/internal/retry"
)

// pageSize is the QuickBooks MAXRESULTS ceiling; tests shrink it
var pageSize = 1000

// Client runs QuickBooks queries for the connected company
type Client struct {
	baseURL string
	http    *http.Client
	tokens  *TokenStore
	limiter *rate.Limiter
	policy  retry.Policy
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets the client used for API calls
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRetryPolicy overrides retry.DefaultPolicy
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// NewClient creates a client limited to perMinute requests
func NewClient(baseURL string, tokens *TokenStore, perMinute int, opts ...Option) *Client {
	if perMinute < 1 {
		perMinute = 1
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		tokens:  tokens,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 10),
		policy:  retry.DefaultPolicy,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type queryResponse struct {
	QueryResponse map[string]json.RawMessage `json:"QueryResponse"`
}

// Query runs one query statement and decodes the entity list named entity
// into out. A response without the entity leaves out untouched.
func (c *Client) Query(ctx context.Context, statement, entity string, out interface{}) error {
	tok, err := c.tokens.Valid(ctx)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/v3/company/%s/query?query=%s",
		c.baseURL, url.PathEscape(tok.RealmID), url.QueryEscape(statement))

	var body []byte
	err = retry.Do(ctx, c.policy, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("quickbooks request: %w", err)
		}
		defer resp.Body.Close()

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read quickbooks response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return &domain.APIError{Service: "quickbooks", StatusCode: resp.StatusCode, Body: string(body)}
		}
		return nil
	})
	if err != nil {
		return err
	}

	var qr queryResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return fmt.Errorf("decode quickbooks response: %w", err)
	}
	raw, ok := qr.QueryResponse[entity]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s list: %w", entity, err)
	}
	return nil
}

// queryAll pages through "SELECT * FROM entity where" until a short page
func queryAll[T any](ctx context.Context, c *Client, entity, where string) ([]T, error) {
	var all []T
	for start := 1; ; start += pageSize {
		statement := fmt.Sprintf("SELECT * FROM %s%s STARTPOSITION %d MAXRESULTS %d", entity, where, start, pageSize)
		var page []T
		if err := c.Query(ctx, statement, entity, &page); err != nil {
			return nil, fmt.Errorf("query %s at %d: %w", entity, start, err)
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}
