// Package hostaway reads reservations and nightly calendars from the
// Hostaway property-management API.
package hostaway

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

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
	"github.com/rumor-ml/commons.systems/strdash/internal/retry"
)

// pageLimit is the reservations page size; tests shrink it
var pageLimit = 100

const dateLayout = "2006-01-02"

// Client calls the Hostaway API with a cached client-credentials token
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	policy  retry.Policy
}

// Option configures a Client
type Option func(*clientOptions)

type clientOptions struct {
	base   *http.Client
	policy retry.Policy
}

// WithHTTPClient sets the transport used for token and API calls
func WithHTTPClient(h *http.Client) Option {
	return func(o *clientOptions) { o.base = h }
}

// WithRetryPolicy overrides retry.DefaultPolicy
func WithRetryPolicy(p retry.Policy) Option {
	return func(o *clientOptions) { o.policy = p }
}

// NewClient creates a client for the given account. Hostaway accounts use
// the account id as the OAuth client id and the API key as the secret.
func NewClient(ctx context.Context, baseURL, accountID, apiKey string, opts ...Option) *Client {
	o := clientOptions{base: &http.Client{Timeout: 30 * time.Second}, policy: retry.DefaultPolicy}
	for _, opt := range opts {
		opt(&o)
	}
	baseURL = strings.TrimRight(baseURL, "/")
	creds := &clientcredentials.Config{
		ClientID:     accountID,
		ClientSecret: apiKey,
		TokenURL:     baseURL + "/v1/accessTokens",
		Scopes:       []string{"general"},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	// The token source outlives ctx's deadline; only the HTTP client is taken from it
	tokenCtx := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, o.base)
	return &Client{
		baseURL: baseURL,
		http:    creds.Client(tokenCtx),
		limiter: rate.NewLimiter(rate.Every(time.Second/5), 5),
		policy:  o.policy,
	}
}

type envelope struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result"`
}

// get fetches path with query params and decodes the result field into out
func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var body []byte
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Cache-control", "no-cache")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("hostaway request: %w", err)
		}
		defer resp.Body.Close()

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read hostaway response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return &domain.APIError{Service: "hostaway", StatusCode: resp.StatusCode, Body: string(body)}
		}
		return nil
	})
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode hostaway response: %w", err)
	}
	if env.Status != "success" {
		return &domain.APIError{Service: "hostaway", StatusCode: http.StatusOK, Body: string(body)}
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("decode hostaway result: %w", err)
	}
	return nil
}

// Reservations returns every reservation on the account
func (c *Client) Reservations(ctx context.Context) ([]Reservation, error) {
	var all []Reservation
	for offset := 0; ; offset += pageLimit {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(pageLimit))
		params.Set("offset", strconv.Itoa(offset))

		var page []Reservation
		if err := c.get(ctx, "/v1/reservations", params, &page); err != nil {
			return nil, fmt.Errorf("list reservations at offset %d: %w", offset, err)
		}
		all = append(all, page...)
		if len(page) < pageLimit {
			return all, nil
		}
	}
}

// Calendar returns the per-day price and availability of a listing for
// the inclusive date range [start, end].
func (c *Client) Calendar(ctx context.Context, listingID int64, start, end time.Time) ([]CalendarDay, error) {
	params := url.Values{}
	params.Set("startDate", start.Format(dateLayout))
	params.Set("endDate", end.Format(dateLayout))

	var days []CalendarDay
	path := fmt.Sprintf("/v1/listings/%d/calendar", listingID)
	if err := c.get(ctx, path, params, &days); err != nil {
		return nil, fmt.Errorf("calendar for listing %d: %w", listingID, err)
	}
	return days, nil
}
