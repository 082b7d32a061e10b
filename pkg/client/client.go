package client

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
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// CallerHeader identifies the caller when the service runs without token
// authentication.
const CallerHeader = "X-Debenture-Caller"

// ErrNoCredentials is returned by Login when the client has no address/secret.
var ErrNoCredentials = errors.New("client has no credentials; use WithCredentials")

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Reason     string // machine-readable rejection code, may be empty
	Message    string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("debenture API %d (%s): %s", e.StatusCode, e.Reason, e.Message)
	}
	return fmt.Sprintf("debenture API %d: %s", e.StatusCode, e.Message)
}

// Settlement is a committed payout as returned by Settle and Redeem.
type Settlement struct {
	ReceiptID          string          `json:"receipt_id"`
	Kind               string          `json:"kind"`
	BondID             uint64          `json:"bond_id"`
	Investor           string          `json:"investor"`
	Periods            int64           `json:"periods"`
	Amount             decimal.Decimal `json:"amount"`
	PaymentsMade       int64           `json:"payments_made"`
	Frequency          int64           `json:"frequency"`
	LastSettlement     time.Time       `json:"last_settlement"`
	Index              int64           `json:"index"`
	TaxRate            decimal.Decimal `json:"tax_rate"`
	SettledAt          time.Time       `json:"settled_at"`
	RemainingPrincipal int64           `json:"remaining_principal"`
}

// Schedule is the amortization position of a bond's investor-of-record.
type Schedule struct {
	BondID                uint64     `json:"bond_id"`
	Investor              string     `json:"investor"`
	PaymentsMade          int64      `json:"payments_made"`
	Frequency             int64      `json:"frequency"`
	LastSettlement        time.Time  `json:"last_settlement"`
	PeriodDurationSeconds int64      `json:"period_duration_seconds"`
	Completed             bool       `json:"completed"`
	NextDue               *time.Time `json:"next_due,omitempty"`
	TimeLeftSeconds       int64      `json:"time_left_seconds"`
}

// Entry is the schedule state of one (investor, bond) pair.
type Entry struct {
	Investor       string     `json:"investor"`
	BondID         uint64     `json:"bond_id"`
	Exists         bool       `json:"exists"`
	PaymentsMade   int64      `json:"payments_made"`
	LastSettlement *time.Time `json:"last_settlement"`
}

// Receipt is one credited payout from the journal.
type Receipt struct {
	ID        string          `json:"id"`
	Investor  string          `json:"investor"`
	BondID    uint64          `json:"bond_id"`
	Kind      string          `json:"kind"`
	Periods   int64           `json:"periods"`
	Amount    decimal.Decimal `json:"amount"`
	Index     int64           `json:"index"`
	TaxRate   decimal.Decimal `json:"tax_rate"`
	CreatedAt time.Time       `json:"created_at"`
}

// Client talks to the amortd REST API.
type Client struct {
	base       string
	httpClient *http.Client
	caller     string // open-mode caller header

	address string
	secret  string

	// token state, guarded by mu
	mu          sync.Mutex
	bearerToken string
	tokenExpiry time.Time // zero = token was set manually (no auto-refresh)
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithBearerToken attaches a pre-obtained caller token to every request.
// The token is not auto-refreshed.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		c.tokenExpiry = time.Time{}
		return nil
	}
}

// WithCredentials makes the client exchange address and secret for a caller
// token on first use, and again shortly before it expires.
func WithCredentials(address, secret string) Option {
	return func(c *Client) error {
		if address == "" || secret == "" {
			return errors.New("address and secret are required")
		}
		c.address, c.secret = address, secret
		return nil
	}
}

// WithCaller sets the caller address sent in CallerHeader, for services
// running without token authentication.
func WithCaller(address string) Option {
	return func(c *Client) error {
		c.caller = address
		return nil
	}
}

// New creates a Client for the service at base, e.g. "http://localhost:8080".
func New(base string, opts ...Option) (*Client, error) {
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Login exchanges the configured credentials for a caller token, caches it
// and returns it with its expiry.
func (c *Client) Login(ctx context.Context) (string, time.Time, error) {
	token, expires, err := c.fetchToken(ctx)
	if err != nil {
		return "", time.Time{}, err
	}
	c.mu.Lock()
	c.bearerToken = token
	c.tokenExpiry = expires
	c.mu.Unlock()
	return token, expires, nil
}

func (c *Client) fetchToken(ctx context.Context) (string, time.Time, error) {
	if c.address == "" {
		return "", time.Time{}, ErrNoCredentials
	}
	var resp struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	body := map[string]string{"address": c.address, "secret": c.secret}
	if err := c.send(ctx, http.MethodPost, "/api/v1/auth/token", body, &resp, ""); err != nil {
		return "", time.Time{}, err
	}
	// Refresh 60 s before actual expiry to avoid clock-skew failures.
	return resp.Token, resp.ExpiresAt.Add(-60 * time.Second), nil
}

// ensureToken returns a valid bearer token, fetching a new one when the
// cached token is absent or approaching expiry. Without credentials it
// returns the manual token, possibly empty.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bearerToken != "" && (c.tokenExpiry.IsZero() || time.Now().Before(c.tokenExpiry)) {
		return c.bearerToken, nil
	}
	if c.address == "" {
		return c.bearerToken, nil
	}

	token, expiry, err := c.fetchToken(ctx)
	if err != nil {
		return "", err
	}
	c.bearerToken = token
	c.tokenExpiry = expiry
	return token, nil
}

// Settle pays every elapsed period of bondID.
func (c *Client) Settle(ctx context.Context, bondID uint64) (*Settlement, error) {
	return c.payout(ctx, bondID, "settle")
}

// Redeem redeems bondID early.
func (c *Client) Redeem(ctx context.Context, bondID uint64) (*Settlement, error) {
	return c.payout(ctx, bondID, "redeem")
}

func (c *Client) payout(ctx context.Context, bondID uint64, op string) (*Settlement, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("obtain caller token: %w", err)
	}
	var s Settlement
	path := "/api/v1/bonds/" + strconv.FormatUint(bondID, 10) + "/" + op
	if err := c.send(ctx, http.MethodPost, path, nil, &s, token); err != nil {
		return nil, err
	}
	return &s, nil
}

// Schedule returns the amortization position of bondID.
func (c *Client) Schedule(ctx context.Context, bondID uint64) (*Schedule, error) {
	var s Schedule
	if err := c.get(ctx, "/api/v1/bonds/"+strconv.FormatUint(bondID, 10)+"/schedule", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Entry returns the schedule entry of investor for bondID.
func (c *Client) Entry(ctx context.Context, investor string, bondID uint64) (*Entry, error) {
	var e Entry
	path := "/api/v1/ledger/" + url.PathEscape(investor) + "/bonds/" + strconv.FormatUint(bondID, 10)
	if err := c.get(ctx, path, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Balance returns the credited payout balance of investor.
func (c *Client) Balance(ctx context.Context, investor string) (decimal.Decimal, error) {
	var resp struct {
		Balance decimal.Decimal `json:"balance"`
	}
	if err := c.get(ctx, "/api/v1/balances/"+url.PathEscape(investor), &resp); err != nil {
		return decimal.Zero, err
	}
	return resp.Balance, nil
}

// Receipts lists the most recent payouts of investor, newest first. limit
// <= 0 uses the server default.
func (c *Client) Receipts(ctx context.Context, investor string, limit int) ([]Receipt, error) {
	path := "/api/v1/ledger/" + url.PathEscape(investor) + "/receipts"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp struct {
		Receipts []Receipt `json:"receipts"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Receipts, nil
}

// Index returns the raw /index document.
func (c *Client) Index(ctx context.Context) (map[string]any, error) {
	var resp map[string]any
	if err := c.get(ctx, "/api/v1/index", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// BotStatus returns the raw /bot/status document.
func (c *Client) BotStatus(ctx context.Context) (map[string]any, error) {
	var resp map[string]any
	if err := c.get(ctx, "/api/v1/bot/status", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.send(ctx, http.MethodGet, path, nil, out, "")
}

// send executes a JSON request. token, when set, is sent as a bearer token.
func (c *Client) send(ctx context.Context, method, path string, in, out any, token string) error {
	var bodyReader io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.caller != "" {
		req.Header.Set(CallerHeader, c.caller)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		var payload struct {
			Error  string `json:"error"`
			Reason string `json:"reason"`
		}
		if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
			apiErr.Reason = payload.Reason
		}
		return apiErr
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
