// Package qbclient is a typed client for the QuickBooks Online accounting API.
//
// A Client is built from an access token that is already known to be valid;
// deciding validity and refreshing belongs to the token store. Every request
// takes one token from the shared rate limiter and runs under the retry policy.
package qbclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"roof-crm/pkg/retry"
)

const (
	ProductionBaseURL   = "https://quickbooks.api.intuit.com"
	SandboxBaseURL      = "https://sandbox-quickbooks.api.intuit.com"
	DefaultMinorVersion = "75"

	// DefaultRetryAfter applies when a 429 carries no Retry-After header.
	DefaultRetryAfter = 60 * time.Second
)

// Limiter is satisfied by ratelimit.Limiter.
type Limiter interface {
	Acquire(ctx context.Context, cost int) error
}

type noLimit struct{}

func (noLimit) Acquire(context.Context, int) error { return nil }

type Client struct {
	accessToken  string
	realmID      string
	baseURL      string
	minorVersion string
	httpClient   *http.Client
	limiter      Limiter
	retryOpts    retry.Options
	breaker      *Breaker
	logger       *zap.Logger
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

func WithLimiter(l Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

func WithRetry(opts retry.Options) Option {
	return func(c *Client) { c.retryOpts = opts }
}

func WithBreaker(b *Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithMinorVersion(v string) Option {
	return func(c *Client) { c.minorVersion = v }
}

// New returns a client for one connected company.
func New(accessToken, realmID string, opts ...Option) *Client {
	c := &Client{
		accessToken:  accessToken,
		realmID:      realmID,
		baseURL:      ProductionBaseURL,
		minorVersion: DefaultMinorVersion,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		limiter:      noLimit{},
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retryOpts.Logger == nil {
		c.retryOpts.Logger = c.logger
	}
	return c
}

// RealmID returns the company this client talks to.
func (c *Client) RealmID() string { return c.realmID }

// GetCustomer fetches a customer by id.
func (c *Client) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	var env customerEnvelope
	if err := c.do(ctx, http.MethodGet, "/customer/"+url.PathEscape(id), nil, nil, &env); err != nil {
		return nil, err
	}
	return &env.Customer, nil
}

// CreateCustomer creates a customer. DisplayName must be unique in the company.
func (c *Client) CreateCustomer(ctx context.Context, cust *Customer) (*Customer, error) {
	var env customerEnvelope
	if err := c.do(ctx, http.MethodPost, "/customer", nil, cust, &env); err != nil {
		return nil, err
	}
	return &env.Customer, nil
}

// UpdateCustomer sends a sparse update. ID and SyncToken are required.
func (c *Client) UpdateCustomer(ctx context.Context, cust *Customer) (*Customer, error) {
	if cust.ID == "" || cust.SyncToken == "" {
		return nil, errors.New("qbclient: customer update requires Id and SyncToken")
	}
	body := *cust
	body.Sparse = true
	var env customerEnvelope
	if err := c.do(ctx, http.MethodPost, "/customer", nil, &body, &env); err != nil {
		return nil, err
	}
	return &env.Customer, nil
}

// FindCustomerByDisplayName returns nil when no customer carries name.
func (c *Client) FindCustomerByDisplayName(ctx context.Context, name string) (*Customer, error) {
	var resp QueryResponse
	q := Select("Customer").Where("DisplayName", name).MaxResults(1)
	if err := c.Query(ctx, q.String(), &resp); err != nil {
		return nil, err
	}
	if len(resp.Customer) == 0 {
		return nil, nil
	}
	return &resp.Customer[0], nil
}

func (c *Client) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	var env invoiceEnvelope
	if err := c.do(ctx, http.MethodGet, "/invoice/"+url.PathEscape(id), nil, nil, &env); err != nil {
		return nil, err
	}
	return &env.Invoice, nil
}

func (c *Client) CreateInvoice(ctx context.Context, inv *Invoice) (*Invoice, error) {
	var env invoiceEnvelope
	if err := c.do(ctx, http.MethodPost, "/invoice", nil, inv, &env); err != nil {
		return nil, err
	}
	return &env.Invoice, nil
}

func (c *Client) GetPayment(ctx context.Context, id string) (*Payment, error) {
	var env paymentEnvelope
	if err := c.do(ctx, http.MethodGet, "/payment/"+url.PathEscape(id), nil, nil, &env); err != nil {
		return nil, err
	}
	return &env.Payment, nil
}

func (c *Client) CreatePayment(ctx context.Context, p *Payment) (*Payment, error) {
	var env paymentEnvelope
	if err := c.do(ctx, http.MethodPost, "/payment", nil, p, &env); err != nil {
		return nil, err
	}
	return &env.Payment, nil
}

// ItemFilter narrows GetItems. Zero value lists every item.
type ItemFilter struct {
	ActiveOnly bool
	Type       string
	MaxResults int
}

func (c *Client) GetItems(ctx context.Context, f ItemFilter) ([]Item, error) {
	q := Select("Item")
	if f.ActiveOnly {
		q.WhereBool("Active", true)
	}
	if f.Type != "" {
		q.Where("Type", f.Type)
	}
	if f.MaxResults > 0 {
		q.MaxResults(f.MaxResults)
	}
	var resp QueryResponse
	if err := c.Query(ctx, q.String(), &resp); err != nil {
		return nil, err
	}
	return resp.Item, nil
}

func (c *Client) GetCompanyInfo(ctx context.Context) (*CompanyInfo, error) {
	var env companyInfoEnvelope
	if err := c.do(ctx, http.MethodGet, "/companyinfo/"+url.PathEscape(c.realmID), nil, nil, &env); err != nil {
		return nil, err
	}
	return &env.CompanyInfo, nil
}

// Query runs a raw query. Callers building the string themselves must pass
// user input through EscapeQuery or use the Query builder.
func (c *Client) Query(ctx context.Context, query string, out *QueryResponse) error {
	var env queryEnvelope
	if err := c.do(ctx, http.MethodGet, "/query", url.Values{"query": {query}}, nil, &env); err != nil {
		return err
	}
	*out = env.QueryResponse
	return nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	if c.minorVersion != "" {
		q.Set("minorversion", c.minorVersion)
	}
	u := fmt.Sprintf("%s/v3/company/%s%s", c.baseURL, url.PathEscape(c.realmID), path)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	if err := c.limiter.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	target := c.endpoint(path, query)

	return retry.Do(ctx, func(ctx context.Context) error {
		resp, err := c.send(ctx, method, target, payload)
		if err != nil {
			return err
		}
		if out == nil || len(resp.Body) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}, c.retryOpts)
}

func (c *Client) send(ctx context.Context, method, target string, payload []byte) (*Response, error) {
	call := func() (*Response, error) {
		return c.roundTrip(ctx, method, target, payload)
	}
	if c.breaker == nil {
		return call()
	}
	resp, err := c.breaker.Execute(call)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &retry.Error{
			Kind:    retry.KindFatal,
			Status:  http.StatusServiceUnavailable,
			Message: "QuickBooks circuit breaker open",
			Err:     err,
		}
	}
	return resp, err
}

func (c *Client) roundTrip(ctx context.Context, method, target string, payload []byte) (*Response, error) {
	var body io.Reader = http.NoBody
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug("QuickBooks request",
		zap.String("method", method),
		zap.String("realm_id", c.realmID),
		zap.Int("status", res.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	resp := &Response{Status: res.StatusCode, Header: res.Header, Body: data}
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return resp, nil
	}
	return resp, classifyStatus(res.StatusCode, res.Header, data)
}

func classifyStatus(status int, header http.Header, body []byte) error {
	switch {
	case status == http.StatusTooManyRequests:
		return retry.Retryable(status, parseRetryAfter(header.Get("Retry-After")), "QuickBooks rate limit exceeded")
	case status >= 500:
		return retry.Retryable(status, 0, "QuickBooks server error")
	default:
		return retry.Fatal(status, faultMessage(body), string(body))
	}
}

func faultMessage(body []byte) string {
	var f fault
	if err := json.Unmarshal(body, &f); err == nil && len(f.Fault.Error) > 0 {
		e := f.Fault.Error[0]
		if e.Detail != "" {
			return fmt.Sprintf("QuickBooks API error %s: %s", e.Code, e.Detail)
		}
		return fmt.Sprintf("QuickBooks API error %s: %s", e.Code, e.Message)
	}
	return "QuickBooks API error"
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return DefaultRetryAfter
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
		return 0
	}
	return DefaultRetryAfter
}
