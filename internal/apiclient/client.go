package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ariefcatur/go-table-checkout/internal/apperr"
	"github.com/ariefcatur/go-table-checkout/internal/config"
	"github.com/ariefcatur/go-table-checkout/internal/logx"
	"github.com/ariefcatur/go-table-checkout/internal/orders"
)

const (
	defaultAttempts = 3
	defaultBackoff  = 100 * time.Millisecond
)

// Client talks to the backend order service.
type Client struct {
	BaseURL  string
	Token    string
	Timeout  time.Duration // per request
	Attempts int           // for idempotent reads
	Backoff  time.Duration
	HTTP     *http.Client
	Log      *slog.Logger
}

func New(cfg config.BackendConfig, log *slog.Logger) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		Token:    cfg.Token,
		Timeout:  cfg.Timeout,
		Attempts: defaultAttempts,
		Backoff:  defaultBackoff,
		HTTP:     &http.Client{},
		Log:      log,
	}
}

type createPaymentReq struct {
	Method orders.PaymentMethod `json:"method"`
}

type confirmPaymentReq struct {
	TransactionID string            `json:"transaction_id"`
	ProviderData  map[string]string `json:"provider_data,omitempty"`
}

type cancelReq struct {
	Reason string `json:"reason"`
}

type statusReq struct {
	Status orders.Status `json:"status"`
}

// CreateOrder posts the draft. The idempotency key lets the backend collapse
// duplicate submits into one order.
func (c *Client) CreateOrder(ctx context.Context, draft orders.OrderDraft, idempotencyKey string) (orders.Order, error) {
	var o orders.Order
	h := http.Header{}
	if idempotencyKey != "" {
		h.Set("Idempotency-Key", idempotencyKey)
	}
	err := c.do(ctx, "orders.create", http.MethodPost, "/orders", h, draft, &o)
	return o, err
}

func (c *Client) CreatePayment(ctx context.Context, orderID string, method orders.PaymentMethod) (orders.Payment, error) {
	var p orders.Payment
	err := c.do(ctx, "payments.create", http.MethodPost, "/orders/"+url.PathEscape(orderID)+"/payments", nil, createPaymentReq{Method: method}, &p)
	return p, err
}

func (c *Client) ConfirmPayment(ctx context.Context, paymentID, transactionID string, providerData map[string]string) (orders.Payment, error) {
	var p orders.Payment
	err := c.do(ctx, "payments.confirm", http.MethodPost, "/payments/"+url.PathEscape(paymentID)+"/confirm", nil,
		confirmPaymentReq{TransactionID: transactionID, ProviderData: providerData}, &p)
	return p, err
}

func (c *Client) ListOrders(ctx context.Context, customerID string) ([]orders.Order, error) {
	var out []orders.Order
	path := "/orders?customerId=" + url.QueryEscape(customerID)
	err := c.retry(ctx, func() error {
		out = nil
		return c.do(ctx, "orders.list", http.MethodGet, path, nil, nil, &out)
	})
	return out, err
}

func (c *Client) GetOrder(ctx context.Context, id string) (orders.Order, error) {
	var o orders.Order
	err := c.retry(ctx, func() error {
		return c.do(ctx, "orders.get", http.MethodGet, "/orders/"+url.PathEscape(id), nil, nil, &o)
	})
	return o, err
}

func (c *Client) CancelOrder(ctx context.Context, id, reason string) (orders.Order, error) {
	var o orders.Order
	err := c.do(ctx, "orders.cancel", http.MethodPost, "/orders/"+url.PathEscape(id)+"/cancel", nil, cancelReq{Reason: reason}, &o)
	return o, err
}

// UpdateStatus is the staff action moving an order along its lifecycle.
func (c *Client) UpdateStatus(ctx context.Context, id string, status orders.Status) (orders.Order, error) {
	var o orders.Order
	err := c.do(ctx, "orders.update_status", http.MethodPatch, "/orders/"+url.PathEscape(id)+"/status", nil, statusReq{Status: status}, &o)
	return o, err
}

func (c *Client) StaffOverview(ctx context.Context) (orders.StaffOverview, error) {
	var ov orders.StaffOverview
	err := c.retry(ctx, func() error {
		return c.do(ctx, "staff.overview", http.MethodGet, "/staff/overview", nil, nil, &ov)
	})
	return ov, err
}

func (c *Client) StaffDashboard(ctx context.Context, staffID string) (orders.StaffDashboard, error) {
	var d orders.StaffDashboard
	err := c.retry(ctx, func() error {
		return c.do(ctx, "staff.dashboard", http.MethodGet, "/staff/dashboard/"+url.PathEscape(staffID), nil, nil, &d)
	})
	return d, err
}

// retry repeats fn on network failures with exponential backoff.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	attempts := c.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.Backoff
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)

	var last error
	err := backoff.RetryNotify(func() error {
		last = fn()
		if last != nil && !apperr.Is(last, apperr.KindNetwork) {
			return backoff.Permanent(last)
		}
		return last
	}, b, func(err error, wait time.Duration) {
		c.logger().Debug("backend read failed, retrying", "wait", wait, "err", err)
	})
	if err != nil && last != nil {
		// report the backend failure rather than the context that cut retries short
		return last
	}
	return err
}

func (c *Client) do(ctx context.Context, op, method, path string, h http.Header, in, out any) error {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return apperr.Wrap(apperr.KindValidation, op, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, op, err)
	}
	for k, vs := range h {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.client().Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindNetwork, op, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return apperr.Wrap(apperr.KindNetwork, op, err)
	}
	if resp.StatusCode >= 300 {
		return statusError(op, resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.Wrap(apperr.KindNetwork, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func statusError(op string, code int, raw []byte) error {
	msg := http.StatusText(code)
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil {
		if eb.Error != "" {
			msg = eb.Error
		} else if eb.Message != "" {
			msg = eb.Message
		}
	}
	kind := apperr.KindValidation
	switch {
	case code >= 500:
		kind = apperr.KindNetwork
	case code == http.StatusNotFound:
		kind = apperr.KindNotFound
	case code == http.StatusConflict:
		kind = apperr.KindInvalidTransition
	case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests:
		kind = apperr.KindNetwork
	}
	return apperr.Wrap(kind, op, &StatusError{Code: code, Message: msg})
}

// StatusError is the backend's non-2xx reply.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string { return fmt.Sprintf("backend %d: %s", e.Code, e.Message) }

// StatusCode returns the backend status behind err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

func (c *Client) client() *http.Client {
	if c.HTTP == nil {
		return http.DefaultClient
	}
	return c.HTTP
}

func (c *Client) logger() *slog.Logger {
	if c.Log == nil {
		return logx.Nop()
	}
	return c.Log
}
