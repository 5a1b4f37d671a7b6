package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/ariefcatur/go-table-checkout/internal/apperr"
)

const maxBody = 1 << 20

// call is one outbound provider request, bounded by its own timeout.
type call struct {
	op      string
	phase   string
	method  string
	url     string
	header  http.Header
	body    []byte
	timeout time.Duration
}

// do sends c and returns the status code and body. A deadline becomes
// KindGatewayTimeout and any other transport failure KindNetwork; both are
// tagged with c.phase and marked retryable. Callers override retryability
// for phases that must not retry.
func do(ctx context.Context, hc *http.Client, c call) (int, []byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, c.method, c.url, bytes.NewReader(c.body))
	if err != nil {
		return 0, nil, apperr.Wrap(apperr.KindGatewayConfig, c.op, err).WithPhase(c.phase, false)
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return 0, nil, classify(ctx, c, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return resp.StatusCode, nil, classify(ctx, c, err)
	}
	return resp.StatusCode, b, nil
}

func classify(ctx context.Context, c call, err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &ne) && ne.Timeout()) {
		return apperr.Wrap(apperr.KindGatewayTimeout, c.op, err).WithPhase(c.phase, true)
	}
	return apperr.Wrap(apperr.KindNetwork, c.op, err).WithPhase(c.phase, true)
}

// decodeJSON decodes a provider body; an unparseable reply is a protocol
// problem on the provider side, reported as a retryable network error.
func decodeJSON(op, phase string, body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return apperr.Wrap(apperr.KindNetwork, op, fmt.Errorf("decode provider reply: %w", err)).WithPhase(phase, true)
	}
	return nil
}

func jsonHeader() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	return h
}

func defaultClient(hc *http.Client) *http.Client {
	if hc != nil {
		return hc
	}
	return &http.Client{}
}
