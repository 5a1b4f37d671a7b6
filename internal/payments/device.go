package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/go-table-checkout/internal/apperr"
	"github.com/ariefcatur/go-table-checkout/internal/config"
	"github.com/ariefcatur/go-table-checkout/internal/orders"
)

const devicePrefix = "D"

// DeviceSession is the platform payment-session API on the customer's device.
type DeviceSession interface {
	CanMakePayments(ctx context.Context) (bool, error)
	Attest(ctx context.Context, req AttestationRequest) (Attestation, error)
}

type AttestationRequest struct {
	OrderID  string
	Amount   int64
	Merchant string
}

// Attestation is the opaque token the device returns once the user passes
// the biometric or passcode gate.
type Attestation struct {
	Token string
}

// ClientSession replays what the frontend already collected on the device:
// the capability flag and the attestation token.
type ClientSession struct {
	Capable bool   `json:"capable"`
	Token   string `json:"token"`
	Reason  string `json:"reason,omitempty"` // set when the user cancelled or failed the gate
}

func (s ClientSession) CanMakePayments(context.Context) (bool, error) { return s.Capable, nil }

func (s ClientSession) Attest(context.Context, AttestationRequest) (Attestation, error) {
	if s.Token == "" {
		reason := s.Reason
		if reason == "" {
			reason = "no attestation token"
		}
		return Attestation{}, errors.New(reason)
	}
	return Attestation{Token: s.Token}, nil
}

type sessionKey struct{}

func WithDeviceSession(ctx context.Context, s DeviceSession) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func DeviceSessionFrom(ctx context.Context) (DeviceSession, bool) {
	s, ok := ctx.Value(sessionKey{}).(DeviceSession)
	return s, ok && s != nil
}

// Device is the device-attested wallet: capability, then attestation, then
// authorization. Capability failures are final; the customer has to pick
// another method.
type Device struct {
	Config config.DeviceConfig
	HTTP   *http.Client
}

func (d *Device) Method() orders.PaymentMethod { return orders.MethodDeviceWallet }

type authorizeReply struct {
	Status          string `json:"status"`
	AuthorizationID string `json:"authorizationId"`
	Message         string `json:"message"`
}

func (d *Device) Process(ctx context.Context, order orders.Order, amount int64) (Result, error) {
	const op = "device.process"
	if err := checkAmount(op, order, amount); err != nil {
		return Result{}, err
	}
	if d.Config.Endpoint == "" || d.Config.MerchantID == "" {
		return Result{}, apperr.New(apperr.KindGatewayConfig, op, "endpoint and merchant id are required").WithPhase(PhaseValidate, false)
	}
	sess, ok := DeviceSessionFrom(ctx)
	if !ok {
		return Result{}, apperr.New(apperr.KindGatewayUnsupported, op, "no device payment session").WithPhase(PhaseCapability, false)
	}

	if err := d.capability(ctx, sess); err != nil {
		return Result{}, err
	}

	att, err := sess.Attest(ctx, AttestationRequest{OrderID: order.ID, Amount: amount, Merchant: d.Config.MerchantID})
	if err != nil || att.Token == "" {
		if err == nil {
			err = errors.New("empty attestation token")
		}
		return Result{}, apperr.Wrap(apperr.KindAttestationFailed, op, err).WithPhase(PhaseAttestation, true)
	}

	return d.authorize(ctx, order, amount, att)
}

// capability never retries: a timeout is reported as such but is not retryable.
func (d *Device) capability(ctx context.Context, sess DeviceSession) error {
	const op = "device.capability"
	timeout := d.Config.CapabilityTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		ok  bool
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		ok, err := sess.CanMakePayments(cctx)
		ch <- outcome{ok, err}
	}()

	select {
	case <-cctx.Done():
		return apperr.Wrap(apperr.KindGatewayTimeout, op, cctx.Err()).WithPhase(PhaseCapability, false)
	case o := <-ch:
		if o.err != nil {
			return apperr.Wrap(apperr.KindGatewayUnsupported, op, o.err).WithPhase(PhaseCapability, false)
		}
		if !o.ok {
			return apperr.New(apperr.KindGatewayUnsupported, op, "device cannot make payments").WithPhase(PhaseCapability, false)
		}
		return nil
	}
}

func (d *Device) authorize(ctx context.Context, order orders.Order, amount int64, att Attestation) (Result, error) {
	const op = "device.authorize"
	tradeNo := NewTradeNo(devicePrefix)
	body, err := json.Marshal(map[string]any{
		"merchantId":   d.Config.MerchantID,
		"tradeNo":      tradeNo,
		"orderId":      order.ID,
		"amount":       amount,
		"paymentToken": att.Token,
	})
	if err != nil {
		return Result{}, apperr.Wrap(apperr.KindGatewayConfig, op, err).WithPhase(PhaseDeviceAuthorize, false)
	}
	code, raw, err := do(ctx, defaultClient(d.HTTP), call{
		op: op, phase: PhaseDeviceAuthorize, method: http.MethodPost,
		url: strings.TrimRight(d.Config.Endpoint, "/") + "/authorize", header: jsonHeader(), body: body,
		timeout: d.Config.Timeout,
	})
	if err != nil {
		return Result{}, err
	}
	switch {
	case code >= 500:
		return Result{}, apperr.Newf(apperr.KindNetwork, op, "provider returned %d", code).WithPhase(PhaseDeviceAuthorize, true)
	case code >= 400:
		return Result{}, apperr.Newf(apperr.KindGatewayConfig, op, "provider rejected request: %d", code).WithPhase(PhaseDeviceAuthorize, false)
	}
	var rep authorizeReply
	if err := decodeJSON(op, PhaseDeviceAuthorize, raw, &rep); err != nil {
		return Result{}, err
	}
	if !strings.EqualFold(rep.Status, "APPROVED") {
		return Result{}, apperr.Newf(apperr.KindGatewayDeclined, op, "%s: %s", rep.Status, rep.Message).
			WithPhase(PhaseDeviceAuthorize, true).WithRef(tradeNo)
	}
	return Result{
		TransactionID: rep.AuthorizationID,
		TradeNo:       tradeNo,
		ProviderData:  map[string]string{"authorization_id": rep.AuthorizationID},
	}, nil
}
