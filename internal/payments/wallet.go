package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ariefcatur/go-table-checkout/internal/apperr"
	"github.com/ariefcatur/go-table-checkout/internal/config"
	"github.com/ariefcatur/go-table-checkout/internal/logx"
	"github.com/ariefcatur/go-table-checkout/internal/orders"
	"github.com/google/uuid"
)

const (
	walletPrefix  = "W"
	walletSuccess = "0000"
)

// Provider-side reservation statuses returned by the check endpoint.
const (
	HoldCaptured   = "CAPTURED"
	HoldAuthorized = "AUTHORIZED"
	HoldReserved   = "RESERVED"
	HoldExpired    = "EXPIRED"
	HoldFailed     = "FAILED"
	HoldVoided     = "VOIDED"
)

// Reconciler settles a reservation whose confirmation outcome is unknown.
type Reconciler interface {
	Reconcile(ctx context.Context, orderID string) (Result, error)
}

// Wallet is the two-phase (reserve, confirm) wallet. Every reservation is
// journaled before confirm is attempted, and an order with an open
// reservation is reconciled instead of reserved again.
type Wallet struct {
	Config  config.WalletConfig
	Journal Journal
	HTTP    *http.Client
	Log     *slog.Logger
}

func (w *Wallet) Method() orders.PaymentMethod { return orders.MethodWallet }

type walletReply struct {
	ReturnCode    string          `json:"returnCode"`
	ReturnMessage string          `json:"returnMessage"`
	Info          json.RawMessage `json:"info,omitempty"`
}

type reserveInfo struct {
	TransactionID      string `json:"transactionId"`
	PaymentAccessToken string `json:"paymentAccessToken"`
	PaymentURL         struct {
		Web string `json:"web"`
	} `json:"paymentUrl"`
}

type confirmInfo struct {
	TransactionID string `json:"transactionId"`
	OrderID       string `json:"orderId"`
}

type checkInfo struct {
	Status string `json:"status"`
}

func (w *Wallet) Process(ctx context.Context, order orders.Order, amount int64) (Result, error) {
	const op = "wallet.process"
	if err := checkAmount(op, order, amount); err != nil {
		return Result{}, err
	}
	if err := w.checkConfig(); err != nil {
		return Result{}, err
	}

	open, ok, err := w.Journal.Open(ctx, order.ID)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.KindNetwork, op, err).WithPhase(PhaseReserve, true)
	}
	if ok {
		w.logger().Info("open reservation found, reconciling", "order_id", order.ID, "transaction_id", open.TransactionID)
		return w.settle(ctx, open)
	}
	// a hold captured by an earlier attempt or by the reconciler is the payment
	done, ok, err := w.Journal.ForOrder(ctx, order.ID, ReservationCaptured)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.KindNetwork, op, err).WithPhase(PhaseReserve, true)
	}
	if ok {
		w.logger().Info("order already captured, not reserving again", "order_id", order.ID, "transaction_id", done.TransactionID)
		return done.Captured(), nil
	}

	res, err := w.Reserve(ctx, order, amount)
	if err != nil {
		return Result{}, err
	}
	if err := w.Journal.Record(ctx, res); err != nil {
		return Result{}, w.unjournaled(ctx, res, err)
	}

	result, err := w.Confirm(ctx, res)
	if err != nil {
		w.logger().Warn("confirm failed, reservation left open", "order_id", order.ID, "transaction_id", res.TransactionID, "err", err)
		return Result{}, ambiguous(op, PhaseConfirm, res, err)
	}
	if err := w.Journal.Resolve(ctx, res.TransactionID, ReservationCaptured); err != nil {
		w.logger().Error("journal resolve failed after capture", "transaction_id", res.TransactionID, "err", err)
	}
	return result, nil
}

// Reserve places the hold. Failures here are retryable since no hold exists.
func (w *Wallet) Reserve(ctx context.Context, order orders.Order, amount int64) (Reservation, error) {
	const op = "wallet.reserve"
	tradeNo := NewTradeNo(walletPrefix)
	body := map[string]any{
		"amount":          amount,
		"currency":        w.Config.Currency,
		"orderId":         tradeNo,
		"merchantOrderId": order.ID,
		"redirectUrls":    map[string]string{"confirmUrl": w.Config.ConfirmURL},
	}
	var info reserveInfo
	if err := w.send(ctx, op, PhaseReserve, http.MethodPost, "/payments/request", body, &info); err != nil {
		return Reservation{}, err
	}
	if info.TransactionID == "" {
		return Reservation{}, apperr.New(apperr.KindNetwork, op, "reply without transaction id").WithPhase(PhaseReserve, true)
	}
	return Reservation{
		OrderID:            order.ID,
		TransactionID:      info.TransactionID,
		TradeNo:            tradeNo,
		ConfirmationHandle: info.PaymentAccessToken,
		PaymentURL:         info.PaymentURL.Web,
		Amount:             amount,
		Currency:           w.Config.Currency,
		PaymentID:          PaymentIDFrom(ctx),
		State:              ReservationOpen,
	}, nil
}

// Confirm captures a reservation.
func (w *Wallet) Confirm(ctx context.Context, r Reservation) (Result, error) {
	const op = "wallet.confirm"
	body := map[string]any{"amount": r.Amount, "currency": r.Currency}
	var info confirmInfo
	path := "/payments/" + r.TransactionID + "/confirm"
	if err := w.send(ctx, op, PhaseConfirm, http.MethodPost, path, body, &info); err != nil {
		return Result{}, err
	}
	return r.Captured(), nil
}

// Reconcile queries the provider for an order's open reservation and settles
// the journal accordingly.
func (w *Wallet) Reconcile(ctx context.Context, orderID string) (Result, error) {
	open, ok, err := w.Journal.Open(ctx, orderID)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.KindNetwork, "wallet.reconcile", err).WithPhase(PhaseCheck, true)
	}
	if !ok {
		return Result{}, apperr.Newf(apperr.KindNotFound, "wallet.reconcile", "no open reservation for order %s", orderID)
	}
	return w.settle(ctx, open)
}

// OpenHold reports an order's reservation that is still open.
func (w *Wallet) OpenHold(ctx context.Context, orderID string) (string, bool, error) {
	if w.Journal == nil {
		return "", false, nil
	}
	r, ok, err := w.Journal.Open(ctx, orderID)
	if err != nil || !ok {
		return "", false, err
	}
	return r.TransactionID, true, nil
}

// Check returns the provider's status for a reservation.
func (w *Wallet) Check(ctx context.Context, transactionID string) (string, error) {
	var info checkInfo
	if err := w.send(ctx, "wallet.check", PhaseCheck, http.MethodGet, "/payments/"+transactionID+"/check", nil, &info); err != nil {
		return "", err
	}
	return strings.ToUpper(info.Status), nil
}

// Cancel voids an order's open reservation and releases it in the journal.
func (w *Wallet) Cancel(ctx context.Context, orderID string) error {
	const op = "wallet.cancel"
	open, ok, err := w.Journal.Open(ctx, orderID)
	if err != nil {
		return apperr.Wrap(apperr.KindNetwork, op, err).WithPhase(PhaseCancel, true)
	}
	if !ok {
		return apperr.Newf(apperr.KindNotFound, op, "no open reservation for order %s", orderID)
	}
	if err := w.void(ctx, open.TransactionID); err != nil {
		return err
	}
	return w.Journal.Resolve(ctx, open.TransactionID, ReservationReleased)
}

func (w *Wallet) void(ctx context.Context, transactionID string) error {
	return w.send(ctx, "wallet.cancel", PhaseCancel, http.MethodPost, "/payments/"+transactionID+"/void", map[string]any{}, nil)
}

func (w *Wallet) settle(ctx context.Context, r Reservation) (Result, error) {
	const op = "wallet.reconcile"
	status, err := w.Check(ctx, r.TransactionID)
	if err != nil {
		return Result{}, ambiguous(op, PhaseCheck, r, err)
	}
	switch status {
	case HoldCaptured:
		if err := w.Journal.Resolve(ctx, r.TransactionID, ReservationCaptured); err != nil {
			return Result{}, ambiguous(op, PhaseCheck, r, err)
		}
		return r.Captured(), nil
	case HoldAuthorized:
		result, err := w.Confirm(ctx, r)
		if err != nil {
			return Result{}, ambiguous(op, PhaseConfirm, r, err)
		}
		if err := w.Journal.Resolve(ctx, r.TransactionID, ReservationCaptured); err != nil {
			w.logger().Error("journal resolve failed after capture", "transaction_id", r.TransactionID, "err", err)
		}
		return result, nil
	case HoldExpired, HoldFailed, HoldVoided:
		if err := w.Journal.Resolve(ctx, r.TransactionID, ReservationReleased); err != nil {
			return Result{}, ambiguous(op, PhaseCheck, r, err)
		}
		return Result{}, apperr.Newf(apperr.KindGatewayDeclined, op, "reservation %s %s", r.TransactionID, strings.ToLower(status)).
			WithPhase(PhaseCheck, true).WithRef(r.TransactionID)
	default:
		return Result{}, ambiguous(op, PhaseCheck, r, fmt.Errorf("reservation %s awaiting approval (%s)", r.TransactionID, status))
	}
}

// unjournaled handles a hold that could not be written to the journal. The
// hold is voided so a retry cannot leave a second one behind.
func (w *Wallet) unjournaled(ctx context.Context, r Reservation, cause error) error {
	if apperr.Is(cause, apperr.KindAmbiguousPending) {
		_ = w.void(ctx, r.TransactionID)
		return apperr.Wrap(apperr.KindAmbiguousPending, "wallet.process", cause).WithPhase(PhaseReserve, false)
	}
	if err := w.void(ctx, r.TransactionID); err != nil {
		w.logger().Error("unjournaled reservation could not be voided", "transaction_id", r.TransactionID, "err", err)
		return ambiguous("wallet.process", PhaseReserve, r, errors.Join(cause, err))
	}
	return apperr.Wrap(apperr.KindNetwork, "wallet.process", cause).WithPhase(PhaseReserve, true)
}

func (w *Wallet) send(ctx context.Context, op, phase, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return apperr.Wrap(apperr.KindGatewayConfig, op, err).WithPhase(phase, false)
		}
		body = b
	}
	h := jsonHeader()
	nonce := uuid.NewString()
	h.Set("X-Channel-Id", w.Config.ChannelID)
	h.Set("X-Authorization-Nonce", nonce)
	h.Set("X-Authorization", Sign(w.Config.ChannelSecret, path, string(body), nonce))

	code, raw, err := do(ctx, defaultClient(w.HTTP), call{
		op: op, phase: phase, method: method,
		url: strings.TrimRight(w.Config.Endpoint, "/") + path, header: h, body: body,
		timeout: w.Config.Timeout,
	})
	if err != nil {
		return err
	}
	if code >= 500 {
		return apperr.Newf(apperr.KindNetwork, op, "provider returned %d", code).WithPhase(phase, true)
	}
	var rep walletReply
	if err := decodeJSON(op, phase, raw, &rep); err != nil {
		return err
	}
	if code >= 400 || rep.ReturnCode != walletSuccess {
		return apperr.Newf(apperr.KindGatewayDeclined, op, "%s %s", rep.ReturnCode, rep.ReturnMessage).WithPhase(phase, true)
	}
	if out != nil && len(rep.Info) > 0 {
		return decodeJSON(op, phase, rep.Info, out)
	}
	return nil
}

// Sign is the request signature: base64(HMAC-SHA256(secret, secret+path+body+nonce)).
func Sign(secret, path, body, nonce string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(secret + path + body + nonce))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (w *Wallet) checkConfig() error {
	if w.Config.Endpoint == "" || w.Config.ChannelID == "" || w.Config.ChannelSecret == "" {
		return apperr.New(apperr.KindGatewayConfig, "wallet.config", "endpoint, channel id and secret are required").
			WithPhase(PhaseValidate, false)
	}
	if w.Journal == nil {
		return apperr.New(apperr.KindGatewayConfig, "wallet.config", "reservation journal is required").WithPhase(PhaseValidate, false)
	}
	return nil
}

func (w *Wallet) logger() *slog.Logger {
	if w.Log == nil {
		return logx.Nop()
	}
	return w.Log
}

// Captured is the gateway result for r once its hold has been captured.
func (r Reservation) Captured() Result {
	return Result{
		TransactionID: r.TransactionID,
		TradeNo:       r.TradeNo,
		ProviderData: map[string]string{
			"reservation": r.TransactionID,
			"currency":    r.Currency,
		},
	}
}

// ambiguous reports a reservation whose outcome is unknown. Recovery is a
// reconciliation of r, never a second reserve.
func ambiguous(op, phase string, r Reservation, err error) error {
	return apperr.Wrap(apperr.KindAmbiguousPending, op, err).WithPhase(phase, false).WithRef(r.TransactionID)
}
