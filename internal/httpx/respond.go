package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-table-checkout/internal/apperr"
	"github.com/ariefcatur/go-table-checkout/internal/checkout"
)

const HeaderSession = "X-Session-Id"

type errorResp struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	Step    string `json:"step,omitempty"`
	OrderID string `json:"order_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Wrap(apperr.KindValidation, "http.decode", errors.New("invalid json"))
	}
	return nil
}

func writeError(w http.ResponseWriter, err error) {
	body := errorResp{Error: err.Error(), Kind: apperr.KindOf(err).String()}
	var ce *checkout.CheckoutError
	if errors.As(err, &ce) {
		body.Kind = ce.Kind.String()
		body.Step = ce.Step()
		body.OrderID = ce.OrderID
	}
	writeJSON(w, statusFor(err), body)
}

func statusFor(err error) int {
	kind := apperr.KindOf(err)
	var ce *checkout.CheckoutError
	if errors.As(err, &ce) {
		kind = ce.Kind
	}
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidTransition, apperr.KindInFlight:
		return http.StatusConflict
	case apperr.KindGatewayDeclined:
		return http.StatusPaymentRequired
	case apperr.KindAttestationFailed:
		return http.StatusForbidden
	case apperr.KindGatewayUnsupported:
		return http.StatusUnprocessableEntity
	case apperr.KindAmbiguousPending:
		return http.StatusAccepted
	case apperr.KindGatewayTimeout:
		return http.StatusGatewayTimeout
	case apperr.KindNetwork, apperr.KindGatewayConfig:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func sessionID(r *http.Request) (string, error) {
	id := r.Header.Get(HeaderSession)
	if id == "" {
		return "", apperr.New(apperr.KindValidation, "http.session", "missing "+HeaderSession+" header")
	}
	return id, nil
}
