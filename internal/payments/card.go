package payments

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ariefcatur/go-table-checkout/internal/apperr"
	"github.com/ariefcatur/go-table-checkout/internal/config"
	"github.com/ariefcatur/go-table-checkout/internal/orders"
)

const (
	maxItemName  = 400
	maxTradeDesc = 200
	cardPrefix   = "T"
)

// Card posts a signed, redirect-style checkout form and treats the
// provider's reply as the authorization outcome.
type Card struct {
	Config config.CardConfig
	HTTP   *http.Client
	Now    func() time.Time
}

func (c *Card) Method() orders.PaymentMethod { return orders.MethodCard }

type cardReply struct {
	RtnCode         int    `json:"RtnCode"`
	RtnMsg          string `json:"RtnMsg"`
	TradeNo         string `json:"TradeNo"`
	MerchantTradeNo string `json:"MerchantTradeNo"`
	CheckMacValue   string `json:"CheckMacValue,omitempty"`
}

func (c *Card) Process(ctx context.Context, order orders.Order, amount int64) (Result, error) {
	const op = "card.process"
	if err := checkAmount(op, order, amount); err != nil {
		return Result{}, err
	}
	if err := c.checkConfig(); err != nil {
		return Result{}, err
	}

	// fresh per attempt; never reused after a failure
	tradeNo := NewTradeNo(cardPrefix)
	form := c.Form(order, amount, tradeNo)
	if err := validateForm(form); err != nil {
		return Result{}, err
	}
	form["CheckMacValue"] = CheckMacValue(form, c.Config.HashKey, c.Config.HashIV)

	values := url.Values{}
	for k, v := range form {
		values.Set(k, v)
	}
	h := http.Header{}
	h.Set("Content-Type", "application/x-www-form-urlencoded")
	h.Set("Accept", "application/json")

	code, body, err := do(ctx, defaultClient(c.HTTP), call{
		op: op, phase: PhaseAuthorize, method: http.MethodPost,
		url: c.Config.Endpoint, header: h, body: []byte(values.Encode()),
		timeout: c.Config.Timeout,
	})
	if err != nil {
		return Result{}, err
	}
	switch {
	case code >= 500:
		return Result{}, apperr.Newf(apperr.KindNetwork, op, "provider returned %d", code).WithPhase(PhaseAuthorize, true)
	case code >= 400:
		return Result{}, apperr.Newf(apperr.KindGatewayConfig, op, "provider rejected form: %d %s", code, strings.TrimSpace(string(body))).
			WithPhase(PhaseAuthorize, false)
	}

	var rep cardReply
	if err := decodeJSON(op, PhaseAuthorize, body, &rep); err != nil {
		return Result{}, err
	}
	if rep.CheckMacValue != "" && !c.verifyReply(rep) {
		return Result{}, apperr.New(apperr.KindGatewayConfig, op, "reply signature mismatch").WithPhase(PhaseAuthorize, false)
	}
	if rep.RtnCode != 1 {
		return Result{}, apperr.Newf(apperr.KindGatewayDeclined, op, "declined: %d %s", rep.RtnCode, rep.RtnMsg).
			WithPhase(PhaseAuthorize, true).WithRef(tradeNo)
	}
	return Result{
		TransactionID: rep.TradeNo,
		TradeNo:       tradeNo,
		ProviderData: map[string]string{
			"merchant_trade_no": tradeNo,
			"rtn_msg":           rep.RtnMsg,
		},
	}, nil
}

// Form builds the unsigned checkout form for one attempt.
func (c *Card) Form(order orders.Order, amount int64, tradeNo string) map[string]string {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return map[string]string{
		"MerchantID":        c.Config.MerchantID,
		"MerchantTradeNo":   tradeNo,
		"MerchantTradeDate": now().Format("2006/01/02 15:04:05"),
		"PaymentType":       "aio",
		"TotalAmount":       strconv.FormatInt(amount, 10),
		"TradeDesc":         "Table " + order.TableNumber,
		"ItemName":          itemName(order.Items),
		"ReturnURL":         c.Config.ReturnURL,
		"ChoosePayment":     "Credit",
		"EncryptType":       "1",
		"CustomField1":      order.ID,
	}
}

func (c *Card) checkConfig() error {
	var missing []string
	if c.Config.Endpoint == "" {
		missing = append(missing, "endpoint")
	}
	if c.Config.MerchantID == "" {
		missing = append(missing, "merchant_id")
	}
	if c.Config.HashKey == "" || c.Config.HashIV == "" {
		missing = append(missing, "hash_key/hash_iv")
	}
	if c.Config.ReturnURL == "" {
		missing = append(missing, "return_url")
	}
	if len(missing) > 0 {
		return apperr.Newf(apperr.KindGatewayConfig, "card.config", "missing %s", strings.Join(missing, ", ")).
			WithPhase(PhaseValidate, false)
	}
	return nil
}

func (c *Card) verifyReply(rep cardReply) bool {
	fields := map[string]string{
		"RtnCode":         strconv.Itoa(rep.RtnCode),
		"RtnMsg":          rep.RtnMsg,
		"TradeNo":         rep.TradeNo,
		"MerchantTradeNo": rep.MerchantTradeNo,
	}
	return strings.EqualFold(CheckMacValue(fields, c.Config.HashKey, c.Config.HashIV), rep.CheckMacValue)
}

func validateForm(form map[string]string) error {
	const op = "card.form"
	bad := func(field, msg string) error {
		return apperr.New(apperr.KindGatewayConfig, op, field+": "+msg).WithPhase(PhaseValidate, false)
	}
	switch {
	case form["ItemName"] == "":
		return bad("ItemName", "order has no items")
	case len(form["ItemName"]) > maxItemName:
		return bad("ItemName", "too long")
	case len(form["TradeDesc"]) > maxTradeDesc:
		return bad("TradeDesc", "too long")
	case len(form["MerchantTradeNo"]) > MaxTradeNoLen:
		return bad("MerchantTradeNo", "too long")
	}
	return nil
}

// itemName lists lines as "name xqty" separated by '#', the provider's line separator.
func itemName(items []orders.OrderItem) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		name := it.Name
		if name == "" {
			name = it.MenuItemID
		}
		parts = append(parts, name+" x"+strconv.Itoa(it.Quantity))
	}
	return strings.Join(parts, "#")
}
