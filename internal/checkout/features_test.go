package checkout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/ariefcatur/go-table-checkout/internal/apperr"
	"github.com/ariefcatur/go-table-checkout/internal/cart"
	"github.com/ariefcatur/go-table-checkout/internal/orders"
	"github.com/ariefcatur/go-table-checkout/internal/payments"
	"github.com/cucumber/godog"
)

type checkoutFeature struct {
	backend *fakeBackend
	card    *scriptedGateway
	wallet  *scriptedGateway
	events  *recordingPublisher
	sess    *cart.Session
	o       *Orchestrator

	orderID   string
	err       error
	secondErr error
	actionErr error
	cancelled orders.Order
}

func (f *checkoutFeature) reset() error {
	f.backend = newFakeBackend()
	f.card = &scriptedGateway{method: orders.MethodCard}
	f.wallet = &scriptedGateway{method: orders.MethodWallet}
	f.events = &recordingPublisher{}
	sess, err := cart.Open(context.Background(), cart.NewMemoryStore(), "feature-session")
	if err != nil {
		return err
	}
	f.sess = sess
	f.o = &Orchestrator{
		API:      f.backend,
		Gateways: payments.NewRegistry(payments.Cash{}, f.card, f.wallet),
		Cart:     sess,
		Guard:    NewMemoryGuard(),
		Events:   f.events,
	}
	f.orderID, f.err, f.secondErr, f.actionErr = "", nil, nil, nil
	return nil
}

func (f *checkoutFeature) aCartForTableWith(table string, rows *godog.Table) error {
	if err := f.sess.Cart.SetTable(table); err != nil {
		return err
	}
	for _, row := range rows.Rows[1:] {
		price, err := strconv.ParseInt(row.Cells[1].Value, 10, 64)
		if err != nil {
			return err
		}
		qty, err := strconv.Atoi(row.Cells[2].Value)
		if err != nil {
			return err
		}
		if err := f.sess.Cart.Add(orders.CartItem{MenuItemID: row.Cells[0].Value, UnitPrice: price, Quantity: qty}); err != nil {
			return err
		}
	}
	return nil
}

func (f *checkoutFeature) theCartTotalsAre(sub, tax, svc, total int) error {
	t, err := f.sess.Cart.Totals()
	if err != nil {
		return err
	}
	want := cart.Totals{Subtotal: int64(sub), Tax: int64(tax), ServiceCharge: int64(svc), TotalAmount: int64(total), ItemCount: t.ItemCount}
	if t != want {
		return fmt.Errorf("totals %+v, want %+v", t, want)
	}
	return nil
}

func (f *checkoutFeature) theCardGatewayDeclinesTheNextAttempt() error {
	f.card.errs = append(f.card.errs, apperr.New(apperr.KindGatewayDeclined, "card.process", "declined").WithPhase(payments.PhaseAuthorize, true))
	return nil
}

func (f *checkoutFeature) theWalletLeavesReservationUnconfirmed(txid string) error {
	f.wallet.errs = append(f.wallet.errs,
		apperr.New(apperr.KindAmbiguousPending, "wallet.process", "confirm failed").WithPhase(payments.PhaseConfirm, false).WithRef(txid))
	return nil
}

func (f *checkoutFeature) theCustomerChecksOutWith(method string) error {
	f.orderID, f.err = f.o.Submit(context.Background(), f.sess.Cart.Draft(orders.PaymentMethod(method), ""))
	return nil
}

func (f *checkoutFeature) theCustomerRetriesPaymentWith(method string) error {
	f.orderID, f.err = f.o.RetryPayment(context.Background(), orders.PaymentMethod(method))
	return nil
}

func (f *checkoutFeature) theCustomerSubmitsTwice() error {
	f.backend.gate = make(chan struct{})
	f.backend.entered = make(chan struct{}, 1)
	draft := f.sess.Cart.Draft(orders.MethodCash, "")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.orderID, f.err = f.o.Submit(context.Background(), draft)
	}()
	<-f.backend.entered
	_, f.secondErr = f.o.Submit(context.Background(), draft)
	close(f.backend.gate)
	wg.Wait()
	return nil
}

func (f *checkoutFeature) theCheckoutSucceeds() error {
	if f.err != nil {
		return fmt.Errorf("checkout failed: %w", f.err)
	}
	if f.orderID == "" {
		return errors.New("no order id returned")
	}
	return nil
}

func kindOf(err error) string {
	var ce *CheckoutError
	if errors.As(err, &ce) {
		return ce.Kind.String()
	}
	return apperr.KindOf(err).String()
}

func (f *checkoutFeature) theCheckoutFailsWith(kind string) error {
	if f.err == nil {
		return errors.New("checkout succeeded")
	}
	if got := kindOf(f.err); got != kind {
		return fmt.Errorf("kind %s, want %s (%v)", got, kind, f.err)
	}
	return nil
}

func (f *checkoutFeature) theSecondSubmitFailsWith(kind string) error {
	if got := kindOf(f.secondErr); got != kind {
		return fmt.Errorf("second submit kind %s, want %s", got, kind)
	}
	return nil
}

func (f *checkoutFeature) theErrorCarriesTheOrderID() error {
	var ce *CheckoutError
	if !errors.As(f.err, &ce) || ce.OrderID == "" {
		return fmt.Errorf("no order id on %v", f.err)
	}
	return nil
}

func (f *checkoutFeature) exactlyOrdersWereCreated(n int) error {
	if got, _, _ := f.backend.counts(); got != n {
		return fmt.Errorf("%d orders created, want %d", got, n)
	}
	return nil
}

func (f *checkoutFeature) thePaymentIs(status string) error {
	p := f.o.Snapshot().Payment
	if p == nil {
		return errors.New("no payment recorded")
	}
	if string(p.Status) != status {
		return fmt.Errorf("payment %s, want %s", p.Status, status)
	}
	return nil
}

func (f *checkoutFeature) theOrderStatusIs(status string) error {
	var ce *CheckoutError
	if !errors.As(f.err, &ce) {
		return errors.New("no failed checkout to inspect")
	}
	o, err := f.backend.GetOrder(context.Background(), ce.OrderID)
	if err != nil {
		return err
	}
	if string(o.Status) != status {
		return fmt.Errorf("order %s, want %s", o.Status, status)
	}
	return nil
}

func (f *checkoutFeature) theCartIsEmpty() error {
	if n := f.sess.Cart.Len(); n != 0 {
		return fmt.Errorf("cart has %d lines", n)
	}
	return nil
}

func (f *checkoutFeature) theCartStillHasLines(n int) error {
	if got := f.sess.Cart.Len(); got != n {
		return fmt.Errorf("cart has %d lines, want %d", got, n)
	}
	return nil
}

func (f *checkoutFeature) noCardGatewayCallWasMade() error {
	if n := f.card.callCount(); n != 0 {
		return fmt.Errorf("card gateway called %d times", n)
	}
	return nil
}

func (f *checkoutFeature) theCustomerStaysOnTheStep(step string) error {
	var ce *CheckoutError
	if !errors.As(f.err, &ce) {
		return errors.New("no checkout error")
	}
	if ce.Step() != step {
		return fmt.Errorf("step %s, want %s", ce.Step(), step)
	}
	return nil
}

func (f *checkoutFeature) anEventWasPublished(eventType string) error {
	for _, t := range f.events.types() {
		if t == eventType {
			return nil
		}
	}
	return fmt.Errorf("no %s event in %v", eventType, f.events.types())
}

func (f *checkoutFeature) anOrderInStatus(id, status string) error {
	s, err := orders.ParseStatus(status)
	if err != nil {
		return err
	}
	f.backend.put(orders.Order{ID: id, Status: s})
	return nil
}

func (f *checkoutFeature) staffCancelOrder(id string) error {
	f.cancelled, f.actionErr = CancelOrder(context.Background(), f.backend, id, "staff request")
	return nil
}

func (f *checkoutFeature) theCancellationOutcomeIs(outcome string) error {
	if f.actionErr != nil {
		if got := apperr.KindOf(f.actionErr).String(); got != outcome {
			return fmt.Errorf("cancel failed with %s, want %s", got, outcome)
		}
		return nil
	}
	if string(f.cancelled.Status) != outcome {
		return fmt.Errorf("status %s, want %s", f.cancelled.Status, outcome)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	f := &checkoutFeature{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		return ctx, f.reset()
	})

	ctx.Step(`^a cart for table "([^"]*)" with:$`, f.aCartForTableWith)
	ctx.Step(`^the card gateway declines the next attempt$`, f.theCardGatewayDeclinesTheNextAttempt)
	ctx.Step(`^the wallet leaves reservation "([^"]*)" unconfirmed$`, f.theWalletLeavesReservationUnconfirmed)
	ctx.Step(`^an order "([^"]*)" in status "([^"]*)"$`, f.anOrderInStatus)

	ctx.Step(`^the customer checks out with "([^"]*)"$`, f.theCustomerChecksOutWith)
	ctx.Step(`^the customer retries payment with "([^"]*)"$`, f.theCustomerRetriesPaymentWith)
	ctx.Step(`^the customer submits twice before the first finishes$`, f.theCustomerSubmitsTwice)
	ctx.Step(`^staff cancel order "([^"]*)"$`, f.staffCancelOrder)

	ctx.Step(`^the cart totals are subtotal (\d+), tax (\d+), service charge (\d+) and total (\d+)$`, f.theCartTotalsAre)
	ctx.Step(`^the checkout succeeds$`, f.theCheckoutSucceeds)
	ctx.Step(`^the checkout fails with "([^"]*)"$`, f.theCheckoutFailsWith)
	ctx.Step(`^the second submit fails with "([^"]*)"$`, f.theSecondSubmitFailsWith)
	ctx.Step(`^the error carries the order id$`, f.theErrorCarriesTheOrderID)
	ctx.Step(`^exactly (\d+) orders? (?:was|were) created$`, f.exactlyOrdersWereCreated)
	ctx.Step(`^the payment is "([^"]*)"$`, f.thePaymentIs)
	ctx.Step(`^the order status is "([^"]*)"$`, f.theOrderStatusIs)
	ctx.Step(`^the cart is empty$`, f.theCartIsEmpty)
	ctx.Step(`^the cart still has (\d+) lines$`, f.theCartStillHasLines)
	ctx.Step(`^no card gateway call was made$`, f.noCardGatewayCallWasMade)
	ctx.Step(`^the customer stays on the "([^"]*)" step$`, f.theCustomerStaysOnTheStep)
	ctx.Step(`^a "([^"]*)" event was published$`, f.anEventWasPublished)
	ctx.Step(`^the cancellation outcome is "([^"]*)"$`, f.theCancellationOutcomeIs)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
