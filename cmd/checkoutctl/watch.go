package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ariefcatur/go-table-checkout/internal/apiclient"
	"github.com/ariefcatur/go-table-checkout/internal/logx"
	"github.com/ariefcatur/go-table-checkout/internal/syncpoll"
	"github.com/spf13/cobra"
)

// changePrinter writes each observed status change as a JSON line.
type changePrinter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newChangePrinter(w io.Writer) *changePrinter {
	return &changePrinter{enc: json.NewEncoder(w)}
}

func (p *changePrinter) Observe(_ context.Context, c syncpoll.Change) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.enc.Encode(c)
}

func watchCmd(a *app) *cobra.Command {
	var customer, order, staff string
	var overview bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll orders and print status changes until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if customer == "" && order == "" && staff == "" && !overview {
				return errors.New("one of --customer, --order, --staff or --overview is required")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logx.New("checkoutctl", a.cfg.LogLevel)
			views := &syncpoll.Views{
				Source:           apiclient.New(a.cfg.Backend, log),
				Observer:         newChangePrinter(cmd.OutOrStdout()),
				CustomerInterval: a.cfg.Polling.CustomerInterval,
				StaffInterval:    a.cfg.Polling.StaffInterval,
				Log:              log,
			}
			defer views.CloseAll()

			if customer != "" {
				views.OpenCustomer(ctx, customer)
			}
			if order != "" {
				views.OpenOrder(ctx, order)
			}
			if staff != "" || overview {
				views.OpenStaff(ctx, staff)
			}
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&customer, "customer", "", "Customer id whose orders to watch")
	cmd.Flags().StringVar(&order, "order", "", "Single order id to watch")
	cmd.Flags().StringVar(&staff, "staff", "", "Staff id whose dashboard to watch")
	cmd.Flags().BoolVar(&overview, "overview", false, "Watch the staff overview only")
	return cmd
}
