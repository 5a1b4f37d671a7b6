package main

import (
	"fmt"
	"time"

	"github.com/ariefcatur/go-table-checkout/internal/apiclient"
	"github.com/ariefcatur/go-table-checkout/internal/logx"
	"github.com/ariefcatur/go-table-checkout/internal/orders"
	"github.com/ariefcatur/go-table-checkout/internal/payments"
	"github.com/ariefcatur/go-table-checkout/internal/postgres"
	"github.com/ariefcatur/go-table-checkout/internal/reconcile"
	"github.com/spf13/cobra"
)

func reconcileCmd(a *app) *cobra.Command {
	var paymentID, transactionID string
	var sweepAge time.Duration
	cmd := &cobra.Command{
		Use:   "reconcile [ORDER_ID]",
		Short: "Settle a pending wallet reservation, or sweep all stale ones",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && sweepAge == 0 {
				return fmt.Errorf("give an ORDER_ID or --sweep")
			}
			ctx := cmd.Context()
			log := logx.New("checkoutctl", a.cfg.LogLevel)

			db, err := postgres.Connect(ctx, a.cfg.PostgresDSN, postgres.Options{MaxConns: 2})
			if err != nil {
				return fmt.Errorf("db connect: %w", err)
			}
			defer db.Close()

			journal := &payments.PgJournal{DB: db}
			svc := &reconcile.Service{
				Reconciler: &payments.Wallet{Config: a.cfg.Wallet, Journal: journal, Log: log},
				Journal:    journal,
				Backend:    apiclient.New(a.cfg.Backend, log),
				Name:       "checkoutctl",
				Log:        log,
			}

			if len(args) == 0 {
				n, err := svc.Sweep(ctx, sweepAge)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "settled %d reservation(s)\n", n)
				return nil
			}
			outcome, err := svc.Settle(ctx, orders.ReservationPendingPayload{
				OrderID:       args[0],
				PaymentID:     paymentID,
				TransactionID: transactionID,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", args[0], outcome)
			return nil
		},
	}
	cmd.Flags().StringVar(&paymentID, "payment-id", "", "Backend payment to confirm once captured")
	cmd.Flags().StringVar(&transactionID, "transaction-id", "", "Reservation transaction id, used when the journal entry is already closed")
	cmd.Flags().DurationVar(&sweepAge, "sweep", 0, "Settle every open reservation older than this")
	return cmd
}
