package main

import (
	"encoding/json"

	"github.com/ariefcatur/go-table-checkout/internal/apiclient"
	"github.com/ariefcatur/go-table-checkout/internal/checkout"
	"github.com/ariefcatur/go-table-checkout/internal/logx"
	"github.com/ariefcatur/go-table-checkout/internal/orders"
	"github.com/spf13/cobra"
)

func cancelCmd(a *app) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel ORDER_ID",
		Short: "Cancel an order that has not started preparation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api := apiclient.New(a.cfg.Backend, logx.New("checkoutctl", a.cfg.LogLevel))
			o, err := checkout.CancelOrder(cmd.Context(), api, args[0], reason)
			if err != nil {
				return err
			}
			return printJSON(cmd, o)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "cancelled by operator", "Reason recorded with the cancellation")
	return cmd
}

func advanceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "advance ORDER_ID STATUS",
		Short: "Move an order to its next kitchen status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := orders.ParseStatus(args[1])
			if err != nil {
				return err
			}
			api := apiclient.New(a.cfg.Backend, logx.New("checkoutctl", a.cfg.LogLevel))
			o, err := checkout.AdvanceStatus(cmd.Context(), api, args[0], to)
			if err != nil {
				return err
			}
			return printJSON(cmd, o)
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
