package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ariefcatur/go-table-checkout/internal/cart"
	"github.com/ariefcatur/go-table-checkout/internal/orders"
	"github.com/spf13/cobra"
)

func quoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote ITEM...",
		Short: "Price a cart the way checkout will",
		Long: `Each ITEM is menuItemId:quantity:unitPrice with the price in minor units,
for example burger:2:250 tea:1:80.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items := make([]orders.CartItem, 0, len(args))
			for _, a := range args {
				it, err := parseItem(a)
				if err != nil {
					return err
				}
				items = append(items, it)
			}
			t, err := cart.Calculate(items)
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(t)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "items:          %d\n", t.ItemCount)
			fmt.Fprintf(out, "subtotal:       %d\n", t.Subtotal)
			fmt.Fprintf(out, "tax:            %d\n", t.Tax)
			fmt.Fprintf(out, "service charge: %d\n", t.ServiceCharge)
			fmt.Fprintf(out, "total:          %d\n", t.TotalAmount)
			return nil
		},
	}
	cmd.Flags().BoolP("json", "j", false, "Output as JSON")
	return cmd
}

func parseItem(s string) (orders.CartItem, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return orders.CartItem{}, fmt.Errorf("item %q: want menuItemId:quantity:unitPrice", s)
	}
	qty, err := strconv.Atoi(parts[1])
	if err != nil {
		return orders.CartItem{}, fmt.Errorf("item %q: quantity: %w", s, err)
	}
	price, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return orders.CartItem{}, fmt.Errorf("item %q: price: %w", s, err)
	}
	return orders.CartItem{MenuItemID: parts[0], Quantity: qty, UnitPrice: price}, nil
}
