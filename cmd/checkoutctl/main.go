package main

import (
	"fmt"
	"os"

	"github.com/ariefcatur/go-table-checkout/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type app struct {
	configPath string
	cfg        config.Config
}

func rootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "checkoutctl",
		Short:         "Operator tools for the table checkout service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			path := a.configPath
			if path == "" {
				path = os.Getenv("CHECKOUT_CONFIG")
			}
			cfg, err := config.LoadFile(path)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config file (defaults to $CHECKOUT_CONFIG)")

	root.AddCommand(quoteCmd())
	root.AddCommand(watchCmd(a))
	root.AddCommand(cancelCmd(a))
	root.AddCommand(advanceCmd(a))
	root.AddCommand(reconcileCmd(a))
	return root
}
