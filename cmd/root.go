package cmd

import (
	"context"

	"github.com/dkrasnoff/flasharb/utils"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "flasharb",
	Short: "A flash loan arbitrage engine for V2-style DEXes",
	Long: `A flash loan arbitrage engine that scans configured venue pairs for
price discrepancies and executes atomic borrow-swap-swap-repay trades
through a flash loan provider.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "flasharb.yaml", "config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func initConfig() {
	utils.InitLogger(debug)
}
