// Package main provides the entry point for the agentflowd daemon: the HTTP
// API plus the executor tick loop, wired through internal/app.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vfirsov/agentflow/internal/app"
	"github.com/vfirsov/agentflow/internal/config"
)

var v = viper.New()

var rootCmd = &cobra.Command{
	Use:   "agentflowd",
	Short: "agentflowd runs the agentflow execution core and its HTTP API.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(v)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		instance, err := app.Build(ctx, cfg)
		if err != nil {
			return fmt.Errorf("building app: %w", err)
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			cancel()
		}()

		return instance.Run(ctx)
	},
}

func init() {
	if err := config.BindFlags(v, rootCmd.PersistentFlags()); err != nil {
		panic(err)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
