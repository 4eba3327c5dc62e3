/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/homefinder/apiserver/config"
	"github.com/homefinder/apiserver/internal/mq"
	"github.com/homefinder/apiserver/internal/notify"
	"github.com/spf13/cobra"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Inspect account notifications",
}

// notifyTailCmd prints confirmation and reset links as they are published.
// Useful in development where no mailer consumes the channel.
var notifyTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print notifications from the configured broker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := newLogger(cfg.LogLevel)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		backend, err := mq.Open(ctx, cfg.Notify)
		if err != nil {
			return err
		}
		if backend == nil {
			return errors.New("NOTIFY_BACKEND is none; nothing to tail")
		}
		defer backend.Close()

		logger.Info("tailing notifications", "backend", cfg.Notify.Backend, "channel", cfg.Notify.Channel)
		err = notify.Tail(ctx, backend, cfg.Notify.Channel, func(event notify.Event) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s <%s>\t%s\n", event.Kind, event.Name, event.Email, event.Link)
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(notifyCmd)
	notifyCmd.AddCommand(notifyTailCmd)
}
