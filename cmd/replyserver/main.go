package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/rotatingbox/internal/logger"
	"github.com/bryanchriswhite/rotatingbox/internal/messaging"
)

var (
	endpoint string
	reply    string
	delay    time.Duration
	mute     bool
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "replyserver",
	Short: "Answer every request with a fixed reply",
	Long: `replyserver binds a REP socket and answers each request from rotatingbox.

--delay slows every reply, which slows the cube. --mute receives requests
without ever answering, which freezes it.`,
	Example: `  replyserver --endpoint tcp://*:5555
  replyserver --delay 100ms
  replyserver --mute`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&endpoint, "endpoint", "tcp://*:5555", "endpoint to bind")
	rootCmd.Flags().StringVar(&reply, "reply", string(messaging.Reply), "reply payload")
	rootCmd.Flags().DurationVar(&delay, "delay", 0, "delay before each reply")
	rootCmd.Flags().BoolVar(&mute, "mute", false, "never reply")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

func run(cmd *cobra.Command, args []string) error {
	logger.Init(logger.Options{Level: logLevel, Pretty: true})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := messaging.NewResponder(messaging.ResponderOptions{
		Reply: []byte(reply),
		Delay: delay,
		Mute:  mute,
	})
	if err := r.Listen(ctx, endpoint); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- r.Serve() }()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
		r.Close()
		return <-done
	case err := <-done:
		r.Close()
		return err
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
