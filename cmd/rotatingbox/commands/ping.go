package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/rotatingbox/internal/messaging"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Exchange greetings with the reply server",
	Long: `Send the frame loop's greeting to the reply server and print each reply
with its round trip time. Useful to check a peer before running.`,
	Example: `  # Four exchanges against the configured endpoint
  rotatingbox ping

  # Ten exchanges, giving up on each after 500ms
  rotatingbox ping --endpoint tcp://10.0.0.2:5555 -n 10 --timeout 500ms`,
	RunE: runPing,
}

var (
	pingCount   int
	pingTimeout time.Duration
	pingPause   time.Duration
)

func init() {
	rootCmd.AddCommand(pingCmd)

	pingCmd.Flags().IntVarP(&pingCount, "count", "n", 4, "number of exchanges")
	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", 2*time.Second, "per-exchange timeout (0 waits forever)")
	pingCmd.Flags().DurationVar(&pingPause, "interval", 200*time.Millisecond, "pause between exchanges")
}

func runPing(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client := messaging.NewClient(messaging.Options{DialRetry: cfg.Messaging.DialRetry})
	if _, err := client.Open(context.Background(), cfg.Messaging.Endpoint); err != nil {
		return err
	}
	defer client.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "PING %s (%d bytes)\n", cfg.Messaging.Endpoint, len(messaging.Greeting))

	failed := 0
	for i := 1; i <= pingCount; i++ {
		start := time.Now()
		res := client.ExchangeTimeout(messaging.Greeting, pingTimeout)
		rtt := time.Since(start)

		if res.OK() {
			fmt.Fprintf(out, "%d: reply %q time=%v\n", i, res.Reply, rtt.Round(time.Microsecond))
		} else {
			failed++
			fmt.Fprintf(out, "%d: %v\n", i, res.Err)
		}
		if i < pingCount {
			time.Sleep(pingPause)
		}
	}

	fmt.Fprintf(out, "%d exchanges, %d failed\n", pingCount, failed)
	if failed == pingCount {
		return fmt.Errorf("no replies from %s", cfg.Messaging.Endpoint)
	}
	return nil
}
