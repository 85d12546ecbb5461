package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldctl/fieldbus/pkg/bus"
)

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "Listen for discovery announcements and dump the peer table",
	Long:  `peers joins the discovery multicast group, waits for one announce cycle, and prints every peer it has observed.`,
	RunE:  runPeers,
}

func init() {
	peersCmd.Flags().Duration("wait", 3*time.Second, "How long to listen before printing the peer table")
	rootCmd.AddCommand(peersCmd)
}

func runPeers(cmd *cobra.Command, args []string) error {
	wait, _ := cmd.Flags().GetDuration("wait")
	multicastAddr, _ := cmd.Flags().GetString("multicast-addr")

	eventBus, err := bus.New("fieldbusd-peers", bus.Config{MulticastAddr: multicastAddr})
	if err != nil {
		return fmt.Errorf("constructing event bus: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	go func() { _ = eventBus.Run(ctx) }()

	<-ctx.Done()

	peers := eventBus.Peers()
	if len(peers) == 0 {
		fmt.Println("no peers observed")
		return nil
	}
	for _, p := range peers {
		fmt.Printf("%-20s %s:%d  subs=%d  last_seen=%s\n", p.Service, p.Host, p.Port, len(p.Subscriptions), p.RecvStamp.Format(time.RFC3339))
	}
	return nil
}
