package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fieldctl/fieldbus/pkg/bus"
)

var watchCmd = &cobra.Command{
	Use:   "watch <pattern>",
	Short: "Subscribe to an event name pattern and print every matching event",
	Long: `watch declares a subscription to pattern (an unanchored regular
expression, per §4.4's matching semantics) and prints every event observed
on an EventQueue until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	pattern := args[0]
	busName, _ := cmd.Flags().GetString("bus-name")
	multicastAddr, _ := cmd.Flags().GetString("multicast-addr")

	eventBus, err := bus.New(busName, bus.Config{MulticastAddr: multicastAddr})
	if err != nil {
		return fmt.Errorf("constructing event bus: %w", err)
	}
	eventBus.AddSubscriptions([]string{pattern})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = eventBus.Run(ctx) }()

	q := eventBus.EventQueue()
	defer q.Release()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	fmt.Printf("watching %q; Ctrl+C to stop.\n", pattern)
	for {
		select {
		case <-sigCh:
			return nil
		case e := <-q.C:
			fmt.Printf("%s  name=%-30s type=%-20s bytes=%d\n", e.RecvStamp.Format("15:04:05.000"), e.Name, e.Data.TypeURL, len(e.Data.Value))
		}
	}
}
