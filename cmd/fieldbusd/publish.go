package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldctl/fieldbus/pkg/bus"
	"github.com/fieldctl/fieldbus/pkg/wire"
)

var publishCmd = &cobra.Command{
	Use:   "publish <name> <text>",
	Short: "Publish one event on the bus",
	Long: `publish sends a single event with an opaque "text/plain" payload. It
is a manual exerciser for the bus's subscription-gated send path (§4.4), not
a way to construct typed messages like SteeringCommand — use it to confirm
a peer is subscribed and reachable, not to drive the control loop.`,
	Args: cobra.ExactArgs(2),
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().Duration("announce-wait", 2*time.Second, "How long to wait for peers to be discovered before sending")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	name, text := args[0], args[1]
	wait, _ := cmd.Flags().GetDuration("announce-wait")
	busName, _ := cmd.Flags().GetString("bus-name")
	multicastAddr, _ := cmd.Flags().GetString("multicast-addr")

	eventBus, err := bus.New(busName, bus.Config{MulticastAddr: multicastAddr})
	if err != nil {
		return fmt.Errorf("constructing event bus: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = eventBus.Run(ctx) }()

	time.Sleep(wait)

	eventBus.Send(wire.Event{
		Name:      name,
		SendStamp: time.Now(),
		Data:      wire.Payload{TypeURL: "text/plain", Value: []byte(text)},
	})
	fmt.Printf("published %q (%d bytes); %d peer(s) in table\n", name, len(text), len(eventBus.Peers()))
	return nil
}
