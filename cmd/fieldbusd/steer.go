package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fieldctl/fieldbus/pkg/bus"
	"github.com/fieldctl/fieldbus/pkg/steerinput"
)

var steerCmd = &cobra.Command{
	Use:   "steer",
	Short: "Publish a scripted steering intent (manual-mode steering sender)",
	Long: `steer runs a steerinput.Sender against a fixed gas/steer axis pair
instead of a physical joystick, publishing "steering" events at --rate-hz
the same way a joystick-driven sender would. It stands in for the hardware
input path that is out of scope for this module (spec §1): holding the
deadman with the --gas/--steer values held constant demonstrates the
slew-limited command generator end to end.`,
	RunE: runSteer,
}

func init() {
	steerCmd.Flags().Float64("rate-hz", 50, "Publish rate in Hz")
	steerCmd.Flags().Float64("gas", 0, "Fixed gas axis value in [-1, 1]")
	steerCmd.Flags().Float64("steer", 0, "Fixed steer axis value in [-1, 1]")
	steerCmd.Flags().Bool("deadman", true, "Hold the deadman button")
	rootCmd.AddCommand(steerCmd)
}

func runSteer(cmd *cobra.Command, args []string) error {
	rateHz, _ := cmd.Flags().GetFloat64("rate-hz")
	gas, _ := cmd.Flags().GetFloat64("gas")
	steer, _ := cmd.Flags().GetFloat64("steer")
	deadman, _ := cmd.Flags().GetBool("deadman")
	busName, _ := cmd.Flags().GetString("bus-name")
	multicastAddr, _ := cmd.Flags().GetString("multicast-addr")

	eventBus, err := bus.New(busName, bus.Config{MulticastAddr: multicastAddr})
	if err != nil {
		return fmt.Errorf("constructing event bus: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = eventBus.Run(ctx) }()

	in := steerinput.Inputs{
		Axis: func(name string) float64 {
			switch name {
			case "gas":
				return gas
			case "steer":
				return steer
			default:
				return 0
			}
		},
		Button: func(name string) bool {
			return name == "deadman" && deadman
		},
	}

	sender := steerinput.NewSender(eventBus, rateHz, in)
	fmt.Printf("publishing scripted steering at %.0f Hz; Ctrl+C to stop.\n", rateHz)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	sender.Run(ctx)
	return nil
}
