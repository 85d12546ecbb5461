package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldctl/fieldbus/pkg/bus"
	"github.com/fieldctl/fieldbus/pkg/config"
	"github.com/fieldctl/fieldbus/pkg/control"
	"github.com/fieldctl/fieldbus/pkg/log"
	"github.com/fieldctl/fieldbus/pkg/metrics"
	"github.com/fieldctl/fieldbus/pkg/motor"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the event bus and the 50 Hz control loop",
	Long: `run brings up the event bus (multicast discovery plus unicast event
delivery), wires a Controller to it, and blocks until SIGINT/SIGTERM.

The CAN transport itself is out of scope for this module (spec §1). With
--can-iface unset, run drives the control loop against a motor.FakeCANBus
whose loopback mirrors every velocity command straight back as encoder
telemetry, so the bus, discovery, steering lockout, and odometry/goal-servo
math — including CAN telemetry ingestion — are exercised end to end without
a physical tractor attached. With --can-iface set, it binds a real
SocketCAN interface instead.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().String("metrics-addr", "", "Address to serve /metrics on, e.g. :9090 (disabled if empty)")
	runCmd.Flags().String("can-iface", "", "Real SocketCAN interface to bind (e.g. can0); uses a simulated loopback bus if empty")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	busName, _ := cmd.Flags().GetString("bus-name")
	multicastAddr, _ := cmd.Flags().GetString("multicast-addr")
	if multicastAddr == "" {
		multicastAddr = cfg.BusMulticastAddr()
	}
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	canIface, _ := cmd.Flags().GetString("can-iface")

	eventBus, err := bus.New(busName, bus.Config{MulticastAddr: multicastAddr})
	if err != nil {
		return fmt.Errorf("constructing event bus: %w", err)
	}

	rawCAN, err := canEndpoint(canIface)
	if err != nil {
		return fmt.Errorf("constructing CAN endpoint: %w", err)
	}

	// controller is referenced by the telemetry callback before it exists;
	// ODriveBus must be constructed (and register its frame reader) before
	// control.New issues the motor startup sequence over it.
	var controller *control.Controller
	odriveBus := motor.NewODriveBus(rawCAN, func(nodeID uint32, turnsPerSecond float64, recvStamp time.Time) {
		if controller == nil {
			return
		}
		// §5: all motor-state mutation happens on the bus's single
		// dispatch goroutine, the same one the control tick runs on.
		eventBus.Dispatch(func() { controller.OnMotorTelemetry(nodeID, turnsPerSecond, recvStamp) })
	})

	controller, err = control.New(eventBus, odriveBus, cfg.ControlConfig())
	if err != nil {
		return fmt.Errorf("constructing control loop: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- eventBus.Run(ctx) }()
	go controller.Run(ctx)

	if metricsAddr != "" {
		go serveMetrics(metricsAddr)
	}

	fmt.Printf("fieldbusd running as %q; Ctrl+C to stop.\n", busName)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nshutting down...")
	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "\nevent bus stopped: %v\n", err)
		}
	}
	cancel()
	return nil
}

func serveMetrics(addr string) {
	logger := log.WithComponent("fieldbusd")
	logger.Info().Str("addr", addr).Msg("serving /metrics")
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn().Err(err).Msg("metrics server stopped")
	}
}

// canEndpoint binds a real SocketCAN interface if iface is set, otherwise
// a simulated bus whose loopback mirrors commanded velocity back as
// telemetry (motor.PerfectTrackingLoopback) so the CAN ingestion path runs
// in the daemon even without hardware attached.
func canEndpoint(iface string) (motor.CANEndpoint, error) {
	if iface != "" {
		return motor.NewSocketCANEndpoint(iface)
	}
	fake := motor.NewFakeCANBus()
	fake.Loopback = motor.PerfectTrackingLoopback
	return fake, nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}
