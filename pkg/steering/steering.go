// Package steering implements the consumer side of steering commands: a
// lockout gate that reads the latest published steering event from
// the bus and decides whether the control loop may act on it.
package steering

import (
	"math"
	"time"

	"github.com/fieldctl/fieldbus/pkg/bus"
	"github.com/fieldctl/fieldbus/pkg/log"
	"github.com/fieldctl/fieldbus/pkg/wire"
)

const (
	eventName = "steering"

	// staleAfter is how long a steering event may go unrefreshed before the
	// client locks out and substitutes the stop command.
	staleAfter = 1 * time.Second

	// motionEpsilon is the "effectively zero" threshold a freshly-unlocked
	// client requires of both velocity and angular velocity before it will
	// trust a non-zero command.
	motionEpsilon = 0.01
)

// StopCommand returns the canonical hard-stop steering command: zero
// deadman, full brake, zero velocity.
func StopCommand() wire.SteeringCommand {
	return wire.SteeringCommand{
		Mode:            wire.ModeUnspecified,
		Deadman:         0.0,
		Brake:           1.0,
		Velocity:        0.0,
		AngularVelocity: 0.0,
	}
}

// Client reads steering events from a bus and enforces the lockout
// invariant: a client that starts locked out, or that has gone stale, only
// unlocks once it observes a command that is itself at rest. This closes
// the "an unattended tractor does not lurch the instant a new steering
// source reattaches with a stale nonzero command queued" hole.
type Client struct {
	eventBus *bus.Bus
	lockout  bool
}

// NewClient subscribes to steering commands on eventBus and returns a
// Client starting in the locked-out state.
func NewClient(eventBus *bus.Bus) *Client {
	eventBus.AddSubscriptions([]string{eventName})
	return &Client{eventBus: eventBus, lockout: true}
}

// Locked reports whether the client is currently in the locked-out state.
func (c *Client) Locked() bool { return c.lockout }

// Command returns the command the control loop should act on this tick:
// either the latest published steering command, or the stop command if no
// event has ever been published, the event has gone stale, or the client
// is still waiting for a command at rest to clear lockout.
func (c *Client) Command() wire.SteeringCommand {
	logger := log.WithEventName(eventName)

	event, ok, err := c.eventBus.GetLastEvent(eventName)
	if err != nil {
		logger.Error().Err(err).Msg("steering client has no declared subscription")
		c.lockout = true
		return StopCommand()
	}
	if !ok {
		c.lockout = true
		return StopCommand()
	}

	age := time.Since(event.RecvStamp)
	if age > staleAfter {
		logger.Warn().Dur("age", age).Msg("steering lock out due to long time since last event")
		c.lockout = true
		return StopCommand()
	}

	cmd, err := wire.UnmarshalSteeringCommand(event.Data.Value)
	if err != nil {
		logger.Warn().Err(err).Msg("dropping malformed steering command")
		c.lockout = true
		return StopCommand()
	}

	if c.lockout {
		if math.Abs(cmd.Velocity) > motionEpsilon || math.Abs(cmd.AngularVelocity) > motionEpsilon {
			return StopCommand()
		}
		c.lockout = false
	}

	return cmd
}
