package steerinput

import (
	"context"
	"time"

	"github.com/fieldctl/fieldbus/pkg/bus"
	"github.com/fieldctl/fieldbus/pkg/log"
	"github.com/fieldctl/fieldbus/pkg/timer"
	"github.com/fieldctl/fieldbus/pkg/wire"
)

const eventName = "steering"

// Sender publishes a steering event every tick, switching between
// manual and cruise-control generators the way a human toggles cruise
// control on and off with the dpad: touching the dpad axes engages cruise
// control, carrying over the manual generator's last velocity so the
// handoff doesn't jerk; a dedicated "cancel" button returns to manual.
type Sender struct {
	eventBus *bus.Bus
	rateHz   float64
	inputs   Inputs

	manual       *ManualSteering
	cruise       *CruiseControlSteering
	cruiseActive bool
}

// NewSender constructs a steering sender publishing on eventBus at rateHz,
// reading axes/buttons through in.
func NewSender(eventBus *bus.Bus, rateHz float64, in Inputs) *Sender {
	s := &Sender{
		eventBus: eventBus,
		rateHz:   rateHz,
		inputs:   in,
		manual:   NewManualSteering(rateHz),
		cruise:   NewCruiseControlSteering(rateHz),
	}
	s.Stop()
	return s
}

// Stop disengages cruise control and resets both generators to rest.
func (s *Sender) Stop() {
	s.cruiseActive = false
	s.manual.Stop()
	s.cruise.Stop()
}

func (s *Sender) startCruiseControl() {
	if !s.cruiseActive {
		s.cruise.command.Velocity = s.manual.command.Velocity
		s.cruise.command.AngularVelocity = s.manual.command.AngularVelocity
	}
	s.cruiseActive = true
}

// OnButton handles a button-edge notification: a "cancel" press returns to
// manual steering; a dpad press (reported as "hat0x"/"hat0y") engages
// cruise control.
func (s *Sender) OnButton(button string, pressed bool) {
	if button == "cancel" && pressed {
		s.Stop()
	}
	if (button == "hat0x" || button == "hat0y") && pressed {
		s.startCruiseControl()
	}
}

// Tick produces and publishes this period's steering command. nPeriods is
// the missed-tick count reported by the driving timer.Periodic; a large
// gap (more than one second's worth of ticks) is treated as a lost
// connection to the input source and forces a stop before resuming.
func (s *Sender) Tick(nPeriods int) {
	if float64(nPeriods) > s.rateHz {
		s.Stop()
	}

	if s.cruise.AxisActive(s.inputs) {
		s.startCruiseControl()
	}

	var cmd wire.SteeringCommand
	if s.cruiseActive {
		cmd = s.cruise.Update(s.inputs)
	} else {
		cmd = s.manual.Update(s.inputs)
	}

	s.eventBus.Send(wire.Event{
		Name: eventName,
		Data: wire.Payload{TypeURL: "SteeringCommand", Value: cmd.Marshal()},
	})
}

// Run drives Tick at 1/rateHz on the bus's dispatch goroutine until ctx is
// cancelled.
func (s *Sender) Run(ctx context.Context) {
	period := time.Duration(float64(time.Second) / s.rateHz)
	t := timer.New(period, "steering-sender", s.Tick, s.eventBus.Dispatch)
	logger := log.WithComponent("steerinput")
	logger.Info().Float64("rate_hz", s.rateHz).Msg("starting steering sender")
	t.Start(ctx)
}
