package motor

// commandRecord captures one command issued to a node, for test assertions.
type commandRecord struct {
	nodeID uint32
	kind   string
	value  float64
}

// FakeMotorDriver records every command it receives and lets a test script
// feed back whatever telemetry it wants via Motor.OnTelemetry, replacing the
// real ODriveBus/CAN round trip. It implements MotorDriver directly,
// bypassing CAN-frame encoding entirely -- useful when a test only cares
// about the commands Motor issues, not their wire representation.
type FakeMotorDriver struct {
	commands []commandRecord
	errs     map[uint32]error
}

// NewFakeMotorDriver constructs a driver with no injected errors.
func NewFakeMotorDriver() *FakeMotorDriver {
	return &FakeMotorDriver{errs: make(map[uint32]error)}
}

// FailNode makes every subsequent call touching nodeID return err.
func (f *FakeMotorDriver) FailNode(nodeID uint32, err error) {
	f.errs[nodeID] = err
}

func (f *FakeMotorDriver) SetVelocityCommand(nodeID uint32, turnsPerSecond float64) error {
	if err := f.errs[nodeID]; err != nil {
		return err
	}
	f.commands = append(f.commands, commandRecord{nodeID: nodeID, kind: "velocity", value: turnsPerSecond})
	return nil
}

func (f *FakeMotorDriver) SetBrakeCurrent(nodeID uint32, amps float64) error {
	if err := f.errs[nodeID]; err != nil {
		return err
	}
	f.commands = append(f.commands, commandRecord{nodeID: nodeID, kind: "brake", value: amps})
	return nil
}

func (f *FakeMotorDriver) ClearErrors(nodeID uint32) error {
	if err := f.errs[nodeID]; err != nil {
		return err
	}
	f.commands = append(f.commands, commandRecord{nodeID: nodeID, kind: "clear_errors"})
	return nil
}

func (f *FakeMotorDriver) SetClosedLoopControl(nodeID uint32) error {
	if err := f.errs[nodeID]; err != nil {
		return err
	}
	f.commands = append(f.commands, commandRecord{nodeID: nodeID, kind: "closed_loop"})
	return nil
}

// LastCommand returns the most recent command issued to nodeID, if any.
func (f *FakeMotorDriver) LastCommand(nodeID uint32) (kind string, value float64, ok bool) {
	for i := len(f.commands) - 1; i >= 0; i-- {
		if f.commands[i].nodeID == nodeID {
			return f.commands[i].kind, f.commands[i].value, true
		}
	}
	return "", 0, false
}
