package motor

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/fieldctl/fieldbus/pkg/log"
)

// frameIDMask is the 29-bit extended CAN arbitration ID mask §6 specifies
// ("cob_id & 0x1FFF_FFFF") applied to every received frame.
const frameIDMask = 0x1FFF_FFFF

// maxFrameData is the classic (non-FD) CAN frame payload limit.
const maxFrameData = 8

// CANEndpoint is the raw CAN-frame transport §4.2 specifies: send one frame
// by (cob_id, payload, flags), and fan out every received frame -- masked
// cob_id, payload, and a kernel-attached receive timestamp rather than a
// user-space read time -- to every reader registered via AddReader, in
// registration order. Grounded on original_source's canbus.py CANSocket
// (send/recv/readers). A real implementation binds a SocketCAN raw socket
// (SocketCANEndpoint); FakeCANBus stands in for one under test and in the
// absence of real hardware.
type CANEndpoint interface {
	Send(cobID uint32, payload []byte, flags uint32) error
	AddReader(fn func(cobID uint32, payload []byte, recvStamp time.Time))
}

// Magic numbers below are held as local constants rather than referenced
// from golang.org/x/sys/unix's platform constant tables, mirroring
// canbus.py's own practice of hardcoding SIOCGSTAMP with a comment pointing
// at its kernel header origin.
const (
	afCAN          = 29     // AF_CAN, include/linux/socket.h
	canRawProtocol = 1      // CAN_RAW, include/linux/can.h
	sizeofCANFrame = 16     // classic (non-FD) struct can_frame
	siocgstamp     = 0x8906 // SIOCGSTAMP ioctl, see canbus.py's get_socketcan_timestamp
)

// SocketCANEndpoint binds a Linux SocketCAN raw socket and fans out every
// received frame to its registered readers on a dedicated goroutine.
// Grounded on original_source's canbus.py CANSocket: a 16-byte classic
// can_frame (4-byte cob_id, 1-byte length, 3 bytes padding, 8 bytes data)
// and a SIOCGSTAMP ioctl for the kernel receive timestamp in place of the
// user-space read time.
type SocketCANEndpoint struct {
	fd      int
	readers []func(cobID uint32, payload []byte, recvStamp time.Time)
}

// NewSocketCANEndpoint binds iface (e.g. "can0") and starts its receive
// loop. The real-hardware transport itself is out of scope for this
// module (spec §1); this exists so the byte-in/byte-out contract §4.2
// specifies has a concrete binding rather than only a fake.
func NewSocketCANEndpoint(iface string) (*SocketCANEndpoint, error) {
	fd, err := unix.Socket(afCAN, unix.SOCK_RAW, canRawProtocol)
	if err != nil {
		return nil, fmt.Errorf("opening CAN socket: %w", err)
	}
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("resolving CAN interface %q: %w", iface, err)
	}
	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: ifi.Index}); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("binding CAN socket to %q: %w", iface, err)
	}

	e := &SocketCANEndpoint{fd: fd}
	go e.recvLoop()
	return e, nil
}

// AddReader registers fn to be invoked, in registration order, for every
// frame received. The receive goroutine is already running once
// NewSocketCANEndpoint returns and the reader list is not synchronized, so
// register all readers immediately after construction; frames received
// before a reader is added are not delivered to it.
func (e *SocketCANEndpoint) AddReader(fn func(cobID uint32, payload []byte, recvStamp time.Time)) {
	e.readers = append(e.readers, fn)
}

// Send writes one classic CAN frame.
func (e *SocketCANEndpoint) Send(cobID uint32, payload []byte, flags uint32) error {
	if len(payload) > maxFrameData {
		return fmt.Errorf("CAN payload exceeds %d bytes", maxFrameData)
	}
	frame := make([]byte, sizeofCANFrame)
	binary.LittleEndian.PutUint32(frame[0:4], cobID|flags)
	frame[4] = byte(len(payload))
	copy(frame[8:8+len(payload)], payload)
	_, err := unix.Write(e.fd, frame)
	return err
}

func (e *SocketCANEndpoint) recvLoop() {
	logger := log.WithComponent("can")
	buf := make([]byte, sizeofCANFrame)
	for {
		n, err := unix.Read(e.fd, buf)
		if err != nil {
			logger.Warn().Err(err).Msg("CAN read failed, endpoint disabled")
			return
		}
		if n < sizeofCANFrame {
			continue
		}
		recvStamp := e.recvStamp()
		cobID := binary.LittleEndian.Uint32(buf[0:4]) & frameIDMask
		length := int(buf[4])
		if length > maxFrameData {
			length = maxFrameData
		}
		payload := append([]byte(nil), buf[8:8+length]...)
		for _, reader := range e.readers {
			reader(cobID, payload, recvStamp)
		}
	}
}

// recvStamp reads the kernel-attached per-frame receive timestamp via the
// same SIOCGSTAMP ioctl canbus.py's get_socketcan_timestamp uses, falling
// back to the user-space read time only if the ioctl itself fails.
func (e *SocketCANEndpoint) recvStamp() time.Time {
	var tv unix.Timeval
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(e.fd), uintptr(siocgstamp), uintptr(unsafe.Pointer(&tv)))
	if errno != 0 {
		return time.Now()
	}
	return time.Unix(tv.Sec, int64(tv.Usec)*1000)
}

// Close releases the underlying socket.
func (e *SocketCANEndpoint) Close() error {
	return unix.Close(e.fd)
}
