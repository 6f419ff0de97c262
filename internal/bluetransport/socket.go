// Package bluetransport implements raw L2CAP sockets on the HID control
// (PSM 17) and interrupt (PSM 19) channels, plus adapter property control
// via BlueZ. SDP record registration lives in controllerprofile.
package bluetransport

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Sentinel transport errors.
var (
	ErrWouldBlock = errors.New("bluetransport: would block")
	ErrPeerClosed = errors.New("bluetransport: peer closed")
)

const (
	// PSMControl and PSMInterrupt are the two L2CAP channels the Switch
	// HID profile uses.
	PSMControl   = 17
	PSMInterrupt = 19
)

// l2capSockaddr mirrors unix.SockaddrL2.
type l2capSockaddr = unix.SockaddrL2

// Socket wraps one raw L2CAP socket (either the control or interrupt
// channel) and normalizes would-block/peer-closed/other-io into the
// sentinel errors above. It never retries internally; the caller decides
// how to respond to each condition.
type Socket struct {
	fd int
}

// openRawSocket creates an AF_BLUETOOTH/BTPROTO_L2CAP socket bound to the
// given local address and PSM.
func openRawSocket(adapterMAC [6]byte, psm uint16) (*Socket, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_SEQPACKET, unix.BTPROTO_L2CAP)
	if err != nil {
		return nil, fmt.Errorf("bluetransport: socket: %w", err)
	}
	sa := &l2capSockaddr{PSM: psm, Addr: adapterMAC}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bluetransport: bind psm %d: %w", psm, err)
	}
	return &Socket{fd: fd}, nil
}

// Listen marks the socket as a listening server socket.
func (s *Socket) Listen(backlog int) error {
	if err := unix.Listen(s.fd, backlog); err != nil {
		return fmt.Errorf("bluetransport: listen: %w", err)
	}
	return nil
}

// Accept accepts one inbound connection and returns a Socket for it. On a
// nonblocking listening socket with nothing pending, it returns
// ErrWouldBlock rather than blocking, so a caller can poll it against a
// stop signal.
func (s *Socket) Accept() (*Socket, [6]byte, error) {
	nfd, sa, err := unix.Accept(s.fd)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return nil, [6]byte{}, ErrWouldBlock
		}
		return nil, [6]byte{}, fmt.Errorf("bluetransport: accept: %w", err)
	}
	var peer [6]byte
	if l2, ok := sa.(*unix.SockaddrL2); ok {
		peer = l2.Addr
	}
	return &Socket{fd: nfd}, peer, nil
}

// Connect dials a remote L2CAP peer on the given PSM.
func Connect(peerMAC [6]byte, psm uint16) (*Socket, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_SEQPACKET, unix.BTPROTO_L2CAP)
	if err != nil {
		return nil, fmt.Errorf("bluetransport: socket: %w", err)
	}
	sa := &unix.SockaddrL2{PSM: psm, Addr: peerMAC}
	if err := unix.Connect(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bluetransport: connect psm %d: %w", psm, err)
	}
	return &Socket{fd: fd}, nil
}

// SetNonblocking toggles O_NONBLOCK on the socket's fd.
func (s *Socket) SetNonblocking(nonblocking bool) error {
	if err := unix.SetNonblock(s.fd, nonblocking); err != nil {
		return fmt.Errorf("bluetransport: set nonblocking: %w", err)
	}
	return nil
}

// Send writes buf in full. A connection-reset error is normalized to
// ErrPeerClosed; a transient EAGAIN is normalized to ErrWouldBlock.
func (s *Socket) Send(buf []byte) error {
	_, err := unix.Write(s.fd, buf)
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, unix.EAGAIN):
		return ErrWouldBlock
	case errors.Is(err, unix.ECONNRESET), errors.Is(err, unix.EPIPE):
		return ErrPeerClosed
	default:
		return fmt.Errorf("bluetransport: send: %w", err)
	}
}

// Recv reads up to maxLen bytes, returning ErrWouldBlock if nothing is
// ready and ErrPeerClosed on a zero-length read or reset.
func (s *Socket) Recv(maxLen int) ([]byte, error) {
	buf := make([]byte, maxLen)
	n, err := unix.Read(s.fd, buf)
	if err != nil {
		switch {
		case errors.Is(err, unix.EAGAIN):
			return nil, ErrWouldBlock
		case errors.Is(err, unix.ECONNRESET):
			return nil, ErrPeerClosed
		default:
			return nil, fmt.Errorf("bluetransport: recv: %w", err)
		}
	}
	if n == 0 {
		return nil, ErrPeerClosed
	}
	return buf[:n], nil
}

// Close closes the underlying fd.
func (s *Socket) Close() error {
	return unix.Close(s.fd)
}

// OpenServerSockets binds control and interrupt server sockets on
// adapterMAC, falling back to the "any" local address (00:00:00:00:00:00)
// if binding to the specific adapter address fails.
func OpenServerSockets(adapterMAC [6]byte) (ctrl, itr *Socket, err error) {
	ctrl, err = openRawSocket(adapterMAC, PSMControl)
	if err != nil {
		ctrl, err = openRawSocket([6]byte{}, PSMControl)
		if err != nil {
			return nil, nil, err
		}
	}
	itr, err = openRawSocket(adapterMAC, PSMInterrupt)
	if err != nil {
		itr, err = openRawSocket([6]byte{}, PSMInterrupt)
		if err != nil {
			ctrl.Close()
			return nil, nil, err
		}
	}
	if err := ctrl.Listen(1); err != nil {
		ctrl.Close()
		itr.Close()
		return nil, nil, err
	}
	if err := itr.Listen(1); err != nil {
		ctrl.Close()
		itr.Close()
		return nil, nil, err
	}
	return ctrl, itr, nil
}

// OpenClientSockets connects to a remote peer's control then interrupt
// channel.
func OpenClientSockets(peerMAC [6]byte) (ctrl, itr *Socket, err error) {
	ctrl, err = Connect(peerMAC, PSMControl)
	if err != nil {
		return nil, nil, err
	}
	itr, err = Connect(peerMAC, PSMInterrupt)
	if err != nil {
		ctrl.Close()
		return nil, nil, err
	}
	return ctrl, itr, nil
}
