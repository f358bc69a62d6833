// Package socket provides the UDP socket primitives shared by the
// responder and discoverer: role-appropriate socket options, binding to
// a wildcard or specific interface address, scoped close, and
// human-readable peer rendering. See SPEC_FULL.md §4.2 and spec.md §4.2.
package socket

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"syscall"

	"github.com/epb/aloha-discover/internal/aerr"
	"github.com/epb/aloha-discover/lib/logger"
)

var l = logger.DefaultLogger.NewFacility("socket", "UDP socket primitives")

// AddressKind is a closed two-variant tag fixing a socket's family.
type AddressKind int

const (
	IPv4 AddressKind = iota
	IPv6
)

func (k AddressKind) String() string {
	if k == IPv6 {
		return "ipv6"
	}
	return "ipv4"
}

func (k AddressKind) network() string {
	if k == IPv6 {
		return "udp6"
	}
	return "udp4"
}

// Role selects which socket options Bind applies before binding.
type Role int

const (
	// Listen sockets get address- and port-reuse options, for the
	// responder binding to a well-known port.
	Listen Role = iota
	// Broadcast sockets get the broadcast-permission option, for the
	// discoverer's ephemeral send/recv socket.
	Broadcast
)

// noCopy causes `go vet` to flag accidental copies of a Conn, matching
// the single-owner, non-movable socket wrapper spec.md §4.2 and §5
// require.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Conn is the scoped owner of one UDP socket. There is exactly one owner
// per socket; Close is idempotent and safe to call from any exit path
// (normal return, error return, or via defer after a panic unwinds).
type Conn struct {
	_    noCopy
	conn *net.UDPConn
	once sync.Once
}

// Bind creates and binds a UDP socket of the given family, role, and
// port. A nil iface binds the wildcard address; a non-nil iface is
// parsed as a numeric address of family and must parse successfully.
// port == 0 requests an OS-assigned ephemeral port.
func Bind(role Role, family AddressKind, iface *string, port uint16) (*Conn, error) {
	host := ""
	if iface != nil {
		ip := net.ParseIP(*iface)
		if ip == nil {
			return nil, aerr.New(aerr.KindSocketSetup, "socket.Bind",
				fmt.Errorf("%q is not a numeric %s address", *iface, family))
		}
		if (family == IPv4 && ip.To4() == nil) || (family == IPv6 && ip.To4() != nil) {
			return nil, aerr.New(aerr.KindSocketSetup, "socket.Bind",
				fmt.Errorf("%q does not match address family %s", *iface, family))
		}
		host = ip.String()
	}

	var optErr error
	lc := net.ListenConfig{
		Control: func(_, _ string, rc syscall.RawConn) error {
			optErr = applyOptions(rc, role)
			return optErr
		},
	}

	addr := net.JoinHostPort(host, strconv.Itoa(int(port)))
	pc, err := lc.ListenPacket(context.Background(), family.network(), addr)
	if err != nil {
		return nil, aerr.New(aerr.KindSocketSetup, "socket.Bind", err)
	}
	if optErr != nil {
		pc.Close()
		return nil, aerr.New(aerr.KindSocketSetup, "socket.Bind", optErr)
	}

	return &Conn{conn: pc.(*net.UDPConn)}, nil
}

// UDPConn exposes the underlying *net.UDPConn for read/write operations
// the responder and discoverer perform directly (ReadFromUDP,
// WriteToUDP, SetReadDeadline).
func (c *Conn) UDPConn() *net.UDPConn {
	return c.conn
}

// Close shuts down both directions and releases the socket. It is safe
// to call more than once and from any goroutine.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		if c.conn == nil {
			return
		}
		err = c.conn.Close()
		if err != nil {
			l.Debugf("close: %v", err)
		}
	})
	return err
}

// DescribePeer converts a raw UDP peer address into a numeric host and
// port. net.UDPAddr already keeps a link-local IPv6 zone identifier
// (fe80::1%eth0) separate from the address bytes in its Zone field, so
// rendering addr.IP directly gives the zone-stripped host spec.md §4.2
// calls for without any string surgery.
func DescribePeer(addr *net.UDPAddr) (host string, port uint16, err error) {
	if addr == nil {
		return "", 0, aerr.New(aerr.KindSocketSetup, "socket.DescribePeer", fmt.Errorf("nil address"))
	}
	return addr.IP.String(), uint16(addr.Port), nil
}
