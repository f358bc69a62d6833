// Package discoverer implements the client side of the discovery
// protocol: a broadcast-poll loop with a generational liveness window
// that produces stable Added/Removed events under UDP packet loss. See
// SPEC_FULL.md §4.4 and spec.md §4.4.
package discoverer

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/epb/aloha-discover/internal/aerr"
	"github.com/epb/aloha-discover/internal/socket"
	"github.com/epb/aloha-discover/internal/wire"
	"github.com/epb/aloha-discover/lib/logger"
	"github.com/epb/aloha-discover/lib/svcutil"
)

var l = logger.DefaultLogger.NewFacility("discoverer", "Discovery client")

// recvTimeout bounds each recvfrom attempt so the loop can service the
// stop flag and the broadcast timer at >= 5 Hz regardless of network
// silence (spec.md §4.4).
const recvTimeout = 200 * time.Millisecond

// generations is the size of the rolling liveness window, G in spec.md
// §3/§4.4: a peer must miss responses across two consecutive broadcast
// periods before it is reaped, so a single lost datagram never causes a
// spurious Removed.
const generations = 2

// ipv4Broadcast is the destination the discoverer sends queries to on an
// IPv4 socket.
const ipv4Broadcast = "255.255.255.255"

// EventKind distinguishes the two cases of Event.
type EventKind int

const (
	Added EventKind = iota
	Removed
)

func (k EventKind) String() string {
	if k == Removed {
		return "Removed"
	}
	return "Added"
}

// Event is delivered once per membership transition. Extra is only
// populated for Added.
type Event struct {
	Kind  EventKind
	IP    string
	Port  uint16
	Extra []byte
}

// Config describes one discovery run. Stop is caller-owned: Discover
// only ever reads it, at the top of each loop iteration (AsService sets
// it when its context is cancelled).
type Config struct {
	Identifier    string
	BroadcastPort uint16
	Family        socket.AddressKind
	Period        time.Duration
	Stop          *atomic.Bool
}

// peerKey is the bitwise-comparable peer identity spec.md §3 calls for:
// address bytes (IPv4-mapped to 16 bytes for a uniform key) plus port.
// Two peers are the same server iff their peerKey values are equal.
type peerKey struct {
	addr [16]byte
	port uint16
}

func keyFor(addr *net.UDPAddr) peerKey {
	var k peerKey
	copy(k.addr[:], addr.IP.To16())
	k.port = uint16(addr.Port)
	return k
}

// record is the discoverer-side service record of spec.md §3. humanIP
// and advertisedPort are cached at Added time so a subsequent Removed
// can report a stable identity even if peer resolution later fails —
// resolving spec.md §9 open question 1 in favor of option (b). A peer
// whose identity could never be resolved (hasIdentity false) never
// produces an Added or a matching Removed, but its membership is still
// tracked so it does not get reaped and re-added on every response.
type record struct {
	humanIP        string
	advertisedPort uint16
	hasIdentity    bool
}

// liveSet holds the generational liveness window and the online-server
// map, with no knowledge of sockets or timing. Kept separate from
// Discover's I/O loop so the reap/rotate/dedup state machine can be
// driven directly in tests, the way the teacher pack drives
// localClient.registerDevice without a socket in lib/discover/local_test.go.
type liveSet struct {
	gen    [generations]map[peerKey]struct{}
	online map[peerKey]record
}

func newLiveSet() *liveSet {
	s := &liveSet{online: make(map[peerKey]record)}
	for i := range s.gen {
		s.gen[i] = make(map[peerKey]struct{})
	}
	return s
}

// onResponse folds one decoded response into the live set. It returns
// the Added event to emit, if any, and whether there is one: true only
// for a newly seen peer whose identity was resolved (an already-known
// peer never re-emits Added and always returns false).
func (s *liveSet) onResponse(peer peerKey, port uint16, extra []byte, humanIP string, resolvedIdentity bool) (Event, bool) {
	s.gen[0][peer] = struct{}{}

	if _, known := s.online[peer]; known {
		return Event{}, false
	}

	s.online[peer] = record{humanIP: humanIP, advertisedPort: port, hasIdentity: resolvedIdentity}
	if !resolvedIdentity {
		return Event{}, false
	}
	return Event{Kind: Added, IP: humanIP, Port: port, Extra: extra}, true
}

// reapAndRotate removes every peer absent from all generations,
// returning the Removed events to emit, then rotates the window: the
// current slot becomes the oldest and a fresh empty slot takes its
// place. This is the corrected rotation from spec.md §9 open question 2
// (index 0 always ends up fresh, not the about-to-expire slot).
//
// The check runs before rotation deliberately: at this point gen[0] holds
// the period that just ended and gen[1..G-1] hold the G-1 periods before
// it, so a peer is only reaped once it is absent from all G of the most
// recent periods — one missed period is always still covered by an older
// generation that hasn't aged out yet. Checking after rotation would
// discard the about-to-expire generation first, reaping a peer after a
// single missed period instead of two.
func (s *liveSet) reapAndRotate() []Event {
	var removed []Event
	for peer, rec := range s.online {
		live := false
		for _, g := range s.gen {
			if _, ok := g[peer]; ok {
				live = true
				break
			}
		}
		if !live {
			delete(s.online, peer)
			if rec.hasIdentity {
				removed = append(removed, Event{Kind: Removed, IP: rec.humanIP, Port: rec.advertisedPort})
			}
		}
	}

	for i := generations - 1; i > 0; i-- {
		s.gen[i] = s.gen[i-1]
	}
	s.gen[0] = make(map[peerKey]struct{})

	return removed
}

// Discover blocks in the broadcast-poll loop, invoking onEvent for every
// Added/Removed transition, until cfg.Stop is observed set (returns nil)
// or a fatal error occurs. onEvent runs synchronously on the loop
// goroutine and must not block for long (spec.md §5).
func Discover(cfg Config, onEvent func(Event)) error {
	conn, err := socket.Bind(socket.Broadcast, cfg.Family, nil, 0)
	if err != nil {
		return err
	}
	defer conn.Close()

	query := wire.BuildQuery(cfg.Identifier)

	var dest *net.UDPAddr
	if cfg.Family == socket.IPv4 {
		dest = &net.UDPAddr{IP: net.ParseIP(ipv4Broadcast), Port: int(cfg.BroadcastPort)}
	}

	set := newLiveSet()
	var lastBroadcast time.Time
	sentFirstBcast := false

	buf := make([]byte, wire.MaxResponseLen)

	for {
		if cfg.Stop.Load() {
			return nil
		}

		now := time.Now()
		if !sentFirstBcast || now.Sub(lastBroadcast) >= cfg.Period {
			if cfg.Family == socket.IPv6 {
				return aerr.New(aerr.KindIPv6Unsupported, "discoverer.Discover",
					fmt.Errorf("IPv6 broadcast/multicast send is not implemented"))
			}

			if _, err := conn.UDPConn().WriteToUDP(query, dest); err != nil {
				return aerr.New(aerr.KindSend, "discoverer.Discover", err)
			}
			lastBroadcast = now
			sentFirstBcast = true

			for _, ev := range set.reapAndRotate() {
				onEvent(ev)
			}
		}

		conn.UDPConn().SetReadDeadline(time.Now().Add(recvTimeout))
		n, addr, err := conn.UDPConn().ReadFromUDP(buf)
		if err != nil {
			// Both a genuine timeout and any other transient recv error
			// are recovered locally: the timeout is how the loop pulses
			// (spec.md §7).
			continue
		}

		port, extra, ok := wire.DecodeResponse(buf[:n])
		if !ok {
			l.Debugf("dropping malformed response (%d bytes) from %s", n, addr)
			continue
		}

		humanIP, _, resolveErr := socket.DescribePeer(addr)
		ev, emit := set.onResponse(keyFor(addr), port, extra, humanIP, resolveErr == nil)
		if emit {
			onEvent(ev)
		}
	}
}

// AsService adapts Discover to suture.Service. The context's Done
// channel is bridged to cfg.Stop so a supervisor can cancel the
// discoverer the same way it cancels a responder. A nil return from
// Discover means the stop flag was observed, not that the service
// failed, so it is reported to the supervisor via NoRestartErr: Discover
// itself keeps the plain nil-on-stop contract spec.md §4.4 specifies.
func AsService(cfg Config, onEvent func(Event)) svcutil.ServiceWithError {
	return svcutil.AsService(func(ctx context.Context) error {
		go func() {
			<-ctx.Done()
			cfg.Stop.Store(true)
		}()
		if err := Discover(cfg, onEvent); err != nil {
			return err
		}
		return svcutil.NoRestartErr(nil)
	}, "discoverer.Discover")
}
