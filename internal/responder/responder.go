// Package responder implements the server side of the discovery
// protocol: it validates incoming queries against a registered
// identifier and replies with a pre-encoded response. See SPEC_FULL.md
// §4.3 and spec.md §4.3.
package responder

import (
	"bytes"
	"context"
	"fmt"

	"github.com/epb/aloha-discover/internal/aerr"
	"github.com/epb/aloha-discover/internal/socket"
	"github.com/epb/aloha-discover/internal/wire"
	"github.com/epb/aloha-discover/lib/logger"
	"github.com/epb/aloha-discover/lib/svcutil"
)

var l = logger.DefaultLogger.NewFacility("responder", "Discovery responder")

// maxQueryBuf is the fixed receive buffer size: spec.md §4.3 bounds
// incoming queries to 1024 bytes.
const maxQueryBuf = wire.MaxQueryLen

// Config holds everything Listen needs to validate queries and answer
// them; it is immutable for the call's lifetime.
type Config struct {
	Interface      *string // nil binds the wildcard address
	Family         socket.AddressKind
	Port           uint16
	Identifier     string
	AdvertisedPort uint16
	Extra          []byte
}

func (c Config) validate() error {
	if len(c.Identifier) == 0 {
		return aerr.New(aerr.KindInvalidArgument, "responder.Listen", fmt.Errorf("identifier must not be empty"))
	}
	if wire.QueryLen(c.Identifier) > wire.MaxQueryLen {
		return aerr.New(aerr.KindInvalidArgument, "responder.Listen", fmt.Errorf("identifier too long: query would be %d bytes", wire.QueryLen(c.Identifier)))
	}
	return nil
}

// Listen blocks, replying to matching queries, until a fatal I/O error
// occurs or ctx is cancelled. Cancellation is the non-breaking extension
// spec.md §9 open question 3 recommends; a caller that never cancels ctx
// gets exactly the "blocks forever, or returns a fatal error" contract
// spec.md §4.3 specifies.
func Listen(ctx context.Context, cfg Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	response, err := wire.EncodeResponse(cfg.AdvertisedPort, cfg.Extra)
	if err != nil {
		return err
	}

	conn, err := socket.Bind(socket.Listen, cfg.Family, cfg.Interface, cfg.Port)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	expected := wire.BuildQuery(cfg.Identifier)
	buf := make([]byte, maxQueryBuf)

	for {
		n, addr, err := conn.UDPConn().ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return aerr.New(aerr.KindRecv, "responder.Listen", err)
		}

		if n != len(expected) || !bytes.Equal(buf[:n], expected) {
			l.Debugf("dropping non-matching datagram (%d bytes) from %s", n, addr)
			continue
		}

		if _, err := conn.UDPConn().WriteToUDP(response, addr); err != nil {
			return aerr.New(aerr.KindSend, "responder.Listen", err)
		}
	}
}

// AsService adapts Listen to suture.Service, so a caller running both
// endpoints in one process can supervise the responder alongside the
// discoverer (SPEC_FULL.md §5). A nil return from Listen means ctx was
// cancelled, not that the service failed, so it is reported to the
// supervisor via NoRestartErr: Listen itself keeps the plain
// nil-on-cancel contract documented above.
func AsService(cfg Config) svcutil.ServiceWithError {
	return svcutil.AsService(func(ctx context.Context) error {
		if err := Listen(ctx, cfg); err != nil {
			return err
		}
		return svcutil.NoRestartErr(nil)
	}, "responder.Listen")
}
