// Command aloha-responder runs the discovery responder standalone,
// advertising a fixed port and extra payload under a service identifier.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/epb/aloha-discover/internal/responder"
	"github.com/epb/aloha-discover/internal/socket"
	"github.com/epb/aloha-discover/lib/logger"
	"github.com/epb/aloha-discover/lib/svcutil"

	"github.com/thejerf/suture/v4"
)

var (
	listenPort     = 5354
	iface          = ""
	identifier     = "_easy-photo-backup._tcp"
	advertisedPort = 2134
	extraHex       = "01000102030405060708090a0b0c0d0e0f"
	useIPv6        = false
	debug          = false
)

func main() {
	flag.IntVar(&listenPort, "port", listenPort, "UDP port to listen for queries on")
	flag.StringVar(&iface, "interface", iface, "numeric interface address to bind (default: wildcard)")
	flag.StringVar(&identifier, "identifier", identifier, "service identifier to answer for")
	flag.IntVar(&advertisedPort, "advertised-port", advertisedPort, "port value to report in responses")
	flag.StringVar(&extraHex, "extra", extraHex, "hex-encoded opaque extra bytes to report in responses")
	flag.BoolVar(&useIPv6, "ipv6", useIPv6, "bind an IPv6 socket instead of IPv4")
	flag.BoolVar(&debug, "debug", debug, "enable debug logging")
	flag.Parse()

	if debug {
		logger.DefaultLogger.SetDebug("responder", true)
		logger.DefaultLogger.SetDebug("socket", true)
	}

	extra, err := hex.DecodeString(extraHex)
	if err != nil {
		fmt.Fprintf(os.Stderr, "aloha-responder: invalid -extra: %v\n", err)
		os.Exit(1)
	}

	family := socket.IPv4
	if useIPv6 {
		family = socket.IPv6
	}

	var ifacePtr *string
	if iface != "" {
		ifacePtr = &iface
	}

	cfg := responder.Config{
		Interface:      ifacePtr,
		Family:         family,
		Port:           uint16(listenPort),
		Identifier:     identifier,
		AdvertisedPort: uint16(advertisedPort),
		Extra:          extra,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	spec := svcutil.SpecWithInfoLogger(logger.DefaultLogger)
	if debug {
		spec = svcutil.SpecWithDebugLogger(logger.DefaultLogger)
	}

	sup := suture.New("aloha-responder", spec)
	sup.Add(responder.AsService(cfg))
	svcutil.OnSupervisorDone(sup, func() {
		logger.DefaultLogger.Infoln("aloha-responder: supervisor stopped")
	})

	if err := sup.Serve(ctx); err != nil && ctx.Err() == nil {
		ferr := svcutil.AsFatalErr(err, svcutil.ExitError)
		fmt.Fprintf(os.Stderr, "aloha-responder: %v\n", ferr)
		os.Exit(ferr.Status.AsInt())
	}
}
