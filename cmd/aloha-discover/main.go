// Command aloha-discover runs the discovery client standalone, printing
// Added/Removed events as they occur until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/epb/aloha-discover/internal/discoverer"
	"github.com/epb/aloha-discover/internal/socket"
	"github.com/epb/aloha-discover/lib/logger"
	"github.com/epb/aloha-discover/lib/svcutil"

	"github.com/thejerf/suture/v4"
)

var (
	broadcastPort = 5354
	identifier    = "_easy-photo-backup._tcp"
	periodSeconds = 1.0
	useIPv6       = false
	debug         = false
	dumpLog       = 0
)

func main() {
	flag.IntVar(&broadcastPort, "port", broadcastPort, "UDP port to broadcast queries to")
	flag.StringVar(&identifier, "identifier", identifier, "service identifier to query for")
	flag.Float64Var(&periodSeconds, "period", periodSeconds, "broadcast period, in seconds")
	flag.BoolVar(&useIPv6, "ipv6", useIPv6, "use an IPv6 socket (send is refused; family is otherwise plumbed through)")
	flag.BoolVar(&debug, "debug", debug, "enable debug logging")
	flag.IntVar(&dumpLog, "dump-log-on-exit", dumpLog, "on exit, print the last N recorded log lines to stderr (0 disables)")
	flag.Parse()

	if debug {
		logger.DefaultLogger.SetDebug("discoverer", true)
		logger.DefaultLogger.SetDebug("socket", true)
		logger.DefaultLogger.SetDebug("wire", true)
	}

	var recorder logger.Recorder
	if dumpLog > 0 {
		recorder = logger.NewRecorder(logger.DefaultLogger, logger.LevelDebug, dumpLog, 0)
		defer dumpRecordedLog(recorder)
	}

	family := socket.IPv4
	if useIPv6 {
		family = socket.IPv6
	}

	var stop atomic.Bool
	cfg := discoverer.Config{
		Identifier:    identifier,
		BroadcastPort: uint16(broadcastPort),
		Family:        family,
		Period:        time.Duration(periodSeconds * float64(time.Second)),
		Stop:          &stop,
	}

	onEvent := func(ev discoverer.Event) {
		fmt.Printf("%s\t%s:%d\t% x\n", ev.Kind, ev.IP, ev.Port, ev.Extra)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	spec := svcutil.SpecWithInfoLogger(logger.DefaultLogger)
	if debug {
		spec = svcutil.SpecWithDebugLogger(logger.DefaultLogger)
	}

	sup := suture.New("aloha-discover", spec)
	sup.Add(discoverer.AsService(cfg, onEvent))
	svcutil.OnSupervisorDone(sup, func() {
		logger.DefaultLogger.Infoln("aloha-discover: supervisor stopped")
	})

	if err := sup.Serve(ctx); err != nil && ctx.Err() == nil {
		ferr := svcutil.AsFatalErr(err, svcutil.ExitError)
		fmt.Fprintf(os.Stderr, "aloha-discover: %v\n", ferr)
		if recorder != nil {
			// os.Exit skips deferred calls, so dump explicitly here.
			dumpRecordedLog(recorder)
		}
		os.Exit(ferr.Status.AsInt())
	}
}

// dumpRecordedLog prints everything the recorder captured, giving an
// operator the last handful of log lines leading up to an unexpected
// exit even after the terminal scrollback is gone.
func dumpRecordedLog(r logger.Recorder) {
	lines := r.Since(time.Time{})
	if len(lines) == 0 {
		return
	}
	fmt.Fprintln(os.Stderr, "--- recent log history ---")
	for _, line := range lines {
		fmt.Fprintf(os.Stderr, "%s %s\n", line.When.Format(time.RFC3339Nano), line.Message)
	}
}
