package responder

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/epb/aloha-discover/internal/socket"
	"github.com/epb/aloha-discover/internal/wire"
)

func startTestResponder(t *testing.T, identifier string, port uint16, extra []byte) (*net.UDPAddr, func()) {
	t.Helper()

	ready := make(chan *net.UDPAddr, 1)
	ctx, cancel := context.WithCancel(context.Background())

	conn, err := socket.Bind(socket.Listen, socket.IPv4, nil, 0)
	if err != nil {
		t.Fatalf("bind probe socket: %v", err)
	}
	addr := conn.UDPConn().LocalAddr().(*net.UDPAddr)
	conn.Close()

	go func() {
		cfg := Config{
			Family:         socket.IPv4,
			Port:           uint16(addr.Port),
			Identifier:     identifier,
			AdvertisedPort: port,
			Extra:          extra,
		}
		ready <- addr
		if err := Listen(ctx, cfg); err != nil && ctx.Err() == nil {
			t.Errorf("Listen: %v", err)
		}
	}()
	<-ready
	time.Sleep(20 * time.Millisecond) // let the bind land before the test sends

	return addr, cancel
}

func TestResponderIdempotence(t *testing.T) {
	addr, stop := startTestResponder(t, "_x._tcp", 2134, []byte{0x01, 0x02})
	defer stop()

	client, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	client.SetReadDeadline(time.Now().Add(time.Second))

	query := wire.BuildQuery("_x._tcp")

	var first []byte
	for i := 0; i < 2; i++ {
		if _, err := client.Write(query); err != nil {
			t.Fatal(err)
		}
		buf := make([]byte, 2048)
		n, err := client.Read(buf)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if i == 0 {
			first = append([]byte(nil), buf[:n]...)
		} else if !bytes.Equal(first, buf[:n]) {
			t.Fatalf("replayed query produced a different response: %v vs %v", first, buf[:n])
		}
	}
}

func TestResponderIgnoresWrongIdentifier(t *testing.T) {
	addr, stop := startTestResponder(t, "_x._tcp", 2134, nil)
	defer stop()

	client, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	if _, err := client.Write(wire.BuildQuery("_y._tcp")); err != nil {
		t.Fatal(err)
	}

	client.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	buf := make([]byte, 64)
	if _, err := client.Read(buf); err == nil {
		t.Fatal("expected a timeout: responder should not reply to a mismatched identifier")
	}
}
