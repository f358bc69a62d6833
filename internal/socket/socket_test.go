package socket

import (
	"net"
	"testing"
)

func TestBindEphemeralAndClose(t *testing.T) {
	c, err := Bind(Broadcast, IPv4, nil, 0)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if c.UDPConn().LocalAddr().(*net.UDPAddr).Port == 0 {
		t.Fatal("expected an OS-assigned ephemeral port, got 0")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Close must be idempotent.
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestBindRejectsMismatchedInterface(t *testing.T) {
	iface := "not-an-ip"
	if _, err := Bind(Listen, IPv4, &iface, 0); err == nil {
		t.Fatal("expected an error for a non-numeric interface address")
	}

	v6 := "::1"
	if _, err := Bind(Listen, IPv4, &v6, 0); err == nil {
		t.Fatal("expected an error for an IPv6 address on an IPv4 bind")
	}
}

func TestDescribePeerStripsZone(t *testing.T) {
	addr := &net.UDPAddr{IP: net.ParseIP("fe80::1"), Port: 5354, Zone: "eth0"}
	host, port, err := DescribePeer(addr)
	if err != nil {
		t.Fatal(err)
	}
	if port != 5354 {
		t.Errorf("port: got %d, want 5354", port)
	}
	if host != "fe80::1" {
		t.Errorf("host: got %q, want %q (no zone suffix)", host, "fe80::1")
	}
}
