// Package wire implements the protocol-v1 query and response codec: the
// "aloha:" query string, the fixed big-endian response layout, and the
// nibble-striped XOR checksum. It has no knowledge of sockets or timing;
// see SPEC_FULL.md §4.1 and spec.md §3.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/epb/aloha-discover/internal/aerr"
	"github.com/epb/aloha-discover/lib/logger"
)

var l = logger.DefaultLogger.NewFacility("wire", "Discovery wire codec")

const (
	// ProtocolVersion is the only version byte accepted on the wire.
	ProtocolVersion byte = 0x01

	// MaxQueryLen bounds the query string, including the "aloha:" prefix
	// and trailing newline.
	MaxQueryLen = 1024

	// MaxResponseLen bounds the encoded response packet.
	MaxResponseLen = 65535

	headerLen    = 5 // version(1) + extra_len(2) + advertised_port(2)
	checksumLen  = 2
	minPacketLen = headerLen + checksumLen

	queryPrefix = "aloha:"
	querySuffix = "\n"
)

// BuildQuery returns the canonical query datagram for the given service
// identifier: "aloha:" + identifier + "\n".
func BuildQuery(identifier string) []byte {
	buf := make([]byte, 0, len(queryPrefix)+len(identifier)+len(querySuffix))
	buf = append(buf, queryPrefix...)
	buf = append(buf, identifier...)
	buf = append(buf, querySuffix...)
	return buf
}

// QueryLen returns the length BuildQuery(identifier) would produce,
// without allocating.
func QueryLen(identifier string) int {
	return len(queryPrefix) + len(identifier) + len(querySuffix)
}

// EncodeResponse lays out the protocol-v1 response packet: version,
// extra_len, advertised_port, extra, checksum. The checksum covers
// [3 .. 5+extra_len), i.e. advertised_port followed by extra.
func EncodeResponse(advertisedPort uint16, extra []byte) ([]byte, error) {
	total := headerLen + len(extra) + checksumLen
	if total > MaxResponseLen {
		return nil, aerr.New(aerr.KindInvalidArgument, "wire.EncodeResponse",
			fmt.Errorf("response of %d bytes exceeds maximum %d", total, MaxResponseLen))
	}

	buf := make([]byte, total)
	buf[0] = ProtocolVersion
	binary.BigEndian.PutUint16(buf[1:3], uint16(len(extra)))
	binary.BigEndian.PutUint16(buf[3:5], advertisedPort)
	copy(buf[headerLen:headerLen+len(extra)], extra)

	sum := checksum(buf[3 : headerLen+len(extra)])
	binary.BigEndian.PutUint16(buf[headerLen+len(extra):], sum)

	return buf, nil
}

// DecodeResponse validates and extracts a response packet. Rejection is
// silent by contract: callers drop the datagram rather than propagating
// an error up through the discoverer's loop (spec.md §4.1, §7).
func DecodeResponse(buf []byte) (port uint16, extra []byte, ok bool) {
	debug := l.ShouldDebug("wire")
	if len(buf) < minPacketLen {
		if debug {
			l.Debugf("decode: short packet (%d bytes)", len(buf))
		}
		return 0, nil, false
	}
	if buf[0] != ProtocolVersion {
		if debug {
			l.Debugf("decode: bad version 0x%02x", buf[0])
		}
		return 0, nil, false
	}

	extraLen := int(binary.BigEndian.Uint16(buf[1:3]))
	if headerLen+extraLen+checksumLen != len(buf) {
		if debug {
			l.Debugf("decode: length mismatch: extra_len=%d buf=%d", extraLen, len(buf))
		}
		return 0, nil, false
	}

	region := buf[3 : headerLen+extraLen]
	want := binary.BigEndian.Uint16(buf[headerLen+extraLen:])
	if got := checksum(region); got != want {
		if debug {
			l.Debugf("decode: checksum mismatch: got 0x%04x want 0x%04x", got, want)
		}
		return 0, nil, false
	}

	port = binary.BigEndian.Uint16(buf[3:5])
	if extraLen > 0 {
		extra = make([]byte, extraLen)
		copy(extra, buf[headerLen:headerLen+extraLen])
	}
	return port, extra, true
}

// checksum computes the 16-bit nibble-striped XOR described in spec.md
// §3: c starts at zero, and each byte is XORed in at bit offset 0 or 8
// depending on its position's parity. This catches single-bit corruption
// but is not a cryptographic integrity check (spec.md §1, §9).
func checksum(b []byte) uint16 {
	var c uint16
	for i, bb := range b {
		c ^= uint16(bb) << ((i & 1) * 8)
	}
	return c
}
