// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package discovery implements the UDP broadcast discovery protocol: a
// single 4-byte magic-number datagram, "LANA" in ASCII, sent by clients
// and echoed by servers while their local upstream is alive.
package discovery

import "encoding/binary"

// magicSize is the fixed datagram length; anything else is not ours.
const magicSize = 4

// EncodeMagic renders the magic number as its 4-byte big-endian wire form.
func EncodeMagic(magic uint32) []byte {
	buf := make([]byte, magicSize)
	binary.BigEndian.PutUint32(buf, magic)
	return buf
}

// DecodeMagic parses a received datagram, returning ok=false for any
// payload that isn't exactly 4 bytes of the expected magic number.
// Mismatched payloads never elicit a reply or emit an Add event.
func DecodeMagic(payload []byte, want uint32) (ok bool) {
	if len(payload) != magicSize {
		return false
	}
	return binary.BigEndian.Uint32(payload) == want
}
