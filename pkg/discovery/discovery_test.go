// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package discovery

import (
	"testing"

	"github.com/ollana/ollanad/pkg/ollanaconst"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	encoded := EncodeMagic(ollanaconst.ProtoMagicNumber)
	if len(encoded) != magicSize {
		t.Fatalf("expected %d-byte payload, got %d", magicSize, len(encoded))
	}

	if !DecodeMagic(encoded, ollanaconst.ProtoMagicNumber) {
		t.Fatalf("expected round-tripped magic to decode successfully")
	}
}

func TestEncodeMagicIsBigEndian(t *testing.T) {
	encoded := EncodeMagic(ollanaconst.ProtoMagicNumber)
	want := []byte{0x4C, 0x41, 0x4E, 0x41} // "LANA"
	for i := range want {
		if encoded[i] != want[i] {
			t.Fatalf("byte %d: got 0x%02X, want 0x%02X", i, encoded[i], want[i])
		}
	}
}

func TestDecodeMagicRejectsWrongLength(t *testing.T) {
	if DecodeMagic([]byte{0x4C, 0x41, 0x4E}, ollanaconst.ProtoMagicNumber) {
		t.Fatalf("expected a 3-byte payload to be rejected")
	}
	if DecodeMagic([]byte{0x4C, 0x41, 0x4E, 0x41, 0x00}, ollanaconst.ProtoMagicNumber) {
		t.Fatalf("expected a 5-byte payload to be rejected")
	}
}

func TestDecodeMagicRejectsWrongValue(t *testing.T) {
	wrong := []byte{0x00, 0x00, 0x00, 0x01}
	if DecodeMagic(wrong, ollanaconst.ProtoMagicNumber) {
		t.Fatalf("expected a non-matching magic value to be rejected")
	}
}
