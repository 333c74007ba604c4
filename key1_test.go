package main

import "testing"

// newDeterministicKeyData fills a 0x412-word buffer with a repeatable
// non-uniform pattern, standing in for the console's key-1 bios blob.
func newDeterministicKeyData() []byte {
	data := make([]byte, 0x412*4)
	for i := range data {
		data[i] = byte(i*7 + 13)
	}
	return data
}

// TestKey1RoundTrip covers invariant 8: decrypting a block this cipher
// just encrypted returns the original plaintext.
func TestKey1RoundTrip(t *testing.T) {
	k := newKey1Cipher(newDeterministicKeyData())

	original := [2]uint32{0x12345678, 0x9ABCDEF0}
	block := original

	k.encrypt64(&block)
	if block == original {
		t.Fatalf("encrypt64 left the block unchanged")
	}

	k.decrypt64(&block)
	if block != original {
		t.Fatalf("decrypt64(encrypt64(x)) = %#v, want %#v", block, original)
	}
}

func TestKey1RoundTripAcrossMultipleBlocks(t *testing.T) {
	k := newKey1Cipher(newDeterministicKeyData())

	blocks := [][2]uint32{
		{0, 0},
		{0xFFFFFFFF, 0xFFFFFFFF},
		{0xDEADBEEF, 0xCAFEBABE},
		{1, 0},
	}
	for _, original := range blocks {
		block := original
		k.encrypt64(&block)
		k.decrypt64(&block)
		if block != original {
			t.Fatalf("round trip of %#v produced %#v", original, block)
		}
	}
}
