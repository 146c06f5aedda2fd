package wgcrypto

import (
	"bytes"
	"testing"

	"golang.org/x/crypto/blake2s"
)

func TestHashEmpty(t *testing.T) {
	got := Hash(nil)

	ref, _ := blake2s.New256(nil)
	var want [32]byte
	copy(want[:], ref.Sum(nil))

	if got != want {
		t.Fatalf("Hash(nil):\n  got  %x\n  want %x", got, want)
	}
}

func TestHashABC(t *testing.T) {
	got := Hash([]byte("abc"))

	ref, _ := blake2s.New256(nil)
	ref.Write([]byte("abc"))
	var want [32]byte
	copy(want[:], ref.Sum(nil))

	if got != want {
		t.Fatalf("Hash(abc):\n  got  %x\n  want %x", got, want)
	}
}

func TestHashMultiBlock(t *testing.T) {
	data := make([]byte, 200)
	for i := range data {
		data[i] = byte(i)
	}

	got := Hash(data)

	ref, _ := blake2s.New256(nil)
	ref.Write(data)
	var want [32]byte
	copy(want[:], ref.Sum(nil))

	if got != want {
		t.Fatalf("Hash(200 bytes):\n  got  %x\n  want %x", got, want)
	}
}

func TestHashBlockBoundary(t *testing.T) {
	for _, n := range []int{63, 64, 65, 128} {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i * 7)
		}

		got := Hash(data)

		ref, _ := blake2s.New256(nil)
		ref.Write(data)
		var want [32]byte
		copy(want[:], ref.Sum(nil))

		if got != want {
			t.Fatalf("Hash(%d bytes):\n  got  %x\n  want %x", n, got, want)
		}
	}
}

func TestMACAgainstReference(t *testing.T) {
	var key [32]byte
	for i := range key {
		key[i] = byte(i)
	}
	data := []byte("a 116-byte mac1 input would go here, but any data works for this check")

	got := MAC(key, data)

	ref, err := blake2s.New128(key[:])
	if err != nil {
		t.Fatalf("blake2s.New128: %v", err)
	}
	ref.Write(data)
	want := ref.Sum(nil)

	if !bytes.Equal(got[:], want) {
		t.Fatalf("MAC:\n  got  %x\n  want %x", got, want)
	}
}

func TestMAC1KeyMatchesLabelPrefix(t *testing.T) {
	var pub [32]byte
	for i := range pub {
		pub[i] = byte(255 - i)
	}

	got := MAC1Key(pub)

	var input [40]byte
	copy(input[:8], "mac1----")
	copy(input[8:], pub[:])
	ref, _ := blake2s.New256(nil)
	ref.Write(input[:])
	var want [32]byte
	copy(want[:], ref.Sum(nil))

	if got != want {
		t.Fatalf("MAC1Key:\n  got  %x\n  want %x", got, want)
	}
}

func TestIsWireGuardFrame(t *testing.T) {
	cases := []struct {
		name string
		size int
		buf  []byte
		want bool
	}{
		{"too short", 4, []byte{1, 0, 0, 0}, false},
		{"valid type 1", 8, []byte{1, 0, 0, 0, 0, 0, 0, 0}, true},
		{"valid type 4", 32, append([]byte{4, 0, 0, 0}, make([]byte, 28)...), true},
		{"type 0 invalid", 8, []byte{0, 0, 0, 0, 0, 0, 0, 0}, false},
		{"type 5 invalid", 8, []byte{5, 0, 0, 0, 0, 0, 0, 0}, false},
		{"reserved nonzero", 8, []byte{1, 1, 0, 0, 0, 0, 0, 0}, false},
		{"exactly 5 bytes", 5, []byte{1, 0, 0, 0, 0}, true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := IsWireGuardFrame(c.size, c.buf)
			if got != c.want {
				t.Errorf("IsWireGuardFrame(%d, %x) = %v, want %v", c.size, c.buf, got, c.want)
			}
		})
	}
}
