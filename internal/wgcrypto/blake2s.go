// Package wgcrypto implements the small slice of cryptography this
// router needs to identify a WireGuard handshake: BLAKE2s hashing, the
// keyed MAC1 variant, and the cheap frame heuristic used to pre-filter
// non-WireGuard traffic before it reaches the classifier.
package wgcrypto

import "encoding/binary"

// BLAKE2s (RFC 7693). Only the two output lengths WireGuard's MAC1
// scheme needs are implemented: 32-byte unkeyed and 16-byte keyed.

var blake2sIV = [8]uint32{
	0x6A09E667, 0xBB67AE85, 0x3C6EF372, 0xA54FF53A,
	0x510E527F, 0x9B05688C, 0x1F83D9AB, 0x5BE0CD19,
}

var blake2sSigma = [10][16]byte{
	{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15},
	{14, 10, 4, 8, 9, 15, 13, 6, 1, 12, 0, 2, 11, 7, 5, 3},
	{11, 8, 12, 0, 5, 2, 15, 13, 10, 14, 3, 6, 7, 1, 9, 4},
	{7, 9, 3, 1, 13, 12, 11, 14, 2, 6, 5, 10, 4, 0, 15, 8},
	{9, 0, 5, 7, 2, 4, 10, 15, 14, 1, 11, 12, 6, 8, 3, 13},
	{2, 12, 6, 10, 0, 11, 8, 3, 4, 13, 7, 5, 15, 14, 1, 9},
	{12, 5, 1, 15, 14, 13, 4, 10, 0, 7, 6, 3, 9, 2, 8, 11},
	{13, 11, 7, 14, 12, 1, 3, 9, 5, 0, 15, 4, 8, 6, 2, 10},
	{6, 15, 14, 9, 11, 3, 0, 8, 12, 2, 13, 7, 1, 4, 10, 5},
	{10, 2, 8, 4, 7, 6, 1, 5, 15, 11, 9, 14, 3, 12, 13, 0},
}

func rotr32(x uint32, n uint) uint32 {
	return (x >> n) | (x << (32 - n))
}

func blake2sG(v *[16]uint32, a, b, c, d int, x, y uint32) {
	v[a] += v[b] + x
	v[d] = rotr32(v[d]^v[a], 16)
	v[c] += v[d]
	v[b] = rotr32(v[b]^v[c], 12)
	v[a] += v[b] + y
	v[d] = rotr32(v[d]^v[a], 8)
	v[c] += v[d]
	v[b] = rotr32(v[b]^v[c], 7)
}

func blake2sCompress(h *[8]uint32, block []byte, t0, t1 uint32, last bool) {
	var m [16]uint32
	for i := range m {
		m[i] = binary.LittleEndian.Uint32(block[i*4:])
	}

	v := [16]uint32{
		h[0], h[1], h[2], h[3], h[4], h[5], h[6], h[7],
		blake2sIV[0], blake2sIV[1], blake2sIV[2], blake2sIV[3],
		t0 ^ blake2sIV[4], t1 ^ blake2sIV[5], blake2sIV[6], blake2sIV[7],
	}
	if last {
		v[14] ^= 0xFFFFFFFF
	}

	for i := 0; i < 10; i++ {
		s := &blake2sSigma[i]
		blake2sG(&v, 0, 4, 8, 12, m[s[0]], m[s[1]])
		blake2sG(&v, 1, 5, 9, 13, m[s[2]], m[s[3]])
		blake2sG(&v, 2, 6, 10, 14, m[s[4]], m[s[5]])
		blake2sG(&v, 3, 7, 11, 15, m[s[6]], m[s[7]])
		blake2sG(&v, 0, 5, 10, 15, m[s[8]], m[s[9]])
		blake2sG(&v, 1, 6, 11, 12, m[s[10]], m[s[11]])
		blake2sG(&v, 2, 7, 8, 13, m[s[12]], m[s[13]])
		blake2sG(&v, 3, 4, 9, 14, m[s[14]], m[s[15]])
	}

	for i := 0; i < 8; i++ {
		h[i] ^= v[i] ^ v[i+8]
	}
}

// blake2sSum runs the full compression schedule over one complete
// message and returns the final chaining state, whose first nn bytes
// (little-endian) are the digest (nn is 16 or 32 here). Every
// caller in this package already holds its whole input in memory —
// MAC1 inputs and key material are both small, fixed-shape values, not
// a stream — so there is no separate incremental Write/Sum split: a
// keyed call folds the 64-byte zero-padded key block in as block zero,
// then the message is compressed block by block, the last one always
// flagged final.
func blake2sSum(key, data []byte, nn int) [8]uint32 {
	h := blake2sIV
	kk := len(key)
	h[0] ^= 0x01010000 | uint32(kk)<<8 | uint32(nn)

	var t0, t1 uint32
	var block [64]byte

	if kk > 0 {
		copy(block[:], key)
		t0 += 64
		last := len(data) == 0
		blake2sCompress(&h, block[:], t0, t1, last)
		if last {
			return h
		}
		block = [64]byte{}
	}

	for len(data) > 64 {
		t0 += 64
		if t0 < 64 {
			t1++
		}
		blake2sCompress(&h, data[:64], t0, t1, false)
		data = data[64:]
	}

	n := uint32(len(data))
	copy(block[:], data)
	t0 += n
	if t0 < n {
		t1++
	}
	blake2sCompress(&h, block[:], t0, t1, true)

	return h
}

// Hash computes unkeyed BLAKE2s with a 32-byte output.
func Hash(data []byte) [32]byte {
	h := blake2sSum(nil, data, 32)
	var out [32]byte
	for i := 0; i < 8; i++ {
		binary.LittleEndian.PutUint32(out[i*4:], h[i])
	}
	return out
}

// MAC computes keyed BLAKE2s with a 16-byte output. key must be the
// 32-byte precomputed MAC1 key of a peer (as returned by MAC1Key).
func MAC(key [32]byte, data []byte) [16]byte {
	h := blake2sSum(key[:], data, 16)
	var out [16]byte
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint32(out[i*4:], h[i])
	}
	return out
}

// mac1Label is the ASCII label WireGuard mixes into the MAC1 key
// derivation: mac1key = BLAKE2s("mac1----" || responder_pubkey).
const mac1Label = "mac1----"

// MAC1Key derives the MAC1 key for a peer from its 32-byte public key.
func MAC1Key(pubkey [32]byte) [32]byte {
	var input [8 + 32]byte
	copy(input[:8], mac1Label)
	copy(input[8:], pubkey[:])
	return Hash(input[:])
}

// IsWireGuardFrame is a cheap pre-filter, the heuristic from
// https://wiki.wireshark.org/WireGuard: the first byte must be a valid
// message type (1-4) and the next three reserved bytes must be zero.
// Stricter validation happens in the frame classifier.
func IsWireGuardFrame(size int, buf []byte) bool {
	return size > 4 &&
		buf[0] >= 1 && buf[0] <= 4 &&
		(buf[1]|buf[2]|buf[3]) == 0
}
