// key1.go - Blowfish-derived "key-1" cartridge cipher

/*
key1.go - key-1 cipher

Direct port of _examples/original_source/src/nds/cart/key.{h,cc}
("twice"): a Blowfish-family Feistel network keyed by a 0x412-word
table (1042 32-bit words: 18 round subkeys + 2 P-box entries, followed
by four 256-entry S-boxes) seeded from the console's key-1 bios blob and
then repeatedly mixed with the cartridge's game code, producing a
per-title keystream used only to decrypt the cartridge header's secure
area and to authenticate KEY1-mode command exchanges; it is not used for
bulk ROM data, which is unencrypted on retail carts.
*/

package main

type key1Cipher struct {
	keybuf [0x412]uint32
}

func newKey1Cipher(keyData []byte) *key1Cipher {
	k := &key1Cipher{}
	for i := 0; i < 0x412 && i*4+4 <= len(keyData); i++ {
		k.keybuf[i] = readLE32(keyData, i*4)
	}
	return k
}

// encrypt64/decrypt64 run the 16-round Feistel network over one 64-bit
// block, expressed as two 32-bit halves exactly as the reference's
// cart_encrypt64/cart_decrypt64 operate on a uint32_t[2].
func (k *key1Cipher) encrypt64(p *[2]uint32) {
	y := p[0]
	x := p[1]
	for i := 0; i <= 0xF; i++ {
		z := k.keybuf[i] ^ x
		x = k.f(z) ^ y
		y = z
	}
	p[1] = x ^ k.keybuf[0x10]
	p[0] = y ^ k.keybuf[0x11]
}

func (k *key1Cipher) decrypt64(p *[2]uint32) {
	y := p[0]
	x := p[1]
	for i := 0x11; i >= 0x2; i-- {
		z := k.keybuf[i] ^ x
		x = k.f(z) ^ y
		y = z
	}
	p[1] = x ^ k.keybuf[0x1]
	p[0] = y ^ k.keybuf[0x0]
}

// f is the round function: four S-box lookups on the bytes of z,
// combined add/xor/add per the Blowfish F-function shape.
func (k *key1Cipher) f(z uint32) uint32 {
	a := k.keybuf[0x012+int(z>>24&0xFF)]
	b := k.keybuf[0x112+int(z>>16&0xFF)]
	c := k.keybuf[0x212+int(z>>8&0xFF)]
	d := k.keybuf[0x312+int(z&0xFF)]
	return d + (c ^ (a + b))
}

// applyKeycode mixes a game-code-derived keycode into the subkey table,
// following cart_apply_keycode: the keycode itself is first run through
// two rounds of encryption against the fixed table, then every subkey
// and S-box entry is XORed with a byte-swapped window of the keycode,
// re-encrypting pairs of entries as it goes so each mix depends on the
// previous.
func (k *key1Cipher) applyKeycode(code *[3]uint32, modulo int) {
	k.encrypt64(&[2]uint32{code[1], code[2]})
	var tmp [2]uint32
	tmp[0] = code[1]
	tmp[1] = code[2]
	k.encrypt64(&tmp)
	code[1], code[2] = tmp[0], tmp[1]

	k.encrypt64(&[2]uint32{code[0], code[1]})
	tmp[0] = code[0]
	tmp[1] = code[1]
	k.encrypt64(&tmp)
	code[0], code[1] = tmp[0], tmp[1]

	var scratch [2]uint32
	for i := 0; i <= 0x11; i++ {
		idx := i
		if modulo == 2 {
			idx = i ^ 1
		}
		k.keybuf[i] ^= byteswap32(code[idx%3])
	}
	for i := 0; i < 0x412; i += 2 {
		k.encrypt64(&scratch)
		k.keybuf[i] = scratch[0]
		k.keybuf[i+1] = scratch[1]
	}
}

// cartInitKeycode derives the initial keycode array from the cartridge
// game code (a 4-byte ASCII tag in the ROM header) and mixes it in
// `level` times, per cart_init_keycode.
func (k *key1Cipher) cartInitKeycode(gamecode uint32, level int, modulo int) [3]uint32 {
	code := [3]uint32{gamecode, gamecode >> 1, gamecode << 1}
	if level >= 1 {
		k.applyKeycode(&code, modulo)
	}
	if level >= 2 {
		k.applyKeycode(&code, modulo)
	}
	code[1] <<= 1
	code[2] >>= 1
	if level >= 3 {
		k.applyKeycode(&code, modulo)
	}
	return code
}

// encryptSecureArea re-encrypts the cartridge's secure area block (the
// first 0x800 bytes following the header, present on commercial carts)
// after the emulated boot process has decrypted and executed it, since
// real hardware leaves the area re-encrypted in ROM once the secure-area
// decryption pass completes during boot. data must be at least 0x800
// bytes and 8-byte aligned in length.
func (k *key1Cipher) encryptSecureArea(data []byte) {
	var block [2]uint32
	block[1] = readLE32(data, 0)
	block[0] = readLE32(data, 4)
	k.encrypt64(&block)
	writeLE32(data, 0, block[1])
	writeLE32(data, 4, block[0])

	for off := 8; off+8 <= len(data) && off < 0x800; off += 8 {
		block[1] = readLE32(data, off)
		block[0] = readLE32(data, off+4)
		k.encrypt64(&block)
		writeLE32(data, off, block[1])
		writeLE32(data, off+4, block[0])
	}
}

// decryptBlock decrypts one 8-byte block in place using decrypt64,
// the operation used for streaming KEY1-mode command responses.
func (k *key1Cipher) decryptBlock(data []byte, off int) {
	var block [2]uint32
	block[1] = readLE32(data, off)
	block[0] = readLE32(data, off+4)
	k.decrypt64(&block)
	writeLE32(data, off, block[1])
	writeLE32(data, off+4, block[0])
}
