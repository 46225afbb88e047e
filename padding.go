package tupw

const aesBlockSize = 16

// padRandom appends uniformly random bytes to the next block boundary.
// If p is already block-aligned, a full block is appended so the
// padding is never mistaken for absent. Used by every current-format
// encryption (formats 3-6); removal is implicit, handled by unblind's
// explicit length header rather than by inspecting the tail.
func padRandom(sr SecureRandom, p []byte, blockSize int) ([]byte, error) {
	pad := blockSize - len(p)%blockSize
	filler, err := randomBytes(sr, pad)
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, p...), filler...), nil
}

// padArbitraryTail is the legacy padding scheme used by formats 1-2: a
// single random byte value v is appended repeatedly until the next
// block boundary is reached, appending a full block of v if p is
// already aligned.
func padArbitraryTail(sr SecureRandom, p []byte, blockSize int) ([]byte, error) {
	pad := blockSize - len(p)%blockSize
	v, err := sr.RandInt(256)
	if err != nil {
		return nil, err
	}
	out := append([]byte{}, p...)
	for i := 0; i < pad; i++ {
		out = append(out, byte(v))
	}
	return out, nil
}

// unpadArbitraryTail strips every contiguous trailing occurrence of the
// final byte value. It is the inverse of padArbitraryTail and is only
// used when decrypting formats 1-2.
func unpadArbitraryTail(p []byte) ([]byte, error) {
	if len(p) == 0 {
		return nil, newErr(KindIllegalArgument, "cannot unpad an empty buffer")
	}
	v := p[len(p)-1]
	i := len(p)
	for i > 0 && p[i-1] == v {
		i--
	}
	out := make([]byte, i)
	copy(out, p[:i])
	return out, nil
}
