package tupw

// Spell-safe Base32 codec. The alphabet excludes every vowel and every
// glyph that is commonly confused in handwriting or on the phone: l, I,
// O, 1, 0. That leaves the digits 2-9 and 20 lowercase consonants, 28
// symbols in all; 4 uppercase consonants
// (B, D, F, G) are added to reach exactly 32 symbols without
// reintroducing a vowel or a confusable glyph. See spec.md §4.3 and the
// Open Question resolution in DESIGN.md.
const base32Alphabet = "23456789bcdfghjkmnpqrstvwxyzBDFG"

var base32DecodeTable = buildBase32DecodeTable()

func buildBase32DecodeTable() [256]int8 {
	var t [256]int8
	for i := range t {
		t[i] = -1
	}
	for i := 0; i < len(base32Alphabet); i++ {
		t[base32Alphabet[i]] = int8(i)
	}
	return t
}

// encodeBase32 regroups data into 5-bit groups and maps each group
// through base32Alphabet. It emits no padding character; the decoded
// byte count is recovered from the encoded length alone, via
// decodedBase32Len.
func encodeBase32(data []byte) string {
	if len(data) == 0 {
		return ""
	}

	n := (len(data)*8 + 4) / 5
	out := make([]byte, n)

	var buf uint32
	bits := 0
	oi := 0
	for _, b := range data {
		buf = buf<<8 | uint32(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			out[oi] = base32Alphabet[(buf>>uint(bits))&0x1F]
			oi++
		}
	}
	if bits > 0 {
		out[oi] = base32Alphabet[(buf<<uint(5-bits))&0x1F]
		oi++
	}
	return string(out)
}

// decodedBase32Len returns the number of bytes encodeBase32 produced
// encodedLen symbols for: floor(5*encodedLen/8).
func decodedBase32Len(encodedLen int) int {
	return (encodedLen * 5) / 8
}

// decodeBase32 is the inverse of encodeBase32. It rejects any symbol
// outside base32Alphabet and any trailing bits that are not all zero,
// since a well-formed encoding never sets them.
func decodeBase32(s string) ([]byte, error) {
	if len(s) == 0 {
		return nil, nil
	}

	n := decodedBase32Len(len(s))
	out := make([]byte, n)

	var buf uint32
	bits := 0
	oi := 0
	for i := 0; i < len(s); i++ {
		v := base32DecodeTable[s[i]]
		if v < 0 {
			return nil, newErr(KindIllegalArgument, "invalid spell-safe base32 symbol")
		}
		buf = buf<<5 | uint32(v)
		bits += 5
		if bits >= 8 {
			bits -= 8
			out[oi] = byte(buf >> uint(bits))
			oi++
		}
	}
	if bits > 0 {
		leftover := buf & ((1 << uint(bits)) - 1)
		if leftover != 0 {
			return nil, newErr(KindIllegalArgument, "non-zero trailing bits in spell-safe base32 encoding")
		}
	}
	return out, nil
}
