package tupw

import (
	"math"
	"strconv"
)

const (
	// minSourceTotalLength is the lower bound on combined source byte
	// length, in bytes.
	minSourceTotalLength = 100
	// maxSourceTotalLength is the upper bound on combined source byte
	// length, in bytes.
	maxSourceTotalLength = 10_000_000
	// minInfoBits is the minimum Shannon information content, in bits,
	// that the combined source bytes must carry.
	minInfoBits = 128.0
	// lowEntropyThreshold distinguishes "needs more bytes" from
	// "no variation at all" in the entropy guard's failure message.
	lowEntropyThreshold = 1.0 / (1 << 13)
)

// checkEntropy validates sources against spec.md §4.7: each array must
// be non-empty, the combined length must fall in
// [minSourceTotalLength, maxSourceTotalLength], and the combined Shannon
// information content must be at least minInfoBits.
func checkEntropy(sources [][]byte) error {
	if len(sources) == 0 {
		return newErr(KindIllegalArgument, "at least one source array is required")
	}

	total := 0
	for _, s := range sources {
		if len(s) == 0 {
			return newErr(KindIllegalArgument, "source array must not be empty")
		}
		total += len(s)
	}

	if total < minSourceTotalLength {
		return newErr(KindIllegalArgument, "fewer than 100 source bytes supplied")
	}
	if total > maxSourceTotalLength {
		return newErr(KindIllegalArgument, "source bytes exceed the 10,000,000 byte upper bound")
	}

	h := shannonEntropyBitsPerByte(sources, total)
	info := h * float64(total)
	if info >= minInfoBits {
		return nil
	}

	if h > lowEntropyThreshold {
		suggested := int(math.Ceil(minInfoBits/h)) + 1
		return newErr(KindIllegalArgument, "insufficient entropy: supply at least "+strconv.Itoa(suggested)+" bytes of source material")
	}
	return newErr(KindIllegalArgument, "no information: source bytes show no variation")
}

// shannonEntropyBitsPerByte computes H = -Σ p_i log2 p_i over a 256-slot
// byte-value histogram built from every source array.
func shannonEntropyBitsPerByte(sources [][]byte, total int) float64 {
	var histogram [256]int
	for _, s := range sources {
		for _, b := range s {
			histogram[b]++
		}
	}

	var h float64
	n := float64(total)
	for _, count := range histogram {
		if count == 0 {
			continue
		}
		p := float64(count) / n
		h -= p * math.Log2(p)
	}
	return h
}
