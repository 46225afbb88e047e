package tupw

import (
	"encoding/binary"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/crypto/blake2b"
)

// maskWindowCacheSize bounds the number of position masks one generator
// caches at once (one LRU entry per position). Repeated getAt/setAt
// calls on the same index reuse the cached mask instead of re-hashing,
// without the cache growing unbounded.
const maskWindowCacheSize = 256

// maskGenerator produces a deterministic pseudo-random mask byte for
// every position of one masked byte container. Two generators built
// from the same instanceSecret produce the same mask stream, but two
// generators with different secrets diverge completely: the mask is a
// keyed PRF over the position, not a reusable one-time pad.
type maskGenerator struct {
	instanceSecret [32]byte
	cache          *lru.Cache
}

// newMaskGenerator derives an instance secret from sr and returns a
// generator seeded from it. Every masked byte container owns its own
// generator and its own secret.
func newMaskGenerator(sr SecureRandom) (*maskGenerator, error) {
	seed, err := randomBytes(sr, 32)
	if err != nil {
		return nil, err
	}
	cache, err := lru.New(maskWindowCacheSize)
	if err != nil {
		return nil, wrapErr(KindCryptographicInvariant, "failed to allocate mask window cache", err)
	}
	g := &maskGenerator{cache: cache}
	copy(g.instanceSecret[:], seed)
	Zero(seed)
	return g, nil
}

// intMask returns the 32-bit mask for position, derived as
// BLAKE2b-256(instanceSecret, position-as-8-byte-big-endian) truncated
// to its first 4 bytes.
func (g *maskGenerator) intMask(position uint64) uint32 {
	if v, ok := g.cache.Get(position); ok {
		return v.(uint32)
	}

	var posBytes [8]byte
	binary.BigEndian.PutUint64(posBytes[:], position)

	h, _ := blake2b.New256(g.instanceSecret[:])
	h.Write(posBytes[:])
	sum := h.Sum(nil)

	mask := binary.BigEndian.Uint32(sum[:4])
	g.cache.Add(position, mask)
	return mask
}

// byteMask returns the low byte of intMask(position).
func (g *maskGenerator) byteMask(position uint64) byte {
	return byte(g.intMask(position))
}

// destroy wipes the instance secret. The generator must not be used
// afterward.
func (g *maskGenerator) destroy() {
	for i := range g.instanceSecret {
		g.instanceSecret[i] = 0
	}
	g.cache.Purge()
}
