package tupw

import (
	"sync"
)

// maskedBytesBlockSize is the granularity the backing store is rounded
// up to. 50 matches spec.md §4.1: large enough that the random filler
// dwarfs any short secret, small enough that a one-byte payload doesn't
// allocate megabytes.
const maskedBytesBlockSize = 50

// maxMaskedBytesLength is the largest length new() accepts, matching
// spec.md's "(INT_MAX / 50) * 50" bound translated to Go's int32 range.
const maxMaskedBytesLength = (1<<31 - 1) / maskedBytesBlockSize * maskedBytesBlockSize

// Two fixed sentinel positions outside any real logical index, used to
// stash the (masked) start offset and length.
const (
	sentinelStartPosition  = ^uint64(0)
	sentinelLengthPosition = ^uint64(1)
)

// maskedBytes is the obfuscated in-memory container of spec.md §4.1. It
// holds a caller-supplied byte array scattered through a randomized,
// XOR-masked backing buffer so the plaintext never appears contiguous
// or unmasked in a memory dump. It is not a cryptographic primitive;
// it is defense-in-depth against passive memory inspection.
type maskedBytes struct {
	mu sync.Mutex

	gen *maskGenerator

	data  []byte
	index []uint32

	maskedStart  uint32
	maskedLength uint32

	valid bool

	cachedHash   uint32
	cachedHashOK bool
}

// newMaskedBytes copies length bytes of source starting at offset into
// a freshly constructed masked container.
func newMaskedBytes(sr SecureRandom, source []byte, offset, length int) (*maskedBytes, error) {
	if offset < 0 || length < 0 {
		return nil, newErr(KindIllegalArgument, "masked byte container offset and length must be non-negative")
	}
	if length > maxMaskedBytesLength {
		return nil, newErr(KindIllegalArgument, "masked byte container length exceeds the maximum")
	}
	if len(source) < offset+length {
		return nil, newErr(KindIllegalArgument, "source array shorter than offset+length")
	}

	gen, err := newMaskGenerator(sr)
	if err != nil {
		return nil, err
	}

	storeLength := length + (maskedBytesBlockSize - length%maskedBytesBlockSize)

	data, err := randomBytes(sr, storeLength)
	if err != nil {
		return nil, err
	}

	permutation := make([]uint32, storeLength)
	for i := range permutation {
		permutation[i] = uint32(i)
	}
	for i := storeLength - 1; i > 0; i-- {
		j, err := sr.RandInt(int64(i) + 1)
		if err != nil {
			return nil, err
		}
		permutation[i], permutation[j] = permutation[j], permutation[i]
	}

	index := make([]uint32, storeLength)
	for i, p := range permutation {
		index[i] = p ^ gen.intMask(uint64(i))
	}

	maxStart, err := sr.RandInt(int64(storeLength-length) + 1)
	if err != nil {
		return nil, err
	}
	startOffset := int(maxStart)

	for i := 0; i < length; i++ {
		physical := index[i+startOffset] ^ gen.intMask(uint64(i+startOffset))
		data[physical] = source[offset+i] ^ gen.byteMask(uint64(i))
	}

	mb := &maskedBytes{
		gen:          gen,
		data:         data,
		index:        index,
		maskedStart:  uint32(startOffset) ^ gen.intMask(sentinelStartPosition),
		maskedLength: uint32(length) ^ gen.intMask(sentinelLengthPosition),
		valid:        true,
	}
	return mb, nil
}

func (m *maskedBytes) startOffset() int {
	return int(m.maskedStart ^ m.gen.intMask(sentinelStartPosition))
}

func (m *maskedBytes) logicalLength() int {
	return int(m.maskedLength ^ m.gen.intMask(sentinelLengthPosition))
}

// length returns the number of logical bytes held, or an error if the
// container has been destroyed.
func (m *maskedBytes) length() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.valid {
		return 0, newErr(KindDestroyed, "masked byte container has been destroyed")
	}
	return m.logicalLength(), nil
}

// isValid reports whether the container has not yet been destroyed.
func (m *maskedBytes) isValid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.valid
}

func (m *maskedBytes) physicalIndex(i int) uint32 {
	pos := uint64(i + m.startOffset())
	return m.index[pos] ^ m.gen.intMask(pos)
}

// getAt returns the logical byte at index i, unmasked.
func (m *maskedBytes) getAt(i int) (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.valid {
		return 0, newErr(KindDestroyed, "masked byte container has been destroyed")
	}
	length := m.logicalLength()
	if i < 0 || i >= length {
		return 0, newErr(KindIllegalArgument, "masked byte container index out of bounds")
	}
	physical := m.physicalIndex(i)
	return m.data[physical] ^ m.gen.byteMask(uint64(i)), nil
}

// setAt overwrites the logical byte at index i and invalidates the
// cached hash.
func (m *maskedBytes) setAt(i int, b byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.valid {
		return newErr(KindDestroyed, "masked byte container has been destroyed")
	}
	length := m.logicalLength()
	if i < 0 || i >= length {
		return newErr(KindIllegalArgument, "masked byte container index out of bounds")
	}
	physical := m.physicalIndex(i)
	m.data[physical] = b ^ m.gen.byteMask(uint64(i))
	m.cachedHashOK = false
	return nil
}

// getData returns a freshly allocated plaintext copy. The caller owns
// the returned slice and is responsible for zeroing it.
func (m *maskedBytes) getData() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.valid {
		return nil, newErr(KindDestroyed, "masked byte container has been destroyed")
	}
	length := m.logicalLength()
	out := make([]byte, length)
	for i := 0; i < length; i++ {
		physical := m.physicalIndex(i)
		out[i] = m.data[physical] ^ m.gen.byteMask(uint64(i))
	}
	return out, nil
}

// hashCode lazily recomputes a hash of the current plaintext after any
// mutation and caches it until the next setAt.
func (m *maskedBytes) hashCode() (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.valid {
		return 0, newErr(KindDestroyed, "masked byte container has been destroyed")
	}
	if m.cachedHashOK {
		return m.cachedHash, nil
	}

	length := m.logicalLength()
	var h uint32 = 2166136261
	for i := 0; i < length; i++ {
		physical := m.physicalIndex(i)
		b := m.data[physical] ^ m.gen.byteMask(uint64(i))
		h ^= uint32(b)
		h *= 16777619
	}
	m.cachedHash = h
	m.cachedHashOK = true
	return h, nil
}

// equals compares two containers' logical plaintexts in constant time.
// Both temporary copies are zeroed before returning.
func (m *maskedBytes) equals(other *maskedBytes) (bool, error) {
	a, err := m.getData()
	if err != nil {
		return false, err
	}
	defer Zero(a)

	b, err := other.getData()
	if err != nil {
		return false, err
	}
	defer Zero(b)

	return ConstantTimeEqual(a, b), nil
}

// destroy zeroes every buffer and marks the container invalid. It is
// safe to call more than once.
func (m *maskedBytes) destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.valid {
		return
	}
	Zero(m.data)
	for i := range m.index {
		m.index[i] = 0
	}
	if m.gen != nil {
		m.gen.destroy()
	}
	m.valid = false
	m.cachedHashOK = false
}
