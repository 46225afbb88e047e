package tupw

import (
	"crypto/hmac"
	"crypto/sha256"
)

const (
	minKDKLen = 14
	maxKDKLen = 32
)

var subjectPrefixSalt = []byte("Tu")
var subjectSuffixSalt = []byte("pW")

// derivedKeyPair holds the two 16-byte keys that spec.md §3 derives
// once, at engine construction, from the caller's key-derivation key
// and source bytes: dataKeyBase feeds AES, authKeyBase feeds HMAC.
type derivedKeyPair struct {
	dataKey *maskedBytes
	authKey *maskedBytes
}

// deriveKeyPair computes HMAC-SHA-256(kdk, concat(sources)), splitting
// the 32-byte result into two 16-byte halves, each immediately wrapped
// in its own masked container. Every intermediate buffer is zeroed
// before returning.
func deriveKeyPair(sr SecureRandom, kdk []byte, sources [][]byte) (*derivedKeyPair, error) {
	if len(kdk) < minKDKLen || len(kdk) > maxKDKLen {
		return nil, newErr(KindIllegalArgument, "key-derivation key must be between 14 and 32 bytes")
	}
	if err := checkEntropy(sources); err != nil {
		return nil, err
	}

	mac := hmac.New(sha256.New, kdk)
	for _, s := range sources {
		mac.Write(s)
	}
	sum := mac.Sum(nil)
	defer Zero(sum)

	dataKey, err := newMaskedBytes(sr, sum, 0, 16)
	if err != nil {
		return nil, err
	}
	authKey, err := newMaskedBytes(sr, sum, 16, 16)
	if err != nil {
		dataKey.destroy()
		return nil, err
	}

	return &derivedKeyPair{dataKey: dataKey, authKey: authKey}, nil
}

// destroy destroys both underlying masked containers. Idempotent.
func (p *derivedKeyPair) destroy() {
	if p.dataKey != nil {
		p.dataKey.destroy()
	}
	if p.authKey != nil {
		p.authKey.destroy()
	}
}

// effectiveKeys derives the per-call data and authentication keys for
// subject, per spec.md §4.9. An empty subject returns the base keys
// unchanged (16 bytes each, AES-128). A non-empty subject derives a
// full 32-byte effective data key, so encryption becomes AES-256.
// Every returned slice is a fresh allocation owned by the caller.
func (p *derivedKeyPair) effectiveKeys(subject []byte) (dataKey, authKey []byte, err error) {
	dataKeyBase, err := p.dataKey.getData()
	if err != nil {
		return nil, nil, err
	}
	defer Zero(dataKeyBase)

	authKeyBase, err := p.authKey.getData()
	if err != nil {
		return nil, nil, err
	}
	defer Zero(authKeyBase)

	if len(subject) == 0 {
		dataKey = append([]byte{}, dataKeyBase...)
		authKey = append([]byte{}, authKeyBase...)
		return dataKey, authKey, nil
	}

	dataKey = subjectDerive(authKeyBase, dataKeyBase, subject)
	authKey = subjectDerive(dataKeyBase, authKeyBase, subject)
	return dataKey, authKey, nil
}

// subjectDerive computes HMAC-SHA-256(macKey, base || "Tu" || subject || "pW").
func subjectDerive(macKey, base, subject []byte) []byte {
	mac := hmac.New(sha256.New, macKey)
	mac.Write(base)
	mac.Write(subjectPrefixSalt)
	mac.Write(subject)
	mac.Write(subjectSuffixSalt)
	return mac.Sum(nil)
}
