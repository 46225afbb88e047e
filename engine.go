package tupw

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"sync"
	"unicode/utf8"

	"github.com/satori/go.uuid"
)

// Engine is the top-level envelope engine of spec.md §4.8. It owns the
// two derived keys for its lifetime and is safe for concurrent use:
// every mutating operation runs under the embedded mutex. ID is a per-instance
// correlation identifier, logged (never key material) alongside
// operational events.
type Engine struct {
	sync.Mutex

	sr   SecureRandom
	keys *derivedKeyPair

	ID uuid.UUID

	destroyed bool
}

// NewEngine validates kdk and sources, derives the working key pair,
// and returns a ready-to-use Engine. kdk is not retained past this
// call.
func NewEngine(sr SecureRandom, kdk []byte, sources [][]byte) (*Engine, error) {
	keys, err := deriveKeyPair(sr, kdk, sources)
	if err != nil {
		return nil, err
	}

	seed, err := randomBytes(sr, 32)
	if err != nil {
		keys.destroy()
		return nil, err
	}
	digest := sha256.Sum256(seed)
	Zero(seed)
	id, err := uuid.FromBytes(digest[:16])
	if err != nil {
		keys.destroy()
		return nil, wrapErr(KindCryptographicInvariant, "failed to derive engine correlation id", err)
	}

	e := &Engine{sr: sr, keys: keys, ID: id}
	log.Debugf("engine %s constructed", e.ID)
	return e, nil
}

// Destroy destroys the engine's derived keys. Idempotent; safe to call
// on every exit path.
func (e *Engine) Destroy() {
	e.Lock()
	defer e.Unlock()
	if e.destroyed {
		return
	}
	e.keys.destroy()
	e.destroyed = true
	log.Debugf("engine %s destroyed", e.ID)
}

// Encrypt produces a format-6 token authenticating and encrypting
// plaintext under subject (empty means no subject).
func (e *Engine) Encrypt(plaintext []byte, subject []byte) (string, error) {
	e.Lock()
	defer e.Unlock()
	if e.destroyed {
		return "", newErr(KindDestroyed, "engine has been destroyed")
	}

	blinded, err := blind(e.sr, plaintext, aesBlockSize+1)
	if err != nil {
		return "", err
	}
	defer Zero(blinded)

	padded, err := padRandom(e.sr, blinded, aesBlockSize)
	if err != nil {
		return "", err
	}
	defer Zero(padded)

	iv, err := randomBytes(e.sr, aesBlockSize)
	if err != nil {
		return "", err
	}

	dataKey, authKey, err := e.keys.effectiveKeys(subject)
	if err != nil {
		return "", err
	}
	defer Zero(dataKey)
	defer Zero(authKey)

	block, err := aes.NewCipher(dataKey)
	if err != nil {
		return "", wrapErr(KindCryptographicInvariant, "failed to construct aes cipher", err)
	}

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	tag := computeTag(authKey, currentFormatID, iv, ciphertext)

	token, err := formatToken(encodedParts{
		formatID: currentFormatID,
		iv:       iv,
		cipher:   ciphertext,
		tag:      tag,
	})
	if err != nil {
		return "", err
	}

	log.Debugf("engine %s encrypted %d plaintext bytes", e.ID, len(plaintext))
	return token, nil
}

// EncryptString converts s to UTF-8 bytes and encrypts them, wiping the
// transient byte buffer before returning.
func (e *Engine) EncryptString(s string, subject []byte) (string, error) {
	b := []byte(s)
	defer Zero(b)
	return e.Encrypt(b, subject)
}

// Decrypt parses token, verifies its authentication tag, and returns
// the recovered plaintext.
func (e *Engine) Decrypt(token string, subject []byte) ([]byte, error) {
	e.Lock()
	defer e.Unlock()
	if e.destroyed {
		return nil, newErr(KindDestroyed, "engine has been destroyed")
	}

	parts, err := parseToken(token)
	if err != nil {
		return nil, err
	}
	f := tokenFormats[parts.formatID]

	dataKeyBase, err := e.keys.dataKey.getData()
	if err != nil {
		return nil, err
	}
	defer Zero(dataKeyBase)
	authKeyBase, err := e.keys.authKey.getData()
	if err != nil {
		return nil, err
	}
	defer Zero(authKeyBase)

	var dataKey, authKey []byte
	if len(subject) == 0 {
		dataKey = dataKeyBase
		authKey = authKeyBase
	} else {
		dataKey = subjectDerive(authKeyBase, dataKeyBase, subject)
		defer Zero(dataKey)
		if f.subjectAwareTag {
			authKey = subjectDerive(dataKeyBase, authKeyBase, subject)
			defer Zero(authKey)
		} else {
			// format 4 preserves a historical bug: the tag was always
			// computed with the default auth key, ignoring subject.
			authKey = authKeyBase
		}
	}

	wantTag := computeTag(authKey, parts.formatID, parts.iv, parts.cipher)
	if !ConstantTimeEqual(wantTag, parts.tag) {
		return nil, newErr(KindDataIntegrity, "authentication tag mismatch")
	}

	if len(parts.iv) != aesBlockSize {
		return nil, newErr(KindIllegalArgument, "iv field has the wrong length")
	}
	if len(parts.cipher) == 0 || len(parts.cipher)%aesBlockSize != 0 {
		return nil, newErr(KindIllegalArgument, "ciphertext field is not a whole number of blocks")
	}

	block, err := aes.NewCipher(dataKey)
	if err != nil {
		return nil, wrapErr(KindCryptographicInvariant, "failed to construct aes cipher", err)
	}

	decrypted := make([]byte, len(parts.cipher))
	switch f.mode {
	case modeCBC:
		cipher.NewCBCDecrypter(block, parts.iv).CryptBlocks(decrypted, parts.cipher)
	case modeCTR:
		cipher.NewCTR(block, parts.iv).XORKeyStream(decrypted, parts.cipher)
	case modeCFB:
		cipher.NewCFBDecrypter(block, parts.iv).XORKeyStream(decrypted, parts.cipher)
	}
	defer Zero(decrypted)

	var plaintext []byte
	if f.randomPadding {
		plaintext, err = unblind(decrypted)
	} else {
		plaintext, err = unpadArbitraryTail(decrypted)
	}
	if err != nil {
		return nil, err
	}

	log.Debugf("engine %s decrypted a format %c token", e.ID, parts.formatID)
	return plaintext, nil
}

// DecryptString decrypts token and validates the recovered plaintext as
// UTF-8, failing with character-coding on malformed sequences.
func (e *Engine) DecryptString(token string, subject []byte) (string, error) {
	b, err := e.Decrypt(token, subject)
	if err != nil {
		return "", err
	}
	defer Zero(b)

	if !utf8.Valid(b) {
		return "", newErr(KindCharacterCoding, "decrypted plaintext is not valid utf-8")
	}
	return string(b), nil
}

// computeTag returns HMAC-SHA-256(authKey, formatID || iv || ciphertext).
func computeTag(authKey []byte, formatID byte, iv, ciphertext []byte) []byte {
	mac := hmac.New(sha256.New, authKey)
	mac.Write([]byte{formatID})
	mac.Write(iv)
	mac.Write(ciphertext)
	return mac.Sum(nil)
}
