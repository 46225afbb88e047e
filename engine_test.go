package tupw

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"testing"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	kdk := randomSourceBytes(t, 24)
	sources := [][]byte{randomSourceBytes(t, 256)}
	e, err := NewEngine(NewCryptoRandSource(), kdk, sources)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestEngineRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	defer e.Destroy()

	plaintexts := [][]byte{
		{},
		[]byte("x"),
		[]byte("hunter2"),
		bytes.Repeat([]byte("secret"), 50),
	}
	for _, p := range plaintexts {
		token, err := e.Encrypt(p, nil)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", p, err)
		}
		got, err := e.Decrypt(token, nil)
		if err != nil {
			t.Fatalf("Decrypt of %q round trip: %v", p, err)
		}
		if !bytes.Equal(got, p) {
			t.Fatalf("round trip of %q produced %q", p, got)
		}
	}
}

func TestEngineRoundTripWithSubject(t *testing.T) {
	e := newTestEngine(t)
	defer e.Destroy()

	token, err := e.EncryptString("hello, subject", []byte("alice"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := e.DecryptString(token, []byte("alice"))
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello, subject" {
		t.Fatalf("got %q, want %q", got, "hello, subject")
	}
}

func TestEngineSubjectSeparation(t *testing.T) {
	e := newTestEngine(t)
	defer e.Destroy()

	token, err := e.EncryptString("secret", []byte("alice"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.DecryptString(token, []byte("bob")); !IsKind(err, KindDataIntegrity) {
		t.Fatalf("expected data-integrity decrypting under the wrong subject, got %v", err)
	}
}

func TestEngineTamperEvidence(t *testing.T) {
	e := newTestEngine(t)
	defer e.Destroy()

	token, err := e.EncryptString("a tamper-evident secret", nil)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < len(token); i++ {
		if token[i] == '1' {
			continue // the separator; flipping it changes the field split, not a single field's bits
		}
		tampered := []byte(token)
		tampered[i] ^= 0x01
		if _, err := e.Decrypt(string(tampered), nil); err == nil {
			t.Fatalf("decrypt of a tampered token at byte %d succeeded", i)
		}
	}
}

func TestEngineIVFreshness(t *testing.T) {
	e := newTestEngine(t)
	defer e.Destroy()

	t1, err := e.EncryptString("same plaintext", nil)
	if err != nil {
		t.Fatal(err)
	}
	t2, err := e.EncryptString("same plaintext", nil)
	if err != nil {
		t.Fatal(err)
	}
	if t1 == t2 {
		t.Fatal("two encryptions of the same plaintext produced identical tokens")
	}
}

func TestEngineLengthHiding(t *testing.T) {
	e := newTestEngine(t)
	defer e.Destroy()

	t1, err := e.EncryptString("a", nil)
	if err != nil {
		t.Fatal(err)
	}
	t2, err := e.EncryptString("abcdefghijklm", nil) // 13 bytes
	if err != nil {
		t.Fatal(err)
	}
	if len(t1) != len(t2) {
		t.Fatalf("token lengths differ for short plaintexts: %d vs %d", len(t1), len(t2))
	}
}

func TestEngineDestroyIsIdempotentAndPoisons(t *testing.T) {
	e := newTestEngine(t)
	e.Destroy()
	e.Destroy()

	if _, err := e.EncryptString("x", nil); !IsKind(err, KindDestroyed) {
		t.Fatalf("expected destroyed error after Destroy, got %v", err)
	}
}

func TestEngineRejectsBadKDK(t *testing.T) {
	sources := [][]byte{randomSourceBytes(t, 200)}
	if _, err := NewEngine(NewCryptoRandSource(), []byte("short"), sources); !IsKind(err, KindIllegalArgument) {
		t.Fatalf("expected illegal-argument for a too-short kdk, got %v", err)
	}
}

func TestEngineDecryptStringRejectsNonUTF8(t *testing.T) {
	e := newTestEngine(t)
	defer e.Destroy()

	invalid := []byte{0xff, 0xfe, 0xfd}
	token, err := e.Encrypt(invalid, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.DecryptString(token, nil); !IsKind(err, KindCharacterCoding) {
		t.Fatalf("expected character-coding for invalid utf-8 plaintext, got %v", err)
	}
}

// baseKeys extracts the engine's base (non-subject-derived) data and
// auth keys, for hand-constructing legacy-format tokens the way a
// pre-format-6 version of this library would have.
func baseKeys(t *testing.T, e *Engine) (dataKey, authKey []byte) {
	t.Helper()
	dataKey, err := e.keys.dataKey.getData()
	if err != nil {
		t.Fatal(err)
	}
	authKey, err = e.keys.authKey.getData()
	if err != nil {
		t.Fatal(err)
	}
	return dataKey, authKey
}

func randomIV(t *testing.T) []byte {
	t.Helper()
	iv := make([]byte, aesBlockSize)
	if _, err := rand.Read(iv); err != nil {
		t.Fatal(err)
	}
	return iv
}

func TestEngineDecryptLegacyFormat1CFB(t *testing.T) {
	e := newTestEngine(t)
	defer e.Destroy()

	dataKey, authKey := baseKeys(t, e)
	defer ZeroAll(dataKey, authKey)

	plaintext := []byte("legacy cfb secret")
	sr := fixedPadValueRandom{SecureRandom: NewCryptoRandSource(), value: 0xAA}
	padded, err := padArbitraryTail(sr, plaintext, aesBlockSize)
	if err != nil {
		t.Fatal(err)
	}

	iv := randomIV(t)
	block, err := aes.NewCipher(dataKey)
	if err != nil {
		t.Fatal(err)
	}
	ciphertext := make([]byte, len(padded))
	cipher.NewCFBEncrypter(block, iv).XORKeyStream(ciphertext, padded)
	tag := computeTag(authKey, '1', iv, ciphertext)

	token, err := formatToken(encodedParts{formatID: '1', iv: iv, cipher: ciphertext, tag: tag})
	if err != nil {
		t.Fatal(err)
	}

	got, err := e.Decrypt(token, nil)
	if err != nil {
		t.Fatalf("decrypting a hand-built format 1 token: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("format 1 decrypt returned %q, want %q", got, plaintext)
	}
}

func TestEngineDecryptLegacyFormat2CTR(t *testing.T) {
	e := newTestEngine(t)
	defer e.Destroy()

	dataKey, authKey := baseKeys(t, e)
	defer ZeroAll(dataKey, authKey)

	plaintext := []byte("legacy ctr secret")
	sr := fixedPadValueRandom{SecureRandom: NewCryptoRandSource(), value: 0xAA}
	padded, err := padArbitraryTail(sr, plaintext, aesBlockSize)
	if err != nil {
		t.Fatal(err)
	}

	iv := randomIV(t)
	block, err := aes.NewCipher(dataKey)
	if err != nil {
		t.Fatal(err)
	}
	ciphertext := make([]byte, len(padded))
	cipher.NewCTR(block, iv).XORKeyStream(ciphertext, padded)
	tag := computeTag(authKey, '2', iv, ciphertext)

	token, err := formatToken(encodedParts{formatID: '2', iv: iv, cipher: ciphertext, tag: tag})
	if err != nil {
		t.Fatal(err)
	}

	got, err := e.Decrypt(token, nil)
	if err != nil {
		t.Fatalf("decrypting a hand-built format 2 token: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("format 2 decrypt returned %q, want %q", got, plaintext)
	}
}

// TestEngineDecryptLegacyFormat4IgnoresSubjectInTag reproduces the
// documented format 4 HMAC bug (spec.md §8 scenario 3): a format 4
// token built and authenticated without a subject still passes its
// tag check when a subject is supplied at decrypt time, because format
// 4's tag always uses the default auth key. It is never reported as
// data-integrity, unlike every other format.
func TestEngineDecryptLegacyFormat4IgnoresSubjectInTag(t *testing.T) {
	e := newTestEngine(t)
	defer e.Destroy()

	dataKey, authKey := baseKeys(t, e)
	defer ZeroAll(dataKey, authKey)

	plaintext := []byte("legacy cbc secret")
	blinded, err := blind(NewCryptoRandSource(), plaintext, aesBlockSize+1)
	if err != nil {
		t.Fatal(err)
	}
	padded, err := padRandom(NewCryptoRandSource(), blinded, aesBlockSize)
	if err != nil {
		t.Fatal(err)
	}

	iv := randomIV(t)
	block, err := aes.NewCipher(dataKey)
	if err != nil {
		t.Fatal(err)
	}
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	tag := computeTag(authKey, '4', iv, ciphertext)

	token, err := formatToken(encodedParts{formatID: '4', iv: iv, cipher: ciphertext, tag: tag})
	if err != nil {
		t.Fatal(err)
	}

	got, err := e.Decrypt(token, nil)
	if err != nil {
		t.Fatalf("decrypting a hand-built format 4 token with no subject: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("format 4 decrypt with empty subject returned %q, want %q", got, plaintext)
	}

	if _, err := e.Decrypt(token, []byte("a subject never used at encryption time")); IsKind(err, KindDataIntegrity) {
		t.Fatal("format 4 token was rejected as data-integrity under a mismatched subject; the historical HMAC bug should bypass that check")
	}
}

func TestEngineConcurrentUse(t *testing.T) {
	e := newTestEngine(t)
	defer e.Destroy()

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func(n int) {
			p := make([]byte, 16)
			if _, err := rand.Read(p); err != nil {
				done <- err
				return
			}
			token, err := e.Encrypt(p, nil)
			if err != nil {
				done <- err
				return
			}
			got, err := e.Decrypt(token, nil)
			if err != nil {
				done <- err
				return
			}
			if !bytes.Equal(got, p) {
				done <- newErr(KindDataIntegrity, "concurrent round trip mismatch")
				return
			}
			done <- nil
		}(i)
	}
	for i := 0; i < 8; i++ {
		if err := <-done; err != nil {
			t.Fatal(err)
		}
	}
}
