package tupw

import (
	"encoding/base64"
	"strings"
)

// tokenFormat describes the wire conventions tied to one format id, per
// spec.md §6's token grammar and the format-to-mode table in §4.8.
type tokenFormat struct {
	separator byte
	base64    bool // false means spell-safe base32
	padded    bool // only meaningful when base64 is true
	mode      cipherMode
	// subjectAwareTag is false only for format 4, where the historical
	// implementation computed the authentication tag with the default
	// auth key even when a subject was supplied. Preserved verbatim so
	// old format-4 tokens keep verifying.
	subjectAwareTag bool
	randomPadding   bool // false selects legacy arbitrary-tail-byte padding
}

type cipherMode int

const (
	modeCFB cipherMode = iota
	modeCTR
	modeCBC
)

var tokenFormats = map[byte]tokenFormat{
	'1': {separator: '$', base64: true, padded: true, mode: modeCFB, subjectAwareTag: true, randomPadding: false},
	'2': {separator: '$', base64: true, padded: true, mode: modeCTR, subjectAwareTag: true, randomPadding: false},
	'3': {separator: '$', base64: true, padded: true, mode: modeCTR, subjectAwareTag: true, randomPadding: true},
	'4': {separator: '$', base64: true, padded: false, mode: modeCBC, subjectAwareTag: false, randomPadding: true},
	'5': {separator: '$', base64: true, padded: false, mode: modeCBC, subjectAwareTag: true, randomPadding: true},
	'6': {separator: '1', base64: false, padded: false, mode: modeCBC, subjectAwareTag: true, randomPadding: true},
}

// currentFormatID is the only format id encrypt ever produces.
const currentFormatID byte = '6'

// encodedParts holds the three non-header token fields before or after
// separator-joining and field-codec conversion.
type encodedParts struct {
	formatID byte
	iv       []byte
	cipher   []byte
	tag      []byte
}

// formatToken renders parts into the external four-field textual form.
func formatToken(parts encodedParts) (string, error) {
	f, ok := tokenFormats[parts.formatID]
	if !ok {
		return "", newErr(KindIllegalArgument, "unknown token format id")
	}

	encode := func(b []byte) string {
		if f.base64 {
			if f.padded {
				return base64.StdEncoding.EncodeToString(b)
			}
			return base64.RawStdEncoding.EncodeToString(b)
		}
		return encodeBase32(b)
	}

	sep := string(f.separator)
	fields := []string{
		string(parts.formatID),
		encode(parts.iv),
		encode(parts.cipher),
		encode(parts.tag),
	}
	return strings.Join(fields, sep), nil
}

// parseToken splits an external token into its decoded fields.
func parseToken(token string) (encodedParts, error) {
	if len(token) == 0 {
		return encodedParts{}, newErr(KindIllegalArgument, "empty token")
	}

	formatID := token[0]
	f, ok := tokenFormats[formatID]
	if !ok {
		return encodedParts{}, newErr(KindIllegalArgument, "unknown or unsupported token format id")
	}

	rest := token[1:]
	fields := strings.Split(rest, string(f.separator))
	if len(fields) != 4 {
		return encodedParts{}, newErr(KindIllegalArgument, "token must contain exactly four fields")
	}
	if fields[0] != "" {
		return encodedParts{}, newErr(KindIllegalArgument, "unexpected data between the format id and the first separator")
	}

	decode := func(s string) ([]byte, error) {
		if f.base64 {
			if f.padded {
				return base64.StdEncoding.DecodeString(s)
			}
			return base64.RawStdEncoding.DecodeString(s)
		}
		return decodeBase32(s)
	}

	iv, err := decode(fields[1])
	if err != nil {
		return encodedParts{}, newErr(KindIllegalArgument, "malformed iv field")
	}
	cipherText, err := decode(fields[2])
	if err != nil {
		return encodedParts{}, newErr(KindIllegalArgument, "malformed ciphertext field")
	}
	tag, err := decode(fields[3])
	if err != nil {
		return encodedParts{}, newErr(KindIllegalArgument, "malformed tag field")
	}

	return encodedParts{formatID: formatID, iv: iv, cipher: cipherText, tag: tag}, nil
}

func (m cipherMode) String() string {
	switch m {
	case modeCFB:
		return "AES-128-CFB"
	case modeCTR:
		return "AES-128-CTR"
	case modeCBC:
		return "AES-CBC"
	default:
		return "unknown"
	}
}

// TokenFormatInfo is a parsed, human-readable summary of a token's
// format metadata, reported by cmd/tupw's inspect verb. It never
// carries key material or decrypted plaintext.
type TokenFormatInfo struct {
	FormatID        byte
	Mode            string
	Encoding        string
	Separator       byte
	SubjectAwareTag bool
	CipherTextField []byte
}

// DescribeTokenFormat parses token far enough to report its format
// metadata, without deriving any key or attempting decryption.
func DescribeTokenFormat(token string) (TokenFormatInfo, error) {
	parts, err := parseToken(token)
	if err != nil {
		return TokenFormatInfo{}, err
	}
	f := tokenFormats[parts.formatID]

	encoding := "spell-safe base32"
	if f.base64 {
		if f.padded {
			encoding = "base64 (padded)"
		} else {
			encoding = "base64 (unpadded)"
		}
	}

	return TokenFormatInfo{
		FormatID:        parts.formatID,
		Mode:            f.mode.String(),
		Encoding:        encoding,
		Separator:       f.separator,
		SubjectAwareTag: f.subjectAwareTag,
		CipherTextField: parts.cipher,
	}, nil
}
