package coordinator

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

// ErrBadSignature covers forged, malformed and stale message envelopes.
var ErrBadSignature = errors.New("bad message signature")

// Key derivation parameters. Must match the pool server.
const (
	keyIterations = 4096
	keySize       = 32
)

var keySalt = []byte("payout-rpc.v1")

const sep = '.'

// Signer seals and opens the timestamped envelopes exchanged with the pool
// server. An envelope is payload "." base64url(ts) "." base64url(sig),
// where ts is big-endian Unix seconds with leading zero bytes trimmed and
// sig is an HMAC-SHA256 over everything before it.
type Signer struct {
	key    []byte
	maxAge time.Duration

	now func() time.Time
}

// NewSigner derives the envelope key from the shared secret. Envelopes
// older than maxAge fail to open.
func NewSigner(secret string, maxAge time.Duration) *Signer {
	return &Signer{
		key:    pbkdf2.Key([]byte(secret), keySalt, keyIterations, keySize, sha256.New),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Seal wraps payload in a signed, timestamped envelope.
func (s *Signer) Seal(payload []byte) []byte {
	ts := encodeTimestamp(s.now().Unix())

	signed := make([]byte, 0, len(payload)+len(ts)+1)
	signed = append(signed, payload...)
	signed = append(signed, sep)
	signed = append(signed, ts...)

	out := append(signed, sep)
	return append(out, s.sign(signed)...)
}

// Open verifies an envelope and returns its payload. The payload may
// contain dots, so the envelope is split on the two rightmost ones.
func (s *Signer) Open(blob []byte) ([]byte, error) {
	sigAt := bytes.LastIndexByte(blob, sep)
	if sigAt < 0 {
		return nil, fmt.Errorf("%w: no signature", ErrBadSignature)
	}
	signed, sig := blob[:sigAt], blob[sigAt+1:]

	if !hmac.Equal(sig, s.sign(signed)) {
		return nil, fmt.Errorf("%w: signature mismatch", ErrBadSignature)
	}

	tsAt := bytes.LastIndexByte(signed, sep)
	if tsAt < 0 {
		return nil, fmt.Errorf("%w: no timestamp", ErrBadSignature)
	}
	payload, rawTS := signed[:tsAt], signed[tsAt+1:]

	ts, err := decodeTimestamp(rawTS)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	// Future timestamps pass; clocks skew both ways.
	if age := s.now().Sub(time.Unix(ts, 0)); age > s.maxAge {
		return nil, fmt.Errorf("%w: envelope is %s old (max %s)",
			ErrBadSignature, age.Truncate(time.Second), s.maxAge)
	}

	return payload, nil
}

func (s *Signer) sign(data []byte) []byte {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(data)
	return []byte(base64.RawURLEncoding.EncodeToString(mac.Sum(nil)))
}

func encodeTimestamp(unix int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(unix))

	i := 0
	for i < len(buf)-1 && buf[i] == 0 {
		i++
	}
	return []byte(base64.RawURLEncoding.EncodeToString(buf[i:]))
}

func decodeTimestamp(raw []byte) (int64, error) {
	b, err := base64.RawURLEncoding.DecodeString(string(raw))
	if err != nil {
		return 0, errors.New("undecodable timestamp")
	}
	if len(b) == 0 || len(b) > 8 {
		return 0, errors.New("timestamp out of range")
	}

	var buf [8]byte
	copy(buf[8-len(b):], b)
	return int64(binary.BigEndian.Uint64(buf[:])), nil
}
