package adc

import (
	"crypto/rand"
	"errors"

	"github.com/direct-connect/go-dc/tiger"
)

// ErrPIDMismatch is returned by VerifyIdentity when a client's PID does not
// hash to the CID it also supplied.
var ErrPIDMismatch = errors.New("adc: PID does not match CID")

// VerifyIdentity checks the identity invariant: if an INF carries both ID
// (the CID) and PD (the PID), then Tiger(PD) must equal ID. If only ID is
// present, the identity is accepted as asserted — there is nothing to
// verify it against. VerifyIdentity does not modify inf; keeping PD out of
// anything forwarded to other clients is the caller's job.
func VerifyIdentity(inf INF) error {
	idStr, hasID := inf["ID"]
	pdStr, hasPD := inf["PD"]
	if !hasID || !hasPD {
		return nil
	}
	id, err := B32Decode(idStr)
	if err != nil {
		return ErrPIDMismatch
	}
	pd, err := B32Decode(pdStr)
	if err != nil {
		return ErrPIDMismatch
	}
	h := tiger.HashBytes(pd)
	if h != idToHash(id) {
		return ErrPIDMismatch
	}
	return nil
}

// idToHash adapts a decoded CID's raw bytes to a tiger.Hash for comparison.
func idToHash(b []byte) (h tiger.Hash) {
	copy(h[:], b)
	return h
}

// HashPassword computes the VERIFY-stage password response:
// Base32(Tiger(password ‖ Base32Decode(nonce))), with padding stripped.
func HashPassword(password, nonceB32 string) (string, error) {
	nonce, err := B32Decode(nonceB32)
	if err != nil {
		return "", err
	}
	buf := make([]byte, 0, len(password)+len(nonce))
	buf = append(buf, password...)
	buf = append(buf, nonce...)
	h := tiger.HashBytes(buf)
	return B32Encode(h[:]), nil
}

// NewNonce generates a fresh 16-character Base32 nonce for the GPA/PAS
// password challenge.
func NewNonce() (string, error) {
	return randBase32(16)
}

// NewSID draws a random 4-character Base32 string suitable as a candidate
// SID; the caller (Hub.allocateSID) is responsible for collision checks.
func NewSID() (SID, error) {
	s, err := randBase32(4)
	if err != nil {
		return "", err
	}
	return SID(s), nil
}

const base32Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

func randBase32(n int) (string, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range raw {
		out[i] = base32Alphabet[int(b)%len(base32Alphabet)]
	}
	return string(out), nil
}
