package services

import (
	"context"
	"crypto/rand"
	"regexp"
	"strings"
)

const (
	accessCodeLength   = 8
	accessCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_-"

	// Collisions are astronomically unlikely at this alphabet size, but the
	// generation loop is still bounded.
	accessCodeMaxAttempts = 100
)

var accessCodeFormat = regexp.MustCompile(`^[A-Za-z0-9_-]{4,20}$`)

// Reserved or offensive tokens that may not appear anywhere inside a code,
// case-insensitively.
var accessCodeBlocklist = []string{
	"admin", "root", "system", "null",
	"fuck", "shit", "puta", "mierda", "pendejo", "cabron",
}

// AccessCodeStore answers whether a code is already taken by a non-completed
// session.
type AccessCodeStore interface {
	AccessCodeInUse(ctx context.Context, code string) (bool, error)
}

// AccessGate issues and validates session access codes.
type AccessGate struct {
	store   AccessCodeStore
	genCode func() string
}

func NewAccessGate(store AccessCodeStore) *AccessGate {
	return &AccessGate{store: store, genCode: randomAccessCode}
}

func randomAccessCode() string {
	// Rejection sampling: bytes at or above the largest multiple of the
	// alphabet size are discarded so every character is equally likely.
	limit := byte(256 - 256%len(accessCodeAlphabet))
	out := make([]byte, 0, accessCodeLength)
	buf := make([]byte, 2*accessCodeLength)
	for len(out) < accessCodeLength {
		if _, err := rand.Read(buf); err != nil {
			return ""
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, accessCodeAlphabet[int(b)%len(accessCodeAlphabet)])
			if len(out) == accessCodeLength {
				break
			}
		}
	}
	return string(out)
}

// ValidFormat is the charset/length check alone. The join path uses it so an
// unmatched code fails generically without a uniqueness probe.
func (g *AccessGate) ValidFormat(code string) bool {
	return accessCodeFormat.MatchString(code)
}

func blockedToken(code string) string {
	lower := strings.ToLower(code)
	for _, tok := range accessCodeBlocklist {
		if strings.Contains(lower, tok) {
			return tok
		}
	}
	return ""
}

// Validate runs the full check for a code about to be attached to a session:
// format, blocklist, and uniqueness among non-completed sessions.
func (g *AccessGate) Validate(ctx context.Context, code string) error {
	if !g.ValidFormat(code) {
		return NewInvalidError("el código debe tener entre 4 y 20 caracteres (letras, números, guion o guion bajo)")
	}
	if blockedToken(code) != "" {
		return NewInvalidError("el código contiene una palabra no permitida")
	}
	inUse, err := g.store.AccessCodeInUse(ctx, code)
	if err != nil {
		return err
	}
	if inUse {
		return NewConflictError("el código de acceso ya está en uso")
	}
	return nil
}

// Generate samples codes until one passes Validate. The loop terminates
// almost surely; the attempt bound guards against a broken store.
func (g *AccessGate) Generate(ctx context.Context) (string, error) {
	for i := 0; i < accessCodeMaxAttempts; i++ {
		code := g.genCode()
		if code == "" {
			continue
		}
		if err := g.Validate(ctx, code); err != nil {
			if _, ok := AsServiceError(err); ok {
				continue
			}
			return "", err
		}
		return code, nil
	}
	return "", NewInternalError("no se pudo generar un código de acceso")
}
