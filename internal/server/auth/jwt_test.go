package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/voicemfa/internal/common"
	"github.com/dmitrijs2005/voicemfa/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

var secret = []byte("0123456789abcdef0123456789abcdef")

func newIssuer(t *testing.T, now time.Time) *Issuer {
	t.Helper()
	i, err := NewIssuer(secret, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer error: %v", err)
	}
	i.now = func() time.Time { return now }
	return i
}

func TestIssueAndVerify_Success(t *testing.T) {
	t.Parallel()

	now := time.Now().Truncate(time.Second)
	i := newIssuer(t, now)

	tok, exp, err := i.Issue("id-1", "alice", models.RoleAdmin)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if !exp.Equal(now.Add(24 * time.Hour)) {
		t.Fatalf("expiry = %v", exp)
	}

	s, err := i.Verify(tok)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if s.Username != "alice" || s.IdentityID != "id-1" || s.Role != models.RoleAdmin || !s.ExpiresAt.Equal(exp) {
		t.Fatalf("unexpected session: %+v", s)
	}
}

func TestVerify_Expired(t *testing.T) {
	t.Parallel()

	now := time.Now().Truncate(time.Second)
	i := newIssuer(t, now)
	tok, _, err := i.Issue("id-1", "alice", models.RoleEmployee)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	i.now = func() time.Time { return now.Add(25 * time.Hour) }
	_, err = i.Verify(tok)
	if !errors.Is(err, common.ErrTokenExpired) || !errors.Is(err, common.ErrAuth) {
		t.Fatalf("expected ErrTokenExpired (an ErrAuth), got %v", err)
	}
}

func TestVerify_WrongKey(t *testing.T) {
	t.Parallel()

	now := time.Now()
	i := newIssuer(t, now)
	other, _ := NewIssuer([]byte("another-key-another-key-another!!"), time.Hour)
	other.now = i.now

	tok, _, _ := other.Issue("id-1", "alice", models.RoleEmployee)
	if _, err := i.Verify(tok); !errors.Is(err, common.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	now := time.Now()
	i := newIssuer(t, now)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "mallory",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		IdentityID: "id-9",
		Role:       "admin",
	}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}

	for name, tok := range map[string]string{"HS512": hs512, "none": none} {
		if _, err := i.Verify(tok); !errors.Is(err, common.ErrAuth) {
			t.Fatalf("%s: expected ErrAuth, got %v", name, err)
		}
	}
}

func TestVerify_TamperedAndMalformed(t *testing.T) {
	t.Parallel()

	i := newIssuer(t, time.Now())
	tok, _, _ := i.Issue("id-1", "alice", models.RoleEmployee)

	parts := strings.Split(tok, ".")
	parts[1] = parts[1][:len(parts[1])-2] + "AA"
	tampered := strings.Join(parts, ".")

	for _, bad := range []string{"", "not-a-token", "a.b.c", tampered} {
		if _, err := i.Verify(bad); !errors.Is(err, common.ErrAuth) {
			t.Fatalf("%q: expected ErrAuth, got %v", bad, err)
		}
	}
}

func TestVerify_UnknownRole(t *testing.T) {
	t.Parallel()

	now := time.Now()
	i := newIssuer(t, now)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		IdentityID: "id-1",
		Role:       "root",
	}).SignedString(secret)
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}

	if _, err := i.Verify(tok); !errors.Is(err, common.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
}

func TestNewIssuer_Invalid(t *testing.T) {
	t.Parallel()

	if _, err := NewIssuer(nil, time.Hour); !errors.Is(err, common.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
	if _, err := NewIssuer(secret, 0); !errors.Is(err, common.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}
