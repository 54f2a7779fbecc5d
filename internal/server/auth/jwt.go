// Package auth issues and verifies signed session tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/voicemfa/internal/common"
	"github.com/dmitrijs2005/voicemfa/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the subject username, the identity ID and the role on top
// of the registered claims.
type Claims struct {
	jwt.RegisteredClaims
	IdentityID string `json:"uid"`
	Role       string `json:"role"`
}

// Session is what a verified token vouches for.
type Session struct {
	IdentityID string
	Username   string
	Role       models.Role
	ExpiresAt  time.Time
}

// Issuer signs HS256 tokens with a fixed lifetime. Verification only
// accepts HS256; the alg header of an incoming token is never trusted.
type Issuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewIssuer(secretKey []byte, ttl time.Duration) (*Issuer, error) {
	if len(secretKey) == 0 {
		return nil, fmt.Errorf("%w: empty session signing key", common.ErrConfig)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: session TTL must be positive", common.ErrConfig)
	}
	return &Issuer{key: secretKey, ttl: ttl, now: time.Now}, nil
}

// Issue returns a token for the identity along with its expiry.
func (i *Issuer) Issue(identityID, username string, role models.Role) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		IdentityID: identityID,
		Role:       role.String(),
	})

	signed, err := token.SignedString(i.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify checks signature, algorithm and expiry. Expired tokens return
// common.ErrTokenExpired; every other failure returns common.ErrAuth.
func (i *Issuer) Verify(tokenString string) (*Session, error) {
	claims := &Claims{}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(i.now),
	)
	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return i.key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrAuth, err)
	}
	if !token.Valid {
		return nil, common.ErrAuth
	}

	role, err := models.ParseRole(claims.Role)
	if err != nil || claims.Subject == "" || claims.IdentityID == "" {
		return nil, fmt.Errorf("%w: incomplete claims", common.ErrAuth)
	}

	return &Session{
		IdentityID: claims.IdentityID,
		Username:   claims.Subject,
		Role:       role,
		ExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}
