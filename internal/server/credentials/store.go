// Package credentials hashes and verifies PINs with bcrypt.
package credentials

import (
	"fmt"

	"github.com/dmitrijs2005/voicemfa/internal/common"
	"golang.org/x/crypto/bcrypt"
)

// MinCost is the lowest accepted bcrypt work factor.
const MinCost = 12

// Store hashes PINs at a fixed cost. It keeps one digest of a random PIN
// around so lookups of unknown users can spend the same time comparing.
type Store struct {
	cost  int
	dummy []byte
}

func NewStore(cost int) (*Store, error) {
	if cost < MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("%w: bcrypt cost %d outside [%d, %d]", common.ErrConfig, cost, MinCost, bcrypt.MaxCost)
	}
	s := &Store{cost: cost}

	pin, err := common.MakeRandHexString(common.PINMaxLength / 2)
	if err != nil {
		return nil, err
	}
	if s.dummy, err = bcrypt.GenerateFromPassword([]byte(pin), cost); err != nil {
		return nil, err
	}
	return s, nil
}

// ValidatePIN enforces 4 to 12 ASCII letters or digits.
func ValidatePIN(pin string) error {
	if len(pin) < common.PINMinLength || len(pin) > common.PINMaxLength {
		return common.Validationf("PIN must be %d-%d characters", common.PINMinLength, common.PINMaxLength)
	}
	for i := 0; i < len(pin); i++ {
		if !isAlnum(pin[i]) {
			return common.Validationf("PIN must be alphanumeric")
		}
	}
	return nil
}

// ValidateUsername enforces 3 to 50 ASCII letters, digits or underscores.
func ValidateUsername(username string) error {
	if len(username) < common.UsernameMinLength || len(username) > common.UsernameMaxLength {
		return common.Validationf("username must be %d-%d characters", common.UsernameMinLength, common.UsernameMaxLength)
	}
	for i := 0; i < len(username); i++ {
		if c := username[i]; !isAlnum(c) && c != '_' {
			return common.Validationf("username may contain letters, digits and underscore only")
		}
	}
	return nil
}

func isAlnum(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// Hash validates pin and returns its salted bcrypt digest.
func (s *Store) Hash(pin string) ([]byte, error) {
	if err := ValidatePIN(pin); err != nil {
		return nil, err
	}
	return bcrypt.GenerateFromPassword([]byte(pin), s.cost)
}

// Verify reports whether pin matches digest. Malformed digests, policy
// violations and panics inside the comparison all read as a mismatch.
func (s *Store) Verify(pin string, digest []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return bcrypt.CompareHashAndPassword(digest, []byte(pin)) == nil
}

// Burn performs a comparison against a throwaway digest so that an unknown
// username costs as much as a wrong PIN.
func (s *Store) Burn(pin string) {
	_ = bcrypt.CompareHashAndPassword(s.dummy, []byte(pin))
}
