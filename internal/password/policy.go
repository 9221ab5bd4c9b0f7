// Package password hashes administrator credentials and checks them
// against the configurable password policy.
package password

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/unicode/norm"
)

// DefaultMinLength is used when no minimum length has been configured.
const DefaultMinLength = 6

// DefaultCharacterGroups mirrors the policy shipped with fresh installs.
const DefaultCharacterGroups = `A-Za-z0-9   |   ~!@#$%&*_+` + "`" + `-(),.\^'"/[]{}=:;?\|`

const (
	saltPool   = "abcdefghijklmnopqursuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789~!@#$%^*()_+-={}[]|;,.?/"
	saltLength = 30
)

// ErrPolicyViolation is matched by every *PolicyViolation.
var ErrPolicyViolation = errors.New("password: policy violation")

// Reason classifies a policy failure.
type Reason string

const (
	ReasonTooShort     Reason = "too-short"
	ReasonMissingClass Reason = "missing-class"
)

// PolicyViolation reports why a password was rejected. Message is meant to
// be shown to the user as is.
type PolicyViolation struct {
	Reason  Reason
	Message string
}

func (v *PolicyViolation) Error() string { return v.Message }

// Unwrap lets errors.Is match ErrPolicyViolation.
func (v *PolicyViolation) Unwrap() error { return ErrPolicyViolation }

// Hash returns the hex digest of username, plaintext and the installation
// salt. Inputs are NFC normalized so equivalent Unicode spellings agree.
func Hash(username, plaintext, salt string) string {
	sum := blake2b.Sum256([]byte(norm.NFC.String(username + plaintext + salt)))
	return hex.EncodeToString(sum[:])
}

// GenerateSalt returns a fresh installation salt.
func GenerateSalt() (string, error) {
	limit := big.NewInt(int64(len(saltPool)))
	var b strings.Builder
	b.Grow(saltLength)
	for range saltLength {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("password: generate salt: %w", err)
		}
		b.WriteByte(saltPool[n.Int64()])
	}
	return b.String(), nil
}

// Validate checks plaintext against the minimum length and the character
// groups. With groups configured, at least one character must belong to
// at least one group.
func Validate(plaintext string, minLength int, groups string) error {
	if minLength > 0 && utf8.RuneCountInString(plaintext) < minLength {
		return &PolicyViolation{
			Reason:  ReasonTooShort,
			Message: fmt.Sprintf("Password must be at least %d characters", minLength),
		}
	}
	parsed := ParseGroups(groups)
	if len(parsed) == 0 {
		return nil
	}
	for _, g := range parsed {
		if g.matchesAny(plaintext) {
			return nil
		}
	}
	return &PolicyViolation{
		Reason:  ReasonMissingClass,
		Message: "Password must contain at least one of " + joinGroups(parsed),
	}
}

// Describe renders the policy as a sentence for display next to password
// inputs. It returns "" when nothing is enforced.
func Describe(minLength int, groups string) string {
	parsed := ParseGroups(groups)
	list := joinGroups(parsed)
	switch {
	case len(parsed) == 1 && minLength > 0:
		return fmt.Sprintf("Note: passwords must be at least %d characters long and contain at least one character from %s.", minLength, list)
	case len(parsed) > 1 && minLength > 0:
		return fmt.Sprintf("Note: passwords must be at least %d characters long and contain at least one character from each of the following groups: %s.", minLength, list)
	case len(parsed) == 1:
		return fmt.Sprintf("Note: passwords must contain at least one character from %s.", list)
	case len(parsed) > 1:
		return fmt.Sprintf("Note: passwords must contain at least one character from each of the following groups: %s.", list)
	case minLength > 0:
		return fmt.Sprintf("Note: passwords must be at least %d characters long.", minLength)
	default:
		return ""
	}
}

func joinGroups(groups []Group) string {
	parts := make([]string, len(groups))
	for i, g := range groups {
		parts[i] = "{" + g.Source + "}"
	}
	return strings.Join(parts, ", ")
}
