package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jmerrifield20/debenture/internal/bond"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned when an address/secret pair does not match.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Principals maps caller addresses to bcrypt hashes of their API secrets.
type Principals map[bond.Address]string

// NewPrincipals builds a Principals table from raw config values. Addresses
// are trimmed; entries with an empty hash are skipped.
func NewPrincipals(raw map[string]string) Principals {
	p := make(Principals, len(raw))
	for addr, hash := range raw {
		addr = strings.TrimSpace(addr)
		if addr == "" || hash == "" {
			continue
		}
		p[bond.Address(addr)] = hash
	}
	return p
}

// Authenticate checks secret against the stored hash of address.
func (p Principals) Authenticate(address bond.Address, secret string) error {
	hash, ok := p[address]
	if !ok || secret == "" {
		// Compare against a dummy hash so unknown addresses cost the same.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(secret))
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// HashSecret returns the bcrypt hash to store for secret.
func HashSecret(secret string) (string, error) {
	if len(secret) < 12 {
		return "", fmt.Errorf("secret must be at least 12 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hash), nil
}

var dummyHash = []byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOa1/0nNn3Wj5aJv5Gx6RHLY6QpX8lJ9W")
