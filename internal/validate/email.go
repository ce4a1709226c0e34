package validate

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidEmail is returned for addresses that are not user@domain.tld.
var ErrInvalidEmail = errors.New("invalid email format")

// RFC 5321 limits.
const (
	maxEmailLength = 254
	maxLocalLength = 64
)

var (
	localPattern = regexp.MustCompile(`^[a-z0-9._%+\-]+$`)
	labelPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)
	tldPattern   = regexp.MustCompile(`^[a-z]{2,}$`)
)

// EmailKey returns the canonical form of an address. Accounts are unique on
// it and stores look users up by it.
func EmailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Email validates an account address and returns its EmailKey.
func Email(email string) (string, error) {
	key := EmailKey(email)
	if key == "" {
		return "", ErrEmpty
	}
	if len(key) > maxEmailLength {
		return "", ErrStringTooLong
	}

	local, domain, ok := strings.Cut(key, "@")
	if !ok || local == "" || strings.Contains(domain, "@") {
		return "", ErrInvalidEmail
	}
	if len(local) > maxLocalLength {
		return "", ErrStringTooLong
	}
	if !localPattern.MatchString(local) || !validDomain(domain) {
		return "", ErrInvalidEmail
	}
	return key, nil
}

// validDomain requires at least two labels and an alphabetic top-level label.
func validDomain(domain string) bool {
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return false
	}
	for _, l := range labels {
		if !labelPattern.MatchString(l) {
			return false
		}
	}
	return tldPattern.MatchString(labels[len(labels)-1])
}
