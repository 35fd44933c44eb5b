// Package validate holds the shared input checks applied to form payloads
// before anything is dispatched to a vendor.
package validate

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrMissingEmail is returned when the email field is absent or empty.
	ErrMissingEmail = errors.New("email is required")
	// ErrInvalidEmail is returned when the email does not look like local@domain.tld.
	ErrInvalidEmail = errors.New("invalid email format")
	// ErrSuspicious is returned when the email trips a spam heuristic.
	ErrSuspicious = errors.New("suspicious email")
)

// Deliberately permissive: one non-whitespace-non-@ run, @, another, a dot,
// another. Real deliverability is the email vendor's problem.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var digitRun = regexp.MustCompile(`\d{6,}`)

// Throwaway TLDs we have only ever seen on bot signups.
var disposableTLDs = map[string]struct{}{
	"xyz": {}, "top": {}, "work": {}, "guru": {}, "date": {},
	"bid": {}, "loans": {}, "stream": {}, "racing": {},
}

// Email checks presence and shape of an email address.
func Email(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return ErrMissingEmail
	}
	if !emailPattern.MatchString(s) {
		return ErrInvalidEmail
	}
	return nil
}

// Suspicious applies the spam heuristics used on the public footer form:
// test-prefixed or tiny local parts, long digit runs, disposable TLDs.
// The email must already have passed Email.
func Suspicious(email string) error {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ErrInvalidEmail
	}
	local, domain := email[:at], email[at+1:]

	if strings.HasPrefix(strings.ToLower(local), "test") {
		return ErrSuspicious
	}
	if len(local) <= 2 {
		return ErrSuspicious
	}
	if digitRun.MatchString(local) {
		return ErrSuspicious
	}
	if dot := strings.LastIndex(domain, "."); dot >= 0 {
		tld := strings.ToLower(domain[dot+1:])
		if _, ok := disposableTLDs[tld]; ok {
			return ErrSuspicious
		}
	}
	return nil
}
