package atm

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	accountNumberRe = regexp.MustCompile(`^\d{10,16}$`)
	pinRe           = regexp.MustCompile(`^\d{4,6}$`)
	phoneRe         = regexp.MustCompile(`^\d{10}$`)
)

// ValidateLogin checks the shape of a login before it is sent.
func ValidateLogin(accountNumber, pin string) error {
	if !accountNumberRe.MatchString(accountNumber) {
		return ErrMalformedAccountNumber
	}
	if !pinRe.MatchString(pin) {
		return ErrMalformedPIN
	}
	return nil
}

func ValidatePINChange(current, next string) error {
	if !pinRe.MatchString(current) || !pinRe.MatchString(next) {
		return ErrMalformedPIN
	}
	if current == next {
		return ErrSamePIN
	}
	return nil
}

func ValidateRegistration(name, email, phone, accountNumber, pin string) error {
	if n := utf8.RuneCountInString(strings.TrimSpace(name)); n < 2 || n > 100 {
		return ErrMalformedName
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return ErrMalformedEmail
	}
	if !phoneRe.MatchString(phone) {
		return ErrMalformedPhone
	}
	return ValidateLogin(accountNumber, pin)
}
