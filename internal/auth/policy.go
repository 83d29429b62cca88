package auth

import (
	"errors"
	"unicode"
	"unicode/utf8"
)

const (
	PasswordMinLength = 8
	PasswordMaxLength = 1024
)

var (
	ErrPasswordLength    = errors.New("password must be between 8 and 1024 characters")
	ErrPasswordLowercase = errors.New("password must contain a lowercase letter")
	ErrPasswordUppercase = errors.New("password must contain an uppercase letter")
	ErrPasswordDigit     = errors.New("password must contain a digit")
	ErrPasswordSpecial   = errors.New("password must contain a special character")
)

// ValidatePassword checks the password acceptance policy. Special characters
// are anything that is neither a letter nor a digit.
func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < PasswordMinLength || n > PasswordMaxLength {
		return ErrPasswordLength
	}

	var lower, upper, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case !unicode.IsLetter(r):
			special = true
		}
	}

	switch {
	case !lower:
		return ErrPasswordLowercase
	case !upper:
		return ErrPasswordUppercase
	case !digit:
		return ErrPasswordDigit
	case !special:
		return ErrPasswordSpecial
	}
	return nil
}
