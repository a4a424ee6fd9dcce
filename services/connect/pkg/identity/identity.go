// Package identity holds the pure rules that map an institutional email
// address to a user identity: normalization, the short id shown in the UI,
// the role derived from the mail domain and the RUET student id format.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/ruet-connect/connect/services/connect/pkg/models"
)

// StudentDomain is the mail domain issued to enrolled students.
const StudentDomain = "student.ruet.ac.bd"

// StudentIDLength is the number of digits in a RUET student id (SSDDRRR).
const StudentIDLength = 7

// ErrMalformedEmail is returned when an address cannot be mapped to an identity.
var ErrMalformedEmail = errors.New("malformed email")

// NormalizeEmail returns a canonical form of an email address.
//
// For Gmail addresses (@gmail.com and @googlemail.com):
//   - Strips the "+suffix" from the local part (user+tag -> user)
//   - Removes all dots from the local part (u.s.e.r -> user)
//   - Normalizes @googlemail.com to @gmail.com
//
// For all addresses:
//   - Lowercases the entire address
//   - Trims whitespace
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(strings.ToLower(email))

	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}

	local := email[:at]
	domain := email[at+1:]

	if domain == "googlemail.com" {
		domain = "gmail.com"
	}
	if domain == "gmail.com" {
		if plus := strings.Index(local, "+"); plus >= 0 {
			local = local[:plus]
		}
		local = strings.ReplaceAll(local, ".", "")
	}

	return local + "@" + domain
}

// splitEmail lower-cases the address and splits it at the last '@'.
func splitEmail(email string) (local, domain string, err error) {
	email = strings.TrimSpace(strings.ToLower(email))
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedEmail, email)
	}
	return email[:at], email[at+1:], nil
}

// DeriveShortID returns the short identifier displayed for an address.
//
// Student addresses must carry a 7-digit student id as their local part,
// which becomes the short id. Any other domain yields the raw local part.
// The result depends on the email alone.
func DeriveShortID(email string) (string, error) {
	local, domain, err := splitEmail(email)
	if err != nil {
		return "", err
	}
	if domain != StudentDomain {
		return local, nil
	}
	if !isDigits(local, StudentIDLength) {
		return "", fmt.Errorf("%w: student address %q needs a %d-digit id", ErrMalformedEmail, email, StudentIDLength)
	}
	return local, nil
}

// IsStudentEmail reports whether the address belongs to the student domain.
func IsStudentEmail(email string) bool {
	_, domain, err := splitEmail(email)
	return err == nil && domain == StudentDomain
}

// RoleForEmail derives the role from the mail domain.
func RoleForEmail(email string) models.Role {
	if IsStudentEmail(email) {
		return models.RoleStudent
	}
	return models.RoleTeacher
}

// StudentEmail expands a bare student id into its institutional address.
// Values that already contain '@' are returned trimmed and unchanged.
func StudentEmail(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || strings.Contains(identifier, "@") {
		return identifier
	}
	return identifier + "@" + StudentDomain
}

// ValidateStudentID checks a RUET student id: two-digit series 20-30,
// two-digit department 00-13 and three-digit roll 001-183.
func ValidateStudentID(id string) error {
	if !isDigits(id, StudentIDLength) {
		return fmt.Errorf("student id must be %d digits", StudentIDLength)
	}
	series := atoi(id[0:2])
	dept := atoi(id[2:4])
	roll := atoi(id[4:7])

	switch {
	case series < 20 || series > 30:
		return fmt.Errorf("invalid series %02d (must be 20-30)", series)
	case dept > 13:
		return fmt.Errorf("invalid department %02d (must be 00-13)", dept)
	case roll < 1 || roll > 183:
		return fmt.Errorf("invalid roll %03d (must be 001-183)", roll)
	}
	return nil
}

// NormalizePhone strips a phone number down to digits with a leading '+'.
// Local Bangladeshi mobile numbers (01XXXXXXXXX) gain the 880 country code,
// so "01712-345678", "+8801712345678" and "8801712345678" all agree.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)

	var digits strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}

	result := digits.String()
	if result == "" {
		return ""
	}
	if len(result) == 11 && strings.HasPrefix(result, "01") {
		result = "88" + result
	}
	return "+" + result
}

// HashIdentifier returns the hex-encoded SHA-256 hash of the given string.
// Use this on already-normalized values from NormalizeEmail or NormalizePhone.
func HashIdentifier(normalized string) string {
	h := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(h[:])
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func atoi(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		n = n*10 + int(s[i]-'0')
	}
	return n
}
