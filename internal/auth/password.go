package auth

import (
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is the bcrypt work factor for stored passwords.
const PasswordCost = 12

// maxPasswordBytes is the longest input bcrypt accepts. Longer passwords are
// truncated, so only their first 72 bytes are significant.
const maxPasswordBytes = 72

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword(passwordBytes(password), PasswordCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), passwordBytes(password)) == nil
}

var dummyHash = sync.OnceValue(func() []byte {
	hashed, _ := bcrypt.GenerateFromPassword([]byte("placeholder-password"), PasswordCost)
	return hashed
})

// RejectPassword spends one bcrypt comparison without a stored hash. Login
// calls it for unknown identities so both failure paths cost the same.
func RejectPassword(password string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash(), passwordBytes(password))
}

func passwordBytes(password string) []byte {
	b := []byte(password)
	if len(b) > maxPasswordBytes {
		b = b[:maxPasswordBytes]
	}
	return b
}
