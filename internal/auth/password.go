// ABOUTME: bcrypt password hashing for the management API login endpoint

package auth

import "golang.org/x/crypto/bcrypt"

// HashPassword returns a bcrypt hash of the password, suitable for the
// admin_password_hash config field.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether the password matches the bcrypt hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
