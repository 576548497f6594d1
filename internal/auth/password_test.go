// ABOUTME: Unit tests for bcrypt password hashing

package auth

import "testing"

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	if !CheckPassword(hash, "s3cret") {
		t.Error("CheckPassword() should accept the original password")
	}

	if CheckPassword(hash, "wrong") {
		t.Error("CheckPassword() should reject a wrong password")
	}

	if CheckPassword("not-a-hash", "s3cret") {
		t.Error("CheckPassword() should reject a malformed hash")
	}
}
