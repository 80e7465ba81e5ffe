package auth

import (
	"testing"

	"pgregory.net/rapid"
)

func TestValidatePassword(t *testing.T) {
	hasher := NewPasswordHasher()

	tests := []struct {
		name     string
		password string
		valid    bool
	}{
		{"valid password", "Sunlight9", true},
		{"too short", "Ab1", false},
		{"no uppercase", "sunlight9", false},
		{"no lowercase", "SUNLIGHT9", false},
		{"no digit", "Sunlights", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := hasher.ValidatePassword(tt.password)
			if (len(errs) == 0) != tt.valid {
				t.Errorf("ValidatePassword(%q) errors = %v, want valid = %v", tt.password, errs, tt.valid)
			}
			if hasher.IsValidPassword(tt.password) != tt.valid {
				t.Errorf("IsValidPassword(%q) = %v, want %v", tt.password, !tt.valid, tt.valid)
			}
		})
	}
}

// For any valid password, the stored hash verifies against the
// original and never equals the plaintext.
func TestHashAndVerifyRoundTrip(t *testing.T) {
	hasher := NewPasswordHasher()

	rapid.Check(t, func(t *rapid.T) {
		password := rapid.StringMatching(`[A-Z][a-z]{6,12}[0-9]{2}`).Draw(t, "password")

		hash, err := hasher.HashPassword(password)
		if err != nil {
			t.Fatalf("failed to hash password: %v", err)
		}

		if hash == password {
			t.Fatal("hash must not equal the plaintext password")
		}

		if err := hasher.VerifyPassword(password, hash); err != nil {
			t.Errorf("expected hash to verify against original password: %v", err)
		}

		if err := hasher.VerifyPassword(password+"x", hash); err == nil {
			t.Error("expected verification to fail for a different password")
		}
	})
}
