package auth

import (
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinPasswordLength is the minimum required password length
	MinPasswordLength = 8
	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 12
)

// PasswordValidationError represents a specific password validation failure
type PasswordValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// PasswordHasher handles password complexity checks and bcrypt hashing.
// Credentials are stored only as bcrypt hashes; there is no plaintext
// persistence path anywhere in the system.
type PasswordHasher struct{}

// NewPasswordHasher creates a new PasswordHasher instance
func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{}
}

// ValidatePassword checks if a password meets all complexity requirements.
// Returns a list of validation errors (empty if password is valid).
func (h *PasswordHasher) ValidatePassword(password string) []PasswordValidationError {
	var errors []PasswordValidationError

	if len(password) < MinPasswordLength {
		errors = append(errors, PasswordValidationError{
			Field:   "password",
			Message: "Password must be at least 8 characters long",
		})
	}

	var hasUpper, hasLower, hasNumber bool

	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasNumber = true
		}
	}

	if !hasUpper {
		errors = append(errors, PasswordValidationError{
			Field:   "password",
			Message: "Password must contain at least one uppercase letter",
		})
	}

	if !hasLower {
		errors = append(errors, PasswordValidationError{
			Field:   "password",
			Message: "Password must contain at least one lowercase letter",
		})
	}

	if !hasNumber {
		errors = append(errors, PasswordValidationError{
			Field:   "password",
			Message: "Password must contain at least one number",
		})
	}

	return errors
}

// IsValidPassword returns true if the password meets all requirements
func (h *PasswordHasher) IsValidPassword(password string) bool {
	return len(h.ValidatePassword(password)) == 0
}

// HashPassword creates a bcrypt hash of the password with cost factor 12
func (h *PasswordHasher) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a password with its bcrypt hash.
// Returns nil if they match, error otherwise.
func (h *PasswordHasher) VerifyPassword(password, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
