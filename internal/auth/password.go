package auth

import "golang.org/x/crypto/bcrypt"

// Hasher derives and checks one-way salted password hashes.
type Hasher struct {
	cost int
}

// NewHasher constructs a Hasher with the given bcrypt work factor.
// An out-of-range cost falls back to the bcrypt default.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash produces a salted bcrypt hash of the plaintext password. Each call
// embeds a fresh random salt, so hashing the same password twice yields
// different outputs.
func (h *Hasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify reports whether password matches the stored hash. A malformed
// hash yields false, not an error.
func (h *Hasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
