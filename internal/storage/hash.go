// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// =============================================================================
// NIST 800-53 IA-5(1): PASSWORD-BASED AUTHENTICATION
// =============================================================================

// Hasher turns passwords into one-way digests and checks candidates
// against them.
type Hasher interface {
	// Hash returns the encoded digest of password.
	Hash(password string) (string, error)

	// Verify reports whether password matches encoded.
	Verify(encoded, password string) bool

	// NeedsRehash reports whether encoded uses weaker parameters than the
	// Hasher would produce today.
	NeedsRehash(encoded string) bool
}

const (
	// DefaultPBKDF2Iterations matches the OWASP 2023 guidance for PBKDF2-HMAC-SHA256.
	DefaultPBKDF2Iterations = 600000

	pbkdf2Prefix  = "pbkdf2-sha256"
	pbkdf2SaltLen = 16
	pbkdf2KeyLen  = 32
)

// PBKDF2Hasher encodes digests as "pbkdf2-sha256$<iter>$<salt-hex>$<key-hex>".
//
// Verify also accepts a bare 64-character hex SHA-256 digest, the format
// written by earlier deployments, so existing stores keep working.
type PBKDF2Hasher struct {
	Iterations int
}

// DefaultHasher returns a PBKDF2Hasher with DefaultPBKDF2Iterations.
func DefaultHasher() *PBKDF2Hasher {
	return &PBKDF2Hasher{Iterations: DefaultPBKDF2Iterations}
}

func (h *PBKDF2Hasher) iterations() int {
	if h == nil || h.Iterations <= 0 {
		return DefaultPBKDF2Iterations
	}
	return h.Iterations
}

// Hash implements Hasher.
func (h *PBKDF2Hasher) Hash(password string) (string, error) {
	salt := make([]byte, pbkdf2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	iter := h.iterations()
	key := pbkdf2.Key([]byte(password), salt, iter, pbkdf2KeyLen, sha256.New)
	return fmt.Sprintf("%s$%d$%s$%s", pbkdf2Prefix, iter, hex.EncodeToString(salt), hex.EncodeToString(key)), nil
}

// Verify implements Hasher. Comparisons are constant-time.
func (h *PBKDF2Hasher) Verify(encoded, password string) bool {
	if isLegacyDigest(encoded) {
		sum := sha256.Sum256([]byte(password))
		want := hex.EncodeToString(sum[:])
		return subtle.ConstantTimeCompare([]byte(want), []byte(strings.ToLower(encoded))) == 1
	}

	iter, salt, key, ok := parsePBKDF2(encoded)
	if !ok {
		return false
	}
	got := pbkdf2.Key([]byte(password), salt, iter, len(key), sha256.New)
	return subtle.ConstantTimeCompare(got, key) == 1
}

// NeedsRehash implements Hasher.
func (h *PBKDF2Hasher) NeedsRehash(encoded string) bool {
	if isLegacyDigest(encoded) {
		return true
	}
	iter, _, _, ok := parsePBKDF2(encoded)
	return !ok || iter < h.iterations()
}

func parsePBKDF2(encoded string) (iter int, salt, key []byte, ok bool) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 4 || parts[0] != pbkdf2Prefix {
		return 0, nil, nil, false
	}
	iter, err := strconv.Atoi(parts[1])
	if err != nil || iter <= 0 {
		return 0, nil, nil, false
	}
	salt, err = hex.DecodeString(parts[2])
	if err != nil || len(salt) == 0 {
		return 0, nil, nil, false
	}
	key, err = hex.DecodeString(parts[3])
	if err != nil || len(key) == 0 {
		return 0, nil, nil, false
	}
	return iter, salt, key, true
}

func isLegacyDigest(encoded string) bool {
	if len(encoded) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(encoded)
	return err == nil
}
