// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/jeranaias/syscallgate/internal/util"
)

// =============================================================================
// NIST 800-53 AU-9: HMAC KEY LOADING
// =============================================================================

// KeySource indicates where the HMAC key was loaded from.
type KeySource string

const (
	KeySourceEnvVar KeySource = "environment_variable"
	KeySourceFile   KeySource = "key_file"
	KeySourceNone   KeySource = "not_configured"
)

const (
	// HMACKeyEnvVar holds a hex-encoded key and takes priority over files.
	HMACKeyEnvVar = "SYSCALLGATE_AUDIT_HMAC_KEY"

	// KeySize is the HMAC key size in bytes (256 bits).
	KeySize = 32
)

// LoadKey returns the audit HMAC key from HMACKeyEnvVar or, failing that,
// from keyFile. The file may hold raw bytes or hex. A missing file with no
// environment variable yields a nil key and KeySourceNone.
func LoadKey(keyFile string) ([]byte, KeySource, error) {
	if keyHex := os.Getenv(HMACKeyEnvVar); keyHex != "" {
		key, err := hex.DecodeString(keyHex)
		if err != nil {
			return nil, KeySourceNone, fmt.Errorf("AU-9: invalid HMAC key in %s: %w", HMACKeyEnvVar, err)
		}
		if len(key) != KeySize {
			return nil, KeySourceNone, fmt.Errorf("AU-9: HMAC key must be %d bytes, got %d", KeySize, len(key))
		}
		return key, KeySourceEnvVar, nil
	}

	if keyFile == "" {
		return nil, KeySourceNone, nil
	}
	data, err := os.ReadFile(keyFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, KeySourceNone, nil
		}
		return nil, KeySourceNone, fmt.Errorf("AU-9: failed to read HMAC key file %s: %w", keyFile, err)
	}

	key := data
	if trimmed := bytes.TrimSpace(data); len(trimmed) == KeySize*2 {
		if decoded, err := hex.DecodeString(string(trimmed)); err == nil {
			key = decoded
		}
	}
	if len(key) != KeySize {
		return nil, KeySourceNone, fmt.Errorf("AU-9: HMAC key file must hold %d bytes, got %d", KeySize, len(key))
	}
	return key, KeySourceFile, nil
}

// GenerateKeyFile writes a fresh random hex-encoded key to path with 0600
// permissions. An existing file is never overwritten.
func GenerateKeyFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("AU-9: key file %s already exists", path)
	}
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return fmt.Errorf("AU-9: failed to generate key: %w", err)
	}
	return util.AtomicWriteFile(path, []byte(hex.EncodeToString(key)+"\n"), 0600)
}
