// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"iter"
	"strings"
)

// =============================================================================
// NIST 800-53 AU-9: HASH CHAIN
// =============================================================================

// GenesisHash is the PrevHash of the first sealed entry.
var GenesisHash = strings.Repeat("0", sha256.Size*2)

// Sealer computes and checks entry hashes.
type Sealer struct {
	key []byte
}

// NewSealer returns a Sealer. A nil key selects unkeyed SHA-256.
func NewSealer(key []byte) *Sealer {
	return &Sealer{key: key}
}

// Keyed reports whether entries are authenticated with an HMAC key.
func (s *Sealer) Keyed() bool {
	return len(s.key) > 0
}

// Seal links e after a predecessor with the given sequence number and hash.
func (s *Sealer) Seal(e Entry, prevSeq uint64, prevHash string) (Entry, error) {
	if prevHash == "" {
		prevHash = GenesisHash
	}
	e.Seq = prevSeq + 1
	e.PrevHash = prevHash
	sum, err := s.digest(e)
	if err != nil {
		return Entry{}, err
	}
	e.Hash = sum
	return e, nil
}

// Check reports whether e.Hash matches its contents.
func (s *Sealer) Check(e Entry) bool {
	if !e.Sealed() {
		return false
	}
	sum, err := s.digest(e)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(sum), []byte(e.Hash))
}

// digest hashes the canonical JSON of e with Hash cleared.
func (s *Sealer) digest(e Entry) (string, error) {
	e.Hash = ""
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("failed to marshal entry: %w", err)
	}
	var h hash.Hash
	if s.Keyed() {
		h = hmac.New(sha256.New, s.key)
	} else {
		h = sha256.New()
	}
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// =============================================================================
// VERIFICATION
// =============================================================================

// Report is the result of verifying a log.
type Report struct {
	Verified bool `json:"verified"`
	Keyed    bool `json:"keyed"`

	// Entries counts every record read, sealed or not.
	Entries int `json:"entries"`

	// Unsealed counts leading legacy records that carry no hash.
	Unsealed int `json:"unsealed"`

	// HeadSeq and HeadHash identify the last sealed entry. Recording them
	// elsewhere lets a later Verify detect truncation.
	HeadSeq  uint64 `json:"head_seq"`
	HeadHash string `json:"head_hash,omitempty"`

	// FirstBroken is the sequence number of the first entry that failed,
	// or 0.
	FirstBroken uint64 `json:"first_broken,omitempty"`

	Issues []string `json:"issues,omitempty"`
}

// Verify re-derives the chain over entries. Unsealed records are accepted
// only before the first sealed one; after that every record must be sealed,
// numbered consecutively, linked to its predecessor and carry a valid hash.
//
// The returned error is non-nil only when entries could not be read.
func Verify(ctx context.Context, entries iter.Seq2[Entry, error], sealer *Sealer) (Report, error) {
	report := Report{Keyed: sealer.Keyed()}
	prevHash := GenesisHash
	var prevSeq uint64
	sealedSeen := false

	fail := func(seq uint64, format string, args ...any) {
		if report.FirstBroken == 0 {
			report.FirstBroken = seq
		}
		report.Issues = append(report.Issues, fmt.Sprintf(format, args...))
	}

	for e, err := range entries {
		if err != nil {
			return report, err
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Entries++

		if !e.Sealed() {
			if sealedSeen {
				fail(prevSeq+1, "record %d after seq %d is not sealed", report.Entries, prevSeq)
			} else {
				report.Unsealed++
			}
			continue
		}
		sealedSeen = true

		if e.Seq != prevSeq+1 {
			fail(e.Seq, "seq %d follows seq %d (entries missing or reordered)", e.Seq, prevSeq)
		}
		if e.PrevHash != prevHash {
			fail(e.Seq, "seq %d does not link to its predecessor", e.Seq)
		}
		if !sealer.Check(e) {
			fail(e.Seq, "seq %d hash mismatch (entry modified or wrong key)", e.Seq)
		}
		prevSeq = e.Seq
		prevHash = e.Hash
	}

	if sealedSeen {
		report.HeadSeq = prevSeq
		report.HeadHash = prevHash
	}
	report.Verified = len(report.Issues) == 0
	return report, nil
}
