// Package fingerprint computes the content address of a stage output.
//
// A fingerprint folds a stage's canonical content together with the
// fingerprints of its parents, so a change anywhere upstream yields a
// different key downstream. Parent pairs are sorted before hashing; the
// result never depends on map iteration order.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"sort"
)

// Record is the fingerprint captured when a stage was materialized, together
// with the parent fingerprints it was computed from. Roots have no parents.
type Record struct {
	Fingerprint        string            `json:"fingerprint"`
	ParentFingerprints map[string]string `json:"parent_fingerprints"`
}

// Compute returns the hex SHA-256 fingerprint of content and its parents.
// With no parents the digest covers the content alone.
func Compute(content string, parents map[string]string) string {
	if len(parents) == 0 {
		sum := sha256.Sum256([]byte(content))
		return hex.EncodeToString(sum[:])
	}

	h := sha256.New()
	writeField(h, []byte(content))

	keys := make([]string, 0, len(parents))
	for k := range parents {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var count [8]byte
	binary.BigEndian.PutUint64(count[:], uint64(len(keys)))
	h.Write(count[:])
	for _, k := range keys {
		writeField(h, []byte(k))
		writeField(h, []byte(parents[k]))
	}

	return hex.EncodeToString(h.Sum(nil))
}

// writeField writes an 8-byte big-endian length prefix followed by data.
func writeField(h hash.Hash, data []byte) {
	var length [8]byte
	binary.BigEndian.PutUint64(length[:], uint64(len(data)))
	h.Write(length[:])
	h.Write(data)
}

// CanonicalContent normalizes a JSON document so that semantically equal
// content always fingerprints the same: object keys sorted, insignificant
// whitespace removed.
func CanonicalContent(raw []byte) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "null", nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("canonicalizing content: %w", err)
	}
	if dec.More() {
		return "", fmt.Errorf("canonicalizing content: trailing data after JSON value")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("canonicalizing content: %w", err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// Short returns the first 12 characters of a fingerprint for display.
func Short(fp string) string {
	if len(fp) <= 12 {
		return fp
	}
	return fp[:12]
}
