// Package fingerprint computes 64-bit SimHash fingerprints and compares
// them by Hamming distance.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"strings"
	"unicode"
)

const Bits = 64

// DefaultThreshold is the largest Hamming distance still treated as a
// near-duplicate.
const DefaultThreshold = 3

type Engine struct {
	threshold int
}

func New(threshold int) *Engine {
	return &Engine{threshold: threshold}
}

func (e *Engine) Threshold() int {
	return e.threshold
}

// Compute returns the fingerprint as a 64-character string of '0' and '1'.
// Text without tokens yields all zeros.
func Compute(text string) string {
	var sums [Bits]int

	for _, token := range Tokenize(text) {
		h := tokenHash(token)
		for i := 0; i < Bits; i++ {
			if h&(1<<uint(Bits-1-i)) != 0 {
				sums[i]++
			} else {
				sums[i]--
			}
		}
	}

	var sb strings.Builder
	sb.Grow(Bits)
	for _, sum := range sums {
		if sum > 0 {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// Normalize lowercases, drops punctuation and collapses whitespace.
func Normalize(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
		case unicode.IsSpace(r):
			sb.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// Tokenize returns unigrams followed by bigrams, repeats included.
func Tokenize(text string) []string {
	words := strings.Fields(Normalize(text))
	if len(words) == 0 {
		return nil
	}

	tokens := make([]string, 0, 2*len(words)-1)
	tokens = append(tokens, words...)
	for i := 0; i+1 < len(words); i++ {
		tokens = append(tokens, words[i]+" "+words[i+1])
	}
	return tokens
}

func tokenHash(token string) uint64 {
	sum := sha256.Sum256([]byte(token))
	return binary.BigEndian.Uint64(sum[:8])
}

// Distance counts differing positions. Fingerprints of unequal length are
// left-padded with zeros to the longer length first; with fixed 64-bit
// output that only happens for foreign or corrupted values.
func Distance(a, b string) int {
	if len(a) < len(b) {
		a = strings.Repeat("0", len(b)-len(a)) + a
	} else if len(b) < len(a) {
		b = strings.Repeat("0", len(a)-len(b)) + b
	}

	distance := 0
	for i := 0; i < len(a); i++ {
		if a[i] != b[i] {
			distance++
		}
	}
	return distance
}

func (e *Engine) IsDuplicate(a, b string) bool {
	return Distance(a, b) <= e.threshold
}

// FindMatch returns the first known fingerprint within the threshold.
func (e *Engine) FindMatch(fingerprint string, known []string) (string, bool) {
	for _, candidate := range known {
		if candidate == "" {
			continue
		}
		if e.IsDuplicate(fingerprint, candidate) {
			return candidate, true
		}
	}
	return "", false
}
