// Package embedding implements the builtin feature-hashing embedder: a
// bag-of-tokens sketch that needs no model and is fully deterministic.
package embedding

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"math"
	"strings"
)

const (
	DefaultDimension = 96
	DefaultModelName = "builtin-hash"
)

// IEmbedder mirrors the provider embedders: a text in, a fixed-length vector out.
type IEmbedder interface {
	Embed(ctx context.Context, text string, dim int) ([]float32, error)
	ModelName() string
}

type HashEmbedder struct{}

func NewHashEmbedder() *HashEmbedder {
	return &HashEmbedder{}
}

func (h *HashEmbedder) Embed(_ context.Context, text string, dim int) ([]float32, error) {
	return Embed(text, dim), nil
}

func (h *HashEmbedder) ModelName() string {
	return DefaultModelName
}

// Embed hashes every token of text into one of dim buckets and returns the
// L2-normalized counts. Text without tokens yields the all-zero vector.
func Embed(text string, dim int) []float32 {
	if dim <= 0 {
		dim = DefaultDimension
	}
	vec := make([]float32, dim)
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return vec
	}
	counts := make([]float64, dim)
	for _, token := range tokens {
		counts[bucket(token, dim)] += 1.0
	}
	var sum float64
	for _, v := range counts {
		sum += v * v
	}
	norm := math.Sqrt(sum)
	for i, v := range counts {
		vec[i] = float32(v / norm)
	}
	return vec
}

func bucket(token string, dim int) int {
	digest := md5.Sum([]byte(token))
	return int(binary.BigEndian.Uint32(digest[:4]) % uint32(dim))
}

// Tokenize emits each CJK ideograph as its own token and merges runs of
// ASCII letters and digits into lower-cased tokens. Everything else only
// ends the current run.
func Tokenize(text string) []string {
	tokens := make([]string, 0, len(text)/4+1)
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	for _, r := range text {
		switch {
		case isCJK(r):
			flush()
			tokens = append(tokens, string(r))
		case isASCIIAlnum(r):
			if r >= 'A' && r <= 'Z' {
				r += 'a' - 'A'
			}
			current.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

func isCJK(r rune) bool {
	return r >= 0x4E00 && r <= 0x9FFF
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
