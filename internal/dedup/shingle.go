package dedup

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// ShingleSet is a set of k-grams.
type ShingleSet map[string]struct{}

func (s ShingleSet) Contains(shingle string) bool {
	_, ok := s[shingle]
	return ok
}

// Jaccard computes |A∩B| / |A∪B| exactly. Two empty sets score 0.
func (s ShingleSet) Jaccard(other ShingleSet) float64 {
	if len(s) == 0 || len(other) == 0 {
		return 0
	}
	small, large := s, other
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for sh := range small {
		if _, ok := large[sh]; ok {
			inter++
		}
	}
	union := len(s) + len(other) - inter
	return float64(inter) / float64(union)
}

// A cases.Caser is stateful, so each goroutine takes its own.
var folders = sync.Pool{
	New: func() interface{} {
		c := cases.Fold()
		return &c
	},
}

// Normalize canonicalizes text for hashing and shingling: compatibility-decomposed,
// case-folded, punctuation replaced by spaces, whitespace collapsed.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	folder := folders.Get().(*cases.Caser)
	folded := folder.String(norm.NFKC.String(text))
	folders.Put(folder)
	var b strings.Builder
	b.Grow(len(folded))
	pendingSpace := false
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r):
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
		case r == '\'' || r == '’':
			// don't -> dont
		default:
			pendingSpace = true
		}
	}
	return b.String()
}

// Shingler turns text into overlapping k-grams.
type Shingler struct {
	k    int
	mode ShingleMode
}

func NewShingler(k int, mode ShingleMode) *Shingler {
	if k <= 0 {
		k = 1
	}
	if mode == "" {
		mode = ShingleTokens
	}
	return &Shingler{k: k, mode: mode}
}

func (s *Shingler) K() int {
	return s.k
}

func (s *Shingler) Mode() ShingleMode {
	return s.mode
}

// Shingle normalizes text and emits its k-gram set. Text shorter than k yields one
// shingle holding the whole normalized text; empty text yields an empty set.
func (s *Shingler) Shingle(text string) ShingleSet {
	return s.ShingleNormalized(Normalize(text))
}

// ShingleNormalized is Shingle for input already passed through Normalize.
func (s *Shingler) ShingleNormalized(normalized string) ShingleSet {
	if normalized == "" {
		return ShingleSet{}
	}
	if s.mode == ShingleChars {
		return s.charShingles(normalized)
	}
	return s.tokenShingles(normalized)
}

func (s *Shingler) tokenShingles(normalized string) ShingleSet {
	tokens := strings.Fields(normalized)
	if len(tokens) <= s.k {
		return ShingleSet{strings.Join(tokens, " "): {}}
	}
	set := make(ShingleSet, len(tokens)-s.k+1)
	for i := 0; i+s.k <= len(tokens); i++ {
		set[strings.Join(tokens[i:i+s.k], " ")] = struct{}{}
	}
	return set
}

func (s *Shingler) charShingles(normalized string) ShingleSet {
	runes := []rune(normalized)
	if len(runes) <= s.k {
		return ShingleSet{normalized: {}}
	}
	set := make(ShingleSet, len(runes)-s.k+1)
	for i := 0; i+s.k <= len(runes); i++ {
		set[string(runes[i:i+s.k])] = struct{}{}
	}
	return set
}
