package idgen

import (
	"errors"
	"strings"
	"testing"
)

func TestGenerateUsesAlphabetAndLength(t *testing.T) {
	gen := New()
	for i := 0; i < 200; i++ {
		code, err := gen.Generate()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != Length {
			t.Fatalf("expected length %d, got %q", Length, code)
		}
		for _, r := range code {
			if !strings.ContainsRune(Alphabet, r) {
				t.Fatalf("unexpected symbol %q in %q", r, code)
			}
		}
	}
}

type sequence struct {
	codes []string
	err   error
}

func (s *sequence) Generate() (string, error) {
	if len(s.codes) == 0 {
		return "", s.err
	}
	code := s.codes[0]
	s.codes = s.codes[1:]
	return code, nil
}

func TestDistinctSkipsDuplicates(t *testing.T) {
	gen := &sequence{codes: []string{"AAAAA", "AAAAA", "BBBBB", "AAAAA", "CCCCC"}}

	codes, err := Distinct(gen, 3)
	if err != nil {
		t.Fatalf("distinct: %v", err)
	}
	want := []string{"AAAAA", "BBBBB", "CCCCC"}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, codes)
		}
	}
}

func TestDistinctPropagatesError(t *testing.T) {
	failure := errors.New("entropy exhausted")
	gen := &sequence{codes: []string{"AAAAA"}, err: failure}

	if _, err := Distinct(gen, 2); !errors.Is(err, failure) {
		t.Fatalf("expected generator error, got %v", err)
	}
}
