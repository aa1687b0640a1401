// Package idgen выдаёт короткие коды заказов и ваучеров.
package idgen

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

const (
	// Alphabet — допустимые символы кода.
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// Length — длина кода.
	Length = 5
)

// Generator генерирует коды через nanoid с собственным алфавитом.
type Generator struct{}

// New возвращает генератор кодов.
func New() Generator {
	return Generator{}
}

// Generate возвращает случайный код из Length символов Alphabet.
func (Generator) Generate() (string, error) {
	code, err := gonanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return code, nil
}

// Distinct возвращает n попарно различных кодов.
func Distinct(gen domain.CodeGenerator, n int) ([]string, error) {
	codes := make([]string, 0, n)
	seen := make(map[string]struct{}, n)
	for len(codes) < n {
		code, err := gen.Generate()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

var _ domain.CodeGenerator = Generator{}
