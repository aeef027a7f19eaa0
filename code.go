package filepulse

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	// CodeLength is the number of symbols in a share code.
	CodeLength = 8
	// CodeAlphabet holds the 62 symbols codes are drawn from.
	CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	// MaxCodeAttempts bounds how many codes a registry tries before giving up.
	MaxCodeAttempts = 10
)

// CodeGenerator produces candidate share codes. Uniqueness is enforced
// by the registry, not the generator.
type CodeGenerator interface {
	Generate() (string, error)
}

// CodeGeneratorFunc adapts a function to CodeGenerator.
type CodeGeneratorFunc func() (string, error)

func (f CodeGeneratorFunc) Generate() (string, error) { return f() }

// RandomCodes draws codes from crypto/rand.
type RandomCodes struct{}

var alphabetSize = big.NewInt(int64(len(CodeAlphabet)))

// Generate returns a uniformly random CodeLength-symbol code.
func (RandomCodes) Generate() (string, error) {
	b := make([]byte, CodeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		b[i] = CodeAlphabet[n.Int64()]
	}
	return string(b), nil
}

// IsValidCode reports whether s has the shape of a share code.
func IsValidCode(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}
