package filepulse_test

import (
	"strings"
	"testing"

	"github.com/sagarc03/filepulse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomCodes_Generate(t *testing.T) {
	gen := filepulse.RandomCodes{}
	seen := make(map[string]struct{})

	for range 1000 {
		code, err := gen.Generate()
		require.NoError(t, err)
		assert.Len(t, code, filepulse.CodeLength)
		assert.True(t, filepulse.IsValidCode(code), code)
		for _, c := range code {
			assert.True(t, strings.ContainsRune(filepulse.CodeAlphabet, c))
		}
		seen[code] = struct{}{}
	}

	// 62^8 possible codes; a repeat in 1000 draws would point at a broken source.
	assert.Len(t, seen, 1000)
}

func TestIsValidCode(t *testing.T) {
	tests := []struct {
		code  string
		valid bool
	}{
		{"AbCd1234", true},
		{"00000000", true},
		{"zzzzzzzz", true},
		{"", false},
		{"AbCd123", false},
		{"AbCd12345", false},
		{"AbCd-234", false},
		{"AbCd 234", false},
		{"../../..", false},
		{"AbCdé234", false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.valid, filepulse.IsValidCode(tt.code))
		})
	}
}

func TestCodeGeneratorFunc(t *testing.T) {
	gen := filepulse.CodeGeneratorFunc(func() (string, error) { return "FIXED123", nil })

	code, err := gen.Generate()
	require.NoError(t, err)
	assert.Equal(t, "FIXED123", code)
}
