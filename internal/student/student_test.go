package student

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Ana.Silva@Example.COM", "ana.silva@example.com"},
		{"  joao@x.com  ", "joao@x.com"},
		{"mixed@Case.Br\n", "mixed@case.br"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeEmail(tt.in))
	}
}

func TestCanonicalPhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"(11) 99999-0000", "11999990000"},
		{"+55 11 98888 7777", "5511988887777"},
		{"abc", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanonicalPhone(tt.in))
	}
}

func TestStudentNormalize(t *testing.T) {
	s := Student{Email: " Ana@X.COM ", Phone: "(11) 1234-5678"}
	s.Normalize()
	assert.Equal(t, "ana@x.com", s.Email)
	assert.Equal(t, "1112345678", s.Phone)
}
