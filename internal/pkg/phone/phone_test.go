package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "leading zero", in: "081234567890", want: "6281234567890"},
		{name: "plus prefix", in: "+62 812-3456-7890", want: "6281234567890"},
		{name: "already normalized", in: "6281234567890", want: "6281234567890"},
		{name: "missing country code", in: "81234567890", want: "6281234567890"},
		{name: "blank", in: "  ", want: ""},
		{name: "letters only", in: "abc", want: ""},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Normalize(tc.in, ""))
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	once := Normalize("0812 3456 7890", "62")
	assert.Equal(t, once, Normalize(once, "62"))
}

func TestMask(t *testing.T) {
	assert.Equal(t, "*********7890", Mask("6281234567890"))
	assert.Equal(t, "***", Mask("123"))
}
