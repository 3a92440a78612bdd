package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		amount int64
		want   string
	}{
		{0, "$0"},
		{1299990, "$1.299.990"},
		{2499990, "$2.499.990"},
		{-349990, "-$349.990"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.amount))
		})
	}
}
