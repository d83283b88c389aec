package anchor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccountDiscriminator(t *testing.T) {
	tests := []struct {
		name string
		want [8]byte
	}{
		{"LbPair", [8]byte{33, 11, 49, 98, 181, 101, 177, 13}},
		{"BinArray", [8]byte{92, 142, 92, 220, 5, 148, 70, 181}},
		{"BinArrayBitmapExtension", [8]byte{80, 111, 124, 113, 55, 237, 18, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AccountDiscriminator(tt.name))
			assert.Equal(t, tt.want, GetDiscriminator("account", tt.name))
		})
	}
	assert.NotEqual(t, AccountDiscriminator("LbPair"), GetDiscriminator("global", "LbPair"))
}
