package brawlstars

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTag(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "#2GPQY9RJL", want: "#2GPQY9RJL"},
		{in: "2gpqy9rjl", want: "#2GPQY9RJL"},
		{in: "  #pyl  ", want: "#PYL"},
		{in: "#2GPQO9RJL", wantErr: true},
		{in: "#OOO", wantErr: true},
		{in: "#AB", wantErr: true},
		{in: "#12345", wantErr: true},
		{in: "#2GPQY9RJL2GPQY9RJ", wantErr: true},
		{in: "hello world", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := NormalizeTag(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTag)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLooksLikeTag(t *testing.T) {
	t.Parallel()

	assert.True(t, LooksLikeTag("#2GPQY9RJL"))
	assert.True(t, LooksLikeTag(" 2gpqy9rjl "))
	assert.False(t, LooksLikeTag("hello there"))
	assert.False(t, LooksLikeTag("/start"))
	assert.False(t, LooksLikeTag("   "))
}
