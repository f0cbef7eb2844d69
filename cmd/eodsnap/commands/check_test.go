package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskPassword(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "(not set)"},
		{"postgresql://snap:secret@db:5432/eodsnap", "postgresql://snap:xxxxx@db:5432/eodsnap"},
		{"postgresql://db:5432/eodsnap", "postgresql://db:5432/eodsnap"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, maskPassword(tt.in))
	}
}
