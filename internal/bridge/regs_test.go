package bridge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMustPreserve(t *testing.T) {
	for _, reg := range []string{"eax", "ecx", "edx"} {
		require.False(t, MustPreserve(reg), reg)
	}
	for _, reg := range []string{"ebx", "esi", "edi", "ebp", "esp", "r8d"} {
		require.True(t, MustPreserve(reg), reg)
	}
}
