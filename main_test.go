package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddCommand(t *testing.T) {
	list := filepath.Join(t.TempDir(), "urls.txt")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"add", "https://example.com/paper.pdf", "--list", list})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Added https://example.com/paper.pdf")

	data, err := os.ReadFile(list)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/paper.pdf\n", string(data))

	rootCmd.SetArgs([]string{"add", "https://example.com/paper.pdf", "--list", list})
	assert.Error(t, rootCmd.Execute())
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}
