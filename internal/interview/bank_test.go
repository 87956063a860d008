package interview

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadQuestions_Default(t *testing.T) {
	qs, err := LoadQuestions("")
	require.NoError(t, err)
	assert.Equal(t, DefaultQuestions, qs)

	// Callers get their own copy.
	qs[0] = "changed"
	assert.NotEqual(t, "changed", DefaultQuestions[0])
}

func TestLoadQuestions_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.yaml")
	require.NoError(t, os.WriteFile(path, []byte("questions:\n  - \" 请做一个自我介绍。 \"\n  - 你为什么想加入我们？\n"), 0o600))

	qs, err := LoadQuestions(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"请做一个自我介绍。", "你为什么想加入我们？"}, qs)
}

func TestLoadQuestions_Invalid(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
	}{
		{"empty list", "questions: []\n"},
		{"blank entry", "questions:\n  - 第一题\n  - \"  \"\n"},
		{"bad yaml", "questions: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))
			_, err := LoadQuestions(path)
			assert.Error(t, err)
		})
	}

	_, err := LoadQuestions(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestParseSource(t *testing.T) {
	s, err := ParseSource("voice")
	require.NoError(t, err)
	assert.Equal(t, SourceVoice, s)

	s, err = ParseSource("")
	require.NoError(t, err)
	assert.Equal(t, SourceText, s)

	_, err = ParseSource("telepathy")
	assert.Error(t, err)
}
