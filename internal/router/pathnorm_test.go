package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPathLike(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"windows backslash path", `C:\Users\alice\file.txt`, true},
		{"unc path", `\\server\share\file.txt`, true},
		{"forward slash unix path", "/etc/hosts", false},
		{"url with backslash-looking query", `https://example.com/a\b`, false},
		{"bare drive letter prefix", `D:/data`, true},
		{"plain string", "widget", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isPathLike(tt.in))
		})
	}
}

func TestNormalizeArgumentsConvertsPathLikeStrings(t *testing.T) {
	args := map[string]any{
		"path":    `C:\Users\alice\file.txt`,
		"url":     `https://example.com/a\b`,
		"nested":  map[string]any{"inner": `\\server\share`},
		"list":    []any{`C:\a`, "plain"},
		"unrelated": 42,
	}

	out := NormalizeArguments(args)

	assert.Equal(t, "C:/Users/alice/file.txt", out["path"])
	assert.Equal(t, `https://example.com/a\b`, out["url"], "URLs must never be rewritten even with a backslash")
	assert.Equal(t, "//server/share", out["nested"].(map[string]any)["inner"])
	assert.Equal(t, []any{"C:/a", "plain"}, out["list"])
	assert.Equal(t, 42, out["unrelated"])
}

func TestNormalizeArgumentsNilIsNil(t *testing.T) {
	assert.Nil(t, NormalizeArguments(nil))
}
