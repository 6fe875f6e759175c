package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveUnder(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"relative", "a/b.txt", filepath.Join(root, "a", "b.txt"), false},
		{"absolute inside", filepath.Join(root, "c.txt"), filepath.Join(root, "c.txt"), false},
		{"dot dot name", "..notes", filepath.Join(root, "..notes"), false},
		{"escape", "../etc/passwd", "", true},
		{"absolute outside", "/etc/passwd", "", true},
		{"cleaned escape", "a/../../x", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveUnder(tt.in, root)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrOutsideRoot)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsSafeFilename(t *testing.T) {
	tests := map[string]bool{
		"report.pdf":  true,
		"..hidden":    true,
		"":            false,
		"..":          false,
		"a/b":         false,
		`a\b`:         false,
		`my "q" file`: false,
		"a\r\nX: b":   false,
		"line\nbreak": false,
	}
	for in, want := range tests {
		assert.Equal(t, want, IsSafeFilename(in), in)
	}
}

func TestResolveUnder_FollowsSymlinks(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	secret := filepath.Join(outside, "secret")
	require.NoError(t, os.WriteFile(secret, []byte("x"), 0o600))
	inside := filepath.Join(root, "inside.txt")
	require.NoError(t, os.WriteFile(inside, []byte("y"), 0o600))

	require.NoError(t, os.Symlink(secret, filepath.Join(root, "link")))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "dir")))
	require.NoError(t, os.Symlink(inside, filepath.Join(root, "alias")))

	_, err := ResolveUnder("link", root)
	assert.ErrorIs(t, err, ErrOutsideRoot)

	_, err = ResolveUnder("dir/secret", root)
	assert.ErrorIs(t, err, ErrOutsideRoot)

	got, err := ResolveUnder("alias", root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "alias"), got)
}

func TestResolveUnder_SymlinkedRoot(t *testing.T) {
	target := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(target, "a.txt"), []byte("a"), 0o600))
	root := filepath.Join(t.TempDir(), "root")
	require.NoError(t, os.Symlink(target, root))

	got, err := ResolveUnder("a.txt", root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a.txt"), got)
}
