package transfer

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_AllowsInsideRoots(t *testing.T) {
	root := t.TempDir()
	g := NewGuard(root)

	assert.NoError(t, g.Check(
		root,
		filepath.Join(root, "movie.mkv"),
		filepath.Join(root, "not", "yet", "created", "file.mkv"),
	))
}

func TestGuard_RejectsOutside(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()
	g := NewGuard(root)

	err := g.Check(filepath.Join(root, "ok.mkv"), filepath.Join(other, "bad.mkv"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPathSecurity))

	var pse *PathSecurityError
	require.True(t, errors.As(err, &pse))
	assert.Equal(t, "path_security_violation", pse.ErrorCode())
	assert.Equal(t, filepath.Join(other, "bad.mkv"), pse.Path)
}

func TestGuard_RejectsTraversalAndPrefixTricks(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "media")
	require.NoError(t, os.MkdirAll(root, 0755))
	require.NoError(t, os.MkdirAll(root+"-evil", 0755))
	g := NewGuard(root)

	assert.Error(t, g.Check(filepath.Join(root, "..", "escape.mkv")))
	assert.Error(t, g.Check(filepath.Join(root+"-evil", "x.mkv")))
}

func TestGuard_ResolvesSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(root, "sneaky")
	require.NoError(t, os.Symlink(outside, link))

	g := NewGuard(root)
	err := g.Check(filepath.Join(link, "file.mkv"))
	assert.True(t, errors.Is(err, ErrPathSecurity))
}

func TestGuard_EmptyRejectsEverything(t *testing.T) {
	g := NewGuard()
	assert.True(t, g.Empty())
	assert.Error(t, g.Check(t.TempDir()))

	root := t.TempDir()
	widened := g.With(root)
	assert.NoError(t, widened.Check(filepath.Join(root, "a.mkv")))
	assert.True(t, g.Empty(), "With must not mutate the receiver")
}

func TestGuard_Below(t *testing.T) {
	root := t.TempDir()
	g := NewGuard(root)

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"root itself", root, false},
		{"child", filepath.Join(root, "Anime"), true},
		{"missing grandchild", filepath.Join(root, "Anime", "Show (2020)"), true},
		{"parent of root", filepath.Dir(root), false},
		{"outside", t.TempDir(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Below(tt.path))
		})
	}
	assert.False(t, NewGuard().Below(root))
}
