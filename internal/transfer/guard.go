package transfer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathSecurity is matched by every *PathSecurityError via errors.Is.
var ErrPathSecurity = errors.New("path outside allowed roots")

// PathSecurityError reports a path that resolved outside every allowed root.
type PathSecurityError struct {
	Path     string
	Resolved string
	Roots    []string
}

func (e *PathSecurityError) Error() string {
	return fmt.Sprintf("path security violation: %s resolves to %s, outside allowed roots %v", e.Path, e.Resolved, e.Roots)
}

// ErrorCode classifies the error for persistence alongside the item.
func (e *PathSecurityError) ErrorCode() string { return "path_security_violation" }

func (e *PathSecurityError) Is(target error) bool { return target == ErrPathSecurity }

// Guard validates paths against an allow-list of directories before any
// move, copy, link or delete. Symlinks are resolved for the longest existing
// prefix of each path so a link inside a root cannot point outside of it.
type Guard struct {
	roots []string
}

// NewGuard builds a guard from roots. Roots that cannot be made absolute are
// skipped. A guard with no roots rejects everything.
func NewGuard(roots ...string) *Guard {
	g := &Guard{}
	for _, r := range roots {
		if resolved, err := resolvePath(r); err == nil {
			g.roots = append(g.roots, resolved)
		}
	}
	return g
}

// With returns a copy of g that additionally allows root.
func (g *Guard) With(root string) *Guard {
	out := &Guard{roots: append([]string(nil), g.Roots()...)}
	if resolved, err := resolvePath(root); err == nil {
		out.roots = append(out.roots, resolved)
	}
	return out
}

// Roots returns the resolved allowed roots.
func (g *Guard) Roots() []string {
	if g == nil {
		return nil
	}
	return append([]string(nil), g.roots...)
}

// Empty reports whether no root is configured.
func (g *Guard) Empty() bool {
	return g == nil || len(g.roots) == 0
}

// Check returns a *PathSecurityError for the first path outside every root.
func (g *Guard) Check(paths ...string) error {
	for _, p := range paths {
		resolved, err := resolvePath(p)
		if err != nil {
			return &PathSecurityError{Path: p, Resolved: err.Error(), Roots: g.Roots()}
		}
		if !g.allowed(resolved) {
			return &PathSecurityError{Path: p, Resolved: resolved, Roots: g.Roots()}
		}
	}
	return nil
}

// Below reports whether p lies strictly under one of the roots. A root
// itself is not below anything.
func (g *Guard) Below(p string) bool {
	resolved, err := resolvePath(p)
	if err != nil || g == nil {
		return false
	}
	for _, root := range g.roots {
		if resolved == root {
			return false
		}
	}
	return g.allowed(resolved)
}

func (g *Guard) allowed(resolved string) bool {
	if g == nil {
		return false
	}
	for _, root := range g.roots {
		if resolved == root || strings.HasPrefix(resolved, root+string(filepath.Separator)) {
			return true
		}
		if root == string(filepath.Separator) {
			return true
		}
	}
	return false
}

// resolvePath makes p absolute and clean, resolving symlinks in the longest
// prefix that exists. Non-existent tails (targets about to be created) are
// appended verbatim.
func resolvePath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", errors.New("empty path")
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	abs = filepath.Clean(abs)

	existing := abs
	var tail []string
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return abs, nil
		}
		tail = append([]string{filepath.Base(existing)}, tail...)
		existing = parent
	}

	real, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{real}, tail...)...), nil
}
