package config

import (
	"os"
	"os/user"
	"strconv"
	"strings"
)

// PermissionsConfig sets ownership and modes of organized files.
type PermissionsConfig struct {
	// User can be a username (e.g., "jellyfin") or numeric UID (e.g., "1000").
	User string `mapstructure:"user"`
	// Group can be a group name (e.g., "jellyfin") or numeric GID (e.g., "1000").
	Group string `mapstructure:"group"`
	// Modes are strings in octal (e.g., "0644" or "644"). Empty means preserve source.
	FileMode string `mapstructure:"file_mode"`
	DirMode  string `mapstructure:"dir_mode"`
}

func (p *PermissionsConfig) WantsOwnership() bool {
	return strings.TrimSpace(p.User) != "" || strings.TrimSpace(p.Group) != ""
}

func (p *PermissionsConfig) WantsMode() bool {
	return strings.TrimSpace(p.FileMode) != "" || strings.TrimSpace(p.DirMode) != ""
}

// ResolveUID returns -1 when no user is configured.
func (p *PermissionsConfig) ResolveUID() (int, error) {
	if p.User == "" {
		return -1, nil
	}
	if uid, err := strconv.Atoi(p.User); err == nil {
		return uid, nil
	}
	usr, err := user.Lookup(p.User)
	if err != nil {
		return -1, err
	}
	return strconv.Atoi(usr.Uid)
}

// ResolveGID returns -1 when no group is configured.
func (p *PermissionsConfig) ResolveGID() (int, error) {
	if p.Group == "" {
		return -1, nil
	}
	if gid, err := strconv.Atoi(p.Group); err == nil {
		return gid, nil
	}
	grp, err := user.LookupGroup(p.Group)
	if err != nil {
		return -1, err
	}
	return strconv.Atoi(grp.Gid)
}

func (p *PermissionsConfig) ParseFileMode() (os.FileMode, error) {
	return parseMode(p.FileMode)
}

func (p *PermissionsConfig) ParseDirMode() (os.FileMode, error) {
	return parseMode(p.DirMode)
}

// parseMode accepts "0644" and "644".
func parseMode(s string) (os.FileMode, error) {
	m := strings.TrimSpace(s)
	if m == "" {
		return 0, nil
	}
	if len(m) == 3 {
		m = "0" + m
	}
	v, err := strconv.ParseUint(m, 8, 32)
	if err != nil {
		return 0, err
	}
	return os.FileMode(v), nil
}
