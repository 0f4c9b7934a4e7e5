// Package transfer performs the filesystem side of organizing media: move,
// copy, hardlink and softlink, each preceded by an allow-list check.
//
// Moves try a rename first and fall back to copy+remove across devices.
// Hardlinks that cross devices degrade to a copy. Copies are written to a
// temporary sibling and renamed into place so a failed copy never leaves a
// half-written file at the destination.
package transfer

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Common errors returned by transfer operations
var (
	// ErrTimeout is returned when a copy makes no progress within Options.Timeout
	ErrTimeout = errors.New("transfer timed out: no progress")

	// ErrSourceNotFound is returned when the source file doesn't exist
	ErrSourceNotFound = errors.New("source file not found")

	// ErrDestinationExists is returned instead of overwriting an existing file
	ErrDestinationExists = errors.New("destination already exists")

	// ErrDestinationNotWritable is returned when the destination is not writable
	ErrDestinationNotWritable = errors.New("destination not writable")

	// ErrInsufficientSpace is returned by the pre-copy free space check
	ErrInsufficientSpace = errors.New("insufficient space at destination")

	// ErrTransferFailed is returned when a transfer fails for unspecified reasons
	ErrTransferFailed = errors.New("transfer failed")
)

// Action is the filesystem operation used to place an organized file.
type Action string

const (
	ActionMove     Action = "move"
	ActionCopy     Action = "copy"
	ActionHardlink Action = "hardlink"
	ActionSoftlink Action = "softlink"
)

// ParseAction converts a configured operation name to an Action.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "move":
		return ActionMove, nil
	case "copy":
		return ActionCopy, nil
	case "hardlink", "link":
		return ActionHardlink, nil
	case "softlink", "symlink":
		return ActionSoftlink, nil
	default:
		return "", fmt.Errorf("unknown transfer action %q", s)
	}
}

// KeepsSource reports whether the source file remains after the action.
func (a Action) KeepsSource() bool {
	return a != ActionMove
}

// Options configures a single transfer.
type Options struct {
	// Timeout aborts a copy that makes no progress for this long. Zero means 30m.
	Timeout time.Duration

	// Progress is called with bytes copied so far and the total size.
	Progress func(current, total int64)

	// TargetUID/TargetGID set ownership of the new file; -1 keeps the default.
	TargetUID int
	TargetGID int

	// FileMode sets the permissions of the new file; 0 keeps the default.
	FileMode os.FileMode

	// DirMode sets the permissions of created directories; 0 means 0755.
	DirMode os.FileMode
}

// DefaultOptions returns sensible default transfer options.
func DefaultOptions() Options {
	return Options{
		Timeout:   5 * time.Minute,
		TargetUID: -1,
		TargetGID: -1,
	}
}

func (o Options) dirMode() os.FileMode {
	if o.DirMode == 0 {
		return 0755
	}
	return o.DirMode
}

// Result describes a completed transfer.
type Result struct {
	Action Action
	// Effective is the action actually performed, e.g. copy when a hardlink
	// could not cross devices.
	Effective     Action
	BytesTotal    int64
	BytesCopied   int64
	Duration      time.Duration
	SourceRemoved bool
}

// Degraded reports whether a fallback action was used.
func (r *Result) Degraded() bool {
	return r != nil && r.Effective != r.Action
}

// Transferer places files. Implementations must be safe for concurrent use.
type Transferer interface {
	// Transfer performs action from src to dst. dst must not exist.
	Transfer(action Action, src, dst string, opts Options) (*Result, error)

	// Move renames src to dst, copying across devices. Used by rollback.
	Move(src, dst string, opts Options) (*Result, error)

	// Name returns a human-readable name for this transferer implementation.
	Name() string
}
