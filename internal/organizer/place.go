package organizer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Nomadcxx/jellysort/internal/analyzer"
	"github.com/Nomadcxx/jellysort/internal/database"
	"github.com/Nomadcxx/jellysort/internal/logging"
	"github.com/Nomadcxx/jellysort/internal/transfer"
)

const maxDedupe = 1000

// Placement is the outcome of placing one media file and its sidecars.
type Placement struct {
	Target   string
	Result   *transfer.Result
	Sidecars []database.RelatedFile
}

// Placer performs the guarded filesystem side of execute and rollback.
type Placer struct {
	transferer transfer.Transferer
	opts       transfer.Options
	logger     *logging.Logger
}

func NewPlacer(t transfer.Transferer, opts transfer.Options, logger *logging.Logger) *Placer {
	if t == nil {
		t = transfer.NewNativeTransferer(0)
	}
	return &Placer{transferer: t, opts: opts, logger: logger}
}

// Place puts src at dst using action. An occupied dst is de-duplicated with a
// _N suffix. Sidecars follow the media file with the stem substituted; a
// sidecar that cannot be placed is logged and left behind.
func (p *Placer) Place(guard *transfer.Guard, action transfer.Action, src, dst string, sidecars []string) (*Placement, error) {
	if err := guard.Check(src, dst); err != nil {
		return nil, itemErr(CodePathSecurityViolation, "refusing to touch path outside allowed roots", err)
	}
	if _, err := os.Stat(src); err != nil {
		return nil, itemErr(CodeSourceMissing, "source file is gone", err)
	}

	target, err := UniquePath(dst)
	if err != nil {
		return nil, itemErr(CodeFilesystemConflict, "no free target name", err)
	}
	if target != dst {
		p.logger.Info("organizer", "Target exists, using suffixed name",
			logging.F("wanted", dst),
			logging.F("target", target))
	}

	res, err := p.transferer.Transfer(action, src, target, p.opts)
	if err != nil {
		return nil, itemErr(CodeOf(err), "transfer failed", err)
	}
	if res.Degraded() {
		p.logger.Warn("organizer", "Transfer degraded",
			logging.F("requested", string(res.Action)),
			logging.F("effective", string(res.Effective)),
			logging.F("target", target))
	}

	out := &Placement{Target: target, Result: res}
	oldStem := analyzer.Stem(filepath.Base(src))
	newStem := analyzer.Stem(filepath.Base(target))
	for _, sc := range sidecars {
		rf := database.RelatedFile{OriginalPath: sc}
		placed, err := p.placeSidecar(guard, res.Effective, sc, filepath.Dir(target), oldStem, newStem)
		if err != nil {
			p.logger.Warn("organizer", "Sidecar not relocated",
				logging.F("sidecar", sc),
				logging.F("error", err.Error()))
		} else {
			rf.NewPath = placed
		}
		out.Sidecars = append(out.Sidecars, rf)
	}
	return out, nil
}

func (p *Placer) placeSidecar(guard *transfer.Guard, action transfer.Action, src, dir, oldStem, newStem string) (string, error) {
	dst := filepath.Join(dir, analyzer.RenameSidecar(filepath.Base(src), oldStem, newStem))
	if err := guard.Check(src, dst); err != nil {
		return "", err
	}
	dst, err := UniquePath(dst)
	if err != nil {
		return "", err
	}
	if _, err := p.transferer.Transfer(action, src, dst, p.opts); err != nil {
		return "", err
	}
	return dst, nil
}

// Restore undoes a placement of original -> current. A move is moved back;
// for copies and links the created file is removed when the source is still
// there, otherwise it is moved back into the original slot.
func (p *Placer) Restore(guard *transfer.Guard, action transfer.Action, original, current string) error {
	if err := guard.Check(original, current); err != nil {
		return itemErr(CodePathSecurityViolation, "refusing to touch path outside allowed roots", err)
	}
	if _, err := os.Lstat(current); err != nil {
		return itemErr(CodeSourceMissing, "organized file is gone", err)
	}

	_, origErr := os.Lstat(original)
	originalPresent := origErr == nil

	if action.KeepsSource() && originalPresent {
		if err := os.Remove(current); err != nil {
			return itemErr(CodeTransferFailed, "remove organized copy", err)
		}
		removeEmptyParents(guard, filepath.Dir(current))
		return nil
	}
	if originalPresent {
		return itemErr(CodeFilesystemConflict, "original slot is occupied", fmt.Errorf("%s exists", original))
	}
	if action == transfer.ActionSoftlink {
		return itemErr(CodeSourceMissing, "link target is gone", fmt.Errorf("%s missing", original))
	}

	if _, err := p.transferer.Move(current, original, p.opts); err != nil {
		return itemErr(CodeOf(err), "move back failed", err)
	}
	removeEmptyParents(guard, filepath.Dir(current))
	return nil
}

// UniquePath returns path if it is free, otherwise the first free
// "stem_N.ext" next to it.
func UniquePath(path string) (string, error) {
	if _, err := os.Lstat(path); errors.Is(err, os.ErrNotExist) {
		return path, nil
	} else if err != nil {
		return "", err
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 1; i <= maxDedupe; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		if _, err := os.Lstat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s", transfer.ErrDestinationExists, path)
}

// removeEmptyParents removes dir and its parents while they are empty and
// below an allowed root. A root is never removed.
func removeEmptyParents(guard *transfer.Guard, dir string) {
	for dir = filepath.Clean(dir); guard.Below(dir); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			return
		}
	}
}
