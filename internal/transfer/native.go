package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"
)

// NativeTransferer implements Transferer with the os package.
type NativeTransferer struct {
	bufferSize int
}

func NewNativeTransferer(bufferSize int) *NativeTransferer {
	if bufferSize <= 0 {
		bufferSize = 4 * 1024 * 1024
	}
	return &NativeTransferer{bufferSize: bufferSize}
}

func (n *NativeTransferer) Name() string {
	return "native"
}

func (n *NativeTransferer) Transfer(action Action, src, dst string, opts Options) (*Result, error) {
	switch action {
	case ActionMove:
		return n.Move(src, dst, opts)
	case ActionCopy:
		return n.Copy(src, dst, opts)
	case ActionHardlink:
		return n.Hardlink(src, dst, opts)
	case ActionSoftlink:
		return n.Softlink(src, dst, opts)
	default:
		return nil, fmt.Errorf("%w: unsupported action %q", ErrTransferFailed, action)
	}
}

// prepare validates src and dst and creates the destination directory.
func prepare(src, dst string, opts Options) (os.FileInfo, error) {
	info, err := os.Stat(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, src)
		}
		return nil, fmt.Errorf("%w: %v", ErrSourceNotFound, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrTransferFailed, src)
	}
	if _, err := os.Lstat(dst); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDestinationExists, dst)
	}
	if err := os.MkdirAll(filepath.Dir(dst), opts.dirMode()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDestinationNotWritable, err)
	}
	return info, nil
}

// Move renames src to dst. Across devices it copies and then removes src.
func (n *NativeTransferer) Move(src, dst string, opts Options) (*Result, error) {
	start := time.Now()
	info, err := prepare(src, dst, opts)
	if err != nil {
		return nil, err
	}

	result := &Result{Action: ActionMove, Effective: ActionMove, BytesTotal: info.Size()}
	if err := os.Rename(src, dst); err == nil {
		result.BytesCopied = info.Size()
		result.SourceRemoved = true
		result.Duration = time.Since(start)
		if err := ApplyPermissions(dst, opts); err != nil {
			return result, err
		}
		return result, nil
	} else if !IsCrossDevice(err) {
		return nil, fmt.Errorf("%w: rename: %v", ErrTransferFailed, err)
	}

	copied, err := n.copyFile(src, dst, info, opts)
	result.BytesCopied = copied
	if err != nil {
		return result, err
	}
	if err := os.Remove(src); err != nil {
		return result, fmt.Errorf("%w: copied but could not remove source: %v", ErrTransferFailed, err)
	}
	result.SourceRemoved = true
	result.Duration = time.Since(start)
	return result, nil
}

// Copy copies src to dst, leaving src in place.
func (n *NativeTransferer) Copy(src, dst string, opts Options) (*Result, error) {
	start := time.Now()
	info, err := prepare(src, dst, opts)
	if err != nil {
		return nil, err
	}

	result := &Result{Action: ActionCopy, Effective: ActionCopy, BytesTotal: info.Size()}
	copied, err := n.copyFile(src, dst, info, opts)
	result.BytesCopied = copied
	result.Duration = time.Since(start)
	return result, err
}

// Hardlink links dst to src. A cross-device link degrades to Copy.
func (n *NativeTransferer) Hardlink(src, dst string, opts Options) (*Result, error) {
	start := time.Now()
	info, err := prepare(src, dst, opts)
	if err != nil {
		return nil, err
	}

	result := &Result{Action: ActionHardlink, Effective: ActionHardlink, BytesTotal: info.Size()}
	if err := os.Link(src, dst); err != nil {
		if !IsCrossDevice(err) {
			return nil, fmt.Errorf("%w: link: %v", ErrTransferFailed, err)
		}
		result.Effective = ActionCopy
		copied, err := n.copyFile(src, dst, info, opts)
		result.BytesCopied = copied
		result.Duration = time.Since(start)
		return result, err
	}
	result.Duration = time.Since(start)
	return result, nil
}

// Softlink creates dst as a symlink to the absolute path of src.
func (n *NativeTransferer) Softlink(src, dst string, opts Options) (*Result, error) {
	start := time.Now()
	info, err := prepare(src, dst, opts)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := os.Symlink(abs, dst); err != nil {
		return nil, fmt.Errorf("%w: symlink: %v", ErrTransferFailed, err)
	}
	return &Result{
		Action:     ActionSoftlink,
		Effective:  ActionSoftlink,
		BytesTotal: info.Size(),
		Duration:   time.Since(start),
	}, nil
}

// IsCrossDevice reports whether err is EXDEV from rename or link.
func IsCrossDevice(err error) bool {
	return errors.Is(err, syscall.EXDEV)
}

// copyFile writes into a temporary sibling and renames it into place, so a
// failed or stalled copy never leaves a partial file at dst.
func (n *NativeTransferer) copyFile(src, dst string, info os.FileInfo, opts Options) (int64, error) {
	if err := checkFreeSpace(filepath.Dir(dst), info.Size()); err != nil {
		return 0, err
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Minute
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSourceNotFound, err)
	}
	defer srcFile.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".part-*")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDestinationNotWritable, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var lastProgress atomic.Int64
	lastProgress.Store(time.Now().UnixNano())
	go func() {
		ticker := time.NewTicker(timeout / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if time.Since(time.Unix(0, lastProgress.Load())) > timeout {
					cancel()
					return
				}
			}
		}
	}()

	var copied int64
	buf := make([]byte, n.bufferSize)
	for {
		if ctx.Err() != nil {
			return copied, fmt.Errorf("%w: no progress for %s", ErrTimeout, timeout)
		}

		nr, readErr := srcFile.Read(buf)
		if nr > 0 {
			nw, writeErr := tmp.Write(buf[:nr])
			copied += int64(nw)
			lastProgress.Store(time.Now().UnixNano())
			if opts.Progress != nil {
				opts.Progress(copied, info.Size())
			}
			if writeErr != nil {
				return copied, fmt.Errorf("%w: write: %v", ErrTransferFailed, writeErr)
			}
			if nw != nr {
				return copied, fmt.Errorf("%w: short write %d != %d", ErrTransferFailed, nw, nr)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return copied, fmt.Errorf("%w: read: %v", ErrTransferFailed, readErr)
		}
	}

	if err := tmp.Sync(); err != nil {
		return copied, fmt.Errorf("%w: sync: %v", ErrTransferFailed, err)
	}
	if err := tmp.Close(); err != nil {
		return copied, fmt.Errorf("%w: close: %v", ErrTransferFailed, err)
	}

	mode := info.Mode().Perm()
	if opts.FileMode != 0 {
		mode = opts.FileMode
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		return copied, fmt.Errorf("%w: chmod: %v", ErrTransferFailed, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return copied, fmt.Errorf("%w: commit: %v", ErrTransferFailed, err)
	}
	committed = true

	if err := ApplyPermissions(dst, opts); err != nil {
		return copied, err
	}
	return copied, nil
}

// checkFreeSpace fails early when dir's filesystem cannot hold need bytes.
func checkFreeSpace(dir string, need int64) error {
	var st syscall.Statfs_t
	if err := syscall.Statfs(dir, &st); err != nil {
		// Not all filesystems support statfs; let the copy itself fail.
		return nil
	}
	free := int64(st.Bavail) * int64(st.Bsize)
	if need > 0 && free < need {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrInsufficientSpace, need, free)
	}
	return nil
}
