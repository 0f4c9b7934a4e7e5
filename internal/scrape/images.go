package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// maxImageBytes bounds a single artwork download.
const maxImageBytes = 32 << 20

var errNoImageClient = errors.New("image client is nil")

func download(ctx context.Context, c *http.Client, url string) ([]byte, error) {
	if c == nil {
		return nil, errNoImageClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("GET %s: HTTP %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("GET %s: image larger than %d bytes", url, maxImageBytes)
	}
	return data, nil
}

// fetchImage stores url as dir/name+ext. An empty url or an existing file is
// not an error; the returned path is empty when nothing was written.
func fetchImage(ctx context.Context, c *http.Client, url, dir, name string) (string, error) {
	if url == "" {
		return "", nil
	}
	path := filepath.Join(dir, name+imageExt(url))
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	data, err := download(ctx, c, url)
	if err != nil {
		return "", err
	}
	if err := writeFileAtomic(path, data, false); err != nil {
		if errors.Is(err, os.ErrExist) {
			return path, nil
		}
		return "", err
	}
	return path, nil
}
