// Package cloud synchronizes per-user preference documents across devices.
// Documents are automerge CRDTs layered over a read/modify/write store with
// optimistic concurrency; conflicting writers converge by merging changes.
package cloud

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// ErrConflict is returned by Write when prevRev no longer matches the
// stored revision.
var ErrConflict = errors.New("cloud: revision conflict")

// Cloud is the remote document store. Read returns the stored payload and
// its revision; a missing document reads as (nil, 0, nil). Write commits
// only if prevRev still matches.
type Cloud interface {
	Read(ctx context.Context, key string) (data []byte, rev int64, err error)
	Write(ctx context.Context, key string, data []byte, prevRev int64) (int64, error)
}

// MemCloud is an in-memory Cloud.
type MemCloud struct {
	mu   sync.Mutex
	data map[string][]byte
	revs map[string]int64
}

func NewMemCloud() *MemCloud {
	return &MemCloud{
		data: make(map[string][]byte),
		revs: make(map[string]int64),
	}
}

func (c *MemCloud) Read(ctx context.Context, key string) ([]byte, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte{}, c.data[key]...), c.revs[key], nil
}

func (c *MemCloud) Write(ctx context.Context, key string, data []byte, prevRev int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.revs[key] != prevRev {
		return 0, ErrConflict
	}
	c.data[key] = append([]byte{}, data...)
	c.revs[key] = prevRev + 1
	return c.revs[key], nil
}

// HTTPCloud talks to a document service. Revisions travel in the
// X-Revision header; writes carry X-Prev-Revision and a 409 reports a
// conflict.
type HTTPCloud struct {
	baseURL string
	hc      *http.Client
}

func NewHTTPCloud(baseURL string, timeout time.Duration) *HTTPCloud {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &HTTPCloud{baseURL: baseURL, hc: &http.Client{Timeout: timeout}}
}

func (c *HTTPCloud) Read(ctx context.Context, key string) ([]byte, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/cloud/"+key, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusNotFound:
		return nil, 0, nil
	case http.StatusOK:
	default:
		return nil, 0, fmt.Errorf("cloud read %s: status %d", key, resp.StatusCode)
	}
	rev, err := strconv.ParseInt(resp.Header.Get("X-Revision"), 10, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("cloud read %s: bad revision: %w", key, err)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return data, rev, nil
}

func (c *HTTPCloud) Write(ctx context.Context, key string, data []byte, prevRev int64) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/v1/cloud/"+key, bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	req.Header.Set("X-Prev-Revision", strconv.FormatInt(prevRev, 10))
	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusConflict:
		return 0, ErrConflict
	case http.StatusOK:
	default:
		return 0, fmt.Errorf("cloud write %s: status %d", key, resp.StatusCode)
	}
	rev, err := strconv.ParseInt(resp.Header.Get("X-Revision"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cloud write %s: bad revision: %w", key, err)
	}
	return rev, nil
}
