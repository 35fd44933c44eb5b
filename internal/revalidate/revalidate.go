// Package revalidate signals the rendering frontend that cached pages are
// stale. Invalidation runs over two channels: by path for the page itself,
// and by tag (story slug) for any other page embedding that content.
package revalidate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Revalidator triggers cache invalidation on the frontend.
type Revalidator interface {
	RevalidatePath(ctx context.Context, path string) error
	RevalidateTag(ctx context.Context, tag string) error
}

// Config points at the frontend's revalidation endpoint.
type Config struct {
	Endpoint string        `mapstructure:"endpoint"`
	Token    string        `mapstructure:"token"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// HTTP posts invalidation requests to the frontend.
type HTTP struct {
	cfg    Config
	client *http.Client
}

// NewHTTP builds an HTTP revalidator.
func NewHTTP(cfg Config) *HTTP {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTP{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

// RevalidatePath invalidates one page path.
func (h *HTTP) RevalidatePath(ctx context.Context, path string) error {
	return h.post(ctx, map[string]string{"path": path})
}

// RevalidateTag invalidates every page carrying the tag.
func (h *HTTP) RevalidateTag(ctx context.Context, tag string) error {
	return h.post(ctx, map[string]string{"tag": tag})
}

func (h *HTTP) post(ctx context.Context, body map[string]string) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.Endpoint, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.cfg.Token != "" {
		req.Header.Set("X-Revalidate-Token", h.cfg.Token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("revalidate: frontend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// Recorder captures invalidations for tests.
type Recorder struct {
	mu    sync.Mutex
	Paths []string
	Tags  []string
}

// RevalidatePath records the path.
func (r *Recorder) RevalidatePath(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Paths = append(r.Paths, path)
	return nil
}

// RevalidateTag records the tag.
func (r *Recorder) RevalidateTag(_ context.Context, tag string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Tags = append(r.Tags, tag)
	return nil
}
