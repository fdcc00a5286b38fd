package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chocolatestore/chocolatestore/internal/cache"
)

// Options 汇总 Fetcher 依赖，零值字段使用默认实现。
type Options struct {
	Client    *http.Client
	Store     cache.Store
	Observer  Observer
	Logger    logrus.FieldLogger
	UserAgent string
	// DisableProbe 关闭下载前的 HEAD 探测，此时命中缓存仍会发起 GET（但不读取正文）。
	DisableProbe bool
}

// Fetcher 负责单个 URL 的下载与落盘。
type Fetcher struct {
	client    *http.Client
	store     cache.Store
	logger    logrus.FieldLogger
	userAgent string
	probe     bool

	notifyMu sync.Mutex
	observer Observer
}

// New constructs a Fetcher from opts.
func New(opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		client = NewClient(nil)
	}
	store := opts.Store
	if store == nil {
		store = cache.NewStore()
	}
	observer := opts.Observer
	if observer == nil {
		observer = ObserverFuncs{}
	}
	logger := opts.Logger
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}
	return &Fetcher{
		client:    client,
		store:     store,
		logger:    logger,
		userAgent: opts.UserAgent,
		probe:     !opts.DisableProbe,
		observer:  observer,
	}
}

// Fetch 下载 rawURL 到 dir，永不返回 error：失败时通知 DownloadFailed，
// 并返回 Status=StatusFailed 的 Result，其 Replacement 为原 URL。
func (f *Fetcher) Fetch(ctx context.Context, rawURL, dir string) Result {
	started := time.Now()
	result, err := f.fetch(ctx, rawURL, dir)
	result.RemoteURL = rawURL
	if err != nil {
		result.Status = StatusFailed
		result.Err = err
		result.LocalPath = ""
		f.notify(func(o Observer) { o.DownloadFailed(rawURL, err) })
	}

	fields := logrus.Fields{
		"action":      "fetch",
		"url":         rawURL,
		"name":        result.Name,
		"status":      result.Status.String(),
		"size_bytes":  result.SizeBytes,
		"elapsed_ms":  time.Since(started).Milliseconds(),
		"destination": dir,
	}
	if err != nil {
		f.logger.WithFields(fields).WithError(err).Warn("fetch_failed")
	} else {
		f.logger.WithFields(fields).Info("fetch_completed")
	}
	return result
}

func (f *Fetcher) fetch(ctx context.Context, rawURL, dir string) (Result, error) {
	target, err := parseTarget(rawURL)
	if err != nil {
		return Result{}, err
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return Result{}, fmt.Errorf("resolve destination: %w", err)
	}

	if f.probe {
		if name, ok := f.probeName(ctx, target); ok {
			if result, hit, err := f.lookup(ctx, absDir, name); err != nil {
				return Result{}, err
			} else if hit {
				return result, nil
			}
		}
	}

	resp, err := f.get(ctx, target)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	name, err := fileName(resp.Request.URL)
	if err != nil {
		return Result{}, err
	}
	if result, hit, err := f.lookup(ctx, absDir, name); err != nil {
		return Result{}, err
	} else if hit {
		return result, nil
	}

	f.notify(func(o Observer) { o.Downloading(name) })

	locator := cache.Locator{Dir: absDir, Name: name}
	entry, err := f.store.Put(ctx, locator, resp.Body, cache.PutOptions{
		ModTime:  extractModTime(resp.Header),
		IfAbsent: true,
	})
	switch {
	case errors.Is(err, cache.ErrExists):
		// 并发下载同名文件时，另一个请求已先行写入。
		f.notify(func(o Observer) { o.Skipping(name) })
		return Result{Name: name, LocalPath: entry.FilePath, SizeBytes: entry.SizeBytes, Status: StatusSkipped}, nil
	case err != nil:
		return Result{Name: name}, fmt.Errorf("write %s: %w", name, err)
	}
	return Result{Name: name, LocalPath: entry.FilePath, SizeBytes: entry.SizeBytes, Status: StatusDownloaded}, nil
}

// lookup 检查 dir 中是否已有同名文件，命中时发出 Skipping 通知。
func (f *Fetcher) lookup(ctx context.Context, dir, name string) (Result, bool, error) {
	entry, err := f.store.Stat(ctx, cache.Locator{Dir: dir, Name: name})
	switch {
	case err == nil:
		f.notify(func(o Observer) { o.Skipping(name) })
		return Result{Name: name, LocalPath: entry.FilePath, SizeBytes: entry.SizeBytes, Status: StatusSkipped}, true, nil
	case errors.Is(err, cache.ErrNotFound):
		return Result{}, false, nil
	default:
		return Result{}, false, err
	}
}

// probeName 通过 HEAD 请求（跟随重定向）预先得到最终文件名；任何失败都交给 GET 兜底。
func (f *Fetcher) probeName(ctx context.Context, target *url.URL) (string, bool) {
	req, err := f.newRequest(ctx, http.MethodHead, target)
	if err != nil {
		return "", false
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", false
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", false
	}
	name, err := fileName(resp.Request.URL)
	if err != nil {
		return "", false
	}
	return name, true
}

func (f *Fetcher) get(ctx context.Context, target *url.URL) (*http.Response, error) {
	req, err := f.newRequest(ctx, http.MethodGet, target)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, resp.Request.URL)
	}
	return resp, nil
}

func (f *Fetcher) newRequest(ctx context.Context, method string, target *url.URL) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	return req, nil
}

func (f *Fetcher) notify(fn func(Observer)) {
	f.notifyMu.Lock()
	defer f.notifyMu.Unlock()
	fn(f.observer)
}

func parseTarget(rawURL string) (*url.URL, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid url %q: only http/https supported", rawURL)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("invalid url %q: missing host", rawURL)
	}
	return parsed, nil
}

// fileName 取最终 URL 解码后路径的最后一段。
func fileName(u *url.URL) (string, error) {
	name := path.Base(u.Path)
	switch name {
	case "", ".", "/", "..":
		return "", fmt.Errorf("cannot derive file name from %s", u)
	}
	return name, nil
}

func extractModTime(header http.Header) time.Time {
	if header == nil {
		return time.Time{}
	}
	if value := header.Get("Last-Modified"); value != "" {
		if parsed, err := http.ParseTime(value); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}
