package cacher

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/chocolatestore/chocolatestore/internal/fetch"
)

var (
	// ErrInvalidRequest 表示请求参数不完整或互相冲突。
	ErrInvalidRequest = errors.New("invalid cache request")
	// ErrArchiveUnavailable 表示归档本身无法下载。
	ErrArchiveUnavailable = errors.New("package archive unavailable")
	// ErrArchiveInvalid 表示归档无法作为 zip 打开、读取或保存。
	ErrArchiveInvalid = errors.New("package archive invalid")
	// ErrDegraded 仅在严格模式下返回：脚本中至少一个 URL 未能缓存，归档未保存。
	ErrDegraded = errors.New("package cached with unreachable resources")
)

// Request 描述一次缓存任务。SourceURL 与 PackageIdentifier 必须且只能设置一个。
type Request struct {
	SourceURL            string
	PackageIdentifier    string
	DestinationDirectory string
}

// Validate 检查字段组合与目标目录。
func (r Request) Validate() error {
	hasURL := strings.TrimSpace(r.SourceURL) != ""
	hasID := strings.TrimSpace(r.PackageIdentifier) != ""
	switch {
	case hasURL && hasID:
		return fmt.Errorf("%w: source url and package identifier are mutually exclusive", ErrInvalidRequest)
	case !hasURL && !hasID:
		return fmt.Errorf("%w: source url or package identifier is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.DestinationDirectory) == "" {
		return fmt.Errorf("%w: destination directory is required", ErrInvalidRequest)
	}
	info, err := os.Stat(r.DestinationDirectory)
	if err != nil {
		return fmt.Errorf("%w: destination directory: %v", ErrInvalidRequest, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: destination %s is not a directory", ErrInvalidRequest, r.DestinationDirectory)
	}
	return nil
}

// Resolved 返回填入 SourceURL 后的副本。
func (r Request) Resolved(sourceURL string) Request {
	r.SourceURL = sourceURL
	return r
}

// Counts 汇总内嵌资源的下载结局。
type Counts struct {
	Downloaded int
	Skipped    int
	Failed     int
}

// Report 描述一次 CachePackage 的结果，出错时也会尽量填充已完成的部分。
type Report struct {
	SourceURL     string
	ArchivePath   string
	ArchiveStatus fetch.Status
	ScriptFound   bool
	CacheDir      string
	Saved         bool
	Resources     []fetch.Result
}

// Degraded 表示至少一个内嵌资源未能缓存，脚本里仍保留其远程 URL。
func (r *Report) Degraded() bool {
	for _, res := range r.Resources {
		if !res.OK() {
			return true
		}
	}
	return false
}

// Counts 统计 Resources 中各状态的数量。
func (r *Report) Counts() Counts {
	var c Counts
	for _, res := range r.Resources {
		switch res.Status {
		case fetch.StatusDownloaded:
			c.Downloaded++
		case fetch.StatusSkipped:
			c.Skipped++
		default:
			c.Failed++
		}
	}
	return c
}

// LiveURLs 返回仍指向远程的 URL，按出现顺序去重。
func (r *Report) LiveURLs() []string {
	seen := make(map[string]struct{})
	var urls []string
	for _, res := range r.Resources {
		if res.OK() {
			continue
		}
		if _, ok := seen[res.RemoteURL]; ok {
			continue
		}
		seen[res.RemoteURL] = struct{}{}
		urls = append(urls, res.RemoteURL)
	}
	return urls
}
