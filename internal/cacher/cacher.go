package cacher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chocolatestore/chocolatestore/internal/archive"
	"github.com/chocolatestore/chocolatestore/internal/catalog"
	"github.com/chocolatestore/chocolatestore/internal/rewrite"
)

// Options 汇总 Cacher 依赖。Resolver 为空时只接受带 SourceURL 的请求。
type Options struct {
	Fetcher     rewrite.Fetcher
	Resolver    catalog.Resolver
	Concurrency int
	Strict      bool
	Logger      logrus.FieldLogger
}

// Cacher 执行包缓存流程。
type Cacher struct {
	fetcher  rewrite.Fetcher
	resolver catalog.Resolver
	rewriter *rewrite.Rewriter
	strict   bool
	logger   logrus.FieldLogger
}

// New 构造 Cacher，opts.Fetcher 必须非空。
func New(opts Options) *Cacher {
	logger := opts.Logger
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}
	return &Cacher{
		fetcher:  opts.Fetcher,
		resolver: opts.Resolver,
		rewriter: rewrite.New(opts.Fetcher, opts.Concurrency),
		strict:   opts.Strict,
		logger:   logger,
	}
}

// CachePackage 下载 req 指向的归档，缓存安装脚本引用的全部资源，并把脚本改写为本地路径。
// 单个资源失败不会中断流程，其 URL 原样保留在脚本中（严格模式除外）。
func (c *Cacher) CachePackage(ctx context.Context, req Request) (*Report, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	started := time.Now()

	resolved, err := c.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	report := &Report{SourceURL: resolved.SourceURL}
	logger := c.logger.WithFields(logrus.Fields{
		"action": "cache",
		"source": resolved.SourceURL,
	})

	archiveResult := c.fetcher.Fetch(ctx, resolved.SourceURL, resolved.DestinationDirectory)
	report.ArchiveStatus = archiveResult.Status
	if !archiveResult.OK() {
		return report, fmt.Errorf("%w: %s: %v", ErrArchiveUnavailable, resolved.SourceURL, archiveResult.Err)
	}
	report.ArchivePath = archiveResult.LocalPath

	pkg, err := archive.Open(report.ArchivePath)
	if err != nil {
		return report, fmt.Errorf("%w: %v", ErrArchiveInvalid, err)
	}
	defer pkg.Close()

	scriptName, ok := pkg.Find(archive.InstallScriptPath)
	if !ok {
		logger.WithField("archive", report.ArchivePath).Info("install_script_missing")
		return report, nil
	}
	report.ScriptFound = true

	script, err := pkg.ReadText(scriptName)
	if err != nil {
		return report, fmt.Errorf("%w: %v", ErrArchiveInvalid, err)
	}

	report.CacheDir = cacheDirFor(report.ArchivePath)
	outcome, err := c.rewriter.Rewrite(ctx, script.Content, report.CacheDir)
	if err != nil {
		return report, fmt.Errorf("rewrite %s: %w", scriptName, err)
	}
	report.Resources = outcome.Results

	if c.strict && report.Degraded() {
		return report, fmt.Errorf("%w: %s", ErrDegraded, strings.Join(report.LiveURLs(), ", "))
	}

	script.Content = outcome.Text
	if err := pkg.ReplaceText(scriptName, script); err != nil {
		return report, fmt.Errorf("%w: %v", ErrArchiveInvalid, err)
	}
	if err := pkg.Save(); err != nil {
		return report, fmt.Errorf("%w: saving %s: %v", ErrArchiveInvalid, report.ArchivePath, err)
	}
	report.Saved = true

	counts := report.Counts()
	logger.WithFields(logrus.Fields{
		"archive":    report.ArchivePath,
		"cache_dir":  report.CacheDir,
		"downloaded": counts.Downloaded,
		"skipped":    counts.Skipped,
		"failed":     counts.Failed,
		"elapsed_ms": time.Since(started).Milliseconds(),
	}).Info("cache_completed")
	return report, nil
}

func (c *Cacher) resolve(ctx context.Context, req Request) (Request, error) {
	if strings.TrimSpace(req.SourceURL) != "" {
		return req, nil
	}
	if c.resolver == nil {
		return req, fmt.Errorf("%w: no resolver configured for %q", ErrInvalidRequest, req.PackageIdentifier)
	}
	sourceURL, err := c.resolver.Resolve(ctx, req.PackageIdentifier)
	if err != nil {
		if !errors.Is(err, catalog.ErrResolutionFailed) {
			err = fmt.Errorf("%w: %v", catalog.ErrResolutionFailed, err)
		}
		return req, err
	}
	return req.Resolved(sourceURL), nil
}

// cacheDirFor 返回 <归档所在目录>/<归档名去掉扩展名>。
func cacheDirFor(archivePath string) string {
	base := filepath.Base(archivePath)
	return filepath.Join(filepath.Dir(archivePath), strings.TrimSuffix(base, filepath.Ext(base)))
}
