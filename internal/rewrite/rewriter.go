package rewrite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/chocolatestore/chocolatestore/internal/fetch"
)

// Fetcher 是 Rewriter 对下载器的最小依赖，*fetch.Fetcher 满足该接口。
type Fetcher interface {
	Fetch(ctx context.Context, rawURL, dir string) fetch.Result
}

// Outcome 是一次重写的结果：替换后的文本与每处 URL 的下载结果（按出现顺序）。
type Outcome struct {
	Text    string
	Results []fetch.Result
}

// Failed 返回下载失败、仍保留远程 URL 的结果。
func (o Outcome) Failed() []fetch.Result {
	var failed []fetch.Result
	for _, result := range o.Results {
		if !result.OK() {
			failed = append(failed, result)
		}
	}
	return failed
}

// Rewriter 把脚本中的 URL 替换为缓存目录下的本地路径。
type Rewriter struct {
	fetcher     Fetcher
	concurrency int
}

// New 创建 Rewriter。concurrency <= 1 时顺序下载，通知按出现顺序到达；
// 大于 1 时最多并行 concurrency 个不同 URL，通知顺序不再保证。
func New(fetcher Fetcher, concurrency int) *Rewriter {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Rewriter{fetcher: fetcher, concurrency: concurrency}
}

// Rewrite 在 cacheDir 中缓存 text 引用的全部 URL 并返回替换后的文本。
// 单个 URL 失败不会中断批次；只有 ctx 取消或缓存目录无法创建才返回 error。
func (r *Rewriter) Rewrite(ctx context.Context, text, cacheDir string) (Outcome, error) {
	dir, err := filepath.Abs(cacheDir)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve cache dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Outcome{}, fmt.Errorf("create cache dir: %w", err)
	}

	matches := FindURLs(text)
	if len(matches) == 0 {
		return Outcome{Text: text}, nil
	}

	var results []fetch.Result
	if r.concurrency == 1 {
		results, err = r.fetchSequential(ctx, matches, dir)
	} else {
		results, err = r.fetchParallel(ctx, matches, dir)
	}
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{Text: splice(text, matches, results), Results: results}, nil
}

func (r *Rewriter) fetchSequential(ctx context.Context, matches []Match, dir string) ([]fetch.Result, error) {
	results := make([]fetch.Result, len(matches))
	for i, m := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results[i] = r.fetcher.Fetch(ctx, m.URL, dir)
	}
	return results, nil
}

// fetchParallel 按 URL 分组：同一 URL 的多次出现在一个 goroutine 内顺序处理，
// 因此重复 URL 只会下载一次，其余出现得到 Skipping。
func (r *Rewriter) fetchParallel(ctx context.Context, matches []Match, dir string) ([]fetch.Result, error) {
	var order []string
	groups := make(map[string][]int)
	for i, m := range matches {
		if _, ok := groups[m.URL]; !ok {
			order = append(order, m.URL)
		}
		groups[m.URL] = append(groups[m.URL], i)
	}

	results := make([]fetch.Result, len(matches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, rawURL := range order {
		indexes := groups[rawURL]
		g.Go(func() error {
			for _, idx := range indexes {
				if err := gctx.Err(); err != nil {
					return err
				}
				results[idx] = r.fetcher.Fetch(gctx, rawURL, dir)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func splice(text string, matches []Match, results []fetch.Result) string {
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for i, m := range matches {
		b.WriteString(text[last:m.Start])
		b.WriteString(results[i].Replacement())
		last = m.End
	}
	b.WriteString(text[last:])
	return b.String()
}
