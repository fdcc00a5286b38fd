package rewrite

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chocolatestore/chocolatestore/internal/fetch"
)

func TestFindURLs(t *testing.T) {
	cases := []struct {
		name string
		text string
		want []string
	}{
		{name: "single quoted", text: `$url = 'http://host/foo.exe'`, want: []string{"http://host/foo.exe"}},
		{name: "double quoted https", text: `$url64 = "https://host/foo64.exe"`, want: []string{"https://host/foo64.exe"}},
		{name: "spaces allowed", text: `'https://host/my file.exe'`, want: []string{"https://host/my file.exe"}},
		{name: "greedy to last quote", text: `"http://a/x.exe" "http://b/y.exe"`, want: []string{`http://a/x.exe" "http://b/y.exe`}},
		{name: "tab breaks run", text: "'http://a/x.exe'\t'http://b/y.exe'", want: []string{"http://a/x.exe", "http://b/y.exe"}},
		{name: "one per line", text: "'http://a/1'\n\"http://b/2\"\n", want: []string{"http://a/1", "http://b/2"}},
		{name: "unquoted", text: `Get http://host/foo.exe`, want: nil},
		{name: "missing closing quote", text: `'http://host/foo.exe`, want: nil},
		{name: "other scheme", text: `'ftp://host/foo.exe'`, want: nil},
		{name: "local path", text: `'C:\cache\foo\foo.exe'`, want: nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got []string
			for _, m := range FindURLs(tc.text) {
				if tc.text[m.Start:m.End] != m.URL {
					t.Fatalf("offsets do not cover url %q", m.URL)
				}
				got = append(got, m.URL)
			}
			if strings.Join(got, "|") != strings.Join(tc.want, "|") {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestRewriteReplacesURLsInPlace(t *testing.T) {
	dir := t.TempDir()
	fake := newFakeFetcher()
	script := "$packageArgs = @{\n  url = 'http://host/foo.exe'\n  url64bit = \"https://host/foo64.exe\"\n}\n"

	out, err := New(fake, 1).Rewrite(context.Background(), script, dir)
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	want := "$packageArgs = @{\n  url = '" + filepath.Join(dir, "foo.exe") + "'\n  url64bit = \"" + filepath.Join(dir, "foo64.exe") + "\"\n}\n"
	if out.Text != want {
		t.Fatalf("unexpected text:\n%s", out.Text)
	}
	if len(out.Results) != 2 || len(out.Failed()) != 0 {
		t.Fatalf("unexpected results %+v", out.Results)
	}
	if got := fake.urls(); strings.Join(got, ",") != "http://host/foo.exe,https://host/foo64.exe" {
		t.Fatalf("fetches out of order: %v", got)
	}
}

func TestRewriteLeavesFailedURL(t *testing.T) {
	fake := newFakeFetcher()
	fake.fail["http://host/broken.exe"] = true
	script := "a 'http://host/broken.exe'\nb 'http://host/ok.exe'\n"
	dir := t.TempDir()

	out, err := New(fake, 1).Rewrite(context.Background(), script, dir)
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	want := "a 'http://host/broken.exe'\nb '" + filepath.Join(dir, "ok.exe") + "'\n"
	if out.Text != want {
		t.Fatalf("unexpected text:\n%s", out.Text)
	}
	failed := out.Failed()
	if len(failed) != 1 || failed[0].RemoteURL != "http://host/broken.exe" {
		t.Fatalf("expected one failure, got %+v", failed)
	}
}

func TestRewriteIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	fake := newFakeFetcher()
	script := "Install-ChocolateyPackage 'foo' 'exe' '/S' 'http://host/foo.exe'\n"

	first, err := New(fake, 1).Rewrite(context.Background(), script, dir)
	if err != nil {
		t.Fatalf("first rewrite: %v", err)
	}
	calls := len(fake.urls())
	second, err := New(fake, 1).Rewrite(context.Background(), first.Text, dir)
	if err != nil {
		t.Fatalf("second rewrite: %v", err)
	}
	if second.Text != first.Text {
		t.Fatalf("second pass changed text:\n%s\n---\n%s", first.Text, second.Text)
	}
	if len(fake.urls()) != calls || len(second.Results) != 0 {
		t.Fatalf("second pass should not fetch anything")
	}
}

func TestRewriteCreatesCacheDirWithoutURLs(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "foo.1.0.0")
	out, err := New(newFakeFetcher(), 1).Rewrite(context.Background(), "Write-Host 'hello'", dir)
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if out.Text != "Write-Host 'hello'" {
		t.Fatalf("text without urls must be untouched, got %q", out.Text)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("expected cache dir to exist: %v", err)
	}
}

func TestRewriteParallelKeepsOrder(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 20; i++ {
		b.WriteString("'http://host/file" + string(rune('a'+i)) + ".exe'\n")
	}
	script := b.String()
	dir := t.TempDir()

	seq, err := New(newFakeFetcher(), 1).Rewrite(context.Background(), script, dir)
	if err != nil {
		t.Fatalf("sequential rewrite: %v", err)
	}
	par, err := New(newFakeFetcher(), 4).Rewrite(context.Background(), script, dir)
	if err != nil {
		t.Fatalf("parallel rewrite: %v", err)
	}
	if seq.Text != par.Text {
		t.Fatalf("parallel output differs:\n%s\n---\n%s", seq.Text, par.Text)
	}
	for i, result := range par.Results {
		if result.RemoteURL != seq.Results[i].RemoteURL {
			t.Fatalf("result %d out of order: %s", i, result.RemoteURL)
		}
	}
}

func TestRewriteDuplicateURLDownloadedOnce(t *testing.T) {
	for _, concurrency := range []int{1, 4} {
		var gets atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				gets.Add(1)
			}
			_, _ = w.Write([]byte("payload"))
		}))
		dir := t.TempDir()
		target := server.URL + "/tools/foo.exe"
		script := "'" + target + "'\n\"" + target + "\"\n'" + target + "'\n"

		var downloading, skipping atomic.Int32
		fetcher := fetch.New(fetch.Options{Observer: fetch.ObserverFuncs{
			OnDownloading: func(string) { downloading.Add(1) },
			OnSkipping:    func(string) { skipping.Add(1) },
		}})
		out, err := New(fetcher, concurrency).Rewrite(context.Background(), script, dir)
		server.Close()
		if err != nil {
			t.Fatalf("concurrency %d: rewrite: %v", concurrency, err)
		}
		if gets.Load() != 1 || downloading.Load() != 1 || skipping.Load() != 2 {
			t.Fatalf("concurrency %d: gets=%d downloading=%d skipping=%d", concurrency, gets.Load(), downloading.Load(), skipping.Load())
		}
		local := filepath.Join(dir, "foo.exe")
		if strings.Count(out.Text, local) != 3 {
			t.Fatalf("concurrency %d: every occurrence should point at %s:\n%s", concurrency, local, out.Text)
		}
	}
}

func TestRewriteParallelSameNameReportsSkip(t *testing.T) {
	var arrived sync.WaitGroup
	arrived.Add(2)
	release := make(chan struct{})
	go func() {
		arrived.Wait()
		close(release)
	}()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			return
		}
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		arrived.Done()
		select {
		case <-release:
		case <-time.After(5 * time.Second):
		}
		_, _ = w.Write([]byte("payload " + r.URL.Path))
	}))
	defer server.Close()

	var mu sync.Mutex
	var events []string
	record := func(kind string) func(string) {
		return func(name string) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, kind+":"+name)
		}
	}
	fetcher := fetch.New(fetch.Options{Observer: fetch.ObserverFuncs{
		OnDownloading: record("down"),
		OnSkipping:    record("skip"),
	}})

	dir := t.TempDir()
	script := "'" + server.URL + "/a/setup.exe'\n'" + server.URL + "/b/setup.exe'\n"
	out, err := New(fetcher, 2).Rewrite(context.Background(), script, dir)
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	var downloaded, skipped int
	for _, result := range out.Results {
		switch result.Status {
		case fetch.StatusDownloaded:
			downloaded++
		case fetch.StatusSkipped:
			skipped++
		default:
			t.Fatalf("unexpected result for %s: %s", result.RemoteURL, result.Status)
		}
	}
	if downloaded != 1 || skipped != 1 {
		t.Fatalf("expected one download and one skip, got downloaded=%d skipped=%d", downloaded, skipped)
	}
	mu.Lock()
	defer mu.Unlock()
	var skipEvents int
	for _, event := range events {
		if event == "skip:setup.exe" {
			skipEvents++
		}
	}
	if skipEvents != skipped {
		t.Fatalf("每个 skipped 结果都应发出 Skipping 通知: events=%v", events)
	}
	if strings.Count(out.Text, filepath.Join(dir, "setup.exe")) != 2 {
		t.Fatalf("both occurrences should point at the cached file:\n%s", out.Text)
	}
}

func TestRewriteHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, concurrency := range []int{1, 3} {
		_, err := New(newFakeFetcher(), concurrency).Rewrite(ctx, "'http://host/a.exe' 'x'\n'http://host/b.exe'", t.TempDir())
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("concurrency %d: expected context.Canceled, got %v", concurrency, err)
		}
	}
}

// fakeFetcher 把 URL 映射到 dir 下的同名文件，不访问网络。
type fakeFetcher struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{fail: map[string]bool{}}
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL, dir string) fetch.Result {
	f.mu.Lock()
	f.calls = append(f.calls, rawURL)
	failing := f.fail[rawURL]
	f.mu.Unlock()

	if failing {
		return fetch.Result{RemoteURL: rawURL, Status: fetch.StatusFailed, Err: errors.New("unreachable")}
	}
	name := path.Base(rawURL)
	return fetch.Result{RemoteURL: rawURL, Name: name, LocalPath: filepath.Join(dir, name), Status: fetch.StatusDownloaded}
}

func (f *fakeFetcher) urls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
