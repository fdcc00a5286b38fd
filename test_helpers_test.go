package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
)

var repoRoot string

func init() {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return
	}
	dir := filepath.Dir(file)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			repoRoot = dir
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

func projectRoot(t *testing.T) string {
	t.Helper()
	if repoRoot == "" {
		t.Fatal("无法定位项目根目录")
	}
	return repoRoot
}

func configFixture(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(projectRoot(t), "internal", "config", "testdata", name)
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "chocolatestore.toml")
	if err := os.WriteFile(file, []byte(strings.TrimSpace(content)), 0o600); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}
	return file
}

// useBufferWriters swaps stdIn/stdOut/stdErr with in-memory buffers for the
// duration of a test, allowing assertions on CLI output without polluting test logs.
func useBufferWriters(t *testing.T, input string) {
	t.Helper()

	prevIn, prevOut, prevErr := stdIn, stdOut, stdErr
	stdIn = strings.NewReader(input)
	stdOut = &bytes.Buffer{}
	stdErr = &bytes.Buffer{}

	t.Cleanup(func() {
		stdIn, stdOut, stdErr = prevIn, prevOut, prevErr
	})
}

// stdOutBuffer returns the in-use stdout buffer when useBufferWriters is active.
func stdOutBuffer() *bytes.Buffer {
	buf, _ := stdOut.(*bytes.Buffer)
	return buf
}

// stdErrBuffer returns the in-use stderr buffer when useBufferWriters is active.
func stdErrBuffer() *bytes.Buffer {
	buf, _ := stdErr.(*bytes.Buffer)
	return buf
}

// newPackageServer 提供一个 .nupkg（脚本引用同一服务上的安装程序）及对应的目录页。
func newPackageServer(t *testing.T, installerPaths ...string) *httptest.Server {
	t.Helper()
	files := map[string][]byte{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(server.Close)

	var script strings.Builder
	for _, p := range installerPaths {
		script.WriteString("Install-ChocolateyPackage 'foo' 'exe' '/S' '" + server.URL + p + "'\r\n")
	}
	files["/files/foo.exe"] = []byte("MZ-installer")
	files["/foo.1.0.0.nupkg"] = buildNupkg(t, script.String())
	files["/packages/foo"] = []byte(`<html><a title="Download the raw nupkg file" href="/foo.1.0.0.nupkg">nupkg</a></html>`)
	return server
}

func buildNupkg(t *testing.T, script string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range []struct{ name, body string }{
		{"foo.nuspec", "<package><metadata><id>foo</id></metadata></package>"},
		{"tools/chocolateyInstall.ps1", script},
	} {
		w, err := zw.Create(e.name)
		if err != nil {
			t.Fatalf("create %s: %v", e.name, err)
		}
		if _, err := io.WriteString(w, e.body); err != nil {
			t.Fatalf("write %s: %v", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}
