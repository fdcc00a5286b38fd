package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExecuteRejectsWrongArgumentCount(t *testing.T) {
	for _, args := range [][]string{{}, {"only-dir"}, {"a", "b", "c"}} {
		useBufferWriters(t, "")
		if code := execute(context.Background(), args); code != exitUsage {
			t.Fatalf("%v: 期望退出码 2，得到 %d", args, code)
		}
		if !strings.Contains(stdErrBuffer().String(), usageLine) {
			t.Fatalf("%v: expected usage line, got %q", args, stdErrBuffer().String())
		}
	}
}

func TestExecuteUnknownFlagIsUsageError(t *testing.T) {
	useBufferWriters(t, "")
	if code := execute(context.Background(), []string{"--bogus", "dir", "pkg"}); code != exitUsage {
		t.Fatalf("期望退出码 2，得到 %d", code)
	}
}

func TestExecuteVersionOutput(t *testing.T) {
	useBufferWriters(t, "")
	if code := execute(context.Background(), []string{"--version"}); code != exitOK {
		t.Fatalf("version 模式应成功退出，得到 %d", code)
	}
	if !strings.Contains(stdOutBuffer().String(), "chocolatestore") {
		t.Fatalf("version 输出应包含 chocolatestore 标识")
	}
}

func TestRunConfigFailure(t *testing.T) {
	useBufferWriters(t, "")
	code := execute(context.Background(), []string{"--config", configFixture(t, "missing.toml"), t.TempDir(), "foo"})
	if code != exitFailure {
		t.Fatalf("无效配置应返回 1，得到 %d", code)
	}
}

func TestRunInvalidConfigFixture(t *testing.T) {
	useBufferWriters(t, "")
	code := execute(context.Background(), []string{"--config", configFixture(t, "invalid.toml"), t.TempDir(), "foo"})
	if code != exitFailure {
		t.Fatalf("校验失败应返回 1，得到 %d", code)
	}
}

func TestRunDeclinedDirectoryCreation(t *testing.T) {
	useBufferWriters(t, "n\n")
	dest := filepath.Join(t.TempDir(), "missing")

	code := execute(context.Background(), []string{"--config", emptyConfig(t), dest, "http://127.0.0.1:1/foo.nupkg"})
	if code != exitFailure {
		t.Fatalf("expected exit 1, got %d", code)
	}
	out := stdOutBuffer().String()
	if !strings.Contains(out, fmt.Sprintf("Directory '%s' does not exist. Create? [y/n]", dest)) {
		t.Fatalf("expected prompt, got %q", out)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatalf("directory must not be created after declining")
	}
}

func TestRunCachesPackageFromURL(t *testing.T) {
	server := newPackageServer(t, "/files/foo.exe")
	useBufferWriters(t, "y\n")
	dest := filepath.Join(t.TempDir(), "store")

	code := execute(context.Background(), []string{"--config", emptyConfig(t), dest, server.URL + "/foo.1.0.0.nupkg"})
	if code != exitOK {
		t.Fatalf("expected exit 0, got %d (stderr=%s, stdout=%s)", code, stdErrBuffer(), stdOutBuffer())
	}
	out := stdOutBuffer().String()
	for _, want := range []string{
		"Created Directory '" + dest + "'",
		"Downloading: foo.1.0.0.nupkg",
		"Downloading: foo.exe",
		"1 downloaded, 0 skipped, 0 failed",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if _, err := os.Stat(filepath.Join(dest, "foo.1.0.0", "foo.exe")); err != nil {
		t.Fatalf("installer not cached: %v", err)
	}

	useBufferWriters(t, "")
	code = execute(context.Background(), []string{"--config", emptyConfig(t), dest, server.URL + "/foo.1.0.0.nupkg"})
	if code != exitOK {
		t.Fatalf("second run: expected exit 0, got %d", code)
	}
	if !strings.Contains(stdOutBuffer().String(), "Skipped: foo.1.0.0.nupkg - File already exists on disk.") {
		t.Fatalf("second run should skip the archive:\n%s", stdOutBuffer())
	}
}

func TestRunResolvesPackageIdentifier(t *testing.T) {
	server := newPackageServer(t, "/files/foo.exe")
	useBufferWriters(t, "")
	dest := t.TempDir()
	cfg := writeConfigFile(t, fmt.Sprintf(`
LogLevel = "error"
CatalogURL = "%s/packages/"
`, server.URL))

	if code := execute(context.Background(), []string{"--config", cfg, dest, "foo"}); code != exitOK {
		t.Fatalf("expected exit 0, got %d (stdout=%s)", code, stdOutBuffer())
	}
	if _, err := os.Stat(filepath.Join(dest, "foo.1.0.0.nupkg")); err != nil {
		t.Fatalf("archive not cached: %v", err)
	}
}

func TestRunDegradedAndStrict(t *testing.T) {
	server := newPackageServer(t, "/files/foo.exe", "/files/gone.exe")

	useBufferWriters(t, "")
	dest := t.TempDir()
	code := execute(context.Background(), []string{"--config", emptyConfig(t), dest, server.URL + "/foo.1.0.0.nupkg"})
	if code != exitOK {
		t.Fatalf("degraded run should exit 0, got %d", code)
	}
	out := stdOutBuffer().String()
	if !strings.Contains(out, "Download Failed: "+server.URL+"/files/gone.exe") ||
		!strings.Contains(out, "remain in the install script") {
		t.Fatalf("expected degraded summary:\n%s", out)
	}

	useBufferWriters(t, "")
	code = execute(context.Background(), []string{"--config", emptyConfig(t), "--strict", t.TempDir(), server.URL + "/foo.1.0.0.nupkg"})
	if code != exitFailure {
		t.Fatalf("strict run should exit 1, got %d", code)
	}
	if !strings.Contains(stdOutBuffer().String(), "Strict mode") {
		t.Fatalf("expected strict mode message:\n%s", stdOutBuffer())
	}
}

func TestRunReportsResolutionFailure(t *testing.T) {
	server := newPackageServer(t)
	useBufferWriters(t, "")
	cfg := writeConfigFile(t, fmt.Sprintf(`CatalogURL = "%s/packages/"`, server.URL))

	if code := execute(context.Background(), []string{"--config", cfg, t.TempDir(), "unknown"}); code != exitFailure {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stdOutBuffer().String(), "Could not find package") {
		t.Fatalf("expected resolution failure message:\n%s", stdOutBuffer())
	}
}

func TestIsSourceURL(t *testing.T) {
	cases := map[string]bool{
		"https://host/foo.1.0.nupkg": true,
		"HTTP://host/foo.nupkg":      true,
		"foo":                        false,
		"googlechrome":               false,
		"ftp://host/foo.nupkg":       false,
		"http:/foo":                  false,
		"C:\\packages\\foo.nupkg":    false,
	}
	for value, want := range cases {
		if got := isSourceURL(value); got != want {
			t.Fatalf("%q: expected %v, got %v", value, want, got)
		}
	}
}

func emptyConfig(t *testing.T) string {
	t.Helper()
	return writeConfigFile(t, `LogLevel = "error"`)
}

func TestServeBannerDescribesFileMirror(t *testing.T) {
	banner := serveBanner("cache", 8080)
	if !strings.Contains(banner, "http://0.0.0.0:8080/") || !strings.Contains(banner, "/-/packages") {
		t.Fatalf("banner should name the listen address and listing: %q", banner)
	}
	if strings.Contains(banner, "choco") {
		t.Fatalf("the mirror does not speak the NuGet API, banner must not advertise a choco source: %q", banner)
	}
}
