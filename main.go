package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/chocolatestore/chocolatestore/internal/cacher"
	"github.com/chocolatestore/chocolatestore/internal/catalog"
	"github.com/chocolatestore/chocolatestore/internal/config"
	"github.com/chocolatestore/chocolatestore/internal/console"
	"github.com/chocolatestore/chocolatestore/internal/fetch"
	"github.com/chocolatestore/chocolatestore/internal/logging"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2

	usageLine = "USAGE: chocolatestore <directory> <package>"
)

// cliOptions 汇总 CLI 参数解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	directory   string
	pkg         string
	assumeYes   bool
	strict      bool
	concurrency int
	showVersion bool
}

var (
	stdIn  io.Reader = os.Stdin
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// execute 构建命令树并执行，返回进程退出码。
func execute(ctx context.Context, args []string) int {
	code := exitOK
	root := newRootCommand(&code)
	root.SetArgs(args)
	root.SetIn(stdIn)
	root.SetOut(stdOut)
	root.SetErr(stdErr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stdErr, err.Error())
		fmt.Fprintln(stdErr, usageLine)
		return exitUsage
	}
	return code
}

func newRootCommand(code *int) *cobra.Command {
	var opts cliOptions

	root := &cobra.Command{
		Use:   "chocolatestore [flags] <directory> <package>",
		Short: "Cache Chocolatey packages and their installers for offline use",
		Long: `chocolatestore downloads a Chocolatey package (.nupkg), caches every
installer its chocolateyInstall.ps1 references next to it, and rewrites the
script to use the local copies.

<package> is either a package id (resolved through the configured catalog)
or the absolute http(s) URL of a .nupkg.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.showVersion {
				*code = run(cmd.Context(), opts)
				return nil
			}
			if len(args) != 2 {
				fmt.Fprintln(stdErr, usageLine)
				*code = exitUsage
				return nil
			}
			opts.directory, opts.pkg = args[0], args[1]
			*code = run(cmd.Context(), opts)
			return nil
		},
	}

	flags := root.Flags()
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ./chocolatestore.toml, overridable via CHOCOLATESTORE_CONFIG)")
	flags.BoolVarP(&opts.assumeYes, "yes", "y", false, "create the destination directory without asking")
	flags.BoolVar(&opts.strict, "strict", false, "do not save the package when any installer could not be cached")
	flags.IntVar(&opts.concurrency, "concurrency", 0, "maximum parallel downloads (overrides MaxConcurrentDownloads)")
	flags.BoolVar(&opts.showVersion, "version", false, "print version information")

	root.AddCommand(newServeCommand(&opts.configPath, code))
	return root
}

// run 执行一次缓存任务并返回退出码。
func run(ctx context.Context, opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return exitOK
	}

	cfg, logger, err := bootstrap(opts.configPath)
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		return exitFailure
	}
	if opts.strict {
		cfg.Global.Strict = true
	}
	if opts.concurrency > 0 {
		cfg.Global.MaxConcurrentDownloads = opts.concurrency
	}

	runID := uuid.NewString()
	runLogger := logger.WithFields(logging.RunFields(runID, opts.pkg))
	printer := console.NewPrinter(stdOut)

	if !ensureDirectory(printer, opts) {
		return exitFailure
	}

	client := fetch.NewClient(cfg)
	fetcher := fetch.New(fetch.Options{
		Client:    client,
		Observer:  fetch.Observers{printer, logging.FetchObserver{Logger: runLogger}},
		Logger:    runLogger,
		UserAgent: cfg.Global.UserAgent,
	})
	resolver, err := catalog.New(cfg.Global.Resolver, catalog.Options{
		Client:        client,
		CatalogURL:    cfg.Global.CatalogURL,
		RepositoryURL: cfg.Global.RepositoryURL,
		UserAgent:     cfg.Global.UserAgent,
		Logger:        runLogger,
	})
	if err != nil {
		printer.Error("%v", err)
		return exitFailure
	}

	fields := logging.BaseFields("cache", opts.configPath)
	fields["destination"] = opts.directory
	fields["resolver"] = cfg.Global.Resolver
	fields["concurrency"] = cfg.Global.MaxConcurrentDownloads
	fields["strict"] = cfg.Global.Strict
	runLogger.WithFields(fields).Info("run_started")

	c := cacher.New(cacher.Options{
		Fetcher:     fetcher,
		Resolver:    resolver,
		Concurrency: cfg.Global.MaxConcurrentDownloads,
		Strict:      cfg.Global.Strict,
		Logger:      runLogger,
	})
	report, err := c.CachePackage(ctx, buildRequest(opts.directory, opts.pkg))
	if report != nil {
		printSummary(printer, report)
	}
	if err != nil {
		printer.Error("%s", describeError(err))
		runLogger.WithError(err).Error("run_failed")
		return exitFailure
	}
	runLogger.WithField("degraded", report.Degraded()).Info("run_completed")
	return exitOK
}

// bootstrap 加载配置并初始化日志，serve 与缓存命令共用。
func bootstrap(flagPath string) (*config.Config, *logrus.Logger, error) {
	path := config.ResolvePath(flagPath)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise logging: %w", err)
	}
	return cfg, logger, nil
}

// ensureDirectory 在目标目录不存在时询问是否创建；--yes 跳过询问。
func ensureDirectory(printer *console.Printer, opts cliOptions) bool {
	info, err := os.Stat(opts.directory)
	if err == nil {
		if !info.IsDir() {
			printer.Error("'%s' is not a directory.", opts.directory)
			return false
		}
		return true
	}
	if !errors.Is(err, os.ErrNotExist) {
		printer.Error("%v", err)
		return false
	}

	create := opts.assumeYes
	if !create {
		create, err = printer.Confirm(stdIn, "Directory '%s' does not exist. Create?", opts.directory)
		if err != nil {
			printer.Error("%v", err)
			return false
		}
	}
	if !create {
		printer.Error("Directory '%s' does not exist.", opts.directory)
		return false
	}
	if err := os.MkdirAll(opts.directory, 0o755); err != nil {
		printer.Error("%v", err)
		return false
	}
	printer.Plain("Created Directory '%s'", opts.directory)
	return true
}

// buildRequest 把绝对 http(s) URL 视为归档地址，其余视为包标识。
func buildRequest(directory, pkg string) cacher.Request {
	req := cacher.Request{DestinationDirectory: directory}
	if isSourceURL(pkg) {
		req.SourceURL = pkg
	} else {
		req.PackageIdentifier = pkg
	}
	return req
}

func isSourceURL(value string) bool {
	parsed, err := url.Parse(strings.TrimSpace(value))
	if err != nil || parsed.Host == "" {
		return false
	}
	scheme := strings.ToLower(parsed.Scheme)
	return scheme == "http" || scheme == "https"
}

func printSummary(printer *console.Printer, report *cacher.Report) {
	if report.ArchivePath == "" {
		return
	}
	if !report.ScriptFound {
		printer.Warning("No install script found in %s; package left unchanged.", report.ArchivePath)
		return
	}
	counts := report.Counts()
	printer.Info("%s: %d downloaded, %d skipped, %d failed", report.ArchivePath, counts.Downloaded, counts.Skipped, counts.Failed)
	if live := report.LiveURLs(); len(live) > 0 {
		if report.Saved {
			printer.Warning("These URLs could not be cached and remain in the install script:")
		} else {
			printer.Warning("These URLs could not be cached; the package was not modified:")
		}
		for _, u := range live {
			printer.Warning("  %s", u)
		}
	}
}

func describeError(err error) string {
	switch {
	case errors.Is(err, catalog.ErrResolutionFailed):
		return fmt.Sprintf("Could not find package: %v", err)
	case errors.Is(err, cacher.ErrArchiveUnavailable):
		return fmt.Sprintf("Could not download package: %v", err)
	case errors.Is(err, cacher.ErrArchiveInvalid):
		return fmt.Sprintf("Package is not a valid archive: %v", err)
	case errors.Is(err, cacher.ErrDegraded):
		return "Strict mode: package not saved because some installers could not be cached."
	case errors.Is(err, context.Canceled):
		return "Interrupted."
	default:
		return err.Error()
	}
}
