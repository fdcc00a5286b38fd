package main

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/chocolatestore/chocolatestore/internal/console"
	"github.com/chocolatestore/chocolatestore/internal/logging"
	"github.com/chocolatestore/chocolatestore/internal/server"
	"github.com/chocolatestore/chocolatestore/internal/version"
)

type serveOptions struct {
	configPath string
	directory  string
	port       int
}

func newServeCommand(configPath *string, code *int) *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve <directory>",
		Short: "Serve a cache directory as a read-only HTTP file mirror",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.configPath = *configPath
			opts.directory = args[0]
			*code = runServe(cmd.Context(), opts)
			return nil
		},
	}
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "listen port (overrides ListenPort)")
	return cmd
}

// runServe 启动 Fiber 服务，ctx 取消时优雅关闭。
func runServe(ctx context.Context, opts serveOptions) int {
	cfg, logger, err := bootstrap(opts.configPath)
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		return exitFailure
	}
	port := cfg.Global.ListenPort
	if opts.port > 0 {
		port = opts.port
	}

	printer := console.NewPrinter(stdOut)
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Root:       opts.directory,
		ListenPort: port,
	})
	if err != nil {
		printer.Error("%v", err)
		return exitFailure
	}

	go func() {
		<-ctx.Done()
		_ = app.Shutdown()
	}()

	fields := logging.BaseFields("listen", opts.configPath)
	fields["port"] = port
	fields["root"] = opts.directory
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("feed_listening")
	printer.Info("%s", serveBanner(opts.directory, port))

	if err := app.Listen(fmt.Sprintf(":%d", port), fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
		logger.WithFields(logrus.Fields{"action": "listen", "port": port}).WithError(err).Error("feed_stopped")
		printer.Error("%v", err)
		return exitFailure
	}
	return exitOK
}

// serveBanner 描述镜像的访问方式。这里只提供文件下载，不实现 NuGet v2 查询接口，
// 且改写后的脚本引用的是本机绝对路径，因此不能直接作为 choco 源。
func serveBanner(dir string, port int) string {
	return fmt.Sprintf("Serving %s as a file mirror on http://0.0.0.0:%d/ (package list at /-/packages)", dir, port)
}
