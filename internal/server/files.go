package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/chocolatestore/chocolatestore/internal/cache"
)

type fileHandler struct {
	root   string
	store  cache.Store
	logger *logrus.Logger
}

func (h *fileHandler) listPackages(c fiber.Ctx) error {
	packages, err := Inventory(h.root)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"action":     "inventory",
			"root":       h.root,
			"request_id": RequestID(c),
		}).WithError(err).Warn("inventory_failed")
		return renderError(c, fiber.StatusInternalServerError, "inventory_failed")
	}
	return c.JSON(fiber.Map{
		"root":     h.root,
		"packages": packages,
	})
}

// serveFile 以流式方式返回 root 下的文件，HEAD 只返回头部。
func (h *fileHandler) serveFile(c fiber.Ctx) error {
	started := time.Now()
	requestPath := string(c.Request().URI().Path())
	if isDiagnosticsPath(requestPath) {
		return renderError(c, fiber.StatusNotFound, "not_found")
	}
	if !allowedMethod(c.Method()) {
		c.Set(fiber.HeaderAllow, "GET, HEAD")
		return renderError(c, fiber.StatusMethodNotAllowed, "method_not_allowed")
	}

	name := strings.TrimPrefix(path.Clean("/"+requestPath), "/")
	if name == "" {
		return h.listPackages(c)
	}
	if hiddenPath(name) {
		return renderError(c, fiber.StatusNotFound, "not_found")
	}

	result, err := h.store.Get(c.Context(), cache.Locator{Dir: h.root, Name: name})
	switch {
	case errors.Is(err, cache.ErrNotFound), errors.Is(err, cache.ErrInvalidLocator):
		return renderError(c, fiber.StatusNotFound, "not_found")
	case err != nil:
		return renderError(c, fiber.StatusInternalServerError, "read_failed")
	}
	defer result.Reader.Close()

	c.Set(fiber.HeaderContentType, contentTypeFor(name))
	c.Set(fiber.HeaderLastModified, result.Entry.ModTime.UTC().Format(http.TimeFormat))
	c.Response().Header.SetContentLength(int(result.Entry.SizeBytes))
	c.Status(fiber.StatusOK)

	fields := logrus.Fields{
		"action":     "serve",
		"path":       name,
		"method":     c.Method(),
		"size_bytes": result.Entry.SizeBytes,
		"request_id": RequestID(c),
	}
	if c.Method() == http.MethodHead {
		h.logger.WithFields(fields).Debug("file_served")
		return nil
	}

	_, err = io.Copy(c.Response().BodyWriter(), result.Reader)
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if err != nil {
		h.logger.WithFields(fields).WithError(err).Warn("file_stream_failed")
		return fiber.NewError(fiber.StatusInternalServerError, fmt.Sprintf("read file failed: %v", err))
	}
	h.logger.WithFields(fields).Debug("file_served")
	return nil
}

// hiddenPath 拒绝以点开头的路径段，避免暴露下载中的临时文件。
func hiddenPath(name string) bool {
	for _, segment := range strings.Split(name, "/") {
		if strings.HasPrefix(segment, ".") {
			return true
		}
	}
	return false
}

func contentTypeFor(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".nupkg" {
		return "application/zip"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return fiber.MIMEOctetStream
}
