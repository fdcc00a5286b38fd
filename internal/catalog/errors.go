package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrResolutionFailed 标记一切解析阶段的失败，与下载失败区分。
	ErrResolutionFailed = errors.New("package resolution failed")

	// ErrPackageLinkMissing indicates the catalog answered but carried no archive link.
	ErrPackageLinkMissing = errors.New("package link not found")

	// ErrUnknownResolver indicates no resolver is registered under the requested kind.
	ErrUnknownResolver = errors.New("unknown resolver")
)

// Error wraps a resolution failure with the resolver kind and package identifier.
type Error struct {
	Resolver string
	Package  string
	Err      error
}

func (e *Error) Error() string {
	if e.Package != "" {
		return fmt.Sprintf("resolve %s via %s: %v", e.Package, e.Resolver, e.Err)
	}
	return fmt.Sprintf("resolve via %s: %v", e.Resolver, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 使 errors.Is(err, ErrResolutionFailed) 对所有解析错误成立。
func (e *Error) Is(target error) bool {
	return target == ErrResolutionFailed
}

func resolutionError(kind, pkg string, err error) error {
	return &Error{Resolver: kind, Package: pkg, Err: err}
}
