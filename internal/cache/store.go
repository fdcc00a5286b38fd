package cache

import (
	"context"
	"errors"
	"io"
	"time"
)

// Store 负责管理磁盘缓存的读写。磁盘布局遵循：
//
//	<Dir>/<Name>                 # 包归档，例如 D/foo.1.2.3.nupkg
//	<Dir>/<package>/<Name>       # 安装脚本引用的资源，例如 D/foo.1.2.3/foo.exe
//
// 条目只由正文文件组成，ModTime/Size 由文件系统提供；同名即视为同一内容，不做哈希校验。
type Store interface {
	// Stat 返回条目的文件信息而不打开正文。若不存在则返回 ErrNotFound。
	Stat(ctx context.Context, locator Locator) (*Entry, error)

	// Get 返回一个可流式读取的缓存条目。若不存在则返回 ErrNotFound。
	Get(ctx context.Context, locator Locator) (*ReadResult, error)

	// Put 将正文写入缓存，并产出新的 Entry 描述。实现需通过临时文件 + rename
	// 保证写入原子性，并在失败时清理临时文件。opts.IfAbsent 为真且目标已存在时
	// 不写入，返回已有 Entry 与 ErrExists。
	Put(ctx context.Context, locator Locator, body io.Reader, opts PutOptions) (*Entry, error)

	// Remove 删除正文文件。
	Remove(ctx context.Context, locator Locator) error
}

// PutOptions 控制写入过程中的可选属性。
type PutOptions struct {
	ModTime  time.Time
	IfAbsent bool
}

// Locator 唯一定位一个缓存条目（目录 + 相对路径），Name 使用 URL 路径风格的分隔符。
type Locator struct {
	Dir  string
	Name string
}

// Entry 表示一次缓存命中结果，包含绝对文件路径及文件信息。
type Entry struct {
	Locator   Locator   `json:"locator"`
	FilePath  string    `json:"file_path"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`
}

// ReadResult 组合 Entry 与正文 Reader，便于服务层直接将 Body 流式返回。
type ReadResult struct {
	Entry  Entry
	Reader io.ReadSeekCloser
}

var (
	// ErrNotFound 表示缓存不存在。
	ErrNotFound = errors.New("cache entry not found")
	// ErrExists 表示 IfAbsent 写入时目标已存在。
	ErrExists = errors.New("cache entry already exists")
	// ErrInvalidLocator 表示 Locator 无法映射到目录内的文件。
	ErrInvalidLocator = errors.New("invalid cache locator")
)
