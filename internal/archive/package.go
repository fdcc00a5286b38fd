package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
)

// InstallScriptPath 是包内安装脚本的规范路径，查找时不区分大小写。
const InstallScriptPath = "tools/chocolateyInstall.ps1"

var (
	// ErrEntryNotFound 表示包内不存在指定条目。
	ErrEntryNotFound = errors.New("archive entry not found")
	// ErrClosed 表示 Package 已保存或关闭。
	ErrClosed = errors.New("archive closed")
)

// Package 是一个已打开的 .nupkg。保存或关闭后不可再用。
type Package struct {
	path     string
	reader   *zip.ReadCloser
	replaced map[*zip.File][]byte
}

// Open 打开 path 处的 zip 包。
func Open(path string) (*Package, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return &Package{path: path, reader: reader, replaced: make(map[*zip.File][]byte)}, nil
}

// Path 返回包在磁盘上的位置。
func (p *Package) Path() string {
	return p.path
}

// Entries 按包内顺序列出条目名。
func (p *Package) Entries() []string {
	if p.reader == nil {
		return nil
	}
	names := make([]string, 0, len(p.reader.File))
	for _, f := range p.reader.File {
		names = append(names, f.Name)
	}
	return names
}

// Find 以不区分大小写、反斜杠视同斜杠的方式查找条目，返回条目的实际名称。
func (p *Package) Find(name string) (string, bool) {
	f := p.lookup(name)
	if f == nil {
		return "", false
	}
	return f.Name, true
}

// Read 返回条目当前内容，已替换的条目返回替换后的字节。
func (p *Package) Read(name string) ([]byte, error) {
	if p.reader == nil {
		return nil, ErrClosed
	}
	f := p.lookup(name)
	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	if data, ok := p.replaced[f]; ok {
		return append([]byte(nil), data...), nil
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("opening entry %s: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading entry %s: %w", f.Name, err)
	}
	return data, nil
}

// ReadText 读取条目并按 BOM 解码。
func (p *Package) ReadText(name string) (Text, error) {
	data, err := p.Read(name)
	if err != nil {
		return Text{}, err
	}
	return DecodeText(data)
}

// Replace 暂存条目的新内容，Save 时写入。
func (p *Package) Replace(name string, data []byte) error {
	if p.reader == nil {
		return ErrClosed
	}
	f := p.lookup(name)
	if f == nil {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	p.replaced[f] = append([]byte(nil), data...)
	return nil
}

// ReplaceText 按 t.Encoding 编码后替换条目。
func (p *Package) ReplaceText(name string, t Text) error {
	data, err := EncodeText(t)
	if err != nil {
		return err
	}
	return p.Replace(name, data)
}

// Modified 表示是否有待保存的替换。
func (p *Package) Modified() bool {
	return len(p.replaced) > 0
}

// Save 把包写入同目录下的临时文件后重命名覆盖原文件，并关闭 Package。
// 失败时删除临时文件，原文件保持不变。
func (p *Package) Save() (err error) {
	if p.reader == nil {
		return ErrClosed
	}

	tmp, err := os.CreateTemp(filepath.Dir(p.path), ".nupkg-*")
	if err != nil {
		return fmt.Errorf("creating temp archive: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err = p.writeTo(tmp); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing temp archive: %w", err)
	}
	if err = p.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmpName, p.path); err != nil {
		return fmt.Errorf("replacing %s: %w", p.path, err)
	}
	return nil
}

// Close 释放底层文件句柄，未保存的替换会被丢弃。
func (p *Package) Close() error {
	if p.reader == nil {
		return nil
	}
	err := p.reader.Close()
	p.reader = nil
	p.replaced = nil
	return err
}

func (p *Package) writeTo(w io.Writer) error {
	zw := zip.NewWriter(w)
	for _, f := range p.reader.File {
		data, ok := p.replaced[f]
		if !ok {
			if err := zw.Copy(f); err != nil {
				return fmt.Errorf("copying entry %s: %w", f.Name, err)
			}
			continue
		}
		if err := writeEntry(zw, f, data); err != nil {
			return err
		}
	}
	if p.reader.Comment != "" {
		if err := zw.SetComment(p.reader.Comment); err != nil {
			return fmt.Errorf("setting archive comment: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalising archive: %w", err)
	}
	return nil
}

// writeEntry 以原条目的名称与属性写入新内容，大小与校验和由 zip.Writer 重新计算。
func writeEntry(zw *zip.Writer, f *zip.File, data []byte) error {
	header := f.FileHeader
	header.Extra = nil
	header.CRC32 = 0
	header.CompressedSize64 = 0
	header.UncompressedSize64 = 0
	header.CompressedSize = 0
	header.UncompressedSize = 0
	header.Modified = time.Now()
	if header.Method != zip.Store {
		header.Method = zip.Deflate
	}

	w, err := zw.CreateHeader(&header)
	if err != nil {
		return fmt.Errorf("creating entry %s: %w", f.Name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing entry %s: %w", f.Name, err)
	}
	return nil
}

func (p *Package) lookup(name string) *zip.File {
	if p.reader == nil {
		return nil
	}
	want := normalizeName(name)
	for _, f := range p.reader.File {
		if strings.EqualFold(normalizeName(f.Name), want) {
			return f
		}
	}
	return nil
}

func normalizeName(name string) string {
	return strings.TrimPrefix(strings.ReplaceAll(name, `\`, "/"), "/")
}
