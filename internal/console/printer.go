// Package console 负责命令行的彩色状态输出与 y/n 确认提示。
package console

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Printer 按级别着色输出一行文本，并实现 fetch.Observer。
// 非终端输出（文件、管道、测试缓冲区）自动退化为纯文本。
type Printer struct {
	mu      sync.Mutex
	out     io.Writer
	info    lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
}

// NewPrinter 创建写入 out 的 Printer。
func NewPrinter(out io.Writer) *Printer {
	renderer := lipgloss.NewRenderer(out)
	return &Printer{
		out:     out,
		info:    renderer.NewStyle().Foreground(lipgloss.Color("6")),
		warning: renderer.NewStyle().Foreground(lipgloss.Color("11")),
		failure: renderer.NewStyle().Background(lipgloss.Color("1")).Foreground(lipgloss.Color("15")),
	}
}

func (p *Printer) Info(format string, args ...any) {
	p.println(p.info, format, args...)
}

func (p *Printer) Warning(format string, args ...any) {
	p.println(p.warning, format, args...)
}

func (p *Printer) Error(format string, args ...any) {
	p.println(p.failure, format, args...)
}

// Plain 输出不带样式的一行。
func (p *Printer) Plain(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *Printer) Skipping(name string) {
	p.Warning("Skipped: %s - File already exists on disk.", name)
}

func (p *Printer) Downloading(name string) {
	p.Info("Downloading: %s", name)
}

func (p *Printer) DownloadFailed(url string, err error) {
	p.Error("Download Failed: %s", url)
	if err != nil {
		p.Plain("%v", err)
	}
}

func (p *Printer) println(style lipgloss.Style, format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, style.Render(fmt.Sprintf(format, args...)))
}

// Confirm 输出提示并读取一行回答，以 y/yes（不区分大小写）开头视为同意。
// 读到 EOF 视为拒绝。
func (p *Printer) Confirm(in io.Reader, format string, args ...any) (bool, error) {
	p.mu.Lock()
	fmt.Fprint(p.out, p.info.Render(fmt.Sprintf(format, args...)+" [y/n]")+" ")
	p.mu.Unlock()

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("reading answer: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
