package fetch

// Status 描述一次 Fetch 的结局。
type Status int

const (
	StatusDownloaded Status = iota + 1
	StatusSkipped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusDownloaded:
		return "downloaded"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result 是单次 Fetch 的标记结果：成功时 LocalPath 有效，失败时 Err 记录原因。
type Result struct {
	RemoteURL string
	Name      string
	LocalPath string
	SizeBytes int64
	Status    Status
	Err       error
}

// OK 表示文件已在本地可用（新下载或已存在）。
func (r Result) OK() bool {
	return r.Status == StatusDownloaded || r.Status == StatusSkipped
}

// Replacement 返回脚本中替换原 URL 的文本：成功为本地路径，失败退回原 URL。
func (r Result) Replacement() string {
	if r.OK() && r.LocalPath != "" {
		return r.LocalPath
	}
	return r.RemoteURL
}
