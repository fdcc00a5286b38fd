package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RunFields 标识一次缓存任务，run_id 贯穿该任务的所有日志。
func RunFields(runID, pkg string) logrus.Fields {
	return logrus.Fields{
		"run_id":  runID,
		"package": pkg,
	}
}

// FetchFields 描述单个下载事件。
func FetchFields(url, name, status string) logrus.Fields {
	fields := logrus.Fields{"status": status}
	if url != "" {
		fields["url"] = url
	}
	if name != "" {
		fields["name"] = name
	}
	return fields
}

// FetchObserver 把下载通知写入结构化日志，可与控制台 Observer 组合使用。
type FetchObserver struct {
	Logger logrus.FieldLogger
}

func (o FetchObserver) Skipping(name string) {
	o.Logger.WithFields(FetchFields("", name, "skipped")).Info("file_skipped")
}

func (o FetchObserver) Downloading(name string) {
	o.Logger.WithFields(FetchFields("", name, "downloading")).Info("file_downloading")
}

func (o FetchObserver) DownloadFailed(url string, err error) {
	o.Logger.WithFields(FetchFields(url, "", "failed")).WithError(err).Warn("file_download_failed")
}
