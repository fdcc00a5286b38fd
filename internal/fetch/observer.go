package fetch

// Observer 接收下载进度通知。Fetcher 会串行调用同一 Observer，实现无需自行加锁。
type Observer interface {
	Skipping(name string)
	Downloading(name string)
	DownloadFailed(url string, err error)
}

// ObserverFuncs adapts plain callbacks to Observer. Nil callbacks are ignored.
type ObserverFuncs struct {
	OnSkipping       func(name string)
	OnDownloading    func(name string)
	OnDownloadFailed func(url string, err error)
}

func (f ObserverFuncs) Skipping(name string) {
	if f.OnSkipping != nil {
		f.OnSkipping(name)
	}
}

func (f ObserverFuncs) Downloading(name string) {
	if f.OnDownloading != nil {
		f.OnDownloading(name)
	}
}

func (f ObserverFuncs) DownloadFailed(url string, err error) {
	if f.OnDownloadFailed != nil {
		f.OnDownloadFailed(url, err)
	}
}

// Observers fans a notification out to every member in order.
type Observers []Observer

func (o Observers) Skipping(name string) {
	for _, obs := range o {
		if obs != nil {
			obs.Skipping(name)
		}
	}
}

func (o Observers) Downloading(name string) {
	for _, obs := range o {
		if obs != nil {
			obs.Downloading(name)
		}
	}
}

func (o Observers) DownloadFailed(url string, err error) {
	for _, obs := range o {
		if obs != nil {
			obs.DownloadFailed(url, err)
		}
	}
}
