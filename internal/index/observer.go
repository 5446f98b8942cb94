package index

// Observer receives progress notifications during ScanAndRefresh.
// FileDone may be called from several goroutines at once.
type Observer interface {
	DirectoryStarted(path string, files int)
	FileDone(path string, err error)
	DirectoryPersisted(path string, records int)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) DirectoryStarted(string, int)   {}
func (NopObserver) FileDone(string, error)         {}
func (NopObserver) DirectoryPersisted(string, int) {}
