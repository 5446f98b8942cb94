package main

import (
	"io"
	"path/filepath"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/marco/videomap/internal/index"
)

// progressObserver draws one progress bar per directory with files in it.
type progressObserver struct {
	index.NopObserver

	mu  sync.Mutex
	w   io.Writer
	bar *progressbar.ProgressBar
}

func newProgressObserver(w io.Writer) *progressObserver {
	return &progressObserver{w: w}
}

func (p *progressObserver) DirectoryStarted(path string, files int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.finish()
	if files == 0 {
		return
	}
	p.bar = progressbar.NewOptions(files,
		progressbar.OptionSetWriter(p.w),
		progressbar.OptionSetDescription(filepath.Base(path)),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func (p *progressObserver) FileDone(path string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Add(1)
	}
}

func (p *progressObserver) DirectoryPersisted(path string, records int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finish()
}

// Close clears the bar left by the last directory.
func (p *progressObserver) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finish()
}

func (p *progressObserver) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
		p.bar = nil
	}
}
