package ui

import (
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// Progress draws one progress bar per scan stage. It is fed by the
// OnProgress callbacks of the scanner and is a no-op when the writer is not
// a terminal.
type Progress struct {
	w       io.Writer
	enabled bool

	mu    sync.Mutex
	stage string
	bar   *progressbar.ProgressBar
}

// NewProgress creates a Progress writing to w. enabled false (or a
// non-terminal w) turns every call into a no-op.
func NewProgress(w io.Writer, enabled bool) *Progress {
	return &Progress{w: w, enabled: enabled && IsTerminal(w) && !IsSilent()}
}

// Update reports completed of total for stage. A new stage finishes the
// previous bar.
func (p *Progress) Update(stage string, completed, total int64) {
	if !p.enabled || total <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar == nil || p.stage != stage {
		p.finishLocked()
		p.stage = stage
		p.bar = p.newBar(stage, total)
	}
	_ = p.bar.Set64(completed)
}

// Finish completes and clears the current bar.
func (p *Progress) Finish() {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finishLocked()
}

func (p *Progress) finishLocked() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
	p.bar = nil
}

func (p *Progress) newBar(stage string, total int64) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(p.w),
		progressbar.OptionSetWidth(40),
		progressbar.OptionEnableColorCodes(!IsNoColor()),
		progressbar.OptionSetDescription("[cyan]"+stage+"[reset]"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("req"),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]" + Icon("█", "=") + "[reset]",
			SaucerHead:    "[green]" + Icon("▌", ">") + "[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
