package main

import (
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"
	"github.com/schollz/progressbar/v3"
)

// Spinner shows that a question is waiting on the model.
type Spinner struct {
	s       *spinner.Spinner
	enabled bool
}

// NewSpinner creates a spinner writing to w. A disabled spinner does nothing.
func NewSpinner(w io.Writer, message string, enabled bool) *Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " " + message
	return &Spinner{s: s, enabled: enabled}
}

// Start starts the spinner animation.
func (s *Spinner) Start() {
	if s.enabled {
		s.s.Start()
	}
}

// Stop stops the spinner animation and clears the line.
func (s *Spinner) Stop() {
	if s.enabled {
		s.s.Stop()
	}
}

// IndexBar reports embedding progress while rows are indexed.
type IndexBar struct {
	bar *progressbar.ProgressBar
}

// NewIndexBar creates a bar writing to w. Its total is set by the first
// Update call.
func NewIndexBar(w io.Writer, description string) *IndexBar {
	bar := progressbar.NewOptions64(
		-1,
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("rows"),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
	return &IndexBar{bar: bar}
}

// Update matches the semantic index progress callback.
func (b *IndexBar) Update(done, total int) {
	if b.bar.GetMax64() != int64(total) {
		b.bar.ChangeMax64(int64(total))
	}
	_ = b.bar.Set64(int64(done))
}

// Finish completes the bar.
func (b *IndexBar) Finish() {
	_ = b.bar.Finish()
}
