package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// UI renders command output. In JSON mode only JSON reaches stdout.
type UI struct {
	out      io.Writer
	errOut   io.Writer
	progress *mpb.Progress
	noColor  bool
	jsonMode bool
}

// NewUI creates a new UI instance.
func NewUI(out, errOut io.Writer, jsonMode, noColor bool) *UI {
	return &UI{out: out, errOut: errOut, noColor: noColor, jsonMode: jsonMode}
}

// Close waits for progress bars to finish rendering.
func (ui *UI) Close() {
	if ui.progress == nil {
		return
	}
	// Wait can hang when stderr is piped and bars never render.
	if IsTerminal() {
		ui.progress.Wait()
	} else {
		ui.progress.Shutdown()
	}
	ui.progress = nil
}

func (ui *UI) line(attr color.Attribute, w io.Writer, symbol, format string, args ...interface{}) {
	if ui.jsonMode {
		return
	}
	msg := fmt.Sprintf("%s %s\n", symbol, fmt.Sprintf(format, args...))
	if ui.noColor {
		fmt.Fprint(w, msg)
		return
	}
	color.New(attr).Fprint(w, msg)
}

// Success prints a success message.
func (ui *UI) Success(format string, args ...interface{}) {
	ui.line(color.FgGreen, ui.out, "✓", format, args...)
}

// Error prints an error message to stderr.
func (ui *UI) Error(format string, args ...interface{}) {
	ui.line(color.FgRed, ui.errOut, "✗", format, args...)
}

// Warning prints a warning message.
func (ui *UI) Warning(format string, args ...interface{}) {
	ui.line(color.FgYellow, ui.out, "⚠", format, args...)
}

// Info prints an info message.
func (ui *UI) Info(format string, args ...interface{}) {
	ui.line(color.FgCyan, ui.out, "ℹ", format, args...)
}

// Answer prints an assistant answer under a colored prompt marker.
func (ui *UI) Answer(text string, contextFound bool) {
	if ui.jsonMode {
		return
	}
	marker := "🤖"
	if !contextFound {
		marker = "🤖 (ไม่มีข้อมูลอ้างอิง)"
	}
	if ui.noColor {
		fmt.Fprintf(ui.out, "%s %s\n", marker, text)
		return
	}
	color.New(color.FgMagenta, color.Bold).Fprintf(ui.out, "%s ", marker)
	fmt.Fprintln(ui.out, text)
}

// JSON writes v as indented JSON to stdout.
func (ui *UI) JSON(v interface{}) error {
	enc := json.NewEncoder(ui.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Section prints a section header.
func (ui *UI) Section(title string) {
	if ui.jsonMode {
		return
	}
	fmt.Fprintln(ui.out)
	if ui.noColor {
		fmt.Fprintf(ui.out, "━━━ %s ━━━\n", strings.ToUpper(title))
	} else {
		color.New(color.FgMagenta, color.Bold).Fprintf(ui.out, "━━━ %s ━━━\n", strings.ToUpper(title))
	}
}

// KeyValue prints a key-value pair.
func (ui *UI) KeyValue(key string, value interface{}) {
	if ui.jsonMode {
		return
	}
	if ui.noColor {
		fmt.Fprintf(ui.out, "  %s: %v\n", key, value)
		return
	}
	color.New(color.FgYellow).Fprintf(ui.out, "  %s: ", key)
	fmt.Fprintf(ui.out, "%v\n", value)
}

// ProgressBar adds a counted bar to the shared progress container. It
// returns nil in JSON mode.
func (ui *UI) ProgressBar(name string, total int64) *mpb.Bar {
	if ui.jsonMode {
		return nil
	}
	if ui.progress == nil {
		ui.progress = mpb.New(mpb.WithOutput(ui.errOut), mpb.WithWidth(48))
	}
	return ui.progress.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DSyncSpaceR}),
			decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WC{W: 5}),
			decor.OnComplete(decor.Elapsed(decor.ET_STYLE_GO, decor.WC{W: 8}), " done"),
		),
	)
}

type borders struct {
	h, v             string
	topL, topM, topR string
	midL, midM, midR string
	botL, botM, botR string
}

var (
	boxBorders   = borders{"─", "│", "┌", "┬", "┐", "├", "┼", "┤", "└", "┴", "┘"}
	asciiBorders = borders{"-", "|", "+", "+", "+", "+", "+", "+", "+", "+", "+"}
)

// Table prints rows under headers. Column widths use display width so Thai
// combining marks do not break alignment.
func (ui *UI) Table(headers []string, rows [][]string) {
	if ui.jsonMode || len(headers) == 0 {
		return
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], runewidth.StringWidth(cell))
			}
		}
	}

	b := boxBorders
	frame := color.New(color.FgCyan, color.Bold).SprintFunc()
	if ui.noColor {
		b = asciiBorders
		frame = fmt.Sprint
	}

	rule := func(l, m, r string) {
		var sb strings.Builder
		sb.WriteString(frame(l))
		for i, w := range widths {
			sb.WriteString(strings.Repeat(b.h, w+2))
			if i < len(widths)-1 {
				sb.WriteString(frame(m))
			}
		}
		sb.WriteString(frame(r))
		fmt.Fprintln(ui.out, sb.String())
	}
	cells := func(row []string, sep string) {
		var sb strings.Builder
		sb.WriteString(sep)
		for i, w := range widths {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			sb.WriteString(" " + runewidth.FillRight(cell, w) + " ")
			sb.WriteString(sep)
		}
		fmt.Fprintln(ui.out, sb.String())
	}

	rule(b.topL, b.topM, b.topR)
	cells(headers, frame(b.v))
	rule(b.midL, b.midM, b.midR)
	for _, row := range rows {
		cells(row, b.v)
	}
	rule(b.botL, b.botM, b.botR)
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
}

// IsTerminal checks if stderr is a terminal.
func IsTerminal() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
