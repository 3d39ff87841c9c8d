// Package composer renders a retrieval outcome into the bounded context
// string handed to the LLM.
package composer

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/analysis"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/observability"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/retrieval"
)

// DefaultSentinel is returned when there is nothing to compose.
const DefaultSentinel = "ไม่พบข้อมูลที่เกี่ยวข้องในระบบ"

// Block priorities. Lower priorities are dropped first when over length.
const (
	priorityPatterns = iota + 1
	priorityAggregations
	priorityBasicStats
	priorityRows
	priorityHeader
	priorityMessage
)

// Config holds Composer configuration.
type Config struct {
	MaxRunes int    // default 2000
	RowLabel string // default "แถวที่"
	Sentinel string // default DefaultSentinel
}

// DefaultConfig returns the reference composer settings.
func DefaultConfig() Config {
	return Config{MaxRunes: 2000, RowLabel: "แถวที่", Sentinel: DefaultSentinel}
}

// Composer builds LLM context strings. It is safe for concurrent use.
type Composer struct {
	logger *observability.Logger
	cfg    Config
}

// New creates a Composer. Zero config fields take their defaults.
func New(logger *observability.Logger, cfg Config) *Composer {
	def := DefaultConfig()
	if cfg.MaxRunes <= 0 {
		cfg.MaxRunes = def.MaxRunes
	}
	if cfg.RowLabel == "" {
		cfg.RowLabel = def.RowLabel
	}
	if cfg.Sentinel == "" {
		cfg.Sentinel = def.Sentinel
	}
	return &Composer{logger: observability.OrNop(logger).WithOperation("compose"), cfg: cfg}
}

// Sentinel returns the text used when no context exists.
func (c *Composer) Sentinel() string {
	return c.cfg.Sentinel
}

type block struct {
	priority int
	text     string
}

// Compose renders o in at most MaxRunes runes. It never panics.
func (c *Composer) Compose(o *retrieval.Outcome) (out string) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Msg("Context composition failed")
			out = c.cfg.Sentinel
		}
	}()

	blocks := c.blocks(o)
	if len(blocks) == 0 {
		return c.cfg.Sentinel
	}
	return c.fit(blocks)
}

func (c *Composer) blocks(o *retrieval.Outcome) []block {
	if o == nil {
		return nil
	}

	var blocks []block
	add := func(priority int, text string) {
		if text != "" {
			blocks = append(blocks, block{priority: priority, text: text})
		}
	}

	switch o.Kind {
	case retrieval.OutcomeRows:
		if len(o.Rows) == 0 {
			return nil
		}
		add(priorityHeader, headerLine(o.Header))
		for _, r := range o.Rows {
			add(priorityRows, c.rowLine(r.Index, r.Row))
		}

	case retrieval.OutcomeMatches:
		if len(o.Matches) == 0 {
			return nil
		}
		add(priorityHeader, headerLine(o.Header))
		for _, m := range o.Matches {
			add(priorityRows, c.rowLine(m.RowIndex, m.Row))
		}

	case retrieval.OutcomeNoMatch:
		add(priorityMessage, o.Message)
		add(priorityHeader, headerLine(o.Header))
		if o.Suggestion != nil && len(o.Suggestion.Samples) > 0 {
			add(priorityRows, "ตัวอย่างข้อมูล: "+strings.Join(o.Suggestion.Samples, ", "))
		}

	case retrieval.OutcomeAnalysis:
		if o.Analysis == nil {
			return nil
		}
		blocks = append(blocks, analysisBlocks(o.Analysis)...)

	case retrieval.OutcomeAnalysisImpossible, retrieval.OutcomeUnavailable:
		add(priorityMessage, o.Message)

	default:
		return nil
	}
	return blocks
}

func analysisBlocks(r *analysis.Report) []block {
	blocks := []block{{priority: priorityMessage, text: r.Summary}}

	stats := fmt.Sprintf("จำนวนแถว: %d, จำนวนคอลัมน์: %d", r.Basic.TotalRows, r.Basic.TotalColumns)
	if len(r.Basic.Numeric) > 0 {
		stats += "\nคอลัมน์ตัวเลข: " + strings.Join(r.Basic.Numeric, ", ")
	}
	if len(r.Basic.Text) > 0 {
		stats += "\nคอลัมน์ข้อความ: " + strings.Join(r.Basic.Text, ", ")
	}
	blocks = append(blocks, block{priority: priorityBasicStats, text: stats})

	for _, a := range r.Aggregations {
		blocks = append(blocks, block{
			priority: priorityAggregations,
			text: fmt.Sprintf("%s: ผลรวม %s, ค่าเฉลี่ย %s, สูงสุด %s, ต่ำสุด %s (%d ค่า)",
				a.Column, formatNumber(a.Sum), formatNumber(a.Avg), formatNumber(a.Max), formatNumber(a.Min), a.Count),
		})
	}

	for _, p := range r.Patterns {
		if len(p.Top) == 0 {
			continue
		}
		values := make([]string, len(p.Top))
		for i, v := range p.Top {
			values[i] = fmt.Sprintf("%s (%d)", v.Value, v.Count)
		}
		blocks = append(blocks, block{
			priority: priorityPatterns,
			text:     fmt.Sprintf("ค่าที่พบบ่อยใน %s: %s", p.Column, strings.Join(values, ", ")),
		})
	}
	return blocks
}

// fit drops the lowest-priority block, trailing first, until the rendered
// text fits. A single block that still does not fit is cut.
func (c *Composer) fit(blocks []block) string {
	for len(blocks) > 1 && renderedRunes(blocks) > c.cfg.MaxRunes {
		victim := 0
		for i, b := range blocks {
			if b.priority <= blocks[victim].priority {
				victim = i
			}
		}
		blocks = append(blocks[:victim], blocks[victim+1:]...)
	}

	parts := make([]string, len(blocks))
	for i, b := range blocks {
		parts[i] = b.text
	}
	return truncateRunes(strings.Join(parts, "\n"), c.cfg.MaxRunes)
}

func (c *Composer) rowLine(index int, cells []string) string {
	return fmt.Sprintf("%s %d: %s", c.cfg.RowLabel, index, strings.Join(cells, " | "))
}

func headerLine(header []string) string {
	if len(header) == 0 {
		return ""
	}
	return "คอลัมน์: " + strings.Join(header, " | ")
}

func renderedRunes(blocks []block) int {
	n := len(blocks) - 1
	for _, b := range blocks {
		n += utf8.RuneCountInString(b.text)
	}
	return n
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}
