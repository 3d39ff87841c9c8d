// Package analysis computes column types, aggregate statistics and value
// frequencies over a dataset snapshot.
package analysis

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/dataset"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/observability"
)

// ColumnType is the inferred type of a column.
type ColumnType string

const (
	ColumnNumeric ColumnType = "numeric"
	ColumnText    ColumnType = "text"
)

// Config holds Analyzer configuration.
type Config struct {
	SampleRows      int     // rows inspected for type inference, default 10
	NumericFraction float64 // default 0.7, inclusive
	PatternColumns  int     // default 3
	PatternTop      int     // default 3
	SummaryColumns  int     // header names listed in the summary, default 5
}

// DefaultConfig returns the reference analyzer settings.
func DefaultConfig() Config {
	return Config{
		SampleRows:      10,
		NumericFraction: 0.7,
		PatternColumns:  3,
		PatternTop:      3,
		SummaryColumns:  5,
	}
}

// Report is the result of analysing a dataset.
type Report struct {
	Basic        BasicStats      `json:"basic_stats"`
	Summary      string          `json:"summary"`
	Patterns     []ColumnPattern `json:"patterns"`
	Aggregations []AggregateStat `json:"aggregations,omitempty"`
}

// BasicStats partitions the columns and counts rows.
type BasicStats struct {
	TotalRows    int      `json:"total_rows"`
	TotalColumns int      `json:"total_columns"`
	Numeric      []string `json:"numeric_columns"`
	Text         []string `json:"text_columns"`
}

// ColumnPattern lists the most frequent values of one column.
type ColumnPattern struct {
	Column string       `json:"column"`
	Top    []ValueCount `json:"top"`
}

// ValueCount is a distinct cell value and how often it occurs.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// AggregateStat summarises the parseable numbers in a numeric column.
type AggregateStat struct {
	Column string  `json:"column"`
	Count  int     `json:"count"`
	Sum    float64 `json:"sum"`
	Avg    float64 `json:"avg"`
	Max    float64 `json:"max"`
	Min    float64 `json:"min"`
}

// Analyzer computes Reports. It is safe for concurrent use.
type Analyzer struct {
	logger *observability.Logger
	cfg    Config
}

// NewAnalyzer creates an Analyzer. Zero config fields take their defaults.
func NewAnalyzer(logger *observability.Logger, cfg Config) *Analyzer {
	def := DefaultConfig()
	if cfg.SampleRows <= 0 {
		cfg.SampleRows = def.SampleRows
	}
	if cfg.NumericFraction <= 0 || cfg.NumericFraction > 1 {
		cfg.NumericFraction = def.NumericFraction
	}
	if cfg.PatternColumns <= 0 {
		cfg.PatternColumns = def.PatternColumns
	}
	if cfg.PatternTop <= 0 {
		cfg.PatternTop = def.PatternTop
	}
	if cfg.SummaryColumns <= 0 {
		cfg.SummaryColumns = def.SummaryColumns
	}
	return &Analyzer{logger: observability.OrNop(logger).WithOperation("analyze"), cfg: cfg}
}

// Analyze builds a report over ds. It returns nil when ds has no data rows.
// Aggregates are computed only when withAggregates is set. A failure while
// computing patterns or aggregates is logged and leaves those sections empty.
func (a *Analyzer) Analyze(ds *dataset.Dataset, withAggregates bool) *Report {
	if ds.Len() == 0 {
		return nil
	}

	basic, numericCols := a.basicStats(ds)
	report := &Report{
		Basic:   basic,
		Summary: a.summary(ds),
	}

	a.guard("patterns", func() {
		report.Patterns = a.patterns(ds)
	})
	if withAggregates {
		a.guard("aggregations", func() {
			report.Aggregations = a.aggregate(ds, numericCols)
		})
	}
	return report
}

// InferType classifies column col of ds from its sample rows.
func (a *Analyzer) InferType(ds *dataset.Dataset, col int) ColumnType {
	sample := ds.Rows
	if len(sample) > a.cfg.SampleRows {
		sample = sample[:a.cfg.SampleRows]
	}

	nonEmpty, numeric := 0, 0
	for _, row := range sample {
		cell := strings.TrimSpace(row.Cell(col))
		if cell == "" {
			continue
		}
		nonEmpty++
		if _, ok := ParseNumber(cell); ok {
			numeric++
		}
	}

	if nonEmpty == 0 {
		return ColumnText
	}
	// Compare in integer percent so that exactly 7 of 10 counts as numeric.
	if numeric*100 >= int(math.Round(a.cfg.NumericFraction*100))*nonEmpty {
		return ColumnNumeric
	}
	return ColumnText
}

// basicStats also returns the indexes of the numeric columns, since header
// names may repeat.
func (a *Analyzer) basicStats(ds *dataset.Dataset) (BasicStats, []int) {
	stats := BasicStats{
		TotalRows:    ds.Len(),
		TotalColumns: ds.Columns(),
		Numeric:      []string{},
		Text:         []string{},
	}
	var numeric []int
	for col := 0; col < ds.Columns(); col++ {
		name := ds.ColumnName(col)
		if a.InferType(ds, col) == ColumnNumeric {
			stats.Numeric = append(stats.Numeric, name)
			numeric = append(numeric, col)
		} else {
			stats.Text = append(stats.Text, name)
		}
	}
	return stats, numeric
}

func (a *Analyzer) summary(ds *dataset.Dataset) string {
	names := ds.Header
	if len(names) > a.cfg.SummaryColumns {
		names = names[:a.cfg.SummaryColumns]
	}
	return fmt.Sprintf("ข้อมูลมีทั้งหมด %d แถว %d คอลัมน์ ได้แก่ %s",
		ds.Len(), ds.Columns(), strings.Join(names, ", "))
}

func (a *Analyzer) patterns(ds *dataset.Dataset) []ColumnPattern {
	cols := ds.Columns()
	if cols > a.cfg.PatternColumns {
		cols = a.cfg.PatternColumns
	}

	out := make([]ColumnPattern, 0, cols)
	for col := 0; col < cols; col++ {
		out = append(out, ColumnPattern{
			Column: ds.ColumnName(col),
			Top:    topValues(ds, col, a.cfg.PatternTop),
		})
	}
	return out
}

// topValues counts non-empty values of a column; ties keep first appearance.
func topValues(ds *dataset.Dataset, col, n int) []ValueCount {
	counts := make(map[string]int)
	var order []string
	for _, row := range ds.Rows {
		v := strings.TrimSpace(row.Cell(col))
		if v == "" {
			continue
		}
		if _, seen := counts[v]; !seen {
			order = append(order, v)
		}
		counts[v]++
	}

	values := make([]ValueCount, len(order))
	for i, v := range order {
		values[i] = ValueCount{Value: v, Count: counts[v]}
	}
	sort.SliceStable(values, func(i, j int) bool {
		return values[i].Count > values[j].Count
	})
	if len(values) > n {
		values = values[:n]
	}
	return values
}

func (a *Analyzer) aggregate(ds *dataset.Dataset, numericCols []int) []AggregateStat {
	var out []AggregateStat
	for _, col := range numericCols {
		stat := AggregateStat{Column: ds.ColumnName(col), Max: math.Inf(-1), Min: math.Inf(1)}
		for _, row := range ds.Rows {
			v, ok := ParseNumber(row.Cell(col))
			if !ok {
				continue
			}
			stat.Count++
			stat.Sum += v
			stat.Max = math.Max(stat.Max, v)
			stat.Min = math.Min(stat.Min, v)
		}
		if stat.Count == 0 {
			continue
		}
		stat.Avg = stat.Sum / float64(stat.Count)
		out = append(out, stat)
	}
	return out
}

func (a *Analyzer) guard(section string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().Str("section", section).Interface("panic", r).Msg("Analysis section failed")
		}
	}()
	fn()
}

// ParseNumber parses a cell as a number, tolerating surrounding spaces,
// thousands separators and a leading currency sign.
func ParseNumber(cell string) (float64, bool) {
	s := strings.TrimSpace(cell)
	s = strings.TrimPrefix(s, "฿")
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
