package retrieval

import (
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/analysis"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/dataset"
)

// OutcomeKind tells consumers which fields of an Outcome are populated.
type OutcomeKind string

const (
	OutcomeRows               OutcomeKind = "rows"
	OutcomeMatches            OutcomeKind = "matches"
	OutcomeNoMatch            OutcomeKind = "no_match"
	OutcomeAnalysis           OutcomeKind = "analysis"
	OutcomeAnalysisImpossible OutcomeKind = "analysis_impossible"
	OutcomeUnavailable        OutcomeKind = "unavailable"
)

// MatchKind is the strategy that produced a cell match.
type MatchKind string

const (
	MatchExact    MatchKind = "exact"
	MatchFuzzy    MatchKind = "fuzzy"
	MatchSemantic MatchKind = "semantic"
)

// Outcome is everything retrieval found for one query.
type Outcome struct {
	Kind       OutcomeKind      `json:"kind"`
	Intent     Intent           `json:"intent"`
	Header     []string         `json:"header,omitempty"`
	Rows       []WindowRow      `json:"rows,omitempty"`
	Matches    []SearchResult   `json:"matches,omitempty"`
	Suggestion *Suggestion      `json:"suggestion,omitempty"`
	Analysis   *analysis.Report `json:"analysis,omitempty"`
	Terms      []string         `json:"terms,omitempty"`
	Message    string           `json:"message,omitempty"`
}

// WindowRow is a dataset row with its 1-based display index.
type WindowRow struct {
	Index int         `json:"index"`
	Row   dataset.Row `json:"row"`
}

// SearchResult is a scored row. There is at most one result per row.
type SearchResult struct {
	RowIndex int         `json:"row_index"` // 1-based
	Row      dataset.Row `json:"row"`
	Score    float64     `json:"score"`
	Matches  []CellMatch `json:"matches"`
}

// CellMatch records why a row scored. Column is -1 for whole-row semantic hits.
type CellMatch struct {
	Column     int       `json:"column"`
	ColumnName string    `json:"column_name,omitempty"`
	Value      string    `json:"value,omitempty"`
	Term       string    `json:"term,omitempty"`
	Kind       MatchKind `json:"kind"`
	Similarity int       `json:"similarity"`
}

// Suggestion hints at what the dataset contains when a search found nothing.
type Suggestion struct {
	Header  []string `json:"header"`
	Samples []string `json:"samples"`
}

// ContextFound reports whether the outcome carries data worth grounding on.
func (o *Outcome) ContextFound() bool {
	if o == nil {
		return false
	}
	switch o.Kind {
	case OutcomeRows:
		return len(o.Rows) > 0
	case OutcomeMatches:
		return len(o.Matches) > 0
	case OutcomeAnalysis:
		return o.Analysis != nil
	case OutcomeNoMatch, OutcomeAnalysisImpossible, OutcomeUnavailable:
		return false
	default:
		return false
	}
}

// MatchedRowCount is the number of rows the outcome returns.
func (o *Outcome) MatchedRowCount() int {
	if o == nil {
		return 0
	}
	switch o.Kind {
	case OutcomeRows:
		return len(o.Rows)
	case OutcomeMatches:
		return len(o.Matches)
	default:
		return 0
	}
}

// Unavailable builds the outcome used when no dataset could be obtained.
func Unavailable(intent Intent, message string) *Outcome {
	return &Outcome{Kind: OutcomeUnavailable, Intent: intent, Message: message}
}
