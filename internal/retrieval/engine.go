package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/analysis"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/dataset"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/observability"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/similarity"
)

// Localized messages carried by degraded outcomes.
const (
	MessageNoMatch            = "ไม่พบข้อมูลที่ตรงกับคำค้นหา"
	MessageUnavailable        = "ไม่สามารถเข้าถึงข้อมูลได้ในขณะนี้"
	MessageAnalysisImpossible = "ไม่มีข้อมูลเพียงพอสำหรับการวิเคราะห์"
)

// Profile selects a preset of retrieval constants.
type Profile string

const (
	ProfileBaseline Profile = "baseline"
	ProfileAdvanced Profile = "advanced"
)

// maxFuzzySimilarity keeps a fuzzy contribution strictly below ExactWeight.
const maxFuzzySimilarity = 99

// EngineConfig holds every retrieval constant.
type EngineConfig struct {
	Profile          Profile
	DefaultRows      int     // rows returned by a data request without a count
	MaxRows          int     // hard cap on a data request
	TopK             int     // search results kept
	ExactWeight      float64 // added per exact cell/term match
	FuzzyEnabled     bool
	FuzzyFloor       int     // similarity must exceed this to count
	SemanticEnabled  bool
	SemanticWeight   float64 // multiplies cosine similarity, kept below ExactWeight
	SemanticMinScore float64
	SampleRows       int // rows sampled for a no-match suggestion
	SampleValues     int
	NoMatchMessage   string
	UnavailableMsg   string
	AnalysisMsg      string
}

// DefaultEngineConfig returns the constants of a profile. Unknown profiles
// fall back to baseline.
func DefaultEngineConfig(profile Profile) EngineConfig {
	cfg := EngineConfig{
		Profile:          ProfileBaseline,
		DefaultRows:      5,
		MaxRows:          10,
		TopK:             5,
		ExactWeight:      10,
		FuzzyEnabled:     true,
		FuzzyFloor:       70,
		SemanticWeight:   5,
		SemanticMinScore: 0.5,
		SampleRows:       3,
		SampleValues:     5,
		NoMatchMessage:   MessageNoMatch,
		UnavailableMsg:   MessageUnavailable,
		AnalysisMsg:      MessageAnalysisImpossible,
	}
	if profile == ProfileAdvanced {
		cfg.Profile = ProfileAdvanced
		cfg.DefaultRows = 10
		cfg.MaxRows = 20
		cfg.TopK = 8
		cfg.FuzzyFloor = 75
		cfg.SemanticEnabled = true
	}
	return cfg
}

// RowSearcher finds rows semantically close to a query. Hits carry 0-based
// row positions and a cosine similarity in [0, 1].
type RowSearcher interface {
	SearchRows(ctx context.Context, ds *dataset.Dataset, query string, k int) ([]RowHit, error)
}

// RowHit is one semantic hit.
type RowHit struct {
	Row   int
	Score float64
}

// Engine selects rows for a classified query. It never returns an error:
// every failure becomes a degraded Outcome.
type Engine struct {
	logger     *observability.Logger
	analyzer   *analysis.Analyzer
	similarity similarity.Func
	semantic   RowSearcher
	cfg        EngineConfig
}

// NewEngine creates a retrieval engine. sim defaults to PartialRatio and
// semantic may be nil.
func NewEngine(
	logger *observability.Logger,
	analyzer *analysis.Analyzer,
	sim similarity.Func,
	semantic RowSearcher,
	cfg EngineConfig,
) *Engine {
	if sim == nil {
		sim = similarity.PartialRatio
	}
	if analyzer == nil {
		analyzer = analysis.NewAnalyzer(logger, analysis.DefaultConfig())
	}
	return &Engine{
		logger:     observability.OrNop(logger).WithOperation("retrieve"),
		analyzer:   analyzer,
		similarity: sim,
		semantic:   semantic,
		cfg:        cfg,
	}
}

// Config returns the engine constants.
func (e *Engine) Config() EngineConfig {
	return e.cfg
}

// Retrieve dispatches on the classified intent. A nil dataset yields an
// Unavailable outcome, as does any panic while scoring.
func (e *Engine) Retrieve(
	ctx context.Context,
	query string,
	cls Classification,
	params Parameters,
	ds *dataset.Dataset,
) (out *Outcome) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.WithContext(ctx).Error().
				Str("intent", string(cls.Intent)).
				Interface("panic", r).
				Msg("Retrieval failed")
			out = Unavailable(cls.Intent, e.cfg.UnavailableMsg)
		}
	}()

	if ds == nil {
		return Unavailable(cls.Intent, e.cfg.UnavailableMsg)
	}

	switch cls.Intent {
	case IntentData:
		return e.window(cls.Intent, params, ds)
	case IntentAnalysis:
		return e.analyze(cls.Intent, params, ds)
	case IntentSearch, IntentHelp, IntentGeneral:
		return e.search(ctx, cls.Intent, query, ds)
	default:
		panic(fmt.Sprintf("unknown intent %q", cls.Intent))
	}
}

// WindowSize returns how many rows a data request returns.
func (e *Engine) WindowSize(params Parameters, available int) int {
	n := e.cfg.DefaultRows
	if v, ok := params.FirstNumber(); ok && v > 0 {
		n = v
	}
	return min(n, e.cfg.MaxRows, available)
}

func (e *Engine) window(intent Intent, params Parameters, ds *dataset.Dataset) *Outcome {
	n := e.WindowSize(params, ds.Len())
	rows := make([]WindowRow, n)
	for i := 0; i < n; i++ {
		rows[i] = WindowRow{Index: i + 1, Row: ds.Rows[i]}
	}
	return &Outcome{
		Kind:   OutcomeRows,
		Intent: intent,
		Header: append([]string(nil), ds.Header...),
		Rows:   rows,
	}
}

func (e *Engine) analyze(intent Intent, params Parameters, ds *dataset.Dataset) *Outcome {
	report := e.analyzer.Analyze(ds, params.HasAggregation())
	if report == nil {
		return &Outcome{
			Kind:    OutcomeAnalysisImpossible,
			Intent:  intent,
			Header:  append([]string(nil), ds.Header...),
			Message: e.cfg.AnalysisMsg,
		}
	}
	return &Outcome{
		Kind:     OutcomeAnalysis,
		Intent:   intent,
		Header:   append([]string(nil), ds.Header...),
		Analysis: report,
	}
}

func (e *Engine) search(ctx context.Context, intent Intent, query string, ds *dataset.Dataset) *Outcome {
	terms := Terms(query)
	perRow := make([]*SearchResult, ds.Len())

	for i, row := range ds.Rows {
		for col, cell := range row {
			if strings.TrimSpace(cell) == "" {
				continue
			}
			lc := Normalize(cell)
			for _, term := range terms {
				if m, score, ok := e.scoreCell(term, lc); ok {
					m.Column, m.ColumnName, m.Value = col, ds.ColumnName(col), cell
					res := resultFor(perRow, i, row)
					res.Score += score
					res.Matches = append(res.Matches, m)
				}
			}
		}
	}

	e.addSemantic(ctx, query, ds, perRow)

	var results []SearchResult
	for _, res := range perRow {
		if res != nil && res.Score > 0 {
			results = append(results, *res)
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > e.cfg.TopK {
		results = results[:e.cfg.TopK]
	}

	if len(results) == 0 {
		return &Outcome{
			Kind:       OutcomeNoMatch,
			Intent:     intent,
			Header:     append([]string(nil), ds.Header...),
			Suggestion: e.suggest(ds),
			Terms:      terms,
			Message:    e.cfg.NoMatchMessage,
		}
	}

	e.logger.WithContext(ctx).Debug().
		Strs("terms", terms).
		Int("matches", len(results)).
		Float64("top_score", results[0].Score).
		Msg("Search ranked rows")

	return &Outcome{
		Kind:    OutcomeMatches,
		Intent:  intent,
		Header:  append([]string(nil), ds.Header...),
		Matches: results,
		Terms:   terms,
	}
}

// scoreCell scores one normalized cell against one term.
func (e *Engine) scoreCell(term, cell string) (CellMatch, float64, bool) {
	if strings.Contains(cell, term) {
		return CellMatch{Term: term, Kind: MatchExact, Similarity: 100}, e.cfg.ExactWeight, true
	}
	if !e.cfg.FuzzyEnabled {
		return CellMatch{}, 0, false
	}
	// Only the term is slid across the cell, never the reverse.
	if utf8.RuneCountInString(cell) < utf8.RuneCountInString(term) {
		return CellMatch{}, 0, false
	}
	sim := e.similarity(term, cell)
	if sim <= e.cfg.FuzzyFloor {
		return CellMatch{}, 0, false
	}
	return CellMatch{Term: term, Kind: MatchFuzzy, Similarity: sim}, e.fuzzyScore(sim), true
}

// fuzzyScore is sim/10 at the default exact weight. Similarity is capped at
// maxFuzzySimilarity so a fuzzy hit always adds less than an exact one.
func (e *Engine) fuzzyScore(sim int) float64 {
	if sim > maxFuzzySimilarity {
		sim = maxFuzzySimilarity
	}
	return e.cfg.ExactWeight * float64(sim) / 100
}

func (e *Engine) addSemantic(ctx context.Context, query string, ds *dataset.Dataset, perRow []*SearchResult) {
	if !e.cfg.SemanticEnabled || e.semantic == nil {
		return
	}

	hits, err := e.semantic.SearchRows(ctx, ds, query, e.cfg.TopK)
	if err != nil {
		e.logger.WithContext(ctx).Warn().Err(err).Msg("Semantic search failed, using lexical results only")
		return
	}
	for _, hit := range hits {
		if hit.Row < 0 || hit.Row >= len(perRow) || hit.Score < e.cfg.SemanticMinScore {
			continue
		}
		res := resultFor(perRow, hit.Row, ds.Rows[hit.Row])
		res.Score += hit.Score * e.cfg.SemanticWeight
		res.Matches = append(res.Matches, CellMatch{
			Column:     -1,
			Kind:       MatchSemantic,
			Similarity: int(hit.Score*100 + 0.5),
		})
	}
}

// suggest collects distinct non-empty cells from the first rows.
func (e *Engine) suggest(ds *dataset.Dataset) *Suggestion {
	s := &Suggestion{Header: append([]string(nil), ds.Header...), Samples: []string{}}
	seen := make(map[string]bool)
	for i := 0; i < ds.Len() && i < e.cfg.SampleRows; i++ {
		for _, cell := range ds.Rows[i] {
			v := strings.TrimSpace(cell)
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			s.Samples = append(s.Samples, v)
			if len(s.Samples) == e.cfg.SampleValues {
				return s
			}
		}
	}
	return s
}

func resultFor(perRow []*SearchResult, i int, row dataset.Row) *SearchResult {
	if perRow[i] == nil {
		perRow[i] = &SearchResult{RowIndex: i + 1, Row: row}
	}
	return perRow[i]
}
