package retrieval

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Comparator is a normalized comparison operator.
type Comparator string

const (
	ComparatorGT  Comparator = "gt"
	ComparatorGTE Comparator = "gte"
	ComparatorLT  Comparator = "lt"
	ComparatorLTE Comparator = "lte"
	ComparatorEQ  Comparator = "eq"
)

// Aggregation is a normalized aggregation verb.
type Aggregation string

const (
	AggregationSum   Aggregation = "sum"
	AggregationAvg   Aggregation = "avg"
	AggregationMax   Aggregation = "max"
	AggregationMin   Aggregation = "min"
	AggregationCount Aggregation = "count"
)

// Parameters are the structured values found in a query.
type Parameters struct {
	Numbers      []int         `json:"numbers,omitempty"`
	Comparators  []Comparator  `json:"comparators,omitempty"`
	Aggregations []Aggregation `json:"aggregations,omitempty"`
	Dates        []string      `json:"dates,omitempty"`
}

// FirstNumber returns the first number in the query, if any.
func (p Parameters) FirstNumber() (int, bool) {
	if len(p.Numbers) == 0 {
		return 0, false
	}
	return p.Numbers[0], true
}

// HasAggregation reports whether the query asked for any aggregate.
func (p Parameters) HasAggregation() bool {
	return len(p.Aggregations) > 0
}

var (
	digitRunPattern  = regexp.MustCompile(`\d+`)
	dateShapePattern = regexp.MustCompile(`\d+[-/]\d+[-/]\d+`)
)

var comparatorLexicon = map[string]Comparator{
	">=":                 ComparatorGTE,
	"<=":                 ComparatorLTE,
	">":                  ComparatorGT,
	"<":                  ComparatorLT,
	"=":                  ComparatorEQ,
	"more than":          ComparatorGT,
	"greater than":       ComparatorGT,
	"over":               ComparatorGT,
	"above":              ComparatorGT,
	"less than":          ComparatorLT,
	"fewer than":         ComparatorLT,
	"under":              ComparatorLT,
	"below":              ComparatorLT,
	"at least":           ComparatorGTE,
	"at most":            ComparatorLTE,
	"equal":              ComparatorEQ,
	"equals":             ComparatorEQ,
	"มากกว่าหรือเท่ากับ":  ComparatorGTE,
	"น้อยกว่าหรือเท่ากับ": ComparatorLTE,
	"อย่างน้อย":          ComparatorGTE,
	"ไม่เกิน":            ComparatorLTE,
	"มากกว่า":            ComparatorGT,
	"เกิน":               ComparatorGT,
	"น้อยกว่า":           ComparatorLT,
	"ต่ำกว่า":            ComparatorLT,
	"เท่ากับ":            ComparatorEQ,
}

var aggregationLexicon = map[string]Aggregation{
	"sum":        AggregationSum,
	"total":      AggregationSum,
	"ผลรวม":      AggregationSum,
	"ยอดรวม":     AggregationSum,
	"รวม":        AggregationSum,
	"average":    AggregationAvg,
	"avg":        AggregationAvg,
	"mean":       AggregationAvg,
	"ค่าเฉลี่ย":  AggregationAvg,
	"เฉลี่ย":     AggregationAvg,
	"max":        AggregationMax,
	"maximum":    AggregationMax,
	"highest":    AggregationMax,
	"สูงสุด":     AggregationMax,
	"มากที่สุด":  AggregationMax,
	"min":        AggregationMin,
	"minimum":    AggregationMin,
	"lowest":     AggregationMin,
	"ต่ำสุด":     AggregationMin,
	"น้อยที่สุด": AggregationMin,
	"count":      AggregationCount,
	"how many":   AggregationCount,
	"จำนวน":      AggregationCount,
	"กี่":        AggregationCount,
}

// ParameterExtractor pulls numbers, dates, comparators and aggregation verbs
// out of a query. It never fails.
type ParameterExtractor struct {
	comparators  *regexp.Regexp
	aggregations *regexp.Regexp
}

// NewParameterExtractor creates an extractor with the bilingual lexicons.
func NewParameterExtractor() *ParameterExtractor {
	return &ParameterExtractor{
		comparators:  lexiconPattern(comparatorLexicon),
		aggregations: lexiconPattern(aggregationLexicon),
	}
}

// Extract returns every parameter found in query. Sets keep the order in
// which their members first appear.
func (e *ParameterExtractor) Extract(query string) Parameters {
	q := FoldThaiDigits(Normalize(query))

	var p Parameters
	for _, run := range digitRunPattern.FindAllString(q, -1) {
		n, err := strconv.Atoi(run)
		if err != nil {
			continue
		}
		p.Numbers = append(p.Numbers, n)
	}

	for _, candidate := range dateShapePattern.FindAllString(q, -1) {
		if isDate(candidate) {
			p.Dates = append(p.Dates, candidate)
		}
	}

	p.Comparators = matchLexicon(e.comparators, q, comparatorLexicon)
	p.Aggregations = matchLexicon(e.aggregations, q, aggregationLexicon)
	return p
}

// isDate checks the d/m/y part widths of a maximal digit-separator run.
func isDate(s string) bool {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '-' || r == '/' })
	if len(parts) != 3 {
		return false
	}
	return len(parts[0]) <= 2 && len(parts[1]) <= 2 && len(parts[2]) >= 2 && len(parts[2]) <= 4
}

// lexiconPattern builds one alternation with the longest entries first, so
// "ไม่เกิน" wins over "เกิน" and ">=" over ">". ASCII words are bounded.
func lexiconPattern[T any](lexicon map[string]T) *regexp.Regexp {
	entries := make([]string, 0, len(lexicon))
	for k := range lexicon {
		entries = append(entries, k)
	}
	sort.Slice(entries, func(i, j int) bool {
		if len(entries[i]) != len(entries[j]) {
			return len(entries[i]) > len(entries[j])
		}
		return entries[i] < entries[j]
	})

	alts := make([]string, len(entries))
	for i, entry := range entries {
		alt := strings.ReplaceAll(regexp.QuoteMeta(entry), " ", `\s+`)
		if isASCIIWord(entry) {
			alt = `\b` + alt + `\b`
		}
		alts[i] = alt
	}
	return regexp.MustCompile(strings.Join(alts, "|"))
}

func matchLexicon[T comparable](pattern *regexp.Regexp, q string, lexicon map[string]T) []T {
	var out []T
	seen := make(map[T]bool)
	for _, m := range pattern.FindAllString(q, -1) {
		v, ok := lexicon[strings.Join(strings.Fields(m), " ")]
		if !ok || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func isASCIIWord(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z') && r != ' ' {
			return false
		}
	}
	return true
}
