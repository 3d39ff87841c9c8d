package analysis

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/dataset"
)

func mustDataset(t *testing.T, records [][]string) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.New("test", records, time.Now())
	require.NoError(t, err)
	return ds
}

// column builds a one-column dataset with numeric cells followed by text cells.
func column(t *testing.T, numeric, text int) *dataset.Dataset {
	t.Helper()
	records := [][]string{{"value"}}
	for i := 0; i < numeric; i++ {
		records = append(records, []string{strconv.Itoa(i + 1)})
	}
	for i := 0; i < text; i++ {
		records = append(records, []string{"n/a"})
	}
	return mustDataset(t, records)
}

func TestInferType_Threshold(t *testing.T) {
	a := NewAnalyzer(nil, DefaultConfig())

	tests := []struct {
		name    string
		numeric int
		text    int
		want    ColumnType
	}{
		{"eight of ten", 8, 2, ColumnNumeric},
		{"seven of ten", 7, 3, ColumnNumeric},
		{"six of ten", 6, 4, ColumnText},
		{"all numeric", 10, 0, ColumnNumeric},
		{"no values", 0, 0, ColumnText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.InferType(column(t, tt.numeric, tt.text), 0))
		})
	}
}

func TestInferType_OnlySamplesFirstRows(t *testing.T) {
	a := NewAnalyzer(nil, DefaultConfig())
	// Ten numeric rows followed by many text rows still infer numeric.
	ds := column(t, 10, 50)
	assert.Equal(t, ColumnNumeric, a.InferType(ds, 0))
}

func TestInferType_IgnoresEmptyCells(t *testing.T) {
	a := NewAnalyzer(nil, DefaultConfig())
	ds := mustDataset(t, [][]string{{"v"}, {"1"}, {""}, {" "}, {"2"}, {}})
	assert.Equal(t, ColumnNumeric, a.InferType(ds, 0))
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"34", 34, true},
		{" 1,200.50 ", 1200.5, true},
		{"฿1,000", 1000, true},
		{"$15", 15, true},
		{"-3.5", -3.5, true},
		{"", 0, false},
		{"abc", 0, false},
		{"NaN", 0, false},
		{"12 kg", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseNumber(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestAnalyze_EmptyDataset(t *testing.T) {
	a := NewAnalyzer(nil, DefaultConfig())
	ds := mustDataset(t, [][]string{{"name", "age"}})
	assert.Nil(t, a.Analyze(ds, true))
}

func TestAnalyze_Report(t *testing.T) {
	a := NewAnalyzer(nil, DefaultConfig())
	ds := mustDataset(t, [][]string{
		{"name", "age", "city", "salary"},
		{"Somchai", "34", "Bangkok", "30,000"},
		{"Suda", "28", "Chiang Mai", "25,000"},
		{"Anan", "41", "Bangkok", "45,000"},
		{"Malee", "28", "Phuket", "28,000"},
	})

	report := a.Analyze(ds, false)
	require.NotNil(t, report)

	assert.Equal(t, 4, report.Basic.TotalRows)
	assert.Equal(t, 4, report.Basic.TotalColumns)
	assert.Equal(t, []string{"age", "salary"}, report.Basic.Numeric)
	assert.Equal(t, []string{"name", "city"}, report.Basic.Text)
	assert.Contains(t, report.Summary, "4 แถว")
	assert.Contains(t, report.Summary, "name, age, city, salary")
	assert.Empty(t, report.Aggregations)

	require.Len(t, report.Patterns, 3)
	city := report.Patterns[2]
	assert.Equal(t, "city", city.Column)
	assert.Equal(t, []ValueCount{
		{Value: "Bangkok", Count: 2},
		{Value: "Chiang Mai", Count: 1},
		{Value: "Phuket", Count: 1},
	}, city.Top)

	age := report.Patterns[1]
	assert.Equal(t, ValueCount{Value: "28", Count: 2}, age.Top[0])
	assert.Equal(t, ValueCount{Value: "34", Count: 1}, age.Top[1])
}

func TestAnalyze_Aggregations(t *testing.T) {
	a := NewAnalyzer(nil, DefaultConfig())
	ds := mustDataset(t, [][]string{
		{"name", "age"},
		{"Somchai", "34"},
		{"Suda", "28"},
		{"Anan", "41"},
		{"Malee", ""},
	})

	report := a.Analyze(ds, true)
	require.NotNil(t, report)
	require.Len(t, report.Aggregations, 1)

	age := report.Aggregations[0]
	assert.Equal(t, "age", age.Column)
	assert.Equal(t, 3, age.Count)
	assert.InDelta(t, 103, age.Sum, 1e-9)
	assert.InDelta(t, 103.0/3, age.Avg, 1e-9)
	assert.InDelta(t, 41, age.Max, 1e-9)
	assert.InDelta(t, 28, age.Min, 1e-9)
}

func TestAnalyze_AggregatesByColumnNotName(t *testing.T) {
	a := NewAnalyzer(nil, DefaultConfig())
	ds := mustDataset(t, [][]string{
		{"score", "score"},
		{"10", "n/a"},
		{"20", "late"},
		{"30", "5"},
	})

	report := a.Analyze(ds, true)
	require.NotNil(t, report)
	assert.Equal(t, []string{"score"}, report.Basic.Numeric)
	assert.Equal(t, []string{"score"}, report.Basic.Text)

	require.Len(t, report.Aggregations, 1)
	assert.Equal(t, 3, report.Aggregations[0].Count)
	assert.InDelta(t, 60, report.Aggregations[0].Sum, 1e-9)
}

func TestAnalyze_SummaryListsFirstFiveColumns(t *testing.T) {
	a := NewAnalyzer(nil, DefaultConfig())
	ds := mustDataset(t, [][]string{
		{"a", "b", "c", "d", "e", "f", "g"},
		{"1", "2", "3", "4", "5", "6", "7"},
	})

	report := a.Analyze(ds, false)
	require.NotNil(t, report)
	assert.Contains(t, report.Summary, "a, b, c, d, e")
	assert.NotContains(t, report.Summary, "f")
}
