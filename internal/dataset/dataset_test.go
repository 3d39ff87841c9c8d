package dataset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_SplitsHeaderAndRows(t *testing.T) {
	fetched := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	ds, err := New("sheet", [][]string{
		{"\ufeffname ", "age"},
		{"Somchai", "34"},
		{"Anong"},
	}, fetched)
	require.NoError(t, err)

	assert.Equal(t, []string{"name", "age"}, ds.Header)
	assert.Equal(t, 2, ds.Len())
	assert.Equal(t, 2, ds.Columns())
	assert.Equal(t, "sheet", ds.SourceID)
	assert.Equal(t, fetched, ds.FetchedAt)
}

func TestNew_NoRecords(t *testing.T) {
	_, err := New("sheet", nil, time.Now())
	assert.ErrorIs(t, err, ErrNoHeader)
}

func TestRow_ShortRowsReadAsEmpty(t *testing.T) {
	row := Row{"Anong"}

	assert.Equal(t, "Anong", row.Cell(0))
	assert.Equal(t, "", row.Cell(1))
	assert.Equal(t, "", row.Cell(-1))
	assert.Equal(t, []string{"Anong", "", ""}, row.Cells(3))
}

func TestDataset_WidthAndColumnName(t *testing.T) {
	ds := &Dataset{Header: []string{"name", ""}, Rows: []Row{{"a", "b", "c"}}}

	assert.Equal(t, 3, ds.Width())
	assert.Equal(t, "name", ds.ColumnName(0))
	assert.Equal(t, "column_2", ds.ColumnName(1))
	assert.Equal(t, "column_3", ds.ColumnName(2))
}

func TestDataset_FreshAt(t *testing.T) {
	fetched := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	ds := &Dataset{FetchedAt: fetched}

	assert.True(t, ds.FreshAt(fetched.Add(4*time.Minute), 5*time.Minute))
	assert.False(t, ds.FreshAt(fetched.Add(5*time.Minute), 5*time.Minute))

	var missing *Dataset
	assert.False(t, missing.FreshAt(fetched, time.Hour))
	assert.Equal(t, 0, missing.Len())
}

func TestDataset_FingerprintIgnoresFetchTime(t *testing.T) {
	records := [][]string{{"name"}, {"Somchai"}}
	a, err := New("x", records, time.Unix(0, 0))
	require.NoError(t, err)
	b, err := New("x", records, time.Unix(1000, 0))
	require.NoError(t, err)
	c, err := New("x", [][]string{{"name"}, {"Anong"}}, time.Unix(0, 0))
	require.NoError(t, err)

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestDataset_FingerprintSeparatesCells(t *testing.T) {
	a := &Dataset{Header: []string{"ab", "c"}}
	b := &Dataset{Header: []string{"a", "bc"}}
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestDataset_FingerprintComputedOnce(t *testing.T) {
	ds, err := New("x", [][]string{{"name"}, {"Somchai"}}, time.Now())
	require.NoError(t, err)

	assert.NotEmpty(t, ds.fingerprint)
	assert.Equal(t, ds.hash(), ds.Fingerprint())

	literal := &Dataset{Header: []string{"name"}, Rows: []Row{{"Somchai"}}}
	assert.Empty(t, literal.fingerprint)
	assert.Equal(t, ds.Fingerprint(), literal.Fingerprint())
}
