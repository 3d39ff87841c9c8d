package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/dataset"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/llm"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/memory"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/retrieval"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/storage"
)

var people = [][]string{
	{"name", "age"},
	{"Somchai", "34"},
	{"Anong", "29"},
}

type stubSource struct {
	mu      sync.Mutex
	records map[string][][]string
	block   bool
	fetches []string
}

func (s *stubSource) Fetch(ctx context.Context, sourceID string) (*dataset.Dataset, error) {
	s.mu.Lock()
	s.fetches = append(s.fetches, sourceID)
	block := s.block
	records, ok := s.records[sourceID]
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if !ok {
		return nil, dataset.ErrUnavailable
	}
	return dataset.New(sourceID, records, time.Now())
}

type recordingLLM struct {
	mu      sync.Mutex
	prompts []string
	answer  string
	err     error
}

func (r *recordingLLM) Complete(_ context.Context, prompt string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts = append(r.prompts, prompt)
	return r.answer, r.err
}

func (r *recordingLLM) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.prompts)
}

func (r *recordingLLM) lastPrompt() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.prompts) == 0 {
		return ""
	}
	return r.prompts[len(r.prompts)-1]
}

func newTestService(t *testing.T, src *stubSource, completer llm.Completer, opts ...func(*Options)) *Service {
	t.Helper()
	store := dataset.NewStore(nil, src, nil, dataset.StoreConfig{SourceID: "sheet-1", FetchTimeout: 50 * time.Millisecond})
	o := Options{Store: store, Completer: completer}
	for _, fn := range opts {
		fn(&o)
	}
	svc, err := New(o)
	require.NoError(t, err)
	return svc
}

func peopleSource() *stubSource {
	return &stubSource{records: map[string][][]string{"sheet-1": people}}
}

func TestNew_RequiresStoreAndCompleter(t *testing.T) {
	_, err := New(Options{Completer: &recordingLLM{}})
	assert.Error(t, err)

	store := dataset.NewStore(nil, peopleSource(), nil, dataset.StoreConfig{})
	_, err = New(Options{Store: store})
	assert.Error(t, err)
}

func TestHandleQuery_DataWindow(t *testing.T) {
	model := &recordingLLM{answer: "Somchai อายุ 34 ปี"}
	svc := newTestService(t, peopleSource(), model)

	res := svc.HandleQuery(context.Background(), "ขอดูข้อมูล 1")

	assert.Equal(t, retrieval.IntentData, res.Intent)
	assert.True(t, res.ContextFound)
	assert.Equal(t, 1, res.MatchedRowCount)
	assert.Equal(t, "Somchai อายุ 34 ปี", res.ResponseText)
	assert.NotEmpty(t, res.InteractionID)

	assert.Contains(t, res.Context, "แถวที่ 1: Somchai | 34")
	assert.NotContains(t, res.Context, "Anong")

	prompt := model.lastPrompt()
	assert.True(t, strings.HasPrefix(prompt, llm.DefaultSystemPrompt))
	assert.Contains(t, prompt, "\n\nข้อมูลที่เกี่ยวข้อง:\n"+res.Context+"\n\nคำถาม: ขอดูข้อมูล 1\n\nคำตอบ:")
}

func TestHandleQuery_SearchExactOnAge(t *testing.T) {
	svc := newTestService(t, peopleSource(), &recordingLLM{answer: "ok"})

	res := svc.HandleQuery(context.Background(), "34")

	assert.Equal(t, retrieval.IntentSearch, res.Intent)
	assert.True(t, res.ContextFound)
	assert.Equal(t, 1, res.MatchedRowCount)

	require.NotNil(t, res.Outcome)
	require.Len(t, res.Outcome.Matches, 1)
	hit := res.Outcome.Matches[0]
	assert.Equal(t, 1, hit.RowIndex)
	require.NotEmpty(t, hit.Matches)
	assert.Equal(t, "age", hit.Matches[0].ColumnName)
	assert.Equal(t, retrieval.MatchExact, hit.Matches[0].Kind)
}

func TestHandleQuery_SourceTimeout(t *testing.T) {
	src := peopleSource()
	src.block = true
	model := &recordingLLM{answer: "should not be used"}
	svc := newTestService(t, src, model)

	res := svc.HandleQuery(context.Background(), "ค้นหาสมชาย")

	assert.False(t, res.ContextFound)
	assert.Equal(t, retrieval.MessageUnavailable, res.ResponseText)
	assert.Zero(t, res.MatchedRowCount)
	assert.Zero(t, model.calls())
}

func TestHandleQuery_EmptyMessage(t *testing.T) {
	model := &recordingLLM{answer: "x"}
	svc := newTestService(t, peopleSource(), model)

	res := svc.HandleQuery(context.Background(), "   ")
	assert.Equal(t, MessageEmptyQuery, res.ResponseText)
	assert.False(t, res.ContextFound)
	assert.Zero(t, model.calls())
	assert.Empty(t, svc.Recent(5))
}

func TestHandleQuery_LLMFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"connection", llm.NewError(llm.ErrorTypeUnavailable, "connection failed", nil), MessageLLMFailure},
		{"timeout", context.DeadlineExceeded, MessageLLMFailure},
		{"plain error", errors.New("boom"), MessageLLMFailure},
		{"empty answer", llm.NewError(llm.ErrorTypeEmpty, "empty", nil), MessageEmptyAnswer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, peopleSource(), &recordingLLM{err: tt.err})

			res := svc.HandleQuery(context.Background(), "ขอดูข้อมูล 1")
			assert.Equal(t, tt.want, res.ResponseText)
			assert.False(t, res.ContextFound)
			assert.Equal(t, 1, res.MatchedRowCount)
		})
	}
}

func TestHandleQuery_RecoversPanics(t *testing.T) {
	boom := llm.CompleterFunc(func(context.Context, string) (string, error) { panic("kaboom") })
	svc := newTestService(t, peopleSource(), boom)

	res := svc.HandleQuery(context.Background(), "ขอดูข้อมูล 1")
	assert.Equal(t, MessageProcessingError, res.ResponseText)
	assert.False(t, res.ContextFound)
}

func TestHandleQuery_HelpDesk(t *testing.T) {
	model := &recordingLLM{answer: "llm"}
	svc := newTestService(t, peopleSource(), model)

	res := svc.HandleQuery(context.Background(), "คู่มือ")
	assert.Equal(t, retrieval.IntentHelp, res.Intent)
	assert.Contains(t, res.ResponseText, "คู่มือการใช้งาน")
	assert.Zero(t, model.calls())

	// Help intent without a help desk entry goes through retrieval.
	res = svc.HandleQuery(context.Background(), "มีคำสั่งอะไรบ้าง")
	assert.Equal(t, retrieval.IntentHelp, res.Intent)
	assert.Equal(t, "llm", res.ResponseText)
}

func TestHandleQuery_NoMatchStillAsksLLM(t *testing.T) {
	model := &recordingLLM{answer: "ไม่พบ"}
	svc := newTestService(t, peopleSource(), model)

	res := svc.HandleQuery(context.Background(), "ค้นหา xyzxyz")
	assert.False(t, res.ContextFound)
	assert.Equal(t, "ไม่พบ", res.ResponseText)
	assert.Contains(t, model.lastPrompt(), retrieval.MessageNoMatch)
}

func TestHandleQuery_RecallsPreviousAnswer(t *testing.T) {
	model := &recordingLLM{answer: "Somchai อายุ 34"}
	svc := newTestService(t, peopleSource(), model)

	svc.HandleQuery(context.Background(), "ค้นหาสมชาย")
	assert.NotContains(t, model.lastPrompt(), "บทสนทนาก่อนหน้า")

	svc.HandleQuery(context.Background(), "ค้นหาสมชาย")
	assert.Contains(t, model.lastPrompt(), "บทสนทนาก่อนหน้า: ค้นหาสมชาย → Somchai อายุ 34")
}

func TestHandleQuery_Analysis(t *testing.T) {
	svc := newTestService(t, peopleSource(), &recordingLLM{answer: "ok"})

	res := svc.HandleQuery(context.Background(), "วิเคราะห์ค่าเฉลี่ยอายุ")
	assert.Equal(t, retrieval.IntentAnalysis, res.Intent)
	assert.True(t, res.ContextFound)
	assert.Contains(t, res.Context, "ข้อมูลมีทั้งหมด 2 แถว")
	assert.Contains(t, res.Context, "age: ผลรวม 63")
}

func TestPopularAndClearMemory(t *testing.T) {
	svc := newTestService(t, peopleSource(), &recordingLLM{answer: "ok"})
	ctx := context.Background()

	for _, q := range []string{"a", "b", "a", "c", "a", "b"} {
		svc.HandleQuery(ctx, q)
	}

	popular := svc.Popular(3)
	require.Len(t, popular, 3)
	assert.Equal(t, "a", popular[0].Query)
	assert.Equal(t, 3, popular[0].Count)
	assert.Equal(t, "b", popular[1].Query)
	assert.Equal(t, 2, popular[1].Count)
	assert.Equal(t, "c", popular[2].Query)
	assert.Equal(t, 1, popular[2].Count)

	svc.ClearMemory()
	assert.Empty(t, svc.Popular(3))
	assert.Empty(t, svc.Recent(3))
}

func openRepos(t *testing.T) (*storage.SettingsRepository, *storage.InteractionRepository) {
	t.Helper()
	ctx := context.Background()
	db, err := storage.Open(ctx, storage.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.Migrate(ctx, db))
	return storage.NewSettingsRepository(db), storage.NewInteractionRepository(db)
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	settings, _ := openRepos(t)
	src := &stubSource{records: map[string][][]string{
		"sheet-1": people,
		"sheet-2": {{"product", "price"}, {"Laptop", "25000"}},
	}}
	model := &recordingLLM{answer: "ok"}
	svc := newTestService(t, src, model, func(o *Options) { o.Settings = settings })

	current, err := svc.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sheet-1", current.SheetID)
	assert.Equal(t, llm.DefaultSystemPrompt, current.SystemPrompt)

	require.NoError(t, svc.UpdateSetting(ctx, "sheet_id", " sheet-2 ", "admin"))
	require.NoError(t, svc.UpdateSetting(ctx, "system_prompt", "คุณคือผู้ช่วยขายของ", "admin"))
	require.NoError(t, svc.UpdateSetting(ctx, "line_token", "tok", "admin"))

	res := svc.HandleQuery(ctx, "ค้นหา laptop")
	assert.True(t, res.ContextFound)
	assert.Contains(t, res.Context, "Laptop | 25000")
	assert.True(t, strings.HasPrefix(model.lastPrompt(), "คุณคือผู้ช่วยขายของ\n\n"))

	current, err = svc.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, Settings{SystemPrompt: "คุณคือผู้ช่วยขายของ", SheetID: "sheet-2", LineToken: "tok"}, current)

	err = svc.UpdateSetting(ctx, "password", "x", "admin")
	assert.ErrorIs(t, err, ErrUnknownSetting)
}

func TestLoadSettings_AppliesStoredValues(t *testing.T) {
	ctx := context.Background()
	settings, _ := openRepos(t)
	require.NoError(t, settings.Set(ctx, storage.SettingSheetID, "sheet-9", "admin"))
	require.NoError(t, settings.Set(ctx, storage.SettingSystemPrompt, "stored prompt", "admin"))

	svc := newTestService(t, peopleSource(), &recordingLLM{}, func(o *Options) { o.Settings = settings })
	require.NoError(t, svc.LoadSettings(ctx))

	assert.Equal(t, "stored prompt", svc.SystemPrompt())
	assert.Equal(t, "sheet-9", svc.store.SourceID())
}

func TestUpdateSetting_WithoutStore(t *testing.T) {
	svc := newTestService(t, peopleSource(), &recordingLLM{})
	assert.ErrorIs(t, svc.UpdateSetting(context.Background(), "sheet_id", "x", "admin"), ErrNoSettingsStore)
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	_, interactions := openRepos(t)
	svc := newTestService(t, peopleSource(), &recordingLLM{answer: "ok"}, func(o *Options) { o.Interactions = interactions })

	first := svc.HandleQuery(ctx, "ขอดูข้อมูล 1")
	svc.HandleQuery(ctx, "ค้นหา xyzxyz")

	history, err := svc.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)

	var found bool
	for _, it := range history {
		if it.ID.String() == first.InteractionID {
			found = true
			assert.Equal(t, "ขอดูข้อมูล 1", it.Query)
			assert.True(t, it.ContextFound)
			assert.Equal(t, string(retrieval.IntentData), it.Intent)
			assert.Equal(t, "sheet-1", it.SourceID)
		}
	}
	assert.True(t, found)

	bare := newTestService(t, peopleSource(), &recordingLLM{})
	_, err = bare.History(ctx, 10)
	assert.ErrorIs(t, err, ErrNoInteractionLog)
}

func TestTestConnection(t *testing.T) {
	ctx := context.Background()

	ok := newTestService(t, peopleSource(), &recordingLLM{answer: "pong"}).TestConnection(ctx)
	assert.Equal(t, ConnectionStatus{DataSource: true, LLM: true, Message: "Google Sheets: ✅, AI Model: ✅"}, ok)

	src := peopleSource()
	src.block = true
	bad := newTestService(t, src, &recordingLLM{err: errors.New("down")}).TestConnection(ctx)
	assert.Equal(t, ConnectionStatus{Message: "Google Sheets: ❌, AI Model: ❌"}, bad)
}

func TestRefreshAndAnalyze(t *testing.T) {
	ctx := context.Background()
	src := peopleSource()
	svc := newTestService(t, src, &recordingLLM{})

	res, err := svc.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, RefreshResult{SourceID: "sheet-1", Rows: 2, Columns: 2}, res)

	_, err = svc.Refresh(ctx)
	require.NoError(t, err)
	assert.Len(t, src.fetches, 2)

	report, err := svc.Analyze(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Basic.TotalRows)
	assert.Equal(t, []string{"age"}, report.Basic.Numeric)
	require.Len(t, report.Aggregations, 1)
	assert.Equal(t, 63.0, report.Aggregations[0].Sum)

	_, err = svc.Index(ctx, nil)
	assert.ErrorIs(t, err, ErrNoIndexer)
}

func TestAdminHelp(t *testing.T) {
	svc := newTestService(t, peopleSource(), &recordingLLM{})

	assert.Contains(t, svc.AdminHelp("ตั้งค่ายังไง"), "ขั้นตอนการตั้งค่าระบบ")
	assert.Contains(t, svc.AdminHelp("How do I connect a Google Sheet?"), "Sheet ID")
	assert.Equal(t, defaultHelpFallback, svc.AdminHelp("อากาศวันนี้"))
}

func TestSeed_ReplaysOldestFirst(t *testing.T) {
	svc := newTestService(t, peopleSource(), &recordingLLM{})

	svc.Seed([]*storage.Interaction{
		{Query: "newest", Preview: "c"},
		{Query: "34", Preview: "b", ContextFound: true},
		{Query: "34", Preview: "a", ContextFound: true},
	})

	recent := svc.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, "newest", recent[0].Query)

	popular := svc.Popular(1)
	require.Len(t, popular, 1)
	assert.Equal(t, memory.QueryCount{Query: "34", Count: 2}, popular[0])
}
