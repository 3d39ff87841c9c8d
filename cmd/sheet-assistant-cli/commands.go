package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/assistant"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/storage"
)

// answerJSON is the --json shape of one answered question.
type answerJSON struct {
	Question        string  `json:"question"`
	Response        string  `json:"response"`
	ContextFound    bool    `json:"context_found"`
	Intent          string  `json:"intent"`
	Confidence      float64 `json:"confidence"`
	MatchedRowCount int     `json:"matched_row_count"`
	InteractionID   string  `json:"interaction_id,omitempty"`
	LatencyMs       int64   `json:"latency_ms"`
}

func toAnswer(q string, res assistant.Result, elapsed time.Duration) answerJSON {
	return answerJSON{
		Question:        q,
		Response:        res.ResponseText,
		ContextFound:    res.ContextFound,
		Intent:          string(res.Intent),
		Confidence:      res.Confidence,
		MatchedRowCount: res.MatchedRowCount,
		InteractionID:   res.InteractionID,
		LatencyMs:       elapsed.Milliseconds(),
	}
}

// newAskCmd creates the ask subcommand.
func newAskCmd(a *app) *cobra.Command {
	var showContext bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask one question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			rt, err := a.runtime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			question := strings.Join(args, " ")
			spin := NewSpinner(a.stderr, "กำลังคิด...", !a.outputJSON && IsTerminal())
			spin.Start()
			start := time.Now()
			res := rt.Service.HandleQuery(ctx, question)
			spin.Stop()

			if a.outputJSON {
				return a.ui.JSON(toAnswer(question, res, time.Since(start)))
			}
			if showContext {
				a.ui.Section("context")
				fmt.Fprintln(a.stdout, res.Context)
				a.ui.Section("answer")
			}
			a.ui.Answer(res.ResponseText, res.ContextFound)
			a.ui.KeyValue("intent", fmt.Sprintf("%s (%.2f)", res.Intent, res.Confidence))
			a.ui.KeyValue("rows", res.MatchedRowCount)
			a.ui.KeyValue("took", FormatDuration(time.Since(start)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&showContext, "show-context", false, "print the context sent to the model")
	return cmd
}

// newChatCmd creates the interactive chat subcommand.
func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat interactively; an empty line or \"exit\" quits",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := a.runtime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			a.ui.Info("พิมพ์คำถาม (exit เพื่อออก)")
			scanner := bufio.NewScanner(a.stdin)
			for {
				if !a.outputJSON {
					fmt.Fprint(a.stdout, "> ")
				}
				if !scanner.Scan() {
					return scanner.Err()
				}
				q := strings.TrimSpace(scanner.Text())
				if q == "" || q == "exit" || q == "quit" {
					return nil
				}

				start := time.Now()
				res := rt.Service.HandleQuery(ctx, q)
				if a.outputJSON {
					if err := a.ui.JSON(toAnswer(q, res, time.Since(start))); err != nil {
						return err
					}
					continue
				}
				a.ui.Answer(res.ResponseText, res.ContextFound)
			}
		},
	}
}

// newBatchCmd creates the batch subcommand.
func newBatchCmd(a *app) *cobra.Command {
	var (
		file        string
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Answer every question in a file, one per line",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var r io.Reader = a.stdin
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("open questions: %w", err)
				}
				defer f.Close()
				r = f
			}
			questions, err := readQuestions(r)
			if err != nil {
				return err
			}
			if len(questions) == 0 {
				return fmt.Errorf("no questions given")
			}

			rt, err := a.runtime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			answers := make([]answerJSON, len(questions))
			bar := a.ui.ProgressBar("questions", int64(len(questions)))

			var mu sync.Mutex
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(max(concurrency, 1))
			for i, q := range questions {
				g.Go(func() error {
					start := time.Now()
					res := rt.Service.HandleQuery(gctx, q)
					mu.Lock()
					answers[i] = toAnswer(q, res, time.Since(start))
					mu.Unlock()
					if bar != nil {
						bar.Increment()
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			a.ui.Close()

			if a.outputJSON {
				return a.ui.JSON(answers)
			}
			rows := make([][]string, len(answers))
			found := 0
			for i, ans := range answers {
				if ans.ContextFound {
					found++
				}
				rows[i] = []string{strconv.Itoa(i + 1), ans.Question, ans.Intent, strconv.FormatBool(ans.ContextFound), truncate(ans.Response, 60)}
			}
			a.ui.Table([]string{"#", "question", "intent", "found", "response"}, rows)
			a.ui.Success("answered %d questions, %d with context", len(answers), found)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "questions file, - for stdin")
	cmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "questions answered in parallel")
	return cmd
}

// newIndexCmd creates the index subcommand.
func newIndexCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Embed the current rows into the semantic index",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := a.runtime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			var progress func(done, total int)
			var bar *IndexBar
			if !a.outputJSON {
				bar = NewIndexBar(a.stderr, "indexing")
				progress = bar.Update
			}

			start := time.Now()
			n, err := rt.Service.Index(ctx, progress)
			if bar != nil {
				bar.Finish()
			}
			if err != nil {
				return fmt.Errorf("index rows: %w", err)
			}

			if a.outputJSON {
				return a.ui.JSON(map[string]any{"rows": n, "source_id": rt.Store.SourceID(), "latency_ms": time.Since(start).Milliseconds()})
			}
			a.ui.Success("indexed %d rows from %s in %s", n, rt.Store.SourceID(), FormatDuration(time.Since(start)))
			return nil
		},
	}
}

// newAnalyzeCmd creates the analyze subcommand.
func newAnalyzeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Summarise the current dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := a.runtime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			report, err := rt.Service.Analyze(ctx)
			if err != nil {
				return fmt.Errorf("analyze: %w", err)
			}
			if a.outputJSON {
				return a.ui.JSON(report)
			}

			a.ui.Section("dataset")
			a.ui.Info("%s", report.Summary)
			a.ui.KeyValue("numeric columns", strings.Join(report.Basic.Numeric, ", "))
			a.ui.KeyValue("text columns", strings.Join(report.Basic.Text, ", "))

			if len(report.Aggregations) > 0 {
				a.ui.Section("aggregations")
				rows := make([][]string, len(report.Aggregations))
				for i, ag := range report.Aggregations {
					rows[i] = []string{ag.Column, strconv.Itoa(ag.Count), formatFloat(ag.Sum), formatFloat(ag.Avg), formatFloat(ag.Min), formatFloat(ag.Max)}
				}
				a.ui.Table([]string{"column", "count", "sum", "avg", "min", "max"}, rows)
			}

			if len(report.Patterns) > 0 {
				a.ui.Section("frequent values")
				for _, p := range report.Patterns {
					values := make([]string, len(p.Top))
					for i, v := range p.Top {
						values[i] = fmt.Sprintf("%s (%d)", v.Value, v.Count)
					}
					a.ui.KeyValue(p.Column, strings.Join(values, ", "))
				}
			}
			return nil
		},
	}
}

// newSettingsCmd creates the settings subcommand group.
func newSettingsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read or change stored settings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Show the current settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := a.runtime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			s, err := rt.Service.Settings(ctx)
			if err != nil {
				return err
			}
			if a.outputJSON {
				return a.ui.JSON(s)
			}
			a.ui.Section("settings")
			a.ui.KeyValue(string(storage.SettingSheetID), s.SheetID)
			a.ui.KeyValue(string(storage.SettingSystemPrompt), truncate(s.SystemPrompt, 80))
			a.ui.KeyValue(string(storage.SettingLineToken), mask(s.LineToken))
			a.ui.KeyValue(string(storage.SettingTelegramAPI), mask(s.TelegramAPI))
			return nil
		},
	})

	var by string
	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store one setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !storage.ValidSettingKey(args[0]) {
				return fmt.Errorf("unknown setting %q (valid: %s)", args[0], strings.Join(settingNames(), ", "))
			}

			rt, err := a.runtime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			if by == "" {
				by = os.Getenv("USER")
				if by == "" {
					by = "cli"
				}
			}
			if err := rt.Service.UpdateSetting(ctx, args[0], args[1], by); err != nil {
				return err
			}
			if a.outputJSON {
				return a.ui.JSON(map[string]string{"key": args[0], "updated_by": by})
			}
			a.ui.Success("%s updated", args[0])
			return nil
		},
	}
	set.Flags().StringVar(&by, "by", "", "operator name recorded with the change (default: $USER)")
	cmd.AddCommand(set)
	return cmd
}

// newHistoryCmd creates the history subcommand.
func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently handled questions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := a.runtime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			items, err := rt.Service.History(ctx, limit)
			if err != nil {
				return err
			}
			if a.outputJSON {
				if items == nil {
					items = []*storage.Interaction{}
				}
				return a.ui.JSON(items)
			}
			if len(items) == 0 {
				a.ui.Info("no history yet")
				return nil
			}
			rows := make([][]string, len(items))
			for i, it := range items {
				rows[i] = []string{it.CreatedAt.Local().Format("2006-01-02 15:04:05"), it.Query, it.Intent, strconv.FormatBool(it.ContextFound), truncate(it.Preview, 50)}
			}
			a.ui.Table([]string{"time", "question", "intent", "found", "answer"}, rows)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")
	return cmd
}

// newPopularCmd creates the popular subcommand. Memory lives in-process, so
// the counts come from the persisted history.
func newPopularCmd(a *app) *cobra.Command {
	var (
		limit  int
		window int
	)

	cmd := &cobra.Command{
		Use:   "popular",
		Short: "Show the most asked questions in recent history",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := a.runtime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := replayHistory(ctx, rt.Service, window); err != nil {
				return err
			}
			popular := rt.Service.Popular(limit)
			if a.outputJSON {
				return a.ui.JSON(popular)
			}
			rows := make([][]string, len(popular))
			for i, p := range popular {
				rows[i] = []string{strconv.Itoa(i + 1), p.Query, strconv.Itoa(p.Count)}
			}
			a.ui.Table([]string{"#", "question", "count"}, rows)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "number of questions")
	cmd.Flags().IntVar(&window, "window", 500, "history entries considered")
	return cmd
}

// replayHistory seeds conversation memory from the interaction log, oldest
// first, so popularity and recall match the stored history.
func replayHistory(ctx context.Context, svc *assistant.Service, window int) error {
	items, err := svc.History(ctx, window)
	if err != nil {
		return err
	}
	svc.Seed(items)
	return nil
}

// newVersionCmd creates the version subcommand.
func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.outputJSON {
				return a.ui.JSON(map[string]string{"version": version, "go": runtime.Version()})
			}
			fmt.Fprintf(a.stdout, "sheet-assistant-cli v%s\n", version)
			return nil
		},
	}
}

// readQuestions returns the non-blank lines of r. Lines starting with # are
// comments.
func readQuestions(r io.Reader) ([]string, error) {
	var out []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}
	return out, nil
}

func settingNames() []string {
	names := make([]string, len(storage.SettingKeys))
	for i, k := range storage.SettingKeys {
		names[i] = string(k)
	}
	return names
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func mask(s string) string {
	r := []rune(s)
	if len(r) <= 4 {
		return strings.Repeat("*", len(r))
	}
	return strings.Repeat("*", len(r)-4) + string(r[len(r)-4:])
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
