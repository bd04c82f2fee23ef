package core_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/adapters/store"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/core"
	"go.uber.org/zap/zaptest"
)

type stubAnalyzer struct {
	analysis *core.Analysis
	err      error
	calls    int
}

func (a *stubAnalyzer) AnalyzeMessage(ctx context.Context, msg *core.Message) (*core.Analysis, error) {
	a.calls++
	return a.analysis, a.err
}

func newPvpService(t *testing.T, analyzer core.Analyzer) *core.PvpService {
	t.Helper()
	logger := zaptest.NewLogger(t)
	s := store.NewMemoryStore(logger, 0, 0)
	t.Cleanup(func() { s.Close() })
	return core.NewPvpService(s, core.NewDifficultyRater(analyzer, logger), logger)
}

func emailInput(phish bool) core.PvpEmailInput {
	return core.PvpEmailInput{
		SenderName:  "Payroll",
		SenderEmail: "payroll@example.com",
		Subject:     "Your payslip",
		Body:        "Your payslip is attached.",
		IsPhish:     phish,
		Difficulty:  2,
		Attachments: []string{"payslip.pdf"},
	}
}

func TestPvpEmailValidation(t *testing.T) {
	cases := []struct {
		name  string
		edit  func(*core.PvpEmailInput)
		field string
	}{
		{"missing sender", func(in *core.PvpEmailInput) { in.SenderName = " " }, "sender_name"},
		{"bad address", func(in *core.PvpEmailInput) { in.SenderEmail = "nope" }, "sender_email"},
		{"difficulty range", func(in *core.PvpEmailInput) { in.Difficulty = 6 }, "difficulty"},
		{"links and attachments", func(in *core.PvpEmailInput) { in.Links = []string{"https://x.test"} }, "links"},
		{"neither", func(in *core.PvpEmailInput) { in.Attachments = []string{" "} }, "links"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := emailInput(true)
			tc.edit(&in)

			var verr *core.ValidationError
			if err := in.Validate(); !errors.As(err, &verr) || verr.Fields[tc.field] == "" {
				t.Fatalf("expected error on %s, got %v", tc.field, err)
			}
		})
	}

	in := emailInput(false)
	if err := in.Validate(); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}
}

func TestPvpPublishRules(t *testing.T) {
	svc := newPvpService(t, nil)
	ctx := context.Background()

	level, err := svc.CreateLevel(ctx, 1, core.PvpLevelInput{Title: "Quarter end"})
	if err != nil {
		t.Fatalf("CreateLevel err: %v", err)
	}
	if level.Visibility != core.VisibilityUnlisted {
		t.Fatalf("new levels should be unlisted, got %s", level.Visibility)
	}

	// Five phishing emails: enough emails but no legitimate one
	for i := 0; i < 5; i++ {
		if _, err := svc.AddEmail(ctx, 1, level.ID, emailInput(true)); err != nil {
			t.Fatalf("AddEmail err: %v", err)
		}
	}
	if _, err := svc.SetVisibility(ctx, 1, level.ID, core.VisibilityPosted); !errors.Is(err, core.ErrInvalidArgument) {
		t.Fatalf("expected validation error, got %v", err)
	}

	if _, err := svc.AddEmail(ctx, 1, level.ID, emailInput(false)); err != nil {
		t.Fatalf("AddEmail err: %v", err)
	}
	if _, err := svc.SetVisibility(ctx, 2, level.ID, core.VisibilityPosted); !errors.Is(err, core.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	posted, err := svc.SetVisibility(ctx, 1, level.ID, core.VisibilityPosted)
	if err != nil {
		t.Fatalf("SetVisibility err: %v", err)
	}
	if posted.Visibility != core.VisibilityPosted {
		t.Fatalf("expected posted, got %s", posted.Visibility)
	}
}

func TestPvpPublishTooManyEmails(t *testing.T) {
	svc := newPvpService(t, nil)
	ctx := context.Background()

	level, err := svc.CreateLevel(ctx, 1, core.PvpLevelInput{Title: "Flood"})
	if err != nil {
		t.Fatalf("CreateLevel err: %v", err)
	}
	for i := 0; i < core.MaxPublishEmails+1; i++ {
		if _, err := svc.AddEmail(ctx, 1, level.ID, emailInput(i%2 == 0)); err != nil {
			t.Fatalf("AddEmail err: %v", err)
		}
	}

	_, err = svc.SetVisibility(ctx, 1, level.ID, core.VisibilityPosted)
	if !errors.Is(err, core.ErrInvalidArgument) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPvpPlayEmailsVisibility(t *testing.T) {
	svc := newPvpService(t, nil)
	ctx := context.Background()

	level, err := svc.CreateLevel(ctx, 1, core.PvpLevelInput{Title: "Draft"})
	if err != nil {
		t.Fatalf("CreateLevel err: %v", err)
	}
	wave := emailInput(true)
	wave.IsWave = true
	for _, in := range []core.PvpEmailInput{emailInput(true), emailInput(false), wave} {
		if _, err := svc.AddEmail(ctx, 1, level.ID, in); err != nil {
			t.Fatalf("AddEmail err: %v", err)
		}
	}

	msgs, err := svc.PlayEmails(ctx, 1, level.ID, 15, false)
	if err != nil {
		t.Fatalf("owner PlayEmails err: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 initial emails, got %d", len(msgs))
	}

	waveMsgs, err := svc.PlayEmails(ctx, 1, level.ID, 50, true)
	if err != nil || len(waveMsgs) != 1 {
		t.Fatalf("expected 1 wave email, got %d %v", len(waveMsgs), err)
	}

	if _, err := svc.PlayEmails(ctx, 2, level.ID, 15, false); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("unlisted level should be hidden from other players, got %v", err)
	}
}

func TestDifficultyFromAnalysis(t *testing.T) {
	cases := []struct {
		truth      bool
		verdict    bool
		confidence float64
		want       int
	}{
		{true, true, 0.95, 1},
		{true, true, 0.6, 2},
		{false, false, 0.2, 3},
		{true, false, 0.4, 4},
		{false, true, 0.9, 5},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%v_%v_%v", tc.truth, tc.verdict, tc.confidence), func(t *testing.T) {
			got := core.DifficultyFromAnalysis(tc.truth, &core.Analysis{IsPhish: tc.verdict, Confidence: tc.confidence})
			if got != tc.want {
				t.Fatalf("got %d want %d", got, tc.want)
			}
		})
	}
}

func TestAddEmailRatesDifficulty(t *testing.T) {
	ctx := context.Background()

	analyzer := &stubAnalyzer{analysis: &core.Analysis{IsPhish: false, Confidence: 0.9}}
	svc := newPvpService(t, analyzer)
	level, err := svc.CreateLevel(ctx, 1, core.PvpLevelInput{Title: "Rated"})
	if err != nil {
		t.Fatalf("CreateLevel err: %v", err)
	}

	in := emailInput(true)
	in.Difficulty = 0
	email, err := svc.AddEmail(ctx, 1, level.ID, in)
	if err != nil {
		t.Fatalf("AddEmail err: %v", err)
	}
	if analyzer.calls != 1 || email.Difficulty != 5 {
		t.Fatalf("expected analyzer-rated difficulty 5, got %d after %d calls", email.Difficulty, analyzer.calls)
	}

	// An explicit difficulty skips the analyzer
	if _, err := svc.AddEmail(ctx, 1, level.ID, emailInput(false)); err != nil {
		t.Fatalf("AddEmail err: %v", err)
	}
	if analyzer.calls != 1 {
		t.Fatalf("analyzer should not be called for explicit difficulty")
	}

	analyzer.err = errors.New("model unavailable")
	email, err = svc.AddEmail(ctx, 1, level.ID, in)
	if err != nil {
		t.Fatalf("AddEmail err: %v", err)
	}
	if email.Difficulty != core.DefaultDifficulty {
		t.Fatalf("expected fallback difficulty, got %d", email.Difficulty)
	}
}
