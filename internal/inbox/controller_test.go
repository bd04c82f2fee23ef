package inbox

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/core"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/telemetry"
	"go.uber.org/zap/zaptest"
)

type fakeAPI struct {
	mu sync.Mutex

	initial    [][]core.Message
	wave       []core.Message
	initialErr error
	waveErr    error

	// when set, the first initial fetch waits for the channel to close
	holdFirstInitial chan struct{}
	// when set, wave fetches signal waveStarted and wait for waveGate
	waveGate    chan struct{}
	waveStarted chan struct{}

	decisionErr error
	startRunErr error

	initialCalls int
	waveCalls    int
	pvpCalls     int
	queries      []core.MessageQuery
	startRuns    []core.StartRunRequest
	decisions    []core.DecisionRequest
	interactions []core.InteractionRequest
	results      []bool
	completions  [][2]int
}

func (f *fakeAPI) batch(wave bool) ([]core.Message, chan struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if wave {
		f.waveCalls++
		if f.waveStarted != nil {
			select {
			case f.waveStarted <- struct{}{}:
			default:
			}
		}
		return append([]core.Message(nil), f.wave...), f.waveGate, f.waveErr
	}

	f.initialCalls++
	var hold chan struct{}
	if f.initialCalls == 1 {
		hold = f.holdFirstInitial
	}
	if f.initialErr != nil {
		return nil, hold, f.initialErr
	}
	i := f.initialCalls - 1
	if i >= len(f.initial) {
		i = len(f.initial) - 1
	}
	return append([]core.Message(nil), f.initial[i]...), hold, nil
}

func (f *fakeAPI) FetchMessages(ctx context.Context, creds core.Credentials, q core.MessageQuery) ([]core.Message, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()

	msgs, hold, err := f.batch(q.Wave)
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return msgs, err
}

func (f *fakeAPI) FetchPvpMessages(ctx context.Context, creds core.Credentials, levelID int64, limit int, wave bool) ([]core.Message, error) {
	f.mu.Lock()
	f.pvpCalls++
	f.mu.Unlock()
	return f.FetchMessages(ctx, creds, core.MessageQuery{Mode: core.ModePvP, Limit: limit, Wave: wave})
}

func (f *fakeAPI) SubmitDecision(ctx context.Context, creds core.Credentials, req core.DecisionRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decisions = append(f.decisions, req)
	return f.decisionErr
}

func (f *fakeAPI) SubmitInteraction(ctx context.Context, creds core.Credentials, req core.InteractionRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interactions = append(f.interactions, req)
	return nil
}

func (f *fakeAPI) SubmitResult(ctx context.Context, creds core.Credentials, correct bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, correct)
	return nil
}

func (f *fakeAPI) StartRun(ctx context.Context, creds core.Credentials, req core.StartRunRequest) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startRuns = append(f.startRuns, req)
	if f.startRunErr != nil {
		return 0, f.startRunErr
	}
	return int64(100 + len(f.startRuns)), nil
}

func (f *fakeAPI) CompleteRun(ctx context.Context, creds core.Credentials, runID int64, correct, incorrect int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completions = append(f.completions, [2]int{correct, incorrect})
	return nil
}

func (f *fakeAPI) FetchScenarios(ctx context.Context, creds core.Credentials) ([]core.Scenario, error) {
	return nil, nil
}

func (f *fakeAPI) FetchProfileMetrics(ctx context.Context, creds core.Credentials, userID string) (*core.ProfileMetrics, error) {
	return nil, nil
}

func (f *fakeAPI) counts() (initial, wave int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initialCalls, f.waveCalls
}

type recorder struct {
	mu          sync.Mutex
	waves       []int
	completions []Counters
	waveCh      chan int
	doneCh      chan Counters
}

func newRecorder() *recorder {
	return &recorder{waveCh: make(chan int, 8), doneCh: make(chan Counters, 8)}
}

func (r *recorder) WaveArrived(count int) {
	r.mu.Lock()
	r.waves = append(r.waves, count)
	r.mu.Unlock()
	r.waveCh <- count
}

func (r *recorder) RunCompleted(summary Counters) {
	r.mu.Lock()
	r.completions = append(r.completions, summary)
	r.mu.Unlock()
	r.doneCh <- summary
}

func (r *recorder) completed() []Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Counters(nil), r.completions...)
}

func msg(id int64, phish bool) core.Message {
	return core.Message{
		ID:          id,
		SenderName:  "Sender",
		SenderEmail: "sender@example.com",
		Subject:     "Subject",
		Body:        "Body",
		IsPhish:     phish,
		Difficulty:  2,
		Links:       []string{"https://example.com/login"},
		Attachments: []string{"invoice.pdf"},
	}
}

func msgs(ids ...int64) []core.Message {
	out := make([]core.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, msg(id, true))
	}
	return out
}

func ids(list []core.Message) []int64 {
	out := make([]int64, 0, len(list))
	for _, m := range list {
		out = append(out, m.ID)
	}
	return out
}

type harness struct {
	api      *fakeAPI
	ctrl     *Controller
	reporter *telemetry.Reporter
	rec      *recorder
}

func newHarness(t *testing.T, api *fakeAPI, opts Options) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	reporter := telemetry.NewReporter(logger, telemetry.Options{Workers: 1, QueueSize: 128})
	ctrl := NewController(api, reporter, opts, logger)
	rec := newRecorder()
	ctrl.SetListener(rec)

	t.Cleanup(func() {
		ctrl.Exit()
		reporter.Close()
	})
	return &harness{api: api, ctrl: ctrl, reporter: reporter, rec: rec}
}

// noTimer disables the background wave so tests control every trigger
func noTimer() Options {
	opts := DefaultOptions()
	opts.WaveDelay = 0
	return opts
}

func simParams(level int) RunParams {
	return RunParams{
		Mode:       core.ModeSimulation,
		ScenarioID: 1,
		Level:      level,
		Creds:      core.Credentials{UserID: "7", Token: "tok"},
	}
}

func TestRunParamsValidate(t *testing.T) {
	cases := []struct {
		name  string
		p     RunParams
		valid bool
	}{
		{"arcade", RunParams{Mode: core.ModeArcade}, true},
		{"simulation", simParams(1), true},
		{"simulation without level", RunParams{Mode: core.ModeSimulation, ScenarioID: 1}, false},
		{"simulation without scenario", RunParams{Mode: core.ModeSimulation, Level: 2}, false},
		{"pvp", RunParams{Mode: core.ModePvP, PvpLevelID: 4}, true},
		{"pvp without level", RunParams{Mode: core.ModePvP}, false},
		{"unknown mode", RunParams{Mode: "speedrun"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.p.Validate()
			if tc.valid && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.valid && !errors.Is(err, ErrInvalidParams) {
				t.Fatalf("expected ErrInvalidParams, got %v", err)
			}
		})
	}
}

func TestPhaseTransitions(t *testing.T) {
	legal := [][2]Phase{
		{PhaseIdle, PhaseLoading},
		{PhaseLoading, PhaseActive},
		{PhaseActive, PhaseWavePending},
		{PhaseWavePending, PhaseActive},
		{PhaseActive, PhaseComplete},
		{PhaseComplete, PhaseLoading},
		{PhaseWavePending, PhaseLoading},
		{PhaseComplete, PhaseIdle},
	}
	for _, tr := range legal {
		if !tr[0].CanTransition(tr[1]) {
			t.Fatalf("%s -> %s should be legal", tr[0], tr[1])
		}
	}

	illegal := [][2]Phase{
		{PhaseIdle, PhaseActive},
		{PhaseLoading, PhaseComplete},
		{PhaseWavePending, PhaseComplete},
		{PhaseComplete, PhaseActive},
	}
	for _, tr := range illegal {
		if tr[0].CanTransition(tr[1]) {
			t.Fatalf("%s -> %s should be illegal", tr[0], tr[1])
		}
	}
}

func TestAdmitWave(t *testing.T) {
	seen := newIDSet()
	for _, id := range []int64{1, 2, 3} {
		seen.add(id)
	}

	admitted := admitWave(msgs(2, 3, 4, 5), seen, msgs(1, 2, 3))

	if got := ids(admitted); !reflect.DeepEqual(got, []int64{4, 5}) {
		t.Fatalf("admitted %v, want [4 5]", got)
	}
	if got := seen.sorted(); !reflect.DeepEqual(got, []int64{1, 2, 3, 4, 5}) {
		t.Fatalf("seen %v, want [1 2 3 4 5]", got)
	}
}

func TestAdmitWaveSkipsDuplicatesInBatchAndInbox(t *testing.T) {
	seen := newIDSet()
	admitted := admitWave(msgs(7, 7, 8, 9), seen, msgs(9))

	if got := ids(admitted); !reflect.DeepEqual(got, []int64{7, 8}) {
		t.Fatalf("admitted %v, want [7 8]", got)
	}
}

func TestStartLoadsInitialBatch(t *testing.T) {
	api := &fakeAPI{initial: [][]core.Message{msgs(1, 2, 3, 3)}}
	h := newHarness(t, api, noTimer())

	if err := h.ctrl.Start(context.Background(), simParams(1)); err != nil {
		t.Fatalf("Start err: %v", err)
	}

	snap := h.ctrl.Snapshot()
	if snap.Phase != PhaseActive {
		t.Fatalf("expected active, got %s", snap.Phase)
	}
	if got := ids(snap.Messages); !reflect.DeepEqual(got, []int64{1, 2, 3}) {
		t.Fatalf("working set %v, duplicates should be dropped", got)
	}
	if snap.Counters != (Counters{Total: 3}) {
		t.Fatalf("unexpected counters: %+v", snap.Counters)
	}
	if snap.RunID == 0 {
		t.Fatal("simulation run should keep the server run id")
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.startRuns) != 1 || api.startRuns[0].EmailsTotal != 3 || api.startRuns[0].LevelNumber != 1 {
		t.Fatalf("unexpected StartRun calls: %+v", api.startRuns)
	}
	if q := api.queries[0]; q.Limit != 15 || q.Wave || q.ScenarioID != 1 {
		t.Fatalf("unexpected initial query: %+v", q)
	}
}

func TestArcadeIgnoresScenarioAndSkipsServerRun(t *testing.T) {
	api := &fakeAPI{initial: [][]core.Message{msgs(1, 2)}}
	h := newHarness(t, api, noTimer())

	err := h.ctrl.Start(context.Background(), RunParams{Mode: core.ModeArcade, ScenarioID: 5, Level: 4})
	if err != nil {
		t.Fatalf("Start err: %v", err)
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if q := api.queries[0]; q.ScenarioID != 0 || q.Level != 0 || q.Mode != core.ModeArcade {
		t.Fatalf("arcade query should ignore scenario and level: %+v", q)
	}
	if len(api.startRuns) != 0 {
		t.Fatal("arcade should not open a server run")
	}
}

func TestPvpUsesPvpContent(t *testing.T) {
	api := &fakeAPI{initial: [][]core.Message{msgs(1)}}
	h := newHarness(t, api, noTimer())

	if err := h.ctrl.Start(context.Background(), RunParams{Mode: core.ModePvP, PvpLevelID: 9}); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	if api.pvpCalls != 1 {
		t.Fatalf("expected one pvp fetch, got %d", api.pvpCalls)
	}
}

func TestFetchFailureLeavesEmptyRun(t *testing.T) {
	api := &fakeAPI{initial: [][]core.Message{msgs(1, 2)}}
	h := newHarness(t, api, noTimer())
	ctx := context.Background()

	if err := h.ctrl.Start(ctx, simParams(1)); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	if err := h.ctrl.RecordDecision(ctx, 1, true); err != nil {
		t.Fatalf("RecordDecision err: %v", err)
	}

	api.mu.Lock()
	api.initialErr = errors.New("connection refused")
	api.mu.Unlock()

	if err := h.ctrl.Replay(ctx); err == nil {
		t.Fatal("expected fetch error from replay")
	}

	snap := h.ctrl.Snapshot()
	if snap.Phase != PhaseActive || len(snap.Messages) != 0 {
		t.Fatalf("expected an empty active run, got %s with %d messages", snap.Phase, len(snap.Messages))
	}
	if snap.Counters != (Counters{}) {
		t.Fatalf("previous run state survived: %+v", snap.Counters)
	}
}

func TestDecisionsCompleteRunOnce(t *testing.T) {
	api := &fakeAPI{initial: [][]core.Message{{
		msg(1, true), msg(2, true), msg(3, true), msg(4, false), msg(5, false),
	}}}
	h := newHarness(t, api, noTimer())
	ctx := context.Background()

	if err := h.ctrl.Start(ctx, simParams(1)); err != nil {
		t.Fatalf("Start err: %v", err)
	}

	steps := []struct {
		id    int64
		guess bool
	}{
		{1, true},  // correct
		{2, true},  // correct
		{3, false}, // incorrect
		{4, false}, // correct
		{5, true},  // incorrect
	}
	for _, s := range steps {
		if !s.guess {
			if err := h.ctrl.RecordInteraction(ctx, s.id, core.InteractionLinkClick, "https://example.com/login"); err != nil {
				t.Fatalf("RecordInteraction err: %v", err)
			}
		}
		if err := h.ctrl.RecordDecision(ctx, s.id, s.guess); err != nil {
			t.Fatalf("RecordDecision(%d) err: %v", s.id, err)
		}
	}

	snap := h.ctrl.Snapshot()
	want := Counters{Total: 5, Correct: 3, Incorrect: 2}
	if !snap.Complete || snap.Summary == nil || *snap.Summary != want {
		t.Fatalf("unexpected completion: complete=%v summary=%+v", snap.Complete, snap.Summary)
	}
	if got := h.rec.completed(); len(got) != 1 || got[0] != want {
		t.Fatalf("RunCompleted fired %v", got)
	}

	if err := h.ctrl.RecordDecision(ctx, 5, true); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive after completion, got %v", err)
	}

	h.reporter.Flush()
	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.completions) != 1 || api.completions[0] != [2]int{3, 2} {
		t.Fatalf("expected one completion report of 3/2, got %v", api.completions)
	}
	if len(api.decisions) != 5 || len(api.results) != 5 {
		t.Fatalf("expected 5 decision and result reports, got %d and %d", len(api.decisions), len(api.results))
	}
	if api.decisions[0].Decision != core.DecisionReportPhish || api.decisions[2].Decision != core.DecisionMarkRead {
		t.Fatalf("unexpected decision kinds: %+v", api.decisions)
	}
	if api.decisions[0].RunID == 0 {
		t.Fatal("decision reports should carry the run id")
	}
}

func TestConcurrentDecisionsCompleteOnce(t *testing.T) {
	initial := make([]core.Message, 0, 20)
	for i := int64(1); i <= 20; i++ {
		initial = append(initial, msg(i, i%2 == 0))
	}
	api := &fakeAPI{initial: [][]core.Message{initial}}
	opts := noTimer()
	opts.InitialBatch = 20
	h := newHarness(t, api, opts)
	ctx := context.Background()

	if err := h.ctrl.Start(ctx, simParams(1)); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	if got := len(h.ctrl.Snapshot().Messages); got != 20 {
		t.Fatalf("expected 20 messages loaded, got %d", got)
	}

	var wg sync.WaitGroup
	for i := int64(1); i <= 20; i++ {
		wg.Add(2)
		id := i
		// Two racing verdicts per message: exactly one may be scored
		for k := 0; k < 2; k++ {
			go func() {
				defer wg.Done()
				err := h.ctrl.RecordDecision(ctx, id, true)
				if err != nil && !errors.Is(err, ErrUnknownMessage) && !errors.Is(err, ErrNotActive) {
					t.Errorf("RecordDecision err: %v", err)
				}
			}()
		}
	}
	wg.Wait()

	snap := h.ctrl.Snapshot()
	if snap.Counters.Correct+snap.Counters.Incorrect != 20 {
		t.Fatalf("each message must be scored once: %+v", snap.Counters)
	}
	if snap.Counters.Correct != 10 || snap.Counters.Incorrect != 10 {
		t.Fatalf("unexpected counters: %+v", snap.Counters)
	}

	h.reporter.Flush()
	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.completions) != 1 {
		t.Fatalf("expected exactly one completion report, got %d", len(api.completions))
	}
	if got := h.rec.completed(); len(got) != 1 {
		t.Fatalf("expected one RunCompleted, got %d", len(got))
	}
}

func TestOpenGate(t *testing.T) {
	api := &fakeAPI{initial: [][]core.Message{{msg(1, false), msg(2, false)}}}
	h := newHarness(t, api, noTimer())
	ctx := context.Background()

	if err := h.ctrl.Start(ctx, simParams(1)); err != nil {
		t.Fatalf("Start err: %v", err)
	}

	if h.ctrl.CanMarkSafe(1) || h.ctrl.CanMarkSafe(2) {
		t.Fatal("mark read should start disabled")
	}

	if err := h.ctrl.Select(1); err != nil {
		t.Fatalf("Select err: %v", err)
	}
	if err := h.ctrl.OpenLink(ctx, "https://evil.example.com"); !errors.Is(err, ErrUnknownLink) {
		t.Fatalf("expected ErrUnknownLink, got %v", err)
	}
	if err := h.ctrl.OpenLink(ctx, "https://example.com/login"); err != nil {
		t.Fatalf("OpenLink err: %v", err)
	}
	if err := h.ctrl.OpenLink(ctx, "https://example.com/login"); err != nil {
		t.Fatalf("second OpenLink err: %v", err)
	}

	if !h.ctrl.CanMarkSafe(1) {
		t.Fatal("mark read should be enabled after opening the link")
	}
	if h.ctrl.CanMarkSafe(2) {
		t.Fatal("an unopened message must stay gated")
	}
	if err := h.ctrl.RecordDecision(ctx, 2, false); !errors.Is(err, ErrOpenRequired) {
		t.Fatalf("expected ErrOpenRequired, got %v", err)
	}

	if err := h.ctrl.Decide(ctx, false); err != nil {
		t.Fatalf("Decide err: %v", err)
	}
	if h.ctrl.CanMarkSafe(1) {
		t.Fatal("a decided message has left the inbox")
	}
	if snap := h.ctrl.Snapshot(); snap.Selected != 0 || snap.Counters.Correct != 1 {
		t.Fatalf("unexpected state after decision: %+v", snap)
	}

	if err := h.ctrl.Select(2); err != nil {
		t.Fatalf("Select err: %v", err)
	}
	if err := h.ctrl.OpenAttachment(ctx, "invoice.pdf"); err != nil {
		t.Fatalf("OpenAttachment err: %v", err)
	}

	h.reporter.Flush()
	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.interactions) != 3 {
		t.Fatalf("expected 3 interaction reports, got %d", len(api.interactions))
	}
	if last := api.interactions[2]; last.Kind != core.InteractionAttachmentOpen || last.Value != "invoice.pdf" || last.Mode != core.ModeSimulation {
		t.Fatalf("unexpected interaction report: %+v", last)
	}
}

func TestArcadeHasNoGate(t *testing.T) {
	api := &fakeAPI{initial: [][]core.Message{{msg(1, false), msg(2, true)}}}
	h := newHarness(t, api, noTimer())
	ctx := context.Background()

	if err := h.ctrl.Start(ctx, RunParams{Mode: core.ModeArcade}); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	if !h.ctrl.CanMarkSafe(1) || !h.ctrl.CanMarkSafe(2) {
		t.Fatal("arcade mode never gates mark safe")
	}
	if err := h.ctrl.RecordInteraction(ctx, 1, core.InteractionLinkClick, "https://example.com/login"); err != nil {
		t.Fatalf("arcade interaction should be a silent no-op, got %v", err)
	}
	if err := h.ctrl.RecordDecision(ctx, 1, false); err != nil {
		t.Fatalf("RecordDecision err: %v", err)
	}
	if err := h.ctrl.TriggerWave(ctx); !errors.Is(err, ErrWavesUnsupported) {
		t.Fatalf("expected ErrWavesUnsupported, got %v", err)
	}

	h.reporter.Flush()
	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.interactions) != 0 {
		t.Fatal("arcade should not report interactions")
	}
	if api.decisions[0].Decision != core.DecisionMarkSafe {
		t.Fatalf("arcade negative verdict should be mark_safe, got %s", api.decisions[0].Decision)
	}
}

func TestTriggerWaveAdmitsUnseen(t *testing.T) {
	api := &fakeAPI{
		initial: [][]core.Message{msgs(1, 2, 3)},
		wave:    msgs(2, 3, 4, 5),
	}
	h := newHarness(t, api, noTimer())
	ctx := context.Background()

	if err := h.ctrl.Start(ctx, simParams(1)); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	if err := h.ctrl.TriggerWave(ctx); err != nil {
		t.Fatalf("TriggerWave err: %v", err)
	}

	snap := h.ctrl.Snapshot()
	if got := ids(snap.Messages); !reflect.DeepEqual(got, []int64{4, 5, 1, 2, 3}) {
		t.Fatalf("working set %v, want wave messages first", got)
	}
	if snap.Counters.Total != 5 || snap.WaveNotice != 2 || !reflect.DeepEqual(snap.Arrived, []int64{4, 5}) {
		t.Fatalf("unexpected wave state: %+v", snap)
	}
	if got := <-h.rec.waveCh; got != 2 {
		t.Fatalf("WaveArrived(%d), want 2", got)
	}

	h.ctrl.DismissWaveNotice()
	if snap := h.ctrl.Snapshot(); snap.WaveNotice != 0 || len(snap.Arrived) != 0 {
		t.Fatal("notice should be cleared")
	}

	// Second trigger is a no-op
	if err := h.ctrl.TriggerWave(ctx); err != nil {
		t.Fatalf("second TriggerWave err: %v", err)
	}
	if _, waves := api.counts(); waves != 1 {
		t.Fatalf("expected a single wave fetch, got %d", waves)
	}
	if snap := h.ctrl.Snapshot(); snap.Counters.Total != 5 || len(snap.Messages) != 5 {
		t.Fatalf("second wave changed the run: %+v", snap.Counters)
	}
}

func TestTriggerWaveKeepsUndecidedMessages(t *testing.T) {
	api := &fakeAPI{initial: [][]core.Message{msgs(1, 2)}, wave: msgs(3)}
	h := newHarness(t, api, noTimer())
	ctx := context.Background()

	if err := h.ctrl.Start(ctx, simParams(1)); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	if err := h.ctrl.Select(2); err != nil {
		t.Fatalf("Select err: %v", err)
	}
	if err := h.ctrl.TriggerWave(ctx); err != nil {
		t.Fatalf("TriggerWave err: %v", err)
	}
	snap := h.ctrl.Snapshot()
	if got := ids(snap.Messages); !reflect.DeepEqual(got, []int64{3, 1, 2}) {
		t.Fatalf("working set %v, want [3 1 2]", got)
	}
	if snap.Selected != 2 {
		t.Fatalf("selection should survive the wave, got %d", snap.Selected)
	}

	for _, id := range []int64{3, 1, 2} {
		if err := h.ctrl.RecordDecision(ctx, id, true); err != nil {
			t.Fatalf("RecordDecision(%d) err: %v", id, err)
		}
	}
	select {
	case summary := <-h.rec.doneCh:
		if summary != (Counters{Total: 3, Correct: 3}) {
			t.Fatalf("every assigned message must be scored: %+v", summary)
		}
	default:
		t.Fatal("run should have completed")
	}
}

func TestPendingLastMessageCannotBeDecidedAgain(t *testing.T) {
	api := &fakeAPI{
		initial:     [][]core.Message{msgs(1)},
		wave:        msgs(2),
		waveGate:    make(chan struct{}),
		waveStarted: make(chan struct{}, 1),
	}
	h := newHarness(t, api, noTimer())
	ctx := context.Background()

	if err := h.ctrl.Start(ctx, simParams(3)); err != nil {
		t.Fatalf("Start err: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- h.ctrl.RecordDecision(ctx, 1, true)
	}()

	select {
	case <-api.waveStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("last-message wave never started")
	}

	if err := h.ctrl.RecordDecision(ctx, 1, false); !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("expected ErrUnknownMessage for the pending message, got %v", err)
	}
	if err := h.ctrl.Select(1); err == nil {
		t.Fatal("pending message should not be selectable")
	}

	close(api.waveGate)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RecordDecision err: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("wave never resolved")
	}

	snap := h.ctrl.Snapshot()
	if snap.Counters != (Counters{Total: 2, Correct: 1}) {
		t.Fatalf("pending message must be scored once: %+v", snap.Counters)
	}
	if got := ids(snap.Messages); !reflect.DeepEqual(got, []int64{2}) {
		t.Fatalf("working set %v, want [2]", got)
	}
}

func TestPvpLastMessageDoesNotTriggerWave(t *testing.T) {
	api := &fakeAPI{initial: [][]core.Message{msgs(1)}, wave: msgs(2)}
	h := newHarness(t, api, noTimer())
	ctx := context.Background()

	p := RunParams{Mode: core.ModePvP, PvpLevelID: 9, Level: 5}
	if err := h.ctrl.Start(ctx, p); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	if err := h.ctrl.RecordDecision(ctx, 1, true); err != nil {
		t.Fatalf("RecordDecision err: %v", err)
	}
	if !h.ctrl.Snapshot().Complete {
		t.Fatal("pvp run should complete on its last message")
	}
	if _, waves := api.counts(); waves != 0 {
		t.Fatalf("expected no wave fetch, got %d", waves)
	}
}

func TestEmptyWaveIsSilentButFires(t *testing.T) {
	api := &fakeAPI{initial: [][]core.Message{msgs(1, 2)}, wave: msgs(1, 2)}
	h := newHarness(t, api, noTimer())
	ctx := context.Background()

	if err := h.ctrl.Start(ctx, simParams(1)); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	if err := h.ctrl.TriggerWave(ctx); err != nil {
		t.Fatalf("TriggerWave err: %v", err)
	}

	snap := h.ctrl.Snapshot()
	if snap.Counters.Total != 2 || snap.WaveNotice != 0 || len(snap.Messages) != 2 {
		t.Fatalf("empty wave should change nothing: %+v", snap)
	}
	if !snap.WaveFired {
		t.Fatal("wave should be marked as fired")
	}
	select {
	case n := <-h.rec.waveCh:
		t.Fatalf("unexpected WaveArrived(%d)", n)
	default:
	}
}

func TestLastMessageTriggersWave(t *testing.T) {
	api := &fakeAPI{initial: [][]core.Message{msgs(1)}, wave: msgs(1, 2, 3)}
	h := newHarness(t, api, noTimer())
	ctx := context.Background()

	if err := h.ctrl.Start(ctx, simParams(3)); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	if err := h.ctrl.RecordDecision(ctx, 1, true); err != nil {
		t.Fatalf("RecordDecision err: %v", err)
	}

	snap := h.ctrl.Snapshot()
	if snap.Complete {
		t.Fatal("run must not complete while the wave brings new mail")
	}
	if snap.Phase != PhaseActive {
		t.Fatalf("expected active after the wave resolved, got %s", snap.Phase)
	}
	if got := ids(snap.Messages); !reflect.DeepEqual(got, []int64{2, 3}) {
		t.Fatalf("working set %v, want [2 3]", got)
	}
	if snap.Counters != (Counters{Total: 3, Correct: 1}) {
		t.Fatalf("unexpected counters: %+v", snap.Counters)
	}

	for _, id := range []int64{2, 3} {
		if err := h.ctrl.RecordDecision(ctx, id, true); err != nil {
			t.Fatalf("RecordDecision err: %v", err)
		}
	}
	select {
	case summary := <-h.rec.doneCh:
		if summary != (Counters{Total: 3, Correct: 3}) {
			t.Fatalf("unexpected summary: %+v", summary)
		}
	default:
		t.Fatal("run should have completed")
	}
	if _, waves := api.counts(); waves != 1 {
		t.Fatalf("expected one wave fetch, got %d", waves)
	}
}

func TestLastMessageEmptyWaveCompletes(t *testing.T) {
	api := &fakeAPI{initial: [][]core.Message{msgs(1)}, waveErr: errors.New("timeout")}
	h := newHarness(t, api, noTimer())
	ctx := context.Background()

	if err := h.ctrl.Start(ctx, simParams(4)); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	if err := h.ctrl.RecordDecision(ctx, 1, false); !errors.Is(err, ErrOpenRequired) {
		t.Fatalf("expected ErrOpenRequired, got %v", err)
	}
	if err := h.ctrl.RecordDecision(ctx, 1, true); err != nil {
		t.Fatalf("RecordDecision err: %v", err)
	}

	snap := h.ctrl.Snapshot()
	if !snap.Complete || *snap.Summary != (Counters{Total: 1, Correct: 1}) {
		t.Fatalf("run should complete once the failed wave resolved: %+v", snap)
	}
}

func TestLastMessageBelowThresholdCompletes(t *testing.T) {
	api := &fakeAPI{initial: [][]core.Message{msgs(1)}, wave: msgs(2)}
	h := newHarness(t, api, noTimer())
	ctx := context.Background()

	if err := h.ctrl.Start(ctx, simParams(2)); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	if err := h.ctrl.RecordDecision(ctx, 1, true); err != nil {
		t.Fatalf("RecordDecision err: %v", err)
	}
	if !h.ctrl.Snapshot().Complete {
		t.Fatal("level below the threshold should complete without a wave")
	}
	if _, waves := api.counts(); waves != 0 {
		t.Fatalf("expected no wave fetch, got %d", waves)
	}
}

func TestTimerWave(t *testing.T) {
	api := &fakeAPI{initial: [][]core.Message{msgs(1)}, wave: msgs(2)}
	opts := DefaultOptions()
	opts.WaveDelay = 20 * time.Millisecond
	h := newHarness(t, api, opts)

	if err := h.ctrl.Start(context.Background(), simParams(1)); err != nil {
		t.Fatalf("Start err: %v", err)
	}

	select {
	case n := <-h.rec.waveCh:
		if n != 1 {
			t.Fatalf("WaveArrived(%d), want 1", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timer wave never arrived")
	}

	if got := ids(h.ctrl.Snapshot().Messages); !reflect.DeepEqual(got, []int64{2, 1}) {
		t.Fatalf("working set %v, want [2 1]", got)
	}
}

func TestTimerAndLastMessageShareGuard(t *testing.T) {
	api := &fakeAPI{initial: [][]core.Message{msgs(1)}, wave: msgs(2)}
	opts := DefaultOptions()
	opts.WaveDelay = 30 * time.Millisecond
	h := newHarness(t, api, opts)
	ctx := context.Background()

	if err := h.ctrl.Start(ctx, simParams(3)); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	if err := h.ctrl.RecordDecision(ctx, 1, true); err != nil {
		t.Fatalf("RecordDecision err: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if _, waves := api.counts(); waves != 1 {
		t.Fatalf("expected one wave across both triggers, got %d", waves)
	}
	if snap := h.ctrl.Snapshot(); snap.Counters.Total != 2 || len(snap.Messages) != 1 {
		t.Fatalf("timer should not inject a second wave: %+v", snap)
	}
}

func TestCompletionWaitsForTimerWaveInFlight(t *testing.T) {
	api := &fakeAPI{
		initial:     [][]core.Message{msgs(1)},
		wave:        msgs(2),
		waveGate:    make(chan struct{}),
		waveStarted: make(chan struct{}, 1),
	}
	opts := DefaultOptions()
	opts.WaveDelay = 10 * time.Millisecond
	h := newHarness(t, api, opts)
	ctx := context.Background()

	if err := h.ctrl.Start(ctx, simParams(1)); err != nil {
		t.Fatalf("Start err: %v", err)
	}

	select {
	case <-api.waveStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("timer wave never started")
	}

	if err := h.ctrl.RecordDecision(ctx, 1, true); err != nil {
		t.Fatalf("RecordDecision err: %v", err)
	}
	snap := h.ctrl.Snapshot()
	if snap.Complete || snap.Phase != PhaseWavePending {
		t.Fatalf("expected wave-pending while the wave is in flight, got %s", snap.Phase)
	}

	close(api.waveGate)
	select {
	case <-h.rec.waveCh:
	case <-time.After(2 * time.Second):
		t.Fatal("wave never merged")
	}

	snap = h.ctrl.Snapshot()
	if snap.Phase != PhaseActive || !reflect.DeepEqual(ids(snap.Messages), []int64{2}) {
		t.Fatalf("expected the wave message after merge, got %s %v", snap.Phase, ids(snap.Messages))
	}
	if err := h.ctrl.RecordDecision(ctx, 2, true); err != nil {
		t.Fatalf("RecordDecision err: %v", err)
	}
	if snap := h.ctrl.Snapshot(); !snap.Complete || snap.Summary.Total != 2 {
		t.Fatalf("unexpected completion: %+v", snap.Summary)
	}
}

func TestReplayResetsRun(t *testing.T) {
	api := &fakeAPI{
		initial: [][]core.Message{msgs(1, 2, 3), msgs(1, 2, 3, 4)},
		wave:    msgs(5),
	}
	h := newHarness(t, api, noTimer())
	ctx := context.Background()

	if err := h.ctrl.Start(ctx, simParams(1)); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	if err := h.ctrl.RecordInteraction(ctx, 2, core.InteractionLinkClick, "https://example.com/login"); err != nil {
		t.Fatalf("RecordInteraction err: %v", err)
	}
	if err := h.ctrl.RecordDecision(ctx, 1, true); err != nil {
		t.Fatalf("RecordDecision err: %v", err)
	}
	if err := h.ctrl.TriggerWave(ctx); err != nil {
		t.Fatalf("TriggerWave err: %v", err)
	}
	firstRun := h.ctrl.Snapshot().RunID

	if err := h.ctrl.Replay(ctx); err != nil {
		t.Fatalf("Replay err: %v", err)
	}

	snap := h.ctrl.Snapshot()
	if snap.Counters != (Counters{Total: 4}) {
		t.Fatalf("unexpected counters after replay: %+v", snap.Counters)
	}
	if len(snap.Opened) != 0 || snap.WaveFired || snap.WaveNotice != 0 {
		t.Fatalf("ledgers and wave state should reset: %+v", snap)
	}
	if snap.RunID == firstRun {
		t.Fatal("replay should open a new server run")
	}

	// The seen ledger only holds the new batch, so the old wave message is admissible again
	if err := h.ctrl.TriggerWave(ctx); err != nil {
		t.Fatalf("TriggerWave err: %v", err)
	}
	if got := h.ctrl.Snapshot().Counters.Total; got != 5 {
		t.Fatalf("expected wave to admit message 5 again, total %d", got)
	}
}

func TestReplayBeforeStart(t *testing.T) {
	h := newHarness(t, &fakeAPI{}, noTimer())
	if err := h.ctrl.Replay(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}

func TestStaleInitialBatchDiscarded(t *testing.T) {
	api := &fakeAPI{
		initial:          [][]core.Message{msgs(1, 2, 3), msgs(7, 8)},
		holdFirstInitial: make(chan struct{}),
	}
	h := newHarness(t, api, noTimer())
	ctx := context.Background()

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- h.ctrl.Start(ctx, simParams(1))
	}()

	// Wait for the first fetch to be in flight
	deadline := time.Now().Add(2 * time.Second)
	for {
		if initial, _ := api.counts(); initial == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first start never fetched")
		}
		time.Sleep(time.Millisecond)
	}

	if err := h.ctrl.Start(ctx, simParams(2)); err != nil {
		t.Fatalf("second Start err: %v", err)
	}
	close(api.holdFirstInitial)

	if err := <-firstDone; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}

	snap := h.ctrl.Snapshot()
	if got := ids(snap.Messages); !reflect.DeepEqual(got, []int64{7, 8}) {
		t.Fatalf("stale batch leaked into the run: %v", got)
	}
	if snap.Params.Level != 2 {
		t.Fatalf("expected level 2 params, got %d", snap.Params.Level)
	}
}

func TestTelemetryFailureDoesNotBlock(t *testing.T) {
	api := &fakeAPI{
		initial:     [][]core.Message{msgs(1, 2)},
		decisionErr: errors.New("500"),
		startRunErr: errors.New("503"),
	}
	h := newHarness(t, api, noTimer())
	ctx := context.Background()

	if err := h.ctrl.Start(ctx, simParams(1)); err != nil {
		t.Fatalf("a failed server run must not fail the start: %v", err)
	}
	for _, id := range []int64{1, 2} {
		if err := h.ctrl.RecordDecision(ctx, id, true); err != nil {
			t.Fatalf("RecordDecision err: %v", err)
		}
	}

	snap := h.ctrl.Snapshot()
	if !snap.Complete || snap.Counters.Correct != 2 {
		t.Fatalf("local scoring should be authoritative: %+v", snap)
	}

	h.reporter.Flush()
	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.completions) != 0 {
		t.Fatal("no completion report without a server run")
	}
}

func TestExitStopsTimer(t *testing.T) {
	api := &fakeAPI{initial: [][]core.Message{msgs(1)}, wave: msgs(2)}
	opts := DefaultOptions()
	opts.WaveDelay = 20 * time.Millisecond
	h := newHarness(t, api, opts)
	ctx := context.Background()

	if err := h.ctrl.Start(ctx, simParams(1)); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	h.ctrl.Exit()

	time.Sleep(80 * time.Millisecond)
	if _, waves := api.counts(); waves != 0 {
		t.Fatalf("timer fired after exit: %d wave fetches", waves)
	}
	snap := h.ctrl.Snapshot()
	if snap.Phase != PhaseIdle || len(snap.Messages) != 0 {
		t.Fatalf("exit should leave an empty idle controller: %s", snap.Phase)
	}
	if err := h.ctrl.RecordDecision(ctx, 1, true); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
}

func TestSelectValidation(t *testing.T) {
	api := &fakeAPI{initial: [][]core.Message{msgs(1)}}
	h := newHarness(t, api, noTimer())
	ctx := context.Background()

	if err := h.ctrl.Select(1); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive before start, got %v", err)
	}
	if err := h.ctrl.Start(ctx, simParams(1)); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	if err := h.ctrl.Select(42); !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("expected ErrUnknownMessage, got %v", err)
	}
	if err := h.ctrl.Decide(ctx, true); !errors.Is(err, ErrNoSelection) {
		t.Fatalf("expected ErrNoSelection, got %v", err)
	}
	if err := h.ctrl.OpenLink(ctx, "https://example.com/login"); !errors.Is(err, ErrNoSelection) {
		t.Fatalf("expected ErrNoSelection, got %v", err)
	}

	if err := h.ctrl.Select(1); err != nil {
		t.Fatalf("Select err: %v", err)
	}
	snap := h.ctrl.Snapshot()
	if m, ok := snap.SelectedMessage(); !ok || m.ID != 1 {
		t.Fatal("snapshot should expose the selected message")
	}
	h.ctrl.ClearSelection()
	if h.ctrl.Snapshot().Selected != 0 {
		t.Fatal("selection should be cleared")
	}
}
