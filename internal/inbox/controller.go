package inbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/core"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/telemetry"
	"go.uber.org/zap"
)

var (
	// ErrInvalidParams is returned when run parameters are incomplete for the mode
	ErrInvalidParams = errors.New("invalid run parameters")
	// ErrNotStarted is returned by Replay before any run was started
	ErrNotStarted = errors.New("no run has been started")
	// ErrNotActive is returned when the run does not accept the action in its current phase
	ErrNotActive = errors.New("run is not active")
	// ErrUnknownMessage is returned for a message outside the working set
	ErrUnknownMessage = errors.New("message is not in the inbox")
	// ErrNoSelection is returned when an action needs a selected message
	ErrNoSelection = errors.New("no message selected")
	// ErrOpenRequired is returned when marking a message safe before opening its link or attachment
	ErrOpenRequired = errors.New("open the link or attachment before marking the message as read")
	// ErrWavesUnsupported is returned when a wave is requested in arcade mode
	ErrWavesUnsupported = errors.New("mode does not support waves")
	// ErrUnknownLink is returned when opening a link the message does not carry
	ErrUnknownLink = errors.New("message has no such link")
	// ErrUnknownAttachment is returned when opening an attachment the message does not carry
	ErrUnknownAttachment = errors.New("message has no such attachment")
	// ErrSuperseded is returned when a newer start or exit replaced the run being loaded
	ErrSuperseded = errors.New("run superseded")
)

// Options tunes batch sizes and wave timing
type Options struct {
	InitialBatch       int
	WaveBatch          int
	WaveDelay          time.Duration
	HighLevelThreshold int
	FetchTimeout       time.Duration
}

// DefaultOptions returns the standard run settings
func DefaultOptions() Options {
	return Options{
		InitialBatch:       15,
		WaveBatch:          50,
		WaveDelay:          45 * time.Second,
		HighLevelThreshold: 3,
		FetchTimeout:       15 * time.Second,
	}
}

// RunParams identifies what a run plays and who plays it
type RunParams struct {
	Mode       core.Mode
	ScenarioID int64
	Level      int
	PvpLevelID int64
	Creds      core.Credentials
}

// Validate checks the parameters required by the mode
func (p RunParams) Validate() error {
	switch p.Mode {
	case core.ModeArcade:
		return nil
	case core.ModeSimulation:
		if p.ScenarioID <= 0 || p.Level <= 0 {
			return fmt.Errorf("%w: simulation needs a scenario and a level", ErrInvalidParams)
		}
		return nil
	case core.ModePvP:
		if p.PvpLevelID <= 0 {
			return fmt.Errorf("%w: pvp needs a level id", ErrInvalidParams)
		}
		return nil
	default:
		return fmt.Errorf("%w: %w", ErrInvalidParams, core.ErrInvalidMode)
	}
}

// Counters are the per-run tallies
type Counters struct {
	Total     int `json:"total"`
	Correct   int `json:"correct"`
	Incorrect int `json:"incorrect"`
}

// Listener receives run events after the controller has released its lock
type Listener interface {
	WaveArrived(count int)
	RunCompleted(summary Counters)
}

// Controller owns the state of a single inbox run.
// All state changes happen under mu; network calls never hold it.
type Controller struct {
	api      core.ContentAPI
	reporter *telemetry.Reporter
	opts     Options
	logger   *zap.Logger

	mu       sync.Mutex
	listener Listener

	gen       uint64
	params    RunParams
	hasParams bool
	runCtx    context.Context
	runCancel context.CancelFunc
	timer     *time.Timer

	phase    Phase
	working  []core.Message
	selected int64
	counters Counters
	seen     idSet
	opened   idSet

	waveFired      bool
	waveInFlight   bool
	pendingRemoval int64
	waveNotice     int
	arrived        []int64

	runID        int64
	runCompleted bool
	summary      *Counters
}

// NewController creates an idle controller
func NewController(api core.ContentAPI, reporter *telemetry.Reporter, opts Options, logger *zap.Logger) *Controller {
	def := DefaultOptions()
	if opts.InitialBatch <= 0 {
		opts.InitialBatch = def.InitialBatch
	}
	if opts.WaveBatch <= 0 {
		opts.WaveBatch = def.WaveBatch
	}
	if opts.HighLevelThreshold <= 0 {
		opts.HighLevelThreshold = def.HighLevelThreshold
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = def.FetchTimeout
	}

	return &Controller{
		api:      api,
		reporter: reporter,
		opts:     opts,
		logger:   logger,
		phase:    PhaseIdle,
		seen:     newIDSet(),
		opened:   newIDSet(),
	}
}

// SetListener registers the run event listener
func (c *Controller) SetListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = l
}

// setPhase must be called with mu held
func (c *Controller) setPhase(next Phase) {
	if !c.phase.CanTransition(next) {
		c.logger.DPanic("Illegal run phase transition",
			zap.Stringer("from", c.phase),
			zap.Stringer("to", next))
	}
	c.phase = next
}

// events collects listener callbacks to run once mu is released
type events struct {
	listener   Listener
	waveCount  int
	completion *Counters
}

func (e events) fire() {
	if e.listener == nil {
		return
	}
	if e.waveCount > 0 {
		e.listener.WaveArrived(e.waveCount)
	}
	if e.completion != nil {
		e.listener.RunCompleted(*e.completion)
	}
}

// resetLocked discards every piece of per-run state and starts a new generation
func (c *Controller) resetLocked() uint64 {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.runCancel != nil {
		c.runCancel()
	}
	c.runCtx, c.runCancel = context.WithCancel(context.Background())

	c.working = nil
	c.selected = 0
	c.counters = Counters{}
	c.seen = newIDSet()
	c.opened = newIDSet()
	c.waveFired = false
	c.waveInFlight = false
	c.pendingRemoval = 0
	c.waveNotice = 0
	c.arrived = nil
	c.runID = 0
	c.runCompleted = false
	c.summary = nil
	return c.gen
}

// Start begins a new run, discarding whatever run came before
func (c *Controller) Start(ctx context.Context, p RunParams) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.Mode == core.ModeArcade {
		p.ScenarioID, p.Level, p.PvpLevelID = 0, 0, 0
	}

	c.mu.Lock()
	gen := c.resetLocked()
	c.params = p
	c.hasParams = true
	c.setPhase(PhaseLoading)
	c.mu.Unlock()

	c.logger.Info("Starting run",
		zap.String("mode", string(p.Mode)),
		zap.Int64("scenario_id", p.ScenarioID),
		zap.Int("level", p.Level),
		zap.Int64("pvp_level_id", p.PvpLevelID),
		zap.Uint64("generation", gen))

	msgs, fetchErr := c.fetch(ctx, p, c.opts.InitialBatch, false)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		c.logger.Debug("Discarding superseded initial batch", zap.Uint64("generation", gen))
		return ErrSuperseded
	}

	if fetchErr != nil {
		c.setPhase(PhaseActive)
		c.mu.Unlock()
		c.logger.Warn("Failed to load messages", zap.Error(fetchErr), zap.String("mode", string(p.Mode)))
		return fmt.Errorf("failed to load messages: %w", fetchErr)
	}

	msgs = dedupe(msgs)
	c.working = msgs
	for _, m := range msgs {
		c.seen.add(m.ID)
	}
	c.counters.Total = len(msgs)
	c.setPhase(PhaseActive)
	c.armWaveTimerLocked(gen)
	total := len(msgs)
	c.mu.Unlock()

	c.logger.Info("Run active",
		zap.Int("message_count", total),
		zap.Uint64("generation", gen))

	if p.Mode == core.ModeSimulation {
		c.startServerRun(ctx, gen, p, total)
	}
	return nil
}

// startServerRun opens the server-side run record; failures only cost the completion report
func (c *Controller) startServerRun(ctx context.Context, gen uint64, p RunParams, total int) {
	runID, err := c.api.StartRun(ctx, p.Creds, core.StartRunRequest{
		Mode:        p.Mode,
		ScenarioID:  p.ScenarioID,
		LevelNumber: p.Level,
		EmailsTotal: total,
	})
	if err != nil {
		c.logger.Warn("Failed to start server run", zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	c.runID = runID

	// The run may already have finished while the record was being created
	if c.phase == PhaseComplete {
		c.reportCompletionLocked()
	}
}

// Replay restarts the run with the parameters of the last start
func (c *Controller) Replay(ctx context.Context) error {
	c.mu.Lock()
	p, ok := c.params, c.hasParams
	c.mu.Unlock()

	if !ok {
		return ErrNotStarted
	}
	return c.Start(ctx, p)
}

// Exit abandons the run and returns to idle
func (c *Controller) Exit() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.resetLocked()
	c.runCancel()
	c.setPhase(PhaseIdle)
}

func (c *Controller) fetch(ctx context.Context, p RunParams, limit int, wave bool) ([]core.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)
	defer cancel()

	var msgs []core.Message
	var err error
	if p.Mode == core.ModePvP {
		msgs, err = c.api.FetchPvpMessages(ctx, p.Creds, p.PvpLevelID, limit, wave)
	} else {
		msgs, err = c.api.FetchMessages(ctx, p.Creds, core.MessageQuery{
			Mode:       p.Mode,
			ScenarioID: p.ScenarioID,
			Level:      p.Level,
			Limit:      limit,
			Wave:       wave,
		})
	}
	if err != nil {
		return nil, err
	}
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

// Select marks a message as the one being read
func (c *Controller) Select(id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.phase.acceptsActions() {
		return ErrNotActive
	}
	if indexOf(c.working, id) < 0 || id == c.pendingRemoval {
		return ErrUnknownMessage
	}
	c.selected = id
	return nil
}

// ClearSelection deselects the current message
func (c *Controller) ClearSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = 0
}

// Decide records a verdict on the selected message
func (c *Controller) Decide(ctx context.Context, guessMalicious bool) error {
	c.mu.Lock()
	id := c.selected
	c.mu.Unlock()

	if id == 0 {
		return ErrNoSelection
	}
	return c.RecordDecision(ctx, id, guessMalicious)
}

// RecordDecision scores a verdict on a message in the working set.
// Deciding the last message of a high level may first inject a wave; the call
// returns once that wave has resolved.
func (c *Controller) RecordDecision(ctx context.Context, id int64, guessMalicious bool) error {
	c.mu.Lock()

	// The just-decided last message waits for the wave and cannot be scored again
	if id != 0 && id == c.pendingRemoval {
		c.mu.Unlock()
		return ErrUnknownMessage
	}
	if c.phase != PhaseActive {
		c.mu.Unlock()
		return ErrNotActive
	}
	idx := indexOf(c.working, id)
	if idx < 0 {
		c.mu.Unlock()
		return ErrUnknownMessage
	}
	msg := c.working[idx]
	p := c.params

	if !guessMalicious && p.Mode.TracksOpens() && !c.opened.has(id) {
		c.mu.Unlock()
		return ErrOpenRequired
	}

	correct := guessMalicious == msg.IsPhish
	if correct {
		c.counters.Correct++
	} else {
		c.counters.Incorrect++
	}
	if c.selected == id {
		c.selected = 0
	}
	c.reportDecisionLocked(msg.ID, guessMalicious, correct)

	if len(c.working) == 1 && !c.waveFired && p.Mode == core.ModeSimulation && p.Level >= c.opts.HighLevelThreshold {
		c.waveFired = true
		c.waveInFlight = true
		c.pendingRemoval = id
		c.setPhase(PhaseWavePending)
		gen := c.gen
		c.mu.Unlock()

		c.logger.Info("Last message decided, injecting wave",
			zap.Int64("email_id", id),
			zap.Int("level", p.Level))
		c.runWave(ctx, gen)
		return nil
	}

	c.working = append(c.working[:idx:idx], c.working[idx+1:]...)

	var ev events
	if len(c.working) == 0 {
		if c.waveInFlight {
			// A timer wave is still being fetched; completion waits for it
			c.setPhase(PhaseWavePending)
		} else {
			ev = c.completeLocked()
		}
	}
	c.mu.Unlock()

	ev.fire()
	return nil
}

// TriggerWave injects the wave batch; only the first call of a run does anything.
// Every message already in the inbox stays there to be decided.
func (c *Controller) TriggerWave(ctx context.Context) error {
	c.mu.Lock()

	if !c.params.Mode.SupportsWaves() {
		c.mu.Unlock()
		return ErrWavesUnsupported
	}
	if c.waveFired {
		c.mu.Unlock()
		c.logger.Debug("Wave already fired this run")
		return nil
	}
	if c.phase != PhaseActive {
		c.mu.Unlock()
		return ErrNotActive
	}

	c.waveFired = true
	c.waveInFlight = true
	gen := c.gen
	c.mu.Unlock()

	c.runWave(ctx, gen)
	return nil
}

// armWaveTimerLocked schedules the one-shot background wave for a generation
func (c *Controller) armWaveTimerLocked(gen uint64) {
	if !c.params.Mode.SupportsWaves() || c.opts.WaveDelay <= 0 {
		return
	}
	runCtx := c.runCtx

	c.timer = time.AfterFunc(c.opts.WaveDelay, func() {
		c.mu.Lock()
		if c.gen != gen || c.waveFired || c.phase != PhaseActive {
			c.mu.Unlock()
			return
		}
		c.waveFired = true
		c.waveInFlight = true
		c.mu.Unlock()

		c.logger.Debug("Wave timer fired", zap.Uint64("generation", gen))
		c.runWave(runCtx, gen)
	})
}

// runWave fetches and merges the wave for generation gen.
// Wave failures are silent to the player; the run carries on without new mail.
func (c *Controller) runWave(ctx context.Context, gen uint64) {
	c.mu.Lock()
	p := c.params
	c.mu.Unlock()

	batch, err := c.fetch(ctx, p, c.opts.WaveBatch, true)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		c.logger.Debug("Discarding superseded wave", zap.Uint64("generation", gen))
		return
	}

	c.waveInFlight = false
	if err != nil {
		c.logger.Warn("Failed to fetch wave", zap.Error(err))
		batch = nil
	}

	admitted := admitWave(batch, c.seen, c.working)
	if c.pendingRemoval != 0 {
		c.working = remove(c.working, c.pendingRemoval)
		c.pendingRemoval = 0
	}

	ev := events{listener: c.listener}
	if len(admitted) > 0 {
		merged := make([]core.Message, 0, len(admitted)+len(c.working))
		merged = append(merged, admitted...)
		c.working = append(merged, c.working...)
		c.counters.Total += len(admitted)
		c.waveNotice = len(admitted)
		c.arrived = make([]int64, 0, len(admitted))
		for _, m := range admitted {
			c.arrived = append(c.arrived, m.ID)
		}
		ev.waveCount = len(admitted)
	}

	if c.phase == PhaseWavePending {
		c.setPhase(PhaseActive)
	}
	if c.phase == PhaseActive && len(c.working) == 0 {
		ev.completion = c.completeLocked().completion
	}
	c.mu.Unlock()

	c.logger.Info("Wave resolved",
		zap.Int("fetched_count", len(batch)),
		zap.Int("admitted_count", len(admitted)))

	ev.fire()
}

// completeLocked finishes the run and reports completion once
func (c *Controller) completeLocked() events {
	c.setPhase(PhaseComplete)
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	summary := c.counters
	c.summary = &summary
	c.selected = 0
	c.reportCompletionLocked()

	c.logger.Info("Run complete",
		zap.Int("total", summary.Total),
		zap.Int("correct", summary.Correct),
		zap.Int("incorrect", summary.Incorrect))

	return events{listener: c.listener, completion: &summary}
}

// OpenLink records that the player followed a link in the selected message
func (c *Controller) OpenLink(ctx context.Context, url string) error {
	id, err := c.selectedHas(func(m *core.Message) bool { return m.HasLink(url) }, ErrUnknownLink)
	if err != nil {
		return err
	}
	return c.RecordInteraction(ctx, id, core.InteractionLinkClick, url)
}

// OpenAttachment records that the player opened an attachment of the selected message
func (c *Controller) OpenAttachment(ctx context.Context, name string) error {
	id, err := c.selectedHas(func(m *core.Message) bool { return m.HasAttachment(name) }, ErrUnknownAttachment)
	if err != nil {
		return err
	}
	return c.RecordInteraction(ctx, id, core.InteractionAttachmentOpen, name)
}

func (c *Controller) selectedHas(match func(*core.Message) bool, missing error) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.selected == 0 {
		return 0, ErrNoSelection
	}
	idx := indexOf(c.working, c.selected)
	if idx < 0 {
		return 0, ErrUnknownMessage
	}
	if !match(&c.working[idx]) {
		return 0, missing
	}
	return c.selected, nil
}

// RecordInteraction marks a message as opened; arcade runs do not track opens
func (c *Controller) RecordInteraction(ctx context.Context, id int64, kind core.InteractionKind, value string) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown interaction %q", core.ErrInvalidArgument, kind)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.params.Mode.TracksOpens() {
		return nil
	}
	if !c.phase.acceptsActions() {
		return ErrNotActive
	}
	if indexOf(c.working, id) < 0 || id == c.pendingRemoval {
		return ErrUnknownMessage
	}

	c.opened.add(id)

	p := c.params
	c.reporter.Report("submit_interaction", func(ctx context.Context) error {
		return c.api.SubmitInteraction(ctx, p.Creds, core.InteractionRequest{
			EmailID: id,
			Kind:    kind,
			Value:   value,
			Mode:    p.Mode,
		})
	})
	return nil
}

// CanMarkSafe reports whether a negative verdict is allowed for the message
func (c *Controller) CanMarkSafe(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseActive || indexOf(c.working, id) < 0 {
		return false
	}
	if !c.params.Mode.TracksOpens() {
		return true
	}
	return c.opened.has(id)
}

// DismissWaveNotice clears the new-mail notification
func (c *Controller) DismissWaveNotice() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waveNotice = 0
	c.arrived = nil
}

func (c *Controller) reportDecisionLocked(emailID int64, guessMalicious, correct bool) {
	p := c.params
	runID := c.runID
	kind := core.DecisionKindFor(p.Mode, guessMalicious)

	c.reporter.Report("submit_result", func(ctx context.Context) error {
		return c.api.SubmitResult(ctx, p.Creds, correct)
	})
	c.reporter.Report("submit_decision", func(ctx context.Context) error {
		return c.api.SubmitDecision(ctx, p.Creds, core.DecisionRequest{
			RunID:      runID,
			EmailID:    emailID,
			Decision:   kind,
			WasCorrect: correct,
		})
	})
}

func (c *Controller) reportCompletionLocked() {
	if c.params.Mode != core.ModeSimulation || c.runID == 0 || c.runCompleted || c.summary == nil {
		return
	}
	c.runCompleted = true

	creds := c.params.Creds
	runID := c.runID
	summary := *c.summary
	c.reporter.Report("complete_run", func(ctx context.Context) error {
		return c.api.CompleteRun(ctx, creds, runID, summary.Correct, summary.Incorrect)
	})
}
