package inbox

import "github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/core"

// Snapshot is a read-only copy of a run for presentation
type Snapshot struct {
	Phase      Phase
	Params     RunParams
	Messages   []core.Message
	Selected   int64
	Counters   Counters
	Complete   bool
	Summary    *Counters
	WaveNotice int
	Arrived    []int64
	WaveFired  bool
	RunID      int64
	Opened     []int64
}

// SelectedMessage returns the selected message, if any
func (s *Snapshot) SelectedMessage() (core.Message, bool) {
	if s.Selected == 0 {
		return core.Message{}, false
	}
	i := indexOf(s.Messages, s.Selected)
	if i < 0 {
		return core.Message{}, false
	}
	return s.Messages[i], true
}

// Snapshot copies the current run state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := make([]core.Message, len(c.working))
	copy(msgs, c.working)

	snap := Snapshot{
		Phase:      c.phase,
		Params:     c.params,
		Messages:   msgs,
		Selected:   c.selected,
		Counters:   c.counters,
		Complete:   c.phase == PhaseComplete,
		WaveNotice: c.waveNotice,
		Arrived:    append([]int64(nil), c.arrived...),
		WaveFired:  c.waveFired,
		RunID:      c.runID,
		Opened:     c.opened.sorted(),
	}
	if c.summary != nil {
		summary := *c.summary
		snap.Summary = &summary
	}
	return snap
}
