package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/config"
)

func TestDefaults(t *testing.T) {
	cfg := config.NewFromViper(config.NewEmptyViper())

	st, err := cfg.GetStore()
	if err != nil {
		t.Fatalf("GetStore err: %v", err)
	}
	if st.Type != "memory" || st.RunTTL != 24*time.Hour || st.CleanupFrequency != time.Hour {
		t.Fatalf("unexpected store defaults: %+v", st)
	}

	in, err := cfg.GetInbox()
	if err != nil {
		t.Fatalf("GetInbox err: %v", err)
	}
	if in.InitialBatch != 15 || in.WaveBatch != 50 || in.WaveDelay != 45*time.Second || in.HighLevelThreshold != 3 {
		t.Fatalf("unexpected inbox defaults: %+v", in)
	}

	if got := cfg.GetAnalyzer().Provider; got != "none" {
		t.Fatalf("expected analyzer provider none, got %q", got)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phishsim.yaml")
	data := []byte("store:\n  type: sqlite\n  run_ttl: 2h\ninbox:\n  wave_delay: 5s\nmailin:\n  allowed_domains: [example.com]\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile err: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	st, err := cfg.GetStore()
	if err != nil {
		t.Fatalf("GetStore err: %v", err)
	}
	if st.Type != "sqlite" || st.RunTTL != 2*time.Hour {
		t.Fatalf("file values not applied: %+v", st)
	}
	in, err := cfg.GetInbox()
	if err != nil {
		t.Fatalf("GetInbox err: %v", err)
	}
	if in.WaveDelay != 5*time.Second || in.WaveBatch != 50 {
		t.Fatalf("unexpected inbox config: %+v", in)
	}
	if got := cfg.GetMailin().AllowedDomains; len(got) != 1 || got[0] != "example.com" {
		t.Fatalf("unexpected allowed domains: %v", got)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing explicit config file")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("PHISHSIM_INBOX_WAVE_BATCH", "7")
	cfg := config.NewFromViper(config.NewEmptyViper())

	in, err := cfg.GetInbox()
	if err != nil {
		t.Fatalf("GetInbox err: %v", err)
	}
	if in.WaveBatch != 7 {
		t.Fatalf("expected env override 7, got %d", in.WaveBatch)
	}
}

func TestBadDuration(t *testing.T) {
	cfg := config.NewFromViper(config.NewEmptyViper())
	cfg.Set("inbox.wave_delay", "soon")
	if _, err := cfg.GetInbox(); err == nil {
		t.Fatal("expected an error for an invalid duration")
	}
}
