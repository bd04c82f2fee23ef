package mailin_test

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"testing"

	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/adapters/mailin"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/adapters/store"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/allowlist"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/core"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"go.uber.org/zap/zaptest"
)

func TestParseRecipient(t *testing.T) {
	cases := []struct {
		addr string
		want mailin.Target
		ok   bool
	}{
		{"level-12+phish@sim.example", mailin.Target{LevelID: 12, IsPhish: true}, true},
		{"<Level-3+legit+wave@SIM.example>", mailin.Target{LevelID: 3, IsWave: true}, true},
		{"level-3+legit@other.example", mailin.Target{}, false},
		{"level-0+phish@sim.example", mailin.Target{}, false},
		{"level-x+phish@sim.example", mailin.Target{}, false},
		{"level-4+maybe@sim.example", mailin.Target{}, false},
		{"level-4+phish+later@sim.example", mailin.Target{}, false},
		{"level-4@sim.example", mailin.Target{}, false},
		{"nobody", mailin.Target{}, false},
	}
	for _, tc := range cases {
		got, err := mailin.ParseRecipient(tc.addr, "sim.example")
		if tc.ok != (err == nil) {
			t.Fatalf("ParseRecipient(%q) err = %v, want ok=%v", tc.addr, err, tc.ok)
		}
		if tc.ok && got != tc.want {
			t.Fatalf("ParseRecipient(%q) = %+v, want %+v", tc.addr, got, tc.want)
		}
		if !tc.ok && !errors.Is(err, mailin.ErrBadRecipient) {
			t.Fatalf("expected ErrBadRecipient, got %v", err)
		}
	}
}

type fixture struct {
	addr  string
	repo  *store.MemoryStore
	level *core.PvpLevel
}

func newFixture(t *testing.T, allowed []string) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	repo := store.NewMemoryStore(logger, 0, 0)
	t.Cleanup(func() { repo.Close() })

	pvp := core.NewPvpService(repo, core.NewDifficultyRater(nil, logger), logger)
	level, err := pvp.CreateLevel(context.Background(), 1, core.PvpLevelInput{Title: "Imported"})
	if err != nil {
		t.Fatalf("CreateLevel err: %v", err)
	}

	imp := mailin.NewImporter(pvp, allowlist.NewChecker(allowed, logger), mailin.Options{
		Domain:          "sim.example",
		Username:        "author",
		Password:        "secret",
		MaxMessageBytes: 1 << 20,
	}, logger)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen err: %v", err)
	}
	imp.Serve(l)
	t.Cleanup(func() { _ = imp.Stop(context.Background()) })

	return &fixture{addr: l.Addr().String(), repo: repo, level: level}
}

func (f *fixture) send(t *testing.T, user, pass, from string, to []string, body string) error {
	t.Helper()
	c, err := smtp.Dial(f.addr)
	if err != nil {
		t.Fatalf("Dial err: %v", err)
	}
	defer c.Close()

	if user != "" {
		if err := c.Auth(sasl.NewPlainClient("", user, pass)); err != nil {
			return err
		}
	}
	return c.SendMail(from, to, strings.NewReader(body))
}

const message = "From: \"Bank Security\" <security@bank-alerts.example>\r\n" +
	"Subject: Verify your account\r\n" +
	"\r\n" +
	"Your account is locked. Verify at https://bank-alerts.example/verify\r\n"

func TestImportEmail(t *testing.T) {
	f := newFixture(t, nil)

	to := []string{recipient(f.level.ID, "+phish"), recipient(f.level.ID, "+legit+wave")}
	if err := f.send(t, "author", "secret", "author@school.example", to, message); err != nil {
		t.Fatalf("SendMail err: %v", err)
	}

	emails, err := f.repo.ListPvpEmails(context.Background(), f.level.ID, nil, 0)
	if err != nil {
		t.Fatalf("ListPvpEmails err: %v", err)
	}
	if len(emails) != 2 {
		t.Fatalf("expected 2 imported emails, got %d", len(emails))
	}

	var phish, wave int
	for _, e := range emails {
		if e.SenderName != "Bank Security" || e.Subject != "Verify your account" {
			t.Fatalf("unexpected email: %+v", e)
		}
		if len(e.Links) != 1 || e.Links[0] != "https://bank-alerts.example/verify" {
			t.Fatalf("unexpected links: %v", e.Links)
		}
		if e.Difficulty != core.DefaultDifficulty {
			t.Fatalf("expected default difficulty, got %d", e.Difficulty)
		}
		if e.IsPhish {
			phish++
		}
		if e.IsWave {
			wave++
		}
	}
	if phish != 1 || wave != 1 {
		t.Fatalf("expected one phishing and one wave email, got phish=%d wave=%d", phish, wave)
	}
}

func TestImportRequiresAuth(t *testing.T) {
	f := newFixture(t, nil)

	err := f.send(t, "", "", "author@school.example", []string{recipient(f.level.ID, "+phish")}, message)
	assertCode(t, err, 530)

	err = f.send(t, "author", "wrong", "author@school.example", []string{recipient(f.level.ID, "+phish")}, message)
	if err == nil {
		t.Fatal("expected authentication to fail")
	}
}

func TestImportRejects(t *testing.T) {
	f := newFixture(t, []string{"school.example"})

	err := f.send(t, "author", "secret", "author@elsewhere.example", []string{recipient(f.level.ID, "+phish")}, message)
	assertCode(t, err, 550)

	err = f.send(t, "author", "secret", "author@school.example", []string{"someone@sim.example"}, message)
	assertCode(t, err, 550)

	err = f.send(t, "author", "secret", "author@school.example", []string{recipient(f.level.ID+100, "+phish")}, message)
	assertCode(t, err, 550)

	noLinks := "From: a@bank.example\r\nSubject: Hello\r\n\r\nJust text\r\n"
	err = f.send(t, "author", "secret", "author@school.example", []string{recipient(f.level.ID, "+legit")}, noLinks)
	assertCode(t, err, 550)

	emails, err := f.repo.ListPvpEmails(context.Background(), f.level.ID, nil, 0)
	if err != nil {
		t.Fatalf("ListPvpEmails err: %v", err)
	}
	if len(emails) != 0 {
		t.Fatalf("rejected mail should not be stored, got %d", len(emails))
	}
}

func recipient(levelID int64, suffix string) string {
	return "level-" + strconv.FormatInt(levelID, 10) + suffix + "@sim.example"
}

func assertCode(t *testing.T, err error, code int) {
	t.Helper()
	var smtpErr *smtp.SMTPError
	if !errors.As(err, &smtpErr) {
		t.Fatalf("expected SMTP error %d, got %v", code, err)
	}
	if smtpErr.Code != code {
		t.Fatalf("expected SMTP code %d, got %d (%s)", code, smtpErr.Code, smtpErr.Message)
	}
}
