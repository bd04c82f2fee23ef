package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/inbox"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/utils"
)

const playHelp = `Commands:
  list              show the inbox
  open <n>          read message n
  link <k>          follow link k of the open message
  attach <k>        open attachment k of the open message
  phish             report the open message as phishing
  safe              mark the open message as safe
  back              close the open message
  replay            restart the level
  help              show this help
  quit              leave the level`

// player drives a controller from line commands
type player struct {
	ctrl *inbox.Controller

	mu  sync.Mutex
	out io.Writer
}

func newPlayer(ctrl *inbox.Controller, out io.Writer) *player {
	p := &player{ctrl: ctrl, out: out}
	ctrl.SetListener(p)
	return p
}

func (p *player) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

// WaveArrived implements inbox.Listener
func (p *player) WaveArrived(count int) {
	p.printf("\n*** %d new message(s) arrived. Type `list` to see them. ***\n", count)
}

// RunCompleted implements inbox.Listener
func (p *player) RunCompleted(summary inbox.Counters) {
	p.printf("\nLevel complete: %d correct, %d incorrect out of %d.\nType `replay` to try again or `quit` to leave.\n",
		summary.Correct, summary.Incorrect, summary.Total)
}

// start begins a run. A failed load still leaves an empty inbox to replay from;
// only invalid parameters end the session.
func (p *player) start(ctx context.Context, params inbox.RunParams) error {
	err := p.ctrl.Start(ctx, params)
	if errors.Is(err, inbox.ErrInvalidParams) {
		return err
	}
	if err != nil {
		p.printf("%s\n", describe(err))
	}
	return nil
}

// loop reads commands until quit or end of input
func (p *player) loop(ctx context.Context, in io.Reader) error {
	p.list()
	scanner := bufio.NewScanner(in)
	for {
		p.printf("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if p.handle(ctx, scanner.Text()) {
			return nil
		}
	}
}

// handle runs one command and reports whether the player asked to quit
func (p *player) handle(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, arg := strings.ToLower(fields[0]), ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	var err error
	switch cmd {
	case "list", "ls":
		p.ctrl.DismissWaveNotice()
		p.list()
	case "open":
		err = p.open(arg)
	case "link":
		err = p.follow(ctx, arg, false)
	case "attach":
		err = p.follow(ctx, arg, true)
	case "phish", "report":
		err = p.decide(ctx, true)
	case "safe":
		err = p.decide(ctx, false)
	case "back":
		p.ctrl.ClearSelection()
	case "replay":
		if err = p.ctrl.Replay(ctx); err == nil {
			p.list()
		}
	case "help", "?":
		p.printf("%s\n", playHelp)
	case "quit", "exit", "q":
		return true
	default:
		p.printf("Unknown command %q, type `help` for a list.\n", cmd)
	}

	if err != nil {
		p.printf("%s\n", describe(err))
	}
	return false
}

func (p *player) list() {
	snap := p.ctrl.Snapshot()

	var b strings.Builder
	fmt.Fprintf(&b, "\nInbox (%s): %d message(s), %d correct, %d incorrect\n",
		snap.Params.Mode, len(snap.Messages), snap.Counters.Correct, snap.Counters.Incorrect)
	for i, m := range snap.Messages {
		marker := " "
		if m.ID == snap.Selected {
			marker = ">"
		}
		fmt.Fprintf(&b, "%s %2d. %-24s %s\n", marker, i+1, utils.Snippet(m.SenderName, 24), utils.Snippet(m.Subject, 48))
		fmt.Fprintf(&b, "       %s\n", utils.Snippet(m.Body, utils.SnippetLength))
	}
	if len(snap.Messages) == 0 && !snap.Complete {
		b.WriteString("No messages available. Type `replay` to try again.\n")
	}
	if snap.Complete && snap.Summary != nil {
		fmt.Fprintf(&b, "Level complete: %d of %d correct.\n", snap.Summary.Correct, snap.Summary.Total)
	}
	p.printf("%s", b.String())
}

func (p *player) open(arg string) error {
	snap := p.ctrl.Snapshot()
	n, err := index(arg, len(snap.Messages))
	if err != nil {
		return err
	}
	m := snap.Messages[n]
	if err := p.ctrl.Select(m.ID); err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\nFrom:    %s <%s>\nSubject: %s\n\n%s\n", m.SenderName, m.SenderEmail, m.Subject, m.Body)
	for i, l := range m.Links {
		fmt.Fprintf(&b, "  [link %d] %s\n", i+1, l)
	}
	for i, a := range m.Attachments {
		fmt.Fprintf(&b, "  [attach %d] %s\n", i+1, a)
	}
	p.printf("%s", b.String())
	return nil
}

func (p *player) follow(ctx context.Context, arg string, attachment bool) error {
	snap := p.ctrl.Snapshot()
	m, ok := snap.SelectedMessage()
	if !ok {
		return inbox.ErrNoSelection
	}

	items := m.Links
	if attachment {
		items = m.Attachments
	}
	n, err := index(arg, len(items))
	if err != nil {
		return err
	}

	if attachment {
		if err := p.ctrl.OpenAttachment(ctx, items[n]); err != nil {
			return err
		}
		p.printf("Opened %s.\n", items[n])
		return nil
	}
	if err := p.ctrl.OpenLink(ctx, items[n]); err != nil {
		return err
	}
	p.printf("Visited %s.\n", items[n])
	return nil
}

func (p *player) decide(ctx context.Context, malicious bool) error {
	snap := p.ctrl.Snapshot()
	m, ok := snap.SelectedMessage()
	if !ok {
		return inbox.ErrNoSelection
	}
	if err := p.ctrl.Decide(ctx, malicious); err != nil {
		return err
	}
	if malicious == m.IsPhish {
		p.printf("Correct.\n")
	} else {
		p.printf("Incorrect.\n")
	}
	return nil
}

func index(arg string, n int) (int, error) {
	i, err := strconv.Atoi(arg)
	if err != nil || i < 1 || i > n {
		return 0, fmt.Errorf("pick a number between 1 and %d", n)
	}
	return i - 1, nil
}

func describe(err error) string {
	switch {
	case errors.Is(err, inbox.ErrOpenRequired):
		return "Check the message first: follow a link or open an attachment before marking it safe."
	case errors.Is(err, inbox.ErrNoSelection):
		return "Open a message first with `open <n>`."
	case errors.Is(err, inbox.ErrNotActive):
		return "The level is not accepting actions right now."
	default:
		return err.Error()
	}
}
