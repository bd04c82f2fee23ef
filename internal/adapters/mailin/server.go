package mailin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/allowlist"
	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/core"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EmailImporter stores an imported message in a player-authored level
type EmailImporter interface {
	ImportEmail(ctx context.Context, levelID int64, in core.PvpEmailInput) (*core.PvpEmail, error)
}

// Options configures the SMTP importer
type Options struct {
	ListenAddress   string
	Domain          string
	Username        string
	Password        string
	MaxMessageBytes int64
	ImportTimeout   time.Duration
}

// Target is the level slot a recipient address selects
type Target struct {
	LevelID int64
	IsPhish bool
	IsWave  bool
}

var (
	// ErrBadRecipient is returned for addresses that do not name a level slot
	ErrBadRecipient = errors.New("recipient must look like level-<id>+phish|legit[+wave]@domain")

	errAuthRequired   = &smtp.SMTPError{Code: 530, EnhancedCode: smtp.EnhancedCode{5, 7, 0}, Message: "Authentication required"}
	errBadCredentials = &smtp.SMTPError{Code: 535, EnhancedCode: smtp.EnhancedCode{5, 7, 8}, Message: "Invalid credentials"}
	errSenderRefused  = &smtp.SMTPError{Code: 550, EnhancedCode: smtp.EnhancedCode{5, 7, 1}, Message: "Sender domain not allowed"}
)

// ParseRecipient maps an address such as level-12+phish+wave@domain onto a Target
func ParseRecipient(addr, domain string) (Target, error) {
	addr = strings.ToLower(strings.Trim(strings.TrimSpace(addr), "<>"))
	at := strings.LastIndexByte(addr, '@')
	if at < 0 {
		return Target{}, ErrBadRecipient
	}
	local, host := addr[:at], addr[at+1:]
	if domain != "" && host != strings.ToLower(domain) {
		return Target{}, ErrBadRecipient
	}

	parts := strings.Split(local, "+")
	if len(parts) < 2 || len(parts) > 3 || !strings.HasPrefix(parts[0], "level-") {
		return Target{}, ErrBadRecipient
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(parts[0], "level-"), 10, 64)
	if err != nil || id <= 0 {
		return Target{}, ErrBadRecipient
	}

	t := Target{LevelID: id}
	switch parts[1] {
	case "phish":
		t.IsPhish = true
	case "legit":
	default:
		return Target{}, ErrBadRecipient
	}
	if len(parts) == 3 {
		if parts[2] != "wave" {
			return Target{}, ErrBadRecipient
		}
		t.IsWave = true
	}
	return t, nil
}

// Importer receives authored emails over SMTP and adds them to levels
type Importer struct {
	importer EmailImporter
	allow    *allowlist.Checker
	opts     Options
	logger   *zap.Logger
	server   *smtp.Server
}

// NewImporter creates an SMTP importer
func NewImporter(importer EmailImporter, allow *allowlist.Checker, opts Options, logger *zap.Logger) *Importer {
	if opts.ImportTimeout <= 0 {
		opts.ImportTimeout = 30 * time.Second
	}

	imp := &Importer{
		importer: importer,
		allow:    allow,
		opts:     opts,
		logger:   logger,
	}

	s := smtp.NewServer(imp)
	s.Addr = opts.ListenAddress
	s.Domain = opts.Domain
	s.ReadTimeout = 30 * time.Second
	s.WriteTimeout = 30 * time.Second
	s.MaxMessageBytes = opts.MaxMessageBytes
	s.MaxRecipients = 20
	s.AllowInsecureAuth = true
	imp.server = s

	return imp
}

// Start listens on the configured address in the background
func (i *Importer) Start() error {
	l, err := net.Listen("tcp", i.opts.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen for mail: %w", err)
	}
	i.Serve(l)
	return nil
}

// Serve accepts connections from l in the background
func (i *Importer) Serve(l net.Listener) {
	i.logger.Info("Mail importer starting", zap.String("address", l.Addr().String()))
	go func() {
		if err := i.server.Serve(l); err != nil && !errors.Is(err, smtp.ErrServerClosed) {
			i.logger.Error("SMTP server error", zap.Error(err))
		}
	}()
}

// Stop closes the listener and waits for open sessions up to ctx
func (i *Importer) Stop(ctx context.Context) error {
	return i.server.Shutdown(ctx)
}

// NewSession implements smtp.Backend
func (i *Importer) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &session{importer: i, remote: c.Conn().RemoteAddr().String()}, nil
}

func (i *Importer) authRequired() bool {
	return i.opts.Username != ""
}

type session struct {
	importer      *Importer
	remote        string
	authenticated bool
	sender        string
	targets       []Target
}

var _ smtp.AuthSession = (*session)(nil)

// AuthMechanisms implements smtp.AuthSession
func (s *session) AuthMechanisms() []string {
	if !s.importer.authRequired() {
		return nil
	}
	return []string{sasl.Plain}
}

// Auth implements smtp.AuthSession
func (s *session) Auth(mech string) (sasl.Server, error) {
	if mech != sasl.Plain {
		return nil, smtp.ErrAuthUnknownMechanism
	}
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if identity != "" && identity != username {
			return errBadCredentials
		}
		if username != s.importer.opts.Username || password != s.importer.opts.Password {
			s.importer.logger.Warn("Mail import authentication failed",
				zap.String("remote_addr", s.remote),
				zap.String("username", username))
			return errBadCredentials
		}
		s.authenticated = true
		return nil
	}), nil
}

func (s *session) Reset() {
	s.sender = ""
	s.targets = nil
}

func (s *session) Mail(from string, _ *smtp.MailOptions) error {
	if s.importer.authRequired() && !s.authenticated {
		return errAuthRequired
	}
	if !s.importer.allow.Allows(from) {
		return errSenderRefused
	}
	s.sender = from
	return nil
}

func (s *session) Rcpt(to string, _ *smtp.RcptOptions) error {
	t, err := ParseRecipient(to, s.importer.opts.Domain)
	if err != nil {
		return &smtp.SMTPError{Code: 550, EnhancedCode: smtp.EnhancedCode{5, 1, 1}, Message: err.Error()}
	}
	s.targets = append(s.targets, t)
	return nil
}

func (s *session) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read message data: %w", err)
	}

	pm, err := parseMail(raw)
	if err != nil {
		s.importer.logger.Warn("Rejected unparseable message", zap.Error(err), zap.String("sender", s.sender))
		return &smtp.SMTPError{Code: 554, EnhancedCode: smtp.EnhancedCode{5, 6, 0}, Message: "Message could not be parsed"}
	}

	processingID := uuid.NewString()
	in := toInput(pm, s.sender)

	ctx, cancel := context.WithTimeout(context.Background(), s.importer.opts.ImportTimeout)
	defer cancel()

	for _, t := range s.targets {
		in.IsPhish = t.IsPhish
		in.IsWave = t.IsWave

		email, err := s.importer.importer.ImportEmail(ctx, t.LevelID, in)
		if err != nil {
			s.importer.logger.Warn("Failed to import email",
				zap.Error(err),
				zap.String("processing_id", processingID),
				zap.Int64("level_id", t.LevelID))
			return importError(err)
		}

		s.importer.logger.Info("Imported email",
			zap.String("processing_id", processingID),
			zap.Int64("level_id", t.LevelID),
			zap.Int64("email_id", email.ID),
			zap.Bool("is_phish", email.IsPhish),
			zap.Bool("is_wave", email.IsWave),
			zap.Int("difficulty", email.Difficulty))
	}
	return nil
}

func (s *session) Logout() error {
	return nil
}

// toInput builds the level email; attachments win over links found in the body
func toInput(pm *parsedMail, envelopeFrom string) core.PvpEmailInput {
	in := core.PvpEmailInput{
		SenderName:  pm.FromName,
		SenderEmail: pm.FromAddress,
		Subject:     pm.Subject,
		Body:        pm.Body,
		Category:    pm.Category,
		Links:       pm.Links,
		Attachments: pm.Attachments,
	}
	if in.SenderEmail == "" {
		in.SenderEmail = envelopeFrom
	}
	if in.SenderName == "" {
		if at := strings.IndexByte(in.SenderEmail, '@'); at > 0 {
			in.SenderName = in.SenderEmail[:at]
		}
	}
	if len(in.Attachments) > 0 {
		in.Links = nil
	}
	return in
}

func importError(err error) error {
	var v *core.ValidationError
	switch {
	case errors.As(err, &v):
		return &smtp.SMTPError{Code: 550, EnhancedCode: smtp.EnhancedCode{5, 6, 0}, Message: v.Error()}
	case errors.Is(err, core.ErrNotFound):
		return &smtp.SMTPError{Code: 550, EnhancedCode: smtp.EnhancedCode{5, 1, 1}, Message: "No such level"}
	default:
		return &smtp.SMTPError{Code: 451, EnhancedCode: smtp.EnhancedCode{4, 3, 0}, Message: "Import failed, try again later"}
	}
}
