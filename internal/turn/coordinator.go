package turn

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Raikerian/go-rtc-translate/internal/config"
	"github.com/Raikerian/go-rtc-translate/internal/envelope"
	"github.com/Raikerian/go-rtc-translate/internal/metrics"
	"github.com/Raikerian/go-rtc-translate/internal/session"
	"github.com/Raikerian/go-rtc-translate/internal/signaling"
	"github.com/Raikerian/go-rtc-translate/pkg/util"
)

var (
	// ErrNoSession rejects microphone presses without an established session.
	ErrNoSession = errors.New("no active session")
	// ErrLanguageConflict means both sections would share one language.
	ErrLanguageConflict = errors.New("language already used by the other section")
)

// Session is the part of the session machine the coordinator drives.
type Session interface {
	SessionID() string
	Muted() bool
	MuteMicrophone()
	UnmuteMicrophone()
	Events() <-chan session.Event
	OnSessionEnded(fn func())
}

// LanguageSetter sends the translation direction to the backend.
type LanguageSetter interface {
	SetLanguage(ctx context.Context, req signaling.LanguageRequest) error
}

// Snapshot is the UI-facing view of the conversation.
type Snapshot struct {
	State          State   `json:"state"`
	SessionID      string  `json:"webrtc_id"`
	Connected      bool    `json:"connected"`
	Muted          bool    `json:"muted"`
	InputSection   Section `json:"input_section"`
	TopLanguage    string  `json:"top_language"`
	BottomLanguage string  `json:"bottom_language"`
	TopText        string  `json:"top_text"`
	BottomText     string  `json:"bottom_text"`
	ShowTopWave    bool    `json:"show_top_wave"`
	ShowBottomWave bool    `json:"show_bottom_wave"`
}

// Listener is told about every snapshot change, in order.
type Listener interface {
	HandleSnapshot(s Snapshot)
}

// Coordinator owns the conversation state machine.
type Coordinator struct {
	logger          *zap.Logger
	metrics         *metrics.Metrics
	session         Session
	languages       LanguageSetter
	history         *History
	silence         *util.OneShot
	silenceDuration time.Duration
	epsilon         float64
	now             func() time.Time
	languageTimeout time.Duration

	mu           sync.Mutex
	state        State
	inputSection Section
	topLang      string
	bottomLang   string
	topText      string
	bottomText   string
	turn         uint64
	// quietSince marks the first silent playback envelope of the current
	// quiet run while RESPONDING; zero once sound is heard.
	quietSince time.Time

	// notifyMu keeps snapshot delivery in state-change order.
	notifyMu  sync.Mutex
	listeners []Listener

	inflight sync.WaitGroup
}

// NewCoordinator creates an idle coordinator with TOP as the input section.
func NewCoordinator(
	logger *zap.Logger,
	cfg *config.Config,
	m *metrics.Metrics,
	sess Session,
	languages LanguageSetter,
) (*Coordinator, error) {
	history, err := NewHistory(cfg.Turn.HistorySize)
	if err != nil {
		return nil, fmt.Errorf("create translation history: %w", err)
	}

	c := &Coordinator{
		logger:          logger.Named("turn"),
		metrics:         m,
		session:         sess,
		languages:       languages,
		history:         history,
		silenceDuration: cfg.Turn.SilenceDuration,
		epsilon:         cfg.Turn.SilenceEpsilon,
		now:             time.Now,
		languageTimeout: cfg.Turn.LanguageTimeout,
		state:           StateIdle,
		inputSection:    SectionTop,
		topLang:         cfg.Turn.TopLanguage,
		bottomLang:      cfg.Turn.BottomLanguage,
	}
	c.silence = util.NewOneShot(cfg.Turn.SilenceDuration, c.onSilence)
	sess.OnSessionEnded(c.handleSessionEnded)

	return c, nil
}

// AddListener registers a snapshot listener.
func (c *Coordinator) AddListener(l Listener) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.listeners = append(c.listeners, l)
}

// State returns the current conversation state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Snapshot returns the current UI view.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.snapshotLocked()
}

func (c *Coordinator) snapshotLocked() Snapshot {
	id := c.session.SessionID()
	s := Snapshot{
		State:          c.state,
		SessionID:      id,
		Connected:      id != "",
		Muted:          c.session.Muted(),
		InputSection:   c.inputSection,
		TopLanguage:    c.topLang,
		BottomLanguage: c.bottomLang,
		TopText:        c.topText,
		BottomText:     c.bottomText,
	}

	// the speaker's half shows the mic wave, the other half the reply wave
	topIn := c.inputSection == SectionTop
	s.ShowTopWave = (topIn && c.state == StateSpeaking) || (!topIn && c.state == StateResponding)
	s.ShowBottomWave = (!topIn && c.state == StateSpeaking) || (topIn && c.state == StateResponding)

	return s
}

// History returns recent turns, oldest first.
func (c *Coordinator) History() []Record {
	return c.history.Records()
}

// PressMic handles the microphone control of a section. While the
// translator responds it returns to IDLE; otherwise it starts a new turn
// with section as the input side.
func (c *Coordinator) PressMic(section Section) error {
	id := c.session.SessionID()
	if id == "" {
		c.logger.Debug("Ignoring mic press without session")

		return ErrNoSession
	}

	c.mu.Lock()
	if c.state == StateResponding {
		c.silence.Disarm()
		c.transitionLocked(StateIdle)
		c.mu.Unlock()
		c.notify()

		return nil
	}

	c.topText, c.bottomText = "", ""
	c.inputSection = section
	c.turn++
	req := signaling.LanguageRequest{WebRTCID: id}
	if section == SectionTop {
		req.SourceLanguage, req.TargetLanguage = c.topLang, c.bottomLang
	} else {
		req.SourceLanguage, req.TargetLanguage = c.bottomLang, c.topLang
	}
	c.transitionLocked(StateSpeaking)
	c.mu.Unlock()

	c.sendLanguage(req)
	c.session.UnmuteMicrophone()
	c.notify()

	return nil
}

// SetLanguage changes the language of one section. Both sections must keep
// distinct languages.
func (c *Coordinator) SetLanguage(section Section, code string) error {
	if code == "" {
		return errors.New("language code is empty")
	}

	c.mu.Lock()
	other := c.bottomLang
	if section == SectionBottom {
		other = c.topLang
	}
	if code == other {
		c.mu.Unlock()

		return fmt.Errorf("%w: %s", ErrLanguageConflict, code)
	}
	if section == SectionTop {
		c.topLang = code
	} else {
		c.bottomLang = code
	}
	c.mu.Unlock()

	c.logger.Info("Section language changed", zap.String("section", string(section)), zap.String("language", code))
	c.notify()

	return nil
}

// HandleEvent applies one data channel event.
func (c *Coordinator) HandleEvent(ev session.Event) {
	switch ev.Type {
	case session.EventControl:
		c.handleControl(ev.Control)
	case session.EventTranslation:
		c.handleTranslation(ev.Translation)
	}
}

func (c *Coordinator) handleControl(ctrl session.Control) {
	switch ctrl {
	case session.ControlPauseDetected:
		c.session.MuteMicrophone()
		c.notify()
	case session.ControlResponseStarting:
		c.mu.Lock()
		changed := c.transitionLocked(StateResponding)
		c.mu.Unlock()
		if changed {
			c.notify()
		}
	}
}

func (c *Coordinator) handleTranslation(t session.Translation) {
	c.mu.Lock()
	topIn := c.inputSection == SectionTop
	if topIn {
		c.topText, c.bottomText = t.Input, t.Output
	} else {
		c.topText, c.bottomText = t.Output, t.Input
	}

	rec := Record{
		Turn:         c.turn,
		InputSection: c.inputSection,
		Input:        t.Input,
		Output:       t.Output,
		UpdatedAt:    time.Now(),
	}
	if topIn {
		rec.SourceLanguage, rec.TargetLanguage = c.topLang, c.bottomLang
	} else {
		rec.SourceLanguage, rec.TargetLanguage = c.bottomLang, c.topLang
	}
	c.mu.Unlock()

	c.history.Add(rec.Turn, rec)
	c.notify()
}

// HandleEnvelope implements envelope.Sink. Only playback envelopes matter:
// sustained silence while RESPONDING returns the conversation to IDLE.
func (c *Coordinator) HandleEnvelope(ev envelope.Event) {
	if !ev.IsOutput() {
		return
	}

	silent := c.isSilent(ev.Envelope)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateResponding {
		return
	}
	if silent {
		if c.quietSince.IsZero() {
			c.quietSince = c.now()
		}
		c.silence.Arm()
	} else {
		c.quietSince = time.Time{}
		c.silence.Disarm()
	}
}

func (c *Coordinator) isSilent(values []float64) bool {
	for _, v := range values {
		if math.Abs(v) >= c.epsilon {
			return false
		}
	}

	return true
}

// onSilence may run after a loud envelope already cancelled the countdown,
// so it re-checks that the quiet run has lasted the full duration.
func (c *Coordinator) onSilence() {
	c.mu.Lock()
	changed := false
	quiet := !c.quietSince.IsZero() && c.now().Sub(c.quietSince) >= c.silenceDuration
	if c.state == StateResponding && quiet {
		changed = c.transitionLocked(StateIdle)
	}
	c.mu.Unlock()

	if changed {
		c.logger.Debug("Playback silent, turn finished")
		c.notify()
	}
}

// Run applies session events until ctx is done.
func (c *Coordinator) Run(ctx context.Context) {
	events := c.session.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			c.HandleEvent(ev)
		}
	}
}

// Close cancels the silence timer and waits for pending language updates.
func (c *Coordinator) Close() {
	c.silence.Stop()
	c.inflight.Wait()
}

func (c *Coordinator) handleSessionEnded() {
	c.logger.Info("Session ended, returning to idle")
	c.Reset()
}

// Reset returns to IDLE with empty texts, used when a session ends.
func (c *Coordinator) Reset() {
	c.silence.Disarm()

	c.mu.Lock()
	c.topText, c.bottomText = "", ""
	c.transitionLocked(StateIdle)
	c.mu.Unlock()

	c.notify()
}

func (c *Coordinator) transitionLocked(to State) bool {
	from := c.state
	if from == to {
		return false
	}
	c.state = to
	c.quietSince = time.Time{}
	c.metrics.RecordTransition(from.String(), to.String())
	c.logger.Info("Conversation state changed", zap.Stringer("from", from), zap.Stringer("to", to))

	return true
}

// sendLanguage posts the direction in the background; failures are logged
// and not retried.
func (c *Coordinator) sendLanguage(req signaling.LanguageRequest) {
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), c.languageTimeout)
		defer cancel()

		if err := c.languages.SetLanguage(ctx, req); err != nil {
			c.metrics.LanguageUpdates.WithLabelValues("error").Inc()
			c.logger.Warn("Failed to set translation language",
				zap.String("source", req.SourceLanguage),
				zap.String("target", req.TargetLanguage),
				zap.Error(err))

			return
		}

		c.metrics.LanguageUpdates.WithLabelValues("ok").Inc()
		c.logger.Debug("Translation language set",
			zap.String("source", req.SourceLanguage),
			zap.String("target", req.TargetLanguage))
	}()
}

func (c *Coordinator) notify() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	snap := c.Snapshot()
	for _, l := range c.listeners {
		l.HandleSnapshot(snap)
	}
}
