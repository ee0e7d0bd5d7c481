package turn

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Raikerian/go-rtc-translate/internal/config"
	"github.com/Raikerian/go-rtc-translate/internal/envelope"
	"github.com/Raikerian/go-rtc-translate/internal/metrics"
	"github.com/Raikerian/go-rtc-translate/internal/session"
	"github.com/Raikerian/go-rtc-translate/internal/signaling"
)

type fakeSession struct {
	mu      sync.Mutex
	id      string
	muted   bool
	events  chan session.Event
	onEnded []func()
}

func (s *fakeSession) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.id
}

func (s *fakeSession) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.muted
}

func (s *fakeSession) MuteMicrophone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = true
}

func (s *fakeSession) UnmuteMicrophone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = false
}

func (s *fakeSession) Events() <-chan session.Event { return s.events }

func (s *fakeSession) OnSessionEnded(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnded = append(s.onEnded, fn)
}

// end drops the session the way a failed peer connection does.
func (s *fakeSession) end() {
	s.mu.Lock()
	s.id = ""
	s.muted = true
	listeners := s.onEnded
	s.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

type fakeLanguages struct {
	err  error
	reqs chan signaling.LanguageRequest
}

func (l *fakeLanguages) SetLanguage(_ context.Context, req signaling.LanguageRequest) error {
	l.reqs <- req

	return l.err
}

type snapshotRecorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *snapshotRecorder) HandleSnapshot(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *snapshotRecorder) last() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.snaps[len(r.snaps)-1]
}

type fixture struct {
	c     *Coordinator
	sess  *fakeSession
	langs *fakeLanguages
	m     *metrics.Metrics
	snaps *snapshotRecorder
}

func newFixture(t *testing.T, silence time.Duration) *fixture {
	t.Helper()

	cfg := config.Default()
	cfg.Turn.SilenceDuration = silence

	f := &fixture{
		sess:  &fakeSession{id: "rtc-1", muted: true, events: make(chan session.Event, 8)},
		langs: &fakeLanguages{reqs: make(chan signaling.LanguageRequest, 8)},
		m:     metrics.New(prometheus.NewRegistry()),
		snaps: &snapshotRecorder{},
	}

	c, err := NewCoordinator(zaptest.NewLogger(t), cfg, f.m, f.sess, f.langs)
	require.NoError(t, err)
	c.AddListener(f.snaps)
	t.Cleanup(c.Close)
	f.c = c

	return f
}

func silentOutput() envelope.Event {
	return envelope.Event{Name: envelope.OutputEventName, Envelope: make([]float64, 8), Channels: 1}
}

func loudOutput() envelope.Event {
	return envelope.Event{Name: envelope.OutputEventName, Envelope: []float64{0, 0, 0.3, 0, 0, 0, 0, 0}, Channels: 1}
}

func (f *fixture) respond(t *testing.T) {
	t.Helper()

	require.NoError(t, f.c.PressMic(SectionTop))
	<-f.langs.reqs
	f.c.HandleEvent(session.Event{Type: session.EventControl, Control: session.ControlResponseStarting})
	require.Equal(t, StateResponding, f.c.State())
}

func TestCoordinator_PressMicWithoutSession(t *testing.T) {
	f := newFixture(t, time.Second)
	f.sess.id = ""

	assert.ErrorIs(t, f.c.PressMic(SectionTop), ErrNoSession)
	assert.Equal(t, StateIdle, f.c.State())
	assert.True(t, f.sess.Muted())
	assert.Empty(t, f.langs.reqs)
}

func TestCoordinator_PressMicStartsTurn(t *testing.T) {
	tests := map[string]struct {
		section Section
		want    signaling.LanguageRequest
	}{
		"top speaks": {
			section: SectionTop,
			want:    signaling.LanguageRequest{WebRTCID: "rtc-1", SourceLanguage: "en", TargetLanguage: "ko"},
		},
		"bottom speaks": {
			section: SectionBottom,
			want:    signaling.LanguageRequest{WebRTCID: "rtc-1", SourceLanguage: "ko", TargetLanguage: "en"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, time.Second)
			f.c.HandleEvent(session.Event{Type: session.EventTranslation, Translation: session.Translation{Input: "old", Output: "stale"}})

			require.NoError(t, f.c.PressMic(tc.section))

			assert.Equal(t, tc.want, <-f.langs.reqs)
			snap := f.c.Snapshot()
			assert.Equal(t, StateSpeaking, snap.State)
			assert.Equal(t, tc.section, snap.InputSection)
			assert.Empty(t, snap.TopText)
			assert.Empty(t, snap.BottomText)
			assert.False(t, snap.Muted)
			assert.Equal(t, snap, f.snaps.last())
		})
	}
}

func TestCoordinator_ControlSignals(t *testing.T) {
	f := newFixture(t, time.Second)
	require.NoError(t, f.c.PressMic(SectionTop))
	<-f.langs.reqs

	f.c.HandleEvent(session.Event{Type: session.EventControl, Control: session.ControlPauseDetected})
	assert.True(t, f.sess.Muted())
	assert.Equal(t, StateSpeaking, f.c.State(), "pause only mutes")

	f.c.HandleEvent(session.Event{Type: session.EventControl, Control: session.ControlResponseStarting})
	assert.Equal(t, StateResponding, f.c.State())
	assert.InDelta(t, 1, testutil.ToFloat64(f.m.TurnTransitions.WithLabelValues("SPEAKING", "RESPONDING")), 0)
}

func TestCoordinator_TranslationMapsSections(t *testing.T) {
	tests := map[string]struct {
		section    Section
		wantTop    string
		wantBottom string
		wantSource string
	}{
		"top input":    {section: SectionTop, wantTop: "hello", wantBottom: "안녕하세요", wantSource: "en"},
		"bottom input": {section: SectionBottom, wantTop: "안녕하세요", wantBottom: "hello", wantSource: "ko"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, time.Second)
			require.NoError(t, f.c.PressMic(tc.section))
			<-f.langs.reqs

			f.c.HandleEvent(session.Event{Type: session.EventTranslation, Translation: session.Translation{Input: "partial", Output: "부분"}})
			f.c.HandleEvent(session.Event{Type: session.EventTranslation, Translation: session.Translation{Input: "hello", Output: "안녕하세요"}})

			snap := f.c.Snapshot()
			assert.Equal(t, tc.wantTop, snap.TopText)
			assert.Equal(t, tc.wantBottom, snap.BottomText)

			history := f.c.History()
			require.Len(t, history, 1, "later translations replace earlier ones in a turn")
			assert.Equal(t, "hello", history[0].Input)
			assert.Equal(t, tc.wantSource, history[0].SourceLanguage)
			assert.Equal(t, tc.section, history[0].InputSection)
		})
	}
}

func TestCoordinator_PressDuringResponseGoesIdle(t *testing.T) {
	f := newFixture(t, time.Second)
	f.respond(t)

	f.c.HandleEnvelope(silentOutput())
	require.True(t, f.c.silence.Pending())

	require.NoError(t, f.c.PressMic(SectionBottom))
	assert.Equal(t, StateIdle, f.c.State())
	assert.False(t, f.c.silence.Pending(), "manual override leaves no timer behind")
	assert.Empty(t, f.langs.reqs, "returning to idle does not reconfigure languages")
}

func TestCoordinator_SustainedSilenceEndsResponse(t *testing.T) {
	f := newFixture(t, 100*time.Millisecond)
	f.respond(t)

	start := time.Now()
	require.Eventually(t, func() bool {
		f.c.HandleEnvelope(silentOutput())

		return f.c.State() == StateIdle
	}, time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	assert.InDelta(t, 1, testutil.ToFloat64(f.m.TurnTransitions.WithLabelValues("RESPONDING", "IDLE")), 0)
}

func TestCoordinator_SoundCancelsSilenceTimer(t *testing.T) {
	f := newFixture(t, 100*time.Millisecond)
	f.respond(t)

	f.c.HandleEnvelope(silentOutput())
	time.Sleep(60 * time.Millisecond)
	f.c.HandleEnvelope(loudOutput())
	assert.False(t, f.c.silence.Pending())

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, StateResponding, f.c.State())
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCoordinator_LateSilenceCallbackAfterSound(t *testing.T) {
	f := newFixture(t, time.Hour)
	clock := &manualClock{now: time.Unix(1_700_000_000, 0)}
	f.c.now = clock.Now
	f.respond(t)

	// a callback that already left the timer when sound arrived
	f.c.HandleEnvelope(silentOutput())
	f.c.HandleEnvelope(loudOutput())
	clock.Advance(2 * time.Hour)
	f.c.onSilence()
	assert.Equal(t, StateResponding, f.c.State())

	// a stale callback during a newer, shorter quiet run
	f.c.HandleEnvelope(silentOutput())
	clock.Advance(30 * time.Minute)
	f.c.onSilence()
	assert.Equal(t, StateResponding, f.c.State())

	clock.Advance(30 * time.Minute)
	f.c.onSilence()
	assert.Equal(t, StateIdle, f.c.State())
}

func TestCoordinator_SilenceOutsideResponseIgnored(t *testing.T) {
	f := newFixture(t, 50*time.Millisecond)

	f.c.HandleEnvelope(silentOutput())
	assert.False(t, f.c.silence.Pending())

	require.NoError(t, f.c.PressMic(SectionTop))
	<-f.langs.reqs
	f.c.HandleEnvelope(silentOutput())
	assert.False(t, f.c.silence.Pending())

	// input envelopes never drive the timer
	f.respond(t)
	f.c.HandleEnvelope(envelope.Event{Name: envelope.InputEventName, Envelope: make([]float64, 8)})
	assert.False(t, f.c.silence.Pending())
}

func TestCoordinator_EpsilonBoundary(t *testing.T) {
	f := newFixture(t, time.Second)

	assert.True(t, f.c.isSilent([]float64{0, 9e-6, -9e-6}))
	assert.False(t, f.c.isSilent([]float64{0, 1e-5}))
	assert.True(t, f.c.isSilent(nil))
}

func TestCoordinator_WaveVisibility(t *testing.T) {
	tests := map[string]struct {
		section    Section
		state      State
		wantTop    bool
		wantBottom bool
	}{
		"idle":                {section: SectionTop, state: StateIdle},
		"top speaking":        {section: SectionTop, state: StateSpeaking, wantTop: true},
		"top responding":      {section: SectionTop, state: StateResponding, wantBottom: true},
		"bottom speaking":     {section: SectionBottom, state: StateSpeaking, wantBottom: true},
		"bottom responding":   {section: SectionBottom, state: StateResponding, wantTop: true},
		"bottom idle is dark": {section: SectionBottom, state: StateIdle},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, time.Second)
			f.c.mu.Lock()
			f.c.inputSection = tc.section
			f.c.state = tc.state
			f.c.mu.Unlock()

			snap := f.c.Snapshot()
			assert.Equal(t, tc.wantTop, snap.ShowTopWave)
			assert.Equal(t, tc.wantBottom, snap.ShowBottomWave)
		})
	}
}

func TestCoordinator_SetLanguage(t *testing.T) {
	f := newFixture(t, time.Second)

	require.ErrorIs(t, f.c.SetLanguage(SectionTop, "ko"), ErrLanguageConflict)
	require.Error(t, f.c.SetLanguage(SectionTop, ""))

	require.NoError(t, f.c.SetLanguage(SectionTop, "ja"))
	require.NoError(t, f.c.PressMic(SectionBottom))
	assert.Equal(t, signaling.LanguageRequest{WebRTCID: "rtc-1", SourceLanguage: "ko", TargetLanguage: "ja"}, <-f.langs.reqs)
	assert.Equal(t, "ja", f.snaps.last().TopLanguage)
}

func TestCoordinator_LanguageFailureDoesNotBlockTurn(t *testing.T) {
	f := newFixture(t, time.Second)
	f.langs.err = errors.New("backend down")

	require.NoError(t, f.c.PressMic(SectionTop))
	assert.Equal(t, StateSpeaking, f.c.State())
	<-f.langs.reqs

	f.c.Close()
	assert.InDelta(t, 1, testutil.ToFloat64(f.m.LanguageUpdates.WithLabelValues("error")), 0)
}

func TestCoordinator_RunConsumesSessionEvents(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.c.Run(ctx)
	}()

	f.sess.events <- session.Event{Type: session.EventControl, Control: session.ControlResponseStarting}
	require.Eventually(t, func() bool { return f.c.State() == StateResponding }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestCoordinator_Reset(t *testing.T) {
	f := newFixture(t, time.Second)
	f.respond(t)
	f.c.HandleEvent(session.Event{Type: session.EventTranslation, Translation: session.Translation{Input: "a", Output: "b"}})
	f.c.HandleEnvelope(silentOutput())

	f.c.Reset()

	snap := f.c.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, snap.TopText)
	assert.False(t, f.c.silence.Pending())
}

func TestCoordinator_SessionEndReturnsToIdle(t *testing.T) {
	tests := map[string]struct {
		setup func(t *testing.T, f *fixture)
	}{
		"while speaking": {setup: func(t *testing.T, f *fixture) {
			require.NoError(t, f.c.PressMic(SectionTop))
			<-f.langs.reqs
		}},
		"while responding": {setup: func(t *testing.T, f *fixture) {
			f.respond(t)
			f.c.HandleEnvelope(silentOutput())
		}},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, time.Hour)
			tc.setup(t, f)
			f.c.HandleEvent(session.Event{Type: session.EventTranslation, Translation: session.Translation{Input: "hi", Output: "annyeong"}})

			f.sess.end()

			assert.Equal(t, StateIdle, f.c.State())
			assert.False(t, f.c.silence.Pending())
			snap := f.snaps.last()
			assert.Equal(t, StateIdle, snap.State)
			assert.False(t, snap.Connected)
			assert.Empty(t, snap.TopText)
			assert.Empty(t, snap.BottomText)
			assert.ErrorIs(t, f.c.PressMic(SectionTop), ErrNoSession)
		})
	}
}

func TestParseSection(t *testing.T) {
	tests := map[string]struct {
		in      string
		want    Section
		wantErr bool
	}{
		"top":     {in: "top", want: SectionTop},
		"upper":   {in: " BOTTOM ", want: SectionBottom},
		"invalid": {in: "left", wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := ParseSection(tc.in)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSection)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.NotEqual(t, got, got.Other())
		})
	}
}

func TestState_TextRoundTrip(t *testing.T) {
	for _, s := range []State{StateIdle, StateSpeaking, StateResponding} {
		text, err := s.MarshalText()
		require.NoError(t, err)

		var got State
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, s, got)
	}

	var bad State
	assert.Error(t, bad.UnmarshalText([]byte("LISTENING")))
}
