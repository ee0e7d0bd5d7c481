// Package session owns the peer connection to the translation backend: the
// signaling handshake, ICE gathering, the uplink track and the data channel.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/Raikerian/go-rtc-translate/internal/capture"
	"github.com/Raikerian/go-rtc-translate/internal/config"
	"github.com/Raikerian/go-rtc-translate/internal/metrics"
	"github.com/Raikerian/go-rtc-translate/internal/playback"
	"github.com/Raikerian/go-rtc-translate/internal/signaling"
	"github.com/Raikerian/go-rtc-translate/pkg/audio"
)

const eventBuffer = 64

// Signaler is the backend HTTP contract used to establish a session.
type Signaler interface {
	Health(ctx context.Context) error
	Reset(ctx context.Context) error
	Offer(ctx context.Context, req signaling.OfferRequest) (*signaling.Answer, error)
	RefreshToken(ctx context.Context) error
}

// Microphone is the capture service as seen by the session.
type Microphone interface {
	RequestAccess(ctx context.Context) error
	Start(ctx context.Context) error
	Stop() error
	Attach(s capture.Sink)
	Detach(s capture.Sink)
	Format() capture.Format
}

// TrackHandler consumes the remote audio track.
type TrackHandler interface {
	HandleRemoteTrack(track playback.RemoteTrack)
}

// EncoderFactory builds the uplink encoder for the capture format.
type EncoderFactory func(format capture.Format) (audio.Encoder, error)

type phase int

const (
	phaseIdle phase = iota
	phaseStarting
	phaseActive
)

// Machine is the single owner of the peer session. At most one session
// exists at a time; Start while one is pending or active fails with
// ErrSessionBusy.
type Machine struct {
	logger     *zap.Logger
	metrics    *metrics.Metrics
	signaling  Signaler
	mic        Microphone
	tracks     TrackHandler
	api        *webrtc.API
	rtcConfig  webrtc.Configuration
	label      string
	iceTimeout time.Duration
	newEncoder EncoderFactory

	// gatherComplete is swapped in tests to simulate slow ICE.
	gatherComplete func(pc *webrtc.PeerConnection) <-chan struct{}

	events chan Event

	mu        sync.Mutex
	phase     phase
	pc        *webrtc.PeerConnection
	dc        *webrtc.DataChannel
	uplink    *Uplink
	sessionID string
	muted     bool
	onEnded   []func()
}

// NewMachine builds the pion API with the default codecs and interceptors.
func NewMachine(
	logger *zap.Logger,
	cfg *config.Config,
	m *metrics.Metrics,
	sig Signaler,
	mic Microphone,
	tracks TrackHandler,
) (*Machine, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("failed to register interceptors: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
	)

	rtcConfig := webrtc.Configuration{}
	if len(cfg.WebRTC.ICEServers) > 0 {
		rtcConfig.ICEServers = []webrtc.ICEServer{{URLs: cfg.WebRTC.ICEServers}}
	}

	frameDuration := cfg.Capture.FrameDuration

	machine := &Machine{
		logger:     logger.Named("session"),
		metrics:    m,
		signaling:  sig,
		mic:        mic,
		tracks:     tracks,
		api:        api,
		rtcConfig:  rtcConfig,
		label:      cfg.WebRTC.DataChannelLabel,
		iceTimeout: cfg.WebRTC.ICEGatheringTimeout,
		newEncoder: func(f capture.Format) (audio.Encoder, error) {
			return audio.NewOpusEncoder(f.SampleRate, f.Channels, frameDuration)
		},
		gatherComplete: webrtc.GatheringCompletePromise,
		events:         make(chan Event, eventBuffer),
		muted:          true,
	}
	m.SetMuted(true)

	return machine, nil
}

// Events delivers parsed data channel records in arrival order.
func (m *Machine) Events() <-chan Event {
	return m.events
}

// SessionID returns the current webrtc id, or "" without an active session.
func (m *Machine) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sessionID
}

// Active reports whether a session is established.
func (m *Machine) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.phase == phaseActive
}

// Muted reports the UI-facing mute flag.
func (m *Machine) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.muted
}

// Connect starts a session, first resetting backend state if devReset is
// set. A rejected Connect does not touch the backend.
func (m *Machine) Connect(ctx context.Context, devReset bool) error {
	if err := m.claim(); err != nil {
		return err
	}

	if devReset {
		if err := m.signaling.Reset(ctx); err != nil {
			m.logger.Warn("Backend reset failed", zap.Error(err))
		}
	}

	return m.run(ctx)
}

// Start establishes a new session. On failure every resource acquired by
// this attempt is released and a later Start is allowed.
func (m *Machine) Start(ctx context.Context) error {
	if err := m.claim(); err != nil {
		return err
	}

	return m.run(ctx)
}

// OnSessionEnded registers fn to run after an established session is torn
// down, whether by Stop or by a failed peer connection.
func (m *Machine) OnSessionEnded(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.onEnded = append(m.onEnded, fn)
}

// claim moves the machine from idle to starting.
func (m *Machine) claim() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != phaseIdle {
		m.metrics.RecordSessionStart("busy")

		return ErrSessionBusy
	}
	m.phase = phaseStarting

	return nil
}

func (m *Machine) run(ctx context.Context) error {
	a := &attempt{}
	if err := m.establish(ctx, a); err != nil {
		m.teardown(a)

		m.mu.Lock()
		m.phase = phaseIdle
		m.mu.Unlock()

		m.metrics.RecordSessionStart(outcomeOf(err))
		m.logger.Warn("Session start failed", zap.Error(err))
		if errors.Is(err, signaling.ErrUnauthorized) {
			if rerr := m.signaling.RefreshToken(ctx); rerr != nil {
				m.logger.Warn("Token refresh failed", zap.Error(rerr))
			}
		}

		return err
	}

	m.mu.Lock()
	m.phase = phaseActive
	m.pc = a.pc
	m.dc = a.dc
	m.uplink = a.uplink
	m.sessionID = a.id
	m.muted = true
	m.mu.Unlock()

	m.metrics.RecordSessionStart("ok")
	m.metrics.ActiveSessions.Set(1)
	m.metrics.SetMuted(true)
	m.logger.Info("Session established", zap.String("webrtc_id", a.id))

	return nil
}

// attempt collects what a Start has acquired so far.
type attempt struct {
	id         string
	pc         *webrtc.PeerConnection
	dc         *webrtc.DataChannel
	uplink     *Uplink
	micStarted bool
}

func (m *Machine) establish(ctx context.Context, a *attempt) error {
	if err := m.signaling.Health(ctx); err != nil {
		return err
	}

	if err := m.mic.RequestAccess(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}

	a.id = uuid.NewString()
	log := m.logger.With(zap.String("webrtc_id", a.id))

	pc, err := m.api.NewPeerConnection(m.rtcConfig)
	if err != nil {
		return fmt.Errorf("failed to create peer connection: %w", err)
	}
	a.pc = pc

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Info("Peer connection state changed", zap.String("state", state.String()))
		if state == webrtc.PeerConnectionStateFailed {
			go m.stopIfCurrent(pc)
		}
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		log.Info("Remote track received", zap.String("codec", track.Codec().MimeType))
		if m.tracks != nil {
			m.tracks.HandleRemoteTrack(track)
		}
	})

	dc, err := pc.CreateDataChannel(m.label, nil)
	if err != nil {
		return fmt.Errorf("failed to create data channel: %w", err)
	}
	a.dc = dc
	dc.OnOpen(func() {
		log.Info("Data channel open", zap.String("label", dc.Label()))
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		m.dispatch(msg.Data)
	})

	format := m.mic.Format()
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: audio.OpusSampleRate, Channels: 2},
		"audio",
		"rtc-translate",
	)
	if err != nil {
		return fmt.Errorf("failed to create local track: %w", err)
	}

	sender, err := pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("failed to add local track: %w", err)
	}
	go func() {
		for {
			if _, _, rtcpErr := sender.ReadRTCP(); rtcpErr != nil {
				return
			}
		}
	}()

	enc, err := m.newEncoder(format)
	if err != nil {
		return err
	}
	a.uplink = NewUplink(log, track, enc, format.FrameDuration)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}

	gathered := m.gatherComplete(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("failed to set local description: %w", err)
	}

	started := time.Now()
	timer := time.NewTimer(m.iceTimeout)
	defer timer.Stop()

	select {
	case <-gathered:
		m.metrics.ICEGatheringSeconds.Observe(time.Since(started).Seconds())
	case <-timer.C:
		return ErrIceGatheringTimeout
	case <-ctx.Done():
		return ctx.Err()
	}

	local := pc.LocalDescription()
	answer, err := m.signaling.Offer(ctx, signaling.OfferRequest{
		SDP:      local.SDP,
		Type:     local.Type.String(),
		WebRTCID: a.id,
	})
	if err != nil {
		return err
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer.SDP,
	}); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}

	m.mic.Attach(a.uplink)
	if err := m.mic.Start(ctx); err != nil {
		return fmt.Errorf("failed to start microphone: %w", err)
	}
	a.micStarted = true

	return nil
}

// Stop tears down the active session. It is a no-op without one.
func (m *Machine) Stop() {
	m.mu.Lock()
	if m.phase != phaseActive {
		m.mu.Unlock()

		return
	}

	a := &attempt{id: m.sessionID, pc: m.pc, dc: m.dc, uplink: m.uplink, micStarted: true}
	m.phase = phaseIdle
	m.pc, m.dc, m.uplink = nil, nil, nil
	m.sessionID = ""
	m.muted = true
	listeners := make([]func(), len(m.onEnded))
	copy(listeners, m.onEnded)
	m.mu.Unlock()

	m.teardown(a)
	m.metrics.ActiveSessions.Set(0)
	m.metrics.SetMuted(true)
	m.logger.Info("Session stopped", zap.String("webrtc_id", a.id))

	for _, fn := range listeners {
		fn()
	}
}

func (m *Machine) stopIfCurrent(pc *webrtc.PeerConnection) {
	m.mu.Lock()
	current := m.pc == pc
	m.mu.Unlock()

	if current {
		m.logger.Warn("Peer connection failed, stopping session")
		m.Stop()
	}
}

func (m *Machine) teardown(a *attempt) {
	if a.uplink != nil {
		a.uplink.SetEnabled(false)
		m.mic.Detach(a.uplink)
	}
	if a.micStarted {
		if err := m.mic.Stop(); err != nil {
			m.logger.Warn("Microphone stop failed", zap.Error(err))
		}
	}
	if a.pc != nil {
		if err := a.pc.Close(); err != nil {
			m.logger.Warn("Peer connection close failed", zap.Error(err))
		}
	}
}

// MuteMicrophone stops sending capture audio. No-op without a local track.
func (m *Machine) MuteMicrophone() {
	m.setMuted(true)
}

// UnmuteMicrophone resumes sending capture audio. No-op without a local track.
func (m *Machine) UnmuteMicrophone() {
	m.setMuted(false)
}

func (m *Machine) setMuted(muted bool) {
	m.mu.Lock()
	uplink := m.uplink
	if uplink == nil {
		m.mu.Unlock()

		return
	}
	m.muted = muted
	m.mu.Unlock()

	uplink.SetEnabled(!muted)
	m.metrics.SetMuted(muted)
	m.logger.Debug("Microphone mute changed", zap.Bool("muted", muted))
}

func (m *Machine) dispatch(payload []byte) {
	events, errs := ParseMessage(payload)
	for _, err := range errs {
		m.metrics.MalformedMessages.Inc()
		m.logger.Warn("Ignoring data channel record", zap.Error(err))
	}

	for _, ev := range events {
		m.metrics.DataChannelMessages.WithLabelValues(ev.label()).Inc()
		select {
		case m.events <- ev:
		default:
			m.logger.Warn("Event buffer full, dropping data channel record", zap.String("type", ev.label()))
		}
	}
}

func (e Event) label() string {
	if e.Type == EventTranslation {
		return recordTypeTranslation
	}

	return string(e.Control)
}

func outcomeOf(err error) string {
	var (
		statusErr   *signaling.StatusError
		rejectedErr *signaling.RejectedError
	)

	switch {
	case errors.Is(err, signaling.ErrHealthCheckFailed):
		return "health"
	case errors.Is(err, ErrPermissionDenied):
		return "permission"
	case errors.Is(err, ErrIceGatheringTimeout):
		return "ice_timeout"
	case errors.As(err, &statusErr):
		return "signaling"
	case errors.As(err, &rejectedErr):
		return "rejected"
	default:
		return "error"
	}
}
