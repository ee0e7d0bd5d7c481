package playback

import (
	"errors"
	"io"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/Raikerian/go-rtc-translate/pkg/audio"
)

// RemoteTrack is the subset of *webrtc.TrackRemote the receiver reads.
type RemoteTrack interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
	Codec() webrtc.RTPCodecParameters
}

// DecoderFactory builds an Opus decoder for the given channel count.
type DecoderFactory func(channels int) (audio.Decoder, error)

// Receiver decodes a remote Opus track into mono PCM for the player and
// the visualizer.
type Receiver struct {
	logger     *zap.Logger
	newDecoder DecoderFactory
	player     Player
	visualizer *Visualizer
}

// NewReceiver creates a receiver. player may be nil.
func NewReceiver(logger *zap.Logger, newDecoder DecoderFactory, player Player, visualizer *Visualizer) *Receiver {
	if newDecoder == nil {
		newDecoder = func(channels int) (audio.Decoder, error) {
			return audio.NewOpusDecoder(audio.OpusSampleRate, channels)
		}
	}

	return &Receiver{
		logger:     logger.Named("receiver"),
		newDecoder: newDecoder,
		player:     player,
		visualizer: visualizer,
	}
}

// HandleRemoteTrack reads the track until it ends. It blocks, so callers
// run it on its own goroutine.
func (r *Receiver) HandleRemoteTrack(track RemoteTrack) {
	codec := track.Codec()
	if codec.MimeType != "" && codec.MimeType != webrtc.MimeTypeOpus {
		r.logger.Warn("Ignoring non-opus remote track", zap.String("mime", codec.MimeType))

		return
	}

	channels := int(codec.Channels)
	if channels <= 0 {
		channels = 2
	}

	dec, err := r.newDecoder(channels)
	if err != nil {
		r.logger.Error("Failed to create playback decoder", zap.Error(err))

		return
	}

	r.logger.Info("Remote audio track started", zap.Int("channels", channels))

	player := r.player
	var decodeErrors int
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.logger.Debug("Remote track read ended", zap.Error(err))
			}
			r.logger.Info("Remote audio track ended", zap.Int("decode_errors", decodeErrors))

			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}

		pcm, err := dec.Decode(pkt.Payload)
		if err != nil {
			decodeErrors++

			continue
		}

		mono := audio.Downmix(pcm, dec.Channels())
		if player != nil {
			if err := player.Write(mono); err != nil {
				r.logger.Warn("Playback write failed; disabling local output", zap.Error(err))
				player = nil
			}
		}
		if r.visualizer != nil {
			r.visualizer.Write(mono)
		}
	}
}
