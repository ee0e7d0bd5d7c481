package audio

// Format constants shared by the capture, uplink and playback paths.
const (
	// Opus RTP always runs on a 48 kHz clock.
	OpusSampleRate      = 48_000 // Hz
	OpusMaxFrameSamples = 5760   // 120 ms at 48 kHz, per channel
	MaxOpusPacketBytes  = 4000
	SpeechBitrate       = 32_000

	// Signed 16-bit full scale used for normalization.
	PCM16FullScale = 32768.0

	// 8-bit unsigned waveform midpoint.
	WaveformMidpoint = 128
)
