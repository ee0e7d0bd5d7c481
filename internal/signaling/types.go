package signaling

// OfferRequest is the body of POST /webrtc/offer.
type OfferRequest struct {
	SDP      string `json:"sdp"`
	Type     string `json:"type"`
	WebRTCID string `json:"webrtc_id"`
}

// Answer is the backend reply to an offer. A failed negotiation arrives
// as Status "failed" with the reason in Meta.Error.
type Answer struct {
	SDP    string     `json:"sdp"`
	Type   string     `json:"type"`
	Status string     `json:"status,omitempty"`
	Meta   AnswerMeta `json:"meta,omitempty"`
}

// AnswerMeta carries backend diagnostics.
type AnswerMeta struct {
	Error string `json:"error,omitempty"`
}

// LanguageRequest is the body of POST /set_language.
type LanguageRequest struct {
	WebRTCID       string `json:"webrtc_id"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
}

type healthResponse struct {
	Status string `json:"status"`
}
