package session

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Control is a free-text signal the backend sends on the "log" record type.
type Control string

// Recognized control values.
const (
	ControlPauseDetected    Control = "pause_detected"
	ControlResponseStarting Control = "response_starting"
)

// EventType discriminates Event.
type EventType int

const (
	// EventControl carries Event.Control.
	EventControl EventType = iota
	// EventTranslation carries Event.Translation.
	EventTranslation
)

// Translation is one recognized utterance and its translation.
type Translation struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Event is an inbound data channel record after parsing.
type Event struct {
	Type        EventType
	Control     Control
	Translation Translation
}

const (
	recordTypeLog         = "log"
	recordTypeTranslation = "translation"
)

type record struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ParseMessage splits a data channel payload into newline-delimited records
// and parses each. Records with unknown types or unrecognized control values
// yield no event. Every malformed record is reported as an error wrapping
// ErrMalformedMessage; parsing continues past it.
func ParseMessage(payload []byte) ([]Event, []error) {
	var (
		events []Event
		errs   []error
	)

	for _, line := range bytes.Split(payload, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		ev, ok, err := parseRecord(line)
		if err != nil {
			errs = append(errs, err)

			continue
		}
		if ok {
			events = append(events, ev)
		}
	}

	return events, errs
}

func parseRecord(line []byte) (Event, bool, error) {
	var rec record
	if err := json.Unmarshal(line, &rec); err != nil {
		return Event{}, false, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	switch rec.Type {
	case recordTypeLog:
		var text string
		if err := json.Unmarshal(rec.Data, &text); err != nil {
			return Event{}, false, fmt.Errorf("%w: log data: %w", ErrMalformedMessage, err)
		}
		switch c := Control(text); c {
		case ControlPauseDetected, ControlResponseStarting:
			return Event{Type: EventControl, Control: c}, true, nil
		default:
			return Event{}, false, nil
		}

	case recordTypeTranslation:
		t, err := parseTranslation(rec.Data)
		if err != nil {
			return Event{}, false, fmt.Errorf("%w: translation data: %w", ErrMalformedMessage, err)
		}

		return Event{Type: EventTranslation, Translation: t}, true, nil

	default:
		return Event{}, false, nil
	}
}

// parseTranslation accepts the nested JSON string the backend sends and,
// leniently, a plain object.
func parseTranslation(data json.RawMessage) (Translation, error) {
	var t Translation

	var nested string
	if err := json.Unmarshal(data, &nested); err == nil {
		err = json.Unmarshal([]byte(nested), &t)

		return t, err
	}

	err := json.Unmarshal(data, &t)

	return t, err
}
