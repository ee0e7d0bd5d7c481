// Package turn decides who is talking: the local user or the translator.
package turn

import (
	"errors"
	"fmt"
	"strings"
)

// State is the conversation state shown to the user.
type State int

// Conversation states.
const (
	StateIdle State = iota
	StateSpeaking
	StateResponding
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateSpeaking:
		return "SPEAKING"
	case StateResponding:
		return "RESPONDING"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "IDLE":
		*s = StateIdle
	case "SPEAKING":
		*s = StateSpeaking
	case "RESPONDING":
		*s = StateResponding
	default:
		return fmt.Errorf("unknown state %q", text)
	}

	return nil
}

// Section is one of the two physical halves of the conversation screen.
// Each half has its own language.
type Section string

// Sections.
const (
	SectionTop    Section = "top"
	SectionBottom Section = "bottom"
)

// ErrInvalidSection is returned for anything but "top" or "bottom".
var ErrInvalidSection = errors.New("section must be top or bottom")

// ParseSection accepts section names case-insensitively.
func ParseSection(s string) (Section, error) {
	switch Section(strings.ToLower(strings.TrimSpace(s))) {
	case SectionTop:
		return SectionTop, nil
	case SectionBottom:
		return SectionBottom, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSection, s)
	}
}

// Other returns the opposite section.
func (s Section) Other() Section {
	if s == SectionTop {
		return SectionBottom
	}

	return SectionTop
}
