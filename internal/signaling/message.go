package signaling

import (
	"errors"
	"fmt"

	"github.com/1ureka/peerlink/internal/config"
)

// MessageType identifies the kind of signaling message.
type MessageType string

const (
	MsgTypeDescription MessageType = "description"
	MsgTypeCandidate   MessageType = "candidate"
)

// Message is the JSON structure exchanged with a relay. Exactly one of
// Description and Candidate is set, matching Type.
type Message struct {
	Type        MessageType  `json:"type"`
	Source      config.Role  `json:"source"`
	Description *Description `json:"description,omitempty"`
	Candidate   *Candidate   `json:"candidate,omitempty"`
}

func descriptionMessage(sig Tagged[Description]) Message {
	d := sig.Value
	return Message{Type: MsgTypeDescription, Source: sig.Source, Description: &d}
}

func candidateMessage(sig Tagged[Candidate]) Message {
	c := sig.Value
	return Message{Type: MsgTypeCandidate, Source: sig.Source, Candidate: &c}
}

// validate rejects messages a relay must not forward.
func (m Message) validate() error {
	if m.Source == "" {
		return ErrMissingSource
	}
	if _, err := config.ParseRole(string(m.Source)); err != nil {
		return err
	}
	switch m.Type {
	case MsgTypeDescription:
		if m.Description == nil {
			return errors.New("description message without description")
		}
	case MsgTypeCandidate:
		if m.Candidate == nil {
			return errors.New("candidate message without candidate")
		}
	default:
		return fmt.Errorf("unknown message type %q", m.Type)
	}
	return nil
}
