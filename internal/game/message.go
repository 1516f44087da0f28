package game

import (
	"encoding/json"
	"errors"
	"strings"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownType = errors.New("unknown message type")
	ErrMissingData = errors.New("required field missing")
)

// Message is one validated inbound command. The set of implementations is
// closed: only this package defines them.
type Message interface {
	Type() string
	isMessage()
}

type IdentifyMessage struct{ DeviceToken string }

type RegisterMessage struct {
	Name        string
	DeviceToken string
}

type ApproveRosterMessage struct{}

type StartRoundMessage struct{}

type ConfirmScrambleMessage struct {
	JobID       string
	DeviceToken string
}

// PauseMessage stops the running solve of the competitor bound to
// DeviceToken. There is no id form: only the recipient's own device pauses.
type PauseMessage struct{ DeviceToken string }

type ResetAllMessage struct{}

type NextAttemptMessage struct{}

func (IdentifyMessage) Type() string        { return TypeIdentify }
func (RegisterMessage) Type() string        { return TypeRegister }
func (ApproveRosterMessage) Type() string   { return TypeApproveRoster }
func (StartRoundMessage) Type() string      { return TypeStartRound }
func (ConfirmScrambleMessage) Type() string { return TypeConfirmScramble }
func (PauseMessage) Type() string           { return TypePause }
func (ResetAllMessage) Type() string        { return TypeResetAll }
func (NextAttemptMessage) Type() string     { return TypeNextAttempt }

func (IdentifyMessage) isMessage()        {}
func (RegisterMessage) isMessage()        {}
func (ApproveRosterMessage) isMessage()   {}
func (StartRoundMessage) isMessage()      {}
func (ConfirmScrambleMessage) isMessage() {}
func (PauseMessage) isMessage()           {}
func (ResetAllMessage) isMessage()        {}
func (NextAttemptMessage) isMessage()     {}

// wireMessage is the flat JSON shape sent by clients. deviceId is the
// legacy name of deviceToken.
type wireMessage struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	DeviceToken string `json:"deviceToken"`
	DeviceID    string `json:"deviceId"`
	JobID       string `json:"jobId"`
}

func (w wireMessage) token() string {
	if t := strings.TrimSpace(w.DeviceToken); t != "" {
		return t
	}
	return strings.TrimSpace(w.DeviceID)
}

// ParseMessage decodes and validates a text frame.
func ParseMessage(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, ErrMalformed
	}

	switch w.Type {
	case TypeIdentify:
		return IdentifyMessage{DeviceToken: w.token()}, nil

	case TypeRegister:
		if w.token() == "" || strings.TrimSpace(w.Name) == "" {
			return nil, ErrMissingData
		}
		return RegisterMessage{Name: w.Name, DeviceToken: w.token()}, nil

	case TypeApproveRoster:
		return ApproveRosterMessage{}, nil

	case TypeStartRound:
		return StartRoundMessage{}, nil

	case TypeConfirmScramble, TypeConfirmTask:
		if w.JobID == "" || w.token() == "" {
			return nil, ErrMissingData
		}
		return ConfirmScrambleMessage{JobID: w.JobID, DeviceToken: w.token()}, nil

	case TypePause:
		if w.token() == "" {
			return nil, ErrMissingData
		}
		return PauseMessage{DeviceToken: w.token()}, nil

	case TypeResetAll:
		return ResetAllMessage{}, nil

	case TypeNextAttempt:
		return NextAttemptMessage{}, nil

	case "":
		return nil, ErrMalformed
	}
	return nil, ErrUnknownType
}
