package eventsub

import (
	"encoding/json"
	"fmt"
)

// Event is implemented by every typed payload.
type Event interface {
	// Owner is the fan-out owner the event is routed to.
	Owner() string
}

// Owner returns the broadcaster the event belongs to.
func (b Broadcaster) Owner() string { return b.BroadcasterUserID }

// Owner returns the user whose authorization was revoked.
func (e UserAuthorizationRevokeEvent) Owner() string { return e.UserID }

// Envelope is one parsed upstream event together with its type tag and the
// delivery timestamp.
type Envelope struct {
	Type      SubType
	Timestamp string
	Event     Event
}

// Owner is the fan-out owner of the wrapped event.
func (e Envelope) Owner() string {
	if e.Event == nil {
		return ""
	}
	return e.Event.Owner()
}

// IsRevocation reports whether the envelope carries a user revocation.
func (e Envelope) IsRevocation() bool {
	return e.Type == UserAuthorizationRevoke
}

type variant struct {
	name   string
	decode func(json.RawMessage) (Event, error)
}

func decodeAs[T Event](raw json.RawMessage) (Event, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// variants is the only place a type tag is tied to a payload type.
var variants = map[SubType]variant{
	UserAuthorizationRevoke:   {"UserAuthorizationRevoke", decodeAs[UserAuthorizationRevokeEvent]},
	ChannelPredictionBegin:    {"ChannelPredictionBegin", decodeAs[PredictionBeginEvent]},
	ChannelPredictionProgress: {"ChannelPredictionProgress", decodeAs[PredictionProgressEvent]},
	ChannelPredictionLock:     {"ChannelPredictionLock", decodeAs[PredictionLockEvent]},
	ChannelPredictionEnd:      {"ChannelPredictionEnd", decodeAs[PredictionEndEvent]},
	HypeTrainBegin:            {"HypeTrainBegin", decodeAs[HypeTrainBeginEvent]},
	HypeTrainProgress:         {"HypeTrainProgress", decodeAs[HypeTrainProgressEvent]},
	HypeTrainEnd:              {"HypeTrainEnd", decodeAs[HypeTrainEndEvent]},
}

// ParseEnvelope builds a typed envelope from a subscription type, the
// delivery timestamp and the raw event object.
func ParseEnvelope(t SubType, timestamp string, raw json.RawMessage) (Envelope, error) {
	v, ok := variants[t]
	if !ok {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnsupportedType, t)
	}
	if len(raw) == 0 {
		return Envelope{}, fmt.Errorf("%w: empty event", ErrMalformedPayload)
	}
	ev, err := v.decode(raw)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %s: %w", ErrMalformedPayload, t, err)
	}
	if ev.Owner() == "" {
		return Envelope{}, fmt.Errorf("%w: %s: missing owner id", ErrMalformedPayload, t)
	}
	return Envelope{Type: t, Timestamp: timestamp, Event: ev}, nil
}

// NewEnvelope wraps an already typed event. The type must match the event.
func NewEnvelope(t SubType, timestamp string, ev Event) (Envelope, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return ParseEnvelope(t, timestamp, raw)
}

type wireEnvelope struct {
	Data    map[string]json.RawMessage `json:"data"`
	MsgTime string                     `json:"msg_time"`
}

// MarshalJSON renders the widget wire form:
// {"data":{"<Variant>":{...}},"msg_time":"..."}.
func (e Envelope) MarshalJSON() ([]byte, error) {
	v, ok := variants[e.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, e.Type)
	}
	body, err := json.Marshal(e.Event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEnvelope{
		Data:    map[string]json.RawMessage{v.name: body},
		MsgTime: e.Timestamp,
	})
}

// UnmarshalJSON parses the widget wire form.
func (e *Envelope) UnmarshalJSON(b []byte) error {
	var w wireEnvelope
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if len(w.Data) != 1 {
		return fmt.Errorf("%w: expected exactly one variant", ErrMalformedPayload)
	}
	for name, raw := range w.Data {
		for t, v := range variants {
			if v.name != name {
				continue
			}
			parsed, err := ParseEnvelope(t, w.MsgTime, raw)
			if err != nil {
				return err
			}
			*e = parsed
			return nil
		}
		return fmt.Errorf("%w: variant %q", ErrUnsupportedType, name)
	}
	return nil
}
