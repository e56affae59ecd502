package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Delivery message types.
const (
	messageNotification = "notification"
	messageVerification = "webhook_callback_verification"
	messageRevocation   = "revocation"
)

// LoadFixture reads and validates a fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFixture, err)
	}
	return ParseFixture(data)
}

// ParseFixture decodes a YAML fixture. Deliveries inherit the fixture
// secret unless they set their own.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFixture, err)
	}
	if len(f.Deliveries) == 0 {
		return nil, fmt.Errorf("%w: no deliveries", ErrFixture)
	}
	for i := range f.Deliveries {
		d := &f.Deliveries[i]
		if d.Secret == "" {
			d.Secret = f.Secret
		}
		if d.MessageType == "" {
			d.MessageType = messageNotification
		}
		if err := d.validate(); err != nil {
			return nil, fmt.Errorf("%w: delivery %d (%s): %w", ErrFixture, i, d.Name, err)
		}
	}
	return &f, nil
}

func (d Delivery) validate() error {
	switch {
	case d.SubscriptionID == "":
		return fmt.Errorf("missing subscription_id")
	case d.Secret == "":
		return fmt.Errorf("missing secret")
	case d.Delay < 0:
		return fmt.Errorf("negative delay")
	}
	switch d.MessageType {
	case messageNotification:
		if len(d.Event) == 0 {
			return fmt.Errorf("notification without event")
		}
	case messageVerification:
		if d.Challenge == "" {
			return fmt.Errorf("verification without challenge")
		}
	case messageRevocation:
	default:
		return fmt.Errorf("unknown message_type %q", d.MessageType)
	}
	return nil
}

type wireSubscription struct {
	ID     string `json:"id"`
	Type   string `json:"type,omitempty"`
	Status string `json:"status,omitempty"`
}

type wireBody struct {
	Subscription wireSubscription `json:"subscription"`
	Challenge    string           `json:"challenge,omitempty"`
	Event        map[string]any   `json:"event,omitempty"`
}

// Body renders the JSON request body of d.
func (d Delivery) Body() ([]byte, error) {
	body := wireBody{
		Subscription: wireSubscription{ID: d.SubscriptionID, Type: d.SubscriptionType},
		Challenge:    d.Challenge,
		Event:        d.Event,
	}
	if d.MessageType == messageRevocation {
		body.Subscription.Status = "authorization_revoked"
	}
	return json.Marshal(body)
}
