// Package eventsub models the platform's event-subscription contract:
// subscription types, widget topics, typed payloads and the envelope
// forwarded to widgets.
package eventsub

import "time"

// SubType is the upstream subscription type tag.
type SubType string

// Supported subscription types.
const (
	UserAuthorizationRevoke   SubType = "user.authorization.revoke"
	ChannelPredictionBegin    SubType = "channel.prediction.begin"
	ChannelPredictionProgress SubType = "channel.prediction.progress"
	ChannelPredictionLock     SubType = "channel.prediction.lock"
	ChannelPredictionEnd      SubType = "channel.prediction.end"
	HypeTrainBegin            SubType = "channel.hype_train.begin"
	HypeTrainProgress         SubType = "channel.hype_train.progress"
	HypeTrainEnd              SubType = "channel.hype_train.end"
)

// Version is the subscription version requested for every type.
const Version = "1"

// SubTypes lists every supported type.
var SubTypes = []SubType{
	UserAuthorizationRevoke,
	ChannelPredictionBegin,
	ChannelPredictionProgress,
	ChannelPredictionLock,
	ChannelPredictionEnd,
	HypeTrainBegin,
	HypeTrainProgress,
	HypeTrainEnd,
}

// Valid reports whether t is a supported type.
func (t SubType) Valid() bool {
	for _, s := range SubTypes {
		if s == t {
			return true
		}
	}
	return false
}

func (t SubType) String() string { return string(t) }

// Condition scopes an upstream subscription. Exactly one field is set.
type Condition struct {
	BroadcasterUserID string `json:"broadcaster_user_id,omitempty"`
	ClientID          string `json:"client_id,omitempty"`
}

// BroadcasterCondition scopes a subscription to one channel.
func BroadcasterCondition(userID string) Condition {
	return Condition{BroadcasterUserID: userID}
}

// ClientCondition scopes a subscription to the whole application.
func ClientCondition(clientID string) Condition {
	return Condition{ClientID: clientID}
}

// Owner is the fan-out owner a condition maps to; empty for platform-wide.
func (c Condition) Owner() string {
	return c.BroadcasterUserID
}

// Subscription is the locally persisted record of an upstream subscription.
type Subscription struct {
	ID               string    `json:"id"`
	Owner            string    `json:"owner,omitempty"`
	Secret           string    `json:"secret"`
	ExternalID       string    `json:"external_id"`
	Type             SubType   `json:"type"`
	CreatedAt        time.Time `json:"created_at"`
	LastConnectAt    time.Time `json:"last_connect_at,omitempty"`
	LastDisconnectAt time.Time `json:"last_disconnect_at,omitempty"`
}

// User is the local record of an account that authorized the application.
type User struct {
	ID              string    `json:"id"`
	Login           string    `json:"login"`
	BroadcasterType string    `json:"broadcaster_type,omitempty"`
	Scopes          []string  `json:"scopes"`
	CreatedAt       time.Time `json:"created_at"`
}

// HasScopes reports whether every scope in want was granted.
func (u User) HasScopes(want []string) bool {
	granted := make(map[string]struct{}, len(u.Scopes))
	for _, s := range u.Scopes {
		granted[s] = struct{}{}
	}
	for _, s := range want {
		if _, ok := granted[s]; !ok {
			return false
		}
	}
	return true
}
