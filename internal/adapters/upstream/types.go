package upstream

import "github.com/okian/twitch-sources/internal/domain/eventsub"

type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	GrantType    string `json:"grant_type"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// Transport is the delivery method of a subscription.
type Transport struct {
	Method   string `json:"method"`
	Callback string `json:"callback"`
	Secret   string `json:"secret,omitempty"`
}

// CreateRequest is the body of a subscription create call.
type CreateRequest struct {
	Type      eventsub.SubType   `json:"type"`
	Version   string             `json:"version"`
	Condition eventsub.Condition `json:"condition"`
	Transport Transport          `json:"transport"`
}

// NewWebhookRequest builds a webhook subscription create request.
func NewWebhookRequest(t eventsub.SubType, cond eventsub.Condition, callback, secret string) CreateRequest {
	return CreateRequest{
		Type:      t,
		Version:   eventsub.Version,
		Condition: cond,
		Transport: Transport{Method: "webhook", Callback: callback, Secret: secret},
	}
}

// Created is one subscription as echoed back by the upstream API.
type Created struct {
	ID        string             `json:"id"`
	Status    string             `json:"status"`
	Type      eventsub.SubType   `json:"type"`
	Version   string             `json:"version"`
	Condition eventsub.Condition `json:"condition"`
	CreatedAt string             `json:"created_at"`
	Cost      int                `json:"cost"`
}

type createResponse struct {
	Data         []Created `json:"data"`
	Total        int       `json:"total"`
	TotalCost    int       `json:"total_cost"`
	MaxTotalCost int       `json:"max_total_cost"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Status  int    `json:"status"`
	Message string `json:"message"`
}
