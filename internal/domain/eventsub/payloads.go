package eventsub

// Timestamps in payloads are kept as the RFC3339 strings upstream sends so
// they reach widgets byte-for-byte.

// UserAuthorizationRevokeEvent is sent when a user revokes the application.
type UserAuthorizationRevokeEvent struct {
	ClientID  string  `json:"client_id"`
	UserID    string  `json:"user_id"`
	UserLogin *string `json:"user_login"`
	UserName  *string `json:"user_name"`
}

// TopPredictor is one of the biggest spenders on an outcome.
type TopPredictor struct {
	UserID            string `json:"user_id"`
	UserLogin         string `json:"user_login"`
	UserName          string `json:"user_name"`
	ChannelPointsWon  *int64 `json:"channel_points_won"`
	ChannelPointsUsed int64  `json:"channel_points_used"`
}

// Outcome is one option of a prediction.
type Outcome struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Color         string         `json:"color"`
	Users         int64          `json:"users"`
	ChannelPoints int64          `json:"channel_points"`
	TopPredictors []TopPredictor `json:"top_predictors"`
}

// Broadcaster identifies the channel an event belongs to.
type Broadcaster struct {
	BroadcasterUserID    string `json:"broadcaster_user_id"`
	BroadcasterUserLogin string `json:"broadcaster_user_login"`
	BroadcasterUserName  string `json:"broadcaster_user_name"`
}

// PredictionBeginEvent starts a prediction.
type PredictionBeginEvent struct {
	ID string `json:"id"`
	Broadcaster
	Title     string    `json:"title"`
	Outcomes  []Outcome `json:"outcomes"`
	StartedAt string    `json:"started_at"`
	LocksAt   string    `json:"locks_at"`
}

// PredictionProgressEvent carries updated outcome totals.
type PredictionProgressEvent PredictionBeginEvent

// PredictionLockEvent closes a prediction to new entries.
type PredictionLockEvent struct {
	ID string `json:"id"`
	Broadcaster
	Title     string    `json:"title"`
	Outcomes  []Outcome `json:"outcomes"`
	StartedAt string    `json:"started_at"`
	LockedAt  string    `json:"locked_at"`
}

// Prediction end statuses.
const (
	PredictionResolved = "resolved"
	PredictionCanceled = "canceled"
)

// PredictionEndEvent resolves or cancels a prediction.
type PredictionEndEvent struct {
	ID string `json:"id"`
	Broadcaster
	Title            string    `json:"title"`
	WinningOutcomeID *string   `json:"winning_outcome_id"`
	Outcomes         []Outcome `json:"outcomes"`
	Status           string    `json:"status"`
	StartedAt        string    `json:"started_at"`
	EndedAt          string    `json:"ended_at"`
}

// Contribution types.
const (
	ContributionBits         = "bits"
	ContributionSubscription = "subscription"
	ContributionOther        = "other"
)

// Contribution is a single user's input to a hype train.
type Contribution struct {
	UserID    string `json:"user_id"`
	UserLogin string `json:"user_login"`
	UserName  string `json:"user_name"`
	Type      string `json:"type"`
	Total     int64  `json:"total"`
}

// HypeTrainData is shared by every hype train event.
type HypeTrainData struct {
	ID string `json:"id"`
	Broadcaster
	Total            int64          `json:"total"`
	Progress         int64          `json:"progress"`
	Goal             int64          `json:"goal"`
	TopContributions []Contribution `json:"top_contributions"`
	LastContribution Contribution   `json:"last_contribution"`
	Level            int            `json:"level"`
	StartedAt        string         `json:"started_at"`
}

// HypeTrainBeginEvent starts a hype train.
type HypeTrainBeginEvent struct {
	HypeTrainData
	ExpiresAt string `json:"expires_at"`
}

// HypeTrainProgressEvent moves a hype train forward.
type HypeTrainProgressEvent HypeTrainBeginEvent

// HypeTrainEndEvent finishes a hype train.
type HypeTrainEndEvent struct {
	HypeTrainData
	EndedAt        string `json:"ended_at"`
	CooldownEndsAt string `json:"cooldown_ends_at"`
}
