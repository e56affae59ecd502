package replay

import "time"

// Config holds the settings of one replay run.
type Config struct {
	BaseURL     string        // Base URL of the bridge
	FixturePath string        // YAML fixture with the deliveries to send
	Secret      string        // Overrides every delivery's secret when set
	Timeout     time.Duration // HTTP request timeout
	WatchTopic  string        // Topic to stream while replaying; empty disables
	WatchToken  string        // Session token used for the watch connection
	Linger      time.Duration // How long to keep watching after the last delivery
	Verbose     bool          // Log every frame and response
}

// Fixture is a named sequence of deliveries.
type Fixture struct {
	Name       string     `yaml:"name"`
	Secret     string     `yaml:"secret"`
	Deliveries []Delivery `yaml:"deliveries"`
}

// Delivery is one signed webhook request.
type Delivery struct {
	Name             string         `yaml:"name"`
	MessageType      string         `yaml:"message_type"`
	SubscriptionID   string         `yaml:"subscription_id"`
	SubscriptionType string         `yaml:"subscription_type"`
	Secret           string         `yaml:"secret"`
	Delay            time.Duration  `yaml:"delay"`
	Challenge        string         `yaml:"challenge"`
	Event            map[string]any `yaml:"event"`
	ExpectStatus     int            `yaml:"expect_status"`
}

// Stats holds replay statistics.
type Stats struct {
	Sent       int
	Matched    int
	Mismatched int
	Failed     int
	Frames     int
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
}
