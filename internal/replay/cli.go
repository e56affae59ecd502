package replay

import (
	"fmt"
	"io"
	"os"

	"github.com/okian/twitch-sources/pkg/logger"
)

const logFilePermission = 0o600

// SetupLogging sends tool output to stdout and, when logFile is set, to
// that file as well.
func SetupLogging(logFile string, verbose bool) error {
	var out io.Writer = os.Stdout
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, file)
	}
	if err := logger.Init(logger.WithOutput(out)); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		return logger.SetLevelString("debug")
	}
	return nil
}

// ShowHelp prints usage information for the replay tool.
func ShowHelp() {
	os.Stdout.WriteString(`Webhook Replay Tool
===================

Sends signed webhook deliveries from a YAML fixture to a running bridge and
optionally streams a widget topic while doing so.

Usage:
  go run ./cmd/webhook-replay -fixture <file> [options]

Options:
  -url string
        Base URL of the bridge (default "http://localhost:9080")
  -fixture string
        YAML fixture with the deliveries to send
  -secret string
        Override the secret of every delivery
  -watch string
        Topic to stream while replaying (predictions, hype_train)
  -token string
        Session token for the watch connection
  -linger duration
        Keep watching this long after the last delivery (default 2s)
  -timeout duration
        HTTP request timeout (default 10s)
  -log string
        Also write output to this file
  -verbose
        Log every response and frame
  -help
        Show this help message

Fixture:
  name: predictions
  secret: <subscription secret>
  deliveries:
    - name: begin
      message_type: notification
      subscription_id: <external id>
      subscription_type: channel.prediction.begin
      delay: 1s
      event: { id: p1, broadcaster_user_id: "1337", title: Test, outcomes: [] }
`)
}
