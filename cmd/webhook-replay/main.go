package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/twitch-sources/internal/replay"
)

// Default configuration constants.
const (
	defaultTimeout    = 10 * time.Second
	defaultLinger     = 2 * time.Second
	defaultRunTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL = flag.String("url", "http://localhost:9080", "Base URL of the bridge")
		fixture = flag.String("fixture", "", "YAML fixture with the deliveries to send")
		secret  = flag.String("secret", "", "Override the secret of every delivery")
		watch   = flag.String("watch", "", "Topic to stream while replaying")
		token   = flag.String("token", "", "Session token for the watch connection")
		linger  = flag.Duration("linger", defaultLinger, "Keep watching this long after the last delivery")
		timeout = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		logFile = flag.String("log", "", "Also write output to this file")
		verbose = flag.Bool("verbose", false, "Log every response and frame")
		help    = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help || *fixture == "" {
		replay.ShowHelp()
		return
	}

	if err := replay.SetupLogging(*logFile, *verbose); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	cfg := &replay.Config{
		BaseURL:     *baseURL,
		FixturePath: *fixture,
		Secret:      *secret,
		Timeout:     *timeout,
		WatchTopic:  *watch,
		WatchToken:  *token,
		Linger:      *linger,
		Verbose:     *verbose,
	}

	if _, err := replay.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("Replay failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
