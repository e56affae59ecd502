package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/twitch-sources/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

var configEnvVars = []string{
	"TWSRC_CONFIG", "TWSRC_ADDR", "TWSRC_CLIENT_ID", "TWSRC_CLIENT_SECRET", "TWSRC_SESSION_SECRET",
	"TWSRC_TOKEN_TTL", "TWSRC_IN_MEMORY", "TWSRC_WEBHOOK_RATE", "TWSRC_BASE_URL",
}

func clearConfigEnvVars() {
	for _, k := range configEnvVars {
		_ = os.Unsetenv(k)
	}
}

func setCredentials() {
	_ = os.Setenv("TWSRC_CLIENT_ID", "client")
	_ = os.Setenv("TWSRC_CLIENT_SECRET", "secret")
	_ = os.Setenv("TWSRC_SESSION_SECRET", "0123456789abcdef0123456789abcdef")
}

func createTempConfigFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When no credentials are provided", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then validation rejects it", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading with environment variables", func() {
			setCredentials()
			_ = os.Setenv("TWSRC_ADDR", ":8080")
			_ = os.Setenv("TWSRC_TOKEN_TTL", "2h")
			_ = os.Setenv("TWSRC_IN_MEMORY", "true")
			_ = os.Setenv("TWSRC_WEBHOOK_RATE", "5.5")

			cfg, err := config.Load(ctx)

			convey.Convey("Then env overrides defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.ClientID, convey.ShouldEqual, "client")
				convey.So(cfg.TokenTTL, convey.ShouldEqual, 2*time.Hour)
				convey.So(cfg.InMemory, convey.ShouldBeTrue)
				convey.So(cfg.WebhookRate, convey.ShouldEqual, 5.5)
			})
		})

		convey.Convey("When loading with a YAML file and env", func() {
			setCredentials()
			path := createTempConfigFile(t, `
addr: ":9090"
base_url: "https://widgets.example.com"
ws_send_buffer: 64
`)
			_ = os.Setenv("TWSRC_CONFIG", path)
			_ = os.Setenv("TWSRC_ADDR", ":7070")

			cfg, err := config.Load(ctx)

			convey.Convey("Then env wins over the file and the file wins over defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.BaseURL, convey.ShouldEqual, "https://widgets.example.com")
				convey.So(cfg.WSSendBuffer, convey.ShouldEqual, 64)
				convey.So(cfg.TokenTTL, convey.ShouldEqual, 24*time.Hour)
			})
		})

		convey.Convey("When the YAML file is invalid", func() {
			setCredentials()
			_ = os.Setenv("TWSRC_CONFIG", createTempConfigFile(t, `invalid: yaml: content: [`))

			cfg, err := config.Load(ctx)

			convey.Convey("Then it returns a load error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the YAML file does not exist", func() {
			setCredentials()
			_ = os.Setenv("TWSRC_CONFIG", "/non/existent/file.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it returns a load error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When addr is emptied through env", func() {
			setCredentials()
			_ = os.Setenv("TWSRC_ADDR", "")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it returns a validation error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
			})
		})
	})
}
