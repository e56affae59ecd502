package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/twitch-sources/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func validConfig() *config.Config {
	cfg := config.New()
	cfg.ClientID = "client"
	cfg.ClientSecret = "secret"
	cfg.SessionSecret = "0123456789abcdef0123456789abcdef"
	return cfg
}

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.TokenTTL, convey.ShouldEqual, 24*time.Hour)
			convey.So(cfg.TokenURL, convey.ShouldEqual, "https://id.twitch.tv/oauth2/token")
			convey.So(cfg.APIURL, convey.ShouldEqual, "https://api.twitch.tv/helix")
			convey.So(cfg.WSSendBuffer, convey.ShouldEqual, 256)
		})

		convey.Convey("Then credentials are required before it validates", func() {
			err := cfg.Validate()
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a complete config", t, func() {
		cfg := validConfig()

		convey.Convey("Then it validates", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("When the session secret is short", func() {
			cfg.SessionSecret = "short"

			convey.Convey("Then validation fails", func() {
				convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the base URL is relative", func() {
			cfg.BaseURL = "/relative"

			convey.Convey("Then validation names the key", func() {
				err := cfg.Validate()
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "base_url")
			})
		})

		convey.Convey("When no data dir is set without in-memory mode", func() {
			cfg.DataDir = ""

			convey.Convey("Then validation fails until in-memory mode is enabled", func() {
				convey.So(cfg.Validate(), convey.ShouldNotBeNil)
				cfg.InMemory = true
				convey.So(cfg.Validate(), convey.ShouldBeNil)
			})
		})
	})
}

func TestConfig_CallbackURL(t *testing.T) {
	convey.Convey("Given base URLs with and without a trailing slash", t, func() {
		cfg := validConfig()

		convey.Convey("Then the callback always ends in /webhook/", func() {
			cfg.BaseURL = "https://example.com"
			convey.So(cfg.CallbackURL(), convey.ShouldEqual, "https://example.com/webhook/")
			cfg.BaseURL = "https://example.com/"
			convey.So(cfg.CallbackURL(), convey.ShouldEqual, "https://example.com/webhook/")
		})
	})
}
