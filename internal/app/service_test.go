package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	service "github.com/okian/twitch-sources/internal/app"
	"github.com/okian/twitch-sources/internal/config"
	"github.com/okian/twitch-sources/internal/domain/eventsub"
	"github.com/okian/twitch-sources/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type createdSub struct {
	id     string
	typ    eventsub.SubType
	cond   eventsub.Condition
	secret string
}

// fakeUpstream plays the platform's token and subscription endpoints.
type fakeUpstream struct {
	mu      sync.Mutex
	server  *httptest.Server
	created []createdSub
	fail    bool
}

func newFakeUpstream() *fakeUpstream {
	f := &fakeUpstream{}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "app-token", "expires_in": 3600, "token_type": "bearer"})
	})
	mux.HandleFunc("/helix/eventsub/subscriptions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Type      eventsub.SubType   `json:"type"`
			Condition eventsub.Condition `json:"condition"`
			Transport struct {
				Secret string `json:"secret"`
			} `json:"transport"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.fail {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"Service Unavailable","status":503,"message":"down"}`))
			return
		}
		id := fmt.Sprintf("ext-%d", len(f.created)+1)
		f.created = append(f.created, createdSub{id: id, typ: req.Type, cond: req.Condition, secret: req.Transport.Secret})
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{
				"id": id, "status": "webhook_callback_verification_pending",
				"type": req.Type, "version": "1", "condition": req.Condition,
				"created_at": time.Now().UTC().Format(time.RFC3339), "cost": 1,
			}},
			"total": len(f.created), "total_cost": 1, "max_total_cost": 10000,
		})
	})
	f.server = httptest.NewServer(mux)
	return f
}

func (f *fakeUpstream) snapshot() []createdSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]createdSub(nil), f.created...)
}

func (f *fakeUpstream) find(t eventsub.SubType) (createdSub, bool) {
	for _, c := range f.snapshot() {
		if c.typ == t {
			return c, true
		}
	}
	return createdSub{}, false
}

func testConfig(f *fakeUpstream) *config.Config {
	cfg := config.New()
	cfg.InMemory = true
	cfg.ClientID = "app-client"
	cfg.ClientSecret = "app-secret"
	cfg.TokenURL = f.server.URL + "/oauth2/token"
	cfg.APIURL = f.server.URL + "/helix"
	cfg.BaseURL = "https://bridge.example"
	cfg.SessionSecret = "0123456789abcdef0123456789abcdef"
	return cfg
}

func TestService_New(t *testing.T) {
	Convey("Given a service that was never started", t, func() {
		svc := service.New()
		ctx := context.Background()

		Convey("Then stats report it as stopped", func() {
			So(svc.GetStats()["started"], ShouldEqual, false)
		})

		Convey("And API operations fail with ErrNotStarted", func() {
			_, err := svc.Lookup(ctx, "x")
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(errors.Is(svc.Remove(ctx, "x"), service.ErrNotStarted), ShouldBeTrue)
			So(errors.Is(svc.StartTest(ctx, "u", "predictions"), service.ErrNotStarted), ShouldBeTrue)
			So(svc.Sessions(), ShouldBeNil)
			So(svc.Relay(), ShouldBeNil)
		})

		Convey("And Stop is a no-op", func() {
			svc.Stop()
		})
	})
}

func TestService_Start(t *testing.T) {
	Convey("Given a service against a fake upstream", t, func() {
		up := newFakeUpstream()
		defer up.server.Close()
		svc := service.New(service.WithConfig(testConfig(up)), service.WithLogger(logger.Nop()))
		defer svc.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		Convey("When starting the service", func() {
			So(svc.Start(ctx), ShouldBeNil)

			Convey("Then the platform-wide revocation subscription is created once", func() {
				created := up.snapshot()
				So(len(created), ShouldEqual, 1)
				So(created[0].typ, ShouldEqual, eventsub.UserAuthorizationRevoke)
				So(created[0].cond, ShouldResemble, eventsub.ClientCondition("app-client"))
				So(len(created[0].secret), ShouldEqual, 50)

				sub, err := svc.Lookup(ctx, created[0].id)
				So(err, ShouldBeNil)
				So(sub.Owner, ShouldBeEmpty)
			})

			Convey("And a second Start is a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
				So(len(up.snapshot()), ShouldEqual, 1)
			})

			Convey("And stats report the stored subscription", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["subscriptions"], ShouldEqual, 1)
			})

			Convey("And a removed subscription is gone", func() {
				id := up.snapshot()[0].id
				So(svc.Remove(ctx, id), ShouldBeNil)
				_, err := svc.Lookup(ctx, id)
				So(errors.Is(err, eventsub.ErrNotFound), ShouldBeTrue)
			})
		})
	})

	Convey("Given an upstream that refuses subscriptions", t, func() {
		up := newFakeUpstream()
		defer up.server.Close()
		up.fail = true
		svc := service.New(service.WithConfig(testConfig(up)), service.WithLogger(logger.Nop()))

		Convey("Then Start fails and leaves the service stopped", func() {
			So(svc.Start(context.Background()), ShouldNotBeNil)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})
	})
}
