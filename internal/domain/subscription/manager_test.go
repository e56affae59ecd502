package subscription

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/twitch-sources/internal/domain/eventsub"
	"github.com/okian/twitch-sources/internal/domain/token"
	. "github.com/smartystreets/goconvey/convey"
)

type memRegistry struct {
	mu       sync.Mutex
	subs     map[string]eventsub.Subscription
	inserts  int
	failFind error
}

func newMemRegistry(subs ...eventsub.Subscription) *memRegistry {
	r := &memRegistry{subs: make(map[string]eventsub.Subscription)}
	for _, s := range subs {
		r.subs[s.ExternalID] = s
	}
	return r
}

func (r *memRegistry) FindByExternalID(_ context.Context, id string) (eventsub.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return eventsub.Subscription{}, ErrNotFound
	}
	return s, nil
}

func (r *memRegistry) FindByOwner(_ context.Context, owner string, types []eventsub.SubType) ([]eventsub.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFind != nil {
		return nil, r.failFind
	}
	var out []eventsub.Subscription
	for _, s := range r.subs {
		for _, t := range types {
			if s.Owner == owner && s.Type == t {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

func (r *memRegistry) InsertBatch(_ context.Context, subs []eventsub.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserts++
	for _, s := range subs {
		r.subs[s.ExternalID] = s
	}
	return nil
}

func (r *memRegistry) DeleteByExternalID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(r.subs, id)
	return nil
}

func (r *memRegistry) TouchConnect(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return ErrNotFound
	}
	s.LastConnectAt = at
	r.subs[id] = s
	return nil
}

func (r *memRegistry) TouchDisconnect(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return ErrNotFound
	}
	s.LastDisconnectAt = at
	r.subs[id] = s
	return nil
}

type staticTokens struct{ err error }

func (s staticTokens) Token(context.Context) (token.AppToken, error) {
	if s.err != nil {
		return token.AppToken{}, s.err
	}
	return token.AppToken{Value: "tok", IssuedAt: time.Now()}, nil
}

type mockCreator struct {
	mu     sync.Mutex
	calls  []CreateRequest
	n      atomic.Int32
	failOn eventsub.SubType
	delay  time.Duration
}

func (c *mockCreator) Create(ctx context.Context, accessToken string, req CreateRequest) (string, error) {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	c.mu.Lock()
	c.calls = append(c.calls, req)
	c.mu.Unlock()
	if req.Type == c.failOn {
		return "", errors.New("upstream said no")
	}
	return fmt.Sprintf("ext-%d", c.n.Add(1)), nil
}

func (c *mockCreator) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func TestGetOrCreate(t *testing.T) {
	ctx := context.Background()
	types := []eventsub.SubType{eventsub.ChannelPredictionBegin, eventsub.ChannelPredictionEnd}

	Convey("Given a registry holding only the begin subscription", t, func() {
		reg := newMemRegistry(eventsub.Subscription{
			ID: "a", Owner: "1337", Secret: "s", ExternalID: "ext-a", Type: eventsub.ChannelPredictionBegin,
		})
		creator := &mockCreator{}
		m := NewManager(reg, staticTokens{}, creator, "https://example.com/webhook/")

		Convey("When both types are requested", func() {
			subs, err := m.GetOrCreate(ctx, types, eventsub.BroadcasterCondition("1337"))

			Convey("Then exactly one create is issued and both are returned", func() {
				So(err, ShouldBeNil)
				So(creator.count(), ShouldEqual, 1)
				So(creator.calls[0].Type, ShouldEqual, eventsub.ChannelPredictionEnd)
				So(creator.calls[0].Callback, ShouldEqual, "https://example.com/webhook/")
				So(len(creator.calls[0].Secret), ShouldEqual, 50)
				So(creator.calls[0].Condition.BroadcasterUserID, ShouldEqual, "1337")

				So(len(subs), ShouldEqual, 2)
				got := map[eventsub.SubType]string{}
				for _, s := range subs {
					got[s.Type] = s.ExternalID
				}
				So(got[eventsub.ChannelPredictionBegin], ShouldEqual, "ext-a")
				So(got[eventsub.ChannelPredictionEnd], ShouldEqual, "ext-1")
			})

			Convey("Then the new record is persisted in one batch", func() {
				So(reg.inserts, ShouldEqual, 1)
				s, err := m.Lookup(ctx, "ext-1")
				So(err, ShouldBeNil)
				So(s.Owner, ShouldEqual, "1337")
				So(s.ID, ShouldNotBeEmpty)
			})

			Convey("And a second call creates nothing", func() {
				_, err := m.GetOrCreate(ctx, types, eventsub.BroadcasterCondition("1337"))
				So(err, ShouldBeNil)
				So(creator.count(), ShouldEqual, 1)
			})
		})
	})

	Convey("Given an empty registry and a create that fails", t, func() {
		reg := newMemRegistry()
		creator := &mockCreator{failOn: eventsub.ChannelPredictionEnd}
		m := NewManager(reg, staticTokens{}, creator, "cb")

		Convey("Then the call fails and nothing is persisted", func() {
			_, err := m.GetOrCreate(ctx, types, eventsub.BroadcasterCondition("1"))
			So(errors.Is(err, ErrCreate), ShouldBeTrue)
			So(reg.inserts, ShouldEqual, 0)
		})
	})

	Convey("Given a token source that fails", t, func() {
		m := NewManager(newMemRegistry(), staticTokens{err: token.ErrFetch}, &mockCreator{}, "cb")

		Convey("Then ErrToken wraps the cause", func() {
			_, err := m.GetOrCreate(ctx, types, eventsub.BroadcasterCondition("1"))
			So(errors.Is(err, ErrToken), ShouldBeTrue)
			So(errors.Is(err, token.ErrFetch), ShouldBeTrue)
		})
	})

	Convey("Given a platform-wide condition", t, func() {
		reg := newMemRegistry()
		creator := &mockCreator{}
		m := NewManager(reg, staticTokens{}, creator, "cb")

		Convey("Then the record has no owner", func() {
			subs, err := m.GetOrCreate(ctx, []eventsub.SubType{eventsub.UserAuthorizationRevoke}, eventsub.ClientCondition("app"))
			So(err, ShouldBeNil)
			So(subs[0].Owner, ShouldBeEmpty)
			So(creator.calls[0].Condition.ClientID, ShouldEqual, "app")
		})
	})

	Convey("Given concurrent first connections for the same owner", t, func() {
		reg := newMemRegistry()
		creator := &mockCreator{delay: 20 * time.Millisecond}
		m := NewManager(reg, staticTokens{}, creator, "cb")

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = m.GetOrCreate(ctx, types, eventsub.BroadcasterCondition("9"))
			}()
		}
		wg.Wait()

		Convey("Then each type is created once and the lock table drains", func() {
			So(creator.count(), ShouldEqual, 2)
			So(m.locks.size(), ShouldEqual, 0)
		})
	})

	Convey("Given a create in flight for the same owner", t, func() {
		reg := newMemRegistry()
		creator := &mockCreator{delay: 300 * time.Millisecond}
		m := NewManager(reg, staticTokens{}, creator, "cb")

		first := make(chan error, 1)
		go func() {
			_, err := m.GetOrCreate(ctx, types, eventsub.BroadcasterCondition("9"))
			first <- err
		}()
		for m.locks.size() == 0 {
			time.Sleep(time.Millisecond)
		}

		Convey("When a second caller's deadline passes while it waits", func() {
			waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
			defer cancel()
			start := time.Now()
			_, err := m.GetOrCreate(waitCtx, types, eventsub.BroadcasterCondition("9"))
			elapsed := time.Since(start)

			Convey("Then it returns at its deadline without creating anything", func() {
				So(errors.Is(err, ErrLocked), ShouldBeTrue)
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
				So(elapsed, ShouldBeLessThan, 250*time.Millisecond)
				So(<-first, ShouldBeNil)
				So(creator.count(), ShouldEqual, 2)
				So(m.locks.size(), ShouldEqual, 0)
			})
		})
	})

	Convey("Requesting no types is an error", t, func() {
		m := NewManager(newMemRegistry(), staticTokens{}, &mockCreator{}, "cb")
		_, err := m.GetOrCreate(ctx, nil, eventsub.BroadcasterCondition("1"))
		So(errors.Is(err, ErrNoTypes), ShouldBeTrue)
	})
}

func TestRemoveAndTelemetry(t *testing.T) {
	ctx := context.Background()

	Convey("Given one stored subscription", t, func() {
		reg := newMemRegistry(eventsub.Subscription{ExternalID: "x", Owner: "1", Type: eventsub.HypeTrainBegin})
		now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
		m := NewManager(reg, staticTokens{}, &mockCreator{}, "cb", WithClock(func() time.Time { return now }))

		Convey("Then connect and disconnect times are recorded and unknown ids ignored", func() {
			m.UpdateConnectTime(ctx, []string{"x", "missing"})
			m.UpdateDisconnectTime(ctx, []string{"x"})
			s, _ := m.Lookup(ctx, "x")
			So(s.LastConnectAt, ShouldEqual, now)
			So(s.LastDisconnectAt, ShouldEqual, now)
		})

		Convey("Then remove succeeds once and then reports not found", func() {
			So(m.Remove(ctx, "x"), ShouldBeNil)
			So(errors.Is(m.Remove(ctx, "x"), ErrNotFound), ShouldBeTrue)
		})
	})

	Convey("ExternalIDs projects ids in order", t, func() {
		So(ExternalIDs([]eventsub.Subscription{{ExternalID: "a"}, {ExternalID: "b"}}), ShouldResemble, []string{"a", "b"})
	})
}
