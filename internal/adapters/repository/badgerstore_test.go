package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/twitch-sources/internal/domain/eventsub"
	. "github.com/smartystreets/goconvey/convey"
)

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := NewBadgerStore(WithInMemory(true))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sub(owner, ext string, typ eventsub.SubType) eventsub.Subscription {
	return eventsub.Subscription{
		ID:         "id-" + ext,
		Owner:      owner,
		Secret:     "secret-" + ext,
		ExternalID: ext,
		Type:       typ,
		CreatedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestBadgerStoreRegistry(t *testing.T) {
	ctx := context.Background()

	Convey("Given an empty in-memory store", t, func() {
		s := newTestStore(t)

		Convey("When a batch is inserted", func() {
			err := s.InsertBatch(ctx, []eventsub.Subscription{
				sub("1337", "a", eventsub.ChannelPredictionBegin),
				sub("1337", "b", eventsub.ChannelPredictionEnd),
				sub("42", "c", eventsub.ChannelPredictionBegin),
				sub("", "r", eventsub.UserAuthorizationRevoke),
			})
			So(err, ShouldBeNil)

			Convey("Then records are found by external id", func() {
				got, err := s.FindByExternalID(ctx, "b")
				So(err, ShouldBeNil)
				So(got.Owner, ShouldEqual, "1337")
				So(got.Secret, ShouldEqual, "secret-b")
				So(got.Type, ShouldEqual, eventsub.ChannelPredictionEnd)
			})

			Convey("Then owner lookups only see the owner's requested types", func() {
				got, err := s.FindByOwner(ctx, "1337", []eventsub.SubType{
					eventsub.ChannelPredictionBegin, eventsub.ChannelPredictionLock,
				})
				So(err, ShouldBeNil)
				So(len(got), ShouldEqual, 1)
				So(got[0].ExternalID, ShouldEqual, "a")
			})

			Convey("Then platform-wide records use the empty owner", func() {
				got, err := s.FindByOwner(ctx, "", []eventsub.SubType{eventsub.UserAuthorizationRevoke})
				So(err, ShouldBeNil)
				So(len(got), ShouldEqual, 1)
				So(got[0].ExternalID, ShouldEqual, "r")
			})

			Convey("Then the count covers every record", func() {
				n, err := s.Count(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 4)
			})

			Convey("Then a batch with a duplicate id fails and writes nothing", func() {
				err := s.InsertBatch(ctx, []eventsub.Subscription{
					sub("7", "new", eventsub.HypeTrainBegin),
					sub("7", "a", eventsub.HypeTrainEnd),
				})
				So(errors.Is(err, ErrConflict), ShouldBeTrue)
				_, err = s.FindByExternalID(ctx, "new")
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})

			Convey("Then delete removes the record and its index", func() {
				So(s.DeleteByExternalID(ctx, "a"), ShouldBeNil)
				_, err := s.FindByExternalID(ctx, "a")
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				got, err := s.FindByOwner(ctx, "1337", []eventsub.SubType{eventsub.ChannelPredictionBegin})
				So(err, ShouldBeNil)
				So(got, ShouldBeEmpty)

				Convey("And deleting again reports not found", func() {
					So(errors.Is(s.DeleteByExternalID(ctx, "a"), ErrNotFound), ShouldBeTrue)
				})
			})

			Convey("Then connection telemetry is stamped", func() {
				at := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
				So(s.TouchConnect(ctx, "c", at), ShouldBeNil)
				So(s.TouchDisconnect(ctx, "c", at.Add(time.Minute)), ShouldBeNil)
				got, err := s.FindByExternalID(ctx, "c")
				So(err, ShouldBeNil)
				So(got.LastConnectAt.Equal(at), ShouldBeTrue)
				So(got.LastDisconnectAt.Equal(at.Add(time.Minute)), ShouldBeTrue)
				So(errors.Is(s.TouchConnect(ctx, "missing", at), ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When a record is invalid", func() {
			err := s.InsertBatch(ctx, []eventsub.Subscription{sub("1", "", eventsub.HypeTrainBegin)})
			So(errors.Is(err, ErrInvalid), ShouldBeTrue)
		})

		Convey("When the store is closed", func() {
			So(s.Close(), ShouldBeNil)
			_, err := s.FindByExternalID(ctx, "a")
			So(errors.Is(err, ErrClosed), ShouldBeTrue)
			So(s.Close(), ShouldBeNil)
		})
	})
}

func TestBadgerStoreUsers(t *testing.T) {
	ctx := context.Background()

	Convey("Given a stored user", t, func() {
		s := newTestStore(t)
		So(s.SaveUser(ctx, eventsub.User{ID: "1337", Login: "cool_user", Scopes: []string{"channel:read:predictions"}}), ShouldBeNil)

		Convey("Then it can be read back with a creation time", func() {
			u, err := s.GetUser(ctx, "1337")
			So(err, ShouldBeNil)
			So(u.Login, ShouldEqual, "cool_user")
			So(u.Scopes, ShouldResemble, []string{"channel:read:predictions"})
			So(u.CreatedAt.IsZero(), ShouldBeFalse)
		})

		Convey("Then delete removes it once", func() {
			So(s.DeleteUser(ctx, "1337"), ShouldBeNil)
			_, err := s.GetUser(ctx, "1337")
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			So(errors.Is(s.DeleteUser(ctx, "1337"), ErrNotFound), ShouldBeTrue)
		})

		Convey("Then an empty id is rejected", func() {
			So(errors.Is(s.SaveUser(ctx, eventsub.User{}), ErrInvalid), ShouldBeTrue)
		})
	})
}
