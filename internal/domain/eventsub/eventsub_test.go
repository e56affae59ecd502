package eventsub_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/okian/twitch-sources/internal/domain/eventsub"
	. "github.com/smartystreets/goconvey/convey"
)

const predictionBegin = `{
	"id": "1243456",
	"broadcaster_user_id": "1337",
	"broadcaster_user_login": "cool_user",
	"broadcaster_user_name": "Cool_User",
	"title": "Aren't shoes just really hard socks?",
	"outcomes": [
		{"id": "1243456", "title": "Yeah!", "color": "blue"},
		{"id": "2243456", "title": "No!", "color": "pink"}
	],
	"started_at": "2020-07-15T17:16:03.17106713Z",
	"locks_at": "2020-07-15T17:21:03.17106713Z"
}`

func TestSignature(t *testing.T) {
	Convey("Given a signed delivery", t, func() {
		secret, id, ts := "s3cr3t", "e76c6bd4-55c9-4987-8304-da1588d8988b", "2019-11-16T10:11:12.634234626Z"
		body := []byte(`{"event":{}}`)
		sig := eventsub.Sign(secret, id, ts, body)

		Convey("Then it has the sha256= prefix and verifies", func() {
			So(sig[:len(eventsub.SignaturePrefix)], ShouldEqual, "sha256=")
			So(len(sig), ShouldEqual, len("sha256=")+64)
			So(eventsub.Verify(secret, id, ts, body, sig), ShouldBeNil)
		})

		Convey("Then flipping a byte of any input fails verification", func() {
			flip := func(s string) string {
				b := []byte(s)
				b[0] ^= 0x01
				return string(b)
			}
			flippedBody := append([]byte(nil), body...)
			flippedBody[len(flippedBody)-1] ^= 0x01

			So(errors.Is(eventsub.Verify(flip(secret), id, ts, body, sig), eventsub.ErrInvalidSignature), ShouldBeTrue)
			So(errors.Is(eventsub.Verify(secret, flip(id), ts, body, sig), eventsub.ErrInvalidSignature), ShouldBeTrue)
			So(errors.Is(eventsub.Verify(secret, id, flip(ts), body, sig), eventsub.ErrInvalidSignature), ShouldBeTrue)
			So(errors.Is(eventsub.Verify(secret, id, ts, flippedBody, sig), eventsub.ErrInvalidSignature), ShouldBeTrue)
			So(errors.Is(eventsub.Verify(secret, id, ts, body, flip(sig)), eventsub.ErrInvalidSignature), ShouldBeTrue)
		})

		Convey("Then a signature without the prefix is rejected", func() {
			So(eventsub.Verify(secret, id, ts, body, sig[len("sha256="):]), ShouldNotBeNil)
		})
	})
}

func TestTopics(t *testing.T) {
	Convey("Given the topic table", t, func() {
		Convey("Then every prediction type belongs to predictions only", func() {
			for _, st := range []eventsub.SubType{
				eventsub.ChannelPredictionBegin, eventsub.ChannelPredictionProgress,
				eventsub.ChannelPredictionLock, eventsub.ChannelPredictionEnd,
			} {
				topics := eventsub.TopicsFor(st)
				So(len(topics), ShouldEqual, 1)
				So(topics[0].Name, ShouldEqual, eventsub.TopicPredictions)
			}
		})

		Convey("Then revocation belongs to no topic", func() {
			So(eventsub.TopicsFor(eventsub.UserAuthorizationRevoke), ShouldBeEmpty)
		})

		Convey("Then topics are found by name with their scopes", func() {
			tp, ok := eventsub.TopicByName("hype_train")
			So(ok, ShouldBeTrue)
			So(tp.Scopes, ShouldResemble, []string{"channel:read:hype_train"})
			So(tp.Has(eventsub.HypeTrainEnd), ShouldBeTrue)
			_, ok = eventsub.TopicByName("polls")
			So(ok, ShouldBeFalse)
		})

		Convey("Then every declared type is valid", func() {
			for _, st := range eventsub.SubTypes {
				So(st.Valid(), ShouldBeTrue)
			}
			So(eventsub.SubType("channel.follow").Valid(), ShouldBeFalse)
		})
	})
}

func TestParseEnvelope(t *testing.T) {
	Convey("Given a prediction begin payload", t, func() {
		env, err := eventsub.ParseEnvelope(eventsub.ChannelPredictionBegin, "2020-07-15T17:16:03Z", json.RawMessage(predictionBegin))

		Convey("Then it parses into the typed variant", func() {
			So(err, ShouldBeNil)
			So(env.Owner(), ShouldEqual, "1337")
			ev, ok := env.Event.(eventsub.PredictionBeginEvent)
			So(ok, ShouldBeTrue)
			So(len(ev.Outcomes), ShouldEqual, 2)
			So(ev.Outcomes[1].Color, ShouldEqual, "pink")
		})

		Convey("Then the wire form is externally tagged with msg_time", func() {
			b, err := json.Marshal(env)
			So(err, ShouldBeNil)
			var wire map[string]json.RawMessage
			So(json.Unmarshal(b, &wire), ShouldBeNil)
			So(string(wire["msg_time"]), ShouldEqual, `"2020-07-15T17:16:03Z"`)
			var data map[string]map[string]any
			So(json.Unmarshal(wire["data"], &data), ShouldBeNil)
			So(data["ChannelPredictionBegin"]["broadcaster_user_id"], ShouldEqual, "1337")
			So(data["ChannelPredictionBegin"]["locks_at"], ShouldEqual, "2020-07-15T17:21:03.17106713Z")

			Convey("And it decodes back to the same envelope", func() {
				var back eventsub.Envelope
				So(json.Unmarshal(b, &back), ShouldBeNil)
				So(back.Type, ShouldEqual, eventsub.ChannelPredictionBegin)
				So(back.Timestamp, ShouldEqual, env.Timestamp)
				So(back.Owner(), ShouldEqual, "1337")
			})
		})
	})

	Convey("Given a revocation payload", t, func() {
		env, err := eventsub.ParseEnvelope(eventsub.UserAuthorizationRevoke, "ts",
			json.RawMessage(`{"client_id":"crq72vsaoijkc83xx42hz6i37","user_id":"1337","user_login":null,"user_name":null}`))

		Convey("Then the owner is the revoked user", func() {
			So(err, ShouldBeNil)
			So(env.IsRevocation(), ShouldBeTrue)
			So(env.Owner(), ShouldEqual, "1337")
			ev := env.Event.(eventsub.UserAuthorizationRevokeEvent)
			So(ev.UserLogin, ShouldBeNil)
		})
	})

	Convey("Given malformed input", t, func() {
		Convey("When the event is not an object", func() {
			_, err := eventsub.ParseEnvelope(eventsub.ChannelPredictionLock, "ts", json.RawMessage(`[1,2]`))
			So(errors.Is(err, eventsub.ErrMalformedPayload), ShouldBeTrue)
		})

		Convey("When the owner id is missing", func() {
			_, err := eventsub.ParseEnvelope(eventsub.HypeTrainBegin, "ts", json.RawMessage(`{"id":"x","level":1}`))
			So(errors.Is(err, eventsub.ErrMalformedPayload), ShouldBeTrue)
		})

		Convey("When the type is unknown", func() {
			_, err := eventsub.ParseEnvelope("channel.follow", "ts", json.RawMessage(`{}`))
			So(errors.Is(err, eventsub.ErrUnsupportedType), ShouldBeTrue)
		})

		Convey("When the event is empty", func() {
			_, err := eventsub.ParseEnvelope(eventsub.HypeTrainEnd, "ts", nil)
			So(errors.Is(err, eventsub.ErrMalformedPayload), ShouldBeTrue)
		})
	})

	Convey("Given a typed hype train event", t, func() {
		ev := eventsub.HypeTrainEndEvent{
			HypeTrainData: eventsub.HypeTrainData{
				ID:          "abc",
				Broadcaster: eventsub.Broadcaster{BroadcasterUserID: "42"},
				Level:       3,
			},
			CooldownEndsAt: "2020-07-15T18:16:11.17106713Z",
		}

		env, err := eventsub.NewEnvelope(eventsub.HypeTrainEnd, "ts", ev)

		Convey("Then embedded fields are flattened on the wire", func() {
			So(err, ShouldBeNil)
			b, _ := json.Marshal(env)
			So(string(b), ShouldContainSubstring, `"HypeTrainEnd":{"id":"abc","broadcaster_user_id":"42"`)
			So(string(b), ShouldContainSubstring, `"cooldown_ends_at":"2020-07-15T18:16:11.17106713Z"`)
		})
	})
}

func TestUserScopes(t *testing.T) {
	Convey("Given a user with one scope", t, func() {
		u := eventsub.User{ID: "1", Scopes: []string{"channel:read:predictions"}}

		Convey("Then scope checks are subset checks", func() {
			So(u.HasScopes(nil), ShouldBeTrue)
			So(u.HasScopes([]string{"channel:read:predictions"}), ShouldBeTrue)
			So(u.HasScopes([]string{"channel:read:hype_train"}), ShouldBeFalse)
		})
	})

	Convey("Given conditions", t, func() {
		So(eventsub.BroadcasterCondition("7").Owner(), ShouldEqual, "7")
		So(eventsub.ClientCondition("app").Owner(), ShouldEqual, "")
	})
}
