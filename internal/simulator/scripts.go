package simulator

import (
	"context"
	"time"

	"github.com/okian/twitch-sources/internal/domain/eventsub"
)

const (
	predictionsLength = 13 * time.Second
	predictionsLockAt = predictionsLength - 2*time.Second
	hypeTrainLength   = 9 * time.Second
	hypeTrainCooldown = 30 * time.Second

	predictionTitle = "Some decently long title, just to make sure nothing breaks and stuff, and just a bit more"
	winningOutcome  = "1243456"
)

var predictionOutcomes = []struct {
	id, title string
	predictor eventsub.TopPredictor
}{
	{"1243456", "Somewhat a long option", eventsub.TopPredictor{UserID: "1234", UserLogin: "cool_user", UserName: "Cool_User", ChannelPointsUsed: 1000}},
	{"2243456", "Short option", eventsub.TopPredictor{UserID: "12345", UserLogin: "cooler_user", UserName: "Cooler_User", ChannelPointsUsed: 2000}},
	{"3243456", "But there's more!", eventsub.TopPredictor{UserID: "123456", UserLogin: "coolest_user", UserName: "Coolest_User", ChannelPointsUsed: 3000}},
	{"4243456", "Another one", eventsub.TopPredictor{UserID: "1234567", UserLogin: "coolio_user", UserName: "Coolio_User", ChannelPointsUsed: 4000}},
}

// outcomes returns every option with the first voted options holding one
// predictor each.
func outcomes(voted int) []eventsub.Outcome {
	out := make([]eventsub.Outcome, len(predictionOutcomes))
	for i, o := range predictionOutcomes {
		out[i] = eventsub.Outcome{
			ID:            o.id,
			Title:         o.title,
			Color:         "blue",
			TopPredictors: []eventsub.TopPredictor{},
		}
		if i < voted {
			out[i].Users = 1
			out[i].ChannelPoints = o.predictor.ChannelPointsUsed
			out[i].TopPredictors = []eventsub.TopPredictor{o.predictor}
		}
	}
	return out
}

// predictionsScript: begin, four progress updates, lock at T+11s and a
// resolved end at T+13s.
func predictionsScript(ctx context.Context, r *run) error {
	lockAt := r.start.Add(predictionsLockAt)
	endAt := r.start.Add(predictionsLength)

	progress := func(voted int) eventsub.PredictionBeginEvent {
		return eventsub.PredictionBeginEvent{
			ID:          r.id,
			Broadcaster: r.broadcaster(),
			Title:       predictionTitle,
			Outcomes:    outcomes(voted),
			StartedAt:   stamp(r.start),
			LocksAt:     stamp(lockAt),
		}
	}

	if err := r.emit(ctx, eventsub.ChannelPredictionBegin, progress(0)); err != nil {
		return err
	}
	for voted, delay := range []time.Duration{time.Second, 3 * time.Second, 2 * time.Second, 2 * time.Second} {
		if err := r.wait(ctx, delay); err != nil {
			return err
		}
		if err := r.emit(ctx, eventsub.ChannelPredictionProgress, eventsub.PredictionProgressEvent(progress(voted+1))); err != nil {
			return err
		}
	}

	if err := r.waitUntil(ctx, lockAt); err != nil {
		return err
	}
	lock := eventsub.PredictionLockEvent{
		ID:          r.id,
		Broadcaster: r.broadcaster(),
		Title:       predictionTitle,
		Outcomes:    outcomes(len(predictionOutcomes)),
		StartedAt:   stamp(r.start),
		LockedAt:    stamp(lockAt),
	}
	if err := r.emit(ctx, eventsub.ChannelPredictionLock, lock); err != nil {
		return err
	}

	if err := r.waitUntil(ctx, endAt); err != nil {
		return err
	}
	winner := winningOutcome
	end := eventsub.PredictionEndEvent{
		ID:               r.id,
		Broadcaster:      r.broadcaster(),
		Title:            predictionTitle,
		WinningOutcomeID: &winner,
		Outcomes:         outcomes(len(predictionOutcomes)),
		Status:           eventsub.PredictionResolved,
		StartedAt:        stamp(r.start),
		EndedAt:          stamp(endAt),
	}
	return r.emit(ctx, eventsub.ChannelPredictionEnd, end)
}

func contribution(kind string, total int64) eventsub.Contribution {
	return eventsub.Contribution{
		UserID:    "1234",
		UserLogin: "cool_user",
		UserName:  "Cool_User",
		Type:      kind,
		Total:     total,
	}
}

type hypeStep struct {
	total, progress, goal int64
	level                 int
	top                   []eventsub.Contribution
	last                  eventsub.Contribution
	after                 time.Duration
}

var hypeSteps = []hypeStep{
	{
		total: 500, progress: 500, goal: 2000, level: 1,
		top:   []eventsub.Contribution{contribution(eventsub.ContributionSubscription, 500)},
		last:  contribution(eventsub.ContributionSubscription, 500),
		after: 2 * time.Second,
	},
	{
		total: 1500, progress: 1500, goal: 2000, level: 1,
		top:   []eventsub.Contribution{contribution(eventsub.ContributionSubscription, 1000)},
		last:  contribution(eventsub.ContributionSubscription, 1000),
		after: 2 * time.Second,
	},
	{
		total: 2000, progress: 0, goal: 3000, level: 2,
		top:   []eventsub.Contribution{contribution(eventsub.ContributionSubscription, 1000)},
		last:  contribution(eventsub.ContributionSubscription, 500),
		after: 2 * time.Second,
	},
	{
		total: 7000, progress: 2000, goal: 5000, level: 3,
		top: []eventsub.Contribution{
			contribution(eventsub.ContributionSubscription, 1000),
			contribution(eventsub.ContributionBits, 5000),
		},
		last:  contribution(eventsub.ContributionBits, 5000),
		after: 3 * time.Second,
	},
}

// hypeTrainScript: begin at level 1, three progress updates up to level 3,
// then an end with a 30s cooldown.
func hypeTrainScript(ctx context.Context, r *run) error {
	expiresAt := stamp(r.start.Add(hypeTrainLength))

	data := func(st hypeStep) eventsub.HypeTrainData {
		return eventsub.HypeTrainData{
			ID:               r.id,
			Broadcaster:      r.broadcaster(),
			Total:            st.total,
			Progress:         st.progress,
			Goal:             st.goal,
			TopContributions: st.top,
			LastContribution: st.last,
			Level:            st.level,
			StartedAt:        stamp(r.start),
		}
	}

	for i, st := range hypeSteps {
		ev := eventsub.HypeTrainBeginEvent{HypeTrainData: data(st), ExpiresAt: expiresAt}
		var err error
		if i == 0 {
			err = r.emit(ctx, eventsub.HypeTrainBegin, ev)
		} else {
			err = r.emit(ctx, eventsub.HypeTrainProgress, eventsub.HypeTrainProgressEvent(ev))
		}
		if err != nil {
			return err
		}
		if err := r.wait(ctx, st.after); err != nil {
			return err
		}
	}

	now := r.sim.now()
	end := eventsub.HypeTrainEndEvent{
		HypeTrainData:  data(hypeSteps[len(hypeSteps)-1]),
		EndedAt:        stamp(now),
		CooldownEndsAt: stamp(now.Add(hypeTrainCooldown)),
	}
	return r.emit(ctx, eventsub.HypeTrainEnd, end)
}
