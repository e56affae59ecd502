package eventsub

import "slices"

// Topic names.
const (
	TopicPredictions = "predictions"
	TopicHypeTrain   = "hype_train"
)

// Topic groups the subscription types one widget family listens to.
type Topic struct {
	Name   string
	Types  []SubType
	Scopes []string
}

// Has reports whether t is a member of the topic.
func (tp Topic) Has(t SubType) bool {
	return slices.Contains(tp.Types, t)
}

// Topics is the static topic table.
var Topics = []Topic{
	{
		Name: TopicPredictions,
		Types: []SubType{
			ChannelPredictionBegin,
			ChannelPredictionProgress,
			ChannelPredictionLock,
			ChannelPredictionEnd,
		},
		Scopes: []string{"channel:read:predictions"},
	},
	{
		Name: TopicHypeTrain,
		Types: []SubType{
			HypeTrainBegin,
			HypeTrainProgress,
			HypeTrainEnd,
		},
		Scopes: []string{"channel:read:hype_train"},
	},
}

// TopicByName looks a topic up by name.
func TopicByName(name string) (Topic, bool) {
	for _, tp := range Topics {
		if tp.Name == name {
			return tp, true
		}
	}
	return Topic{}, false
}

// TopicsFor returns every topic containing t, in table order.
func TopicsFor(t SubType) []Topic {
	var out []Topic
	for _, tp := range Topics {
		if tp.Has(t) {
			out = append(out, tp)
		}
	}
	return out
}
