package session

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/solo-io/squash-session/pkg/debuggers"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	reasonKey = mustNewKey("reason")

	mSessionsStarted = stats.Int64("squash.solo.io/session/started", "The number of debug sessions started", "1")
	sessionsStarted  = &view.View{
		Name:        "squash.solo.io/session/started",
		Measure:     mSessionsStarted,
		Description: "The number of debug sessions started",
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{},
	}
	mPauses = stats.Int64("squash.solo.io/session/pauses", "The number of times the debuggee paused", "1")
	pauses  = &view.View{
		Name:        "squash.solo.io/session/pauses",
		Measure:     mPauses,
		Description: "The number of times the debuggee paused, by reason",
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{reasonKey},
	}
)

func mustNewKey(name string) tag.Key {
	k, err := tag.NewKey(name)
	if err != nil {
		panic(err)
	}
	return k
}

// RegisterViews registers the session metric views with opencensus.
func RegisterViews() error {
	return view.Register(sessionsStarted, pauses)
}

func UnregisterViews() {
	view.Unregister(sessionsStarted, pauses)
}

func recordSessionStarted() {
	stats.Record(context.Background(), mSessionsStarted.M(1))
}

func recordPause(reason debuggers.PauseReason) {
	err := stats.RecordWithTags(context.Background(),
		[]tag.Mutator{tag.Upsert(reasonKey, reason.String())},
		mPauses.M(1))
	if err != nil {
		log.WithField("err", err).Debug("failed to record pause")
	}
}
