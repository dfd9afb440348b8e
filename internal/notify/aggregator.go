package notify

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thegoodtimes/pulse/internal/metrics"
)

type source struct {
	name string
	run  func(*Service, context.Context, *pass) ([]Event, error)
}

// sources is the fixed fan-out set. Order only matters for stable
// iteration; the final list is sorted by recency.
var sources = []source{
	{"new_question", (*Service).newQuestionEvents},
	{"reply_to_entry", (*Service).replyToEntryEvents},
	{"reply_to_thread", (*Service).replyToThreadEvents},
	{"new_answers", (*Service).newAnswersEvents},
	{"deck_vote_requested", (*Service).deckVoteEvents},
	{"mentioned_in_entry", (*Service).mentionEvents},
	{"birthday_card", (*Service).birthdayCardEvents},
	{"custom_question_opportunity", (*Service).customQuestionEvents},
}

// Notifications computes the user's current notification list, newest
// first. A failing source is logged and skipped; the rest of the list
// still comes back.
func (s *Service) Notifications(ctx context.Context, userID uuid.UUID) ([]Event, error) {
	timer := metrics.StartAggregationTimer()
	defer timer.ObserveDuration()

	p, err := s.preparePass(ctx, userID)
	if err != nil {
		return nil, err
	}

	events := s.runSources(ctx, p)

	// Single-group users land on their group's question when they open
	// the app, so a list row would be noise. The badge still counts it.
	if len(p.groups) < 2 {
		filtered := events[:0]
		for _, ev := range events {
			if ev.Kind != KindNewQuestion {
				filtered = append(filtered, ev)
			}
		}
		events = filtered
	}

	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].CreatedAt.After(events[j].CreatedAt)
		}
		return events[i].ID < events[j].ID
	})

	if events == nil {
		events = []Event{}
	}
	return events, nil
}

// runSources fans out every source for one pass and merges the results.
// Sources only read from the pass and their own stores, so they run
// concurrently.
func (s *Service) runSources(ctx context.Context, p *pass) []Event {
	results := make([][]Event, len(sources))

	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src source) {
			defer wg.Done()

			events, err := src.run(s, ctx, p)
			if err != nil {
				metrics.RecordSourceFailure(src.name)
				s.logger.Error("notification source failed",
					zap.Error(err),
					zap.String("source", src.name),
					zap.String("user_id", p.userID.String()),
				)
				return
			}
			results[i] = events
		}(i, src)
	}
	wg.Wait()

	var merged []Event
	for i, events := range results {
		for _, ev := range events {
			if err := ev.Validate(); err != nil {
				s.logger.Error("dropping malformed event",
					zap.Error(err),
					zap.String("source", sources[i].name),
				)
				continue
			}
			merged = append(merged, ev)
		}
	}
	return merged
}
