package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thegoodtimes/pulse/internal/db"
	"github.com/thegoodtimes/pulse/internal/redis"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// fakeStore serves canned rows and honors the since thresholds the way
// the SQL queries do, so visit gating is actually exercised.
type fakeStore struct {
	groups       []*db.Group
	prompts      map[uuid.UUID]*db.DailyPrompt // by group ID
	todayEntries map[uuid.UUID]*db.Entry       // user's own entry today, by group ID
	authored     []*db.Entry
	entriesByID  map[uuid.UUID]*db.Entry
	comments     []*db.Comment // every comment in the system
	ownComments  []*db.Comment // the user's, oldest first
	groupEntries []*db.Entry   // entries by others, newest first
	deckVotes    []*db.DeckVote
	mentions     []*db.Mention
	cards        []*db.BirthdayCard
	windows      []*db.CustomQuestionWindow

	mentionsErr error
	entriesErr  error
}

func (f *fakeStore) UserGroups(ctx context.Context, userID uuid.UUID) ([]*db.Group, error) {
	return f.groups, nil
}

func (f *fakeStore) DailyPromptForDate(ctx context.Context, groupID uuid.UUID, date string) (*db.DailyPrompt, error) {
	return f.prompts[groupID], nil
}

func (f *fakeStore) UserEntryForDate(ctx context.Context, groupID, userID uuid.UUID, date string) (*db.Entry, error) {
	return f.todayEntries[groupID], nil
}

func (f *fakeStore) EntriesByAuthor(ctx context.Context, userID uuid.UUID) ([]*db.Entry, error) {
	if f.entriesErr != nil {
		return nil, f.entriesErr
	}
	return f.authored, nil
}

func (f *fakeStore) EntryByID(ctx context.Context, entryID uuid.UUID) (*db.Entry, error) {
	return f.entriesByID[entryID], nil
}

func (f *fakeStore) CommentsOnEntrySince(ctx context.Context, entryID, excludeUserID uuid.UUID, since time.Time) ([]*db.Comment, error) {
	var out []*db.Comment
	for _, c := range f.comments {
		if c.EntryID == entryID && c.UserID != excludeUserID && c.CreatedAt.After(since) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) CommentsByUser(ctx context.Context, userID uuid.UUID) ([]*db.Comment, error) {
	return f.ownComments, nil
}

func (f *fakeStore) GroupEntriesSince(ctx context.Context, groupID, excludeUserID uuid.UUID, since time.Time) ([]*db.Entry, error) {
	var out []*db.Entry
	for _, e := range f.groupEntries {
		if e.GroupID == groupID && e.UserID != excludeUserID && e.CreatedAt.After(since) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) PendingDeckVotes(ctx context.Context, groupID, userID uuid.UUID) ([]*db.DeckVote, error) {
	var out []*db.DeckVote
	for _, v := range f.deckVotes {
		if v.GroupID == groupID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeStore) MentionsForUser(ctx context.Context, userID uuid.UUID) ([]*db.Mention, error) {
	if f.mentionsErr != nil {
		return nil, f.mentionsErr
	}
	return f.mentions, nil
}

func (f *fakeStore) OpenBirthdayCards(ctx context.Context, userID uuid.UUID) ([]*db.BirthdayCard, error) {
	return f.cards, nil
}

func (f *fakeStore) CustomQuestionWindows(ctx context.Context, userID uuid.UUID, date string) ([]*db.CustomQuestionWindow, error) {
	return f.windows, nil
}

type fakeLedger struct {
	mu      sync.Mutex
	visits  map[string]time.Time
	checked map[uuid.UUID]time.Time
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		visits:  make(map[string]time.Time),
		checked: make(map[uuid.UUID]time.Time),
	}
}

func (l *fakeLedger) visitKey(userID uuid.UUID, kind redis.VisitKind, key string) string {
	return fmt.Sprintf("%s:%s:%s", userID, kind, key)
}

func (l *fakeLedger) LastVisited(ctx context.Context, userID uuid.UUID, kind redis.VisitKind, key string) (time.Time, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts, ok := l.visits[l.visitKey(userID, kind, key)]
	return ts, ok, nil
}

func (l *fakeLedger) MarkVisited(ctx context.Context, userID uuid.UUID, kind redis.VisitKind, key string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.visits[l.visitKey(userID, kind, key)] = at
	return nil
}

func (l *fakeLedger) LastChecked(ctx context.Context, userID uuid.UUID) (time.Time, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts, ok := l.checked[userID]
	return ts, ok, nil
}

func (l *fakeLedger) MarkChecked(ctx context.Context, userID uuid.UUID, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checked[userID] = at
	return nil
}

type fakePusher struct {
	mu     sync.Mutex
	pushes []int
	err    error
}

func (p *fakePusher) PushBadge(ctx context.Context, userID uuid.UUID, count int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.pushes = append(p.pushes, count)
	return nil
}

func newTestService(store *fakeStore, ledger *fakeLedger, pusher BadgePusher) *Service {
	return NewService(store, ledger, pusher, fixedClock{testNow}, zap.NewNop())
}

func otherUser(name string) *db.User {
	return &db.User{ID: uuid.New(), Name: name}
}

func TestNotifications_ReplyBeforeVisitIsVisible(t *testing.T) {
	userID := uuid.New()
	group := &db.Group{ID: uuid.New(), Name: "Family"}
	entry := &db.Entry{ID: uuid.New(), GroupID: group.ID, UserID: userID}
	commenter := otherUser("Omar")

	store := &fakeStore{
		groups:   []*db.Group{group},
		authored: []*db.Entry{entry},
		comments: []*db.Comment{
			{ID: uuid.New(), EntryID: entry.ID, UserID: commenter.ID, CreatedAt: testNow.Add(-time.Hour), User: commenter},
		},
	}
	svc := newTestService(store, newFakeLedger(), nil)

	events, err := svc.Notifications(context.Background(), userID)
	if err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Kind != KindReplyToEntry {
		t.Errorf("kind = %s", ev.Kind)
	}
	if ev.CommenterName != "Omar" {
		t.Errorf("commenter = %s", ev.CommenterName)
	}
	if ev.GroupName != "Family" {
		t.Errorf("group name = %s", ev.GroupName)
	}
	if ev.Occurrences != 1 {
		t.Errorf("occurrences = %d", ev.Occurrences)
	}
}

func TestNotifications_VisitAtOrAfterCommentHidesReply(t *testing.T) {
	userID := uuid.New()
	group := &db.Group{ID: uuid.New(), Name: "Family"}
	entry := &db.Entry{ID: uuid.New(), GroupID: group.ID, UserID: userID}
	commentAt := testNow.Add(-time.Hour)

	store := &fakeStore{
		groups:   []*db.Group{group},
		authored: []*db.Entry{entry},
		comments: []*db.Comment{
			{ID: uuid.New(), EntryID: entry.ID, UserID: uuid.New(), CreatedAt: commentAt, User: otherUser("Omar")},
		},
	}
	ledger := newFakeLedger()
	svc := newTestService(store, ledger, nil)

	// Visiting at exactly the comment's timestamp counts as seen.
	if err := ledger.MarkVisited(context.Background(), userID, redis.VisitEntry, entry.ID.String(), commentAt); err != nil {
		t.Fatal(err)
	}

	events, err := svc.Notifications(context.Background(), userID)
	if err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("got %d events, want 0", len(events))
	}
}

func TestNotifications_RepliesCollapseAndBadgeExpands(t *testing.T) {
	userID := uuid.New()
	group := &db.Group{ID: uuid.New(), Name: "Family"}
	entry := &db.Entry{ID: uuid.New(), GroupID: group.ID, UserID: userID}

	store := &fakeStore{
		groups:   []*db.Group{group},
		authored: []*db.Entry{entry},
		comments: []*db.Comment{
			{ID: uuid.New(), EntryID: entry.ID, UserID: uuid.New(), CreatedAt: testNow.Add(-3 * time.Hour), User: otherUser("Omar")},
			{ID: uuid.New(), EntryID: entry.ID, UserID: uuid.New(), CreatedAt: testNow.Add(-2 * time.Hour), User: otherUser("Sana")},
			{ID: uuid.New(), EntryID: entry.ID, UserID: uuid.New(), CreatedAt: testNow.Add(-time.Hour), User: otherUser("Priya")},
		},
	}
	svc := newTestService(store, newFakeLedger(), nil)
	ctx := context.Background()

	events, err := svc.Notifications(ctx, userID)
	if err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1 collapsed row", len(events))
	}
	ev := events[0]
	if ev.Occurrences != 3 {
		t.Errorf("occurrences = %d, want 3", ev.Occurrences)
	}
	if ev.CommenterName != "3 people" {
		t.Errorf("commenter = %q", ev.CommenterName)
	}
	if !ev.CreatedAt.Equal(testNow.Add(-time.Hour)) {
		t.Errorf("created at = %v, want most recent comment time", ev.CreatedAt)
	}

	badge, err := svc.Badge(ctx, userID)
	if err != nil {
		t.Fatalf("badge: %v", err)
	}
	if badge != 3 {
		t.Errorf("badge = %d, want 3 (never less than the row count)", badge)
	}
}

func TestNotifications_SingleGroupQuestionSuppressedButCounted(t *testing.T) {
	userID := uuid.New()
	group := &db.Group{ID: uuid.New(), Name: "Family"}

	store := &fakeStore{
		groups: []*db.Group{group},
		prompts: map[uuid.UUID]*db.DailyPrompt{
			group.ID: {ID: uuid.New(), GroupID: group.ID, PromptID: uuid.New(), Date: "2026-03-14", CreatedAt: testNow.Add(-6 * time.Hour)},
		},
	}
	svc := newTestService(store, newFakeLedger(), nil)
	ctx := context.Background()

	events, err := svc.Notifications(ctx, userID)
	if err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("single-group list should suppress new_question, got %d events", len(events))
	}

	badge, err := svc.Badge(ctx, userID)
	if err != nil {
		t.Fatalf("badge: %v", err)
	}
	if badge != 1 {
		t.Errorf("badge = %d, want 1", badge)
	}
}

func TestNotifications_MultiGroupQuestionsShown(t *testing.T) {
	userID := uuid.New()
	family := &db.Group{ID: uuid.New(), Name: "Family"}
	friends := &db.Group{ID: uuid.New(), Name: "Friends"}

	store := &fakeStore{
		groups: []*db.Group{family, friends},
		prompts: map[uuid.UUID]*db.DailyPrompt{
			family.ID:  {ID: uuid.New(), GroupID: family.ID, PromptID: uuid.New(), CreatedAt: testNow.Add(-6 * time.Hour)},
			friends.ID: {ID: uuid.New(), GroupID: friends.ID, PromptID: uuid.New(), CreatedAt: testNow.Add(-6 * time.Hour)},
		},
	}
	svc := newTestService(store, newFakeLedger(), nil)

	events, err := svc.Notifications(context.Background(), userID)
	if err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	for _, ev := range events {
		if ev.Kind != KindNewQuestion {
			t.Errorf("kind = %s", ev.Kind)
		}
	}
}

func TestNotifications_AnsweredQuestionNotEmitted(t *testing.T) {
	userID := uuid.New()
	family := &db.Group{ID: uuid.New(), Name: "Family"}
	friends := &db.Group{ID: uuid.New(), Name: "Friends"}

	store := &fakeStore{
		groups: []*db.Group{family, friends},
		prompts: map[uuid.UUID]*db.DailyPrompt{
			family.ID: {ID: uuid.New(), GroupID: family.ID, PromptID: uuid.New(), CreatedAt: testNow.Add(-6 * time.Hour)},
		},
		todayEntries: map[uuid.UUID]*db.Entry{
			family.ID: {ID: uuid.New(), GroupID: family.ID, UserID: userID},
		},
	}
	svc := newTestService(store, newFakeLedger(), nil)

	events, err := svc.Notifications(context.Background(), userID)
	if err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("answered question should not notify, got %d events", len(events))
	}
}

func TestNotifications_QuestionForSomeoneElseSkipped(t *testing.T) {
	userID := uuid.New()
	birthdayUser := uuid.New()
	family := &db.Group{ID: uuid.New(), Name: "Family"}
	friends := &db.Group{ID: uuid.New(), Name: "Friends"}

	store := &fakeStore{
		groups: []*db.Group{family, friends},
		prompts: map[uuid.UUID]*db.DailyPrompt{
			family.ID: {ID: uuid.New(), GroupID: family.ID, PromptID: uuid.New(), UserID: &birthdayUser, CreatedAt: testNow.Add(-6 * time.Hour)},
		},
	}
	svc := newTestService(store, newFakeLedger(), nil)

	events, err := svc.Notifications(context.Background(), userID)
	if err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("someone else's birthday prompt should not notify, got %d events", len(events))
	}
}

func TestNotifications_SourceFailureIsolated(t *testing.T) {
	userID := uuid.New()
	group := &db.Group{ID: uuid.New(), Name: "Family"}
	entry := &db.Entry{ID: uuid.New(), GroupID: group.ID, UserID: userID}

	store := &fakeStore{
		groups:   []*db.Group{group},
		authored: []*db.Entry{entry},
		comments: []*db.Comment{
			{ID: uuid.New(), EntryID: entry.ID, UserID: uuid.New(), CreatedAt: testNow.Add(-time.Hour), User: otherUser("Omar")},
		},
		mentionsErr: errors.New("mentions table on fire"),
	}
	svc := newTestService(store, newFakeLedger(), nil)

	events, err := svc.Notifications(context.Background(), userID)
	if err != nil {
		t.Fatalf("one failing source should not fail the list: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want the surviving reply", len(events))
	}
	if events[0].Kind != KindReplyToEntry {
		t.Errorf("kind = %s", events[0].Kind)
	}
}

func TestNotifications_SortedNewestFirst(t *testing.T) {
	userID := uuid.New()
	group := &db.Group{ID: uuid.New(), Name: "Family"}
	entry := &db.Entry{ID: uuid.New(), GroupID: group.ID, UserID: userID}
	mentionEntry := uuid.New()

	store := &fakeStore{
		groups:   []*db.Group{group},
		authored: []*db.Entry{entry},
		comments: []*db.Comment{
			{ID: uuid.New(), EntryID: entry.ID, UserID: uuid.New(), CreatedAt: testNow.Add(-time.Hour), User: otherUser("Omar")},
		},
		mentions: []*db.Mention{
			{ID: uuid.New(), UserID: userID, GroupID: group.ID, EntryID: mentionEntry, MentionedByName: "Sana", CreatedAt: testNow.Add(-2 * time.Hour)},
		},
	}
	svc := newTestService(store, newFakeLedger(), nil)

	events, err := svc.Notifications(context.Background(), userID)
	if err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Kind != KindReplyToEntry || events[1].Kind != KindMentionedInEntry {
		t.Errorf("order = [%s, %s], want newest first", events[0].Kind, events[1].Kind)
	}
}

func TestNotifications_ThreadRepliesAfterJoining(t *testing.T) {
	userID := uuid.New()
	group := &db.Group{ID: uuid.New(), Name: "Family"}
	author := otherUser("Sana")
	entry := &db.Entry{ID: uuid.New(), GroupID: group.ID, UserID: author.ID, Author: author}
	joinedAt := testNow.Add(-2 * time.Hour)

	store := &fakeStore{
		groups:      []*db.Group{group},
		entriesByID: map[uuid.UUID]*db.Entry{entry.ID: entry},
		ownComments: []*db.Comment{
			{ID: uuid.New(), EntryID: entry.ID, UserID: userID, CreatedAt: joinedAt},
		},
		comments: []*db.Comment{
			// Before the user joined the thread: ignored.
			{ID: uuid.New(), EntryID: entry.ID, UserID: uuid.New(), CreatedAt: testNow.Add(-3 * time.Hour), User: otherUser("Omar")},
			// After: counted.
			{ID: uuid.New(), EntryID: entry.ID, UserID: uuid.New(), CreatedAt: testNow.Add(-time.Hour), User: otherUser("Priya")},
		},
	}
	svc := newTestService(store, newFakeLedger(), nil)

	events, err := svc.Notifications(context.Background(), userID)
	if err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Kind != KindReplyToThread {
		t.Errorf("kind = %s", ev.Kind)
	}
	if ev.Occurrences != 1 {
		t.Errorf("occurrences = %d, replies before joining should not count", ev.Occurrences)
	}
	if ev.CommenterName != "Priya" {
		t.Errorf("commenter = %s", ev.CommenterName)
	}
	if ev.EntryAuthorName != "Sana" {
		t.Errorf("entry author = %s", ev.EntryAuthorName)
	}
}

func TestNotifications_NewAnswersDistinctNames(t *testing.T) {
	userID := uuid.New()
	group := &db.Group{ID: uuid.New(), Name: "Family"}
	omar := otherUser("Omar")
	sana := otherUser("Sana")

	store := &fakeStore{
		groups: []*db.Group{group},
		groupEntries: []*db.Entry{
			{ID: uuid.New(), GroupID: group.ID, UserID: omar.ID, CreatedAt: testNow.Add(-time.Hour), Author: omar},
			{ID: uuid.New(), GroupID: group.ID, UserID: omar.ID, CreatedAt: testNow.Add(-2 * time.Hour), Author: omar},
			{ID: uuid.New(), GroupID: group.ID, UserID: sana.ID, CreatedAt: testNow.Add(-3 * time.Hour), Author: sana},
		},
	}
	svc := newTestService(store, newFakeLedger(), nil)

	events, err := svc.Notifications(context.Background(), userID)
	if err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Kind != KindNewAnswers {
		t.Errorf("kind = %s", ev.Kind)
	}
	if ev.Occurrences != 3 {
		t.Errorf("occurrences = %d, want 3 entries", ev.Occurrences)
	}
	if len(ev.AnswererNames) != 2 {
		t.Errorf("answerer names = %v, want 2 distinct", ev.AnswererNames)
	}
}

func TestMarkChecked_SuppressesTodaysQuestion(t *testing.T) {
	userID := uuid.New()
	family := &db.Group{ID: uuid.New(), Name: "Family"}
	friends := &db.Group{ID: uuid.New(), Name: "Friends"}

	store := &fakeStore{
		groups: []*db.Group{family, friends},
		prompts: map[uuid.UUID]*db.DailyPrompt{
			family.ID: {ID: uuid.New(), GroupID: family.ID, PromptID: uuid.New(), CreatedAt: testNow.Add(-6 * time.Hour)},
		},
	}
	ledger := newFakeLedger()
	svc := newTestService(store, ledger, nil)
	ctx := context.Background()

	events, err := svc.Notifications(ctx, userID)
	if err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events before checking, want 1", len(events))
	}

	if err := svc.MarkChecked(ctx, userID); err != nil {
		t.Fatalf("mark checked: %v", err)
	}

	events, err = svc.Notifications(ctx, userID)
	if err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("got %d events after checking, want 0", len(events))
	}

	badge, err := svc.Badge(ctx, userID)
	if err != nil {
		t.Fatalf("badge: %v", err)
	}
	if badge != 0 {
		t.Errorf("badge = %d after checking, want 0", badge)
	}
}

func TestClearAll_EmptiesListAndBadge(t *testing.T) {
	userID := uuid.New()
	group := &db.Group{ID: uuid.New(), Name: "Family"}
	entry := &db.Entry{ID: uuid.New(), GroupID: group.ID, UserID: userID}

	store := &fakeStore{
		groups:   []*db.Group{group},
		authored: []*db.Entry{entry},
		prompts: map[uuid.UUID]*db.DailyPrompt{
			group.ID: {ID: uuid.New(), GroupID: group.ID, PromptID: uuid.New(), CreatedAt: testNow.Add(-6 * time.Hour)},
		},
		comments: []*db.Comment{
			{ID: uuid.New(), EntryID: entry.ID, UserID: uuid.New(), CreatedAt: testNow.Add(-time.Hour), User: otherUser("Omar")},
		},
		mentions: []*db.Mention{
			{ID: uuid.New(), UserID: userID, GroupID: group.ID, EntryID: uuid.New(), MentionedByName: "Sana", CreatedAt: testNow.Add(-2 * time.Hour)},
		},
		cards: []*db.BirthdayCard{
			{ID: uuid.New(), GroupID: group.ID, BirthdayUserID: uuid.New(), BirthdayUserName: "Priya", BirthdayDate: "2026-03-20", CreatedAt: testNow.Add(-3 * time.Hour)},
		},
	}
	ledger := newFakeLedger()
	svc := newTestService(store, ledger, nil)
	ctx := context.Background()

	if err := svc.ClearAll(ctx, userID); err != nil {
		t.Fatalf("clear all: %v", err)
	}

	events, err := svc.Notifications(ctx, userID)
	if err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("got %d events after clear, want 0", len(events))
	}

	badge, err := svc.Badge(ctx, userID)
	if err != nil {
		t.Fatalf("badge: %v", err)
	}
	if badge != 0 {
		t.Errorf("badge = %d after clear, want 0", badge)
	}

	// The per-entity stamps landed, not just the global one.
	if _, ok, _ := ledger.LastVisited(ctx, userID, redis.VisitEntry, entry.ID.String()); !ok {
		t.Error("authored entry was not visit-stamped")
	}
	if _, ok, _ := ledger.LastVisited(ctx, userID, redis.VisitGroup, group.ID.String()); !ok {
		t.Error("group was not visit-stamped")
	}
}

func TestClearAll_GlobalStampSurvivesStoreFailure(t *testing.T) {
	userID := uuid.New()
	group := &db.Group{ID: uuid.New(), Name: "Family"}

	store := &fakeStore{
		groups:     []*db.Group{group},
		entriesErr: errors.New("db down"),
	}
	ledger := newFakeLedger()
	svc := newTestService(store, ledger, nil)
	ctx := context.Background()

	if err := svc.ClearAll(ctx, userID); err != nil {
		t.Fatalf("clear all should not fail on per-entity errors: %v", err)
	}

	if _, ok, _ := ledger.LastChecked(ctx, userID); !ok {
		t.Error("global last-checked stamp missing")
	}
}

func TestRefreshBadge_PushesComputedCount(t *testing.T) {
	userID := uuid.New()
	group := &db.Group{ID: uuid.New(), Name: "Family"}
	entry := &db.Entry{ID: uuid.New(), GroupID: group.ID, UserID: userID}

	store := &fakeStore{
		groups:   []*db.Group{group},
		authored: []*db.Entry{entry},
		comments: []*db.Comment{
			{ID: uuid.New(), EntryID: entry.ID, UserID: uuid.New(), CreatedAt: testNow.Add(-2 * time.Hour), User: otherUser("Omar")},
			{ID: uuid.New(), EntryID: entry.ID, UserID: uuid.New(), CreatedAt: testNow.Add(-time.Hour), User: otherUser("Sana")},
		},
	}
	pusher := &fakePusher{}
	svc := newTestService(store, newFakeLedger(), pusher)

	if err := svc.RefreshBadge(context.Background(), userID); err != nil {
		t.Fatalf("refresh badge: %v", err)
	}
	if len(pusher.pushes) != 1 || pusher.pushes[0] != 2 {
		t.Errorf("pushes = %v, want [2]", pusher.pushes)
	}
}

func TestRefreshBadge_NilPusherNoop(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store, newFakeLedger(), nil)

	if err := svc.RefreshBadge(context.Background(), uuid.New()); err != nil {
		t.Fatalf("refresh badge with nil pusher: %v", err)
	}
}

func TestRefreshBadge_PushFailureSurfaces(t *testing.T) {
	store := &fakeStore{}
	pusher := &fakePusher{err: errors.New("expo down")}
	svc := newTestService(store, newFakeLedger(), pusher)

	if err := svc.RefreshBadge(context.Background(), uuid.New()); err == nil {
		t.Fatal("expected push error to surface")
	}
}
