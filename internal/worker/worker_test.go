package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thegoodtimes/pulse/internal/sqs"
)

type fakeQueue struct {
	deleted []string
}

func (q *fakeQueue) ReceiveMessage(ctx context.Context) (*sqs.Message, string, error) {
	return nil, "", nil
}

func (q *fakeQueue) DeleteMessage(ctx context.Context, receiptHandle string) error {
	q.deleted = append(q.deleted, receiptHandle)
	return nil
}

type fakeRefresher struct {
	err   error
	calls []uuid.UUID
}

func (r *fakeRefresher) RefreshBadge(ctx context.Context, userID uuid.UUID) error {
	r.calls = append(r.calls, userID)
	return r.err
}

type fakeClaimer struct {
	claimed  bool
	claimErr error
	released []uuid.UUID
}

func (c *fakeClaimer) Claim(ctx context.Context, userID uuid.UUID) (bool, error) {
	return c.claimed, c.claimErr
}

func (c *fakeClaimer) Release(ctx context.Context, userID uuid.UUID) error {
	c.released = append(c.released, userID)
	return nil
}

func testMessage(userID uuid.UUID) *sqs.Message {
	return &sqs.Message{UserID: userID.String(), Reason: "comment_created", EnqueuedAt: 1}
}

func TestWorker_RefreshesAndDeletes(t *testing.T) {
	queue := &fakeQueue{}
	refresher := &fakeRefresher{}
	claimer := &fakeClaimer{claimed: true}
	w := New(queue, refresher, claimer, Config{}, zap.NewNop())

	userID := uuid.New()
	w.processMessage(context.Background(), testMessage(userID), "r1")

	if len(refresher.calls) != 1 || refresher.calls[0] != userID {
		t.Fatalf("refresher calls = %v", refresher.calls)
	}
	if len(queue.deleted) != 1 || queue.deleted[0] != "r1" {
		t.Fatalf("deleted = %v", queue.deleted)
	}
	if len(claimer.released) != 1 {
		t.Fatalf("released = %v", claimer.released)
	}
}

func TestWorker_CoalescedMessageSkipsRefresh(t *testing.T) {
	queue := &fakeQueue{}
	refresher := &fakeRefresher{}
	claimer := &fakeClaimer{claimed: false}
	w := New(queue, refresher, claimer, Config{}, zap.NewNop())

	w.processMessage(context.Background(), testMessage(uuid.New()), "r1")

	if len(refresher.calls) != 0 {
		t.Fatalf("refresher should not run, calls = %v", refresher.calls)
	}
	if len(queue.deleted) != 1 {
		t.Fatalf("coalesced message should still be deleted, deleted = %v", queue.deleted)
	}
}

func TestWorker_RefreshFailureKeepsMessage(t *testing.T) {
	queue := &fakeQueue{}
	refresher := &fakeRefresher{err: errors.New("push service down")}
	claimer := &fakeClaimer{claimed: true}
	w := New(queue, refresher, claimer, Config{}, zap.NewNop())

	userID := uuid.New()
	w.processMessage(context.Background(), testMessage(userID), "r1")

	if len(queue.deleted) != 0 {
		t.Fatalf("failed message should not be deleted, deleted = %v", queue.deleted)
	}
	if len(claimer.released) != 1 {
		t.Fatal("claim should be released so the retry can claim it")
	}
}

func TestWorker_InvalidUserIDDropped(t *testing.T) {
	queue := &fakeQueue{}
	refresher := &fakeRefresher{}
	w := New(queue, refresher, nil, Config{}, zap.NewNop())

	w.processMessage(context.Background(), &sqs.Message{UserID: "not-a-uuid"}, "r1")

	if len(refresher.calls) != 0 {
		t.Fatalf("refresher should not run, calls = %v", refresher.calls)
	}
	if len(queue.deleted) != 1 {
		t.Fatal("poison message should be deleted")
	}
}

func TestWorker_ClaimErrorStillRefreshes(t *testing.T) {
	queue := &fakeQueue{}
	refresher := &fakeRefresher{}
	claimer := &fakeClaimer{claimErr: errors.New("redis down")}
	w := New(queue, refresher, claimer, Config{}, zap.NewNop())

	w.processMessage(context.Background(), testMessage(uuid.New()), "r1")

	if len(refresher.calls) != 1 {
		t.Fatalf("refresher should run despite claim error, calls = %v", refresher.calls)
	}
	if len(queue.deleted) != 1 {
		t.Fatal("message should be deleted after successful refresh")
	}
}
