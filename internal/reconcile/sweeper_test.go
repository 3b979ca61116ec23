package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"marketslip/internal/objectstore"
	"marketslip/internal/slip/store"
)

type fakeRepublisher struct {
	fail     bool
	payloads [][]byte
}

func (f *fakeRepublisher) Republish(_ context.Context, _ string, payload []byte) error {
	if f.fail {
		return errors.New("broker down")
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

type SweeperSuite struct {
	suite.Suite
	ctx     context.Context
	now     time.Time
	ledger  *MemoryLedger
	records *store.InMemoryStore
	objects *objectstore.MemoryStore
	events  *fakeRepublisher
	sweeper *Sweeper
}

func TestSweeperSuite(t *testing.T) {
	suite.Run(t, new(SweeperSuite))
}

func (s *SweeperSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ledger = NewMemoryLedger()
	s.records = store.NewInMemory()
	s.objects = objectstore.NewMemoryStore("slips")
	s.events = &fakeRepublisher{}
	s.sweeper = NewSweeper(s.ledger, s.records, s.objects, s.events,
		WithGrace(10*time.Minute),
		WithClock(func() time.Time { return s.now }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func (s *SweeperSuite) TestOrphanPastGraceIsDeleted() {
	_, err := s.objects.Put(s.ctx, []byte("img"), "old.png", "image/png")
	s.Require().NoError(err)
	s.Require().NoError(s.ledger.RecordOrphan(s.ctx, "old.png", s.now.Add(-time.Hour)))

	report, err := s.sweeper.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, report.OrphansDeleted)

	exists, _ := s.objects.Exists(s.ctx, "old.png")
	s.False(exists)
	due, _ := s.ledger.DueOrphans(s.ctx, s.now, 0)
	s.Empty(due)
}

func (s *SweeperSuite) TestOrphanWithinGraceIsKept() {
	_, err := s.objects.Put(s.ctx, []byte("img"), "fresh.png", "image/png")
	s.Require().NoError(err)
	s.Require().NoError(s.ledger.RecordOrphan(s.ctx, "fresh.png", s.now.Add(-time.Minute)))

	report, err := s.sweeper.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Zero(report.OrphansDeleted)

	exists, _ := s.objects.Exists(s.ctx, "fresh.png")
	s.True(exists)
}

func (s *SweeperSuite) TestReferencedObjectIsAdoptedNotDeleted() {
	_, err := s.objects.Put(s.ctx, []byte("img"), "kept.png", "image/png")
	s.Require().NoError(err)
	_, err = s.records.Create(s.ctx, "kept.png", "M1", "R1")
	s.Require().NoError(err)
	s.Require().NoError(s.ledger.RecordOrphan(s.ctx, "kept.png", s.now.Add(-time.Hour)))

	report, err := s.sweeper.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, report.OrphansAdopted)

	exists, _ := s.objects.Exists(s.ctx, "kept.png")
	s.True(exists)
}

func (s *SweeperSuite) TestAlreadyMissingObjectIsForgotten() {
	s.Require().NoError(s.ledger.RecordOrphan(s.ctx, "vanished.png", s.now.Add(-time.Hour)))

	report, err := s.sweeper.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, report.OrphansDeleted)
	due, _ := s.ledger.DueOrphans(s.ctx, s.now, 0)
	s.Empty(due)
}

func (s *SweeperSuite) TestPendingEventsAreRepublished() {
	payload := []byte(`{"event":"UPDATE_RESERVATION_STATUS","reservationId":"R1"}`)
	s.Require().NoError(s.ledger.RecordPendingEvent(s.ctx, PendingEvent{ID: "e1", Payload: payload, RecordedAt: s.now}))

	report, err := s.sweeper.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, report.EventsRepublished)
	s.Equal([][]byte{payload}, s.events.payloads)

	pending, _ := s.ledger.PendingEvents(s.ctx, 0)
	s.Empty(pending)
}

func (s *SweeperSuite) TestFailedRepublishStaysPending() {
	s.events.fail = true
	s.Require().NoError(s.ledger.RecordPendingEvent(s.ctx, PendingEvent{ID: "e1", Payload: []byte(`{}`), RecordedAt: s.now}))

	report, err := s.sweeper.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, report.EventsFailed)

	pending, _ := s.ledger.PendingEvents(s.ctx, 0)
	s.Len(pending, 1)
}

func (s *SweeperSuite) TestRunStopsOnCancel() {
	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan error, 1)
	go func() { done <- s.sweeper.Run(ctx, 5*time.Millisecond) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(time.Second):
		s.Fail("sweeper did not stop")
	}
}
