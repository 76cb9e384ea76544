package registrations

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/infest-events/registration/internal/models"
)

// StoreContractSuite is the behaviour every Store backend must share.
// newStore returns an empty store for each test.
type StoreContractSuite struct {
	suite.Suite
	newStore func() Store
	store    Store
	ctx      context.Context
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, &StoreContractSuite{newStore: func() Store { return NewInMemoryStore() }})
}

func (s *StoreContractSuite) SetupTest() {
	s.store = s.newStore()
	s.ctx = context.Background()
}

func newRow(id, email, ticket string, mode models.PaymentMode) *models.Registration {
	return &models.Registration{
		ID:            id,
		Email:         email,
		Name:          "Test",
		Phone:         "9876543210",
		Events:        []string{"hackathon"},
		PaymentMode:   mode,
		PaymentStatus: models.PaymentStatusPending,
		TicketID:      ticket,
	}
}

func (s *StoreContractSuite) insert(id, email, ticket string, mode models.PaymentMode) *models.Registration {
	reg := newRow(id, email, ticket, mode)
	s.Require().NoError(s.store.Insert(s.ctx, reg))
	return reg
}

func (s *StoreContractSuite) TestInsertRejectsDuplicateEmail() {
	s.insert("r1", "a@x.io", "", models.PaymentModeOnline)
	err := s.store.Insert(s.ctx, newRow("r2", "a@x.io", "", models.PaymentModeOffline))
	s.ErrorIs(err, ErrDuplicate)
}

func (s *StoreContractSuite) TestInsertRejectsTicketCollision() {
	s.insert("r1", "a@x.io", "INF25-AAA", models.PaymentModeOffline)
	err := s.store.Insert(s.ctx, newRow("r2", "b@x.io", "INF25-AAA", models.PaymentModeOffline))
	s.ErrorIs(err, ErrTicketCollision)
}

func (s *StoreContractSuite) TestLookupsReturnCopies() {
	s.insert("r1", "a@x.io", "INF25-AAA", models.PaymentModeOffline)

	got, err := s.store.FindByID(s.ctx, "r1")
	s.Require().NoError(err)
	got.Events[0] = "mutated"
	got.PaymentStatus = models.PaymentStatusPaid

	again, err := s.store.FindByTicket(s.ctx, "INF25-AAA")
	s.Require().NoError(err)
	s.Equal("hackathon", again.Events[0])
	s.Equal(models.PaymentStatusPending, again.PaymentStatus)

	_, err = s.store.FindByEmail(s.ctx, "nobody@x.io")
	s.ErrorIs(err, ErrNotFound)
	_, err = s.store.FindByID(s.ctx, "nope")
	s.ErrorIs(err, ErrNotFound)
}

func (s *StoreContractSuite) TestTransitionIsCompareAndSet() {
	s.insert("r1", "a@x.io", "", models.PaymentModeOnline)
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	reg, err := s.store.Transition(s.ctx, "r1", models.PaymentStatusPending, Transition{
		Status: models.PaymentStatusPaid, PaymentID: "pay_1", TicketID: "INF25-BBB", At: at,
	})
	s.Require().NoError(err)
	s.Equal(models.PaymentStatusPaid, reg.PaymentStatus)
	s.Equal("INF25-BBB", reg.TicketID)
	s.Equal("pay_1", reg.PaymentID)
	s.Require().NotNil(reg.PaidAt)
	s.True(reg.PaidAt.Equal(at))

	_, err = s.store.Transition(s.ctx, "r1", models.PaymentStatusPending, Transition{
		Status: models.PaymentStatusPaid, PaymentID: "pay_2", TicketID: "INF25-CCC", At: at,
	})
	s.ErrorIs(err, ErrAlreadyTransitioned)

	byTicket, err := s.store.FindByTicket(s.ctx, "INF25-BBB")
	s.Require().NoError(err)
	s.Equal("pay_1", byTicket.PaymentID)
	_, err = s.store.FindByTicket(s.ctx, "INF25-CCC")
	s.ErrorIs(err, ErrNotFound)

	_, err = s.store.Transition(s.ctx, "missing", models.PaymentStatusPending, Transition{Status: models.PaymentStatusPaid, At: at})
	s.ErrorIs(err, ErrNotFound)
}

func (s *StoreContractSuite) TestFailedThenPaidKeepsFirstPaymentID() {
	s.insert("r1", "a@x.io", "", models.PaymentModeOnline)
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	reg, err := s.store.Transition(s.ctx, "r1", models.PaymentStatusPending, Transition{
		Status: models.PaymentStatusFailed, PaymentID: "pay_f", At: at,
	})
	s.Require().NoError(err)
	s.Nil(reg.PaidAt)
	s.Empty(reg.TicketID)

	reg, err = s.store.Transition(s.ctx, "r1", models.PaymentStatusFailed, Transition{
		Status: models.PaymentStatusPaid, PaymentID: "pay_ok", TicketID: "INF25-PPP", At: at.Add(time.Minute),
	})
	s.Require().NoError(err)
	s.Equal("pay_f", reg.PaymentID)
	s.Equal("INF25-PPP", reg.TicketID)
	s.Require().NotNil(reg.PaidAt)
}

func (s *StoreContractSuite) TestTransitionKeepsExistingTicket() {
	s.insert("r1", "a@x.io", "INF25-AAA", models.PaymentModeOffline)
	reg, err := s.store.Transition(s.ctx, "r1", models.PaymentStatusPending, Transition{
		Status: models.PaymentStatusPaid, TicketID: "INF25-ZZZ", At: time.Now(),
	})
	s.Require().NoError(err)
	s.Equal("INF25-AAA", reg.TicketID)
}

func (s *StoreContractSuite) TestTransitionTicketCollision() {
	s.insert("r1", "a@x.io", "INF25-AAA", models.PaymentModeOffline)
	s.insert("r2", "b@x.io", "", models.PaymentModeOnline)
	_, err := s.store.Transition(s.ctx, "r2", models.PaymentStatusPending, Transition{
		Status: models.PaymentStatusPaid, TicketID: "INF25-AAA", At: time.Now(),
	})
	s.ErrorIs(err, ErrTicketCollision)

	reg, err := s.store.FindByID(s.ctx, "r2")
	s.Require().NoError(err)
	s.Equal(models.PaymentStatusPending, reg.PaymentStatus)
}

func (s *StoreContractSuite) TestConcurrentTransitionHasOneWinner() {
	s.insert("r1", "a@x.io", "", models.PaymentModeOnline)

	const callers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	var winners []*models.Registration
	lost := 0
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reg, err := s.store.Transition(s.ctx, "r1", models.PaymentStatusPending, Transition{
				Status:    models.PaymentStatusPaid,
				PaymentID: fmt.Sprintf("pay_%d", i),
				TicketID:  fmt.Sprintf("INF25-T%d", i),
				At:        time.Now(),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, reg)
			case errors.Is(err, ErrAlreadyTransitioned):
				lost++
			}
		}(i)
	}
	wg.Wait()

	s.Require().Len(winners, 1)
	s.Equal(callers-1, lost)
	stored, err := s.store.FindByID(s.ctx, "r1")
	s.Require().NoError(err)
	s.Equal(winners[0].TicketID, stored.TicketID)
	s.Equal(winners[0].PaymentID, stored.PaymentID)
}

func (s *StoreContractSuite) TestClaimConfirmationOnce() {
	s.insert("r1", "a@x.io", "INF25-AAA", models.PaymentModeOffline)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := s.store.ClaimConfirmation(s.ctx, "r1", time.Now())
			if err == nil && won {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	s.Equal(1, wins)

	s.Require().NoError(s.store.ReleaseConfirmation(s.ctx, "r1"))
	won, err := s.store.ClaimConfirmation(s.ctx, "r1", time.Now())
	s.Require().NoError(err)
	s.True(won)

	_, err = s.store.ClaimConfirmation(s.ctx, "missing", time.Now())
	s.ErrorIs(err, ErrNotFound)
	s.ErrorIs(s.store.ReleaseConfirmation(s.ctx, "missing"), ErrNotFound)
}

func (s *StoreContractSuite) TestMarkAttendedKeepsFirstTimestamp() {
	s.insert("r1", "a@x.io", "INF25-AAA", models.PaymentModeOffline)
	first := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)

	reg, err := s.store.MarkAttended(s.ctx, "INF25-AAA", first)
	s.Require().NoError(err)
	s.True(reg.Attended)

	reg, err = s.store.MarkAttended(s.ctx, "INF25-AAA", first.Add(time.Hour))
	s.Require().NoError(err)
	s.True(reg.AttendedAt.Equal(first))

	_, err = s.store.MarkAttended(s.ctx, "INF25-NOPE", first)
	s.ErrorIs(err, ErrNotFound)
}

func (s *StoreContractSuite) TestSetPaymentURLKeepsFirst() {
	s.insert("r1", "a@x.io", "", models.PaymentModeOnline)

	got, err := s.store.SetPaymentURL(s.ctx, "r1", "https://rzp.io/i/first")
	s.Require().NoError(err)
	s.Equal("https://rzp.io/i/first", got)

	got, err = s.store.SetPaymentURL(s.ctx, "r1", "https://rzp.io/i/second")
	s.Require().NoError(err)
	s.Equal("https://rzp.io/i/first", got)

	reg, err := s.store.FindByEmail(s.ctx, "a@x.io")
	s.Require().NoError(err)
	s.Equal("https://rzp.io/i/first", reg.PaymentURL)

	_, err = s.store.SetPaymentURL(s.ctx, "missing", "https://rzp.io/i/x")
	s.ErrorIs(err, ErrNotFound)
}

func (s *StoreContractSuite) TestStats() {
	s.insert("r1", "a@x.io", "INF25-AAA", models.PaymentModeOffline)
	online := newRow("r2", "b@x.io", "", models.PaymentModeOnline)
	online.Events = []string{"hackathon", "quiz"}
	s.Require().NoError(s.store.Insert(s.ctx, online))
	s.insert("r3", "c@x.io", "", models.PaymentModeOnline)

	_, err := s.store.Transition(s.ctx, "r1", models.PaymentStatusPending, Transition{Status: models.PaymentStatusPaid, At: time.Now()})
	s.Require().NoError(err)
	_, err = s.store.Transition(s.ctx, "r2", models.PaymentStatusPending, Transition{Status: models.PaymentStatusPaid, TicketID: "INF25-BBB", At: time.Now()})
	s.Require().NoError(err)
	_, err = s.store.ClaimConfirmation(s.ctx, "r2", time.Now())
	s.Require().NoError(err)
	_, err = s.store.MarkAttended(s.ctx, "INF25-AAA", time.Now())
	s.Require().NoError(err)

	stats, err := s.store.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, stats.Total)
	s.Equal(2, stats.Paid)
	s.Equal(1, stats.Attended)
	s.Equal(1, stats.ConfirmationsPending)
	s.Equal(2, stats.ByMode["online"])
	s.Equal(1, stats.ByMode["offline"])
	s.Equal(1, stats.ByStatus["pending"])
	s.Equal(3, stats.ByEvent["hackathon"])
	s.Equal(1, stats.ByEvent["quiz"])
}

func TestNormalizeEmail(t *testing.T) {
	require.Equal(t, "student@college.edu", NormalizeEmail("  Student@College.EDU "))
}
