package booker

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/xkilldash9x/bulwark/internal/config"
	"github.com/xkilldash9x/bulwark/internal/runner"
)

// Suite builds the reservation scenarios. None of them needs a browser.
type Suite struct {
	auth     *AuthClient
	bookings *BookingClient
	username string
	password string
	newData  func() Booking
	logger   *zap.Logger
}

// NewSuite creates the suite, authenticating as the project's user.
func NewSuite(project config.ProjectConfig, auth *AuthClient, bookings *BookingClient, gen *Generator, logger *zap.Logger) *Suite {
	return &Suite{
		auth:     auth,
		bookings: bookings,
		username: project.Username,
		password: project.Password,
		newData:  gen.Booking,
		logger:   logger.Named("booker_suite"),
	}
}

// Scenarios returns the reservation scenarios.
func (s *Suite) Scenarios() []runner.Scenario {
	return []runner.Scenario{
		{Name: "booking_lifecycle", Run: s.BookingLifecycle, APIOnly: true},
		{Name: "booking_auth_rejected", Run: s.AuthRejected, APIOnly: true},
	}
}

// BookingLifecycle creates a booking, reads it back, deletes it with a fresh
// token and checks that it is gone. A booking created by a failed run is
// deleted before the failure is reported.
func (s *Suite) BookingLifecycle(ctx context.Context, u *runner.Unit) error {
	want := s.newData()
	id, err := s.bookings.Create(ctx, want)
	if err != nil {
		return err
	}
	deleted := false
	defer func() {
		if deleted {
			return
		}
		if cleanupErr := s.cleanup(context.WithoutCancel(ctx), id); cleanupErr != nil {
			u.Logger.Warn("Booking left behind.", zap.Int64("booking_id", id), zap.Error(cleanupErr))
		}
	}()

	if err := s.verify(ctx, id, want); err != nil {
		return err
	}

	token, err := s.auth.Token(ctx, s.username, s.password)
	if err != nil {
		return err
	}
	if err := s.bookings.Delete(ctx, id, token); err != nil {
		return err
	}
	deleted = true

	resp, err := s.bookings.Get(ctx, id)
	if err != nil {
		return err
	}
	if resp.Status != http.StatusNotFound {
		return fmt.Errorf("booking %d still readable after delete: status %d", id, resp.Status)
	}
	u.Logger.Info("Booking lifecycle complete.", zap.Int64("booking_id", id))
	return nil
}

// AuthRejected checks that a wrong password yields no token.
func (s *Suite) AuthRejected(ctx context.Context, u *runner.Unit) error {
	token, err := s.auth.Token(ctx, s.username, s.password+"-wrong")
	switch {
	case errors.Is(err, ErrBadCredentials):
		u.Logger.Info("Wrong password refused.", zap.String("username", s.username))
		return nil
	case err != nil:
		return err
	default:
		return fmt.Errorf("wrong password for %s was issued token %q", s.username, token)
	}
}

func (s *Suite) verify(ctx context.Context, id int64, want Booking) error {
	resp, err := s.bookings.Get(ctx, id)
	if err != nil {
		return err
	}
	if resp.Status != http.StatusOK {
		return fmt.Errorf("booking %d not readable after create: status %d", id, resp.Status)
	}
	got := resp.JSON("firstname").String() + " " + resp.JSON("lastname").String()
	if got != want.FirstName+" "+want.LastName {
		return fmt.Errorf("booking %d stored guest %q, want %q", id, got, want.FirstName+" "+want.LastName)
	}
	if price := resp.JSON("totalprice").Int(); price != int64(want.TotalPrice) {
		return fmt.Errorf("booking %d stored total price %d, want %d", id, price, want.TotalPrice)
	}
	return nil
}

func (s *Suite) cleanup(ctx context.Context, id int64) error {
	token, err := s.auth.Token(ctx, s.username, s.password)
	if err != nil {
		return err
	}
	return s.bookings.Delete(ctx, id, token)
}
