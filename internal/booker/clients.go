// Package booker drives the restful-booker reservation backend: token
// authentication and the create, read and delete calls of a booking.
package booker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/xkilldash9x/bulwark/internal/api"
)

// ProjectName is the API project the clients talk to.
const ProjectName = "booker"

// TokenCookie carries the auth token on write calls; the backend ignores
// bearer headers.
const TokenCookie = "token"

// ErrBadCredentials is returned when the backend refuses to issue a token.
var ErrBadCredentials = errors.New("credentials rejected")

// AuthRequest is the payload of the auth endpoint.
type AuthRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// BookingDates is the stay of a booking, formatted as YYYY-MM-DD.
type BookingDates struct {
	CheckIn  string `json:"checkin"`
	CheckOut string `json:"checkout"`
}

// Booking is the payload of the booking endpoint.
type Booking struct {
	FirstName       string       `json:"firstname"`
	LastName        string       `json:"lastname"`
	TotalPrice      int          `json:"totalprice"`
	DepositPaid     bool         `json:"depositpaid"`
	Dates           BookingDates `json:"bookingdates"`
	AdditionalNeeds string       `json:"additionalneeds,omitempty"`
}

// AuthClient obtains tokens for write calls.
type AuthClient struct {
	client *api.Client
	logger *zap.Logger
}

// NewAuthClient wraps an API client bound to the booker project.
func NewAuthClient(client *api.Client, logger *zap.Logger) *AuthClient {
	return &AuthClient{client: client, logger: logger.Named("booker_auth")}
}

// Token exchanges username and password for a token. The backend answers a
// bad login with 200 and a "reason", which is reported as ErrBadCredentials.
func (a *AuthClient) Token(ctx context.Context, username, password string) (string, error) {
	path, err := a.client.Endpoint("auth")
	if err != nil {
		return "", err
	}

	a.logger.Info("Requesting token.", zap.String("username", username))
	resp, err := a.client.Post(ctx, path, AuthRequest{Username: username, Password: password})
	if err != nil {
		return "", fmt.Errorf("auth %s: %w", username, err)
	}
	if err := a.client.Check(resp); err != nil {
		return "", err
	}

	token := resp.JSON("token").String()
	if token == "" {
		reason := resp.JSON("reason").String()
		a.logger.Warn("Token refused.", zap.String("username", username), zap.String("reason", reason))
		return "", fmt.Errorf("auth %s: %w: %s", username, ErrBadCredentials, reason)
	}
	return token, nil
}

// BookingClient manages bookings.
type BookingClient struct {
	client *api.Client
	logger *zap.Logger
}

// NewBookingClient wraps an API client bound to the booker project.
func NewBookingClient(client *api.Client, logger *zap.Logger) *BookingClient {
	return &BookingClient{client: client, logger: logger.Named("booking_client")}
}

// Create stores b and returns the id the backend assigned.
func (c *BookingClient) Create(ctx context.Context, b Booking) (int64, error) {
	path, err := c.client.Endpoint("booking")
	if err != nil {
		return 0, err
	}

	c.logger.Info("Creating booking.", zap.String("guest", b.FirstName+" "+b.LastName))
	resp, err := c.client.Post(ctx, path, b)
	if err != nil {
		return 0, fmt.Errorf("create booking: %w", err)
	}
	if err := c.client.Check(resp); err != nil {
		return 0, err
	}
	if resp.Status != http.StatusOK {
		return 0, fmt.Errorf("create booking: status %d, want 200", resp.Status)
	}

	id := resp.JSON("bookingid").Int()
	if id <= 0 {
		return 0, fmt.Errorf("create booking: response has no bookingid: %s", resp.Text())
	}
	c.logger.Info("Booking created.", zap.Int64("booking_id", id))
	return id, nil
}

// Get fetches booking id. A missing booking is a response with status 404,
// not an error.
func (c *BookingClient) Get(ctx context.Context, id int64) (*api.Response, error) {
	path, err := c.itemPath(id)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("get booking %d: %w", id, err)
	}
	if err := c.client.Check(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Delete removes booking id, authenticated by token. The backend confirms
// with 201.
func (c *BookingClient) Delete(ctx context.Context, id int64, token string) error {
	path, err := c.itemPath(id)
	if err != nil {
		return err
	}

	c.logger.Warn("Deleting booking.", zap.Int64("booking_id", id))
	resp, err := c.client.Do(ctx, api.Request{
		Method:  http.MethodDelete,
		Path:    path,
		Headers: map[string]string{"Cookie": TokenCookie + "=" + token},
	})
	if err != nil {
		return fmt.Errorf("delete booking %d: %w", id, err)
	}
	if err := c.client.Check(resp); err != nil {
		return err
	}
	if resp.Status != http.StatusCreated {
		return fmt.Errorf("delete booking %d: status %d, want 201", id, resp.Status)
	}
	return nil
}

func (c *BookingClient) itemPath(id int64) (string, error) {
	path, err := c.client.Endpoint("booking")
	if err != nil {
		return "", err
	}
	return path + "/" + strconv.FormatInt(id, 10), nil
}
