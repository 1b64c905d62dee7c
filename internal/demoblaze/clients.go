package demoblaze

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bulwark/internal/api"
)

// ProjectName is the API project the clients talk to.
const ProjectName = "demoblaze"

// TokenCookie is the cookie the storefront reads its session token from.
const TokenCookie = "tokenp_"

// HeaderIdempotencyKey marks requests that may be replayed safely.
const HeaderIdempotencyKey = "X-Idempotency-Key"

// ErrNoToken is returned when the store never hands out a session token.
var ErrNoToken = errors.New("response did not contain Auth_token")

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AddToCartRequest is the payload of the addtocart endpoint.
type AddToCartRequest struct {
	ID     string `json:"id"`
	Cookie string `json:"cookie"`
	Flag   bool   `json:"flag"`
}

// AuthClient obtains session tokens from the storefront backend.
type AuthClient struct {
	client *api.Client
	logger *zap.Logger
}

// NewAuthClient wraps an API client bound to the demoblaze project.
func NewAuthClient(client *api.Client, logger *zap.Logger) *AuthClient {
	return &AuthClient{client: client, logger: logger.Named("auth_client")}
}

// Token logs in and returns the session token. When the account is unknown it
// registers it and logs in once more.
func (a *AuthClient) Token(ctx context.Context, username, password string) (string, error) {
	loginPath, err := a.client.Endpoint("login")
	if err != nil {
		return "", err
	}
	payload := credentials{Username: username, Password: password}

	a.logger.Info("Requesting session token.", zap.String("username", username))
	token, body, err := a.login(ctx, loginPath, payload)
	if err != nil {
		return "", err
	}

	if token == "" || strings.Contains(body, "errorMessage") {
		a.logger.Warn("Login rejected; registering the account and retrying.",
			zap.String("username", username), zap.String("reason", gjson.Get(body, "errorMessage").String()))

		signupPath, err := a.client.Endpoint("signup")
		if err != nil {
			return "", err
		}
		resp, err := a.client.Post(ctx, signupPath, payload)
		if err != nil {
			return "", fmt.Errorf("signup %s: %w", username, err)
		}
		if err := a.client.Check(resp); err != nil {
			return "", err
		}

		if token, body, err = a.login(ctx, loginPath, payload); err != nil {
			return "", err
		}
	}

	if token == "" {
		a.logger.Error("No token in login response.", zap.String("body", body))
		return "", fmt.Errorf("login %s: %w", username, ErrNoToken)
	}
	a.logger.Info("Session token acquired.", zap.String("username", username))
	return token, nil
}

func (a *AuthClient) login(ctx context.Context, path string, payload credentials) (token, body string, err error) {
	resp, err := a.client.Post(ctx, path, payload)
	if err != nil {
		return "", "", fmt.Errorf("login %s: %w", payload.Username, err)
	}
	if err := a.client.Check(resp); err != nil {
		return "", "", err
	}
	return tokenFrom(resp.Text()), resp.Text(), nil
}

// tokenFrom extracts the token from a login response. The store answers with
// a JSON string such as "Auth_token: abc=", or with an errorMessage object.
func tokenFrom(body string) string {
	text := strings.TrimSpace(body)
	if res := gjson.Parse(text); res.Type == gjson.String {
		text = res.Str
	}
	if !strings.Contains(text, "Auth_token") {
		return ""
	}
	text = strings.Replace(text, "Auth_token:", "", 1)
	return strings.TrimSpace(text)
}

// CartClient seeds cart state through the backend.
type CartClient struct {
	client *api.Client
	logger *zap.Logger
}

// NewCartClient wraps an API client bound to the demoblaze project.
func NewCartClient(client *api.Client, logger *zap.Logger) *CartClient {
	return &CartClient{client: client, logger: logger.Named("cart_client")}
}

// AddToCart puts productID in the cart of the session identified by token.
func (c *CartClient) AddToCart(ctx context.Context, productID, token string) error {
	c.logger.Info("Adding product to cart through the API.", zap.String("product_id", productID))
	_, err := c.addToCart(ctx, productID, token, nil)
	return err
}

// AddToCartIdempotent sends the add-to-cart call tagged with key. Replaying it
// with the same key must not fail.
func (c *CartClient) AddToCartIdempotent(ctx context.Context, productID, token, key string) (*api.Response, error) {
	c.logger.Info("Adding product to cart with an idempotency key.",
		zap.String("product_id", productID), zap.String("idempotency_key", key))
	return c.addToCart(ctx, productID, token, map[string]string{HeaderIdempotencyKey: key})
}

func (c *CartClient) addToCart(ctx context.Context, productID, token string, headers map[string]string) (*api.Response, error) {
	path, err := c.client.Endpoint("addtocart")
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(ctx, api.Request{
		Method:  http.MethodPost,
		Path:    path,
		Body:    AddToCartRequest{ID: productID, Cookie: token, Flag: true},
		Headers: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("add product %s to cart: %w", productID, err)
	}
	if err := c.client.Check(resp); err != nil {
		return resp, err
	}
	if msg := resp.JSON("errorMessage"); msg.Exists() {
		return resp, fmt.Errorf("add product %s to cart: %s", productID, msg.String())
	}
	return resp, nil
}
