package demoblaze

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bulwark/internal/config"
	"github.com/xkilldash9x/bulwark/internal/interact"
	"github.com/xkilldash9x/bulwark/internal/locator"
	"github.com/xkilldash9x/bulwark/internal/runner"
)

// loginAlertWait bounds the wait for the rejection alert after a login. A
// successful login shows none.
const loginAlertWait = 2 * time.Second

// Suite builds the storefront scenarios. The API clients are optional;
// scenarios that seed state through the backend are skipped without them.
type Suite struct {
	repo     *locator.Registry
	baseURL  string
	username string
	password string
	auth     *AuthClient
	cart     *CartClient
	cases    []ProductCase
	logger   *zap.Logger
}

// NewSuite creates the suite. auth and cart may be nil.
func NewSuite(repo *locator.Registry, cfg config.RunnerConfig, auth *AuthClient, cart *CartClient, logger *zap.Logger) *Suite {
	return &Suite{
		repo:     repo,
		baseURL:  cfg.BaseURL,
		username: cfg.Username,
		password: cfg.Password,
		auth:     auth,
		cart:     cart,
		logger:   logger.Named("suite"),
	}
}

// Scenarios returns every scenario the suite can run with its dependencies.
func (s *Suite) Scenarios() []runner.Scenario {
	scenarios := []runner.Scenario{
		{Name: "home_title", Run: s.HomeTitle},
		{Name: "login_ui", Run: s.LoginUI},
		{Name: "category_filter", Run: s.CategoryFilter},
		{Name: "product_detail", Run: s.ProductDetail},
		{Name: "cart_workflow", Run: s.CartWorkflow},
	}
	if s.auth != nil {
		scenarios = append(scenarios, runner.Scenario{Name: "login_api_teleport", Run: s.LoginAPITeleport})
		if s.cart != nil {
			scenarios = append(scenarios,
				runner.Scenario{Name: "cart_hybrid", Run: s.CartHybrid},
				runner.Scenario{Name: "cart_idempotency", Run: s.CartIdempotency, APIOnly: true},
			)
		}
	} else {
		s.logger.Warn("No API client configured; backend-seeded scenarios are skipped.")
	}
	for _, pc := range s.cases {
		scenarios = append(scenarios, runner.Scenario{Name: "catalog_" + pc.ID, Run: s.ProductCatalog(pc)})
	}
	return scenarios
}

func (s *Suite) home(act *interact.Actions, logger *zap.Logger) *HomePage {
	return NewHomePage(act, s.repo, s.baseURL, logger)
}

// HomeTitle checks that the storefront renders its brand.
func (s *Suite) HomeTitle(ctx context.Context, u *runner.Unit) error {
	home := s.home(u.Actions, u.Logger)
	if err := home.Open(ctx); err != nil {
		return err
	}
	brand := home.BrandText(ctx)
	if !strings.Contains(brand, "STORE") {
		return fmt.Errorf("brand %q does not contain STORE; the page may not have rendered", brand)
	}
	return nil
}

// LoginUI logs in through the modal and expects the header greeting.
func (s *Suite) LoginUI(ctx context.Context, u *runner.Unit) error {
	home := s.home(u.Actions, u.Logger)
	if err := home.Open(ctx); err != nil {
		return err
	}
	if err := NewLoginPage(u.Actions, s.repo, u.Logger).Login(ctx, s.username, s.password); err != nil {
		return err
	}
	// A rejected login shows an alert; it must be handled before anything else.
	if alert := u.Actions.AlertTextAndAcceptWithin(ctx, loginAlertWait); alert != interact.NoAlertText {
		return fmt.Errorf("expected login to succeed but got alert %q", alert)
	}
	if !home.IsUserLoggedIn(ctx, s.username) {
		return fmt.Errorf("header does not greet %s after login", s.username)
	}
	return nil
}

// LoginAPITeleport authenticates through the backend and hands the token to
// the browser as a cookie instead of filling in the form.
func (s *Suite) LoginAPITeleport(ctx context.Context, u *runner.Unit) error {
	home, err := s.teleport(ctx, u)
	if err != nil {
		return err
	}
	if !home.IsUserLoggedIn(ctx, s.username) {
		return fmt.Errorf("header does not greet %s after cookie login", s.username)
	}
	return nil
}

// CartHybrid seeds the cart through the API and verifies the UI reflects it.
func (s *Suite) CartHybrid(ctx context.Context, u *runner.Unit) error {
	const productID, productName = "6", "Sony xperia z5"

	token, err := s.auth.Token(ctx, s.username, s.password)
	if err != nil {
		return err
	}
	if err := s.cart.AddToCart(ctx, productID, token); err != nil {
		return err
	}
	u.Logger.Info("Cart seeded through the API.", zap.String("product_id", productID))

	home := s.home(u.Actions, u.Logger)
	if err := home.Open(ctx); err != nil {
		return err
	}
	if err := u.Actions.AddCookie(ctx, TokenCookie, token); err != nil {
		return err
	}
	if err := home.OpenPath(ctx, "cart.html"); err != nil {
		return err
	}

	cart := NewCartPage(u.Actions, s.repo, u.Logger)
	if got := cart.ProductName(ctx, 1); got != productName {
		return fmt.Errorf("cart row 1 shows %q, want %q", got, productName)
	}
	return nil
}

// CategoryFilter narrows the catalogue to laptops.
func (s *Suite) CategoryFilter(ctx context.Context, u *runner.Unit) error {
	home := s.home(u.Actions, u.Logger)
	if err := home.Open(ctx); err != nil {
		return err
	}
	if err := home.ClickLink(ctx, "Laptops"); err != nil {
		return err
	}
	if !home.HasLink(ctx, "MacBook air") {
		return fmt.Errorf("laptop category does not list MacBook air")
	}
	return nil
}

// ProductDetail checks the price and title of a product page.
func (s *Suite) ProductDetail(ctx context.Context, u *runner.Unit) error {
	const product = "Samsung galaxy s6"

	home := s.home(u.Actions, u.Logger)
	if err := home.Open(ctx); err != nil {
		return err
	}
	if err := home.ClickLink(ctx, product); err != nil {
		return err
	}

	pdp := NewProductPage(u.Actions, s.repo, u.Logger)
	if price := pdp.Price(ctx); !strings.Contains(price, "$360") {
		return fmt.Errorf("price mismatch: want $360, page shows %q", price)
	}
	if name := pdp.Name(ctx); name != product {
		return fmt.Errorf("product name mismatch: want %q, page shows %q", product, name)
	}
	return nil
}

// CartWorkflow adds a product through the UI and checks it stays in the cart.
func (s *Suite) CartWorkflow(ctx context.Context, u *runner.Unit) error {
	const product = "Nokia lumia 1520"

	home := s.home(u.Actions, u.Logger)
	if err := home.Open(ctx); err != nil {
		return err
	}
	if err := home.ClickLink(ctx, product); err != nil {
		return err
	}
	if err := NewProductPage(u.Actions, s.repo, u.Logger).AddToCart(ctx); err != nil {
		return err
	}
	if err := home.OpenCart(ctx); err != nil {
		return err
	}
	if !NewCartPage(u.Actions, s.repo, u.Logger).Contains(ctx, product) {
		return fmt.Errorf("%s disappeared from the cart", product)
	}
	return nil
}

// teleport logs the browser in with a backend-issued token.
func (s *Suite) teleport(ctx context.Context, u *runner.Unit) (*HomePage, error) {
	token, err := s.auth.Token(ctx, s.username, s.password)
	if err != nil {
		return nil, err
	}
	home := s.home(u.Actions, u.Logger)
	if err := home.Open(ctx); err != nil {
		return nil, err
	}
	if err := u.Actions.AddCookie(ctx, TokenCookie, token); err != nil {
		return nil, err
	}
	u.Logger.Info("Browser session authenticated through the API.", zap.String("username", s.username))
	return home, nil
}

// CartIdempotency replays one add-to-cart call with the same idempotency key,
// the way a client retry after a dropped response would.
func (s *Suite) CartIdempotency(ctx context.Context, u *runner.Unit) error {
	const productID = "1"

	token, err := s.auth.Token(ctx, s.username, s.password)
	if err != nil {
		return err
	}
	key := uuid.NewString()

	for attempt := 1; attempt <= 2; attempt++ {
		resp, err := s.cart.AddToCartIdempotent(ctx, productID, token, key)
		if err != nil {
			return fmt.Errorf("request %d with key %s: %w", attempt, key, err)
		}
		if resp.Status != http.StatusOK {
			return fmt.Errorf("request %d with key %s: status %d, want 200", attempt, key, resp.Status)
		}
		u.Logger.Info("Add-to-cart accepted.", zap.Int("request", attempt), zap.String("idempotency_key", key))
	}
	return nil
}
