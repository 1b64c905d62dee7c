package demoblaze

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/bulwark/internal/interact"
	"github.com/xkilldash9x/bulwark/internal/locator"
)

// page is the shared base of every page object.
type page struct {
	act    *interact.Actions
	repo   *locator.Registry
	logger *zap.Logger
}

func (p page) chain(name string) locator.Chain { return p.repo.MustChain(name) }

// HomePage is the storefront landing page with the global header.
type HomePage struct {
	page
	baseURL string
}

// NewHomePage creates the landing page object.
func NewHomePage(act *interact.Actions, repo *locator.Registry, baseURL string, logger *zap.Logger) *HomePage {
	return &HomePage{page: page{act: act, repo: repo, logger: logger.Named("home_page")}, baseURL: baseURL}
}

// Open navigates to the storefront and waits for the header to render.
func (h *HomePage) Open(ctx context.Context) error {
	if err := h.act.Navigate(ctx, h.baseURL); err != nil {
		return err
	}
	if err := h.act.WaitVisible(ctx, h.chain(NavHome)); err != nil {
		return err
	}
	h.logger.Info("Home page loaded.", zap.String("url", h.baseURL))
	return nil
}

// OpenPath navigates to a page below the storefront root, e.g. "cart.html".
func (h *HomePage) OpenPath(ctx context.Context, path string) error {
	return h.act.Navigate(ctx, strings.TrimRight(h.baseURL, "/")+"/"+strings.TrimLeft(path, "/"))
}

// BrandText is the text of the header brand link.
func (h *HomePage) BrandText(ctx context.Context) string {
	return h.act.Text(ctx, h.chain(NavHome))
}

// ClickLink clicks a category or product tile by its visible name.
func (h *HomePage) ClickLink(ctx context.Context, name string) error {
	return h.act.Click(ctx, h.chain(CategoryLink), name)
}

// HasLink reports whether a category or product tile is visible.
func (h *HomePage) HasLink(ctx context.Context, name string) bool {
	return h.act.IsDisplayed(ctx, h.chain(CategoryLink), name)
}

// OpenCart clicks the Cart link in the header.
func (h *HomePage) OpenCart(ctx context.Context) error {
	return h.act.Click(ctx, h.chain(NavCart))
}

// IsUserLoggedIn reports whether the header greets username.
func (h *HomePage) IsUserLoggedIn(ctx context.Context, username string) bool {
	if err := h.act.WaitVisible(ctx, h.chain(NavUser)); err != nil {
		return false
	}
	return strings.Contains(h.act.Text(ctx, h.chain(NavUser)), username)
}

// LoginPage is the login modal.
type LoginPage struct {
	page
}

// NewLoginPage creates the login modal object.
func NewLoginPage(act *interact.Actions, repo *locator.Registry, logger *zap.Logger) *LoginPage {
	return &LoginPage{page: page{act: act, repo: repo, logger: logger.Named("login_page")}}
}

// Login opens the modal, waits for the form and submits the credentials.
func (l *LoginPage) Login(ctx context.Context, username, password string) error {
	l.logger.Info("Submitting login form.", zap.String("username", username))
	steps := []func() error{
		func() error { return l.act.Click(ctx, l.chain(LoginLink)) },
		func() error { return l.act.WaitVisible(ctx, l.chain(LoginUser)) },
		func() error { return l.act.Type(ctx, l.chain(LoginUser), username) },
		func() error { return l.act.Type(ctx, l.chain(LoginPass), password) },
		func() error { return l.act.Click(ctx, l.chain(LoginBtn)) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return fmt.Errorf("login as %s: %w", username, err)
		}
	}
	return nil
}

// ProductPage is the product detail page.
type ProductPage struct {
	page
}

// NewProductPage creates the product detail page object.
func NewProductPage(act *interact.Actions, repo *locator.Registry, logger *zap.Logger) *ProductPage {
	return &ProductPage{page: page{act: act, repo: repo, logger: logger.Named("product_page")}}
}

func (p *ProductPage) Name(ctx context.Context) string {
	return p.act.Text(ctx, p.chain(ProductTitle))
}

func (p *ProductPage) Price(ctx context.Context) string {
	return p.act.Text(ctx, p.chain(ProductPrice))
}

func (p *ProductPage) Description(ctx context.Context) string {
	return p.act.Text(ctx, p.chain(ProductDesc))
}

// AddToCart clicks the add button and accepts the confirmation alert. It
// fails when the store never confirms.
func (p *ProductPage) AddToCart(ctx context.Context) error {
	if err := p.act.Click(ctx, p.chain(AddToCartBtn)); err != nil {
		return err
	}
	res := p.act.HandleAlert(ctx, true)
	if res.Err != nil {
		return res.Err
	}
	if !res.Present {
		return fmt.Errorf("add to cart was not confirmed by the store")
	}
	p.logger.Info("Product added to cart.", zap.String("confirmation", res.Text))
	return nil
}

// CartPage is the cart listing.
type CartPage struct {
	page
}

// NewCartPage creates the cart page object.
func NewCartPage(act *interact.Actions, repo *locator.Registry, logger *zap.Logger) *CartPage {
	return &CartPage{page: page{act: act, repo: repo, logger: logger.Named("cart_page")}}
}

// ProductName returns the product title in the 1-based row.
func (c *CartPage) ProductName(ctx context.Context, row int) string {
	return c.act.Text(ctx, c.chain(CartRowName), strconv.Itoa(row))
}

// Contains reports whether name is listed in the cart.
func (c *CartPage) Contains(ctx context.Context, name string) bool {
	return c.act.IsDisplayed(ctx, c.chain(CartProduct), name)
}

func (c *CartPage) Total(ctx context.Context) string {
	return c.act.Text(ctx, c.chain(CartTotalPrice))
}

// Delete removes name from the cart.
func (c *CartPage) Delete(ctx context.Context, name string) error {
	return c.act.Click(ctx, c.chain(DeleteProduct), name)
}
