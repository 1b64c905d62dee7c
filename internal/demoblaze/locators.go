// Package demoblaze is the reference suite: page objects, backend clients and
// scenarios for the demoblaze storefront.
package demoblaze

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"github.com/xkilldash9x/bulwark/internal/locator"
)

// Chain names in the embedded repository.
const (
	NavHome        = "NAV_HOME"
	NavContact     = "NAV_CONTACT"
	NavCart        = "NAV_CART"
	NavUser        = "NAV_USER"
	LoginLink      = "LOGIN_LINK"
	LoginUser      = "LOGIN_USER"
	LoginPass      = "LOGIN_PASS"
	LoginBtn       = "LOGIN_BTN"
	SignupLink     = "SIGNUP_LINK"
	SignupUser     = "SIGNUP_USER"
	SignupPass     = "SIGNUP_PASS"
	SignupBtn      = "SIGNUP_BTN"
	CategoryLink   = "CATEGORY_DYNAMIC"
	AddToCartBtn   = "ADD_TO_CART_BTN"
	ProductTitle   = "PRODUCT_TITLE"
	ProductPrice   = "PRODUCT_PRICE"
	ProductDesc    = "PRODUCT_DESC"
	PlaceOrderBtn  = "PLACE_ORDER_BTN"
	CartItemsTable = "CART_ITEMS_TABLE"
	CartTotalPrice = "CART_TOTAL_PRICE"
	CartProduct    = "CART_PRODUCT_NAME"
	CartRowName    = "CART_ROW_NAME"
	DeleteProduct  = "DELETE_PRODUCT"
)

//go:embed locators.yaml
var embeddedLocators []byte

// Locators returns the embedded repository, overlaid with the chains in
// overrideFile when one is given.
func Locators(overrideFile string) (*locator.Registry, error) {
	base, err := locator.LoadRegistry(bytes.NewReader(embeddedLocators))
	if err != nil {
		return nil, fmt.Errorf("embedded locator repository: %w", err)
	}
	if overrideFile == "" {
		return base, nil
	}

	f, err := os.Open(overrideFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open locator repository %s: %w", overrideFile, err)
	}
	defer f.Close()

	override, err := locator.LoadRegistry(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", overrideFile, err)
	}
	return base.Overlay(override), nil
}
