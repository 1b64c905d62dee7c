// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/chromedp/cdproto/cdp"
	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/bulwark/internal/browser"
	"github.com/xkilldash9x/bulwark/internal/config"
	"github.com/xkilldash9x/bulwark/internal/locator"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Timeouts() config.TimeoutsConfig {
	args := m.Called()
	return args.Get(0).(config.TimeoutsConfig)
}

func (m *MockConfig) Artifacts() config.ArtifactsConfig {
	args := m.Called()
	return args.Get(0).(config.ArtifactsConfig)
}

func (m *MockConfig) Retry() config.RetryConfig {
	args := m.Called()
	return args.Get(0).(config.RetryConfig)
}

func (m *MockConfig) Runner() config.RunnerConfig {
	args := m.Called()
	return args.Get(0).(config.RunnerConfig)
}

func (m *MockConfig) API() config.APIConfig {
	args := m.Called()
	return args.Get(0).(config.APIConfig)
}

func (m *MockConfig) Preflight() config.PreflightConfig {
	args := m.Called()
	return args.Get(0).(config.PreflightConfig)
}

func (m *MockConfig) Locators() config.LocatorsConfig {
	args := m.Called()
	return args.Get(0).(config.LocatorsConfig)
}

func (m *MockConfig) Database() config.DatabaseConfig {
	args := m.Called()
	return args.Get(0).(config.DatabaseConfig)
}

var _ config.Interface = (*MockConfig)(nil)

// -- Driver Mock --

// MockDriver mocks the native browser primitives consumed by the interaction
// layer (interact.Driver).
type MockDriver struct {
	mock.Mock
}

func (m *MockDriver) WaitVisible(ctx context.Context, q locator.Query) (*cdp.Node, error) {
	args := m.Called(ctx, q)
	node, _ := args.Get(0).(*cdp.Node)
	return node, args.Error(1)
}

func (m *MockDriver) Count(ctx context.Context, q locator.Query) (int, error) {
	args := m.Called(ctx, q)
	return args.Int(0), args.Error(1)
}

func (m *MockDriver) Screenshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	buf, _ := args.Get(0).([]byte)
	return buf, args.Error(1)
}

func (m *MockDriver) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockDriver) Reload(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockDriver) WaitClickable(ctx context.Context, n *cdp.Node) error {
	return m.Called(ctx, n).Error(0)
}

func (m *MockDriver) Click(ctx context.Context, n *cdp.Node) error {
	return m.Called(ctx, n).Error(0)
}

func (m *MockDriver) JSClick(ctx context.Context, n *cdp.Node) error {
	return m.Called(ctx, n).Error(0)
}

func (m *MockDriver) Type(ctx context.Context, n *cdp.Node, text string) error {
	return m.Called(ctx, n, text).Error(0)
}

func (m *MockDriver) Text(ctx context.Context, n *cdp.Node) (string, error) {
	args := m.Called(ctx, n)
	return args.String(0), args.Error(1)
}

func (m *MockDriver) SelectByText(ctx context.Context, n *cdp.Node, text string) error {
	return m.Called(ctx, n, text).Error(0)
}

func (m *MockDriver) Displayed(ctx context.Context, n *cdp.Node) (bool, error) {
	args := m.Called(ctx, n)
	return args.Bool(0), args.Error(1)
}

func (m *MockDriver) EnterFrame(ctx context.Context, n *cdp.Node) error {
	return m.Called(ctx, n).Error(0)
}

func (m *MockDriver) ExitFrame() {
	m.Called()
}

func (m *MockDriver) SwitchToWindow(ctx context.Context, title string) error {
	return m.Called(ctx, title).Error(0)
}

func (m *MockDriver) WaitDialog(ctx context.Context) (browser.Dialog, error) {
	args := m.Called(ctx)
	return args.Get(0).(browser.Dialog), args.Error(1)
}

func (m *MockDriver) HandleDialog(ctx context.Context, accept bool) error {
	return m.Called(ctx, accept).Error(0)
}

func (m *MockDriver) AddCookie(ctx context.Context, c browser.Cookie) error {
	return m.Called(ctx, c).Error(0)
}

func (m *MockDriver) WaitForLoad(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockDriver) Title(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockDriver) Location(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}
