package interact_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/bulwark/internal/artifact"
	"github.com/xkilldash9x/bulwark/internal/browser"
	"github.com/xkilldash9x/bulwark/internal/config"
	"github.com/xkilldash9x/bulwark/internal/interact"
	"github.com/xkilldash9x/bulwark/internal/locator"
	"github.com/xkilldash9x/bulwark/internal/mocks"
	"github.com/xkilldash9x/bulwark/internal/resolver"
)

var (
	loginUser = locator.MustChain("LOGIN_USER", "id:loginusername", "xpath://input[@id='loginusername']")
	navCart   = locator.MustChain("NAV_CART", "id:cartur", "xpath://a[text()='Cart']")
	category  = locator.MustChain("CATEGORY_DYNAMIC", "xpath://a[text()='%s']")

	errNoMatch = errors.New("no visible match")
	pngBytes   = []byte{0x89, 'P', 'N', 'G'}
)

func query(t *testing.T, text string, subs ...string) locator.Query {
	t.Helper()
	q, err := locator.MustParse(text).Query(subs...)
	require.NoError(t, err)
	return q
}

type fixture struct {
	driver  *mocks.MockDriver
	actions *interact.Actions
	shots   string
}

func setup(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	driver := new(mocks.MockDriver)
	shots := t.TempDir()

	timeouts := config.NewDefaultConfig().Timeouts()
	res := resolver.New(timeouts.Probe, logger)
	actions := interact.New(driver, res, artifact.NewCapturer(shots, logger), timeouts, logger)
	t.Cleanup(func() { driver.AssertExpectations(t) })
	return &fixture{driver: driver, actions: actions, shots: shots}
}

func (f *fixture) screenshots(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.shots)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestClick(t *testing.T) {
	node := &cdp.Node{NodeID: 7, NodeName: "INPUT"}

	t.Run("heals through the fallback descriptor", func(t *testing.T) {
		f := setup(t)
		f.driver.On("WaitVisible", mock.Anything, query(t, "id:loginusername")).Return(nil, errNoMatch).Once()
		f.driver.On("WaitVisible", mock.Anything, query(t, "xpath://input[@id='loginusername']")).Return(node, nil).Once()
		f.driver.On("WaitClickable", mock.Anything, node).Return(nil).Once()
		f.driver.On("Click", mock.Anything, node).Return(nil).Once()

		require.NoError(t, f.actions.Click(context.Background(), loginUser))
		assert.Empty(t, f.screenshots(t))
	})

	t.Run("exhausted chain fails with evidence", func(t *testing.T) {
		f := setup(t)
		f.driver.On("WaitVisible", mock.Anything, mock.Anything).Return(nil, errNoMatch).Twice()
		f.driver.On("Screenshot", mock.Anything).Return(pngBytes, nil).Once()

		err := f.actions.Click(context.Background(), navCart)
		require.Error(t, err)

		var ie *interact.InteractionError
		require.ErrorAs(t, err, &ie)
		assert.Equal(t, "click", ie.Op)
		assert.Equal(t, "NAV_CART", ie.Target)
		assert.True(t, strings.HasPrefix(filepath.Base(ie.Screenshot), "click_"))
		assert.FileExists(t, ie.Screenshot)

		var nf *resolver.ElementNotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, []string{"id:cartur", "xpath://a[text()='Cart']"}, nf.Tried())
		assert.Contains(t, err.Error(), "id:cartur, xpath://a[text()='Cart']")
	})

	t.Run("native failure after resolution is wrapped", func(t *testing.T) {
		f := setup(t)
		intercepted := errors.New("element click intercepted")
		f.driver.On("WaitVisible", mock.Anything, query(t, "id:cartur")).Return(node, nil).Once()
		f.driver.On("WaitClickable", mock.Anything, node).Return(nil).Once()
		f.driver.On("Click", mock.Anything, node).Return(intercepted).Once()
		f.driver.On("Screenshot", mock.Anything).Return(pngBytes, nil).Once()

		err := f.actions.Click(context.Background(), navCart)
		assert.ErrorIs(t, err, intercepted)
		assert.Len(t, f.screenshots(t), 1)
	})

	t.Run("screenshot failure still reports the interaction error", func(t *testing.T) {
		f := setup(t)
		f.driver.On("WaitVisible", mock.Anything, mock.Anything).Return(nil, errNoMatch).Twice()
		f.driver.On("Screenshot", mock.Anything).Return(nil, errors.New("target crashed")).Once()

		err := f.actions.Click(context.Background(), navCart)
		var ie *interact.InteractionError
		require.ErrorAs(t, err, &ie)
		assert.Empty(t, ie.Screenshot)
	})
}

func TestType(t *testing.T) {
	f := setup(t)
	node := &cdp.Node{NodeID: 3}
	f.driver.On("WaitVisible", mock.Anything, query(t, "id:loginusername")).Return(node, nil).Once()
	f.driver.On("Type", mock.Anything, node, "qa_user").Return(nil).Once()

	assert.NoError(t, f.actions.Type(context.Background(), loginUser, "qa_user"))
}

func TestText(t *testing.T) {
	node := &cdp.Node{NodeID: 9}

	t.Run("returns the element text", func(t *testing.T) {
		f := setup(t)
		f.driver.On("WaitVisible", mock.Anything, query(t, "xpath://a[text()='%s']", "Laptops")).Return(node, nil).Once()
		f.driver.On("Text", mock.Anything, node).Return("Laptops", nil).Once()

		assert.Equal(t, "Laptops", f.actions.Text(context.Background(), category, "Laptops"))
	})

	t.Run("degrades to empty string without evidence", func(t *testing.T) {
		f := setup(t)
		f.driver.On("WaitVisible", mock.Anything, mock.Anything).Return(nil, errNoMatch).Twice()

		assert.Equal(t, "", f.actions.Text(context.Background(), navCart))
		f.driver.AssertNotCalled(t, "Screenshot", mock.Anything)
	})

	t.Run("read failure degrades too", func(t *testing.T) {
		f := setup(t)
		f.driver.On("WaitVisible", mock.Anything, query(t, "id:cartur")).Return(node, nil).Once()
		f.driver.On("Text", mock.Anything, node).Return("", errors.New("node detached")).Once()

		assert.Equal(t, "", f.actions.Text(context.Background(), navCart))
	})
}

func TestIsDisplayed(t *testing.T) {
	node := &cdp.Node{NodeID: 4}

	f := setup(t)
	f.driver.On("WaitVisible", mock.Anything, query(t, "id:cartur")).Return(node, nil).Once()
	f.driver.On("Displayed", mock.Anything, node).Return(true, nil).Once()
	assert.True(t, f.actions.IsDisplayed(context.Background(), navCart))

	g := setup(t)
	g.driver.On("WaitVisible", mock.Anything, mock.Anything).Return(nil, errNoMatch).Twice()
	assert.False(t, g.actions.IsDisplayed(context.Background(), navCart))

	h := setup(t)
	h.driver.On("WaitVisible", mock.Anything, query(t, "id:cartur")).Return(node, nil).Once()
	h.driver.On("Displayed", mock.Anything, node).Return(false, errors.New("stale")).Once()
	assert.False(t, h.actions.IsDisplayed(context.Background(), navCart))
}

func TestSelectByVisibleText(t *testing.T) {
	sel := locator.MustChain("COUNTRY", "name:country")
	node := &cdp.Node{NodeID: 11, NodeName: "SELECT"}

	f := setup(t)
	f.driver.On("WaitVisible", mock.Anything, query(t, "name:country")).Return(node, nil).Once()
	f.driver.On("SelectByText", mock.Anything, node, "Pakistan").Return(errors.New(`no option with visible text "Pakistan"`)).Once()
	f.driver.On("Screenshot", mock.Anything).Return(pngBytes, nil).Once()

	err := f.actions.SelectByVisibleText(context.Background(), sel, "Pakistan")
	var ie *interact.InteractionError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "select", ie.Op)
}

func TestFrames(t *testing.T) {
	frame := locator.MustChain("PAYMENT_FRAME", "css:iframe#payment")
	node := &cdp.Node{NodeID: 20, NodeName: "IFRAME"}

	f := setup(t)
	f.driver.On("WaitVisible", mock.Anything, query(t, "css:iframe#payment")).Return(node, nil).Once()
	f.driver.On("EnterFrame", mock.Anything, node).Return(nil).Once()
	f.driver.On("ExitFrame").Return().Once()

	require.NoError(t, f.actions.SwitchToFrame(context.Background(), frame))
	f.actions.SwitchToDefault()
}

func TestAddCookie(t *testing.T) {
	f := setup(t)
	f.driver.On("Location", mock.Anything).Return("https://www.demoblaze.com/index.html", nil).Once()
	f.driver.On("AddCookie", mock.Anything, browser.Cookie{Name: "tokenp_", Value: "abc", Domain: "www.demoblaze.com"}).Return(nil).Once()
	f.driver.On("Reload", mock.Anything).Return(nil).Once()

	assert.NoError(t, f.actions.AddCookie(context.Background(), "tokenp_", "abc"))
}

func TestNavigate_RejectsMalformedURL(t *testing.T) {
	f := setup(t)
	err := f.actions.Navigate(context.Background(), "not a url")
	var ie *interact.InteractionError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "navigate", ie.Op)
	f.driver.AssertNotCalled(t, "Navigate", mock.Anything, mock.Anything)
}

func TestHandleAlert(t *testing.T) {
	t.Run("no alert is a sentinel, not an error", func(t *testing.T) {
		f := setup(t)
		f.driver.On("WaitDialog", mock.Anything).Return(browser.Dialog{}, context.DeadlineExceeded).Twice()

		res := f.actions.HandleAlert(context.Background(), true)
		assert.False(t, res.Present)
		assert.NoError(t, res.Err)
		assert.Equal(t, interact.NoAlertText, f.actions.AlertTextAndAccept(context.Background()))
		f.driver.AssertNotCalled(t, "HandleDialog", mock.Anything, mock.Anything)
	})

	t.Run("accepts and reports the text", func(t *testing.T) {
		f := setup(t)
		f.driver.On("WaitDialog", mock.Anything).Return(browser.Dialog{Type: "alert", Message: "Product added."}, nil).Once()
		f.driver.On("HandleDialog", mock.Anything, true).Return(nil).Once()

		assert.Equal(t, "Product added.", f.actions.AlertTextAndAccept(context.Background()))
	})

	t.Run("a caller-chosen wait replaces the alert timeout", func(t *testing.T) {
		f := setup(t)
		f.driver.On("WaitDialog", mock.MatchedBy(func(ctx context.Context) bool {
			deadline, ok := ctx.Deadline()
			return ok && time.Until(deadline) <= 500*time.Millisecond
		})).Return(browser.Dialog{}, context.DeadlineExceeded).Once()

		assert.Equal(t, interact.NoAlertText, f.actions.AlertTextAndAcceptWithin(context.Background(), 500*time.Millisecond))
	})

	t.Run("dismiss failure is carried in the result", func(t *testing.T) {
		f := setup(t)
		boom := errors.New("no dialog is showing")
		f.driver.On("WaitDialog", mock.Anything).Return(browser.Dialog{Message: "Sure?"}, nil).Once()
		f.driver.On("HandleDialog", mock.Anything, false).Return(boom).Once()

		res := f.actions.HandleAlert(context.Background(), false)
		assert.True(t, res.Present)
		assert.ErrorIs(t, res.Err, boom)
	})
}
