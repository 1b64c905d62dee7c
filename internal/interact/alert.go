package interact

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// NoAlertText is what AlertTextAndAccept returns when no alert appeared.
const NoAlertText = "NO_ALERT_PRESENT"

// AlertResult is the outcome of HandleAlert. A zero value means no alert
// appeared in time.
type AlertResult struct {
	Present bool
	Text    string
	// Err is set when an alert was present but could not be handled.
	Err error
}

// HandleAlert waits for an alert and accepts or dismisses it. Alerts are
// optional in most flows, so a missing alert is reported in the result and
// never as an error.
func (a *Actions) HandleAlert(ctx context.Context, accept bool) AlertResult {
	return a.HandleAlertWithin(ctx, accept, a.timeouts.Alert)
}

// HandleAlertWithin is HandleAlert with its own wait, for flows where an
// alert only shows up on the unhappy path.
func (a *Actions) HandleAlertWithin(ctx context.Context, accept bool, wait time.Duration) AlertResult {
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	dlg, err := a.driver.WaitDialog(waitCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			a.logger.Warn("No alert appeared within timeout.", zap.Duration("timeout", wait))
		} else {
			a.logger.Warn("Stopped waiting for alert.", zap.Error(err))
		}
		return AlertResult{}
	}

	res := AlertResult{Present: true, Text: dlg.Message}
	if err := a.driver.HandleDialog(ctx, accept); err != nil {
		a.logger.Warn("Alert could not be handled.", zap.Error(err))
		res.Err = err
		return res
	}
	if accept {
		a.logger.Info("Alert accepted.", zap.String("text", dlg.Message))
	} else {
		a.logger.Info("Alert dismissed.", zap.String("text", dlg.Message))
	}
	return res
}

// AlertTextAndAccept accepts the next alert and returns its text, or
// NoAlertText when none appeared.
func (a *Actions) AlertTextAndAccept(ctx context.Context) string {
	return a.AlertTextAndAcceptWithin(ctx, a.timeouts.Alert)
}

// AlertTextAndAcceptWithin is AlertTextAndAccept with its own wait.
func (a *Actions) AlertTextAndAcceptWithin(ctx context.Context, wait time.Duration) string {
	res := a.HandleAlertWithin(ctx, true, wait)
	if !res.Present {
		return NoAlertText
	}
	return res.Text
}
