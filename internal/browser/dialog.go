package browser

import (
	"context"
	"sync"

	"github.com/chromedp/cdproto/page"
)

// Dialog describes a JavaScript alert, confirm, or prompt that is currently open.
type Dialog struct {
	Type    string
	Message string
	URL     string
}

// dialogTracker records dialogs opened on a tab. Events arrive on the chromedp
// listener goroutine, which must never block, and are consumed by whichever
// caller waits for or handles the dialog.
type dialogTracker struct {
	mu      sync.Mutex
	pending *Dialog
	opened  chan struct{}
}

func newDialogTracker() *dialogTracker {
	return &dialogTracker{opened: make(chan struct{})}
}

func (d *dialogTracker) open(ev *page.EventJavascriptDialogOpening) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = &Dialog{Type: ev.Type.String(), Message: ev.Message, URL: ev.URL}
	select {
	case <-d.opened:
	default:
		close(d.opened)
	}
}

// signal returns a channel that is closed once a dialog is pending.
func (d *dialogTracker) signal() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened
}

// peek returns the pending dialog without consuming it.
func (d *dialogTracker) peek() (Dialog, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		return Dialog{}, false
	}
	return *d.pending, true
}

// clear marks the pending dialog as handled and re-arms the signal.
func (d *dialogTracker) clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = nil
	select {
	case <-d.opened:
		d.opened = make(chan struct{})
	default:
	}
}

// wait blocks until a dialog is pending or ctx is done.
func (d *dialogTracker) wait(ctx context.Context) (Dialog, error) {
	for {
		if dlg, ok := d.peek(); ok {
			return dlg, nil
		}
		select {
		case <-d.signal():
		case <-ctx.Done():
			return Dialog{}, ctx.Err()
		}
	}
}
