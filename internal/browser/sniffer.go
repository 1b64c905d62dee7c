package browser

import (
	"github.com/chromedp/cdproto/network"
	"go.uber.org/zap"
)

// logFailedResponse reports backend errors seen by the page so UI failures can
// be traced to the request that caused them.
func logFailedResponse(logger *zap.Logger, ev *network.EventResponseReceived) {
	if ev.Response == nil || ev.Response.Status < 400 {
		return
	}
	logger.Error("Network failure observed by page.",
		zap.Int64("status", ev.Response.Status),
		zap.String("url", ev.Response.URL),
		zap.String("resource_type", ev.Type.String()),
	)
}
