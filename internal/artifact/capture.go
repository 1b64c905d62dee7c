// internal/artifact/capture.go
package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"go.uber.org/zap"
)

// Screenshotter is anything that can render the current page as PNG bytes.
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// opSanitizer keeps operation names filesystem safe.
var opSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// Capturer writes diagnostic screenshots named <op>_<epochMillis>.png.
type Capturer struct {
	dir    string
	now    func() time.Time
	logger *zap.Logger
}

// NewCapturer creates a Capturer writing to dir. The directory is created on
// first capture.
func NewCapturer(dir string, logger *zap.Logger) *Capturer {
	return &Capturer{dir: dir, now: time.Now, logger: logger.Named("artifact")}
}

// Dir returns the output directory.
func (c *Capturer) Dir() string { return c.dir }

// FileName returns the artifact name for op at t.
func FileName(op string, t time.Time) string {
	name := opSanitizer.ReplaceAllString(op, "-")
	if name == "" {
		name = "capture"
	}
	return fmt.Sprintf("%s_%d.png", name, t.UnixMilli())
}

// Capture takes a screenshot through shooter and stores it. The returned path
// is what failure messages and reports reference.
func (c *Capturer) Capture(ctx context.Context, shooter Screenshotter, op string) (string, error) {
	buf, err := shooter.Screenshot(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to capture screenshot for %s: %w", op, err)
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create screenshot directory %s: %w", c.dir, err)
	}
	path, err := c.writeUnique(op, buf)
	if err != nil {
		return "", err
	}

	c.logger.Debug("Screenshot captured.", zap.String("op", op), zap.String("path", path))
	return path, nil
}

// maxNameAttempts bounds how far writeUnique moves the timestamp forward.
const maxNameAttempts = 1000

// writeUnique creates a file that did not exist before. Two units failing the
// same op in the same millisecond get consecutive timestamps instead of one
// overwriting the other's evidence.
func (c *Capturer) writeUnique(op string, buf []byte) (string, error) {
	at := c.now()
	for i := 0; i < maxNameAttempts; i++ {
		path := filepath.Join(c.dir, FileName(op, at.Add(time.Duration(i)*time.Millisecond)))
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create screenshot %s: %w", path, err)
		}
		_, werr := f.Write(buf)
		if cerr := f.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			return "", fmt.Errorf("failed to write screenshot %s: %w", path, werr)
		}
		return path, nil
	}
	return "", fmt.Errorf("no free screenshot name for %s after %d attempts", op, maxNameAttempts)
}
