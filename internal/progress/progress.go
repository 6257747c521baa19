// Package progress provides progress indicators for long-running sync
// operations.
package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/klauern/memsync/internal/logging"
	"github.com/klauern/memsync/internal/sync"
	"github.com/klauern/memsync/internal/ui"
)

// Bar wraps progressbar functionality with integration to memsync's UI and
// logging.
type Bar struct {
	bar     *progressbar.ProgressBar
	enabled bool
	desc    string
}

// Options configures the progress bar behavior.
type Options struct {
	// Max is the maximum value for the progress bar (total steps).
	Max int64
	// Description is the prefix text shown before the progress bar.
	Description string
	// Writer is the output destination. Defaults to os.Stderr.
	Writer io.Writer
}

// DefaultOptions returns sensible defaults for CLI progress bars.
func DefaultOptions() Options {
	return Options{
		Max:         100,
		Description: "Syncing",
		Writer:      os.Stderr,
	}
}

// New creates a new progress bar with the given options.
// The bar is only shown if:
//   - Colors are enabled (respects NO_COLOR and --no-color)
//   - Output is a terminal
//   - Not in debug mode (to avoid interfering with logs)
func New(opts Options) *Bar {
	if opts.Writer == nil {
		opts.Writer = os.Stderr
	}

	enabled := shouldShowProgress(opts.Writer)

	b := &Bar{
		enabled: enabled,
		desc:    opts.Description,
	}

	if !enabled {
		logging.Debug(fmt.Sprintf("%s started", opts.Description),
			logging.Count(int(opts.Max)))
		return b
	}

	b.bar = progressbar.NewOptions64(
		opts.Max,
		progressbar.OptionSetDescription(opts.Description),
		progressbar.OptionSetWriter(opts.Writer),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(15),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(opts.Writer, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionEnableColorCodes(ui.IsColorEnabled()),
	)

	return b
}

// Set64 sets the progress bar to a specific value.
func (b *Bar) Set64(n int64) error {
	if !b.enabled {
		return nil
	}
	return b.bar.Set64(n)
}

// Describe updates the progress bar description.
func (b *Bar) Describe(desc string) {
	b.desc = desc
	if !b.enabled {
		return
	}
	b.bar.Describe(desc)
}

// Finish completes the progress bar and logs completion.
func (b *Bar) Finish() error {
	if !b.enabled {
		logging.Debug(fmt.Sprintf("%s completed", b.desc))
		return nil
	}
	return b.bar.Finish()
}

// Clear removes the progress bar from the terminal.
func (b *Bar) Clear() error {
	if !b.enabled {
		return nil
	}
	return b.bar.Clear()
}

// Observe returns a sync progress callback that drives the bar: the bar
// tracks percent complete and its description follows the current phase.
func (b *Bar) Observe() func(sync.Progress) {
	return func(p sync.Progress) {
		b.Describe(fmt.Sprintf("Syncing (%s)", p.Phase))
		_ = b.Set64(int64(p.Percent))
	}
}

// shouldShowProgress determines if progress bars should be displayed.
func shouldShowProgress(w io.Writer) bool {
	if !ui.IsColorEnabled() {
		return false
	}

	if f, ok := w.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil {
			return false
		}
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			return false
		}
	}

	// Disable progress at debug level to avoid interfering with logs.
	if logging.Default().Enabled(context.Background(), logging.LevelDebug) {
		return false
	}

	return true
}

// Simple creates a progress bar for a sync operation without needing to
// configure options.
func Simple(description string) *Bar {
	return New(Options{
		Max:         100,
		Description: description,
		Writer:      os.Stderr,
	})
}
