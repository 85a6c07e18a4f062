package progress

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"
)

// Tracker wraps a progress bar for one pipeline stage.
type Tracker struct {
	bar   *progressbar.ProgressBar
	label string
	out   io.Writer
}

// Factory opens trackers on w. A negative total opens a spinner.
func Factory(w io.Writer) func(label string, total int) *Tracker {
	return func(label string, total int) *Tracker {
		if total < 0 {
			return newSpinner(w, label)
		}
		return newTracker(w, label, total)
	}
}

func newSpinner(w io.Writer, label string) *Tracker {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(20),
		progressbar.OptionSetDescription(label),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	return &Tracker{bar: bar, label: label, out: w}
}

func newTracker(w io.Writer, label string, total int) *Tracker {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription(label),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionSetElapsedTime(false),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	return &Tracker{bar: bar, label: label, out: w}
}

// Set moves the bar to current.
func (t *Tracker) Set(current int) {
	_ = t.bar.Set(current)
}

// Finish clears the bar. A non-nil err is printed in its place.
func (t *Tracker) Finish(err error) {
	_ = t.bar.Finish()
	_ = t.bar.Clear()
	if err != nil {
		fmt.Fprintf(t.out, "  %s error: %v\n", t.label, err)
	}
}
