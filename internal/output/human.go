package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/nogcio/wrkr/internal/metrics"
)

// HumanSink renders progress and summary events as colored text, ported
// from the teacher's console output and generalized from HTTP request
// stats to scenario/VU/iteration stats.
type HumanSink struct {
	w       io.Writer
	isTTY   bool
	quiet   bool
	mu      sync.Mutex
	lines   int

	green, red, yellow, cyan, magenta, dim, bold *color.Color
}

// NewHumanSink builds a HumanSink writing to w. Colors are enabled only
// when w is a terminal, unless forced on/off via NO_COLOR/FORCE_COLOR.
func NewHumanSink(w io.Writer, quiet bool) *HumanSink {
	tty := false
	if f, ok := w.(*os.File); ok {
		tty = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	enabled := tty
	if os.Getenv("NO_COLOR") != "" {
		enabled = false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		enabled = true
	}

	mk := func(attrs ...color.Attribute) *color.Color {
		c := color.New(attrs...)
		if !enabled {
			c.DisableColor()
		}
		return c
	}

	return &HumanSink{
		w:       w,
		isTTY:   tty,
		quiet:   quiet,
		green:   mk(color.FgGreen, color.Bold),
		red:     mk(color.FgRed, color.Bold),
		yellow:  mk(color.FgYellow, color.Bold),
		cyan:    mk(color.FgCyan),
		magenta: mk(color.FgMagenta),
		dim:     mk(color.FgWhite),
		bold:    mk(color.Bold),
	}
}

func (h *HumanSink) Progress(p Progress) {
	if h.quiet {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	line := fmt.Sprintf("[%6.1fs] vus=%s reqs=%s rps=%s failed=%s p95=%sms",
		p.ElapsedSeconds,
		h.cyan.Sprintf("%d", p.VUsActive),
		h.cyan.Sprintf("%d", p.RequestsTotal),
		h.green.Sprintf("%.1f", p.RPS),
		colorizeFailed(h, p.FailedRequestsTotal),
		h.magenta.Sprintf("%.1f", p.LatencyP95/1000)) // microseconds -> milliseconds

	if h.isTTY && h.lines > 0 {
		fmt.Fprintf(h.w, "\033[%dA\033[K", h.lines)
	}
	fmt.Fprintln(h.w, line)
	h.lines = 1
}

func colorizeFailed(h *HumanSink, n int64) string {
	if n == 0 {
		return h.green.Sprintf("%d", n)
	}
	return h.red.Sprintf("%d", n)
}

func (h *HumanSink) Event(e Event) {
	if h.quiet {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprintln(h.w, h.dim.Sprintf("  %s", e.Name))
}

func (h *HumanSink) Summary(s Summary) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.quiet {
		if s.Passed {
			fmt.Fprintln(h.w, h.green.Sprint("PASSED"))
		} else {
			fmt.Fprintln(h.w, h.red.Sprint("FAILED"))
		}
		return
	}

	sep := strings.Repeat("-", 56)
	status := h.green.Sprint("PASSED")
	if !s.Passed {
		status = h.red.Sprint("FAILED")
	}

	fmt.Fprintln(h.w, sep)
	fmt.Fprintf(h.w, "%s  %s  duration=%s\n", h.bold.Sprint("run"), status, s.Duration)
	fmt.Fprintln(h.w, sep)

	for _, m := range s.Metrics {
		switch m.Kind {
		case metrics.Trend:
			fmt.Fprintf(h.w, "  %-24s count=%-8d avg=%-10.2f p95=%-10.2f\n",
				m.Name, m.Count, m.Mean, m.Percentiles[95])
		default:
			fmt.Fprintf(h.w, "  %-24s count=%-8d sum=%-10.2f\n", m.Name, m.Count, m.Sum)
		}
	}

	if len(s.Checks) > 0 {
		fmt.Fprintln(h.w, h.bold.Sprint("checks:"))
		for _, c := range s.Checks {
			icon := h.green.Sprint("✓")
			if c.Failed > 0 {
				icon = h.red.Sprint("✗")
			}
			fmt.Fprintf(h.w, "  %s %-24s %d passed, %d failed\n", icon, c.Name, c.Passed, c.Failed)
		}
	}

	if len(s.Thresholds) > 0 {
		fmt.Fprintln(h.w, h.bold.Sprint("thresholds:"))
		for _, t := range s.Thresholds {
			icon := h.green.Sprint("✓")
			if !t.Passed {
				icon = h.red.Sprint("✗")
			}
			fmt.Fprintf(h.w, "  %s %s\n", icon, t.String())
		}
	}
}

func (h *HumanSink) Close() error { return nil }
