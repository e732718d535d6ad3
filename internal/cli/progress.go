package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

// Color codes for terminal output
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorCyan   = "\033[36m"
)

// Printer writes status lines, colouring them when the target is a terminal.
type Printer struct {
	Out   io.Writer
	Err   io.Writer
	Color bool
}

// NewPrinter returns a printer on stdout/stderr with colour detection.
func NewPrinter() *Printer {
	return &Printer{Out: os.Stdout, Err: os.Stderr, Color: isTerminal(os.Stderr)}
}

func (p *Printer) status(symbol, color, message string) {
	if p.Color {
		fmt.Fprintf(p.Err, "%s%s%s %s\n", color, symbol, ColorReset, message)
		return
	}
	fmt.Fprintf(p.Err, "%s %s\n", symbol, message)
}

// Success prints a success message
func (p *Printer) Success(format string, args ...any) {
	p.status("✓", ColorGreen, fmt.Sprintf(format, args...))
}

// Error prints an error message
func (p *Printer) Error(format string, args ...any) {
	p.status("✗", ColorRed, fmt.Sprintf(format, args...))
}

// Warning prints a warning message
func (p *Printer) Warning(format string, args ...any) {
	p.status("⚠", ColorYellow, fmt.Sprintf(format, args...))
}

// Info prints an info message
func (p *Printer) Info(format string, args ...any) {
	p.status("ℹ", ColorBlue, fmt.Sprintf(format, args...))
}

// JSON writes v as indented JSON to Out. A non-empty query is a gjson path
// evaluated against the encoded document; only the matched value is printed.
func (p *Printer) JSON(v any, query string) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	if query != "" {
		res := gjson.GetBytes(raw, query)
		if !res.Exists() {
			return fmt.Errorf("query %q matched nothing", query)
		}
		if res.Type == gjson.String {
			_, err = fmt.Fprintln(p.Out, res.String())
			return err
		}
		raw = []byte(res.Raw)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return fmt.Errorf("format output: %w", err)
	}
	buf.WriteByte('\n')
	_, err = p.Out.Write(buf.Bytes())
	return err
}

// Spinner represents a loading spinner
type Spinner struct {
	frames   []string
	current  int
	prefix   string
	mu       sync.Mutex
	writer   io.Writer
	active   bool
	colorize bool
	started  time.Time
	done     chan struct{}
}

// NewSpinner creates a spinner writing to w. Frames are only drawn when w is
// a terminal; otherwise only the final status line is printed.
func NewSpinner(w io.Writer, prefix string) *Spinner {
	return &Spinner{
		frames:   []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		prefix:   prefix,
		writer:   w,
		colorize: isTerminal(w),
		done:     make(chan struct{}),
	}
}

// Start starts the spinner
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return
	}
	s.active = true
	s.started = time.Now()
	animate := s.colorize
	s.mu.Unlock()

	if !animate {
		return
	}
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.mu.Lock()
				if !s.active {
					s.mu.Unlock()
					return
				}
				s.render()
				s.current = (s.current + 1) % len(s.frames)
				s.mu.Unlock()
			case <-s.done:
				return
			}
		}
	}()
}

// Stop stops the spinner and returns how long it ran.
func (s *Spinner) Stop() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return 0
	}
	s.active = false
	close(s.done)
	if s.colorize {
		fmt.Fprint(s.writer, "\r"+strings.Repeat(" ", 80)+"\r")
	}
	return time.Since(s.started)
}

// Success stops the spinner and shows a success message
func (s *Spinner) Success(message string) {
	elapsed := s.Stop()
	s.finish("✓", ColorGreen, message, elapsed)
}

// Error stops the spinner and shows an error message
func (s *Spinner) Error(message string) {
	elapsed := s.Stop()
	s.finish("✗", ColorRed, message, elapsed)
}

func (s *Spinner) finish(symbol, color, message string, elapsed time.Duration) {
	if s.colorize {
		symbol = color + symbol + ColorReset
	}
	fmt.Fprintf(s.writer, "%s %s (%s)\n", symbol, message, formatDuration(elapsed))
}

// render renders the spinner
func (s *Spinner) render() {
	frame := ColorCyan + s.frames[s.current] + ColorReset
	fmt.Fprintf(s.writer, "\r%s %s", frame, s.prefix)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fileInfo, err := f.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "< 1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
