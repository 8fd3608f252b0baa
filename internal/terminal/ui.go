package terminal

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// Colors for terminal output.
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Dim    = "\033[2m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Cyan   = "\033[36m"
)

var (
	outMu sync.Mutex
	out   io.Writer = os.Stdout
	color           = isColorTerminal(os.Stdout)
)

// SetOutput redirects all UI output to w and turns colors off unless w is a terminal.
// It returns a func restoring the previous writer.
func SetOutput(w io.Writer) (restore func()) {
	outMu.Lock()
	defer outMu.Unlock()
	prevOut, prevColor := out, color
	out = w
	f, ok := w.(*os.File)
	color = ok && isColorTerminal(f)
	return func() {
		outMu.Lock()
		defer outMu.Unlock()
		out, color = prevOut, prevColor
	}
}

// Output returns the writer UI output goes to.
func Output() io.Writer {
	outMu.Lock()
	defer outMu.Unlock()
	return out
}

func isColorTerminal(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// paint wraps s in the given codes when colors are on.
func paint(s string, codes ...string) string {
	if !color || len(codes) == 0 {
		return s
	}
	return strings.Join(codes, "") + s + Reset
}

func printf(format string, args ...any) {
	outMu.Lock()
	defer outMu.Unlock()
	fmt.Fprintf(out, format, args...)
}

// Spinner provides a terminal spinner for long-running operations.
type Spinner struct {
	mu      sync.Mutex
	message string
	running bool
	done    chan struct{}
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// NewSpinner creates a new spinner.
func NewSpinner(message string) *Spinner {
	return &Spinner{
		message: message,
		done:    make(chan struct{}),
	}
}

// Start begins the spinner animation. Without a color terminal it prints the
// message once instead.
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	msg := s.message
	s.mu.Unlock()

	if !color {
		printf("%s\n", msg)
		return
	}

	go func() {
		i := 0
		for {
			select {
			case <-s.done:
				return
			default:
				s.mu.Lock()
				msg := s.message
				s.mu.Unlock()

				frame := spinnerFrames[i%len(spinnerFrames)]
				printf("\r%s", paint(frame+" "+msg, Cyan))
				i++
				time.Sleep(80 * time.Millisecond)
			}
		}
	}()
}

// Update changes the spinner message.
func (s *Spinner) Update(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

// Stop stops the spinner and clears the line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.done)
	if color {
		printf("\r%s\r", strings.Repeat(" ", 80))
	}
}

// Success prints a green success message.
func Success(msg string) {
	printf("%s %s\n", paint("✓", Bold, Green), msg)
}

// Error prints a red error message.
func Error(msg string) {
	printf("%s %s\n", paint("✗", Bold, Red), msg)
}

// Info prints a blue info message.
func Info(msg string) {
	printf("%s %s\n", paint("i", Bold, Blue), msg)
}

// Warning prints a yellow warning message.
func Warning(msg string) {
	printf("%s %s\n", paint("!", Bold, Yellow), msg)
}

// Header prints a bold header.
func Header(msg string) {
	printf("\n%s\n", paint(msg, Bold))
}

// Detail prints an indented detail line.
func Detail(label, value string) {
	printf("  %s %s\n", paint(label+":", Dim), value)
}

// Line prints msg as-is.
func Line(msg string) {
	printf("%s\n", msg)
}

// Banner prints the name box with the given version.
func Banner(version string) {
	printf("\n")
	printf("  %s\n", paint("╭─────────────────────────────────╮", Dim))
	printf("  %s  datalink %-22s%s\n", paint("│", Dim), "v"+version, paint("│", Dim))
	printf("  %s  Connect data sources          %s\n", paint("│", Dim), paint("│", Dim))
	printf("  %s\n", paint("╰─────────────────────────────────╯", Dim))
	printf("\n")
}

// Mark renders a yes/no check mark.
func Mark(ok bool) string {
	if ok {
		return paint("✓", Green)
	}
	return paint("✗", Red)
}
