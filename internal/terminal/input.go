package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"golang.org/x/term"
)

// IsInteractive reports whether stdin and stdout are both terminals.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// WaitForEnter returns a channel that is closed when the user presses Enter
// (or stdin ends). The reader goroutine stays blocked on stdin if ctx ends first.
func WaitForEnter(ctx context.Context, prompt string) <-chan struct{} {
	if prompt != "" {
		printf("%s", paint(prompt, Dim))
	}
	return waitForLine(ctx, os.Stdin)
}

func waitForLine(ctx context.Context, r io.Reader) <-chan struct{} {
	done := make(chan struct{})
	read := make(chan struct{})
	go func() {
		_, _ = bufio.NewReader(r).ReadString('\n')
		close(read)
	}()
	go func() {
		select {
		case <-read:
			close(done)
		case <-ctx.Done():
		}
	}()
	return done
}

// rawWrite writes directly to stdout in raw mode.
func rawWrite(s string) {
	os.Stdout.WriteString(s)
}

// readWithTimeout tries to read from stdin within the given duration.
// Returns bytes read and count. If timeout expires, returns 0.
func readWithTimeout(buf []byte, timeout time.Duration) int {
	fd := int(os.Stdin.Fd())

	syscall.SetNonblock(fd, true)
	defer syscall.SetNonblock(fd, false)

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			return n
		}
		if err != nil {
			return 0
		}
		time.Sleep(5 * time.Millisecond)
	}
	return 0
}

// PickerOption represents an option in the interactive picker.
type PickerOption struct {
	Label string
	Desc  string
}

// Pick shows an interactive picker with arrow key navigation.
// Returns the selected option's Label, or "" if cancelled or stdin is not a terminal.
func Pick(title string, options []PickerOption, currentLabel string) string {
	if len(options) == 0 {
		return ""
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return ""
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return ""
	}
	defer term.Restore(fd, oldState)

	rawWrite("\033[?25l")

	selected := 0
	for i, opt := range options {
		if opt.Label == currentLabel {
			selected = i
			break
		}
	}

	titleLines := 1
	if title != "" {
		rawWrite(fmt.Sprintf("\r\n  %s%s%s\r\n", Bold, title, Reset))
		titleLines = 2
	} else {
		rawWrite("\r\n")
	}

	drawOptions := func() {
		for i, opt := range options {
			rawWrite("\r\033[K")
			if i == selected {
				rawWrite(fmt.Sprintf("  %s%s▸%s %s%-12s%s %s%s%s\r\n", Bold, Cyan, Reset, Bold, opt.Label, Reset, Dim, opt.Desc, Reset))
			} else {
				rawWrite(fmt.Sprintf("    %-12s %s%s%s\r\n", opt.Label, Dim, opt.Desc, Reset))
			}
		}
		rawWrite("\r\033[K")
		rawWrite(fmt.Sprintf("  %s↑↓ navigate  Enter select  q cancel%s\r\n", Dim, Reset))
	}

	drawnLines := len(options) + 1

	moveUp := func(n int) {
		if n > 0 {
			rawWrite(fmt.Sprintf("\033[%dA", n))
		}
	}

	cleanup := func() {
		moveUp(titleLines)
		total := titleLines + drawnLines
		for i := 0; i < total; i++ {
			rawWrite("\r\033[K\r\n")
		}
		moveUp(total)
		rawWrite("\033[?25h")
	}

	drawOptions()
	moveUp(drawnLines)

	buf := make([]byte, 1)
	for {
		n, readErr := os.Stdin.Read(buf)
		if readErr != nil || n == 0 {
			break
		}

		if buf[0] == 0x1b {
			// A lone Esc cancels; arrow keys arrive as ESC [ A/B.
			extra := make([]byte, 7)
			en := readWithTimeout(extra, 50*time.Millisecond)
			if en == 0 {
				cleanup()
				return ""
			}
			if en >= 2 && extra[0] == '[' {
				switch extra[1] {
				case 'A':
					selected = (selected - 1 + len(options)) % len(options)
				case 'B':
					selected = (selected + 1) % len(options)
				}
				drawOptions()
				moveUp(drawnLines)
			}
			continue
		}

		switch buf[0] {
		case 13, 10:
			result := options[selected].Label
			cleanup()
			return result
		case 3, 'q':
			cleanup()
			return ""
		}
	}

	cleanup()
	return ""
}
