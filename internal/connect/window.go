package connect

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
)

// Window is an authorization window the widget cannot see into. All it can
// learn is whether the window has been closed.
type Window interface {
	Closed() bool
}

// Opener opens an authorization window at url. A nil Window counts as already closed.
type Opener interface {
	Open(ctx context.Context, url, title string) (Window, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, url, title string) (Window, error)

func (f OpenerFunc) Open(ctx context.Context, url, title string) (Window, error) {
	return f(ctx, url, title)
}

// SignalWindow reports closed once its channel is closed or receives.
type SignalWindow struct {
	done <-chan struct{}
}

// NewSignalWindow wraps done as a Window.
func NewSignalWindow(done <-chan struct{}) *SignalWindow {
	return &SignalWindow{done: done}
}

func (w *SignalWindow) Closed() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// BrowserOpener opens the authorization URL in the system browser. A terminal
// cannot observe the browser tab, so the user signals closure through AwaitClose
// (in the CLI: pressing Enter).
type BrowserOpener struct {
	// Out receives the URL so it can be opened by hand.
	Out io.Writer
	// Launch opens url; nil uses the platform's default browser command.
	Launch func(url string) error
	// NoLaunch only prints the URL.
	NoLaunch bool
	// AwaitClose returns a channel that is closed when the user is done with the window.
	AwaitClose func(ctx context.Context) <-chan struct{}
}

// Open prints and launches url, then returns a window closed by AwaitClose.
// A failed launch is not fatal: the URL has been printed.
func (b *BrowserOpener) Open(ctx context.Context, url, title string) (Window, error) {
	if b.AwaitClose == nil {
		return nil, fmt.Errorf("browser opener has no close signal")
	}
	if b.Out != nil {
		fmt.Fprintf(b.Out, "%s: %s\n", title, url)
	}
	if !b.NoLaunch {
		launch := b.Launch
		if launch == nil {
			launch = launchBrowser
		}
		if err := launch(url); err != nil && b.Out != nil {
			fmt.Fprintf(b.Out, "Could not open a browser (%v). Open the link above manually.\n", err)
		}
	}
	return NewSignalWindow(b.AwaitClose(ctx)), nil
}

func launchBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	_, err := startDetached(cmd)
	return err
}

// startDetached starts cmd and reaps it in the background. The channel
// receives the result of Wait.
func startDetached(cmd *exec.Cmd) (<-chan error, error) {
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	return done, nil
}
