package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moasq/datalink/internal/connect"
	"github.com/moasq/datalink/internal/integrations"
	"github.com/moasq/datalink/internal/terminal"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show providers and their connection status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listRun(cmd)
	},
}

var noBrowser bool

var connectCmd = &cobra.Command{
	Use:   "connect [provider]",
	Short: "Authorize a provider and load its items",
	Long:  "Requests an authorization URL from the backend, opens it in the browser, waits until you press Enter, then fetches credentials and loads the provider's items.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return connectRun(cmd, args)
	},
}

var itemsCmd = &cobra.Command{
	Use:   "items <provider>",
	Short: "Show a connected provider's items, loading them if needed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return itemsRun(cmd, args[0])
	},
}

var clearView bool

var loadCmd = &cobra.Command{
	Use:   "load <provider>",
	Short: "Print the provider's raw load response",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return loadRun(cmd, args[0])
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Load items for every connection that has none",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return syncRun(cmd)
	},
}

var forgetCmd = &cobra.Command{
	Use:   "forget <provider>",
	Short: "Remove the local connection for a provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return forgetRun(cmd, args[0])
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the backend is reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return pingRun(cmd)
	},
}

func init() {
	connectCmd.Flags().BoolVar(&noBrowser, "no-browser", false, "print the authorization URL instead of opening a browser")
	loadCmd.Flags().BoolVar(&clearView, "clear", false, "clear the screen instead of loading")
}

func listRun(cmd *cobra.Command) error {
	svc, err := loadService(cmd, nil)
	if err != nil {
		return err
	}
	terminal.Header("Integrations")
	terminal.Detail("Account", svc.Config().Account())
	terminal.Detail("Backend", svc.Config().BackendURL)
	terminal.Line("")
	for _, st := range svc.Statuses() {
		p, _ := svc.Resolve(string(st.Provider))
		status := terminal.Mark(false) + " Not connected"
		if st.Connected {
			status = terminal.Mark(true) + " Connected"
			if st.ItemsLoaded {
				status += fmt.Sprintf(", %d item(s)", st.ItemCount)
			} else {
				status += ", items not loaded"
			}
		}
		terminal.Line(fmt.Sprintf("  %-10s %s  %s", st.Name, status, p.Description))
	}
	terminal.Line("")
	return nil
}

func connectRun(cmd *cobra.Command, args []string) error {
	out := terminal.Output()
	opener := &connect.BrowserOpener{
		Out:      out,
		NoLaunch: noBrowser,
		AwaitClose: func(ctx context.Context) <-chan struct{} {
			return terminal.WaitForEnter(ctx, "Press Enter when you have finished authorizing in the browser...\n")
		},
	}
	svc, err := loadService(cmd, opener)
	if err != nil {
		return err
	}
	p, err := pickProvider(svc, args)
	if err != nil {
		return err
	}

	for _, st := range svc.Statuses() {
		if st.Provider == p.ID && st.Connected {
			terminal.Info(fmt.Sprintf("%s is already connected. Run `datalink forget %s` to connect again.", p.Name, p.ID))
		}
	}

	sess, err := svc.Connect(cmd.Context(), p, func(s connect.State) {
		switch s {
		case connect.Connecting:
			terminal.Info("Requesting authorization from the backend...")
		case connect.AwaitingCredentials:
			terminal.Info("Fetching credentials...")
		case connect.LoadingItems:
			terminal.Info(fmt.Sprintf("Loading %s items...", p.Name))
		}
	})
	if sess != nil {
		defer sess.Close()
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return reported(err)
	}

	select {
	case <-sess.Widget.Idle():
	case <-cmd.Context().Done():
		return cmd.Context().Err()
	}
	terminal.Success(sess.Widget.ButtonLabel())
	return sess.Widget.RenderItems(out)
}

func itemsRun(cmd *cobra.Command, name string) error {
	svc, err := loadService(cmd, nil)
	if err != nil {
		return err
	}
	p, err := svc.Resolve(name)
	if err != nil {
		return err
	}
	items, err := svc.Items(cmd.Context(), p)
	if err != nil {
		var loadErr *integrations.ItemLoadError
		if errors.As(err, &loadErr) {
			return reported(err)
		}
		return err
	}
	if len(items) == 0 {
		terminal.Info(fmt.Sprintf("%s has no items.", p.Name))
		return nil
	}
	for _, item := range items {
		terminal.Line(item.Label())
	}
	return nil
}

func loadRun(cmd *cobra.Command, name string) error {
	svc, err := loadService(cmd, nil)
	if err != nil {
		return err
	}
	p, err := svc.Resolve(name)
	if err != nil {
		return err
	}
	if clearView {
		if terminal.IsInteractive() {
			terminal.Line("\033[2J\033[H")
		}
		return nil
	}
	text, err := svc.LoadText(cmd.Context(), p)
	if err != nil {
		return reported(err)
	}
	terminal.Line(text)
	return nil
}

func syncRun(cmd *cobra.Command) error {
	svc, err := loadService(cmd, nil)
	if err != nil {
		return err
	}
	spinner := terminal.NewSpinner("Syncing connections...")
	spinner.Start()
	results, err := svc.Sync(cmd.Context())
	spinner.Stop()
	if err != nil {
		return err
	}
	if len(results) == 0 {
		terminal.Info("No connected providers.")
		return nil
	}
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			terminal.Warning(fmt.Sprintf("%s: items not loaded", r.Provider.Name))
			continue
		}
		terminal.Success(fmt.Sprintf("%s: %d item(s)", r.Provider.Name, r.ItemCount))
	}
	if failed > 0 {
		return reported(fmt.Errorf("%d of %d provider(s) failed to sync", failed, len(results)))
	}
	return nil
}

func forgetRun(cmd *cobra.Command, name string) error {
	svc, err := loadService(cmd, nil)
	if err != nil {
		return err
	}
	p, err := svc.Resolve(name)
	if err != nil {
		return err
	}
	if err := svc.Forget(p); err != nil {
		return err
	}
	terminal.Success(fmt.Sprintf("Removed the local %s connection for %s", p.Name, svc.Config().Account()))
	return nil
}

func pingRun(cmd *cobra.Command) error {
	svc, err := loadService(cmd, nil)
	if err != nil {
		return err
	}
	if err := svc.Ping(cmd.Context()); err != nil {
		return fmt.Errorf("backend unreachable at %s: %w", svc.Config().BackendURL, err)
	}
	terminal.Success(fmt.Sprintf("Backend reachable at %s", svc.Config().BackendURL))
	return nil
}
