package commands

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/moasq/datalink/internal/config"
	"github.com/moasq/datalink/internal/connect"
	"github.com/moasq/datalink/internal/integrations"
	"github.com/moasq/datalink/internal/logging"
	"github.com/moasq/datalink/internal/service"
	"github.com/moasq/datalink/internal/terminal"
)

// flags holds the global flag values.
var flags struct {
	configPath string
	backend    string
	user       string
	org        string
	logLevel   string
}

// loadConfig reads the config and applies the global flags on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	pf := cmd.Flags()
	if pf.Changed("backend") {
		cfg.BackendURL = flags.backend
	}
	if pf.Changed("user") {
		cfg.UserID = flags.user
	}
	if pf.Changed("org") {
		cfg.OrgID = flags.org
	}
	if pf.Changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}
	return cfg, nil
}

// setupLogging installs the slog default on stderr so stdout stays clean for
// command output and the MCP protocol.
func setupLogging(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logging.Setup(os.Stderr, level, cfg.LogFormat)
	return nil
}

// loadService builds the service for CLI use: alerts go to the terminal and
// authorization windows open in the browser.
func loadService(cmd *cobra.Command, opener connect.Opener) (*service.Service, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return service.NewService(cfg, service.ServiceOpts{
		Notifier: terminalNotifier,
		Opener:   opener,
		Logger:   slog.Default(),
	})
}

var terminalNotifier = connect.NotifierFunc(func(msg string) {
	terminal.Error(msg)
})

// pickProvider resolves args[0], or asks interactively when no provider was given.
func pickProvider(svc *service.Service, args []string) (integrations.Provider, error) {
	if len(args) > 0 {
		return svc.Resolve(args[0])
	}
	if !terminal.IsInteractive() {
		return integrations.Provider{}, errors.New("provider is required (notion, airtable or hubspot)")
	}
	var options []terminal.PickerOption
	for _, p := range svc.Providers() {
		options = append(options, terminal.PickerOption{Label: p.Name, Desc: p.Description})
	}
	picked := terminal.Pick("Connect which provider?", options, "")
	if picked == "" {
		return integrations.Provider{}, errors.New("no provider selected")
	}
	return svc.Resolve(picked)
}

// reportedError wraps an error whose message the user has already seen as an alert.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

func reported(err error) error {
	if err == nil {
		return nil
	}
	return &reportedError{err: err}
}

// IsReported reports whether err was already shown to the user.
func IsReported(err error) bool {
	var r *reportedError
	return errors.As(err, &r)
}
