package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"craftdeck/internal/config"
	"craftdeck/internal/logging"
	"craftdeck/pkg/sdk"
	"craftdeck/pkg/sdk/events"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const sessionCookie = "token"

var (
	Client  *sdk.Client
	Profile config.Profile
	BaseURL string

	logLevel string
	log      = zerolog.Nop()

	out io.Writer = os.Stdout
)

var RootCmd = &cobra.Command{
	Use:   "craftdeck-cli",
	Short: "CLI for the craftdeck game server dashboard",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
	Run: func(cmd *cobra.Command, args []string) {
		RunDashboard()
	},
}

func setup(cmd *cobra.Command) error {
	path, err := config.ProfilePath()
	if err != nil {
		return err
	}
	p, err := config.LoadProfile(path)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("url") {
		p.URL = BaseURL
	}
	if cmd.Flags().Changed("log-level") {
		p.LogLevel = logLevel
	}
	Profile = p

	log = logging.Setup(p.LogLevel, isatty.IsTerminal(os.Stderr.Fd()))
	Client = sdk.NewClient(p.URL, sdk.WithLogger(log))
	restoreSession()
	return nil
}

func Execute() {
	RootCmd.PersistentFlags().StringVar(&BaseURL, "url", config.DefaultURL, "URL of the craftdeck backend")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "trace, debug, info, warn or error")

	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// restoreSession seeds the client with the token saved by the last login
// against the same backend.
func restoreSession() {
	path, err := config.SessionsPath()
	if err != nil {
		return
	}
	sessions, err := config.LoadSessions(path)
	if err != nil {
		log.Warn().Err(err).Msg("Could not read saved sessions")
		return
	}
	if token := sessions[Client.BaseURL()]; token != "" {
		Client.SetCookies([]*http.Cookie{{Name: sessionCookie, Value: token, Path: "/"}})
	}
}

// saveSession stores the client's current token. An empty token forgets
// the backend.
func saveSession() error {
	path, err := config.SessionsPath()
	if err != nil {
		return err
	}
	sessions, err := config.LoadSessions(path)
	if err != nil {
		return err
	}
	token := ""
	for _, c := range Client.Cookies() {
		if c.Name == sessionCookie {
			token = c.Value
		}
	}
	if token == "" {
		delete(sessions, Client.BaseURL())
	} else {
		sessions[Client.BaseURL()] = token
	}
	return config.SaveSessions(path, sessions)
}

// connectEvents opens the backend's event stream with the profile's
// reconnect delay.
func connectEvents(ctx context.Context) (*events.Client, error) {
	ec, err := Client.NewEventClient(events.WithReconnectDelay(Profile.ReconnectDelay))
	if err != nil {
		return nil, err
	}
	if err := ec.Connect(ctx); err != nil {
		return nil, err
	}
	return ec, nil
}

// newWaiter falls back to polling when the event stream is unavailable.
func newWaiter(ctx context.Context) (*sdk.TaskWaiter, func()) {
	policy := sdk.WaitPolicy{PollInterval: Profile.TaskPollInterval, Timeout: Profile.TaskTimeout}
	ec, err := connectEvents(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Event stream unavailable, polling task list")
		w := sdk.NewTaskWaiter(nil, Client.Files(), policy)
		return w, w.Close
	}
	w := sdk.NewTaskWaiter(ec, Client.Files(), policy)
	return w, func() {
		w.Close()
		ec.Close()
	}
}

// describe prefers the catalogue message for errors the backend reported
// with a known code.
func describe(err error) string {
	var apiErr *sdk.APIError
	if (errors.As(err, &apiErr) && apiErr.Code.Known()) || errors.Is(err, sdk.ErrNetwork) {
		return sdk.Message(err)
	}
	return err.Error()
}

func check(action string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error %s: %s\n", action, describe(err))
		os.Exit(1)
	}
}
