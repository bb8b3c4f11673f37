package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"craftdeck/internal/version"
	"craftdeck/pkg/sdk/events"

	"github.com/pkg/browser"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var authUser, authPassword string

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create the first admin account on a fresh backend",
	Run: func(cmd *cobra.Command, args []string) {
		check("running setup", handleSetup(context.Background(), authUser, authPassword, os.Stdin))
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and remember the session",
	Run: func(cmd *cobra.Command, args []string) {
		check("logging in", handleLogin(context.Background(), authUser, authPassword, os.Stdin))
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session",
	Run: func(cmd *cobra.Command, args []string) {
		check("logging out", handleLogout(context.Background()))
	},
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage dashboard accounts",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	Run: func(cmd *cobra.Command, args []string) {
		check("listing users", handleListUsers(context.Background()))
	},
}

var usersAddCmd = &cobra.Command{
	Use:   "add [username]",
	Short: "Add an account",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		check("adding user", handleAddUser(context.Background(), args[0], authPassword, os.Stdin))
	},
}

var usersRemoveCmd = &cobra.Command{
	Use:   "remove [userId]",
	Short: "Remove an account",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		check("removing user", handleRemoveUser(context.Background(), args[0]))
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the CLI and backend versions",
	Run: func(cmd *cobra.Command, args []string) {
		check("checking version", handleVersion(context.Background()))
	},
}

var openCmd = &cobra.Command{
	Use:   "open",
	Short: "Open the backend in a browser",
	Run: func(cmd *cobra.Command, args []string) {
		check("opening browser", browser.OpenURL(Client.BaseURL()))
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print the backend's event stream until interrupted",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		check("watching events", handleWatchEvents(ctx))
	},
}

func init() {
	for _, c := range []*cobra.Command{setupCmd, loginCmd} {
		c.Flags().StringVarP(&authUser, "username", "u", "", "Account name, defaults to the profile's")
		c.Flags().StringVarP(&authPassword, "password", "p", "", "Password, read from stdin when omitted")
	}
	usersAddCmd.Flags().StringVarP(&authPassword, "password", "p", "", "Password, read from stdin when omitted")

	usersCmd.AddCommand(usersListCmd, usersAddCmd, usersRemoveCmd)
	RootCmd.AddCommand(setupCmd, loginCmd, logoutCmd, usersCmd, openCmd, eventsCmd, versionCmd)
}

// credentials fills the blanks from the profile and from in.
func credentials(user, password string, in io.Reader) (string, string, error) {
	if user == "" {
		user = Profile.Username
	}
	if user == "" {
		return "", "", errors.New("no username given")
	}
	if password == "" {
		fmt.Fprint(out, "Password: ")
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && err != io.EOF {
			return "", "", err
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return "", "", errors.New("no password given")
	}
	return user, password, nil
}

func handleSetup(ctx context.Context, user, password string, in io.Reader) error {
	user, password, err := credentials(user, password, in)
	if err != nil {
		return err
	}
	if err := Client.Setup(ctx, user, password); err != nil {
		return err
	}
	if err := saveSession(); err != nil {
		return err
	}
	fmt.Fprintf(out, "Admin account %s created, you are logged in.\n", user)
	return nil
}

func handleLogin(ctx context.Context, user, password string, in io.Reader) error {
	user, password, err := credentials(user, password, in)
	if err != nil {
		return err
	}
	if err := Client.Login(ctx, user, password); err != nil {
		return err
	}
	if err := saveSession(); err != nil {
		return err
	}
	fmt.Fprintf(out, "Logged in as %s.\n", user)
	return nil
}

func handleLogout(ctx context.Context) error {
	if err := Client.Logout(ctx); err != nil {
		return err
	}
	if err := saveSession(); err != nil {
		return err
	}
	fmt.Fprintln(out, "Logged out.")
	return nil
}

func handleListUsers(ctx context.Context) error {
	users, err := Client.ListUsers(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Users:")
	for _, u := range users {
		role := "user"
		if u.Permission > 0 {
			role = "admin"
		}
		fmt.Fprintf(out, "- #%d %s [%s] last login %s\n", u.ID, u.Name, role, formatTime(u.LastLogin))
	}
	return nil
}

func handleAddUser(ctx context.Context, name, password string, in io.Reader) error {
	name, password, err := credentials(name, password, in)
	if err != nil {
		return err
	}
	if _, err := Client.AddUser(ctx, name, password); err != nil {
		return err
	}
	fmt.Fprintf(out, "User %s added.\n", name)
	return nil
}

func handleRemoveUser(ctx context.Context, arg string) error {
	id, err := strconv.Atoi(arg)
	if err != nil {
		return errors.Errorf("invalid user id %q", arg)
	}
	if _, err := Client.RemoveUser(ctx, id); err != nil {
		return err
	}
	fmt.Fprintln(out, "User removed.")
	return nil
}

func handleWatchEvents(ctx context.Context) error {
	ec, err := connectEvents(ctx)
	if err != nil {
		return err
	}
	defer ec.Close()

	ec.OnStateChange(func(ev *events.ServerChangeStateEvent) {
		fmt.Fprintf(out, "[state] %s %s -> %s\n", ev.ServerID, ev.OldState, ev.NewState)
	})
	ec.OnProcessRead(func(ev *events.ServerProcessReadEvent) {
		fmt.Fprintf(out, "[%s] %s", ev.ServerID, ev.Data)
	})
	ec.OnFileTaskStart(func(ev *events.FileTaskEvent) {
		fmt.Fprintf(out, "[task %d] %s started %s\n", ev.TaskID, ev.Type, ev.Src)
	})
	ec.OnFileTaskEnd(func(ev *events.FileTaskEvent) {
		fmt.Fprintf(out, "[task %d] %s %s\n", ev.TaskID, ev.Type, ev.Result)
	})
	ec.AddEventListener(events.KindClose, func(ev events.Event) {
		if ce, ok := ev.(*events.CloseEvent); ok && !ce.Intentional {
			fmt.Fprintln(out, "[connection lost, reconnecting]")
		}
	})

	<-ctx.Done()
	return nil
}

func handleVersion(ctx context.Context) error {
	fmt.Fprintf(out, "CLI:     %s\n", version.Current)
	backend, err := Client.BackendVersion(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Backend: %s\n", backend)
	if !version.Compatible(version.Current, backend) {
		newer := "backend"
		if version.Compare(version.Current, backend) > 0 {
			newer = "CLI"
		}
		fmt.Fprintf(out, "Warning: the %s is newer and the two may not work together.\n", newer)
	}
	return nil
}
