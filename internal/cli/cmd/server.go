package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"craftdeck/internal/cli/ui"
	"craftdeck/pkg/sdk"
	"craftdeck/pkg/sdk/events"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Manage servers",
}

var createName, createDir, createType, createCommand, createJar, createPreset string
var createHeap int

var serverCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a new server",
	Run: func(cmd *cobra.Command, args []string) {
		check("creating server", handleCreate(context.Background(), newCreateRequest(createName, createDir, createType, createCommand, createJar, createPreset, createHeap)))
	},
}

var serverListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all servers",
	Run: func(cmd *cobra.Command, args []string) {
		check("listing servers", handleList(context.Background()))
	},
}

var serverPresetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the java presets the backend knows",
	Run: func(cmd *cobra.Command, args []string) {
		check("listing java presets", handlePresets(context.Background()))
	},
}

var serverInfoCmd = &cobra.Command{
	Use:   "info [id]",
	Short: "Show a server's configuration",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		check("reading server", handleInfo(context.Background(), args[0]))
	},
}

// actionCmd builds the start/stop/restart/kill commands, which differ only
// in the call they make.
func actionCmd(use, short, action, done string, call func(context.Context, string) (bool, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			check(action, handleAction(context.Background(), args[0], done, call))
		},
	}
}

var serverSendCmd = &cobra.Command{
	Use:   "send [id] [line...]",
	Short: "Write a line to the server console",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		check("sending line", handleSend(context.Background(), args[0], strings.Join(args[1:], " ")))
	},
}

var deleteConfig bool

var serverDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a server",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		check("deleting server", handleDelete(context.Background(), args[0], deleteConfig))
	},
}

var eulaAccept, eulaDecline bool

var serverEulaCmd = &cobra.Command{
	Use:   "eula [id]",
	Short: "Show or change the server's EULA acceptance",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		check("updating eula", handleEula(context.Background(), args[0], eulaAccept, eulaDecline))
	},
}

var serverConsoleCmd = &cobra.Command{
	Use:     "console [id]",
	Aliases: []string{"logs"},
	Short:   "Attach to the server console",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ui.RunLogs(Client, args[0], Profile)
	},
}

func init() {
	serverCreateCmd.Flags().StringVar(&createName, "name", "", "Display name")
	serverCreateCmd.Flags().StringVar(&createDir, "dir", "", "Directory under the servers root")
	serverCreateCmd.Flags().StringVar(&createType, "type", "custom", "Server type label")
	serverCreateCmd.Flags().StringVar(&createCommand, "command", "", "Launch command, replaces the java launcher")
	serverCreateCmd.Flags().StringVar(&createJar, "jar", "server.jar", "Jar file started by the java launcher")
	serverCreateCmd.Flags().StringVar(&createPreset, "java", "", "Java preset, see 'server presets'")
	serverCreateCmd.Flags().IntVar(&createHeap, "heap", 0, "Maximum heap in MB")
	serverCreateCmd.MarkFlagRequired("dir")

	serverDeleteCmd.Flags().BoolVar(&deleteConfig, "delete-config", false, "Also remove the server's config file")
	serverEulaCmd.Flags().BoolVar(&eulaAccept, "accept", false, "Accept the EULA")
	serverEulaCmd.Flags().BoolVar(&eulaDecline, "decline", false, "Revoke EULA acceptance")

	serverCmd.AddCommand(
		serverCreateCmd, serverListCmd, serverInfoCmd, serverPresetsCmd,
		actionCmd("start", "Start a server", "starting server", "Start command sent.", func(ctx context.Context, id string) (bool, error) { return Client.StartServer(ctx, id) }),
		actionCmd("stop", "Stop a server", "stopping server", "Stop command sent.", func(ctx context.Context, id string) (bool, error) { return Client.StopServer(ctx, id) }),
		actionCmd("restart", "Restart a server", "restarting server", "Restart command sent.", func(ctx context.Context, id string) (bool, error) { return Client.RestartServer(ctx, id) }),
		actionCmd("kill", "Kill a server process", "killing server", "Server killed.", func(ctx context.Context, id string) (bool, error) { return Client.KillServer(ctx, id) }),
		serverSendCmd, serverDeleteCmd, serverEulaCmd, serverConsoleCmd,
	)
	RootCmd.AddCommand(serverCmd)
}

func newCreateRequest(name, dir, typ, command, jar, preset string, heap int) sdk.CreateServerRequest {
	req := sdk.CreateServerRequest{
		Name:      name,
		Directory: dir,
		Type:      typ,
		LaunchOption: sdk.LaunchOption{
			JarFile: jar,
		},
	}
	if heap > 0 {
		req.LaunchOption.MaxHeapMemory = &heap
	}
	if preset != "" {
		req.LaunchOption.JavaPreset = &preset
	}
	if command != "" {
		req.EnableLaunchCommand = true
		req.LaunchCommand = command
	}
	return req
}

func handleCreate(ctx context.Context, req sdk.CreateServerRequest) error {
	srv, err := Client.CreateServer(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Server %s created with id %s\n", srv.DisplayName(), srv.ID)
	return nil
}

func handleList(ctx context.Context) error {
	servers, err := Client.ListServers(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Servers:")
	for _, s := range servers {
		fmt.Fprintf(out, "- %s (%s) [%s] %s\n", s.DisplayName(), s.ID, s.State, s.Directory)
	}
	return nil
}

func handlePresets(ctx context.Context) error {
	presets, err := Client.ListJavaPresets(ctx)
	if err != nil {
		return err
	}
	if len(presets) == 0 {
		fmt.Fprintln(out, "No java presets installed.")
		return nil
	}
	fmt.Fprintln(out, "Java presets:")
	for _, p := range presets {
		fmt.Fprintf(out, "- %s\n", p)
	}
	return nil
}

func handleInfo(ctx context.Context, id string) error {
	srv, err := Client.GetServer(ctx, id)
	if err != nil {
		return err
	}
	cfg, err := Client.GetServerConfig(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n--- %s ---\n", srv.DisplayName())
	fmt.Fprintf(out, "ID:        %s\n", srv.ID)
	fmt.Fprintf(out, "State:     %s\n", srv.State)
	fmt.Fprintf(out, "Directory: %s\n", srv.Directory)
	fmt.Fprintf(out, "Type:      %s\n", cfg.Type)
	if cfg.EnableLaunchCommand {
		fmt.Fprintf(out, "Command:   %s\n", cfg.LaunchCommand)
	} else {
		fmt.Fprintf(out, "Jar:       %s\n", cfg.LaunchOption.JarFile)
	}
	fmt.Fprintf(out, "Created:   %s\n", formatTime(cfg.CreatedAt))
	fmt.Fprintf(out, "Launched:  %s\n", formatTime(cfg.LastLaunchedAt))
	fmt.Fprintf(out, "Backed up: %s\n", formatTime(cfg.LastBackupAt))
	return nil
}

func handleAction(ctx context.Context, id, done string, call func(context.Context, string) (bool, error)) error {
	ok, err := call(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("the backend refused the request")
	}
	fmt.Fprintln(out, done)
	return nil
}

func handleSend(ctx context.Context, id, line string) error {
	if _, err := Client.SendLine(ctx, id, line); err != nil {
		return err
	}
	fmt.Fprintln(out, "Line sent.")
	return nil
}

func handleDelete(ctx context.Context, id string, withConfig bool) error {
	srv, err := Client.GetServer(ctx, id)
	if err != nil {
		return err
	}
	if srv.State != events.StateStopped {
		return errors.Errorf("server %s is %s, stop it first", srv.DisplayName(), srv.State)
	}
	if _, err := Client.RemoveServer(ctx, id, withConfig); err != nil {
		return err
	}
	fmt.Fprintln(out, "Server deleted successfully.")
	return nil
}

func handleEula(ctx context.Context, id string, accept, decline bool) error {
	if accept && decline {
		return errors.New("--accept and --decline are exclusive")
	}
	if accept || decline {
		if err := Client.SetEula(ctx, id, accept); err != nil {
			return err
		}
	}
	ok, err := Client.GetEula(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "EULA accepted: %t\n", ok)
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
