package cmd

import (
	"context"
	"fmt"

	"craftdeck/pkg/sdk"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var serverTypesCmd = &cobra.Command{
	Use:   "types",
	Short: "List the server software the backend can install",
	Run: func(cmd *cobra.Command, args []string) {
		check("listing server types", handleServerTypes(context.Background()))
	},
}

var serverVersionsCmd = &cobra.Command{
	Use:   "versions [type]",
	Short: "List the versions of a server type",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		check("listing versions", handleServerVersions(context.Background(), args[0]))
	},
}

var serverBuildsCmd = &cobra.Command{
	Use:   "builds [type] [version]",
	Short: "List the builds of a version",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		check("listing builds", handleServerBuilds(context.Background(), args[0], args[1]))
	},
}

var serverInstallCmd = &cobra.Command{
	Use:   "install [id] [type] [version] [build]",
	Short: "Install server software, the recommended build unless one is named",
	Args:  cobra.RangeArgs(3, 4),
	Run: func(cmd *cobra.Command, args []string) {
		build := ""
		if len(args) == 4 {
			build = args[3]
		}
		check("installing", handleInstall(context.Background(), args[0], args[1], args[2], build))
	},
}

var serverRemoveBuildCmd = &cobra.Command{
	Use:   "remove-build [id]",
	Short: "Delete installer files left in the server directory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		check("removing build files", handleRemoveBuild(context.Background(), args[0]))
	},
}

var serverReloadCmd = &cobra.Command{
	Use:   "reload [id]",
	Short: "Reload a server's config file after editing it on disk",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		check("reloading config", handleAction(context.Background(), args[0], "Config reloaded.", Client.ReloadConfig))
	},
}

var serverImportCmd = &cobra.Command{
	Use:   "import [directory]",
	Short: "Register a directory that already holds a server config",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		check("importing server", handleImport(context.Background(), args[0]))
	},
}

var serverDefaultsCmd = &cobra.Command{
	Use:   "defaults",
	Short: "Show the defaults new servers are created with",
	Run: func(cmd *cobra.Command, args []string) {
		check("reading defaults", handleDefaults(context.Background()))
	},
}

func init() {
	serverCmd.AddCommand(serverTypesCmd, serverVersionsCmd, serverBuildsCmd, serverInstallCmd,
		serverRemoveBuildCmd, serverReloadCmd, serverImportCmd, serverDefaultsCmd)
}

func handleServerTypes(ctx context.Context) error {
	types, err := Client.ServerTypes(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Server types:")
	for _, t := range types {
		fmt.Fprintf(out, "- %s\n", t)
	}
	return nil
}

func handleServerVersions(ctx context.Context, serverType string) error {
	versions, err := Client.ServerVersions(ctx, serverType)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Versions of %s:\n", serverType)
	for _, v := range versions {
		if v.BuildCount != nil {
			fmt.Fprintf(out, "- %s (%d builds)\n", v.Version, *v.BuildCount)
		} else {
			fmt.Fprintf(out, "- %s\n", v.Version)
		}
	}
	return nil
}

func handleServerBuilds(ctx context.Context, serverType, version string) error {
	builds, err := Client.ServerBuilds(ctx, serverType, version)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Builds of %s %s:\n", serverType, version)
	for _, b := range builds {
		line := "- " + b.Build
		if b.UpdatedDatetime != nil {
			line += "  " + formatTime(b.UpdatedDatetime)
		}
		if b.Recommended {
			line += "  [recommended]"
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

// pickBuild is the recommended build, or the newest when none is.
func pickBuild(builds []sdk.ServerBuild) (string, error) {
	if len(builds) == 0 {
		return "", errors.New("no builds available")
	}
	for i := len(builds) - 1; i >= 0; i-- {
		if builds[i].Recommended {
			return builds[i].Build, nil
		}
	}
	return builds[len(builds)-1].Build, nil
}

func handleInstall(ctx context.Context, serverID, serverType, version, build string) error {
	if build == "" {
		builds, err := Client.ServerBuilds(ctx, serverType, version)
		if err != nil {
			return err
		}
		if build, err = pickBuild(builds); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "Installing %s %s build %s...\n", serverType, version, build)
	return track(ctx, func() (*sdk.FileOperationResult, error) {
		return Client.InstallServer(ctx, serverID, serverType, version, build)
	})
}

func handleRemoveBuild(ctx context.Context, serverID string) error {
	removed, err := Client.RemoveBuild(ctx, serverID)
	if err != nil {
		return err
	}
	if removed {
		fmt.Fprintln(out, "Installer files removed.")
	} else {
		fmt.Fprintln(out, "No installer files found.")
	}
	return nil
}

func handleImport(ctx context.Context, dir string) error {
	srv, err := Client.ImportServer(ctx, dir)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Server %s imported with id %s\n", srv.DisplayName(), srv.ID)
	return nil
}

func optionalNumber(n *int, unit string) string {
	if n == nil {
		return "-"
	}
	return fmt.Sprintf("%d%s", *n, unit)
}

func handleDefaults(ctx context.Context) error {
	d, err := Client.GlobalServerConfig(ctx)
	if err != nil {
		return err
	}
	lo := d.LaunchOption
	fmt.Fprintf(out, "Java preset:      %s\n", deref(lo.JavaPreset))
	fmt.Fprintf(out, "Java executable:  %s\n", deref(lo.JavaExecutable))
	fmt.Fprintf(out, "Java options:     %s\n", deref(lo.JavaOptions))
	fmt.Fprintf(out, "Server options:   %s\n", deref(lo.ServerOptions))
	fmt.Fprintf(out, "Max heap:         %s\n", optionalNumber(lo.MaxHeapMemory, "M"))
	fmt.Fprintf(out, "Min heap:         %s\n", optionalNumber(lo.MinHeapMemory, "M"))
	fmt.Fprintf(out, "Stop command:     %s\n", deref(d.StopCommand))
	fmt.Fprintf(out, "Shutdown timeout: %s\n", optionalNumber(d.ShutdownTimeout, "s"))
	return nil
}
