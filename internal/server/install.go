package server

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"craftdeck/internal/domain"
	"craftdeck/internal/tasks"
	"craftdeck/pkg/sdk"
)

const (
	serverJarName    = "server.jar"
	installerJarName = "installer.jar"
	installerLogName = "installer.jar.log"
	userJvmArgsName  = "user_jvm_args.txt"
)

// BuildSource finds server builds and downloads their files.
type BuildSource interface {
	Build(ctx context.Context, serverType, version, build string) (*sdk.ServerBuild, error)
	Download(ctx context.Context, url, dest string, report func(float64)) error
}

// Install resolves the build and returns the work that puts it into the
// server's directory. Plain builds become server.jar; builds that need an
// installer are downloaded as installer.jar and run with --installServer,
// after which the server launches through the args file it produced.
func (m *Manager) Install(ctx context.Context, serverID, serverType, version, build string) (tasks.Work, error) {
	srv, err := m.GetServer(serverID)
	if err != nil {
		return nil, err
	}
	if m.Builds == nil {
		return nil, fmt.Errorf("%s: %w", serverType, domain.ErrNoServerType)
	}
	b, err := m.Builds.Build(ctx, serverType, version, build)
	if err != nil {
		return nil, err
	}
	if b.DownloadURL == nil || *b.DownloadURL == "" {
		return nil, fmt.Errorf("%s %s build %s: %w", serverType, version, build, domain.ErrDownloadUnavailable)
	}
	url := *b.DownloadURL
	dir := srv.Directory

	if !b.IsRequiredBuild {
		return func(ctx context.Context, report func(float64)) error {
			if err := m.Builds.Download(ctx, url, filepath.Join(dir, serverJarName), report); err != nil {
				return err
			}
			return m.useJar(serverID, serverType, serverJarName)
		}, nil
	}

	return func(ctx context.Context, report func(float64)) error {
		half := func(p float64) { report(p / 2) }
		if err := m.Builds.Download(ctx, url, filepath.Join(dir, installerJarName), half); err != nil {
			return err
		}
		report(50)
		if err := m.runInstaller(ctx, serverID); err != nil {
			return err
		}
		report(95)
		return m.useInstalled(serverID, serverType)
	}, nil
}

// useJar points the java launcher at jar.
func (m *Manager) useJar(serverID, serverType, jar string) error {
	srv, err := m.GetServer(serverID)
	if err != nil {
		return err
	}
	c, err := readConfigFile(srv.Directory)
	if err != nil {
		return err
	}
	c.Type = serverType
	c.LaunchOption.JarFile = jar
	c.EnableLaunchCommand = false
	if err := writeConfigFile(srv.Directory, c); err != nil {
		return err
	}
	return m.apply(srv, c)
}

func (m *Manager) runInstaller(ctx context.Context, serverID string) error {
	srv, err := m.GetServer(serverID)
	if err != nil {
		return err
	}
	c, err := readConfigFile(srv.Directory)
	if err != nil {
		return err
	}
	args, err := c.LaunchOption.javaArgs(m.Java)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, args[0], "-jar", installerJarName, "--installServer")
	cmd.Dir = srv.Directory
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("installer failed: %v: %s: %w", err, lastLine(output.String()), domain.ErrServerLaunch)
	}
	return nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// argsFileName is the file modern installers write next to the libraries.
func argsFileName() string {
	if runtime.GOOS == "windows" {
		return "win_args.txt"
	}
	return "unix_args.txt"
}

// findInstalled locates what the installer produced: an args file under
// libraries/, or for older installers a server jar in the directory.
func findInstalled(dir string) (argsFile, jar string, err error) {
	want := argsFileName()
	walkErr := filepath.WalkDir(filepath.Join(dir, "libraries"), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && d.Name() == want {
			argsFile = p
			return fs.SkipAll
		}
		return nil
	})
	if walkErr != nil {
		return "", "", walkErr
	}
	if argsFile != "" {
		rel, err := filepath.Rel(dir, argsFile)
		return filepath.ToSlash(rel), "", err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", "", err
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".jar") || name == installerJarName || strings.HasSuffix(name, "-installer.jar") {
			continue
		}
		if strings.HasPrefix(name, "forge-") || strings.HasPrefix(name, "neoforge-") {
			return "", name, nil
		}
	}
	return "", "", fmt.Errorf("installer left nothing to launch: %w", domain.ErrServerLaunch)
}

// useInstalled switches the server to what the installer produced.
func (m *Manager) useInstalled(serverID, serverType string) error {
	srv, err := m.GetServer(serverID)
	if err != nil {
		return err
	}
	argsFile, jar, err := findInstalled(srv.Directory)
	if err != nil {
		return err
	}
	if jar != "" {
		return m.useJar(serverID, serverType, jar)
	}

	c, err := readConfigFile(srv.Directory)
	if err != nil {
		return err
	}
	args, err := c.LaunchOption.javaArgs(m.Java)
	if err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(srv.Directory, userJvmArgsName)); err == nil {
		args = append(args, "@"+userJvmArgsName)
	}
	args = append(args, "@"+argsFile, "nogui")
	if c.LaunchOption.ServerOptions != "" {
		args = append(args, c.LaunchOption.ServerOptions)
	}
	c.Type = serverType
	c.EnableLaunchCommand = true
	c.LaunchCommand = strings.Join(args, " ")
	if err := writeConfigFile(srv.Directory, c); err != nil {
		return err
	}
	return m.apply(srv, c)
}

// RemoveBuild deletes the installer files an install left behind and
// reports whether there were any.
func (m *Manager) RemoveBuild(serverID string) (bool, error) {
	srv, err := m.GetServer(serverID)
	if err != nil {
		return false, err
	}
	removed := false
	for _, name := range []string{installerJarName, installerLogName} {
		err := os.Remove(filepath.Join(srv.Directory, name))
		switch {
		case err == nil:
			removed = true
		case !os.IsNotExist(err):
			return removed, err
		}
	}
	return removed, nil
}
