package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"craftdeck/internal/domain"
	"craftdeck/internal/storage"
	"craftdeck/pkg/sdk"

	"github.com/rs/zerolog"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewGormStore(filepath.Join(dir, "test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewGormStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewManager(filepath.Join(dir, "servers"), store)
}

func shellServer(name string) sdk.CreateServerRequest {
	return sdk.CreateServerRequest{
		Name:                name,
		EnableLaunchCommand: true,
		LaunchCommand:       "cat",
	}
}

func TestCreateServerWritesConfig(t *testing.T) {
	m := newTestManager(t)

	srv, err := m.CreateServer("s1", shellServer("My Server!"))
	if err != nil {
		t.Fatalf("CreateServer failed: %v", err)
	}
	if srv.Directory != filepath.Join(m.ServersPath, "My_Server") {
		t.Errorf("Expected sanitized directory, got %s", srv.Directory)
	}
	if srv.StopCommand != "stop" || srv.ShutdownTimeout != 30 || srv.Type != "vanilla" {
		t.Errorf("Expected defaults, got %+v", srv)
	}
	if _, err := os.Stat(filepath.Join(srv.Directory, "craftdeck.yaml")); err != nil {
		t.Errorf("Expected config file, got %v", err)
	}

	cfg, err := m.Config("s1")
	if err != nil {
		t.Fatalf("Config failed: %v", err)
	}
	if cfg.Name != "My Server!" || cfg.LaunchCommand != "cat" || *cfg.ShutdownTimeout != 30 {
		t.Errorf("Unexpected config: %+v", cfg)
	}

	if _, err := m.CreateServer("s1", shellServer("again")); !errors.Is(err, domain.ErrServerExists) {
		t.Errorf("Expected ErrServerExists, got %v", err)
	}
	req := shellServer("other")
	req.Directory = "My_Server"
	if _, err := m.CreateServer("s2", req); !errors.Is(err, domain.ErrPathExists) {
		t.Errorf("Expected ErrPathExists for a taken directory, got %v", err)
	}
}

type fakeJava map[string]string

func (f fakeJava) Resolve(preset string) (string, error) {
	if bin, ok := f[preset]; ok {
		return bin, nil
	}
	return "", fmt.Errorf("%s: %w", preset, domain.ErrUnknownJavaPreset)
}

func TestLaunchCommandFromOptions(t *testing.T) {
	heap := 2048
	opts := "-XX:+UseG1GC"
	c := configFile{LaunchOption: fromLaunchOption(sdk.LaunchOption{
		JarFile:       "server.jar",
		MaxHeapMemory: &heap,
		JavaOptions:   &opts,
	})}

	cmd, err := c.command(nil)
	if err != nil {
		t.Fatalf("command failed: %v", err)
	}
	if cmd != "java -Xmx2048M -XX:+UseG1GC -jar server.jar" {
		t.Errorf("Unexpected command %q", cmd)
	}

	c.LaunchOption.JavaPreset = "java17"
	if _, err := c.command(nil); !errors.Is(err, domain.ErrUnknownJavaPreset) {
		t.Errorf("Expected ErrUnknownJavaPreset, got %v", err)
	}

	cmd, err = c.command(fakeJava{"java17": "/opt/java-17/bin/java"})
	if err != nil {
		t.Fatalf("command with preset failed: %v", err)
	}
	if cmd != "/opt/java-17/bin/java -Xmx2048M -XX:+UseG1GC -jar server.jar" {
		t.Errorf("Unexpected preset command %q", cmd)
	}

	c.LaunchOption.JavaPreset = "java8"
	if _, err := c.command(fakeJava{}); !errors.Is(err, domain.ErrUnknownJavaPreset) {
		t.Errorf("Expected ErrUnknownJavaPreset for a missing preset, got %v", err)
	}

	if _, err := (configFile{}).command(nil); !errors.Is(err, domain.ErrServerLaunch) {
		t.Errorf("Expected ErrServerLaunch without a jar, got %v", err)
	}
}

func TestUpdateConfigAndDelete(t *testing.T) {
	m := newTestManager(t)
	srv, err := m.CreateServer("s1", shellServer("one"))
	if err != nil {
		t.Fatalf("CreateServer failed: %v", err)
	}

	cfg, _ := m.Config("s1")
	cfg.Name = "renamed"
	cfg.LaunchCommand = "sh run.sh"
	if err := m.UpdateConfig("s1", *cfg); err != nil {
		t.Fatalf("UpdateConfig failed: %v", err)
	}
	updated, _ := m.GetServer("s1")
	if updated.Name != "renamed" || updated.LaunchCommand != "sh run.sh" {
		t.Errorf("Expected updated record, got %+v", updated)
	}

	if err := m.DeleteServer("s1", true); err != nil {
		t.Fatalf("DeleteServer failed: %v", err)
	}
	if _, err := m.GetServer("s1"); !errors.Is(err, domain.ErrServerNotFound) {
		t.Errorf("Expected ErrServerNotFound, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(srv.Directory, "craftdeck.yaml")); !os.IsNotExist(err) {
		t.Errorf("Expected config file to be removed, got %v", err)
	}
	if _, err := os.Stat(srv.Directory); err != nil {
		t.Errorf("Expected server files to stay, got %v", err)
	}
}

func TestEula(t *testing.T) {
	m := newTestManager(t)
	srv, _ := m.CreateServer("s1", shellServer("one"))

	accepted, err := m.Eula("s1")
	if err != nil || accepted {
		t.Fatalf("Expected eula not accepted, got %v, %v", accepted, err)
	}

	os.WriteFile(filepath.Join(srv.Directory, "eula.txt"), []byte("#notice\nfoo=bar\neula=false\n"), 0644)
	if err := m.SetEula("s1", true); err != nil {
		t.Fatalf("SetEula failed: %v", err)
	}
	accepted, _ = m.Eula("s1")
	if !accepted {
		t.Error("Expected eula accepted")
	}

	data, _ := os.ReadFile(filepath.Join(srv.Directory, "eula.txt"))
	if !strings.Contains(string(data), "foo=bar\neula=true\n") {
		t.Errorf("Expected other keys kept in order, got %q", data)
	}
}
