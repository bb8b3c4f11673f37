package jvm

import (
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"craftdeck/internal/domain"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	versionRe = regexp.MustCompile(`version\s+"([^"]+)"`)
	digitsRe  = regexp.MustCompile(`\d+`)
)

// Presets resolves named Java runtimes installed under RuntimesPath. The
// preset "java17" (or "java-17", or "17") names RuntimesPath/java-17.
type Presets struct {
	RuntimesPath string
}

func NewPresets(runtimesPath string) *Presets {
	return &Presets{RuntimesPath: runtimesPath}
}

func javaBinName() string {
	if runtime.GOOS == "windows" {
		return "java.exe"
	}
	return "java"
}

// presetVersion extracts the major version a preset asks for.
func presetVersion(name string) (int, bool) {
	n := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), "java")
	n = strings.TrimPrefix(n, "-")
	v, err := strconv.Atoi(n)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// Resolve returns the absolute path of the java binary for a preset.
func (p *Presets) Resolve(name string) (string, error) {
	version, ok := presetVersion(name)
	if !ok || p.RuntimesPath == "" {
		return "", errors.Wrap(domain.ErrUnknownJavaPreset, name)
	}

	installDir := filepath.Join(p.RuntimesPath, "java-"+strconv.Itoa(version))
	if fi, err := os.Stat(installDir); err != nil || !fi.IsDir() {
		return "", errors.Wrap(domain.ErrUnknownJavaPreset, name)
	}

	found, err := findJavaBin(installDir, javaBinName())
	if err != nil {
		log.Warn().Err(err).Str("preset", name).Msg("Java runtime directory has no binary")
		return "", errors.Wrap(domain.ErrUnknownJavaPreset, name)
	}
	if major, ok := javaVersion(found); !ok || major < version {
		log.Warn().Str("preset", name).Int("found", major).Msg("Java runtime version does not match preset")
		return "", errors.Wrap(domain.ErrUnknownJavaPreset, name)
	}

	abs, err := filepath.Abs(found)
	if err != nil {
		return "", errors.Wrap(err, "could not get absolute path")
	}
	return abs, nil
}

// List returns the installed presets, ordered by version.
func (p *Presets) List() ([]string, error) {
	if p.RuntimesPath == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(p.RuntimesPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var versions []int
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "java-") {
			continue
		}
		if v, ok := presetVersion(e.Name()); ok {
			versions = append(versions, v)
		}
	}
	sort.Ints(versions)

	presets := make([]string, 0, len(versions))
	for _, v := range versions {
		presets = append(presets, "java"+strconv.Itoa(v))
	}
	return presets, nil
}

func findJavaBin(root, binName string) (string, error) {
	var foundPath string
	walkErr := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Name() == binName && !info.IsDir() {
			if info.Mode()&0111 != 0 || runtime.GOOS == "windows" {
				foundPath = path
				return io.EOF
			}
		}
		return nil
	})

	if walkErr != nil && walkErr != io.EOF {
		return "", errors.Wrapf(walkErr, "error walking %s", root)
	}
	if foundPath == "" {
		return "", errors.Errorf("binary %s not found in %s", binName, root)
	}
	return foundPath, nil
}

// javaVersion runs `java -version` and returns the major version it reports.
func javaVersion(javaPath string) (int, bool) {
	out, err := exec.Command(javaPath, "-version").CombinedOutput()
	if err != nil {
		return 0, false
	}
	return parseMajor(string(out))
}

// parseMajor reads the major version from `java -version` output. Both the
// legacy "1.8.0_292" and the modern "17.0.2" schemes are understood.
func parseMajor(out string) (int, bool) {
	m := versionRe.FindStringSubmatch(out)
	if len(m) < 2 {
		return 0, false
	}
	parts := strings.Split(m[1], ".")
	part := parts[0]
	if part == "1" && len(parts) > 1 {
		part = parts[1]
	}
	num := digitsRe.FindString(part)
	if num == "" {
		return 0, false
	}
	major, err := strconv.Atoi(num)
	return major, err == nil
}
