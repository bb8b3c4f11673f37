package loader

import (
	"context"
	"fmt"
	"strings"
	"time"

	"craftdeck/internal/domain"
	"craftdeck/pkg/sdk"

	"github.com/pkg/errors"
)

type forgeBuild struct {
	Version  string    `json:"version"`
	Modified time.Time `json:"modified"`
}

// forgeLoader downloads installer jars. The installer has to run in the
// server directory before the server starts.
type forgeLoader struct {
	fetch    fetcher
	baseURL  string
	mavenURL string
}

func (l *forgeLoader) Versions(ctx context.Context) ([]sdk.ServerVersion, error) {
	var names []string
	if err := l.fetch.getJSON(ctx, l.baseURL+"/minecraft", &names); err != nil {
		return nil, err
	}
	sortNewestFirst(names)
	versions := make([]sdk.ServerVersion, len(names))
	for i, v := range names {
		versions[i] = sdk.ServerVersion{Version: v}
	}
	return versions, nil
}

func (l *forgeLoader) Builds(ctx context.Context, version string) ([]sdk.ServerBuild, error) {
	var list []forgeBuild
	if err := l.fetch.getJSON(ctx, l.baseURL+"/minecraft/"+version, &list); err != nil {
		if !errors.Is(err, errNotFound) {
			return nil, err
		}
	}
	if len(list) == 0 {
		return nil, errors.Wrap(domain.ErrServerVersionNotFound, version)
	}

	modified := make(map[string]time.Time, len(list))
	names := make([]string, 0, len(list))
	for _, b := range list {
		modified[b.Version] = b.Modified
		names = append(names, b.Version)
	}
	sortOldestFirst(names)

	builds := make([]sdk.ServerBuild, len(names))
	for i, name := range names {
		full := version + "-" + name
		builds[i] = sdk.ServerBuild{
			Build:           name,
			DownloadURL:     ptr(fmt.Sprintf("%s/%s/forge-%s-installer.jar", l.mavenURL, full, full)),
			IsRequiredBuild: true,
			IsLoadedInfo:    true,
		}
		if t := modified[name]; !t.IsZero() {
			builds[i].UpdatedDatetime = ptr(t)
		}
	}
	builds[len(builds)-1].Recommended = true
	return builds, nil
}

func (l *forgeLoader) Build(ctx context.Context, version, build string) (*sdk.ServerBuild, error) {
	builds, err := l.Builds(ctx, version)
	if err != nil {
		return nil, err
	}
	return findBuild(builds, version, build)
}

type neoForgeVersions struct {
	Versions []string `json:"versions"`
}

// neoForgeLoader maps loader versions back to game versions: 21.1.x is
// built for 1.21.1, 20.4.x for 1.20.4, and from 26 on the loader carries
// the game version in its first three parts.
type neoForgeLoader struct {
	fetch       fetcher
	versionsURL string
	mavenURL    string
}

func neoForgeGameVersion(loaderVersion string) (string, bool) {
	parts := strings.Split(loaderVersion, ".")
	if len(parts) < 2 || strings.Contains(loaderVersion, "-") {
		return "", false
	}
	if major, minor := parts[0], parts[1]; major == "20" || major == "21" {
		if minor == "0" {
			return "1." + major, true
		}
		return "1." + major + "." + minor, true
	}
	if len(parts) >= 4 {
		return strings.Join(parts[:3], "."), true
	}
	return "", false
}

func (l *neoForgeLoader) all(ctx context.Context) ([]string, error) {
	var nv neoForgeVersions
	err := l.fetch.getJSON(ctx, l.versionsURL, &nv)
	return nv.Versions, err
}

func (l *neoForgeLoader) Versions(ctx context.Context) ([]sdk.ServerVersion, error) {
	all, err := l.all(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	var names []string
	for _, v := range all {
		game, ok := neoForgeGameVersion(v)
		if !ok {
			continue
		}
		if counts[game] == 0 {
			names = append(names, game)
		}
		counts[game]++
	}
	sortNewestFirst(names)
	versions := make([]sdk.ServerVersion, len(names))
	for i, v := range names {
		versions[i] = sdk.ServerVersion{Version: v, BuildCount: ptr(counts[v])}
	}
	return versions, nil
}

func (l *neoForgeLoader) Builds(ctx context.Context, version string) ([]sdk.ServerBuild, error) {
	all, err := l.all(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, v := range all {
		if game, ok := neoForgeGameVersion(v); ok && game == version {
			names = append(names, v)
		}
	}
	if len(names) == 0 {
		return nil, errors.Wrap(domain.ErrServerVersionNotFound, version)
	}
	sortOldestFirst(names)

	builds := make([]sdk.ServerBuild, len(names))
	for i, name := range names {
		builds[i] = sdk.ServerBuild{
			Build:           name,
			DownloadURL:     ptr(fmt.Sprintf("%s/%s/neoforge-%s-installer.jar", l.mavenURL, name, name)),
			IsRequiredBuild: true,
			IsLoadedInfo:    true,
		}
	}
	builds[len(builds)-1].Recommended = true
	return builds, nil
}

func (l *neoForgeLoader) Build(ctx context.Context, version, build string) (*sdk.ServerBuild, error) {
	builds, err := l.Builds(ctx, version)
	if err != nil {
		return nil, err
	}
	return findBuild(builds, version, build)
}
