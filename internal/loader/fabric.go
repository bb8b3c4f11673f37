package loader

import (
	"context"
	"fmt"

	"craftdeck/internal/domain"
	"craftdeck/pkg/sdk"

	"github.com/pkg/errors"
)

type fabricVersion struct {
	Version string `json:"version"`
	Stable  bool   `json:"stable"`
}

// fabricLoader treats loader versions as builds of a game version. The
// download is the server launcher for the game, loader and newest stable
// installer.
type fabricLoader struct {
	fetch   fetcher
	baseURL string
}

func (l *fabricLoader) games(ctx context.Context) ([]fabricVersion, error) {
	var games []fabricVersion
	err := l.fetch.getJSON(ctx, l.baseURL+"/game", &games)
	return games, err
}

func (l *fabricLoader) Versions(ctx context.Context) ([]sdk.ServerVersion, error) {
	games, err := l.games(ctx)
	if err != nil {
		return nil, err
	}
	var versions []sdk.ServerVersion
	for _, g := range games {
		if g.Stable {
			versions = append(versions, sdk.ServerVersion{Version: g.Version})
		}
	}
	return versions, nil
}

func (l *fabricLoader) Builds(ctx context.Context, version string) ([]sdk.ServerBuild, error) {
	games, err := l.games(ctx)
	if err != nil {
		return nil, err
	}
	found := false
	for _, g := range games {
		if g.Version == version {
			found = true
			break
		}
	}
	if !found {
		return nil, errors.Wrap(domain.ErrServerVersionNotFound, version)
	}

	var loaders []fabricVersion
	if err := l.fetch.getJSON(ctx, l.baseURL+"/loader", &loaders); err != nil {
		return nil, err
	}
	// upstream lists newest first
	builds := make([]sdk.ServerBuild, 0, len(loaders))
	recommended := -1
	for i := len(loaders) - 1; i >= 0; i-- {
		builds = append(builds, sdk.ServerBuild{Build: loaders[i].Version})
		if loaders[i].Stable {
			recommended = len(builds) - 1
		}
	}
	if recommended >= 0 {
		builds[recommended].Recommended = true
	}
	return builds, nil
}

func (l *fabricLoader) Build(ctx context.Context, version, build string) (*sdk.ServerBuild, error) {
	builds, err := l.Builds(ctx, version)
	if err != nil {
		return nil, err
	}
	b, err := findBuild(builds, version, build)
	if err != nil {
		return nil, err
	}

	var installers []fabricVersion
	if err := l.fetch.getJSON(ctx, l.baseURL+"/installer", &installers); err != nil {
		return nil, err
	}
	installer := ""
	for _, i := range installers {
		if i.Stable {
			installer = i.Version
			break
		}
	}
	if installer == "" {
		return nil, errors.Wrap(domain.ErrDownloadUnavailable, "no stable fabric installer")
	}
	b.DownloadURL = ptr(fmt.Sprintf("%s/loader/%s/%s/%s/server/jar", l.baseURL, version, build, installer))
	b.IsLoadedInfo = true
	return b, nil
}
