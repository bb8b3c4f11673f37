package loader

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"craftdeck/internal/domain"
	"craftdeck/pkg/sdk"

	"github.com/pkg/errors"
)

type paperProject struct {
	Versions []string `json:"versions"`
}

type paperBuilds struct {
	Builds []struct {
		Build     int       `json:"build"`
		Time      time.Time `json:"time"`
		Channel   string    `json:"channel"`
		Downloads struct {
			Application struct {
				Name string `json:"name"`
			} `json:"application"`
		} `json:"downloads"`
	} `json:"builds"`
}

type paperLoader struct {
	fetch   fetcher
	baseURL string
}

func (l *paperLoader) Versions(ctx context.Context) ([]sdk.ServerVersion, error) {
	var p paperProject
	if err := l.fetch.getJSON(ctx, l.baseURL, &p); err != nil {
		return nil, err
	}
	var names []string
	for _, v := range p.Versions {
		// pre-releases and release candidates
		if !strings.Contains(v, "-") {
			names = append(names, v)
		}
	}
	sortNewestFirst(names)
	versions := make([]sdk.ServerVersion, len(names))
	for i, v := range names {
		versions[i] = sdk.ServerVersion{Version: v}
	}
	return versions, nil
}

func (l *paperLoader) Builds(ctx context.Context, version string) ([]sdk.ServerBuild, error) {
	var pb paperBuilds
	url := fmt.Sprintf("%s/versions/%s/builds", l.baseURL, version)
	if err := l.fetch.getJSON(ctx, url, &pb); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, errors.Wrap(domain.ErrServerVersionNotFound, version)
		}
		return nil, err
	}

	builds := make([]sdk.ServerBuild, 0, len(pb.Builds))
	recommended := -1
	for i, b := range pb.Builds {
		id := strconv.Itoa(b.Build)
		download := fmt.Sprintf("%s/versions/%s/builds/%s/downloads/%s", l.baseURL, version, id, b.Downloads.Application.Name)
		builds = append(builds, sdk.ServerBuild{
			Build:           id,
			DownloadURL:     ptr(download),
			UpdatedDatetime: ptr(b.Time),
			IsLoadedInfo:    true,
		})
		if b.Channel == "default" {
			recommended = i
		}
	}
	if recommended >= 0 {
		builds[recommended].Recommended = true
	}
	return builds, nil
}

func (l *paperLoader) Build(ctx context.Context, version, build string) (*sdk.ServerBuild, error) {
	builds, err := l.Builds(ctx, version)
	if err != nil {
		return nil, err
	}
	return findBuild(builds, version, build)
}
