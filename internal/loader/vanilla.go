package loader

import (
	"context"
	"time"

	"craftdeck/internal/domain"
	"craftdeck/pkg/sdk"

	"github.com/pkg/errors"
)

type vanillaManifest struct {
	Versions []struct {
		ID          string    `json:"id"`
		Type        string    `json:"type"`
		URL         string    `json:"url"`
		ReleaseTime time.Time `json:"releaseTime"`
	} `json:"versions"`
}

type vanillaDetails struct {
	Downloads struct {
		Server *struct {
			URL string `json:"url"`
		} `json:"server"`
	} `json:"downloads"`
	JavaVersion *struct {
		MajorVersion int `json:"majorVersion"`
	} `json:"javaVersion"`
}

// vanillaLoader serves release versions from the launcher manifest. Each
// version has exactly one build, named after the version.
type vanillaLoader struct {
	fetch       fetcher
	manifestURL string
}

func (l *vanillaLoader) manifest(ctx context.Context) (*vanillaManifest, error) {
	var m vanillaManifest
	if err := l.fetch.getJSON(ctx, l.manifestURL, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (l *vanillaLoader) Versions(ctx context.Context) ([]sdk.ServerVersion, error) {
	m, err := l.manifest(ctx)
	if err != nil {
		return nil, err
	}
	var versions []sdk.ServerVersion
	for _, v := range m.Versions {
		if v.Type == "release" {
			versions = append(versions, sdk.ServerVersion{Version: v.ID, BuildCount: ptr(1)})
		}
	}
	return versions, nil
}

func (l *vanillaLoader) Builds(ctx context.Context, version string) ([]sdk.ServerBuild, error) {
	m, err := l.manifest(ctx)
	if err != nil {
		return nil, err
	}
	for _, v := range m.Versions {
		if v.ID != version || v.Type != "release" {
			continue
		}
		var d vanillaDetails
		if err := l.fetch.getJSON(ctx, v.URL, &d); err != nil {
			return nil, err
		}
		b := sdk.ServerBuild{
			Build:           v.ID,
			UpdatedDatetime: ptr(v.ReleaseTime),
			Recommended:     true,
			IsLoadedInfo:    true,
		}
		if d.Downloads.Server != nil {
			b.DownloadURL = ptr(d.Downloads.Server.URL)
		}
		if d.JavaVersion != nil {
			b.JavaMajorVersion = ptr(d.JavaVersion.MajorVersion)
		}
		return []sdk.ServerBuild{b}, nil
	}
	return nil, errors.Wrap(domain.ErrServerVersionNotFound, version)
}

func (l *vanillaLoader) Build(ctx context.Context, version, build string) (*sdk.ServerBuild, error) {
	builds, err := l.Builds(ctx, version)
	if err != nil {
		return nil, err
	}
	return findBuild(builds, version, build)
}
