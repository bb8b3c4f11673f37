// Package loader looks up installable server software and downloads it.
package loader

import (
	"context"
	"time"

	"craftdeck/internal/domain"
	"craftdeck/pkg/sdk"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
)

// Loader is one kind of server software. Builds are ordered oldest first.
type Loader interface {
	Versions(ctx context.Context) ([]sdk.ServerVersion, error)
	Builds(ctx context.Context, version string) ([]sdk.ServerBuild, error)
	Build(ctx context.Context, version, build string) (*sdk.ServerBuild, error)
}

// Endpoints are the upstream APIs the loaders query.
type Endpoints struct {
	VanillaManifest string
	Paper           string
	Fabric          string
	Forge           string
	ForgeMaven      string
	NeoForge        string
	NeoForgeMaven   string
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		VanillaManifest: "https://piston-meta.mojang.com/mc/game/version_manifest_v2.json",
		Paper:           "https://api.papermc.io/v2/projects/paper",
		Fabric:          "https://meta.fabricmc.net/v2/versions",
		Forge:           "https://bmclapi2.bangbang93.com/forge",
		ForgeMaven:      "https://maven.minecraftforge.net/net/minecraftforge/forge",
		NeoForge:        "https://maven.neoforged.net/api/maven/versions/releases/net%2Fneoforged%2Fneoforge",
		NeoForgeMaven:   "https://maven.neoforged.net/releases/net/neoforged/neoforge",
	}
}

// Registry holds the loaders by type name.
type Registry struct {
	fetch   fetcher
	order   []string
	loaders map[string]Loader
}

func NewHTTPClient() *retryablehttp.Client {
	hc := retryablehttp.NewClient()
	hc.RetryMax = 2
	hc.RetryWaitMin = 500 * time.Millisecond
	hc.RetryWaitMax = 5 * time.Second
	hc.Logger = nil
	return hc
}

func NewRegistry(hc *retryablehttp.Client, ep Endpoints) *Registry {
	f := fetcher{hc: hc}
	r := &Registry{fetch: f, loaders: make(map[string]Loader)}
	r.add("vanilla", &vanillaLoader{fetch: f, manifestURL: ep.VanillaManifest})
	r.add("paper", &paperLoader{fetch: f, baseURL: ep.Paper})
	r.add("fabric", &fabricLoader{fetch: f, baseURL: ep.Fabric})
	r.add("forge", &forgeLoader{fetch: f, baseURL: ep.Forge, mavenURL: ep.ForgeMaven})
	r.add("neoforge", &neoForgeLoader{fetch: f, versionsURL: ep.NeoForge, mavenURL: ep.NeoForgeMaven})
	return r
}

func (r *Registry) add(name string, l Loader) {
	r.order = append(r.order, name)
	r.loaders[name] = l
}

func (r *Registry) Types() []string {
	return append([]string(nil), r.order...)
}

func (r *Registry) Get(serverType string) (Loader, error) {
	l, ok := r.loaders[serverType]
	if !ok {
		return nil, errors.Wrap(domain.ErrNoServerType, serverType)
	}
	return l, nil
}

func (r *Registry) Build(ctx context.Context, serverType, version, build string) (*sdk.ServerBuild, error) {
	l, err := r.Get(serverType)
	if err != nil {
		return nil, err
	}
	return l.Build(ctx, version, build)
}

// Download stores url at dest. report receives the share downloaded so
// far, in percent, when the size is known.
func (r *Registry) Download(ctx context.Context, url, dest string, report func(float64)) error {
	return r.fetch.download(ctx, url, dest, report)
}

func findBuild(builds []sdk.ServerBuild, version, build string) (*sdk.ServerBuild, error) {
	for i := range builds {
		if builds[i].Build == build {
			return &builds[i], nil
		}
	}
	return nil, errors.Wrapf(domain.ErrServerBuildNotFound, "%s build %s", version, build)
}

func hasVersion(versions []sdk.ServerVersion, version string) bool {
	for _, v := range versions {
		if v.Version == version {
			return true
		}
	}
	return false
}

func ptr[T any](v T) *T { return &v }
