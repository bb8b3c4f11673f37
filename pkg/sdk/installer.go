package sdk

import (
	"context"
	"net/url"
	"time"
)

// ServerVersion is one installable game version. BuildCount is nil when
// the source does not say.
type ServerVersion struct {
	Version    string `json:"version"`
	BuildCount *int   `json:"build_count"`
}

// ServerBuild describes one build of a version. Builds listed without
// IsLoadedInfo may lack a download URL; ask for the single build to get it.
// IsRequiredBuild means the download is an installer that has to run before
// the server can start.
type ServerBuild struct {
	Build            string     `json:"build"`
	DownloadURL      *string    `json:"download_url"`
	JavaMajorVersion *int       `json:"java_major_version"`
	RequireJDK       *bool      `json:"require_jdk"`
	UpdatedDatetime  *time.Time `json:"updated_datetime"`
	Recommended      bool       `json:"recommended"`
	IsRequiredBuild  bool       `json:"is_required_build"`
	IsLoadedInfo     bool       `json:"is_loaded_info"`
}

func jardlPath(parts ...string) string {
	p := "/jardl"
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

// ServerTypes lists the server software the backend can install.
func (c *Client) ServerTypes(ctx context.Context) ([]string, error) {
	var types []string
	err := c.get(ctx, jardlPath("types"), nil, &types)
	return types, err
}

func (c *Client) ServerVersions(ctx context.Context, serverType string) ([]ServerVersion, error) {
	var versions []ServerVersion
	err := c.get(ctx, jardlPath(serverType, "versions"), nil, &versions)
	return versions, err
}

func (c *Client) ServerBuilds(ctx context.Context, serverType, version string) ([]ServerBuild, error) {
	var builds []ServerBuild
	err := c.get(ctx, jardlPath(serverType, "version", version, "builds"), nil, &builds)
	return builds, err
}

func (c *Client) ServerBuild(ctx context.Context, serverType, version, build string) (*ServerBuild, error) {
	var b ServerBuild
	if err := c.get(ctx, jardlPath(serverType, "version", version, "build", build), nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// InstallServer downloads the build into the server's directory. The
// download runs as a file task; await the result with a TaskWaiter.
func (c *Client) InstallServer(ctx context.Context, serverID, serverType, version, build string) (*FileOperationResult, error) {
	query := url.Values{"server_type": {serverType}, "version": {version}, "build": {build}}
	res := FileOperationResult{server: serverID, issued: time.Now()}
	if err := c.post(ctx, serverPath(serverID, "install"), query, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// RemoveBuild deletes installer files left in the server's directory. It
// reports whether anything was removed.
func (c *Client) RemoveBuild(ctx context.Context, serverID string) (bool, error) {
	var res resultBody
	err := c.delete(ctx, serverPath(serverID, "build"), nil, &res)
	return res.Result, err
}
