package sdk

import (
	"context"
	"net/url"
	"strconv"

	"github.com/google/uuid"
)

func serverPath(id string, parts ...string) string {
	p := "/server/" + url.PathEscape(id)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

func (c *Client) ListServers(ctx context.Context) ([]Server, error) {
	var servers []Server
	err := c.get(ctx, "/servers", nil, &servers)
	return servers, err
}

// ListJavaPresets returns the java presets the backend can launch servers
// with.
func (c *Client) ListJavaPresets(ctx context.Context) ([]string, error) {
	var presets []string
	err := c.get(ctx, "/java/presets", nil, &presets)
	return presets, err
}

func (c *Client) GetServer(ctx context.Context, id string) (*Server, error) {
	var server Server
	if err := c.get(ctx, serverPath(id), nil, &server); err != nil {
		return nil, err
	}
	return &server, nil
}

// CreateServer registers a new server under a freshly generated id and
// returns it as the backend reports it.
func (c *Client) CreateServer(ctx context.Context, req CreateServerRequest) (*Server, error) {
	id := uuid.NewString()
	var res resultBody
	if err := c.post(ctx, serverPath(id), nil, req, &res); err != nil {
		return nil, err
	}
	if !res.Result {
		return nil, &APIError{Code: CodeServerLaunchError, Detail: "server was not created"}
	}
	return c.GetServer(ctx, id)
}

func (c *Client) serverAction(ctx context.Context, id, action string, query url.Values) (bool, error) {
	var res resultBody
	err := c.post(ctx, serverPath(id, action), query, nil, &res)
	return res.Result, err
}

func (c *Client) StartServer(ctx context.Context, id string) (bool, error) {
	return c.serverAction(ctx, id, "start", nil)
}

func (c *Client) StopServer(ctx context.Context, id string) (bool, error) {
	return c.serverAction(ctx, id, "stop", nil)
}

func (c *Client) RestartServer(ctx context.Context, id string) (bool, error) {
	return c.serverAction(ctx, id, "restart", nil)
}

func (c *Client) KillServer(ctx context.Context, id string) (bool, error) {
	return c.serverAction(ctx, id, "kill", nil)
}

// SendLine writes to the server's stdin through REST. The event client's
// SendLine does the same over the websocket.
func (c *Client) SendLine(ctx context.Context, id, line string) (bool, error) {
	return c.serverAction(ctx, id, "send_line", url.Values{"line": {line}})
}

func (c *Client) RemoveServer(ctx context.Context, id string, deleteConfigFile bool) (bool, error) {
	var query url.Values
	if deleteConfigFile {
		query = url.Values{"delete_config_file": {"true"}}
	}
	var res resultBody
	err := c.delete(ctx, serverPath(id), query, &res)
	return res.Result, err
}

func (c *Client) GetServerConfig(ctx context.Context, id string) (*ServerConfig, error) {
	var cfg ServerConfig
	if err := c.get(ctx, serverPath(id, "config"), nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Client) PutServerConfig(ctx context.Context, id string, cfg ServerConfig) error {
	return c.put(ctx, serverPath(id, "config"), nil, cfg, nil)
}

func (c *Client) GetEula(ctx context.Context, id string) (bool, error) {
	var res struct {
		Eula bool `json:"eula"`
	}
	err := c.get(ctx, serverPath(id, "eula"), nil, &res)
	return res.Eula, err
}

func (c *Client) SetEula(ctx context.Context, id string, accept bool) error {
	return c.post(ctx, serverPath(id, "eula"), url.Values{"accept": {strconv.FormatBool(accept)}}, nil, nil)
}

// ReloadConfig makes the backend read the server's config file again after
// it was edited on disk.
func (c *Client) ReloadConfig(ctx context.Context, id string) (bool, error) {
	return c.serverAction(ctx, id, "config/reload", nil)
}

// ImportServer registers a directory that already holds a server config
// under a fresh id and returns the server.
func (c *Client) ImportServer(ctx context.Context, directory string) (*Server, error) {
	id := uuid.NewString()
	var res resultBody
	if err := c.post(ctx, serverPath(id, "import"), nil, ImportServerRequest{Directory: directory}, &res); err != nil {
		return nil, err
	}
	if !res.Result {
		return nil, &APIError{Code: CodeServerLaunchError, Detail: "server was not imported"}
	}
	return c.GetServer(ctx, id)
}

// GlobalServerConfig returns the defaults the backend fills into new
// servers.
func (c *Client) GlobalServerConfig(ctx context.Context) (*GlobalServerConfig, error) {
	var cfg GlobalServerConfig
	if err := c.get(ctx, "/config/server_global", nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
