package sdk

import (
	"context"
	"net/url"
	"strconv"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login opens a session. The session cookie is kept by the client and sent
// with every later request, including the websocket handshake.
func (c *Client) Login(ctx context.Context, username, password string) error {
	return c.post(ctx, "/login", nil, credentials{username, password}, nil)
}

// Setup creates the first administrator of a fresh backend and logs in
// as it. It fails once any user exists.
func (c *Client) Setup(ctx context.Context, username, password string) error {
	return c.post(ctx, "/setup", nil, credentials{username, password}, nil)
}

func (c *Client) Logout(ctx context.Context) error {
	return c.post(ctx, "/logout", nil, nil, nil)
}

func (c *Client) IsValidSession(ctx context.Context) (bool, error) {
	var res resultBody
	err := c.get(ctx, "/login", nil, &res)
	return res.Result, err
}

// BackendVersion returns the release the backend runs.
func (c *Client) BackendVersion(ctx context.Context) (string, error) {
	var res struct {
		Version string `json:"version"`
	}
	err := c.get(ctx, "/version", nil, &res)
	return res.Version, err
}

func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	err := c.get(ctx, "/users", nil, &users)
	return users, err
}

func (c *Client) AddUser(ctx context.Context, username, password string) (bool, error) {
	var res resultBody
	err := c.post(ctx, "/user/add", nil, credentials{username, password}, &res)
	return res.Result, err
}

func (c *Client) RemoveUser(ctx context.Context, userID int) (bool, error) {
	var res resultBody
	err := c.delete(ctx, "/user/remove", url.Values{"user_id": {strconv.Itoa(userID)}}, &res)
	return res.Result, err
}
