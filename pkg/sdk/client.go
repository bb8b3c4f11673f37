package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"craftdeck/pkg/sdk/events"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const DefaultWebSocketPath = "/ws"

type Client struct {
	baseURL    string
	httpClient *http.Client // reads, retried
	rawClient  *http.Client // mutations, never replayed
	jar        http.CookieJar
	retryMax   int
	log        zerolog.Logger
}

type Option func(*Client)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithRetryMax sets how many times an idempotent read is retried.
func WithRetryMax(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retryMax = n
		}
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		jar:      jar,
		retryMax: 3,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = c.retryMax
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = retryLogger{c.log}
	rc.HTTPClient.Jar = jar
	c.httpClient = rc.StandardClient()

	c.rawClient = &http.Client{Jar: jar, Timeout: 5 * time.Minute}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Cookies returns the cookies the client holds for the backend, including
// the session cookie after a successful Login.
func (c *Client) Cookies() []*http.Cookie {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil
	}
	return c.jar.Cookies(u)
}

// SetCookies seeds the jar, typically with a session saved by an earlier
// process.
func (c *Client) SetCookies(cookies []*http.Cookie) {
	if u, err := url.Parse(c.baseURL); err == nil {
		c.jar.SetCookies(u, cookies)
	}
}

func (c *Client) GetWebSocketURL(path string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", errors.Wrap(err, "parse base url")
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String(), nil
}

// NewEventClient builds an event client for the backend's websocket
// endpoint. It shares this client's session cookies.
func (c *Client) NewEventClient(opts ...events.Option) (*events.Client, error) {
	wsURL, err := c.GetWebSocketURL(DefaultWebSocketPath)
	if err != nil {
		return nil, err
	}
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
		Jar:              c.jar,
	}
	base := []events.Option{events.WithDialer(dialer), events.WithLogger(c.log)}
	return events.NewClient(wsURL, append(base, opts...)...), nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), body)
	if err != nil {
		return nil, errors.Wrapf(err, "build %s %s", method, path)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	hc := c.rawClient
	if method == http.MethodGet {
		hc = c.httpClient
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, &networkError{err: errors.Wrapf(err, "%s %s", method, path)}
	}
	c.log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("api request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

type errorBody struct {
	ErrorCode *int   `json:"error_code"`
	Detail    string `json:"detail"`
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body errorBody
	if err := json.Unmarshal(data, &body); err == nil && body.ErrorCode != nil {
		return &APIError{Code: ErrorCode(*body.ErrorCode), Detail: body.Detail, Status: resp.StatusCode}
	}
	msg := strings.TrimSpace(string(data))
	if msg != "" {
		return errors.Errorf("error: %s", msg)
	}
	return errors.Errorf("API error (%d)", resp.StatusCode)
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, payload, target any) error {
	var body io.Reader
	contentType := ""
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	resp, err := c.do(ctx, method, path, query, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if target == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return errors.Wrapf(err, "decode %s %s", method, path)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, target any) error {
	return c.doJSON(ctx, http.MethodGet, path, query, nil, target)
}

func (c *Client) post(ctx context.Context, path string, query url.Values, payload, target any) error {
	return c.doJSON(ctx, http.MethodPost, path, query, payload, target)
}

func (c *Client) put(ctx context.Context, path string, query url.Values, payload, target any) error {
	return c.doJSON(ctx, http.MethodPut, path, query, payload, target)
}

func (c *Client) delete(ctx context.Context, path string, query url.Values, target any) error {
	return c.doJSON(ctx, http.MethodDelete, path, query, nil, target)
}

// postFile uploads r as the multipart field "file".
func (c *Client) postFile(ctx context.Context, path string, query url.Values, filename string, r io.Reader, target any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return errors.Wrap(err, "create form file")
	}
	if _, err := io.Copy(part, r); err != nil {
		return errors.Wrap(err, "read upload")
	}
	if err := mw.Close(); err != nil {
		return errors.Wrap(err, "finish form")
	}

	resp, err := c.do(ctx, http.MethodPost, path, query, &buf, mw.FormDataContentType())
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if target == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return errors.Wrapf(err, "decode POST %s", path)
	}
	return nil
}

// download returns the raw response body. The caller closes it.
func (c *Client) download(ctx context.Context, path string, query url.Values) (io.ReadCloser, error) {
	resp, err := c.do(ctx, http.MethodGet, path, query, nil, "")
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

type retryLogger struct {
	log zerolog.Logger
}

func (l retryLogger) Error(msg string, kv ...interface{}) { l.event(l.log.Error(), msg, kv) }
func (l retryLogger) Info(msg string, kv ...interface{})  { l.event(l.log.Debug(), msg, kv) }
func (l retryLogger) Debug(msg string, kv ...interface{}) { l.event(l.log.Trace(), msg, kv) }
func (l retryLogger) Warn(msg string, kv ...interface{})  { l.event(l.log.Warn(), msg, kv) }

func (retryLogger) event(e *zerolog.Event, msg string, kv []interface{}) {
	e.Fields(kv).Msg(msg)
}
