package loader

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"

	"craftdeck/internal/domain"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
)

type fetcher struct {
	hc *retryablehttp.Client
}

// errNotFound marks a 404 from upstream. Callers turn it into the
// matching version or build error.
var errNotFound = errors.New("not found upstream")

func (f fetcher) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.hc.Do(req)
	if err != nil {
		return nil, errors.Wrapf(domain.ErrDownloadUnavailable, "%s: %v", url, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, errors.Wrap(errNotFound, url)
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		return nil, errors.Wrapf(domain.ErrDownloadUnavailable, "%s responded with status %d", url, resp.StatusCode)
	}
	return resp, nil
}

func (f fetcher) getJSON(ctx context.Context, url string, v any) error {
	resp, err := f.get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return errors.Wrapf(err, "decode %s", url)
	}
	return nil
}

func (f fetcher) download(ctx context.Context, url, dest string, report func(float64)) error {
	resp, err := f.get(ctx, url)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return errors.Wrap(domain.ErrDownloadUnavailable, url)
		}
		return err
	}
	defer resp.Body.Close()

	tmp := dest + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	pr := &progressReader{reader: resp.Body, total: resp.ContentLength, report: report}
	_, err = io.Copy(out, pr)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "download %s", url)
	}
	return os.Rename(tmp, dest)
}

type progressReader struct {
	reader  io.Reader
	total   int64
	current int64
	report  func(float64)
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.current += int64(n)
	if pr.report != nil && pr.total > 0 {
		pr.report(float64(pr.current) / float64(pr.total) * 100)
	}
	return n, err
}
