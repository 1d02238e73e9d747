package generation

import (
	"context"
	"fmt"
	"os"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/melbahja/got"
)

// OutputDownloader fetches a finished artifact from the service's output
// URL.
type OutputDownloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

type gotDownloader struct {
	logger log.Logger
}

// NewDownloader creates an OutputDownloader that downloads over a retrying
// HTTP client. got writes to files, so the bytes are staged through a temp
// file.
func NewDownloader(logger log.Logger) OutputDownloader {
	return &gotDownloader{logger: logger}
}

func (d *gotDownloader) Download(ctx context.Context, url string) ([]byte, error) {
	tmp, err := os.CreateTemp("", "generation-output-")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	path := tmp.Name()
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			d.logger.Debugf("remove temp download %s: %s", path, err)
		}
	}()

	downloader := got.New()
	downloader.Client = retryhttp.NewClient(d.logger).StandardClient()

	if err := downloader.Do(got.NewDownload(ctx, url, path)); err != nil {
		return nil, fmt.Errorf("download output: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read downloaded output: %w", err)
	}
	return data, nil
}
