// Package thingiverse is a minimal client for the Thingiverse REST API:
// listing a thing's files and downloading its STL models.
package thingiverse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/thingbot/internal/errors"
	"github.com/hpungsan/thingbot/internal/logging"
)

// DefaultBaseURL is the public Thingiverse API root.
const DefaultBaseURL = "https://api.thingiverse.com"

// Config configures the Thingiverse client.
type Config struct {
	BaseURL string        `json:"base_url"`
	Token   string        `json:"-"`
	Timeout time.Duration `json:"timeout"`
}

// File is one entry of GET /things/{id}/files.
type File struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	URL         string `json:"url"`
	PublicURL   string `json:"public_url"`
	DownloadURL string `json:"download_url"`
}

// IsSTL reports whether the file name has the .stl extension, ignoring case.
func (f File) IsSTL() bool {
	return strings.HasSuffix(strings.ToLower(f.Name), ".stl")
}

// Saver stores a named stream and returns the local path it was written to.
// *workspace.Workspace implements it.
type Saver interface {
	Save(name string, write func(io.Writer) error) (string, error)
}

// Client talks to the Thingiverse API. It is safe for concurrent use and
// holds nothing but immutable configuration after construction.
type Client struct {
	config Config
	client *http.Client
	logger *zap.Logger
}

// NewClient creates a new Thingiverse client.
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	return &Client{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logging.OrNop(logger),
	}
}

// GetSTLs returns the STL files attached to thingID.
// An identifier Thingiverse does not recognise yields an INVALID_THING error.
func (c *Client) GetSTLs(ctx context.Context, thingID string) ([]File, error) {
	thingID = strings.TrimSpace(thingID)
	if thingID == "" {
		return nil, errors.NewInvalidRequest("thing id is required")
	}

	requestURL := fmt.Sprintf("%s/things/%s/files", c.config.BaseURL, url.PathEscape(thingID))
	c.logger.Debug("listing thing files", zap.String("thing_id", thingID))

	resp, err := c.get(ctx, requestURL)
	if err != nil {
		return nil, errors.NewDownloadFailed("thing "+thingID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		return nil, errors.NewInvalidThing(thingID)
	case resp.StatusCode != http.StatusOK:
		return nil, errors.NewDownloadFailed("thing "+thingID,
			fmt.Errorf("thingiverse returned status %d", resp.StatusCode))
	}

	var files []File
	if err := json.NewDecoder(resp.Body).Decode(&files); err != nil {
		return nil, errors.NewDownloadFailed("thing "+thingID, fmt.Errorf("failed to parse file list: %w", err))
	}

	stls := make([]File, 0, len(files))
	for _, f := range files {
		if f.IsSTL() {
			stls = append(stls, f)
		}
	}

	c.logger.Info("thing files listed",
		zap.String("thing_id", thingID),
		zap.Int("files", len(files)),
		zap.Int("stls", len(stls)))

	return stls, nil
}

// DownloadSTLs downloads every file into dst, in order, and returns the local paths.
// The first failure aborts the remaining downloads.
func (c *Client) DownloadSTLs(ctx context.Context, dst Saver, files []File) ([]string, error) {
	paths := make([]string, 0, len(files))
	for _, f := range files {
		path, err := c.download(ctx, dst, f)
		if err != nil {
			return nil, err
		}
		c.logger.Debug("stl downloaded", zap.String("name", f.Name), zap.String("path", path))
		paths = append(paths, path)
	}
	return paths, nil
}

func (c *Client) download(ctx context.Context, dst Saver, f File) (string, error) {
	downloadURL := f.DownloadURL
	if downloadURL == "" {
		downloadURL = fmt.Sprintf("%s/files/%d/download", c.config.BaseURL, f.ID)
	}

	resp, err := c.get(ctx, downloadURL)
	if err != nil {
		return "", errors.NewDownloadFailed(f.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.NewDownloadFailed(f.Name, fmt.Errorf("thingiverse returned status %d", resp.StatusCode))
	}

	path, err := dst.Save(f.Name, func(w io.Writer) error {
		_, err := io.Copy(w, resp.Body)
		return err
	})
	if err != nil {
		return "", errors.NewDownloadFailed(f.Name, err)
	}
	return path, nil
}

// get executes an authenticated GET request.
func (c *Client) get(ctx context.Context, requestURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	return resp, nil
}
