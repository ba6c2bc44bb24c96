// Package client fetches cellan documents from a running server's JSON API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cellcomm/cellan/internal/model"
)

// DefaultTimeout bounds a single API request.
const DefaultTimeout = 30 * time.Second

// Client implements viewstate.Fetcher over HTTP.
type Client struct {
	base       string
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a client for the server mounted at base, for example
// "http://localhost:13013/cellan". A nil httpClient uses one with
// DefaultTimeout.
func New(base string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: httpClient,
		logger:     logger.Named("client"),
	}
}

// GetEncoding fetches /api/encoding/{id}.
func (c *Client) GetEncoding(ctx context.Context, encodingID string) (*model.Encoding, bool, error) {
	var enc model.Encoding
	found, err := c.get(ctx, &enc, "encoding", encodingID)
	if !found || err != nil {
		return nil, found, err
	}
	return &enc, true, nil
}

// GetIteration fetches /api/encit/{id}/{iteration}.
func (c *Client) GetIteration(ctx context.Context, encodingID string, iteration int) (*model.Iteration, bool, error) {
	var it model.Iteration
	found, err := c.get(ctx, &it, "encit", encodingID, strconv.Itoa(iteration))
	if !found || err != nil {
		return nil, found, err
	}
	return &it, true, nil
}

// GetCell fetches /api/cell/{source}/{cell}.
func (c *Client) GetCell(ctx context.Context, sourceID string, cellID int64) (*model.Cell, bool, error) {
	var cell model.Cell
	found, err := c.get(ctx, &cell, "cell", sourceID, strconv.FormatInt(cellID, 10))
	if !found || err != nil {
		return nil, found, err
	}
	return &cell, true, nil
}

// GetGene fetches /api/gene/{source}/{gene}.
func (c *Client) GetGene(ctx context.Context, sourceID, ensemblID string) (*model.Gene, bool, error) {
	var gene model.Gene
	found, err := c.get(ctx, &gene, "gene", sourceID, ensemblID)
	if !found || err != nil {
		return nil, found, err
	}
	return &gene, true, nil
}

func (c *Client) endpoint(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return c.base + "/api/" + strings.Join(escaped, "/")
}

// get decodes the document at the endpoint into doc. A 404 reports
// found == false with a nil error.
func (c *Client) get(ctx context.Context, doc model.Document, segments ...string) (bool, error) {
	endpoint := c.endpoint(segments...)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("fetch", zap.String("url", endpoint))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to call %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return false, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Error("server returned error",
			zap.String("url", endpoint),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)))
		return false, fmt.Errorf("%s returned status %d", endpoint, resp.StatusCode)
	}

	if err := json.Unmarshal(body, doc); err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", endpoint, err)
	}
	if err := doc.Validate(); err != nil {
		return false, fmt.Errorf("%s: %w", endpoint, err)
	}
	return true, nil
}
