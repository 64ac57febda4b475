// Package octant is the client for the Octant backend API. It never surfaces
// upstream flakiness to callers: a resource is either present or absent, and
// retry exhaustion collapses into absence. Epochs that have not concluded
// legitimately answer 400/404 on their reward endpoints, so treating fetch
// failure as fatal would make the whole pipeline unusable mid-epoch.
package octant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yourorg/octant-daoip5/internal/config"
	"github.com/yourorg/octant-daoip5/internal/metrics"
	"github.com/yourorg/octant-daoip5/internal/model"
)

const userAgent = "DAOIP-5-Converter/1.0"

type ctxKey int

const allowAbsentKey ctxKey = iota

// Client talks to the Octant backend with capped exponential backoff and
// client-side rate limiting.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates an Octant API client from configuration.
func NewClient(cfg config.Config) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.MaxRetries - 1
	rc.RetryWaitMin = cfg.RetryDelay
	rc.RetryWaitMax = cfg.RetryDelay * 16
	rc.HTTPClient.Timeout = cfg.RequestTimeout
	rc.Logger = nil
	rc.Backoff = expBackoff
	rc.CheckRetry = checkRetry
	rc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			metrics.UpstreamRetries.Inc()
			logrus.Warnf("Retrying %s (attempt %d)", req.URL.Path, attempt+1)
		}
		logrus.Debugf("Fetching: %s", req.URL.Path)
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: rc.StandardClient(),
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
	}
}

// expBackoff waits min * 2^attempt, capped at max.
func expBackoff(min, max time.Duration, attemptNum int, _ *http.Response) time.Duration {
	d := min << uint(attemptNum)
	if d > max || d < min {
		return max
	}
	return d
}

// checkRetry retries transport errors and non-2xx responses, except an
// expected 400/404 on absence-tolerant endpoints, which is a final answer.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return false, nil
	}
	if allowed, _ := ctx.Value(allowAbsentKey).(bool); allowed {
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound {
			return false, nil
		}
	}
	return true, nil
}

// getJSON fetches an endpoint and decodes the body into v. It reports
// found=false for expected absence and for retry exhaustion alike; err is
// non-nil only for cancellation or a request that cannot be built.
func (c *Client) getJSON(ctx context.Context, name, endpoint string, allowAbsent bool, v any) (found bool, err error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, err
	}

	ctx = context.WithValue(ctx, allowAbsentKey, allowAbsent)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("build request for %s: %w", endpoint, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		metrics.UpstreamRequests.WithLabelValues(name, "error").Inc()
		logrus.Errorf("Failed to fetch %s: %v", endpoint, err)
		return false, nil
	}
	defer resp.Body.Close()

	if allowAbsent && (resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound) {
		metrics.UpstreamRequests.WithLabelValues(name, "absent").Inc()
		logrus.Infof("Expected %d for %s - epoch likely not concluded", resp.StatusCode, endpoint)
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.UpstreamRequests.WithLabelValues(name, "error").Inc()
		logrus.Errorf("Failed to fetch %s: status %d", endpoint, resp.StatusCode)
		return false, nil
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		metrics.UpstreamRequests.WithLabelValues(name, "error").Inc()
		logrus.Errorf("Failed to decode %s response: %v", endpoint, err)
		return false, nil
	}

	metrics.UpstreamRequests.WithLabelValues(name, "success").Inc()
	return true, nil
}

// CurrentEpoch returns the current epoch number.
func (c *Client) CurrentEpoch(ctx context.Context) (*model.CurrentEpoch, error) {
	var out model.CurrentEpoch
	found, err := c.getJSON(ctx, "epochs", "/epochs/current", false, &out)
	if err != nil || !found {
		return nil, err
	}
	return &out, nil
}

// IndexedEpoch returns the backend indexer's sync position.
func (c *Client) IndexedEpoch(ctx context.Context) (*model.IndexedEpoch, error) {
	var out model.IndexedEpoch
	found, err := c.getJSON(ctx, "epochs", "/epochs/indexed", false, &out)
	if err != nil || !found {
		return nil, err
	}
	return &out, nil
}

// EpochInfo returns the financial summary for an epoch.
func (c *Client) EpochInfo(ctx context.Context, epoch int) (*model.EpochInfo, error) {
	var out model.EpochInfo
	found, err := c.getJSON(ctx, "epochs", "/epochs/info/"+strconv.Itoa(epoch), false, &out)
	if err != nil || !found {
		return nil, err
	}
	return &out, nil
}

// EpochStatus returns the snapshot status for an epoch.
func (c *Client) EpochStatus(ctx context.Context, epoch int) (*model.EpochStatus, error) {
	var out model.EpochStatus
	found, err := c.getJSON(ctx, "snapshots", "/snapshots/status/"+strconv.Itoa(epoch), false, &out)
	if err != nil || !found {
		return nil, err
	}
	return &out, nil
}

// ProjectsForEpoch returns the project address list and content CID for an epoch.
func (c *Client) ProjectsForEpoch(ctx context.Context, epoch int) (*model.ProjectsMetadata, error) {
	var out model.ProjectsMetadata
	found, err := c.getJSON(ctx, "projects", "/projects/epoch/"+strconv.Itoa(epoch), false, &out)
	if err != nil || !found {
		return nil, err
	}
	return &out, nil
}

// ProjectDetails returns human-readable project metadata for a set of epochs.
func (c *Client) ProjectDetails(ctx context.Context, epochs []int) (*model.ProjectDetailsResponse, error) {
	parts := make([]string, len(epochs))
	for i, e := range epochs {
		parts[i] = strconv.Itoa(e)
	}
	endpoint := "/projects/details?epochs=" + strings.Join(parts, ",") + "&searchPhrases="

	var out model.ProjectDetailsResponse
	found, err := c.getJSON(ctx, "projects", endpoint, false, &out)
	if err != nil || !found {
		return nil, err
	}
	return &out, nil
}

// AllocationsForEpoch returns all donor allocations for an epoch.
func (c *Client) AllocationsForEpoch(ctx context.Context, epoch int) (*model.AllocationsResponse, error) {
	var out model.AllocationsResponse
	endpoint := "/allocations/epoch/" + strconv.Itoa(epoch) + "?includeZeroAllocations=false"
	found, err := c.getJSON(ctx, "allocations", endpoint, false, &out)
	if err != nil || !found {
		return nil, err
	}
	return &out, nil
}

// ProjectRewards returns the per-project rewards for an epoch. A 400/404 here
// means the epoch has not been finalized and yields (nil, nil).
func (c *Client) ProjectRewards(ctx context.Context, epoch int) (*model.RewardsResponse, error) {
	var out model.RewardsResponse
	found, err := c.getJSON(ctx, "rewards", "/rewards/projects/epoch/"+strconv.Itoa(epoch), true, &out)
	if err != nil || !found {
		return nil, err
	}
	return &out, nil
}

// MerkleTree returns the committed payout tree for an epoch. A 400/404 here
// means payouts are not committed yet and yields (nil, nil).
func (c *Client) MerkleTree(ctx context.Context, epoch int) (*model.MerkleTree, error) {
	var out model.MerkleTree
	found, err := c.getJSON(ctx, "rewards", "/rewards/merkle_tree/"+strconv.Itoa(epoch), true, &out)
	if err != nil || !found {
		return nil, err
	}
	return &out, nil
}

// ChainInfo returns chain metadata for identifier construction.
func (c *Client) ChainInfo(ctx context.Context) (*model.ChainInfo, error) {
	var out model.ChainInfo
	found, err := c.getJSON(ctx, "info", "/info/chain-info", false, &out)
	if err != nil || !found {
		return nil, err
	}
	return &out, nil
}

// VersionInfo returns backend deployment metadata.
func (c *Client) VersionInfo(ctx context.Context) (*model.VersionInfo, error) {
	var out model.VersionInfo
	found, err := c.getJSON(ctx, "info", "/info/version", false, &out)
	if err != nil || !found {
		return nil, err
	}
	return &out, nil
}
