package octant

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/octant-daoip5/internal/config"
)

func testConfig(baseURL string) config.Config {
	return config.Config{
		BaseURL:        baseURL,
		MaxRetries:     3,
		RetryDelay:     time.Millisecond,
		RequestTimeout: 2 * time.Second,
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
		Workers:        1,
	}
}

func TestCurrentEpochSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/epochs/current", r.URL.Path)
		assert.Equal(t, "DAOIP-5-Converter/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"currentEpoch": 7}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	epoch, err := client.CurrentEpoch(context.Background())
	require.NoError(t, err)
	require.NotNil(t, epoch)
	assert.Equal(t, 7, epoch.CurrentEpoch)
}

func TestRetryThenSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"currentEpoch": 4}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	epoch, err := client.CurrentEpoch(context.Background())
	require.NoError(t, err)
	require.NotNil(t, epoch)
	assert.Equal(t, 4, epoch.CurrentEpoch)
	assert.Equal(t, int32(3), calls.Load())
}

func TestExhaustionCollapsesToAbsence(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	epoch, err := client.CurrentEpoch(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, epoch)
	assert.Equal(t, int32(3), calls.Load())
}

func TestExpected404IsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	rewards, err := client.ProjectRewards(context.Background(), 5)
	assert.NoError(t, err)
	assert.Nil(t, rewards)
	assert.Equal(t, int32(1), calls.Load())
}

func TestExpected400IsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	merkle, err := client.MerkleTree(context.Background(), 5)
	assert.NoError(t, err)
	assert.Nil(t, merkle)
	assert.Equal(t, int32(1), calls.Load())
}

func TestUnexpected404IsRetried(t *testing.T) {
	// Endpoints that are not absence-tolerant retry a 404 like any error.
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	epoch, err := client.CurrentEpoch(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, epoch)
	assert.Equal(t, int32(3), calls.Load())
}

func TestContextCancellationIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewClient(testConfig(srv.URL))
	_, err := client.CurrentEpoch(ctx)
	assert.Error(t, err)
}

func TestMalformedBodyIsAbsence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	epoch, err := client.CurrentEpoch(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, epoch)
}

func TestEndpointPaths(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.RequestURI())
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	ctx := context.Background()

	_, err := client.EpochInfo(ctx, 3)
	require.NoError(t, err)
	_, err = client.EpochStatus(ctx, 3)
	require.NoError(t, err)
	_, err = client.AllocationsForEpoch(ctx, 3)
	require.NoError(t, err)
	_, err = client.ProjectsForEpoch(ctx, 3)
	require.NoError(t, err)
	_, err = client.ProjectDetails(ctx, []int{2, 3})
	require.NoError(t, err)
	_, err = client.ProjectRewards(ctx, 3)
	require.NoError(t, err)
	_, err = client.MerkleTree(ctx, 3)
	require.NoError(t, err)
	_, err = client.ChainInfo(ctx)
	require.NoError(t, err)
	_, err = client.VersionInfo(ctx)
	require.NoError(t, err)
	_, err = client.IndexedEpoch(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/epochs/info/3",
		"/snapshots/status/3",
		"/allocations/epoch/3?includeZeroAllocations=false",
		"/projects/epoch/3",
		"/projects/details?epochs=2,3&searchPhrases=",
		"/rewards/projects/epoch/3",
		"/rewards/merkle_tree/3",
		"/info/chain-info",
		"/info/version",
		"/epochs/indexed",
	}, paths)
}

func TestRewardsSuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"rewards":[{"address":"0xAA","allocated":"10","matched":"5"}]}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	rewards, err := client.ProjectRewards(context.Background(), 4)
	require.NoError(t, err)
	require.NotNil(t, rewards)
	require.Len(t, rewards.Rewards, 1)
	assert.Equal(t, "0xAA", rewards.Rewards[0].Address)
	assert.Equal(t, "5", rewards.Rewards[0].Matched)
}
