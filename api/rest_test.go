package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/solvenet/solvenet/api"
	"github.com/solvenet/solvenet/core"
)

func newTestServer(t *testing.T) (*httptest.Server, *core.Engine) {
	t.Helper()

	store, err := core.OpenLevelDB(t.TempDir() + "/chain.db")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	engine, err := core.NewEngine(core.EngineConfig{
		NetworkID:        "test",
		GenesisTimestamp: 1609459200,
		GenesisSeed:      "seed",
		CreatorTag:       "tester",
		Clock:            time.Now,
	}, core.NewRegistry(core.NewSubsetSumSolver()), store, nil)
	require.NoError(t, err)

	srv := httptest.NewServer(api.NewServer(engine, nil))
	t.Cleanup(srv.Close)
	return srv, engine
}

func getJSON(t *testing.T, url string, out interface{}) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestGetTip(t *testing.T) {
	srv, engine := newTestServer(t)

	var tip core.Block
	resp := getJSON(t, srv.URL+"/tip", &tip)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.Equal(t, engine.GetBestTip().BlockHash, tip.BlockHash)
	require.Equal(t, uint64(0), tip.Index)
}

func TestGetChain(t *testing.T) {
	srv, _ := newTestServer(t)

	var body struct {
		Length int          `json:"length"`
		Blocks []core.Block `json:"blocks"`
	}
	resp := getJSON(t, srv.URL+"/chain", &body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, body.Length)
	require.Len(t, body.Blocks, 1)
}

func TestGetBlock(t *testing.T) {
	srv, engine := newTestServer(t)
	genesis := engine.GetBestTip()

	var block core.Block
	resp := getJSON(t, srv.URL+"/block/"+genesis.BlockHash.String(), &block)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, genesis.BlockHash, block.BlockHash)

	resp = getJSON(t, srv.URL+"/block/"+core.HashBytes([]byte("missing")).String(), nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = getJSON(t, srv.URL+"/block/not-a-hash", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetFinalized(t *testing.T) {
	srv, engine := newTestServer(t)
	genesis := engine.GetBestTip()

	// Genesis is its own best tip: depth zero, below the confirmation depth.
	var body map[string]bool
	resp := getJSON(t, srv.URL+"/finalized/"+genesis.BlockHash.String(), &body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.False(t, body["finalized"])

	resp = getJSON(t, srv.URL+"/finalized/zzz", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	srv, engine := newTestServer(t)

	var body map[string]string
	resp := getJSON(t, srv.URL+"/healthz", &body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", body["status"])
	require.Equal(t, engine.GetBestTip().BlockHash.String(), body["tip"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := getJSON(t, srv.URL+"/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
