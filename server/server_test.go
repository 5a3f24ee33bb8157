package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"qmaze/maze"
	"qmaze/metrics"
	"qmaze/qtable"
	"qmaze/reinforcement"
	"qmaze/render"
	"qmaze/server/fastview"
	"qmaze/store"
	"qmaze/token"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const trainBody = `{"episodes":10,"maxSteps":20,"epsilon":20,"alpha":50,"gamma":90}`

type fixture struct {
	server *Server
	store  *store.FileStore
	http   *httptest.Server
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	engine := reinforcement.NewEngine(maze.Default, qtable.NewState())
	opts = append([]Option{
		WithStore(fs, store.DefaultKey),
		WithMetrics(metrics.NewRecorder(reg), reg),
		WithTokens(token.NewRegistry(nil)),
	}, opts...)

	srv, err := NewServer(ctx, "", engine, make(chan qtable.State, 1), opts...)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{server: srv, store: fs, http: ts}
}

func (f *fixture) do(t *testing.T, method, path, body, bearer string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, f.http.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func TestQTableEndpoints(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodGet, "/qtable", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var table qtableResponse
	require.NoError(t, json.Unmarshal([]byte(body), &table))
	assert.Equal(t, uint32(1), table.Seed)
	assert.Len(t, table.Values, qtable.Size)

	resp, _ = f.do(t, http.MethodGet, "/qtable/5/0", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = f.do(t, http.MethodGet, "/qtable/4/4", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cell cellResponse
	require.NoError(t, json.Unmarshal([]byte(body), &cell))
	assert.Equal(t, qtable.Values{}, cell.Values)
	assert.Equal(t, "up", cell.Best)
}

func TestTrain(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/train", trainBody, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	var trained trainResponse
	require.NoError(t, json.Unmarshal([]byte(body), &trained))
	assert.Equal(t, uint32(1668440794), trained.Seed)
	assert.Equal(t, reinforcement.Stats{Episodes: 10, Steps: 200, GoalsReached: 0}, trained.Stats)

	t.Run("values reflect training", func(t *testing.T) {
		_, body := f.do(t, http.MethodGet, "/qtable/0/0", "", "")
		var cell cellResponse
		require.NoError(t, json.Unmarshal([]byte(body), &cell))
		assert.Equal(t, qtable.Values{-24, -24, -24, -25}, cell.Values)
	})

	t.Run("state is persisted", func(t *testing.T) {
		saved, err := f.store.Load(context.Background(), store.DefaultKey)
		require.NoError(t, err)
		assert.Equal(t, uint32(1668440794), saved.Seed)
		assert.Equal(t, int32(-24), saved.Table.Get(0, 0, maze.Up))
	})

	t.Run("metrics are exported", func(t *testing.T) {
		_, body := f.do(t, http.MethodGet, "/metrics", "", "")
		assert.Contains(t, body, "qmaze_training_calls_total 1")
		assert.Contains(t, body, "qmaze_steps_total 200")
	})

	t.Run("out of range percentages are rejected", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodPost, "/train", `{"episodes":1,"maxSteps":1,"alpha":150}`, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("calls over the step budget are rejected without blocking readers", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPost, "/train",
			`{"episodes":1,"maxSteps":4294967295,"epsilon":0,"alpha":0,"gamma":0}`, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, body, reinforcement.ErrBudget.Error())

		resp, _ = f.do(t, http.MethodGet, "/qtable", "", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		saved, err := f.store.Load(context.Background(), store.DefaultKey)
		require.NoError(t, err)
		assert.Equal(t, uint32(1668440794), saved.Seed)
	})

	t.Run("Train refuses an over-budget call", func(t *testing.T) {
		_, _, err := f.server.Train(context.Background(), reinforcement.Params{Episodes: 2000, MaxSteps: 1000})
		assert.ErrorIs(t, err, reinforcement.ErrBudget)
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodPost, "/train", `{"episodes":1,"lambda":3}`, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestPolicyEndpoints(t *testing.T) {
	f := newFixture(t)

	_, body := f.do(t, http.MethodGet, "/policy", "", "")
	var policy policyResponse
	require.NoError(t, json.Unmarshal([]byte(body), &policy))
	// every non-wall cell of the default maze
	assert.Len(t, policy.Actions, 18)
	assert.Equal(t, maze.Position{Row: 0, Col: 0}, policy.Path[0])
	assert.False(t, policy.ReachedGoal)

	resp, body := f.do(t, http.MethodGet, "/policy.svg", "", "")
	assert.Equal(t, "image/svg+xml", resp.Header.Get("Content-Type"))
	assert.True(t, strings.HasSuffix(body, "</svg>"))

	resp, body = f.do(t, http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `id="valuesgrid"`)
	assert.Contains(t, body, `id="valuefunction"`)
	assert.Contains(t, body, `id="0-0-value-text"`)
}

func TestTokens(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/tokens", `{"owner":"alice"}`, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	var minted tokenResponse
	require.NoError(t, json.Unmarshal([]byte(body), &minted))
	assert.Equal(t, uint32(0), minted.TokenID)

	_, body = f.do(t, http.MethodGet, "/tokens/0", "", "")
	assert.Contains(t, body, `"owner":"alice"`)

	resp, _ = f.do(t, http.MethodGet, "/tokens/1", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = f.do(t, http.MethodGet, "/tokens/1/uri", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, body = f.do(t, http.MethodGet, "/tokens/0/uri", "", "")
	var uri tokenResponse
	require.NoError(t, json.Unmarshal([]byte(body), &uri))
	meta, svg, err := render.DecodeTokenURI(uri.URI)
	require.NoError(t, err)
	assert.Equal(t, "Maze Policy #0", meta.Name)
	assert.Contains(t, svg, "<svg")
	// drawn from the untrained state's seed of 1
	assert.Equal(t, 10, strings.Count(svg, "<line"))
	assert.Contains(t, svg, `fill="#070d11"`)

	resp, _ = f.do(t, http.MethodPost, "/tokens", `{}`, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuth(t *testing.T) {
	auth := NewAuthenticator("test-secret", "qmaze")
	f := newFixture(t, WithAuth(auth))

	resp, _ := f.do(t, http.MethodPost, "/train", trainBody, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/train", trainBody, "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	expired, err := auth.Generate("bob", -time.Minute)
	require.NoError(t, err)
	resp, _ = f.do(t, http.MethodPost, "/train", trainBody, expired)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	foreign, err := NewAuthenticator("test-secret", "elsewhere").Generate("bob", time.Minute)
	require.NoError(t, err)
	resp, _ = f.do(t, http.MethodPost, "/train", trainBody, foreign)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	valid, err := auth.Generate("bob", time.Minute)
	require.NoError(t, err)
	resp, _ = f.do(t, http.MethodPost, "/train", trainBody, valid)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// the subject becomes the default owner
	resp, body := f.do(t, http.MethodPost, "/tokens", `{}`, valid)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Contains(t, body, `"owner":"bob"`)

	// reads stay open
	resp, _ = f.do(t, http.MethodGet, "/qtable", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebsocketUpdates(t *testing.T) {
	f := newFixture(t)

	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var updates []fastview.EleUpdate
	require.NoError(t, conn.ReadJSON(&updates))
	assert.NotEmpty(t, updates)

	ids := map[string]bool{}
	for _, update := range updates {
		ids[update.EleId] = true
	}
	assert.True(t, ids["0-0-value-text"] || ids["valuefunction-group"])
}
