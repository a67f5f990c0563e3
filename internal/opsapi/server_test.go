package opsapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/park285/Cheese-TicTacToe-bot/internal/boardimg"
	"github.com/park285/Cheese-TicTacToe-bot/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, opts ...Option) (*httptest.Server, *session.Manager) {
	t.Helper()
	mgr := session.NewManager(session.NewMemoryStore(), session.NewMemoryUserIndex())
	srv := httptest.NewServer(NewHandler(mgr, opts...).Routes())
	t.Cleanup(srv.Close)
	return srv, mgr
}

func getJSON(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestHealth(t *testing.T) {
	srv, _ := newServer(t,
		WithPinger(func(ctx context.Context) error { return nil }),
		WithWebSocketState(func() string { return "connected" }),
	)
	code, body := getJSON(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "connected", body["websocket"])
}

func TestHealth_Degraded(t *testing.T) {
	srv, _ := newServer(t, WithPinger(func(ctx context.Context) error { return errors.New("connection refused") }))
	code, body := getJSON(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", body["status"])
}

func TestGetSession(t *testing.T) {
	srv, mgr := newServer(t)
	ctx := context.Background()
	rec, err := mgr.Create(ctx, session.Participant{UserID: "A", ChatID: "c-a", Name: "Alice"})
	require.NoError(t, err)
	_, err = mgr.Join(ctx, session.Participant{UserID: "B", ChatID: "c-b"}, rec.JoinToken)
	require.NoError(t, err)
	_, err = mgr.ApplyMove(ctx, rec.ID, "A", 1, 1)
	require.NoError(t, err)

	for _, ref := range []string{"1", rec.JoinToken} {
		code, body := getJSON(t, srv.URL+"/sessions/"+ref)
		require.Equal(t, http.StatusOK, code, ref)
		assert.Equal(t, float64(1), body["id"])
		assert.Equal(t, string(session.StatusInProgress), body["status"])
		assert.Equal(t, ".../.X./...", body["board"])
		assert.Equal(t, "B", body["currentTurn"])
		players := body["participants"].([]any)
		require.Len(t, players, 2)
		assert.Equal(t, "Alice", players[0].(map[string]any)["name"])
		assert.Equal(t, "O", players[1].(map[string]any)["symbol"])
	}
}

func TestGetSession_NotFound(t *testing.T) {
	srv, _ := newServer(t)
	code, body := getJSON(t, srv.URL+"/sessions/TTT-ZZZZZZ")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Session not found", body["error"])
}

func TestBoardImage(t *testing.T) {
	srv, mgr := newServer(t, WithRenderer(boardimg.NewRenderer(0)))
	_, err := mgr.Create(context.Background(), session.Participant{UserID: "A", ChatID: "c-a"})
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/sessions/1/board.png")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
}

func TestBoardImage_Disabled(t *testing.T) {
	srv, _ := newServer(t)
	code, _ := getJSON(t, srv.URL+"/sessions/1/board.png")
	assert.Equal(t, http.StatusNotFound, code)
}
