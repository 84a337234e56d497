package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/zapquiz/internal/content"
	"github.com/abhisek/zapquiz/internal/economy"
	"github.com/abhisek/zapquiz/internal/leaderboard"
	"github.com/abhisek/zapquiz/internal/orchestrator"
	"github.com/abhisek/zapquiz/internal/store"
)

const testSecret = "test-secret"

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   json.RawMessage `json:"error"`
	Data    json.RawMessage `json:"data"`
}

type viewData struct {
	View struct {
		AttemptID string `json:"attempt_id"`
		Phase     string `json:"phase"`
		Question  *struct {
			ID string `json:"id"`
		} `json:"question"`
		Hearts int `json:"hearts"`
	} `json:"view"`
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, store.Config{
		Driver: store.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "api.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.UpsertUnit(ctx, store.Unit{ID: "u-1", CurriculumID: "c-1", Order: 1}))
	for _, q := range []store.QuestionRow{
		{ID: "q1", UnitID: "u-1", Type: "true_false", Content: []byte(`{"statement":"Cats purr","answer":true}`), Order: 1},
		{ID: "q2", UnitID: "u-1", Type: "multiple_choice", Content: []byte(`{"prompt":"Pick the noun","options":["run","cat"],"answer":"cat"}`), Order: 2},
	} {
		_, err := s.UpsertQuestion(ctx, q)
		require.NoError(t, err)
	}

	log := logrus.New()
	log.SetOutput(io.Discard)
	ledger := economy.NewLedger(s, economy.DefaultConfig(), log)
	svc := content.NewService(s, ledger, content.NewGrader(nil, log), content.DefaultConfig(), log)
	orch := orchestrator.New(orchestrator.Deps{
		Content: svc,
		Ledger:  ledger,
		Events:  s,
		Board:   leaderboard.NewStoreBoard(s),
		Log:     log,
	}, orchestrator.DefaultConfig())

	cfg := DefaultConfig()
	cfg.JWTSecret = testSecret
	srv, err := New(cfg, orch, log)
	require.NoError(t, err)
	return srv
}

func token(t *testing.T, srv *Server, userID string) string {
	t.Helper()
	tok, err := srv.Tokens().Issue(userID)
	require.NoError(t, err)
	return tok
}

func do(t *testing.T, srv *Server, method, path, tok string, body any) (int, envelope) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)

	code, env := do(t, srv, http.MethodGet, "/api/v1/me/balance", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, env.Success)

	code, _ = do(t, srv, http.MethodGet, "/api/v1/me/balance", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	other, err := NewTokens("another-secret", time.Hour)
	require.NoError(t, err)
	forged, err := other.Issue("u1")
	require.NoError(t, err)
	code, _ = do(t, srv, http.MethodGet, "/api/v1/me/balance", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env = do(t, srv, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
}

func TestTokens_Expiry(t *testing.T) {
	tokens, err := NewTokens(testSecret, time.Minute)
	require.NoError(t, err)
	now := time.Now()
	tokens.now = func() time.Time { return now }

	tok, err := tokens.Issue("u1")
	require.NoError(t, err)
	id, err := tokens.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", id)

	tokens.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, err = tokens.Parse(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewTokens("", time.Minute)
	assert.Error(t, err)
}

func TestSessionFlow(t *testing.T) {
	srv := newTestServer(t)
	tok := token(t, srv, "u1")

	code, env := do(t, srv, http.MethodPost, "/api/v1/sessions", tok, orchestrator.StartRequest{Mode: "unit", UnitID: "u-1"})
	require.Equal(t, http.StatusOK, code, env.Message)
	var started viewData
	require.NoError(t, json.Unmarshal(env.Data, &started))
	assert.Equal(t, "testing", started.View.Phase)
	require.NotNil(t, started.View.Question)
	assert.Equal(t, "q1", started.View.Question.ID)
	base := "/api/v1/sessions/" + started.View.AttemptID

	code, env = do(t, srv, http.MethodPost, base+"/answers", tok, submitRequest{QuestionID: "q1", Answer: "yes"})
	require.Equal(t, http.StatusOK, code, env.Message)
	var submitted struct {
		Correct bool   `json:"correct"`
		Status  string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &submitted))
	assert.True(t, submitted.Correct)
	assert.Equal(t, "ok", submitted.Status)

	code, _ = do(t, srv, http.MethodPost, base+"/advance", tok, nil)
	require.Equal(t, http.StatusOK, code)

	code, env = do(t, srv, http.MethodPost, base+"/answers", tok, submitRequest{QuestionID: "q2", Answer: "run"})
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &submitted))
	assert.False(t, submitted.Correct)

	// Completing in the middle of the quiz is a conflict.
	code, _ = do(t, srv, http.MethodPost, base+"/complete", tok, nil)
	assert.Equal(t, http.StatusConflict, code)

	code, env = do(t, srv, http.MethodGet, base+"/exit", tok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"confirm":true}`, string(env.Data))

	code, _ = do(t, srv, http.MethodPost, base+"/exit", tok, nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = do(t, srv, http.MethodGet, base, tok, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = do(t, srv, http.MethodGet, "/api/v1/me/balance", tok, nil)
	require.Equal(t, http.StatusOK, code)
	var bal economy.Balance
	require.NoError(t, json.Unmarshal(env.Data, &bal))
	assert.Equal(t, 4, bal.Hearts)

	code, env = do(t, srv, http.MethodGet, "/api/v1/me/history", tok, nil)
	require.Equal(t, http.StatusOK, code)
	var hist []historyEntry
	require.NoError(t, json.Unmarshal(env.Data, &hist))
	require.NotEmpty(t, hist)
	assert.Equal(t, economy.TxIncorrectAnswer, hist[0].Type)
}

func TestSessionOwnership(t *testing.T) {
	srv := newTestServer(t)

	code, env := do(t, srv, http.MethodPost, "/api/v1/sessions", token(t, srv, "u1"), orchestrator.StartRequest{Mode: "unit", UnitID: "u-1"})
	require.Equal(t, http.StatusOK, code)
	var started viewData
	require.NoError(t, json.Unmarshal(env.Data, &started))

	code, _ = do(t, srv, http.MethodGet, "/api/v1/sessions/"+started.View.AttemptID, token(t, srv, "u2"), nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestValidationErrors(t *testing.T) {
	srv := newTestServer(t)
	tok := token(t, srv, "u1")

	code, env := do(t, srv, http.MethodPost, "/api/v1/sessions", tok, map[string]string{"mode": "weekly"})
	assert.Equal(t, http.StatusBadRequest, code)
	var fields map[string]string
	require.NoError(t, json.Unmarshal(env.Error, &fields))
	assert.Contains(t, fields, "mode")

	code, _ = do(t, srv, http.MethodPost, "/api/v1/sessions", tok, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, srv, http.MethodPost, "/api/v1/sessions", tok, orchestrator.StartRequest{Mode: "unit", UnitID: "missing"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, srv, http.MethodPost, "/api/v1/sessions", tok, orchestrator.StartRequest{Mode: "review"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, env = do(t, srv, http.MethodPost, "/api/v1/sessions/nope/reports", tok, reportRequest{QuestionID: "q1", Reason: "boring"})
	assert.Equal(t, http.StatusBadRequest, code)
	require.NoError(t, json.Unmarshal(env.Error, &fields))
	assert.Contains(t, fields, "reason")
}

func TestPurchaseWithoutFunds(t *testing.T) {
	srv := newTestServer(t)
	tok := token(t, srv, "u1")

	code, env := do(t, srv, http.MethodPost, "/api/v1/sessions", tok, orchestrator.StartRequest{Mode: "unit", UnitID: "u-1"})
	require.Equal(t, http.StatusOK, code)
	var started viewData
	require.NoError(t, json.Unmarshal(env.Data, &started))

	code, _ = do(t, srv, http.MethodPost, "/api/v1/sessions/"+started.View.AttemptID+"/hearts/purchase", tok, nil)
	assert.Equal(t, http.StatusConflict, code, "hearts are full")

	code, env = do(t, srv, http.MethodPost, "/api/v1/me/ad-reward", tok, nil)
	require.Equal(t, http.StatusOK, code)
	var bal economy.Balance
	require.NoError(t, json.Unmarshal(env.Data, &bal))
	assert.Equal(t, 10, bal.Zaps)

	code, env = do(t, srv, http.MethodGet, "/api/v1/leaderboard?limit=5", tok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(orchestrator.ErrSessionNotFound))
	assert.Equal(t, http.StatusPaymentRequired, statusFor(economy.ErrInsufficientFunds))
	assert.Equal(t, http.StatusTooManyRequests, statusFor(economy.ErrAdLimitReached))
	assert.Equal(t, http.StatusInternalServerError, statusFor(io.ErrUnexpectedEOF))
}
