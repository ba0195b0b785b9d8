package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/dripline/internal/errors"
	"github.com/unclebandit/dripline/internal/handler"
	"github.com/unclebandit/dripline/internal/model"
	"github.com/unclebandit/dripline/internal/queue"
)

var ws = uuid.MustParse("0b7c6a3e-5d0f-4b43-9d7a-2c1e8f9a6b55")

type fakeReplies struct {
	mu  sync.Mutex
	got []model.InboundReply
	err error
}

func (f *fakeReplies) HandleReply(_ context.Context, r model.InboundReply) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, r)
	return f.err == nil, f.err
}

func (f *fakeReplies) calls() []model.InboundReply {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.InboundReply(nil), f.got...)
}

func post(h http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func router(h *handler.ReplyHandler) http.Handler {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestReceiveReply_Inline(t *testing.T) {
	replies := &fakeReplies{}
	r := router(handler.NewReplyHandler(replies, nil, zap.NewNop()))

	w := post(r, "/workspaces/"+ws.String()+"/replies", `{"address":"ada@example.com","body":"Unsubscribe"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"processed":true}`, w.Body.String())

	got := replies.calls()
	require.Len(t, got, 1)
	assert.Equal(t, ws, got[0].WorkspaceID)
	assert.Equal(t, "Unsubscribe", got[0].Body)
}

func TestReceiveReply_Errors(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
		err  error
		want int
	}{
		{"bad workspace", "/workspaces/nope/replies", `{"address":"a@b.c"}`, nil, http.StatusBadRequest},
		{"bad json", "/workspaces/" + ws.String() + "/replies", `{`, nil, http.StatusBadRequest},
		{"missing address", "/workspaces/" + ws.String() + "/replies", `{"body":"hi"}`, nil, http.StatusBadRequest},
		{"unknown contact", "/workspaces/" + ws.String() + "/replies", `{"address":"x@y.z"}`, appErrors.NewContactNotFound("x@y.z"), http.StatusOK},
		{"storage failure", "/workspaces/" + ws.String() + "/replies", `{"address":"x@y.z"}`, errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := router(handler.NewReplyHandler(&fakeReplies{err: tt.err}, nil, zap.NewNop()))
			w := post(r, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestReceiveReply_Async(t *testing.T) {
	q := queue.NewInMemoryQueue(zap.NewNop())
	defer q.Close()
	replies := &fakeReplies{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, queue.StartReplySubscriber(ctx, q, replies, zap.NewNop()))

	r := router(handler.NewReplyHandler(replies, q, zap.NewNop()))
	w := post(r, "/workspaces/"+ws.String()+"/replies?async=true", `{"address":"ada@example.com","body":"call me"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	var body map[string]bool
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body["queued"])

	require.Eventually(t, func() bool { return len(replies.calls()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, ws, replies.calls()[0].WorkspaceID)
}
