package jobs

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type inspectorStub struct {
	info *asynq.QueueInfo
	err  error
}

func (s inspectorStub) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func getHealth(t *testing.T, inspector QueueInspector) (*httptest.ResponseRecorder, QueueHealth) {
	t.Helper()
	r := chi.NewRouter()
	NewHandler(inspector, nil).MountRoutes(r)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	var body QueueHealth
	if rr.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	}
	return rr, body
}

func TestHealthReportsQueueDepth(t *testing.T) {
	rr, body := getHealth(t, inspectorStub{info: &asynq.QueueInfo{Queue: QueueDefault, Size: 4, Pending: 3, Retry: 1}})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, QueueHealth{Queue: QueueDefault, Size: 4, Pending: 3, Retry: 1}, body)
}

func TestHealthMissingQueueIsEmpty(t *testing.T) {
	rr, body := getHealth(t, inspectorStub{err: asynq.ErrQueueNotFound})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, QueueHealth{Queue: QueueDefault}, body)

	rr, body = getHealth(t, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, QueueDefault, body.Queue)
}

func TestHealthBackendDown(t *testing.T) {
	rr, _ := getHealth(t, inspectorStub{err: errors.New("dial tcp: refused")})
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"}})
	require.Error(t, err)
}
