package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livecapture/livecapture/internal/config"
	"github.com/livecapture/livecapture/internal/recorder"
)

type fakeController struct {
	mu       sync.Mutex
	tasks    []recorder.TaskStatus
	stopping bool
}

func (f *fakeController) Status() []recorder.TaskStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tasks
}

func (f *fakeController) Stop() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	first := !f.stopping
	f.stopping = true
	return first
}

func (f *fakeController) Stopping() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopping
}

func newTestServer(t *testing.T, ctrl Controller) (*httptest.Server, *config.Config) {
	t.Helper()
	cfg := config.Default()
	cfg.Output.Directory = t.TempDir()
	srv := httptest.NewServer(New(ctrl, cfg, ":0").Handler())
	t.Cleanup(srv.Close)
	return srv, cfg
}

func TestStatus(t *testing.T) {
	ctrl := &fakeController{tasks: []recorder.TaskStatus{
		{Label: "Stream-1-alice", Phase: recorder.PhaseRecording, BytesWritten: 1024},
		{Label: "Stream-2-bob", Phase: recorder.PhaseWaitingRetry},
	}}
	srv, _ := newTestServer(t, ctrl)

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "recording", body.Status)
	assert.Equal(t, "Recording 1 of 2 streams", body.Message)
	assert.Equal(t, "default", body.Profile)
	require.Len(t, body.Tasks, 2)
	assert.Equal(t, int64(1024), body.Tasks[0].BytesWritten)
}

func TestStatus_MethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, &fakeController{})

	resp, err := http.Post(srv.URL+"/status", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStop(t *testing.T) {
	ctrl := &fakeController{tasks: []recorder.TaskStatus{{Phase: recorder.PhaseWaitingRetry}}}
	srv, _ := newTestServer(t, ctrl)

	resp, err := http.Get(srv.URL + "/stop")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.False(t, ctrl.Stopping())

	for _, want := range []string{"Stop requested", "Stop already in progress"} {
		resp, err := http.Post(srv.URL+"/stop", "application/json", nil)
		require.NoError(t, err)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		resp.Body.Close()
		assert.Equal(t, want, body["message"])
	}
	assert.True(t, ctrl.Stopping())
	assert.Equal(t, "stopping", overallStatus(ctrl.Status(), true))
}

func TestFiles(t *testing.T) {
	srv, cfg := newTestServer(t, &fakeController{})

	userDir := filepath.Join(cfg.Output.Directory, "alice")
	require.NoError(t, os.MkdirAll(userDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "TK_alice_2024.03.09_21-04-05_flv.mp4"), make([]byte, 2048), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "TK_alice_2024.03.08_21-04-05.mp4"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "notes.txt"), []byte("x"), 0644))

	resp, err := http.Get(srv.URL + "/api/files")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body FilesResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 2, body.TotalCount)

	raw := 0
	for _, f := range body.Files {
		if f.Raw {
			raw++
			assert.Equal(t, "2.0 kB", f.SizeHuman)
		}
	}
	assert.Equal(t, 1, raw)
}

func TestOverallStatus(t *testing.T) {
	assert.Equal(t, "idle", overallStatus(nil, false))
	assert.Equal(t, "idle", overallStatus([]recorder.TaskStatus{{Phase: recorder.PhaseFinished}}, true))
	assert.Equal(t, "waiting", overallStatus([]recorder.TaskStatus{{Phase: recorder.PhaseCheckLive}}, false))
}
