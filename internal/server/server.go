package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/livecapture/livecapture/internal/config"
	"github.com/livecapture/livecapture/internal/recorder"
)

// Controller is the part of the orchestrator the server drives.
type Controller interface {
	Status() []recorder.TaskStatus
	Stop() bool
	Stopping() bool
}

// Server exposes recording status over HTTP while a run is in progress.
type Server struct {
	ctrl Controller
	cfg  *config.Config
	addr string
	http *http.Server
}

// StatusResponse represents the JSON response for status endpoint
type StatusResponse struct {
	Status    string                `json:"status"`
	Message   string                `json:"message,omitempty"`
	Profile   string                `json:"profile"`
	Mode      string                `json:"mode"`
	OutputDir string                `json:"output_dir"`
	Tasks     []recorder.TaskStatus `json:"tasks"`
}

// FileInfo contains information about a recording on disk
type FileInfo struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	SizeHuman    string    `json:"size_human"`
	ModTime      time.Time `json:"mod_time"`
	ModTimeHuman string    `json:"mod_time_human"`
	Raw          bool      `json:"raw"`
}

// FilesResponse represents the JSON response for files endpoint
type FilesResponse struct {
	Files           []FileInfo `json:"files"`
	TotalCount      int        `json:"total_count"`
	OutputDirectory string     `json:"output_directory"`
}

// New creates a status server listening on addr, e.g. ":8080".
func New(ctrl Controller, cfg *config.Config, addr string) *Server {
	s := &Server{ctrl: ctrl, cfg: cfg, addr: addr}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/stop", s.handleStop)
	mux.HandleFunc("/api/files", s.handleFiles)
	return mux
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	_, port, _ := net.SplitHostPort(s.addr)
	slog.Info("Starting status server",
		"addr", s.addr,
		"local_url", fmt.Sprintf("http://%s:%s/status", getLocalIP(), port))

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
}

// handleStatus returns the state of every recording task
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	tasks := s.ctrl.Status()
	status := overallStatus(tasks, s.ctrl.Stopping())

	response := StatusResponse{
		Status:    status,
		Message:   generateStatusMessage(status, tasks),
		Profile:   s.cfg.Profile,
		Mode:      s.cfg.Mode,
		OutputDir: s.cfg.Output.Directory,
		Tasks:     tasks,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleStop asks every task to wind down. Recordings are finalized by
// their tasks, the response does not wait for them.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	message := "Stop requested"
	if !s.ctrl.Stop() {
		message = "Stop already in progress"
	}
	slog.Info("Stop requested over HTTP", "remote", r.RemoteAddr)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"message": message,
	})
}

// handleFiles lists the recordings found under the output directory
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	outputDir := s.cfg.Output.Directory
	if outputDir == "" {
		s.sendErrorResponse(w, http.StatusInternalServerError, "No output directory configured")
		return
	}
	ext := "." + strings.TrimPrefix(strings.ToLower(s.cfg.Output.Extension), ".")

	var files []FileInfo
	err := filepath.WalkDir(outputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.ToLower(filepath.Ext(d.Name())) != ext {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			slog.Warn("Failed to get file info", "file", path, "error", err)
			return nil
		}

		files = append(files, FileInfo{
			Name:         d.Name(),
			Path:         path,
			Size:         info.Size(),
			SizeHuman:    humanize.Bytes(uint64(info.Size())),
			ModTime:      info.ModTime(),
			ModTimeHuman: info.ModTime().Format("2006-01-02 15:04:05"),
			Raw:          strings.HasSuffix(d.Name(), "_flv"+ext),
		})
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.sendErrorResponse(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to read output directory: %v", err),
			"operation", "list_files")
		return
	}

	// Sort files by modification time (newest first)
	sort.Slice(files, func(i, j int) bool {
		return files[i].ModTime.After(files[j].ModTime)
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(FilesResponse{
		Files:           files,
		TotalCount:      len(files),
		OutputDirectory: outputDir,
	})
}

func overallStatus(tasks []recorder.TaskStatus, stopping bool) string {
	active := 0
	for _, t := range tasks {
		if !t.Phase.Terminal() {
			active++
		}
	}
	switch {
	case active == 0:
		return "idle"
	case stopping:
		return "stopping"
	}
	for _, t := range tasks {
		if t.Phase == recorder.PhaseRecording {
			return "recording"
		}
	}
	return "waiting"
}

func generateStatusMessage(status string, tasks []recorder.TaskStatus) string {
	recording := 0
	for _, t := range tasks {
		if t.Phase == recorder.PhaseRecording {
			recording++
		}
	}
	switch status {
	case "recording":
		return fmt.Sprintf("Recording %d of %d streams", recording, len(tasks))
	case "waiting":
		return "Waiting for streams to go live"
	case "stopping":
		return "Stopping, finalizing recordings"
	default:
		return "No active recordings"
	}
}

// sendErrorResponse logs the error and sends a JSON error response to the client
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	// Log the error with structured context
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	slog.Error("Sending error response to client", logFields...)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   errorMsg,
	})
}

func getLocalIP() string {
	// Try to connect to a remote address to determine local IP
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
