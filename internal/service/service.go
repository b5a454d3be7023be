package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/livecapture/livecapture/internal/config"
	"github.com/livecapture/livecapture/internal/postprocess"
	"github.com/livecapture/livecapture/internal/mediainfo"
	"github.com/livecapture/livecapture/internal/recorder"
	"github.com/livecapture/livecapture/internal/source"
)

// Service wires a resolved configuration to the recorder and its
// collaborators.
type Service struct {
	cfg  *config.Config
	job  recorder.JobConfig
	src  source.Source
	post recorder.PostProcessor
	orch *recorder.Orchestrator
}

// Option customizes a Service
type Option func(*options)

type options struct {
	src      source.Source
	reader   recorder.ResolutionReader
	orchOpts []recorder.Option
}

// WithSource replaces the webcast client, mostly for tests.
func WithSource(src source.Source) Option {
	return func(o *options) { o.src = src }
}

// WithResolutionReader replaces ffprobe for resolution checks.
func WithResolutionReader(p recorder.ResolutionReader) Option {
	return func(o *options) { o.reader = p }
}

// WithOrchestratorOptions forwards options to the orchestrator.
func WithOrchestratorOptions(opts ...recorder.Option) Option {
	return func(o *options) { o.orchOpts = append(o.orchOpts, opts...) }
}

// New validates cfg and builds everything a run needs.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	job, err := cfg.ToJobConfig()
	if err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	src := o.src
	if src == nil {
		client, err := source.NewWebcastClient(source.Options{
			Cookies: cfg.Cookies,
			Proxy:   cfg.Proxy,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create webcast client: %w", err)
		}
		src = client
	}

	s := &Service{cfg: cfg, job: job, src: src}
	if p := NewPostProcessor(cfg); p != nil {
		s.post = p
	}

	orchOpts := o.orchOpts
	if cfg.ResolutionWatchEnabled() {
		reader := o.reader
		switch {
		case reader != nil:
		case mediainfo.Available():
			reader = mediainfo.FFprobe{}
		default:
			slog.Warn("ffprobe is not available, resolution change detection disabled")
		}
		if reader != nil {
			orchOpts = append(orchOpts, recorder.WithResolutionReader(reader))
		}
	}
	s.orch = recorder.NewOrchestrator(job, src, s.post, orchOpts...)
	return s, nil
}

// NewPostProcessor returns nil when neither remux nor upload is enabled.
func NewPostProcessor(cfg *config.Config) *postprocess.Pipeline {
	var remuxer *postprocess.Remuxer
	if cfg.PostProcess.Remux {
		remuxer = postprocess.NewRemuxer(cfg.PostProcess.FFmpegBinary)
	}

	var uploader *postprocess.Telegram
	if cfg.Upload.Enabled {
		uploader = &postprocess.Telegram{
			Token:  cfg.Upload.Telegram.BotToken,
			ChatID: cfg.Upload.Telegram.ChatID,
		}
	}

	if remuxer == nil && uploader == nil {
		return nil
	}
	return postprocess.NewPipeline(remuxer, uploader)
}

func (s *Service) GetConfig() *config.Config { return s.cfg }

// Orchestrator is exposed so that the status server can observe and stop
// the run.
func (s *Service) Orchestrator() *recorder.Orchestrator { return s.orch }

// Run records targets until every task ends or ctx is cancelled.
func (s *Service) Run(ctx context.Context, targets []recorder.Target) error {
	slog.Info("Starting recording service",
		"profile", s.cfg.Profile,
		"mode", s.job.Mode,
		"output", s.job.OutputDir,
		"post_process", s.post != nil)
	return s.orch.Run(ctx, targets)
}

// RecordingPaths tells where a recording of username started at would
// be written, before and after post-processing.
type RecordingPaths struct {
	Raw   string
	Final string
}

func (s *Service) RecordingPaths(username string, at time.Time, label string, multi bool) RecordingPaths {
	raw := recorder.OutputPath(s.job.OutputDir, username, at, label, multi, s.cfg.Output.Extension)
	final := raw
	if s.cfg.PostProcess.Remux {
		final = postprocess.RemuxedPath(raw)
	}
	return RecordingPaths{Raw: raw, Final: final}
}
