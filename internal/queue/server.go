package queue

import (
	"context"
	"fmt"

	"github.com/ad-tracker/video-catalog-go/pkg/logger"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Server wraps asynq server for processing tasks
type Server struct {
	asynqServer *asynq.Server
	mux         *asynq.ServeMux
	logger      *zap.Logger
}

// NewServer creates a new task processing server
func NewServer(redisAddr string, concurrency int, handler *TranscriptionHandler) (*Server, error) {
	// Parse Redis URL to extract connection details (host, password, db, TLS)
	redisOpt, err := ParseRedisURL(redisAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	log := logger.Named("worker")

	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				QueueTranscription: 1,
			},
			Logger: logger.Named("asynq").Sugar(),
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Error("task failed", zap.String("type", task.Type()), zap.Error(err))
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeTranscription, handler.HandleTranscriptionTask())

	return &Server{
		asynqServer: srv,
		mux:         mux,
		logger:      log,
	}, nil
}

// Start starts the server
func (s *Server) Start() error {
	s.logger.Info("starting task processing server")
	return s.asynqServer.Start(s.mux)
}

// Stop gracefully stops the server
func (s *Server) Stop() {
	s.logger.Info("shutting down task processing server")
	s.asynqServer.Shutdown()
}
