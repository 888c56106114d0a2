package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // Enable pprof
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/api"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/config"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/metrics"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/ppg"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/shm"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/internal/sink"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pulse-extractor/pkg/types"
)

var (
	// Command-line flags. Explicitly set flags override the config file.
	configPath  = flag.String("config", "", "YAML config file")
	shmName     = flag.String("shm", "", "Shared memory name")
	httpAddr    = flag.String("http", "", "HTTP server address")
	metricsAddr = flag.String("metrics", "", "Metrics server address")
	pprofAddr   = flag.String("pprof", "", "pprof server address")
	recordPath  = flag.String("record-path", "", "Recording output path")
	natsURL     = flag.String("nats", "", "NATS server URL (empty disables publishing)")
	shmWait     = flag.Duration("shm-wait", 30*time.Second, "How long to wait for the shared memory to appear")
	logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error, silent)")
	logColor    = flag.Bool("log-color", true, "Enable colored log output")
)

// Server is the pulse extraction service
type Server struct {
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	cfg        *config.Config
	metrics    *metrics.Metrics
	shmReader  *shm.Reader
	pipeline   *ppg.Pipeline
	params     *ppg.ParamStore
	buffer     *sink.Buffer
	recorder   *sink.Recorder
	stream     *sink.Broadcaster
	publisher  *sink.NATS
	httpServer *http.Server

	processChan chan *types.FrameDescriptor
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, cfg.Log.Color)
	defer logger.Sync()

	logger.Info("Main", "Pulse extractor starting...")
	logger.Info("Main", "Log level: %s", level)

	srv, err := NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Main", "Shutting down...")

	if err := srv.Shutdown(); err != nil {
		logger.Error("Main", "Error during shutdown: %v", err)
	}

	logger.Info("Main", "Server stopped")
}

// loadConfig reads the config file (if any) and applies the flags that were set
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "shm":
			cfg.Shm.Name = *shmName
		case "http":
			cfg.HTTP.Addr = *httpAddr
		case "metrics":
			cfg.HTTP.MetricsAddr = *metricsAddr
		case "pprof":
			cfg.HTTP.PprofAddr = *pprofAddr
		case "record-path":
			cfg.Recording.Path = *recordPath
		case "nats":
			cfg.NATS.URL = *natsURL
		case "log-level":
			cfg.Log.Level = *logLevel
		case "log-color":
			cfg.Log.Color = *logColor
		}
	})

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewServer wires the reader, pipeline, sinks and HTTP surfaces
func NewServer(cfg *config.Config) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())

	m := metrics.New()

	reader, err := shm.NewReader(cfg.Shm.Name, *shmWait)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create shared memory reader: %w", err)
	}

	buffer := sink.NewBuffer(sink.DefaultBufferSize)
	rec := sink.NewRecorder(cfg.Recording.Path)
	sinks := []sink.Sink{buffer, rec}

	pcfg := ppg.DefaultConfig()
	pcfg.Observer = m
	pipeline := ppg.New(pcfg)
	m.TrackPipeline(pipeline)

	stream := sink.NewBroadcaster(pipeline.SessionID())
	sinks = append(sinks, stream)

	var publisher *sink.NATS
	if cfg.NATS.URL != "" {
		nc, err := sink.Connect(cfg.NATS.URL)
		if err != nil {
			// Publishing is optional; the service keeps running without it
			logger.Warn("Main", "NATS unavailable, publishing disabled: %v", err)
		} else {
			publisher = sink.NewNATS(nc, cfg.NATS.Subject, pipeline.SessionID())
			sinks = append(sinks, publisher)
		}
	}
	pipeline.SetSink(sink.Fanout(sinks...))

	params := ppg.NewParamStore(cfg.Pipeline)

	srv := &Server{
		ctx:         ctx,
		cancel:      cancel,
		cfg:         cfg,
		metrics:     m,
		shmReader:   reader,
		pipeline:    pipeline,
		params:      params,
		buffer:      buffer,
		recorder:    rec,
		stream:      stream,
		publisher:   publisher,
		processChan: make(chan *types.FrameDescriptor, 2),
	}

	control := api.NewServer(pipeline, rec, params,
		api.WithBuffer(buffer),
		api.WithStream(stream),
		api.OnSessionChange(srv.onSessionChange),
	)
	if cfg.HTTP.Addr != "" {
		srv.httpServer = &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           control.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return srv, nil
}

func (s *Server) onSessionChange(id string) {
	if s.publisher != nil {
		s.publisher.SetSession(id)
	}
}

// Start starts all server components
func (s *Server) Start() error {
	logger.Info("Main", "Starting pulse extractor...")
	logger.Info("Main", "  Shared memory: %s", s.cfg.Shm.Name)
	logger.Info("Main", "  HTTP server: %s", s.cfg.HTTP.Addr)
	logger.Info("Main", "  Metrics server: %s", s.cfg.HTTP.MetricsAddr)
	logger.Info("Main", "  pprof server: %s", s.cfg.HTTP.PprofAddr)
	logger.Info("Main", "  Recording path: %s", s.cfg.Recording.Path)
	logger.Info("Main", "  Session: %s", s.pipeline.SessionID())

	if addr := s.cfg.HTTP.PprofAddr; addr != "" {
		go func() {
			logger.Info("Main", "Starting pprof server on %s", addr)
			if err := http.ListenAndServe(addr, nil); err != nil {
				logger.Warn("Main", "pprof server error: %v", err)
			}
		}()
	}

	if addr := s.cfg.HTTP.MetricsAddr; addr != "" {
		go func() {
			logger.Info("Main", "Starting metrics server on %s", addr)
			if err := s.metrics.StartServer(addr); err != nil {
				logger.Warn("Main", "Metrics server error: %v", err)
			}
		}()
	}

	if s.httpServer != nil {
		go func() {
			logger.Info("Main", "Starting HTTP server on %s", s.httpServer.Addr)
			if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Main", "HTTP server error: %v", err)
			}
		}()
	}

	s.wg.Add(2)
	go s.readFrames()
	go s.processFrames()

	logger.Info("Main", "Server started successfully")
	return nil
}

// readFrames polls shared memory for the newest frame
func (s *Server) readFrames() {
	defer s.wg.Done()

	interval := s.cfg.Shm.PollInterval()
	logger.Info("Reader", "Starting frame reading (polling every %s)", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			frame, err := s.shmReader.ReadLatest()
			if err != nil {
				s.metrics.ReadErrors.Add(1)
				logger.Warn("Reader", "Read error: %v", err)
				continue
			}
			if frame == nil {
				continue // No new frame
			}

			s.metrics.FramesRead.Add(1)

			if offerLatest(s.processChan, frame) {
				s.metrics.FramesDropped.Add(1)
			}
		}
	}
}

// offerLatest queues frame without blocking. When the queue is full the oldest
// queued frame is discarded so the processor always sees the newest one. It
// reports whether a frame was dropped.
func offerLatest(ch chan *types.FrameDescriptor, frame *types.FrameDescriptor) (dropped bool) {
	for {
		select {
		case ch <- frame:
			return dropped
		default:
		}
		select {
		case <-ch:
			dropped = true
		default:
			// Consumer emptied the queue meanwhile
		}
	}
}

// processFrames runs the pipeline on every frame handed over by the reader
func (s *Server) processFrames() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case frame := <-s.processChan:
			res := s.pipeline.Process(frame, s.params.Load())
			if res.Err != nil {
				logger.Debug("Processor", "Frame rejected: %v", res.Err)
			}

			status := s.recorder.Status()
			s.metrics.UpdateRecording(status.Recording, status.RowCount)
		}
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	s.cancel()
	s.wg.Wait()

	var errs []error
	if err := s.recorder.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.stream.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.shmReader.Close(); err != nil {
		errs = append(errs, err)
	}

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
