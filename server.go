// Package infinispan runs the infinispan subsystem: it boots the management model from a
// subsystem document, keeps the cache services in line with it and exposes the management
// operations, the document and the cache metrics.
package infinispan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/rs/zerolog"

	"github.com/infinispan/infinispan-subsystem/config"
	"github.com/infinispan/infinispan-subsystem/internal/embedded"
	"github.com/infinispan/infinispan-subsystem/internal/metrics"
	"github.com/infinispan/infinispan-subsystem/internal/model"
	"github.com/infinispan/infinispan-subsystem/internal/msc"
	"github.com/infinispan/infinispan-subsystem/internal/naming"
	"github.com/infinispan/infinispan-subsystem/internal/parser"
	"github.com/infinispan/infinispan-subsystem/internal/schema"
	"github.com/infinispan/infinispan-subsystem/internal/subsystem"
)

var ErrNotBooted = errors.New("subsystem not booted")

type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	services   *msc.Container
	naming     *naming.Registry
	controller *subsystem.Controller
	metrics    *metrics.Exporter
}

// New installs the platform services declared by cfg. The data containers log through
// engineLogger, everything else through logger.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, engineLogger *slog.Logger) (*Server, error) {
	if engineLogger == nil {
		engineLogger = slog.Default()
	}
	services := msc.NewContainer(logger)
	store, err := subsystem.InstallPlatform(ctx, services, cfg)
	if err != nil {
		return nil, fmt.Errorf("install platform services: %w", err)
	}
	controller, err := subsystem.NewController(services, subsystem.Options{
		Logger:   logger,
		Resolver: schema.NewPropertyResolver(cfg.ResolverProperties()),
		Embedded: embedded.Options{
			NodeName:    cfg.Server.NodeName,
			Engine:      cfg.Engine,
			Logger:      engineLogger,
			StoreLogger: logger,
		},
	})
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:        cfg,
		logger:     logger,
		services:   services,
		naming:     store,
		controller: controller,
	}
	if s.metrics, err = metrics.NewExporter(controller, 0); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	return s, nil
}

// Boot reads a subsystem document and boots the model it describes.
func (s *Server) Boot(ctx context.Context, in io.Reader) error {
	ops, err := parser.NewReader(s.logger).Read(in)
	if err != nil {
		return err
	}
	return s.controller.Boot(ctx, ops)
}

// BootFile boots from the document at path.
func (s *Server) BootFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open subsystem document: %w", err)
	}
	defer f.Close()
	if err = s.Boot(ctx, f); err != nil {
		return fmt.Errorf("boot from %s: %w", path, err)
	}
	return nil
}

func (s *Server) Execute(ctx context.Context, op model.Operation) model.Result {
	return s.controller.Execute(ctx, op)
}

// WriteXML writes the current model as a subsystem document.
func (s *Server) WriteXML(w io.Writer) error {
	sub, ok := s.controller.Snapshot().Child(schema.SubsystemAddress.Last())
	if !ok {
		return ErrNotBooted
	}
	return parser.Write(w, sub)
}

func (s *Server) Metrics() *metrics.Exporter { return s.metrics }

// Naming is the JNDI store containers and caches are bound in.
func (s *Server) Naming() *naming.Registry { return s.naming }

func (s *Server) ReloadRequired() bool { return s.controller.ReloadRequired() }

// Close stops every service.
func (s *Server) Close(ctx context.Context) error {
	s.controller.Shutdown(ctx)
	return nil
}
