package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/audit"
	"github.com/nerrad567/gray-logic-gateway/internal/command"
	"github.com/nerrad567/gray-logic-gateway/internal/directory"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-gateway/internal/plugin"
	"github.com/nerrad567/gray-logic-gateway/internal/process"
	"github.com/nerrad567/gray-logic-gateway/internal/transaction"
)

const gracefulShutdownTimeout = 10 * time.Second

// Commands is the command surface the handlers call. *command.Router
// implements it.
type Commands interface {
	Read(ctx context.Context, rack, board, device string) (*command.ReadResult, error)
	Write(ctx context.Context, rack, board, device string, req command.WriteRequest) (*command.WriteResult, error)
	CheckTransaction(ctx context.Context, id string) (*command.TransactionResult, error)
	Transactions() []*transaction.Entry
	Scan(ctx context.Context, rack, board string, force bool) (*directory.Tree, error)
	RackInfo(ctx context.Context, rack string) (*command.RackInfo, error)
	BoardInfo(ctx context.Context, rack, board string) (*command.BoardInfo, error)
	DeviceInfo(ctx context.Context, rack, board, device string) (*command.DeviceInfo, error)
	Plugins(ctx context.Context) ([]plugin.Info, error)
	PluginHealth(ctx context.Context) (*command.HealthSummary, error)
	RegisterPlugin(ctx context.Context, addr plugin.Address) (*plugin.Info, error)
}

// ProcessStats reports managed plugin processes. *process.Supervisor
// implements it.
type ProcessStats interface {
	Stats() []process.Stats
}

// VersionInfo is returned by GET /version.
type VersionInfo struct {
	Version    string `json:"version"`
	APIVersion string `json:"api_version"`
	Commit     string `json:"commit,omitempty"`
	BuildDate  string `json:"build_date,omitempty"`
}

// Deps holds the server's collaborators. Commands and Logger are required.
type Deps struct {
	Config    *config.Config
	Logger    *logging.Logger
	Commands  Commands
	Audit     audit.Repository // optional
	Processes ProcessStats     // optional
	Hub       *Hub             // optional, created when nil
	Version   VersionInfo
}

// Server is the HTTP API server.
type Server struct {
	cfg       *config.Config
	logger    *logging.Logger
	commands  Commands
	audit     audit.Repository
	processes ProcessStats
	version   VersionInfo
	hub       *Hub
	server    *http.Server
	cancel    context.CancelFunc
}

// New validates deps. The server does not listen until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Commands == nil {
		return nil, errors.New("command router is required")
	}
	if deps.Config == nil {
		return nil, errors.New("config is required")
	}

	hub := deps.Hub
	if hub == nil {
		hub = NewHub(deps.Config.WebSocket, deps.Logger)
	}
	version := deps.Version
	if version.APIVersion == "" {
		version.APIVersion = APIVersion
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		commands:  deps.Commands,
		audit:     deps.Audit,
		processes: deps.Processes,
		version:   version,
		hub:       hub,
	}, nil
}

// Hub returns the event hub, which implements PublishEvent.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the full route tree.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start runs the hub and begins serving in the background.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	api := s.cfg.API
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", api.Host, api.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	go func() {
		var err error
		if api.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", s.server.Addr, "cert", api.TLS.CertFile)
			err = s.server.ListenAndServeTLS(api.TLS.CertFile, api.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Close stops the hub and shuts the listener down, waiting up to 10s for
// in-flight requests.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
