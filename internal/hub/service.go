package hub

import (
	"context"
	"errors"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/scpibridge/internal/dispatch"
	"github.com/danmuck/scpibridge/internal/protocol/session"
	"github.com/danmuck/scpibridge/internal/transport"
	"github.com/danmuck/scpibridge/internal/visa"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var ErrInvalidHubID = errors.New("hub: invalid hub id")

// ServiceConfig configures the hub process.
type ServiceConfig struct {
	HubID             string
	Transport         transport.Config
	AdminListenAddr   string
	CORSOrigins       []string
	Session           session.Config
	Timing            dispatch.Timing
	ValidateAddresses bool
	Instruments       visa.ManagerConfig
}

// Hub service defaults: RFCOMM channel 4 on any adapter, no admin surface.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		HubID:             "hub.local",
		Transport:         transport.Config{Kind: transport.KindRFCOMM, Channel: 4},
		AdminListenAddr:   "",
		Session:           session.DefaultConfig(),
		Timing:            dispatch.DefaultTiming(),
		ValidateAddresses: true,
	}
}

// Service runs the session loop and the optional admin surface.
type Service struct {
	cfg  ServiceConfig
	rm   visa.ResourceManager
	loop *Loop
}

func NewService() *Service {
	return NewServiceWithConfig(DefaultServiceConfig())
}

// NewServiceWithConfig builds the default resource manager from cfg.Instruments.
func NewServiceWithConfig(cfg ServiceConfig) *Service {
	return NewServiceWithManager(cfg, visa.NewManager(cfg.Instruments))
}

// NewServiceWithManager injects the resource manager shared by the
// directory and the dispatcher.
func NewServiceWithManager(cfg ServiceConfig, rm visa.ResourceManager) *Service {
	cfg.Session = cfg.Session.WithDefaults()
	return &Service{
		cfg: cfg,
		rm:  rm,
		loop: NewLoop(rm, LoopConfig{
			Session:           cfg.Session,
			Timing:            cfg.Timing,
			ValidateAddresses: cfg.ValidateAddresses,
		}),
	}
}

// Run blocks until SIGINT or SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.RunContext(ctx)
}

// RunContext binds the transport and serves until ctx ends. Only startup
// failures are returned.
func (s *Service) RunContext(ctx context.Context) error {
	if strings.TrimSpace(s.cfg.HubID) == "" {
		return ErrInvalidHubID
	}
	ln, err := transport.Listen(s.cfg.Transport)
	if err != nil {
		return err
	}
	log.Info().
		Str("hub_id", s.cfg.HubID).
		Str("transport", s.cfg.Transport.Kind).
		Str("addr", ln.Addr().String()).
		Bool("validate_addresses", s.cfg.ValidateAddresses).
		Msg("hub.Service.Run ready")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.loop.Run(gctx, ln)
	})
	if strings.TrimSpace(s.cfg.AdminListenAddr) != "" {
		g.Go(func() error {
			return s.serveAdmin(gctx, s.cfg.AdminListenAddr)
		})
	}
	return g.Wait()
}

func (s *Service) Loop() *Loop {
	return s.loop
}

func (s *Service) Config() ServiceConfig {
	return s.cfg
}
