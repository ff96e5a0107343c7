package app

import (
	"net"
	"os"
	"sync"

	"github.com/NodePath81/hyperspeed/internal/config"
	"github.com/NodePath81/hyperspeed/internal/util"
)

// Supervisor loads configuration and (re)starts the server Runtime.
type Supervisor struct {
	configPath string
	logger     util.Logger
	mu         sync.Mutex
	runtime    *Runtime
}

func NewSupervisor(configPath string, logger util.Logger) *Supervisor {
	return &Supervisor{
		configPath: configPath,
		logger:     logger,
	}
}

// LoadConfig reads the supervisor's config file, or the defaults when no
// path is set, and applies environment overrides.
func LoadConfig(path string, logger util.Logger) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.LoadConfig(path); err != nil {
			return config.Config{}, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		logger.Warn("ignoring environment override", "error", err)
	}
	return cfg, nil
}

func (s *Supervisor) Start() error {
	cfg, err := LoadConfig(s.configPath, s.logger)
	if err != nil {
		return err
	}
	runtime, err := NewRuntime(cfg, s.logger)
	if err != nil {
		return err
	}
	if err := runtime.Start(); err != nil {
		runtime.Stop()
		return err
	}
	s.mu.Lock()
	s.runtime = runtime
	s.mu.Unlock()
	return nil
}

func (s *Supervisor) Restart() error {
	s.mu.Lock()
	current := s.runtime
	s.runtime = nil
	s.mu.Unlock()

	if current != nil {
		current.Stop()
	}
	return s.Start()
}

func (s *Supervisor) Stop() {
	s.mu.Lock()
	current := s.runtime
	s.runtime = nil
	s.mu.Unlock()
	if current != nil {
		current.Stop()
	}
}

// Addr returns the running server's address, or nil when stopped.
func (s *Supervisor) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runtime == nil {
		return nil
	}
	return s.runtime.Addr()
}
