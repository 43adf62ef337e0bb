package process

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/config"
)

// Supervisor events.
const (
	EventStarted = "plugin.process.started"
	EventExited  = "plugin.process.exited"
)

// EventPublisher receives supervisor events.
type EventPublisher interface {
	PublishEvent(eventType string, payload any)
}

// HealthProbe checks a managed plugin by name. Returning nil for a plugin
// that is not yet reachable keeps a slow-starting process alive.
type HealthProbe func(ctx context.Context, name string) error

// Supervisor runs the gateway-managed plugin processes.
type Supervisor struct {
	managers []*Manager
	byName   map[string]*Manager

	mu     sync.Mutex
	events EventPublisher
	logger Logger

	onChange func()
}

// NewSupervisor builds one Manager per configured plugin. probe may be nil.
func NewSupervisor(plugins []config.ManagedPluginConfig, probe HealthProbe) (*Supervisor, error) {
	s := &Supervisor{
		byName: make(map[string]*Manager, len(plugins)),
		logger: noopLogger{},
	}

	for _, pc := range plugins {
		if pc.Name == "" || pc.Binary == "" {
			return nil, errors.New("process: managed plugin requires name and binary")
		}
		if _, dup := s.byName[pc.Name]; dup {
			return nil, fmt.Errorf("process: duplicate managed plugin %q", pc.Name)
		}

		name := pc.Name
		cfg := Config{
			Name:               name,
			Binary:             pc.Binary,
			Args:               pc.Args,
			Env:                pc.Env,
			RestartOnFailure:   pc.RestartOnFailure,
			RestartDelay:       time.Duration(pc.RestartDelay) * time.Second,
			MaxRestartAttempts: pc.MaxRestartAttempts,
			OnStart: func(pid int) {
				s.publish(EventStarted, map[string]any{"name": name, "pid": pid})
				s.changed()
			},
			OnStop: func(err error) {
				payload := map[string]any{"name": name}
				if err != nil {
					payload["error"] = err.Error()
				}
				s.publish(EventExited, payload)
				s.changed()
			},
		}
		if probe != nil {
			cfg.HealthCheck = func(ctx context.Context) error { return probe(ctx, name) }
		}

		m := NewManager(cfg)
		s.managers = append(s.managers, m)
		s.byName[name] = m
	}
	return s, nil
}

// SetLogger sets the logger for the supervisor and its managers. Call
// before Start.
func (s *Supervisor) SetLogger(logger Logger) {
	s.logger = logger
	for _, m := range s.managers {
		m.SetLogger(logger)
	}
}

// SetEventPublisher sets the sink for process start/exit events.
func (s *Supervisor) SetEventPublisher(events EventPublisher) {
	s.mu.Lock()
	s.events = events
	s.mu.Unlock()
}

// SetOnChange sets a callback run whenever a managed process starts or
// exits, typically used to invalidate plugin discovery.
func (s *Supervisor) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Supervisor) publish(eventType string, payload any) {
	s.mu.Lock()
	events := s.events
	s.mu.Unlock()
	if events != nil {
		events.PublishEvent(eventType, payload)
	}
}

func (s *Supervisor) changed() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Start launches every managed plugin in configuration order. A plugin that
// fails to start is logged and does not prevent the others; the joined
// errors are returned.
func (s *Supervisor) Start(ctx context.Context) error {
	var errs []error
	for _, m := range s.managers {
		if err := m.Start(ctx); err != nil {
			s.logger.Error("managed plugin failed to start", "name", m.Name(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stop stops every managed plugin in reverse order.
func (s *Supervisor) Stop() error {
	var errs []error
	for i := len(s.managers) - 1; i >= 0; i-- {
		if err := s.managers[i].Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of managed plugins.
func (s *Supervisor) Len() int {
	return len(s.managers)
}

// Get returns the manager for a plugin name.
func (s *Supervisor) Get(name string) (*Manager, bool) {
	m, ok := s.byName[name]
	return m, ok
}

// Stats returns per-process statistics in configuration order.
func (s *Supervisor) Stats() []Stats {
	stats := make([]Stats, 0, len(s.managers))
	for _, m := range s.managers {
		stats = append(stats, m.Stats())
	}
	return stats
}
