package msc

import (
	"context"
)

// Service is a unit with a lifecycle managed by the container. Start and Stop are called with the
// container lock held and must not call back into the container; everything a service needs is
// injected before Start.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context)
	Value() any
}

// Mode controls when a service is started.
type Mode string

const (
	// Passive services start as soon as their dependencies are up and do not demand them.
	Passive Mode = "PASSIVE"
	// OnDemand services start while demanded by a dependent and stop once no longer demanded.
	OnDemand Mode = "ON_DEMAND"
	// Lazy services start on first demand and then stay up.
	Lazy Mode = "LAZY"
	// Active services always start and demand their dependencies.
	Active Mode = "ACTIVE"
	Never  Mode = "NEVER"
)

type State string

const (
	StateDown        State = "DOWN"
	StateUp          State = "UP"
	StateStartFailed State = "START_FAILED"
	StateRemoved     State = "REMOVED"
)

type EventType string

const (
	EventInstalled   EventType = "installed"
	EventStarted     EventType = "started"
	EventStartFailed EventType = "start-failed"
	EventStopped     EventType = "stopped"
	EventRemoved     EventType = "removed"
)

// Event is published to listeners on each lifecycle transition.
type Event struct {
	Type EventType
	Name ServiceName
	Err  error
}

// ValueService exposes a constant value.
type ValueService struct {
	V any
}

func NewValueService(v any) *ValueService { return &ValueService{V: v} }

func (s *ValueService) Start(context.Context) error { return nil }
func (s *ValueService) Stop(context.Context)        {}
func (s *ValueService) Value() any                  { return s.V }

// FuncService adapts start and stop functions. The value is whatever start returned.
type FuncService struct {
	StartFn func(ctx context.Context) (any, error)
	StopFn  func(ctx context.Context, v any)
	value   any
}

func (s *FuncService) Start(ctx context.Context) error {
	if s.StartFn == nil {
		return nil
	}
	v, err := s.StartFn(ctx)
	if err != nil {
		return err
	}
	s.value = v
	return nil
}

func (s *FuncService) Stop(ctx context.Context) {
	if s.StopFn != nil {
		s.StopFn(ctx, s.value)
	}
	s.value = nil
}

func (s *FuncService) Value() any { return s.value }
