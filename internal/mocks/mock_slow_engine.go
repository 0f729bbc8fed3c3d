package mocks

import (
	"context"
	"time"

	"github.com/stargate-gql/stargate/pkg/engine"
)

// slowEngine is a proxy to the actual engine except that Execute is delayed by
// executeDelay. This allows simulating requests that time out. The delay
// honours context cancellation so that abandoned requests do not leak.
type slowEngine struct {
	executeDelay time.Duration
	engine.Engine
}

// NewMockSlowEngine returns a wrapper of an engine that adds an artificial delay to every execution.
func NewMockSlowEngine(e engine.Engine, executeDelay time.Duration) engine.Engine {
	return &slowEngine{
		executeDelay: executeDelay,
		Engine:       e,
	}
}

func (m *slowEngine) Execute(ctx context.Context, req *engine.Request) (*engine.Response, error) {
	select {
	case <-time.After(m.executeDelay):
	case <-ctx.Done():
		return nil, engine.NewTimeoutError(ctx.Err())
	}
	return m.Engine.Execute(ctx, req)
}
