package retry

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/stanza/internal/adapters/logger" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/stanza/internal/core/ports"
)

// NodeID is the unique identifier for the retry runner Graft node.
const NodeID graft.ID = "engine.retry"

func init() {
	graft.Register(graft.Node[*Runner]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{logger.NodeID},
		Run: func(ctx context.Context) (*Runner, error) {
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			return NewRunner(log), nil
		},
	})
}
