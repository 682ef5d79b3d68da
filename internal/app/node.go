package app

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/stanza/internal/adapters/config"    //nolint:depguard // Wired in app layer
	"go.trai.ch/stanza/internal/adapters/fs"        //nolint:depguard // Wired in app layer
	"go.trai.ch/stanza/internal/adapters/logger"    //nolint:depguard // Wired in app layer
	"go.trai.ch/stanza/internal/adapters/shell"     //nolint:depguard // Wired in app layer
	"go.trai.ch/stanza/internal/adapters/sqlite"    //nolint:depguard // Wired in app layer
	"go.trai.ch/stanza/internal/adapters/telemetry" //nolint:depguard // Wired in app layer
	"go.trai.ch/stanza/internal/core/ports"
	"go.trai.ch/stanza/internal/engine/retry"
)

const (
	// AppNodeID is the unique identifier for the main App Graft node.
	AppNodeID graft.ID = "app.main"
	// ComponentsNodeID is the unique identifier for the App components Graft node.
	ComponentsNodeID graft.ID = "app.components"
)

func init() {
	// App Node
	graft.Register(graft.Node[*App]{
		ID:        AppNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			config.NodeID,
			shell.NodeID,
			fs.HasherNodeID,
			sqlite.NodeID,
			telemetry.TracerNodeID,
			logger.NodeID,
			retry.NodeID,
		},
		Run: runAppNode,
	})

	// Components Node
	graft.Register(graft.Node[*Components]{
		ID:        ComponentsNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			AppNodeID,
			logger.NodeID,
		},
		Run: runComponentsNode,
	})
}

func runAppNode(ctx context.Context) (*App, error) {
	loader, err := graft.Dep[ports.ConfigLoader](ctx)
	if err != nil {
		return nil, err
	}

	runner, err := graft.Dep[ports.CommandRunner](ctx)
	if err != nil {
		return nil, err
	}

	hasher, err := graft.Dep[ports.InputHasher](ctx)
	if err != nil {
		return nil, err
	}

	opener, err := graft.Dep[ports.StoreOpener](ctx)
	if err != nil {
		return nil, err
	}

	tracer, err := graft.Dep[ports.Tracer](ctx)
	if err != nil {
		return nil, err
	}

	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}

	retrier, err := graft.Dep[*retry.Runner](ctx)
	if err != nil {
		return nil, err
	}

	return New(loader, runner, hasher, opener, tracer, log).WithRetryRunner(retrier), nil
}

func runComponentsNode(ctx context.Context) (*Components, error) {
	app, err := graft.Dep[*App](ctx)
	if err != nil {
		return nil, err
	}

	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}

	return &Components{
		App:    app,
		Logger: log,
	}, nil
}
