// Package mcp exposes the engine over the Model Context Protocol on stdio.
package mcp

import (
	"context"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"loreweaver/internal/pipeline"
	"loreweaver/internal/store"
	"loreweaver/internal/updater"
)

// SceneGenerator is the pipeline surface the server dispatches to.
type SceneGenerator interface {
	GenerateScene(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

type Server struct {
	generator  SceneGenerator
	updater    *updater.Updater
	structured store.Store
	mcp        *sdk.Server
}

func NewServer(generator SceneGenerator, up *updater.Updater, structured store.Store, version string) *Server {
	s := &Server{
		generator:  generator,
		updater:    up,
		structured: structured,
		mcp: sdk.NewServer(&sdk.Implementation{
			Name:    "loreweaver",
			Version: version,
		}, nil),
	}
	s.registerTools()
	return s
}

func (s *Server) Run(ctx context.Context, transport sdk.Transport) error {
	return s.mcp.Run(ctx, transport)
}
