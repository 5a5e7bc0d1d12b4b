// Command mcp-audit runs the MCP tool server for audit workflow operations
// over stdio.
package main

import (
	"context"
	"log"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.temporal.io/sdk/client"

	"github.com/syncshop/catalog-audit/internal/config"
	"github.com/syncshop/catalog-audit/internal/mcpserver"
	"github.com/syncshop/catalog-audit/internal/policy"
	"github.com/syncshop/catalog-audit/internal/temporal/querier"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	kinds, err := policy.ParseKinds(cfg.AutoFixKinds)
	if err != nil {
		log.Fatalf("invalid AUDIT_AUTO_FIX_KINDS: %v", err)
	}

	c, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		log.Fatalf("unable to create Temporal client: %v", err)
	}
	defer c.Close()

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "catalog-audit",
		Version: "v1.0.0",
	}, nil)
	mcpserver.RegisterTools(server, querier.New(c), mcpserver.Defaults{
		AutoFixKinds:     kinds,
		MaxPriceDeltaPct: cfg.MaxAutoPriceDeltaPct,
	})

	if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		log.Fatalf("mcp server error: %v", err)
	}
}
