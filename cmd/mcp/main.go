// hmsc MCP server - Exposes signing coordinator operations as MCP tools for LLMs
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/mcpserver"
)

func main() {
	cfg := mcpserver.Config{
		APIURL:         envOrDefault("HMSC_API_URL", "http://localhost:8080"),
		CoordinatorKey: os.Getenv("HMSC_COORDINATOR_KEY"),
	}

	s := mcpserver.NewMCPServer(cfg)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
