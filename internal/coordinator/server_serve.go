package coordinator

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"
)

// Serve starts the MCP server with stdio transport
func (ms *MCPServer) Serve() error {
	return server.ServeStdio(ms.server)
}

// ServeContext serves stdio until ctx is done
func (ms *MCPServer) ServeContext(ctx context.Context, logger *slog.Logger) error {
	logger.Info("Starting MCP server with stdio transport")
	stdio := server.NewStdioServer(ms.server)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// ServeHTTP starts the MCP server with HTTP/SSE transport on the specified address
func (ms *MCPServer) ServeHTTP(addr string) error {
	sseServer := server.NewSSEServer(ms.server,
		server.WithBaseURL("http://"+addr),
		server.WithStaticBasePath("/mcp"),
	)
	ms.mu.Lock()
	ms.sse = sseServer
	ms.mu.Unlock()
	return sseServer.Start(addr)
}

// ServeHTTPWithLogger starts the MCP server with HTTP/SSE transport and custom logger
func (ms *MCPServer) ServeHTTPWithLogger(addr string, logger *slog.Logger) error {
	logger.Info("Starting MCP server with HTTP/SSE transport", "address", addr, "base_path", "/mcp")
	return ms.ServeHTTP(addr)
}

// Shutdown stops the HTTP/SSE transport if it is running
func (ms *MCPServer) Shutdown(ctx context.Context) error {
	ms.mu.Lock()
	sse := ms.sse
	ms.mu.Unlock()
	if sse == nil {
		return nil
	}
	return sse.Shutdown(ctx)
}
