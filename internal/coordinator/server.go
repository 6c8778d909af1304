package coordinator

import (
	"sync"

	"github.com/mark3labs/mcp-go/server"

	"github.com/AltairaLabs/chatpool/internal/coordinator/cache"
	"github.com/AltairaLabs/chatpool/internal/tools"
	"github.com/AltairaLabs/chatpool/internal/tools/handlers/message"
	"github.com/AltairaLabs/chatpool/internal/tools/handlers/session"
	"github.com/AltairaLabs/chatpool/internal/tools/handlers/stats"
	"github.com/AltairaLabs/chatpool/internal/types"
)

// MCPServer exposes the pool's caller surface as MCP tools
type MCPServer struct {
	server       *server.MCPServer
	toolRegistry *tools.ToolHandlerRegistry

	mu  sync.Mutex
	sse *server.SSEServer
}

// ServerConfig holds configuration for the MCP server
type ServerConfig struct {
	Name    string
	Version string
}

// NewMCPServer creates the MCP server and registers every admin tool.
// challenges may be nil.
func NewMCPServer(
	cfg ServerConfig,
	registry *SessionRegistry,
	metrics *MetricsAggregator,
	challenges cache.ChallengeReader,
	audit *AuditLogger,
) *MCPServer {
	mcpServer := server.NewMCPServer(
		cfg.Name,
		cfg.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	sessions := newRegistryAdapter(registry)
	auditAdapter := newAuditLoggerAdapter(audit)
	var challengeSource types.ChallengeSource
	if challenges != nil {
		challengeSource = &challengeAdapter{reader: challenges}
	}

	ms := &MCPServer{
		server: mcpServer,
		toolRegistry: tools.NewToolHandlerRegistry(
			session.NewConnectHandler(sessions, auditAdapter),
			session.NewDisconnectHandler(sessions, auditAdapter),
			session.NewPauseHandler(sessions, auditAdapter),
			session.NewResumeHandler(sessions, auditAdapter),
			session.NewStatusHandler(sessions, challengeSource),
			message.NewSendHandler(sessions, auditAdapter),
			stats.NewPoolHandler(&statsAdapter{metrics: metrics}),
		),
	}

	ms.registerTools()
	return ms
}

// registerTools adds every tool in the handler registry to the MCP server
func (ms *MCPServer) registerTools() {
	for _, tool := range ms.toolRegistry.Tools() {
		h, err := ms.toolRegistry.GetHandler(tool.Name)
		if err != nil {
			continue
		}
		ms.server.AddTool(tool, server.ToolHandlerFunc(h))
	}
}

// Server returns the underlying mcp-go server
func (ms *MCPServer) Server() *server.MCPServer {
	return ms.server
}
