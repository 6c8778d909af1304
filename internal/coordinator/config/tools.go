package config

// Tool defines the available admin tools in the coordinator
const (
	// ToolConnectUser connects (or reconnects) a user's session
	ToolConnectUser = "connect_user"
	// ToolDisconnectUser tears down a user's session
	ToolDisconnectUser = "disconnect_user"
	// ToolSendMessage sends a message through a user's session
	ToolSendMessage = "send_message"
	// ToolPauseUser suppresses automated responses for a user
	ToolPauseUser = "pause_user"
	// ToolResumeUser re-enables automated responses for a user
	ToolResumeUser = "resume_user"
	// ToolSessionStatus reports a user's session state and pending challenge
	ToolSessionStatus = "session_status"
	// ToolPoolStats reports aggregated pool metrics
	ToolPoolStats = "pool_stats"
)

// AllTools returns a slice of all available tool names
func AllTools() []string {
	return []string{
		ToolConnectUser,
		ToolDisconnectUser,
		ToolSendMessage,
		ToolPauseUser,
		ToolResumeUser,
		ToolSessionStatus,
		ToolPoolStats,
	}
}
