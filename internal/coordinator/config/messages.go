package config

// Log and tool messages used throughout the coordinator
const (
	// MsgSharedChallenge is logged when one auth challenge reaches several tenants
	MsgSharedChallenge = "auth challenge delivered to co-tenants of a shared slot"
	// MsgUnknownUser is returned by tools when a user has no session
	MsgUnknownUser = "no session for user %s"
	// MsgConnected is the tool result for a successful connect
	MsgConnected = "user %s connected via %s (%s)"
	// MsgDisconnected is the tool result for a disconnect
	MsgDisconnected = "user %s disconnected"
)
