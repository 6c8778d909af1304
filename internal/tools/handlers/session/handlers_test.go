package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/AltairaLabs/chatpool/internal/types"
)

type mockSessions struct {
	sessions     map[string]*types.SessionView
	connectErr   error
	disconnected []string
}

func newMockSessions() *mockSessions {
	return &mockSessions{sessions: make(map[string]*types.SessionView)}
}

func (m *mockSessions) ConnectUser(ctx context.Context, userID string) (*types.SessionView, error) {
	if m.connectErr != nil {
		return nil, m.connectErr
	}
	view := &types.SessionView{UserID: userID, Tier: "free", HostingType: "shared", HostRef: "shared-1"}
	m.sessions[userID] = view
	return view, nil
}

func (m *mockSessions) DisconnectUser(ctx context.Context, userID string) error {
	m.disconnected = append(m.disconnected, userID)
	delete(m.sessions, userID)
	return nil
}

func (m *mockSessions) Pause(ctx context.Context, userID string) error {
	view, ok := m.sessions[userID]
	if !ok {
		return errors.New("session not found")
	}
	view.Paused = true
	return nil
}

func (m *mockSessions) Resume(ctx context.Context, userID string) error {
	view, ok := m.sessions[userID]
	if !ok {
		return errors.New("session not found")
	}
	view.Paused = false
	return nil
}

func (m *mockSessions) GetSession(userID string) (*types.SessionView, bool) {
	view, ok := m.sessions[userID]
	return view, ok
}

type mockAuditLogger struct {
	calls   []*types.AuditEntry
	results []*types.AuditEntry
}

func (m *mockAuditLogger) LogToolCall(ctx context.Context, entry *types.AuditEntry) {
	m.calls = append(m.calls, entry)
}

func (m *mockAuditLogger) LogToolResult(ctx context.Context, entry *types.AuditEntry) {
	m.results = append(m.results, entry)
}

type mockChallenges map[string]*types.Challenge

func (m mockChallenges) PendingChallenge(ctx context.Context, userID string) (*types.Challenge, bool) {
	c, ok := m[userID]
	return c, ok
}

func request(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil || len(result.Content) == 0 {
		t.Fatalf("expected content in result")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return text.Text
}

func TestConnectHandler(t *testing.T) {
	sessions := newMockSessions()
	audit := &mockAuditLogger{}
	handler := NewConnectHandler(sessions, audit)

	if handler.Tool().Name != "connect_user" {
		t.Fatalf("unexpected tool name %s", handler.Tool().Name)
	}

	result, err := handler.Handle(context.Background(), request("connect_user", map[string]interface{}{
		"user_id": "alice",
	}))
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success, got %s", resultText(t, result))
	}

	var resp ConnectResponse
	if err := json.Unmarshal([]byte(resultText(t, result)), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Session == nil || resp.Session.HostRef != "shared-1" {
		t.Fatalf("unexpected session in response: %+v", resp.Session)
	}
	if resp.Message != "user alice connected via shared (shared-1)" {
		t.Errorf("unexpected message %q", resp.Message)
	}

	if len(audit.calls) != 1 || audit.calls[0].ToolName != "connect_user" {
		t.Fatalf("expected one connect_user audit call, got %+v", audit.calls)
	}
	if len(audit.results) != 1 || audit.results[0].ErrorMsg != "" {
		t.Fatalf("expected one successful audit result, got %+v", audit.results)
	}
}

func TestConnectHandlerError(t *testing.T) {
	sessions := newMockSessions()
	sessions.connectErr = errors.New("capacity exceeded")
	audit := &mockAuditLogger{}
	handler := NewConnectHandler(sessions, audit)

	result, err := handler.Handle(context.Background(), request("connect_user", map[string]interface{}{
		"user_id": "alice",
	}))
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected error result")
	}
	if !strings.Contains(resultText(t, result), "capacity exceeded") {
		t.Errorf("expected capacity error, got %s", resultText(t, result))
	}
	if len(audit.results) != 1 || audit.results[0].ErrorMsg == "" {
		t.Fatalf("expected failed audit result, got %+v", audit.results)
	}
}

func TestConnectHandlerMissingUser(t *testing.T) {
	handler := NewConnectHandler(newMockSessions(), &mockAuditLogger{})

	result, err := handler.Handle(context.Background(), request("connect_user", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected error result for missing user_id")
	}
}

func TestDisconnectHandler(t *testing.T) {
	sessions := newMockSessions()
	audit := &mockAuditLogger{}
	handler := NewDisconnectHandler(sessions, audit)

	result, err := handler.Handle(context.Background(), request("disconnect_user", map[string]interface{}{
		"user_id": "ghost",
	}))
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success for unknown user")
	}
	if resultText(t, result) != "user ghost disconnected" {
		t.Errorf("unexpected text %q", resultText(t, result))
	}
	if len(sessions.disconnected) != 1 || sessions.disconnected[0] != "ghost" {
		t.Errorf("expected disconnect of ghost, got %v", sessions.disconnected)
	}
}

func TestPauseAndResumeHandlers(t *testing.T) {
	sessions := newMockSessions()
	if _, err := sessions.ConnectUser(context.Background(), "bob"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	audit := &mockAuditLogger{}
	pause := NewPauseHandler(sessions, audit)
	resume := NewResumeHandler(sessions, audit)

	if pause.Tool().Name != "pause_user" || resume.Tool().Name != "resume_user" {
		t.Fatalf("unexpected tool names %s, %s", pause.Tool().Name, resume.Tool().Name)
	}

	result, err := pause.Handle(context.Background(), request("pause_user", map[string]interface{}{"user_id": "bob"}))
	if err != nil || result.IsError {
		t.Fatalf("pause failed: %v %v", err, result)
	}
	if !sessions.sessions["bob"].Paused {
		t.Fatalf("expected bob to be paused")
	}

	result, err = resume.Handle(context.Background(), request("resume_user", map[string]interface{}{"user_id": "bob"}))
	if err != nil || result.IsError {
		t.Fatalf("resume failed: %v %v", err, result)
	}
	if sessions.sessions["bob"].Paused {
		t.Fatalf("expected bob to be resumed")
	}

	var resp PauseResponse
	if err := json.Unmarshal([]byte(resultText(t, result)), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Paused || resp.UserID != "bob" {
		t.Errorf("unexpected resume response %+v", resp)
	}
	if len(audit.calls) != 2 || audit.calls[0].ToolName != "pause_user" || audit.calls[1].ToolName != "resume_user" {
		t.Errorf("unexpected audit calls %+v", audit.calls)
	}
}

func TestPauseHandlerUnknownUser(t *testing.T) {
	handler := NewPauseHandler(newMockSessions(), &mockAuditLogger{})

	result, err := handler.Handle(context.Background(), request("pause_user", map[string]interface{}{"user_id": "nobody"}))
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected error result for unknown user")
	}
}

func TestStatusHandlerWithChallenge(t *testing.T) {
	sessions := newMockSessions()
	if _, err := sessions.ConnectUser(context.Background(), "carol"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	challenges := mockChallenges{
		"carol": {Payload: "qr-payload", ExpiresAt: time.Now().Add(time.Minute)},
	}
	handler := NewStatusHandler(sessions, challenges)

	result, err := handler.Handle(context.Background(), request("session_status", map[string]interface{}{"user_id": "carol"}))
	if err != nil || result.IsError {
		t.Fatalf("status failed: %v %v", err, result)
	}

	var resp types.StatusResponse
	if err := json.Unmarshal([]byte(resultText(t, result)), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Session == nil || resp.Session.UserID != "carol" {
		t.Fatalf("unexpected session %+v", resp.Session)
	}
	if resp.Challenge == nil || resp.Challenge.Payload != "qr-payload" {
		t.Fatalf("expected pending challenge, got %+v", resp.Challenge)
	}
}

func TestStatusHandlerSkipsChallengeWhenAuthenticated(t *testing.T) {
	sessions := newMockSessions()
	view, _ := sessions.ConnectUser(context.Background(), "dave")
	view.Authenticated = true
	handler := NewStatusHandler(sessions, mockChallenges{"dave": {Payload: "stale"}})

	result, err := handler.Handle(context.Background(), request("session_status", map[string]interface{}{"user_id": "dave"}))
	if err != nil || result.IsError {
		t.Fatalf("status failed: %v %v", err, result)
	}
	if strings.Contains(resultText(t, result), "stale") {
		t.Errorf("expected no challenge for authenticated session, got %s", resultText(t, result))
	}
}

func TestStatusHandlerUnknownUser(t *testing.T) {
	handler := NewStatusHandler(newMockSessions(), nil)

	result, err := handler.Handle(context.Background(), request("session_status", map[string]interface{}{"user_id": "erin"}))
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected error result")
	}
	if resultText(t, result) != "no session for user erin" {
		t.Errorf("unexpected text %q", resultText(t, result))
	}
}
