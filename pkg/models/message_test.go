package models

import (
	"encoding/json"
	"testing"
)

func TestPlatform_Constants(t *testing.T) {
	tests := []struct {
		constant Platform
		expected string
	}{
		{PlatformTelegram, "telegram"},
		{PlatformDiscord, "discord"},
		{PlatformSlack, "slack"},
	}

	for _, tt := range tests {
		t.Run(string(tt.constant), func(t *testing.T) {
			if string(tt.constant) != tt.expected {
				t.Errorf("constant = %q, want %q", tt.constant, tt.expected)
			}
		})
	}
}

func TestAssistantMessage_PreservesBlockOrder(t *testing.T) {
	blocks := []AssistantBlock{
		TextBlock("let me check that"),
		ToolUseBlock("call-1", "read_file", json.RawMessage(`{"path":"/tmp/a.txt"}`)),
		TextBlock("done"),
	}
	msg := AssistantMessage(blocks)

	if msg.Role != RoleAssistant {
		t.Fatalf("Role = %v, want %v", msg.Role, RoleAssistant)
	}
	if len(msg.Blocks) != 3 {
		t.Fatalf("Blocks length = %d, want 3", len(msg.Blocks))
	}
	if msg.Blocks[0].Kind != BlockText || msg.Blocks[1].Kind != BlockToolUse || msg.Blocks[2].Kind != BlockText {
		t.Fatalf("block kinds out of order: %+v", msg.Blocks)
	}
	ids := msg.ToolUseIDs()
	if len(ids) != 1 || ids[0] != "call-1" {
		t.Fatalf("ToolUseIDs = %v, want [call-1]", ids)
	}
}

func TestMessage_JSONRoundTrip(t *testing.T) {
	original := AssistantMessage([]AssistantBlock{
		TextBlock("hello"),
		ToolUseBlock("tc-1", "search", json.RawMessage(`{"q":"test"}`)),
	})
	original.ID = "msg-123"

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	if decoded.ID != original.ID {
		t.Errorf("ID = %q, want %q", decoded.ID, original.ID)
	}
	if len(decoded.Blocks) != 2 {
		t.Errorf("Blocks length = %d, want 2", len(decoded.Blocks))
	}
	if decoded.Blocks[1].ToolUseID != "tc-1" {
		t.Errorf("ToolUseID = %q, want tc-1", decoded.Blocks[1].ToolUseID)
	}
}

func TestToolResult_Struct(t *testing.T) {
	tr := ToolResult{ToolCallID: "tc-123", Content: "search results", IsError: false}
	if tr.ToolCallID != "tc-123" {
		t.Errorf("ToolCallID = %q, want %q", tr.ToolCallID, "tc-123")
	}
	if tr.IsError {
		t.Error("IsError should be false")
	}

	trError := ToolResult{ToolCallID: "tc-456", Content: "boom", IsError: true}
	if !trError.IsError {
		t.Error("IsError should be true")
	}
}

func TestConversationKey_String(t *testing.T) {
	key := ConversationKey{Platform: PlatformSlack, ChatID: "C123"}
	if key.String() != "slack:C123" {
		t.Errorf("String() = %q, want %q", key.String(), "slack:C123")
	}
}

func TestUserMessage_AndToolResultMessage(t *testing.T) {
	u := UserMessage("hi")
	if u.Role != RoleUser || u.Text != "hi" {
		t.Fatalf("unexpected user message: %+v", u)
	}

	tr := ToolResultMessage([]ToolResult{{ToolCallID: "tc-1", Content: "ok"}})
	if tr.Role != RoleTool || len(tr.ToolResults) != 1 {
		t.Fatalf("unexpected tool result message: %+v", tr)
	}
}
