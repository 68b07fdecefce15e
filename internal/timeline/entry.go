// Package timeline defines the canonical conversational entry taxonomy that
// every executor adapter normalizes its wire format into, and the MsgStore
// broadcaster that carries raw log bytes and timeline patches from a running
// (or replayed) execution to its subscribers.
package timeline

import "time"

// EntryType is the closed taxonomy of conversational units
type EntryType string

const (
	EntryUserMessage      EntryType = "user_message"
	EntryAssistantMessage EntryType = "assistant_message"
	EntryThinking         EntryType = "thinking"
	EntrySystemMessage    EntryType = "system_message"
	EntryErrorMessage     EntryType = "error_message"
	EntryUserFeedback     EntryType = "user_feedback"
	EntryToolUse          EntryType = "tool_use"
	EntryTokenUsageInfo   EntryType = "token_usage_info"
)

// ErrorKind discriminates ErrorMessage entries.
type ErrorKind string

const (
	ErrorSetupRequired ErrorKind = "setup_required"
	ErrorOther         ErrorKind = "other"
)

// ToolStatus is the lifecycle status of a ToolUse entry.
type ToolStatus string

const (
	ToolCreated  ToolStatus = "created"
	ToolSuccess  ToolStatus = "success"
	ToolFailed   ToolStatus = "failed"
	ToolDenied   ToolStatus = "denied"
	ToolTimedOut ToolStatus = "timed_out"
)

// ActionType is the closed enum of semantic tool actions a ToolUse entry
// can represent.
type ActionType string

const (
	ActionFileRead         ActionType = "file_read"
	ActionFileEdit         ActionType = "file_edit"
	ActionCommandRun       ActionType = "command_run"
	ActionSearch           ActionType = "search"
	ActionWebFetch         ActionType = "web_fetch"
	ActionTaskCreate       ActionType = "task_create"
	ActionPlanPresentation ActionType = "plan_presentation"
	ActionTodoManagement   ActionType = "todo_management"
	ActionGeneric          ActionType = "tool"
)

// FileChange describes one file mutation inside a FileEdit tool-use entry.
type FileChange struct {
	Path    string `json:"path"`
	Diff    string `json:"diff,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// CommandResult carries the exit status of a CommandRun tool-use entry.
type CommandResult struct {
	Command  string `json:"command"`
	Output   string `json:"output,omitempty"`
	ExitCode *int   `json:"exit_code,omitempty"`
}

// ToolUseMeta holds the structured metadata specific to a ToolUse entry.
type ToolUseMeta struct {
	ToolName      string         `json:"tool_name"`
	ToolCallID    string         `json:"tool_call_id,omitempty"`
	ActionType    ActionType     `json:"action_type"`
	Status        ToolStatus     `json:"status"`
	DeniedReason  string         `json:"denied_reason,omitempty"`
	FileChanges   []FileChange   `json:"file_changes,omitempty"`
	CommandResult *CommandResult `json:"command_result,omitempty"`
	RawInput      string         `json:"raw_input,omitempty"`
}

// TokenUsageMeta holds structured metadata for a TokenUsageInfo entry.
type TokenUsageMeta struct {
	TotalTokens        int `json:"total_tokens"`
	ModelContextWindow int `json:"model_context_window,omitempty"`
}

// NormalizedEntry is the canonical conversational unit addressable by an
// integer timeline index.
type NormalizedEntry struct {
	Timestamp    *time.Time      `json:"timestamp,omitempty"`
	EntryType    EntryType       `json:"entry_type"`
	Content      string          `json:"content"`
	ErrorKind    ErrorKind       `json:"error_kind,omitempty"`
	DeniedTool   string          `json:"denied_tool,omitempty"`
	ToolUse      *ToolUseMeta    `json:"tool_use,omitempty"`
	TokenUsage   *TokenUsageMeta `json:"token_usage,omitempty"`
}
