// Package openai implements the chat completions wire protocol for
// OpenAI-compatible services.
//
// The JSON encoding here must match the hosted service exactly; field names
// follow the service's schema, not Go conventions. The Client is a faithful
// transport: it performs no retries and no interpretation of responses, so
// the conversation controller keeps sole authority over ordering and policy.
package openai

import (
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
)

// Role identifies the author of a conversation message.
type Role string

// Message roles understood by the completion service.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCallTypeFunction is the only tool call type the service emits today.
const ToolCallTypeFunction = "function"

// Message is one turn in a conversation, in the service's wire shape.
//
// Content may be empty on assistant messages that carry tool calls.
// ToolCallID and Name are set only on tool-role messages, identifying which
// assistant request the message answers.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// HasToolCalls reports whether the message defers to tool execution.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// ToolCall is a request, embedded in an assistant message, to invoke a named
// local function. The ID is opaque and unique within its message.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the function and carries its arguments as the raw JSON
// string the service produced. The arguments are parsed by the conversation
// controller before dispatch, never by tool callables.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolSchema declares one callable function to the service.
type ToolSchema struct {
	Type     string         `json:"type"`
	Function FunctionSchema `json:"function"`
}

// FunctionSchema describes a function's signature. Parameters is a JSON
// Schema for the arguments object.
type FunctionSchema struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
}

// NewFunctionSchema builds a ToolSchema for a function tool.
func NewFunctionSchema(name, description string, params *jsonschema.Schema) ToolSchema {
	return ToolSchema{
		Type: ToolCallTypeFunction,
		Function: FunctionSchema{
			Name:        name,
			Description: description,
			Parameters:  params,
		},
	}
}

// completionRequest is the request body for POST /chat/completions.
type completionRequest struct {
	Model    string       `json:"model"`
	Messages []Message    `json:"messages"`
	Tools    []ToolSchema `json:"tools,omitempty"`
}

// completionResponse mirrors the service's response envelope. Fields the
// client does not consume (usage, system fingerprint, ...) are ignored by
// the decoder.
type completionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
	Usage   usage    `json:"usage"`
}

type choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// errorEnvelope is the service's error body: {"error": {...}}.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message string          `json:"message"`
	Type    string          `json:"type"`
	Code    json.RawMessage `json:"code"` // string or number depending on provider
}
