package mcp

import (
	"encoding/json"
	"strings"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/bobmcallan/toolhost/internal/apps"
	"github.com/bobmcallan/toolhost/internal/dispatch"
	"github.com/bobmcallan/toolhost/internal/tool"
)

// --- Helpers ---

func testHandler(t *testing.T, app string) *Handler {
	t.Helper()
	a, err := apps.New(app, nil)
	if err != nil {
		t.Fatalf("apps.New: %v", err)
	}
	specs, err := apps.Specs(a)
	if err != nil {
		t.Fatalf("Specs: %v", err)
	}
	table, err := dispatch.Build(specs, dispatch.Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return NewHandler(app, table, nil)
}

// listTools calls tools/list on the MCPServer and returns the tools.
func listTools(t *testing.T, s *mcpserver.MCPServer) []mcpgo.Tool {
	t.Helper()

	msg := json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`)
	result := s.HandleMessage(t.Context(), msg)

	resp, ok := result.(mcpgo.JSONRPCResponse)
	if !ok {
		t.Fatalf("expected JSONRPCResponse, got %T", result)
	}

	resultJSON, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("failed to marshal result: %v", err)
	}

	var toolsResult mcpgo.ListToolsResult
	if err := json.Unmarshal(resultJSON, &toolsResult); err != nil {
		t.Fatalf("failed to unmarshal ListToolsResult: %v", err)
	}
	return toolsResult.Tools
}

// callTool calls a tool on the MCPServer and returns the result.
func callTool(t *testing.T, s *mcpserver.MCPServer, name string, args map[string]any) *mcpgo.CallToolResult {
	t.Helper()

	paramsJSON, _ := json.Marshal(map[string]any{
		"name":      name,
		"arguments": args,
	})

	msg := json.RawMessage(`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":` + string(paramsJSON) + `}`)
	result := s.HandleMessage(t.Context(), msg)

	resp, ok := result.(mcpgo.JSONRPCResponse)
	if !ok {
		t.Fatalf("expected JSONRPCResponse, got %T", result)
	}

	resultJSON, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("failed to marshal result: %v", err)
	}

	var toolResult mcpgo.CallToolResult
	if err := json.Unmarshal(resultJSON, &toolResult); err != nil {
		t.Fatalf("failed to unmarshal CallToolResult: %v", err)
	}
	return &toolResult
}

// extractText extracts the text field from an MCP content block.
func extractText(t *testing.T, content mcpgo.Content) string {
	t.Helper()
	contentJSON, _ := json.Marshal(content)
	var tc struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(contentJSON, &tc); err != nil {
		t.Fatalf("failed to unmarshal content: %v", err)
	}
	return tc.Text
}

// --- Tests ---

func TestNewHandler_RegistersEveryTool(t *testing.T) {
	h := testHandler(t, "calculator")
	tools := listTools(t, h.Server())

	names := make(map[string]mcpgo.Tool, len(tools))
	for _, tl := range tools {
		names[tl.Name] = tl
	}
	for _, want := range []string{"add", "divide", "history", "undo_operation", "save", "load", VersionToolName} {
		if _, ok := names[want]; !ok {
			t.Errorf("expected tool %s to be registered", want)
		}
	}

	add := names["add"]
	a, ok := add.InputSchema.Properties["a"].(map[string]any)
	if !ok || a["type"] != "integer" {
		t.Errorf("expected integer schema for add.a, got %#v", add.InputSchema.Properties["a"])
	}
	if strings.Join(add.InputSchema.Required, ",") != "a,b" {
		t.Errorf("expected a,b required, got %v", add.InputSchema.Required)
	}
}

func TestToolHandler_Success(t *testing.T) {
	h := testHandler(t, "calculator")

	result := callTool(t, h.Server(), "add", map[string]any{"a": 2, "b": 3})
	if result.IsError {
		t.Fatalf("unexpected error: %s", extractText(t, result.Content[0]))
	}
	if got := extractText(t, result.Content[0]); got != `{"result":5}` {
		t.Errorf("expected {\"result\":5}, got %s", got)
	}
}

func TestToolHandler_ErrorsBecomeToolErrors(t *testing.T) {
	h := testHandler(t, "calculator")

	result := callTool(t, h.Server(), "divide", map[string]any{"a": 5, "b": 0})
	if !result.IsError {
		t.Fatal("expected IsError for divide by zero")
	}
	if !strings.Contains(extractText(t, result.Content[0]), "handler_error") {
		t.Errorf("expected handler_error, got %s", extractText(t, result.Content[0]))
	}

	result = callTool(t, h.Server(), "add", map[string]any{"a": "two", "b": 3})
	if !result.IsError || !strings.Contains(extractText(t, result.Content[0]), `field "a"`) {
		t.Errorf("expected invalid argument naming a, got %+v", result)
	}

	result = callTool(t, h.Server(), "add", map[string]any{"a": 1, "b": 1})
	if result.IsError {
		t.Errorf("call after failures should succeed")
	}
}

func TestVersionTool(t *testing.T) {
	h := testHandler(t, "echo")

	result := callTool(t, h.Server(), VersionToolName, nil)
	if result.IsError {
		t.Fatal("unexpected error from get_version")
	}
	var info map[string]any
	if err := json.Unmarshal([]byte(extractText(t, result.Content[0])), &info); err != nil {
		t.Fatalf("version output is not JSON: %v", err)
	}
	if info["app"] != "echo" || info["version"] == "" {
		t.Errorf("unexpected version info %#v", info)
	}
}

func TestBuildMCPTool_OptionalAndReadOnly(t *testing.T) {
	spec := tool.Spec{
		Name:        "retrieve",
		Description: "Find documents.",
		Params: []tool.Param{
			{Name: "query", Type: tool.String()},
			{Name: "top_k", Type: tool.Optional(tool.Int(), tool.Null())},
		},
		Returns:  tool.Sequence(tool.String()),
		ReadOnly: true,
	}

	mt := BuildMCPTool(spec)
	if mt.Description != "Find documents." {
		t.Errorf("unexpected description %q", mt.Description)
	}
	if strings.Join(mt.InputSchema.Required, ",") != "query" {
		t.Errorf("expected only query required, got %v", mt.InputSchema.Required)
	}
	topK := mt.InputSchema.Properties["top_k"].(map[string]any)
	if topK["type"] != "integer" {
		t.Errorf("expected optional int described as integer, got %#v", topK)
	}
	if mt.Annotations.ReadOnlyHint == nil || !*mt.Annotations.ReadOnlyHint {
		t.Error("expected read-only hint")
	}
}

func TestJSONSchema_Containers(t *testing.T) {
	node := tool.Composite("Node", tool.F("value", tool.Int()), tool.F("note", tool.Optional(tool.String(), tool.Null())))
	node.Fields = append(node.Fields, tool.F("children", tool.Sequence(node)))

	schema := JSONSchema(tool.Mapping(tool.String(), node))
	if schema["type"] != "object" {
		t.Fatalf("expected object, got %#v", schema)
	}
	nodeSchema := schema["additionalProperties"].(map[string]any)
	props := nodeSchema["properties"].(map[string]any)
	children := props["children"].(map[string]any)
	items := children["items"].(map[string]any)
	if items["title"] != "Node" || items["properties"] != nil {
		t.Errorf("expected recursive reference collapsed to plain object, got %#v", items)
	}
	if strings.Join(nodeSchema["required"].([]string), ",") != "value,children" {
		t.Errorf("unexpected required list %v", nodeSchema["required"])
	}

	bytesSchema := JSONSchema(tool.Bytes())
	if bytesSchema["contentEncoding"] != "base64" {
		t.Errorf("expected base64 bytes, got %#v", bytesSchema)
	}
}
