package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/zheng/sprocmap/internal/display"
	"github.com/zheng/sprocmap/internal/graph"
	"github.com/zheng/sprocmap/internal/impact"
	"github.com/zheng/sprocmap/internal/inventory"
	"github.com/zheng/sprocmap/internal/storage"
)

// Server implements the MCP protocol for sprocmap
type Server struct {
	db         *storage.DB
	newBuilder func(onError func(error)) *graph.Builder
	input      io.Reader
	output     io.Writer
}

// NewServer creates a new MCP server. newBuilder is called once per tool
// call so file text is always read fresh; onError receives dropped branches.
func NewServer(db *storage.DB, newBuilder func(onError func(error)) *graph.Builder, input io.Reader, output io.Writer) *Server {
	return &Server{
		db:         db,
		newBuilder: newBuilder,
		input:      input,
		output:     output,
	}
}

// JSON-RPC types
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// MCP specific types
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
	Capabilities    Capabilities `json:"capabilities"`
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type Capabilities struct {
	Tools *ToolsCapability `json:"tools,omitempty"`
}

type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

type Property struct {
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Default     interface{} `json:"default,omitempty"`
}

type ToolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

type ToolCallResult struct {
	Content []ContentItem `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Run serves newline-delimited JSON-RPC requests until input ends or ctx is done
func (s *Server) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.input)
	// Increase buffer size for large messages
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Text()
		if line == "" {
			continue
		}

		var req Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			s.sendError(nil, -32700, "Parse error")
			continue
		}

		s.handleRequest(ctx, &req)
	}

	return scanner.Err()
}

func (s *Server) handleRequest(ctx context.Context, req *Request) {
	switch req.Method {
	case "initialize":
		s.handleInitialize(req)
	case "initialized", "notifications/initialized":
		// Notification, no response needed
	case "tools/list":
		s.handleToolsList(req)
	case "tools/call":
		s.handleToolsCall(ctx, req)
	default:
		s.sendError(req.ID, -32601, fmt.Sprintf("Method not found: %s", req.Method))
	}
}

func (s *Server) handleInitialize(req *Request) {
	result := InitializeResult{
		ProtocolVersion: "2024-11-05",
		ServerInfo: ServerInfo{
			Name:    "sprocmap",
			Version: "1.0.0",
		},
		Capabilities: Capabilities{
			Tools: &ToolsCapability{},
		},
	}
	s.sendResult(req.ID, result)
}

func (s *Server) handleToolsList(req *Request) {
	rootProp := Property{Type: "string", Description: "基础存储过程 .sql 文件路径"}
	runProp := Property{Type: "number", Description: "已保存运行的 ID（见 history）"}

	tools := []Tool{
		{
			Name:        "map",
			Description: "构建基础存储过程的 exec 调用树，返回树形结构和涉及的存储过程",
			InputSchema: InputSchema{
				Type:       "object",
				Properties: map[string]Property{"root": rootProp},
				Required:   []string{"root"},
			},
		},
		{
			Name:        "functions",
			Description: "列出函数目录中只被调用树使用、未被同目录其他过程使用的函数",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"root":          rootProp,
					"functions_dir": {Type: "string", Description: "函数定义目录，每个 .sql 文件一个函数"},
				},
				Required: []string{"root", "functions_dir"},
			},
		},
		{
			Name:        "history",
			Description: "列出数据库中保存的运行记录",
			InputSchema: InputSchema{Type: "object"},
		},
		{
			Name:        "show",
			Description: "返回已保存运行的调用树",
			InputSchema: InputSchema{
				Type:       "object",
				Properties: map[string]Property{"run_id": runProp},
				Required:   []string{"run_id"},
			},
		},
		{
			Name:        "impact",
			Description: "在已保存的调用树中分析存储过程的调用路径、上游调用者和下游被调用过程",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"run_id":    runProp,
					"procedure": {Type: "string", Description: "存储过程名称，可带或不带 .sql 后缀"},
				},
				Required: []string{"run_id", "procedure"},
			},
		},
	}

	s.sendResult(req.ID, map[string]interface{}{"tools": tools})
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.sendError(req.ID, -32602, "Invalid params")
		return
	}

	var result string
	var isError bool

	switch params.Name {
	case "map":
		result, isError = s.toolMap(ctx, params.Arguments)
	case "functions":
		result, isError = s.toolFunctions(ctx, params.Arguments)
	case "history":
		result, isError = s.toolHistory()
	case "show":
		result, isError = s.toolShow(params.Arguments)
	case "impact":
		result, isError = s.toolImpact(params.Arguments)
	default:
		result = fmt.Sprintf("Unknown tool: %s", params.Name)
		isError = true
	}

	s.sendResult(req.ID, ToolCallResult{
		Content: []ContentItem{{Type: "text", Text: result}},
		IsError: isError,
	})
}

// builderWithWarnings returns a builder plus the dropped-branch messages it collects
func (s *Server) builderWithWarnings() (*graph.Builder, *[]string) {
	warnings := new([]string)
	return s.newBuilder(func(err error) {
		*warnings = append(*warnings, err.Error())
	}), warnings
}

func (s *Server) toolMap(ctx context.Context, args map[string]interface{}) (string, bool) {
	rootPath, ok := args["root"].(string)
	if !ok || rootPath == "" {
		return "错误：需要提供 root", true
	}

	builder, warnings := s.builderWithWarnings()
	root, err := builder.Build(ctx, rootPath)
	if err != nil {
		return fmt.Sprintf("错误：%v", err), true
	}

	var sb strings.Builder
	sb.WriteString(display.FormatTree(root, display.TreeStyle{}))
	sb.WriteString("\nDistinct stored procedures:\n")
	sb.WriteString(display.FormatList(graph.DistinctNames(root)))
	writeWarnings(&sb, *warnings)
	return sb.String(), false
}

func (s *Server) toolFunctions(ctx context.Context, args map[string]interface{}) (string, bool) {
	rootPath, _ := args["root"].(string)
	functionsDir, _ := args["functions_dir"].(string)
	if rootPath == "" || functionsDir == "" {
		return "错误：需要提供 root 和 functions_dir", true
	}

	builder, warnings := s.builderWithWarnings()
	report, err := inventory.NewAnalyzer(builder).Inventory(ctx, rootPath, functionsDir)
	if err != nil {
		return fmt.Sprintf("错误：%v", err), true
	}

	var sb strings.Builder
	if len(report.Functions) == 0 {
		sb.WriteString("没有只在调用树内使用的函数\n")
	}
	sb.WriteString(display.FormatList(report.Functions))
	writeWarnings(&sb, *warnings)
	return sb.String(), false
}

func (s *Server) toolHistory() (string, bool) {
	if s.db == nil {
		return "错误：未打开数据库", true
	}
	runs, err := s.db.ListRuns()
	if err != nil {
		return fmt.Sprintf("错误：%v", err), true
	}
	if len(runs) == 0 {
		return "暂无保存的运行记录", false
	}
	return display.FormatRuns(runs), false
}

func (s *Server) toolShow(args map[string]interface{}) (string, bool) {
	if s.db == nil {
		return "错误：未打开数据库", true
	}
	runID, ok := runIDArg(args)
	if !ok {
		return "错误：需要提供 run_id", true
	}

	root, err := s.db.LoadTree(runID)
	if err != nil {
		return fmt.Sprintf("错误：%v", err), true
	}
	return display.FormatTree(root, display.TreeStyle{}), false
}

func (s *Server) toolImpact(args map[string]interface{}) (string, bool) {
	if s.db == nil {
		return "错误：未打开数据库", true
	}
	runID, ok := runIDArg(args)
	if !ok {
		return "错误：需要提供 run_id", true
	}
	procedure, ok := args["procedure"].(string)
	if !ok || procedure == "" {
		return "错误：需要提供存储过程名称", true
	}

	report, err := impact.NewAnalyzer(s.db).AnalyzeImpact(runID, procedure)
	if err != nil {
		return fmt.Sprintf("错误：%v", err), true
	}
	return report.FormatMarkdown(), false
}

func runIDArg(args map[string]interface{}) (int64, bool) {
	v, ok := args["run_id"].(float64)
	if !ok || v <= 0 {
		return 0, false
	}
	return int64(v), true
}

func writeWarnings(sb *strings.Builder, warnings []string) {
	if len(warnings) == 0 {
		return
	}
	sb.WriteString("\n警告:\n")
	for _, w := range warnings {
		sb.WriteString("- " + w + "\n")
	}
}

func (s *Server) sendResult(id interface{}, result interface{}) {
	resp := Response{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
	s.send(resp)
}

func (s *Server) sendError(id interface{}, code int, message string) {
	resp := Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &Error{Code: code, Message: message},
	}
	s.send(resp)
}

func (s *Server) send(resp Response) {
	data, _ := json.Marshal(resp)
	fmt.Fprintln(s.output, string(data))
}
