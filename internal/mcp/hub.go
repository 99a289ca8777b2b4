// Package mcp connects to configured Model Context Protocol servers and forwards tool calls.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcpprotocol "github.com/mark3labs/mcp-go/mcp"

	"agentic-edit/internal/logger"
)

const (
	TransportStdio          = "stdio"
	TransportSSE            = "sse"
	TransportStreamableHTTP = "streamable_http"

	clientName    = "agentic-edit"
	clientVersion = "0.1.0"
)

var ErrUnknownServer = errors.New("unknown mcp server")

var log = logger.Named("mcp")

type ServerDef struct {
	Name      string
	Transport string
	Command   string
	Args      []string
	Env       map[string]string
	URL       string
	Headers   map[string]string
}

func (d ServerDef) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("mcp server name is required")
	}
	switch d.Transport {
	case TransportStdio, "":
		if strings.TrimSpace(d.Command) == "" {
			return fmt.Errorf("mcp server %s: command is required for stdio", d.Name)
		}
	case TransportSSE, TransportStreamableHTTP:
		if strings.TrimSpace(d.URL) == "" {
			return fmt.Errorf("mcp server %s: url is required for %s", d.Name, d.Transport)
		}
	default:
		return fmt.Errorf("mcp server %s: unsupported transport %q", d.Name, d.Transport)
	}
	return nil
}

// Response is the flattened result of a remote tool call.
type Response struct {
	Server     string `json:"server"`
	Tool       string `json:"tool"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
	Structured any    `json:"structured,omitempty"`
}

type session interface {
	CallTool(ctx context.Context, req mcpprotocol.CallToolRequest) (*mcpprotocol.CallToolResult, error)
	ListTools(ctx context.Context, req mcpprotocol.ListToolsRequest) (*mcpprotocol.ListToolsResult, error)
	Close() error
}

type dialFunc func(ctx context.Context, def ServerDef) (session, error)

// Hub owns one lazily connected client per server. It is safe for concurrent use.
type Hub struct {
	mu      sync.Mutex
	defs    map[string]ServerDef
	clients map[string]session
	dial    dialFunc
}

func NewHub(defs []ServerDef) (*Hub, error) {
	h := &Hub{
		defs:    make(map[string]ServerDef, len(defs)),
		clients: make(map[string]session),
		dial:    dial,
	}
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := h.defs[d.Name]; dup {
			return nil, fmt.Errorf("duplicate mcp server %q", d.Name)
		}
		h.defs[d.Name] = d
	}
	return h, nil
}

// Servers returns the configured server names in order.
func (h *Hub) Servers() []string {
	names := make([]string, 0, len(h.defs))
	for name := range h.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CallTool invokes tool on server. Errors wrap ErrUnknownServer when the server is not
// configured; a tool-level failure is reported through Response.IsError instead.
func (h *Hub) CallTool(ctx context.Context, server, tool string, args map[string]any) (Response, error) {
	sess, err := h.session(ctx, server)
	if err != nil {
		return Response{}, err
	}
	req := mcpprotocol.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args
	res, err := sess.CallTool(ctx, req)
	if err != nil {
		if ctx.Err() == nil {
			h.drop(server, sess)
		}
		return Response{}, fmt.Errorf("mcp %s/%s: %w", server, tool, err)
	}
	return Response{
		Server:     server,
		Tool:       tool,
		Content:    flattenContent(res.Content),
		IsError:    res.IsError,
		Structured: res.StructuredContent,
	}, nil
}

// ListTools returns the tool names exposed by server.
func (h *Hub) ListTools(ctx context.Context, server string) ([]string, error) {
	sess, err := h.session(ctx, server)
	if err != nil {
		return nil, err
	}
	res, err := sess.ListTools(ctx, mcpprotocol.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcp %s: tools/list: %w", server, err)
	}
	names := make([]string, 0, len(res.Tools))
	for i := range res.Tools {
		names = append(names, res.Tools[i].Name)
	}
	return names, nil
}

func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var errs []error
	for name, c := range h.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		delete(h.clients, name)
	}
	return errors.Join(errs...)
}

func (h *Hub) session(ctx context.Context, server string) (session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	def, ok := h.defs[server]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownServer, server)
	}
	if c, ok := h.clients[server]; ok {
		return c, nil
	}
	c, err := h.dial(ctx, def)
	if err != nil {
		return nil, fmt.Errorf("mcp %s: connect: %w", server, err)
	}
	log.Infof("connected to mcp server %s (%s)", server, def.Transport)
	h.clients[server] = c
	return c, nil
}

// drop forgets a broken client so the next call reconnects.
func (h *Hub) drop(server string, sess session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.clients[server]; ok && cur == sess {
		delete(h.clients, server)
		_ = sess.Close()
	}
}

func dial(ctx context.Context, def ServerDef) (session, error) {
	var (
		c   *mcpclient.Client
		err error
	)
	switch def.Transport {
	case TransportStdio, "":
		c, err = mcpclient.NewStdioMCPClient(def.Command, envMapToSlice(def.Env), def.Args...)
	case TransportSSE:
		var opts []transport.ClientOption
		if len(def.Headers) > 0 {
			opts = append(opts, transport.WithHeaders(def.Headers))
		}
		c, err = mcpclient.NewSSEMCPClient(def.URL, opts...)
	case TransportStreamableHTTP:
		var opts []transport.StreamableHTTPCOption
		if len(def.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(def.Headers))
		}
		c, err = mcpclient.NewStreamableHttpClient(def.URL, opts...)
	default:
		return nil, fmt.Errorf("unsupported transport: %s", def.Transport)
	}
	if err != nil {
		return nil, err
	}
	// stdio clients start their subprocess on construction.
	if def.Transport == TransportSSE || def.Transport == TransportStreamableHTTP {
		if err := c.Start(ctx); err != nil {
			_ = c.Close()
			return nil, err
		}
	}

	initReq := mcpprotocol.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpprotocol.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpprotocol.Implementation{
		Name:    clientName,
		Version: clientVersion,
	}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return c, nil
}

func flattenContent(content []mcpprotocol.Content) string {
	parts := make([]string, 0, len(content))
	for _, item := range content {
		if text, ok := mcpprotocol.AsTextContent(item); ok {
			parts = append(parts, text.Text)
			continue
		}
		data, err := json.Marshal(item)
		if err != nil {
			continue
		}
		parts = append(parts, string(data))
	}
	return strings.Join(parts, "\n")
}

func envMapToSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
