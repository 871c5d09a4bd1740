package mcpclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/optimnow-labs/finops-assistant/internal/domain"
	"github.com/optimnow-labs/finops-assistant/internal/tools"
)

// ErrConnection marks a per-server launch or handshake failure. One server's
// ErrConnection never aborts the others.
var ErrConnection = errors.New("server connection failed")

// DefaultHandshakeTimeout bounds subprocess launch, handshake, and tool
// enumeration for a single server.
const DefaultHandshakeTimeout = 60 * time.Second

// ServerConnection is the runtime binding for one connected tool server: the
// owning descriptor, the live session, and the tools it yielded. It exists
// only while the subprocess and session are alive.
type ServerConnection struct {
	Descriptor ServerDescriptor

	session *mcp.ClientSession
	tools   []tools.Tool
}

// Tools returns the tools enumerated from this server, bound to its session.
func (c *ServerConnection) Tools() []tools.Tool {
	return c.tools
}

// Close terminates the session and its subprocess.
func (c *ServerConnection) Close() error {
	if c.session == nil {
		return nil
	}
	if err := c.session.Close(); err != nil {
		return fmt.Errorf("mcpclient: close %s: %w", c.Descriptor.Name, err)
	}
	return nil
}

// Dialer connects a single server descriptor. The indirection lets tests
// count and script connection attempts.
type Dialer interface {
	Connect(ctx context.Context, desc ServerDescriptor) (*ServerConnection, error)
}

// SDKDialer launches tool servers as subprocesses over the MCP stdio
// transport and enumerates their tools.
type SDKDialer struct {
	// HandshakeTimeout bounds each connection attempt. Zero means
	// DefaultHandshakeTimeout; a hung server degrades instead of stalling
	// initialization.
	HandshakeTimeout time.Duration

	// Impl identifies this client in the MCP handshake.
	Impl *mcp.Implementation
}

// NewSDKDialer creates a dialer with the given handshake timeout.
func NewSDKDialer(handshakeTimeout time.Duration) *SDKDialer {
	return &SDKDialer{
		HandshakeTimeout: handshakeTimeout,
		Impl: &mcp.Implementation{
			Name:    "finops-assistant",
			Version: "v1.0.0",
		},
	}
}

// Connect launches the described subprocess, performs the session handshake,
// and enumerates its tools, all within the handshake timeout.
func (d *SDKDialer) Connect(ctx context.Context, desc ServerDescriptor) (*ServerConnection, error) {
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// The command is not bound to the handshake context: the subprocess
	// must outlive the handshake window. Closing the session terminates it.
	cmd := exec.Command(desc.Command, desc.Args...)
	cmd.Env = mergedEnv(desc.Env)

	client := mcp.NewClient(d.Impl, nil)
	session, err := client.Connect(ctx, &mcp.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpclient: %w: server %q: connect: %v", ErrConnection, desc.Name, err)
	}

	listed, err := session.ListTools(ctx, nil)
	if err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("mcpclient: %w: server %q: list tools: %v", ErrConnection, desc.Name, err)
	}

	conn := &ServerConnection{Descriptor: desc, session: session}
	for _, t := range listed.Tools {
		conn.tools = append(conn.tools, remoteTool(desc.Name, session, t))
	}

	slog.Info("connected tool server",
		"server", desc.Name, "command", desc.Command, "tools", len(conn.tools))
	return conn, nil
}

// remoteTool binds one enumerated MCP tool to its owning session.
func remoteTool(server string, session *mcp.ClientSession, t *mcp.Tool) tools.Tool {
	name := t.Name
	return tools.Tool{
		Name:        name,
		Description: t.Description,
		InputSchema: t.InputSchema,
		Origin:      domain.OriginRemote,
		Server:      server,
		Invoke: func(ctx context.Context, args map[string]any) (tools.Result, error) {
			res, err := session.CallTool(ctx, &mcp.CallToolParams{
				Name:      name,
				Arguments: args,
			})
			if err != nil {
				return tools.Result{}, fmt.Errorf("mcpclient: call %s on %s: %w", name, server, err)
			}
			return tools.Result{Text: flattenContent(res.Content), IsError: res.IsError}, nil
		},
	}
}

func flattenContent(content []mcp.Content) string {
	var parts []string
	for _, c := range content {
		if text, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func mergedEnv(overrides map[string]string) []string {
	if len(overrides) == 0 {
		return os.Environ()
	}
	env := os.Environ()
	for k, v := range overrides {
		env = append(env, k+"="+v)
	}
	return env
}
