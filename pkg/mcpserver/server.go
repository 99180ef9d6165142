// Package mcpserver registers the three research tools of spec.md §6
// against the Model Context Protocol SDK and wires the stdio and
// streamable-HTTP transports, generalizing the teacher's client-side
// session/transport construction (pkg/mcp/client_factory.go, transport.go)
// to the server side.
package mcpserver

import (
	"context"
	"log/slog"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codeready-toolchain/research-mcp/pkg/eventstore"
	"github.com/codeready-toolchain/research-mcp/pkg/orchestrator"
	"github.com/codeready-toolchain/research-mcp/pkg/version"
)

// Server wraps an *mcpsdk.Server bound to an Orchestrator.
type Server struct {
	sdk    *mcpsdk.Server
	orch   *orchestrator.Orchestrator
	events *eventstore.Store
	logger *slog.Logger
}

// New builds a Server with the three research tools registered.
func New(orch *orchestrator.Orchestrator, events *eventstore.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	sdk := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    version.AppName,
		Version: version.GitCommit,
	}, nil)

	s := &Server{sdk: sdk, orch: orch, events: events, logger: logger}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.sdk, &mcpsdk.Tool{
		Name:        "google_search",
		Description: "Search the web via Google Custom Search and return an ordered list of result URLs.",
	}, s.handleGoogleSearch)

	mcpsdk.AddTool(s.sdk, &mcpsdk.Tool{
		Name:        "scrape_page",
		Description: "Fetch a web page or YouTube transcript and return its extracted text content.",
	}, s.handleScrapePage)

	mcpsdk.AddTool(s.sdk, &mcpsdk.Tool{
		Name:        "search_and_scrape",
		Description: "Search the web, then concurrently scrape the top results and return combined, deduplicated text.",
	}, s.handleSearchAndScrape)
}

// RunStdio serves the MCP protocol over stdio until ctx is cancelled or the
// client disconnects.
func (s *Server) RunStdio(ctx context.Context) error {
	return s.sdk.Run(ctx, &mcpsdk.StdioTransport{})
}

// HTTPHandler returns a streamable-HTTP handler for this server. Session
// resumption for tool-call audit events is served separately by
// ResumeHandler, backed by pkg/eventstore.
func (s *Server) HTTPHandler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server {
		return s.sdk
	}, nil)
}
