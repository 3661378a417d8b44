// Package mcptools exposes the CRM and tax operations as MCP tools. Every
// tool answers with the same JSON envelope the REST API returns.
package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"pkt.systems/pslog"

	"github.com/AgentMesh-Net/salesdesk/internal/core/envelope"
	"github.com/AgentMesh-Net/salesdesk/internal/crm"
	"github.com/AgentMesh-Net/salesdesk/internal/store"
	"github.com/AgentMesh-Net/salesdesk/internal/tax"
)

// Tool names.
const (
	ToolListCustomers     = "list_customers"
	ToolGetCustomer       = "get_customer"
	ToolDeleteCustomer    = "delete_customer"
	ToolListOpportunities = "list_opportunities"
	ToolCloseOpportunity  = "close_opportunity"
	ToolListLeads         = "list_leads"
	ToolUpdateLeadStatus  = "update_lead_status"
	ToolConfirmAction     = "confirm_action"
	ToolListFilings       = "list_filings"
	ToolGetFiling         = "get_filing"
)

const instructions = `Sales and tax records of a CRM.

List tools return one page at a time. When metadata.hasMore is true, call the
same tool again with cursor set to metadata.nextCursor and the same filters.

delete_customer, close_opportunity and update_lead_status never change data
directly. They answer with status "pending_confirmation", a confirmationId and
a message. Show the message to the user and call confirm_action with their
decision ("approve" or "reject"). A confirmation can be used once and expires
after a few minutes; on CONFIRMATION_EXPIRED repeat the original call.

Errors carry a code, a message and a suggestedAction to follow.`

// Config describes the server identity and the user the tools act as.
type Config struct {
	Name    string
	Version string
	User    store.UserContext
}

// Server builds the MCP server over the domain services.
type Server struct {
	cfg    Config
	crm    *crm.Service
	tax    *tax.Service
	logger pslog.Logger
}

func New(cfg Config, crmSvc *crm.Service, taxSvc *tax.Service, logger pslog.Logger) *Server {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	if cfg.Name == "" {
		cfg.Name = "salesdesk"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	return &Server{cfg: cfg, crm: crmSvc, tax: taxSvc, logger: logger.With("subsystem", "mcp")}
}

// MCP returns a fresh SDK server with every tool registered.
func (s *Server) MCP() *mcpsdk.Server {
	srv := mcpsdk.NewServer(&mcpsdk.Implementation{Name: s.cfg.Name, Version: s.cfg.Version}, &mcpsdk.ServerOptions{
		Instructions: instructions,
	})
	s.registerTools(srv)
	return srv
}

// RunStdio serves a single session over stdin and stdout until ctx ends or
// the client disconnects.
func (s *Server) RunStdio(ctx context.Context) error {
	s.logger.Info("mcp.stdio.start", "user_id", s.cfg.User.UserID)
	return s.MCP().Run(ctx, &mcpsdk.StdioTransport{})
}

// Handler serves the streamable HTTP transport.
func (s *Server) Handler() http.Handler {
	srv := s.MCP()
	streamable := mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return srv }, nil)
	return otelhttp.NewHandler(streamable, "salesdesk.mcp")
}

// ServeHTTP listens on addr until ctx is cancelled.
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("mcp.http.listen", "addr", addr, "user_id", s.cfg.User.UserID)
		errc <- hs.ListenAndServe()
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("mcp shutdown: %w", err)
	}
	return nil
}

// result renders resp as the tool result. Error envelopes set IsError so
// clients surface them as failed calls.
func result(resp envelope.Response) *mcpsdk.CallToolResult {
	raw, err := json.Marshal(resp)
	if err != nil {
		resp = envelope.FromError(envelope.Internal(err))
		raw, _ = json.Marshal(resp)
	}
	_, failed := resp.(envelope.Failure)
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(raw)}},
		IsError: failed,
	}
}
