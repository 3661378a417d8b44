package mcptools

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/AgentMesh-Net/salesdesk/internal/core/envelope"
	"github.com/AgentMesh-Net/salesdesk/internal/crm"
	"github.com/AgentMesh-Net/salesdesk/internal/tax"
)

type customerIDInput struct {
	CustomerID string `json:"customerId" jsonschema:"Customer id"`
}

type filingIDInput struct {
	FilingID string `json:"filingId" jsonschema:"Tax filing id"`
}

func (s *Server) registerTools(srv *mcpsdk.Server) {
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        ToolListCustomers,
		Description: "List customers ordered by company name. Filters combine with AND.",
	}, tool(s, ToolListCustomers, func(ctx context.Context, in crm.ListCustomersInput) envelope.Response {
		return s.crm.ListCustomers(ctx, s.cfg.User, in)
	}))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        ToolGetCustomer,
		Description: "Fetch one customer by id.",
	}, tool(s, ToolGetCustomer, func(ctx context.Context, in customerIDInput) envelope.Response {
		return s.crm.GetCustomer(ctx, s.cfg.User, in.CustomerID)
	}))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        ToolDeleteCustomer,
		Description: "Request deletion of a customer and its opportunities. Requires confirm_action.",
	}, tool(s, ToolDeleteCustomer, func(ctx context.Context, in customerIDInput) envelope.Response {
		return s.crm.DeleteCustomer(ctx, s.cfg.User, in.CustomerID)
	}))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        ToolListOpportunities,
		Description: "List opportunities, most recently created first.",
	}, tool(s, ToolListOpportunities, func(ctx context.Context, in crm.ListOpportunitiesInput) envelope.Response {
		return s.crm.ListOpportunities(ctx, s.cfg.User, in)
	}))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        ToolCloseOpportunity,
		Description: "Request closing an open opportunity as won or lost. Requires confirm_action.",
	}, tool(s, ToolCloseOpportunity, func(ctx context.Context, in crm.CloseOpportunityInput) envelope.Response {
		return s.crm.CloseOpportunity(ctx, s.cfg.User, in)
	}))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        ToolListLeads,
		Description: "List leads, most recently created first.",
	}, tool(s, ToolListLeads, func(ctx context.Context, in crm.ListLeadsInput) envelope.Response {
		return s.crm.ListLeads(ctx, s.cfg.User, in)
	}))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        ToolUpdateLeadStatus,
		Description: "Request a lead status change. Requires confirm_action.",
	}, tool(s, ToolUpdateLeadStatus, func(ctx context.Context, in crm.UpdateLeadStatusInput) envelope.Response {
		return s.crm.UpdateLeadStatus(ctx, s.cfg.User, in)
	}))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        ToolConfirmAction,
		Description: "Approve or reject a pending action by its confirmationId. Each id works once.",
	}, tool(s, ToolConfirmAction, func(ctx context.Context, in crm.ConfirmInput) envelope.Response {
		return s.crm.Confirm(ctx, s.cfg.User, in)
	}))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        ToolListFilings,
		Description: "List tax filings ordered by due date.",
	}, tool(s, ToolListFilings, func(ctx context.Context, in tax.ListFilingsInput) envelope.Response {
		return s.tax.ListFilings(ctx, s.cfg.User, in)
	}))
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        ToolGetFiling,
		Description: "Fetch one tax filing by id.",
	}, tool(s, ToolGetFiling, func(ctx context.Context, in filingIDInput) envelope.Response {
		return s.tax.GetFiling(ctx, s.cfg.User, in.FilingID)
	}))
}

// tool adapts a service call to the SDK handler signature.
func tool[In any](s *Server, name string, call func(context.Context, In) envelope.Response) mcpsdk.ToolHandlerFor[In, any] {
	return func(ctx context.Context, _ *mcpsdk.CallToolRequest, in In) (*mcpsdk.CallToolResult, any, error) {
		resp := call(ctx, in)
		s.logger.Debug("mcp.tool.call", "tool", name, "status", string(resp.Status()))
		return result(resp), nil, nil
	}
}
