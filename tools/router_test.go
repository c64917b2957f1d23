package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"aria/live"
)

type fakeKB struct {
	resp string
	err  error

	queries  []string
	sessions []string
}

func (f *fakeKB) Query(_ context.Context, query, sessionID string) (string, error) {
	f.queries = append(f.queries, query)
	f.sessions = append(f.sessions, sessionID)
	return f.resp, f.err
}

type fakeLogger struct {
	err    error
	events []ActionEvent
}

func (f *fakeLogger) Log(_ context.Context, ev ActionEvent) error {
	f.events = append(f.events, ev)
	return f.err
}

func newTestRouter(kb *fakeKB, lg *fakeLogger) *Router {
	return NewRouter(kb, lg, "sess-1")
}

func TestBookMeeting(t *testing.T) {
	lg := &fakeLogger{}
	r := newTestRouter(&fakeKB{}, lg)

	res := r.Dispatch(context.Background(), live.ToolCall{
		ID:   "call-7",
		Name: "book_meeting",
		Args: map[string]any{
			"name": "Ada Lovelace", "phone": "555-0100", "email": "ada@example.com",
			"datetime": "2026-09-01T10:00", "purpose": "demo",
		},
	})

	if res.ID != "call-7" {
		t.Errorf("result id %q", res.ID)
	}
	if res.Text != meetingBookedText {
		t.Errorf("result text %q", res.Text)
	}
	if len(lg.events) != 1 {
		t.Fatalf("%d logging calls, want exactly 1", len(lg.events))
	}
	ev := lg.events[0]
	if ev.Action != "Appointment Scheduled" {
		t.Errorf("action label %q", ev.Action)
	}
	if ev.Name != "Ada Lovelace" || ev.Phone != "555-0100" {
		t.Errorf("client fields: %+v", ev)
	}
	if ev.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestCreateSupportTicketCollaboratorError(t *testing.T) {
	lg := &fakeLogger{err: errors.New("backend down")}
	r := newTestRouter(&fakeKB{}, lg)

	res := r.Dispatch(context.Background(), live.ToolCall{
		ID:   "call-1",
		Name: "create_support_ticket",
		Args: map[string]any{"name": "Bob", "type": "billing", "description": "double charge"},
	})

	if !strings.HasPrefix(res.Text, "Error: ") {
		t.Fatalf("error not surfaced as result text: %q", res.Text)
	}
	if !strings.Contains(res.Text, "backend down") {
		t.Errorf("original message lost: %q", res.Text)
	}
	if res.ID != "call-1" {
		t.Errorf("result id %q", res.ID)
	}
}

func TestSupportTicketActionLabel(t *testing.T) {
	lg := &fakeLogger{}
	r := newTestRouter(&fakeKB{}, lg)
	r.Dispatch(context.Background(), live.ToolCall{ID: "c", Name: "create_support_ticket", Args: map[string]any{}})
	if lg.events[0].Action != "Support Ticket Logged" {
		t.Errorf("action label %q", lg.events[0].Action)
	}
}

func TestSalesInterestActionLabel(t *testing.T) {
	lg := &fakeLogger{}
	r := newTestRouter(&fakeKB{}, lg)
	r.Dispatch(context.Background(), live.ToolCall{ID: "c", Name: "log_sales_interest", Args: map[string]any{"interest": "premium plan"}})
	ev := lg.events[0]
	if ev.Action != "Sales info Delivered" {
		t.Errorf("action label %q", ev.Action)
	}
	if ev.Topic != "premium plan" {
		t.Errorf("topic %q", ev.Topic)
	}
}

func TestKnowledgeQueryPassThrough(t *testing.T) {
	kb := &fakeKB{resp: `{"answer":"open 9-5","sources":[1]}`}
	r := newTestRouter(kb, &fakeLogger{})

	res := r.Dispatch(context.Background(), live.ToolCall{
		ID: "q1", Name: "query_knowledge_base",
		Args: map[string]any{"query": "opening hours"},
	})

	if res.Text != kb.resp {
		t.Errorf("response not passed through verbatim: %q", res.Text)
	}
	if len(kb.queries) != 1 || kb.queries[0] != "opening hours" {
		t.Errorf("queries: %v", kb.queries)
	}
	if kb.sessions[0] != "sess-1" {
		t.Errorf("session id %q", kb.sessions[0])
	}
}

func TestUnknownToolNameGenericSuccess(t *testing.T) {
	lg := &fakeLogger{}
	r := newTestRouter(&fakeKB{}, lg)
	res := r.Dispatch(context.Background(), live.ToolCall{ID: "x", Name: "transfer_funds", Args: nil})
	if res.Text != genericOKText {
		t.Errorf("unknown tool result %q", res.Text)
	}
	if len(lg.events) != 0 {
		t.Error("unknown tool must not hit the action logger")
	}
}

func TestStrArgCoercesNumbers(t *testing.T) {
	if got := strArg(map[string]any{"n": 42.0}, "n"); got != "42" {
		t.Errorf("number coerced to %q", got)
	}
	if got := strArg(map[string]any{}, "missing"); got != "" {
		t.Errorf("missing arg gave %q", got)
	}
}

func TestDeclarationsCoverRouterActions(t *testing.T) {
	decls := Declarations()
	want := map[string]bool{
		"query_knowledge_base": false, "book_meeting": false,
		"create_support_ticket": false, "log_sales_interest": false,
	}
	for _, d := range decls {
		if _, ok := want[d.Name]; !ok {
			t.Errorf("unexpected declaration %q", d.Name)
		}
		want[d.Name] = true
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("missing declaration %q", name)
		}
	}
}
