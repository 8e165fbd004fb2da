package domain

import (
	"encoding/json"

	"github.com/codewandler/evsrc-go/core/es"
	"github.com/codewandler/evsrc-go/core/es/assert"
)

type TicketStatus string

const (
	StatusOpen   TicketStatus = "open"
	StatusClosed TicketStatus = "closed"
)

type (
	Ticket struct {
		es.BaseAggregate

		Title     string       `json:"title"`
		Status    TicketStatus `json:"status"`
		Assignee  string       `json:"assignee"`
		Reason    string       `json:"reason"`
		NumEvents int          `json:"num_events"`
	}

	TicketOpened struct {
		TicketID string `json:"ticket_id"`
		Title    string `json:"title"`
	}

	TicketAssigned struct {
		TicketID string `json:"ticket_id"`
		Assignee string `json:"assignee"`
	}

	TicketRenamed struct {
		TicketID string `json:"ticket_id"`
		Title    string `json:"title"`
	}

	TicketClosed struct {
		TicketID string `json:"ticket_id"`
		Reason   string `json:"reason,omitempty"`
	}
)

func (e TicketOpened) AggregateID() string   { return e.TicketID }
func (e TicketAssigned) AggregateID() string { return e.TicketID }
func (e TicketRenamed) AggregateID() string  { return e.TicketID }
func (e TicketClosed) AggregateID() string   { return e.TicketID }

func (TicketOpened) EventType() string   { return "ticket_opened" }
func (TicketAssigned) EventType() string { return "ticket_assigned" }
func (TicketRenamed) EventType() string  { return "ticket_renamed" }
func (TicketClosed) EventType() string   { return "ticket_closed" }

func (a *Ticket) Snapshot() (data []byte, err error) { return json.Marshal(a) }
func (a *Ticket) RestoreSnapshot(data []byte) error  { return json.Unmarshal(data, a) }
func (a *Ticket) GetAggType() string                 { return "ticket" }
func (a *Ticket) Register(r es.Registrar) {
	es.RegisterEvents(r,
		es.Event[TicketOpened](),
		es.Event[TicketAssigned](),
		es.Event[TicketRenamed](),
		es.Event[TicketClosed](),
	)
}

func (a *Ticket) Apply(event any) error {
	switch e := event.(type) {
	case *TicketOpened:
		a.Title = e.Title
		a.Status = StatusOpen
		a.NumEvents++
		return nil
	case *TicketAssigned:
		a.Assignee = e.Assignee
		a.NumEvents++
		return nil
	case *TicketRenamed:
		a.Title = e.Title
		a.NumEvents++
		return nil
	case *TicketClosed:
		a.Status = StatusClosed
		a.Reason = e.Reason
		a.NumEvents++
		return nil
	}
	return a.BaseAggregate.Apply(event)
}

var (
	_ es.Aggregate     = &Ticket{}
	_ es.Snapshottable = &Ticket{}
)

// === Behavior ===

func (a *Ticket) Open(title string) error {
	return a.Checked(
		assert.All(
			assert.True(a.Status == "", "ticket is not yet opened"),
			assert.NotEmpty(title, "title is required"),
		),
		es.RaiseAndApplyD(a, &TicketOpened{TicketID: a.GetID(), Title: title}),
	)
}

func (a *Ticket) Assign(assignee string) error {
	return a.Checked(
		assert.All(
			assert.Equal(a.Status, StatusOpen, "ticket is open"),
			assert.NotEmpty(assignee, "assignee is required"),
		),
		es.RaiseAndApplyD(a, &TicketAssigned{TicketID: a.GetID(), Assignee: assignee}),
	)
}

func (a *Ticket) Rename(title string) error {
	return a.Checked(
		assert.All(
			assert.Equal(a.Status, StatusOpen, "ticket is open"),
			assert.NotEmpty(title, "title is required"),
		),
		es.RaiseAndApplyD(a, &TicketRenamed{TicketID: a.GetID(), Title: title}),
	)
}

func (a *Ticket) Close(reason string) error {
	return a.Checked(
		assert.Equal(a.Status, StatusOpen, "ticket is open"),
		es.RaiseAndApplyD(a, &TicketClosed{TicketID: a.GetID(), Reason: reason}),
	)
}

// === Read ===

func (a *Ticket) IsOpen() bool   { return a.Status == StatusOpen }
func (a *Ticket) IsClosed() bool { return a.Status == StatusClosed }

func NewTicket(id string) *Ticket {
	a := &Ticket{}
	a.SetID(id)
	return a
}
