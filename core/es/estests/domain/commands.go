package domain

import (
	"context"
	"errors"

	"github.com/codewandler/evsrc-go/core/es"
)

const (
	KindOpenTicket   = "open_ticket"
	KindAssignTicket = "assign_ticket"
	KindRenameTicket = "rename_ticket"
	KindCloseTicket  = "close_ticket"
)

type (
	OpenTicket struct {
		ID    string
		Title string
	}

	AssignTicket struct {
		ID       string
		Assignee string
	}

	RenameTicket struct {
		ID    string
		Title string
	}

	CloseTicket struct {
		ID     string
		Reason string
	}
)

func (c *OpenTicket) AggregateID() string { return c.ID }
func (c *OpenTicket) CommandKind() string { return KindOpenTicket }

func (c *AssignTicket) AggregateID() string { return c.ID }
func (c *AssignTicket) CommandKind() string { return KindAssignTicket }
func (c *AssignTicket) CanRetry() bool      { return true }

func (c *RenameTicket) AggregateID() string { return c.ID }
func (c *RenameTicket) CommandKind() string { return KindRenameTicket }
func (c *RenameTicket) CanRetry() bool      { return true }

func (c *CloseTicket) AggregateID() string { return c.ID }
func (c *CloseTicket) CommandKind() string { return KindCloseTicket }
func (c *CloseTicket) CanRetry() bool      { return true }

var (
	_ es.Command   = (*OpenTicket)(nil)
	_ es.Retryable = (*AssignTicket)(nil)
)

// === Handlers ===

// OpenTicketHandler creates the ticket stream when it does not exist yet and
// records the opening. Re-dispatching for an existing ticket fails in the
// behavior, not in storage.
func OpenTicketHandler() es.CommandHandler {
	return es.CommandHandlerFunc(func(ctx context.Context, uow *es.UnitOfWork, cmd es.Command) error {
		c := cmd.(*OpenTicket)
		t := NewTicket(c.ID)
		if err := uow.Repo().Load(ctx, t); err != nil {
			if !errors.Is(err, es.ErrAggregateNotFound) {
				return err
			}
			if err := t.Create(c.ID); err != nil {
				return err
			}
		}
		if err := t.Open(c.Title); err != nil {
			return err
		}
		_, err := uow.Repo().Save(ctx, t)
		return err
	})
}

func AssignTicketHandler() es.CommandHandler {
	return es.CommandHandlerFunc(func(ctx context.Context, uow *es.UnitOfWork, cmd es.Command) error {
		c := cmd.(*AssignTicket)
		t := NewTicket(c.ID)
		if err := uow.Repo().Load(ctx, t); err != nil {
			return err
		}
		if err := t.Assign(c.Assignee); err != nil {
			return err
		}
		_, err := uow.Repo().Save(ctx, t)
		return err
	})
}

func RenameTicketHandler() es.CommandHandler {
	return es.CommandHandlerFunc(func(ctx context.Context, uow *es.UnitOfWork, cmd es.Command) error {
		c := cmd.(*RenameTicket)
		t := NewTicket(c.ID)
		if err := uow.Repo().Load(ctx, t); err != nil {
			return err
		}
		if err := t.Rename(c.Title); err != nil {
			return err
		}
		_, err := uow.Repo().Save(ctx, t)
		return err
	})
}

func CloseTicketHandler() es.CommandHandler {
	return es.CommandHandlerFunc(func(ctx context.Context, uow *es.UnitOfWork, cmd es.Command) error {
		c := cmd.(*CloseTicket)
		t := NewTicket(c.ID)
		if err := uow.Repo().Load(ctx, t); err != nil {
			return err
		}
		if err := t.Close(c.Reason); err != nil {
			return err
		}
		_, err := uow.Repo().Save(ctx, t)
		return err
	})
}

// Handlers returns the full handler wiring for the ticket domain, with the
// mutation commands wrapped in the given retry policy.
func Handlers(policy es.RetryPolicy) []es.HandlerOption {
	return []es.HandlerOption{
		es.WithHandler(KindOpenTicket, OpenTicketHandler()),
		es.WithHandler(KindAssignTicket, es.WithRetry(AssignTicketHandler(), policy)),
		es.WithHandler(KindRenameTicket, es.WithRetry(RenameTicketHandler(), policy)),
		es.WithHandler(KindCloseTicket, es.WithRetry(CloseTicketHandler(), policy)),
	}
}
