package es

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrNestedUnitOfWork is returned by Begin when the unit of work is
	// already active. Exactly one may be active per command execution.
	ErrNestedUnitOfWork = errors.New("nested unit of work not supported")

	// ErrUnitOfWorkNotActive guards commit/rollback/save outside the
	// begin..done window.
	ErrUnitOfWorkNotActive = errors.New("unit of work not active")

	// ErrPublicationFailed marks a commit whose events are durable but
	// whose summaries could not be delivered. The commit itself stands;
	// at-least-once delivery is the publisher's concern.
	ErrPublicationFailed = errors.New("publication failed")
)

type UowState string

const (
	UowIdle       UowState = "idle"
	UowActive     UowState = "active"
	UowCommitted  UowState = "committed"
	UowRolledBack UowState = "rolled_back"
)

// UnitOfWork scopes one command's work as a single transaction. While active,
// every save through its scoped repository flushes events to the store
// immediately and accumulates their summaries; Commit's only remaining duty
// is to hand the summaries to the publisher. Rollback discards the in-memory
// staged portion only; it never undoes an already-durable append.
//
// A UnitOfWork is passed explicitly through dispatch, never kept in ambient
// state, and must not be shared between concurrent command executions.
type UnitOfWork struct {
	log       *slog.Logger
	repo      Repository
	publisher SummaryPublisher
	metrics   Metrics
	state     UowState
	pending   []EventSummary
}

func NewUnitOfWork(log *slog.Logger, repo Repository, publisher SummaryPublisher) *UnitOfWork {
	if publisher == nil {
		publisher = NopPublisher()
	}
	return &UnitOfWork{
		log:       log.With(slog.String("component", "uow")),
		repo:      repo,
		publisher: publisher,
		metrics:   NopMetrics(),
		state:     UowIdle,
	}
}

func (u *UnitOfWork) State() UowState { return u.state }

// Pending returns a copy of the summaries awaiting publication.
func (u *UnitOfWork) Pending() []EventSummary {
	out := make([]EventSummary, len(u.pending))
	copy(out, u.pending)
	return out
}

func (u *UnitOfWork) Begin() error {
	if u.state == UowActive {
		return ErrNestedUnitOfWork
	}
	if u.state != UowIdle {
		return fmt.Errorf("%w: state=%s", ErrUnitOfWorkNotActive, u.state)
	}
	u.state = UowActive
	u.log.Debug("begin")
	return nil
}

// Repo returns the repository scoped to this unit of work: summaries of every
// successful save are tracked for publication at commit.
func (u *UnitOfWork) Repo() Repository {
	return &uowRepository{uow: u}
}

// Commit marks the unit of work committed and hands the accumulated
// summaries to the publisher. Events are already durable at this point: a
// publication failure does not fail the commit, it is reported separately as
// ErrPublicationFailed.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	if u.state != UowActive {
		return fmt.Errorf("%w: state=%s", ErrUnitOfWorkNotActive, u.state)
	}
	u.state = UowCommitted

	if len(u.pending) == 0 {
		u.log.Debug("commit", slog.Int("summaries", 0))
		return nil
	}

	summaries := u.pending
	u.pending = nil
	u.log.Debug("commit", slog.Int("summaries", len(summaries)))

	if err := u.publisher.Publish(ctx, summaries); err != nil {
		u.log.Error("summary publication failed", slog.Any("error", err))
		return fmt.Errorf("%w: %w", ErrPublicationFailed, err)
	}
	u.metrics.SummariesPublished(len(summaries))
	return nil
}

// Rollback discards staged summaries. No compensation is attempted for
// appends that already reached the store.
func (u *UnitOfWork) Rollback() error {
	if u.state != UowActive {
		return fmt.Errorf("%w: state=%s", ErrUnitOfWorkNotActive, u.state)
	}
	u.state = UowRolledBack
	u.pending = nil
	u.log.Debug("rollback")
	return nil
}

// Done returns the unit of work to idle unconditionally. Defer it right
// after Begin so it runs on every exit path.
func (u *UnitOfWork) Done() {
	u.state = UowIdle
	u.pending = nil
}

func (u *UnitOfWork) track(summaries []EventSummary) error {
	if u.state != UowActive {
		return fmt.Errorf("%w: state=%s", ErrUnitOfWorkNotActive, u.state)
	}
	u.pending = append(u.pending, summaries...)
	return nil
}

// === scoped repository ===

type uowRepository struct {
	uow *UnitOfWork
}

func (r *uowRepository) Load(ctx context.Context, agg Aggregate, opts ...LoadOption) error {
	return r.uow.repo.Load(ctx, agg, opts...)
}

func (r *uowRepository) Save(ctx context.Context, agg Aggregate, opts ...SaveOption) ([]EventSummary, error) {
	if r.uow.state != UowActive {
		return nil, fmt.Errorf("%w: state=%s", ErrUnitOfWorkNotActive, r.uow.state)
	}
	summaries, err := r.uow.repo.Save(ctx, agg, opts...)
	if err != nil {
		return nil, err
	}
	if err := r.uow.track(summaries); err != nil {
		return nil, err
	}
	return summaries, nil
}

func (r *uowRepository) CreateSnapshot(ctx context.Context, agg Aggregate) (*Snapshot, error) {
	return r.uow.repo.CreateSnapshot(ctx, agg)
}

var _ Repository = (*uowRepository)(nil)
