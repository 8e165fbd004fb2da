package es

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"
)

type (
	// Repository rehydrates aggregates by replay and persists staged events
	// with optimistic concurrency. Save returns the summaries of the
	// appended events for the unit of work to publish after commit; the
	// repository itself never publishes.
	Repository interface {
		Load(ctx context.Context, agg Aggregate, opts ...LoadOption) error
		Save(ctx context.Context, agg Aggregate, opts ...SaveOption) ([]EventSummary, error)
		CreateSnapshot(ctx context.Context, agg Aggregate) (*Snapshot, error)
	}
)

type repository struct {
	log         *slog.Logger
	store       EventStore
	registry    *EventRegistry
	snapshotter Snapshotter
	idGenerator IDGenerator
	metrics     Metrics
}

func NewRepository(
	log *slog.Logger,
	store EventStore,
	registry *EventRegistry,
	opts ...RepositoryOption,
) Repository {
	options := newRepoOpts(opts...)

	r := &repository{
		log:         log.With(slog.String("repo", fmt.Sprintf("%T", store))),
		store:       store,
		registry:    registry,
		snapshotter: options.snapshotter,
		idGenerator: options.idGenerator,
		metrics:     options.metrics,
	}

	return r
}

// Load rehydrates agg from the store, applying each historical event in
// version order through the same transition function behavior operations
// use. Replayed events are never staged for re-save. Returns
// ErrAggregateNotFound when the stream has no history.
func (r *repository) Load(ctx context.Context, agg Aggregate, opts ...LoadOption) (err error) {
	aggType := agg.GetAggType()
	if aggType == "" {
		return errors.New("aggregate type is empty")
	}
	aggID := agg.GetID()
	if aggID == "" {
		return errors.New("aggregate id is empty")
	}
	if len(agg.Uncommitted()) != 0 {
		return errors.New("aggregate has uncommitted events (dirty=true)")
	}

	defer r.metrics.RepoLoadDuration(aggType).ObserveDuration()

	loadOptions := newLoadOptions(opts...)

	log := r.log.With(
		slog.Group(
			"agg",
			slog.String("type", aggType),
			slog.String("id", aggID),
		),
	)

	log.Debug("loading")

	if loadOptions.snapshot {
		if r.snapshotter == nil {
			return ErrSnapshotterUnconfigured
		}
		err = ApplySnapshot(ctx, r.snapshotter, agg)
		if err != nil {
			if !errors.Is(err, ErrSnapshotNotFound) {
				return fmt.Errorf("failed to apply snapshot: %w", err)
			}
		} else {
			log.Debug(
				"snapshot applied",
				slog.Uint64("seq", agg.GetSeq()),
				agg.GetVersion().SlogAttr(),
			)
		}
	}

	var (
		curVersion = agg.GetVersion()
		curSeq     = agg.GetSeq()
		minVersion = curVersion + 1
		minSeq     = curSeq + 1
	)

	log.Debug(
		"load",
		slog.Group("opts",
			slog.Uint64("min_seq", minSeq),
			minVersion.SlogAttrWithKey("min_version"),
			slog.Bool("snapshot", loadOptions.snapshot),
		),
	)

	loaded, err := r.store.Load(
		ctx,
		aggType,
		aggID,
		WithStartAtVersion(minVersion),
		WithStartAtSeq(minSeq),
	)
	if err != nil {
		// a snapshot at the stream head leaves nothing to replay
		if errors.Is(err, ErrAggregateNotFound) && curVersion > 0 {
			return nil
		}
		return err
	}

	for _, e := range loaded {

		expectVersion := agg.GetVersion() + 1
		if e.Version != expectVersion {
			return fmt.Errorf("expect version %d, got %d", expectVersion, e.Version)
		}

		evt, err := r.registry.Decode(e)
		if err != nil {
			return err
		}
		if err := agg.Apply(evt); err != nil {
			return err
		}

		// update version & sequence
		agg.setVersion(e.Version)
		agg.setSeq(e.Seq)
		curVersion = e.Version
		curSeq = e.Seq
	}

	if curVersion == 0 {
		return ErrAggregateNotFound
	}

	return nil
}

// Save appends the aggregate's staged events as one atomic batch, assigning
// versions contiguously from the aggregate's pre-command version. On
// ErrConcurrencyConflict it does not retry: only the command-level policy
// knows whether re-running the whole command is safe.
func (r *repository) Save(ctx context.Context, agg Aggregate, saveOpts ...SaveOption) ([]EventSummary, error) {
	uncommitted := agg.Uncommitted()
	if len(uncommitted) == 0 {
		return nil, nil
	}
	aggType := agg.GetAggType()
	if aggType == "" {
		return nil, errors.New("aggregate type is empty")
	}
	aggID := agg.GetID()
	if aggID == "" {
		return nil, errors.New("aggregate id is empty")
	}

	defer r.metrics.RepoSaveDuration(aggType).ObserveDuration()

	saveOptions := newSaveOptions(saveOpts...)

	expectVersion := agg.GetVersion()
	newEnvs := make([]Envelope, 0)
	v := expectVersion

	for _, ev := range uncommitted {
		data, err := json.Marshal(ev)
		if err != nil {
			return nil, err
		}

		v++

		env := Envelope{
			ID:            r.idGenerator(),
			Type:          getEventTypeOf(ev),
			AggregateID:   aggID,
			AggregateType: aggType,
			Version:       v,
			OccurredAt:    time.Now(),
			Data:          data,
		}

		err = env.Validate()
		if err != nil {
			return nil, err
		}

		newEnvs = append(newEnvs, env)
	}

	// append to store
	if res, err := r.store.Append(
		ctx,
		aggType,
		aggID,
		expectVersion,
		newEnvs,
	); err != nil {
		if errors.Is(err, ErrConcurrencyConflict) {
			r.metrics.ConcurrencyConflict(aggType)
		}
		return nil, fmt.Errorf("failed to save agg_type=%s agg_id=%s: %w", aggType, aggID, err)
	} else if res != nil {
		agg.setSeq(res.LastSeq)
	} else {
		return nil, errors.New("append returned nil result")
	}

	agg.setVersion(v)
	agg.ClearUncommitted()
	r.metrics.EventsAppended(aggType, len(newEnvs))

	summaries := make([]EventSummary, 0, len(newEnvs))
	for _, env := range newEnvs {
		summaries = append(summaries, env.Summary())
	}

	// create snapshot
	if saveOptions.snapshot {
		if _, snapshotErr := r.CreateSnapshot(ctx, agg); snapshotErr != nil {
			return nil, snapshotErr
		}
	}

	r.log.Debug(
		"saved",
		slog.Group(
			"agg",
			slog.String("id", aggID),
			slog.String("type", aggType),
			slog.Uint64("seq", agg.GetSeq()),
			agg.GetVersion().SlogAttr(),
		),
		slog.Int("num_events", len(newEnvs)),
	)

	return summaries, nil
}

func (r *repository) CreateSnapshot(ctx context.Context, agg Aggregate) (ss *Snapshot, err error) {
	if r.snapshotter == nil {
		return nil, ErrSnapshotterUnconfigured
	}
	ss, err = CreateSnapshot(agg, r.idGenerator)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot: %w", err)
	}
	err = r.snapshotter.SaveSnapshot(ctx, ss)
	if err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}
	r.log.Debug("snapshot saved", ss.logAttrs())
	return
}

var _ Repository = &repository{}

// === TypedRepository ===

type (
	TypedRepository[T Aggregate] interface {
		GetAggType() string
		New() T
		NewWithID(id string) T
		Load(ctx context.Context, a T, opts ...LoadOption) error
		Create(ctx context.Context, aggID string) (T, error)
		GetOrCreate(ctx context.Context, aggID string, opts ...LoadOption) (T, error)
		GetByID(ctx context.Context, aggID string, opts ...LoadOption) (T, error)
		Save(ctx context.Context, agg T, opts ...SaveOption) ([]EventSummary, error)
	}
)

type typedRepo[T Aggregate] struct {
	r   Repository
	log *slog.Logger
}

func (t *typedRepo[T]) New() T { return t.NewWithID("") }

// NewWithID constructs an empty aggregate instance before replay, the
// per-aggregate-kind factory repositories require.
func (t *typedRepo[T]) NewWithID(id string) T {
	var a T
	if c, ok := any(a).(interface{ Create() T }); ok {
		a = c.Create()
	} else {
		rt := reflect.TypeOf((*T)(nil)).Elem()
		if rt.Kind() == reflect.Pointer {
			a = reflect.New(rt.Elem()).Interface().(T)
		} else {
			a = *new(T)
		}
	}
	a.SetID(id)
	return a
}

func (t *typedRepo[T]) Load(ctx context.Context, a T, opts ...LoadOption) error {
	return t.r.Load(ctx, a, opts...)
}

func (t *typedRepo[T]) Create(ctx context.Context, aggID string) (a T, err error) {
	if aggID == "" {
		return a, errors.New("aggregate id is empty")
	}
	a = t.NewWithID(aggID)
	if err = a.Create(aggID); err != nil {
		return a, err
	}
	if _, err = t.Save(ctx, a); err != nil {
		return a, err
	}
	t.log.Debug("created", slog.String("id", aggID))
	return a, nil
}

func (t *typedRepo[T]) GetOrCreate(ctx context.Context, aggID string, opts ...LoadOption) (a T, err error) {
	if aggID == "" {
		return a, errors.New("aggregate id is empty")
	}
	a = t.NewWithID(aggID)
	err = t.r.Load(ctx, a, opts...)
	if err != nil {
		if errors.Is(err, ErrAggregateNotFound) {
			return t.Create(ctx, aggID)
		}
		return a, err
	}
	return a, nil
}

func (t *typedRepo[T]) GetByID(ctx context.Context, aggID string, opts ...LoadOption) (a T, err error) {
	if aggID == "" {
		return a, errors.New("aggregate id is empty")
	}
	a = t.NewWithID(aggID)
	err = t.r.Load(ctx, a, opts...)
	if err != nil {
		return
	}
	return a, nil
}

func (t *typedRepo[T]) Save(ctx context.Context, agg T, opts ...SaveOption) ([]EventSummary, error) {
	return t.r.Save(ctx, agg, opts...)
}

func (t *typedRepo[T]) GetAggType() string {
	a := t.New()
	return a.GetAggType()
}

func NewTypedRepository[T Aggregate](log *slog.Logger, s EventStore, reg *EventRegistry) TypedRepository[T] {
	return NewTypedRepositoryFrom[T](log, NewRepository(log, s, reg))
}

func NewTypedRepositoryFrom[T Aggregate](log *slog.Logger, r Repository) TypedRepository[T] {
	return &typedRepo[T]{r: r, log: log.With(slog.String("repo", fmt.Sprintf("%T", *new(T))))}
}
