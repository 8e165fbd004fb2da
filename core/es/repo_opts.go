package es

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// IDGenerator is a function that generates unique IDs for events.
type IDGenerator func() string

// DefaultIDGenerator returns the default ID generator using nanoid.
func DefaultIDGenerator() IDGenerator {
	return func() string { return gonanoid.Must() }
}

type (
	repoOpts struct {
		snapshotter Snapshotter
		idGenerator IDGenerator
		metrics     Metrics
	}

	repoSaveOptions struct {
		snapshot bool
	}

	repoLoadOptions struct {
		snapshot bool
	}
)

type (
	RepositoryOption      interface{ applyToRepository(*repoOpts) }
	RepoIDGeneratorOption valueOption[IDGenerator]
)

type (
	SaveOption interface{ applyToSaveOptions(*repoSaveOptions) }
	LoadOption interface{ applyToLoadOptions(*repoLoadOptions) }
)

// WithIDGenerator sets a custom ID generator for event envelope IDs.
func WithIDGenerator(gen IDGenerator) RepoIDGeneratorOption {
	return RepoIDGeneratorOption{v: gen}
}

// === repo ==

func (o SnapshotterOption) applyToRepository(options *repoOpts)     { options.snapshotter = o.v }
func (o RepoIDGeneratorOption) applyToRepository(options *repoOpts) { options.idGenerator = o.v }
func (o MetricsOption) applyToRepository(options *repoOpts)         { options.metrics = o.m }

func newRepoOpts(opts ...RepositoryOption) repoOpts {
	var options = repoOpts{
		idGenerator: DefaultIDGenerator(),
		metrics:     NopMetrics(),
	}
	for _, opt := range opts {
		opt.applyToRepository(&options)
	}
	return options
}

// === save ==

func (o SnapshotOption) applyToSaveOptions(options *repoSaveOptions) { options.snapshot = o.v }

func newSaveOptions(opts ...SaveOption) repoSaveOptions {
	options := repoSaveOptions{}
	for _, opt := range opts {
		opt.applyToSaveOptions(&options)
	}
	return options
}

// === load ==

func (o SnapshotOption) applyToLoadOptions(options *repoLoadOptions) { options.snapshot = o.v }

func newLoadOptions(opts ...LoadOption) repoLoadOptions {
	options := repoLoadOptions{}
	for _, opt := range opts {
		opt.applyToLoadOptions(&options)
	}
	return options
}
