// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package corosched

import (
	"fmt"
	"runtime"

	"github.com/joeycumines/logiface"
)

// schedulerOptions holds configuration options for Scheduler creation.
type schedulerOptions struct {
	processors int
	logger     *logiface.Logger[logiface.Event]
}

// SchedulerOption configures a Scheduler instance.
type SchedulerOption interface {
	applyScheduler(*schedulerOptions) error
}

// schedulerOptionImpl implements SchedulerOption.
type schedulerOptionImpl struct {
	applySchedulerFunc func(*schedulerOptions) error
}

func (o *schedulerOptionImpl) applyScheduler(opts *schedulerOptions) error {
	return o.applySchedulerFunc(opts)
}

// WithProcessors sets the number of processors (worker threads) the
// scheduler spawns. Defaults to runtime.NumCPU().
func WithProcessors(n int) SchedulerOption {
	return &schedulerOptionImpl{func(opts *schedulerOptions) error {
		if n <= 0 {
			return fmt.Errorf(`corosched: processors must be positive, got %d`, n)
		}
		opts.processors = n
		return nil
	}}
}

// WithLogger sets the scheduler's logger. A nil logger disables logging (the
// logiface fluent API is nil-safe). Defaults to the package-level logger,
// see SetLogger.
func WithLogger(logger *logiface.Logger[logiface.Event]) SchedulerOption {
	return &schedulerOptionImpl{func(opts *schedulerOptions) error {
		opts.logger = logger
		return nil
	}}
}

// resolveSchedulerOptions applies SchedulerOption instances to
// schedulerOptions.
func resolveSchedulerOptions(opts []SchedulerOption) (*schedulerOptions, error) {
	cfg := &schedulerOptions{
		processors: runtime.NumCPU(),
		logger:     defaultLogger(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyScheduler(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
