// Package storage provides sinks for the replay output stream: the event
// journal and per-operation results.
package storage

import (
	"context"

	"clpool/internal/model"
)

// Storage defines a sink for replay output.
type Storage interface {
	PutEventBatch(ctx context.Context, events []model.Event) error
	PutResultBatch(ctx context.Context, results []model.ApplyResult) error
}

// Multi fans writes out to several sinks; the first error wins.
type Multi []Storage

func (m Multi) PutEventBatch(ctx context.Context, events []model.Event) error {
	for _, s := range m {
		if err := s.PutEventBatch(ctx, events); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) PutResultBatch(ctx context.Context, results []model.ApplyResult) error {
	for _, s := range m {
		if err := s.PutResultBatch(ctx, results); err != nil {
			return err
		}
	}
	return nil
}
