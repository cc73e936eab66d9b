// Package notify provides alert.Notifier implementations.
package notify

import (
	"context"
	"errors"
	"fmt"

	"stockledger/internal/core/entity"
	"stockledger/internal/domain/alert"
	"stockledger/pkg/logger"
)

// Log writes every transition to the structured log.
type Log struct{}

var _ alert.Notifier = Log{}

// Notify implements alert.Notifier.
func (Log) Notify(ctx context.Context, transitions []entity.AlertTransition) error {
	for _, tr := range transitions {
		logger.Info(ctx, "stock alert "+string(tr.Change),
			"alert_id", tr.Alert.ID,
			"alert_type", tr.Alert.Type,
			"triple", tr.Alert.Triple.Key(),
			"threshold", tr.Alert.Threshold,
			"available", tr.Available)
	}
	return nil
}

// Fanout delivers to every notifier and joins their errors.
// A failing notifier does not stop the others.
type Fanout []alert.Notifier

var _ alert.Notifier = Fanout(nil)

// Notify implements alert.Notifier.
func (f Fanout) Notify(ctx context.Context, transitions []entity.AlertTransition) error {
	if len(transitions) == 0 {
		return nil
	}
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, transitions); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", n, err))
		}
	}
	return errors.Join(errs...)
}
