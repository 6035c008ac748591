package leaderboard

import (
	"context"
	"errors"

	"github.com/pigi/quizmaster/internal/session"
)

// MultiSink archives a result to every configured store. All stores are
// attempted even when one fails.
type MultiSink []session.ResultSink

// Save implements session.ResultSink.
func (m MultiSink) Save(ctx context.Context, result session.Result) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Save(ctx, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
