package crawl

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Baabao/insert-itunes-collector/internal/catalog"
	"github.com/Baabao/insert-itunes-collector/internal/executor"
	"github.com/Baabao/insert-itunes-collector/internal/metrics"
	"github.com/Baabao/insert-itunes-collector/internal/request"
)

// Lookuper resolves one collection id to its detail. Satisfied by
// *catalog.Client.
type Lookuper interface {
	Lookup(ctx context.Context, id catalog.CollectionID) (catalog.Detail, error)
}

// Resolver fetches one collection's detail under the run timeout and
// records the outcome in the shared State.
type Resolver struct {
	lookup  Lookuper
	state   *State
	timeout time.Duration
	logger  *zap.Logger
}

// NewResolver builds a Resolver over the shared state.
func NewResolver(lookup Lookuper, state *State, timeout time.Duration, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		lookup:  lookup,
		state:   state,
		timeout: timeout,
		logger:  logger,
	}
}

// Resolve fetches the detail for id unless it is already in the result
// map, in which case it returns immediately without a network call. A
// transient failure (blocked or not found) mutates the retry ledger;
// other failures are logged and dropped. Resolve never returns an error,
// the run continues regardless of the outcome for one id.
func (r *Resolver) Resolve(ctx context.Context, id catalog.CollectionID) {
	if r.state.Resolved(id) {
		return
	}

	detail, ok := executor.Run(ctx, r.logger, "lookup "+id, r.timeout,
		func(taskCtx context.Context) (catalog.Detail, error) {
			d, err := r.lookup.Lookup(taskCtx, id)
			if err != nil {
				r.noteFailure(id, err)
				return catalog.Detail{}, err
			}
			return d, nil
		},
	)
	if !ok {
		metrics.ObserveDetail("unresolved")
		return
	}

	r.state.Insert(id, detail)
	metrics.ObserveDetail("resolved")
}

// noteFailure runs on the task goroutine and may run after the executor
// has abandoned the task; the State mutex keeps that safe.
func (r *Resolver) noteFailure(id catalog.CollectionID, err error) {
	if !request.IsTransient(err) {
		r.logger.Error("lookup failed without retry",
			zap.String("collection_id", id),
			zap.Error(err),
		)
		return
	}

	event := r.state.NoteFailure(id)
	metrics.ObserveQuotaEvent(string(event))
	switch event {
	case QuotaExhausted:
		r.logger.Info("retry quota exhausted, dropping collection",
			zap.String("collection_id", id),
		)
	default:
		quota, _ := r.state.Quota(id)
		r.logger.Info("transient lookup failure",
			zap.String("collection_id", id),
			zap.String("quota_event", string(event)),
			zap.Int("quota_left", quota),
			zap.Error(err),
		)
	}
}
