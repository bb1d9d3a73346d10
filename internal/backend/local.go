package backend

import (
	"context"
	"errors"

	"github.com/KaramelBytes/mixwizard-cli/internal/concat"
	"github.com/KaramelBytes/mixwizard-cli/internal/store"
)

// Local serves the concatenation-state surface straight from a store, for
// working without a running backend.
type Local struct {
	store store.Store
}

// NewLocal wraps s.
func NewLocal(s store.Store) *Local {
	return &Local{store: s}
}

func (l *Local) GetState(ctx context.Context, originalFileName string) (*concat.State, error) {
	return l.store.Get(ctx, originalFileName)
}

func (l *Local) PutState(ctx context.Context, st *concat.State) error {
	if st == nil {
		return errors.New("state cannot be nil")
	}
	return l.store.Put(ctx, st)
}

func (l *Local) DeleteState(ctx context.Context, originalFileName string) error {
	return l.store.Delete(ctx, originalFileName)
}

func (l *Local) ListStates(ctx context.Context) ([]string, error) {
	return l.store.List(ctx)
}

func (l *Local) Close() error { return l.store.Close() }
