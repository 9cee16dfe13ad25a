package save

import "context"

type Store interface {
	Load(ctx context.Context, slot string) (State, error)
	Save(ctx context.Context, slot string, st State) (string, error)
	List(ctx context.Context) ([]SlotInfo, error)
	Delete(ctx context.Context, slot string) error
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*PGStore)(nil)
)
