// Package store persists the call journal and rotated refresh tokens.
package store

import (
	"context"

	"github.com/yourorg/qbmcp/pkg/types"
)

type Store interface {
	RecordCall(ctx context.Context, rec types.CallRecord) error
	ListCalls(ctx context.Context, limit int) ([]types.CallRecord, error)
	GetCall(ctx context.Context, id string) (*types.CallRecord, error)

	LoadRefreshToken(ctx context.Context, realmID string) (token, origin string, err error)
	SaveRefreshToken(ctx context.Context, realmID, token, origin string) error

	Close() error
}
