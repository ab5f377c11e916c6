package effects

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alasdair-cooper/watch-history/internal/ir"
	"github.com/alasdair-cooper/watch-history/internal/kv"
)

// Storage performs KeyValue effects against a kv.Store.
type Storage struct {
	store   kv.Store
	timeout time.Duration
	logger  *slog.Logger
}

// StorageOption configures a Storage executor.
type StorageOption func(*Storage)

// WithStorageTimeout bounds each operation. Zero (the default) means no
// deadline beyond the caller's context.
func WithStorageTimeout(d time.Duration) StorageOption {
	return func(s *Storage) { s.timeout = d }
}

// WithStorageLogger sets the logger. Defaults to slog.Default().
func WithStorageLogger(l *slog.Logger) StorageOption {
	return func(s *Storage) { s.logger = l }
}

// NewStorage creates a storage executor over store.
func NewStorage(store kv.Store, opts ...StorageOption) *Storage {
	s := &Storage{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute runs one storage operation. Storage failures and unrecognized
// operations are reported in the result.
func (s *Storage) Execute(ctx context.Context, op ir.KeyValueOperation) (ir.KeyValueResult, error) {
	if s == nil || s.store == nil {
		return ir.KeyValueResult{}, errors.New("storage executor not initialized")
	}
	if !op.Op.Known() {
		s.logger.Error("unrecognized key-value operation", "op", uint32(op.Op))
		return kvFailure(ir.KeyValueErrorOther, fmt.Errorf("unrecognized operation %s", op.Op)), nil
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp := ir.KeyValueResponse{Op: op.Op}
	var err error
	switch op.Op {
	case ir.KeyValueGet:
		resp.Value, resp.Found, err = s.store.Get(ctx, op.Key)
	case ir.KeyValueSet:
		err = s.store.Set(ctx, op.Key, op.Value)
	case ir.KeyValueDelete:
		err = s.store.Delete(ctx, op.Key)
	case ir.KeyValueListKeys:
		resp.Keys, err = s.store.ListKeys(ctx, op.Prefix)
	case ir.KeyValueExists:
		resp.Exists, err = s.store.Exists(ctx, op.Key)
	}
	if err != nil {
		kind := ir.KeyValueErrorIO
		if errors.Is(err, context.DeadlineExceeded) {
			kind = ir.KeyValueErrorTimeout
		}
		s.logger.Warn("key-value operation failed", "op", op.Op.String(), "key", op.Key, "error", err)
		return kvFailure(kind, err), nil
	}

	s.logger.Debug("key-value operation", "op", op.Op.String(), "key", op.Key)
	return ir.KeyValueResult{Response: &resp}, nil
}

func kvFailure(kind ir.KeyValueErrorKind, err error) ir.KeyValueResult {
	return ir.KeyValueResult{Err: &ir.KeyValueError{Kind: kind, Message: err.Error()}}
}
