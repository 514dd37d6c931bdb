package gedm

import (
	"context"
	"log/slog"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// RunTransaction runs fn inside a transaction of store. The ctx passed to fn
// carries the session, so every store operation issued with it joins the
// transaction. The transaction commits when fn returns nil and aborts when
// it returns an error or panics; the error of fn is returned unchanged.
//
// When ctx already carries a session, fn joins the enclosing transaction
// and the outcome is left to it.
func RunTransaction(ctx context.Context, store domain.Store, fn func(ctx context.Context) error) error {
	return runTransaction(ctx, store, slog.Default(), fn, nil)
}

func runTransaction(
	ctx context.Context,
	store domain.Store,
	logger *slog.Logger,
	fn func(ctx context.Context) error,
	notify func(ctx context.Context, event Event) error,
) error {
	if store == nil {
		return ErrNoStore
	}
	if domain.SessionFrom(ctx) != nil {
		return fn(ctx)
	}
	if notify == nil {
		notify = func(context.Context, Event) error { return nil }
	}

	sess, err := store.StartSession(ctx)
	if err != nil {
		return err
	}
	defer sess.EndSession(context.WithoutCancel(ctx))

	if err := sess.StartTransaction(ctx); err != nil {
		return err
	}
	txCtx := domain.WithSession(ctx, sess)

	abort := func() {
		abortCtx := context.WithoutCancel(ctx)
		if err := sess.AbortTransaction(abortCtx); err != nil {
			logger.WarnContext(ctx, "could not abort transaction", slog.Any("error", err))
		}
		if err := notify(abortCtx, EventTransactionAborted); err != nil {
			logger.WarnContext(ctx, "transaction abort listener failed", slog.Any("error", err))
		}
	}

	defer func() {
		if r := recover(); r != nil {
			abort()
			panic(r)
		}
	}()

	if err := fn(txCtx); err != nil {
		abort()
		return err
	}
	if err := sess.CommitTransaction(ctx); err != nil {
		if nerr := notify(context.WithoutCancel(ctx), EventTransactionAborted); nerr != nil {
			logger.WarnContext(ctx, "transaction abort listener failed", slog.Any("error", nerr))
		}
		return err
	}
	logger.DebugContext(ctx, "transaction committed")
	return notify(ctx, EventTransactionCommitted)
}
