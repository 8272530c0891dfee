// Package repository provides the PostgreSQL-backed implementations of the
// domain repository interfaces.
package repository

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// dbFrom returns the transaction bound to ctx by InTx, or the base handle.
// Every query goes through this so repository methods compose transparently
// with transactional service code.
func dbFrom(ctx context.Context, base *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return base.WithContext(ctx)
}
