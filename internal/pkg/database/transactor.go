// internal/pkg/database/transactor.go
package database

import (
	"context"
	"sync"

	"gorm.io/gorm"
)

// Transactor 提供单元工作（unit of work）：fn 中的所有写操作要么一起提交，要么一起回滚。
// 通过 AfterCommit 注册的回调只会在提交成功后执行。
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type txKey struct{}

type unitOfWork struct {
	tx *gorm.DB

	mu    sync.Mutex
	hooks []func(ctx context.Context)
}

func (u *unitOfWork) addHook(fn func(ctx context.Context)) {
	u.mu.Lock()
	u.hooks = append(u.hooks, fn)
	u.mu.Unlock()
}

func (u *unitOfWork) runHooks(ctx context.Context) {
	u.mu.Lock()
	hooks := u.hooks
	u.hooks = nil
	u.mu.Unlock()
	for _, h := range hooks {
		h(ctx)
	}
}

func fromContext(ctx context.Context) *unitOfWork {
	u, _ := ctx.Value(txKey{}).(*unitOfWork)
	return u
}

// InTransaction 报告 ctx 是否处于一个单元工作之中。
func InTransaction(ctx context.Context) bool {
	return fromContext(ctx) != nil
}

// AfterCommit 注册一个提交后回调。ctx 中没有事务时立即执行。
// 回调拿到的是开启事务时的 ctx，而不是事务内部的 ctx。
func AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	if u := fromContext(ctx); u != nil {
		u.addHook(fn)
		return
	}
	fn(ctx)
}

// Conn 返回 ctx 中的事务连接，没有事务时返回 db 本身。仓储都应通过它拿连接。
func Conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if u := fromContext(ctx); u != nil && u.tx != nil {
		return u.tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

// GormTransactor 基于 gorm.DB.Transaction 实现 Transactor。
type GormTransactor struct {
	db *gorm.DB
}

func NewGormTransactor(db *gorm.DB) *GormTransactor {
	return &GormTransactor{db: db}
}

func (t *GormTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	// 嵌套调用直接加入外层事务，回调也挂在外层
	if InTransaction(ctx) {
		return fn(ctx)
	}

	uow := &unitOfWork{}
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		uow.tx = tx
		return fn(context.WithValue(ctx, txKey{}, uow))
	})
	if err != nil {
		return err
	}
	uow.runHooks(ctx)
	return nil
}

// MemoryTransactor 用于内存仓储：没有回滚能力，只保证回调在 fn 成功之后执行。
type MemoryTransactor struct{}

func NewMemoryTransactor() *MemoryTransactor { return &MemoryTransactor{} }

func (MemoryTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if InTransaction(ctx) {
		return fn(ctx)
	}
	uow := &unitOfWork{}
	if err := fn(context.WithValue(ctx, txKey{}, uow)); err != nil {
		return err
	}
	uow.runHooks(ctx)
	return nil
}
