package workflow

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	// 拿不到实例锁说明同一个实例上有并发操作正在进行,对调用方等同于状态冲突,不可重试
	LockFailedError        = errors.WithMessage(ErrStateConflict, "lock failed")
	LockFailedTimeOutError = errors.New("wait time out")
)

// WorkflowLock 实例级别的锁,同一个实例上的推进和审批动作互斥
type WorkflowLock interface {
	// NonBlockingSynchronized
	//  @Description:  1.非阻塞同步块,如果没有拿到锁，立刻返回错误
	//                 2.可以重入锁
	//  @param ctx 原来的ctx
	//  @param key 实例锁的key,见workflowOpLockKey
	//  @param maxLockTimeDuration 锁最大的时间
	//  @param f 具体执行函数的闭包
	//  @return error
	NonBlockingSynchronized(ctx context.Context, key string, maxLockTimeDuration time.Duration, f func(context.Context) error) error
}
