package workflow

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// NewLocalWorkflowLock 进程内实例锁,单机部署用,多实例部署用NewRedisWorkflowLock
func NewLocalWorkflowLock() WorkflowLock {
	return &localWorkflowLock{
		locks: &sync.Map{},
	}
}

type localWorkflowLock struct {
	locks *sync.Map // key -> *localLockInfo
}

// localLockInfo 一次加锁对应一个条目,释放时从map里摘掉,不复用
type localLockInfo struct {
	mu      sync.Mutex
	timer   *time.Timer // 超时定时器
	release sync.Once
}

// NonBlockingSynchronized 非阻塞同步执行
func (l *localWorkflowLock) NonBlockingSynchronized(ctx context.Context, key string, maxLockTimeDuration time.Duration, f func(context.Context) error) error {
	// 检查是否已经持有锁（可重入）
	valueInterface := ctx.Value(lockKey(key))
	_, ok := valueInterface.(string)

	if ok {
		// 已经持有锁，可重入，直接执行
		return f(ctx)
	}

	// 尝试获取锁
	lockInfo, _ := l.locks.LoadOrStore(key, &localLockInfo{})
	info := lockInfo.(*localLockInfo)

	// 尝试加锁
	locked := info.mu.TryLock()
	if !locked {
		// 锁被占用，立即返回失败
		return errors.WithMessage(LockFailedError, "[localWorkflowLock.NonBlockingSynchronized] has been locked")
	}

	// 条目可能在LoadOrStore和TryLock之间被持有者释放并从map摘掉了
	// 锁住的是一个孤儿条目,不算持锁,key上此时可能已经有别人的新条目
	if current, ok := l.locks.Load(key); !ok || current != lockInfo {
		info.mu.Unlock()
		return errors.WithMessage(LockFailedError, "[localWorkflowLock.NonBlockingSynchronized] lock entry replaced")
	}

	// 设置超时自动释放
	info.timer = time.AfterFunc(maxLockTimeDuration, func() {
		log.Printf("[localWorkflowLock.NonBlockingSynchronized] lock expired, key: %s", key)
		l.releaseInfo(key, info)
	})

	// 创建带锁标识的 context
	withKeyCtx := context.WithValue(ctx, lockKey(key), l.getRandomValue())

	// 确保释放锁
	defer l.releaseInfo(key, info)

	// 执行函数
	return f(withKeyCtx)
}

// getRandomValue 生成随机值
func (l *localWorkflowLock) getRandomValue() string {
	return fmt.Sprintf("%d_%d", rand.Int(), time.Now().UnixNano())
}

// releaseInfo 释放锁,正常释放和超时释放都走这里,sync.Once保证只释放一次
// 先从map摘掉条目再放互斥量,摘掉之后这个条目就再也通不过加锁时的二次确认
func (l *localWorkflowLock) releaseInfo(key string, info *localLockInfo) {
	info.release.Do(func() {
		if info.timer != nil {
			info.timer.Stop()
		}
		l.locks.CompareAndDelete(key, info)
		info.mu.Unlock()
	})
}
