package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// TerminalHandler 实例到达终态时的回调,业务模块按business_object_code注册
// 回调拿到的是已经终态的实例快照,据此更新自己的领域数据
type TerminalHandler func(ctx context.Context, instance *WorkflowInstancePo)

// BusinessNumberProvider 业务单号提供方,各业务对象自己实现
// 替代按字段名猜单号的做法,领取单/调拨单各自返回自己的单号
type BusinessNumberProvider interface {
	BusinessNumber(ctx context.Context, businessID string) (string, error)
}

var (
	terminalHandlers        = sync.Map{} // business_object_code -> TerminalHandler
	businessNumberProviders = sync.Map{} // business_object_code -> BusinessNumberProvider
)

// RegisterTerminalHandler 注册终态回调,业务模块启动时注册一次
// 重复注册返回错误,避免互相覆盖
func RegisterTerminalHandler(businessObjectCode string, handler TerminalHandler) error {
	if handler == nil {
		return fmt.Errorf("handler is nil")
	}
	if _, ok := terminalHandlers.Load(businessObjectCode); ok {
		return fmt.Errorf("terminal handler already registered, businessObjectCode: %s", businessObjectCode)
	}
	terminalHandlers.Store(businessObjectCode, handler)
	return nil
}

// RegisterBusinessNumberProvider 注册业务单号提供方
func RegisterBusinessNumberProvider(businessObjectCode string, provider BusinessNumberProvider) error {
	if provider == nil {
		return fmt.Errorf("provider is nil")
	}
	if _, ok := businessNumberProviders.Load(businessObjectCode); ok {
		return fmt.Errorf("business number provider already registered, businessObjectCode: %s", businessObjectCode)
	}
	businessNumberProviders.Store(businessObjectCode, provider)
	return nil
}

func getBusinessNumberProvider(businessObjectCode string) (BusinessNumberProvider, bool) {
	raw, ok := businessNumberProviders.Load(businessObjectCode)
	if !ok {
		return nil, false
	}
	provider, ok := raw.(BusinessNumberProvider)
	return provider, ok
}

// fireTerminalHandler 触发终态回调
// 只在实例状态迁移到终态的那次提交之后调用一次,并发提交只有一个能成功,所以恰好一次
// 回调在事务外面,panic兜住,回调失败不影响已经提交的状态
func fireTerminalHandler(ctx context.Context, instance *WorkflowInstancePo) {
	if instance == nil {
		return
	}
	raw, ok := terminalHandlers.Load(instance.BusinessObjectCode)
	if !ok {
		return
	}
	handler, ok := raw.(TerminalHandler)
	if !ok {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			slog.ErrorContext(ctx, fmt.Sprintf("terminal handler panic: %v, instanceNo: %s, stack: %s", r, instance.InstanceNo, string(stack)))
		}
	}()
	handler(ctx, instance)
}

// Notifier 通知发送协作方契约,cc/notify节点和新任务提醒用
// 发送失败只打日志,永远不影响状态变更
type Notifier interface {
	Notify(ctx context.Context, instance *WorkflowInstancePo, node *GraphNode, receivers []*Principal) error
}
