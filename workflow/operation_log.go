package workflow

import (
	"context"
	"fmt"
	"log/slog"
)

// 操作日志动作,覆盖所有状态变更操作
const (
	OperationActionCreateDefinition  = "create_definition"
	OperationActionPublishDefinition = "publish_definition"
	OperationActionStartWorkflow     = "start_workflow"
	OperationActionApprove           = "approve"
	OperationActionReject            = "reject"
	OperationActionReturn            = "return"
	OperationActionDelegate          = "delegate"
	OperationActionCancelTask        = "cancel_task"
	OperationActionWithdraw          = "withdraw"
	OperationActionCancelInstance    = "cancel_instance"
	OperationActionTerminateInstance = "terminate_instance"
)

// appendOperationLog 追加操作日志
// 日志在状态变更事务外面写,写失败只打warn,不回滚已提交的状态变更
func (s *WorkflowServiceImpl) appendOperationLog(ctx context.Context, instanceID int64, operator string, action string, detail string) {
	_, err := s.repo.CreateOperationLog(ctx, &OperationLogPo{
		InstanceID: instanceID,
		Operator:   operator,
		Action:     action,
		Detail:     detail,
	})
	if err != nil {
		slog.WarnContext(ctx, fmt.Sprintf("CreateOperationLog failed, instanceID: %d, action: %s, err: %v", instanceID, action, err))
	}
}

// QueryOperationLogs 查询实例的操作日志,按时间正序
func (s *WorkflowServiceImpl) QueryOperationLogs(ctx context.Context, instanceID int64) ([]*OperationLogPo, error) {
	isNoLimit := true
	return s.repo.QueryOperationLog(ctx, &QueryOperationLogParams{
		InstanceID: &instanceID,
		Page:       &Pager{IsNoLimit: &isNoLimit},
	})
}
