package workflow

import (
	"context"
)

// WorkflowRepo 持久化接口,领域逻辑不感知具体存储
// Update系列返回受影响行数,任务状态迁移靠条件更新的行数做提交时的二次检查
type WorkflowRepo interface {
	CreateWorkflowDefinition(ctx context.Context, definition *WorkflowDefinitionPo) (*WorkflowDefinitionPo, error)
	QueryWorkflowDefinition(ctx context.Context, param *QueryWorkflowDefinitionParams) ([]*WorkflowDefinitionPo, error)
	UpdateWorkflowDefinition(ctx context.Context, param *UpdateWorkflowDefinitionParams) (int64, error)

	CreateWorkflowInstance(ctx context.Context, instance *WorkflowInstancePo) (*WorkflowInstancePo, error)
	QueryWorkflowInstance(ctx context.Context, param *QueryWorkflowInstanceParams) ([]*WorkflowInstancePo, error)
	CountWorkflowInstance(ctx context.Context, param *QueryWorkflowInstanceParams) (int64, error)
	UpdateWorkflowInstance(ctx context.Context, param *UpdateWorkflowInstanceParams) (int64, error)

	CreateWorkflowTask(ctx context.Context, task *WorkflowTaskPo) (*WorkflowTaskPo, error)
	QueryWorkflowTask(ctx context.Context, param *QueryWorkflowTaskParams) ([]*WorkflowTaskPo, error)
	UpdateWorkflowTask(ctx context.Context, param *UpdateWorkflowTaskParams) (int64, error)

	// 审批记录和操作日志只追加,没有Update
	CreateWorkflowApproval(ctx context.Context, approval *WorkflowApprovalPo) (*WorkflowApprovalPo, error)
	QueryWorkflowApproval(ctx context.Context, param *QueryWorkflowApprovalParams) ([]*WorkflowApprovalPo, error)

	CreateOperationLog(ctx context.Context, operationLog *OperationLogPo) (*OperationLogPo, error)
	QueryOperationLog(ctx context.Context, param *QueryOperationLogParams) ([]*OperationLogPo, error)

	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}
