package workflow

import (
	"context"

	"github.com/go-playground/validator/v10"
)

var validatorUtil = validator.New()

// WorkflowService 审批流对外服务
// 定义管理/发起/审批操作/实例管理/查询都从这里走
type WorkflowService interface {
	// 定义管理
	CreateDefinition(ctx context.Context, req *CreateDefinitionReq) (*WorkflowDefinitionPo, error)
	UpdateDefinitionGraph(ctx context.Context, code string, graphData []byte) error
	// PublishDefinition 返回(校验错误列表, 警告列表, error),有校验错误时不发布
	PublishDefinition(ctx context.Context, code string, operator string) ([]string, []string, error)
	ArchiveDefinition(ctx context.Context, code string) error
	GetPublishedDefinition(ctx context.Context, code string) (*WorkflowDefinitionPo, error)
	ValidateGraph(graphData []byte) (bool, []string, []string)

	// 发起
	// StartWorkflow 返回(是否放行, 实例, error),没有published定义时自动放行且实例为nil
	StartWorkflow(ctx context.Context, req *StartWorkflowReq) (bool, *WorkflowInstancePo, error)
	StartOperationWorkflow(ctx context.Context, processKey string, businessID string, initiator string, orgID string) (bool, *WorkflowInstancePo, error)

	// 审批操作,都要求操作人是任务当前的处理人
	ApproveTask(ctx context.Context, req *TaskActionReq) error
	RejectTask(ctx context.Context, req *TaskActionReq) error
	ReturnTask(ctx context.Context, req *TaskActionReq) error
	DelegateTask(ctx context.Context, req *DelegateTaskReq) error
	CancelTask(ctx context.Context, req *TaskActionReq) error
	// WithdrawTask 发起人撤回,整个实例取消
	WithdrawTask(ctx context.Context, taskID int64, operator string) error

	// 实例管理
	CancelInstance(ctx context.Context, instanceNo string, operator string) error
	TerminateInstance(ctx context.Context, instanceNo string, operator string) error

	// 查询
	GetInstanceByNo(ctx context.Context, instanceNo string) (*WorkflowInstancePo, error)
	QueryInstancesByBusiness(ctx context.Context, businessObjectCode string, businessID string) ([]*WorkflowInstancePo, error)
	QueryPendingTasksByAssignee(ctx context.Context, assignee string) ([]*WorkflowTaskPo, error)
	QueryTasksByInstance(ctx context.Context, instanceID int64) ([]*WorkflowTaskPo, error)
	QueryApprovalsByInstance(ctx context.Context, instanceID int64) ([]*WorkflowApprovalPo, error)
	QueryOperationLogs(ctx context.Context, instanceID int64) ([]*OperationLogPo, error)
	QueryOverdueTasks(ctx context.Context) ([]*WorkflowTaskPo, error)
}

type WorkflowServiceImpl struct {
	repo        WorkflowRepo
	executeLock WorkflowLock
	directory   OrgDirectory
	resolver    *ApproverResolver
	evaluator   *ConditionEvaluator
	validator   *GraphValidator
	notifier    Notifier
}

// NewWorkflowService 创建服务
// notifier可以传nil,nil时cc/notify节点和新任务提醒静默跳过
func NewWorkflowService(repo WorkflowRepo, executeLock WorkflowLock, directory OrgDirectory, notifier Notifier) WorkflowService {
	return &WorkflowServiceImpl{
		repo:        repo,
		executeLock: executeLock,
		directory:   directory,
		resolver:    NewApproverResolver(directory),
		evaluator:   NewConditionEvaluator(),
		validator:   NewGraphValidator(),
		notifier:    notifier,
	}
}

// ValidateGraph 不落库,给前端编辑器做保存前校验用
func (s *WorkflowServiceImpl) ValidateGraph(graphData []byte) (bool, []string, []string) {
	graph, err := ParseGraphData(graphData)
	if err != nil {
		return false, []string{err.Error()}, nil
	}
	return s.validator.Validate(graph)
}

func String(s string) *string {
	return &s
}

func Bool(b bool) *bool {
	return &b
}

func Int64(i int64) *int64 {
	return &i
}
