package workflow

import "github.com/pkg/errors"

var (
	// 错误分类,调用方通过 errors.Is 判断错误类别
	// ErrValidation: 图结构/语义校验失败,只会在发布/校验阶段产生,发布之后不会再出现
	ErrValidation = errors.New("workflow graph validation failed")
	// ErrConfiguration: 已发布的定义在运行期解析出问题,比如审批节点解析不到任何审批人
	// 和"定义不存在直接放行"是两回事,这里是定义存在但是配置有问题,需要人工介入
	ErrConfiguration = errors.New("workflow configuration error")
	// ErrStateConflict: 状态冲突,比如任务已经不是pending了还想操作,或者实例已经是终态了
	// 并发操作同一个任务时,只有一个能成功,失败的拿到这个错误,不可重试
	ErrStateConflict = errors.New("workflow state conflict")
	// ErrPermission: 操作人不是任务的处理人(或者撤回时不是发起人)
	ErrPermission = errors.New("workflow permission denied")
	// ErrNotFound: 实例/任务/定义不存在
	ErrNotFound = errors.New("workflow not found")

	// ErrWorkflowParamInvalid: 入参校验失败
	ErrWorkflowParamInvalid = errors.New("workflow param invalid")
)

// WorkflowDefinitionStatus 工作流定义状态
type WorkflowDefinitionStatus = string

const (
	WorkflowDefinitionStatusDraft      WorkflowDefinitionStatus = "draft"
	WorkflowDefinitionStatusPublished  WorkflowDefinitionStatus = "published"
	WorkflowDefinitionStatusArchived   WorkflowDefinitionStatus = "archived"
	WorkflowDefinitionStatusDeprecated WorkflowDefinitionStatus = "deprecated"
)

// WorkflowInstanceStatus 工作流实例状态
type WorkflowInstanceStatus = string

const (
	WorkflowInstanceStatusDraft   WorkflowInstanceStatus = "draft"
	WorkflowInstanceStatusRunning WorkflowInstanceStatus = "running"
	// 等待审批,有pending的审批任务
	WorkflowInstanceStatusPendingApproval WorkflowInstanceStatus = "pending_approval"
	// 下面四个都是终态,终态之后不允许再有任何状态变更
	WorkflowInstanceStatusApproved   WorkflowInstanceStatus = "approved"
	WorkflowInstanceStatusRejected   WorkflowInstanceStatus = "rejected"
	WorkflowInstanceStatusCancelled  WorkflowInstanceStatus = "cancelled"
	WorkflowInstanceStatusTerminated WorkflowInstanceStatus = "terminated"
)

// IsTerminalInstanceStatus 是否是实例终态,终态是吸收态
func IsTerminalInstanceStatus(status WorkflowInstanceStatus) bool {
	return status == WorkflowInstanceStatusApproved ||
		status == WorkflowInstanceStatusRejected ||
		status == WorkflowInstanceStatusCancelled ||
		status == WorkflowInstanceStatusTerminated
}

func GetWorkflowInstanceStatusText(status WorkflowInstanceStatus) string {
	switch status {
	case WorkflowInstanceStatusDraft:
		return "草稿"
	case WorkflowInstanceStatusRunning:
		return "运行中"
	case WorkflowInstanceStatusPendingApproval:
		return "待审批"
	case WorkflowInstanceStatusApproved:
		return "已通过"
	case WorkflowInstanceStatusRejected:
		return "已拒绝"
	case WorkflowInstanceStatusCancelled:
		return "已取消"
	case WorkflowInstanceStatusTerminated:
		return "已终止"
	}
	return "未知"
}

// WorkflowTaskStatus 审批任务状态
type WorkflowTaskStatus = string

const (
	// waiting 只用于sequence会签:还没轮到这个人,不能操作
	WorkflowTaskStatusWaiting  WorkflowTaskStatus = "waiting"
	WorkflowTaskStatusPending  WorkflowTaskStatus = "pending"
	WorkflowTaskStatusApproved WorkflowTaskStatus = "approved"
	WorkflowTaskStatusRejected WorkflowTaskStatus = "rejected"
	WorkflowTaskStatusReturned WorkflowTaskStatus = "returned"
	// cancelled: 被兄弟任务的结果连带取消(或签已有人处理/整单被拒等)
	WorkflowTaskStatusCancelled  WorkflowTaskStatus = "cancelled"
	WorkflowTaskStatusTerminated WorkflowTaskStatus = "terminated"
	// delegated 只出现在操作日志里,任务行本身换assignee后仍然是pending
	WorkflowTaskStatusDelegated WorkflowTaskStatus = "delegated"
	WorkflowTaskStatusWithdrawn WorkflowTaskStatus = "withdrawn"
)

// IsCompletedTaskStatus 任务是否被处理人实际处理完成
func IsCompletedTaskStatus(status WorkflowTaskStatus) bool {
	return status == WorkflowTaskStatusApproved ||
		status == WorkflowTaskStatusRejected ||
		status == WorkflowTaskStatusReturned
}

// IsOverTaskStatus 任务是否已经离开可操作状态,pending只能离开一次,离开后任务不可变
func IsOverTaskStatus(status WorkflowTaskStatus) bool {
	return status != WorkflowTaskStatusWaiting && status != WorkflowTaskStatusPending
}

func GetWorkflowTaskStatusText(status WorkflowTaskStatus) string {
	switch status {
	case WorkflowTaskStatusWaiting:
		return "未激活"
	case WorkflowTaskStatusPending:
		return "待处理"
	case WorkflowTaskStatusApproved:
		return "已同意"
	case WorkflowTaskStatusRejected:
		return "已拒绝"
	case WorkflowTaskStatusReturned:
		return "已退回"
	case WorkflowTaskStatusCancelled:
		return "已取消"
	case WorkflowTaskStatusTerminated:
		return "已终止"
	case WorkflowTaskStatusWithdrawn:
		return "已撤回"
	}
	return "未知"
}

// ApproveType 会签规则: 或签/会签/依次审批
type ApproveType = string

const (
	ApproveTypeOr       ApproveType = "or"
	ApproveTypeAnd      ApproveType = "and"
	ApproveTypeSequence ApproveType = "sequence"
)

// NodeType 流程图节点类型
type NodeType = string

const (
	NodeTypeStart     NodeType = "start"
	NodeTypeEnd       NodeType = "end"
	NodeTypeApproval  NodeType = "approval"
	NodeTypeCondition NodeType = "condition"
	NodeTypeCC        NodeType = "cc"
	NodeTypeNotify    NodeType = "notify"
	NodeTypeParallel  NodeType = "parallel"
)

// ApproverType 审批人解析策略
type ApproverType = string

const (
	ApproverTypeUser             ApproverType = "user"
	ApproverTypeRole             ApproverType = "role"
	ApproverTypeLeader           ApproverType = "leader"
	ApproverTypeDeptLeader       ApproverType = "dept_leader"
	ApproverTypeContinuousLeader ApproverType = "continuous_leader"
	ApproverTypeInitiator        ApproverType = "initiator"
	ApproverTypeSelfSelect       ApproverType = "self_select"
)

// ApprovalAction 审批动作,会写入审批记录,转交不算审批动作
type ApprovalAction = string

const (
	ApprovalActionApprove ApprovalAction = "approve"
	ApprovalActionReject  ApprovalAction = "reject"
	ApprovalActionReturn  ApprovalAction = "return"
)

// EndState end节点上声明的终态,没配置默认approved
type EndState = string

const (
	EndStateApproved  EndState = "approved"
	EndStateRejected  EndState = "rejected"
	EndStateCancelled EndState = "cancelled"
	EndStateTimeout   EndState = "timeout"
)

// IsSeriousError 用于定时脚本/调用方判断日志级别
// 严重错误定义: 需要人工介入处理
// 1. 已发布定义配置有问题,重试多少次都不会成功
// 2. 参数/权限/状态冲突属于正常业务冲突,不算严重
func IsSeriousError(err error) bool {
	if err == nil {
		return false
	}
	causeErr := errors.Cause(err)
	if errors.Is(causeErr, ErrConfiguration) ||
		errors.Is(causeErr, ErrValidation) {
		return true
	}
	return false
}
