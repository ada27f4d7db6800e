package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type StartWorkflowReq struct {
	// DefinitionCode 流程key,和定义的code对应
	DefinitionCode string `json:"definition_code" validate:"required"`
	// BusinessObjectCode 为空时取DefinitionCode
	BusinessObjectCode string         `json:"business_object_code"`
	BusinessID         string         `json:"business_id" validate:"required"`
	BusinessNo         string         `json:"business_no"`
	Initiator          string         `json:"initiator" validate:"required"`
	OrgID              string         `json:"org_id"`
	Variables          map[string]any `json:"variables"`
}

// advanceResult 一次推进动作在事务里攒出来的后置工作
// 终态回调和通知都在事务提交之后做,失败不回滚已提交的状态
type advanceResult struct {
	terminal    *WorkflowInstancePo
	newTasks    []*WorkflowTaskPo
	notifyNodes []*GraphNode
}

func nonTerminalInstanceStatuses() []string {
	return []string{
		WorkflowInstanceStatusDraft,
		WorkflowInstanceStatusRunning,
		WorkflowInstanceStatusPendingApproval,
	}
}

// StartWorkflow 发起工作流
// 返回 (是否放行, 实例, error)
// 流程key没有published定义时是显式的自动通过放行: 返回(true, nil, nil),不创建实例
// 这不是错误,和"定义存在但配置有问题"(ErrConfiguration)是两回事
func (s *WorkflowServiceImpl) StartWorkflow(ctx context.Context, req *StartWorkflowReq) (bool, *WorkflowInstancePo, error) {
	if err := validatorUtil.Struct(req); err != nil {
		return false, nil, errors.Wrapf(ErrWorkflowParamInvalid, "StartWorkflow failed, req: %v, err: %v", req, err)
	}
	definition, err := s.GetPublishedDefinition(ctx, req.DefinitionCode)
	if err != nil {
		if errors.Is(errors.Cause(err), ErrNotFound) {
			slog.InfoContext(ctx, fmt.Sprintf("no published definition, auto approve pass-through, code: %s, businessId: %s", req.DefinitionCode, req.BusinessID))
			return true, nil, nil
		}
		return false, nil, err
	}
	graph, err := ParseGraphData(definition.GraphData)
	if err != nil {
		return false, nil, errors.WithMessagef(ErrConfiguration, "published definition has malformed graph, code: %s", req.DefinitionCode)
	}
	idx, err := newGraphIndex(graph)
	if err != nil {
		return false, nil, errors.WithMessagef(err, "build graph index failed, code: %s", req.DefinitionCode)
	}

	businessObjectCode := req.BusinessObjectCode
	if businessObjectCode == "" {
		businessObjectCode = req.DefinitionCode
	}
	variables := NewJSONContextFromMap(req.Variables)

	var instance *WorkflowInstancePo
	result := &advanceResult{}
	err = s.repo.Transaction(ctx, func(ctx context.Context) error {
		instance, err = s.repo.CreateWorkflowInstance(ctx, &WorkflowInstancePo{
			DefinitionID:       definition.ID,
			InstanceNo:         uuid.NewString(),
			BusinessObjectCode: businessObjectCode,
			BusinessID:         req.BusinessID,
			BusinessNo:         req.BusinessNo,
			OrgID:              req.OrgID,
			Status:             WorkflowInstanceStatusDraft,
			CurrentNodeID:      idx.start.ID,
			Variables:          variables.ToBytesWithoutError(),
			Initiator:          req.Initiator,
		})
		if err != nil {
			return errors.WithMessagef(err, "CreateWorkflowInstance failed, code: %s", req.DefinitionCode)
		}
		// draft -> running,然后从start节点开始推进
		if err := s.markInstanceRunning(ctx, instance); err != nil {
			return err
		}
		return s.processNode(ctx, instance, idx, idx.start, variables, result)
	})
	if err != nil {
		return false, nil, errors.WithMessagef(err, "StartWorkflow failed, code: %s, businessId: %s", req.DefinitionCode, req.BusinessID)
	}
	s.appendOperationLog(ctx, instance.ID, req.Initiator, OperationActionStartWorkflow,
		fmt.Sprintf("code: %s, businessId: %s, instanceNo: %s", req.DefinitionCode, req.BusinessID, instance.InstanceNo))
	s.afterAdvance(ctx, instance, result)
	return true, instance, nil
}

// StartOperationWorkflow 给业务模块的薄封装,processKey同时当定义code和业务对象code用
// 业务单号通过注册的BusinessNumberProvider取,取不到不阻塞发起
func (s *WorkflowServiceImpl) StartOperationWorkflow(ctx context.Context, processKey string, businessID string, initiator string, orgID string) (bool, *WorkflowInstancePo, error) {
	businessNo := ""
	if provider, ok := getBusinessNumberProvider(processKey); ok {
		no, err := provider.BusinessNumber(ctx, businessID)
		if err != nil {
			slog.WarnContext(ctx, fmt.Sprintf("BusinessNumber failed, processKey: %s, businessId: %s, err: %v", processKey, businessID, err))
		} else {
			businessNo = no
		}
	}
	return s.StartWorkflow(ctx, &StartWorkflowReq{
		DefinitionCode: processKey,
		BusinessID:     businessID,
		BusinessNo:     businessNo,
		Initiator:      initiator,
		OrgID:          orgID,
	})
}

func (s *WorkflowServiceImpl) markInstanceRunning(ctx context.Context, instance *WorkflowInstancePo) error {
	affected, err := s.repo.UpdateWorkflowInstance(ctx, &UpdateWorkflowInstanceParams{
		Where: &UpdateWorkflowInstanceWhere{
			IDIn: []int64{instance.ID},
			// 终态吸收:只允许从非终态出发
			StatusIn: nonTerminalInstanceStatuses(),
		},
		Fields: &UpdateWorkflowInstanceField{
			Status: String(WorkflowInstanceStatusRunning),
		},
		LimitMax: 1,
	})
	if err != nil {
		return errors.WithMessagef(err, "UpdateWorkflowInstance failed, instanceID: %d", instance.ID)
	}
	if affected == 0 {
		return errors.Wrapf(ErrStateConflict, "instance is terminal, instanceID: %d", instance.ID)
	}
	instance.Status = WorkflowInstanceStatusRunning
	return nil
}

// processNode 进入一个节点并持续推进,直到停在审批节点或者走到end
// 迭代实现,步数超过节点数说明图里有环(发布校验漏掉的脏数据),按配置错误终止
func (s *WorkflowServiceImpl) processNode(ctx context.Context, instance *WorkflowInstancePo, idx *graphIndex, node *GraphNode, variables *JSONContext, result *advanceResult) error {
	steps := 0
	for {
		steps++
		if steps > len(idx.graph.Nodes)+1 {
			return errors.Wrapf(ErrConfiguration, "node progression exceeded node count, suspect cycle, instanceNo: %s", instance.InstanceNo)
		}
		switch node.Type {
		case NodeTypeStart, NodeTypeParallel:
			// parallel扇出暂不支持,当直通节点处理,schema先留着
			edge, err := idx.singleOutgoingEdge(node.ID)
			if err != nil {
				return err
			}
			next, err := idx.edgeTarget(edge)
			if err != nil {
				return err
			}
			node = next
		case NodeTypeCC, NodeTypeNotify:
			// 抄送/通知不阻塞,事务提交后发送,直接走下一个节点
			result.notifyNodes = append(result.notifyNodes, node)
			edge, err := idx.singleOutgoingEdge(node.ID)
			if err != nil {
				return err
			}
			next, err := idx.edgeTarget(edge)
			if err != nil {
				return err
			}
			node = next
		case NodeTypeCondition:
			edgeID, err := s.evaluator.SelectBranch(node, idx.outgoingEdges(node.ID), variables)
			if err != nil {
				return err
			}
			next, err := s.findEdgeTarget(idx, node.ID, edgeID)
			if err != nil {
				return err
			}
			node = next
		case NodeTypeApproval:
			return s.enterApprovalNode(ctx, instance, node, variables, result)
		case NodeTypeEnd:
			return s.closeInstance(ctx, instance, node, result)
		default:
			return errors.Wrapf(ErrConfiguration, "unexpected node type at runtime, nodeId: %s, type: %s", node.ID, node.Type)
		}
	}
}

func (s *WorkflowServiceImpl) findEdgeTarget(idx *graphIndex, nodeID string, edgeID string) (*GraphNode, error) {
	for _, edge := range idx.outgoingEdges(nodeID) {
		if edge.ID == edgeID {
			return idx.edgeTarget(edge)
		}
	}
	return nil, errors.Wrapf(ErrConfiguration, "selected edge not found, nodeId: %s, edgeId: %s", nodeID, edgeID)
}

// enterApprovalNode 审批节点扇出任务,一个审批人一行任务
// 解析出来没有任何审批人按配置错误处理,整个事务回滚
func (s *WorkflowServiceImpl) enterApprovalNode(ctx context.Context, instance *WorkflowInstancePo, node *GraphNode, variables *JSONContext, result *advanceResult) error {
	props, err := parseApprovalProperties(node)
	if err != nil {
		return err
	}
	principals, err := s.resolver.ResolveFromVariables(ctx, props.Approvers, instance, variables)
	if err != nil {
		return errors.WithMessagef(err, "resolve approvers failed, nodeId: %s", node.ID)
	}
	if len(principals) == 0 {
		return errors.Wrapf(ErrConfiguration, "approval node resolved no approvers, instanceNo: %s, nodeId: %s", instance.InstanceNo, node.ID)
	}
	dueDate := int64(0)
	if props.Timeout > 0 {
		dueDate = time.Now().Unix() + props.Timeout*3600
	}
	for i, principal := range principals {
		status := WorkflowTaskStatusPending
		sequence := 0
		if props.ApproveType == ApproveTypeSequence {
			sequence = i + 1
			if i > 0 {
				// 依次审批只激活第一个,其余的等前面的人通过
				status = WorkflowTaskStatusWaiting
			}
		}
		task, err := s.repo.CreateWorkflowTask(ctx, &WorkflowTaskPo{
			InstanceID:   instance.ID,
			NodeID:       node.ID,
			NodeType:     node.Type,
			ApproveType:  props.ApproveType,
			Assignee:     principal.UserID,
			AssigneeName: principal.Name,
			Status:       status,
			Sequence:     sequence,
			DueDate:      dueDate,
		})
		if err != nil {
			return errors.WithMessagef(err, "CreateWorkflowTask failed, instanceNo: %s, nodeId: %s", instance.InstanceNo, node.ID)
		}
		if status == WorkflowTaskStatusPending {
			result.newTasks = append(result.newTasks, task)
		}
	}
	affected, err := s.repo.UpdateWorkflowInstance(ctx, &UpdateWorkflowInstanceParams{
		Where: &UpdateWorkflowInstanceWhere{
			IDIn:     []int64{instance.ID},
			StatusIn: nonTerminalInstanceStatuses(),
		},
		Fields: &UpdateWorkflowInstanceField{
			Status:        String(WorkflowInstanceStatusPendingApproval),
			CurrentNodeID: String(node.ID),
		},
		LimitMax: 1,
	})
	if err != nil {
		return errors.WithMessagef(err, "UpdateWorkflowInstance failed, instanceID: %d", instance.ID)
	}
	if affected == 0 {
		return errors.Wrapf(ErrStateConflict, "instance is terminal, instanceID: %d", instance.ID)
	}
	instance.Status = WorkflowInstanceStatusPendingApproval
	instance.CurrentNodeID = node.ID
	return nil
}

// closeInstance 走到end节点,按endState收尾
// 不认识的endState落回approved,发布校验时已经给过warning
func (s *WorkflowServiceImpl) closeInstance(ctx context.Context, instance *WorkflowInstancePo, node *GraphNode, result *advanceResult) error {
	endStatus := WorkflowInstanceStatusApproved
	if props, err := parseEndProperties(node); err == nil {
		switch props.EndState {
		case EndStateRejected:
			endStatus = WorkflowInstanceStatusRejected
		case EndStateCancelled:
			endStatus = WorkflowInstanceStatusCancelled
		case EndStateTimeout:
			endStatus = WorkflowInstanceStatusTerminated
		}
	}
	return s.transitionInstanceToTerminal(ctx, instance, endStatus, node.ID, result)
}

// transitionInstanceToTerminal 实例进终态
// 条件更新带非终态前置,并发收尾只有一个提交能生效,回调因此恰好触发一次
func (s *WorkflowServiceImpl) transitionInstanceToTerminal(ctx context.Context, instance *WorkflowInstancePo, terminalStatus WorkflowInstanceStatus, currentNodeID string, result *advanceResult) error {
	fields := &UpdateWorkflowInstanceField{
		Status: String(terminalStatus),
	}
	if currentNodeID != "" {
		fields.CurrentNodeID = String(currentNodeID)
	}
	affected, err := s.repo.UpdateWorkflowInstance(ctx, &UpdateWorkflowInstanceParams{
		Where: &UpdateWorkflowInstanceWhere{
			IDIn:     []int64{instance.ID},
			StatusIn: nonTerminalInstanceStatuses(),
		},
		Fields:   fields,
		LimitMax: 1,
	})
	if err != nil {
		return errors.WithMessagef(err, "UpdateWorkflowInstance failed, instanceID: %d", instance.ID)
	}
	if affected == 0 {
		return errors.Wrapf(ErrStateConflict, "instance is already terminal, instanceID: %d", instance.ID)
	}
	instance.Status = terminalStatus
	if currentNodeID != "" {
		instance.CurrentNodeID = currentNodeID
	}
	result.terminal = instance
	return nil
}

// afterAdvance 事务提交后的后置工作: 终态回调+通知
func (s *WorkflowServiceImpl) afterAdvance(ctx context.Context, instance *WorkflowInstancePo, result *advanceResult) {
	if result == nil {
		return
	}
	if result.terminal != nil {
		fireTerminalHandler(ctx, result.terminal)
	}
	if s.notifier == nil {
		return
	}
	for _, node := range result.notifyNodes {
		receivers := s.resolveNotifyReceivers(ctx, instance, node)
		if err := s.notifier.Notify(ctx, instance, node, receivers); err != nil {
			slog.WarnContext(ctx, fmt.Sprintf("notify failed, instanceNo: %s, nodeId: %s, err: %v", instance.InstanceNo, node.ID, err))
		}
	}
	for _, task := range result.newTasks {
		if err := s.notifier.Notify(ctx, instance, nil, []*Principal{{UserID: task.Assignee, Name: task.AssigneeName}}); err != nil {
			slog.WarnContext(ctx, fmt.Sprintf("notify new task failed, instanceNo: %s, taskID: %d, err: %v", instance.InstanceNo, task.ID, err))
		}
	}
}

// resolveNotifyReceivers cc/notify节点的接收人,复用审批人配置的形状
func (s *WorkflowServiceImpl) resolveNotifyReceivers(ctx context.Context, instance *WorkflowInstancePo, node *GraphNode) []*Principal {
	props, err := parseApprovalProperties(node)
	if err != nil {
		slog.WarnContext(ctx, fmt.Sprintf("parse notify node properties failed, nodeId: %s, err: %v", node.ID, err))
		return nil
	}
	receivers, err := s.resolver.ResolveFromVariables(ctx, props.Approvers, instance, NewJSONContext(instance.Variables))
	if err != nil {
		slog.WarnContext(ctx, fmt.Sprintf("resolve notify receivers failed, nodeId: %s, err: %v", node.ID, err))
		return nil
	}
	return receivers
}

// CancelInstance 发起人取消流程
// 实例和它所有未结任务在同一个事务里一起取消
func (s *WorkflowServiceImpl) CancelInstance(ctx context.Context, instanceNo string, operator string) error {
	instance, err := s.GetInstanceByNo(ctx, instanceNo)
	if err != nil {
		return err
	}
	if instance.Initiator != operator {
		return errors.Wrapf(ErrPermission, "only initiator can cancel, instanceNo: %s, operator: %s", instanceNo, operator)
	}
	return s.closeInstanceByAdmin(ctx, instance, operator, WorkflowInstanceStatusCancelled, WorkflowTaskStatusCancelled, OperationActionCancelInstance)
}

// TerminateInstance 管理员强制终止,任何非终态实例都可以终止
func (s *WorkflowServiceImpl) TerminateInstance(ctx context.Context, instanceNo string, operator string) error {
	instance, err := s.GetInstanceByNo(ctx, instanceNo)
	if err != nil {
		return err
	}
	return s.closeInstanceByAdmin(ctx, instance, operator, WorkflowInstanceStatusTerminated, WorkflowTaskStatusTerminated, OperationActionTerminateInstance)
}

func (s *WorkflowServiceImpl) closeInstanceByAdmin(ctx context.Context, instance *WorkflowInstancePo, operator string, instanceStatus WorkflowInstanceStatus, taskStatus WorkflowTaskStatus, logAction string) error {
	if IsTerminalInstanceStatus(instance.Status) {
		return errors.Wrapf(ErrStateConflict, "instance is already terminal, instanceNo: %s, status: %s", instance.InstanceNo, instance.Status)
	}
	result := &advanceResult{}
	err := s.executeLock.NonBlockingSynchronized(ctx,
		workflowOpLockKey(instance.ID),
		10*time.Minute,
		func(ctx context.Context) error {
			return s.repo.Transaction(ctx, func(ctx context.Context) error {
				if err := s.transitionInstanceToTerminal(ctx, instance, instanceStatus, "", result); err != nil {
					return err
				}
				// 未结任务同事务一起收掉
				_, err := s.repo.UpdateWorkflowTask(ctx, &UpdateWorkflowTaskParams{
					Where: &UpdateWorkflowTaskWhere{
						InstanceID: &instance.ID,
						StatusIn:   []string{WorkflowTaskStatusWaiting, WorkflowTaskStatusPending},
					},
					Fields: &UpdateWorkflowTaskField{
						Status: String(taskStatus),
					},
					LimitMax: 1000,
				})
				if err != nil {
					return errors.WithMessagef(err, "UpdateWorkflowTask failed, instanceNo: %s", instance.InstanceNo)
				}
				return nil
			})
		})
	if err != nil {
		return errors.WithMessagef(err, "%s failed, instanceNo: %s", logAction, instance.InstanceNo)
	}
	s.appendOperationLog(ctx, instance.ID, operator, logAction, fmt.Sprintf("instanceNo: %s", instance.InstanceNo))
	s.afterAdvance(ctx, instance, result)
	return nil
}

// GetInstanceByNo 按实例编号查实例
func (s *WorkflowServiceImpl) GetInstanceByNo(ctx context.Context, instanceNo string) (*WorkflowInstancePo, error) {
	if instanceNo == "" {
		return nil, errors.Wrapf(ErrWorkflowParamInvalid, "instanceNo is empty")
	}
	instances, err := s.repo.QueryWorkflowInstance(ctx, &QueryWorkflowInstanceParams{
		InstanceNo: &instanceNo,
		Page:       &Pager{Page: 1, Size: 1},
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "QueryWorkflowInstance failed, instanceNo: %s", instanceNo)
	}
	if len(instances) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "instance not found, instanceNo: %s", instanceNo)
	}
	return instances[0], nil
}

// QueryInstancesByBusiness 按业务对象查实例,业务模块查自己单据的审批状态用
func (s *WorkflowServiceImpl) QueryInstancesByBusiness(ctx context.Context, businessObjectCode string, businessID string) ([]*WorkflowInstancePo, error) {
	orderbyIDAsc := false
	return s.repo.QueryWorkflowInstance(ctx, &QueryWorkflowInstanceParams{
		BusinessObjectCode: &businessObjectCode,
		BusinessID:         &businessID,
		OrderbyIDAsc:       &orderbyIDAsc,
		Page:               &Pager{Page: 1, Size: 100},
	})
}

func workflowOpLockKey(workflowInstanceID int64) string {
	return fmt.Sprintf("workflow_instance_execute_%d", workflowInstanceID)
}
