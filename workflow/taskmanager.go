package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

type TaskActionReq struct {
	TaskID  int64  `json:"task_id" validate:"gt=0"`
	Actor   string `json:"actor" validate:"required"`
	Comment string `json:"comment"`
}

type DelegateTaskReq struct {
	TaskID int64  `json:"task_id" validate:"gt=0"`
	Actor  string `json:"actor" validate:"required"`
	ToUser string `json:"to_user" validate:"required"`
	Reason string `json:"reason"`
}

// ApproveTask 同意
// 或签一人通过节点就通过,其余人任务连带取消
// 会签所有人都通过节点才通过
// 依次审批通过后激活下一个waiting的任务,最后一个人通过节点才通过
func (s *WorkflowServiceImpl) ApproveTask(ctx context.Context, req *TaskActionReq) error {
	return s.completeTask(ctx, req, ApprovalActionApprove, WorkflowTaskStatusApproved, OperationActionApprove)
}

// RejectTask 拒绝,任何一个人拒绝节点就拒绝,实例直接进rejected终态
func (s *WorkflowServiceImpl) RejectTask(ctx context.Context, req *TaskActionReq) error {
	return s.completeTask(ctx, req, ApprovalActionReject, WorkflowTaskStatusRejected, OperationActionReject)
}

// ReturnTask 退回发起人,实例回到draft,发起人修改后重新发起
func (s *WorkflowServiceImpl) ReturnTask(ctx context.Context, req *TaskActionReq) error {
	return s.completeTask(ctx, req, ApprovalActionReturn, WorkflowTaskStatusReturned, OperationActionReturn)
}

// completeTask 审批动作的公共骨架
// pending的二次检查靠条件更新的行数: where带上status=pending,行数为0说明
// 并发操作抢先把任务状态改掉了,本次按状态冲突失败,事务整体回滚
func (s *WorkflowServiceImpl) completeTask(ctx context.Context, req *TaskActionReq, action ApprovalAction, taskStatus WorkflowTaskStatus, logAction string) error {
	if err := validatorUtil.Struct(req); err != nil {
		return errors.Wrapf(ErrWorkflowParamInvalid, "completeTask failed, req: %v, err: %v", req, err)
	}
	task, err := s.taskByID(ctx, req.TaskID)
	if err != nil {
		return err
	}
	result := &advanceResult{}
	var instance *WorkflowInstancePo
	err = s.executeLock.NonBlockingSynchronized(ctx,
		workflowOpLockKey(task.InstanceID),
		10*time.Minute,
		func(ctx context.Context) error {
			return s.repo.Transaction(ctx, func(ctx context.Context) error {
				task, err = s.taskByID(ctx, req.TaskID)
				if err != nil {
					return err
				}
				if task.Status != WorkflowTaskStatusPending {
					return errors.Wrapf(ErrStateConflict, "task is not pending, taskID: %d, status: %s", task.ID, task.Status)
				}
				if task.Assignee != req.Actor {
					return errors.Wrapf(ErrPermission, "actor is not the assignee, taskID: %d, actor: %s", task.ID, req.Actor)
				}
				instance, err = s.instanceByID(ctx, task.InstanceID)
				if err != nil {
					return err
				}
				if IsTerminalInstanceStatus(instance.Status) {
					return errors.Wrapf(ErrStateConflict, "instance is terminal, instanceNo: %s, status: %s", instance.InstanceNo, instance.Status)
				}
				if err := s.transitionTask(ctx, task.ID, WorkflowTaskStatusPending, taskStatus); err != nil {
					return err
				}
				task.Status = taskStatus
				_, err = s.repo.CreateWorkflowApproval(ctx, &WorkflowApprovalPo{
					TaskID:     task.ID,
					InstanceID: instance.ID,
					Approver:   req.Actor,
					Action:     action,
					Comment:    req.Comment,
				})
				if err != nil {
					return errors.WithMessagef(err, "CreateWorkflowApproval failed, taskID: %d", task.ID)
				}
				return s.settleApprovalNode(ctx, instance, task, action, result)
			})
		})
	if err != nil {
		return errors.WithMessagef(err, "%s failed, taskID: %d", logAction, req.TaskID)
	}
	s.appendOperationLog(ctx, task.InstanceID, req.Actor, logAction,
		fmt.Sprintf("taskID: %d, nodeId: %s, comment: %s", task.ID, task.NodeID, req.Comment))
	s.afterAdvance(ctx, instance, result)
	return nil
}

// settleApprovalNode 一个任务完成后按会签规则判定节点结果
// reject/return立即定结果,approve按or/and/sequence分别处理,和任务更新在同一个事务里
func (s *WorkflowServiceImpl) settleApprovalNode(ctx context.Context, instance *WorkflowInstancePo, task *WorkflowTaskPo, action ApprovalAction, result *advanceResult) error {
	siblings, err := s.nodeTasks(ctx, instance.ID, task.NodeID)
	if err != nil {
		return err
	}
	var openSiblings []*WorkflowTaskPo
	for _, sibling := range siblings {
		if sibling.ID == task.ID {
			continue
		}
		if sibling.Status == WorkflowTaskStatusWaiting || sibling.Status == WorkflowTaskStatusPending {
			openSiblings = append(openSiblings, sibling)
		}
	}

	switch action {
	case ApprovalActionReject:
		// 一票否决,其余任务连带取消,实例直接进终态
		if err := s.cancelTasks(ctx, openSiblings); err != nil {
			return err
		}
		return s.transitionInstanceToTerminal(ctx, instance, WorkflowInstanceStatusRejected, "", result)
	case ApprovalActionReturn:
		return s.returnInstanceToDraft(ctx, instance, openSiblings)
	case ApprovalActionApprove:
		switch task.ApproveType {
		case ApproveTypeOr:
			if err := s.cancelTasks(ctx, openSiblings); err != nil {
				return err
			}
			return s.advancePastNode(ctx, instance, task.NodeID, result)
		case ApproveTypeAnd:
			if len(openSiblings) > 0 {
				// 还有人没审,节点未定,实例停在pending_approval
				return nil
			}
			return s.advancePastNode(ctx, instance, task.NodeID, result)
		case ApproveTypeSequence:
			next := nextWaitingTask(openSiblings)
			if next != nil {
				return s.activateSequenceTask(ctx, next, result)
			}
			if len(openSiblings) > 0 {
				return nil
			}
			return s.advancePastNode(ctx, instance, task.NodeID, result)
		}
		return errors.Wrapf(ErrConfiguration, "unexpected approve type, taskID: %d, approveType: %s", task.ID, task.ApproveType)
	}
	return errors.Wrapf(ErrWorkflowParamInvalid, "unexpected approval action: %s", action)
}

// returnInstanceToDraft 退回,实例回draft,当前节点拨回start,未结任务全部取消
// 发起人改完重新发起时从头走流程
func (s *WorkflowServiceImpl) returnInstanceToDraft(ctx context.Context, instance *WorkflowInstancePo, openSiblings []*WorkflowTaskPo) error {
	if err := s.cancelTasks(ctx, openSiblings); err != nil {
		return err
	}
	idx, err := s.definitionGraphIndex(ctx, instance.DefinitionID)
	if err != nil {
		return err
	}
	affected, err := s.repo.UpdateWorkflowInstance(ctx, &UpdateWorkflowInstanceParams{
		Where: &UpdateWorkflowInstanceWhere{
			IDIn:     []int64{instance.ID},
			StatusIn: nonTerminalInstanceStatuses(),
		},
		Fields: &UpdateWorkflowInstanceField{
			Status:        String(WorkflowInstanceStatusDraft),
			CurrentNodeID: String(idx.start.ID),
		},
		LimitMax: 1,
	})
	if err != nil {
		return errors.WithMessagef(err, "UpdateWorkflowInstance failed, instanceID: %d", instance.ID)
	}
	if affected == 0 {
		return errors.Wrapf(ErrStateConflict, "instance is terminal, instanceID: %d", instance.ID)
	}
	instance.Status = WorkflowInstanceStatusDraft
	instance.CurrentNodeID = idx.start.ID
	return nil
}

// advancePastNode 节点通过,从出边继续往后推进
func (s *WorkflowServiceImpl) advancePastNode(ctx context.Context, instance *WorkflowInstancePo, nodeID string, result *advanceResult) error {
	idx, err := s.definitionGraphIndex(ctx, instance.DefinitionID)
	if err != nil {
		return err
	}
	if err := s.markInstanceRunning(ctx, instance); err != nil {
		return err
	}
	edge, err := idx.singleOutgoingEdge(nodeID)
	if err != nil {
		return err
	}
	next, err := idx.edgeTarget(edge)
	if err != nil {
		return err
	}
	return s.processNode(ctx, instance, idx, next, NewJSONContext(instance.Variables), result)
}

// nextWaitingTask 依次审批的下一棒,sequence最小的waiting任务
func nextWaitingTask(openSiblings []*WorkflowTaskPo) *WorkflowTaskPo {
	var next *WorkflowTaskPo
	for _, sibling := range openSiblings {
		if sibling.Status != WorkflowTaskStatusWaiting {
			continue
		}
		if next == nil || sibling.Sequence < next.Sequence {
			next = sibling
		}
	}
	return next
}

func (s *WorkflowServiceImpl) activateSequenceTask(ctx context.Context, task *WorkflowTaskPo, result *advanceResult) error {
	if err := s.transitionTask(ctx, task.ID, WorkflowTaskStatusWaiting, WorkflowTaskStatusPending); err != nil {
		return err
	}
	task.Status = WorkflowTaskStatusPending
	result.newTasks = append(result.newTasks, task)
	return nil
}

// transitionTask 任务状态条件更新,from不匹配时行数为0,按状态冲突处理
func (s *WorkflowServiceImpl) transitionTask(ctx context.Context, taskID int64, fromStatus WorkflowTaskStatus, toStatus WorkflowTaskStatus) error {
	affected, err := s.repo.UpdateWorkflowTask(ctx, &UpdateWorkflowTaskParams{
		Where: &UpdateWorkflowTaskWhere{
			IDIn:     []int64{taskID},
			StatusIn: []string{fromStatus},
		},
		Fields: &UpdateWorkflowTaskField{
			Status: String(toStatus),
		},
		LimitMax: 1,
	})
	if err != nil {
		return errors.WithMessagef(err, "UpdateWorkflowTask failed, taskID: %d", taskID)
	}
	if affected == 0 {
		return errors.Wrapf(ErrStateConflict, "task status changed by concurrent operation, taskID: %d", taskID)
	}
	return nil
}

func (s *WorkflowServiceImpl) cancelTasks(ctx context.Context, tasks []*WorkflowTaskPo) error {
	if len(tasks) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(tasks))
	for _, task := range tasks {
		ids = append(ids, task.ID)
	}
	_, err := s.repo.UpdateWorkflowTask(ctx, &UpdateWorkflowTaskParams{
		Where: &UpdateWorkflowTaskWhere{
			IDIn:     ids,
			StatusIn: []string{WorkflowTaskStatusWaiting, WorkflowTaskStatusPending},
		},
		Fields: &UpdateWorkflowTaskField{
			Status: String(WorkflowTaskStatusCancelled),
		},
		LimitMax: len(ids),
	})
	if err != nil {
		return errors.WithMessagef(err, "cancel tasks failed, ids: %v", ids)
	}
	return nil
}

// DelegateTask 转交
// 任务行还是pending,只换处理人,转交留痕在任务行和操作日志上,不写审批记录
func (s *WorkflowServiceImpl) DelegateTask(ctx context.Context, req *DelegateTaskReq) error {
	if err := validatorUtil.Struct(req); err != nil {
		return errors.Wrapf(ErrWorkflowParamInvalid, "DelegateTask failed, req: %v, err: %v", req, err)
	}
	task, err := s.taskByID(ctx, req.TaskID)
	if err != nil {
		return err
	}
	err = s.executeLock.NonBlockingSynchronized(ctx,
		workflowOpLockKey(task.InstanceID),
		10*time.Minute,
		func(ctx context.Context) error {
			return s.repo.Transaction(ctx, func(ctx context.Context) error {
				task, err = s.taskByID(ctx, req.TaskID)
				if err != nil {
					return err
				}
				if task.Status != WorkflowTaskStatusPending {
					return errors.Wrapf(ErrStateConflict, "task is not pending, taskID: %d, status: %s", task.ID, task.Status)
				}
				if task.Assignee != req.Actor {
					return errors.Wrapf(ErrPermission, "actor is not the assignee, taskID: %d, actor: %s", task.ID, req.Actor)
				}
				toUser, err := s.resolver.resolveActiveUser(ctx, req.ToUser)
				if err != nil {
					return errors.WithMessagef(err, "delegate target lookup failed, toUser: %s", req.ToUser)
				}
				if toUser == nil {
					return errors.Wrapf(ErrWorkflowParamInvalid, "delegate target not found or inactive, toUser: %s", req.ToUser)
				}
				affected, err := s.repo.UpdateWorkflowTask(ctx, &UpdateWorkflowTaskParams{
					Where: &UpdateWorkflowTaskWhere{
						IDIn:     []int64{task.ID},
						StatusIn: []string{WorkflowTaskStatusPending},
					},
					Fields: &UpdateWorkflowTaskField{
						Assignee:       String(toUser.UserID),
						AssigneeName:   String(toUser.Name),
						DelegatedTo:    String(toUser.UserID),
						DelegatedFrom:  String(req.Actor),
						DelegatedAt:    Int64(time.Now().Unix()),
						DelegateReason: String(req.Reason),
					},
					LimitMax: 1,
				})
				if err != nil {
					return errors.WithMessagef(err, "UpdateWorkflowTask failed, taskID: %d", task.ID)
				}
				if affected == 0 {
					return errors.Wrapf(ErrStateConflict, "task status changed by concurrent operation, taskID: %d", task.ID)
				}
				return nil
			})
		})
	if err != nil {
		return errors.WithMessagef(err, "DelegateTask failed, taskID: %d", req.TaskID)
	}
	s.appendOperationLog(ctx, task.InstanceID, req.Actor, OperationActionDelegate,
		fmt.Sprintf("taskID: %d, from: %s, to: %s, reason: %s", task.ID, req.Actor, req.ToUser, req.Reason))
	return nil
}

// CancelTask 处理人取消自己的任务
// 节点上最后一个还能动的任务不允许取消,否则节点悬死,实例永远推不下去
func (s *WorkflowServiceImpl) CancelTask(ctx context.Context, req *TaskActionReq) error {
	if err := validatorUtil.Struct(req); err != nil {
		return errors.Wrapf(ErrWorkflowParamInvalid, "CancelTask failed, req: %v, err: %v", req, err)
	}
	task, err := s.taskByID(ctx, req.TaskID)
	if err != nil {
		return err
	}
	err = s.executeLock.NonBlockingSynchronized(ctx,
		workflowOpLockKey(task.InstanceID),
		10*time.Minute,
		func(ctx context.Context) error {
			return s.repo.Transaction(ctx, func(ctx context.Context) error {
				task, err = s.taskByID(ctx, req.TaskID)
				if err != nil {
					return err
				}
				if task.Status != WorkflowTaskStatusPending {
					return errors.Wrapf(ErrStateConflict, "task is not pending, taskID: %d, status: %s", task.ID, task.Status)
				}
				if task.Assignee != req.Actor {
					return errors.Wrapf(ErrPermission, "actor is not the assignee, taskID: %d, actor: %s", task.ID, req.Actor)
				}
				siblings, err := s.nodeTasks(ctx, task.InstanceID, task.NodeID)
				if err != nil {
					return err
				}
				hasOtherOpen := false
				for _, sibling := range siblings {
					if sibling.ID == task.ID {
						continue
					}
					if sibling.Status == WorkflowTaskStatusWaiting || sibling.Status == WorkflowTaskStatusPending {
						hasOtherOpen = true
						break
					}
				}
				if !hasOtherOpen {
					return errors.Wrapf(ErrStateConflict, "cannot cancel the last active task of the node, taskID: %d", task.ID)
				}
				return s.transitionTask(ctx, task.ID, WorkflowTaskStatusPending, WorkflowTaskStatusCancelled)
			})
		})
	if err != nil {
		return errors.WithMessagef(err, "CancelTask failed, taskID: %d", req.TaskID)
	}
	s.appendOperationLog(ctx, task.InstanceID, req.Actor, OperationActionCancelTask,
		fmt.Sprintf("taskID: %d, nodeId: %s", task.ID, task.NodeID))
	return nil
}

// WithdrawTask 发起人撤回
// 任务进withdrawn,实例其余未结任务连带取消,实例整体进cancelled终态
func (s *WorkflowServiceImpl) WithdrawTask(ctx context.Context, taskID int64, operator string) error {
	if taskID <= 0 || operator == "" {
		return errors.Wrapf(ErrWorkflowParamInvalid, "WithdrawTask failed, taskID: %d, operator: %s", taskID, operator)
	}
	task, err := s.taskByID(ctx, taskID)
	if err != nil {
		return err
	}
	result := &advanceResult{}
	var instance *WorkflowInstancePo
	err = s.executeLock.NonBlockingSynchronized(ctx,
		workflowOpLockKey(task.InstanceID),
		10*time.Minute,
		func(ctx context.Context) error {
			return s.repo.Transaction(ctx, func(ctx context.Context) error {
				task, err = s.taskByID(ctx, taskID)
				if err != nil {
					return err
				}
				instance, err = s.instanceByID(ctx, task.InstanceID)
				if err != nil {
					return err
				}
				if instance.Initiator != operator {
					return errors.Wrapf(ErrPermission, "only initiator can withdraw, instanceNo: %s, operator: %s", instance.InstanceNo, operator)
				}
				if task.Status != WorkflowTaskStatusPending {
					return errors.Wrapf(ErrStateConflict, "task is not pending, taskID: %d, status: %s", task.ID, task.Status)
				}
				if err := s.transitionTask(ctx, task.ID, WorkflowTaskStatusPending, WorkflowTaskStatusWithdrawn); err != nil {
					return err
				}
				// 实例其余未结任务一起收掉
				_, err := s.repo.UpdateWorkflowTask(ctx, &UpdateWorkflowTaskParams{
					Where: &UpdateWorkflowTaskWhere{
						InstanceID: &instance.ID,
						StatusIn:   []string{WorkflowTaskStatusWaiting, WorkflowTaskStatusPending},
					},
					Fields: &UpdateWorkflowTaskField{
						Status: String(WorkflowTaskStatusCancelled),
					},
					LimitMax: 1000,
				})
				if err != nil {
					return errors.WithMessagef(err, "cancel remaining tasks failed, instanceNo: %s", instance.InstanceNo)
				}
				return s.transitionInstanceToTerminal(ctx, instance, WorkflowInstanceStatusCancelled, "", result)
			})
		})
	if err != nil {
		return errors.WithMessagef(err, "WithdrawTask failed, taskID: %d", taskID)
	}
	s.appendOperationLog(ctx, task.InstanceID, operator, OperationActionWithdraw,
		fmt.Sprintf("taskID: %d, instanceNo: %s", task.ID, instance.InstanceNo))
	s.afterAdvance(ctx, instance, result)
	return nil
}

func (s *WorkflowServiceImpl) taskByID(ctx context.Context, taskID int64) (*WorkflowTaskPo, error) {
	tasks, err := s.repo.QueryWorkflowTask(ctx, &QueryWorkflowTaskParams{
		WorkflowTaskID: &taskID,
		Page:           &Pager{Page: 1, Size: 1},
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "QueryWorkflowTask failed, taskID: %d", taskID)
	}
	if len(tasks) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "task not found, taskID: %d", taskID)
	}
	return tasks[0], nil
}

func (s *WorkflowServiceImpl) instanceByID(ctx context.Context, instanceID int64) (*WorkflowInstancePo, error) {
	instances, err := s.repo.QueryWorkflowInstance(ctx, &QueryWorkflowInstanceParams{
		WorkflowInstanceID: &instanceID,
		Page:               &Pager{Page: 1, Size: 1},
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "QueryWorkflowInstance failed, instanceID: %d", instanceID)
	}
	if len(instances) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "instance not found, instanceID: %d", instanceID)
	}
	return instances[0], nil
}

func (s *WorkflowServiceImpl) nodeTasks(ctx context.Context, instanceID int64, nodeID string) ([]*WorkflowTaskPo, error) {
	isNoLimit := true
	orderbyIDAsc := true
	return s.repo.QueryWorkflowTask(ctx, &QueryWorkflowTaskParams{
		InstanceID:   &instanceID,
		NodeID:       &nodeID,
		OrderbyIDAsc: &orderbyIDAsc,
		Page:         &Pager{IsNoLimit: &isNoLimit},
	})
}

func (s *WorkflowServiceImpl) definitionGraphIndex(ctx context.Context, definitionID int64) (*graphIndex, error) {
	definitions, err := s.repo.QueryWorkflowDefinition(ctx, &QueryWorkflowDefinitionParams{
		DefinitionID: &definitionID,
		Page:         &Pager{Page: 1, Size: 1},
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "QueryWorkflowDefinition failed, definitionID: %d", definitionID)
	}
	if len(definitions) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "definition not found, definitionID: %d", definitionID)
	}
	graph, err := ParseGraphData(definitions[0].GraphData)
	if err != nil {
		return nil, errors.WithMessagef(ErrConfiguration, "definition has malformed graph, definitionID: %d", definitionID)
	}
	return newGraphIndex(graph)
}

// QueryPendingTasksByAssignee 查某人的待办
func (s *WorkflowServiceImpl) QueryPendingTasksByAssignee(ctx context.Context, assignee string) ([]*WorkflowTaskPo, error) {
	if assignee == "" {
		return nil, errors.Wrapf(ErrWorkflowParamInvalid, "assignee is empty")
	}
	orderbyIDAsc := false
	return s.repo.QueryWorkflowTask(ctx, &QueryWorkflowTaskParams{
		Assignee:     &assignee,
		StatusIn:     []string{WorkflowTaskStatusPending},
		OrderbyIDAsc: &orderbyIDAsc,
		Page:         &Pager{Page: 1, Size: 100},
	})
}

// QueryTasksByInstance 查实例的全部任务
func (s *WorkflowServiceImpl) QueryTasksByInstance(ctx context.Context, instanceID int64) ([]*WorkflowTaskPo, error) {
	isNoLimit := true
	orderbyIDAsc := true
	return s.repo.QueryWorkflowTask(ctx, &QueryWorkflowTaskParams{
		InstanceID:   &instanceID,
		OrderbyIDAsc: &orderbyIDAsc,
		Page:         &Pager{IsNoLimit: &isNoLimit},
	})
}

// QueryApprovalsByInstance 查实例的审批记录,按时间正序
func (s *WorkflowServiceImpl) QueryApprovalsByInstance(ctx context.Context, instanceID int64) ([]*WorkflowApprovalPo, error) {
	isNoLimit := true
	return s.repo.QueryWorkflowApproval(ctx, &QueryWorkflowApprovalParams{
		InstanceID: &instanceID,
		Page:       &Pager{IsNoLimit: &isNoLimit},
	})
}

// QueryOverdueTasks 查已超时还没处理的任务,定时提醒脚本用
func (s *WorkflowServiceImpl) QueryOverdueTasks(ctx context.Context) ([]*WorkflowTaskPo, error) {
	now := time.Now().Unix()
	orderbyIDAsc := true
	return s.repo.QueryWorkflowTask(ctx, &QueryWorkflowTaskParams{
		StatusIn:      []string{WorkflowTaskStatusPending},
		DueDateBefore: &now,
		OrderbyIDAsc:  &orderbyIDAsc,
		Page:          &Pager{Page: 1, Size: 200},
	})
}

// IsOverdue 任务是否已超时未处理
func IsOverdue(task *WorkflowTaskPo) bool {
	if task == nil {
		return false
	}
	return task.Status == WorkflowTaskStatusPending &&
		task.DueDate > 0 &&
		time.Now().Unix() > task.DueDate
}
