// Package commonregister 业务模块接入审批流的公共注册逻辑
// 以资产领用单为例: 注册终态回调和业务单号提供方,并发布对应的审批流定义
package commonregister

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/blingmoon/approval-flow/workflow"
	"github.com/pkg/errors"
)

// AssetPickupProcessKey 资产领用审批流的流程key,同时用作业务对象code
const AssetPickupProcessKey = "asset_pickup"

// AssetPickupStore 资产领用单存储的最小契约,由资产模块实现
type AssetPickupStore interface {
	GetPickupNo(ctx context.Context, pickupID string) (string, error)
	// MarkApproved/MarkClosed 按审批结果落业务单状态
	MarkApproved(ctx context.Context, pickupID string) error
	MarkClosed(ctx context.Context, pickupID string, reason string) error
}

type assetPickupNumberProvider struct {
	store AssetPickupStore
}

func (p *assetPickupNumberProvider) BusinessNumber(ctx context.Context, businessID string) (string, error) {
	return p.store.GetPickupNo(ctx, businessID)
}

// RegisterAssetPickupWorkflow 资产模块启动时调用一次
// 注册终态回调: 审批通过把领用单置为已通过,其余终态关单
func RegisterAssetPickupWorkflow(store AssetPickupStore) error {
	if store == nil {
		return errors.New("nil AssetPickupStore")
	}
	err := workflow.RegisterBusinessNumberProvider(AssetPickupProcessKey, &assetPickupNumberProvider{store: store})
	if err != nil {
		return errors.WithMessage(err, "register business number provider failed")
	}
	err = workflow.RegisterTerminalHandler(AssetPickupProcessKey, func(ctx context.Context, instance *workflow.WorkflowInstancePo) {
		var handleErr error
		switch instance.Status {
		case workflow.WorkflowInstanceStatusApproved:
			handleErr = store.MarkApproved(ctx, instance.BusinessID)
		default:
			handleErr = store.MarkClosed(ctx, instance.BusinessID,
				workflow.GetWorkflowInstanceStatusText(instance.Status))
		}
		if handleErr != nil {
			slog.ErrorContext(ctx, fmt.Sprintf("asset pickup terminal handle failed, instanceNo: %s, err: %v", instance.InstanceNo, handleErr))
		}
	})
	if err != nil {
		return errors.WithMessage(err, "register terminal handler failed")
	}
	return nil
}

// PublishAssetPickupDefinition 发布资产领用的默认审批流
// 大于1000走主管+连续两级主管会签,其余(含金额缺省)直属主管或签
func PublishAssetPickupDefinition(ctx context.Context, service workflow.WorkflowService, operator string) error {
	graph := []byte(`{
		"nodes": [
			{"id": "start", "type": "start", "name": "发起领用"},
			{"id": "amount_check", "type": "condition", "name": "金额判断", "properties": {
				"branches": [
					{"edgeId": "e_high", "conditions": [{"field": "amount", "operator": "gt", "value": 1000}]},
					{"edgeId": "e_low", "conditions": [{"field": "amount", "operator": "ne", "value": -1}]}
				]
			}},
			{"id": "high_approve", "type": "approval", "name": "多级审批", "properties": {
				"approveType": "and",
				"approvers": [
					{"type": "leader"},
					{"type": "continuous_leader", "level": 2}
				],
				"timeout": 48
			}},
			{"id": "low_approve", "type": "approval", "name": "主管审批", "properties": {
				"approveType": "or",
				"approvers": [{"type": "leader"}],
				"timeout": 24
			}},
			{"id": "end_approved", "type": "end", "name": "通过", "properties": {"endState": "approved"}},
			{"id": "end_approved2", "type": "end", "name": "通过", "properties": {"endState": "approved"}}
		],
		"edges": [
			{"id": "e_start", "sourceNodeId": "start", "targetNodeId": "amount_check"},
			{"id": "e_high", "sourceNodeId": "amount_check", "targetNodeId": "high_approve"},
			{"id": "e_low", "sourceNodeId": "amount_check", "targetNodeId": "low_approve"},
			{"id": "e_high_end", "sourceNodeId": "high_approve", "targetNodeId": "end_approved"},
			{"id": "e_low_end", "sourceNodeId": "low_approve", "targetNodeId": "end_approved2"}
		]
	}`)
	_, err := service.CreateDefinition(ctx, &workflow.CreateDefinitionReq{
		Code:               AssetPickupProcessKey,
		Name:               "资产领用审批",
		GraphData:          graph,
		BusinessObjectCode: AssetPickupProcessKey,
		CreatedBy:          operator,
	})
	if err != nil {
		return errors.WithMessage(err, "create asset pickup definition failed")
	}
	validationErrs, warnings, err := service.PublishDefinition(ctx, AssetPickupProcessKey, operator)
	if err != nil {
		return errors.WithMessagef(err, "publish asset pickup definition failed, validation errs: %v", validationErrs)
	}
	for _, warning := range warnings {
		slog.Warn(fmt.Sprintf("asset pickup definition warning: %s", warning))
	}
	return nil
}
