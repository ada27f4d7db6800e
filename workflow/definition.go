package workflow

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

type CreateDefinitionReq struct {
	Code               string `json:"code" validate:"required"`
	Name               string `json:"name" validate:"required"`
	GraphData          []byte `json:"graph_data"`
	BusinessObjectCode string `json:"business_object_code" validate:"required"`
	FormPermissions    []byte `json:"form_permissions"`
	CreatedBy          string `json:"created_by" validate:"required"`
}

// CreateDefinition 创建工作流定义,初始是draft,版本从1开始
// 同一个code已经有draft在编辑时不允许再建
func (s *WorkflowServiceImpl) CreateDefinition(ctx context.Context, req *CreateDefinitionReq) (*WorkflowDefinitionPo, error) {
	if err := validatorUtil.Struct(req); err != nil {
		return nil, errors.Wrapf(ErrWorkflowParamInvalid, "CreateDefinition failed, req: %v, err: %v", req, err)
	}
	existing, err := s.repo.QueryWorkflowDefinition(ctx, &QueryWorkflowDefinitionParams{
		Code:     &req.Code,
		StatusIn: []string{WorkflowDefinitionStatusDraft},
		Page:     &Pager{Page: 1, Size: 1},
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "QueryWorkflowDefinition failed, code: %s", req.Code)
	}
	if len(existing) > 0 {
		return nil, errors.Wrapf(ErrStateConflict, "definition draft already exists, code: %s", req.Code)
	}
	version := int64(1)
	// 已经发布过的code,新draft的版本在最新版本上+1
	latest, err := s.latestDefinition(ctx, req.Code)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		version = latest.Version + 1
	}
	definition, err := s.repo.CreateWorkflowDefinition(ctx, &WorkflowDefinitionPo{
		Code:               req.Code,
		Name:               req.Name,
		GraphData:          req.GraphData,
		Status:             WorkflowDefinitionStatusDraft,
		Version:            version,
		BusinessObjectCode: req.BusinessObjectCode,
		FormPermissions:    req.FormPermissions,
		CreatedBy:          req.CreatedBy,
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "CreateWorkflowDefinition failed, code: %s", req.Code)
	}
	s.appendOperationLog(ctx, 0, req.CreatedBy, OperationActionCreateDefinition,
		fmt.Sprintf("code: %s, version: %d", req.Code, version))
	return definition, nil
}

// UpdateDefinitionGraph 更新定义的流程图,只有draft可以改,发布之后不可变
func (s *WorkflowServiceImpl) UpdateDefinitionGraph(ctx context.Context, code string, graphData []byte) error {
	if code == "" || len(graphData) == 0 {
		return errors.Wrapf(ErrWorkflowParamInvalid, "UpdateDefinitionGraph failed, code: %s", code)
	}
	definitions, err := s.repo.QueryWorkflowDefinition(ctx, &QueryWorkflowDefinitionParams{
		Code:     &code,
		StatusIn: []string{WorkflowDefinitionStatusDraft},
		Page:     &Pager{Page: 1, Size: 1},
	})
	if err != nil {
		return errors.WithMessagef(err, "QueryWorkflowDefinition failed, code: %s", code)
	}
	if len(definitions) == 0 {
		return errors.Wrapf(ErrStateConflict, "no draft definition to update, code: %s", code)
	}
	// 条件更新,带上draft状态,并发发布时输掉的一方行数为0
	affected, err := s.repo.UpdateWorkflowDefinition(ctx, &UpdateWorkflowDefinitionParams{
		Where: &UpdateWorkflowDefinitionWhere{
			IDIn:     []int64{definitions[0].ID},
			StatusIn: []string{WorkflowDefinitionStatusDraft},
		},
		Fields: &UpdateWorkflowDefinitionField{
			GraphData: &graphData,
		},
		LimitMax: 1,
	})
	if err != nil {
		return errors.WithMessagef(err, "UpdateWorkflowDefinition failed, code: %s", code)
	}
	if affected == 0 {
		return errors.Wrapf(ErrStateConflict, "definition is no longer a draft, code: %s", code)
	}
	return nil
}

// PublishDefinition 发布定义
// 先整体校验流程图,错误列表完整返回给调用方展示,有任何错误都不发布
// 发布成功后,同code之前的published版本转为archived
func (s *WorkflowServiceImpl) PublishDefinition(ctx context.Context, code string, operator string) ([]string, []string, error) {
	if code == "" {
		return nil, nil, errors.Wrapf(ErrWorkflowParamInvalid, "PublishDefinition failed, code is empty")
	}
	definitions, err := s.repo.QueryWorkflowDefinition(ctx, &QueryWorkflowDefinitionParams{
		Code:     &code,
		StatusIn: []string{WorkflowDefinitionStatusDraft},
		Page:     &Pager{Page: 1, Size: 1},
	})
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "QueryWorkflowDefinition failed, code: %s", code)
	}
	if len(definitions) == 0 {
		return nil, nil, errors.Wrapf(ErrNotFound, "no draft definition to publish, code: %s", code)
	}
	definition := definitions[0]

	graph, err := ParseGraphData(definition.GraphData)
	if err != nil {
		return []string{err.Error()}, nil, errors.WithMessagef(ErrValidation, "publish failed, code: %s", code)
	}
	ok, validationErrs, warnings := s.validator.Validate(graph)
	if !ok {
		return validationErrs, warnings, errors.Wrapf(ErrValidation, "publish failed, code: %s, %d errors", code, len(validationErrs))
	}

	err = s.repo.Transaction(ctx, func(ctx context.Context) error {
		// 老的published版本归档
		previous, err := s.repo.QueryWorkflowDefinition(ctx, &QueryWorkflowDefinitionParams{
			Code:     &code,
			StatusIn: []string{WorkflowDefinitionStatusPublished},
			Page:     &Pager{Page: 1, Size: 10},
		})
		if err != nil {
			return errors.WithMessagef(err, "QueryWorkflowDefinition failed, code: %s", code)
		}
		if len(previous) > 0 {
			previousIDs := make([]int64, 0, len(previous))
			for _, po := range previous {
				previousIDs = append(previousIDs, po.ID)
			}
			_, err = s.repo.UpdateWorkflowDefinition(ctx, &UpdateWorkflowDefinitionParams{
				Where: &UpdateWorkflowDefinitionWhere{
					IDIn:     previousIDs,
					StatusIn: []string{WorkflowDefinitionStatusPublished},
				},
				Fields: &UpdateWorkflowDefinitionField{
					Status: String(WorkflowDefinitionStatusArchived),
				},
				LimitMax: len(previousIDs),
			})
			if err != nil {
				return errors.WithMessagef(err, "archive previous published definition failed, code: %s", code)
			}
		}
		affected, err := s.repo.UpdateWorkflowDefinition(ctx, &UpdateWorkflowDefinitionParams{
			Where: &UpdateWorkflowDefinitionWhere{
				IDIn:     []int64{definition.ID},
				StatusIn: []string{WorkflowDefinitionStatusDraft},
			},
			Fields: &UpdateWorkflowDefinitionField{
				Status: String(WorkflowDefinitionStatusPublished),
			},
			LimitMax: 1,
		})
		if err != nil {
			return errors.WithMessagef(err, "UpdateWorkflowDefinition failed, code: %s", code)
		}
		if affected == 0 {
			return errors.Wrapf(ErrStateConflict, "definition is no longer a draft, code: %s", code)
		}
		return nil
	})
	if err != nil {
		return nil, warnings, err
	}
	s.appendOperationLog(ctx, 0, operator, OperationActionPublishDefinition,
		fmt.Sprintf("code: %s, version: %d", code, definition.Version))
	return nil, warnings, nil
}

// ArchiveDefinition 归档已发布的定义,归档后StartWorkflow走自动通过
func (s *WorkflowServiceImpl) ArchiveDefinition(ctx context.Context, code string) error {
	if code == "" {
		return errors.Wrapf(ErrWorkflowParamInvalid, "ArchiveDefinition failed, code is empty")
	}
	definition, err := s.GetPublishedDefinition(ctx, code)
	if err != nil {
		return err
	}
	affected, err := s.repo.UpdateWorkflowDefinition(ctx, &UpdateWorkflowDefinitionParams{
		Where: &UpdateWorkflowDefinitionWhere{
			IDIn:     []int64{definition.ID},
			StatusIn: []string{WorkflowDefinitionStatusPublished},
		},
		Fields: &UpdateWorkflowDefinitionField{
			Status: String(WorkflowDefinitionStatusArchived),
		},
		LimitMax: 1,
	})
	if err != nil {
		return errors.WithMessagef(err, "UpdateWorkflowDefinition failed, code: %s", code)
	}
	if affected == 0 {
		return errors.Wrapf(ErrStateConflict, "definition is not published, code: %s", code)
	}
	return nil
}

// GetPublishedDefinition 查当前生效的published定义
func (s *WorkflowServiceImpl) GetPublishedDefinition(ctx context.Context, code string) (*WorkflowDefinitionPo, error) {
	definitions, err := s.repo.QueryWorkflowDefinition(ctx, &QueryWorkflowDefinitionParams{
		Code:     &code,
		StatusIn: []string{WorkflowDefinitionStatusPublished},
		Page:     &Pager{Page: 1, Size: 1},
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "QueryWorkflowDefinition failed, code: %s", code)
	}
	if len(definitions) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "published definition not found, code: %s", code)
	}
	return definitions[0], nil
}

func (s *WorkflowServiceImpl) latestDefinition(ctx context.Context, code string) (*WorkflowDefinitionPo, error) {
	orderbyVersionDesc := true
	definitions, err := s.repo.QueryWorkflowDefinition(ctx, &QueryWorkflowDefinitionParams{
		Code:               &code,
		OrderbyVersionDesc: &orderbyVersionDesc,
		Page:               &Pager{Page: 1, Size: 1},
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "QueryWorkflowDefinition failed, code: %s", code)
	}
	if len(definitions) == 0 {
		return nil, nil
	}
	return definitions[0], nil
}
