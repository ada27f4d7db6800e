package workflow

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// WorkflowDefinitionPo 工作流定义持久化对象
// 发布之后graph_data不可变,只允许状态流转,重新发布产生version+1的新行
type WorkflowDefinitionPo struct {
	ID                 int64                    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Code               string                   `gorm:"column:code;index" json:"code"`
	Name               string                   `gorm:"column:name" json:"name"`
	GraphData          []byte                   `gorm:"column:graph_data" json:"graph_data"`
	Status             WorkflowDefinitionStatus `gorm:"column:status" json:"status"`
	Version            int64                    `gorm:"column:version" json:"version"`
	BusinessObjectCode string                   `gorm:"column:business_object_code" json:"business_object_code"`
	FormPermissions    []byte                   `gorm:"column:form_permissions" json:"form_permissions"`
	CreatedBy          string                   `gorm:"column:created_by" json:"created_by"`
	CreatedAt          int64                    `gorm:"column:created_at" json:"created_at"`
	UpdatedAt          int64                    `gorm:"column:updated_at" json:"updated_at"`
}

func (WorkflowDefinitionPo) TableName() string {
	return "workflow_definition"
}

// WorkflowInstancePo 工作流实例持久化对象
// 实例绑定一条外部业务记录,终态之后永不物理删除,只做归档
type WorkflowInstancePo struct {
	ID                 int64                  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	DefinitionID       int64                  `gorm:"column:definition_id" json:"definition_id"`
	InstanceNo         string                 `gorm:"column:instance_no;uniqueIndex" json:"instance_no"`
	BusinessObjectCode string                 `gorm:"column:business_object_code" json:"business_object_code"`
	BusinessID         string                 `gorm:"column:business_id" json:"business_id"`
	BusinessNo         string                 `gorm:"column:business_no" json:"business_no"`
	OrgID              string                 `gorm:"column:org_id" json:"org_id"`
	Status             WorkflowInstanceStatus `gorm:"column:status" json:"status"`
	CurrentNodeID      string                 `gorm:"column:current_node_id" json:"current_node_id"`
	Variables          []byte                 `gorm:"column:variables" json:"variables"`
	Initiator          string                 `gorm:"column:initiator" json:"initiator"`
	CreatedAt          int64                  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt          int64                  `gorm:"column:updated_at" json:"updated_at"`
}

func (WorkflowInstancePo) TableName() string {
	return "workflow_instance"
}

// WorkflowTaskPo 审批任务持久化对象,审批节点按审批人扇出,一人一行
type WorkflowTaskPo struct {
	ID             int64              `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	InstanceID     int64              `gorm:"column:instance_id;index" json:"instance_id"`
	NodeID         string             `gorm:"column:node_id" json:"node_id"`
	NodeType       NodeType           `gorm:"column:node_type" json:"node_type"`
	ApproveType    ApproveType        `gorm:"column:approve_type" json:"approve_type"`
	Assignee       string             `gorm:"column:assignee;index" json:"assignee"`
	AssigneeName   string             `gorm:"column:assignee_name" json:"assignee_name"`
	Status         WorkflowTaskStatus `gorm:"column:status" json:"status"`
	Sequence       int                `gorm:"column:sequence" json:"sequence"`
	DueDate        int64              `gorm:"column:due_date" json:"due_date"` // 0表示没有超时要求
	DelegatedTo    string             `gorm:"column:delegated_to" json:"delegated_to"`
	DelegatedFrom  string             `gorm:"column:delegated_from" json:"delegated_from"`
	DelegatedAt    int64              `gorm:"column:delegated_at" json:"delegated_at"`
	DelegateReason string             `gorm:"column:delegate_reason" json:"delegate_reason"`
	CreatedAt      int64              `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      int64              `gorm:"column:updated_at" json:"updated_at"`
}

func (WorkflowTaskPo) TableName() string {
	return "workflow_task"
}

// WorkflowApprovalPo 审批记录,只追加的审计记录,创建之后不会再改
type WorkflowApprovalPo struct {
	ID         int64          `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TaskID     int64          `gorm:"column:task_id;index" json:"task_id"`
	InstanceID int64          `gorm:"column:instance_id;index" json:"instance_id"`
	Approver   string         `gorm:"column:approver" json:"approver"`
	Action     ApprovalAction `gorm:"column:action" json:"action"`
	Comment    string         `gorm:"column:comment" json:"comment"`
	CreatedAt  int64          `gorm:"column:created_at" json:"created_at"`
}

func (WorkflowApprovalPo) TableName() string {
	return "workflow_approval"
}

// OperationLogPo 操作日志,覆盖所有状态变更操作,只追加
type OperationLogPo struct {
	ID         int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	InstanceID int64  `gorm:"column:instance_id;index" json:"instance_id"`
	Operator   string `gorm:"column:operator" json:"operator"`
	Action     string `gorm:"column:action" json:"action"`
	Detail     string `gorm:"column:detail" json:"detail"`
	CreatedAt  int64  `gorm:"column:created_at" json:"created_at"`
}

func (OperationLogPo) TableName() string {
	return "workflow_operation_log"
}

type Pager struct {
	IsNoLimit *bool `json:"is_no_limit"`
	Page      int64 `json:"page"`
	Size      int64 `json:"size"`
}

type QueryWorkflowDefinitionParams struct {
	DefinitionID       *int64   `json:"definition_id"`
	Code               *string  `json:"code"`
	StatusIn           []string `json:"status_in"`
	OrderbyVersionDesc *bool    `json:"orderby_version_desc"`
	Page               *Pager   `json:"page"`
}

type QueryWorkflowInstanceParams struct {
	WorkflowInstanceID *int64   `json:"workflow_instance_id"`
	InstanceNo         *string  `json:"instance_no"`
	DefinitionID       *int64   `json:"definition_id"`
	BusinessObjectCode *string  `json:"business_object_code"`
	BusinessID         *string  `json:"business_id"`
	Initiator          *string  `json:"initiator"`
	StatusIn           []string `json:"status_in"`
	IDGreaterThan      *int64   `json:"id_greater_than"`
	OrderbyIDAsc       *bool    `json:"orderby_id_asc"`
	Page               *Pager   `json:"page"`
}

type QueryWorkflowTaskParams struct {
	WorkflowTaskID *int64   `json:"workflow_task_id"`
	InstanceID     *int64   `json:"instance_id"`
	NodeID         *string  `json:"node_id"`
	Assignee       *string  `json:"assignee"`
	StatusIn       []string `json:"status_in"`
	// DueDateBefore 查超时任务: due_date > 0 且 due_date < DueDateBefore
	DueDateBefore *int64 `json:"due_date_before"`
	OrderbyIDAsc  *bool  `json:"orderby_id_asc"`
	Page          *Pager `json:"page"`
}

type QueryWorkflowApprovalParams struct {
	TaskID     *int64 `json:"task_id"`
	InstanceID *int64 `json:"instance_id"`
	Page       *Pager `json:"page"`
}

type QueryOperationLogParams struct {
	InstanceID *int64 `json:"instance_id"`
	Page       *Pager `json:"page"`
}

type UpdateWorkflowDefinitionParams struct {
	Where    *UpdateWorkflowDefinitionWhere `json:"where" validate:"required"`
	Fields   *UpdateWorkflowDefinitionField `json:"field" validate:"required"`
	LimitMax int                            `json:"limit_max" validate:"required"`
}

type UpdateWorkflowDefinitionWhere struct {
	IDIn     []int64  `json:"id_in"`
	StatusIn []string `json:"status_in"`
}

type UpdateWorkflowDefinitionField struct {
	Status    *string `json:"status"`
	GraphData *[]byte `json:"graph_data"`
	Name      *string `json:"name"`
}

type UpdateWorkflowInstanceParams struct {
	Where    *UpdateWorkflowInstanceWhere `json:"where" validate:"required"`
	Fields   *UpdateWorkflowInstanceField `json:"field" validate:"required"`
	LimitMax int                          `json:"limit_max" validate:"required"`
}

type UpdateWorkflowInstanceWhere struct {
	IDIn []int64 `json:"id_in"`
	// StatusIn 条件更新用,终态吸收就是靠它:只允许从指定状态出发的更新生效
	StatusIn []string `json:"status_in"`
}

type UpdateWorkflowInstanceField struct {
	Status        *string `json:"status"`
	CurrentNodeID *string `json:"current_node_id"`
	Variables     *[]byte `json:"variables"`
}

type UpdateWorkflowTaskParams struct {
	Where    *UpdateWorkflowTaskWhere `json:"where" validate:"required"`
	Fields   *UpdateWorkflowTaskField `json:"field" validate:"required"`
	LimitMax int                      `json:"limit_max" validate:"required"`
}

type UpdateWorkflowTaskWhere struct {
	IDIn       []int64  `json:"id_in"`
	InstanceID *int64   `json:"instance_id"`
	NodeID     *string  `json:"node_id"`
	// StatusIn pending二次检查靠它,提交时带上status条件,行数为0说明被并发操作抢先了
	StatusIn []string `json:"status_in"`
}

type UpdateWorkflowTaskField struct {
	Status         *string `json:"status"`
	Assignee       *string `json:"assignee"`
	AssigneeName   *string `json:"assignee_name"`
	DueDate        *int64  `json:"due_date"`
	DelegatedTo    *string `json:"delegated_to"`
	DelegatedFrom  *string `json:"delegated_from"`
	DelegatedAt    *int64  `json:"delegated_at"`
	DelegateReason *string `json:"delegate_reason"`
}

type workflowRepo struct {
	db *gorm.DB
}

func NewWorkflowRepo(db *gorm.DB) WorkflowRepo {
	return &workflowRepo{
		db: db,
	}
}

// AutoMigrate 建表,测试和示例用,生产环境走正式的migration
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&WorkflowDefinitionPo{},
		&WorkflowInstancePo{},
		&WorkflowTaskPo{},
		&WorkflowApprovalPo{},
		&OperationLogPo{},
	)
}

func (r *workflowRepo) CreateWorkflowDefinition(ctx context.Context, definition *WorkflowDefinitionPo) (*WorkflowDefinitionPo, error) {
	if definition == nil {
		return nil, errors.New("nil WorkflowDefinitionPo")
	}
	definition.CreatedAt = time.Now().Unix()
	definition.UpdatedAt = time.Now().Unix()
	if err := r.GetDBWithContext(ctx).Create(definition).Error; err != nil {
		return nil, errors.WithMessage(err, "CreateWorkflowDefinition failed")
	}
	return definition, nil
}

func buildQueryWorkflowDefinitionParams(db *gorm.DB, param *QueryWorkflowDefinitionParams) (*gorm.DB, error) {
	if param == nil {
		return nil, errors.New("nil QueryWorkflowDefinitionParams")
	}
	if param.DefinitionID != nil {
		db = db.Where("id = ?", param.DefinitionID)
	}
	if param.Code != nil {
		db = db.Where("code = ?", param.Code)
	}
	if len(param.StatusIn) != 0 {
		db = db.Where("status IN ?", param.StatusIn)
	}
	if param.OrderbyVersionDesc != nil && *param.OrderbyVersionDesc {
		db = db.Order("version desc")
	}
	return applyPager(db, param.Page)
}

func (r *workflowRepo) QueryWorkflowDefinition(ctx context.Context, param *QueryWorkflowDefinitionParams) ([]*WorkflowDefinitionPo, error) {
	db := r.GetDBWithContext(ctx).Model(&WorkflowDefinitionPo{})
	db, err := buildQueryWorkflowDefinitionParams(db, param)
	if err != nil {
		return nil, errors.WithMessage(err, "buildQueryWorkflowDefinitionParams failed")
	}
	pos := make([]*WorkflowDefinitionPo, 0)
	if err := db.Find(&pos).Error; err != nil {
		return nil, errors.WithMessage(err, "QueryWorkflowDefinition failed")
	}
	return pos, nil
}

func (r *workflowRepo) UpdateWorkflowDefinition(ctx context.Context, param *UpdateWorkflowDefinitionParams) (int64, error) {
	if param == nil || param.Where == nil || param.Fields == nil {
		return 0, errors.New("nil UpdateWorkflowDefinitionParams")
	}
	db := r.GetDBWithContext(ctx).Model(&WorkflowDefinitionPo{})
	isHasWhere := false
	if len(param.Where.IDIn) > 0 {
		isHasWhere = true
		db = db.Where("id IN ?", param.Where.IDIn)
	}
	if len(param.Where.StatusIn) > 0 {
		isHasWhere = true
		db = db.Where("status IN ?", param.Where.StatusIn)
	}
	if !isHasWhere {
		return 0, errors.New("update workflow definition need where condition, please check")
	}
	updateFields := make(map[string]any)
	if param.Fields.Status != nil {
		updateFields["status"] = *param.Fields.Status
	}
	if param.Fields.GraphData != nil {
		updateFields["graph_data"] = *param.Fields.GraphData
	}
	if param.Fields.Name != nil {
		updateFields["name"] = *param.Fields.Name
	}
	if len(updateFields) == 0 {
		return 0, errors.New("no fields to update")
	}
	updateFields["updated_at"] = time.Now().Unix()
	result := db.Updates(updateFields)
	if result.Error != nil {
		return 0, errors.WithMessage(result.Error, "UpdateWorkflowDefinition failed")
	}
	return result.RowsAffected, nil
}

func (r *workflowRepo) CreateWorkflowInstance(ctx context.Context, instance *WorkflowInstancePo) (*WorkflowInstancePo, error) {
	if instance == nil {
		return nil, errors.New("nil WorkflowInstancePo")
	}
	instance.CreatedAt = time.Now().Unix()
	instance.UpdatedAt = time.Now().Unix()
	if err := r.GetDBWithContext(ctx).Create(instance).Error; err != nil {
		return nil, errors.WithMessage(err, "CreateWorkflowInstance failed")
	}
	return instance, nil
}

func buildQueryWorkflowInstanceParams(db *gorm.DB, isCount bool, param *QueryWorkflowInstanceParams) (*gorm.DB, error) {
	if param == nil {
		return nil, errors.New("nil QueryWorkflowInstanceParams")
	}
	if param.WorkflowInstanceID != nil {
		db = db.Where("id = ?", param.WorkflowInstanceID)
	}
	if param.InstanceNo != nil {
		db = db.Where("instance_no = ?", param.InstanceNo)
	}
	if param.DefinitionID != nil {
		db = db.Where("definition_id = ?", param.DefinitionID)
	}
	if param.BusinessObjectCode != nil {
		db = db.Where("business_object_code = ?", param.BusinessObjectCode)
	}
	if param.BusinessID != nil {
		db = db.Where("business_id = ?", param.BusinessID)
	}
	if param.Initiator != nil {
		db = db.Where("initiator = ?", param.Initiator)
	}
	if len(param.StatusIn) != 0 {
		db = db.Where("status IN ?", param.StatusIn)
	}
	if param.IDGreaterThan != nil {
		db = db.Where("id > ?", param.IDGreaterThan)
	}
	if param.OrderbyIDAsc != nil && !isCount {
		if *param.OrderbyIDAsc {
			db = db.Order("id asc")
		} else {
			db = db.Order("id desc")
		}
	}
	if isCount {
		return db, nil
	}
	return applyPager(db, param.Page)
}

func applyPager(db *gorm.DB, page *Pager) (*gorm.DB, error) {
	if page == nil {
		return nil, errors.New("page is nil")
	}
	if page.IsNoLimit != nil && *page.IsNoLimit {
		return db, nil
	}
	if page.Page == 0 {
		page.Page = 1
	}
	if page.Size == 0 {
		page.Size = 10
	}
	return db.Offset(int(page.Page-1) * int(page.Size)).Limit(int(page.Size)), nil
}

func (r *workflowRepo) QueryWorkflowInstance(ctx context.Context, param *QueryWorkflowInstanceParams) ([]*WorkflowInstancePo, error) {
	db := r.GetDBWithContext(ctx).Model(&WorkflowInstancePo{})
	db, err := buildQueryWorkflowInstanceParams(db, false, param)
	if err != nil {
		return nil, errors.WithMessage(err, "buildQueryWorkflowInstanceParams failed")
	}
	pos := make([]*WorkflowInstancePo, 0)
	if err := db.Find(&pos).Error; err != nil {
		return nil, errors.WithMessage(err, "QueryWorkflowInstance failed")
	}
	return pos, nil
}

func (r *workflowRepo) CountWorkflowInstance(ctx context.Context, param *QueryWorkflowInstanceParams) (int64, error) {
	db := r.GetDBWithContext(ctx).Model(&WorkflowInstancePo{})
	db, err := buildQueryWorkflowInstanceParams(db, true, param)
	if err != nil {
		return 0, errors.WithMessage(err, "buildQueryWorkflowInstanceParams failed")
	}
	var count int64
	if err := db.Count(&count).Error; err != nil {
		return 0, errors.WithMessage(err, "CountWorkflowInstance failed")
	}
	return count, nil
}

func (r *workflowRepo) UpdateWorkflowInstance(ctx context.Context, param *UpdateWorkflowInstanceParams) (int64, error) {
	if param == nil || param.Where == nil || param.Fields == nil {
		return 0, errors.New("nil UpdateWorkflowInstanceParams")
	}
	db := r.GetDBWithContext(ctx).Model(&WorkflowInstancePo{})
	isHasWhere := false
	if len(param.Where.IDIn) > 0 {
		isHasWhere = true
		db = db.Where("id IN ?", param.Where.IDIn)
	}
	if len(param.Where.StatusIn) > 0 {
		isHasWhere = true
		db = db.Where("status IN ?", param.Where.StatusIn)
	}
	if !isHasWhere {
		return 0, errors.New("update workflow instance need where condition, please check")
	}
	updateFields := make(map[string]any)
	if param.Fields.Status != nil {
		updateFields["status"] = *param.Fields.Status
	}
	if param.Fields.CurrentNodeID != nil {
		updateFields["current_node_id"] = *param.Fields.CurrentNodeID
	}
	if param.Fields.Variables != nil {
		updateFields["variables"] = *param.Fields.Variables
	}
	if len(updateFields) == 0 {
		return 0, errors.New("no fields to update")
	}
	updateFields["updated_at"] = time.Now().Unix()
	result := db.Updates(updateFields)
	if result.Error != nil {
		return 0, errors.WithMessage(result.Error, "UpdateWorkflowInstance failed")
	}
	return result.RowsAffected, nil
}

func (r *workflowRepo) CreateWorkflowTask(ctx context.Context, task *WorkflowTaskPo) (*WorkflowTaskPo, error) {
	if task == nil {
		return nil, errors.New("nil WorkflowTaskPo")
	}
	task.CreatedAt = time.Now().Unix()
	task.UpdatedAt = time.Now().Unix()
	if err := r.GetDBWithContext(ctx).Create(task).Error; err != nil {
		return nil, errors.WithMessage(err, "CreateWorkflowTask failed")
	}
	return task, nil
}

func buildQueryWorkflowTaskParams(db *gorm.DB, param *QueryWorkflowTaskParams) (*gorm.DB, error) {
	if param == nil {
		return nil, errors.New("nil QueryWorkflowTaskParams")
	}
	if param.WorkflowTaskID != nil {
		db = db.Where("id = ?", param.WorkflowTaskID)
	}
	if param.InstanceID != nil {
		db = db.Where("instance_id = ?", param.InstanceID)
	}
	if param.NodeID != nil {
		db = db.Where("node_id = ?", param.NodeID)
	}
	if param.Assignee != nil {
		db = db.Where("assignee = ?", param.Assignee)
	}
	if len(param.StatusIn) != 0 {
		db = db.Where("status IN ?", param.StatusIn)
	}
	if param.DueDateBefore != nil {
		db = db.Where("due_date > 0 AND due_date < ?", param.DueDateBefore)
	}
	if param.OrderbyIDAsc != nil {
		if *param.OrderbyIDAsc {
			db = db.Order("id asc")
		} else {
			db = db.Order("id desc")
		}
	}
	return applyPager(db, param.Page)
}

func (r *workflowRepo) QueryWorkflowTask(ctx context.Context, param *QueryWorkflowTaskParams) ([]*WorkflowTaskPo, error) {
	db := r.GetDBWithContext(ctx).Model(&WorkflowTaskPo{})
	db, err := buildQueryWorkflowTaskParams(db, param)
	if err != nil {
		return nil, errors.WithMessage(err, "buildQueryWorkflowTaskParams failed")
	}
	pos := make([]*WorkflowTaskPo, 0)
	if err := db.Find(&pos).Error; err != nil {
		return nil, errors.WithMessage(err, "QueryWorkflowTask failed")
	}
	return pos, nil
}

func (r *workflowRepo) UpdateWorkflowTask(ctx context.Context, param *UpdateWorkflowTaskParams) (int64, error) {
	if param == nil || param.Where == nil || param.Fields == nil {
		return 0, errors.New("nil UpdateWorkflowTaskParams")
	}
	db := r.GetDBWithContext(ctx).Model(&WorkflowTaskPo{})
	isHasWhere := false
	if len(param.Where.IDIn) > 0 {
		isHasWhere = true
		db = db.Where("id IN ?", param.Where.IDIn)
	}
	if param.Where.InstanceID != nil {
		isHasWhere = true
		db = db.Where("instance_id = ?", param.Where.InstanceID)
	}
	if param.Where.NodeID != nil {
		db = db.Where("node_id = ?", param.Where.NodeID)
	}
	if len(param.Where.StatusIn) > 0 {
		db = db.Where("status IN ?", param.Where.StatusIn)
	}
	if !isHasWhere {
		return 0, errors.New("update workflow task need where condition, please check")
	}
	updateFields := make(map[string]any)
	if param.Fields.Status != nil {
		updateFields["status"] = *param.Fields.Status
	}
	if param.Fields.Assignee != nil {
		updateFields["assignee"] = *param.Fields.Assignee
	}
	if param.Fields.AssigneeName != nil {
		updateFields["assignee_name"] = *param.Fields.AssigneeName
	}
	if param.Fields.DueDate != nil {
		updateFields["due_date"] = *param.Fields.DueDate
	}
	if param.Fields.DelegatedTo != nil {
		updateFields["delegated_to"] = *param.Fields.DelegatedTo
	}
	if param.Fields.DelegatedFrom != nil {
		updateFields["delegated_from"] = *param.Fields.DelegatedFrom
	}
	if param.Fields.DelegatedAt != nil {
		updateFields["delegated_at"] = *param.Fields.DelegatedAt
	}
	if param.Fields.DelegateReason != nil {
		updateFields["delegate_reason"] = *param.Fields.DelegateReason
	}
	if len(updateFields) == 0 {
		return 0, errors.New("no fields to update")
	}
	updateFields["updated_at"] = time.Now().Unix()
	result := db.Updates(updateFields)
	if result.Error != nil {
		return 0, errors.WithMessage(result.Error, "UpdateWorkflowTask failed")
	}
	return result.RowsAffected, nil
}

func (r *workflowRepo) CreateWorkflowApproval(ctx context.Context, approval *WorkflowApprovalPo) (*WorkflowApprovalPo, error) {
	if approval == nil {
		return nil, errors.New("nil WorkflowApprovalPo")
	}
	approval.CreatedAt = time.Now().Unix()
	if err := r.GetDBWithContext(ctx).Create(approval).Error; err != nil {
		return nil, errors.WithMessage(err, "CreateWorkflowApproval failed")
	}
	return approval, nil
}

func (r *workflowRepo) QueryWorkflowApproval(ctx context.Context, param *QueryWorkflowApprovalParams) ([]*WorkflowApprovalPo, error) {
	if param == nil {
		return nil, errors.New("nil QueryWorkflowApprovalParams")
	}
	db := r.GetDBWithContext(ctx).Model(&WorkflowApprovalPo{})
	if param.TaskID != nil {
		db = db.Where("task_id = ?", param.TaskID)
	}
	if param.InstanceID != nil {
		db = db.Where("instance_id = ?", param.InstanceID)
	}
	db, err := applyPager(db.Order("id asc"), param.Page)
	if err != nil {
		return nil, errors.WithMessage(err, "applyPager failed")
	}
	pos := make([]*WorkflowApprovalPo, 0)
	if err := db.Find(&pos).Error; err != nil {
		return nil, errors.WithMessage(err, "QueryWorkflowApproval failed")
	}
	return pos, nil
}

func (r *workflowRepo) CreateOperationLog(ctx context.Context, operationLog *OperationLogPo) (*OperationLogPo, error) {
	if operationLog == nil {
		return nil, errors.New("nil OperationLogPo")
	}
	operationLog.CreatedAt = time.Now().Unix()
	if err := r.GetDBWithContext(ctx).Create(operationLog).Error; err != nil {
		return nil, errors.WithMessage(err, "CreateOperationLog failed")
	}
	return operationLog, nil
}

func (r *workflowRepo) QueryOperationLog(ctx context.Context, param *QueryOperationLogParams) ([]*OperationLogPo, error) {
	if param == nil {
		return nil, errors.New("nil QueryOperationLogParams")
	}
	db := r.GetDBWithContext(ctx).Model(&OperationLogPo{})
	if param.InstanceID != nil {
		db = db.Where("instance_id = ?", param.InstanceID)
	}
	db, err := applyPager(db.Order("id asc"), param.Page)
	if err != nil {
		return nil, errors.WithMessage(err, "applyPager failed")
	}
	pos := make([]*OperationLogPo, 0)
	if err := db.Find(&pos).Error; err != nil {
		return nil, errors.WithMessage(err, "QueryOperationLog failed")
	}
	return pos, nil
}

type contextKey string

const (
	transactionContextKey contextKey = "transaction"
)

func (r *workflowRepo) GetDBWithContext(ctx context.Context) *gorm.DB {
	tx := ctx.Value(transactionContextKey)
	if tx == nil {
		// 没有事务,直接用原始连接
		return r.db.WithContext(ctx)
	}
	return tx.(*gorm.DB)
}

// Transaction 事务执行,事务对象放在context里往下传,支持嵌套复用外层事务
func (r *workflowRepo) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	ctxTX := ctx.Value(transactionContextKey)
	var err error
	if ctxTX == nil {
		tx := r.db.Begin()
		defer func() {
			if err != nil {
				tx.Rollback()
			} else {
				tx.Commit()
			}
		}()
		newCtx := context.WithValue(ctx, transactionContextKey, tx)
		err = fn(newCtx)
		return err
	}
	return fn(ctx)
}
