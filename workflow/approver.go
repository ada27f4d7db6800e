package workflow

import (
	"context"
	"fmt"
	"log/slog"
)

// OrgUser 组织目录里的用户,目录是外部协作方,引擎只读
type OrgUser struct {
	ID     string
	Name   string
	OrgID  string
	Active bool // false表示停用/已删除,任何策略都不会解析出非Active用户
}

// OrgDepartment 组织目录里的部门
type OrgDepartment struct {
	ID       string
	Name     string
	OrgID    string
	ParentID string // 空表示根部门
	LeaderID string // 空表示没有负责人
}

// OrgDirectory 组织/部门目录协作方契约,由外部系统实现
// 查不到返回(nil, nil),error只用于目录本身不可用这类瞬时故障
type OrgDirectory interface {
	GetUser(ctx context.Context, userID string) (*OrgUser, error)
	GetUsersByRole(ctx context.Context, roleCode string, orgID string) ([]*OrgUser, error)
	// GetPrimaryDepartment 用户标记的主部门,没标记返回nil
	GetPrimaryDepartment(ctx context.Context, userID string) (*OrgDepartment, error)
	// GetDepartments 用户所在的全部部门,主部门缺失时做兜底
	GetDepartments(ctx context.Context, userID string) ([]*OrgDepartment, error)
	GetDepartment(ctx context.Context, departmentID string) (*OrgDepartment, error)
	GetLeader(ctx context.Context, departmentID string) (*OrgUser, error)
	GetParent(ctx context.Context, departmentID string) (*OrgDepartment, error)
}

// Principal 解析出来的具体审批人
type Principal struct {
	UserID string
	Name   string
}

// ApproverResolver 审批人解析器,把声明式的审批人配置解析成具体的人
// 单条配置解析失败只打warn并跳过,不让目录抖动影响整个审批动作
type ApproverResolver struct {
	directory OrgDirectory
}

func NewApproverResolver(directory OrgDirectory) *ApproverResolver {
	return &ApproverResolver{directory: directory}
}

// Resolve 解析审批人配置列表
// 按配置顺序解析,结果按userID去重,保留首次出现的顺序
// self_select在定义期解析不出来,这里直接返回空,运行期走ResolveFromVariables
func (r *ApproverResolver) Resolve(ctx context.Context, configs []*ApproverConfig, instance *WorkflowInstancePo) ([]*Principal, error) {
	collector := newPrincipalCollector()
	for _, config := range configs {
		if config == nil {
			continue
		}
		principals, err := r.resolveOne(ctx, config, instance)
		if err != nil {
			// 目录抖动只跳过这条配置,不中断解析
			slog.WarnContext(ctx, fmt.Sprintf("resolve approver config failed, type: %s, err: %v", config.Type, err))
			continue
		}
		collector.addAll(principals)
	}
	return collector.list(), nil
}

// ResolveFromVariables 运行期解析,self_select从实例变量取人,其余配置走标准解析
// 变量key里面期望是用户id列表,逐个到目录里校验有效性
func (r *ApproverResolver) ResolveFromVariables(ctx context.Context, configs []*ApproverConfig, instance *WorkflowInstancePo, variables *JSONContext) ([]*Principal, error) {
	collector := newPrincipalCollector()
	for _, config := range configs {
		if config == nil {
			continue
		}
		if config.Type != ApproverTypeSelfSelect {
			principals, err := r.resolveOne(ctx, config, instance)
			if err != nil {
				slog.WarnContext(ctx, fmt.Sprintf("resolve approver config failed, type: %s, err: %v", config.Type, err))
				continue
			}
			collector.addAll(principals)
			continue
		}
		variableKey := config.VariableKey
		if variableKey == "" {
			variableKey = "approvers"
		}
		userIDs, ok := variables.GetStringSlice(variableKey)
		if !ok {
			slog.WarnContext(ctx, fmt.Sprintf("self_select variable missing or not a string list, key: %s, instanceNo: %s", variableKey, instance.InstanceNo))
			continue
		}
		for _, userID := range userIDs {
			principal, err := r.resolveActiveUser(ctx, userID)
			if err != nil {
				slog.WarnContext(ctx, fmt.Sprintf("resolve self_select user failed, userId: %s, err: %v", userID, err))
				continue
			}
			if principal != nil {
				collector.add(principal)
			}
		}
	}
	return collector.list(), nil
}

func (r *ApproverResolver) resolveOne(ctx context.Context, config *ApproverConfig, instance *WorkflowInstancePo) ([]*Principal, error) {
	switch config.Type {
	case ApproverTypeUser:
		principal, err := r.resolveActiveUser(ctx, config.UserID)
		if err != nil || principal == nil {
			return nil, err
		}
		return []*Principal{principal}, nil
	case ApproverTypeRole:
		users, err := r.directory.GetUsersByRole(ctx, config.RoleCode, instance.OrgID)
		if err != nil {
			return nil, err
		}
		principals := make([]*Principal, 0, len(users))
		for _, user := range users {
			if user == nil || !user.Active {
				continue
			}
			principals = append(principals, &Principal{UserID: user.ID, Name: user.Name})
		}
		return principals, nil
	case ApproverTypeLeader:
		return r.resolveInitiatorLeader(ctx, instance.Initiator)
	case ApproverTypeDeptLeader:
		leader, err := r.resolveDeptLeader(ctx, config.DepartmentID)
		if err != nil || leader == nil {
			return nil, err
		}
		return []*Principal{leader}, nil
	case ApproverTypeContinuousLeader:
		return r.resolveContinuousLeaders(ctx, instance.Initiator, config.Level)
	case ApproverTypeInitiator:
		principal, err := r.resolveActiveUser(ctx, instance.Initiator)
		if err != nil || principal == nil {
			return nil, err
		}
		return []*Principal{principal}, nil
	case ApproverTypeSelfSelect:
		// 定义期解析不出来,留给ResolveFromVariables
		return nil, nil
	}
	slog.WarnContext(ctx, fmt.Sprintf("unknown approver type: %s", config.Type))
	return nil, nil
}

func (r *ApproverResolver) resolveActiveUser(ctx context.Context, userID string) (*Principal, error) {
	if userID == "" {
		return nil, nil
	}
	user, err := r.directory.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.Active {
		return nil, nil
	}
	return &Principal{UserID: user.ID, Name: user.Name}, nil
}

// resolveInitiatorLeader 发起人的主部门负责人,没标记主部门就退回任意一个部门
func (r *ApproverResolver) resolveInitiatorLeader(ctx context.Context, initiator string) ([]*Principal, error) {
	dept, err := r.initiatorDepartment(ctx, initiator)
	if err != nil {
		return nil, err
	}
	if dept == nil {
		return nil, nil
	}
	leader, err := r.resolveDeptLeader(ctx, dept.ID)
	if err != nil || leader == nil {
		return nil, err
	}
	return []*Principal{leader}, nil
}

func (r *ApproverResolver) initiatorDepartment(ctx context.Context, initiator string) (*OrgDepartment, error) {
	dept, err := r.directory.GetPrimaryDepartment(ctx, initiator)
	if err != nil {
		return nil, err
	}
	if dept != nil {
		return dept, nil
	}
	depts, err := r.directory.GetDepartments(ctx, initiator)
	if err != nil {
		return nil, err
	}
	if len(depts) == 0 {
		return nil, nil
	}
	return depts[0], nil
}

func (r *ApproverResolver) resolveDeptLeader(ctx context.Context, departmentID string) (*Principal, error) {
	if departmentID == "" {
		return nil, nil
	}
	leader, err := r.directory.GetLeader(ctx, departmentID)
	if err != nil {
		return nil, err
	}
	if leader == nil || !leader.Active {
		return nil, nil
	}
	return &Principal{UserID: leader.ID, Name: leader.Name}, nil
}

// resolveContinuousLeaders 连续多级主管
// 从发起人部门开始沿父链向上走level层,每层取负责人,缺失的负责人跳过
// 迭代实现,带visited防御脏数据里的环,走到根部门就停,最多返回level个人
func (r *ApproverResolver) resolveContinuousLeaders(ctx context.Context, initiator string, level int) ([]*Principal, error) {
	if level <= 0 {
		return nil, nil
	}
	dept, err := r.initiatorDepartment(ctx, initiator)
	if err != nil {
		return nil, err
	}
	principals := make([]*Principal, 0, level)
	visited := make(map[string]struct{})
	for i := 0; i < level && dept != nil; i++ {
		if _, ok := visited[dept.ID]; ok {
			slog.WarnContext(ctx, fmt.Sprintf("department hierarchy has a cycle, departmentId: %s", dept.ID))
			break
		}
		visited[dept.ID] = struct{}{}
		leader, err := r.resolveDeptLeader(ctx, dept.ID)
		if err != nil {
			return nil, err
		}
		if leader != nil {
			principals = append(principals, leader)
		}
		if dept.ParentID == "" {
			// 根部门
			break
		}
		parent, err := r.directory.GetParent(ctx, dept.ID)
		if err != nil {
			return nil, err
		}
		dept = parent
	}
	return principals, nil
}

// ValidateApproverConfigs 发布期的配置形状检查,不做运行期解析
// 返回 (是否通过, 错误列表)
func ValidateApproverConfigs(configs []*ApproverConfig) (bool, []string) {
	errs := make([]string, 0)
	for i, config := range configs {
		if config == nil {
			errs = append(errs, fmt.Sprintf("approver[%d] is null", i))
			continue
		}
		switch config.Type {
		case ApproverTypeUser:
			if config.UserID == "" {
				errs = append(errs, fmt.Sprintf("approver[%d] type user requires userId", i))
			}
		case ApproverTypeRole:
			if config.RoleCode == "" {
				errs = append(errs, fmt.Sprintf("approver[%d] type role requires roleCode", i))
			}
		case ApproverTypeDeptLeader:
			if config.DepartmentID == "" {
				errs = append(errs, fmt.Sprintf("approver[%d] type dept_leader requires departmentId", i))
			}
		case ApproverTypeContinuousLeader:
			if config.Level <= 0 {
				errs = append(errs, fmt.Sprintf("approver[%d] type continuous_leader requires level > 0", i))
			}
		case ApproverTypeLeader, ApproverTypeInitiator, ApproverTypeSelfSelect:
			// 不需要额外字段
		default:
			errs = append(errs, fmt.Sprintf("approver[%d] has invalid type: %s", i, config.Type))
		}
	}
	return len(errs) == 0, errs
}

// principalCollector 按userID去重并保留首次出现顺序
type principalCollector struct {
	seen  map[string]struct{}
	order []*Principal
}

func newPrincipalCollector() *principalCollector {
	return &principalCollector{seen: make(map[string]struct{})}
}

func (c *principalCollector) add(p *Principal) {
	if p == nil {
		return
	}
	if _, ok := c.seen[p.UserID]; ok {
		return
	}
	c.seen[p.UserID] = struct{}{}
	c.order = append(c.order, p)
}

func (c *principalCollector) addAll(list []*Principal) {
	for _, p := range list {
		c.add(p)
	}
}

func (c *principalCollector) list() []*Principal {
	if c.order == nil {
		return []*Principal{}
	}
	return c.order
}
