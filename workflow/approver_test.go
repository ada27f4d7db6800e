package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTestDirectory 组织结构:
// 集团(boss) -> 技术部(cto) -> 后端组(lead1)
// 发起人staff1挂在后端组
func buildTestDirectory() *MemoryOrgDirectory {
	directory := NewMemoryOrgDirectory()
	directory.AddUser(&OrgUser{ID: "boss", Name: "老板", Active: true})
	directory.AddUser(&OrgUser{ID: "cto", Name: "技术总监", Active: true})
	directory.AddUser(&OrgUser{ID: "lead1", Name: "后端组长", Active: true})
	directory.AddUser(&OrgUser{ID: "staff1", Name: "员工1", Active: true})
	directory.AddUser(&OrgUser{ID: "staff2", Name: "员工2", Active: true})
	directory.AddUser(&OrgUser{ID: "ghost1", Name: "离职员工", Active: false})

	directory.AddDepartment(&OrgDepartment{ID: "group", Name: "集团", LeaderID: "boss"})
	directory.AddDepartment(&OrgDepartment{ID: "tech", Name: "技术部", ParentID: "group", LeaderID: "cto"})
	directory.AddDepartment(&OrgDepartment{ID: "backend", Name: "后端组", ParentID: "tech", LeaderID: "lead1"})

	directory.AssignDepartments("staff1", "backend")
	directory.AssignRole("finance_auditor", "staff2", "ghost1")
	return directory
}

func principalIDs(principals []*Principal) []string {
	ids := make([]string, 0, len(principals))
	for _, p := range principals {
		ids = append(ids, p.UserID)
	}
	return ids
}

func TestApproverResolver(t *testing.T) {
	ctx := context.Background()
	resolver := NewApproverResolver(buildTestDirectory())
	instance := &WorkflowInstancePo{InstanceNo: "no-1", Initiator: "staff1", OrgID: ""}

	t.Run("指定用户", func(t *testing.T) {
		principals, err := resolver.Resolve(ctx, []*ApproverConfig{
			{Type: ApproverTypeUser, UserID: "staff2"},
		}, instance)
		require.NoError(t, err)
		assert.Equal(t, []string{"staff2"}, principalIDs(principals))
	})

	t.Run("停用用户解析为空", func(t *testing.T) {
		principals, err := resolver.Resolve(ctx, []*ApproverConfig{
			{Type: ApproverTypeUser, UserID: "ghost1"},
		}, instance)
		require.NoError(t, err)
		assert.Empty(t, principals)
	})

	t.Run("按角色解析并过滤停用用户", func(t *testing.T) {
		principals, err := resolver.Resolve(ctx, []*ApproverConfig{
			{Type: ApproverTypeRole, RoleCode: "finance_auditor"},
		}, instance)
		require.NoError(t, err)
		assert.Equal(t, []string{"staff2"}, principalIDs(principals))
	})

	t.Run("发起人直属主管", func(t *testing.T) {
		principals, err := resolver.Resolve(ctx, []*ApproverConfig{
			{Type: ApproverTypeLeader},
		}, instance)
		require.NoError(t, err)
		assert.Equal(t, []string{"lead1"}, principalIDs(principals))
	})

	t.Run("指定部门负责人", func(t *testing.T) {
		principals, err := resolver.Resolve(ctx, []*ApproverConfig{
			{Type: ApproverTypeDeptLeader, DepartmentID: "tech"},
		}, instance)
		require.NoError(t, err)
		assert.Equal(t, []string{"cto"}, principalIDs(principals))
	})

	t.Run("连续多级主管沿部门链向上", func(t *testing.T) {
		principals, err := resolver.Resolve(ctx, []*ApproverConfig{
			{Type: ApproverTypeContinuousLeader, Level: 2},
		}, instance)
		require.NoError(t, err)
		assert.Equal(t, []string{"lead1", "cto"}, principalIDs(principals))
	})

	t.Run("连续多级主管超过层级到根部门为止", func(t *testing.T) {
		principals, err := resolver.Resolve(ctx, []*ApproverConfig{
			{Type: ApproverTypeContinuousLeader, Level: 10},
		}, instance)
		require.NoError(t, err)
		assert.Equal(t, []string{"lead1", "cto", "boss"}, principalIDs(principals))
	})

	t.Run("连续多级主管跳过没配负责人的部门", func(t *testing.T) {
		// 三级链路,顶层没配负责人: 集团(无) -> 事业部(vp1) -> 小组(lead9)
		gapDirectory := NewMemoryOrgDirectory()
		gapDirectory.AddUser(&OrgUser{ID: "staff9", Name: "员工9", Active: true})
		gapDirectory.AddUser(&OrgUser{ID: "lead9", Name: "组长9", Active: true})
		gapDirectory.AddUser(&OrgUser{ID: "vp1", Name: "副总", Active: true})
		gapDirectory.AddDepartment(&OrgDepartment{ID: "group9", Name: "集团"})
		gapDirectory.AddDepartment(&OrgDepartment{ID: "div9", Name: "事业部", ParentID: "group9", LeaderID: "vp1"})
		gapDirectory.AddDepartment(&OrgDepartment{ID: "team9", Name: "小组", ParentID: "div9", LeaderID: "lead9"})
		gapDirectory.AddUser(&OrgUser{ID: "vpstaff", Name: "事业部员工", Active: true})
		gapDirectory.AssignDepartments("staff9", "team9")
		gapDirectory.AssignDepartments("vpstaff", "div9")

		gapResolver := NewApproverResolver(gapDirectory)

		// 缺负责人的层跳过不补位,从事业部向上走2层只解析出1个人
		principals, err := gapResolver.Resolve(ctx, []*ApproverConfig{
			{Type: ApproverTypeContinuousLeader, Level: 2},
		}, &WorkflowInstancePo{Initiator: "vpstaff"})
		require.NoError(t, err)
		assert.Equal(t, []string{"vp1"}, principalIDs(principals))

		principals, err = gapResolver.Resolve(ctx, []*ApproverConfig{
			{Type: ApproverTypeContinuousLeader, Level: 3},
		}, &WorkflowInstancePo{Initiator: "staff9"})
		require.NoError(t, err)
		assert.Equal(t, []string{"lead9", "vp1"}, principalIDs(principals))
	})

	t.Run("连续多级主管跳过停用的负责人", func(t *testing.T) {
		// 中间层负责人已停用: 集团(boss8) -> 事业部(ghost8停用) -> 小组(lead8)
		gapDirectory := NewMemoryOrgDirectory()
		gapDirectory.AddUser(&OrgUser{ID: "staff8", Name: "员工8", Active: true})
		gapDirectory.AddUser(&OrgUser{ID: "lead8", Name: "组长8", Active: true})
		gapDirectory.AddUser(&OrgUser{ID: "ghost8", Name: "离职副总", Active: false})
		gapDirectory.AddUser(&OrgUser{ID: "boss8", Name: "老板8", Active: true})
		gapDirectory.AddDepartment(&OrgDepartment{ID: "group8", Name: "集团", LeaderID: "boss8"})
		gapDirectory.AddDepartment(&OrgDepartment{ID: "div8", Name: "事业部", ParentID: "group8", LeaderID: "ghost8"})
		gapDirectory.AddDepartment(&OrgDepartment{ID: "team8", Name: "小组", ParentID: "div8", LeaderID: "lead8"})
		gapDirectory.AssignDepartments("staff8", "team8")

		gapResolver := NewApproverResolver(gapDirectory)

		// level=2走到事业部,负责人停用跳过,只剩小组这1个人
		principals, err := gapResolver.Resolve(ctx, []*ApproverConfig{
			{Type: ApproverTypeContinuousLeader, Level: 2},
		}, &WorkflowInstancePo{Initiator: "staff8"})
		require.NoError(t, err)
		assert.Equal(t, []string{"lead8"}, principalIDs(principals))

		// level=3继续往上,集团负责人正常,共2个人
		principals, err = gapResolver.Resolve(ctx, []*ApproverConfig{
			{Type: ApproverTypeContinuousLeader, Level: 3},
		}, &WorkflowInstancePo{Initiator: "staff8"})
		require.NoError(t, err)
		assert.Equal(t, []string{"lead8", "boss8"}, principalIDs(principals))
	})

	t.Run("发起人本人", func(t *testing.T) {
		principals, err := resolver.Resolve(ctx, []*ApproverConfig{
			{Type: ApproverTypeInitiator},
		}, instance)
		require.NoError(t, err)
		assert.Equal(t, []string{"staff1"}, principalIDs(principals))
	})

	t.Run("多条配置去重保序", func(t *testing.T) {
		principals, err := resolver.Resolve(ctx, []*ApproverConfig{
			{Type: ApproverTypeDeptLeader, DepartmentID: "backend"},
			{Type: ApproverTypeContinuousLeader, Level: 2},
			{Type: ApproverTypeUser, UserID: "staff2"},
		}, instance)
		require.NoError(t, err)
		assert.Equal(t, []string{"lead1", "cto", "staff2"}, principalIDs(principals))
	})

	t.Run("自选审批人从实例变量取", func(t *testing.T) {
		variables := NewJSONContextFromMap(map[string]any{
			"approvers": []any{"staff2", "ghost1", "cto"},
		})
		principals, err := resolver.ResolveFromVariables(ctx, []*ApproverConfig{
			{Type: ApproverTypeSelfSelect},
		}, instance, variables)
		require.NoError(t, err)
		// 停用用户被过滤掉
		assert.Equal(t, []string{"staff2", "cto"}, principalIDs(principals))
	})

	t.Run("自选审批人指定变量key", func(t *testing.T) {
		variables := NewJSONContextFromMap(map[string]any{
			"picked": []any{"boss"},
		})
		principals, err := resolver.ResolveFromVariables(ctx, []*ApproverConfig{
			{Type: ApproverTypeSelfSelect, VariableKey: "picked"},
		}, instance, variables)
		require.NoError(t, err)
		assert.Equal(t, []string{"boss"}, principalIDs(principals))
	})

	t.Run("自选审批人变量缺失解析为空不报错", func(t *testing.T) {
		principals, err := resolver.ResolveFromVariables(ctx, []*ApproverConfig{
			{Type: ApproverTypeSelfSelect},
		}, instance, NewJSONContextFromMap(nil))
		require.NoError(t, err)
		assert.Empty(t, principals)
	})

	t.Run("定义期Resolve跳过自选审批人", func(t *testing.T) {
		principals, err := resolver.Resolve(ctx, []*ApproverConfig{
			{Type: ApproverTypeSelfSelect},
			{Type: ApproverTypeUser, UserID: "staff2"},
		}, instance)
		require.NoError(t, err)
		assert.Equal(t, []string{"staff2"}, principalIDs(principals))
	})
}

func TestValidateApproverConfigs(t *testing.T) {
	t.Run("合法配置", func(t *testing.T) {
		ok, errs := ValidateApproverConfigs([]*ApproverConfig{
			{Type: ApproverTypeUser, UserID: "u1"},
			{Type: ApproverTypeRole, RoleCode: "r1"},
			{Type: ApproverTypeLeader},
			{Type: ApproverTypeDeptLeader, DepartmentID: "d1"},
			{Type: ApproverTypeContinuousLeader, Level: 3},
			{Type: ApproverTypeInitiator},
			{Type: ApproverTypeSelfSelect},
		})
		assert.True(t, ok)
		assert.Empty(t, errs)
	})

	t.Run("缺字段逐条报错", func(t *testing.T) {
		ok, errs := ValidateApproverConfigs([]*ApproverConfig{
			{Type: ApproverTypeUser},
			{Type: ApproverTypeContinuousLeader},
			{Type: "unknown"},
		})
		assert.False(t, ok)
		assert.Len(t, errs, 3)
	})
}
