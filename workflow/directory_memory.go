package workflow

import (
	"context"
	"sync"
)

// MemoryOrgDirectory 内存版组织目录
// 测试和示例用,生产环境接真实的组织系统实现OrgDirectory
type MemoryOrgDirectory struct {
	mu          sync.RWMutex
	users       map[string]*OrgUser
	departments map[string]*OrgDepartment
	roleUsers   map[string][]string // roleCode -> userIDs
	userDepts   map[string][]string // userID -> departmentIDs,第一个当主部门
}

func NewMemoryOrgDirectory() *MemoryOrgDirectory {
	return &MemoryOrgDirectory{
		users:       make(map[string]*OrgUser),
		departments: make(map[string]*OrgDepartment),
		roleUsers:   make(map[string][]string),
		userDepts:   make(map[string][]string),
	}
}

func (d *MemoryOrgDirectory) AddUser(user *OrgUser) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[user.ID] = user
}

func (d *MemoryOrgDirectory) AddDepartment(dept *OrgDepartment) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.departments[dept.ID] = dept
}

func (d *MemoryOrgDirectory) AssignRole(roleCode string, userIDs ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.roleUsers[roleCode] = append(d.roleUsers[roleCode], userIDs...)
}

// AssignDepartments 用户挂到部门下,第一个是主部门
func (d *MemoryOrgDirectory) AssignDepartments(userID string, departmentIDs ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.userDepts[userID] = append(d.userDepts[userID], departmentIDs...)
}

func (d *MemoryOrgDirectory) GetUser(ctx context.Context, userID string) (*OrgUser, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.users[userID], nil
}

func (d *MemoryOrgDirectory) GetUsersByRole(ctx context.Context, roleCode string, orgID string) ([]*OrgUser, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	users := make([]*OrgUser, 0)
	for _, userID := range d.roleUsers[roleCode] {
		user, ok := d.users[userID]
		if !ok {
			continue
		}
		if orgID != "" && user.OrgID != "" && user.OrgID != orgID {
			continue
		}
		users = append(users, user)
	}
	return users, nil
}

func (d *MemoryOrgDirectory) GetPrimaryDepartment(ctx context.Context, userID string) (*OrgDepartment, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	deptIDs := d.userDepts[userID]
	if len(deptIDs) == 0 {
		return nil, nil
	}
	return d.departments[deptIDs[0]], nil
}

func (d *MemoryOrgDirectory) GetDepartments(ctx context.Context, userID string) ([]*OrgDepartment, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	depts := make([]*OrgDepartment, 0)
	for _, deptID := range d.userDepts[userID] {
		if dept, ok := d.departments[deptID]; ok {
			depts = append(depts, dept)
		}
	}
	return depts, nil
}

func (d *MemoryOrgDirectory) GetDepartment(ctx context.Context, departmentID string) (*OrgDepartment, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.departments[departmentID], nil
}

func (d *MemoryOrgDirectory) GetLeader(ctx context.Context, departmentID string) (*OrgUser, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	dept, ok := d.departments[departmentID]
	if !ok || dept.LeaderID == "" {
		return nil, nil
	}
	return d.users[dept.LeaderID], nil
}

func (d *MemoryOrgDirectory) GetParent(ctx context.Context, departmentID string) (*OrgDepartment, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	dept, ok := d.departments[departmentID]
	if !ok || dept.ParentID == "" {
		return nil, nil
	}
	return d.departments[dept.ParentID], nil
}
