// Package workflow 提供基于流程图的审批流引擎。
//
// 这是一个轻量级的 Go 审批流引擎，面向"业务单据 + 审批"场景：定义用流程图描述，
// 发布后业务发起产生实例，审批节点按审批人扇出任务，所有状态变更都有审计记录。
//
// 主要特性：
//   - 图定义：start/end/approval/condition/cc/notify 节点，发布前整体校验
//   - 审批人策略：指定用户、角色、直属主管、部门负责人、连续多级主管、发起人、发起时自选
//   - 会签规则：或签、会签、依次审批
//   - 条件分支：支持嵌套字段路径和 10 种比较操作符
//   - 自动放行：流程 key 没有发布定义时发起直接通过，业务方无感知
//   - 数据持久化：基于 GORM，可使用 MySQL、PostgreSQL、SQLite 等数据库
//   - 并发安全：实例级锁（本地/Redis）+ 条件更新行数二次检查
//   - 终态回调：实例到达终态后恰好一次回调业务模块
//
// 基础使用示例:
//
//	package main
//
//	import (
//	    "context"
//
//	    "github.com/blingmoon/approval-flow/workflow"
//	    "gorm.io/driver/sqlite"
//	    "gorm.io/gorm"
//	)
//
//	func main() {
//	    // 1. 初始化数据库
//	    db, _ := gorm.Open(sqlite.Open("approval.db"), &gorm.Config{})
//	    workflow.AutoMigrate(db)
//
//	    // 2. 创建服务(directory是你的组织目录实现)
//	    repo := workflow.NewWorkflowRepo(db)
//	    lock := workflow.NewLocalWorkflowLock()
//	    directory := workflow.NewMemoryOrgDirectory()
//	    service := workflow.NewWorkflowService(repo, lock, directory, nil)
//
//	    ctx := context.Background()
//
//	    // 3. 创建并发布定义
//	    graph := []byte(`{
//	        "nodes": [
//	            {"id": "start", "type": "start"},
//	            {"id": "approve1", "type": "approval", "properties": {
//	                "approveType": "or",
//	                "approvers": [{"type": "leader"}]
//	            }},
//	            {"id": "end", "type": "end"}
//	        ],
//	        "edges": [
//	            {"id": "e1", "sourceNodeId": "start", "targetNodeId": "approve1"},
//	            {"id": "e2", "sourceNodeId": "approve1", "targetNodeId": "end"}
//	        ]
//	    }`)
//	    service.CreateDefinition(ctx, &workflow.CreateDefinitionReq{
//	        Code: "purchase_request", Name: "采购申请",
//	        GraphData: graph, BusinessObjectCode: "purchase_request", CreatedBy: "admin",
//	    })
//	    service.PublishDefinition(ctx, "purchase_request", "admin")
//
//	    // 4. 注册终态回调
//	    workflow.RegisterTerminalHandler("purchase_request",
//	        func(ctx context.Context, instance *workflow.WorkflowInstancePo) {
//	            // 按instance.Status更新业务单据
//	        })
//
//	    // 5. 业务发起审批
//	    _, instance, _ := service.StartWorkflow(ctx, &workflow.StartWorkflowReq{
//	        DefinitionCode: "purchase_request",
//	        BusinessID:     "PR-001",
//	        Initiator:      "staff1",
//	        Variables:      map[string]any{"amount": 300},
//	    })
//
//	    // 6. 审批人处理待办
//	    tasks, _ := service.QueryPendingTasksByAssignee(ctx, "lead1")
//	    for _, task := range tasks {
//	        service.ApproveTask(ctx, &workflow.TaskActionReq{TaskID: task.ID, Actor: "lead1"})
//	    }
//	    _ = instance
//	}
//
// 并发语义：
//
// 同一个任务被并发操作时，提交前会带着原状态做条件更新，行数为 0 的一方拿到
// ErrStateConflict，恰好一个操作能成功。实例终态是吸收态，进入终态后任何
// 状态变更都会失败，终态回调也因此只会触发一次。
//
// 错误分类：
//   - ErrValidation: 发布期图校验失败
//   - ErrConfiguration: 已发布定义运行期解析问题(如审批节点解析不到人)，需人工介入
//   - ErrStateConflict: 状态冲突，不可重试
//   - ErrPermission: 操作人没有权限
//   - ErrNotFound: 定义/实例/任务不存在
package workflow
