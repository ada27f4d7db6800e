// Package workflow 基于流程图的审批流引擎
//
// 核心链路: 定义(WorkflowDefinitionPo)发布后,业务发起产生实例(WorkflowInstancePo),
// 引擎沿流程图推进,审批节点按审批人扇出任务(WorkflowTaskPo),审批动作写入
// 审批记录(WorkflowApprovalPo),实例到达终态后通过注册的TerminalHandler回调业务模块。
//
// 没有published定义的流程key发起时直接放行,业务模块不用感知审批流是否开启。
//
// 并发控制: 实例级分布式锁(WorkflowLock) + 条件更新行数做二次检查,
// 同一个任务被并发操作时只有一个能成功,失败方拿到ErrStateConflict。
package workflow
