package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func simpleApprovalGraph() *GraphData {
	return &GraphData{
		Nodes: []*GraphNode{
			{ID: "start", Type: NodeTypeStart},
			{ID: "approve1", Type: NodeTypeApproval, Properties: map[string]any{
				"approveType": "or",
				"approvers":   []any{map[string]any{"type": "user", "userId": "u1"}},
			}},
			{ID: "end", Type: NodeTypeEnd},
		},
		Edges: []*GraphEdge{
			{ID: "e1", SourceNodeID: "start", TargetNodeID: "approve1"},
			{ID: "e2", SourceNodeID: "approve1", TargetNodeID: "end"},
		},
	}
}

func TestGraphValidator(t *testing.T) {
	validator := NewGraphValidator()

	t.Run("合法的图通过校验", func(t *testing.T) {
		ok, errs, warnings := validator.Validate(simpleApprovalGraph())
		assert.True(t, ok)
		assert.Empty(t, errs)
		assert.Empty(t, warnings)
	})

	t.Run("缺少nodes或edges直接短路", func(t *testing.T) {
		ok, errs, _ := validator.Validate(&GraphData{Edges: []*GraphEdge{}})
		assert.False(t, ok)
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0], "missing nodes")
	})

	t.Run("没有start节点", func(t *testing.T) {
		graph := simpleApprovalGraph()
		graph.Nodes = graph.Nodes[1:]
		graph.Edges = graph.Edges[1:]
		ok, errs, _ := validator.Validate(graph)
		assert.False(t, ok)
		assert.Contains(t, errs, "graph must have exactly one start node, got 0")
	})

	t.Run("多个start节点", func(t *testing.T) {
		graph := simpleApprovalGraph()
		graph.Nodes = append(graph.Nodes, &GraphNode{ID: "start2", Type: NodeTypeStart})
		ok, errs, _ := validator.Validate(graph)
		assert.False(t, ok)
		assert.Contains(t, errs, "graph must have exactly one start node, got 2")
	})

	t.Run("节点id重复", func(t *testing.T) {
		graph := simpleApprovalGraph()
		graph.Nodes = append(graph.Nodes, &GraphNode{ID: "end", Type: NodeTypeEnd})
		ok, errs, _ := validator.Validate(graph)
		assert.False(t, ok)
		assert.Contains(t, errs, "duplicate node id: end")
	})

	t.Run("边指向不存在的节点", func(t *testing.T) {
		graph := simpleApprovalGraph()
		graph.Edges = append(graph.Edges, &GraphEdge{ID: "e3", SourceNodeID: "end", TargetNodeID: "ghost"})
		ok, errs, _ := validator.Validate(graph)
		assert.False(t, ok)
		assert.Contains(t, errs, "edge e3 references unknown target node: ghost")
	})

	t.Run("自环被拒绝", func(t *testing.T) {
		graph := simpleApprovalGraph()
		graph.Edges = append(graph.Edges, &GraphEdge{ID: "e3", SourceNodeID: "approve1", TargetNodeID: "approve1"})
		ok, errs, _ := validator.Validate(graph)
		assert.False(t, ok)
		assert.Contains(t, errs, "edge e3 is a self loop on node approve1")
	})

	t.Run("孤立节点不可达", func(t *testing.T) {
		graph := simpleApprovalGraph()
		graph.Nodes = append(graph.Nodes, &GraphNode{ID: "island", Type: NodeTypeCC})
		ok, errs, _ := validator.Validate(graph)
		assert.False(t, ok)
		assert.Contains(t, errs, "node island is not reachable from start node")
	})

	t.Run("审批节点没有审批人", func(t *testing.T) {
		graph := simpleApprovalGraph()
		graph.Nodes[1].Properties = map[string]any{"approveType": "or"}
		ok, errs, _ := validator.Validate(graph)
		assert.False(t, ok)
		assert.Contains(t, errs, "approval node approve1 has no approvers")
	})

	t.Run("审批节点非法会签规则", func(t *testing.T) {
		graph := simpleApprovalGraph()
		graph.Nodes[1].Properties["approveType"] = "majority"
		ok, errs, _ := validator.Validate(graph)
		assert.False(t, ok)
		assert.Contains(t, errs, "approval node approve1 has invalid approveType: majority")
	})

	t.Run("审批节点timeout必须是正整数", func(t *testing.T) {
		graph := simpleApprovalGraph()
		graph.Nodes[1].Properties["timeout"] = 1.5
		ok, errs, _ := validator.Validate(graph)
		assert.False(t, ok)
		assert.Contains(t, errs, "approval node approve1 timeout must be a positive integer")
	})

	t.Run("审批人配置缺字段", func(t *testing.T) {
		graph := simpleApprovalGraph()
		graph.Nodes[1].Properties["approvers"] = []any{map[string]any{"type": "role"}}
		ok, errs, _ := validator.Validate(graph)
		assert.False(t, ok)
		assert.Contains(t, errs, "approval node approve1: approver[0] type role requires roleCode")
	})

	t.Run("条件节点至少两个分支", func(t *testing.T) {
		graph := &GraphData{
			Nodes: []*GraphNode{
				{ID: "start", Type: NodeTypeStart},
				{ID: "cond", Type: NodeTypeCondition, Properties: map[string]any{
					"branches": []any{
						map[string]any{"conditions": []any{
							map[string]any{"field": "amount", "operator": "gt", "value": 1000},
						}},
					},
				}},
				{ID: "end", Type: NodeTypeEnd},
			},
			Edges: []*GraphEdge{
				{ID: "e1", SourceNodeID: "start", TargetNodeID: "cond"},
				{ID: "e2", SourceNodeID: "cond", TargetNodeID: "end"},
			},
		}
		ok, errs, _ := validator.Validate(graph)
		assert.False(t, ok)
		assert.Contains(t, errs, "condition node cond must have at least 2 branches, got 1")
	})

	t.Run("条件节点非法操作符", func(t *testing.T) {
		graph := &GraphData{
			Nodes: []*GraphNode{
				{ID: "start", Type: NodeTypeStart},
				{ID: "cond", Type: NodeTypeCondition, Properties: map[string]any{
					"branches": []any{
						map[string]any{"conditions": []any{
							map[string]any{"field": "amount", "operator": "like", "value": 1000},
						}},
						map[string]any{"conditions": []any{
							map[string]any{"field": "amount", "operator": "lte", "value": 1000},
						}},
					},
				}},
				{ID: "end1", Type: NodeTypeEnd},
				{ID: "end2", Type: NodeTypeEnd},
			},
			Edges: []*GraphEdge{
				{ID: "e1", SourceNodeID: "start", TargetNodeID: "cond"},
				{ID: "e2", SourceNodeID: "cond", TargetNodeID: "end1"},
				{ID: "e3", SourceNodeID: "cond", TargetNodeID: "end2"},
			},
		}
		ok, errs, _ := validator.Validate(graph)
		assert.False(t, ok)
		assert.Contains(t, errs, "condition node cond branch[0] condition[0] has invalid operator: like")
	})

	t.Run("end节点不认识的endState只给警告", func(t *testing.T) {
		graph := simpleApprovalGraph()
		graph.Nodes[2].Properties = map[string]any{"endState": "done"}
		ok, errs, warnings := validator.Validate(graph)
		assert.True(t, ok)
		assert.Empty(t, errs)
		assert.Contains(t, warnings, "end node end has unrecognized endState: done")
	})
}
