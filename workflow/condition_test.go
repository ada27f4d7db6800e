package workflow

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func conditionNode(branches []any) *GraphNode {
	return &GraphNode{
		ID:   "cond",
		Type: NodeTypeCondition,
		Properties: map[string]any{
			"branches": branches,
		},
	}
}

func TestConditionEvaluator_SelectBranch(t *testing.T) {
	evaluator := NewConditionEvaluator()
	outgoing := []*GraphEdge{
		{ID: "edge_high", SourceNodeID: "cond", TargetNodeID: "a"},
		{ID: "edge_low", SourceNodeID: "cond", TargetNodeID: "b"},
	}

	t.Run("按edgeId选分支", func(t *testing.T) {
		node := conditionNode([]any{
			map[string]any{
				"edgeId": "edge_high",
				"conditions": []any{
					map[string]any{"field": "amount", "operator": "gt", "value": 1000},
				},
			},
			map[string]any{
				"edgeId": "edge_low",
				"conditions": []any{
					map[string]any{"field": "amount", "operator": "lte", "value": 1000},
				},
			},
		})
		variables := NewJSONContextFromMap(map[string]any{"amount": 2000})
		edgeID, err := evaluator.SelectBranch(node, outgoing, variables)
		require.NoError(t, err)
		assert.Equal(t, "edge_high", edgeID)

		variables = NewJSONContextFromMap(map[string]any{"amount": 500})
		edgeID, err = evaluator.SelectBranch(node, outgoing, variables)
		require.NoError(t, err)
		assert.Equal(t, "edge_low", edgeID)
	})

	t.Run("没配edgeId按分支顺序对应出边", func(t *testing.T) {
		node := conditionNode([]any{
			map[string]any{
				"conditions": []any{
					map[string]any{"field": "urgent", "operator": "eq", "value": true},
				},
			},
			map[string]any{
				"conditions": []any{
					map[string]any{"field": "urgent", "operator": "eq", "value": false},
				},
			},
		})
		variables := NewJSONContextFromMap(map[string]any{"urgent": false})
		edgeID, err := evaluator.SelectBranch(node, outgoing, variables)
		require.NoError(t, err)
		assert.Equal(t, "edge_low", edgeID)
	})

	t.Run("多个分支命中取声明顺序第一个", func(t *testing.T) {
		node := conditionNode([]any{
			map[string]any{
				"edgeId": "edge_high",
				"conditions": []any{
					map[string]any{"field": "amount", "operator": "gte", "value": 0},
				},
			},
			map[string]any{
				"edgeId": "edge_low",
				"conditions": []any{
					map[string]any{"field": "amount", "operator": "gte", "value": 0},
				},
			},
		})
		variables := NewJSONContextFromMap(map[string]any{"amount": 100})
		edgeID, err := evaluator.SelectBranch(node, outgoing, variables)
		require.NoError(t, err)
		assert.Equal(t, "edge_high", edgeID)
	})

	t.Run("分支内条件是AND关系", func(t *testing.T) {
		node := conditionNode([]any{
			map[string]any{
				"edgeId": "edge_high",
				"conditions": []any{
					map[string]any{"field": "amount", "operator": "gt", "value": 1000},
					map[string]any{"field": "dept", "operator": "eq", "value": "it"},
				},
			},
			map[string]any{
				"edgeId": "edge_low",
				"conditions": []any{
					map[string]any{"field": "amount", "operator": "gte", "value": 0},
				},
			},
		})
		// 金额够但部门不符,落到第二个分支
		variables := NewJSONContextFromMap(map[string]any{"amount": 2000, "dept": "hr"})
		edgeID, err := evaluator.SelectBranch(node, outgoing, variables)
		require.NoError(t, err)
		assert.Equal(t, "edge_low", edgeID)
	})

	t.Run("嵌套字段路径", func(t *testing.T) {
		node := conditionNode([]any{
			map[string]any{
				"edgeId": "edge_high",
				"conditions": []any{
					map[string]any{"field": "order.amount", "operator": "gt", "value": 1000},
				},
			},
			map[string]any{
				"edgeId": "edge_low",
				"conditions": []any{
					map[string]any{"field": "order.amount", "operator": "lte", "value": 1000},
				},
			},
		})
		variables := NewJSONContextFromMap(map[string]any{
			"order": map[string]any{"amount": 5000},
		})
		edgeID, err := evaluator.SelectBranch(node, outgoing, variables)
		require.NoError(t, err)
		assert.Equal(t, "edge_high", edgeID)
	})

	t.Run("所有分支都不命中返回配置错误", func(t *testing.T) {
		node := conditionNode([]any{
			map[string]any{
				"edgeId": "edge_high",
				"conditions": []any{
					map[string]any{"field": "amount", "operator": "gt", "value": 1000},
				},
			},
			map[string]any{
				"edgeId": "edge_low",
				"conditions": []any{
					map[string]any{"field": "amount", "operator": "gt", "value": 100},
				},
			},
		})
		variables := NewJSONContextFromMap(map[string]any{"amount": 1})
		_, err := evaluator.SelectBranch(node, outgoing, variables)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrConfiguration))
	})

	t.Run("分支引用不存在的边返回配置错误", func(t *testing.T) {
		node := conditionNode([]any{
			map[string]any{
				"edgeId": "edge_ghost",
				"conditions": []any{
					map[string]any{"field": "amount", "operator": "gte", "value": 0},
				},
			},
			map[string]any{
				"edgeId": "edge_low",
				"conditions": []any{
					map[string]any{"field": "amount", "operator": "lt", "value": 0},
				},
			},
		})
		variables := NewJSONContextFromMap(map[string]any{"amount": 1})
		_, err := evaluator.SelectBranch(node, outgoing, variables)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrConfiguration))
	})
}

func TestEvaluateCondition_Operators(t *testing.T) {
	variables := NewJSONContextFromMap(map[string]any{
		"amount": float64(100),
		"name":   "采购申请单",
		"tags":   []any{"urgent", "finance"},
		"level":  float64(3),
	})

	cases := []struct {
		name     string
		cond     *BranchCondition
		expected bool
	}{
		{"eq命中", &BranchCondition{Field: "amount", Operator: "eq", Value: 100}, true},
		{"eq数字类型宽松比较", &BranchCondition{Field: "amount", Operator: "eq", Value: float64(100)}, true},
		{"ne命中", &BranchCondition{Field: "amount", Operator: "ne", Value: 99}, true},
		{"ne变量不存在视为不等", &BranchCondition{Field: "ghost", Operator: "ne", Value: 1}, true},
		{"gt", &BranchCondition{Field: "amount", Operator: "gt", Value: 99}, true},
		{"gte临界", &BranchCondition{Field: "amount", Operator: "gte", Value: 100}, true},
		{"lt不命中", &BranchCondition{Field: "amount", Operator: "lt", Value: 100}, false},
		{"lte临界", &BranchCondition{Field: "amount", Operator: "lte", Value: 100}, true},
		{"in", &BranchCondition{Field: "level", Operator: "in", Value: []any{1, 2, 3}}, true},
		{"not_in", &BranchCondition{Field: "level", Operator: "not_in", Value: []any{1, 2}}, true},
		{"字符串contains", &BranchCondition{Field: "name", Operator: "contains", Value: "采购"}, true},
		{"列表contains", &BranchCondition{Field: "tags", Operator: "contains", Value: "urgent"}, true},
		{"not_contains", &BranchCondition{Field: "tags", Operator: "not_contains", Value: "hr"}, true},
		{"gt变量不存在不命中", &BranchCondition{Field: "ghost", Operator: "gt", Value: 0}, false},
		{"未知操作符不命中", &BranchCondition{Field: "amount", Operator: "like", Value: 100}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.expected, evaluateCondition(c.cond, variables))
		})
	}
}
