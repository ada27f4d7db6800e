package workflow

import (
	"strings"

	"github.com/pkg/errors"
)

// ConditionEvaluator 条件节点求值器
// 分支内条件是AND关系,分支之间按声明顺序first-match-wins
// 所有分支都不命中按配置错误处理,不做隐式默认分支
type ConditionEvaluator struct{}

func NewConditionEvaluator() *ConditionEvaluator {
	return &ConditionEvaluator{}
}

// SelectBranch 在condition节点上选出边
// 分支指定了edgeId就用edgeId,没指定就按分支下标对应出边顺序
func (e *ConditionEvaluator) SelectBranch(node *GraphNode, outgoing []*GraphEdge, variables *JSONContext) (string, error) {
	props, err := parseConditionProperties(node)
	if err != nil {
		return "", err
	}
	if len(props.Branches) == 0 {
		return "", errors.Wrapf(ErrConfiguration, "condition node has no branches, nodeId: %s", node.ID)
	}
	for i, branch := range props.Branches {
		if !e.evaluateBranch(branch, variables) {
			continue
		}
		if branch.EdgeID != "" {
			for _, edge := range outgoing {
				if edge.ID == branch.EdgeID {
					return edge.ID, nil
				}
			}
			return "", errors.Wrapf(ErrConfiguration, "condition branch references unknown edge, nodeId: %s, edgeId: %s", node.ID, branch.EdgeID)
		}
		if i >= len(outgoing) {
			return "", errors.Wrapf(ErrConfiguration, "condition branch has no matching outgoing edge, nodeId: %s, branch: %d", node.ID, i)
		}
		return outgoing[i].ID, nil
	}
	return "", errors.Wrapf(ErrConfiguration, "no condition branch matched, nodeId: %s", node.ID)
}

func (e *ConditionEvaluator) evaluateBranch(branch *ConditionBranch, variables *JSONContext) bool {
	if branch == nil || len(branch.Conditions) == 0 {
		return false
	}
	for _, cond := range branch.Conditions {
		if !evaluateCondition(cond, variables) {
			return false
		}
	}
	return true
}

func evaluateCondition(cond *BranchCondition, variables *JSONContext) bool {
	if cond == nil {
		return false
	}
	actual, found := variables.GetPath(cond.Field)
	switch cond.Operator {
	case "eq":
		return found && looseEqual(actual, cond.Value)
	case "ne":
		// 变量不存在视为不等
		return !found || !looseEqual(actual, cond.Value)
	case "gt", "gte", "lt", "lte":
		if !found {
			return false
		}
		return compareNumbers(cond.Operator, actual, cond.Value)
	case "in":
		return found && valueInList(actual, cond.Value)
	case "not_in":
		return found && !valueInList(actual, cond.Value)
	case "contains":
		return found && valueContains(actual, cond.Value)
	case "not_contains":
		return found && !valueContains(actual, cond.Value)
	}
	return false
}

// looseEqual 宽松相等,json反序列化出来数字都是float64,统一转数字比
func looseEqual(a, b any) bool {
	af, aok := toFloat64(a)
	bf, bok := toFloat64(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func compareNumbers(operator string, actual, expected any) bool {
	af, aok := toFloat64(actual)
	bf, bok := toFloat64(expected)
	if !aok || !bok {
		return false
	}
	switch operator {
	case "gt":
		return af > bf
	case "gte":
		return af >= bf
	case "lt":
		return af < bf
	case "lte":
		return af <= bf
	}
	return false
}

// valueInList 实际值在配置的列表里
func valueInList(actual, expected any) bool {
	list, ok := expected.([]any)
	if !ok {
		return false
	}
	for _, item := range list {
		if looseEqual(actual, item) {
			return true
		}
	}
	return false
}

// valueContains 实际值包含配置值: 字符串做子串,列表做成员
func valueContains(actual, expected any) bool {
	switch a := actual.(type) {
	case string:
		str, ok := expected.(string)
		if !ok {
			return false
		}
		return strings.Contains(a, str)
	case []any:
		for _, item := range a {
			if looseEqual(item, expected) {
				return true
			}
		}
		return false
	}
	return false
}
