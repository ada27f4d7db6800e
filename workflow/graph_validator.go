package workflow

import (
	"fmt"
	"math"
)

// GraphValidator 流程图校验器,发布前做结构和语义校验
// 除了第一步结构检查,所有检查都会累积错误,一次性把完整错误列表还给调用方
type GraphValidator struct{}

func NewGraphValidator() *GraphValidator {
	return &GraphValidator{}
}

var validOperators = map[string]struct{}{
	"eq": {}, "ne": {}, "gt": {}, "gte": {}, "lt": {}, "lte": {},
	"in": {}, "not_in": {}, "contains": {}, "not_contains": {},
}

var validNodeTypes = map[NodeType]struct{}{
	NodeTypeStart: {}, NodeTypeEnd: {}, NodeTypeApproval: {}, NodeTypeCondition: {},
	NodeTypeCC: {}, NodeTypeNotify: {}, NodeTypeParallel: {},
}

var validApproveTypes = map[ApproveType]struct{}{
	ApproveTypeOr: {}, ApproveTypeAnd: {}, ApproveTypeSequence: {},
}

var validEndStates = map[EndState]struct{}{
	EndStateApproved: {}, EndStateRejected: {}, EndStateCancelled: {}, EndStateTimeout: {},
}

// Validate 校验流程图
// 返回 (是否通过, 错误列表, 警告列表),警告不阻止发布
func (v *GraphValidator) Validate(graph *GraphData) (bool, []string, []string) {
	errs := make([]string, 0)
	warnings := make([]string, 0)

	// 1. 结构检查,nodes/edges缺失直接短路,后面的检查没有意义
	if graph == nil {
		return false, []string{"graph is nil"}, warnings
	}
	if graph.Nodes == nil {
		errs = append(errs, "graph missing nodes list")
	}
	if graph.Edges == nil {
		errs = append(errs, "graph missing edges list")
	}
	if len(errs) > 0 {
		return false, errs, warnings
	}

	// 2. 节点id/type检查 3. id全局唯一
	nodeIDs := make(map[string]struct{}, len(graph.Nodes))
	startCount := 0
	endCount := 0
	for i, node := range graph.Nodes {
		if node.ID == "" {
			errs = append(errs, fmt.Sprintf("node[%d] missing id", i))
			continue
		}
		if _, ok := nodeIDs[node.ID]; ok {
			errs = append(errs, fmt.Sprintf("duplicate node id: %s", node.ID))
		}
		nodeIDs[node.ID] = struct{}{}
		if _, ok := validNodeTypes[node.Type]; !ok {
			errs = append(errs, fmt.Sprintf("node %s has invalid type: %s", node.ID, node.Type))
			continue
		}
		switch node.Type {
		case NodeTypeStart:
			startCount++
		case NodeTypeEnd:
			endCount++
		}
	}

	// 4. 有且只有一个start 5. 至少一个end
	if startCount != 1 {
		errs = append(errs, fmt.Sprintf("graph must have exactly one start node, got %d", startCount))
	}
	if endCount < 1 {
		errs = append(errs, "graph must have at least one end node")
	}

	// 6. 边检查: id/端点必填,端点可解析,禁止自环
	for i, edge := range graph.Edges {
		if edge.ID == "" {
			errs = append(errs, fmt.Sprintf("edge[%d] missing id", i))
		}
		if edge.SourceNodeID == "" || edge.TargetNodeID == "" {
			errs = append(errs, fmt.Sprintf("edge %s missing sourceNodeId or targetNodeId", edge.ID))
			continue
		}
		if _, ok := nodeIDs[edge.SourceNodeID]; !ok {
			errs = append(errs, fmt.Sprintf("edge %s references unknown source node: %s", edge.ID, edge.SourceNodeID))
		}
		if _, ok := nodeIDs[edge.TargetNodeID]; !ok {
			errs = append(errs, fmt.Sprintf("edge %s references unknown target node: %s", edge.ID, edge.TargetNodeID))
		}
		if edge.SourceNodeID == edge.TargetNodeID {
			errs = append(errs, fmt.Sprintf("edge %s is a self loop on node %s", edge.ID, edge.SourceNodeID))
		}
	}

	// 7. 从start做BFS,不可达节点都是孤立节点
	if startCount == 1 {
		v.checkReachability(graph, &errs)
	}

	// 8. 分类型的节点属性检查
	for _, node := range graph.Nodes {
		switch node.Type {
		case NodeTypeApproval:
			v.validateApprovalNode(node, &errs)
		case NodeTypeCondition:
			v.validateConditionNode(node, &errs)
		case NodeTypeEnd:
			v.validateEndNode(node, &errs, &warnings)
		}
	}

	return len(errs) == 0, errs, warnings
}

// checkReachability 迭代BFS,不用递归,带visited防御环
func (v *GraphValidator) checkReachability(graph *GraphData, errs *[]string) {
	var startID string
	for _, node := range graph.Nodes {
		if node.Type == NodeTypeStart {
			startID = node.ID
			break
		}
	}
	outgoing := make(map[string][]string, len(graph.Nodes))
	for _, edge := range graph.Edges {
		outgoing[edge.SourceNodeID] = append(outgoing[edge.SourceNodeID], edge.TargetNodeID)
	}
	visited := map[string]struct{}{startID: {}}
	queue := []string{startID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range outgoing[current] {
			if _, ok := visited[next]; ok {
				continue
			}
			visited[next] = struct{}{}
			queue = append(queue, next)
		}
	}
	for _, node := range graph.Nodes {
		if node.ID == "" {
			continue
		}
		if _, ok := visited[node.ID]; !ok {
			*errs = append(*errs, fmt.Sprintf("node %s is not reachable from start node", node.ID))
		}
	}
}

func (v *GraphValidator) validateApprovalNode(node *GraphNode, errs *[]string) {
	props, err := parseApprovalProperties(node)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("approval node %s has malformed properties: %v", node.ID, err))
		return
	}
	if rawType, ok := node.Properties["approveType"]; ok {
		approveType, isStr := rawType.(string)
		if !isStr {
			*errs = append(*errs, fmt.Sprintf("approval node %s approveType must be a string", node.ID))
		} else if _, valid := validApproveTypes[approveType]; !valid {
			*errs = append(*errs, fmt.Sprintf("approval node %s has invalid approveType: %s", node.ID, approveType))
		}
	}
	if len(props.Approvers) == 0 {
		*errs = append(*errs, fmt.Sprintf("approval node %s has no approvers", node.ID))
	} else {
		if ok, configErrs := ValidateApproverConfigs(props.Approvers); !ok {
			for _, configErr := range configErrs {
				*errs = append(*errs, fmt.Sprintf("approval node %s: %s", node.ID, configErr))
			}
		}
	}
	if rawTimeout, ok := node.Properties["timeout"]; ok {
		timeout, isNum := rawTimeout.(float64)
		if !isNum || timeout != math.Trunc(timeout) || timeout <= 0 {
			*errs = append(*errs, fmt.Sprintf("approval node %s timeout must be a positive integer", node.ID))
		}
	}
}

func (v *GraphValidator) validateConditionNode(node *GraphNode, errs *[]string) {
	props, err := parseConditionProperties(node)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("condition node %s has malformed properties: %v", node.ID, err))
		return
	}
	if len(props.Branches) < 2 {
		*errs = append(*errs, fmt.Sprintf("condition node %s must have at least 2 branches, got %d", node.ID, len(props.Branches)))
	}
	for i, branch := range props.Branches {
		if len(branch.Conditions) == 0 {
			*errs = append(*errs, fmt.Sprintf("condition node %s branch[%d] has no conditions", node.ID, i))
			continue
		}
		for j, cond := range branch.Conditions {
			if cond.Field == "" {
				*errs = append(*errs, fmt.Sprintf("condition node %s branch[%d] condition[%d] missing field", node.ID, i, j))
			}
			if _, ok := validOperators[cond.Operator]; !ok {
				*errs = append(*errs, fmt.Sprintf("condition node %s branch[%d] condition[%d] has invalid operator: %s", node.ID, i, j, cond.Operator))
			}
			if cond.Value == nil {
				*errs = append(*errs, fmt.Sprintf("condition node %s branch[%d] condition[%d] missing value", node.ID, i, j))
			}
		}
	}
}

func (v *GraphValidator) validateEndNode(node *GraphNode, errs *[]string, warnings *[]string) {
	if rawState, ok := node.Properties["endState"]; ok {
		endState, isStr := rawState.(string)
		if !isStr {
			// 类型不对算警告,运行期会落回默认approved
			*warnings = append(*warnings, fmt.Sprintf("end node %s endState is not a string, default approved will be used", node.ID))
			return
		}
		if _, valid := validEndStates[endState]; !valid {
			*warnings = append(*warnings, fmt.Sprintf("end node %s has unrecognized endState: %s", node.ID, endState))
		}
	}
}
