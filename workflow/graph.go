package workflow

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// GraphData 流程图,持久化在WorkflowDefinitionPo.GraphData里面
// 节点属性按类型不同差异很大,先用map承接,具体类型用下面的parseXXXProperties转换
type GraphData struct {
	Nodes []*GraphNode `json:"nodes"`
	Edges []*GraphEdge `json:"edges"`
}

// GraphNode 流程图节点
type GraphNode struct {
	ID         string         `json:"id"`
	Type       NodeType       `json:"type"`
	Name       string         `json:"name,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// GraphEdge 流程图有向边
type GraphEdge struct {
	ID           string `json:"id"`
	SourceNodeID string `json:"sourceNodeId"`
	TargetNodeID string `json:"targetNodeId"`
}

// ApproverConfig 审批人配置,声明怎么解析出具体审批人
// 不同type用到的字段不一样,校验逻辑见ValidateApproverConfigs
type ApproverConfig struct {
	Type         ApproverType `json:"type"`
	UserID       string       `json:"userId,omitempty"`       // type=user
	RoleCode     string       `json:"roleCode,omitempty"`     // type=role
	DepartmentID string       `json:"departmentId,omitempty"` // type=dept_leader
	Level        int          `json:"level,omitempty"`        // type=continuous_leader,向上找几级
	VariableKey  string       `json:"variableKey,omitempty"`  // type=self_select,从实例变量的哪个key取人
}

// ApprovalProperties approval节点属性
type ApprovalProperties struct {
	ApproveType ApproveType       `json:"approveType,omitempty"`
	Approvers   []*ApproverConfig `json:"approvers"`
	Timeout     int64             `json:"timeout,omitempty"` // 超时时间,单位小时,>0才生效
}

// ConditionProperties condition节点属性
type ConditionProperties struct {
	Branches []*ConditionBranch `json:"branches"`
}

// ConditionBranch 条件分支,分支内条件是AND关系
// EdgeID可以不填,不填按分支顺序对应节点的出边顺序
type ConditionBranch struct {
	EdgeID     string             `json:"edgeId,omitempty"`
	Conditions []*BranchCondition `json:"conditions"`
}

// BranchCondition 单个条件,field支持a.b.c这种嵌套路径
type BranchCondition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// EndProperties end节点属性
type EndProperties struct {
	EndState EndState `json:"endState,omitempty"`
}

// ParseGraphData 解析流程图json
func ParseGraphData(data []byte) (*GraphData, error) {
	if len(data) == 0 {
		return nil, errors.WithMessage(ErrValidation, "graph data is empty")
	}
	graph := &GraphData{}
	if err := json.Unmarshal(data, graph); err != nil {
		return nil, errors.Wrapf(ErrValidation, "unmarshal graph data failed, err: %v", err)
	}
	return graph, nil
}

// parseNodeProperties 把map形式的属性转成具体类型,经过一次json往返
func parseNodeProperties(node *GraphNode, v any) error {
	if node == nil {
		return errors.New("node is nil")
	}
	props := node.Properties
	if props == nil {
		props = map[string]any{}
	}
	b, err := json.Marshal(props)
	if err != nil {
		return errors.Wrapf(ErrConfiguration, "marshal node properties failed, nodeId: %s, err: %v", node.ID, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return errors.Wrapf(ErrConfiguration, "unmarshal node properties failed, nodeId: %s, err: %v", node.ID, err)
	}
	return nil
}

func parseApprovalProperties(node *GraphNode) (*ApprovalProperties, error) {
	props := &ApprovalProperties{}
	if err := parseNodeProperties(node, props); err != nil {
		return nil, err
	}
	if props.ApproveType == "" {
		// 没配置会签规则默认或签
		props.ApproveType = ApproveTypeOr
	}
	return props, nil
}

func parseConditionProperties(node *GraphNode) (*ConditionProperties, error) {
	props := &ConditionProperties{}
	if err := parseNodeProperties(node, props); err != nil {
		return nil, err
	}
	return props, nil
}

func parseEndProperties(node *GraphNode) (*EndProperties, error) {
	props := &EndProperties{}
	if err := parseNodeProperties(node, props); err != nil {
		return nil, err
	}
	if props.EndState == "" {
		props.EndState = EndStateApproved
	}
	return props, nil
}

// graphIndex 流程图索引,一次性构建,后续推进节点都在内存里按id查
type graphIndex struct {
	graph    *GraphData
	nodeByID map[string]*GraphNode
	outgoing map[string][]*GraphEdge
	start    *GraphNode
}

// newGraphIndex 构建索引,只接受已经通过校验的图,这里只做最低限度的检查
func newGraphIndex(graph *GraphData) (*graphIndex, error) {
	if graph == nil {
		return nil, errors.WithMessage(ErrConfiguration, "graph is nil")
	}
	idx := &graphIndex{
		graph:    graph,
		nodeByID: make(map[string]*GraphNode, len(graph.Nodes)),
		outgoing: make(map[string][]*GraphEdge, len(graph.Nodes)),
	}
	for _, node := range graph.Nodes {
		idx.nodeByID[node.ID] = node
		if node.Type == NodeTypeStart {
			idx.start = node
		}
	}
	for _, edge := range graph.Edges {
		idx.outgoing[edge.SourceNodeID] = append(idx.outgoing[edge.SourceNodeID], edge)
	}
	if idx.start == nil {
		return nil, errors.WithMessage(ErrConfiguration, "graph has no start node")
	}
	return idx, nil
}

func (idx *graphIndex) node(nodeID string) (*GraphNode, bool) {
	node, ok := idx.nodeByID[nodeID]
	return node, ok
}

func (idx *graphIndex) outgoingEdges(nodeID string) []*GraphEdge {
	return idx.outgoing[nodeID]
}

// singleOutgoingEdge 取节点唯一出边,start/approval/cc/notify节点用
func (idx *graphIndex) singleOutgoingEdge(nodeID string) (*GraphEdge, error) {
	edges := idx.outgoing[nodeID]
	if len(edges) == 0 {
		return nil, errors.Wrapf(ErrConfiguration, "node has no outgoing edge, nodeId: %s", nodeID)
	}
	// 多条出边取第一条,发布校验不禁止多出边,运行期保持确定性
	return edges[0], nil
}

// edgeTarget 沿边找目标节点
func (idx *graphIndex) edgeTarget(edge *GraphEdge) (*GraphNode, error) {
	node, ok := idx.nodeByID[edge.TargetNodeID]
	if !ok {
		return nil, errors.Wrapf(ErrConfiguration, "edge target node not found, edgeId: %s, targetNodeId: %s", edge.ID, edge.TargetNodeID)
	}
	return node, nil
}
