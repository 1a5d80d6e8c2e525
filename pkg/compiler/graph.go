// edgewall/pkg/compiler/graph.go

package compiler

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"edgewall/pkg/logging"
)

// Structural invariant violations. All are detected by Validate before
// any request is evaluated, never at request time.
var (
	ErrMissingRequestNode   = errors.New("graph has no request node")
	ErrMultipleRequestNodes = errors.New("graph has more than one request node")
	ErrDuplicateID          = errors.New("duplicate node id")
	ErrDanglingEdgeRef      = errors.New("edge references unknown node")
	ErrCycle                = errors.New("cycle detected in graph")
	ErrUnreachableNode      = errors.New("node not reachable from request node")
	ErrTerminalOutput       = errors.New("terminal node has outgoing edges")
)

// CompiledNode is a node with its kind-specific config parsed and its
// condition values (regex, CIDR blocks, lists) pre-compiled.
type CompiledNode struct {
	ID   string
	Type string

	Condition  *CompiledCondition
	Group      *CompiledGroup
	Logic      string
	RateLimit  *RateLimitData
	ListLookup *ListLookupData
	Score      *ScoreData
	Cache      *CacheData
	Header     *HeaderData
	Transform  *TransformData
	ExtractRe  *regexp.Regexp // compiled Transform extract pattern
	Redirect   *RedirectData
	Action     *ActionData
	Backend    *BackendConfig
}

// CompiledGroup is a ruleGroup with every inline condition compiled.
type CompiledGroup struct {
	Name       string
	Logic      string // and, or, not
	Conditions []*CompiledCondition
}

// ValidatedGraph is the immutable, evaluation-ready form of a graph.
// It is safe to share across concurrent request evaluations; a rule-set
// update replaces the whole graph, never edits it in place.
type ValidatedGraph struct {
	Nodes    map[string]*CompiledNode
	Order    []string // topological evaluation order
	Incoming map[string][]Edge
	Outgoing map[string][]Edge
	Request  string // id of the request node
	Backends map[string]BackendConfig
}

// IsTerminal reports whether a node type ends evaluation when it fires.
func IsTerminal(nodeType string) bool {
	switch nodeType {
	case NodeAction, NodeRedirect, NodeBackend:
		return true
	}
	return false
}

// Validate checks the structural invariants, compiles every node config,
// and computes the topological evaluation order. Comment nodes are
// layout-only and dropped along with any edges touching them.
func Validate(payload *GraphPayload) (*ValidatedGraph, error) {
	nodes := make([]Node, 0, len(payload.Nodes))
	comments := make(map[string]bool)
	for _, n := range payload.Nodes {
		if n.Type == NodeComment {
			comments[n.ID] = true
			continue
		}
		nodes = append(nodes, n)
	}

	edges := make([]Edge, 0, len(payload.Edges))
	for _, e := range payload.Edges {
		if comments[e.Source] || comments[e.Target] {
			continue
		}
		edges = append(edges, e)
	}

	g := &ValidatedGraph{
		Nodes:    make(map[string]*CompiledNode, len(nodes)),
		Incoming: make(map[string][]Edge),
		Outgoing: make(map[string][]Edge),
		Backends: payload.Backends,
	}

	for _, n := range nodes {
		if _, dup := g.Nodes[n.ID]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateID, n.ID)
		}
		compiled, err := compileNode(n)
		if err != nil {
			return nil, err
		}
		g.Nodes[n.ID] = compiled
		if n.Type == NodeRequest {
			if g.Request != "" {
				return nil, ErrMultipleRequestNodes
			}
			g.Request = n.ID
		}
	}
	if g.Request == "" {
		return nil, ErrMissingRequestNode
	}

	for _, e := range edges {
		if _, ok := g.Nodes[e.Source]; !ok {
			return nil, fmt.Errorf("%w: edge %q source %q", ErrDanglingEdgeRef, e.ID, e.Source)
		}
		if _, ok := g.Nodes[e.Target]; !ok {
			return nil, fmt.Errorf("%w: edge %q target %q", ErrDanglingEdgeRef, e.ID, e.Target)
		}
		if IsTerminal(g.Nodes[e.Source].Type) {
			return nil, fmt.Errorf("%w: %q", ErrTerminalOutput, e.Source)
		}
		g.Incoming[e.Target] = append(g.Incoming[e.Target], e)
		g.Outgoing[e.Source] = append(g.Outgoing[e.Source], e)
	}

	order, err := topologicalOrder(nodes, g)
	if err != nil {
		return nil, err
	}
	g.Order = order

	if err := checkReachability(nodes, g); err != nil {
		return nil, err
	}

	logging.Logger.Debug().
		Int("nodes", len(g.Nodes)).
		Int("edges", len(edges)).
		Msg("graph validated")
	return g, nil
}

// topologicalOrder runs Kahn's algorithm seeded in payload node order,
// so independent branches evaluate in a stable, author-visible order.
func topologicalOrder(nodes []Node, g *ValidatedGraph) ([]string, error) {
	indegree := make(map[string]int, len(nodes))
	for _, n := range nodes {
		indegree[n.ID] = len(g.Incoming[n.ID])
	}

	var queue []string
	for _, n := range nodes {
		if indegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	order := make([]string, 0, len(nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, e := range g.Outgoing[id] {
			indegree[e.Target]--
			if indegree[e.Target] == 0 {
				queue = append(queue, e.Target)
			}
		}
	}

	if len(order) != len(nodes) {
		return nil, ErrCycle
	}
	return order, nil
}

func checkReachability(nodes []Node, g *ValidatedGraph) error {
	reachable := map[string]bool{g.Request: true}
	queue := []string{g.Request}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range g.Outgoing[id] {
			if !reachable[e.Target] {
				reachable[e.Target] = true
				queue = append(queue, e.Target)
			}
		}
	}
	for _, n := range nodes {
		if !reachable[n.ID] {
			return fmt.Errorf("%w: %q", ErrUnreachableNode, n.ID)
		}
	}
	return nil
}

func compileNode(n Node) (*CompiledNode, error) {
	c := &CompiledNode{ID: n.ID, Type: n.Type}

	fail := func(err error) (*CompiledNode, error) {
		return nil, logging.NewError(logging.ErrorTypeValidate,
			fmt.Sprintf("invalid %s node %q", n.Type, n.ID), err,
			map[string]interface{}{"node": n.ID})
	}

	switch n.Type {
	case NodeRequest:
		// No config.

	case NodeCondition:
		var data ConditionData
		if err := json.Unmarshal(n.Data, &data); err != nil {
			return fail(err)
		}
		cond, err := CompileCondition(data.Field, data.Operator, data.Value)
		if err != nil {
			return fail(err)
		}
		c.Condition = cond

	case NodeRuleGroup:
		var data RuleGroupData
		if err := json.Unmarshal(n.Data, &data); err != nil {
			return fail(err)
		}
		switch data.Logic {
		case "and", "or", "not":
		default:
			return fail(fmt.Errorf("unknown ruleGroup logic %q", data.Logic))
		}
		if len(data.Conditions) == 0 {
			return fail(errors.New("ruleGroup has no conditions"))
		}
		group := &CompiledGroup{Name: data.Name, Logic: data.Logic}
		for _, gc := range data.Conditions {
			cond, err := CompileCondition(gc.Field, gc.Operator, gc.Value)
			if err != nil {
				return fail(err)
			}
			group.Conditions = append(group.Conditions, cond)
		}
		c.Group = group

	case NodeLogic:
		var data LogicData
		if err := json.Unmarshal(n.Data, &data); err != nil {
			return fail(err)
		}
		switch data.Operation {
		case "and", "or", "not":
			c.Logic = data.Operation
		default:
			return fail(fmt.Errorf("unknown logic operation %q", data.Operation))
		}

	case NodeRateLimit:
		var data RateLimitData
		if err := json.Unmarshal(n.Data, &data); err != nil {
			return fail(err)
		}
		if data.Limit == 0 || data.WindowSeconds <= 0 {
			return fail(errors.New("rateLimit requires a positive limit and window"))
		}
		if data.KeyBy == "" {
			data.KeyBy = "ip"
		}
		if data.CounterName == "" {
			data.CounterName = fmt.Sprintf("rate_%s", n.ID)
		}
		c.RateLimit = &data

	case NodeListLookup:
		var data ListLookupData
		if err := json.Unmarshal(n.Data, &data); err != nil {
			return fail(err)
		}
		if data.ListType == "" || data.Field == "" {
			return fail(errors.New("listLookup requires listType and field"))
		}
		c.ListLookup = &data

	case NodeScore:
		var data ScoreData
		if err := json.Unmarshal(n.Data, &data); err != nil {
			return fail(err)
		}
		switch data.Mode {
		case "add", "set", "threshold":
		case "":
			data.Mode = "add"
		default:
			return fail(fmt.Errorf("unknown score mode %q", data.Mode))
		}
		c.Score = &data

	case NodeCache:
		var data CacheData
		if err := json.Unmarshal(n.Data, &data); err != nil {
			return fail(err)
		}
		switch data.Mode {
		case "configure", "pass":
		default:
			return fail(fmt.Errorf("unknown cache mode %q", data.Mode))
		}
		c.Cache = &data

	case NodeHeader:
		var data HeaderData
		if err := json.Unmarshal(n.Data, &data); err != nil {
			return fail(err)
		}
		if data.Name == "" {
			return fail(errors.New("header node requires a name"))
		}
		switch data.Operation {
		case "set", "remove":
		default:
			return fail(fmt.Errorf("unknown header operation %q", data.Operation))
		}
		c.Header = &data

	case NodeTransform:
		var data TransformData
		if err := json.Unmarshal(n.Data, &data); err != nil {
			return fail(err)
		}
		if data.Field == "" || data.Variable == "" {
			return fail(errors.New("transform requires field and variable"))
		}
		switch data.Operation {
		case "lowercase", "uppercase", "urlDecode", "removeWhitespace":
		case "extract":
			re, err := regexp.Compile(data.Pattern)
			if err != nil {
				return fail(fmt.Errorf("invalid extract pattern %q: %w", data.Pattern, err))
			}
			c.ExtractRe = re
		default:
			return fail(fmt.Errorf("unknown transform operation %q", data.Operation))
		}
		c.Transform = &data

	case NodeRedirect:
		var data RedirectData
		if err := json.Unmarshal(n.Data, &data); err != nil {
			return fail(err)
		}
		if data.URL == "" {
			return fail(errors.New("redirect requires a url"))
		}
		if data.StatusCode == 0 {
			data.StatusCode = 302
		}
		c.Redirect = &data

	case NodeAction:
		var data ActionData
		if err := json.Unmarshal(n.Data, &data); err != nil {
			return fail(err)
		}
		switch data.Action {
		case "block", "challenge", "allow", "log", "tarpit":
		default:
			return fail(fmt.Errorf("unknown action %q", data.Action))
		}
		c.Action = &data

	case NodeBackend:
		var data BackendConfig
		if err := json.Unmarshal(n.Data, &data); err != nil {
			return fail(err)
		}
		if data.Name == "" {
			data.Name = n.ID
		}
		c.Backend = &data

	default:
		return fail(fmt.Errorf("unknown node type %q", n.Type))
	}

	return c, nil
}
