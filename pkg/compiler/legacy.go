// edgewall/pkg/compiler/legacy.go

package compiler

import (
	"encoding/json"
	"fmt"
	"strings"

	"edgewall/pkg/logging"
)

// Legacy compact rule format: {v, r, d} with nested and/or/not condition
// trees keyed by rule name. Conversion is a pure format adapter that runs
// ahead of validation; the interpreter never sees legacy rules directly.

type legacyPacked struct {
	V        string                   `json:"v"`
	R        []string                 `json:"r"`
	D        map[string]legacyRule    `json:"d"`
	Backends map[string]BackendConfig `json:"backends,omitempty"`
}

type legacyRule struct {
	Enabled    bool               `json:"enabled"`
	Conditions legacyConditionSet `json:"conditions"`
	Action     legacyAction       `json:"action"`
}

type legacyConditionSet struct {
	Operator string            `json:"operator"` // and, or, not
	Rules    []legacyCondition `json:"rules"`
}

type legacyCondition struct {
	Type     string          `json:"type"` // path, ip, device, useragent, header, ratelimit
	Operator string          `json:"operator,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"` // string or list of strings
	Key      string          `json:"key,omitempty"`

	// ratelimit fields
	Window         int    `json:"window,omitempty"`
	MaxRequests    uint32 `json:"max_requests,omitempty"`
	BlockTTL       int    `json:"block_ttl,omitempty"`
	CounterName    string `json:"counter_name,omitempty"`
	PenaltyboxName string `json:"penaltybox_name,omitempty"`
}

type legacyAction struct {
	Type            string `json:"type"` // block, challenge, route
	ResponseCode    int    `json:"response_code,omitempty"`
	ResponseMessage string `json:"response_message,omitempty"`
	ChallengeType   string `json:"challenge_type,omitempty"`
	Backend         string `json:"backend,omitempty"`
}

// convertLegacy expands the compact format into a graph: one shared
// request node, and per rule a ruleGroup (plus rateLimit nodes where the
// rule used ratelimit conditions) wired to the rule's terminal node.
func convertLegacy(packed *legacyPacked) (*GraphPayload, error) {
	if !strings.HasPrefix(packed.V, "1.") {
		logging.Logger.Warn().Str("version", packed.V).Msg("unknown legacy rule version")
	}

	payload := &GraphPayload{Backends: packed.Backends}
	payload.Nodes = append(payload.Nodes, Node{ID: "request", Type: NodeRequest})

	// R carries evaluation order; rules absent from D are skipped.
	for _, name := range packed.R {
		rule, ok := packed.D[name]
		if !ok {
			logging.Logger.Warn().Str("rule", name).Msg("legacy rule listed but not defined")
			continue
		}
		if !rule.Enabled {
			continue
		}
		if err := appendLegacyRule(payload, name, &rule); err != nil {
			return nil, logging.NewError(logging.ErrorTypeLoad,
				fmt.Sprintf("legacy rule %q conversion failed", name), err, nil)
		}
	}

	return payload, nil
}

func appendLegacyRule(payload *GraphPayload, name string, rule *legacyRule) error {
	var groupConds []GroupCondition
	var rateLimits []RateLimitData

	for i, cond := range rule.Conditions.Rules {
		if cond.Type == "ratelimit" {
			counter := cond.CounterName
			if counter == "" {
				counter = fmt.Sprintf("rate_counter_%d_%d_%d", cond.Window, cond.MaxRequests, cond.BlockTTL)
			}
			rateLimits = append(rateLimits, RateLimitData{
				CounterName:     counter,
				Limit:           cond.MaxRequests,
				WindowSeconds:   cond.Window,
				KeyBy:           "ip",
				BlockTTLSeconds: cond.BlockTTL,
			})
			continue
		}
		gc, err := legacyGroupCondition(&cond)
		if err != nil {
			return err
		}
		gc.ID = fmt.Sprintf("%s_c%d", name, i)
		groupConds = append(groupConds, *gc)
	}

	terminalID, terminal, err := legacyTerminal(name, &rule.Action)
	if err != nil {
		return err
	}

	logic := rule.Conditions.Operator
	if logic == "" {
		logic = "and"
	}

	addNode := func(id, nodeType string, data interface{}) {
		raw, _ := json.Marshal(data)
		payload.Nodes = append(payload.Nodes, Node{ID: id, Type: nodeType, Data: raw})
	}
	addEdge := func(src, srcPort, dst, dstPort string) {
		payload.Edges = append(payload.Edges, Edge{
			ID:           fmt.Sprintf("e_%s_%s_%s", src, srcPort, dst),
			Source:       src,
			SourceHandle: srcPort,
			Target:       dst,
			TargetHandle: dstPort,
		})
	}

	payload.Nodes = append(payload.Nodes, terminal)

	groupID := fmt.Sprintf("rg_%s", name)
	if len(groupConds) > 0 {
		addNode(groupID, NodeRuleGroup, RuleGroupData{Name: name, Logic: logic, Conditions: groupConds})
		addEdge("request", PortRequest, groupID, PortIn)
	}

	switch logic {
	case "or":
		// Any branch reaching the terminal fires it.
		if len(groupConds) > 0 {
			addEdge(groupID, PortMatch, terminalID, PortTrigger)
		}
		for i, rl := range rateLimits {
			rlID := fmt.Sprintf("rl_%s_%d", name, i)
			addNode(rlID, NodeRateLimit, rl)
			addEdge("request", PortRequest, rlID, PortTrigger)
			addEdge(rlID, PortExceeded, terminalID, PortTrigger)
		}
	default: // and, not
		// Chain: group match (or request) -> rate limits -> terminal.
		prev, prevPort := "request", PortRequest
		if len(groupConds) > 0 {
			prev, prevPort = groupID, PortMatch
		}
		for i, rl := range rateLimits {
			rlID := fmt.Sprintf("rl_%s_%d", name, i)
			addNode(rlID, NodeRateLimit, rl)
			addEdge(prev, prevPort, rlID, PortTrigger)
			prev, prevPort = rlID, PortExceeded
			// A NOT rule over a rate limit triggers on the ok side.
			if logic == "not" && len(groupConds) == 0 {
				prevPort = PortOK
			}
		}
		addEdge(prev, prevPort, terminalID, PortTrigger)
	}

	return nil
}

func legacyGroupCondition(cond *legacyCondition) (*GroupCondition, error) {
	valueStr := func() string {
		var s string
		if json.Unmarshal(cond.Value, &s) == nil {
			return s
		}
		var list []string
		if json.Unmarshal(cond.Value, &list) == nil {
			return strings.Join(list, ", ")
		}
		return strings.TrimSpace(string(cond.Value))
	}

	switch cond.Type {
	case "path", "useragent":
		field := "path"
		if cond.Type == "useragent" {
			field = "userAgent"
		}
		op, err := legacyStringOperator(cond.Operator)
		if err != nil {
			return nil, err
		}
		return &GroupCondition{Field: field, Operator: op, Value: valueStr()}, nil

	case "ip":
		switch cond.Operator {
		case "equals":
			return &GroupCondition{Field: "clientIp", Operator: OpIn, Value: valueStr()}, nil
		case "in_range":
			return &GroupCondition{Field: "clientIp", Operator: OpInCidr, Value: valueStr()}, nil
		default:
			return nil, fmt.Errorf("unknown legacy ip operator %q", cond.Operator)
		}

	case "device":
		op := OpEquals
		switch cond.Operator {
		case "is":
		case "is_not":
			op = OpNotEquals
		default:
			return nil, fmt.Errorf("unknown legacy device operator %q", cond.Operator)
		}
		return &GroupCondition{Field: "deviceType", Operator: op, Value: valueStr()}, nil

	case "header":
		field := "header:" + cond.Key
		switch cond.Operator {
		case "exists":
			return &GroupCondition{Field: field, Operator: OpExists}, nil
		case "not_exists":
			return &GroupCondition{Field: field, Operator: OpNotExists}, nil
		case "equals":
			return &GroupCondition{Field: field, Operator: OpEquals, Value: cond.Key}, nil
		case "contains":
			return &GroupCondition{Field: field, Operator: OpContains, Value: cond.Key}, nil
		default:
			return nil, fmt.Errorf("unknown legacy header operator %q", cond.Operator)
		}

	default:
		return nil, fmt.Errorf("unknown legacy condition type %q", cond.Type)
	}
}

func legacyStringOperator(op string) (string, error) {
	switch op {
	case "equals":
		return OpEquals, nil
	case "starts_with", "startsWith":
		return OpStartsWith, nil
	case "contains":
		return OpContains, nil
	case "matches":
		return OpMatches, nil
	}
	return "", fmt.Errorf("unknown legacy string operator %q", op)
}

func legacyTerminal(name string, action *legacyAction) (string, Node, error) {
	id := fmt.Sprintf("act_%s", name)
	mk := func(nodeType string, data interface{}) (string, Node, error) {
		raw, _ := json.Marshal(data)
		return id, Node{ID: id, Type: nodeType, Data: raw}, nil
	}

	switch action.Type {
	case "block":
		code := action.ResponseCode
		if code == 0 {
			code = 403
		}
		msg := action.ResponseMessage
		if msg == "" {
			msg = fmt.Sprintf("Blocked by rule: %s", name)
		}
		return mk(NodeAction, ActionData{Action: "block", StatusCode: code, Message: msg})
	case "challenge":
		ct := action.ChallengeType
		if ct == "" {
			ct = "interactive"
		}
		return mk(NodeAction, ActionData{Action: "challenge", ChallengeType: ct})
	case "route":
		return mk(NodeBackend, BackendConfig{Name: action.Backend})
	default:
		return "", Node{}, fmt.Errorf("unknown legacy action type %q", action.Type)
	}
}
