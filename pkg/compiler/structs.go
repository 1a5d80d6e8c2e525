// edgewall/pkg/compiler/structs.go

package compiler

import "encoding/json"

// Node type identifiers as they appear in graph payloads.
const (
	NodeRequest    = "request"
	NodeCondition  = "condition"
	NodeRuleGroup  = "ruleGroup"
	NodeLogic      = "logic"
	NodeRateLimit  = "rateLimit"
	NodeListLookup = "listLookup"
	NodeScore      = "score"
	NodeCache      = "cache"
	NodeHeader     = "header"
	NodeTransform  = "transform"
	NodeRedirect   = "redirect"
	NodeAction     = "action"
	NodeBackend    = "backend"
	NodeComment    = "comment"
)

// Output/input port names. Edges reference these via sourceHandle and
// targetHandle; an edge is only traversable when its source port fired.
const (
	PortRequest  = "request"
	PortTrue     = "true"
	PortFalse    = "false"
	PortMatch    = "match"
	PortNoMatch  = "noMatch"
	PortFound    = "found"
	PortNotFound = "notFound"
	PortExceeded = "exceeded"
	PortOK       = "ok"
	PortNext     = "next"
	PortValueOut = "value_out"
	PortScoreIn  = "score_in"
	PortScoreOut = "score_out"
	PortTrigger  = "trigger"
	PortRoute    = "route"
	PortIn       = "in"
	PortIn0      = "in0"
	PortIn1      = "in1"
)

// GraphPayload is the wire shape produced by the rule editor.
type GraphPayload struct {
	Nodes    []Node                   `json:"nodes"`
	Edges    []Edge                   `json:"edges"`
	Backends map[string]BackendConfig `json:"backends,omitempty"`
}

// Node as serialized by the editor. Position is layout-only and ignored
// at evaluation time. Data holds the kind-specific configuration.
type Node struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Position Position        `json:"position"`
	Data     json.RawMessage `json:"data,omitempty"`
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Edge connects a named source port to a named target port.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	Target       string `json:"target"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// ConditionData configures a condition node.
type ConditionData struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// RuleGroupData is the compact authoring form: an inline condition list
// combined under a single logic operator (and/or/not).
type RuleGroupData struct {
	Name       string           `json:"name,omitempty"`
	Logic      string           `json:"logic"`
	Conditions []GroupCondition `json:"conditions"`
}

type GroupCondition struct {
	ID       string `json:"id,omitempty"`
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// LogicData configures a logic node: "and", "or", or "not".
type LogicData struct {
	Operation string `json:"operation"`
}

// RateLimitData configures a rateLimit node.
type RateLimitData struct {
	CounterName     string `json:"counterName"`
	Limit           uint32 `json:"limit"`
	WindowSeconds   int    `json:"windowSeconds"`
	KeyBy           string `json:"keyBy"` // ip, fingerprint, header, path
	HeaderName      string `json:"headerName,omitempty"`
	BlockTTLSeconds int    `json:"blockTTLSeconds"`
}

// ListLookupData configures a listLookup node.
type ListLookupData struct {
	ListType string `json:"listType"` // blocklist, allowlist, botSignatures, threatIntel
	ListName string `json:"listName,omitempty"`
	Field    string `json:"field"`
}

// ScoreData configures a score node. Modes "add" and "set" write the
// accumulated score; mode "threshold" compares it.
type ScoreData struct {
	Mode      string `json:"mode"`
	Amount    int    `json:"amount,omitempty"`
	Threshold int    `json:"threshold,omitempty"`
}

// CacheData configures a cache node. Mode "configure" writes cache
// directives for the response; mode "pass" bypasses cache entirely.
type CacheData struct {
	Mode                 string `json:"mode"`
	TTLSeconds           int    `json:"ttlSeconds,omitempty"`
	StaleWhileRevalidate int    `json:"staleWhileRevalidate,omitempty"`
	SurrogateKey         string `json:"surrogateKey,omitempty"`
}

// HeaderData configures a header node.
type HeaderData struct {
	Operation string `json:"operation"` // set, remove
	Name      string `json:"name"`
	Value     string `json:"value,omitempty"`
}

// TransformData configures a transform node: apply an operation to a
// source field and store the result in a named context variable.
type TransformData struct {
	Field     string `json:"field"`
	Operation string `json:"operation"` // lowercase, uppercase, urlDecode, removeWhitespace, extract
	Pattern   string `json:"pattern,omitempty"`
	Variable  string `json:"variable"`
}

// RedirectData configures a redirect node.
type RedirectData struct {
	URL           string `json:"url"`
	StatusCode    int    `json:"statusCode"`
	PreserveQuery bool   `json:"preserveQuery,omitempty"`
}

// ActionData configures an action node.
type ActionData struct {
	Action        string `json:"action"` // block, challenge, allow, log, tarpit
	StatusCode    int    `json:"statusCode,omitempty"`
	Message       string `json:"message,omitempty"`
	ChallengeType string `json:"challengeType,omitempty"`
	Severity      string `json:"severity,omitempty"`
	DelayMs       int    `json:"delayMs,omitempty"`
}

// BackendConfig describes a routed origin. The engine only selects and
// annotates the record; the host's connection layer consumes the rest.
type BackendConfig struct {
	Name                  string `json:"name,omitempty"`
	Host                  string `json:"host"`
	Port                  uint16 `json:"port,omitempty"`
	UseTLS                bool   `json:"useTLS,omitempty"`
	MinTLSVersion         string `json:"minTLSVersion,omitempty"`
	MaxTLSVersion         string `json:"maxTLSVersion,omitempty"`
	SkipCertVerify        bool   `json:"skipCertVerify,omitempty"`
	ConnectTimeoutMs      int    `json:"connectTimeoutMs,omitempty"`
	FirstByteTimeoutMs    int    `json:"firstByteTimeoutMs,omitempty"`
	BetweenBytesTimeoutMs int    `json:"betweenBytesTimeoutMs,omitempty"`
	PoolEnabled           bool   `json:"poolEnabled,omitempty"`
	KeepaliveTimeMs       int    `json:"keepaliveTimeMs,omitempty"`
	MaxConnections        int    `json:"maxConnections,omitempty"`
	MaxUses               int    `json:"maxUses,omitempty"`
	MaxLifetimeMs         int    `json:"maxLifetimeMs,omitempty"`
	TCPKeepaliveEnable    bool   `json:"tcpKeepaliveEnable,omitempty"`
	TCPKeepaliveTimeSecs  int    `json:"tcpKeepaliveTimeSecs,omitempty"`
	TCPKeepaliveProbes    int    `json:"tcpKeepaliveProbes,omitempty"`
	TCPKeepaliveIntvlSecs int    `json:"tcpKeepaliveIntvlSecs,omitempty"`
	HostOverride          string `json:"hostOverride,omitempty"`
	PreferIPv6            bool   `json:"preferIPv6,omitempty"`
}
