// edgewall/pkg/runtime/engine.go

package runtime

import (
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"edgewall/pkg/compiler"
	"edgewall/pkg/edgeauth"
	"edgewall/pkg/lists"
	"edgewall/pkg/logging"
	"edgewall/pkg/ratelimit"
)

// Engine evaluates the active rule graph against request contexts. The
// graph is held behind an atomic pointer: a rule-set update swaps the
// whole snapshot while in-flight evaluations continue on the old one.
type Engine struct {
	graph   atomic.Pointer[compiler.ValidatedGraph]
	limiter ratelimit.Limiter
	lists   lists.Provider
	signer  *edgeauth.Signer
	metrics *Metrics

	// failClosed controls the provider-failure policy. Default is
	// fail-open: a broken limiter or list feed must not take down the
	// request path.
	failClosed bool

	evalCount    atomic.Int64
	blockedCount atomic.Int64
	allowedCount atomic.Int64
	challenged   atomic.Int64
	redirected   atomic.Int64
	routed       atomic.Int64
	lastLoadUnix atomic.Int64
}

// Options wires the engine's collaborators. Limiter defaults to an
// in-memory store; a nil Lists provider makes every lookup a miss.
type Options struct {
	Limiter    ratelimit.Limiter
	Lists      lists.Provider
	Signer     *edgeauth.Signer
	Metrics    *Metrics
	FailClosed bool
}

func NewEngine(graph *compiler.ValidatedGraph, opts Options) *Engine {
	e := &Engine{
		limiter:    opts.Limiter,
		lists:      opts.Lists,
		signer:     opts.Signer,
		metrics:    opts.Metrics,
		failClosed: opts.FailClosed,
	}
	if e.limiter == nil {
		e.limiter = ratelimit.NewMemoryLimiter()
	}
	if graph != nil {
		e.Swap(graph)
	}
	return e
}

// Swap atomically installs a new validated graph.
func (e *Engine) Swap(graph *compiler.ValidatedGraph) {
	e.graph.Store(graph)
	e.lastLoadUnix.Store(time.Now().Unix())
	logging.Logger.Info().Int("nodes", len(graph.Nodes)).Msg("rule graph installed")
}

// Graph returns the active snapshot, or nil before the first load.
func (e *Engine) Graph() *compiler.ValidatedGraph {
	return e.graph.Load()
}

// Stats is a point-in-time snapshot of engine counters for the
// dashboard's event stream.
type Stats struct {
	Evaluations int64 `json:"evaluations"`
	Allowed     int64 `json:"allowed"`
	Blocked     int64 `json:"blocked"`
	Challenged  int64 `json:"challenged"`
	Redirected  int64 `json:"redirected"`
	Routed      int64 `json:"routed"`
	GraphNodes  int   `json:"graphNodes"`
	LastLoad    int64 `json:"lastLoad"`
}

func (e *Engine) Stats() Stats {
	s := Stats{
		Evaluations: e.evalCount.Load(),
		Allowed:     e.allowedCount.Load(),
		Blocked:     e.blockedCount.Load(),
		Challenged:  e.challenged.Load(),
		Redirected:  e.redirected.Load(),
		Routed:      e.routed.Load(),
		LastLoad:    e.lastLoadUnix.Load(),
	}
	if g := e.graph.Load(); g != nil {
		s.GraphNodes = len(g.Nodes)
	}
	return s
}

type portKey struct {
	node string
	port string
}

// Evaluate walks the active graph for one request and returns the
// terminal directive. It never panics the request path: any internal
// failure resolves to Allow with a diagnostic.
func (e *Engine) Evaluate(rc *RequestContext) (directive Directive) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logging.Logger.Error().
				Interface("panic", r).
				Str("eval_id", rc.EvalID).
				Msg("evaluation panic recovered, failing open")
			directive = Allow()
		}
		e.record(directive, start)
	}()

	g := e.graph.Load()
	if g == nil {
		logging.Logger.Warn().Str("eval_id", rc.EvalID).Msg("no rule graph loaded, allowing")
		return Allow()
	}

	fired := make(map[portKey]compiler.Value, len(g.Nodes))

	for _, id := range g.Order {
		node := g.Nodes[id]
		if done, d := e.evalNode(g, node, rc, fired); done {
			e.logOutcome(rc, d, len(fired))
			return d
		}
	}

	// No terminal node fired: implicit allow with no mutation. This is
	// the documented fail-open default for fallthrough graphs.
	logging.Logger.Debug().Str("eval_id", rc.EvalID).Msg("no terminal node fired, allowing")
	return Allow()
}

// logOutcome emits the per-evaluation security record. Debug level keeps
// it out of production hot paths unless explicitly enabled.
func (e *Engine) logOutcome(rc *RequestContext, d Directive, firedPorts int) {
	logging.Logger.Debug().
		Str("eval_id", rc.EvalID).
		Str("directive", string(d.Kind)).
		Str("node", d.NodeID).
		Str("method", rc.Method).
		Str("path", rc.Path).
		Int("score", rc.Score).
		Int("fired_ports", firedPorts).
		Msg("evaluation complete")
}

// evalNode evaluates one node and records its firings. It returns
// (true, directive) when a terminal node fires.
func (e *Engine) evalNode(g *compiler.ValidatedGraph, node *compiler.CompiledNode, rc *RequestContext, fired map[portKey]compiler.Value) (bool, Directive) {
	emit := func(port string, v compiler.Value) {
		fired[portKey{node: node.ID, port: port}] = v
	}
	triggered := e.anyInputFired(g, node.ID, fired)

	switch node.Type {
	case compiler.NodeRequest:
		emit(compiler.PortRequest, compiler.BoolValue(true))

	case compiler.NodeCondition:
		if !triggered {
			return false, Directive{}
		}
		matched := node.Condition.Match(Extract(rc, node.Condition.Field))
		if matched {
			emit(compiler.PortTrue, compiler.BoolValue(true))
		} else {
			emit(compiler.PortFalse, compiler.BoolValue(true))
		}

	case compiler.NodeRuleGroup:
		if !triggered {
			return false, Directive{}
		}
		if e.evalGroup(node.Group, rc) {
			emit(compiler.PortMatch, compiler.BoolValue(true))
		} else {
			emit(compiler.PortNoMatch, compiler.BoolValue(true))
		}

	case compiler.NodeLogic:
		// Logic nodes always evaluate: by topological order every input
		// edge has either fired or is provably dead, and a dead input
		// counts as false.
		result := e.evalLogic(g, node, fired)
		if result {
			emit(compiler.PortTrue, compiler.BoolValue(true))
		} else {
			emit(compiler.PortFalse, compiler.BoolValue(true))
		}

	case compiler.NodeRateLimit:
		if !triggered {
			return false, Directive{}
		}
		if e.checkRateLimit(node.RateLimit, rc) == ratelimit.Exceeded {
			emit(compiler.PortExceeded, compiler.BoolValue(true))
		} else {
			emit(compiler.PortOK, compiler.BoolValue(true))
		}

	case compiler.NodeListLookup:
		if !triggered {
			return false, Directive{}
		}
		if e.checkList(node.ListLookup, rc) {
			emit(compiler.PortFound, compiler.BoolValue(true))
		} else {
			emit(compiler.PortNotFound, compiler.BoolValue(true))
		}

	case compiler.NodeScore:
		if !triggered {
			return false, Directive{}
		}
		e.evalScore(g, node, rc, fired, emit)

	case compiler.NodeCache:
		if !triggered {
			return false, Directive{}
		}
		cfg := node.Cache
		if cfg.Mode == "pass" {
			rc.Cache.Pass = true
		} else {
			rc.Cache.Configured = true
			rc.Cache.TTLSeconds = cfg.TTLSeconds
			rc.Cache.StaleWhileRevalidate = cfg.StaleWhileRevalidate
			rc.Cache.SurrogateKey = cfg.SurrogateKey
		}
		emit(compiler.PortNext, compiler.BoolValue(true))

	case compiler.NodeHeader:
		if !triggered {
			return false, Directive{}
		}
		if node.Header.Operation == "remove" {
			rc.RemoveForwardHeader(node.Header.Name)
		} else {
			rc.SetForwardHeader(node.Header.Name, node.Header.Value)
		}
		emit(compiler.PortNext, compiler.BoolValue(true))

	case compiler.NodeTransform:
		if !triggered {
			return false, Directive{}
		}
		out := e.applyTransform(node, rc)
		rc.Vars[node.Transform.Variable] = out
		emit(compiler.PortValueOut, compiler.StringValue(out))

	case compiler.NodeRedirect:
		if !triggered {
			return false, Directive{}
		}
		return true, Directive{
			Kind:          DirectiveRedirect,
			URL:           node.Redirect.URL,
			Status:        node.Redirect.StatusCode,
			PreserveQuery: node.Redirect.PreserveQuery,
			NodeID:        node.ID,
		}

	case compiler.NodeAction:
		if !triggered {
			return false, Directive{}
		}
		return e.applyAction(node, rc)

	case compiler.NodeBackend:
		if !triggered {
			return false, Directive{}
		}
		backend := e.resolveBackend(g, node)
		if e.signer != nil {
			rc.SetForwardHeader(edgeauth.HeaderName, e.signer.Header())
		}
		return true, Directive{Kind: DirectiveRoute, Backend: backend, NodeID: node.ID}
	}

	return false, Directive{}
}

// anyInputFired reports whether any edge targeting the node fired.
func (e *Engine) anyInputFired(g *compiler.ValidatedGraph, id string, fired map[portKey]compiler.Value) bool {
	for _, edge := range g.Incoming[id] {
		if _, ok := fired[portKey{node: edge.Source, port: edge.SourceHandle}]; ok {
			return true
		}
	}
	return false
}

func (e *Engine) evalGroup(group *compiler.CompiledGroup, rc *RequestContext) bool {
	switch group.Logic {
	case "and":
		for _, cond := range group.Conditions {
			if !cond.Match(Extract(rc, cond.Field)) {
				return false
			}
		}
		return true
	case "or":
		for _, cond := range group.Conditions {
			if cond.Match(Extract(rc, cond.Field)) {
				return true
			}
		}
		return false
	default: // not
		for _, cond := range group.Conditions {
			if cond.Match(Extract(rc, cond.Field)) {
				return false
			}
		}
		return true
	}
}

// evalLogic combines the firings on a logic node's input ports. Edges
// into any port accumulate: AND requires every incoming edge to have
// fired truthy, OR requires at least one, NOT inverts the OR.
func (e *Engine) evalLogic(g *compiler.ValidatedGraph, node *compiler.CompiledNode, fired map[portKey]compiler.Value) bool {
	incoming := g.Incoming[node.ID]
	anyTruthy := false
	allTruthy := len(incoming) > 0
	for _, edge := range incoming {
		v, ok := fired[portKey{node: edge.Source, port: edge.SourceHandle}]
		if ok && v.Truthy() {
			anyTruthy = true
		} else {
			allTruthy = false
		}
	}

	switch node.Logic {
	case "and":
		return allTruthy
	case "or":
		return anyTruthy
	default: // not
		return !anyTruthy
	}
}

func (e *Engine) checkRateLimit(cfg *compiler.RateLimitData, rc *RequestContext) ratelimit.Decision {
	key := e.rateLimitKey(cfg, rc)
	window := time.Duration(cfg.WindowSeconds) * time.Second
	blockTTL := time.Duration(cfg.BlockTTLSeconds) * time.Second

	decision, err := e.limiter.Check(cfg.CounterName, key, window, cfg.Limit, blockTTL)
	if err != nil {
		if e.metrics != nil {
			e.metrics.ProviderErrors.WithLabelValues("ratelimit").Inc()
		}
		logging.Logger.Error().Err(err).
			Str("counter", cfg.CounterName).
			Bool("fail_closed", e.failClosed).
			Msg("rate limiter unavailable")
		if e.failClosed {
			return ratelimit.Exceeded
		}
		return ratelimit.Ok
	}
	if decision == ratelimit.Exceeded && e.metrics != nil {
		e.metrics.RateLimitExceeded.WithLabelValues(cfg.CounterName).Inc()
	}
	return decision
}

func (e *Engine) rateLimitKey(cfg *compiler.RateLimitData, rc *RequestContext) string {
	switch cfg.KeyBy {
	case "fingerprint":
		if rc.TLS.JA4 != "" {
			return rc.TLS.JA4
		}
		if rc.TLS.JA3 != "" {
			return rc.TLS.JA3
		}
		return rc.UserAgent
	case "header":
		v, _ := rc.Header(cfg.HeaderName)
		return v
	case "path":
		return rc.Path
	default: // ip
		if rc.ClientIP.IsValid() {
			return rc.ClientIP.Unmap().String()
		}
		return ""
	}
}

func (e *Engine) checkList(cfg *compiler.ListLookupData, rc *RequestContext) bool {
	if e.lists == nil {
		return false
	}
	value, ok := Extract(rc, cfg.Field).AsString()
	if !ok {
		return false
	}
	found, err := e.lists.Lookup(cfg.ListType, cfg.ListName, value)
	if err != nil {
		if e.metrics != nil {
			e.metrics.ProviderErrors.WithLabelValues("lists").Inc()
		}
		logging.Logger.Error().Err(err).
			Str("list_type", cfg.ListType).
			Bool("fail_closed", e.failClosed).
			Msg("list provider unavailable")
		return e.failClosed
	}
	return found
}

// evalScore applies a score node. Add/set modes fold every fired
// score_in value into the accumulated score; threshold mode compares
// the accumulator instead.
func (e *Engine) evalScore(g *compiler.ValidatedGraph, node *compiler.CompiledNode, rc *RequestContext, fired map[portKey]compiler.Value, emit func(string, compiler.Value)) {
	cfg := node.Score
	if cfg.Mode == "threshold" {
		if rc.Score >= cfg.Threshold {
			emit(compiler.PortExceeded, compiler.BoolValue(true))
		} else {
			emit(compiler.PortOK, compiler.BoolValue(true))
		}
		return
	}

	if cfg.Mode == "set" {
		rc.Score = cfg.Amount
	} else {
		// One contribution per fired inbound edge; a numeric value
		// carried on the edge overrides the configured amount.
		for _, edge := range g.Incoming[node.ID] {
			v, ok := fired[portKey{node: edge.Source, port: edge.SourceHandle}]
			if !ok {
				continue
			}
			if v.Kind == compiler.ValueNumber {
				rc.Score += int(v.Num)
			} else {
				rc.Score += cfg.Amount
			}
		}
	}
	emit(compiler.PortScoreOut, compiler.NumberValue(float64(rc.Score)))
}

func (e *Engine) applyTransform(node *compiler.CompiledNode, rc *RequestContext) string {
	cfg := node.Transform
	in, _ := Extract(rc, cfg.Field).AsString()

	switch cfg.Operation {
	case "lowercase":
		return strings.ToLower(in)
	case "uppercase":
		return strings.ToUpper(in)
	case "urlDecode":
		if out, err := url.QueryUnescape(in); err == nil {
			return out
		}
		return in
	case "removeWhitespace":
		return strings.Join(strings.Fields(in), "")
	case "extract":
		m := node.ExtractRe.FindStringSubmatch(in)
		if m == nil {
			return ""
		}
		if len(m) > 1 {
			return m[1]
		}
		return m[0]
	}
	return in
}

func (e *Engine) applyAction(node *compiler.CompiledNode, rc *RequestContext) (bool, Directive) {
	cfg := node.Action
	switch cfg.Action {
	case "block":
		status := cfg.StatusCode
		if status == 0 {
			status = 403
		}
		return true, Directive{
			Kind:    DirectiveBlock,
			Status:  status,
			Body:    cfg.Message,
			Headers: map[string]string{},
			NodeID:  node.ID,
		}
	case "tarpit":
		// The engine performs no I/O, so a tarpit surfaces as a block
		// carrying the delay for the host to apply.
		return true, Directive{
			Kind:    DirectiveBlock,
			Status:  429,
			Body:    cfg.Message,
			Headers: map[string]string{"Retry-After": strconv.Itoa((cfg.DelayMs + 999) / 1000)},
			NodeID:  node.ID,
		}
	case "challenge":
		ct := cfg.ChallengeType
		if ct == "" {
			ct = "interactive"
		}
		return true, Directive{Kind: DirectiveChallenge, ChallengeType: ct, NodeID: node.ID}
	case "log":
		logging.Logger.WithLevel(severityLevel(cfg.Severity)).
			Str("eval_id", rc.EvalID).
			Str("node", node.ID).
			Str("path", rc.Path).
			Msg(cfg.Message)
		return true, Directive{Kind: DirectiveAllow, NodeID: node.ID}
	default: // allow
		return true, Directive{Kind: DirectiveAllow, NodeID: node.ID}
	}
}

func severityLevel(severity string) zerolog.Level {
	switch severity {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (e *Engine) resolveBackend(g *compiler.ValidatedGraph, node *compiler.CompiledNode) *compiler.BackendConfig {
	backend := node.Backend
	if backend.Host == "" && g.Backends != nil {
		if resolved, ok := g.Backends[backend.Name]; ok {
			merged := resolved
			merged.Name = backend.Name
			return &merged
		}
	}
	return backend
}

func (e *Engine) record(d Directive, start time.Time) {
	e.evalCount.Add(1)
	switch d.Kind {
	case DirectiveBlock:
		e.blockedCount.Add(1)
	case DirectiveChallenge:
		e.challenged.Add(1)
	case DirectiveRedirect:
		e.redirected.Add(1)
	case DirectiveRoute:
		e.routed.Add(1)
	default:
		e.allowedCount.Add(1)
	}
	if e.metrics != nil {
		kind := string(d.Kind)
		if kind == "" {
			kind = string(DirectiveAllow)
		}
		e.metrics.Evaluations.WithLabelValues(kind).Inc()
		e.metrics.EvalDuration.Observe(time.Since(start).Seconds())
	}
}
