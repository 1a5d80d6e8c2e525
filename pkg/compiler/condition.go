// edgewall/pkg/compiler/condition.go

package compiler

import (
	"fmt"
	"net/netip"
	"regexp"
	"strconv"
	"strings"

	"edgewall/pkg/logging"
)

// Condition operators. String values match the editor payloads.
const (
	OpEquals         = "equals"
	OpNotEquals      = "notEquals"
	OpContains       = "contains"
	OpNotContains    = "notContains"
	OpStartsWith     = "startsWith"
	OpEndsWith       = "endsWith"
	OpMatches        = "matches"
	OpIn             = "in"
	OpNotIn          = "notIn"
	OpGreaterThan    = "greaterThan"
	OpLessThan       = "lessThan"
	OpGreaterOrEqual = "greaterOrEqual"
	OpLessOrEqual    = "lessOrEqual"
	OpInCidr         = "inCidr"
	OpExists         = "exists"
	OpNotExists      = "notExists"
)

var knownOperators = map[string]bool{
	OpEquals: true, OpNotEquals: true, OpContains: true, OpNotContains: true,
	OpStartsWith: true, OpEndsWith: true, OpMatches: true, OpIn: true,
	OpNotIn: true, OpGreaterThan: true, OpLessThan: true,
	OpGreaterOrEqual: true, OpLessOrEqual: true, OpInCidr: true,
	OpExists: true, OpNotExists: true,
}

// CompiledCondition is a condition with its rule value pre-parsed.
// Regex and CIDR syntax errors are rejected here, at load time, so a
// request evaluation can never hit them.
type CompiledCondition struct {
	Field    string
	Operator string
	Value    string

	re    *regexp.Regexp
	list  []string
	cidrs []netip.Prefix
	num   float64
	numOK bool
}

// CompileCondition validates the operator and pre-parses the rule value.
func CompileCondition(field, operator, value string) (*CompiledCondition, error) {
	if field == "" {
		return nil, fmt.Errorf("condition has empty field")
	}
	if !knownOperators[operator] {
		return nil, fmt.Errorf("unknown operator %q", operator)
	}

	c := &CompiledCondition{Field: field, Operator: operator, Value: value}

	switch operator {
	case OpMatches:
		re, err := regexp.Compile(value)
		if err != nil {
			return nil, fmt.Errorf("invalid regex %q: %w", value, err)
		}
		c.re = re
	case OpIn, OpNotIn:
		c.list = splitTrimmed(value)
	case OpInCidr:
		for _, part := range splitTrimmed(value) {
			prefix, err := netip.ParsePrefix(part)
			if err != nil {
				return nil, fmt.Errorf("invalid CIDR %q: %w", part, err)
			}
			c.cidrs = append(c.cidrs, prefix)
		}
		if len(c.cidrs) == 0 {
			return nil, fmt.Errorf("inCidr condition has no CIDR blocks")
		}
	case OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual:
		n, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		c.num, c.numOK = n, err == nil
	}

	return c, nil
}

// Match evaluates the condition against an extracted field value.
// An absent field never matches, except for notExists. Unknown
// operator/type combinations evaluate to false and are logged.
func (c *CompiledCondition) Match(v Value) bool {
	switch c.Operator {
	case OpExists:
		return !v.IsNone()
	case OpNotExists:
		return v.IsNone()
	}

	if v.IsNone() {
		return false
	}

	switch c.Operator {
	case OpEquals:
		s, ok := v.AsString()
		return ok && s == c.Value
	case OpNotEquals:
		s, ok := v.AsString()
		return ok && s != c.Value
	case OpContains:
		s, ok := v.AsString()
		return ok && strings.Contains(s, c.Value)
	case OpNotContains:
		s, ok := v.AsString()
		return ok && !strings.Contains(s, c.Value)
	case OpStartsWith:
		s, ok := v.AsString()
		return ok && strings.HasPrefix(s, c.Value)
	case OpEndsWith:
		s, ok := v.AsString()
		return ok && strings.HasSuffix(s, c.Value)
	case OpMatches:
		s, ok := v.AsString()
		return ok && c.re.MatchString(s)
	case OpIn:
		return c.inList(v)
	case OpNotIn:
		return !c.inList(v)
	case OpGreaterThan:
		n, ok := v.AsNumber()
		return ok && c.numOK && n > c.num
	case OpLessThan:
		n, ok := v.AsNumber()
		return ok && c.numOK && n < c.num
	case OpGreaterOrEqual:
		n, ok := v.AsNumber()
		return ok && c.numOK && n >= c.num
	case OpLessOrEqual:
		n, ok := v.AsNumber()
		return ok && c.numOK && n <= c.num
	case OpInCidr:
		return c.inCidr(v)
	}

	logging.Logger.Warn().
		Str("field", c.Field).
		Str("operator", c.Operator).
		Msg("unhandled operator/value combination, treating as non-match")
	return false
}

func (c *CompiledCondition) inList(v Value) bool {
	if v.Kind == ValueList {
		for _, item := range v.List {
			for _, want := range c.list {
				if item == want {
					return true
				}
			}
		}
		return false
	}
	s, ok := v.AsString()
	if !ok {
		return false
	}
	for _, want := range c.list {
		if s == want {
			return true
		}
	}
	return false
}

func (c *CompiledCondition) inCidr(v Value) bool {
	s, ok := v.AsString()
	if !ok {
		return false
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range c.cidrs {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// splitTrimmed parses a comma-separated rule value, trimming whitespace
// and dropping empty entries.
func splitTrimmed(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
