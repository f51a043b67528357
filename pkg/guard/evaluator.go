package guard

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/aretw0/foreman/pkg/domain"
	"github.com/aretw0/foreman/pkg/ports"
)

// InvariantSource resolves invariant names to their definitions. The loaded
// descriptor satisfies this.
type InvariantSource interface {
	GetInvariant(name string) (domain.Invariant, error)
}

// Evaluator interprets invariant logic expressions against work item fields.
type Evaluator struct {
	source  InvariantSource
	querier ports.InProgressQuerier
	logger  *slog.Logger
}

// NewEvaluator creates an evaluator. querier backs count() expressions; pass
// ports.NullQuerier when no external counter exists.
func NewEvaluator(source InvariantSource, querier ports.InProgressQuerier, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Evaluator{source: source, querier: querier, logger: logger}
}

// Evaluate runs the named invariants against the fields, in the given order.
// failFast stops at the first failing invariant. An unknown invariant name is
// an error (descriptor/caller mismatch), not a failed evaluation.
func (e *Evaluator) Evaluate(ctx context.Context, names []string, fields Fields, failFast bool) (domain.InvariantResult, error) {
	result := domain.InvariantResult{Passed: true}

	for _, name := range names {
		inv, err := e.source.GetInvariant(name)
		if err != nil {
			return domain.InvariantResult{}, err
		}

		passed, reason := e.EvaluateLogic(ctx, inv.Logic, fields)
		result.Results = append(result.Results, domain.SingleInvariantResult{
			Name:   name,
			Passed: passed,
			Reason: reason,
		})
		if !passed {
			result.Passed = false
			if failFast {
				break
			}
		}
	}
	return result, nil
}

// Expression matchers, tried in order. The first regexp that matches claims
// the expression.
var (
	lengthExpr   = regexp.MustCompile(`^length\(\s*(\w+)\s*\)\s*(>=|<=|==|>|<)\s*(\d+)$`)
	regexExpr    = regexp.MustCompile(`^regex\(\s*(\w+)\s*,\s*"((?:[^"\\]|\\.)*)"\s*\)$`)
	inListExpr   = regexp.MustCompile(`^(\w+)\s+in\s+\[(.*)\]$`)
	notInTags    = regexp.MustCompile(`^"([^"]*)"\s+not\s+in\s+tags$`)
	countExpr    = regexp.MustCompile(`^count\(\s*work_items\s*(?:,\s*status\s*=\s*"[^"]*")?\s*\)\s*(>=|<=|==|>|<)\s*(\d+)$`)
	quotedString = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"`)
)

// EvaluateLogic interprets a single expression. Compound expressions are
// split on top-level " and " and short-circuit on the first failing part.
// Anything unrecognized passes with a warning reason (fail-open).
func (e *Evaluator) EvaluateLogic(ctx context.Context, logic string, fields Fields) (bool, string) {
	parts := splitTopLevelAnd(logic)
	if len(parts) > 1 {
		for _, part := range parts {
			if passed, reason := e.evaluateSingle(ctx, part, fields); !passed {
				return false, reason
			}
		}
		return true, ""
	}
	return e.evaluateSingle(ctx, strings.TrimSpace(logic), fields)
}

func (e *Evaluator) evaluateSingle(ctx context.Context, logic string, fields Fields) (bool, string) {
	logic = strings.TrimSpace(logic)

	if m := lengthExpr.FindStringSubmatch(logic); m != nil {
		return e.evalLength(m, fields)
	}
	if m := regexExpr.FindStringSubmatch(logic); m != nil {
		return e.evalRegex(m, fields)
	}
	if m := countExpr.FindStringSubmatch(logic); m != nil {
		return e.evalCount(ctx, m)
	}
	if m := notInTags.FindStringSubmatch(logic); m != nil {
		return e.evalNotInTags(m, fields)
	}
	if m := inListExpr.FindStringSubmatch(logic); m != nil {
		return e.evalMembership(m, fields)
	}

	// Fail open: a typo must not deadlock delegation.
	e.logger.Warn("unrecognized invariant expression, passing by default", "logic", logic)
	return true, fmt.Sprintf("unrecognized expression (passed by default): %s", logic)
}

func (e *Evaluator) evalLength(m []string, fields Fields) (bool, string) {
	field, op := m[1], m[2]
	n, _ := strconv.Atoi(m[3])

	value, ok := fields.Get(field)
	if !ok {
		return false, fmt.Sprintf("unknown field %q in length()", field)
	}
	if compareInt(len(value), op, n) {
		return true, ""
	}
	return false, fmt.Sprintf("length(%s) is %d, want %s %d", field, len(value), op, n)
}

func (e *Evaluator) evalRegex(m []string, fields Fields) (bool, string) {
	field, raw := m[1], m[2]

	value, ok := fields.Get(field)
	if !ok {
		return false, fmt.Sprintf("unknown field %q in regex()", field)
	}

	// Exactly one level of backslash un-escaping before compilation: the
	// source format double-escapes, so authors write "\\s" meaning "\s".
	pattern := unescapeOnce(raw)
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Sprintf("invalid pattern %q: %v", pattern, err)
	}
	if re.MatchString(value) {
		return true, ""
	}
	return false, fmt.Sprintf("field %q does not match %q", field, pattern)
}

func (e *Evaluator) evalCount(ctx context.Context, m []string) (bool, string) {
	op := m[1]
	n, _ := strconv.Atoi(m[2])

	// The status literal, if present, is deliberately ignored: the querier
	// reports one undifferentiated count.
	count, err := e.querier.InProgressCount(ctx)
	if err != nil {
		return false, fmt.Sprintf("in-progress count unavailable: %v", err)
	}
	if compareInt(count, op, n) {
		return true, ""
	}
	return false, fmt.Sprintf("in-progress count is %d, want %s %d", count, op, n)
}

func (e *Evaluator) evalNotInTags(m []string, fields Fields) (bool, string) {
	needle := m[1]
	for _, tag := range fields.Tags {
		if tag == needle {
			return false, fmt.Sprintf("tag %q present", needle)
		}
	}
	return true, ""
}

func (e *Evaluator) evalMembership(m []string, fields Fields) (bool, string) {
	field, list := m[1], m[2]

	value, ok := fields.Get(field)
	if !ok {
		return false, fmt.Sprintf("unknown field %q in membership check", field)
	}

	var allowed []string
	for _, qm := range quotedString.FindAllStringSubmatch(list, -1) {
		allowed = append(allowed, qm[1])
	}
	for _, item := range allowed {
		if value == item {
			return true, ""
		}
	}
	return false, fmt.Sprintf("%s is %q, not one of %v", field, value, allowed)
}

// splitTopLevelAnd splits on " and " outside quotes and parentheses.
func splitTopLevelAnd(expr string) []string {
	var parts []string
	var depth int
	var inQuote bool
	last := 0

	for i := 0; i < len(expr); i++ {
		switch expr[i] {
		case '\\':
			if inQuote {
				i++ // skip escaped char
			}
		case '"':
			inQuote = !inQuote
		case '(':
			if !inQuote {
				depth++
			}
		case ')':
			if !inQuote && depth > 0 {
				depth--
			}
		}
		if !inQuote && depth == 0 && strings.HasPrefix(expr[i:], " and ") {
			parts = append(parts, strings.TrimSpace(expr[last:i]))
			i += len(" and ") - 1
			last = i + 1
		}
	}
	parts = append(parts, strings.TrimSpace(expr[last:]))
	return parts
}

// unescapeOnce removes one level of backslash escaping: `\\s` becomes `\s`,
// `\"` becomes `"`.
func unescapeOnce(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func compareInt(a int, op string, b int) bool {
	switch op {
	case ">":
		return a > b
	case ">=":
		return a >= b
	case "<":
		return a < b
	case "<=":
		return a <= b
	case "==":
		return a == b
	default:
		return false
	}
}
