package guard_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/foreman/pkg/domain"
	"github.com/aretw0/foreman/pkg/guard"
	"github.com/aretw0/foreman/pkg/ports"
)

// invariantMap satisfies guard.InvariantSource for tests.
type invariantMap map[string]string

func (m invariantMap) GetInvariant(name string) (domain.Invariant, error) {
	logic, ok := m[name]
	if !ok {
		return domain.Invariant{}, domain.ErrUnknownInvariant
	}
	return domain.Invariant{Name: name, Logic: logic}, nil
}

type fixedQuerier struct {
	count int
	err   error
}

func (q fixedQuerier) InProgressCount(ctx context.Context) (int, error) { return q.count, q.err }

func newEvaluator(invs invariantMap, q ports.InProgressQuerier) *guard.Evaluator {
	if q == nil {
		q = ports.NullQuerier{}
	}
	return guard.NewEvaluator(invs, q, nil)
}

func TestEvaluateLogic_Length(t *testing.T) {
	e := newEvaluator(nil, nil)
	fields := guard.Fields{Description: strings.Repeat("x", 10)}

	cases := []struct {
		logic string
		want  bool
	}{
		{"length(description) > 9", true},
		{"length(description) > 10", false}, // boundary: len == N is false for >
		{"length(description) >= 10", true},
		{"length(description) < 11", true},
		{"length(description) <= 9", false},
		{"length(description) == 10", true},
	}
	for _, tc := range cases {
		t.Run(tc.logic, func(t *testing.T) {
			passed, reason := e.EvaluateLogic(context.Background(), tc.logic, fields)
			assert.Equal(t, tc.want, passed, "reason: %s", reason)
		})
	}
}

func TestEvaluateLogic_Regex(t *testing.T) {
	e := newEvaluator(nil, nil)

	t.Run("One Level Unescape", func(t *testing.T) {
		// The author wrote a\\s+b in the source; after one un-escape it
		// compiles as a\s+b and matches whitespace.
		fields := guard.Fields{Description: "a   b"}
		passed, _ := e.EvaluateLogic(context.Background(), `regex(description, "a\\s+b")`, fields)
		assert.True(t, passed)

		passed, _ = e.EvaluateLogic(context.Background(), `regex(description, "a\\s+c")`, fields)
		assert.False(t, passed)
	})

	t.Run("Comments Field", func(t *testing.T) {
		fields := guard.Fields{Comments: "first note\nLGTM from reviewer"}
		passed, _ := e.EvaluateLogic(context.Background(), `regex(comments, "LGTM|approved")`, fields)
		assert.True(t, passed)
	})

	t.Run("Invalid Pattern Fails Closed", func(t *testing.T) {
		passed, reason := e.EvaluateLogic(context.Background(), `regex(title, "(unclosed")`, guard.Fields{})
		assert.False(t, passed)
		assert.Contains(t, reason, "invalid pattern")
	})
}

func TestEvaluateLogic_Membership(t *testing.T) {
	e := newEvaluator(nil, nil)
	fields := guard.Fields{Status: "open", Tags: []string{"backend", "urgent"}}

	passed, _ := e.EvaluateLogic(context.Background(), `status in ["open", "reopened"]`, fields)
	assert.True(t, passed)

	passed, reason := e.EvaluateLogic(context.Background(), `status in ["closed"]`, fields)
	assert.False(t, passed)
	assert.Contains(t, reason, `"open"`)

	passed, _ = e.EvaluateLogic(context.Background(), `"blocked" not in tags`, fields)
	assert.True(t, passed)

	passed, _ = e.EvaluateLogic(context.Background(), `"urgent" not in tags`, fields)
	assert.False(t, passed)
}

func TestEvaluateLogic_Count(t *testing.T) {
	t.Run("Status Literal Ignored", func(t *testing.T) {
		// The querier reports one undifferentiated count; the status
		// literal changes nothing.
		e := newEvaluator(nil, fixedQuerier{count: 0})
		passed, _ := e.EvaluateLogic(context.Background(), `count(work_items, status="in-progress") == 0`, guard.Fields{})
		assert.True(t, passed)

		passed, _ = e.EvaluateLogic(context.Background(), `count(work_items, status="whatever") == 0`, guard.Fields{})
		assert.True(t, passed)

		passed, _ = e.EvaluateLogic(context.Background(), `count(work_items) == 0`, guard.Fields{})
		assert.True(t, passed)
	})

	t.Run("Nonzero Count", func(t *testing.T) {
		e := newEvaluator(nil, fixedQuerier{count: 2})
		passed, reason := e.EvaluateLogic(context.Background(), `count(work_items) == 0`, guard.Fields{})
		assert.False(t, passed)
		assert.Contains(t, reason, "2")

		passed, _ = e.EvaluateLogic(context.Background(), `count(work_items) <= 2`, guard.Fields{})
		assert.True(t, passed)
	})

	t.Run("Querier Error", func(t *testing.T) {
		e := newEvaluator(nil, fixedQuerier{err: errors.New("store down")})
		passed, reason := e.EvaluateLogic(context.Background(), `count(work_items) == 0`, guard.Fields{})
		assert.False(t, passed)
		assert.Contains(t, reason, "unavailable")
	})
}

func TestEvaluateLogic_Compound(t *testing.T) {
	e := newEvaluator(nil, fixedQuerier{count: 0})
	fields := guard.Fields{Description: "a long enough description", Status: "open"}

	passed, _ := e.EvaluateLogic(context.Background(),
		`length(description) > 10 and status in ["open"] and count(work_items) == 0`, fields)
	assert.True(t, passed)

	// Short-circuits on the first failing part.
	passed, reason := e.EvaluateLogic(context.Background(),
		`length(description) > 100 and status in ["open"]`, fields)
	assert.False(t, passed)
	assert.Contains(t, reason, "length(description)")

	// " and " inside quotes is not a split point.
	fields.Description = "war and peace"
	passed, _ = e.EvaluateLogic(context.Background(), `regex(description, "war and peace")`, fields)
	assert.True(t, passed)
}

func TestEvaluateLogic_FailOpen(t *testing.T) {
	e := newEvaluator(nil, nil)

	for _, logic := range []string{
		"lenght(description) > 5", // typo
		"description exists",
		"",
	} {
		passed, reason := e.EvaluateLogic(context.Background(), logic, guard.Fields{})
		assert.True(t, passed, "expression %q must fail open", logic)
		assert.Contains(t, reason, "passed by default")
	}
}

func TestEvaluate_OrderAndFailFast(t *testing.T) {
	invs := invariantMap{
		"a_fails":  "length(title) > 100",
		"b_passes": "length(title) >= 0",
		"c_fails":  `status in ["never"]`,
	}
	e := newEvaluator(invs, nil)
	fields := guard.Fields{Title: "short", Status: "open"}

	t.Run("Evaluate All", func(t *testing.T) {
		res, err := e.Evaluate(context.Background(), []string{"a_fails", "b_passes", "c_fails"}, fields, false)
		require.NoError(t, err)
		assert.False(t, res.Passed)
		require.Len(t, res.Results, 3)
		// Result order matches invocation order.
		assert.Equal(t, "a_fails", res.Results[0].Name)
		assert.Equal(t, "b_passes", res.Results[1].Name)
		assert.Equal(t, "c_fails", res.Results[2].Name)
		assert.Len(t, res.FailureReasons(), 2)
	})

	t.Run("Fail Fast", func(t *testing.T) {
		res, err := e.Evaluate(context.Background(), []string{"a_fails", "b_passes"}, fields, true)
		require.NoError(t, err)
		assert.False(t, res.Passed)
		require.Len(t, res.Results, 1)
		assert.Equal(t, "a_fails", res.Results[0].Name)
	})

	t.Run("Unknown Invariant Is An Error", func(t *testing.T) {
		_, err := e.Evaluate(context.Background(), []string{"b_passes", "ghost"}, fields, false)
		assert.ErrorIs(t, err, domain.ErrUnknownInvariant)
	})
}

func TestBuildFields(t *testing.T) {
	payload := map[string]any{
		"workItem": map[string]any{
			"id":          "WL-1",
			"title":       "Ship it",
			"description": "desc",
			"status":      "open",
			"stage":       "idea",
			"tags":        []any{"backend", "urgent"},
		},
		"comments": []any{
			map[string]any{"comment": "first"},
			map[string]any{"body": "second"},
			map[string]any{"text": "third"},
		},
	}
	f := guard.BuildFields(payload)
	assert.Equal(t, "Ship it", f.Title)
	assert.Equal(t, []string{"backend", "urgent"}, f.Tags)
	assert.Equal(t, "first\nsecond\nthird", f.Comments)

	// Unwrapped payloads work too.
	flat := guard.BuildFields(map[string]any{"title": "flat", "status": "open"})
	assert.Equal(t, "flat", flat.Title)
}
