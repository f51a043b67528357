/*
Package guard evaluates invariant expressions against work item fields.

The grammar is fixed and small:

	length(field) OP N
	regex(field, "pattern")
	field in ["a", "b"]
	"value" not in tags
	count(work_items, status="X") OP N
	EXPR and EXPR [and ...]

Each pattern is recognized independently by an ordered (matcher, evaluator)
table. An expression matching none of them evaluates to PASS with a warning
reason: the evaluator fails open so a typo in a descriptor cannot deadlock
delegation. This is a documented operational risk, not an accident; do not
"fix" it into fail-closed behavior.

Known limitation preserved from the reference semantics: the status literal
in count(work_items, status="X") is parsed but ignored. The external querier
reports a single undifferentiated in-progress count.
*/
package guard
