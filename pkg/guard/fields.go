package guard

import (
	"strings"

	"github.com/aretw0/foreman/pkg/domain"
)

// Fields is the flat projection of a work item the evaluator operates on.
type Fields struct {
	Title       string
	Description string
	Status      string
	Stage       string
	Assignee    string
	Priority    string
	Tags        []string

	// Comments is the concatenation of all comment bodies.
	Comments string
}

// Get returns the named field as a string. Tags join with newlines so both
// length() and regex() have something sensible to chew on.
func (f Fields) Get(name string) (string, bool) {
	switch name {
	case "title":
		return f.Title, true
	case "description":
		return f.Description, true
	case "status":
		return f.Status, true
	case "stage":
		return f.Stage, true
	case "assignee":
		return f.Assignee, true
	case "priority":
		return f.Priority, true
	case "comments":
		return f.Comments, true
	case "tags":
		return strings.Join(f.Tags, "\n"), true
	default:
		return "", false
	}
}

// BuildFields projects a raw fetch payload into Fields. The payload may wrap
// the item under a "workItem" key, with a sibling "comments" array whose
// entries carry their text under "comment", "body", or "text".
func BuildFields(payload map[string]any) Fields {
	item := payload
	if wrapped, ok := mapValue(payload, "workItem", "work_item", "item"); ok {
		item = wrapped
	}

	f := Fields{
		Title:       stringValue(item, "title"),
		Description: stringValue(item, "description"),
		Status:      stringValue(item, "status"),
		Stage:       stringValue(item, "stage"),
		Assignee:    stringValue(item, "assignee"),
		Priority:    stringValue(item, "priority"),
	}

	if tags, ok := item["tags"].([]any); ok {
		for _, tag := range tags {
			if s, ok := tag.(string); ok {
				f.Tags = append(f.Tags, s)
			}
		}
	}
	if tags, ok := item["tags"].([]string); ok {
		f.Tags = append(f.Tags, tags...)
	}

	// Comments may live next to the wrapper or inside the item.
	comments, ok := payload["comments"].([]any)
	if !ok {
		comments, _ = item["comments"].([]any)
	}
	var bodies []string
	for _, c := range comments {
		cm, ok := c.(map[string]any)
		if !ok {
			continue
		}
		for _, key := range []string{"comment", "body", "text"} {
			if body := stringValue(cm, key); body != "" {
				bodies = append(bodies, body)
				break
			}
		}
	}
	f.Comments = strings.Join(bodies, "\n")

	return f
}

// FieldsFromCandidate projects an already-normalized candidate. Comments are
// not available at selection time; Mode A refetches the full item before
// evaluating invariants.
func FieldsFromCandidate(c domain.WorkItemCandidate) Fields {
	f := Fields{
		Title:    c.Title,
		Status:   c.Status,
		Stage:    c.Stage,
		Assignee: c.Assignee,
		Priority: c.Priority,
		Tags:     c.Tags,
	}
	if c.Raw != nil {
		f.Description = stringValue(c.Raw, "description")
	}
	return f
}

func stringValue(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func mapValue(m map[string]any, keys ...string) (map[string]any, bool) {
	for _, key := range keys {
		if sub, ok := m[key].(map[string]any); ok {
			return sub, true
		}
	}
	return nil, false
}
