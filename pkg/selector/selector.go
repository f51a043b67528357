package selector

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/aretw0/foreman/pkg/descriptor"
	"github.com/aretw0/foreman/pkg/domain"
	"github.com/aretw0/foreman/pkg/ports"
)

// Config tunes the selector.
type Config struct {
	// Command names the descriptor command whose from-states define
	// eligibility. Defaults to domain.DefaultCommand.
	Command string
}

// Selector fetches raw candidates, normalizes them, and applies the ordered
// filter chain. It holds no state between cycles.
type Selector struct {
	desc    *descriptor.Descriptor
	fetcher ports.CandidateFetcher
	querier ports.InProgressQuerier
	cfg     Config
	logger  *slog.Logger
}

// New creates a Selector.
func New(desc *descriptor.Descriptor, fetcher ports.CandidateFetcher, querier ports.InProgressQuerier, cfg Config, logger *slog.Logger) *Selector {
	if cfg.Command == "" {
		cfg.Command = domain.DefaultCommand
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Selector{desc: desc, fetcher: fetcher, querier: querier, cfg: cfg, logger: logger}
}

// Select runs one selection cycle. Errors from the fetcher and querier are
// converted into rejection reasons; they never propagate to the caller.
func (s *Selector) Select(ctx context.Context) domain.CandidateResult {
	result := domain.CandidateResult{
		Candidates: []domain.WorkItemCandidate{},
		Rejections: []domain.Rejection{},
	}

	// 1. Global blocker: a delegation already in flight stops everything.
	// The candidates are still fetched below so the audit trail shows what
	// would have been considered.
	blocked := false
	count, err := s.querier.InProgressCount(ctx)
	switch {
	case err != nil:
		result.GlobalRejections = append(result.GlobalRejections,
			fmt.Sprintf("in-progress count unavailable: %v", err))
		blocked = true
	case count > 0:
		result.GlobalRejections = append(result.GlobalRejections,
			fmt.Sprintf("In-progress items exist (%d item(s)): delegation blocked until they settle", count))
		blocked = true
	}

	// 2. Fetch and normalize.
	payload, err := s.fetcher.FetchCandidates(ctx)
	if err != nil {
		result.GlobalRejections = append(result.GlobalRejections,
			fmt.Sprintf("candidate fetch failed: %v", err))
		return result
	}
	raw := extractCandidates(payload)
	if len(raw) == 0 {
		if !blocked {
			result.GlobalRejections = append(result.GlobalRejections, "no candidates returned")
		}
		return result
	}

	for _, item := range raw {
		cand, err := normalize(item)
		if err != nil {
			s.logger.Warn("skipping malformed candidate", "err", err)
			continue
		}
		result.Candidates = append(result.Candidates, cand)
	}

	if blocked {
		return result
	}

	// 3. Per-item filters, in fixed order. First eligible candidate wins.
	validStates, validNames := s.validFromStates()
	for i := range result.Candidates {
		cand := result.Candidates[i]

		if reason := s.filter(cand, validStates, validNames); reason != "" {
			result.Rejections = append(result.Rejections, domain.Rejection{
				Candidate: cand,
				Reason:    reason,
			})
			continue
		}

		result.Selected = &result.Candidates[i]
		break
	}

	return result
}

// filter returns a rejection reason, or "" when the candidate is eligible.
func (s *Selector) filter(cand domain.WorkItemCandidate, validStates map[domain.StateTuple]bool, validNames []string) string {
	if cand.ID == "" {
		return "missing id"
	}
	if isDoNotDelegate(cand) {
		return "do-not-delegate flag set"
	}
	if !validStates[cand.State()] {
		return fmt.Sprintf("stage %q is not delegatable via %q (valid states: [%s])",
			cand.Stage, s.cfg.Command, quoteJoin(validNames))
	}
	return ""
}

// validFromStates resolves the configured command's from-states into a
// membership set plus display names for rejection messages.
func (s *Selector) validFromStates() (map[domain.StateTuple]bool, []string) {
	cmd, err := s.desc.GetCommand(s.cfg.Command)
	if err != nil {
		// A missing command means nothing is ever eligible; the rejection
		// message names it so the descriptor mismatch is visible.
		return map[domain.StateTuple]bool{}, nil
	}
	states := make(map[domain.StateTuple]bool, len(cmd.From))
	for _, ref := range cmd.From {
		states[s.desc.ResolveStateRef(ref)] = true
	}
	return states, s.desc.FromStateAliases(cmd)
}

// isDoNotDelegate honors all three opt-out surfaces producers may set: a
// normalized tag, a boolean-ish metadata flag, and the explicit field.
func isDoNotDelegate(cand domain.WorkItemCandidate) bool {
	if cand.DoNotDelegate {
		return true
	}
	for _, tag := range cand.Tags {
		if normalizeTag(tag) == "do-not-delegate" {
			return true
		}
	}
	for _, key := range []string{"doNotDelegate", "do-not-delegate"} {
		if truthy(cand.Raw[key]) {
			return true
		}
	}
	if meta, ok := cand.Raw["metadata"].(map[string]any); ok {
		for _, key := range []string{"do_not_delegate", "do-not-delegate", "doNotDelegate"} {
			if truthy(meta[key]) {
				return true
			}
		}
	}
	return false
}

func normalizeTag(tag string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(tag)), "_", "-")
}

// truthy interprets the boolean-ish values producers put in metadata flags.
func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "true", "yes", "y":
			return true
		}
	case float64:
		return t != 0
	case int:
		return t != 0
	}
	return false
}

// extractCandidates digs the raw candidate list out of whatever envelope the
// store used: a list under workItems/work_items/items/data, or a single
// object under workItem/work_item/item, or a bare list.
func extractCandidates(payload any) []map[string]any {
	switch p := payload.(type) {
	case []any:
		return toMaps(p)
	case []map[string]any:
		return p
	case map[string]any:
		for _, key := range []string{"workItems", "work_items", "items", "data"} {
			if list, ok := p[key].([]any); ok {
				return toMaps(list)
			}
			if list, ok := p[key].([]map[string]any); ok {
				return list
			}
		}
		for _, key := range []string{"workItem", "work_item", "item"} {
			if item, ok := p[key].(map[string]any); ok {
				return []map[string]any{item}
			}
		}
	}
	return nil
}

func toMaps(list []any) []map[string]any {
	var out []map[string]any
	for _, v := range list {
		if m, ok := v.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// normalize decodes a loose map into a candidate. Decoding is weakly typed
// because producers disagree about numbers vs. strings for priority and id.
func normalize(item map[string]any) (domain.WorkItemCandidate, error) {
	var cand domain.WorkItemCandidate
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &cand,
	})
	if err != nil {
		return domain.WorkItemCandidate{}, err
	}
	if err := dec.Decode(item); err != nil {
		return domain.WorkItemCandidate{}, fmt.Errorf("cannot normalize candidate: %w", err)
	}
	return cand, nil
}

func quoteJoin(items []string) string {
	quoted := make([]string, len(items))
	for i, it := range items {
		quoted[i] = fmt.Sprintf("%q", it)
	}
	return strings.Join(quoted, ", ")
}
