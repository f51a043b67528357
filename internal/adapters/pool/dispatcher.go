// Package pool dispatches delegated workers into pre-provisioned container
// pool members, claiming one execution slot per dispatch.
//
// The claim table is a shared JSON file mapping member name to its current
// claim. Claim and release are serialized behind an in-process mutex; there
// is no cross-process lock, which is an accepted gap while a single
// scheduler process owns the pool. Deployments with concurrent writers need
// file locking around the read-modify-write cycle.
package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/aretw0/foreman/pkg/domain"
)

// ClaimTimeoutEnv overrides the configured claim timeout. Invalid values are
// silently ignored in favor of the next fallback.
const ClaimTimeoutEnv = "FOREMAN_POOL_CLAIM_TIMEOUT"

// DefaultClaimTimeout is the hard-coded last-resort claim validity bound.
const DefaultClaimTimeout = 2 * time.Hour

// Claim records which work item holds a pool member.
type Claim struct {
	WorkItemID string    `json:"workItemId"`
	Branch     string    `json:"branch"`
	ClaimedAt  time.Time `json:"claimedAt,omitempty"`
}

// Spawner is the underlying spawn primitive. The direct process dispatcher
// satisfies it.
type Spawner interface {
	DispatchWithEnv(ctx context.Context, command, workItemID string, env map[string]string) domain.DispatchResult
}

// Config describes the pool.
type Config struct {
	// Members lists the pool member names, in claim-preference order.
	Members []string

	// StateFile is the shared claim table path.
	StateFile string

	// ProjectRoot is exported to workers as FOREMAN_PROJECT_ROOT.
	ProjectRoot string

	// Runtime is the container runtime binary used to enter a member.
	// Defaults to "docker".
	Runtime string

	// ClaimTimeout bounds how long a claim is considered valid. The
	// dispatcher records it for housekeeping but does not evict claims
	// itself. Zero falls back to the env override, then the default.
	ClaimTimeout time.Duration
}

// Dispatcher implements ports.Dispatcher on top of a container pool.
type Dispatcher struct {
	cfg     Config
	spawner Spawner
	timeout time.Duration
	logger  *slog.Logger

	mu sync.Mutex
}

// New creates a pool Dispatcher.
func New(cfg Config, spawner Spawner, logger *slog.Logger) *Dispatcher {
	if cfg.Runtime == "" {
		cfg.Runtime = "docker"
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dispatcher{
		cfg:     cfg,
		spawner: spawner,
		timeout: resolveClaimTimeout(cfg.ClaimTimeout),
		logger:  logger,
	}
}

// ClaimTimeout returns the effective claim validity bound, after the
// env > config > default precedence has been applied.
func (d *Dispatcher) ClaimTimeout() time.Duration {
	return d.timeout
}

// Dispatch claims the first free pool member, wraps the command in a
// runtime-exec invocation, and spawns it with identifying environment
// variables. When the spawn fails the claim is released before returning,
// so a transient error cannot starve a pool slot.
func (d *Dispatcher) Dispatch(ctx context.Context, command, workItemID string) domain.DispatchResult {
	member, result := d.claim(command, workItemID)
	if member == "" {
		return result
	}

	branch := "agent/" + workItemID
	wrapped := fmt.Sprintf("%s exec %s /bin/sh -lc %s", d.cfg.Runtime, member, shellQuote(command))
	env := map[string]string{
		"FOREMAN_WORK_ITEM":    workItemID,
		"FOREMAN_BRANCH":       branch,
		"FOREMAN_PROJECT_ROOT": d.cfg.ProjectRoot,
		"FOREMAN_POOL_MEMBER":  member,
	}

	result = d.spawner.DispatchWithEnv(ctx, wrapped, workItemID, env)
	result.ContainerID = &member
	if !result.Success {
		d.release(member, workItemID)
	}
	return result
}

// claim picks and persists a slot. It returns ("", failedResult) when the
// pool is exhausted; the spawn primitive is never called in that case.
func (d *Dispatcher) claim(command, workItemID string) (string, domain.DispatchResult) {
	d.mu.Lock()
	defer d.mu.Unlock()

	claims := d.loadClaims()

	var member string
	for _, m := range d.cfg.Members {
		if _, taken := claims[m]; !taken {
			member = m
			break
		}
	}

	result := domain.DispatchResult{
		Command:    command,
		WorkItemID: workItemID,
		Timestamp:  time.Now().UTC(),
	}
	if member == "" {
		msg := fmt.Sprintf("no pool slots available (%d member(s), all claimed)", len(d.cfg.Members))
		result.Error = &msg
		d.logger.Warn("pool exhausted", "work_item", workItemID)
		return "", result
	}

	claims[member] = Claim{
		WorkItemID: workItemID,
		Branch:     "agent/" + workItemID,
		ClaimedAt:  time.Now().UTC(),
	}
	if err := d.saveClaims(claims); err != nil {
		msg := fmt.Sprintf("cannot persist pool claim: %v", err)
		result.Error = &msg
		return "", result
	}
	return member, result
}

// release frees a member, but only if it is still held by the same work item.
func (d *Dispatcher) release(member, workItemID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	claims := d.loadClaims()
	if c, ok := claims[member]; ok && c.WorkItemID == workItemID {
		delete(claims, member)
		if err := d.saveClaims(claims); err != nil {
			d.logger.Error("cannot release pool claim", "err", err, "member", member)
		}
	}
}

// Claims returns a snapshot of the claim table, for status reporting.
func (d *Dispatcher) Claims() map[string]Claim {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loadClaims()
}

// loadClaims reads the state file. Absence or corruption means an empty
// pool, never a fatal error.
func (d *Dispatcher) loadClaims() map[string]Claim {
	data, err := os.ReadFile(d.cfg.StateFile)
	if err != nil {
		return map[string]Claim{}
	}
	var claims map[string]Claim
	if err := json.Unmarshal(data, &claims); err != nil || claims == nil {
		d.logger.Warn("pool state file unreadable, treating as empty", "path", d.cfg.StateFile)
		return map[string]Claim{}
	}
	return claims
}

// saveClaims writes the table atomically: temp file, then rename.
func (d *Dispatcher) saveClaims(claims map[string]Claim) error {
	dir := filepath.Dir(d.cfg.StateFile)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(claims, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "pool-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), d.cfg.StateFile)
}

// resolveClaimTimeout applies the env > config > default precedence. The env
// value may be a Go duration ("30m") or a number of seconds.
func resolveClaimTimeout(configured time.Duration) time.Duration {
	if raw := os.Getenv(ClaimTimeoutEnv); raw != "" {
		if dur, err := time.ParseDuration(raw); err == nil && dur > 0 {
			return dur
		}
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
		// Invalid values fall through silently.
	}
	if configured > 0 {
		return configured
	}
	return DefaultClaimTimeout
}

// shellQuote wraps the command for the inner shell, escaping single quotes
// the POSIX way.
func shellQuote(s string) string {
	out := "'"
	for _, r := range s {
		if r == '\'' {
			out += `'\''`
			continue
		}
		out += string(r)
	}
	return out + "'"
}
