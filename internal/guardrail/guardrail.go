// Package guardrail is the pre-flight admission gate for organization jobs.
// It checks permissions, quota, scope size and host resources, estimates
// time and cost, and returns a verdict. Only a missing read grant, an
// exhausted quota or an oversized scope reject a job; everything after the
// scope check is advisory.
package guardrail

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/fruitsalade/organizer/internal/logging"
	"github.com/fruitsalade/fruitsalade/organizer/internal/metrics"
	"github.com/fruitsalade/fruitsalade/organizer/internal/models"
	"github.com/fruitsalade/fruitsalade/organizer/internal/rules"
)

// PermissionChecker reports a user's access to a scope.
type PermissionChecker interface {
	Permissions(ctx context.Context, userID, orgID, scope string) (models.Permissions, error)
}

// UsageTracker reports what a user has consumed today.
type UsageTracker interface {
	Usage(ctx context.Context, userID string) (models.Usage, error)
}

// ScopeAnalyzer summarizes a whole scope. *scope.Enumerator implements it.
type ScopeAnalyzer interface {
	AnalyzeScope(ctx context.Context, scope string) (*models.ScopeSummary, error)
}

// ResourceProbe takes a host resource snapshot.
type ResourceProbe interface {
	Snapshot(ctx context.Context) (models.SystemStatus, error)
}

// Warning messages.
const (
	MsgNoReadAccess  = "No read access to specified scope"
	MsgQuotaExceeded = "File processing quota exceeded"
	MsgJobsExhausted = "Daily job limit reached"
	MsgHighLoad      = "High system load may cause slower processing"
	MsgLowMemory     = "Low memory available, consider smaller batch sizes"
	MsgLargeFiles    = "Large files detected - processing may be slower"
	MsgLargeScope    = "Large scope detected - consider processing in batches"
)

// Gate evaluates admission requests. It holds no mutable state.
type Gate struct {
	rules  *rules.Rules
	perms  PermissionChecker
	usage  UsageTracker
	scopes ScopeAnalyzer
	probe  ResourceProbe
}

// New creates a Gate. probe may be nil, in which case the resource check is
// skipped.
func New(r *rules.Rules, perms PermissionChecker, usage UsageTracker, scopes ScopeAnalyzer, probe ResourceProbe) *Gate {
	return &Gate{rules: r, perms: perms, usage: usage, scopes: scopes, probe: probe}
}

// Quotas derives the remaining allowance for a tier from today's usage.
func Quotas(t rules.Tier, u models.Usage) models.Quota {
	return models.Quota{
		MaxFilesPerJob:     t.MaxFilesPerJob,
		MaxJobsPerDay:      t.MaxJobsPerDay,
		MaxStorageGB:       t.MaxStorageGB,
		FilesRemaining:     max(0, t.MaxFilesPerJob*t.MaxJobsPerDay-u.FilesProcessedToday),
		JobsRemaining:      max(0, t.MaxJobsPerDay-u.JobsRunToday),
		StorageRemainingGB: math.Max(0, t.MaxStorageGB-u.StorageUsedGB),
	}
}

// Evaluate runs the admission checks in order and stops at the first hard
// failure. A provider error rejects the job with a "Safety check failed"
// warning.
func (g *Gate) Evaluate(ctx context.Context, req models.GuardRailRequest) models.Verdict {
	start := time.Now()
	log := logging.WithContext(ctx).With(
		zap.String("user_id", req.UserID),
		zap.String("scope", req.Scope))

	v := models.Verdict{OK: true, Warnings: []string{}}
	tier, err := g.evaluate(ctx, req, &v)
	if err != nil {
		v.OK = false
		v.Warnings = append(v.Warnings, "Safety check failed: "+err.Error())
		log.Error("guard rail check failed", zap.Error(err))
	}

	outcome := "ok"
	if !v.OK {
		outcome = "rejected"
	}
	metrics.RecordVerdict(tier, v.OK)
	metrics.RecordStage(metrics.StageGuardRail, outcome, time.Since(start))
	log.Info("guard rail check completed",
		zap.String("tier", tier),
		zap.Bool("ok", v.OK),
		zap.Int("warnings", len(v.Warnings)),
		zap.Duration("duration", time.Since(start)))
	return v
}

func (g *Gate) evaluate(ctx context.Context, req models.GuardRailRequest, v *models.Verdict) (string, error) {
	tierName, tier := g.rules.TierFor(req.Tier)

	perms, err := timed("permissions", func() (models.Permissions, error) {
		return g.perms.Permissions(ctx, req.UserID, req.OrgID, req.Scope)
	})
	if err != nil {
		return tierName, fmt.Errorf("check permissions: %w", err)
	}
	v.Permissions = perms
	if !perms.Read {
		v.OK = false
		v.Warnings = append(v.Warnings, MsgNoReadAccess)
		return tierName, nil
	}

	if tierName != req.Tier {
		v.Warnings = append(v.Warnings, fmt.Sprintf("Unknown tier %q, using %s limits", req.Tier, tierName))
	}

	usage, err := timed("usage", func() (models.Usage, error) {
		return g.usage.Usage(ctx, req.UserID)
	})
	if err != nil {
		return tierName, fmt.Errorf("check quotas: %w", err)
	}
	v.Quotas = Quotas(tier, usage)
	if v.Quotas.FilesRemaining <= 0 {
		v.OK = false
		v.Warnings = append(v.Warnings, MsgQuotaExceeded)
		return tierName, nil
	}
	if v.Quotas.JobsRemaining <= 0 {
		v.Warnings = append(v.Warnings, MsgJobsExhausted)
	}

	summary, err := timed("scope", func() (*models.ScopeSummary, error) {
		return g.scopes.AnalyzeScope(ctx, req.Scope)
	})
	if err != nil {
		return tierName, fmt.Errorf("analyze scope: %w", err)
	}
	v.ScopeSummary = summary
	if summary.FileCount > tier.MaxFilesPerJob {
		v.OK = false
		v.Warnings = append(v.Warnings, fmt.Sprintf("Scope contains %d files, exceeding limit of %d",
			summary.FileCount, tier.MaxFilesPerJob))
		return tierName, nil
	}

	if g.probe != nil {
		sys, err := timed("system", func() (models.SystemStatus, error) {
			return g.probe.Snapshot(ctx)
		})
		if err != nil {
			return tierName, fmt.Errorf("check system resources: %w", err)
		}
		v.System = &sys
		gr := g.rules.GuardRail
		if sys.CPUUsage > gr.CPUWarnPercent {
			v.Warnings = append(v.Warnings, MsgHighLoad)
		}
		if sys.MemoryAvailable < gr.MinMemoryMB {
			v.Warnings = append(v.Warnings, MsgLowMemory)
		}
	}

	v.EstimatedTimeSeconds = g.EstimateTime(summary.FileCount, summary.AverageFileSize, tier)
	v.EstimatedCostUSD = EstimateCost(summary.FileCount, tier)
	v.Warnings = append(v.Warnings, g.issues(summary)...)
	return tierName, nil
}

// EstimateTime returns whole seconds for count files of the given average
// size.
func (g *Gate) EstimateTime(count int, avgBytes float64, t rules.Tier) int {
	return int(float64(count) * t.SecondsPerFile * g.rules.SizeMultiplier(avgBytes))
}

// EstimateCost returns the USD cost rounded to micro-dollars.
func EstimateCost(count int, t rules.Tier) float64 {
	return math.Round(float64(count)*t.CostPerFile*1e6) / 1e6
}

func (g *Gate) issues(s *models.ScopeSummary) []string {
	gr := g.rules.GuardRail
	var out []string

	if s.AverageFileSize > gr.LargeAverageFileBytes {
		out = append(out, MsgLargeFiles)
	}

	var unusual []string
	for ext := range s.FileTypes {
		if !contains(gr.CommonTypes, ext) {
			unusual = append(unusual, ext)
		}
	}
	if len(unusual) > 0 {
		sort.Strings(unusual)
		out = append(out, "Unusual file types detected: "+strings.Join(unusual, ", "))
	}

	if s.FileCount > gr.LargeScopeFiles {
		out = append(out, MsgLargeScope)
	}
	return out
}

// timed runs a provider lookup and records its latency.
func timed[T any](provider string, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := fn()
	metrics.RecordProvider(provider, time.Since(start))
	return v, err
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
