package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cashplan-fin/cashplan-fin/internal/masterdata/suppliers"
	"github.com/cashplan-fin/cashplan-fin/internal/shared"
)

// SupplierDirectory resolves rule selectors against the supplier masterdata.
type SupplierDirectory interface {
	ListAll(ctx context.Context) ([]suppliers.Supplier, error)
}

// PolicyInvalidator drops derived policy snapshots after a rule applies.
type PolicyInvalidator interface {
	Invalidate(ctx context.Context) error
}

// AuditRecorder persists audit entries for applied rules.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ApplyResult reports the outcome of one apply_rule call.
type ApplyResult struct {
	Rule       RuleChange    `json:"rule"`
	Success    bool          `json:"success"`
	Effect     *PolicyEffect `json:"effect,omitempty"`
	ParseError string        `json:"parse_error,omitempty"`
}

// Service compiles and applies rule statements.
type Service struct {
	repo        Repository
	directory   SupplierDirectory
	invalidator PolicyInvalidator
	audit       AuditRecorder
	logger      *slog.Logger
	now         func() time.Time
}

func NewService(repo Repository, directory SupplierDirectory, invalidator PolicyInvalidator, audit AuditRecorder, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		directory:   directory,
		invalidator: invalidator,
		audit:       audit,
		logger:      logger,
		now:         time.Now,
	}
}

// Apply stores the statement, compiles it, and applies the effect. Statements
// the grammar rejects are kept with Applied=false and the failure reported in
// the result rather than as an error.
func (s *Service) Apply(ctx context.Context, text string) (ApplyResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ApplyResult{}, fmt.Errorf("rules: statement required")
	}

	rc, err := s.repo.Insert(ctx, text)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("rules: store statement: %w", err)
	}

	result, err := s.compileAndApply(ctx, rc)
	if err != nil {
		return ApplyResult{}, err
	}
	return result, nil
}

// Reapply retries a stored statement, typically after the grammar grew or a
// missing supplier was created.
func (s *Service) Reapply(ctx context.Context, id int64) (ApplyResult, error) {
	rc, err := s.repo.Get(ctx, id)
	if err != nil {
		return ApplyResult{}, err
	}
	if rc.Applied {
		return ApplyResult{Rule: rc, Success: true, Effect: rc.Effect}, nil
	}
	return s.compileAndApply(ctx, rc)
}

// ApplyPending retries every stored-unapplied statement in submission order.
func (s *Service) ApplyPending(ctx context.Context) (applied, failed int, err error) {
	pending, err := s.repo.ListPending(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, rc := range pending {
		result, err := s.compileAndApply(ctx, rc)
		if err != nil {
			return applied, failed, err
		}
		if result.Success {
			applied++
		} else {
			failed++
		}
	}
	return applied, failed, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]RuleChange, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) Get(ctx context.Context, id int64) (RuleChange, error) {
	return s.repo.Get(ctx, id)
}

// AppliedEffects returns the effects of applied rules in application order.
func (s *Service) AppliedEffects(ctx context.Context) ([]PolicyEffect, error) {
	return s.repo.ListAppliedEffects(ctx)
}

func (s *Service) compileAndApply(ctx context.Context, rc RuleChange) (ApplyResult, error) {
	effect, err := Compile(rc.Text)
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			if recErr := s.repo.RecordError(ctx, rc.ID, perr.Error()); recErr != nil {
				return ApplyResult{}, fmt.Errorf("rules: record parse failure: %w", recErr)
			}
			s.logger.Warn("rule statement rejected",
				slog.Int64("rule_id", rc.ID),
				slog.String("segment", perr.Segment))
			rc.LastError = perr.Error()
			return ApplyResult{Rule: rc, Success: false, ParseError: perr.Error()}, nil
		}
		return ApplyResult{}, err
	}

	if err := s.resolveSelector(ctx, effect.Selector); err != nil {
		if errors.Is(err, ErrUnknownSupplier) {
			if recErr := s.repo.RecordError(ctx, rc.ID, err.Error()); recErr != nil {
				return ApplyResult{}, fmt.Errorf("rules: record apply failure: %w", recErr)
			}
			s.logger.Warn("rule references unknown supplier",
				slog.Int64("rule_id", rc.ID),
				slog.String("text", rc.Text))
			rc.LastError = err.Error()
			return ApplyResult{Rule: rc, Success: false, ParseError: err.Error()}, nil
		}
		return ApplyResult{}, err
	}

	appliedAt := s.now()
	if err := s.repo.MarkApplied(ctx, rc.ID, effect, appliedAt); err != nil {
		return ApplyResult{}, fmt.Errorf("rules: mark applied: %w", err)
	}
	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx); err != nil {
			s.logger.Warn("policy cache invalidation failed", slog.Any("error", err))
		}
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:    shared.ActorFromContext(ctx),
			Action:   "rule.applied",
			Entity:   "rule_change",
			EntityID: strconv.FormatInt(rc.ID, 10),
			Meta:     map[string]any{"text": rc.Text, "field": effect.Field, "operation": effect.Operation, "value": effect.Value},
			At:       appliedAt,
		})
	}

	s.logger.Info("rule applied",
		slog.Int64("rule_id", rc.ID),
		slog.String("field", string(effect.Field)),
		slog.String("operation", string(effect.Operation)),
		slog.Int("value", effect.Value))

	rc.Applied = true
	rc.Effect = &effect
	rc.AppliedAt = &appliedAt
	rc.LastError = ""
	return ApplyResult{Rule: rc, Success: true, Effect: &effect}, nil
}

// resolveSelector verifies that id and name selectors reference an existing
// supplier. Type selectors always resolve.
func (s *Service) resolveSelector(ctx context.Context, sel Selector) error {
	if sel.Type == SelectBySupplierType {
		return nil
	}
	all, err := s.directory.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("rules: list suppliers: %w", err)
	}
	for _, sup := range all {
		switch sel.Type {
		case SelectBySupplierID:
			if sup.ID == sel.SupplierID {
				return nil
			}
		case SelectByNamePattern:
			if strings.EqualFold(sup.Name, sel.NamePattern) {
				return nil
			}
		}
	}
	switch sel.Type {
	case SelectBySupplierID:
		return fmt.Errorf("%w: id %d", ErrUnknownSupplier, sel.SupplierID)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSupplier, sel.NamePattern)
	}
}
