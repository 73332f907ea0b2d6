package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/vidcourse/vidcourse-backend/internal/config"
	"github.com/vidcourse/vidcourse-backend/internal/logger"
	"github.com/vidcourse/vidcourse-backend/internal/repos"
	"github.com/vidcourse/vidcourse-backend/internal/types"
)

// QuestionGenerator is the uniform plan → artifact contract every question
// type implements. The returned question carries its type-specific payload;
// it has not been validated or persisted yet.
type QuestionGenerator interface {
	Type() string
	Generate(ctx context.Context, plan *types.QuestionPlan) (*types.Question, error)
}

// GeneratorPool fans plans out to the per-type generators over a bounded
// worker set. Safety under concurrent pools (including other processes) comes
// from the plan row: dispatch requires winning the conditional
// planned→generating claim, and persistence is an insert keyed on plan id.
type GeneratorPool struct {
	db  *gorm.DB
	log *logger.Logger
	cfg *config.PipelineConfig

	planRepo     repos.QuestionPlanRepo
	questionRepo repos.QuestionRepo
	segmentRepo  repos.SegmentRepo

	generators map[string]QuestionGenerator
}

func NewGeneratorPool(
	db *gorm.DB,
	baseLog *logger.Logger,
	cfg *config.PipelineConfig,
	planRepo repos.QuestionPlanRepo,
	questionRepo repos.QuestionRepo,
	segmentRepo repos.SegmentRepo,
	generators []QuestionGenerator,
) *GeneratorPool {
	byType := make(map[string]QuestionGenerator, len(generators))
	for _, g := range generators {
		byType[g.Type()] = g
	}
	return &GeneratorPool{
		db:           db,
		log:          baseLog.With("service", "GeneratorPool"),
		cfg:          cfg,
		planRepo:     planRepo,
		questionRepo: questionRepo,
		segmentRepo:  segmentRepo,
		generators:   byType,
	}
}

// GenerateForPlans drives every given plan to a terminal state. Worker-level
// failures never propagate: a failed plan is recorded on its own row and its
// siblings keep going. The returned error is reserved for infrastructure
// problems (context cancellation).
func (p *GeneratorPool) GenerateForPlans(ctx context.Context, plans []*types.QuestionPlan, onDone func(done, total int)) error {
	if len(plans) == 0 {
		return nil
	}

	staleBefore := time.Now().Add(-p.cfg.StalenessWindow())
	total := len(plans)
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Generation.Workers)

	results := make(chan struct{}, total)
	for i, plan := range plans {
		if ctx.Err() != nil {
			total = i
			break
		}
		plan := plan
		g.Go(func() error {
			p.processPlan(gctx, plan, staleBefore)
			results <- struct{}{}
			return nil
		})
		// Fixed inter-dispatch delay throttles provider load.
		if i < len(plans)-1 {
			select {
			case <-ctx.Done():
			case <-time.After(p.cfg.DispatchDelay()):
			}
		}
	}

	go func() {
		_ = g.Wait()
		close(results)
	}()
	for range results {
		done++
		if onDone != nil {
			onDone(done, total)
		}
	}
	return ctx.Err()
}

func (p *GeneratorPool) processPlan(ctx context.Context, plan *types.QuestionPlan, staleBefore time.Time) {
	claimed, err := p.planRepo.Claim(ctx, nil, plan.ID, staleBefore, p.cfg.Generation.MaxAttemptsPerPlan)
	if err != nil {
		p.log.Warn("Plan claim failed", "plan_id", plan.ID, "error", err)
		return
	}
	if !claimed {
		// Terminal already, or another worker owns it. Either way not ours.
		return
	}

	defer func() {
		if r := recover(); r != nil {
			p.log.Error("Generator panic", "plan_id", plan.ID, "type", plan.Type, "panic", r)
			_, _ = p.planRepo.MarkFailed(ctx, nil, plan.ID, fmt.Sprintf("generator panic: %v", r))
		}
	}()

	gen, ok := p.generators[plan.Type]
	if !ok {
		_, _ = p.planRepo.MarkFailed(ctx, nil, plan.ID, "no generator registered for type "+plan.Type)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.SynthesisTimeout())
	defer cancel()

	question, err := gen.Generate(callCtx, plan)
	if err != nil {
		p.failPlan(ctx, plan, err)
		return
	}
	if err := validateQuestion(question); err != nil {
		// Discard rather than persist a broken artifact.
		p.failPlan(ctx, plan, err)
		return
	}

	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := p.questionRepo.CreateWithPayload(ctx, tx, question)
		if err != nil {
			return fmt.Errorf("persist question: %w", err)
		}
		if _, err := p.planRepo.MarkCompleted(ctx, tx, plan.ID); err != nil {
			return fmt.Errorf("mark plan completed: %w", err)
		}
		if created {
			if err := p.segmentRepo.IncrementGenerated(ctx, tx, plan.SegmentID); err != nil {
				return fmt.Errorf("bump segment counter: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		p.failPlan(ctx, plan, err)
		return
	}

	p.log.Debug("Plan generated", "plan_id", plan.ID, "type", plan.Type)
}

func (p *GeneratorPool) failPlan(ctx context.Context, plan *types.QuestionPlan, cause error) {
	reason := cause.Error()
	if len(reason) > 1000 {
		reason = reason[:1000]
	}
	if _, err := p.planRepo.MarkFailed(ctx, nil, plan.ID, reason); err != nil {
		p.log.Warn("Could not mark plan failed", "plan_id", plan.ID, "error", err)
		return
	}
	p.log.Info("Plan failed", "plan_id", plan.ID, "type", plan.Type, "reason", reason)
}
