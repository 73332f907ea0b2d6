package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/vidcourse/vidcourse-backend/internal/config"
	"github.com/vidcourse/vidcourse-backend/internal/logger"
	"github.com/vidcourse/vidcourse-backend/internal/repos"
	"github.com/vidcourse/vidcourse-backend/internal/types"
)

type PlannerService interface {
	// PlanSegment emits the fixed plan batch for one segment. Planning is
	// synchronous and cheap: it never calls the synthesis provider, and the
	// same segment always yields the same batch shape. Re-running against a
	// segment that already has plans returns them unchanged.
	PlanSegment(ctx context.Context, segment *types.Segment) ([]*types.QuestionPlan, error)
}

type plannerService struct {
	db  *gorm.DB
	log *logger.Logger
	cfg *config.PipelineConfig

	segmentRepo repos.SegmentRepo
	planRepo    repos.QuestionPlanRepo
}

func NewPlannerService(db *gorm.DB, baseLog *logger.Logger, cfg *config.PipelineConfig, segmentRepo repos.SegmentRepo, planRepo repos.QuestionPlanRepo) PlannerService {
	return &plannerService{
		db:          db,
		log:         baseLog.With("service", "PlannerService"),
		cfg:         cfg,
		segmentRepo: segmentRepo,
		planRepo:    planRepo,
	}
}

func (p *plannerService) PlanSegment(ctx context.Context, segment *types.Segment) ([]*types.QuestionPlan, error) {
	if segment == nil {
		return nil, fmt.Errorf("nil segment")
	}

	existing, err := p.planRepo.GetBySegmentIDs(ctx, nil, []uuid.UUID{segment.ID})
	if err != nil {
		return nil, fmt.Errorf("load plans: %w", err)
	}
	if len(existing) > 0 {
		return existing, nil
	}

	if strings.TrimSpace(segment.Text) == "" {
		return nil, &StructuralError{Stage: types.StagePlanning, Reason: fmt.Sprintf("segment %d has no transcript text", segment.Index)}
	}

	counts := mixCounts(p.cfg.Planner.Mix, p.cfg.Planner.MaxQuestionsPerSegment)
	concepts := keyConcepts(segment.Text, 5)
	conceptsJSON, _ := json.Marshal(concepts)
	objective := planObjective(concepts, segment.Index)

	// Fixed type order keeps the batch deterministic for a given config.
	var planTypes []string
	for _, qt := range types.QuestionTypes {
		for i := 0; i < counts[qt]; i++ {
			planTypes = append(planTypes, qt)
		}
	}

	now := time.Now()
	total := len(planTypes)
	plans := make([]*types.QuestionPlan, 0, total)
	for i, qt := range planTypes {
		// Target timestamps spread evenly across the segment's time range.
		ts := segment.StartSec + segment.Duration()*float64(i+1)/float64(total+1)
		plans = append(plans, &types.QuestionPlan{
			ID:           uuid.New(),
			SegmentID:    segment.ID,
			Type:         qt,
			TimestampSec: ts,
			Objective:    objective,
			KeyConcepts:  datatypes.JSON(conceptsJSON),
			ContextText:  truncateText(segment.Text, 4000),
			Status:       types.PlanPlanned,
			CreatedAt:    now.Add(time.Duration(i) * time.Microsecond),
			UpdatedAt:    now,
		})
	}

	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := p.planRepo.Create(ctx, tx, plans); err != nil {
			return fmt.Errorf("create plans: %w", err)
		}
		return p.segmentRepo.UpdateFields(ctx, tx, segment.ID, map[string]interface{}{
			"planned_count": len(plans),
			"status":        types.SegmentProcessing,
		})
	})
	if err != nil {
		return nil, err
	}

	p.log.Info("Segment planned", "segment_id", segment.ID, "plans", len(plans))
	return plans, nil
}

// mixCounts converts ratios into integer counts summing to maxQuestions,
// assigning leftovers by largest remainder and breaking ties in the fixed
// type order.
func mixCounts(mix map[string]float64, maxQuestions int) map[string]int {
	var sum float64
	for _, qt := range types.QuestionTypes {
		if mix[qt] > 0 {
			sum += mix[qt]
		}
	}
	counts := make(map[string]int, len(types.QuestionTypes))
	if sum <= 0 || maxQuestions <= 0 {
		if maxQuestions > 0 {
			counts[types.QuestionTypeMultipleChoice] = maxQuestions
		}
		return counts
	}

	type rem struct {
		qt   string
		frac float64
		ord  int
	}
	var rems []rem
	assigned := 0
	for i, qt := range types.QuestionTypes {
		if mix[qt] <= 0 {
			continue
		}
		exact := mix[qt] / sum * float64(maxQuestions)
		n := int(exact)
		counts[qt] = n
		assigned += n
		rems = append(rems, rem{qt: qt, frac: exact - float64(n), ord: i})
	}
	sort.SliceStable(rems, func(i, j int) bool {
		if rems[i].frac != rems[j].frac {
			return rems[i].frac > rems[j].frac
		}
		return rems[i].ord < rems[j].ord
	})
	for i := 0; assigned < maxQuestions && len(rems) > 0; i = (i + 1) % len(rems) {
		counts[rems[i].qt]++
		assigned++
	}
	return counts
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"of": true, "to": true, "in": true, "on": true, "at": true, "is": true,
	"are": true, "was": true, "were": true, "be": true, "this": true,
	"that": true, "it": true, "as": true, "for": true, "with": true,
	"we": true, "you": true, "they": true, "so": true, "if": true,
	"then": true, "there": true, "here": true, "what": true, "which": true,
	"can": true, "will": true, "have": true, "has": true, "our": true,
	"not": true, "its": true, "from": true, "by": true, "about": true,
}

// keyConcepts is a cheap frequency pass over the segment text; it only needs
// to give the generators topical anchors, not real NLP.
func keyConcepts(text string, limit int) []string {
	freq := map[string]int{}
	first := map[string]int{}
	words := strings.Fields(strings.ToLower(text))
	for i, w := range words {
		w = strings.Trim(w, ".,;:!?\"'()[]{}")
		if len(w) < 4 || stopwords[w] {
			continue
		}
		if _, seen := freq[w]; !seen {
			first[w] = i
		}
		freq[w]++
	}
	type wc struct {
		word  string
		count int
	}
	ranked := make([]wc, 0, len(freq))
	for w, c := range freq {
		ranked = append(ranked, wc{word: w, count: c})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return first[ranked[i].word] < first[ranked[j].word]
	})
	out := make([]string, 0, limit)
	for _, r := range ranked {
		if len(out) >= limit {
			break
		}
		out = append(out, r.word)
	}
	return out
}

func planObjective(concepts []string, segmentIndex int) string {
	if len(concepts) == 0 {
		return fmt.Sprintf("Assess understanding of segment %d", segmentIndex+1)
	}
	n := len(concepts)
	if n > 3 {
		n = 3
	}
	return "Assess understanding of " + strings.Join(concepts[:n], ", ")
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
