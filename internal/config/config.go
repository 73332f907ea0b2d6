package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vidcourse/vidcourse-backend/internal/types"
)

// PipelineConfig is the tuning policy for the content-generation pipeline.
// Defaults work out of the box; a YAML file (PIPELINE_CONFIG_PATH) overrides
// them per deployment.
type PipelineConfig struct {
	Segmenter  SegmenterConfig  `yaml:"segmenter"`
	Planner    PlannerConfig    `yaml:"planner"`
	Generation GenerationConfig `yaml:"generation"`
	Quality    QualityConfig    `yaml:"quality"`
	Progress   ProgressConfig   `yaml:"progress"`
	Recovery   RecoveryConfig   `yaml:"recovery"`
}

type SegmenterConfig struct {
	TargetSeconds float64 `yaml:"target_seconds"`
	MinSeconds    float64 `yaml:"min_seconds"`
	MaxSeconds    float64 `yaml:"max_seconds"`
}

type PlannerConfig struct {
	MaxQuestionsPerSegment int `yaml:"max_questions_per_segment"`
	// Mix is the per-type ratio of questions planned for each segment.
	// Ratios are normalized; counts are assigned by largest remainder so the
	// same segment always yields the same plan batch.
	Mix map[string]float64 `yaml:"mix"`
}

type GenerationConfig struct {
	Workers              int    `yaml:"workers"`
	DispatchDelayMillis  int    `yaml:"dispatch_delay_ms"`
	SynthesisTimeoutSecs int    `yaml:"synthesis_timeout_seconds"`
	MaxAttemptsPerPlan   int    `yaml:"max_attempts_per_plan"`
	FrameURLTemplate     string `yaml:"frame_url_template"`
}

type QualityConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Threshold float64 `yaml:"threshold"`
}

type ProgressConfig struct {
	StageWeights map[string]float64 `yaml:"stage_weights"`
}

type RecoveryConfig struct {
	StalenessMinutes  int `yaml:"staleness_minutes"`
	SweepIntervalSecs int `yaml:"sweep_interval_seconds"`
	// CompletionPolicy decides when a segment counts as completed:
	// "any" requires at least one successful plan, "all" requires every plan
	// to succeed.
	CompletionPolicy string `yaml:"completion_policy"`
}

const (
	CompletionPolicyAny = "any"
	CompletionPolicyAll = "all"
)

func Default() *PipelineConfig {
	return &PipelineConfig{
		Segmenter: SegmenterConfig{
			TargetSeconds: 180,
			MinSeconds:    30,
			MaxSeconds:    300,
		},
		Planner: PlannerConfig{
			MaxQuestionsPerSegment: 5,
			Mix: map[string]float64{
				types.QuestionTypeMultipleChoice: 0.4,
				types.QuestionTypeTrueFalse:      0.2,
				types.QuestionTypeHotspot:        0.2,
				types.QuestionTypeMatching:       0.1,
				types.QuestionTypeSequencing:     0.1,
			},
		},
		Generation: GenerationConfig{
			Workers:              4,
			DispatchDelayMillis:  250,
			SynthesisTimeoutSecs: 120,
			MaxAttemptsPerPlan:   3,
		},
		Quality: QualityConfig{
			Enabled:   false,
			Threshold: 0.7,
		},
		Progress: ProgressConfig{
			StageWeights: map[string]float64{
				types.StageInitialization: 0.05,
				types.StageSegmenting:     0.05,
				types.StagePlanning:       0.10,
				types.StageGenerating:     0.70,
				types.StageVerifying:      0.10,
			},
		},
		Recovery: RecoveryConfig{
			StalenessMinutes:  5,
			SweepIntervalSecs: 60,
			CompletionPolicy:  CompletionPolicyAny,
		},
	}
}

// Load reads the policy file at path over the defaults. An empty path returns
// defaults unchanged.
func Load(path string) (*PipelineConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse pipeline config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *PipelineConfig) Validate() error {
	if c.Segmenter.MinSeconds <= 0 || c.Segmenter.TargetSeconds < c.Segmenter.MinSeconds {
		return fmt.Errorf("segmenter window invalid: min=%v target=%v", c.Segmenter.MinSeconds, c.Segmenter.TargetSeconds)
	}
	if c.Segmenter.MaxSeconds < c.Segmenter.TargetSeconds {
		return fmt.Errorf("segmenter window invalid: target=%v max=%v", c.Segmenter.TargetSeconds, c.Segmenter.MaxSeconds)
	}
	if c.Planner.MaxQuestionsPerSegment <= 0 {
		return fmt.Errorf("planner max_questions_per_segment must be positive")
	}
	for qt := range c.Planner.Mix {
		if !types.ValidQuestionType(qt) {
			return fmt.Errorf("unknown question type in mix: %q", qt)
		}
	}
	if c.Generation.Workers <= 0 {
		return fmt.Errorf("generation workers must be positive")
	}
	if c.Generation.MaxAttemptsPerPlan <= 0 {
		return fmt.Errorf("generation max_attempts_per_plan must be positive")
	}
	switch c.Recovery.CompletionPolicy {
	case CompletionPolicyAny, CompletionPolicyAll:
	default:
		return fmt.Errorf("unknown completion_policy: %q", c.Recovery.CompletionPolicy)
	}
	return nil
}

func (c *PipelineConfig) DispatchDelay() time.Duration {
	return time.Duration(c.Generation.DispatchDelayMillis) * time.Millisecond
}

func (c *PipelineConfig) SynthesisTimeout() time.Duration {
	return time.Duration(c.Generation.SynthesisTimeoutSecs) * time.Second
}

func (c *PipelineConfig) StalenessWindow() time.Duration {
	return time.Duration(c.Recovery.StalenessMinutes) * time.Minute
}

func (c *PipelineConfig) SweepInterval() time.Duration {
	return time.Duration(c.Recovery.SweepIntervalSecs) * time.Second
}
