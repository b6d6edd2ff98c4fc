package strategyconfig

import (
	"time"

	"github.com/wonny/confluence/internal/contracts"
)

// Config는 스코어링 전략의 전체 설정
// contract 섹션은 contracts.Contract를 그대로 사용 (SSOT 중복 없음)
type Config struct {
	Meta     Meta               `yaml:"meta" json:"meta"`
	Contract contracts.Contract `yaml:"contract" json:"contract"`
	Learner  Learner            `yaml:"learner" json:"learner"`
}

// Meta 메타 정보
type Meta struct {
	StrategyID string `yaml:"strategy_id" json:"strategy_id"`
	Version    string `yaml:"version" json:"version"`
	Timezone   string `yaml:"timezone" json:"timezone"` // slate date 기준
}

// Learner S7: 가중치 학습 파라미터
type Learner struct {
	WindowSize int            `yaml:"window_size" json:"window_size"` // 최근 N개 채점 픽
	MinSamples int            `yaml:"min_samples" json:"min_samples"`
	Side       SideLearning   `yaml:"side" json:"side"`
	Engine     EngineLearning `yaml:"engine" json:"engine"`
}

// SideLearning OVER/UNDER 편향 보정
type SideLearning struct {
	MinPerSide int     `yaml:"min_per_side" json:"min_per_side"`
	MinSkew    float64 `yaml:"min_skew" json:"min_skew"` // |hit_over - hit_under|
	Step       float64 `yaml:"step" json:"step"`
}

// EngineLearning 엔진별 multiplier 보정
type EngineLearning struct {
	EndorseScore    float64 `yaml:"endorse_score" json:"endorse_score"` // 이 점수 이상이면 엔진이 픽을 지지
	MinEndorsements int     `yaml:"min_endorsements" json:"min_endorsements"`
	MinEdge         float64 `yaml:"min_edge" json:"min_edge"`
	Step            float64 `yaml:"step" json:"step"`
}

// Default returns the production strategy: the default contract plus
// the documented learner parameters.
func Default() *Config {
	return &Config{
		Meta: Meta{
			StrategyID: "confluence_v1",
			Version:    "1.0.0",
			Timezone:   "America/New_York",
		},
		Contract: *contracts.DefaultContract(),
		Learner: Learner{
			WindowSize: 300,
			MinSamples: 40,
			Side: SideLearning{
				MinPerSide: 15,
				MinSkew:    0.08,
				Step:       0.05,
			},
			Engine: EngineLearning{
				EndorseScore:    7.0,
				MinEndorsements: 20,
				MinEdge:         0.03,
				Step:            0.05,
			},
		},
	}
}

// ContractRef returns a pointer to the loaded contract.
// Components hold this pointer; nobody keeps a copy.
func (c *Config) ContractRef() *contracts.Contract {
	return &c.Contract
}

// DecisionSnapshot 의사결정 스냅샷 (재현성용)
type DecisionSnapshot struct {
	ConfigHash     string    `json:"config_hash"`
	ContractHash   string    `json:"contract_hash"`
	ConfigYAML     string    `json:"config_yaml,omitempty"`
	StrategyID     string    `json:"strategy_id"`
	GitCommit      string    `json:"git_commit,omitempty"`
	WeightsVersion string    `json:"weights_version"`
	CreatedAt      time.Time `json:"created_at"`
}
