package contracts

// Pipeline Stage 정의 (SSOT)
// 모든 로그, 스냅샷, 레저 이벤트에서 이 상수를 사용해야 함
//
// 파이프라인 흐름:
//   S0 → S1 → S2 → S3 → S4 → S5   (scoring cycle)
//   S6 → S7                        (offline grading / learning loop)

// Stage represents a pipeline stage
type Stage string

const (
	// StageEngines S0: 엔진/모디파이어 결과 수집
	// 책임: provider 호출, 후보 단위 타임아웃, unavailable 처리
	// 위치: internal/s0_engines/
	StageEngines Stage = "S0_ENGINES"

	// StageCompose S1: 4개 엔진 가중합 (base_score)
	// 위치: internal/scoring/composer.go
	StageCompose Stage = "S1_COMPOSE"

	// StageBoost S2: 모디파이어 합산 및 combined cap
	// 위치: internal/scoring/boost.go
	StageBoost Stage = "S2_BOOST"

	// StageTier S3: final_score clamp 및 tier 분류
	// 위치: internal/scoring/tier.go
	StageTier Stage = "S3_TIER"

	// StageGate S4: 모순 제거 및 publish 경계
	// 위치: internal/selection/
	StageGate Stage = "S4_GATE"

	// StagePublish S5: 픽 레저 기록
	// 위치: internal/ledger/
	StagePublish Stage = "S5_PUBLISH"

	// StageGrade S6: 결과(WIN/LOSS/PUSH) 반영
	// 위치: internal/ledger/ledger.go (Grade)
	StageGrade Stage = "S6_GRADE"

	// StageLearn S7: 스포츠별 가중치 multiplier 학습
	// 위치: internal/learner/
	StageLearn Stage = "S7_LEARN"
)

// String returns the stage name
func (s Stage) String() string {
	return string(s)
}

// ShortName returns abbreviated stage name (e.g., "S0", "S1")
func (s Stage) ShortName() string {
	switch s {
	case StageEngines:
		return "S0"
	case StageCompose:
		return "S1"
	case StageBoost:
		return "S2"
	case StageTier:
		return "S3"
	case StageGate:
		return "S4"
	case StagePublish:
		return "S5"
	case StageGrade:
		return "S6"
	case StageLearn:
		return "S7"
	default:
		return "UNKNOWN"
	}
}

// Description returns a short description of the stage
func (s Stage) Description() string {
	switch s {
	case StageEngines:
		return "engine/modifier collection"
	case StageCompose:
		return "base composition"
	case StageBoost:
		return "boost aggregation"
	case StageTier:
		return "final score / tier"
	case StageGate:
		return "contradiction gate"
	case StagePublish:
		return "publish"
	case StageGrade:
		return "grading"
	case StageLearn:
		return "weight learning"
	default:
		return "unknown"
	}
}

// AllStages returns all pipeline stages in order
func AllStages() []Stage {
	return []Stage{
		StageEngines,
		StageCompose,
		StageBoost,
		StageTier,
		StageGate,
		StagePublish,
		StageGrade,
		StageLearn,
	}
}

// IsValidStage checks if a stage string is valid
func IsValidStage(s string) bool {
	for _, stage := range AllStages() {
		if string(stage) == s {
			return true
		}
	}
	return false
}

// PipelineResult represents the result of a pipeline stage execution
type PipelineResult struct {
	Stage       Stage                  `json:"stage"`
	Success     bool                   `json:"success"`
	InputCount  int                    `json:"input_count"`
	OutputCount int                    `json:"output_count"`
	Duration    int64                  `json:"duration_ms"`
	Error       string                 `json:"error,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// PipelineSnapshot records the inputs that make a scoring run reproducible:
// the contract hash and the weight snapshot version it was scored against.
type PipelineSnapshot struct {
	RunID          string                   `json:"run_id"`
	Sport          Sport                    `json:"sport"`
	Timestamp      int64                    `json:"timestamp"`
	ContractHash   string                   `json:"contract_hash"`
	WeightsVersion string                   `json:"weights_version"`
	CandidateCount int                      `json:"candidate_count"`
	PublishedCount int                      `json:"published_count"`
	Results        map[Stage]PipelineResult `json:"results,omitempty"`
}
