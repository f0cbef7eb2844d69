package contracts

// Pipeline Stage 정의 (SSOT)
// 모든 로그, 감사 기록, 실행 요약에서 이 상수를 사용해야 함
//
// 파이프라인 흐름:
//   Universe → Quote → Chain → Persist

// Stage is where a symbol was excluded from a run
type Stage string

const (
	// StageUniverse 유니버스 로드/구성
	// 위치: internal/universe/
	StageUniverse Stage = "UNIVERSE"

	// StageQuote 종가 시세 수집 + 가격 선택
	// 위치: internal/quotes/, internal/pricing/
	StageQuote Stage = "QUOTE"

	// StageChain 옵션 체인 수집 + 계약 검증
	// 위치: internal/chains/
	StageChain Stage = "CHAIN"

	// StagePersist 스냅샷 저장 (멱등성 가드)
	// 위치: internal/snapshot/
	StagePersist Stage = "PERSIST"
)

// String returns the stage name
func (s Stage) String() string {
	return string(s)
}

// Description returns Korean description of the stage
func (s Stage) Description() string {
	switch s {
	case StageUniverse:
		return "유니버스 로드"
	case StageQuote:
		return "종가 시세 수집"
	case StageChain:
		return "옵션 체인 수집/검증"
	case StagePersist:
		return "스냅샷 저장"
	default:
		return "알 수 없음"
	}
}

// AllStages returns all pipeline stages in order
func AllStages() []Stage {
	return []Stage{
		StageUniverse,
		StageQuote,
		StageChain,
		StagePersist,
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

// RunState is the orchestrator's position in one run
type RunState string

const (
	RunStateStarted        RunState = "STARTED"
	RunStateUniverseLoaded RunState = "UNIVERSE_LOADED"
	RunStateQuotesFetched  RunState = "QUOTES_FETCHED"
	RunStateChainsFetched  RunState = "CHAINS_FETCHED"
	RunStatePersisted      RunState = "PERSISTED"
	RunStateSummarized     RunState = "SUMMARIZED"
	RunStateFailed         RunState = "FAILED"
)

// runStateOrder is the only forward path; FAILED is reachable from any non-terminal state
var runStateOrder = []RunState{
	RunStateStarted,
	RunStateUniverseLoaded,
	RunStateQuotesFetched,
	RunStateChainsFetched,
	RunStatePersisted,
	RunStateSummarized,
}

// IsTerminal reports whether no further transition is allowed
func (s RunState) IsTerminal() bool {
	return s == RunStateSummarized || s == RunStateFailed
}

// Next returns the state that follows s on the success path
func (s RunState) Next() (RunState, bool) {
	for i, st := range runStateOrder {
		if st == s && i+1 < len(runStateOrder) {
			return runStateOrder[i+1], true
		}
	}
	return "", false
}

// CanTransition checks whether s → to is a legal step
func (s RunState) CanTransition(to RunState) bool {
	if s.IsTerminal() {
		return false
	}
	if to == RunStateFailed {
		return true
	}
	next, ok := s.Next()
	return ok && next == to
}
