package service

// Stage is a step of the per sub-batch state machine.
type Stage int

const (
	StageIdle Stage = iota
	StageExtracting
	StageDeduplicating
	StagePersisting
	StageCommitted
	StageRolledBack
	StageDone
)

var stageNames = [...]string{
	StageIdle:          "idle",
	StageExtracting:    "extracting",
	StageDeduplicating: "deduplicating",
	StagePersisting:    "persisting",
	StageCommitted:     "committed",
	StageRolledBack:    "rolled_back",
	StageDone:          "done",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}
