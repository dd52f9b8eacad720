package domain

import (
	"fmt"
	"slices"
	"strings"
)

// Stage identifies one pipeline column.
type Stage string

// Pipeline columns in board order. StageStatus is the only terminal column.
const (
	StageClients Stage = "Clients"
	StageOrders  Stage = "Orders"
	StageTasks   Stage = "Tasks"
	StageDueDate Stage = "Due Date"
	StageRevenue Stage = "Revenue"
	StageStatus  Stage = "Status"
)

// pipelineStages stores the canonical left-to-right column order.
var pipelineStages = []Stage{
	StageClients,
	StageOrders,
	StageTasks,
	StageDueDate,
	StageRevenue,
	StageStatus,
}

// Stages returns the pipeline columns in board order.
func Stages() []Stage {
	return slices.Clone(pipelineStages)
}

// ParseStage resolves a column label, accepting case and spacing variants such as "DueDate".
func ParseStage(raw string) (Stage, error) {
	key := stageKey(raw)
	if key == "" {
		return "", ErrInvalidStage
	}
	for _, stage := range pipelineStages {
		if stageKey(string(stage)) == key {
			return stage, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStage, raw)
}

// IsValid reports whether the stage is one of the pipeline columns.
func (s Stage) IsValid() bool {
	return slices.Contains(pipelineStages, s)
}

// IsTerminal reports whether the stage is the locked closing column.
func (s Stage) IsTerminal() bool {
	return s == StageStatus
}

// Index returns the column position, or -1 for unknown stages.
func (s Stage) Index() int {
	return slices.Index(pipelineStages, s)
}

// stageKey folds a label into a comparison key.
func stageKey(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		switch r {
		case ' ', '-', '_':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
