package ports

import (
	"context"

	"neurocca/domain/connectome"
	"neurocca/domain/core"
)

// EventPort loads condition event timing (onset/duration/amplitude triples,
// one list per run) for a subject. Frame-window derivation from events is
// pure domain logic (connectome.FramesToWindows); this port only reads.
type EventPort interface {
	LoadEvents(ctx context.Context, subject core.SubjectID, task core.TaskName, condition core.ConditionName) ([]connectome.EventList, error)
}
