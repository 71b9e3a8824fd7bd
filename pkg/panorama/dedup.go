package panorama

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/teslashibe/go-grok-pilot/pkg/oracle"
)

// Stats summarizes a Deduplicate pass.
type Stats struct {
	Input   int `json:"input"`
	Output  int `json:"output"`
	Split   int `json:"split"`
	Dropped int `json:"dropped_frames"`
}

// Deduplicate returns a copy of a with every person whose frames do not
// form one ring-contiguous run split into one entity per run. Split
// entities keep the original description, carry only their run's boxes,
// take the run's lowest frame number as best frame and get a recomputed
// direction. All entities are renumbered person_1, person_2, ... in
// output order. Frame numbers outside 1..8 are discarded and counted in
// Stats.Dropped. a is not modified.
func Deduplicate(a *oracle.PanoramaAnalysis, logger *slog.Logger) (*oracle.PanoramaAnalysis, Stats) {
	out := *a
	out.People = make([]oracle.PanoramaEntity, 0, len(a.People))
	out.Objects = slices.Clone(a.Objects)
	st := Stats{Input: len(a.People)}

	for _, p := range a.People {
		for _, f := range p.Frames {
			if !inRing(f) {
				st.Dropped++
			}
		}

		runs := Clusters(p.Frames)
		if len(runs) <= 1 {
			e := cloneEntity(p)
			if len(runs) == 1 {
				e.Frames = runs[0]
			}
			out.People = append(out.People, e)
			continue
		}

		if logger != nil {
			logger.Warn("splitting entity merged across non-adjacent frames",
				"person", p.ID, "frames", p.Frames, "runs", len(runs))
		}
		st.Split++
		for _, run := range runs {
			e := cloneEntity(p)
			e.Frames = run
			e.BestFrame = slices.Min(run)
			e.Direction = Direction(run)
			e.BBoxes = slices.DeleteFunc(e.BBoxes, func(b oracle.FrameBox) bool {
				return !slices.Contains(run, b.Frame)
			})
			out.People = append(out.People, e)
		}
	}

	for i := range out.People {
		out.People[i].ID = fmt.Sprintf("person_%d", i+1)
	}
	out.PeopleCount = len(out.People)
	out.ObjectsCount = len(out.Objects)
	st.Output = len(out.People)
	return &out, st
}

func cloneEntity(p oracle.PanoramaEntity) oracle.PanoramaEntity {
	e := p
	e.Frames = slices.Clone(p.Frames)
	e.BBoxes = slices.Clone(p.BBoxes)
	return e
}
