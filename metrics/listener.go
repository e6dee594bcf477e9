package metrics

import (
	"github.com/mastercactapus/gpnp/job"
)

// JobListener updates the job collectors from engine events.
type JobListener struct{}

var _ job.Listener = JobListener{}

func (JobListener) JobEvent(e job.Event) {
	switch e.Type {
	case job.StateChanged:
		JobState.Set(float64(e.State))
		if e.State == job.Stopped {
			Runs.Inc()
		}
	case job.PartPlaced:
		Placements.WithLabelValues("placed").Inc()
	case job.ErrorReported:
		if e.Err == nil {
			return
		}
		JobErrors.WithLabelValues(e.Err.Kind.String()).Inc()
		switch e.Err.Kind {
		case job.FeederError, job.HeadError:
			if e.Err.Err == nil {
				Placements.WithLabelValues("skipped").Inc()
			}
		}
	}
}
