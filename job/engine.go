package job

import (
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/mastercactapus/gpnp/coord"
	"github.com/mastercactapus/gpnp/machine"
	"github.com/mastercactapus/gpnp/pcb"
)

// Options configure an Engine.
type Options struct {
	// Speed scales all head motion, in the range (0, 1].
	Speed float64

	HomeBeforeRun bool
	Policy        FailurePolicy

	FeederSelector FeederSelector
	HeadSelector   HeadSelector
}

// Engine runs one job at a time on a machine.
//
// A run executes on its own goroutine. Pause, Resume, Step and Stop may be
// called from any goroutine and take effect at the next boundary between
// motion steps; a command already sent to the controller is never
// interrupted.
type Engine struct {
	m   *machine.Machine
	opt Options

	mx    sync.Mutex
	cond  *sync.Cond
	state State
	job   *Job
	runID uuid.UUID

	// pauseAtNextStep pauses the run after the current placement.
	pauseAtNextStep bool

	// done is non-nil while a run goroutine is alive.
	done chan struct{}

	// exclusive is set while an Exclusive call holds the machine.
	exclusive bool

	lmx       sync.Mutex
	listeners []Listener
}

func NewEngine(m *machine.Machine, opt Options) *Engine {
	if opt.Speed <= 0 || opt.Speed > 1 {
		opt.Speed = 1
	}
	if opt.FeederSelector == nil {
		opt.FeederSelector = FirstFit{}
	}
	if opt.HeadSelector == nil {
		opt.HeadSelector = FirstFit{}
	}
	e := &Engine{m: m, opt: opt}
	e.cond = sync.NewCond(&e.mx)
	return e
}

// AddListener registers l. Listeners are called in registration order.
func (e *Engine) AddListener(l Listener) {
	e.lmx.Lock()
	e.listeners = append(e.listeners, l)
	e.lmx.Unlock()
}

func (e *Engine) fire(ev Event) {
	e.lmx.Lock()
	ls := make([]Listener, len(e.listeners))
	copy(ls, e.listeners)
	e.lmx.Unlock()

	for _, l := range ls {
		l.JobEvent(ev)
	}
}

func (e *Engine) State() State {
	e.mx.Lock()
	defer e.mx.Unlock()
	return e.state
}

func (e *Engine) Job() *Job {
	e.mx.Lock()
	defer e.mx.Unlock()
	return e.job
}

// Load replaces the current job. A running job is stopped first.
func (e *Engine) Load(j *Job) {
	e.Stop()
	e.Wait()

	e.mx.Lock()
	e.job = j
	e.mx.Unlock()

	e.fire(Event{Type: JobLoaded, Status: j.Name})
}

// Start begins running the loaded job.
func (e *Engine) Start() error { return e.start(false) }

func (e *Engine) start(step bool) error {
	e.mx.Lock()
	if e.state != Stopped {
		e.mx.Unlock()
		return ErrNotStopped
	}
	if e.done != nil || e.exclusive {
		e.mx.Unlock()
		return ErrRunInProgress
	}
	if e.job == nil {
		e.mx.Unlock()
		return ErrNoJob
	}
	j := e.job
	id := uuid.New()
	done := make(chan struct{})
	e.state = Running
	e.pauseAtNextStep = step
	e.runID = id
	e.done = done
	e.mx.Unlock()

	log.Printf("job %q: run %s started", j.Name, id)
	e.fire(Event{Type: StateChanged, RunID: id, State: Running})
	go e.run(j, id, done)
	return nil
}

func (e *Engine) Pause() error {
	e.mx.Lock()
	if e.state != Running {
		e.mx.Unlock()
		return ErrNotRunning
	}
	e.state = Paused
	id := e.runID
	e.mx.Unlock()

	e.fire(Event{Type: StateChanged, RunID: id, State: Paused})
	return nil
}

func (e *Engine) Resume() error {
	e.mx.Lock()
	if e.state != Paused {
		e.mx.Unlock()
		return ErrNotPaused
	}
	e.state = Running
	e.pauseAtNextStep = false
	id := e.runID
	e.cond.Broadcast()
	e.mx.Unlock()

	e.fire(Event{Type: StateChanged, RunID: id, State: Running})
	return nil
}

// Step runs a single placement, then pauses. It starts the job if it is
// stopped and resumes it if it is paused.
func (e *Engine) Step() error {
	e.mx.Lock()
	switch e.state {
	case Stopped:
		e.mx.Unlock()
		return e.start(true)
	case Running:
		e.pauseAtNextStep = true
		e.mx.Unlock()
		return nil
	}
	e.state = Running
	e.pauseAtNextStep = true
	id := e.runID
	e.cond.Broadcast()
	e.mx.Unlock()

	e.fire(Event{Type: StateChanged, RunID: id, State: Running})
	return nil
}

// Stop ends the run at the next step boundary. Stopping a stopped engine
// is a no-op.
func (e *Engine) Stop() {
	e.mx.Lock()
	if e.state == Stopped {
		e.mx.Unlock()
		return
	}
	e.state = Stopped
	id := e.runID
	e.cond.Broadcast()
	e.mx.Unlock()

	e.fire(Event{Type: StateChanged, RunID: id, State: Stopped})
}

// Exclusive runs fn while no run can start, for work that moves the
// machine or edits the loaded job between runs. It fails with
// ErrNotStopped unless the engine is stopped, and with ErrRunInProgress
// while a run goroutine is exiting or another Exclusive call is active.
func (e *Engine) Exclusive(fn func() error) error {
	e.mx.Lock()
	if e.state != Stopped {
		e.mx.Unlock()
		return ErrNotStopped
	}
	if e.done != nil || e.exclusive {
		e.mx.Unlock()
		return ErrRunInProgress
	}
	e.exclusive = true
	e.mx.Unlock()

	defer func() {
		e.mx.Lock()
		e.exclusive = false
		e.mx.Unlock()
	}()
	return fn()
}

// Wait blocks until the run goroutine, if any, has exited.
func (e *Engine) Wait() {
	e.mx.Lock()
	done := e.done
	e.mx.Unlock()
	if done != nil {
		<-done
	}
}

// gate blocks while paused and reports whether the run may continue.
func (e *Engine) gate() bool {
	e.mx.Lock()
	defer e.mx.Unlock()
	for e.state == Paused {
		e.cond.Wait()
	}
	return e.state != Stopped
}

// stepBoundary pauses the run if a Step was requested.
func (e *Engine) stepBoundary(id uuid.UUID) {
	e.mx.Lock()
	if !e.pauseAtNextStep || e.state != Running {
		e.mx.Unlock()
		return
	}
	e.pauseAtNextStep = false
	e.state = Paused
	e.mx.Unlock()

	e.fire(Event{Type: StateChanged, RunID: id, State: Paused})
}

func (e *Engine) run(j *Job, id uuid.UUID, done chan struct{}) {
	r := &runner{e: e, id: id}
	completed := r.run(j)

	e.mx.Lock()
	wasRunning := e.state != Stopped
	e.state = Stopped
	e.mx.Unlock()

	if completed {
		log.Printf("job %q: run %s complete", j.Name, id)
		r.status("Job complete")
	} else {
		log.Printf("job %q: run %s stopped", j.Name, id)
		r.status("Job stopped")
	}
	if wasRunning {
		e.fire(Event{Type: StateChanged, RunID: id, State: Stopped})
	}

	e.mx.Lock()
	e.done = nil
	e.mx.Unlock()
	close(done)
}

// runner holds the state of a single run.
type runner struct {
	e  *Engine
	id uuid.UUID
}

func (r *runner) fire(ev Event) {
	ev.RunID = r.id
	r.e.fire(ev)
}

func (r *runner) status(s string) {
	r.fire(Event{Type: DetailedStatus, Status: s})
}

func (r *runner) report(err *Error) {
	log.Println("ERROR:", err)
	r.fire(Event{Type: ErrorReported, Board: err.Board, Placement: err.Placement, Err: err})
}

// run reports whether every board was processed.
func (r *runner) run(j *Job) bool {
	m := r.e.m

	if err := m.Ready(); err != nil {
		r.report(&Error{Kind: MachineRejectedJob, Description: "machine not ready", Err: err})
		return false
	}

	if r.e.opt.HomeBeforeRun {
		if !r.e.gate() {
			return false
		}
		r.status("Homing")
		if err := m.Home(); err != nil {
			r.report(&Error{Kind: MachineHoming, Description: "homing failed", Err: err})
			return false
		}
	}

	for _, bl := range j.Boards {
		if !bl.Enabled || bl.Board == nil {
			continue
		}
		if !r.e.gate() {
			return false
		}

		board := bl.Board.Name
		r.fire(Event{Type: BoardStarted, Board: board})
		for _, p := range bl.Board.Placements {
			if p.Type != pcb.Place || p.Side != bl.Side {
				continue
			}
			if !r.e.gate() {
				return false
			}
			if !r.placement(bl, p) {
				return false
			}
			r.e.stepBoundary(r.id)
		}
		r.fire(Event{Type: BoardCompleted, Board: board})
	}
	return true
}

func partID(p *pcb.Part) string {
	if p == nil {
		return ""
	}
	return p.ID
}

func samePart(a, b *pcb.Part) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a == b || a.ID == b.ID
}

func (r *runner) feeders(p *pcb.Placement) []machine.Feeder {
	var res []machine.Feeder
	for _, f := range r.e.m.Feeders {
		if !f.Enabled() || !samePart(f.Part(), p.Part) {
			continue
		}
		for _, h := range r.e.m.Heads {
			if f.CanFeedForHead(h) {
				res = append(res, f)
				break
			}
		}
	}
	return res
}

func (r *runner) heads(f machine.Feeder, pick, place coord.Location) []machine.Head {
	var res []machine.Head
	for _, h := range r.e.m.Heads {
		if f.CanFeedForHead(h) && h.CanPickAndPlace(f, pick, place) {
			res = append(res, h)
		}
	}
	return res
}

// placeLocation is where the nozzle releases p on bl, in units u.
func placeLocation(bl *pcb.BoardLocation, p *pcb.Placement, u coord.LengthUnit) coord.Location {
	loc := bl.Transform(p.Location, u)
	if p.Part != nil {
		loc.Z += p.Part.Height.In(u)
	}
	if bl.Surface != nil {
		// surface heights are in the native units the mesh was probed in
		if ok, dz := bl.Surface.OffsetZ(loc.X, loc.Y); ok {
			loc.Z += dz
		}
	}
	return loc
}

type step struct {
	desc string
	kind ErrorKind
	fn   func() error
}

// placement processes one placement and reports whether the run should
// continue.
func (r *runner) placement(bl *pcb.BoardLocation, p *pcb.Placement) bool {
	board := bl.Board.Name
	fail := func(kind ErrorKind, desc string, err error) {
		r.report(&Error{Kind: kind, Description: desc, Board: board, Placement: p.ID, Err: err})
	}

	r.fire(Event{Type: PartStarted, Board: board, Placement: p.ID})

	candidates := r.feeders(p)
	if len(candidates) == 0 {
		fail(FeederError, fmt.Sprintf("no feeder available for part %q", partID(p.Part)), nil)
		return true
	}
	f := r.e.opt.FeederSelector.SelectFeeder(p, candidates)

	units := r.e.m.Units()
	pick := f.Location().ConvertTo(units)
	place := placeLocation(bl, p, units)

	heads := r.heads(f, pick, place)
	if len(heads) == 0 {
		fail(HeadError, fmt.Sprintf("no head can pick from %s and place %s", f.ID(), p.ID), nil)
		return true
	}
	h := r.e.opt.HeadSelector.SelectHead(p, f, heads)

	speed := r.e.opt.Speed
	safeZ := h.SafeZ().In(units)
	toSafeZ := step{"move to safe Z", MachineMovement, func() error { return h.MoveToSafeZ(speed) }}

	steps := []step{
		toSafeZ,
		{"feed from " + f.ID(), FeederError, func() error {
			loc, err := f.Feed(h, pick)
			if err != nil {
				return err
			}
			pick = loc.ConvertTo(units)
			return nil
		}},
		toSafeZ,
		{"move to pick location", MachineMovement, func() error { return h.MoveTo(pick.WithZ(safeZ), speed) }},
		{"descend to pick location", MachineMovement, func() error { return h.MoveTo(pick, speed) }},
		{"pick", PickError, func() error {
			if err := h.Pick(p.Part, f, pick); err != nil {
				return err
			}
			r.fire(Event{Type: PartPicked, Board: board, Placement: p.ID})
			return nil
		}},
		toSafeZ,
		{"move to place location", MachineMovement, func() error { return h.MoveTo(place.WithZ(safeZ), speed) }},
		{"descend to place location", MachineMovement, func() error { return h.MoveTo(place, speed) }},
		{"place", PlaceError, func() error {
			if err := h.Place(p.Part, place); err != nil {
				return err
			}
			r.fire(Event{Type: PartPlaced, Board: board, Placement: p.ID})
			return nil
		}},
		toSafeZ,
	}

	for _, s := range steps {
		if !r.e.gate() {
			return false
		}
		err := s.fn()
		if err == nil {
			continue
		}
		fail(s.kind, s.desc, err)
		if machine.IsFatal(err) {
			return false
		}
		if r.e.opt.Policy == SkipPlacement {
			if err := h.MoveToSafeZ(speed); err != nil {
				fail(MachineMovement, toSafeZ.desc, err)
			}
			break
		}
	}

	r.fire(Event{Type: PartCompleted, Board: board, Placement: p.ID})
	return true
}
