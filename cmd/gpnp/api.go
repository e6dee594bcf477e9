package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mastercactapus/gpnp/align"
	"github.com/mastercactapus/gpnp/coord"
	"github.com/mastercactapus/gpnp/job"
	"github.com/mastercactapus/gpnp/machine/controller"
	"github.com/mastercactapus/gpnp/pcb"
)

var (
	errNoBoard  = errors.New("no such board in the loaded job")
	errBadValue = errors.New("invalid parameter")
)

type api struct {
	http.Handler
	r   *rig
	sse *sse.Server

	events chan job.Event
	done   chan struct{}

	tolerance float64

	mx         sync.Mutex
	align      *align.Procedure
	alignBoard int
	alignBL    *pcb.BoardLocation
}

func newAPI(r *rig, tolerance float64) *api {
	router := mux.NewRouter()

	a := &api{
		Handler: router,
		r:       r,
		sse: sse.NewServer(&sse.Options{
			Logger: log.New(io.Discard, "", 0),
		}),
		events:    make(chan job.Event, 1000),
		done:      make(chan struct{}),
		tolerance: tolerance,
	}

	router.HandleFunc("/api/state", a.state).Methods("GET")
	router.HandleFunc("/api/ports", a.ports).Methods("GET")
	router.HandleFunc("/api/connect", a.connect).Methods("POST")
	router.HandleFunc("/api/disconnect", a.disconnect).Methods("POST")
	router.HandleFunc("/api/job", a.loadJob).Methods("POST")
	router.HandleFunc("/api/job/{action}", a.jobAction).Methods("POST")
	router.HandleFunc("/api/align/{action}", a.alignAction).Methods("POST")
	router.HandleFunc("/api/probe", a.probe).Methods("POST")
	router.Handle("/metrics", promhttp.Handler())
	router.PathPrefix("/events/").Handler(a.sse)

	r.engine.AddListener(a)
	go a.forward()

	return a
}

// JobEvent queues e for the event stream. Events are dropped if the
// stream falls behind.
func (a *api) JobEvent(e job.Event) {
	select {
	case a.events <- e:
	default:
	}
}

func (a *api) forward() {
	for {
		select {
		case <-a.done:
			return
		case e := <-a.events:
			data, err := json.Marshal(newEventJSON(e))
			if err != nil {
				log.Printf("ERROR: marshal json: %+v", err)
				continue
			}
			a.sse.SendMessage("/events/job", sse.SimpleMessage(string(data)))
		}
	}
}

// Close stops the event stream.
func (a *api) Close() {
	close(a.done)
	a.sse.Shutdown()
}

type locationJSON struct {
	Units    string  `json:"units"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
	Rotation float64 `json:"rotation"`
}

func newLocationJSON(l coord.Location) locationJSON {
	return locationJSON{Units: l.Units.String(), X: l.X, Y: l.Y, Z: l.Z, Rotation: l.Rotation}
}

type errorJSON struct {
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Cause       string `json:"cause,omitempty"`
}

type eventJSON struct {
	Type      string     `json:"type"`
	RunID     string     `json:"runID,omitempty"`
	State     string     `json:"state,omitempty"`
	Board     string     `json:"board,omitempty"`
	Placement string     `json:"placement,omitempty"`
	Status    string     `json:"status,omitempty"`
	Error     *errorJSON `json:"error,omitempty"`
}

func newEventJSON(e job.Event) eventJSON {
	ev := eventJSON{
		Type:      e.Type.String(),
		Board:     e.Board,
		Placement: e.Placement,
		Status:    e.Status,
	}
	if e.Type == job.StateChanged {
		ev.State = e.State.String()
	}
	if e.RunID != uuid.Nil {
		ev.RunID = e.RunID.String()
	}
	if e.Err != nil {
		ev.Error = &errorJSON{Kind: e.Err.Kind.String(), Description: e.Err.Description}
		if e.Err.Err != nil {
			ev.Error.Cause = e.Err.Err.Error()
		}
	}
	return ev
}

type stateJSON struct {
	State      string       `json:"state"`
	Job        string       `json:"job,omitempty"`
	Boards     int          `json:"boards"`
	Controller string       `json:"controller"`
	Version    float64      `json:"version"`
	Location   locationJSON `json:"location"`
	Align      string       `json:"align,omitempty"`
	AlignBoard int          `json:"alignBoard"`
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		log.Println("ERROR: encode:", err)
	}
}

func httpError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, job.ErrNoJob), errors.Is(err, errNoBoard), errors.Is(err, errBadValue),
		errors.Is(err, align.ErrUnknownPlacement), errors.Is(err, align.ErrSamePlacement):
		code = http.StatusBadRequest
	case errors.Is(err, job.ErrNotStopped), errors.Is(err, job.ErrNotRunning),
		errors.Is(err, job.ErrNotPaused), errors.Is(err, job.ErrRunInProgress),
		errors.Is(err, align.ErrWrongStep), errors.Is(err, controller.ErrAlreadyConnected):
		code = http.StatusConflict
	default:
		var calErr *align.CalibrationError
		if errors.As(err, &calErr) {
			code = http.StatusUnprocessableEntity
		} else {
			log.Printf("ERROR: %+v", err)
		}
	}
	http.Error(w, err.Error(), code)
}

func (a *api) state(w http.ResponseWriter, req *http.Request) {
	s := stateJSON{
		State:      a.r.engine.State().String(),
		Controller: a.r.driver.State().String(),
		Version:    a.r.driver.Version(),
		Location:   newLocationJSON(a.r.driver.Location()),
	}
	if j := a.r.engine.Job(); j != nil {
		s.Job = j.Name
		s.Boards = len(j.Boards)
	}
	a.mx.Lock()
	if a.align != nil {
		s.Align = a.align.Step().String()
		s.AlignBoard = a.alignBoard
	}
	a.mx.Unlock()
	writeJSON(w, s)
}

func (a *api) ports(w http.ResponseWriter, req *http.Request) {
	names := []string{}
	if a.r.spjs != nil {
		for _, p := range a.r.spjs.SerialPorts() {
			names = append(names, p.Name)
		}
		writeJSON(w, names)
		return
	}
	ports, err := controller.ListPorts()
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, append(names, ports...))
}

func (a *api) connect(w http.ResponseWriter, req *http.Request) {
	err := a.r.driver.Connect(req.Context())
	if err != nil {
		httpError(w, err)
		return
	}
	a.state(w, req)
}

func (a *api) disconnect(w http.ResponseWriter, req *http.Request) {
	a.r.engine.Stop()
	err := a.r.driver.Disconnect()
	if err != nil {
		httpError(w, err)
		return
	}
	a.state(w, req)
}

func (a *api) loadJob(w http.ResponseWriter, req *http.Request) {
	data, err := io.ReadAll(req.Body)
	if err != nil {
		httpError(w, err)
		return
	}
	j, err := ParseJob(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.r.engine.Load(j)

	a.mx.Lock()
	a.align = nil
	a.mx.Unlock()

	a.state(w, req)
}

func (a *api) jobAction(w http.ResponseWriter, req *http.Request) {
	var err error
	e := a.r.engine
	switch mux.Vars(req)["action"] {
	case "start":
		err = e.Start()
	case "pause":
		err = e.Pause()
	case "resume":
		err = e.Resume()
	case "step":
		err = e.Step()
	case "stop":
		e.Stop()
	default:
		http.NotFound(w, req)
		return
	}
	if err != nil {
		httpError(w, err)
		return
	}
	a.state(w, req)
}

// procedure returns the alignment in progress, starting one for board 0
// of the loaded job if there is none.
func (a *api) procedure() (*align.Procedure, error) {
	if a.align != nil {
		return a.align, nil
	}
	return a.startAlign(0)
}

func (a *api) startAlign(board int) (*align.Procedure, error) {
	j := a.r.engine.Job()
	if j == nil {
		return nil, job.ErrNoJob
	}
	if board < 0 || board >= len(j.Boards) {
		return nil, errNoBoard
	}
	p := align.NewProcedure(j.Boards[board])
	p.SetTolerance(a.tolerance)
	a.align = p
	a.alignBoard = board
	a.alignBL = j.Boards[board]
	return p, nil
}

// cameraLocation is where the head camera is centered, or the nozzle if
// there is no camera.
func (a *api) cameraLocation() coord.Location {
	loc := a.r.driver.Location()
	if a.r.camera == nil {
		return loc
	}
	off := a.r.camera.Offset().ConvertTo(loc.Units)
	return loc.WithX(loc.X + off.X).WithY(loc.Y + off.Y)
}

// formBoard is the board index in the form, 0 if absent.
func formBoard(req *http.Request) (int, error) {
	s := req.FormValue("board")
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: board: %v", errBadValue, err)
	}
	return n, nil
}

func formFloat(req *http.Request, name string, err *error) float64 {
	if *err != nil {
		return 0
	}
	var v float64
	v, *err = strconv.ParseFloat(req.FormValue(name), 64)
	return v
}

func (a *api) alignAction(w http.ResponseWriter, req *http.Request) {
	a.mx.Lock()
	defer a.mx.Unlock()

	var err error
	switch mux.Vars(req)["action"] {
	case "reset":
		var board int
		board, err = formBoard(req)
		if err != nil {
			break
		}
		_, err = a.startAlign(board)
	case "capture":
		var p *align.Procedure
		p, err = a.procedure()
		if err != nil {
			break
		}
		loc := a.cameraLocation()
		if req.FormValue("x") != "" || req.FormValue("y") != "" {
			var perr error
			x := formFloat(req, "x", &perr)
			y := formFloat(req, "y", &perr)
			if perr != nil {
				http.Error(w, perr.Error(), http.StatusBadRequest)
				return
			}
			loc = coord.NewLocation(a.r.units, x, y, 0, 0)
		}
		err = p.Capture(loc)
	case "select":
		var p *align.Procedure
		p, err = a.procedure()
		if err != nil {
			break
		}
		err = p.Select(a.alignBL.Board.Placement(req.FormValue("placement")))
	case "apply":
		var p *align.Procedure
		p, err = a.procedure()
		if err != nil {
			break
		}
		var loc coord.Location
		err = a.r.engine.Exclusive(func() (err error) {
			loc, err = p.Apply()
			return err
		})
		if err == nil {
			writeJSON(w, newLocationJSON(loc))
			return
		}
	default:
		http.NotFound(w, req)
		return
	}
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, map[string]string{"step": a.align.Step().String()})
}

type probeJSON struct {
	Board  int `json:"board"`
	Points int `json:"points"`
}

// probe measures the surface of a board of the loaded job. The grid starts
// at the board origin and runs width by height along the machine axes.
func (a *api) probe(w http.ResponseWriter, req *http.Request) {
	board, err := formBoard(req)
	if err != nil {
		httpError(w, err)
		return
	}
	width := formFloat(req, "width", &err)
	height := formFloat(req, "height", &err)
	if err != nil {
		httpError(w, fmt.Errorf("%w: %v", errBadValue, err))
		return
	}
	if width <= 0 || height <= 0 {
		httpError(w, fmt.Errorf("%w: width and height must be positive", errBadValue))
		return
	}

	j := a.r.engine.Job()
	if j == nil {
		httpError(w, job.ErrNoJob)
		return
	}
	if board < 0 || board >= len(j.Boards) {
		httpError(w, errNoBoard)
		return
	}

	var n int
	err = a.r.engine.Exclusive(func() (err error) {
		n, err = a.r.ProbeSurface(j.Boards[board], width, height)
		return err
	})
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, probeJSON{Board: board, Points: n})
}
