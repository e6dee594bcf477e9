// Package pcb holds the board design data the job engine consumes:
// parts, boards, placements and where a board sits on the machine.
package pcb

import (
	"strconv"

	"github.com/mastercactapus/gpnp/coord"
	"github.com/mastercactapus/gpnp/surface"
)

type Side int

const (
	Top Side = iota
	Bottom
)

func (s Side) String() string {
	switch s {
	case Top:
		return "Top"
	case Bottom:
		return "Bottom"
	}
	return "Side(" + strconv.Itoa(int(s)) + ")"
}

type PlacementType int

const (
	Place PlacementType = iota
	Fiducial
	Ignore
)

func (t PlacementType) String() string {
	switch t {
	case Place:
		return "Place"
	case Fiducial:
		return "Fiducial"
	case Ignore:
		return "Ignore"
	}
	return "PlacementType(" + strconv.Itoa(int(t)) + ")"
}

// Part is a component kind. Height is measured from the board surface to
// the top of the part, where the nozzle releases it.
type Part struct {
	ID     string
	Height coord.Length
}

// Placement is one part to mount, in board-local coordinates.
type Placement struct {
	ID       string
	Part     *Part
	Location coord.Location
	Side     Side
	Type     PlacementType
}

// Board is a named design with placements at fixed relative positions.
type Board struct {
	Name       string
	Placements []*Placement
}

// Placement looks up a placement by ID.
func (b *Board) Placement(id string) *Placement {
	for _, p := range b.Placements {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// BoardLocation places a Board in machine space. Location.Z is the board
// surface height; Location.Rotation follows the clockwise-positive
// convention of coord.RotateTranslateScalePoint.
type BoardLocation struct {
	Board    *Board
	Location coord.Location
	Side     Side
	Enabled  bool

	// Surface, if set, corrects the surface height at each placement.
	Surface surface.ZOffsetter
}

// NewBoardLocation returns an enabled BoardLocation.
func NewBoardLocation(b *Board, loc coord.Location, side Side) *BoardLocation {
	return &BoardLocation{Board: b, Location: loc, Side: side, Enabled: true}
}

// Transform maps a board-local location into the frame of the board
// location, in units u.
func (bl *BoardLocation) Transform(local coord.Location, u coord.LengthUnit) coord.Location {
	board := bl.Location.ConvertTo(u)
	local = local.ConvertTo(u)

	p := coord.RotateTranslateScalePoint(local.Point(), board.Rotation, board.X, board.Y, 1)
	return coord.Location{
		Units:    u,
		X:        p.X,
		Y:        p.Y,
		Z:        board.Z,
		Rotation: coord.NormalizeAngle(local.Rotation + board.Rotation),
	}
}
