package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mastercactapus/gpnp/coord"
	"github.com/mastercactapus/gpnp/job"
	"github.com/mastercactapus/gpnp/pcb"
	"github.com/mastercactapus/gpnp/surface"
)

// jobFile is the on-disk description of a job.
type jobFile struct {
	Name      string         `yaml:"name"`
	Units     string         `yaml:"units"`
	Parts     []partFile     `yaml:"parts"`
	Boards    []boardFile    `yaml:"boards"`
	Locations []locationFile `yaml:"locations"`
}

type partFile struct {
	ID     string  `yaml:"id"`
	Height float64 `yaml:"height"`
}

type boardFile struct {
	Name       string          `yaml:"name"`
	Placements []placementFile `yaml:"placements"`
}

type placementFile struct {
	ID       string  `yaml:"id"`
	Part     string  `yaml:"part"`
	X        float64 `yaml:"x"`
	Y        float64 `yaml:"y"`
	Rotation float64 `yaml:"rotation"`
	Side     string  `yaml:"side,omitempty"`
	Type     string  `yaml:"type,omitempty"`
}

type locationFile struct {
	Board    string  `yaml:"board"`
	X        float64 `yaml:"x"`
	Y        float64 `yaml:"y"`
	Z        float64 `yaml:"z"`
	Rotation float64 `yaml:"rotation"`
	Side     string  `yaml:"side,omitempty"`
	Disabled bool    `yaml:"disabled,omitempty"`

	// Surface holds probed height deviations in machine coordinates.
	Surface []pointFile `yaml:"surface,omitempty"`
}

type pointFile struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

func parseSide(s string) (pcb.Side, error) {
	switch strings.ToLower(s) {
	case "", "top":
		return pcb.Top, nil
	case "bottom":
		return pcb.Bottom, nil
	}
	return 0, fmt.Errorf("unknown side %q", s)
}

func parsePlacementType(s string) (pcb.PlacementType, error) {
	switch strings.ToLower(s) {
	case "", "place":
		return pcb.Place, nil
	case "fiducial":
		return pcb.Fiducial, nil
	case "ignore":
		return pcb.Ignore, nil
	}
	return 0, fmt.Errorf("unknown placement type %q", s)
}

// ParseJob decodes a YAML job description.
func ParseJob(data []byte) (*job.Job, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("job: description is empty")
	}
	var jf jobFile
	err := yaml.Unmarshal(data, &jf)
	if err != nil {
		return nil, fmt.Errorf("job: decode: %w", err)
	}

	u, err := coord.ParseLengthUnit(jf.Units)
	if err != nil {
		return nil, fmt.Errorf("job: %w", err)
	}

	parts := make(map[string]*pcb.Part, len(jf.Parts))
	for _, p := range jf.Parts {
		if p.ID == "" {
			return nil, errors.New("job: part without id")
		}
		parts[p.ID] = &pcb.Part{ID: p.ID, Height: coord.Length{Value: p.Height, Units: u}}
	}

	boards := make(map[string]*pcb.Board, len(jf.Boards))
	for _, b := range jf.Boards {
		board := &pcb.Board{Name: b.Name}
		for _, pf := range b.Placements {
			part := parts[pf.Part]
			if part == nil {
				return nil, fmt.Errorf("job: board %s: placement %s: unknown part %q", b.Name, pf.ID, pf.Part)
			}
			side, err := parseSide(pf.Side)
			if err != nil {
				return nil, fmt.Errorf("job: board %s: placement %s: %w", b.Name, pf.ID, err)
			}
			typ, err := parsePlacementType(pf.Type)
			if err != nil {
				return nil, fmt.Errorf("job: board %s: placement %s: %w", b.Name, pf.ID, err)
			}
			board.Placements = append(board.Placements, &pcb.Placement{
				ID:       pf.ID,
				Part:     part,
				Location: coord.NewLocation(u, pf.X, pf.Y, 0, pf.Rotation),
				Side:     side,
				Type:     typ,
			})
		}
		boards[b.Name] = board
	}

	j := &job.Job{Name: jf.Name}
	for i, lf := range jf.Locations {
		board := boards[lf.Board]
		if board == nil {
			return nil, fmt.Errorf("job: location %d: unknown board %q", i, lf.Board)
		}
		side, err := parseSide(lf.Side)
		if err != nil {
			return nil, fmt.Errorf("job: location %d: %w", i, err)
		}
		bl := pcb.NewBoardLocation(board, coord.NewLocation(u, lf.X, lf.Y, lf.Z, lf.Rotation), side)
		bl.Enabled = !lf.Disabled

		if len(lf.Surface) > 0 {
			pts := make([]coord.Point, len(lf.Surface))
			for k, p := range lf.Surface {
				pts[k] = coord.Point{X: p.X, Y: p.Y, Z: p.Z}
			}
			mesh, err := surface.NewMesh(pts)
			if err != nil {
				return nil, fmt.Errorf("job: location %d: surface: %w", i, err)
			}
			bl.Surface = mesh
		}
		j.Boards = append(j.Boards, bl)
	}
	return j, nil
}

// LoadJob reads and parses a job description file.
func LoadJob(path string) (*job.Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("job: read %s: %w", path, err)
	}
	j, err := ParseJob(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return j, nil
}
