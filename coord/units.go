package coord

import (
	"fmt"
	"strconv"
	"strings"
)

// LengthUnit identifies the unit a length or Location is expressed in.
type LengthUnit int

const (
	Millimeters LengthUnit = iota
	Centimeters
	Meters
	Inches
	Mils
	Microns
)

// Epsilon is the tolerance used when comparing positions.
const Epsilon = 0.001

var unitNames = map[LengthUnit]string{
	Millimeters: "mm",
	Centimeters: "cm",
	Meters:      "m",
	Inches:      "in",
	Mils:        "mil",
	Microns:     "um",
}

// millimeters per unit
var unitScale = map[LengthUnit]float64{
	Millimeters: 1,
	Centimeters: 10,
	Meters:      1000,
	Inches:      25.4,
	Mils:        0.0254,
	Microns:     0.001,
}

func (u LengthUnit) String() string {
	if s, ok := unitNames[u]; ok {
		return s
	}
	return "LengthUnit(" + strconv.Itoa(int(u)) + ")"
}

// ParseLengthUnit accepts the short unit names ("mm", "in", ...) as well as
// the spelled-out plural forms.
func ParseLengthUnit(s string) (LengthUnit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mm", "millimeters", "millimeter":
		return Millimeters, nil
	case "cm", "centimeters", "centimeter":
		return Centimeters, nil
	case "m", "meters", "meter":
		return Meters, nil
	case "in", "inch", "inches":
		return Inches, nil
	case "mil", "mils", "thou":
		return Mils, nil
	case "um", "micron", "microns":
		return Microns, nil
	}
	return 0, fmt.Errorf("unknown length unit %q", s)
}

// Convert returns v (in units from) expressed in units to.
func Convert(v float64, from, to LengthUnit) float64 {
	if from == to {
		return v
	}
	return v * unitScale[from] / unitScale[to]
}

// Length is a scalar distance tagged with its unit.
type Length struct {
	Value float64
	Units LengthUnit
}

func (l Length) ConvertTo(u LengthUnit) Length {
	return Length{Value: Convert(l.Value, l.Units, u), Units: u}
}

// In returns the raw value of l expressed in u.
func (l Length) In(u LengthUnit) float64 {
	return Convert(l.Value, l.Units, u)
}

func (l Length) String() string {
	return strconv.FormatFloat(l.Value, 'f', -1, 64) + l.Units.String()
}
