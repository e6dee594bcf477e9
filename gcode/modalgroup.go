package gcode

type ModalGroup byte

const (
	ModalGroupNone = iota
	ModalGroupNonModal
	ModalGroupMotion
	ModalGroupDistanceMode
	ModalGroupUnits
	ModalGroupStopping
	ModalGroupVacuum
	ModalGroupFeedRate
)

func (w Word) ModalGroup() ModalGroup {
	switch w.W {
	case 'G':
		switch w.Arg {
		case 4, 28, 28.2, 53, 92:
			return ModalGroupNonModal
		case 0, 1, 38.2:
			return ModalGroupMotion
		case 90, 91:
			return ModalGroupDistanceMode
		case 20, 21:
			return ModalGroupUnits
		}
	case 'M':
		switch w.Arg {
		case 0, 2, 30, 84:
			return ModalGroupStopping
		case 4, 5:
			return ModalGroupVacuum
		case 7, 8, 9:
			// auxiliary outputs, used for actuators
			return ModalGroupNonModal
		}
	case 'F':
		return ModalGroupFeedRate
	}

	return ModalGroupNone
}
