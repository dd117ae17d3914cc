package probe

// Mode defines the capability ceiling based on what the connected
// database supports
type Mode string

const (
	ModeReadOnly Mode = "readonly" // queries only, no writes
	ModeBasic    Mode = "basic"    // + writes and table management, no geometry
	ModeSpatial  Mode = "spatial"  // + geometry columns and reprojection (PostGIS)
)

// ParseMode converts a string to Mode, defaulting to ModeBasic
func ParseMode(s string) Mode {
	switch s {
	case "readonly":
		return ModeReadOnly
	case "basic":
		return ModeBasic
	case "spatial":
		return ModeSpatial
	default:
		return ModeBasic
	}
}

// Level returns numeric level for comparison (higher = more capabilities)
func (m Mode) Level() int {
	switch m {
	case ModeReadOnly:
		return 0
	case ModeBasic:
		return 1
	case ModeSpatial:
		return 2
	default:
		return 1
	}
}

// Allows returns true if this mode allows the given mode's capabilities
func (m Mode) Allows(required Mode) bool {
	return m.Level() >= required.Level()
}
