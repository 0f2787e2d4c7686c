package scoring

// Band is one of four ordered score ranges used for display.
type Band int

const (
	BandPoor Band = iota
	BandFair
	BandGood
	BandExcellent
)

// BandFor maps a score to its display band. Total over all float inputs;
// anything below the Fair floor is Poor, anything at or above 80 is
// Excellent.
func BandFor(score float64) Band {
	switch {
	case score >= 80:
		return BandExcellent
	case score >= 60:
		return BandGood
	case score >= 40:
		return BandFair
	default:
		return BandPoor
	}
}

// Label returns the human-readable band name.
func (b Band) Label() string {
	switch b {
	case BandExcellent:
		return "Excellent"
	case BandGood:
		return "Good"
	case BandFair:
		return "Fair"
	default:
		return "Poor"
	}
}

func (b Band) String() string {
	return b.Label()
}
