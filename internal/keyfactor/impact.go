package keyfactor

// Direction is the signed effect a factor has on the forecast.
type Direction int

const (
	DirectionNone     Direction = 0
	DirectionIncrease Direction = 1
	DirectionDecrease Direction = -1
)

// Valid reports whether d is one of the two signed directions.
func (d Direction) Valid() bool {
	return d == DirectionIncrease || d == DirectionDecrease
}

// Certainty flags a factor that widens the forecast rather than moving it.
type Certainty int

const (
	CertaintyNone      Certainty = 0
	CertaintyUncertain Certainty = -1
)

// ImpactKind is the three-state reading of an Impact pair.
type ImpactKind string

const (
	ImpactUnset       ImpactKind = ""
	ImpactIncrease    ImpactKind = "increase"
	ImpactDecrease    ImpactKind = "decrease"
	ImpactUncertainty ImpactKind = "uncertainty"
)

// Impact encodes (impact_direction, certainty). Certainty -1 wins over any
// direction.
type Impact struct {
	Direction Direction
	Certainty Certainty
}

// Kind collapses the pair into one of the three selectable states.
func (i Impact) Kind() ImpactKind {
	if i.Certainty == CertaintyUncertain {
		return ImpactUncertainty
	}
	switch i.Direction {
	case DirectionIncrease:
		return ImpactIncrease
	case DirectionDecrease:
		return ImpactDecrease
	}
	return ImpactUnset
}

// IsSet reports whether one of the three states has been chosen.
func (i Impact) IsSet() bool {
	return i.Kind() != ImpactUnset
}

// ImpactOf builds the canonical pair for a selectable state.
func ImpactOf(kind ImpactKind) Impact {
	switch kind {
	case ImpactIncrease:
		return Impact{Direction: DirectionIncrease}
	case ImpactDecrease:
		return Impact{Direction: DirectionDecrease}
	case ImpactUncertainty:
		return Impact{Certainty: CertaintyUncertain}
	}
	return Impact{}
}

// Vocabulary holds the labels shown for the two directions of a question type.
type Vocabulary struct {
	Increase string
	Decrease string
}

// Label returns the word for kind under this vocabulary.
func (v Vocabulary) Label(kind ImpactKind) string {
	switch kind {
	case ImpactIncrease:
		return v.Increase
	case ImpactDecrease:
		return v.Decrease
	case ImpactUncertainty:
		return "increases uncertainty"
	}
	return ""
}

// VocabularyFor picks the direction wording for a question type.
func VocabularyFor(t QuestionType) Vocabulary {
	switch t {
	case QuestionNumeric, QuestionDiscrete:
		return Vocabulary{Increase: "more", Decrease: "less"}
	case QuestionDate:
		return Vocabulary{Increase: "later", Decrease: "earlier"}
	default:
		return Vocabulary{Increase: "increase", Decrease: "decrease"}
	}
}
