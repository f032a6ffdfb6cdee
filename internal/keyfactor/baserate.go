package keyfactor

import "strings"

// BaseRateType selects which quantitative form a base rate takes.
type BaseRateType string

const (
	BaseRateFrequency BaseRateType = "frequency"
	BaseRateTrend     BaseRateType = "trend"
)

// Extrapolation is the projection method of a trend base rate.
type Extrapolation string

const (
	ExtrapolationLinear      Extrapolation = "linear"
	ExtrapolationExponential Extrapolation = "exponential"
	ExtrapolationOther       Extrapolation = "other"
)

// Valid reports membership in the closed set.
func (e Extrapolation) Valid() bool {
	switch e {
	case ExtrapolationLinear, ExtrapolationExponential, ExtrapolationOther:
		return true
	}
	return false
}

// Frequency holds "k out of n" reference class counts.
type Frequency struct {
	RateNumerator   *float64
	RateDenominator *float64
}

func (f Frequency) clone() Frequency {
	return Frequency{
		RateNumerator:   cloneFloat(f.RateNumerator),
		RateDenominator: cloneFloat(f.RateDenominator),
	}
}

func (f Frequency) isEmpty() bool {
	return f.RateNumerator == nil && f.RateDenominator == nil
}

// Trend holds a projected value for a future year.
type Trend struct {
	ProjectedValue  *float64
	ProjectedByYear *int
	Extrapolation   Extrapolation
	BasedOn         string
}

func (t Trend) clone() Trend {
	out := t
	out.ProjectedValue = cloneFloat(t.ProjectedValue)
	if t.ProjectedByYear != nil {
		year := *t.ProjectedByYear
		out.ProjectedByYear = &year
	}
	return out
}

func (t Trend) isEmpty() bool {
	return t.ProjectedValue == nil && t.ProjectedByYear == nil &&
		t.Extrapolation == "" && strings.TrimSpace(t.BasedOn) == ""
}

// BaseRateDraft is a quantitative reference class. Only the fields of the
// active Type are validated and serialized; the other subtype's values are
// parked by SwitchType so switching back restores them.
type BaseRateDraft struct {
	Target         Target
	Type           BaseRateType
	ReferenceClass string
	Unit           string
	Source         string
	Frequency      Frequency
	Trend          Trend

	parkedFrequency *Frequency
	parkedTrend     *Trend
}

// NewBaseRateDraft returns an empty frequency base rate whose unit is
// inherited from the targeted question.
func NewBaseRateDraft(p Post, target Target) *BaseRateDraft {
	return &BaseRateDraft{
		Target: target,
		Type:   BaseRateFrequency,
		Unit:   p.DefaultUnit(target),
	}
}

func (*BaseRateDraft) Kind() Kind { return KindBaseRate }
func (d *BaseRateDraft) TargetRef() *Target { return &d.Target }
func (*BaseRateDraft) sealed() {}

// IsEmpty ignores Unit, which is prefilled.
func (d *BaseRateDraft) IsEmpty() bool {
	if strings.TrimSpace(d.ReferenceClass) != "" || strings.TrimSpace(d.Source) != "" {
		return false
	}
	if d.Type == BaseRateTrend {
		return d.Trend.isEmpty()
	}
	return d.Frequency.isEmpty()
}

func (d *BaseRateDraft) Clone() Draft {
	c := *d
	c.Frequency = d.Frequency.clone()
	c.Trend = d.Trend.clone()
	if d.parkedFrequency != nil {
		f := d.parkedFrequency.clone()
		c.parkedFrequency = &f
	}
	if d.parkedTrend != nil {
		t := d.parkedTrend.clone()
		c.parkedTrend = &t
	}
	return &c
}

// SwitchType moves the draft to next. Shared fields are kept, the outgoing
// subtype is parked and cleared, and the incoming subtype is restored from
// its parked copy or starts empty.
func (d *BaseRateDraft) SwitchType(next BaseRateType) {
	if next != BaseRateTrend {
		next = BaseRateFrequency
	}
	if d.Type == "" {
		d.Type = BaseRateFrequency
	}
	if d.Type == next {
		return
	}
	d.ReferenceClass = strings.TrimSpace(d.ReferenceClass)
	d.Unit = strings.TrimSpace(d.Unit)
	d.Source = strings.TrimSpace(d.Source)
	switch next {
	case BaseRateTrend:
		d.parkedFrequency = nil
		if !d.Frequency.isEmpty() {
			parked := d.Frequency.clone()
			d.parkedFrequency = &parked
		}
		d.Frequency = Frequency{}
		if d.parkedTrend != nil {
			d.Trend = d.parkedTrend.clone()
		} else {
			d.Trend = Trend{}
		}
		d.parkedTrend = nil
	default:
		d.parkedTrend = nil
		if !d.Trend.isEmpty() {
			parked := d.Trend.clone()
			d.parkedTrend = &parked
		}
		d.Trend = Trend{}
		if d.parkedFrequency != nil {
			d.Frequency = d.parkedFrequency.clone()
		} else {
			d.Frequency = Frequency{}
		}
		d.parkedFrequency = nil
	}
	d.Type = next
}

// Float returns a pointer to v, for populating optional numeric fields.
func Float(v float64) *float64 { return &v }

// Year returns a pointer to y.
func Year(y int) *int { return &y }

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
