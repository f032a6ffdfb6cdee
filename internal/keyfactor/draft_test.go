package keyfactor

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSwitchTypeRoundTripRestoresFrequency(t *testing.T) {
	d := validFrequency()
	before := d.Clone().(*BaseRateDraft)

	d.SwitchType(BaseRateTrend)
	require.Equal(t, BaseRateTrend, d.Type)
	assert.Equal(t, Frequency{}, d.Frequency, "frequency fields must not stay active on a trend")
	assert.Equal(t, Trend{}, d.Trend, "trend fields start empty")
	assert.Equal(t, before.ReferenceClass, d.ReferenceClass)
	assert.Equal(t, before.Unit, d.Unit)
	assert.Equal(t, before.Source, d.Source)

	d.SwitchType(BaseRateFrequency)
	if diff := cmp.Diff(before, d, cmp.AllowUnexported(BaseRateDraft{})); diff != "" {
		t.Fatalf("round trip changed the draft (-want +got):\n%s", diff)
	}
}

func TestSwitchTypeKeepsTrendEditsAcrossSwitches(t *testing.T) {
	d := validFrequency()
	d.SwitchType(BaseRateTrend)
	d.Trend = Trend{ProjectedValue: Float(3.2), ProjectedByYear: Year(2030), Extrapolation: ExtrapolationLinear}
	d.SwitchType(BaseRateFrequency)
	assert.Equal(t, Trend{}, d.Trend)
	d.SwitchType(BaseRateTrend)
	require.NotNil(t, d.Trend.ProjectedByYear)
	assert.Equal(t, 2030, *d.Trend.ProjectedByYear)
}

func TestCloneIsDeep(t *testing.T) {
	d := validFrequency()
	c := d.Clone().(*BaseRateDraft)
	*c.Frequency.RateNumerator = 99
	c.ReferenceClass = "changed"
	assert.Equal(t, float64(10), *d.Frequency.RateNumerator)
	assert.NotEqual(t, d.ReferenceClass, c.ReferenceClass)
}

func TestNewBaseRateInheritsUnit(t *testing.T) {
	post := Post{Group: []Question{
		{ID: 1, Title: "GDP", Type: QuestionNumeric, Unit: "USD bn"},
		{ID: 2, Title: "Inflation", Type: QuestionNumeric, Unit: "%"},
	}}
	assert.Equal(t, "USD bn", NewBaseRateDraft(post, Target{}).Unit)
	assert.Equal(t, "%", NewBaseRateDraft(post, Target{QuestionID: 2}).Unit)
	assert.Equal(t, BaseRateFrequency, NewBaseRateDraft(Post{}, Target{}).Type)
}

func TestEmptiness(t *testing.T) {
	br := NewBaseRateDraft(Post{Question: &Question{Unit: "cases"}}, Target{})
	assert.True(t, br.IsEmpty(), "a prefilled unit alone does not count as content")
	br.Source = "who.int"
	assert.False(t, br.IsEmpty())
	assert.True(t, NewDriverDraft().IsEmpty())
	assert.True(t, (&DriverDraft{Text: "   "}).IsEmpty())
	assert.True(t, NewNewsDraft().IsEmpty())
}

func TestEnvelopeDiscriminator(t *testing.T) {
	_, err := UnmarshalDraft([]byte(`{"question_id": 3}`))
	assert.True(t, errors.Is(err, ErrDiscriminator))

	_, err = UnmarshalDraft([]byte(`{"driver": {"text": "a"}, "news": {"url": "b"}}`))
	assert.True(t, errors.Is(err, ErrDiscriminator))

	d, err := UnmarshalDraft([]byte(`{"driver": {"text": "Rates fall", "impact_direction": null, "certainty": -1}, "question_option": "Yes"}`))
	require.NoError(t, err)
	driver, ok := d.(*DriverDraft)
	require.True(t, ok)
	assert.Equal(t, ImpactUncertainty, driver.Impact.Kind())
	assert.Equal(t, Target{Option: "Yes"}, driver.Target)
}

func TestEnvelopeCarriesOnlyActiveBaseRateFields(t *testing.T) {
	d := validFrequency()
	d.SwitchType(BaseRateTrend)
	d.Trend = Trend{ProjectedValue: Float(1.5), ProjectedByYear: Year(2040), Extrapolation: ExtrapolationOther}
	data, err := MarshalDraft(d)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "rate_numerator")

	decoded, err := UnmarshalDraft(data)
	require.NoError(t, err)
	br := decoded.(*BaseRateDraft)
	assert.Equal(t, BaseRateTrend, br.Type)
	assert.Equal(t, 2040, *br.Trend.ProjectedByYear)
}

func TestKeyFactorJSONFlattensContent(t *testing.T) {
	published := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	kf := KeyFactor{
		ID:        4,
		CommentID: 9,
		PostID:    2,
		AuthorID:  7,
		Draft:     &NewsDraft{URL: "https://bbc.co.uk/news/1", Title: "Talks stall", PublishedAt: published, Impact: ImpactOf(ImpactDecrease)},
		Vote:      VoteAggregate{Score: 3, Count: 2},
	}
	data, err := kf.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"news":`)
	assert.Contains(t, string(data), `"comment_id":9`)

	var decoded KeyFactor
	require.NoError(t, decoded.UnmarshalJSON(data))
	assert.Equal(t, int64(4), decoded.ID)
	assert.Equal(t, KindNews, decoded.Kind())
	assert.Equal(t, published, decoded.Draft.(*NewsDraft).PublishedAt)
}

func TestPostTargetsAndVocabulary(t *testing.T) {
	mc := Post{Question: &Question{ID: 5, Type: QuestionMultipleChoice, Options: []string{"Red", "Blue"}}}
	assert.Equal(t, ShapeMultipleChoice, mc.Shape())
	assert.Len(t, mc.Targets(), 3)
	assert.Equal(t, "increase", mc.Vocabulary(Target{}).Increase)

	group := Post{Group: []Question{{ID: 8, Type: QuestionDate}, {ID: 9, Type: QuestionDiscrete}}}
	assert.Equal(t, ShapeGroup, group.Shape())
	assert.Equal(t, "earlier", group.Vocabulary(Target{QuestionID: 8}).Decrease)
	assert.Equal(t, "more", group.Vocabulary(Target{QuestionID: 9}).Increase)
	assert.False(t, group.ValidTarget(Target{QuestionID: 10}))
	assert.True(t, group.ValidTarget(Target{QuestionID: 9}))
}
