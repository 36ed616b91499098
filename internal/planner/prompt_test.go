package planner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mapvivid/cityroute/internal/model"
)

func TestStopsPerDay(t *testing.T) {
	assert.Equal(t, "~1-2", StopsPerDay(0))
	assert.Equal(t, "~1-2", StopsPerDay(1))
	assert.Equal(t, "~2-3", StopsPerDay(2))
	assert.Equal(t, "~3-4", StopsPerDay(3))
	assert.Equal(t, "~4-5", StopsPerDay(4))
	assert.Equal(t, "~5-7", StopsPerDay(5))
	assert.Equal(t, "~5-7", StopsPerDay(9))
}

func TestClampStayDays(t *testing.T) {
	assert.Equal(t, 1, ClampStayDays(0))
	assert.Equal(t, 1, ClampStayDays(-3))
	assert.Equal(t, 1, ClampStayDays(1))
	assert.Equal(t, 4, ClampStayDays(4))
	assert.Equal(t, 7, ClampStayDays(7))
	assert.Equal(t, 7, ClampStayDays(30))
}

func TestBuildPlanPrompt(t *testing.T) {
	in := &model.ItineraryInput{
		City:       "Lisbon",
		Country:    "Portugal",
		NoDates:    true,
		StayDays:   3,
		Categories: []string{"museums", "food"},
		Pace:       4,
		Budget:     model.Budget{Value: "100", Currency: "EUR"},
	}

	prompt := BuildPlanPrompt(in)

	assert.Contains(t, prompt, "City: Lisbon")
	assert.Contains(t, prompt, "Country: Portugal")
	assert.Contains(t, prompt, "Plan for 3 day(s).")
	assert.Contains(t, prompt, "museums, food")
	assert.Contains(t, prompt, "~4-5 stops")
	assert.Contains(t, prompt, "100 EUR")
	assert.NotContains(t, prompt, "Trip dates:")
}

func TestBuildPlanPrompt_DateRange(t *testing.T) {
	in := &model.ItineraryInput{
		City:      "Porto",
		Country:   "Portugal",
		StartDate: "2026-05-01",
		EndDate:   "2026-05-03",
		StayDays:  3,
	}

	prompt := BuildPlanPrompt(in)
	assert.Contains(t, prompt, "Trip dates: 2026-05-01 to 2026-05-03 (inclusive)")
	// Pace defaults to 3 when unset.
	assert.Contains(t, prompt, "~3-4 stops")
}

func TestBuildCityTipsPrompt_NoFocusPinsEmptyObject(t *testing.T) {
	in := &model.ItineraryInput{City: "Lisbon", Country: "Portugal"}
	prompt := BuildCityTipsPrompt(in)
	assert.Equal(t, `Output ONLY valid JSON: { "city_tips": {} }`, prompt)
}

func TestBuildCityTipsPrompt_SelectedCategoriesOnly(t *testing.T) {
	in := &model.ItineraryInput{
		City:     "Lisbon",
		Country:  "Portugal",
		TipFocus: []string{"transport", "", "safety"},
	}

	prompt := BuildCityTipsPrompt(in)
	assert.Contains(t, prompt, "transport, safety")
	assert.Contains(t, prompt, `"transport": ["tip 1", "tip 2"]`)
	assert.Contains(t, prompt, `"safety": ["tip 1", "tip 2"]`)
	assert.Equal(t, 2, strings.Count(prompt, "tip 1"))
}
