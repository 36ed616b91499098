package planner

import (
	"fmt"
	"strings"

	"github.com/mapvivid/cityroute/internal/model"
)

// StopsPerDay maps the 1–5 pace setting to the stop-count range asked of
// the generation service.
func StopsPerDay(pace int) string {
	switch {
	case pace <= 1:
		return "~1-2"
	case pace == 2:
		return "~2-3"
	case pace == 3:
		return "~3-4"
	case pace == 4:
		return "~4-5"
	default:
		return "~5-7"
	}
}

// ClampStayDays bounds a day count into the supported range.
func ClampStayDays(days int) int {
	if days < model.MinStayDays {
		return model.MinStayDays
	}
	if days > model.MaxStayDays {
		return model.MaxStayDays
	}
	return days
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func joinOr(list []string, def string) string {
	if len(list) == 0 {
		return def
	}
	return strings.Join(list, ", ")
}

// BuildPlanPrompt produces the prompt for the day-by-day itinerary plus
// per-day tips call.
func BuildPlanPrompt(in *model.ItineraryInput) string {
	pace := 3
	if in.Pace > 0 {
		pace = in.Pace
	}
	stops := StopsPerDay(pace)

	dateLine := fmt.Sprintf("Trip dates: %s to %s (inclusive)", in.StartDate, in.EndDate)
	if in.NoDates {
		dateLine = fmt.Sprintf("Plan for %d day(s).", in.StayDays)
	}

	companion := strings.ReplaceAll(orDefault(in.CompanionType, "unspecified"), "_", " ")

	budget := "n/a"
	if in.Budget.Value != "" {
		budget = in.Budget.Value
	}
	if in.Budget.Currency != "" {
		budget += " " + in.Budget.Currency
	}

	return strings.TrimSpace(fmt.Sprintf(`
You are a travel route planner. Produce an ordered, neighborhood-clustered plan, and concise per-day tips.

Input:
- City: %s
- Country: %s
- %s
- Traveling with: %s
- Interests: %s
- Mobility: %s
- Pace (1-5): %d
- Budget per day: %s
- Extra requests: %s

Rules:
- Distribute activities across %d day(s) with realistic timing & compact routing.
- "name" MUST be ONLY the exact POI/place name as typed in Google Maps (no instructions; no multiple places).
- Provide lat & lng. If uncertain, choose a reasonable approximate point for the named place.
- For EACH day, produce %s stops.
- Per-day tips must reflect the day's route and places (routing, best windows, crowd patterns, money/time savers).
- Keep descriptions short (<= 20 words); keep tips concise (2-3 sentences total per day).

Output ONLY valid JSON:

{
  "itinerary": [
    {
      "name": "POI name only",
      "description": "very short",
      "day": number,
      "time": "HH:MM",
      "lat": number,
      "lng": number
    }
  ],
  "day_tips": {
    "1": "2-3 sentences with practical advice for day 1",
    "2": "..."
  }
}`,
		in.City, in.Country, dateLine, companion,
		joinOr(in.Categories, "none"), joinOr(in.Mobility, "unspecified"),
		pace, budget, orDefault(in.ExtraRequests, "none"),
		in.StayDays, stops))
}

// BuildCityTipsPrompt produces the prompt for category-keyed city-level
// tips. With no tip focus selected the call is skippable; the returned
// prompt then just pins an empty object.
func BuildCityTipsPrompt(in *model.ItineraryInput) string {
	selected := make([]string, 0, len(in.TipFocus))
	for _, f := range in.TipFocus {
		if f != "" {
			selected = append(selected, f)
		}
	}
	if len(selected) == 0 {
		return `Output ONLY valid JSON: { "city_tips": {} }`
	}

	keys := make([]string, len(selected))
	for i, k := range selected {
		keys[i] = fmt.Sprintf("%q: [\"tip 1\", \"tip 2\"]", k)
	}

	return strings.TrimSpace(fmt.Sprintf(`
You are a travel advisor. Provide city-level tips only for %s, %s.

Rules (STRICT):
- Include tips ONLY for these categories: %s.
- The JSON MUST contain exactly these keys and no others.
- Tips must be specific and actionable (place names, stations/lines, areas, time/money details).

Output ONLY valid JSON with exactly these keys:
{
  "city_tips": {
    %s
  }
}`,
		in.City, in.Country, strings.Join(selected, ", "),
		strings.Join(keys, ",\n    ")))
}
