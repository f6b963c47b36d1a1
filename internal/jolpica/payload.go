package jolpica

// Wire types for the Ergast-compatible MRData envelope.
//
// The API renders numbers as JSON strings ("position": "4"), so numeric
// fields stay string here and are parsed during transform, where a bad value
// maps to null instead of failing the batch.

// Response is the top-level payload of every JSON endpoint.
type Response struct {
	MRData MRData `json:"MRData"`
}

type MRData struct {
	Total          string          `json:"total"`
	RaceTable      *RaceTable      `json:"RaceTable,omitempty"`
	StandingsTable *StandingsTable `json:"StandingsTable,omitempty"`
}

type RaceTable struct {
	Season string `json:"season"`
	Round  string `json:"round"`
	Races  []Race `json:"Races"`
}

type Race struct {
	Season   string `json:"season"`
	Round    string `json:"round"`
	RaceName string `json:"raceName"`
	Date     string `json:"date"`

	Results           []Result            `json:"Results,omitempty"`
	SprintResults     []Result            `json:"SprintResults,omitempty"`
	QualifyingResults []QualifyingResult  `json:"QualifyingResults,omitempty"`
}

type Result struct {
	Position     string      `json:"position"`
	PositionText string      `json:"positionText"`
	Points       string      `json:"points"`
	Grid         string      `json:"grid"`
	Laps         string      `json:"laps"`
	Status       string      `json:"status"`
	Driver       DriverRef   `json:"Driver"`
	Constructor  TeamRef     `json:"Constructor"`
	Time         *ResultTime `json:"Time,omitempty"`
	FastestLap   *FastestLap `json:"FastestLap,omitempty"`
}

type QualifyingResult struct {
	Position    string    `json:"position"`
	Driver      DriverRef `json:"Driver"`
	Constructor TeamRef   `json:"Constructor"`
	Q1          string    `json:"Q1,omitempty"`
	Q2          string    `json:"Q2,omitempty"`
	Q3          string    `json:"Q3,omitempty"`
}

type DriverRef struct {
	DriverID string `json:"driverId"`
	Code     string `json:"code"`
}

type TeamRef struct {
	ConstructorID string `json:"constructorId"`
}

type ResultTime struct {
	Millis string `json:"millis"`
	Time   string `json:"time"`
}

type FastestLap struct {
	Rank string   `json:"rank"`
	Lap  string   `json:"lap"`
	Time *LapTime `json:"Time,omitempty"`
}

type LapTime struct {
	Time string `json:"time"`
}

type StandingsTable struct {
	Season         string          `json:"season"`
	StandingsLists []StandingsList `json:"StandingsLists"`
}

type StandingsList struct {
	Season               string                `json:"season"`
	Round                string                `json:"round"`
	DriverStandings      []DriverStanding      `json:"DriverStandings,omitempty"`
	ConstructorStandings []ConstructorStanding `json:"ConstructorStandings,omitempty"`
}

type DriverStanding struct {
	Position string    `json:"position"`
	Points   string    `json:"points"`
	Wins     string    `json:"wins"`
	Driver   DriverRef `json:"Driver"`
}

type ConstructorStanding struct {
	Position    string  `json:"position"`
	Points      string  `json:"points"`
	Wins        string  `json:"wins"`
	Constructor TeamRef `json:"Constructor"`
}

// Races returns the race list, tolerating an absent RaceTable.
func (r *Response) Races() []Race {
	if r == nil || r.MRData.RaceTable == nil {
		return nil
	}
	return r.MRData.RaceTable.Races
}

// Standings returns the first standings list, or nil when the payload carries
// none (not-found sentinel, or a round with no standings yet).
func (r *Response) Standings() *StandingsList {
	if r == nil || r.MRData.StandingsTable == nil {
		return nil
	}
	if len(r.MRData.StandingsTable.StandingsLists) == 0 {
		return nil
	}
	return &r.MRData.StandingsTable.StandingsLists[0]
}

// emptyResponse is the well-defined "no data" shape returned for 404s,
// mirroring what the API itself returns for empty result sets.
func emptyResponse() *Response {
	return &Response{MRData: MRData{
		Total:     "0",
		RaceTable: &RaceTable{Races: []Race{}},
	}}
}
