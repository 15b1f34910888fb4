package harness

// EventKind names a harness progress event.
type EventKind string

const (
	EventFixtureStart EventKind = "fixture_start"
	EventAssertion    EventKind = "assertion"
	EventOutput       EventKind = "output"
	EventFixtureEnd   EventKind = "fixture_end"
	EventSuiteEnd     EventKind = "suite_end"
)

// Event reports progress to an Options.OnEvent observer, such as the live
// monitor. Fields not relevant to Kind are zero.
type Event struct {
	Kind     EventKind `json:"kind"`
	Fixture  string    `json:"fixture,omitempty"`
	Seq      int64     `json:"seq,omitempty"`
	Line     int       `json:"line,omitempty"`
	Text     string    `json:"text,omitempty"`
	Expected string    `json:"expected,omitempty"`
	Actual   string    `json:"actual,omitempty"`
	Pass     bool      `json:"pass"`
	Digest   string    `json:"digest,omitempty"`
	Passed   int       `json:"passed,omitempty"`
	Failed   int       `json:"failed,omitempty"`
}
