// Package presenter projects workflow state into localized view-models.
package presenter

import (
	"strconv"

	"github.com/example/face-match/internal/capture"
	"github.com/example/face-match/internal/locale"
	"github.com/example/face-match/internal/matcher"
)

// Screen names the front-end screen to render.
type Screen string

const (
	ScreenEntry     Screen = "entry"
	ScreenCamera    Screen = "camera"
	ScreenAnalyzing Screen = "analyzing"
	ScreenResults   Screen = "results"
)

// Action is one affordance offered on a screen.
type Action struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Row is one displayable candidate.
type Row struct {
	Rank      int    `json:"rank"`
	ID        string `json:"id"`
	Name      string `json:"name"`
	Score     string `json:"score"`
	ImageURL  string `json:"image_url,omitempty"`
	Category  string `json:"category,omitempty"`
	BestMatch bool   `json:"best_match"`
	Badge     string `json:"badge,omitempty"`
}

// ViewModel is everything the presentation layer needs for one render.
type ViewModel struct {
	Locale   locale.Locale `json:"locale"`
	Screen   Screen        `json:"screen"`
	State    string        `json:"state"`
	Title    string        `json:"title"`
	Subtitle string        `json:"subtitle,omitempty"`
	Preview  string        `json:"preview,omitempty"`
	Error    string        `json:"error,omitempty"`
	Actions  []Action      `json:"actions"`
	Rows     []Row         `json:"rows,omitempty"`
}

// Present is a pure function of its inputs.
func Present(state capture.State, loc locale.Locale, msgs locale.Messages) ViewModel {
	vm := ViewModel{
		Locale: loc,
		State:  state.String(),
		Title:  msgs.Get(locale.Title),
	}

	switch state.Kind {
	case capture.KindAcquiring:
		vm.Screen = ScreenCamera
		vm.Actions = actions(msgs, actionSpec{"capture", locale.CaptureLabel}, actionSpec{"cancel", locale.CancelLabel})
	case capture.KindSubmitting:
		vm.Screen = ScreenAnalyzing
		vm.Subtitle = msgs.Get(locale.AnalyzingLabel)
		vm.Preview = state.Image.Preview
		vm.Actions = []Action{}
	case capture.KindSucceeded:
		vm.Screen = ScreenResults
		vm.Subtitle = msgs.Get(locale.ResultsLabel)
		vm.Preview = state.Image.Preview
		vm.Rows = rows(state.Results, loc, msgs)
		vm.Actions = actions(msgs, actionSpec{"retry", locale.RetryLabel}, actionSpec{"back", locale.BackLabel})
	default:
		vm.Screen = ScreenEntry
		vm.Subtitle = msgs.Get(locale.Subtitle)
		if kind, ok := state.Error(); ok {
			vm.Error = ErrorMessage(kind, msgs)
		}
		vm.Actions = actions(msgs, actionSpec{"camera", locale.CameraLabel}, actionSpec{"gallery", locale.GalleryLabel})
	}
	return vm
}

// ErrorMessage localizes a submission failure.
func ErrorMessage(kind matcher.ErrorKind, msgs locale.Messages) string {
	if kind == matcher.NoFaceDetected {
		return msgs.Get(locale.NoFaceError)
	}
	return msgs.Get(locale.GenericError)
}

// DisplayName prefers the localized name for Uzbek and falls back to the
// canonical name.
func DisplayName(c matcher.Candidate, loc locale.Locale) string {
	if loc == locale.Uzbek && c.LocalizedName != "" {
		return c.LocalizedName
	}
	return c.Name
}

// FormatScore renders a similarity score with one decimal, e.g. "92.3%".
func FormatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', 1, 64) + "%"
}

func rows(results matcher.ResultSet, loc locale.Locale, msgs locale.Messages) []Row {
	out := make([]Row, len(results))
	for i, c := range results {
		out[i] = Row{
			Rank:      i + 1,
			ID:        c.ID,
			Name:      DisplayName(c, loc),
			Score:     FormatScore(c.Score),
			ImageURL:  c.ImageURL,
			Category:  c.Category,
			BestMatch: i == 0,
		}
		if i == 0 {
			out[i].Badge = msgs.Get(locale.BestMatchLabel)
		}
	}
	return out
}

type actionSpec struct {
	id    string
	label locale.MessageID
}

func actions(msgs locale.Messages, specs ...actionSpec) []Action {
	out := make([]Action, len(specs))
	for i, spec := range specs {
		out[i] = Action{ID: spec.id, Label: msgs.Get(spec.label)}
	}
	return out
}
