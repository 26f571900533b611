package web

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/crimson-sun/nocdash/internal/auth"
	"github.com/crimson-sun/nocdash/internal/engine"
	"github.com/crimson-sun/nocdash/internal/engine/composer"
	"github.com/crimson-sun/nocdash/internal/engine/rules"
	"github.com/crimson-sun/nocdash/internal/model"
	"github.com/crimson-sun/nocdash/internal/store"
)

type tab struct {
	Href   string
	Label  string
	Active bool
}

// base carries what every page layout needs.
type base struct {
	Title       string
	Tab         string // "" hides the tab bar
	Error       string
	Notice      string
	User        string
	Role        auth.Role
	AuthEnabled bool
}

func (b base) Tabs() []tab {
	tabs := []tab{
		{Href: "/", Label: "Prediction"},
		{Href: "/report", Label: "Report Generator"},
		{Href: "/qa", Label: "Q&A"},
		{Href: "/reports", Label: "View Reports"},
	}
	for i := range tabs {
		tabs[i].Active = tabs[i].Href == b.Tab
	}
	return tabs
}

func (s *Server) base(r *http.Request, tab, title string) base {
	b := base{Title: title, Tab: tab, AuthEnabled: s.auth != nil}
	if id, ok := auth.FromContext(r.Context()); ok {
		b.User = id.Username
		b.Role = id.Role
	}
	return b
}

// render executes a page into a buffer so template errors never produce a
// half-written response.
func (s *Server) render(w http.ResponseWriter, page string, status int, data any) {
	t, ok := s.pages[page]
	if !ok {
		slog.Error("unknown page", "page", page)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		slog.Error("render page", "page", page, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

type profileOption struct {
	Name     string
	Title    string
	Selected bool
}

func (s *Server) profileOptions(selected string) []profileOption {
	cat := s.engine.Catalog()
	var out []profileOption
	for _, name := range cat.Names() {
		p, _ := cat.Lookup(name)
		out = append(out, profileOption{Name: name, Title: p.Title, Selected: name == selected})
	}
	return out
}

type fieldView struct {
	Name     string
	Label    string
	Unit     string
	Value    string
	Min      string
	Max      string
	Step     string
	Flag     bool
	On       bool
	OnLabel  string
	OffLabel string
}

// fieldViews renders the profile's inputs, taking each value from value.
func fieldViews(p *rules.Profile, value func(name string) string) []fieldView {
	var out []fieldView
	for _, f := range p.FieldSpecs() {
		v := fieldView{
			Name:     f.Name,
			Label:    f.Label,
			Unit:     f.Unit,
			Value:    value(f.Name),
			Min:      formatNumber(f.Min),
			Max:      formatNumber(f.Max),
			Step:     "any",
			Flag:     f.Kind == model.Flag,
			OnLabel:  f.OnLabel,
			OffLabel: f.OffLabel,
		}
		if f.Kind == model.Integer {
			v.Step = "1"
		}
		v.On = v.Flag && v.Value == "1"
		out = append(out, v)
	}
	return out
}

func readingValue(r model.Reading) func(string) string {
	return func(name string) string {
		v, ok := r.Get(name)
		if !ok {
			return ""
		}
		return formatNumber(v)
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

type metricView struct {
	Label string
	Value string
}

func metricViews(p *rules.Profile, r model.Reading) []metricView {
	var out []metricView
	for _, f := range p.FieldSpecs() {
		v, ok := r.Get(f.Name)
		if !ok {
			continue
		}
		out = append(out, metricView{Label: f.Label, Value: composer.FormatValue(f, v)})
	}
	return out
}

type assessmentView struct {
	Verdict      model.Verdict
	Abnormal     bool
	ModelVerdict model.Verdict
	ModelNote    string
	Diagnoses    []string
	Metrics      []metricView
}

func newAssessmentView(p *rules.Profile, a *engine.Assessment) *assessmentView {
	if a == nil {
		return nil
	}
	v := &assessmentView{
		Verdict:      a.Verdict,
		Abnormal:     a.Verdict == model.Abnormal,
		ModelVerdict: a.ModelVerdict,
		Metrics:      metricViews(p, a.Reading),
	}
	if a.ModelErr != nil {
		v.ModelNote = "Classifier unavailable, showing threshold verdict only."
	}
	for _, rule := range a.Fired {
		v.Diagnoses = append(v.Diagnoses, composer.DiagnosisLine(rule, a.Reading))
	}
	return v
}

type reportView struct {
	ID       int64
	Created  string
	Profile  string
	Verdict  model.Verdict
	Abnormal bool
	Body     string
	Feedback string
}

func newReportView(r model.Report) reportView {
	v := reportView{
		ID:       r.ID,
		Profile:  r.Profile,
		Verdict:  r.Verdict,
		Abnormal: r.Verdict == model.Abnormal,
		Body:     r.Body,
	}
	if !r.CreatedAt.IsZero() {
		v.Created = r.CreatedAt.Format(store.TimestampLayout)
	}
	if r.Feedback != nil {
		v.Feedback = *r.Feedback
	}
	return v
}

type predictPage struct {
	base
	Profiles     []profileOption
	Profile      string
	ProfileTitle string
	Fields       []fieldView
	Assessment   *assessmentView
}

type reportPage struct {
	base
	HasAssessment bool
	ProfileTitle  string
	Verdict       model.Verdict
	Body          string
	Feedback      string
}

type qaPage struct {
	base
	HasAssessment bool
	ProfileTitle  string
	Verdict       model.Verdict
	Metrics       []metricView
	Question      string
	Answer        string
}

type reportsPage struct {
	base
	Reports   []reportView
	Query     string
	Verdict   string
	Profile   string
	Profiles  []profileOption
	Total     int
	Abnormal  int
	CanDelete bool
	ExportURL string
}

type detailPage struct {
	base
	Report    reportView
	Metrics   []metricView
	CanDelete bool
}

// reportMetrics renders every field present in a saved reading, in registry
// order, so rows without a profile still show their values.
func reportMetrics(r model.Reading) []metricView {
	var out []metricView
	for _, f := range model.Fields() {
		if v, ok := r.Get(f.Name); ok {
			out = append(out, metricView{Label: f.Label, Value: composer.FormatValue(f, v)})
		}
	}
	return out
}

type loginPage struct {
	base
	Username string
}
