// Package web serves the operator dashboard: the Prediction, Report, Q&A and
// Reports tabs, login, and a CSV export of saved reports.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/crimson-sun/nocdash/internal/auth"
	"github.com/crimson-sun/nocdash/internal/engine"
	"github.com/crimson-sun/nocdash/internal/engine/rules"
	"github.com/crimson-sun/nocdash/internal/model"
	"github.com/crimson-sun/nocdash/internal/session"
	"github.com/crimson-sun/nocdash/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

// Assessor classifies readings and drafts reports. *engine.Engine satisfies it.
type Assessor interface {
	Catalog() *rules.Catalog
	Assess(profile string, r model.Reading) (engine.Assessment, error)
	Draft(a engine.Assessment) (string, error)
}

// ReportStore is the read side of the report store.
type ReportStore interface {
	List(ctx context.Context, f store.Filter) ([]model.Report, error)
	Get(ctx context.Context, id int64) (model.Report, error)
	Count(ctx context.Context, f store.Filter) (int, error)
	Delete(ctx context.Context, id int64) error
	Check(ctx context.Context) error
}

// Saver persists a report. *pipeline.Pipeline satisfies it.
type Saver interface {
	Save(ctx context.Context, r model.Report) (model.Report, error)
}

// Asker answers operator questions about a reading. *qa.Client satisfies it.
type Asker interface {
	Ask(ctx context.Context, p *rules.Profile, r model.Reading, v model.Verdict, question string) (string, error)
}

// Authenticator checks credentials and session tokens. *auth.Manager
// satisfies it.
type Authenticator interface {
	Authenticate(username, password string) (auth.Role, error)
	Issue(id auth.Identity) (string, time.Time, error)
	Parse(token string) (auth.Identity, error)
}

// Deps are the collaborators a Server needs.
type Deps struct {
	Engine   Assessor
	Store    ReportStore
	Saver    Saver
	Asker    Asker // nil disables the Q&A tab
	Sessions *session.Manager
	Auth     Authenticator // nil disables login; the operator acts as admin

	CORSOrigins []string
}

// Server renders the dashboard.
type Server struct {
	engine   Assessor
	store    ReportStore
	saver    Saver
	asker    Asker
	sessions *session.Manager
	auth     Authenticator
	origins  []string
	pages    map[string]*template.Template
}

var pageFiles = []string{"predict.html", "report.html", "qa.html", "reports.html", "detail.html", "login.html"}

// New validates deps and parses the page templates.
func New(d Deps) (*Server, error) {
	var errs []error
	if d.Engine == nil {
		errs = append(errs, errors.New("engine is nil"))
	}
	if d.Store == nil {
		errs = append(errs, errors.New("store is nil"))
	}
	if d.Saver == nil {
		errs = append(errs, errors.New("saver is nil"))
	}
	if d.Sessions == nil {
		errs = append(errs, errors.New("session manager is nil"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("web: %w", err)
	}

	s := &Server{
		engine:   d.Engine,
		store:    d.Store,
		saver:    d.Saver,
		asker:    d.Asker,
		sessions: d.Sessions,
		auth:     d.Auth,
		origins:  d.CORSOrigins,
		pages:    make(map[string]*template.Template, len(pageFiles)),
	}
	for _, name := range pageFiles {
		t, err := template.New(name).ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("web: parse %s: %w", name, err)
		}
		s.pages[name] = t
	}
	return s, nil
}

// Handler returns the routed handler, wrapped in CORS when origins are set.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Get("/login", s.handleLoginForm)
	r.Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(s.identify)

		r.Get("/", s.handlePredictForm)
		r.Post("/profile", s.handleProfile)
		r.Post("/predict", s.handlePredict)
		r.Get("/report", s.handleReportForm)
		r.Post("/report/save", s.handleSave)
		r.Get("/qa", s.handleQAForm)
		r.Post("/qa", s.handleAsk)
		r.Get("/reports", s.handleReports)
		r.Get("/reports.csv", s.handleExport)
		r.Get("/reports/{id}", s.handleReportDetail)
		r.With(requireDelete).Post("/reports/{id}/delete", s.handleDelete)
	})

	if len(s.origins) == 0 {
		return r
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}
