package web

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/crimson-sun/nocdash/internal/auth"
	"github.com/crimson-sun/nocdash/internal/collector"
	"github.com/crimson-sun/nocdash/internal/engine/rules"
	"github.com/crimson-sun/nocdash/internal/model"
	"github.com/crimson-sun/nocdash/internal/qa"
	"github.com/crimson-sun/nocdash/internal/session"
	"github.com/crimson-sun/nocdash/internal/store"
)

const noAssessment = "Run a prediction first."

func sessionID(r *http.Request) string {
	id, _ := auth.FromContext(r.Context())
	return id.SessionID
}

// currentProfile resolves the session's profile, falling back to the first
// profile in the catalog when the session names an unknown one.
func (s *Server) currentProfile(sess session.Session) *rules.Profile {
	cat := s.engine.Catalog()
	if p, ok := cat.Lookup(sess.Profile); ok {
		return p
	}
	names := cat.Names()
	if len(names) == 0 {
		return nil
	}
	p, _ := cat.Lookup(names[0])
	return p
}

// --- Prediction ---

func (s *Server) handlePredictForm(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Get(sessionID(r))
	p := s.currentProfile(sess)
	reading := sess.Reading
	if reading == nil {
		reading = collector.Defaults(p)
	}
	page := s.predictPage(r, p, readingValue(reading))
	if sess.Assessment != nil && sess.Assessment.Profile == p.Name {
		page.Assessment = newAssessmentView(p, sess.Assessment)
	}
	s.render(w, "predict.html", http.StatusOK, page)
}

// handleProfile switches the session's profile and clears everything
// collected under the previous one.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	sid := sessionID(r)
	name := r.PostForm.Get("profile")
	if _, ok := s.engine.Catalog().Lookup(name); !ok {
		p := s.currentProfile(s.sessions.Get(sid))
		page := s.predictPage(r, p, readingValue(collector.Defaults(p)))
		page.Error = fmt.Sprintf("Unknown profile %q.", name)
		s.render(w, "predict.html", http.StatusBadRequest, page)
		return
	}
	if s.sessions.Get(sid).Profile != name {
		s.sessions.Update(sid, func(ss *session.Session) {
			ss.Profile = name
			ss.Reading = nil
			ss.Assessment = nil
			ss.Draft = ""
			ss.LastAnswer = ""
		})
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	sid := sessionID(r)
	sess := s.sessions.Get(sid)
	if name := r.PostForm.Get("profile"); name != "" {
		sess.Profile = name
	}
	p, ok := s.engine.Catalog().Lookup(sess.Profile)
	if !ok {
		p = s.currentProfile(sess)
		page := s.predictPage(r, p, readingValue(collector.Defaults(p)))
		page.Error = fmt.Sprintf("Unknown profile %q.", sess.Profile)
		s.render(w, "predict.html", http.StatusBadRequest, page)
		return
	}

	reading, err := collector.Collect(p, r.PostForm.Get)
	if err != nil {
		page := s.predictPage(r, p, r.PostForm.Get)
		page.Error = "Please correct the highlighted values:\n" + err.Error()
		s.render(w, "predict.html", http.StatusUnprocessableEntity, page)
		return
	}

	a, err := s.engine.Assess(p.Name, reading)
	if err == nil {
		var draft string
		draft, err = s.engine.Draft(a)
		if err == nil {
			s.sessions.Update(sid, func(ss *session.Session) {
				ss.Profile = p.Name
				ss.Reading = reading
				ss.Assessment = &a
				ss.Draft = draft
				ss.LastAnswer = ""
			})
			slog.Info("reading assessed", "profile", p.Name, "verdict", a.Verdict, "model_verdict", a.ModelVerdict, "fired", len(a.Fired))
			page := s.predictPage(r, p, readingValue(reading))
			page.Assessment = newAssessmentView(p, &a)
			s.render(w, "predict.html", http.StatusOK, page)
			return
		}
	}

	slog.Warn("assessment failed", "profile", p.Name, "error", err)
	page := s.predictPage(r, p, readingValue(reading))
	page.Error = "Could not assess the reading: " + err.Error()
	s.render(w, "predict.html", http.StatusUnprocessableEntity, page)
}

func (s *Server) predictPage(r *http.Request, p *rules.Profile, value func(string) string) predictPage {
	return predictPage{
		base:         s.base(r, "/", "Prediction"),
		Profiles:     s.profileOptions(p.Name),
		Profile:      p.Name,
		ProfileTitle: p.Title,
		Fields:       fieldViews(p, value),
	}
}

// --- Report generator ---

func (s *Server) handleReportForm(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Get(sessionID(r))
	page := s.reportPage(r, sess)
	if !page.HasAssessment {
		page.Notice = noAssessment
	}
	s.render(w, "report.html", http.StatusOK, page)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	sid := sessionID(r)
	body := r.PostForm.Get("body")
	feedback := r.PostForm.Get("feedback")

	sess := s.sessions.Get(sid)
	if !sess.HasAssessment() {
		page := s.reportPage(r, sess)
		page.Error = noAssessment
		s.render(w, "report.html", http.StatusConflict, page)
		return
	}
	sess = s.sessions.Update(sid, func(ss *session.Session) { ss.Draft = body })

	if strings.TrimSpace(body) == "" {
		page := s.reportPage(r, sess)
		page.Feedback = feedback
		page.Error = "The report text is empty."
		s.render(w, "report.html", http.StatusUnprocessableEntity, page)
		return
	}

	a := sess.Assessment
	saved, err := s.saver.Save(r.Context(), model.Report{
		Profile:  a.Profile,
		Reading:  a.Reading,
		Verdict:  a.Verdict,
		Body:     body,
		Feedback: &feedback,
	})
	if err != nil {
		slog.Error("save report", "error", err)
		page := s.reportPage(r, sess)
		page.Feedback = feedback
		page.Error = "Could not save the report: " + err.Error()
		s.render(w, "report.html", http.StatusInternalServerError, page)
		return
	}
	slog.Info("report saved", "id", saved.ID, "profile", saved.Profile, "verdict", saved.Verdict)
	http.Redirect(w, r, "/reports?saved="+strconv.FormatInt(saved.ID, 10), http.StatusSeeOther)
}

func (s *Server) reportPage(r *http.Request, sess session.Session) reportPage {
	page := reportPage{base: s.base(r, "/report", "Report Generator")}
	if !sess.HasAssessment() {
		return page
	}
	page.HasAssessment = true
	page.Verdict = sess.Assessment.Verdict
	page.Body = sess.Draft
	if p, ok := s.engine.Catalog().Lookup(sess.Assessment.Profile); ok {
		page.ProfileTitle = p.Title
	}
	return page
}

// --- Q&A ---

func (s *Server) handleQAForm(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Get(sessionID(r))
	page := s.qaPage(r, sess)
	switch {
	case s.asker == nil:
		page.Notice = "Q&A is not configured."
	case !page.HasAssessment:
		page.Notice = noAssessment
	}
	s.render(w, "qa.html", http.StatusOK, page)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	sid := sessionID(r)
	question := r.PostForm.Get("question")
	sess := s.sessions.Get(sid)
	page := s.qaPage(r, sess)
	page.Question = question
	page.Answer = ""

	if s.asker == nil {
		page.Error = "Q&A is not configured."
		s.render(w, "qa.html", http.StatusServiceUnavailable, page)
		return
	}
	if !sess.HasAssessment() {
		page.Error = noAssessment
		s.render(w, "qa.html", http.StatusConflict, page)
		return
	}
	p, ok := s.engine.Catalog().Lookup(sess.Assessment.Profile)
	if !ok {
		page.Error = fmt.Sprintf("Unknown profile %q.", sess.Assessment.Profile)
		s.render(w, "qa.html", http.StatusConflict, page)
		return
	}

	answer, err := s.asker.Ask(r.Context(), p, sess.Assessment.Reading, sess.Assessment.Verdict, question)
	if err != nil {
		var ee *qa.EndpointError
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, qa.ErrEmptyQuestion):
			status = http.StatusBadRequest
			page.Error = "Please enter a question."
		case errors.As(err, &ee):
			slog.Warn("qa endpoint failed", "op", ee.Op, "error", ee.Err)
			page.Error = "The assistant could not answer: " + err.Error()
		default:
			page.Error = "The assistant could not answer: " + err.Error()
		}
		s.render(w, "qa.html", status, page)
		return
	}
	s.sessions.Update(sid, func(ss *session.Session) { ss.LastAnswer = answer })
	page.Answer = answer
	s.render(w, "qa.html", http.StatusOK, page)
}

func (s *Server) qaPage(r *http.Request, sess session.Session) qaPage {
	page := qaPage{base: s.base(r, "/qa", "Q&A"), Answer: sess.LastAnswer}
	if !sess.HasAssessment() {
		return page
	}
	page.HasAssessment = true
	page.Verdict = sess.Assessment.Verdict
	if p, ok := s.engine.Catalog().Lookup(sess.Assessment.Profile); ok {
		page.ProfileTitle = p.Title
		page.Metrics = metricViews(p, sess.Assessment.Reading)
	}
	return page
}

// --- Saved reports ---

// filterFromQuery reads q, verdict and profile. An unparsable verdict is
// reported and ignored.
func filterFromQuery(q url.Values) (store.Filter, error) {
	f := store.Filter{Text: q.Get("q"), Profile: q.Get("profile")}
	if raw := q.Get("verdict"); raw != "" {
		v, err := model.ParseVerdict(raw)
		if err != nil {
			return f, err
		}
		f.Verdict = v
	}
	return f, nil
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var notice string
	if id := q.Get("saved"); id != "" {
		notice = "Report #" + id + " saved."
	}
	if id := q.Get("deleted"); id != "" {
		notice = "Report #" + id + " deleted."
	}
	s.renderReports(w, r, notice, "", http.StatusOK)
}

func (s *Server) renderReports(w http.ResponseWriter, r *http.Request, notice, errMsg string, status int) {
	q := r.URL.Query()
	page := reportsPage{
		base:      s.base(r, "/reports", "View Reports"),
		Query:     q.Get("q"),
		Verdict:   q.Get("verdict"),
		Profile:   q.Get("profile"),
		Profiles:  s.profileOptions(q.Get("profile")),
		ExportURL: "/reports.csv",
	}
	page.Notice = notice
	page.Error = errMsg
	page.CanDelete = page.Role.CanDelete()
	if eq := exportQuery(q); eq != "" {
		page.ExportURL += "?" + eq
	}

	f, err := filterFromQuery(q)
	if err != nil {
		page.Error = joinMessages(page.Error, err.Error())
		status = http.StatusBadRequest
	}

	ctx := r.Context()
	reports, err := s.store.List(ctx, f)
	if err != nil {
		slog.Error("list reports", "error", err)
		page.Error = joinMessages(page.Error, "Could not load reports: "+err.Error())
		s.render(w, "reports.html", http.StatusInternalServerError, page)
		return
	}
	for _, rep := range reports {
		page.Reports = append(page.Reports, newReportView(rep))
	}
	if page.Total, err = s.store.Count(ctx, store.Filter{}); err == nil {
		page.Abnormal, err = s.store.Count(ctx, store.Filter{Verdict: model.Abnormal})
	}
	if err != nil {
		slog.Warn("count reports", "error", err)
	}
	s.render(w, "reports.html", status, page)
}

// exportQuery keeps only the filter parameters.
func exportQuery(q url.Values) string {
	out := url.Values{}
	for _, k := range []string{"q", "verdict", "profile"} {
		if v := q.Get(k); v != "" {
			out.Set(k, v)
		}
	}
	return out.Encode()
}

func joinMessages(a, b string) string {
	if a == "" {
		return b
	}
	return a + "\n" + b
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid report id", http.StatusBadRequest)
		return
	}
	if err := s.store.Delete(r.Context(), id); err != nil {
		slog.Error("delete report", "id", id, "error", err)
		s.renderReports(w, r, "", "Could not delete the report: "+err.Error(), http.StatusInternalServerError)
		return
	}
	who, _ := auth.FromContext(r.Context())
	slog.Info("report deleted", "id", id, "user", who.Username)
	http.Redirect(w, r, "/reports?deleted="+strconv.FormatInt(id, 10), http.StatusSeeOther)
}

func (s *Server) handleReportDetail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid report id", http.StatusBadRequest)
		return
	}
	page := detailPage{base: s.base(r, "/reports", fmt.Sprintf("Report #%d", id))}
	page.CanDelete = page.Role.CanDelete()

	rep, err := s.store.Get(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		page.Error = fmt.Sprintf("Report #%d not found.", id)
		s.render(w, "detail.html", http.StatusNotFound, page)
		return
	case err != nil:
		slog.Error("get report", "id", id, "error", err)
		page.Error = "Could not load the report: " + err.Error()
		s.render(w, "detail.html", http.StatusInternalServerError, page)
		return
	}
	page.Report = newReportView(rep)
	page.Metrics = reportMetrics(rep.Reading)
	s.render(w, "detail.html", http.StatusOK, page)
}

var csvHeader = func() []string {
	h := []string{"id", "timestamp", "profile"}
	for _, f := range model.Fields() {
		h = append(h, f.Name)
	}
	return append(h, "status", "report_text", "feedback")
}()

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	reports, err := s.store.List(r.Context(), f)
	if err != nil {
		slog.Error("export reports", "error", err)
		http.Error(w, "could not load reports", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="reports.csv"`)
	cw := csv.NewWriter(w)
	cw.Write(csvHeader)
	for _, rep := range reports {
		v := newReportView(rep)
		row := []string{strconv.FormatInt(rep.ID, 10), v.Created, csvCell(rep.Profile)}
		for _, fld := range model.Fields() {
			if x, ok := rep.Reading.Get(fld.Name); ok {
				row = append(row, formatNumber(x))
			} else {
				row = append(row, "")
			}
		}
		row = append(row, string(rep.Verdict), csvCell(rep.Body), csvCell(v.Feedback))
		if err := cw.Write(row); err != nil {
			slog.Warn("export write failed", "error", err)
			return
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		slog.Warn("export flush failed", "error", err)
	}
}

// csvCell keeps operator text from being read as a formula by spreadsheet
// applications.
func csvCell(s string) string {
	if s != "" && strings.ContainsRune("=+-@\t\r", rune(s[0])) {
		return "'" + s
	}
	return s
}

// --- Login ---

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.render(w, "login.html", http.StatusOK, loginPage{base: s.base(r, "", "Log in")})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	username := strings.TrimSpace(r.PostForm.Get("username"))
	role, err := s.auth.Authenticate(username, r.PostForm.Get("password"))
	if err != nil {
		slog.Warn("login failed", "user", username)
		page := loginPage{base: s.base(r, "", "Log in"), Username: username}
		page.Error = "Invalid username or password."
		s.render(w, "login.html", http.StatusUnauthorized, page)
		return
	}

	token, exp, err := s.auth.Issue(auth.Identity{Username: username, Role: role, SessionID: session.NewID()})
	if err != nil {
		slog.Error("issue token", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	slog.Info("login", "user", username, "role", role)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		if c, err := r.Cookie(sessionCookie); err == nil {
			s.sessions.Delete(c.Value)
		}
		clearCookie(w, sessionCookie)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if c, err := r.Cookie(tokenCookie); err == nil {
		if id, err := s.auth.Parse(c.Value); err == nil {
			s.sessions.Delete(id.SessionID)
			slog.Info("logout", "user", id.Username)
		}
	}
	clearCookie(w, tokenCookie)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// --- Health ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.store.Check(r.Context()); err != nil {
		slog.Error("health check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"status": "ok", "sessions": s.sessions.Len()})
}
