package api

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cellcomm/cellan/internal/model"
	"github.com/cellcomm/cellan/internal/viewstate"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"date": formatDate,
}).ParseFS(templateFS, "templates/*.html"))

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04")
}

type pages struct {
	cfg    RouterConfig
	logger *zap.Logger
}

func newPages(cfg RouterConfig, logger *zap.Logger) *pages {
	return &pages{cfg: cfg, logger: logger.Named("pages")}
}

type layoutData struct {
	Title  string
	Prefix string
}

type mainData struct {
	layoutData
	Error     string
	Encodings []*model.Encoding
}

type encitsData struct {
	layoutData
	EncodingID string
	Iteration  int
	Iterations []int
	Colorscale string
	MarkerSize float64
	Threshold  int
}

func (p *pages) layout() layoutData {
	title := p.cfg.Title
	if title == "" {
		title = "cellan"
	}
	return layoutData{Title: title, Prefix: p.cfg.PathPrefix}
}

// root redirects to the default encoding, or lists all encodings when an
// error is being reported or the default encoding does not exist.
func (p *pages) root(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if query.Get("error") == "" && p.cfg.DefaultEncoding != "" {
		enc, found, err := p.cfg.Queries.GetEncoding(r.Context(), p.cfg.DefaultEncoding)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if found {
			http.Redirect(w, r, p.iterationPath(enc.ID, strconv.Itoa(enc.DefaultIteration)), http.StatusSeeOther)
			return
		}
	}

	encodings, err := p.cfg.Queries.ListEncodings(r.Context())
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	p.render(w, http.StatusOK, "main.html", mainData{
		layoutData: p.layout(),
		Error:      errorMessage(query),
		Encodings:  encodings,
	})
}

// errorMessage turns the error query of a redirect into readable text.
func errorMessage(query url.Values) string {
	switch query.Get("error") {
	case "":
		return ""
	case "enc":
		return fmt.Sprintf("Encoding not found! (id: %s)", query.Get("eid"))
	case "it":
		return fmt.Sprintf("Iteration not found! (encoding: %s, iteration: %s)", query.Get("eid"), query.Get("it"))
	default:
		return "Unknown error!"
	}
}

func (p *pages) encoding(w http.ResponseWriter, r *http.Request) {
	eid := chi.URLParam(r, "encId")
	enc, ok := p.lookupEncoding(w, r, eid)
	if !ok {
		return
	}
	http.Redirect(w, r, p.iterationPath(eid, strconv.Itoa(enc.DefaultIteration)), http.StatusSeeOther)
}

func (p *pages) iteration(w http.ResponseWriter, r *http.Request) {
	eid := chi.URLParam(r, "encId")
	segment := chi.URLParam(r, "it")
	enc, ok := p.lookupEncoding(w, r, eid)
	if !ok {
		return
	}

	it, err := strconv.Atoi(segment)
	if err != nil {
		p.redirectIterationError(w, r, eid, segment)
		return
	}
	_, found, err := p.cfg.Queries.GetIteration(r.Context(), eid, it)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !found {
		p.redirectIterationError(w, r, eid, segment)
		return
	}

	iterations := enc.AvailableIterations
	if len(iterations) == 0 {
		iterations = viewstate.DefaultIterationOptions
	}
	p.render(w, http.StatusOK, "encits.html", encitsData{
		layoutData: p.layout(),
		EncodingID: eid,
		Iteration:  it,
		Iterations: iterations,
		Colorscale: p.cfg.Colorscale,
		MarkerSize: p.cfg.MarkerSize,
		Threshold:  p.cfg.Threshold,
	})
}

func (p *pages) lookupEncoding(w http.ResponseWriter, r *http.Request, eid string) (*model.Encoding, bool) {
	enc, found, err := p.cfg.Queries.GetEncoding(r.Context(), eid)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}
	if !found {
		http.Redirect(w, r, p.rootPath()+"?error=enc&eid="+url.QueryEscape(eid), http.StatusSeeOther)
		return nil, false
	}
	return enc, true
}

// redirectIterationError keeps the parameter order error, eid, it.
func (p *pages) redirectIterationError(w http.ResponseWriter, r *http.Request, eid, it string) {
	target := p.rootPath() + "?error=it&eid=" + url.QueryEscape(eid) + "&it=" + url.QueryEscape(it)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (p *pages) rootPath() string {
	if p.cfg.PathPrefix == "" {
		return "/"
	}
	return p.cfg.PathPrefix
}

func (p *pages) iterationPath(eid, it string) string {
	return p.cfg.PathPrefix + "/" + url.PathEscape(eid) + "/" + it
}

// maintenance answers every request with the maintenance page.
func (p *pages) maintenance(http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3600")
		p.render(w, http.StatusServiceUnavailable, "maintenance.html", p.layout())
	})
}

func (p *pages) render(w http.ResponseWriter, status int, name string, data interface{}) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		p.logger.Error("render page", zap.String("template", name), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// staticHandler serves the embedded assets below <prefix>/static/.
func staticHandler(prefix string, maxAge time.Duration) http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	files := http.StripPrefix(prefix+"/static/", http.FileServer(http.FS(sub)))
	cacheControl := fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds()))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", cacheControl)
		files.ServeHTTP(w, r)
	})
}
