package audithttp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/climatewatch/auditview/internal/audit"
	"github.com/climatewatch/auditview/internal/platform/httpx"
	"github.com/climatewatch/auditview/internal/shared"
	"github.com/climatewatch/auditview/internal/view"
)

const (
	tablePath = "/audit"

	sessionKeyPage     = "audit.page"
	sessionKeySize     = "audit.size"
	sessionKeyExpanded = "audit.expanded"
)

// Invalidator drops cached audit pages.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Handler serves the audit table for browser sessions.
type Handler struct {
	logger      *slog.Logger
	sessions    *audit.Sessions
	templates   *view.Engine
	csrf        *shared.CSRFManager
	invalidator Invalidator
	validate    *validator.Validate
}

// NewHandler builds an audit table handler. invalidator may be nil.
func NewHandler(logger *slog.Logger, sessions *audit.Sessions, templates *view.Engine, csrf *shared.CSRFManager, invalidator Invalidator) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:      logger,
		sessions:    sessions,
		templates:   templates,
		csrf:        csrf,
		invalidator: invalidator,
		validate:    validator.New(),
	}
}

type pageForm struct {
	Page *int   `validate:"omitempty,gte=0"`
	Nav  string `validate:"omitempty,oneof=prev next"`
}

type sizeForm struct {
	Size int `validate:"required,oneof=10 20 50 100"`
}

type toggleForm struct {
	ID string `validate:"required,max=256"`
}

func (h *Handler) handleTable(w http.ResponseWriter, r *http.Request) {
	if h.templates == nil || h.sessions == nil {
		http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
		return
	}
	sess, vm := h.viewModel(r)
	if vm.NeedsLoad() {
		h.logLoad("load audit page", vm.Load(r.Context()))
	}
	data := view.TemplateData{
		Title:       "Audit Events",
		CSRFToken:   h.csrfToken(sess),
		Flash:       sess.PopFlash(),
		CurrentPath: r.URL.Path,
		Data:        vm.Table(),
	}
	if err := h.templates.Render(w, "pages/audit.html", data); err != nil {
		h.handleServerError(w, "render audit table", err)
	}
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		httpx.Problem(w, http.StatusNotImplemented, "Not Implemented", "")
		return
	}
	_, vm := h.viewModel(r)
	if vm.NeedsLoad() {
		h.logLoad("load audit page", vm.Load(r.Context()))
	}
	httpx.JSON(w, http.StatusOK, vm.Table())
}

func (h *Handler) handlePage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.redirectWithError(w, r, "Invalid request.")
		return
	}
	var form pageForm
	form.Nav = strings.TrimSpace(r.PostFormValue("nav"))
	if raw := strings.TrimSpace(r.PostFormValue("page")); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			h.redirectWithError(w, r, "Page must be a number.")
			return
		}
		form.Page = &page
	}
	if err := h.validate.Struct(form); err != nil || (form.Page == nil && form.Nav == "") {
		h.redirectWithError(w, r, "Invalid page.")
		return
	}

	sess, vm := h.viewModel(r)
	var err error
	switch form.Nav {
	case "prev":
		err = vm.PrevPage(r.Context())
	case "next":
		err = vm.NextPage(r.Context())
	default:
		err = vm.SetPage(r.Context(), *form.Page)
	}
	h.logLoad("change audit page", err)
	h.persist(sess, vm)
	http.Redirect(w, r, tablePath, http.StatusSeeOther)
}

func (h *Handler) handleSize(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.redirectWithError(w, r, "Invalid request.")
		return
	}
	size, err := strconv.Atoi(strings.TrimSpace(r.PostFormValue("size")))
	if err != nil {
		h.redirectWithError(w, r, "Page size must be a number.")
		return
	}
	form := sizeForm{Size: size}
	if err := h.validate.Struct(form); err != nil {
		h.redirectWithError(w, r, "Page size must be one of 10, 20, 50 or 100.")
		return
	}

	sess, vm := h.viewModel(r)
	err = vm.SetPageSize(r.Context(), form.Size)
	if errors.Is(err, audit.ErrInvalidPageSize) {
		h.redirectWithError(w, r, "Page size must be one of 10, 20, 50 or 100.")
		return
	}
	h.logLoad("change audit page size", err)
	h.persist(sess, vm)
	http.Redirect(w, r, tablePath, http.StatusSeeOther)
}

func (h *Handler) handleToggle(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.redirectWithError(w, r, "Invalid request.")
		return
	}
	form := toggleForm{ID: strings.TrimSpace(r.PostFormValue("id"))}
	if err := h.validate.Struct(form); err != nil {
		h.redirectWithError(w, r, "Unknown event.")
		return
	}
	sess, vm := h.viewModel(r)
	vm.ToggleExpanded(form.ID)
	h.persist(sess, vm)
	http.Redirect(w, r, tablePath, http.StatusSeeOther)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if h.invalidator != nil {
		if err := h.invalidator.Invalidate(r.Context()); err != nil {
			h.logger.Warn("invalidate audit cache", slog.Any("error", err))
		}
	}
	sess, vm := h.viewModel(r)
	h.logLoad("refresh audit page", vm.Refresh(r.Context()))
	h.persist(sess, vm)
	http.Redirect(w, r, tablePath, http.StatusSeeOther)
}

// viewModel returns the session and its view model, restoring saved state on
// first use after a restart.
func (h *Handler) viewModel(r *http.Request) (*shared.Session, *audit.TableViewModel) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		sess = shared.NewSession()
	}
	vm, created := h.sessions.Get(sess.ID)
	if created && sess.Has(sessionKeySize) {
		page, _ := strconv.Atoi(sess.Get(sessionKeyPage))
		size, _ := strconv.Atoi(sess.Get(sessionKeySize))
		var expanded []string
		if raw := sess.Get(sessionKeyExpanded); raw != "" {
			if err := json.Unmarshal([]byte(raw), &expanded); err != nil {
				h.logger.Warn("decode expanded rows", slog.Any("error", err))
			}
		}
		vm.Restore(page, size, expanded)
	}
	return sess, vm
}

func (h *Handler) persist(sess *shared.Session, vm *audit.TableViewModel) {
	state := vm.Snapshot()
	sess.Set(sessionKeyPage, strconv.Itoa(state.Page))
	sess.Set(sessionKeySize, strconv.Itoa(state.Size))
	expanded, err := json.Marshal(vm.ExpandedIDs())
	if err != nil {
		h.logger.Warn("encode expanded rows", slog.Any("error", err))
		return
	}
	sess.Set(sessionKeyExpanded, string(expanded))
}

func (h *Handler) csrfToken(sess *shared.Session) string {
	if h.csrf == nil {
		return ""
	}
	return h.csrf.Token(sess)
}

func (h *Handler) logLoad(op string, err error) {
	if err == nil || errors.Is(err, audit.ErrSuperseded) || errors.Is(err, context.Canceled) {
		return
	}
	h.logger.Warn(op, slog.String("kind", audit.ErrorKind(err)), slog.Any("error", err))
}

func (h *Handler) redirectWithError(w http.ResponseWriter, r *http.Request, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "error", Message: message})
	}
	http.Redirect(w, r, tablePath, http.StatusSeeOther)
}

func (h *Handler) handleServerError(w http.ResponseWriter, message string, err error) {
	if h.logger != nil {
		h.logger.Error(message, slog.Any("error", err))
	}
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
