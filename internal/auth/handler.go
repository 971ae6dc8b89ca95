package auth

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/contacts/internal/platform/httpx"
)

const (
	emailActionLimit  = 1
	emailActionWindow = 10 * time.Second
	maxAvatarBytes    = 5 << 20
)

// Handler wires HTTP endpoints for account flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	resolver  *Resolver
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, resolver *Resolver) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		resolver:  resolver,
		validator: validator.New(),
	}
}

// MountRoutes registers /api/auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/signup", h.handleSignup)
	r.Post("/login", h.handleLogin)
	r.Get("/refresh_token", h.handleRefresh)
	r.With(h.resolver.Middleware).Post("/logout", h.handleLogout)

	r.With(emailActionLimiter()).Get("/confirmed_email/{token}", h.handleConfirmEmail)
	r.With(emailActionLimiter()).Post("/request_email", h.handleRequestEmail)
	r.With(emailActionLimiter()).Post("/recovery_password", h.handleRequestRecovery)
	r.With(emailActionLimiter()).Post("/recovered_password/{token}", h.handleCompleteRecovery)
}

// MountUserRoutes registers /api/users routes; every route needs a bearer token.
func (h *Handler) MountUserRoutes(r chi.Router) {
	r.Use(h.resolver.Middleware)
	r.Get("/me", h.handleMe)
	r.Patch("/avatar", h.handleAvatar)
}

func emailActionLimiter() func(http.Handler) http.Handler {
	return httprate.Limit(emailActionLimit, emailActionWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "slow down and retry later")
		}),
	)
}

type loginRequest struct {
	Username string `json:"username" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type recoveryRequest struct {
	NewPassword string `json:"new_password" validate:"required,min=6,max=72"`
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var input SignupInput
	if !h.decode(w, r, &input) {
		return
	}
	account, err := h.service.Signup(r.Context(), input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if isJSON(r) {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed form body")
			return
		}
		req = loginRequest{Username: r.PostFormValue("username"), Password: r.PostFormValue("password")}
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	pair, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pair)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token := BearerToken(r)
	if token == "" {
		w.Header().Set("WWW-Authenticate", "Bearer")
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", ErrMissingCredentials.Error())
		return
	}
	pair, err := h.service.Refresh(r.Context(), token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pair)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context(), AccountFromContext(r.Context())); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleConfirmEmail(w http.ResponseWriter, r *http.Request) {
	msg, err := h.service.ConfirmEmail(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, msg)
}

func (h *Handler) handleRequestEmail(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decode(w, r, &req) {
		return
	}
	msg, err := h.service.RequestConfirmation(r.Context(), req.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, msg)
}

func (h *Handler) handleRequestRecovery(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decode(w, r, &req) {
		return
	}
	msg, err := h.service.RequestRecovery(r.Context(), req.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, msg)
}

func (h *Handler) handleCompleteRecovery(w http.ResponseWriter, r *http.Request) {
	var req recoveryRequest
	if !h.decode(w, r, &req) {
		return
	}
	msg, err := h.service.CompleteRecovery(r.Context(), chi.URLParam(r, "token"), req.NewPassword)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, msg)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, AccountFromContext(r.Context()))
}

func (h *Handler) handleAvatar(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarBytes+1024)
	if err := r.ParseMultipartForm(maxAvatarBytes); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "expected multipart form with a file field")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "file is required")
		return
	}
	defer file.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "file is empty")
		return
	}
	if !strings.HasPrefix(http.DetectContentType(head[:n]), "image/") {
		httpx.Problem(w, http.StatusUnsupportedMediaType, "Unsupported Media Type", "avatar must be an image")
		return
	}
	account, err := h.service.UpdateAvatar(r.Context(), AccountFromContext(r.Context()), io.MultiReader(bytes.NewReader(head[:n]), file))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", ErrConflict.Error())
	case errors.Is(err, ErrInvalidEmail), errors.Is(err, ErrInvalidPassword),
		errors.Is(err, ErrEmailNotConfirmed), errors.Is(err, ErrUnauthorized):
		w.Header().Set("WWW-Authenticate", "Bearer")
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", rootMessage(err))
	case errors.Is(err, ErrVerification), errors.Is(err, ErrRecovering):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", rootMessage(err))
	case errors.Is(err, ErrInvalidToken):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable Entity", ErrInvalidToken.Error())
	case errors.Is(err, ErrEmptyPassword):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", ErrEmptyPassword.Error())
	default:
		h.logger.Error("auth request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// rootMessage returns the message of the first auth sentinel in err's chain.
func rootMessage(err error) string {
	for _, sentinel := range []error{ErrInvalidEmail, ErrInvalidPassword, ErrEmailNotConfirmed, ErrUnauthorized, ErrVerification, ErrRecovering} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}
