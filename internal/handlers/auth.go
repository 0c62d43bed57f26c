package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/pmorelli/braindump/internal/database"
	"github.com/pmorelli/braindump/internal/middleware"
	"github.com/pmorelli/braindump/internal/services/oidc"
	"github.com/pmorelli/braindump/internal/services/todoist"
)

const oauthStateCookie = "todoist_oauth_state"

// AuthHandler handles authentication and tracker connection requests
type AuthHandler struct {
	oidcProvider *oidc.Provider
	oidcName     string
	oauthClient  *todoist.OAuthClient
	credRepo     database.CredentialRepositoryInterface
	frontendURL  string
	logger       *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(
	oidcProvider *oidc.Provider,
	oidcName string,
	oauthClient *todoist.OAuthClient,
	credRepo database.CredentialRepositoryInterface,
	frontendURL string,
	logger *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		oidcProvider: oidcProvider,
		oidcName:     oidcName,
		oauthClient:  oauthClient,
		credRepo:     credRepo,
		frontendURL:  frontendURL,
		logger:       logger,
	}
}

// RegisterRoutes registers auth routes on the given router
// The router should already have the /auth prefix
func (h *AuthHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/oidc/login", h.GetOIDCLogin).Methods("GET")
	r.HandleFunc("/me", h.GetMe).Methods("GET")
	r.HandleFunc("/todoist/connect", h.ConnectTodoist).Methods("GET")
	r.HandleFunc("/todoist/callback", h.TodoistCallback).Methods("GET")
	r.HandleFunc("/todoist/status", h.TodoistStatus).Methods("GET")
}

// GetOIDCLogin returns OIDC configuration for frontend
func (h *AuthHandler) GetOIDCLogin(w http.ResponseWriter, r *http.Request) {
	loginConfig, err := h.oidcProvider.GetLoginConfig(r.Context(), h.oidcName)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Failed to get OIDC configuration", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, loginConfig)
}

// GetMe returns current user information
func (h *AuthHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	respondJSON(w, http.StatusOK, user)
}

// TodoistStatus reports whether the user has a Todoist account connected
func (h *AuthHandler) TodoistStatus(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	_, err := h.credRepo.GetAccessToken(r.Context(), user.ID)
	respondJSON(w, http.StatusOK, map[string]bool{"connected": err == nil})
}

// ConnectTodoist redirects the user to Todoist's consent screen
func (h *AuthHandler) ConnectTodoist(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	if !h.oauthClient.Configured() {
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Todoist integration is not configured")
		return
	}

	state, err := randomState()
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to generate state")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.oauthClient.AuthCodeURL(state), http.StatusFound)
}

// TodoistCallback exchanges the authorization code and stores the access token
func (h *AuthHandler) TodoistCallback(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Authorization was denied")
		return
	}

	state := r.URL.Query().Get("state")
	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || cookie.Value != state {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid OAuth state")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Missing authorization code")
		return
	}

	ctx := r.Context()
	token, err := h.oauthClient.ExchangeCode(ctx, code)
	if err != nil {
		h.logger.Error("todoist_code_exchange_failed",
			zap.String("user_id", user.ID.String()),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusBadGateway, "Bad Gateway", "Failed to exchange authorization code")
		return
	}

	if err := h.credRepo.SetAccessToken(ctx, user.ID, token.AccessToken); err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to store access token")
		return
	}

	// Clear the state cookie
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Value: "", Path: "/", MaxAge: -1})

	h.logger.Info("todoist_account_connected",
		zap.String("user_id", user.ID.String()),
	)

	http.Redirect(w, r, h.frontendURL+"/settings?todoist=connected", http.StatusFound)
}

func randomState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
