package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"recordbase.org/internal/auth"
)

// credentialFields pulls the dedicated account fields out of a free-form
// request body; everything left over becomes the profile.
func credentialFields(body map[string]any) (email, phone, password string, extra map[string]any) {
	str := func(key string) string {
		v, _ := body[key].(string)
		return strings.TrimSpace(v)
	}
	email = str("email")
	phone = str("phone")
	password, _ = body["password"].(string)

	extra = make(map[string]any, len(body))
	for k, v := range body {
		switch k {
		case "email", "phone", "password":
			continue
		}
		extra[k] = v
	}
	return email, phone, password, extra
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	tenant, ok := auth.TenantFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing api_key header")
		return
	}

	var body map[string]any
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email, phone, password, extra := credentialFields(body)

	u, pair, err := a.auth.Register(r.Context(), tenant, email, phone, password, extra)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	a.audit(r.Context(), "user.register", map[string]any{"user_id": u.ID})
	writeJSON(w, http.StatusCreated, map[string]any{
		"user":         u.Public(),
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	tenant, ok := auth.TenantFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing api_key header")
		return
	}

	var body map[string]any
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email, phone, password, _ := credentialFields(body)

	pair, err := a.auth.Login(r.Context(), tenant, email, phone, password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	a.audit(r.Context(), "user.login", nil)
	writeJSON(w, http.StatusOK, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	tenant, ok := auth.TenantFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing api_key header")
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, r, http.StatusBadRequest, "refreshToken is required")
		return
	}

	access, err := a.auth.Refresh(r.Context(), tenant, req.RefreshToken)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accessToken": access})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		u, err := a.users.Find(r.Context(), ident.Tenant, ident.UserID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, u.Public())
	case http.MethodPut:
		var patch map[string]any
		if err := decodeJSON(w, r, &patch); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		u, err := a.auth.UpdateProfile(r.Context(), ident.Tenant, ident.UserID, patch)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		a.audit(r.Context(), "user.profile.update", map[string]any{"user_id": u.ID})
		writeJSON(w, http.StatusOK, u.Public())
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, "account already exists")
	case errors.Is(err, auth.ErrBadCredentials):
		writeError(w, r, http.StatusUnauthorized, "bad credentials")
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "user not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
