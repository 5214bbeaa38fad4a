package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"recordbase.org/internal/auth"
	"recordbase.org/internal/ids"
	"recordbase.org/internal/policy"
	"recordbase.org/internal/query"
)

// requireAdmin gates the /v1/admin surface: a tenant key plus an
// authenticated identity carrying the admin flag.
func (a *API) requireAdmin(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenant, ok := auth.TenantFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing api_key header")
		return "", false
	}
	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return "", false
	}
	if !ident.IsAdmin {
		writeError(w, r, http.StatusForbidden, "admin access required")
		return "", false
	}
	return tenant, true
}

type policyRequest struct {
	Category string `json:"category"`
	Method   string `json:"method"`
	Level    string `json:"level"`
}

func policyJSON(p policy.Policy) map[string]any {
	return map[string]any{
		"category":   p.Category,
		"method":     p.Method,
		"level":      p.Level,
		"created_at": p.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (a *API) handlePolicies(w http.ResponseWriter, r *http.Request) {
	tenant, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req policyRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		level, err := policy.ParseLevel(req.Level)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "level must be one of all, user, admin")
			return
		}
		method, err := policy.ParseMethod(req.Method)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "method must be one of CREATE, READ, UPDATE, DELETE")
			return
		}
		p := policy.Policy{
			Row:       ids.New(),
			Tenant:    tenant,
			Category:  policy.NormalizeCategory(req.Category),
			Method:    method,
			Level:     level,
			CreatedAt: time.Now().UTC(),
		}
		if err := a.policies.Upsert(r.Context(), p); err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		a.audit(r.Context(), "policy.upsert", map[string]any{
			"category": p.Category,
			"method":   p.Method,
			"level":    p.Level,
		})
		writeJSON(w, http.StatusCreated, policyJSON(p))
	case http.MethodGet:
		list, err := a.policies.List(r.Context(), tenant)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		out := make([]map[string]any, 0, len(list))
		for _, p := range list {
			out = append(out, policyJSON(p))
		}
		writeJSON(w, http.StatusOK, map[string]any{"policies": out})
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	tenant, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodPost:
		var body map[string]any
		if err := decodeJSON(w, r, &body); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		email, phone, password, extra := credentialFields(body)
		admin, _ := body["is_admin"].(bool)

		u, _, err := a.auth.Register(r.Context(), tenant, email, phone, password, extra)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		if admin {
			u, err = a.auth.SetAdmin(r.Context(), tenant, u.ID, true)
			if err != nil {
				handleAuthError(w, r, err)
				return
			}
		}
		a.audit(r.Context(), "admin.user.create", map[string]any{"user_id": u.ID, "is_admin": admin})
		writeJSON(w, http.StatusCreated, u.Public())
	case http.MethodGet:
		users, err := a.users.List(r.Context(), tenant)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		out := make([]map[string]any, 0, len(users))
		for _, u := range users {
			out = append(out, u.Public())
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": out})
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleAdminUserResource(w http.ResponseWriter, r *http.Request) {
	tenant, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/admin/users/"), "/")
	parts := strings.Split(path, "/")
	if path == "" || len(parts) > 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusNotFound, "user not found")
		return
	}

	if len(parts) == 2 {
		if parts[1] != "role" {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		a.setUserRole(w, r, tenant, id)
		return
	}

	switch r.Method {
	case http.MethodGet:
		u, err := a.users.Find(r.Context(), tenant, id)
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
		u, err := a.auth.UpdateProfile(r.Context(), tenant, id, patch)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		a.audit(r.Context(), "admin.user.update", map[string]any{"user_id": id})
		writeJSON(w, http.StatusOK, u.Public())
	case http.MethodDelete:
		if err := a.users.Delete(r.Context(), tenant, id); err != nil {
			handleAuthError(w, r, err)
			return
		}
		a.audit(r.Context(), "admin.user.delete", map[string]any{"user_id": id})
		writeJSON(w, http.StatusOK, map[string]any{"deletedCount": 1})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

type roleRequest struct {
	IsAdmin bool `json:"is_admin"`
}

func (a *API) setUserRole(w http.ResponseWriter, r *http.Request, tenant string, id int64) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	var req roleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	u, err := a.auth.SetAdmin(r.Context(), tenant, id, req.IsAdmin)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), "admin.user.role", map[string]any{"user_id": id, "is_admin": req.IsAdmin})
	writeJSON(w, http.StatusOK, u.Public())
}

// handleExport dumps one category of the tenant's records in public shape.
func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
	tenant, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	category := policy.NormalizeCategory(r.URL.Query().Get("category"))
	q, err := query.Compile(tenant, category, policy.Public(), query.Params{})
	if err != nil {
		handleRecordError(w, r, err)
		return
	}
	recs, total, err := a.records.List(r.Context(), q)
	if err != nil {
		handleRecordError(w, r, err)
		return
	}

	out := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.Public())
	}
	a.audit(r.Context(), "admin.data.export", map[string]any{"category": category, "count": total})
	writeJSON(w, http.StatusOK, map[string]any{
		"category":     category,
		"totalRecords": total,
		"records":      out,
	})
}

type importRequest struct {
	Category string           `json:"category"`
	Records  []map[string]any `json:"records"`
}

// handleImport re-creates exported records one by one; each document gets
// a fresh id and timestamps. Failures are counted, not fatal.
func (a *API) handleImport(w http.ResponseWriter, r *http.Request) {
	tenant, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req importRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	category := policy.NormalizeCategory(req.Category)

	ident, _ := auth.IdentityFromContext(r.Context())
	var imported, failed int
	for _, doc := range req.Records {
		if _, err := a.records.Create(r.Context(), tenant, category, ident.UserID, doc); err != nil {
			failed++
			continue
		}
		imported++
	}

	a.audit(r.Context(), "admin.data.import", map[string]any{
		"category": category,
		"imported": imported,
		"failed":   failed,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"category": category,
		"imported": imported,
		"failed":   failed,
	})
}
