package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"recordbase.org/internal/auth"
	"recordbase.org/internal/policy"
	"recordbase.org/internal/query"
	"recordbase.org/internal/record"
	"recordbase.org/internal/stream"
)

type listRecordsResponse struct {
	Records        []map[string]any  `json:"records"`
	TotalRecords   int64             `json:"totalRecords"`
	CurrentPage    int               `json:"currentPage"`
	TotalPages     int64             `json:"totalPages"`
	RecordsPerPage int               `json:"recordsPerPage"`
	AppliedFilters map[string]string `json:"appliedFilters"`
}

func (a *API) handleRecordsRoot(w http.ResponseWriter, r *http.Request) {
	a.serveRecordCollection(w, r, policy.DefaultCategory)
}

func (a *API) handleRecords(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/records/"), "/")
	if path == "" {
		a.serveRecordCollection(w, r, policy.DefaultCategory)
		return
	}

	parts := strings.Split(path, "/")
	category := policy.NormalizeCategory(parts[0])
	switch {
	case len(parts) == 1:
		a.serveRecordCollection(w, r, category)
	case len(parts) == 2 && parts[1] == "stream":
		a.streamRecords(w, r, category)
	case len(parts) == 2:
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || id <= 0 {
			writeError(w, r, http.StatusNotFound, "record not found")
			return
		}
		a.serveRecordResource(w, r, category, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) serveRecordCollection(w http.ResponseWriter, r *http.Request, category string) {
	switch r.Method {
	case http.MethodPost:
		a.createRecord(w, r, category)
	case http.MethodGet:
		a.listRecords(w, r, category)
	case http.MethodDelete:
		a.deleteAllRecords(w, r, category)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) serveRecordResource(w http.ResponseWriter, r *http.Request, category string, id int64) {
	switch r.Method {
	case http.MethodGet:
		a.getRecord(w, r, category, id)
	case http.MethodPut:
		a.updateRecord(w, r, category, id)
	case http.MethodDelete:
		a.deleteRecord(w, r, category, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

// authorize runs the access resolver for the operation and maps denials
// onto HTTP statuses. On failure the response is already written.
func (a *API) authorize(w http.ResponseWriter, r *http.Request, category string, method policy.Method) (string, policy.Decision, bool) {
	tenant, ok := auth.TenantFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing api_key header")
		return "", policy.Decision{}, false
	}

	var ident *auth.Identity
	if id, ok := auth.IdentityFromContext(r.Context()); ok {
		ident = &id
	}

	mine, err := mineParam(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return "", policy.Decision{}, false
	}

	dec, err := a.resolver.Resolve(r.Context(), tenant, category, method, ident, mine)
	if err != nil {
		switch {
		case errors.Is(err, policy.ErrUnauthorized):
			writeError(w, r, http.StatusUnauthorized, "authentication required")
		case errors.Is(err, policy.ErrForbidden):
			writeError(w, r, http.StatusForbidden, "admin access required")
		default:
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return "", policy.Decision{}, false
	}
	return tenant, dec, true
}

func (a *API) createRecord(w http.ResponseWriter, r *http.Request, category string) {
	tenant, dec, ok := a.authorize(w, r, category, policy.MethodCreate)
	if !ok {
		return
	}

	var payload map[string]any
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var ownerID int64
	if ident, ok := auth.IdentityFromContext(r.Context()); ok {
		ownerID = ident.UserID
	} else if dec.Scope.Restricted() {
		ownerID = dec.Scope.Owner()
	}

	rec, err := a.records.Create(r.Context(), tenant, category, ownerID, payload)
	if err != nil {
		handleRecordError(w, r, err)
		return
	}

	a.publish(tenant, category, rec.ID, stream.OpCreate)
	a.audit(r.Context(), "record.create", map[string]any{
		"category": category,
		"id":       rec.ID,
	})

	w.Header().Set("Location", fmt.Sprintf("/v1/records/%s/%d", category, rec.ID))
	writeJSON(w, http.StatusCreated, rec.Public())
}

func (a *API) listRecords(w http.ResponseWriter, r *http.Request, category string) {
	tenant, dec, ok := a.authorize(w, r, category, policy.MethodRead)
	if !ok {
		return
	}

	params := query.FromValues(r.URL.Query())
	q, err := query.Compile(tenant, category, dec.Scope, params)
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

	perPage := q.Limit
	if q.Unbounded() {
		perPage = int(total)
	}
	writeJSON(w, http.StatusOK, listRecordsResponse{
		Records:        out,
		TotalRecords:   total,
		CurrentPage:    q.Page,
		TotalPages:     q.TotalPages(total),
		RecordsPerPage: perPage,
		AppliedFilters: appliedFilters(params),
	})
}

func (a *API) getRecord(w http.ResponseWriter, r *http.Request, category string, id int64) {
	tenant, dec, ok := a.authorize(w, r, category, policy.MethodRead)
	if !ok {
		return
	}

	rec, err := a.records.Get(r.Context(), tenant, category, id, dec.Scope)
	if err != nil {
		handleRecordError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec.Public())
}

func (a *API) updateRecord(w http.ResponseWriter, r *http.Request, category string, id int64) {
	tenant, dec, ok := a.authorize(w, r, category, policy.MethodUpdate)
	if !ok {
		return
	}

	var patch map[string]any
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := a.records.Update(r.Context(), tenant, category, id, dec.Scope, patch)
	if err != nil {
		handleRecordError(w, r, err)
		return
	}

	a.publish(tenant, category, id, stream.OpUpdate)
	a.audit(r.Context(), "record.update", map[string]any{
		"category": category,
		"id":       id,
	})
	writeJSON(w, http.StatusOK, rec.Public())
}

func (a *API) deleteRecord(w http.ResponseWriter, r *http.Request, category string, id int64) {
	tenant, dec, ok := a.authorize(w, r, category, policy.MethodDelete)
	if !ok {
		return
	}

	if err := a.records.Delete(r.Context(), tenant, category, id, dec.Scope); err != nil {
		handleRecordError(w, r, err)
		return
	}

	a.publish(tenant, category, id, stream.OpDelete)
	a.audit(r.Context(), "record.delete", map[string]any{
		"category": category,
		"id":       id,
	})
	writeJSON(w, http.StatusOK, map[string]any{"deletedCount": 1})
}

func (a *API) deleteAllRecords(w http.ResponseWriter, r *http.Request, category string) {
	tenant, dec, ok := a.authorize(w, r, category, policy.MethodDelete)
	if !ok {
		return
	}

	count, err := a.records.DeleteAll(r.Context(), tenant, category, dec.Scope)
	if err != nil {
		handleRecordError(w, r, err)
		return
	}

	a.audit(r.Context(), "record.delete_all", map[string]any{
		"category": category,
		"count":    count,
	})
	writeJSON(w, http.StatusOK, map[string]any{"deletedCount": count})
}

func (a *API) publish(tenant, category string, id int64, op stream.Op) {
	if a.stream == nil {
		return
	}
	a.stream.Publish(tenant, category, id, op)
}

// mineParam parses the optional mine query parameter.
func mineParam(r *http.Request) (*bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("mine"))
	if raw == "" {
		return nil, nil
	}
	switch strings.ToLower(raw) {
	case "true":
		v := true
		return &v, nil
	case "false":
		v := false
		return &v, nil
	default:
		return nil, errors.New("mine must be true or false")
	}
}

// appliedFilters echoes the filter surface of the request back to the
// client alongside the page it produced.
func appliedFilters(p query.Params) map[string]string {
	out := map[string]string{}
	if p.FilterKey != "" {
		out["filterKey"] = p.FilterKey
		if len(p.FilterValues) > 0 {
			out["filterValue"] = strings.Join(p.FilterValues, ",")
		}
		if p.FilterMin != "" {
			out["filterMin"] = p.FilterMin
		}
		if p.FilterMax != "" {
			out["filterMax"] = p.FilterMax
		}
	}
	if p.SearchKey != "" {
		out["searchKey"] = p.SearchKey
		out["searchValue"] = p.SearchValue
	}
	if p.SortBy != "" {
		out["sortBy"] = p.SortBy
		if p.Order != "" {
			out["order"] = p.Order
		}
	}
	return out
}

func handleRecordError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, query.ErrInvalidParams):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, record.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "record not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
