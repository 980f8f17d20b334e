package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/simple-deposit/pkg/simpledeposit"
)

// DepositHandler handles HTTP requests for deposits using pkg/simpledeposit
type DepositHandler struct {
	service simpledeposit.Service
	// WaitPolicy bounds the optional synchronous wait on ?wait=true
	// requests. The zero value falls back to the library default.
	WaitPolicy simpledeposit.RetryPolicy
}

// NewDepositHandler creates a new deposit handler
func NewDepositHandler(service simpledeposit.Service) *DepositHandler {
	return &DepositHandler{service: service}
}

// Routes returns the routes for deposits
func (h *DepositHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/deposits", h.DepositPackage)
	r.Post("/archive/poll", h.PollArchive)

	r.Post("/objects/{id}", h.UpdateObject)
	r.Get("/objects/{id}/deposits", h.ListDepositInfo)
	r.Get("/objects/{id}/content", h.GetCurrentObject)
	r.Get("/objects/{id}/relationships", h.ListRelationships)

	r.Get("/packages/{id}", h.GetPackage)

	return r
}

// DepositResponse is the response body for a deposit submission
type DepositResponse struct {
	PackageID   string   `json:"package_id"`
	FileName    string   `json:"file_name"`
	PackageType string   `json:"package_type"`
	EntryCount  int      `json:"entry_count"`
	DepositIDs  []string `json:"deposit_ids"`
	Errors      []string `json:"errors,omitempty"`
}

// DepositRecordResponse is the response body for one deposit record
type DepositRecordResponse struct {
	DepositID        string    `json:"deposit_id"`
	BusinessObjectID string    `json:"business_object_id"`
	ParentDepositID  string    `json:"parent_deposit_id,omitempty"`
	PackageID        string    `json:"package_id"`
	ObjectType       string    `json:"object_type"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ReconcileResponse is the response body for a reconcile pass
type ReconcileResponse struct {
	Polled       int      `json:"polled"`
	Deposited    int      `json:"deposited"`
	Failed       int      `json:"failed"`
	StillPending int      `json:"still_pending"`
	Errors       []string `json:"errors,omitempty"`
}

// DepositPackage accepts a multipart upload and submits it to the archive.
// Form fields: file (the upload), parent_id (target collection),
// container=true for zip uploads, wait=true to block briefly on
// confirmation before responding.
func (h *DepositHandler) DepositPackage(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	parentID := r.FormValue("parent_id")
	if parentID == "" {
		http.Error(w, "parent_id is required", http.StatusBadRequest)
		return
	}

	result, err := h.service.DepositPackage(r.Context(), simpledeposit.DepositPackageRequest{
		ParentID:  parentID,
		FileName:  header.Filename,
		Content:   file,
		Container: r.FormValue("container") == "true",
		MimeType:  header.Header.Get("Content-Type"),
		Identity:  IdentityFromContext(r.Context()),
	})
	if err != nil {
		h.renderDepositError(w, r, result, err)
		return
	}

	if r.FormValue("wait") == "true" && len(result.DepositIDs) > 0 {
		policy := h.WaitPolicy
		if policy.MaxAttempts == 0 {
			policy = simpledeposit.DefaultRetryPolicy
		}
		if err := h.service.AwaitTerminal(r.Context(), result.DepositIDs, policy); err != nil &&
			!errors.Is(err, simpledeposit.ErrAwaitTimeout) {
			slog.Error("waiting for deposit confirmation", "error", err)
		}
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, depositResponse(result))
}

// UpdateObject replaces the content of an existing business object,
// preserving its id and minting a new deposit underneath it.
func (h *DepositHandler) UpdateObject(w http.ResponseWriter, r *http.Request) {
	objectID := chi.URLParam(r, "id")

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	result, err := h.service.UpdateObject(r.Context(), simpledeposit.UpdateObjectRequest{
		BusinessObjectID: objectID,
		FileName:         header.Filename,
		Content:          file,
		Container:        r.FormValue("container") == "true",
		MimeType:         header.Header.Get("Content-Type"),
		Identity:         IdentityFromContext(r.Context()),
	})
	if err != nil {
		h.renderDepositError(w, r, result, err)
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, depositResponse(result))
}

// ListDepositInfo lists deposit records for a business object, newest
// first. ?status=pending|deposited|failed filters; no filter returns full
// history.
func (h *DepositHandler) ListDepositInfo(w http.ResponseWriter, r *http.Request) {
	objectID := chi.URLParam(r, "id")

	var status *simpledeposit.DepositStatus
	if s := r.URL.Query().Get("status"); s != "" {
		st := simpledeposit.DepositStatus(s)
		switch st {
		case simpledeposit.DepositStatusPending, simpledeposit.DepositStatusDeposited, simpledeposit.DepositStatusFailed:
			status = &st
		default:
			http.Error(w, "invalid status filter", http.StatusBadRequest)
			return
		}
	}

	records, err := h.service.ListDepositInfo(r.Context(), objectID, status)
	if err != nil {
		slog.Error("Failed to list deposit info", "object_id", objectID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := make([]DepositRecordResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, depositRecordResponse(rec))
	}
	render.JSON(w, r, resp)
}

// GetCurrentObject returns the content of the most recent deposited record
// for the object.
func (h *DepositHandler) GetCurrentObject(w http.ResponseWriter, r *http.Request) {
	objectID := chi.URLParam(r, "id")

	obj, err := h.service.GetCurrentObject(r.Context(), objectID)
	if err != nil {
		if errors.Is(err, simpledeposit.ErrObjectNotFound) {
			http.Error(w, "object not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to get current object", "object_id", objectID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	render.JSON(w, r, obj)
}

// ListRelationships lists edges where the object is the subject.
// ?relation= filters by relation type.
func (h *DepositHandler) ListRelationships(w http.ResponseWriter, r *http.Request) {
	objectID := chi.URLParam(r, "id")

	var relation *simpledeposit.RelationType
	if rel := r.URL.Query().Get("relation"); rel != "" {
		rt := simpledeposit.RelationType(rel)
		relation = &rt
	}

	edges, err := h.service.ListRelationships(r.Context(), objectID, relation)
	if err != nil {
		slog.Error("Failed to list relationships", "object_id", objectID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	render.JSON(w, r, edges)
}

// PollArchive triggers one reconciliation pass
func (h *DepositHandler) PollArchive(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.PollArchive(r.Context())
	if err != nil && result == nil {
		slog.Error("Reconcile pass failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := ReconcileResponse{
		Polled:       result.Polled,
		Deposited:    result.Deposited,
		Failed:       result.Failed,
		StillPending: result.StillPending,
	}
	for _, e := range result.Errors {
		resp.Errors = append(resp.Errors, e.Error())
	}
	render.JSON(w, r, resp)
}

// GetPackage returns one package record
func (h *DepositHandler) GetPackage(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid package id", http.StatusBadRequest)
		return
	}

	pkg, err := h.service.GetPackage(r.Context(), id)
	if err != nil {
		if errors.Is(err, simpledeposit.ErrPackageNotFound) {
			http.Error(w, "package not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to get package", "package_id", id, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	render.JSON(w, r, pkg)
}

// renderDepositError maps the deposit error taxonomy onto response codes. A
// relationship recording failure still answers with the completed result:
// the deposit is visible even when the graph came up short.
func (h *DepositHandler) renderDepositError(w http.ResponseWriter, r *http.Request, result *simpledeposit.DepositResult, err error) {
	var authErr *simpledeposit.AuthorizationError
	var extErr *simpledeposit.ExtractionError
	var relErr *simpledeposit.RelationshipError

	switch {
	case errors.As(err, &authErr):
		http.Error(w, authErr.Error(), http.StatusForbidden)
	case errors.As(err, &extErr):
		http.Error(w, extErr.Error(), http.StatusBadRequest)
	case errors.As(err, &relErr) && result != nil:
		slog.Warn("deposit succeeded with incomplete relationships", "error", err)
		resp := depositResponse(result)
		resp.Errors = append(resp.Errors, relErr.Error())
		render.Status(r, http.StatusAccepted)
		render.JSON(w, r, resp)
	default:
		slog.Error("Deposit failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func depositResponse(result *simpledeposit.DepositResult) DepositResponse {
	resp := DepositResponse{
		PackageID:   result.Package.ID.String(),
		FileName:    result.Package.FileName,
		PackageType: string(result.Package.Type),
		EntryCount:  len(result.Package.Entries),
		DepositIDs:  result.DepositIDs,
	}
	for _, e := range result.EntryErrors {
		resp.Errors = append(resp.Errors, e.Error())
	}
	return resp
}

func depositRecordResponse(rec *simpledeposit.DepositRecord) DepositRecordResponse {
	return DepositRecordResponse{
		DepositID:        rec.DepositID,
		BusinessObjectID: rec.BusinessObjectID,
		ParentDepositID:  rec.ParentDepositID,
		PackageID:        rec.PackageID.String(),
		ObjectType:       string(rec.ObjectType),
		Status:           string(rec.Status),
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
	}
}
