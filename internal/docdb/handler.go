package docdb

import (
	"errors"
	"net/http"
	"strconv"

	json "github.com/goccy/go-json"
)

// Handler serves a Client over the REST surface spoken by HTTPClient. It is
// the local emulator behind `docprov serve`.
type Handler struct {
	client Client
	key    string
	mux    *http.ServeMux
}

// NewHandler creates a handler for client. When key is not empty every
// request must carry it in the authorization header.
func NewHandler(client Client, key string) *Handler {
	h := &Handler{
		client: client,
		key:    key,
		mux:    http.NewServeMux(),
	}

	h.mux.HandleFunc("GET /dbs", h.listDatabases)
	h.mux.HandleFunc("POST /dbs", h.createDatabase)
	h.mux.HandleFunc("GET /dbs/{db}", h.readDatabase)
	h.mux.HandleFunc("DELETE /dbs/{db}", h.deleteDatabase)

	h.mux.HandleFunc("GET /dbs/{db}/colls", h.listCollections)
	h.mux.HandleFunc("POST /dbs/{db}/colls", h.createCollection)
	h.mux.HandleFunc("GET /dbs/{db}/colls/{coll}", h.readCollection)
	h.mux.HandleFunc("PUT /dbs/{db}/colls/{coll}", h.replaceCollection)
	h.mux.HandleFunc("DELETE /dbs/{db}/colls/{coll}", h.deleteCollection)

	h.mux.HandleFunc("GET /offers", h.readOffer)
	h.mux.HandleFunc("PUT /offers", h.replaceOffer)

	h.mux.HandleFunc("GET /dbs/{db}/colls/{coll}/docs", h.listDocuments)
	h.mux.HandleFunc("POST /dbs/{db}/colls/{coll}/docs", h.createDocument)
	h.mux.HandleFunc("GET /dbs/{db}/colls/{coll}/docs/{doc}", h.readDocument)
	h.mux.HandleFunc("PUT /dbs/{db}/colls/{coll}/docs/{doc}", h.replaceDocument)
	h.mux.HandleFunc("DELETE /dbs/{db}/colls/{coll}/docs/{doc}", h.deleteDocument)

	return h
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.key != "" && r.Header.Get(HeaderAuthorization) != h.key {
		writeError(w, &ServiceError{
			StatusCode: http.StatusUnauthorized,
			Reason:     reasonForCode(http.StatusUnauthorized),
			Message:    "invalid authorization key",
		})
		return
	}
	h.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeError(w http.ResponseWriter, err error) {
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		svcErr = &ServiceError{
			StatusCode: http.StatusInternalServerError,
			Reason:     reasonForCode(http.StatusInternalServerError),
			Message:    err.Error(),
		}
	}
	if svcErr.RetryAfter > 0 {
		w.Header().Set(HeaderRetryAfterMs, strconv.FormatInt(svcErr.RetryAfter.Milliseconds(), 10))
	}
	writeJSON(w, svcErr.StatusCode, svcErr)
}

func decodeBody(w http.ResponseWriter, r *http.Request, op string, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeError(w, NewBadRequest(op, "malformed request body: "+err.Error()))
		return false
	}
	return true
}

func listOptions(r *http.Request) ListOptions {
	opts := ListOptions{Continuation: r.Header.Get(HeaderContinuation)}
	if n, err := strconv.Atoi(r.Header.Get(HeaderMaxItemCount)); err == nil {
		opts.PageSize = n
	}
	return opts
}

func requestThroughput(r *http.Request) int {
	n, _ := strconv.Atoi(r.Header.Get(HeaderThroughput))
	return n
}

func (h *Handler) listDatabases(w http.ResponseWriter, r *http.Request) {
	page, err := h.client.ListDatabases(r.Context(), listOptions(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if page.Continuation != "" {
		w.Header().Set(HeaderContinuation, page.Continuation)
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) createDatabase(w http.ResponseWriter, r *http.Request) {
	var spec DatabaseSpec
	if !decodeBody(w, r, "CreateDatabase", &spec) {
		return
	}
	spec.Throughput = requestThroughput(r)
	db, err := h.client.CreateDatabase(r.Context(), spec)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, db)
}

func (h *Handler) readDatabase(w http.ResponseWriter, r *http.Request) {
	db, err := h.client.ReadDatabase(r.Context(), r.PathValue("db"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, db)
}

func (h *Handler) deleteDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.client.DeleteDatabase(r.Context(), r.PathValue("db")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listCollections(w http.ResponseWriter, r *http.Request) {
	page, err := h.client.ListCollections(r.Context(), r.PathValue("db"), listOptions(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if page.Continuation != "" {
		w.Header().Set(HeaderContinuation, page.Continuation)
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) createCollection(w http.ResponseWriter, r *http.Request) {
	var spec CollectionSpec
	if !decodeBody(w, r, "CreateCollection", &spec) {
		return
	}
	spec.Throughput = requestThroughput(r)
	coll, err := h.client.CreateCollection(r.Context(), r.PathValue("db"), spec)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, coll)
}

func (h *Handler) readCollection(w http.ResponseWriter, r *http.Request) {
	coll, err := h.client.ReadCollection(r.Context(), r.PathValue("db"), r.PathValue("coll"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, coll)
}

func (h *Handler) replaceCollection(w http.ResponseWriter, r *http.Request) {
	var spec CollectionSpec
	if !decodeBody(w, r, "ReplaceCollection", &spec) {
		return
	}
	spec.ID = r.PathValue("coll")
	coll, err := h.client.ReplaceCollection(r.Context(), r.PathValue("db"), spec)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, coll)
}

func (h *Handler) deleteCollection(w http.ResponseWriter, r *http.Request) {
	if err := h.client.DeleteCollection(r.Context(), r.PathValue("db"), r.PathValue("coll")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) readOffer(w http.ResponseWriter, r *http.Request) {
	offer, err := h.client.ReadOffer(r.Context(), r.URL.Query().Get("resource"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, offer)
}

func (h *Handler) replaceOffer(w http.ResponseWriter, r *http.Request) {
	var body OfferInfo
	if !decodeBody(w, r, "ReplaceOffer", &body) {
		return
	}
	offer, err := h.client.ReplaceOffer(r.Context(), body.ResourceLink, body.Throughput)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, offer)
}

func collectionLinkFrom(r *http.Request) string {
	return CollectionLink(r.PathValue("db"), r.PathValue("coll"))
}

func (h *Handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	page, err := h.client.ListDocuments(r.Context(), collectionLinkFrom(r), listOptions(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if page.Continuation != "" {
		w.Header().Set(HeaderContinuation, page.Continuation)
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) createDocument(w http.ResponseWriter, r *http.Request) {
	var doc Document
	if !decodeBody(w, r, "CreateDocument", &doc) {
		return
	}
	created, err := h.client.CreateDocument(r.Context(), collectionLinkFrom(r), doc)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) readDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.client.ReadDocument(r.Context(), collectionLinkFrom(r), r.PathValue("doc"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) replaceDocument(w http.ResponseWriter, r *http.Request) {
	var doc Document
	if !decodeBody(w, r, "ReplaceDocument", &doc) {
		return
	}
	doc.ID = r.PathValue("doc")
	replaced, err := h.client.ReplaceDocument(r.Context(), collectionLinkFrom(r), doc)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, replaced)
}

func (h *Handler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := h.client.DeleteDocument(r.Context(), collectionLinkFrom(r), r.PathValue("doc")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
