package relay

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/aegis-sign/connect/pkg/apierrors"
)

const maxMessageBytes = 64 << 10

// HTTPHandler 实现 `/topic/{id}` 的轮询/投递接口。
type HTTPHandler struct {
	store *Store
}

// NewHTTPHandler 构造 HTTP handler。
func NewHTTPHandler(store *Store) *HTTPHandler {
	if store == nil {
		panic("relay store is required")
	}
	return &HTTPHandler{store: store}
}

// Register 将 handler 注册到 mux。
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/topic/{id}", h.handleTopic)
	mux.Handle("/debug/topics", h.store.DebugHandler())
}

type pollResponseBody struct {
	Message json.RawMessage `json:"message"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *HTTPHandler) handleTopic(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeAPIError(w, apierrors.New(apierrors.CodeInvalidArgument, "topic id is required"))
		return
	}
	switch r.Method {
	case http.MethodGet:
		h.handlePoll(w, id)
	case http.MethodPost:
		h.handlePost(w, r, id)
	case http.MethodDelete:
		h.handleDelete(w, id)
	case http.MethodOptions:
		h.writeCORS(w)
		w.WriteHeader(http.StatusNoContent)
	default:
		h.writeAPIError(w, apierrors.New(apierrors.CodeInvalidArgument, "GET, POST or DELETE required"))
	}
}

func (h *HTTPHandler) handlePoll(w http.ResponseWriter, id string) {
	message, ok := h.store.Get(id)
	if !ok {
		message = json.RawMessage("null")
	}
	h.writeJSON(w, http.StatusOK, pollResponseBody{Message: message})
}

func (h *HTTPHandler) handlePost(w http.ResponseWriter, r *http.Request, id string) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageBytes+1))
	if err != nil {
		h.writeAPIError(w, apierrors.New(apierrors.CodeInvalidArgument, "failed to read body"))
		return
	}
	if len(body) > maxMessageBytes {
		h.writeAPIError(w, apierrors.New(apierrors.CodeInvalidArgument, "message too large"))
		return
	}
	if err := h.store.Put(id, body); err != nil {
		h.writeAPIError(w, apierrors.New(apierrors.CodeInvalidArgument, err.Error()))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) handleDelete(w http.ResponseWriter, id string) {
	if err := h.store.Delete(id); err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeAPIError(w, apierrors.New(apierrors.CodeTopicNotFound, err.Error()))
			return
		}
		h.writeUnknownError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *HTTPHandler) writeCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, payload any) {
	h.writeCORS(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *HTTPHandler) writeUnknownError(w http.ResponseWriter, err error) {
	if apiErr, ok := apierrors.FromError(err); ok {
		h.writeAPIError(w, apiErr)
		return
	}
	h.writeAPIError(w, apierrors.New(apierrors.Code("INTERNAL_ERROR"), "internal error"))
}

func (h *HTTPHandler) writeAPIError(w http.ResponseWriter, apiErr *apierrors.Error) {
	if apiErr == nil {
		apiErr = apierrors.New(apierrors.Code("INTERNAL_ERROR"), "internal error")
	}
	resp := errorResponse{
		Code:    string(apiErr.Code),
		Message: apiErr.Error(),
	}
	h.writeJSON(w, apierrors.HTTPStatus(apiErr.Code), resp)
}
