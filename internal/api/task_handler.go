package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shaiso/Courier/internal/backend"
)

// maxBodyBytes ограничивает тело запроса на отправку.
const maxBodyBytes = 1 << 20

// ListTasks возвращает известные задачи.
// GET /api/v1/tasks
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		List(w, []TaskResponse{}, 0)
		return
	}

	names := h.registry.Names()
	result := make([]TaskResponse, 0, len(names))
	for _, name := range names {
		t, err := h.registry.Lookup(name)
		if err != nil {
			continue
		}
		result = append(result, TaskFromDefinition(t))
	}

	List(w, result, len(result))
}

// SendTask отправляет вызов задачи.
// POST /api/v1/tasks/{name}
func (h *Handler) SendTask(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req SendRequest
	if r.ContentLength != 0 {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err := dec.Decode(&req); err != nil {
			BadRequest(w, "invalid request body: "+err.Error())
			return
		}
	}

	sig, err := req.Signature(name)
	if HandleError(w, h.logger, err) {
		return
	}

	id, err := h.app.SendSignature(r.Context(), sig)
	if HandleError(w, h.logger, err) {
		return
	}

	Accepted(w, SendResponse{ID: id, Task: name})
}

// GetResult возвращает итог вызова.
// GET /api/v1/results/{id}
//
// Для вызова без терминального итога возвращается 202 со статусом PENDING.
func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	o, err := h.app.Result(r.Context(), id)
	if errors.Is(err, backend.ErrPending) {
		Accepted(w, backend.Outcome{TaskID: id, Status: backend.StatusPending})
		return
	}
	if HandleError(w, h.logger, err) {
		return
	}

	Success(w, o)
}
