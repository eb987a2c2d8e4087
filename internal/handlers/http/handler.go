package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"TableSide/internal/models"
	"TableSide/internal/payment"
	"TableSide/internal/pos"
	"TableSide/internal/version"
	"TableSide/pkg/logging"

	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
)

// Alerter reports failures nobody at the terminal will see.
type Alerter interface {
	SendMessageWithLogError(text string)
}

type Handler struct {
	terminal *pos.Terminal
	alerts   Alerter
}

func NewHandler(terminal *pos.Terminal, alerts Alerter) *Handler {
	return &Handler{terminal: terminal, alerts: alerts}
}

func (h *Handler) Register(router *httprouter.Router) {
	router.GET("/", h.HandlerVersion)
	router.GET("/tables", h.HandlerTables)
	router.GET("/tables/:table", h.HandlerSnapshot)
	router.POST("/tables/:table/cart", h.HandlerAddItem)
	router.POST("/tables/:table/discount", h.HandlerAddDiscount)
	router.DELETE("/tables/:table/cart/selected", h.HandlerRemoveSelected)
	router.POST("/tables/:table/cart/:index/toggle", h.HandlerToggle)
	router.PUT("/tables/:table/cart/:index/note", h.HandlerNote)
	router.POST("/tables/:table/send", h.HandlerSend)
	router.POST("/tables/:table/actions", h.HandlerAction)
	router.POST("/tables/:table/payments", h.HandlerPayment)
	router.POST("/tables/:table/close", h.HandlerClose)
	router.POST("/tables/:table/move", h.HandlerMove)
	router.POST("/tables/:table/receipt", h.HandlerReceipt)
}

func NewRouter(h *Handler) *httprouter.Router {
	router := httprouter.New()
	h.Register(router)
	return router
}

type staffRequest struct {
	Staff string `json:"staff"`
}

type noteRequest struct {
	Note string `json:"note"`
}

type paymentResponse struct {
	Result   *payment.Result `json:"result"`
	Snapshot pos.Snapshot    `json:"snapshot"`
}

func (h *Handler) HandlerVersion(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	logger := logging.GetLogger()
	logger.Debug("Start HandlerVersion")
	defer logger.Debug("End HandlerVersion")

	writeJSON(w, http.StatusOK, version.GetVersion())
}

func (h *Handler) HandlerTables(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	tables, err := h.terminal.Tables(r.Context())
	h.respond(w, r, tables, err)
}

func (h *Handler) HandlerSnapshot(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	snap, err := h.terminal.Snapshot(r.Context(), ps.ByName("table"))
	h.respond(w, r, snap, err)
}

func (h *Handler) HandlerAddItem(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	logger := logging.GetLogger()
	logger.Debug("Start HandlerAddItem")
	defer logger.Debug("End HandlerAddItem")

	var req pos.AddRequest
	if err := decode(r, &req); err != nil {
		h.respond(w, r, nil, err)
		return
	}
	snap, err := h.terminal.AddItem(r.Context(), ps.ByName("table"), req)
	h.respond(w, r, snap, err)
}

func (h *Handler) HandlerAddDiscount(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req pos.DiscountRequest
	if err := decode(r, &req); err != nil {
		h.respond(w, r, nil, err)
		return
	}
	snap, err := h.terminal.AddDiscount(r.Context(), ps.ByName("table"), req)
	h.respond(w, r, snap, err)
}

func (h *Handler) HandlerRemoveSelected(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	snap, err := h.terminal.RemoveSelected(r.Context(), ps.ByName("table"))
	h.respond(w, r, snap, err)
}

func (h *Handler) HandlerToggle(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	index, err := cartIndex(ps)
	if err != nil {
		h.respond(w, r, nil, err)
		return
	}
	snap, err := h.terminal.ToggleSelect(r.Context(), ps.ByName("table"), index)
	h.respond(w, r, snap, err)
}

func (h *Handler) HandlerNote(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	index, err := cartIndex(ps)
	if err != nil {
		h.respond(w, r, nil, err)
		return
	}
	var req noteRequest
	if err := decode(r, &req); err != nil {
		h.respond(w, r, nil, err)
		return
	}
	snap, err := h.terminal.SetNote(r.Context(), ps.ByName("table"), index, req.Note)
	h.respond(w, r, snap, err)
}

func (h *Handler) HandlerSend(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	logger := logging.GetLogger()
	logger.Debug("Start HandlerSend")
	defer logger.Debug("End HandlerSend")

	var req staffRequest
	if err := decode(r, &req); err != nil {
		h.respond(w, r, nil, err)
		return
	}
	snap, err := h.terminal.Send(r.Context(), ps.ByName("table"), req.Staff)
	h.respond(w, r, snap, err)
}

func (h *Handler) HandlerAction(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	logger := logging.GetLogger()
	logger.Debug("Start HandlerAction")
	defer logger.Debug("End HandlerAction")

	var req pos.ActionRequest
	if err := decode(r, &req); err != nil {
		h.respond(w, r, nil, err)
		return
	}
	snap, err := h.terminal.Action(r.Context(), ps.ByName("table"), req)
	h.respond(w, r, snap, err)
}

func (h *Handler) HandlerPayment(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	logger := logging.GetLogger()
	logger.Debug("Start HandlerPayment")
	defer logger.Debug("End HandlerPayment")

	var req payment.Request
	if err := decode(r, &req); err != nil {
		h.respond(w, r, nil, err)
		return
	}
	res, snap, err := h.terminal.Pay(r.Context(), ps.ByName("table"), req)
	h.respond(w, r, paymentResponse{Result: res, Snapshot: snap}, err)
}

func (h *Handler) HandlerClose(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	snap, err := h.terminal.Close(r.Context(), ps.ByName("table"))
	h.respond(w, r, snap, err)
}

func (h *Handler) HandlerMove(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req pos.MoveRequest
	if err := decode(r, &req); err != nil {
		h.respond(w, r, nil, err)
		return
	}
	snap, err := h.terminal.Move(r.Context(), ps.ByName("table"), req)
	h.respond(w, r, snap, err)
}

func (h *Handler) HandlerReceipt(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req staffRequest
	if err := decode(r, &req); err != nil {
		h.respond(w, r, nil, err)
		return
	}
	receipt, err := h.terminal.Receipt(r.Context(), ps.ByName("table"), req.Staff)
	h.respond(w, r, receipt, err)
}

// respond writes body, or maps err onto a status code. Store failures are
// also sent to the alert chat.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, body interface{}, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, body)
		return
	}

	logger := logging.GetLogger()
	status := http.StatusInternalServerError
	switch {
	case models.IsValidation(err):
		status = http.StatusBadRequest
	case models.IsNotFound(err):
		status = http.StatusNotFound
	case models.IsConflict(err):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		errorText := fmt.Sprintf("%s %s failed: %v", r.Method, r.URL.Path, err)
		logger.Error(errorText)
		if h.alerts != nil {
			h.alerts.SendMessageWithLogError(errorText)
		}
	} else {
		logger.Warnf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decode(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return models.Validation("bad request body: %v", err)
	}
	return nil
}

func cartIndex(ps httprouter.Params) (int, error) {
	i, err := strconv.Atoi(ps.ByName("index"))
	if err != nil {
		return 0, errors.Wrapf(models.ErrValidation, "bad cart index %q", ps.ByName("index"))
	}
	return i, nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.GetLogger().Errorf("failed to send response, error: %v", err)
	}
}
