package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"goa.design/clue/log"

	"github.com/sokoflow/sokoflow/features/notify/whatsapp"
	"github.com/sokoflow/sokoflow/runtime/orchestrator"
	"github.com/sokoflow/sokoflow/runtime/session"
)

// holdingMessage is returned immediately for background-eligible events; the
// real answer arrives through the messaging gateway once the workflow
// advances.
const holdingMessage = "Please give me a moment while I check on that for you."

type (
	// server holds the HTTP handler dependencies.
	server struct {
		orch       *orchestrator.Orchestrator
		background enqueuer
		verify     string
		appSecret  string
		store      session.Store
		failures   func() []failureView
	}

	failureView struct {
		Key      string `json:"key"`
		Error    string `json:"error"`
		Attempts int    `json:"attempts"`
	}

	eventResponse struct {
		Status  string                 `json:"status"`
		Message string                 `json:"message,omitempty"`
		Out     *orchestrator.Outbound `json:"outbound,omitempty"`
	}
)

func (s *server) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /events", s.handleEvent)
	mux.HandleFunc("GET /webhook", s.handleWebhookVerify)
	mux.HandleFunc("POST /webhook", s.handleWebhook)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /failures", s.handleFailures)
}

// handleEvent accepts a conversation event. Latency-tolerant task types are
// queued and answered with a holding message; availability checks are handled
// synchronously so the caller gets the real answer.
func (s *server) handleEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var ev orchestrator.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "malformed event payload", http.StatusBadRequest)
		return
	}
	if err := ev.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if ev.TaskType.Background() && s.background != nil {
		if err := s.background.Enqueue(ctx, ev); err != nil {
			// Degrade to synchronous handling under backpressure.
			log.Printf(ctx, "background enqueue failed, handling inline: %v", err)
		} else {
			writeJSON(w, http.StatusAccepted, eventResponse{Status: "queued", Message: holdingMessage})
			return
		}
	}

	out, err := s.orch.Handle(ctx, ev)
	if err != nil {
		s.writeHandleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eventResponse{Status: "handled", Out: out})
}

func (s *server) writeHandleError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *orchestrator.ValidationError
	if errors.As(err, &ve) {
		http.Error(w, ve.Error(), http.StatusBadRequest)
		return
	}
	var re *orchestrator.RoutingError
	if errors.As(err, &re) {
		// State persisted; only delivery was skipped.
		writeJSON(w, http.StatusOK, eventResponse{Status: "persisted", Message: re.Error()})
		return
	}
	log.Errorf(r.Context(), err, "event handling failed")
	if orchestrator.IsRetryable(err) {
		http.Error(w, "temporary failure, retry the event", http.StatusServiceUnavailable)
		return
	}
	http.Error(w, "event handling failed", http.StatusInternalServerError)
}

// handleWebhookVerify answers the Graph API subscription handshake.
func (s *server) handleWebhookVerify(w http.ResponseWriter, r *http.Request) {
	whatsapp.HandleVerification(w, r, s.verify)
}

// handleWebhook verifies and acknowledges gateway notifications. Translating
// raw chat messages into workflow events is the chat layer's job; this
// endpoint records the delivery for it.
func (s *server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	if s.appSecret != "" {
		if err := whatsapp.VerifySignature(s.appSecret, body, r.Header.Get("X-Hub-Signature-256")); err != nil {
			http.Error(w, "signature mismatch", http.StatusForbidden)
			return
		}
	}
	msgs, err := whatsapp.ParseInbound(body)
	if err != nil {
		http.Error(w, "malformed notification", http.StatusBadRequest)
		return
	}
	for _, m := range msgs {
		log.Print(ctx, log.KV{K: "msg", V: "inbound gateway message"},
			log.KV{K: "from", V: m.From}, log.KV{K: "id", V: m.MessageID})
	}
	w.WriteHeader(http.StatusOK)
}

// pinger is implemented by the durable session stores.
type pinger interface {
	Ping(ctx context.Context) error
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			http.Error(w, "session store unreachable", http.StatusServiceUnavailable)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleFailures(w http.ResponseWriter, _ *http.Request) {
	if s.failures == nil {
		writeJSON(w, http.StatusOK, []failureView{})
		return
	}
	writeJSON(w, http.StatusOK, s.failures())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
