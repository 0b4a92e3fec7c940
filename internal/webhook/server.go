// Package webhook hosts the inbound HTTP server for CRM callbacks.
// Managers reply to leads from the CRM by prefixing a lead note with
// the configured reply marker; the note text is relayed to the lead's
// Telegram chat.
package webhook

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/oxbridge-edu/admissions-bot/internal/config"
	"github.com/oxbridge-edu/admissions-bot/internal/crm"
	"github.com/oxbridge-edu/admissions-bot/internal/database"
	"github.com/oxbridge-edu/admissions-bot/internal/telegram"
)

// Server serves CRM webhooks and a health endpoint.
type Server struct {
	logger *slog.Logger
	cfg    *config.Config
	store  database.Store
	msgr   telegram.Messenger
	router chi.Router
}

// NewServer builds the webhook server and its routes.
func NewServer(cfg *config.Config, store database.Store, msgr telegram.Messenger, logger *slog.Logger) *Server {
	s := &Server{
		logger: logger.With("component", "webhook"),
		cfg:    cfg,
		store:  store,
		msgr:   msgr,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Post("/webhook/crm", s.handleCRMNote)
	s.router = r

	return s
}

// Handler exposes the route tree, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves HTTP until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Webhook.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleCRMNote accepts Kommo note webhooks. Notes on a linked lead
// whose text starts with the reply marker are relayed to the lead's
// chat. Everything else is acknowledged and dropped, so the CRM does
// not retry.
func (s *Server) handleCRMNote(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if s.cfg.CRM.ClientSecret != "" {
		sig := r.Header.Get("X-Signature")
		if sig == "" {
			// Unsigned payloads are acknowledged so the CRM does not
			// retry, but never relayed.
			s.logger.Warn("webhook without signature dropped")
			w.WriteHeader(http.StatusOK)
			return
		}
		if !crm.VerifySignature(s.cfg.CRM.ClientSecret, body, sig) {
			s.logger.Warn("webhook signature mismatch")
			w.WriteHeader(http.StatusForbidden)
			return
		}
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	note := extractNote(values)
	w.WriteHeader(http.StatusOK)

	if note.text == "" || note.leadID == 0 {
		return
	}
	marker := s.cfg.CRM.ReplyMarker
	if marker == "" || !strings.HasPrefix(note.text, marker) {
		return
	}
	reply := strings.TrimSpace(strings.TrimPrefix(note.text, marker))
	if reply == "" {
		return
	}

	ctx := r.Context()
	chatID, err := s.store.ChatIDByLead(ctx, note.leadID)
	if err != nil {
		s.logger.Error("failed to resolve lead chat", "lead_id", note.leadID, "error", err)
		return
	}
	if chatID == 0 {
		s.logger.Debug("note for unlinked lead", "lead_id", note.leadID)
		return
	}

	if err := s.msgr.Send(ctx, telegram.Outbound{ChatID: chatID, Text: reply}); err != nil {
		s.logger.Error("failed to relay crm note", "chat_id", chatID, "error", err)
		return
	}
	s.logger.Info("relayed crm note to chat", "lead_id", note.leadID, "chat_id", chatID)
}

type crmNote struct {
	leadID int64
	text   string
}

// extractNote pulls the note text and lead id out of Kommo's
// form-encoded webhook payload, e.g.
// leads[note][0][note][element_id] and leads[note][0][note][text].
func extractNote(values url.Values) crmNote {
	var note crmNote
	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		switch {
		case strings.HasSuffix(key, "[text]"):
			note.text = vals[0]
		case strings.HasSuffix(key, "[element_id]"), strings.HasSuffix(key, "[entity_id]"):
			if id, err := strconv.ParseInt(vals[0], 10, 64); err == nil {
				note.leadID = id
			}
		}
	}
	return note
}
