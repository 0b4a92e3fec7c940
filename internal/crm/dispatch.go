package crm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/oxbridge-edu/admissions-bot/internal/config"
	"github.com/oxbridge-edu/admissions-bot/internal/database"
)

// CommandKind identifies a CRM sync operation.
type CommandKind string

// Sync command kinds.
const (
	CommandContactUpsert CommandKind = "contact_upsert"
	CommandLeadCreate    CommandKind = "lead_create"
	CommandLeadUpdate    CommandKind = "lead_update"
	CommandNote          CommandKind = "note"
	CommandTask          CommandKind = "task"
)

// Command is one queued CRM operation. Fields beyond ID, Kind, and
// ChatID are populated per kind.
type Command struct {
	ID      string
	Kind    CommandKind
	ChatID  int64
	Phone   string
	Contact ContactAttrs
	Lead    Lead
	Tour    TourUpdate
	Note    string
}

// Syncer accepts CRM sync commands. A nil-safe no-op implementation is
// used when the CRM integration is disabled.
type Syncer interface {
	Enqueue(cmd Command)
}

// NopSyncer discards all commands. Used when no CRM is configured.
type NopSyncer struct{}

// Enqueue discards the command.
func (NopSyncer) Enqueue(Command) {}

// Dispatcher executes sync commands asynchronously with retry, keeping
// CRM latency and outages away from conversation handling.
type Dispatcher struct {
	logger     *slog.Logger
	api        API
	store      database.Store
	queue      chan Command
	maxRetries uint64
}

// NewDispatcher creates a dispatcher with a bounded queue.
func NewDispatcher(api API, store database.Store, cfg config.CRMConfig, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		logger:     logger.With("component", "crm_dispatch"),
		api:        api,
		store:      store,
		queue:      make(chan Command, cfg.QueueSize),
		maxRetries: cfg.MaxRetries,
	}
}

// Enqueue queues a command for background execution. Commands are
// dropped with a warning when the queue is full so the conversation
// flow never blocks on the CRM.
func (d *Dispatcher) Enqueue(cmd Command) {
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	select {
	case d.queue <- cmd:
	default:
		d.logger.Warn("sync queue full, dropping command",
			"command_id", cmd.ID, "kind", cmd.Kind, "chat_id", cmd.ChatID)
	}
}

// Run processes queued commands until the context is cancelled, then
// drains whatever is already queued with a short grace period.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case cmd := <-d.queue:
			d.process(ctx, cmd)
		case <-ctx.Done():
			d.drain()
			return nil
		}
	}
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for {
		select {
		case cmd := <-d.queue:
			d.process(ctx, cmd)
		default:
			return
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, cmd Command) {
	operation := func() error {
		return d.execute(ctx, cmd)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), d.maxRetries), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		d.logger.Error("sync command failed",
			"command_id", cmd.ID, "kind", cmd.Kind, "chat_id", cmd.ChatID, "error", err)
		return
	}
	d.logger.Debug("sync command completed",
		"command_id", cmd.ID, "kind", cmd.Kind, "chat_id", cmd.ChatID)
}

func (d *Dispatcher) execute(ctx context.Context, cmd Command) error {
	switch cmd.Kind {
	case CommandContactUpsert:
		_, err := d.api.UpsertContact(ctx, cmd.Phone, cmd.Contact)
		return err

	case CommandLeadCreate:
		contactID, err := d.api.UpsertContact(ctx, cmd.Phone, cmd.Contact)
		if err != nil {
			return err
		}
		leadID, err := d.api.CreateLead(ctx, contactID, cmd.Phone, cmd.Lead)
		if err != nil {
			return err
		}
		if err := d.store.SaveLeadLink(ctx, cmd.ChatID, contactID, leadID); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to save lead link: %w", err))
		}
		return nil

	case CommandLeadUpdate:
		link, err := d.store.GetLeadLink(ctx, cmd.ChatID)
		if err != nil {
			return backoff.Permanent(err)
		}
		if link == nil {
			d.logger.Debug("no lead link for chat, skipping update", "chat_id", cmd.ChatID)
			return nil
		}
		return d.api.UpdateLeadTour(ctx, link.LeadID, cmd.Tour)

	case CommandNote:
		link, err := d.store.GetLeadLink(ctx, cmd.ChatID)
		if err != nil {
			return backoff.Permanent(err)
		}
		if link == nil {
			d.logger.Debug("no lead link for chat, skipping note", "chat_id", cmd.ChatID)
			return nil
		}
		return d.api.AddNote(ctx, link.LeadID, cmd.Note)

	case CommandTask:
		link, err := d.store.GetLeadLink(ctx, cmd.ChatID)
		if err != nil {
			return backoff.Permanent(err)
		}
		if link == nil {
			d.logger.Debug("no lead link for chat, skipping task", "chat_id", cmd.ChatID)
			return nil
		}
		return d.api.CreateTask(ctx, link.LeadID, cmd.Note, time.Now().Add(time.Hour))
	}

	return backoff.Permanent(fmt.Errorf("unknown sync command kind %q", cmd.Kind))
}
