package funnel

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/oxbridge-edu/admissions-bot/internal/config"
	"github.com/oxbridge-edu/admissions-bot/internal/crm"
	"github.com/oxbridge-edu/admissions-bot/internal/database"
	"github.com/oxbridge-edu/admissions-bot/internal/i18n"
	"github.com/oxbridge-edu/admissions-bot/internal/telegram"
)

// Engine drives the admissions conversation. All entry points
// serialize per chat, so a burst of taps on the same keyboard cannot
// interleave state transitions.
type Engine struct {
	logger  *slog.Logger
	store   database.Store
	msgr    telegram.Messenger
	catalog *i18n.Catalog
	sync    crm.Syncer
	cfg     *config.Config
	locks   *chatLocks
	now     func() time.Time
}

// NewEngine wires the conversation engine.
func NewEngine(
	store database.Store,
	msgr telegram.Messenger,
	catalog *i18n.Catalog,
	syncer crm.Syncer,
	cfg *config.Config,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		logger:  logger.With("component", "funnel"),
		store:   store,
		msgr:    msgr,
		catalog: catalog,
		sync:    syncer,
		cfg:     cfg,
		locks:   newChatLocks(),
		now:     time.Now,
	}
}

// Start handles /start: the user record is created or reset and the
// language picker is shown.
func (e *Engine) Start(ctx context.Context, chatID int64, username string) error {
	defer e.locks.lock(chatID)()

	if _, err := e.store.CreateUser(ctx, chatID, username); err != nil {
		return err
	}

	keyboard := [][]telegram.Button{
		{
			{Label: e.text("language_button.ru", i18n.FallbackLocale, nil), Data: "lang_ru"},
			{Label: e.text("language_button.uz", i18n.FallbackLocale, nil), Data: "lang_uz"},
		},
		{
			{Label: e.text("language_button.en", i18n.FallbackLocale, nil), Data: "lang_en"},
			{Label: e.text("language_button.tr", i18n.FallbackLocale, nil), Data: "lang_tr"},
		},
	}
	return e.msgr.Send(ctx, telegram.Outbound{
		ChatID:   chatID,
		Text:     e.text("language_select", i18n.FallbackLocale, nil),
		Keyboard: keyboard,
	})
}

// Menu shows the main menu in the user's language.
func (e *Engine) Menu(ctx context.Context, chatID int64, username string) error {
	defer e.locks.lock(chatID)()

	user, err := e.store.GetOrCreateUser(ctx, chatID, username)
	if err != nil {
		return err
	}
	return e.sendMenu(ctx, user)
}

// HandleText processes a free-text message according to the current
// conversation state. Text outside an expected state is ignored.
func (e *Engine) HandleText(ctx context.Context, chatID int64, text string) error {
	trimmed := strings.TrimSpace(text)

	switch strings.ToLower(trimmed) {
	case "меню", "menu", "menyu":
		return e.Menu(ctx, chatID, "")
	}

	defer e.locks.lock(chatID)()

	user, err := e.store.GetUser(ctx, chatID)
	if err != nil {
		return err
	}
	if user == nil {
		return nil
	}

	switch user.State {
	case StateAwaitingName:
		return e.acceptName(ctx, user, trimmed)
	case StateAwaitingPhone:
		return e.acceptPhone(ctx, user, trimmed, false)
	}

	// Text outside an expected step is relayed to the CRM as a lead
	// note; the dispatcher drops it when no lead exists yet.
	if trimmed != "" {
		e.sync.Enqueue(crm.Command{
			Kind:   crm.CommandNote,
			ChatID: user.ChatID,
			Note:   trimmed,
		})
	}
	return nil
}

// HandleContact processes a shared contact. Contacts arriving outside
// the phone step are ignored.
func (e *Engine) HandleContact(ctx context.Context, chatID int64, phone string) error {
	defer e.locks.lock(chatID)()

	user, err := e.store.GetUser(ctx, chatID)
	if err != nil {
		return err
	}
	if user == nil || user.State != StateAwaitingPhone {
		return nil
	}
	return e.acceptPhone(ctx, user, phone, true)
}

// HandleCallback routes a decoded inline keyboard press. Events that
// do not match the chat's current state are dropped, which makes a
// double tap on a stale keyboard harmless.
func (e *Engine) HandleCallback(ctx context.Context, chatID int64, data string) error {
	ev := ParseCallback(data)

	if ev.Kind == EventAdminStatus {
		return e.handleAdminStatus(ctx, chatID, ev)
	}

	defer e.locks.lock(chatID)()

	user, err := e.store.GetOrCreateUser(ctx, chatID, "")
	if err != nil {
		return err
	}

	switch ev.Kind {
	case EventLanguage:
		return e.handleLanguage(ctx, user, ev.Value)
	case EventChildrenCount:
		return e.handleChildrenCount(ctx, user, ev.Value)
	case EventChildAge:
		return e.handleChildAge(ctx, user, ev.Value)
	case EventProgram:
		return e.handleProgram(ctx, user, ev.Value)
	case EventEnrollment:
		return e.handleEnrollment(ctx, user, ev.Value)
	case EventMenu:
		return e.handleMenu(ctx, user, ev.Value)
	case EventCampus:
		return e.handleCampus(ctx, user, ev.Value)
	case EventNextWeek:
		return e.handleNextWeek(ctx, user)
	case EventDate:
		return e.handleDate(ctx, user, ev.Value)
	case EventTime:
		return e.handleTime(ctx, user, ev.Value)
	case EventReminder:
		return e.handleReminder(ctx, user, ev.Value)
	}

	e.logger.Debug("ignoring unknown callback", "chat_id", chatID, "data", data)
	return nil
}

func (e *Engine) handleLanguage(ctx context.Context, user *database.User, lang string) error {
	if !i18n.IsSupported(lang) {
		return nil
	}

	user.Language = lang
	user.State = StateAwaitingName
	if err := e.store.SaveUser(ctx, user); err != nil {
		return err
	}
	return e.send(ctx, user, "enter_name", nil)
}

func (e *Engine) acceptName(ctx context.Context, user *database.User, name string) error {
	if name == "" {
		return nil
	}

	user.Name = nullString(name)
	user.State = StateAwaitingPhone
	if err := e.store.SaveUser(ctx, user); err != nil {
		return err
	}
	return e.askPhone(ctx, user)
}

func (e *Engine) askPhone(ctx context.Context, user *database.User) error {
	return e.msgr.Send(ctx, telegram.Outbound{
		ChatID:         user.ChatID,
		Text:           e.text("welcome", user.Language, nil),
		ContactRequest: e.text("share_contact", user.Language, nil),
	})
}

func (e *Engine) acceptPhone(ctx context.Context, user *database.User, phone string, fromContact bool) error {
	// Manually typed numbers are validated; contacts came from
	// Telegram and are trusted as-is.
	if !fromContact && !ValidatePhone(phone) {
		return e.send(ctx, user, "invalid_phone", nil)
	}

	normalized := NormalizePhone(phone)
	user.Phone = nullString(normalized)
	user.State = StateAwaitingChildren
	if err := e.store.SaveUser(ctx, user); err != nil {
		return err
	}

	if err := e.msgr.Send(ctx, telegram.Outbound{
		ChatID:         user.ChatID,
		Text:           "✅",
		RemoveKeyboard: true,
	}); err != nil {
		return err
	}

	e.sync.Enqueue(crm.Command{
		Kind:    crm.CommandContactUpsert,
		ChatID:  user.ChatID,
		Phone:   normalized,
		Contact: e.contactAttrs(user),
	})

	return e.askChildrenCount(ctx, user)
}

func (e *Engine) askChildrenCount(ctx context.Context, user *database.User) error {
	keyboard := [][]telegram.Button{{
		{Label: "1", Data: "children_1"},
		{Label: "2", Data: "children_2"},
		{Label: "3", Data: "children_3"},
		{Label: "4+", Data: "children_4"},
	}}
	return e.msgr.Send(ctx, telegram.Outbound{
		ChatID:   user.ChatID,
		Text:     e.text("children_count", user.Language, nil),
		Keyboard: keyboard,
	})
}

func (e *Engine) handleChildrenCount(ctx context.Context, user *database.User, value string) error {
	if user.State != StateAwaitingChildren {
		return nil
	}

	count, err := strconv.Atoi(value)
	if err != nil || count < 1 || count > 4 {
		return nil
	}

	user.ChildrenCount = nullInt(int64(count))
	user.CurrentChild = nullInt(1)
	user.SetAgesList([]string{})
	user.State = StateAwaitingChildAge
	if err := e.store.SaveUser(ctx, user); err != nil {
		return err
	}
	return e.askChildAge(ctx, user, 1)
}

func (e *Engine) askChildAge(ctx context.Context, user *database.User, childNum int64) error {
	keyboard := [][]telegram.Button{
		{
			{Label: e.text("age_group.3-6", user.Language, nil), Data: "age_3-6"},
			{Label: e.text("age_group.7-10", user.Language, nil), Data: "age_7-10"},
		},
		{
			{Label: e.text("age_group.11-14", user.Language, nil), Data: "age_11-14"},
			{Label: e.text("age_group.15-18", user.Language, nil), Data: "age_15-18"},
		},
	}
	subs := map[string]string{"num": strconv.FormatInt(childNum, 10)}
	return e.msgr.Send(ctx, telegram.Outbound{
		ChatID:   user.ChatID,
		Text:     e.text("child_age", user.Language, subs),
		Keyboard: keyboard,
	})
}

func (e *Engine) handleChildAge(ctx context.Context, user *database.User, ageRange string) error {
	if user.State != StateAwaitingChildAge {
		return nil
	}

	ages := append(user.AgesList(), ageRange)
	user.SetAgesList(ages)

	current := user.CurrentChild.Int64
	if current < 1 {
		current = 1
	}
	total := user.ChildrenCount.Int64
	if total < 1 {
		total = 1
	}

	if current < total {
		user.CurrentChild = nullInt(current + 1)
		if err := e.store.SaveUser(ctx, user); err != nil {
			return err
		}
		return e.askChildAge(ctx, user, current+1)
	}

	user.State = StateAwaitingProgram
	if err := e.store.SaveUser(ctx, user); err != nil {
		return err
	}
	return e.askProgram(ctx, user)
}

func (e *Engine) askProgram(ctx context.Context, user *database.User) error {
	keyboard := [][]telegram.Button{
		{{Label: e.text("program.kindergarten", user.Language, nil), Data: "program_kindergarten"}},
		{{Label: e.text("program.russian", user.Language, nil), Data: "program_russian"}},
		{{Label: e.text("program.ib", user.Language, nil), Data: "program_ib"}},
		{{Label: e.text("program.consultation", user.Language, nil), Data: "program_consultation"}},
	}
	return e.msgr.Send(ctx, telegram.Outbound{
		ChatID:   user.ChatID,
		Text:     e.text("program_interest", user.Language, nil),
		Keyboard: keyboard,
	})
}

func (e *Engine) handleProgram(ctx context.Context, user *database.User, program string) error {
	if user.State != StateAwaitingProgram {
		return nil
	}

	user.Program = nullString(program)
	user.State = StateAwaitingEnrollment
	if err := e.store.SaveUser(ctx, user); err != nil {
		return err
	}

	keyboard := [][]telegram.Button{
		{{Label: e.text("enrollment.this_sem", user.Language, nil), Data: "enroll_this_sem"}},
		{{Label: e.text("enrollment.next_year", user.Language, nil), Data: "enroll_next_year"}},
		{{Label: e.text("enrollment.exploring", user.Language, nil), Data: "enroll_exploring"}},
	}
	return e.msgr.Send(ctx, telegram.Outbound{
		ChatID:   user.ChatID,
		Text:     e.text("enrollment_question", user.Language, nil),
		Keyboard: keyboard,
	})
}

func (e *Engine) handleEnrollment(ctx context.Context, user *database.User, enrollment string) error {
	if user.State != StateAwaitingEnrollment {
		return nil
	}

	user.Enrollment = nullString(enrollment)
	user.State = StateReady
	if err := e.store.SaveUser(ctx, user); err != nil {
		return err
	}

	// Qualification is complete: hand the lead to the CRM queue and
	// the admissions chat. Neither may block or fail the conversation.
	e.sync.Enqueue(crm.Command{
		Kind:    crm.CommandLeadCreate,
		ChatID:  user.ChatID,
		Phone:   user.Phone.String,
		Contact: e.contactAttrs(user),
		Lead: crm.Lead{
			Name:          user.Name.String,
			ChildrenCount: int(user.ChildrenCount.Int64),
			ChildrenAges:  user.AgesList(),
			Program:       user.Program.String,
			Enrollment:    enrollment,
		},
	})
	e.notifyNewLead(ctx, user)

	keyboard := [][]telegram.Button{{
		{Label: "📢 " + e.text("menu_button.channel", user.Language, nil), URL: e.cfg.School.ChannelLink},
	}}
	subs := map[string]string{"phone": e.cfg.School.ContactPhone}
	return e.msgr.Send(ctx, telegram.Outbound{
		ChatID:   user.ChatID,
		Text:     e.text("handoff", user.Language, subs),
		Keyboard: keyboard,
	})
}

func (e *Engine) sendMenu(ctx context.Context, user *database.User) error {
	keyboard := [][]telegram.Button{
		{{Label: e.text("menu_button.book_tour", user.Language, nil), Data: "menu_book_tour"}},
		{{Label: e.text("menu_button.addresses", user.Language, nil), Data: "menu_addresses"}},
		{{Label: e.text("menu_button.contact_manager", user.Language, nil), Data: "menu_contact_manager"}},
		{{Label: e.text("menu_button.channel", user.Language, nil), URL: e.cfg.School.ChannelLink}},
	}
	return e.msgr.Send(ctx, telegram.Outbound{
		ChatID:   user.ChatID,
		Text:     e.text("menu", user.Language, nil),
		Keyboard: keyboard,
	})
}

func (e *Engine) handleMenu(ctx context.Context, user *database.User, action string) error {
	switch action {
	case "book_tour":
		return e.startBooking(ctx, user)
	case "addresses":
		return e.sendAddresses(ctx, user)
	case "contact_manager":
		e.notifyContactRequest(ctx, user)
		e.sync.Enqueue(crm.Command{
			Kind:   crm.CommandTask,
			ChatID: user.ChatID,
			Note:   "User requested manager contact via Telegram bot",
		})
		return e.send(ctx, user, "manager_will_contact", nil)
	}
	return nil
}

func (e *Engine) startBooking(ctx context.Context, user *database.User) error {
	// Booking requires a captured phone; send the user back to the
	// phone step otherwise.
	if !user.Phone.Valid || user.Phone.String == "" {
		user.State = StateAwaitingPhone
		if err := e.store.SaveUser(ctx, user); err != nil {
			return err
		}
		return e.askPhone(ctx, user)
	}

	user.State = StateBookingCampus
	if err := e.store.SaveUser(ctx, user); err != nil {
		return err
	}

	keyboard := make([][]telegram.Button, 0, len(e.cfg.School.Campuses))
	for _, key := range e.campusKeys() {
		campus := e.cfg.School.Campuses[key]
		keyboard = append(keyboard, []telegram.Button{
			{Label: campus.Name(user.Language), Data: "campus_" + key},
		})
	}
	return e.msgr.Send(ctx, telegram.Outbound{
		ChatID:   user.ChatID,
		Text:     e.text("select_campus", user.Language, nil),
		Keyboard: keyboard,
	})
}

func (e *Engine) handleCampus(ctx context.Context, user *database.User, campus string) error {
	if user.State != StateBookingCampus {
		return nil
	}
	if _, ok := e.cfg.School.Campuses[campus]; !ok {
		return nil
	}

	user.TourCampus = nullString(campus)
	user.State = StateBookingDate
	if err := e.store.SaveUser(ctx, user); err != nil {
		return err
	}
	return e.askDates(ctx, user, 0)
}

func (e *Engine) handleNextWeek(ctx context.Context, user *database.User) error {
	if user.State != StateBookingDate {
		return nil
	}
	return e.askDates(ctx, user, 1)
}

func (e *Engine) askDates(ctx context.Context, user *database.User, weekOffset int) error {
	dates := TourDateOptions(e.now(), weekOffset)

	keyboard := make([][]telegram.Button, 0, len(dates)+1)
	for _, d := range dates {
		keyboard = append(keyboard, []telegram.Button{{
			Label: i18n.FormatDateShort(d, user.Language),
			Data:  "date_" + d.Format("2006-01-02"),
		}})
	}
	if weekOffset == 0 {
		keyboard = append(keyboard, []telegram.Button{{
			Label: e.text("next_week", user.Language, nil),
			Data:  "date_next_week",
		}})
	}
	return e.msgr.Send(ctx, telegram.Outbound{
		ChatID:   user.ChatID,
		Text:     e.text("select_date", user.Language, nil),
		Keyboard: keyboard,
	})
}

func (e *Engine) handleDate(ctx context.Context, user *database.User, date string) error {
	if user.State != StateBookingDate {
		return nil
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil
	}

	user.TourDate = nullString(date)
	user.State = StateBookingTime
	if err := e.store.SaveUser(ctx, user); err != nil {
		return err
	}

	keyboard := make([][]telegram.Button, 0, len(e.cfg.School.TourTimes))
	for _, slot := range e.cfg.School.TourTimes {
		keyboard = append(keyboard, []telegram.Button{{Label: slot, Data: "time_" + slot}})
	}
	return e.msgr.Send(ctx, telegram.Outbound{
		ChatID:   user.ChatID,
		Text:     e.text("select_time", user.Language, nil),
		Keyboard: keyboard,
	})
}

func (e *Engine) handleTime(ctx context.Context, user *database.User, slot string) error {
	if user.State != StateBookingTime {
		return nil
	}

	user.TourTime = nullString(slot)
	tour := &database.Tour{
		ChatID:   user.ChatID,
		Phone:    user.Phone.String,
		Campus:   user.TourCampus.String,
		Date:     user.TourDate.String,
		Time:     slot,
		Language: user.Language,
		Status:   database.TourStatusBooked,
	}
	if err := e.store.CreateTour(ctx, tour); err != nil {
		return err
	}

	user.State = StateReady
	if err := e.store.SaveUser(ctx, user); err != nil {
		return err
	}

	campus := e.cfg.School.Campuses[tour.Campus]
	date, _ := time.Parse("2006-01-02", tour.Date)
	formattedDate := i18n.FormatDateLong(date, user.Language)

	e.notifyTourBooked(ctx, user, campus.Name(user.Language), formattedDate, slot)
	e.sync.Enqueue(crm.Command{
		Kind:   crm.CommandLeadUpdate,
		ChatID: user.ChatID,
		Tour: crm.TourUpdate{
			Campus: tour.Campus,
			Date:   tour.Date,
			Time:   tour.Time,
			Status: tour.Status,
		},
	})

	subs := map[string]string{
		"campus":  campus.Name(user.Language),
		"date":    formattedDate,
		"time":    slot,
		"address": campus.Address,
		"map":     campus.MapURL,
	}
	return e.send(ctx, user, "tour_confirmed", subs)
}

func (e *Engine) handleReminder(ctx context.Context, user *database.User, action string) error {
	tour, err := e.store.ActiveTourForChat(ctx, user.ChatID)
	if err != nil {
		return err
	}
	if tour == nil {
		return e.send(ctx, user, "tour_not_found", nil)
	}

	switch action {
	case "confirm":
		if err := e.store.SetTourStatus(ctx, tour.ID, database.TourStatusConfirmed); err != nil {
			return err
		}
		e.sync.Enqueue(crm.Command{
			Kind:   crm.CommandLeadUpdate,
			ChatID: user.ChatID,
			Tour:   crm.TourUpdate{Status: database.TourStatusConfirmed},
		})
		return e.send(ctx, user, "reminder_confirmed", nil)

	case "reschedule", "cancel":
		if err := e.store.SetTourStatus(ctx, tour.ID, database.TourStatusCancelled); err != nil {
			return err
		}
		e.notifyTourChange(ctx, user, tour, action)
		e.sync.Enqueue(crm.Command{
			Kind:   crm.CommandLeadUpdate,
			ChatID: user.ChatID,
			Tour:   crm.TourUpdate{Status: database.TourStatusCancelled},
		})
		return e.send(ctx, user, "reschedule_message", nil)
	}
	return nil
}

func (e *Engine) handleAdminStatus(ctx context.Context, chatID int64, ev Event) error {
	if chatID != e.cfg.Telegram.AdmissionsChatID && !e.cfg.IsAdmin(chatID) {
		e.logger.Warn("status update from unauthorized chat", "chat_id", chatID)
		return nil
	}

	switch ev.Value {
	case database.TourStatusAttended, database.TourStatusNoShow, database.TourStatusRescheduled:
	default:
		return nil
	}

	tour, err := e.store.GetTour(ctx, ev.TourID)
	if err != nil {
		return err
	}
	if tour == nil {
		e.logger.Warn("status update for unknown tour", "tour_id", ev.TourID)
		return nil
	}

	if err := e.store.SetTourStatus(ctx, ev.TourID, ev.Value); err != nil {
		return err
	}
	e.sync.Enqueue(crm.Command{
		Kind:   crm.CommandLeadUpdate,
		ChatID: tour.ChatID,
		Tour: crm.TourUpdate{
			Campus: tour.Campus,
			Date:   tour.Date,
			Time:   tour.Time,
			Status: ev.Value,
		},
	})
	return e.msgr.Send(ctx, telegram.Outbound{
		ChatID: chatID,
		Text:   fmt.Sprintf("✅ Tour %d status updated to: %s", ev.TourID, ev.Value),
	})
}

func (e *Engine) sendAddresses(ctx context.Context, user *database.User) error {
	var b strings.Builder
	b.WriteString(e.text("campus_addresses", user.Language, nil))
	b.WriteString("\n\n")
	for _, key := range e.campusKeys() {
		campus := e.cfg.School.Campuses[key]
		fmt.Fprintf(&b, "📍 %s\n%s\n🗺 %s\n\n", campus.Name(user.Language), campus.Address, campus.MapURL)
	}
	return e.msgr.Send(ctx, telegram.Outbound{ChatID: user.ChatID, Text: b.String()})
}

func (e *Engine) campusKeys() []string {
	keys := make([]string, 0, len(e.cfg.School.Campuses))
	for key := range e.cfg.School.Campuses {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (e *Engine) contactAttrs(user *database.User) crm.ContactAttrs {
	return crm.ContactAttrs{
		Name:     user.Name.String,
		ChatID:   user.ChatID,
		Username: user.Username,
		Language: user.Language,
	}
}

func (e *Engine) text(key, locale string, subs map[string]string) string {
	return e.catalog.Lookup(key, locale, subs)
}

func (e *Engine) send(ctx context.Context, user *database.User, key string, subs map[string]string) error {
	return e.msgr.Send(ctx, telegram.Outbound{
		ChatID: user.ChatID,
		Text:   e.text(key, user.Language, subs),
	})
}
