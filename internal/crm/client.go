// Package crm integrates with the Kommo (amoCRM) REST API: contact and
// lead management, notes, tasks, and webhook signature verification.
package crm

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oxbridge-edu/admissions-bot/internal/config"
)

// Kommo custom field and enum identifiers for the admissions account.
const (
	fieldContactPhone    = 522485
	fieldTelegramChatID  = 995929
	fieldTelegramUser    = 995927
	fieldLanguage        = 995931
	fieldChildrenCount   = 995937
	fieldChildrenAges    = 991841
	fieldProgram         = 995887
	fieldEnrollment      = 995907
	fieldEnrollmentText  = 995943
	fieldTourCampus      = 982191
	fieldTourDateTime    = 991845
	enumProgramKG        = 1222831
	enumProgramRussian   = 1222833
	enumProgramIB        = 1222835
	enumProgramConsult   = 1222837
	enumEnrollThisSem    = 1222871
	enumEnrollNextYear   = 1222873
	enumEnrollExploring  = 1222875
	enumCampusMU         = 1211167
	enumCampusYashnobod  = 1211169
)

// tokenExpiryBuffer refreshes the access token slightly before its
// reported expiry to avoid racing the deadline.
const tokenExpiryBuffer = 5 * time.Minute

// ContactAttrs carries optional contact metadata synced alongside the
// phone number.
type ContactAttrs struct {
	Name     string
	ChatID   int64
	Username string
	Language string
}

// Lead carries the funnel answers that populate a new admissions lead.
type Lead struct {
	Name          string
	ChildrenCount int
	ChildrenAges  []string
	Program       string
	Enrollment    string
	TourCampus    string
	TourDate      string
	TourTime      string
}

// TourUpdate carries tour detail changes applied to an existing lead.
type TourUpdate struct {
	Campus string
	Date   string
	Time   string
	Status string
}

// API is the CRM surface the bot depends on. It exists so the sync
// dispatcher and funnel can be tested without live credentials.
type API interface {
	UpsertContact(ctx context.Context, phone string, attrs ContactAttrs) (int64, error)
	CreateLead(ctx context.Context, contactID int64, phone string, lead Lead) (int64, error)
	UpdateLeadTour(ctx context.Context, leadID int64, update TourUpdate) error
	AddNote(ctx context.Context, leadID int64, text string) error
	CreateTask(ctx context.Context, leadID int64, text string, completeTill time.Time) error
}

// Client talks to the Kommo v4 REST API with OAuth2 token refresh.
type Client struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
	accountURL string
	cfg        config.CRMConfig

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

// NewClient builds a Kommo API client from configuration. baseURL is
// the account v4 API root, e.g. https://school.kommo.com/api/v4.
func NewClient(cfg config.CRMConfig, logger *slog.Logger) *Client {
	return &Client{
		logger:       logger.With("component", "crm"),
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		accountURL:   strings.TrimSuffix(strings.TrimSuffix(cfg.BaseURL, "/"), "/api/v4"),
		cfg:          cfg,
		accessToken:  cfg.AccessToken,
		refreshToken: cfg.RefreshToken,
	}
}

// UpsertContact finds a contact by phone and updates it, or creates a
// new one, returning the contact ID.
func (c *Client) UpsertContact(ctx context.Context, phone string, attrs ContactAttrs) (int64, error) {
	existingID, err := c.findContactByPhone(ctx, phone)
	if err != nil {
		return 0, err
	}

	fields := []map[string]any{
		{
			"field_code": "PHONE",
			"values":     []map[string]any{{"value": phone, "enum_code": "WORK"}},
		},
		{
			"field_id": fieldContactPhone,
			"values":   []map[string]any{{"value": phone}},
		},
	}
	if attrs.ChatID != 0 {
		fields = append(fields, map[string]any{
			"field_id": fieldTelegramChatID,
			"values":   []map[string]any{{"value": strconv.FormatInt(attrs.ChatID, 10)}},
		})
	}
	if attrs.Username != "" {
		fields = append(fields, map[string]any{
			"field_id": fieldTelegramUser,
			"values":   []map[string]any{{"value": attrs.Username}},
		})
	}
	if attrs.Language != "" {
		fields = append(fields, map[string]any{
			"field_id": fieldLanguage,
			"values":   []map[string]any{{"value": attrs.Language}},
		})
	}

	contact := map[string]any{"custom_fields_values": fields}
	if attrs.Name != "" {
		contact["name"] = attrs.Name
	}

	if existingID > 0 {
		if _, err := c.do(ctx, http.MethodPatch, fmt.Sprintf("contacts/%d", existingID), contact); err != nil {
			return 0, fmt.Errorf("failed to update contact %d: %w", existingID, err)
		}
		return existingID, nil
	}

	body, err := c.do(ctx, http.MethodPost, "contacts", []map[string]any{contact})
	if err != nil {
		return 0, fmt.Errorf("failed to create contact: %w", err)
	}

	var result struct {
		Embedded struct {
			Contacts []struct {
				ID int64 `json:"id"`
			} `json:"contacts"`
		} `json:"_embedded"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("failed to decode contact response: %w", err)
	}
	if len(result.Embedded.Contacts) == 0 {
		return 0, fmt.Errorf("contact response contained no contacts")
	}
	return result.Embedded.Contacts[0].ID, nil
}

// CreateLead creates an admissions lead attached to the contact and
// returns the new lead ID.
func (c *Client) CreateLead(ctx context.Context, contactID int64, phone string, lead Lead) (int64, error) {
	var fields []map[string]any

	if lead.ChildrenCount > 0 {
		fields = append(fields, map[string]any{
			"field_id": fieldChildrenCount,
			"values":   []map[string]any{{"value": strconv.Itoa(lead.ChildrenCount)}},
		})
	}
	if len(lead.ChildrenAges) > 0 {
		fields = append(fields, map[string]any{
			"field_id": fieldChildrenAges,
			"values":   []map[string]any{{"value": strings.Join(lead.ChildrenAges, ", ")}},
		})
	}
	if lead.Program != "" {
		fields = append(fields, map[string]any{
			"field_id": fieldProgram,
			"values":   []map[string]any{{"enum_id": programEnum(lead.Program)}},
		})
	}
	if lead.Enrollment != "" {
		if enumID, text, ok := enrollmentEnum(lead.Enrollment); ok {
			fields = append(fields,
				map[string]any{
					"field_id": fieldEnrollment,
					"values":   []map[string]any{{"enum_id": enumID}},
				},
				map[string]any{
					"field_id": fieldEnrollmentText,
					"values":   []map[string]any{{"value": text}},
				},
			)
		}
	}
	if lead.TourCampus != "" {
		fields = append(fields, map[string]any{
			"field_id": fieldTourCampus,
			"values":   []map[string]any{{"enum_id": campusEnum(lead.TourCampus)}},
		})
	}
	if lead.TourDate != "" {
		fields = append(fields, map[string]any{
			"field_id": fieldTourDateTime,
			"values":   []map[string]any{{"value": lead.TourDate + " " + lead.TourTime}},
		})
	}

	name := "Telegram Lead - " + phone
	if lead.Name != "" {
		name = lead.Name + " - " + phone
	}

	data := map[string]any{
		"name":                 name,
		"custom_fields_values": fields,
	}
	if contactID > 0 {
		data["_embedded"] = map[string]any{
			"contacts": []map[string]any{{"id": contactID}},
		}
	}
	if c.cfg.PipelineID != 0 {
		data["pipeline_id"] = c.cfg.PipelineID
	}
	if c.cfg.StatusID != 0 {
		data["status_id"] = c.cfg.StatusID
	}

	body, err := c.do(ctx, http.MethodPost, "leads", []map[string]any{data})
	if err != nil {
		return 0, fmt.Errorf("failed to create lead: %w", err)
	}

	var result struct {
		Embedded struct {
			Leads []struct {
				ID int64 `json:"id"`
			} `json:"leads"`
		} `json:"_embedded"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("failed to decode lead response: %w", err)
	}
	if len(result.Embedded.Leads) == 0 {
		return 0, fmt.Errorf("lead response contained no leads")
	}
	return result.Embedded.Leads[0].ID, nil
}

// UpdateLeadTour writes tour detail fields onto an existing lead.
func (c *Client) UpdateLeadTour(ctx context.Context, leadID int64, update TourUpdate) error {
	var fields []map[string]any
	add := func(name, value string) {
		if value != "" {
			fields = append(fields, map[string]any{
				"field_name": name,
				"values":     []map[string]any{{"value": value}},
			})
		}
	}
	add("Tour Campus", update.Campus)
	add("Tour Date", update.Date)
	add("Tour Time", update.Time)
	add("Tour Status", update.Status)

	data := map[string]any{"custom_fields_values": fields}
	if _, err := c.do(ctx, http.MethodPatch, fmt.Sprintf("leads/%d", leadID), data); err != nil {
		return fmt.Errorf("failed to update lead %d: %w", leadID, err)
	}
	return nil
}

// AddNote appends a plain-text note to a lead.
func (c *Client) AddNote(ctx context.Context, leadID int64, text string) error {
	note := map[string]any{
		"note_type": "common",
		"params":    map[string]any{"text": text},
		"entity_id": leadID,
	}
	endpoint := fmt.Sprintf("leads/%d/notes", leadID)
	if _, err := c.do(ctx, http.MethodPost, endpoint, []map[string]any{note}); err != nil {
		return fmt.Errorf("failed to add note to lead %d: %w", leadID, err)
	}
	return nil
}

// CreateTask creates a follow-up task on a lead due at completeTill.
func (c *Client) CreateTask(ctx context.Context, leadID int64, text string, completeTill time.Time) error {
	task := map[string]any{
		"text":          text,
		"complete_till": completeTill.Unix(),
		"entity_id":     leadID,
		"entity_type":   "leads",
	}
	if _, err := c.do(ctx, http.MethodPost, "tasks", []map[string]any{task}); err != nil {
		return fmt.Errorf("failed to create task on lead %d: %w", leadID, err)
	}
	return nil
}

func (c *Client) findContactByPhone(ctx context.Context, phone string) (int64, error) {
	endpoint := "contacts?query=" + url.QueryEscape(phone)
	body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to search contacts: %w", err)
	}
	if len(body) == 0 {
		return 0, nil
	}

	var result struct {
		Embedded struct {
			Contacts []struct {
				ID int64 `json:"id"`
			} `json:"contacts"`
		} `json:"_embedded"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("failed to decode contact search: %w", err)
	}
	if len(result.Embedded.Contacts) == 0 {
		return 0, nil
	}
	return result.Embedded.Contacts[0].ID, nil
}

// do performs one API request, refreshing the access token before the
// call when close to expiry and retrying once on 401.
func (c *Client) do(ctx context.Context, method, endpoint string, payload any) ([]byte, error) {
	c.mu.Lock()
	if !c.expiresAt.IsZero() && time.Now().After(c.expiresAt.Add(-tokenExpiryBuffer)) {
		if err := c.refreshAccessToken(ctx); err != nil {
			c.logger.Warn("token refresh before request failed", "error", err)
		}
	}
	token := c.accessToken
	c.mu.Unlock()

	body, status, err := c.send(ctx, method, endpoint, payload, token)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		c.mu.Lock()
		refreshErr := c.refreshAccessToken(ctx)
		token = c.accessToken
		c.mu.Unlock()
		if refreshErr != nil {
			return nil, fmt.Errorf("request unauthorized and token refresh failed: %w", refreshErr)
		}
		body, status, err = c.send(ctx, method, endpoint, payload, token)
		if err != nil {
			return nil, err
		}
	}

	if status == http.StatusNoContent {
		return nil, nil
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("api returned status %d: %s", status, truncate(body, 256))
	}
	return body, nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, payload any, token string) ([]byte, int, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+endpoint, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// refreshAccessToken exchanges the refresh token for new credentials.
// Callers must hold c.mu.
func (c *Client) refreshAccessToken(ctx context.Context) error {
	data := map[string]any{
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
		"grant_type":    "refresh_token",
		"refresh_token": c.refreshToken,
		"redirect_uri":  "https://example.com",
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.accountURL+"/oauth2/access_token", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, truncate(body, 256))
	}

	var tokens struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tokens); err != nil {
		return fmt.Errorf("failed to decode token response: %w", err)
	}

	c.accessToken = tokens.AccessToken
	c.refreshToken = tokens.RefreshToken
	c.expiresAt = time.Now().Add(time.Duration(tokens.ExpiresIn) * time.Second)
	c.logger.Info("access token refreshed", "expires_in", tokens.ExpiresIn)
	return nil
}

// VerifySignature checks an X-Signature webhook header against
// MD5(body + clientSecret).
func VerifySignature(clientSecret string, body []byte, signature string) bool {
	sum := md5.Sum(append(append([]byte{}, body...), []byte(clientSecret)...))
	return strings.EqualFold(hex.EncodeToString(sum[:]), signature)
}

func programEnum(program string) int64 {
	key := strings.ToLower(program)
	switch {
	case strings.Contains(key, "kinder"):
		return enumProgramKG
	case strings.Contains(key, "russian"):
		return enumProgramRussian
	case strings.Contains(key, "ib"):
		return enumProgramIB
	default:
		return enumProgramConsult
	}
}

func enrollmentEnum(enrollment string) (int64, string, bool) {
	key := enrollment
	if !strings.HasPrefix(key, "enroll_") {
		key = "enroll_" + key
	}
	switch key {
	case "enroll_this_sem":
		return enumEnrollThisSem, "В этом семестре", true
	case "enroll_next_year":
		return enumEnrollNextYear, "В следующем учебном году", true
	case "enroll_exploring":
		return enumEnrollExploring, "Пока просто изучает варианты", true
	}
	return 0, "", false
}

func campusEnum(campus string) int64 {
	if strings.Contains(strings.ToLower(campus), "mu") {
		return enumCampusMU
	}
	return enumCampusYashnobod
}

func truncate(body []byte, max int) string {
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
