// Package http exposes the alarm engine admin endpoints.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	alarmapp "shopfloor-cloud/internal/alarms/application"
	alarms "shopfloor-cloud/internal/alarms/domain"
	"shopfloor-cloud/internal/alarms/interfaces"
	"shopfloor-cloud/internal/alarms/store"
	"shopfloor-cloud/internal/audit"
	"shopfloor-cloud/internal/auth"
	subscriptions "shopfloor-cloud/internal/subscriptions/domain"
)

const timeLayout = time.RFC3339

// Handler provides the alarm definition, check, event and recipient
// endpoints under /api/v1/alarm/.
type Handler struct {
	st           store.Store
	orchestrator *alarmapp.Orchestrator
	audit        audit.Logger
}

// NewHandler constructs a handler. The audit logger may be nil.
func NewHandler(st store.Store, orchestrator *alarmapp.Orchestrator, auditLogger audit.Logger) (*Handler, error) {
	if st == nil {
		return nil, errors.New("alarm handler: nil store")
	}
	if orchestrator == nil {
		return nil, errors.New("alarm handler: nil orchestrator")
	}
	return &Handler{st: st, orchestrator: orchestrator, audit: auditLogger}, nil
}

// ServeHTTP routes /api/v1/alarm/ subpaths.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/api/v1/alarm/defs":
		h.handleListDefs(w, r)
	case strings.HasPrefix(path, "/api/v1/alarm/defs/"):
		h.handleDef(w, r, strings.TrimPrefix(path, "/api/v1/alarm/defs/"))
	case path == "/api/v1/alarm/check":
		h.handleCheck(w, r)
	case path == "/api/v1/alarm/events":
		h.handleListEvents(w, r)
	case path == "/api/v1/alarm/events/export.xlsx":
		h.handleExport(w, r, "xlsx")
	case path == "/api/v1/alarm/events/report.pdf":
		h.handleExport(w, r, "pdf")
	case path == "/api/v1/alarm/recips":
		h.handleListRecipients(w, r)
	case strings.HasPrefix(path, "/api/v1/alarm/recips/"):
		h.handleRecipient(w, r, strings.TrimPrefix(path, "/api/v1/alarm/recips/"))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type conditionPayload struct {
	Kind            string          `json:"kind"`
	Device          string          `json:"device"`
	DataID          string          `json:"data_id"`
	Rel             string          `json:"rel,omitempty"`
	Value           json.RawMessage `json:"value,omitempty"`
	AggregatePeriod int             `json:"aggregate_period,omitempty"`
	AggregateCount  int             `json:"aggregate_count,omitempty"`
	AggregateMethod string          `json:"aggregate_method,omitempty"`
	AgeMin          int             `json:"age_min,omitempty"`
	AgeMax          int             `json:"age_max,omitempty"`
}

type defPayload struct {
	Conditions []conditionPayload `json:"conditions"`
	Window     int                `json:"window,omitempty"`
	MaxFreq    int                `json:"max_freq,omitempty"`
	SubsGroup  string             `json:"subsgroup"`
	Status     string             `json:"status"`
}

type defResponse struct {
	Name        string                 `json:"name"`
	Conditions  []conditionPayload     `json:"conditions"`
	Window      int                    `json:"window,omitempty"`
	MaxFreq     int                    `json:"max_freq,omitempty"`
	SubsGroup   string                 `json:"subsgroup"`
	Status      string                 `json:"status"`
	LastCheck   time.Time              `json:"last_check"`
	LastReport  *time.Time             `json:"last_report,omitempty"`
	Subscribers []subscriptions.Target `json:"subscribers,omitempty"`
}

func (p conditionPayload) toDomain() (alarms.Condition, error) {
	cond := alarms.Condition{
		Kind:                   alarms.ConditionKind(p.Kind),
		Device:                 p.Device,
		DataID:                 p.DataID,
		Rel:                    alarms.Relation(p.Rel),
		AggregatePeriodSeconds: p.AggregatePeriod,
		AggregateCount:         p.AggregateCount,
		AggregateMethod:        alarms.AggregateMethod(p.AggregateMethod),
		AgeMinSeconds:          p.AgeMin,
		AgeMaxSeconds:          p.AgeMax,
	}
	if len(p.Value) > 0 {
		switch cond.Kind {
		case alarms.KindSample:
			if err := json.Unmarshal(p.Value, &cond.ValueNum); err != nil {
				return cond, fmt.Errorf("condition value: %w", err)
			}
		default:
			if err := json.Unmarshal(p.Value, &cond.ValueText); err != nil {
				return cond, fmt.Errorf("condition value: %w", err)
			}
		}
	}
	return cond, nil
}

func conditionToPayload(cond alarms.Condition) conditionPayload {
	p := conditionPayload{
		Kind:            string(cond.Kind),
		Device:          cond.Device,
		DataID:          cond.DataID,
		Rel:             string(cond.Rel),
		AggregatePeriod: cond.AggregatePeriodSeconds,
		AggregateCount:  cond.AggregateCount,
		AggregateMethod: string(cond.AggregateMethod),
		AgeMin:          cond.AgeMinSeconds,
		AgeMax:          cond.AgeMaxSeconds,
	}
	if cond.Kind == alarms.KindSample {
		p.Value, _ = json.Marshal(cond.ValueNum)
	} else if cond.ValueText != "" {
		p.Value, _ = json.Marshal(cond.ValueText)
	}
	return p
}

func defToResponse(def *alarms.Def, targets []subscriptions.Target) defResponse {
	resp := defResponse{
		Name:        def.Name,
		Window:      def.WindowSeconds,
		MaxFreq:     def.MaxFreqSeconds,
		SubsGroup:   def.SubsGroup,
		Status:      def.Status,
		LastCheck:   def.LastCheck,
		Subscribers: targets,
	}
	if !def.LastReport.IsZero() {
		report := def.LastReport
		resp.LastReport = &report
	}
	for _, cond := range def.Conditions {
		resp.Conditions = append(resp.Conditions, conditionToPayload(cond))
	}
	return resp
}

func (h *Handler) handleListDefs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	defs, err := h.st.ListDefs(r.Context(), store.DefFilter{Status: r.URL.Query().Get("status")})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]defResponse, 0, len(defs))
	for i := range defs {
		out = append(out, defToResponse(&defs[i], nil))
	}
	respondJSON(w, out)
}

func (h *Handler) handleDef(w http.ResponseWriter, r *http.Request, name string) {
	if name == "" || strings.Contains(name, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	switch r.Method {
	case http.MethodGet:
		def, err := h.st.GetDef(r.Context(), name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if def == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		targets, err := h.st.ResolveGroup(r.Context(), def.SubsGroup)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, defToResponse(def, targets))

	case http.MethodPut:
		var payload defPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		def := &alarms.Def{
			Name:           name,
			WindowSeconds:  payload.Window,
			MaxFreqSeconds: payload.MaxFreq,
			SubsGroup:      payload.SubsGroup,
			Status:         payload.Status,
		}
		if def.Status == "" {
			def.Status = alarms.StatusActive
		}
		for _, condPayload := range payload.Conditions {
			cond, err := condPayload.toDomain()
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			def.Conditions = append(def.Conditions, cond)
		}
		stored, err := h.st.PutDef(r.Context(), def)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logAudit(r, "alarm_def.put", name, payload)
		respondJSON(w, defToResponse(stored, nil))

	case http.MethodDelete:
		if err := h.st.DeleteDef(r.Context(), name); err != nil {
			if errors.Is(err, alarms.ErrNotFound) {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		h.logAudit(r, "alarm_def.delete", name, nil)
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type checkRequest struct {
	Name     string `json:"name,omitempty"`
	MaxCount int    `json:"max_count,omitempty"`
	NoAudit  bool   `json:"noaudit,omitempty"`
	Now      string `json:"now,omitempty"`
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	opts := alarmapp.CheckOptions{Name: req.Name, MaxCount: req.MaxCount}
	if req.Now != "" {
		now, err := time.Parse(timeLayout, req.Now)
		if err != nil {
			http.Error(w, "invalid now", http.StatusBadRequest)
			return
		}
		opts.Now = now
	}
	firings, err := h.orchestrator.Check(r.Context(), opts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !req.NoAudit {
		h.logAudit(r, "alarm.check", req.Name, firings)
	}
	if firings == nil {
		firings = []alarmapp.Firing{}
	}
	respondJSON(w, firings)
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	filter, err := eventFilterFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	events, err := h.st.ListEvents(r.Context(), filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []alarms.Event{}
	}
	respondJSON(w, events)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request, format string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	filter, err := eventFilterFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	events, err := h.st.ListEvents(r.Context(), filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	var data []byte
	var contentType, filename string
	switch format {
	case "xlsx":
		data, err = interfaces.BuildEventsXLSX(events)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		filename = "alarm-events.xlsx"
	case "pdf":
		data, err = interfaces.BuildEventReportPDF(events)
		contentType = "application/pdf"
		filename = "alarm-events.pdf"
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_, _ = w.Write(data)
}

func (h *Handler) handleListRecipients(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	query := r.URL.Query()
	filter := store.RecipientFilter{
		EventID: query.Get("event_id"),
		Status:  query.Get("status"),
		Method:  query.Get("method"),
	}
	if query.Get("no_backoff") == "1" {
		filter.NoBackoffAt = time.Now().UTC()
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}
	recipients, err := h.st.ListRecipients(r.Context(), filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if recipients == nil {
		recipients = []alarms.Recipient{}
	}
	respondJSON(w, recipients)
}

type recipientPatch struct {
	Conditions struct {
		Status    []string `json:"status,omitempty"`
		FailCount *int     `json:"fail_count,omitempty"`
	} `json:"conditions"`
	Change struct {
		Status       string     `json:"status,omitempty"`
		FailCount    *int       `json:"fail_count,omitempty"`
		BackoffUntil *time.Time `json:"backoff_until,omitempty"`
	} `json:"change"`
}

func (h *Handler) handleRecipient(w http.ResponseWriter, r *http.Request, id string) {
	if id == "" || strings.Contains(id, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	switch r.Method {
	case http.MethodGet:
		recipient, err := h.st.GetRecipient(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if recipient == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		respondJSON(w, recipient)

	case http.MethodPatch:
		var patch recipientPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		changed, err := h.st.UpdateRecipientIf(r.Context(), id,
			store.RecipientConditions{Status: patch.Conditions.Status, FailCount: patch.Conditions.FailCount},
			store.RecipientChange{
				Status:       patch.Change.Status,
				FailCount:    patch.Change.FailCount,
				BackoffUntil: patch.Change.BackoffUntil,
			})
		if err != nil {
			if errors.Is(err, alarms.ErrNotFound) {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if changed {
			h.logAudit(r, "alarm_recipient.patch", id, patch)
		}
		respondJSON(w, map[string]bool{"changed": changed})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func eventFilterFromQuery(r *http.Request) (store.EventFilter, error) {
	query := r.URL.Query()
	filter := store.EventFilter{AlarmName: query.Get("alarm")}
	if raw := query.Get("from"); raw != "" {
		from, err := time.Parse(timeLayout, raw)
		if err != nil {
			return filter, errors.New("invalid from")
		}
		filter.From = from
	}
	if raw := query.Get("to"); raw != "" {
		to, err := time.Parse(timeLayout, raw)
		if err != nil {
			return filter, errors.New("invalid to")
		}
		filter.To = to
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, errors.New("invalid limit")
		}
		filter.Limit = limit
	}
	return filter, nil
}

func (h *Handler) logAudit(r *http.Request, action, resourceID string, payload any) {
	if h.audit == nil {
		return
	}
	if r.URL.Query().Get("noaudit") == "1" {
		return
	}
	var meta json.RawMessage
	if payload != nil {
		meta, _ = json.Marshal(payload)
	}
	_ = h.audit.Log(r.Context(), audit.Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: "alarm",
		ResourceID:   resourceID,
		Metadata:     meta,
		IP:           r.RemoteAddr,
		UserAgent:    r.UserAgent(),
		CreatedAt:    time.Now().UTC(),
	})
}

func respondJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(value)
}
