// Package notification renders the short staff-facing messages attached to
// notification rows.
package notification

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"
)

// MaxMessageLength matches the notification.message column width.
const MaxMessageLength = 255

type TemplateID string

const (
	TemplateNewCall       TemplateID = "new-call"
	TemplateReminder      TemplateID = "reminder"
	TemplateAssignment    TemplateID = "assignment"
	TemplateAccepted      TemplateID = "accepted"
	TemplateResolved      TemplateID = "resolved"
	TemplateResolvedAdmin TemplateID = "resolved-admin"
	TemplateEscalated     TemplateID = "escalated"
	TemplateCancelled     TemplateID = "cancelled"
	TemplateRoomOccupied  TemplateID = "room-occupied"
	TemplateRoomVacated   TemplateID = "room-vacated"
)

// Template is a message body with {{key}} placeholders.
type Template struct {
	ID   TemplateID
	Body string
}

// TemplateEngine holds message templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[TemplateID]string
}

func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[TemplateID]string)}
	for _, t := range builtIn {
		e.templates[t.ID] = t.Body
	}
	return e
}

var builtIn = []Template{
	{TemplateNewCall, "New emergency in Room {{room}}: {{description}}"},
	{TemplateReminder, "Reminder: {{priority}} priority emergency in Room {{room}} is still waiting"},
	{TemplateAssignment, "You have been assigned to the emergency in Room {{room}}"},
	{TemplateAccepted, "Emergency in Room {{room}} was accepted by {{actor}}"},
	{TemplateResolved, "Emergency in Room {{room}} has been resolved."},
	{TemplateResolvedAdmin, "Emergency in Room {{room}} was resolved at {{time}}."},
	{TemplateEscalated, "Emergency in Room {{room}} escalated to {{role}}"},
	{TemplateCancelled, "Emergency in Room {{room}} was cancelled."},
	{TemplateRoomOccupied, "Room {{room}} is now occupied."},
	{TemplateRoomVacated, "Room {{room}} is now available."},
}

// RegisterTemplate adds or replaces a template.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = t.Body
}

// Render substitutes {{key}} placeholders and truncates the result to
// MaxMessageLength. Placeholders without data are left as-is.
func (e *TemplateEngine) Render(id TemplateID, data map[string]string) (string, error) {
	e.mu.RLock()
	body, ok := e.templates[id]
	e.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("template %q not found", id)
	}

	// Sorted keys keep output deterministic when values contain placeholders.
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{{"+k+"}}", data[k])
	}
	return Truncate(strings.NewReplacer(pairs...).Replace(body), MaxMessageLength), nil
}

// MustRender is Render for built-in templates; an unknown id falls back to
// the raw id so a message is always produced.
func (e *TemplateEngine) MustRender(id TemplateID, data map[string]string) string {
	msg, err := e.Render(id, data)
	if err != nil {
		return string(id)
	}
	return msg
}

// Truncate cuts s to at most n runes without splitting a character.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
