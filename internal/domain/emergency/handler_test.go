package emergency

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mbp/nursecall/internal/platform/auth"
)

func jsonRequest(method, target, body string, actor *auth.Actor) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if actor != nil {
		req = req.WithContext(auth.WithActor(req.Context(), *actor))
	}
	return req
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	return he.Code
}

func TestHandler_Create(t *testing.T) {
	env := newTestEnv()
	h := NewHandler(env.svc)
	room := env.dir.addRoom("R7")
	rec := httptest.NewRecorder()
	body := `{"room_id":"` + room.ID.String() + `","description":"pain","priority":"critical"}`
	c := echo.New().NewContext(jsonRequest(http.MethodPost, "/", body, &env.admin), rec)

	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var got Emergency
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Status != StatusPending || got.Priority != PriorityCritical || got.RoomID != room.ID {
		t.Errorf("unexpected body %+v", got)
	}
}

func TestHandler_Create_Errors(t *testing.T) {
	env := newTestEnv()
	h := NewHandler(env.svc)
	e := echo.New()

	if got := httpCode(t, h.Create(e.NewContext(jsonRequest(http.MethodPost, "/", `{}`, nil), httptest.NewRecorder()))); got != http.StatusUnauthorized {
		t.Errorf("expected 401 without actor, got %d", got)
	}
	if got := httpCode(t, h.Create(e.NewContext(jsonRequest(http.MethodPost, "/", `{}`, &env.admin), httptest.NewRecorder()))); got != http.StatusBadRequest {
		t.Errorf("expected 400 without room, got %d", got)
	}
	body := `{"room_id":"` + uuid.NewString() + `"}`
	if got := httpCode(t, h.Create(e.NewContext(jsonRequest(http.MethodPost, "/", body, &env.admin), httptest.NewRecorder()))); got != http.StatusNotFound {
		t.Errorf("expected 404 for unknown room, got %d", got)
	}
}

func TestHandler_Transition(t *testing.T) {
	env := newTestEnv()
	h := NewHandler(env.svc)
	owner := env.dir.addUser("Owner", auth.RoleStaff, true)
	other := env.dir.addUser("Other", auth.RoleStaff, true)
	em := env.newEmergency(t)
	e := echo.New()

	call := func(actor auth.Actor, body string) (*httptest.ResponseRecorder, error) {
		rec := httptest.NewRecorder()
		c := e.NewContext(jsonRequest(http.MethodPost, "/", body, &actor), rec)
		c.SetParamNames("id")
		c.SetParamValues(em.ID.String())
		return rec, h.Transition(c)
	}

	_, err := call(staffActor(other), `{"action":"assign","assigned_user":"`+owner.ID.String()+`"}`)
	if got := httpCode(t, err); got != http.StatusForbidden {
		t.Errorf("expected 403 for staff assign, got %d", got)
	}

	rec, err := call(env.admin, `{"action":"assign","assigned_user":"`+owner.ID.String()+`"}`)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	_, err = call(staffActor(other), `{"action":"accept"}`)
	if got := httpCode(t, err); got != http.StatusConflict {
		t.Errorf("expected 409 for non-assignee accept, got %d", got)
	}

	if _, err := call(env.admin, `{"action":"resolve"}`); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	_, err = call(env.admin, `{"action":"cancel"}`)
	if got := httpCode(t, err); got != http.StatusConflict {
		t.Errorf("expected 409 for transition from resolved, got %d", got)
	}
}

func TestHandler_GetAndList(t *testing.T) {
	env := newTestEnv()
	h := NewHandler(env.svc)
	em := env.newEmergency(t)
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(em.ID.String())
	if err := h.Get(c); err != nil || rec.Code != http.StatusOK {
		t.Fatalf("get: %v (%d)", err, rec.Code)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())
	if got := httpCode(t, h.Get(c)); got != http.StatusNotFound {
		t.Errorf("expected 404, got %d", got)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/?status=pending", nil), rec)
	if err := h.List(c); err != nil {
		t.Fatalf("list: %v", err)
	}
	var body struct {
		Data  []Emergency `json:"data"`
		Total int         `json:"total"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Total != 1 || len(body.Data) != 1 || body.Data[0].ID != em.ID {
		t.Errorf("unexpected list body %s", rec.Body.String())
	}

	for _, q := range []string{"/?status=lost", "/?room_id=nope", "/?active=maybe", "/?active=true&status=resolved"} {
		c = e.NewContext(httptest.NewRequest(http.MethodGet, q, nil), httptest.NewRecorder())
		if got := httpCode(t, h.List(c)); got != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, got)
		}
	}
}

func TestHandler_List_Active(t *testing.T) {
	env := newTestEnv()
	h := NewHandler(env.svc)
	open := env.newEmergency(t)
	closed := env.newEmergency(t)
	env.transition(t, env.admin, closed.ID, TransitionRequest{Action: ActionCancel})

	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/?active=true", nil), rec)
	if err := h.List(c); err != nil {
		t.Fatalf("list: %v", err)
	}
	var body struct {
		Data  []Emergency `json:"data"`
		Total int         `json:"total"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Total != 1 || len(body.Data) != 1 || body.Data[0].ID != open.ID {
		t.Errorf("expected only the open call, got %s", rec.Body.String())
	}
}
