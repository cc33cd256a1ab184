package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neighborhood/facility-booking/internal/handler"
	"github.com/neighborhood/facility-booking/internal/model"
	"github.com/neighborhood/facility-booking/internal/repository"
	"github.com/neighborhood/facility-booking/internal/service"
	"github.com/neighborhood/facility-booking/internal/utils"
)

const secret = "router-secret"

type apiClient struct {
	t *testing.T
	e *echo.Echo
}

func newAPI(t *testing.T) *apiClient {
	store := repository.NewMemoryStore()
	store.PutFacility(model.Facility{ID: "court", Name: "Tennis court", Capacity: 1, Status: model.FacilityActive})
	opts := service.Options{Clock: service.FixedClock(time.Date(2030, 3, 1, 8, 0, 0, 0, time.UTC))}

	e := echo.New()
	RegisterRoutes(e, nil)
	RegisterReservations(e, handler.NewReservationHandler(
		service.NewAdmissionController(store, store, opts),
		service.NewLifecycleManager(store, opts),
	), ReservationDeps{JWTSecret: secret})
	return &apiClient{t: t, e: e}
}

func (a *apiClient) do(method, path, who, role, body string) (*httptest.ResponseRecorder, map[string]any) {
	a.t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if who != "" {
		tok, err := utils.NewAccessToken(secret, who, role, time.Hour)
		require.NoError(a.t, err)
		req.Header.Set("Authorization", "Bearer "+tok.Token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

const morning = `{"facility_id":"court","date":"2030-03-04","start_time":"09:00","end_time":"10:00","quantity":1,"purpose":"match"}`

func TestHealthz(t *testing.T) {
	api := newAPI(t)
	rec, _ := api.do(http.MethodGet, "/healthz", "", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestReservationFlow(t *testing.T) {
	api := newAPI(t)

	rec, _ := api.do(http.MethodPost, "/v1/reservations", "", "", morning)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, created := api.do(http.MethodPost, "/v1/reservations", "u1", "RESIDENT", morning)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := created["id"].(string)
	assert.Equal(t, "PENDING", created["status"])
	assert.Equal(t, "u1", created["requester_id"])
	assert.Equal(t, map[string]any{"start": "09:00", "end": "10:00"}, created["window"])

	rec, body := api.do(http.MethodPost, "/v1/reservations", "u2", "RESIDENT",
		`{"facility_id":"court","date":"2030-03-04","start_time":"09:30","end_time":"10:30","quantity":1}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CAPACITY_EXCEEDED", body["error"])
	assert.EqualValues(t, 1, body["capacity"])
	assert.EqualValues(t, 2, body["peak_usage"])
	assert.EqualValues(t, 0, body["available"])

	rec, _ = api.do(http.MethodPatch, "/v1/reservations/"+id+"/status", "u1", "RESIDENT", `{"status":"APPROVED"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body = api.do(http.MethodPatch, "/v1/reservations/"+id+"/status", "a1", "ADMIN", `{"status":"APPROVED","admin_note":"ok"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "APPROVED", body["status"])
	assert.Equal(t, "ok", body["admin_note"])

	rec, body = api.do(http.MethodPatch, "/v1/reservations/"+id+"/status", "a1", "ADMIN", `{"status":"REJECTED"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_TRANSITION", body["error"])

	rec, _ = api.do(http.MethodPost, "/v1/reservations/"+id+"/cancel", "u2", "RESIDENT", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, body = api.do(http.MethodPost, "/v1/reservations/"+id+"/cancel", "u1", "RESIDENT", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CANCELLED", body["status"])

	rec, _ = api.do(http.MethodPost, "/v1/reservations", "u2", "RESIDENT",
		`{"facility_id":"court","date":"2030-03-04","start_time":"09:30","end_time":"10:30","quantity":1}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestSubmitWithFullRequestBody(t *testing.T) {
	api := newAPI(t)

	rec, created := api.do(http.MethodPost, "/v1/reservations", "u1", "RESIDENT",
		`{"facility_id":"court","date":"2030-03-04","start_time":"09:00","end_time":"10:00","quantity":1,"requester_id":"u1","purpose":"match"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "PENDING", created["status"])
	assert.Equal(t, "u1", created["requester_id"])
	assert.Equal(t, "match", created["purpose"])

	rec, body := api.do(http.MethodPost, "/v1/reservations", "u2", "RESIDENT",
		`{"facility_id":"court","date":"2030-03-04","start_time":"11:00","end_time":"12:00","quantity":1,"requester_id":"u1","purpose":"match"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", body["error"])
}

func TestSubmitRejectsBadInput(t *testing.T) {
	api := newAPI(t)
	cases := map[string]struct {
		body   string
		status int
		kind   string
	}{
		"bad json":         {`{`, http.StatusBadRequest, "BAD_REQUEST"},
		"missing facility": {`{"date":"2030-03-04","start_time":"09:00","end_time":"10:00","quantity":1}`, http.StatusBadRequest, "BAD_REQUEST"},
		"bad date":         {`{"facility_id":"court","date":"04/03/2030","start_time":"09:00","end_time":"10:00","quantity":1}`, http.StatusBadRequest, "INVALID_WINDOW"},
		"crosses midnight": {`{"facility_id":"court","date":"2030-03-04","start_time":"23:00","end_time":"01:00","quantity":1}`, http.StatusBadRequest, "INVALID_WINDOW"},
		"zero quantity":    {`{"facility_id":"court","date":"2030-03-04","start_time":"09:00","end_time":"10:00","quantity":0}`, http.StatusBadRequest, "INVALID_QUANTITY"},
		"unknown facility": {`{"facility_id":"pool","date":"2030-03-04","start_time":"09:00","end_time":"10:00","quantity":1}`, http.StatusNotFound, "UNKNOWN_FACILITY"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec, body := api.do(http.MethodPost, "/v1/reservations", "u1", "RESIDENT", tc.body)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.kind, body["error"])
		})
	}
}

func TestListAndGetAreScoped(t *testing.T) {
	api := newAPI(t)
	rec, created := api.do(http.MethodPost, "/v1/reservations", "u1", "RESIDENT", morning)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := created["id"].(string)

	rec, _ = api.do(http.MethodGet, "/v1/reservations/"+id, "u2", "RESIDENT", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = api.do(http.MethodGet, "/v1/reservations/"+id, "u1", "RESIDENT", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body := api.do(http.MethodGet, "/v1/reservations?facility_id=court&date=2030-03-04", "u2", "RESIDENT", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, body["items"])

	rec, body = api.do(http.MethodGet, "/v1/reservations?status=pending,approved&limit=10", "a1", "ADMIN", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["items"], 1)
	assert.EqualValues(t, 10, body["limit"])

	rec, _ = api.do(http.MethodGet, "/v1/reservations?status=lost", "a1", "ADMIN", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = api.do(http.MethodGet, "/v1/reservations?limit=-1", "a1", "ADMIN", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAvailabilityRoute(t *testing.T) {
	api := newAPI(t)
	rec, _ := api.do(http.MethodPost, "/v1/reservations", "u1", "RESIDENT", morning)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, body := api.do(http.MethodGet, "/v1/facilities/court/availability?date=2030-03-04", "u2", "RESIDENT", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["capacity"])
	assert.EqualValues(t, 1, body["peak"])
	slots := body["slots"].([]any)
	require.Len(t, slots, 1)
	assert.Equal(t, map[string]any{"start": "09:00", "end": "10:00", "usage": float64(1), "available": float64(0)}, slots[0])

	rec, _ = api.do(http.MethodGet, "/v1/facilities/court/availability", "u2", "RESIDENT", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
