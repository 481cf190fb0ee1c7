package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fraudwatch/internal/alerts"
	"fraudwatch/internal/core"
	"fraudwatch/internal/types"
)

// --- Fakes ---

type fakeDecoder struct {
	in  types.RawAlertInput
	err error
}

func (f *fakeDecoder) Decode(data []byte) (types.RawAlertInput, error) {
	return f.in, f.err
}

type fakeDispatcher struct {
	gotCardToken string
	result       alerts.BroadcastResult
	err          error
}

func (f *fakeDispatcher) Route(ctx context.Context, cardToken string, in types.RawAlertInput) (alerts.BroadcastResult, error) {
	f.gotCardToken = cardToken
	return f.result, f.err
}

type fakeSubStore struct {
	createdID  string
	createdCfg alerts.SubscriptionConfig
	view       alerts.SubscriptionView
	createErr  error

	polledID  string
	polledMax int
	drained   []types.QueuedAlert
	pollErr   error

	status    alerts.SubscriptionStatus
	statusErr error
}

func (f *fakeSubStore) Create(id string, cfg alerts.SubscriptionConfig) (alerts.SubscriptionView, error) {
	f.createdID = id
	f.createdCfg = cfg
	if f.createErr != nil {
		return alerts.SubscriptionView{}, f.createErr
	}
	view := f.view
	view.ID = id
	return view, nil
}

func (f *fakeSubStore) Poll(id string, maxAlerts int) ([]types.QueuedAlert, error) {
	f.polledID = id
	f.polledMax = maxAlerts
	return f.drained, f.pollErr
}

func (f *fakeSubStore) Status(id string) (alerts.SubscriptionStatus, error) {
	return f.status, f.statusErr
}

type fakeMetrics struct {
	snap alerts.MetricsSnapshot
}

func (f *fakeMetrics) Snapshot() alerts.MetricsSnapshot { return f.snap }

func newTestHandler(dec *fakeDecoder, disp *fakeDispatcher, subs *fakeSubStore, m *fakeMetrics) http.Handler {
	h := NewAlertHandler(
		dec, disp, subs, m,
		core.NewValidator(),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// --- RouteAlert ---

func TestRouteAlert_Success(t *testing.T) {
	disp := &fakeDispatcher{result: alerts.BroadcastResult{Successful: 2}}
	h := newTestHandler(&fakeDecoder{}, disp, &fakeSubStore{}, &fakeMetrics{})

	w := doJSON(t, h, http.MethodPost, "/alerts/route", RouteAlertRequest{
		CardToken: "card_abc",
		Alert:     json.RawMessage(`{"alertType":"fraud_detected"}`),
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "card_abc", disp.gotCardToken)

	var body struct {
		Data RouteAlertResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "card_abc", body.Data.CardToken)
	assert.Equal(t, 2, body.Data.Push.Successful)
}

func TestRouteAlert_MissingCardToken(t *testing.T) {
	h := newTestHandler(&fakeDecoder{}, &fakeDispatcher{}, &fakeSubStore{}, &fakeMetrics{})

	w := doJSON(t, h, http.MethodPost, "/alerts/route", map[string]any{
		"alert": map[string]any{"alertType": "fraud_detected"},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), string(types.ErrCodeValidationInvalidField))
}

func TestRouteAlert_DecodeFailureAborts(t *testing.T) {
	dec := &fakeDecoder{err: types.NewAppError(
		types.ErrCodeFormatInvalidAlert, "unrecognized alert payload", nil,
	)}
	disp := &fakeDispatcher{}
	h := newTestHandler(dec, disp, &fakeSubStore{}, &fakeMetrics{})

	w := doJSON(t, h, http.MethodPost, "/alerts/route", RouteAlertRequest{
		CardToken: "card_abc",
		Alert:     json.RawMessage(`"garbage"`),
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, disp.gotCardToken, "dispatcher must not be called on decode failure")
}

func TestRouteAlert_MalformedBody(t *testing.T) {
	h := newTestHandler(&fakeDecoder{}, &fakeDispatcher{}, &fakeSubStore{}, &fakeMetrics{})

	req := httptest.NewRequest(http.MethodPost, "/alerts/route", bytes.NewReader([]byte(`{broken`)))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- CreateSubscription ---

func TestCreateSubscription_Success(t *testing.T) {
	subs := &fakeSubStore{view: alerts.SubscriptionView{Active: true}}
	h := newTestHandler(&fakeDecoder{}, &fakeDispatcher{}, subs, &fakeMetrics{})

	threshold := 0.7
	w := doJSON(t, h, http.MethodPost, "/subscriptions", CreateSubscriptionRequest{
		CardTokens:    []string{"card_abc"},
		AlertTypes:    []string{"fraud_detected"},
		RiskThreshold: &threshold,
		Duration:      "2h",
	})

	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, len(subs.createdID) > len("sub_"), "expected generated sub_ id")
	assert.Equal(t, "sub_", subs.createdID[:4])
	assert.Equal(t, []string{"card_abc"}, subs.createdCfg.CardTokens)
	assert.Equal(t, []types.AlertType{types.AlertType("fraud_detected")}, subs.createdCfg.AlertTypes)
	require.NotNil(t, subs.createdCfg.RiskThreshold)
	assert.Equal(t, 0.7, *subs.createdCfg.RiskThreshold)

	var body struct {
		Data alerts.SubscriptionView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, subs.createdID, body.Data.ID)
}

func TestCreateSubscription_EmptyFiltersAllowed(t *testing.T) {
	subs := &fakeSubStore{}
	h := newTestHandler(&fakeDecoder{}, &fakeDispatcher{}, subs, &fakeMetrics{})

	w := doJSON(t, h, http.MethodPost, "/subscriptions", CreateSubscriptionRequest{})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, subs.createdCfg.CardTokens)
}

func TestCreateSubscription_ThresholdOutOfRange(t *testing.T) {
	h := newTestHandler(&fakeDecoder{}, &fakeDispatcher{}, &fakeSubStore{}, &fakeMetrics{})

	threshold := 1.5
	w := doJSON(t, h, http.MethodPost, "/subscriptions", CreateSubscriptionRequest{
		RiskThreshold: &threshold,
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Poll ---

func TestPoll_Success(t *testing.T) {
	subs := &fakeSubStore{drained: []types.QueuedAlert{
		{SubscriptionID: "sub_1", Position: 0, QueuedAt: time.Now()},
		{SubscriptionID: "sub_1", Position: 1, QueuedAt: time.Now()},
	}}
	h := newTestHandler(&fakeDecoder{}, &fakeDispatcher{}, subs, &fakeMetrics{})

	w := doJSON(t, h, http.MethodPost, "/subscriptions/sub_1/poll", PollRequest{MaxAlerts: 25})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sub_1", subs.polledID)
	assert.Equal(t, 25, subs.polledMax)

	var body struct {
		Data PollResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Data.Count)
	assert.Len(t, body.Data.Alerts, 2)
}

func TestPoll_EmptyBodyUsesDefaultBatch(t *testing.T) {
	subs := &fakeSubStore{}
	h := newTestHandler(&fakeDecoder{}, &fakeDispatcher{}, subs, &fakeMetrics{})

	req := httptest.NewRequest(http.MethodPost, "/subscriptions/sub_1/poll", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, subs.polledMax, "zero selects the engine default")

	var body struct {
		Data PollResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotNil(t, body.Data.Alerts)
	assert.Equal(t, 0, body.Data.Count)
}

func TestPoll_UnknownSubscription(t *testing.T) {
	subs := &fakeSubStore{pollErr: types.NewAppError(
		types.ErrCodeNotFoundSubscription, "subscription not found", nil,
	)}
	h := newTestHandler(&fakeDecoder{}, &fakeDispatcher{}, subs, &fakeMetrics{})

	w := doJSON(t, h, http.MethodPost, "/subscriptions/sub_missing/poll", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), string(types.ErrCodeNotFoundSubscription))
}

func TestPoll_ExpiredSubscription(t *testing.T) {
	subs := &fakeSubStore{pollErr: types.NewAppError(
		types.ErrCodeSubscriptionExpired, "subscription expired", nil,
	)}
	h := newTestHandler(&fakeDecoder{}, &fakeDispatcher{}, subs, &fakeMetrics{})

	w := doJSON(t, h, http.MethodPost, "/subscriptions/sub_old/poll", nil)

	assert.Equal(t, http.StatusGone, w.Code)
}

func TestPoll_BatchSizeAboveLimitRejected(t *testing.T) {
	h := newTestHandler(&fakeDecoder{}, &fakeDispatcher{}, &fakeSubStore{}, &fakeMetrics{})

	w := doJSON(t, h, http.MethodPost, "/subscriptions/sub_1/poll", PollRequest{MaxAlerts: 500})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Status ---

func TestSubscriptionStatus_Success(t *testing.T) {
	subs := &fakeSubStore{status: alerts.SubscriptionStatus{
		ID:         "sub_1",
		Active:     true,
		QueueDepth: 7,
	}}
	h := newTestHandler(&fakeDecoder{}, &fakeDispatcher{}, subs, &fakeMetrics{})

	w := doJSON(t, h, http.MethodGet, "/subscriptions/sub_1", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data alerts.SubscriptionStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "sub_1", body.Data.ID)
	assert.Equal(t, 7, body.Data.QueueDepth)
}

func TestSubscriptionStatus_NotFound(t *testing.T) {
	subs := &fakeSubStore{statusErr: types.NewAppError(
		types.ErrCodeNotFoundSubscription, "subscription not found", nil,
	)}
	h := newTestHandler(&fakeDecoder{}, &fakeDispatcher{}, subs, &fakeMetrics{})

	w := doJSON(t, h, http.MethodGet, "/subscriptions/sub_missing", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// --- Metrics ---

func TestMetrics_Snapshot(t *testing.T) {
	m := &fakeMetrics{snap: alerts.MetricsSnapshot{
		TotalSubscriptions: 3,
		TotalAlertsSent:    12,
	}}
	h := newTestHandler(&fakeDecoder{}, &fakeDispatcher{}, &fakeSubStore{}, m)

	w := doJSON(t, h, http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data alerts.MetricsSnapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Data.TotalSubscriptions)
	assert.Equal(t, int64(12), body.Data.TotalAlertsSent)
}
