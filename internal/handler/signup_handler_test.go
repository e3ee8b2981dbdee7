package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/member-signups/internal/dto"
	"github.com/noah-isme/member-signups/internal/models"
	"github.com/noah-isme/member-signups/internal/service"
	appErrors "github.com/noah-isme/member-signups/pkg/errors"
)

type signupComputerMock struct {
	result *models.SignupResult
	err    error
	last   service.SignupQuery
}

func (m *signupComputerMock) Compute(_ context.Context, q service.SignupQuery) (*models.SignupResult, error) {
	m.last = q
	return m.result, m.err
}

type snapshotWriterMock struct {
	saved     int
	published int
	noStore   bool
	noPublish bool
}

func (m *snapshotWriterMock) CanPersist() bool { return !m.noStore }

func (m *snapshotWriterMock) CanPublish() bool { return !m.noPublish }

func (m *snapshotWriterMock) Save(context.Context, *models.SignupResult) (*models.SignupSnapshot, error) {
	m.saved++
	return &models.SignupSnapshot{ID: "snap-1"}, nil
}

func (m *snapshotWriterMock) Publish(context.Context, *models.SignupResult) error {
	m.published++
	return nil
}

func handlerResult() *models.SignupResult {
	return &models.SignupResult{
		Signups: map[string]models.SignupSummary{"1001": {MemberNumber: "1001", Name: "Anna", State: "open"}},
		Meta:    models.SignupMeta{MainEventID: 100, MainEventCode: "14600"},
	}
}

func TestSignupHandlerComputePersistAndPublish(t *testing.T) {
	computer := &signupComputerMock{result: handlerResult()}
	writer := &snapshotWriterMock{}
	h := NewSignupHandler(computer, writer, service.NewExportService(nil, service.ExportConfig{}, nil, nil, nil), nil, nil)

	limit := 5
	body, _ := json.Marshal(dto.SignupRequest{
		MainEventCode:   "14600",
		OtherEventCodes: []string{"14605"},
		Limit:           &limit,
		Persist:         true,
		Publish:         true,
	})
	c, w := newGinContext(http.MethodPost, "/signups", body)
	h.Compute(c)

	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	var resp dto.SignupResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, "snap-1", resp.SnapshotID)
	assert.True(t, resp.Published)
	assert.Equal(t, "open", resp.Signups["1001"].State)
	assert.Equal(t, float64(1), env.Meta["member_count"])
	assert.Equal(t, 1, writer.saved)
	assert.Equal(t, 1, writer.published)
	assert.Equal(t, []string{"14605"}, computer.last.OtherEventCodes)
	require.NotNil(t, computer.last.Limit)
	assert.Equal(t, 5, *computer.last.Limit)
}

func TestSignupHandlerComputeRequiresMainEvent(t *testing.T) {
	h := NewSignupHandler(&signupComputerMock{}, nil, nil, nil, nil)
	c, w := newGinContext(http.MethodPost, "/signups", []byte(`{"other_event_codes":["1"]}`))
	h.Compute(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSignupHandlerComputePropagatesNotFound(t *testing.T) {
	computer := &signupComputerMock{err: appErrors.Clone(appErrors.ErrNotFound, "no event")}
	h := NewSignupHandler(computer, nil, nil, nil, nil)
	c, w := newGinContext(http.MethodPost, "/signups", []byte(`{"main_event_code":"x"}`))
	h.Compute(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decodeEnvelope(t, w).Error.Code)
}

func TestSignupHandlerPersistWithoutStore(t *testing.T) {
	h := NewSignupHandler(&signupComputerMock{result: handlerResult()}, nil, nil, nil, nil)
	c, w := newGinContext(http.MethodPost, "/signups", []byte(`{"main_event_code":"14600","persist":true}`))
	h.Compute(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSignupHandlerRejectsFlagWithoutMatchingStore(t *testing.T) {
	cases := []struct {
		name   string
		writer *snapshotWriterMock
		body   string
	}{
		{name: "publish without redis", writer: &snapshotWriterMock{noPublish: true}, body: `{"main_event_code":"14600","persist":true,"publish":true}`},
		{name: "persist without postgres", writer: &snapshotWriterMock{noStore: true}, body: `{"main_event_code":"14600","persist":true}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			computer := &signupComputerMock{result: handlerResult()}
			h := NewSignupHandler(computer, tc.writer, nil, nil, nil)
			c, w := newGinContext(http.MethodPost, "/signups", []byte(tc.body))
			h.Compute(c)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, appErrors.ErrValidation.Code, decodeEnvelope(t, w).Error.Code)
			assert.Zero(t, tc.writer.saved)
			assert.Zero(t, tc.writer.published)
			assert.Empty(t, computer.last.MainEventCode)
		})
	}
}

func TestSignupHandlerPublishOnlyStore(t *testing.T) {
	writer := &snapshotWriterMock{noStore: true}
	h := NewSignupHandler(&signupComputerMock{result: handlerResult()}, writer, nil, nil, nil)
	c, w := newGinContext(http.MethodPost, "/signups", []byte(`{"main_event_code":"14600","publish":true}`))
	h.Compute(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, writer.published)
}

func TestSignupHandlerExportCSV(t *testing.T) {
	h := NewSignupHandler(&signupComputerMock{result: handlerResult()}, nil,
		service.NewExportService(nil, service.ExportConfig{}, nil, nil, nil), nil, nil)
	c, w := newGinContext(http.MethodPost, "/signups/export?format=csv", []byte(`{"main_event_code":"14600"}`))
	h.Export(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "signups_14600_")
	assert.Contains(t, w.Body.String(), "1001,Anna")
}

func TestSignupHandlerExportJSON(t *testing.T) {
	h := NewSignupHandler(&signupComputerMock{result: handlerResult()}, nil,
		service.NewExportService(nil, service.ExportConfig{}, nil, nil, nil), nil, nil)
	c, w := newGinContext(http.MethodPost, "/signups/export?format=json", []byte(`{"main_event_code":"14600"}`))
	h.Export(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".json")
	var decoded models.SignupResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	assert.Equal(t, "Anna", decoded.Signups["1001"].Name)
}

func TestSignupHandlerExportRejectsFormat(t *testing.T) {
	h := NewSignupHandler(&signupComputerMock{result: handlerResult()}, nil,
		service.NewExportService(nil, service.ExportConfig{}, nil, nil, nil), nil, nil)
	c, w := newGinContext(http.MethodPost, "/signups/export?format=xlsx", []byte(`{"main_event_code":"14600"}`))
	h.Export(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type refreshQueueMock struct {
	queued []service.SignupQuery
}

func (m *refreshQueueMock) Enqueue(q service.SignupQuery) (string, error) {
	m.queued = append(m.queued, q)
	return "job-1", nil
}

func TestSignupHandlerRefresh(t *testing.T) {
	queue := &refreshQueueMock{}
	h := NewSignupHandler(&signupComputerMock{}, nil, nil, nil, nil).WithRefresh(queue)

	c, w := newGinContext(http.MethodPost, "/signups/refresh", []byte(`{"main_event_code":"14600"}`))
	h.Refresh(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"job_id":"job-1"`)
	require.Len(t, queue.queued, 1)
	assert.Equal(t, "14600", queue.queued[0].MainEventCode)

	h = NewSignupHandler(&signupComputerMock{}, nil, nil, nil, nil)
	c, w = newGinContext(http.MethodPost, "/signups/refresh", []byte(`{"main_event_code":"14600"}`))
	h.Refresh(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
