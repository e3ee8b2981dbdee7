package service

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/member-signups/internal/models"
	appErrors "github.com/noah-isme/member-signups/pkg/errors"
	"github.com/noah-isme/member-signups/pkg/export"
	"github.com/noah-isme/member-signups/pkg/storage"
)

func exportFixture() *models.SignupResult {
	group := "Nord"
	return &models.SignupResult{
		Signups: map[string]models.SignupSummary{
			"1002": {
				MemberNumber:    "1002",
				Name:            "Bo",
				State:           "moved_open",
				Answers:         map[string]interface{}{"Mad": "vegetar"},
				AssignedCourses: []string{"14605"},
			},
			"1001": {
				MemberNumber:  "1001",
				Name:          "Anna",
				Group:         &group,
				State:         "open",
				Answers:       map[string]interface{}{"Kurser": []string{"A", "B"}},
				PrevCourses:   []string{"14607"},
				PrevWaitlists: []string{"14606"},
			},
		},
		Meta: models.SignupMeta{MainEventID: 100, MainEventCode: "14600"},
	}
}

func newExportServiceForTest() *ExportService {
	svc := NewExportService(nil, ExportConfig{}, zap.NewNop(), export.NewCSVExporter(), export.NewPDFExporter())
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestSignupDatasetColumns(t *testing.T) {
	dataset := SignupDataset(exportFixture())

	assert.Equal(t, append(append([]string{}, signupColumns...), "Kurser", "Mad"), dataset.Headers)
	require.Len(t, dataset.Rows, 2)
	assert.Equal(t, "1001", dataset.Rows[0]["member_number"])
	assert.Equal(t, "Nord", dataset.Rows[0]["gruppe"])
	assert.Equal(t, "A, B", dataset.Rows[0]["Kurser"])
	assert.Equal(t, "", dataset.Rows[0]["Mad"])
	assert.Equal(t, "14605", dataset.Rows[1]["assigned_courses"])
}

func TestExportServiceRenderCSV(t *testing.T) {
	file, err := newExportServiceForTest().Render(exportFixture(), "csv")
	require.NoError(t, err)
	assert.Equal(t, "signups_14600_20240301_120000.csv", file.Filename)
	assert.Equal(t, "text/csv; charset=utf-8", file.ContentType)
	lines := strings.Split(strings.TrimSpace(string(file.Body)), "\n")
	assert.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "1001,Anna"))
}

func TestExportServiceRenderPDF(t *testing.T) {
	file, err := newExportServiceForTest().Render(exportFixture(), "PDF")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, bytes.HasPrefix(file.Body, []byte("%PDF")))
}

func TestExportServiceRenderJSON(t *testing.T) {
	file, err := newExportServiceForTest().Render(exportFixture(), "json")
	require.NoError(t, err)
	assert.Equal(t, "signups_14600_20240301_120000.json", file.Filename)
	assert.Equal(t, "application/json; charset=utf-8", file.ContentType)

	var decoded models.SignupResult
	require.NoError(t, json.Unmarshal(file.Body, &decoded))
	assert.Equal(t, "moved_open", decoded.Signups["1002"].State)
	assert.Equal(t, int64(100), decoded.Meta.MainEventID)
}

func TestSignupDatasetRenamesClashingQuestionLabels(t *testing.T) {
	result := &models.SignupResult{
		Signups: map[string]models.SignupSummary{
			"1001": {
				MemberNumber: "1001",
				Name:         "Anna",
				State:        "open",
				Answers:      map[string]interface{}{"name": "Annie", "state": "Jylland", "answer_name": "x"},
			},
		},
	}
	dataset := SignupDataset(result)

	assert.Equal(t, append(append([]string{}, signupColumns...), "answer_name", "answer_name_2", "answer_state"), dataset.Headers)
	row := dataset.Rows[0]
	assert.Equal(t, "Anna", row["name"])
	assert.Equal(t, "open", row["state"])
	assert.Equal(t, "x", row["answer_name"])
	assert.Equal(t, "Annie", row["answer_name_2"])
	assert.Equal(t, "Jylland", row["answer_state"])
}

func TestExportServiceRejectsUnknownFormat(t *testing.T) {
	_, err := newExportServiceForTest().Render(exportFixture(), "xlsx")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportServiceStore(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	svc := NewExportService(store, ExportConfig{Title: "Tilmeldinger"}, nil, nil, nil)

	path, err := svc.Store(exportFixture(), "csv")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "moved_open")

	_, err = newExportServiceForTest().Store(exportFixture(), "csv")
	assert.Error(t, err)
}

func TestFormatAnswer(t *testing.T) {
	assert.Equal(t, "", formatAnswer(nil))
	assert.Equal(t, "", formatAnswer(false))
	assert.Equal(t, "x, y", formatAnswer([]interface{}{"x", "y"}))
	assert.Equal(t, "3", formatAnswer(int64(3)))
}
