package service

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/member-signups/internal/models"
	"github.com/noah-isme/member-signups/pkg/export"
	appErrors "github.com/noah-isme/member-signups/pkg/errors"
)

// Export formats.
const (
	FormatCSV  = "csv"
	FormatPDF  = "pdf"
	FormatJSON = "json"
)

var signupColumns = []string{
	"member_number", "name", "gender", "birthdate", "gruppe", "division", "state",
	"prev_courses", "prev_waitlists", "assigned_courses",
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
}

// ExportFile is a rendered signup sheet.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	Title string
}

// ExportService renders signup lists as CSV or PDF sheets.
type ExportService struct {
	csv     csvRenderer
	pdf     pdfRenderer
	storage fileStorage
	logger  *zap.Logger
	cfg     ExportConfig
	now     func() time.Time
}

// NewExportService constructs an ExportService. storage may be nil when
// sheets are only streamed back to callers.
func NewExportService(storage fileStorage, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter(export.WithBOM())
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if cfg.Title == "" {
		cfg.Title = "Signups"
	}
	return &ExportService{csv: csv, pdf: pdf, storage: storage, logger: logger, cfg: cfg, now: time.Now}
}

// Render produces a signup sheet in the requested format.
func (s *ExportService) Render(result *models.SignupResult, format string) (*ExportFile, error) {
	if result == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no signup result to export")
	}
	var (
		body        []byte
		contentType string
		err         error
	)
	format = strings.ToLower(format)
	switch format {
	case FormatCSV, "":
		format = FormatCSV
		contentType = "text/csv; charset=utf-8"
		body, err = s.csv.Render(SignupDataset(result))
	case FormatPDF:
		contentType = "application/pdf"
		body, err = s.pdf.Render(SignupDataset(result), fmt.Sprintf("%s %s", s.cfg.Title, result.Meta.MainEventCode))
	case FormatJSON:
		contentType = "application/json; charset=utf-8"
		body, err = json.MarshalIndent(result, "", "  ")
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return &ExportFile{
		Filename:    s.buildFilename(result.Meta.MainEventCode, format),
		ContentType: contentType,
		Body:        body,
	}, nil
}

// Store renders and writes the sheet, returning the written path.
func (s *ExportService) Store(result *models.SignupResult, format string) (string, error) {
	if s.storage == nil {
		return "", appErrors.Clone(appErrors.ErrInternal, "export storage not configured")
	}
	file, err := s.Render(result, format)
	if err != nil {
		return "", err
	}
	path, err := s.storage.Save(file.Filename, file.Body)
	if err != nil {
		return "", err
	}
	s.logger.Info("signup export written", zap.String("path", path), zap.Int("bytes", len(file.Body)))
	return path, nil
}

// SignupDataset flattens a result into one row per member, ordered by member
// number. Answer columns follow the fixed columns in key order; a question
// label that clashes with a fixed column is renamed "answer_<label>".
func SignupDataset(result *models.SignupResult) export.Dataset {
	keys := make([]string, 0, len(result.Signups))
	answerKeys := map[string]struct{}{}
	for key, summary := range result.Signups {
		keys = append(keys, key)
		for q := range summary.Answers {
			answerKeys[q] = struct{}{}
		}
	}
	sort.Strings(keys)
	questions := make([]string, 0, len(answerKeys))
	for q := range answerKeys {
		questions = append(questions, q)
	}
	sort.Strings(questions)

	columns := answerColumns(questions)
	headers := append([]string{}, signupColumns...)
	for _, q := range questions {
		headers = append(headers, columns[q])
	}
	rows := make([]map[string]string, 0, len(keys))
	for _, key := range keys {
		summary := result.Signups[key]
		row := map[string]string{
			"member_number":    summary.MemberNumber,
			"name":             summary.Name,
			"gender":           summary.Gender,
			"birthdate":        summary.Birthdate,
			"gruppe":           deref(summary.Group),
			"division":         deref(summary.Division),
			"state":            summary.State,
			"prev_courses":     strings.Join(summary.PrevCourses, ", "),
			"prev_waitlists":   strings.Join(summary.PrevWaitlists, ", "),
			"assigned_courses": strings.Join(summary.AssignedCourses, ", "),
		}
		for _, q := range questions {
			row[columns[q]] = formatAnswer(summary.Answers[q])
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

// answerColumns maps each question label to a column name distinct from the
// fixed columns and from every other label.
func answerColumns(questions []string) map[string]string {
	fixed := make(map[string]struct{}, len(signupColumns))
	for _, col := range signupColumns {
		fixed[col] = struct{}{}
	}
	columns := make(map[string]string, len(questions))
	taken := make(map[string]struct{}, len(questions))
	var clashes []string
	for _, q := range questions {
		if _, ok := fixed[q]; ok {
			clashes = append(clashes, q)
			continue
		}
		columns[q] = q
		taken[q] = struct{}{}
	}
	for _, q := range clashes {
		name := "answer_" + q
		for i := 2; ; i++ {
			if _, used := taken[name]; !used {
				break
			}
			name = fmt.Sprintf("answer_%s_%d", q, i)
		}
		taken[name] = struct{}{}
		columns[q] = name
	}
	return columns
}

func formatAnswer(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []string:
		return strings.Join(val, ", ")
	case []interface{}:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, formatAnswer(item))
		}
		return strings.Join(parts, ", ")
	case bool:
		if !val {
			return ""
		}
		return "true"
	default:
		return fmt.Sprint(val)
	}
}

func (s *ExportService) buildFilename(eventCode, format string) string {
	timestamp := s.now().UTC().Format("20060102_150405")
	return fmt.Sprintf("signups_%s_%s.%s", sanitizeFilename(eventCode), timestamp, format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".")
	result := replacer.Replace(raw)
	if len(result) > 64 {
		return result[:64]
	}
	return result
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
