package service

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"github.com/gosimple/slug"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/enrollment-portal/internal/domain"
	"github.com/spec-kit/enrollment-portal/internal/repository"
	apperrors "github.com/spec-kit/enrollment-portal/pkg/util/errorutil"
)

const (
	rosterSheet     = "Alumnos"
	noCohortLabel   = "Sin asignar"
	dateLayout      = "02/01/2006"
	defaultFileExt  = "pdf"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	zipContentType  = "application/zip"
)

var rosterHeaders = []string{
	"Camada", "Nombre(s)", "Apellido Paterno", "Apellido Materno", "Fecha de Nacimiento",
	"Edad", "Sexo", "Lugar de Nacimiento", "Domicilio", "Municipio / Localidad",
	"Estado / Provincia", "País", "Código Postal", "Teléfono Celular", "Teléfono Fijo",
	"Email Personal", "Email Alternativo", "Ocupación / Área", "Escolaridad Máxima",
	"Instituto Título", "Ocupación Actual", "Sede", "Nombre Entrenador", "Celular Entrenador",
	"Fecha de Registro", "Perfil Completo", "Documentos Completos",
}

// RosterRow is one student in the roster export.
type RosterRow struct {
	UserID             string `json:"user_id"`
	Cohort             string `json:"cohort"`
	FirstName          string `json:"first_name"`
	LastNamePaterno    string `json:"last_name_paterno"`
	LastNameMaterno    string `json:"last_name_materno"`
	DOB                string `json:"dob"`
	Age                string `json:"age"`
	Sex                string `json:"sex"`
	BirthPlace         string `json:"birth_place"`
	Address            string `json:"address"`
	City               string `json:"city"`
	State              string `json:"state"`
	Country            string `json:"country"`
	ZipCode            string `json:"zip_code"`
	Phone              string `json:"phone"`
	Landline           string `json:"landline"`
	Email              string `json:"email"`
	AlternativeEmail   string `json:"alternative_email"`
	Profession         string `json:"profession"`
	EducationLevel     string `json:"education_level"`
	Institution        string `json:"institution"`
	CurrentOccupation  string `json:"current_occupation"`
	SedeNombre         string `json:"sede_nombre"`
	EntrenadorNombre   string `json:"entrenador_nombre"`
	EntrenadorCelular  string `json:"entrenador_celular"`
	RegisteredAt       string `json:"registered_at"`
	ProfileCompleted   bool   `json:"profile_completed"`
	DocumentsCompleted bool   `json:"documents_completed"`
}

func (r RosterRow) cells() []any {
	return []any{
		r.Cohort, r.FirstName, r.LastNamePaterno, r.LastNameMaterno, r.DOB,
		r.Age, r.Sex, r.BirthPlace, r.Address, r.City,
		r.State, r.Country, r.ZipCode, r.Phone, r.Landline,
		r.Email, r.AlternativeEmail, r.Profession, r.EducationLevel,
		r.Institution, r.CurrentOccupation, r.SedeNombre, r.EntrenadorNombre, r.EntrenadorCelular,
		r.RegisteredAt, yesNo(r.ProfileCompleted), yesNo(r.DocumentsCompleted),
	}
}

// Download is a generated or proxied file ready to be streamed to a client.
type Download struct {
	FileName    string
	ContentType string
	Data        []byte
}

// ReportService builds roster exports and serves stored files.
type ReportService struct {
	users     repository.UserRepository
	documents repository.DocumentRepository
	payments  repository.PaymentRepository
	http      *resty.Client
	logger    *zap.Logger
	now       func() time.Time
}

// NewReportService builds the service. Stored files are fetched with a client
// bounded by timeout.
func NewReportService(
	users repository.UserRepository,
	documents repository.DocumentRepository,
	payments repository.PaymentRepository,
	timeout time.Duration,
	logger *zap.Logger,
) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		users:     users,
		documents: documents,
		payments:  payments,
		http:      resty.New().SetTimeout(timeout),
		logger:    logger,
		now:       time.Now,
	}
}

// Roster lists every student ordered by cohort code and paternal surname.
func (s *ReportService) Roster(ctx context.Context) ([]RosterRow, error) {
	students, err := s.users.ListStudents(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]RosterRow, 0, len(students))
	for i := range students {
		rows = append(rows, rosterRow(&students[i]))
	}
	return rows, nil
}

func rosterRow(st *repository.StudentRecord) RosterRow {
	p := st.Profile
	row := RosterRow{
		UserID:             st.ID,
		Cohort:             noCohortLabel,
		FirstName:          deref(p.FirstName),
		LastNamePaterno:    deref(p.LastNamePaterno),
		LastNameMaterno:    deref(p.LastNameMaterno),
		Sex:                deref(p.Sex),
		BirthPlace:         deref(p.BirthPlace),
		Address:            deref(p.Address),
		City:               deref(p.City),
		State:              deref(p.State),
		Country:            deref(p.Country),
		ZipCode:            deref(p.ZipCode),
		Phone:              deref(p.Phone),
		Landline:           deref(p.Landline),
		Email:              st.Email,
		AlternativeEmail:   deref(p.AlternativeEmail),
		Profession:         deref(p.Profession),
		EducationLevel:     deref(p.EducationLevel),
		Institution:        deref(p.Institution),
		CurrentOccupation:  deref(p.CurrentOccupation),
		SedeNombre:         deref(p.SedeNombre),
		EntrenadorNombre:   deref(p.EntrenadorNombre),
		EntrenadorCelular:  deref(p.EntrenadorCelular),
		RegisteredAt:       st.CreatedAt.Format(dateLayout),
		ProfileCompleted:   st.ProfileCompleted,
		DocumentsCompleted: st.DocumentsCompleted,
	}
	if st.CohortCode != nil && *st.CohortCode != "" {
		row.Cohort = *st.CohortCode
	}
	if p.DOB != nil {
		row.DOB = p.DOB.Format(dateLayout)
	}
	if p.Age != nil {
		row.Age = fmt.Sprintf("%d", *p.Age)
	}
	return row
}

// RosterWorkbook renders the roster as an XLSX workbook with a bold header row.
func (s *ReportService) RosterWorkbook(ctx context.Context) (*Download, error) {
	rows, err := s.Roster(ctx)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil {
			s.logger.Warn("close workbook", zap.Error(cerr))
		}
	}()
	if _, err := f.NewSheet(rosterSheet); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	for col, title := range rosterHeaders {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(rosterSheet, cell, title); err != nil {
			return nil, apperrors.NewInternalError(err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(rosterHeaders), 1)
	if err := f.SetCellStyle(rosterSheet, "A1", last, header); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	for i, row := range rows {
		for col, value := range row.cells() {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			if err := f.SetCellValue(rosterSheet, cell, value); err != nil {
				return nil, apperrors.NewInternalError(err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &Download{
		FileName:    fmt.Sprintf("alumnos_%s.xlsx", s.now().Format("2006-01-02")),
		ContentType: xlsxContentType,
		Data:        buf.Bytes(),
	}, nil
}

// DocumentsArchive bundles every approved document of a student into a ZIP.
// Approved documents whose file was already released are skipped, and a file
// that cannot be fetched becomes a short error note inside the archive.
func (s *ReportService) DocumentsArchive(ctx context.Context, actor domain.Actor, userID string) (*Download, error) {
	if !actor.HasRole(domain.ExportRoles...) {
		return nil, apperrors.NewForbidden("insufficient role")
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, notFoundOr(err, "user", userID)
	}
	docs, err := s.documents.ListByUserAndStatus(ctx, userID, domain.ReviewApproved)
	if err != nil {
		return nil, err
	}
	var withFiles []domain.Document
	for _, d := range docs {
		if d.FileAvailable() {
			withFiles = append(withFiles, d)
		}
	}
	if len(withFiles) == 0 {
		return nil, apperrors.NewNotFound("approved documents", map[string]any{"user_id": userID})
	}

	surname := fileNamePart(user.Surname(), "Alumno")
	given := fileNamePart(deref(user.FirstName), "SinNombre")

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, d := range withFiles {
		typeName := strings.ReplaceAll(string(d.Type), " ", "_")
		body, _, ferr := s.fetch(ctx, *d.URL)
		if ferr != nil {
			s.logger.Warn("fetch document for archive",
				zap.String("document_id", d.ID),
				zap.Error(ferr),
			)
			w, err := zw.Create(fmt.Sprintf("ERROR_%s.txt", typeName))
			if err != nil {
				return nil, apperrors.NewInternalError(err)
			}
			if _, err := fmt.Fprintf(w, "No se pudo descargar el documento %s: %v\n", d.Type, ferr); err != nil {
				return nil, apperrors.NewInternalError(err)
			}
			continue
		}
		name := fmt.Sprintf("%s_%s_%s.%s", typeName, surname, given, extensionOf(*d.URL))
		w, err := zw.Create(name)
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		if _, err := w.Write(body); err != nil {
			return nil, apperrors.NewInternalError(err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	return &Download{
		FileName:    fmt.Sprintf("Documentos_%s_%s.zip", surname, given),
		ContentType: zipContentType,
		Data:        buf.Bytes(),
	}, nil
}

// DocumentFile streams the stored file of a document. Staff may read any record,
// a student only their own.
func (s *ReportService) DocumentFile(ctx context.Context, actor domain.Actor, id string) (*Download, error) {
	doc, err := s.documents.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "document", id)
	}
	if doc.UserID != actor.UserID && !actor.HasRole(domain.AdminViewRoles...) {
		return nil, apperrors.NewForbidden("insufficient role")
	}
	if !doc.FileAvailable() {
		return nil, apperrors.NewNotFound("document file", map[string]any{"id": id})
	}
	return s.proxy(ctx, *doc.URL, strings.ReplaceAll(string(doc.Type), " ", "_"))
}

// PaymentFile streams the proof attached to a payment.
func (s *ReportService) PaymentFile(ctx context.Context, actor domain.Actor, id string) (*Download, error) {
	payment, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "payment", id)
	}
	if payment.UserID != actor.UserID && !actor.HasRole(domain.AdminViewRoles...) {
		return nil, apperrors.NewForbidden("insufficient role")
	}
	if !payment.FileAvailable() {
		return nil, apperrors.NewNotFound("payment file", map[string]any{"id": id})
	}
	return s.proxy(ctx, *payment.URL, "comprobante_"+payment.ID)
}

func (s *ReportService) proxy(ctx context.Context, fileURL, baseName string) (*Download, error) {
	body, contentType, err := s.fetch(ctx, fileURL)
	if err != nil {
		s.logger.Warn("proxy stored file", zap.String("url", fileURL), zap.Error(err))
		return nil, apperrors.NewInternalError(fmt.Errorf("fetch stored file: %w", err))
	}
	if contentType == "" {
		contentType = mimetype.Detect(body).String()
	}
	return &Download{
		FileName:    fmt.Sprintf("%s.%s", baseName, extensionOf(fileURL)),
		ContentType: contentType,
		Data:        body,
	}, nil
}

func (s *ReportService) fetch(ctx context.Context, fileURL string) ([]byte, string, error) {
	resp, err := s.http.R().SetContext(ctx).Get(fileURL)
	if err != nil {
		return nil, "", err
	}
	if resp.IsError() {
		return nil, "", fmt.Errorf("upstream status %d", resp.StatusCode())
	}
	return resp.Body(), resp.Header().Get("Content-Type"), nil
}

// extensionOf takes the extension from the URL path, ignoring any query string.
func extensionOf(fileURL string) string {
	p := fileURL
	if u, err := url.Parse(fileURL); err == nil {
		p = u.Path
	}
	ext := strings.TrimPrefix(path.Ext(p), ".")
	if ext == "" {
		return defaultFileExt
	}
	return strings.ToLower(ext)
}

// fileNamePart keeps accents out of archive entry names.
func fileNamePart(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	parts := strings.Split(slug.Make(value), "-")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, "")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func yesNo(b bool) string {
	if b {
		return "SÍ"
	}
	return "NO"
}
