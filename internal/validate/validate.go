// Package validate is the schema layer run before any write: it turns
// untyped request payloads into typed model values, or an Error listing
// every failing field.
package validate

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/BigNeeme/Chinese/internal/model"
)

var (
	validate   *validator.Validate
	translator ut.Translator
)

// custom validation tags
const (
	notBlankTag = "notblank"
	statusTag   = "status"
)

func init() {
	validate = validator.New()

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names in error field paths instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation(notBlankTag, notBlankValidation)
	_ = validate.RegisterValidation(statusTag, statusValidation)
	validate.RegisterStructValidation(updateStudentStructValidation, UpdateStudentInput{})
	registerCustomTranslations(notBlankTag, statusTag)
}

// updateStudentStructValidation catches provided-but-empty patch fields.
// omitempty skips tag validation for a pointer to "", so without this an
// empty string would count as "not provided" and blank out the column.
func updateStudentStructValidation(sl validator.StructLevel) {
	in, ok := sl.Current().Interface().(UpdateStudentInput)
	if !ok {
		return
	}
	fields := map[string]*string{
		"studentId": in.StudentID,
		"firstName": in.FirstName,
		"lastName":  in.LastName,
		"email":     in.Email,
	}
	for name, val := range fields {
		if val != nil && *val == "" {
			sl.ReportError(val, name, name, notBlankTag, "")
		}
	}
}

func registerCustomTranslations(tags ...string) {
	registerFn := func(ut.Translator) error { return nil }
	for _, tag := range tags {
		_ = validate.RegisterTranslation(tag, translator, registerFn, translateCustomErrs)
	}
}

func translateCustomErrs(_ ut.Translator, fe validator.FieldError) string {
	switch fe.Tag() {
	case notBlankTag:
		return "this field cannot be blank"
	case statusTag:
		return "must be one of: present, absent, late, excused"
	default:
		return ""
	}
}

func notBlankValidation(fl validator.FieldLevel) bool {
	if str, ok := fl.Field().Interface().(string); ok {
		return strings.TrimSpace(str) != ""
	}
	return false
}

func statusValidation(fl validator.FieldLevel) bool {
	if str, ok := fl.Field().Interface().(string); ok {
		return model.Status(str).Valid()
	}
	return false
}

// FieldError points at one failing field of a payload.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is a validation failure carrying every violation, not just the first.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return "invalid input"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// check runs the validator and converts its output to *Error.
func check(v any) *Error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return &Error{Fields: []FieldError{{Field: "", Message: err.Error()}}}
	}
	out := &Error{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fieldPath(fe),
			Message: fe.Translate(translator),
		})
	}
	return out
}

// fieldPath strips the top-level struct name from the validator namespace,
// leaving paths like "email" or "records[1].status".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

// CreateStudentInput is the creation payload before validation.
type CreateStudentInput struct {
	StudentID string  `json:"studentId" validate:"notblank"`
	FirstName string  `json:"firstName" validate:"notblank"`
	LastName  string  `json:"lastName" validate:"notblank"`
	Email     string  `json:"email" validate:"required,email"`
	PhotoURL  *string `json:"photoUrl"`
}

// CreateStudent validates a creation payload.
func CreateStudent(in CreateStudentInput) (model.NewStudent, error) {
	if err := check(in); err != nil {
		return model.NewStudent{}, err
	}
	return model.NewStudent{
		StudentID: in.StudentID,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		PhotoURL:  in.PhotoURL,
	}, nil
}

// UpdateStudentInput is the partial-update payload. Every field is optional;
// an empty patch validates and is a no-op update.
type UpdateStudentInput struct {
	StudentID *string `json:"studentId" validate:"omitempty,notblank"`
	FirstName *string `json:"firstName" validate:"omitempty,notblank"`
	LastName  *string `json:"lastName" validate:"omitempty,notblank"`
	Email     *string `json:"email" validate:"omitempty,email"`
	PhotoURL  *string `json:"photoUrl"`
}

// UpdateStudent validates a partial-update payload. Provided fields obey the
// same rules as on creation.
func UpdateStudent(in UpdateStudentInput) (model.StudentPatch, error) {
	if err := check(in); err != nil {
		return model.StudentPatch{}, err
	}
	return model.StudentPatch{
		StudentID: in.StudentID,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		PhotoURL:  in.PhotoURL,
	}, nil
}

// CreateSessionInput is the session creation payload.
type CreateSessionInput struct {
	Name string `json:"name" validate:"notblank"`
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

// CreateSession validates a session creation payload. The date must be a
// real calendar date; a DATE column cannot hold an arbitrary string, so a
// malformed date is a validation failure rather than a storage one.
func CreateSession(in CreateSessionInput) (model.NewSession, error) {
	if err := check(in); err != nil {
		return model.NewSession{}, err
	}
	return model.NewSession{Name: in.Name, Date: in.Date}, nil
}

// CreateAttendanceInput is the single-record attendance payload.
type CreateAttendanceInput struct {
	StudentID int     `json:"studentId" validate:"required"`
	SessionID int     `json:"sessionId" validate:"required"`
	Status    string  `json:"status" validate:"required,status"`
	Notes     *string `json:"notes"`
}

// CreateAttendance validates a single attendance record payload.
func CreateAttendance(in CreateAttendanceInput) (model.NewAttendance, error) {
	if err := check(in); err != nil {
		return model.NewAttendance{}, err
	}
	return model.NewAttendance{
		StudentID: in.StudentID,
		SessionID: in.SessionID,
		Status:    model.Status(in.Status),
		Notes:     in.Notes,
	}, nil
}

// BulkAttendanceInput is the bulk-replace envelope.
type BulkAttendanceInput struct {
	Records []CreateAttendanceInput `json:"records" validate:"dive"`
}

// BulkAttendance validates every record in a bulk payload. Records must all
// target the same session: the replace operation derives its target from the
// first record, so a mixed batch would silently drop attendance for the other
// sessions. An empty batch is valid and yields an empty slice.
func BulkAttendance(in BulkAttendanceInput) ([]model.NewAttendance, error) {
	verr := check(in)
	if verr == nil {
		verr = &Error{}
	}
	if len(in.Records) > 0 {
		first := in.Records[0].SessionID
		for i, rec := range in.Records[1:] {
			if rec.SessionID != first {
				verr.Fields = append(verr.Fields, FieldError{
					Field:   "records[" + strconv.Itoa(i+1) + "].sessionId",
					Message: "all records must target the same session",
				})
			}
		}
	}
	if len(verr.Fields) > 0 {
		return nil, verr
	}
	out := make([]model.NewAttendance, 0, len(in.Records))
	for _, rec := range in.Records {
		out = append(out, model.NewAttendance{
			StudentID: rec.StudentID,
			SessionID: rec.SessionID,
			Status:    model.Status(rec.Status),
			Notes:     rec.Notes,
		})
	}
	return out, nil
}
