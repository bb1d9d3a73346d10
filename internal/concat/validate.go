package concat

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Result is the outcome of a validation pass. Errors make a record invalid;
// warnings are informational.
type Result struct {
	IsValid  bool     `json:"isValid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Err folds the error list into a single error, or nil when valid.
func (r Result) Err() error {
	if r.IsValid {
		return nil
	}
	return fmt.Errorf("invalid concatenation state: %s", strings.Join(r.Errors, "; "))
}

func (r *Result) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) addWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *Result) finish() Result {
	if r.Errors == nil {
		r.Errors = []string{}
	}
	if r.Warnings == nil {
		r.Warnings = []string{}
	}
	r.IsValid = len(r.Errors) == 0
	return *r
}

// RequiredFields lists the JSON keys a persisted record must carry.
var RequiredFields = []string{
	"originalFileName",
	"concatenatedFileName",
	"selectedSheets",
	"previewData",
	"totalRows",
	"processedAt",
	"status",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Use JSON tag names in error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks a typed record against the required-field list and type
// constraints. It has no side effects and collects every violation.
func Validate(s *State) Result {
	var res Result
	if s == nil {
		for _, f := range RequiredFields {
			res.addError("%s is required", f)
		}
		return res.finish()
	}
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				res.addError("%s", formatFieldError(fe))
			}
		} else {
			res.addError("%v", err)
		}
	}
	if s.IsPlaceholder() {
		res.addError("record was built from blank file names and must not be persisted")
	}
	checkCategories(&res, s.ColumnCategories)
	addWarnings(&res, s)
	return res.finish()
}

func formatFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		if fe.Kind() == reflect.String && strings.Contains(field, "[") {
			return fmt.Sprintf("%s must be a non-empty string", field)
		}
		return fmt.Sprintf("%s is required", field)
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

func addWarnings(res *Result, s *State) {
	if s.Status == StatusCompleted && len(s.SelectedSheets) == 0 {
		res.addWarning("completed record has no selected sheets")
	}
	if s.PreviewData != nil && len(s.PreviewData) == 0 {
		res.addWarning("previewData is empty")
	}
	if s.TotalRows >= 0 && len(s.PreviewData) > s.TotalRows {
		res.addWarning("previewData has %d rows but totalRows is %d", len(s.PreviewData), s.TotalRows)
	}
	if s.TargetVariable == "" {
		res.addWarning("targetVariable is not set")
	}
	if bm := s.BrandMetadata; bm != nil && s.TargetVariable != "" && bm.TargetVariable != s.TargetVariable {
		res.addWarning("brandMetadata targetVariable %q differs from %q", bm.TargetVariable, s.TargetVariable)
	}
}

// checkCategories reports every column assigned to more than one category.
func checkCategories(res *Result, cc ColumnCategories) {
	seen := map[string]Category{}
	for _, c := range Categories {
		for _, col := range cc[c] {
			if prev, dup := seen[col]; dup && prev != c {
				res.addError("column %q appears in both %s and %s", col, prev, c)
				continue
			}
			seen[col] = c
		}
	}
}

// ValidateDocument checks a loosely typed JSON object (a decoded request or
// response body) before it is trusted as a State. Every missing required key
// and every shape violation is reported; typed validation runs only when the
// shape is sound.
func ValidateDocument(doc map[string]any) Result {
	var res Result
	if doc == nil {
		for _, f := range RequiredFields {
			res.addError("%s is required", f)
		}
		return res.finish()
	}
	for _, f := range RequiredFields {
		if v, ok := doc[f]; !ok || v == nil {
			res.addError("%s is required", f)
		}
	}
	for _, f := range []string{"selectedSheets", "previewData", "selectedFilters"} {
		if v, ok := doc[f]; ok && v != nil {
			if _, isArr := v.([]any); !isArr {
				res.addError("%s must be an array", f)
			}
		}
	}
	if v, ok := doc["totalRows"]; ok && v != nil {
		n, isNum := v.(float64)
		if !isNum || math.IsNaN(n) || math.IsInf(n, 0) || n < 0 {
			res.addError("totalRows must be a non-negative number")
		} else if n != math.Trunc(n) {
			res.addError("totalRows must be a whole number")
		}
	}
	for _, f := range []string{"originalFileName", "concatenatedFileName", "status", "processedAt"} {
		if v, ok := doc[f]; ok && v != nil {
			if _, isStr := v.(string); !isStr {
				res.addError("%s must be a string", f)
			}
		}
	}
	if len(res.Errors) > 0 {
		return res.finish()
	}

	b, err := json.Marshal(doc)
	if err != nil {
		res.addError("encode document: %v", err)
		return res.finish()
	}
	var s State
	if err := json.Unmarshal(b, &s); err != nil {
		res.addError("decode document: %v", err)
		return res.finish()
	}
	typed := Validate(&s)
	res.Errors = append(res.Errors, typed.Errors...)
	res.Warnings = append(res.Warnings, typed.Warnings...)
	return res.finish()
}

// DecodeDocument parses raw JSON, validates its shape and returns the
// sanitized typed record. The returned error is non-nil only for malformed
// JSON; an invalid but well-formed document yields a nil State and a Result
// listing the problems.
func DecodeDocument(raw []byte) (*State, Result, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, Result{}, fmt.Errorf("parse concatenation state: %w", err)
	}
	res := ValidateDocument(doc)
	if !res.IsValid {
		return nil, res, nil
	}
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, res, fmt.Errorf("decode concatenation state: %w", err)
	}
	clean := Sanitize(s)
	return &clean, res, nil
}
