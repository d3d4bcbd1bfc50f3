package recordstore

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"fpsync/internal/device"
)

// ErrSchema marks a record that violates the record schema.
var ErrSchema = errors.New("record schema violation")

var recordIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]*$`)

var recordValidate *validator.Validate

func init() {
	recordValidate = validator.New()
	recordValidate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		return name
	})
	_ = recordValidate.RegisterValidation("record_id", func(fl validator.FieldLevel) bool {
		return recordIDPattern.MatchString(fl.Field().String())
	})
	_ = recordValidate.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return device.Category(fl.Field().String()).Valid()
	})
	// Stored tokens need only be single words; extraction shape-checks new
	// candidates.
	_ = recordValidate.RegisterValidation("stored_token", func(fl validator.FieldLevel) bool {
		return isStoredToken(fl.Field().String())
	})
}

func isStoredToken(value string) bool {
	if value == "" || !utf8.ValidString(value) {
		return false
	}
	return strings.IndexFunc(value, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}) < 0
}

// schemaView is the validated projection of a DeviceRecord.
type schemaView struct {
	ID                 string   `json:"id" validate:"required,record_id"`
	Category           string   `json:"category" validate:"category"`
	ManufacturerTokens []string `json:"manufacturerTokens" validate:"dive,required,stored_token"`
	ProductTokens      []string `json:"productTokens" validate:"dive,required,stored_token"`
	Capabilities       []string `json:"capabilities" validate:"dive,required"`
	Clusters           []int    `json:"clusters" validate:"dive,min=0,max=65535"`
}

// ValidateSchema checks record against the record schema. Violations wrap
// ErrSchema and name every offending field.
func ValidateSchema(record *device.DeviceRecord) error {
	if record == nil {
		return fmt.Errorf("%w: nil record", ErrSchema)
	}
	view := schemaView{
		ID:                 record.ID,
		Category:           string(record.Category),
		ManufacturerTokens: record.ManufacturerTokens.Values(),
		ProductTokens:      record.ProductTokens.Values(),
		Capabilities:       record.Capabilities.Values(),
		Clusters:           record.Clusters,
	}
	err := recordValidate.Struct(view)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	details := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, fmt.Sprintf("%s fails %s (value %v)", trimNamespace(fe.Namespace()), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("%w: %s: %s", ErrSchema, record.ID, strings.Join(details, "; "))
}

func trimNamespace(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}
