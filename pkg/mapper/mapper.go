package mapper

import (
	"errors"
	"fmt"

	"github.com/civicbridge/platform/pkg/common/models"
	"github.com/itchyny/gojq"
)

// Target registry kinds. The kind decides the is_group flag merged into
// every mapped record.
const (
	TargetIndividual = "individual"
	TargetGroup      = "group"
)

// MappingError wraps a failure of the configured mapping expression.
type MappingError struct {
	reason error
}

func (e MappingError) Error() string {
	return fmt.Sprintf("mapping submission: %v", e.reason)
}

func (e MappingError) Unwrap() error {
	return e.reason
}

func IsMappingError(err error) bool {
	var me MappingError
	return errors.As(err, &me)
}

// Mapper turns a raw submission into a registrant record by evaluating a
// configured jq program against it. The program is configuration, not code:
// swapping the field mapping never requires a rebuild.
type Mapper struct {
	expr string
	code *gojq.Code
	kind string
}

// New compiles the jq program. An empty expression defaults to identity.
func New(expression, targetKind string) (*Mapper, error) {
	if expression == "" {
		expression = "."
	}
	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("parsing mapping expression: %w", err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("compiling mapping expression: %w", err)
	}
	return &Mapper{expr: expression, code: code, kind: targetKind}, nil
}

// Map evaluates the expression and returns its first result as the base
// record. The registrant flags are merged in afterwards and win over
// anything the expression produced for those keys.
func (m *Mapper) Map(sub models.Submission) (map[string]interface{}, error) {
	iter := m.code.Run(map[string]interface{}(sub))

	v, ok := iter.Next()
	if !ok {
		return nil, MappingError{reason: fmt.Errorf("expression %q produced no result", m.expr)}
	}
	if err, isErr := v.(error); isErr {
		return nil, MappingError{reason: err}
	}

	record, isMap := v.(map[string]interface{})
	if !isMap {
		return nil, MappingError{reason: fmt.Errorf("expression %q produced %T, expected an object", m.expr, v)}
	}

	record["is_registrant"] = true
	record["is_group"] = m.kind == TargetGroup

	return record, nil
}

// TargetKind reports the configured registry kind.
func (m *Mapper) TargetKind() string {
	return m.kind
}
