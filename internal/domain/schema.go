package domain

// SchemaType is a JSON value kind in a response schema.
type SchemaType string

const (
	TypeObject  SchemaType = "object"
	TypeArray   SchemaType = "array"
	TypeString  SchemaType = "string"
	TypeInteger SchemaType = "integer"
	TypeNumber  SchemaType = "number"
	TypeBoolean SchemaType = "boolean"
)

// Schema describes the structured output expected from a generator.
// Providers render it into their own dialect.
type Schema struct {
	Name       string
	Type       SchemaType
	Properties map[string]*Schema
	// Order lists property names in the order they should be emitted.
	Order    []string
	Items    *Schema
	MinItems int
	MaxItems int
	Minimum  *int
	Maximum  *int
}

// Required returns the property names of an object schema; every property
// is required.
func (s *Schema) Required() []string {
	if len(s.Order) > 0 {
		return s.Order
	}
	out := make([]string, 0, len(s.Properties))
	for k := range s.Properties {
		out = append(out, k)
	}
	return out
}

func intPtr(v int) *int { return &v }

// QuizSchema is the structured output contract for quiz mode.
var QuizSchema = &Schema{
	Name:  "quiz",
	Type:  TypeObject,
	Order: []string{"questions"},
	Properties: map[string]*Schema{
		"questions": {
			Type:     TypeArray,
			MinItems: QuizQuestionCount,
			MaxItems: QuizQuestionCount,
			Items: &Schema{
				Type:  TypeObject,
				Order: []string{"question", "options", "correctAnswer", "explanation"},
				Properties: map[string]*Schema{
					"question": {Type: TypeString},
					"options": {
						Type:     TypeArray,
						MinItems: QuizOptionCount,
						MaxItems: QuizOptionCount,
						Items:    &Schema{Type: TypeString},
					},
					"correctAnswer": {Type: TypeInteger, Minimum: intPtr(0), Maximum: intPtr(QuizOptionCount - 1)},
					"explanation":   {Type: TypeString},
				},
			},
		},
	},
}

const (
	QuizQuestionCount = 5
	QuizOptionCount   = 4
)
