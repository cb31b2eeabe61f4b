package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
)

// GlobalSequence is a single-row counter shared by all event tables.
type GlobalSequence struct {
	ent.Schema
}

func (GlobalSequence) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "global_sequence"},
	}
}

func (GlobalSequence) Fields() []ent.Field {
	return []ent.Field{
		field.Int64("next_val").
			Default(1),
	}
}
