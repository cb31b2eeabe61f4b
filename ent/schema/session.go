package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Session is the persisted header of one learner session.
type Session struct {
	ent.Schema
}

func (Session) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			NotEmpty().
			Immutable().
			Comment("UUID assigned by the session manager"),
		field.String("user_id").
			NotEmpty(),
		field.String("module_id").
			NotEmpty(),
		field.String("target_language"),
		field.String("source_language"),
		field.Time("start_time").
			Immutable(),
		field.Time("end_time").
			Optional().
			Nillable().
			Comment("Null while the session is open"),
	}
}

func (Session) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("events", SessionEvent.Type),
	}
}

func (Session) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("user_id", "module_id"),
	}
}
