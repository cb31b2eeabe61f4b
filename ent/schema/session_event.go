package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// SessionEvent records one answered or skipped question.
type SessionEvent struct {
	ent.Schema
}

func (SessionEvent) Mixin() []ent.Mixin {
	return []ent.Mixin{EventMixin{}}
}

func (SessionEvent) Fields() []ent.Field {
	return []ent.Field{
		field.String("session_id").
			Immutable(),
		field.String("submodule_id").
			Immutable(),
		field.String("modal_schema_id").
			Immutable().
			Comment("Interaction contract the question was generated for"),
		field.Text("question_data").
			Immutable().
			Comment("Validated question JSON, or null"),
		field.Text("user_answer").
			Immutable(),
		field.Text("mark_data").
			Immutable().
			Comment("Judgement JSON"),
		field.Bool("marked").
			Immutable().
			Comment("False for questions skipped without a judgement"),
		field.Bool("is_correct").
			Immutable(),
	}
}

func (SessionEvent) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("session", Session.Type).
			Ref("events").
			Field("session_id").
			Unique().
			Required().
			Immutable(),
	}
}

func (SessionEvent) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("session_id"),
	}
}
