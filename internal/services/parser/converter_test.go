package parser

import (
	"reflect"
	"strings"
	"testing"

	"github.com/asakaida/remotemodel/internal/entities"
)

func TestASTToModels(t *testing.T) {
	schema, err := Parse(`model RelatedModel {
  property id: number (id)
  property name: string (required)
  relation related: hasMany TestModel (foreignKey = "relatedModelId", scope = "{\"age\":{\"gt\":1}}")
  relation image: belongsTo Image (polymorphic = "imageable")
}`)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	defs, err := ASTToModels(schema)
	if err != nil {
		t.Fatalf("convert error: %v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("expected 1 model, got %d", len(defs))
	}

	def := defs[0]
	if def.Name != "RelatedModel" {
		t.Errorf("expected RelatedModel, got %s", def.Name)
	}
	if def.IDProperty() != "id" {
		t.Errorf("expected id property, got %s", def.IDProperty())
	}
	if p := def.GetProperty("name"); p == nil || !p.Required || p.Type != "string" {
		t.Errorf("unexpected name property: %+v", p)
	}

	related := def.GetRelation("related")
	if related == nil {
		t.Fatal("expected related relation")
	}
	if related.Kind != entities.HasMany || related.Target != "TestModel" || related.Params.ForeignKey != "relatedModelId" {
		t.Errorf("unexpected relation: %+v", related)
	}
	wantScope := map[string]interface{}{"age": map[string]interface{}{"gt": float64(1)}}
	if !reflect.DeepEqual(related.Params.Scope, wantScope) {
		t.Errorf("expected scope %v, got %v", wantScope, related.Params.Scope)
	}

	if image := def.GetRelation("image"); image == nil || image.Params.Polymorphic != "imageable" {
		t.Errorf("unexpected image relation: %+v", image)
	}
}

func TestModelsToAST(t *testing.T) {
	defs := []*entities.ModelDefinition{
		{
			Name: "Person",
			Properties: []*entities.Property{
				{Name: "id", Type: "number", ID: true},
				{Name: "name", Type: "string", Required: true},
			},
			Relations: []*entities.RelationDeclaration{
				{
					Kind:   entities.HasAndBelongsToMany,
					Target: "Tag",
					Params: entities.RelationParams{Name: "tags", Through: "TagLink"},
				},
			},
		},
	}

	ast, err := ModelsToAST(defs)
	if err != nil {
		t.Fatalf("convert error: %v", err)
	}

	m := ast.Models[0]
	if len(m.Properties) != 2 || !m.Properties[0].HasModifier(ModifierID) || !m.Properties[1].HasModifier(ModifierRequired) {
		t.Errorf("unexpected properties: %+v", m.Properties)
	}
	rel := m.Relations[0]
	if rel.Kind != "hasAndBelongsToMany" || rel.Target != "Tag" {
		t.Errorf("unexpected relation: %+v", rel)
	}
	if len(rel.Options) != 1 || rel.Option(OptionThrough) != "TagLink" {
		t.Errorf("expected only the through option, got %+v", rel.Options)
	}
}

func TestParseModels(t *testing.T) {
	defs, err := ParseModels(`model RelatedModel { relation related: hasMany TestModel }`, "TestModel")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(defs) != 1 || defs[0].Relations[0].Target != "TestModel" {
		t.Errorf("unexpected definitions: %+v", defs)
	}

	if _, err := ParseModels(`model RelatedModel { relation related: hasMany TestModel }`); err == nil {
		t.Error("expected validation error for undefined target")
	}
	if _, err := ParseModels(`model {`); err == nil {
		t.Error("expected parse error")
	}
}

func TestRoundTrip_ModelsToASTToModels(t *testing.T) {
	original := []*entities.ModelDefinition{
		{
			Name: "RelatedModel",
			Properties: []*entities.Property{
				{Name: "name", Type: "string"},
			},
			Relations: []*entities.RelationDeclaration{
				{
					Kind:   entities.HasMany,
					Target: "TestModel",
					Params: entities.RelationParams{
						Name:       "related",
						ForeignKey: "relatedModelId",
						Scope:      map[string]interface{}{"age": map[string]interface{}{"gt": float64(99)}},
					},
				},
				{
					Kind:   entities.EmbedsMany,
					Target: "Address",
					Params: entities.RelationParams{Name: "addresses", Property: "addressList"},
				},
			},
		},
	}

	ast, err := ModelsToAST(original)
	if err != nil {
		t.Fatalf("to AST: %v", err)
	}
	converted, err := ASTToModels(ast)
	if err != nil {
		t.Fatalf("to models: %v", err)
	}
	if !reflect.DeepEqual(original, converted) {
		t.Errorf("round trip mismatch:\noriginal:  %+v\nconverted: %+v", original[0], converted[0])
	}
}

func TestRoundTrip_EmbeddedPropertyThroughDSL(t *testing.T) {
	defs := []*entities.ModelDefinition{
		{
			Name: "Doc",
			Relations: []*entities.RelationDeclaration{
				{
					Kind:   entities.EmbedsMany,
					Target: "Note",
					Params: entities.RelationParams{Name: "notes", Property: "noteList"},
				},
			},
		},
		{
			Name:       "Note",
			Properties: []*entities.Property{{Name: "text", Type: "string"}},
		},
	}

	ast, err := ModelsToAST(defs)
	if err != nil {
		t.Fatalf("convert error: %v", err)
	}
	dsl := NewGenerator().Generate(ast)
	if !strings.Contains(dsl, `relation notes: embedsMany Note (property = "noteList")`) {
		t.Fatalf("unexpected DSL:\n%s", dsl)
	}

	parsed, err := ParseModels(dsl)
	if err != nil {
		t.Fatalf("generated DSL does not parse: %v", err)
	}
	notes := parsed[0].GetRelation("notes")
	if notes == nil || notes.Params.Property != "noteList" {
		t.Errorf("expected property noteList to survive, got %+v", notes)
	}
}
