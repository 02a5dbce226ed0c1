package parser

import (
	"encoding/json"
	"fmt"

	"github.com/asakaida/remotemodel/internal/entities"
)

// ASTToModels converts SchemaAST to model definitions, in declaration order
func ASTToModels(ast *SchemaAST) ([]*entities.ModelDefinition, error) {
	defs := make([]*entities.ModelDefinition, 0, len(ast.Models))
	for _, modelAST := range ast.Models {
		def, err := convertModel(modelAST)
		if err != nil {
			return nil, fmt.Errorf("failed to convert model %s: %w", modelAST.Name, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// ModelsToAST converts model definitions to SchemaAST
func ModelsToAST(defs []*entities.ModelDefinition) (*SchemaAST, error) {
	ast := &SchemaAST{
		Models: make([]*ModelAST, 0, len(defs)),
	}
	for _, def := range defs {
		modelAST, err := convertModelToAST(def)
		if err != nil {
			return nil, fmt.Errorf("failed to convert model %s: %w", def.Name, err)
		}
		ast.Models = append(ast.Models, modelAST)
	}
	return ast, nil
}

// ParseModels parses, validates and converts a schema in one step.
// external names models defined elsewhere that relations may target.
func ParseModels(dsl string, external ...string) ([]*entities.ModelDefinition, error) {
	ast, err := Parse(dsl)
	if err != nil {
		return nil, err
	}
	if err := NewValidator(ast, external...).Validate(); err != nil {
		return nil, err
	}
	return ASTToModels(ast)
}

func convertModel(ast *ModelAST) (*entities.ModelDefinition, error) {
	def := &entities.ModelDefinition{
		Name:       ast.Name,
		Properties: make([]*entities.Property, 0, len(ast.Properties)),
		Relations:  make([]*entities.RelationDeclaration, 0, len(ast.Relations)),
	}

	for _, p := range ast.Properties {
		def.Properties = append(def.Properties, &entities.Property{
			Name:     p.Name,
			Type:     p.Type,
			ID:       p.HasModifier(ModifierID),
			Required: p.HasModifier(ModifierRequired),
		})
	}

	for _, r := range ast.Relations {
		decl := &entities.RelationDeclaration{
			Kind:   entities.RelationKind(r.Kind),
			Target: r.Target,
			Params: entities.RelationParams{
				Name:        r.Name,
				ForeignKey:  r.Option(OptionForeignKey),
				Through:     r.Option(OptionThrough),
				Polymorphic: r.Option(OptionPolymorphic),
				Property:    r.Option(OptionProperty),
			},
		}
		if scope := r.Option(OptionScope); scope != "" {
			if err := json.Unmarshal([]byte(scope), &decl.Params.Scope); err != nil {
				return nil, fmt.Errorf("relation %s: invalid scope: %w", r.Name, err)
			}
		}
		def.Relations = append(def.Relations, decl)
	}

	return def, nil
}

func convertModelToAST(def *entities.ModelDefinition) (*ModelAST, error) {
	ast := &ModelAST{
		Name:       def.Name,
		Properties: make([]*PropertyAST, 0, len(def.Properties)),
		Relations:  make([]*RelationAST, 0, len(def.Relations)),
	}

	for _, p := range def.Properties {
		prop := &PropertyAST{Name: p.Name, Type: p.Type}
		if p.ID {
			prop.Modifiers = append(prop.Modifiers, ModifierID)
		}
		if p.Required {
			prop.Modifiers = append(prop.Modifiers, ModifierRequired)
		}
		ast.Properties = append(ast.Properties, prop)
	}

	for _, r := range def.Relations {
		rel := &RelationAST{
			Name:   r.Params.Name,
			Kind:   string(r.Kind),
			Target: r.Target,
		}
		rel.addOption(OptionForeignKey, r.Params.ForeignKey)
		rel.addOption(OptionThrough, r.Params.Through)
		rel.addOption(OptionPolymorphic, r.Params.Polymorphic)
		rel.addOption(OptionProperty, r.Params.Property)
		if len(r.Params.Scope) > 0 {
			scope, err := json.Marshal(r.Params.Scope)
			if err != nil {
				return nil, fmt.Errorf("relation %s: invalid scope: %w", r.Params.Name, err)
			}
			rel.addOption(OptionScope, string(scope))
		}
		ast.Relations = append(ast.Relations, rel)
	}

	return ast, nil
}

func (r *RelationAST) addOption(key, value string) {
	if value != "" {
		r.Options = append(r.Options, &OptionAST{Key: key, Value: value})
	}
}
