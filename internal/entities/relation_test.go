package entities

import "testing"

func TestRelationKind(t *testing.T) {
	for _, k := range RelationKinds {
		if !k.Valid() {
			t.Errorf("%s should be valid", k)
		}
	}
	if RelationKind("hasSome").Valid() {
		t.Error("unknown kind reported valid")
	}

	toMany := map[RelationKind]bool{
		HasMany:             true,
		HasAndBelongsToMany: true,
		ReferencesMany:      true,
		EmbedsMany:          true,
		BelongsTo:           false,
		HasOne:              false,
		EmbedsOne:           false,
	}
	for k, want := range toMany {
		if k.IsToMany() != want {
			t.Errorf("%s.IsToMany() = %v, want %v", k, !want, want)
		}
	}
}

func TestRelationMethodName(t *testing.T) {
	def := &RelationDefinition{Name: "related"}
	if got := def.MethodName("create"); got != "prototype.__create__related" {
		t.Errorf("unexpected method name %q", got)
	}

	tests := []struct {
		in     string
		op     string
		rel    string
		wantOK bool
	}{
		{in: "prototype.__get__related", op: "get", rel: "related", wantOK: true},
		{in: "prototype.__destroyById__my_items", op: "destroyById", rel: "my_items", wantOK: true},
		{in: "prototype.updateAttributes"},
		{in: "find"},
		{in: "prototype.____related"},
		{in: "prototype.__get__"},
	}
	for _, tt := range tests {
		op, rel, ok := ParseRelationMethodName(tt.in)
		if ok != tt.wantOK || op != tt.op || rel != tt.rel {
			t.Errorf("ParseRelationMethodName(%q) = %q, %q, %v", tt.in, op, rel, ok)
		}
	}
}

func TestRelationDefinition_Validate(t *testing.T) {
	tests := []struct {
		name    string
		def     RelationDefinition
		wantErr bool
	}{
		{name: "complete", def: RelationDefinition{Name: "r", Kind: HasMany, Source: "A", Target: "B"}},
		{name: "missing name", def: RelationDefinition{Kind: HasMany, Source: "A", Target: "B"}, wantErr: true},
		{name: "missing kind", def: RelationDefinition{Name: "r", Source: "A", Target: "B"}, wantErr: true},
		{name: "missing target", def: RelationDefinition{Name: "r", Kind: HasMany, Source: "A"}, wantErr: true},
		{name: "habtm without through", def: RelationDefinition{Name: "r", Kind: HasAndBelongsToMany, Source: "A", Target: "B"}, wantErr: true},
		{name: "habtm with through", def: RelationDefinition{Name: "r", Kind: HasAndBelongsToMany, Source: "A", Target: "B", Through: "AB"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.def.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRelationDefinition_String(t *testing.T) {
	def := &RelationDefinition{Name: "related", Kind: HasMany, Source: "RelatedModel", Target: "TestModel", ForeignKey: "relatedModelId"}
	if got := def.String(); got != "RelatedModel.related -> hasMany TestModel(relatedModelId)" {
		t.Errorf("unexpected string %q", got)
	}
}
