package relation

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/asakaida/remotemodel/internal/entities"
)

// applyConventions fills the keys a declaration left empty
func applyConventions(def *entities.RelationDefinition) {
	switch def.Kind {
	case entities.HasMany, entities.HasOne:
		if def.ForeignKey == "" {
			if def.Polymorphic != "" {
				def.ForeignKey = def.Polymorphic + "Id"
			} else {
				def.ForeignKey = lowerFirst(def.Source) + "Id"
			}
		}
	case entities.BelongsTo:
		if def.ForeignKey == "" {
			if def.Polymorphic != "" {
				def.ForeignKey = def.Polymorphic + "Id"
			} else {
				def.ForeignKey = def.Name + "Id"
			}
		}
	case entities.HasAndBelongsToMany:
		if def.ForeignKey == "" {
			def.ForeignKey = lowerFirst(def.Source) + "Id"
		}
	case entities.ReferencesMany:
		if def.ForeignKey == "" {
			def.ForeignKey = singular(def.Name) + "Ids"
		}
	case entities.EmbedsOne, entities.EmbedsMany:
		if def.Property == "" {
			def.Property = def.Name
		}
	}
}

// discriminator returns the property holding the model name of a polymorphic owner
func discriminator(def *entities.RelationDefinition) string {
	if def.Polymorphic == "" {
		return ""
	}
	return def.Polymorphic + "Type"
}

// throughKey returns the join model property referencing the target
func throughKey(def *entities.RelationDefinition) string {
	return lowerFirst(def.Target) + "Id"
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}

func singular(s string) string {
	switch {
	case strings.HasSuffix(s, "ies") && len(s) > 3:
		return s[:len(s)-3] + "y"
	case strings.HasSuffix(s, "ss"):
		return s
	case strings.HasSuffix(s, "s") && len(s) > 1:
		return s[:len(s)-1]
	}
	return s
}
