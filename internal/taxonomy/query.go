package taxonomy

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"dealfeed/internal/domain"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultTypeField = "product_type"
	DefaultTagField  = "tag"

	// Tokens this short are separators, stray punctuation or stop words ("in", "of").
	minKeywordRunes = 3
)

var (
	breadcrumbSeparators = strings.NewReplacer(">", " ", "&", " ")
	phraseEscaper        = strings.NewReplacer(`\`, `\\`, `"`, `\"`)
)

// BreadcrumbToQuery reduces a category's breadcrumb to a plain keyword string:
// "Apparel & Accessories > Apparel Accessories" becomes "Apparel Accessories".
func BreadcrumbToQuery(node domain.CategoryNode) string {
	if node.FullName == "" {
		return ""
	}

	tokens := strings.Fields(breadcrumbSeparators.Replace(node.FullName))
	seen := make(map[string]struct{}, len(tokens))
	keywords := make([]string, 0, len(tokens))

	for _, token := range tokens {
		if utf8.RuneCountInString(token) < minKeywordRunes {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		keywords = append(keywords, token)
	}

	return strings.Join(keywords, " ")
}

// QueryBuilder turns a category selection into a catalog search query.
type QueryBuilder struct {
	store     *Store
	typeField string
	tagField  string
}

// NewQueryBuilder creates a builder over store. Empty field names fall back
// to product_type and tag.
func NewQueryBuilder(store *Store, typeField, tagField string) *QueryBuilder {
	if typeField == "" {
		typeField = DefaultTypeField
	}
	if tagField == "" {
		tagField = DefaultTagField
	}
	return &QueryBuilder{
		store:     store,
		typeField: typeField,
		tagField:  tagField,
	}
}

// Store returns the taxonomy the builder resolves ids against.
func (b *QueryBuilder) Store() *Store {
	return b.store
}

// Clause scopes a keyword string to both searchable fields.
func (b *QueryBuilder) Clause(keywords string) string {
	phrase := phraseEscaper.Replace(keywords)
	return fmt.Sprintf(`(%s:"%s" OR %s:"%s")`, b.typeField, phrase, b.tagField, phrase)
}

// BuildSelectionQuery ORs together one clause per selected category. Ids that
// are no longer in the taxonomy are skipped; an empty result means "no filter".
func (b *QueryBuilder) BuildSelectionQuery(ids []string) string {
	clauses := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))

	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		node, ok := b.store.FindCategoryByID(id)
		if !ok {
			log.Debugf("Skipping unknown category %s in selection", id)
			continue
		}

		keywords := BreadcrumbToQuery(node)
		if keywords == "" {
			log.Debugf("Category %s has no breadcrumb keywords, skipping", id)
			continue
		}
		clauses = append(clauses, b.Clause(keywords))
	}

	return strings.Join(clauses, " OR ")
}
