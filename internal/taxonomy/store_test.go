package taxonomy

import (
	"strings"
	"testing"

	"dealfeed/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gid = "gid://shopify/TaxonomyCategory/"

func loadTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := LoadFile("testdata/taxonomy.json")
	require.NoError(t, err)
	return store
}

func TestLoad_NormalizesFlatAndNestedEntries(t *testing.T) {
	store := loadTestStore(t)

	assert.Equal(t, "2024-07", store.Version())
	assert.Equal(t, []string{"Apparel & Accessories", "Electronics", "Gift Cards"}, store.Verticals())
	// The cross-vertical duplicate of aa-1 is dropped.
	assert.Equal(t, 10, store.Len())
}

func TestFindCategoryByID(t *testing.T) {
	store := loadTestStore(t)

	tests := []struct {
		name         string
		id           string
		wantFound    bool
		wantName     string
		wantFullName string
		wantLevel    int
		wantParent   string
	}{
		{
			name:         "nested reference merged with flat entry",
			id:           gid + "aa-1",
			wantFound:    true,
			wantName:     "Clothing",
			wantFullName: "Apparel & Accessories > Clothing",
			wantLevel:    1,
			wantParent:   gid + "aa",
		},
		{
			name:         "nested only entry gets parent from nesting",
			id:           gid + "aa-2-1",
			wantFound:    true,
			wantName:     "Belts",
			wantFullName: "Apparel & Accessories > Clothing Accessories > Belts",
			wantLevel:    2,
			wantParent:   gid + "aa-2",
		},
		{
			name:         "vertical root",
			id:           gid + "el",
			wantFound:    true,
			wantName:     "Electronics",
			wantFullName: "Electronics",
			wantLevel:    0,
		},
		{
			name:      "unknown id",
			id:        "nonexistent-id",
			wantFound: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, ok := store.FindCategoryByID(tt.id)
			require.Equal(t, tt.wantFound, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.id, node.ID)
			assert.Equal(t, tt.wantName, node.Name)
			assert.Equal(t, tt.wantFullName, node.FullName)
			assert.Equal(t, tt.wantLevel, node.Level)
			assert.Equal(t, tt.wantParent, node.ParentID)
		})
	}
}

func TestFindCategoryByID_FirstVerticalWins(t *testing.T) {
	store := loadTestStore(t)

	node, ok := store.FindCategoryByID(gid + "aa-1")
	require.True(t, ok)
	assert.NotEqual(t, "Imposter", node.Name)
}

func TestFindCategoryByID_LinksChildren(t *testing.T) {
	store := loadTestStore(t)

	root, ok := store.FindCategoryByID(gid + "aa")
	require.True(t, ok)

	var childIDs []string
	for _, c := range root.Children {
		childIDs = append(childIDs, c.ID)
	}
	// aa-3 is only linked through parent_id.
	assert.Equal(t, []string{gid + "aa-1", gid + "aa-2", gid + "aa-3"}, childIDs)

	parent, ok := store.Parent(gid + "aa-3")
	require.True(t, ok)
	assert.Equal(t, gid+"aa", parent.ID)

	_, ok = store.Parent(gid + "el-2")
	assert.False(t, ok)
}

func TestLevelCategories(t *testing.T) {
	store := loadTestStore(t)

	level1 := store.LevelCategories(1)
	var ids []string
	for _, c := range level1 {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{gid + "aa-1", gid + "aa-2", gid + "aa-3", gid + "el-1", gid + "el-2"}, ids)
	assert.Equal(t, domain.CategorySummary{
		ID:       gid + "el-1",
		Name:     "Audio",
		FullName: "Electronics > Audio",
	}, level1[3])

	assert.Len(t, store.LevelCategories(2), 2)
	assert.Empty(t, store.LevelCategories(7))
}

func TestLevelCategories_SkipsCategoriesWithoutBreadcrumb(t *testing.T) {
	store := loadTestStore(t)

	var ids []string
	for _, c := range store.LevelCategories(0) {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{gid + "aa", gid + "el"}, ids)

	// Still resolvable, just not offered for selection.
	gc, ok := store.FindCategoryByID(gid + "gc")
	require.True(t, ok)
	assert.Empty(t, gc.FullName)
}

func TestVerticalMaps(t *testing.T) {
	store := loadTestStore(t)

	assert.Equal(t,
		[]string{"Apparel & Accessories", "Clothing", "Clothing Accessories", "Belts", "Apparel Accessories"},
		store.VerticalKeywords("Apparel & Accessories"))
	assert.Equal(t, []string{"Gift Cards"}, store.VerticalKeywords("Gift Cards"))
	assert.Equal(t, []string{"Toys & Games"}, store.VerticalKeywords("Toys & Games"))

	assert.Equal(t,
		[]string{gid + "aa", gid + "aa-1", gid + "aa-2", gid + "aa-2-1", gid + "aa-3"},
		store.VerticalCategoryIDs("Apparel & Accessories"))
	assert.Empty(t, store.VerticalCategoryIDs("Toys & Games"))

	root, ok := store.VerticalRootID("Electronics")
	assert.True(t, ok)
	assert.Equal(t, gid+"el", root)

	_, ok = store.VerticalRootID("Toys & Games")
	assert.False(t, ok)
}

func TestVerticalKeywords_ReturnsCopy(t *testing.T) {
	store := loadTestStore(t)

	kw := store.VerticalKeywords("Electronics")
	kw[0] = "mutated"
	assert.Equal(t, "Electronics", store.VerticalKeywords("Electronics")[0])
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "malformed json",
			doc:     `{"verticals": [`,
			wantErr: "failed to decode taxonomy",
		},
		{
			name:    "missing id",
			doc:     `{"verticals":[{"name":"V","categories":[{"level":0,"name":"Root"}]}]}`,
			wantErr: "has no id",
		},
		{
			name: "child level below parent",
			doc: `{"verticals":[{"name":"V","categories":[
				{"id":"v","level":1,"name":"Root","children":[{"id":"v-1","level":0,"name":"Child"}]}
			]}]}`,
			wantErr: "below its parent",
		},
		{
			name: "flat entry level below referenced parent",
			doc: `{"verticals":[{"name":"V","categories":[
				{"id":"v","level":2,"name":"Root"},
				{"id":"v-1","level":1,"name":"Child","parent_id":"v"}
			]}]}`,
			wantErr: "below its parent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			if tt.name != "malformed json" {
				assert.ErrorIs(t, err, domain.ErrInvalidTaxonomy)
			}
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile("testdata/does-not-exist.json")
	assert.Error(t, err)
}
