package taxonomy

import (
	"fmt"
	"io"
	"os"
	"sync"

	"dealfeed/internal/domain"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
)

// rawNode mirrors the dataset shape. Nested children are often bare {id, name}
// references to entries that also appear in the flat list, so level and
// parent are optional here.
type rawNode struct {
	ID       string    `json:"id"`
	Level    *int      `json:"level"`
	Name     string    `json:"name"`
	FullName string    `json:"full_name"`
	ParentID *string   `json:"parent_id"`
	Children []rawNode `json:"children"`
}

type rawVertical struct {
	Name       string    `json:"name"`
	Prefix     string    `json:"prefix"`
	Categories []rawNode `json:"categories"`
}

type rawTaxonomy struct {
	Version   string        `json:"version"`
	Verticals []rawVertical `json:"verticals"`
}

type node struct {
	category      domain.CategoryNode
	levelExplicit bool
	vertical      int
	parent        int // -1 when the node has no resolved parent
	children      []int
}

type vertical struct {
	name   string
	prefix string
	nodes  []int // arena indices in first-seen order
}

type verticalMaps struct {
	keywords    map[string][]string
	categoryIDs map[string][]string
	rootIDs     map[string]string
}

// Store is the immutable in-memory taxonomy. Flat and nested category lists
// are merged into one arena at load time; lookups never walk the raw tree.
type Store struct {
	version   string
	verticals []vertical
	arena     []node
	byID      map[string]int
	byLevel   map[int][]int

	mapsOnce sync.Once
	maps     verticalMaps
}

// LoadFile reads a taxonomy document from disk.
func LoadFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open taxonomy file: %w", err)
	}
	defer f.Close()

	store, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load taxonomy from %s: %w", path, err)
	}

	log.Infof("📚 Loaded taxonomy %s: %d verticals, %d categories", store.version, len(store.verticals), len(store.arena))
	return store, nil
}

// Load decodes and normalizes a taxonomy document.
func Load(r io.Reader) (*Store, error) {
	var data rawTaxonomy
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode taxonomy: %w", err)
	}

	s := &Store{
		version: data.Version,
		byID:    make(map[string]int),
		byLevel: make(map[int][]int),
	}

	for vi, rv := range data.Verticals {
		s.verticals = append(s.verticals, vertical{name: rv.Name, prefix: rv.Prefix})
		for _, rn := range rv.Categories {
			if err := s.visit(rn, -1, vi); err != nil {
				return nil, err
			}
		}
	}

	if err := s.link(); err != nil {
		return nil, err
	}

	for i := range s.arena {
		level := s.arena[i].category.Level
		s.byLevel[level] = append(s.byLevel[level], i)
	}

	return s, nil
}

func (s *Store) visit(rn rawNode, parent, vi int) error {
	if rn.ID == "" {
		return fmt.Errorf("%w: category %q in vertical %q has no id", domain.ErrInvalidTaxonomy, rn.Name, s.verticals[vi].name)
	}

	idx, seen := s.byID[rn.ID]
	switch {
	case !seen:
		idx = s.add(rn, parent, vi)
	case s.arena[idx].vertical != vi:
		// Same id in two verticals: the first one scanned wins.
		log.Warnf("⚠️ Duplicate category id %s in vertical %q, keeping the one from %q",
			rn.ID, s.verticals[vi].name, s.verticals[s.arena[idx].vertical].name)
		return nil
	default:
		s.merge(idx, rn, parent)
	}

	for _, child := range rn.Children {
		if err := s.visit(child, idx, vi); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) add(rn rawNode, parent, vi int) int {
	n := node{
		category: domain.CategoryNode{
			ID:       rn.ID,
			Name:     rn.Name,
			FullName: rn.FullName,
		},
		vertical: vi,
		parent:   parent,
	}
	if rn.ParentID != nil {
		n.category.ParentID = *rn.ParentID
	}

	switch {
	case rn.Level != nil:
		n.category.Level = *rn.Level
		n.levelExplicit = true
	case parent >= 0:
		n.category.Level = s.arena[parent].category.Level + 1
	}

	idx := len(s.arena)
	s.arena = append(s.arena, n)
	s.byID[rn.ID] = idx
	s.verticals[vi].nodes = append(s.verticals[vi].nodes, idx)
	if parent >= 0 {
		s.arena[parent].children = append(s.arena[parent].children, idx)
	}
	return idx
}

// merge folds a second occurrence of an id (usually the flat entry for a
// nested reference, or the reverse) into the existing arena slot.
func (s *Store) merge(idx int, rn rawNode, parent int) {
	n := &s.arena[idx]
	if n.category.Name == "" {
		n.category.Name = rn.Name
	}
	if n.category.FullName == "" {
		n.category.FullName = rn.FullName
	}
	if n.category.ParentID == "" && rn.ParentID != nil {
		n.category.ParentID = *rn.ParentID
	}
	if !n.levelExplicit && rn.Level != nil {
		n.category.Level = *rn.Level
		n.levelExplicit = true
	}
	if parent >= 0 && n.parent < 0 {
		n.parent = parent
		s.arena[parent].children = append(s.arena[parent].children, idx)
	}
}

// link resolves parent_id references for flat entries and checks that levels
// never decrease from parent to child.
func (s *Store) link() error {
	for i := range s.arena {
		n := &s.arena[i]
		if n.parent < 0 && n.category.ParentID != "" {
			if p, ok := s.byID[n.category.ParentID]; ok && p != i {
				n.parent = p
				s.arena[p].children = append(s.arena[p].children, i)
			}
		}
		if n.parent >= 0 && n.category.ParentID == "" {
			n.category.ParentID = s.arena[n.parent].category.ID
		}
	}

	for i := range s.arena {
		n := s.arena[i]
		if n.parent < 0 {
			continue
		}
		parent := s.arena[n.parent].category
		if n.category.Level < parent.Level {
			return fmt.Errorf("%w: category %s has level %d below its parent %s at level %d",
				domain.ErrInvalidTaxonomy, n.category.ID, n.category.Level, parent.ID, parent.Level)
		}
	}
	return nil
}

// Version returns the dataset version string.
func (s *Store) Version() string {
	return s.version
}

// Len returns the number of distinct categories.
func (s *Store) Len() int {
	return len(s.arena)
}

// Verticals returns vertical names in dataset order.
func (s *Store) Verticals() []string {
	names := make([]string, 0, len(s.verticals))
	for _, v := range s.verticals {
		names = append(names, v.name)
	}
	return names
}

// FindCategoryByID returns the category with the given id. The returned node
// has Children populated one level deep from the normalized links.
func (s *Store) FindCategoryByID(id string) (domain.CategoryNode, bool) {
	idx, ok := s.byID[id]
	if !ok {
		return domain.CategoryNode{}, false
	}
	return s.nodeAt(idx), true
}

// Parent returns the resolved parent of id, if any.
func (s *Store) Parent(id string) (domain.CategoryNode, bool) {
	idx, ok := s.byID[id]
	if !ok || s.arena[idx].parent < 0 {
		return domain.CategoryNode{}, false
	}
	return s.nodeAt(s.arena[idx].parent), true
}

func (s *Store) nodeAt(idx int) domain.CategoryNode {
	n := s.arena[idx]
	c := n.category
	if len(n.children) > 0 {
		c.Children = make([]domain.CategoryNode, 0, len(n.children))
		for _, ci := range n.children {
			c.Children = append(c.Children, s.arena[ci].category)
		}
	}
	return c
}

// LevelCategories lists every selectable category at the given depth, in
// vertical order and then in dataset order. Categories without a breadcrumb
// are left out: they can never narrow a search.
func (s *Store) LevelCategories(level int) []domain.CategorySummary {
	indices := s.byLevel[level]
	out := make([]domain.CategorySummary, 0, len(indices))
	for _, idx := range indices {
		c := s.arena[idx].category
		if c.FullName == "" {
			continue
		}
		out = append(out, domain.CategorySummary{
			ID:       c.ID,
			Name:     c.Name,
			FullName: c.FullName,
		})
	}
	return out
}

// VerticalKeywords returns the vertical name followed by every category name
// under it, deduplicated. Unknown verticals yield just the given name.
func (s *Store) VerticalKeywords(name string) []string {
	m := s.verticalMaps()
	if kw, ok := m.keywords[name]; ok {
		return append([]string(nil), kw...)
	}
	return []string{name}
}

// VerticalCategoryIDs returns the root id first, then every other category id
// in the vertical.
func (s *Store) VerticalCategoryIDs(name string) []string {
	return append([]string(nil), s.verticalMaps().categoryIDs[name]...)
}

// VerticalRootID returns the id of the level 0 category of a vertical.
func (s *Store) VerticalRootID(name string) (string, bool) {
	id, ok := s.verticalMaps().rootIDs[name]
	return id, ok
}

func (s *Store) verticalMaps() *verticalMaps {
	s.mapsOnce.Do(func() {
		s.maps = verticalMaps{
			keywords:    make(map[string][]string, len(s.verticals)),
			categoryIDs: make(map[string][]string, len(s.verticals)),
			rootIDs:     make(map[string]string, len(s.verticals)),
		}

		for _, v := range s.verticals {
			keywords := []string{v.name}
			seen := map[string]struct{}{v.name: {}}
			ids := make([]string, 0, len(v.nodes))

			root := ""
			for _, idx := range v.nodes {
				c := s.arena[idx].category
				if root == "" && c.Level == 0 {
					root = c.ID
				}
				if _, dup := seen[c.Name]; c.Name != "" && !dup {
					seen[c.Name] = struct{}{}
					keywords = append(keywords, c.Name)
				}
			}

			if root != "" {
				s.maps.rootIDs[v.name] = root
				ids = append(ids, root)
			}
			for _, idx := range v.nodes {
				if id := s.arena[idx].category.ID; id != root {
					ids = append(ids, id)
				}
			}

			s.maps.keywords[v.name] = keywords
			s.maps.categoryIDs[v.name] = ids
		}
	})
	return &s.maps
}
