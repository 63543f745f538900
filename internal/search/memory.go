package search

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// MemoryEngine — in-memory реализация Engine для тестов и локального
// запуска без Meilisearch. Поддерживает подстрочный поиск по searchable
// атрибутам, фильтры вида `field = value [AND ...]` и сортировку
// `field:asc|desc`.
type MemoryEngine struct {
	mu      sync.RWMutex
	indexes map[string]*memoryIndex
}

type memoryIndex struct {
	settings IndexSettings
	docs     map[string]Document
}

// NewMemoryEngine создаёт пустой in-memory движок.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{indexes: make(map[string]*memoryIndex)}
}

func (e *MemoryEngine) EnsureIndex(ctx context.Context, indexUID string, settings IndexSettings) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if idx, ok := e.indexes[indexUID]; ok {
		idx.settings = settings
		return nil
	}
	e.indexes[indexUID] = &memoryIndex{
		settings: settings,
		docs:     make(map[string]Document),
	}
	return nil
}

func (e *MemoryEngine) index(indexUID string) (*memoryIndex, error) {
	idx, ok := e.indexes[indexUID]
	if !ok {
		return nil, fmt.Errorf("index %s does not exist", indexUID)
	}
	return idx, nil
}

func (e *MemoryEngine) Upsert(ctx context.Context, indexUID string, docs []Document) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx, err := e.index(indexUID)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		id, ok := doc[idx.settings.PrimaryKey].(string)
		if !ok || id == "" {
			return fmt.Errorf("document is missing primary key %q", idx.settings.PrimaryKey)
		}
		copied := make(Document, len(doc))
		for k, v := range doc {
			copied[k] = v
		}
		idx.docs[id] = copied
	}
	return nil
}

func (e *MemoryEngine) Delete(ctx context.Context, indexUID string, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx, err := e.index(indexUID)
	if err != nil {
		return err
	}
	delete(idx.docs, id)
	return nil
}

func (e *MemoryEngine) DeleteAll(ctx context.Context, indexUID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx, err := e.index(indexUID)
	if err != nil {
		return err
	}
	idx.docs = make(map[string]Document)
	return nil
}

func (e *MemoryEngine) Search(ctx context.Context, indexUID string, query Query) (Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	idx, err := e.index(indexUID)
	if err != nil {
		return Result{}, err
	}

	var matched []Document
	for _, doc := range idx.docs {
		if !matchesTerm(doc, idx.settings.SearchableAttributes, query.Term) {
			continue
		}
		ok, err := matchesFilter(doc, query.Filter)
		if err != nil {
			return Result{}, err
		}
		if ok {
			matched = append(matched, doc)
		}
	}

	if err := sortDocuments(matched, query.Sort); err != nil {
		return Result{}, err
	}

	total := int64(len(matched))
	offset := query.Offset
	if offset > total {
		offset = total
	}
	matched = matched[offset:]
	if query.Limit > 0 && int64(len(matched)) > query.Limit {
		matched = matched[:query.Limit]
	}

	return Result{Hits: matched, EstimatedTotal: total}, nil
}

func matchesTerm(doc Document, searchable []string, term string) bool {
	term = strings.TrimSpace(strings.ToLower(term))
	if term == "" {
		return true
	}
	for _, attr := range searchable {
		value, ok := doc[attr].(string)
		if ok && strings.Contains(strings.ToLower(value), term) {
			return true
		}
	}
	return false
}

func matchesFilter(doc Document, filter string) (bool, error) {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return true, nil
	}
	for _, clause := range strings.Split(filter, " AND ") {
		field, want, ok := strings.Cut(clause, "=")
		if !ok {
			return false, fmt.Errorf("unsupported filter clause %q", clause)
		}
		field = strings.TrimSpace(field)
		want = strings.Trim(strings.TrimSpace(want), `"'`)

		if got := stringifyValue(doc[field]); got != want {
			return false, nil
		}
	}
	return true, nil
}

func stringifyValue(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case int64:
		return strconv.FormatInt(value, 10)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(value)
	default:
		return fmt.Sprintf("%v", value)
	}
}

func sortDocuments(docs []Document, rules []string) error {
	if len(rules) == 0 {
		return nil
	}

	type sortRule struct {
		field string
		desc  bool
	}
	parsed := make([]sortRule, 0, len(rules))
	for _, rule := range rules {
		field, direction, ok := strings.Cut(rule, ":")
		if !ok || (direction != "asc" && direction != "desc") {
			return fmt.Errorf("unsupported sort rule %q", rule)
		}
		parsed = append(parsed, sortRule{field: field, desc: direction == "desc"})
	}

	sort.SliceStable(docs, func(i, j int) bool {
		for _, rule := range parsed {
			cmp := compareValues(docs[i][rule.field], docs[j][rule.field])
			if cmp == 0 {
				continue
			}
			if rule.desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	return nil
}

func compareValues(a, b any) int {
	an, aok := toFloat(a)
	bn, bok := toFloat(b)
	if aok && bok {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(stringifyValue(a), stringifyValue(b))
}

func toFloat(v any) (float64, bool) {
	switch value := v.(type) {
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	case float64:
		return value, true
	default:
		return 0, false
	}
}

var _ Engine = (*MemoryEngine)(nil)
