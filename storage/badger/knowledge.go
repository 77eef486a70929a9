package badger

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"unicode"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/lorekeeper/core"
	"github.com/poiesic/lorekeeper/storage"
)

// minTermLength drops short words ("a", "of") from lexical queries.
const minTermLength = 3

// KnowledgeRepository implements storage.KnowledgeRepository for BadgerDB.
type KnowledgeRepository struct {
	backend *Backend
}

var _ storage.KnowledgeRepository = (*KnowledgeRepository)(nil)

// NewKnowledgeRepository creates a new KnowledgeRepository.
func NewKnowledgeRepository(backend *Backend) (*KnowledgeRepository, error) {
	return &KnowledgeRepository{
		backend: backend,
	}, nil
}

// Close releases resources. KnowledgeRepository has no resources to release.
func (r *KnowledgeRepository) Close() error {
	return nil
}

// AddItems stores one or more items, overwriting items with the same ID.
// Items without an ID get one derived from their source and content.
func (r *KnowledgeRepository) AddItems(ctx context.Context, items ...*core.KnowledgeItem) ([]*core.KnowledgeItem, error) {
	for _, item := range items {
		if err := core.ValidateItem(item); err != nil {
			return nil, err
		}
	}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, item := range items {
			// Use content-based ID if not set
			if item.ID == 0 {
				item.ID = core.IDFromContent(item.Source + item.Content)
			}
			if err := tx.Set(makeItemKey(item.ID), storage.MarshalItem(item)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// GetItem retrieves a single item by ID.
func (r *KnowledgeRepository) GetItem(ctx context.Context, id int64) (*core.KnowledgeItem, error) {
	var result *core.KnowledgeItem
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readItem(tx, makeItemKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// GetItems retrieves multiple items by ID, preserving the order of ids.
// Missing items are skipped.
func (r *KnowledgeRepository) GetItems(ctx context.Context, ids ...int64) ([]*core.KnowledgeItem, error) {
	var result []*core.KnowledgeItem
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			item, err := readItem(tx, makeItemKey(id))
			if err != nil {
				return err
			}
			if item != nil {
				result = append(result, item)
			}
		}
		return nil
	}, false)
	return result, err
}

// HasItem reports whether an item with the given ID is stored.
func (r *KnowledgeRepository) HasItem(ctx context.Context, id int64) (bool, error) {
	found := false
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		_, err := tx.Get(makeItemKey(id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	}, false)
	return found, err
}

// ListItemIDs returns the ids of all stored items in ascending order.
func (r *KnowledgeRepository) ListItemIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(itemPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			id, err := parseItemKey(iter.Item().Key())
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	slices.Sort(ids)
	return ids, nil
}

// SearchText finds items whose title, content or keywords contain any term of
// query, ignoring case. Items matching more terms rank first; ties go to the
// lower ID.
func (r *KnowledgeRepository) SearchText(ctx context.Context, query string, limit int) ([]*core.KnowledgeItem, error) {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return nil, storage.ErrInvalidQuery
	}

	type match struct {
		item  *core.KnowledgeItem
		count int
	}
	var matches []match

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, []byte(itemPrefix), func(_, val []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			item, err := storage.UnmarshalItem(val)
			if err != nil {
				return err
			}
			if n := countTerms(item, terms); n > 0 {
				matches = append(matches, match{item: item, count: n})
			}
			return nil
		})
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(matches, func(a, b match) int {
		if c := cmp.Compare(b.count, a.count); c != 0 {
			return c
		}
		return cmp.Compare(a.item.ID, b.item.ID)
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	results := make([]*core.KnowledgeItem, len(matches))
	for i, m := range matches {
		results[i] = m.item
	}
	return results, nil
}

// queryTerms lowercases query and splits it into words. When every word is
// too short the whole trimmed query is used as a single term.
func queryTerms(query string) []string {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	words := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	var terms []string
	for _, w := range words {
		if len([]rune(w)) >= minTermLength && !slices.Contains(terms, w) {
			terms = append(terms, w)
		}
	}
	if len(terms) == 0 {
		return []string{query}
	}
	return terms
}

func countTerms(item *core.KnowledgeItem, terms []string) int {
	title := strings.ToLower(item.Title)
	content := strings.ToLower(item.Content)
	keywords := strings.ToLower(strings.Join(item.Keywords, "\x00"))
	n := 0
	for _, t := range terms {
		if strings.Contains(title, t) || strings.Contains(content, t) || strings.Contains(keywords, t) {
			n++
		}
	}
	return n
}

// readItem returns nil without error when the key is absent.
func readItem(tx *badger.Txn, key []byte) (*core.KnowledgeItem, error) {
	entry, err := tx.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var item *core.KnowledgeItem
	err = entry.Value(func(val []byte) error {
		item, err = storage.UnmarshalItem(val)
		return err
	})
	return item, err
}
