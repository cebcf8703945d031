package words

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"

	"github.com/sauerbraten/jsonfile"
)

var ErrExhausted = errors.New("word bank exhausted")
var ErrUnknownCategory = errors.New("unknown word category")
var ErrEmpty = errors.New("word bank is empty")

// Bank hands out secret words. One bank is shared by every room, so it is
// safe for concurrent use.
type Bank struct {
	mu   sync.Mutex
	pool []string
	rnd  *rand.Rand
}

// NewBank builds a bank from the given categories. An empty category name
// draws from every category.
func NewBank(categories map[string][]string, category string, src rand.Source) (*Bank, error) {
	var lists [][]string
	if category == "" {
		for _, name := range sortedKeys(categories) {
			lists = append(lists, categories[name])
		}
	} else {
		list, ok := categories[category]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
		}
		lists = append(lists, list)
	}

	seen := map[string]struct{}{}
	var pool []string
	for _, list := range lists {
		for _, w := range list {
			w = strings.ToLower(strings.Join(strings.Fields(w), " "))
			if w == "" {
				continue
			}
			if _, dup := seen[w]; dup {
				continue
			}
			seen[w] = struct{}{}
			pool = append(pool, w)
		}
	}
	if len(pool) == 0 {
		return nil, ErrEmpty
	}
	slices.Sort(pool)

	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Bank{pool: pool, rnd: rand.New(src)}, nil
}

// NextWord picks a word that is not in exclude.
func (b *Bank) NextWord(exclude map[string]struct{}) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	candidates := make([]string, 0, len(b.pool))
	for _, w := range b.pool {
		if _, used := exclude[w]; !used {
			candidates = append(candidates, w)
		}
	}
	if len(candidates) == 0 {
		return "", ErrExhausted
	}
	return candidates[b.rnd.IntN(len(candidates))], nil
}

func (b *Bank) Size() int { return len(b.pool) }

// LoadFile reads a {"category": ["word", ...]} file. Lines starting with //
// are treated as comments.
func LoadFile(path string) (map[string][]string, error) {
	categories := map[string][]string{}
	if err := jsonfile.ParseFile(path, &categories); err != nil {
		return nil, fmt.Errorf("load words %s: %w", path, err)
	}
	if len(categories) == 0 {
		return nil, fmt.Errorf("load words %s: %w", path, ErrEmpty)
	}
	return categories, nil
}

func Categories(categories map[string][]string) []string {
	return sortedKeys(categories)
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
