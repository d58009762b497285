package tuner

import (
	"os"

	"github.com/gocarina/gocsv"

	"github.com/amd-hhashemi/gemmtune/pkg/common"
)

// TunedEntry is one persisted best-solution record. The csv tags fix the
// on-disk column names.
type TunedEntry struct {
	M         int     `csv:"M"`
	N         int     `csv:"N"`
	K         int     `csv:"K"`
	Solidx    int     `csv:"solidx"`
	SolTimeMs float64 `csv:"soltimems"`
	Indtype   string  `csv:"indtype"`
	Outdtype  string  `csv:"outdtype"`
}

func (e TunedEntry) key() common.ShapeKey {
	return common.ShapeKey{
		Shape:    common.Shape{M: e.M, N: e.N, K: e.K},
		Indtype:  common.DType(e.Indtype),
		Outdtype: common.DType(e.Outdtype),
	}
}

// Table is an ordered collection of TunedEntry with at most one entry per
// (M, N, K, indtype, outdtype). The index map makes duplicate lookup O(1)
// instead of a scan per added shape.
type Table struct {
	entries []TunedEntry
	index   map[common.ShapeKey]int
}

func NewTable() *Table {
	return &Table{index: map[common.ShapeKey]int{}}
}

// LoadTable reads a previously persisted table. A missing file is a valid
// first run and yields an empty table.
func LoadTable(path string) (*Table, error) {
	t := NewTable()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []TunedEntry
	if err := gocsv.UnmarshalFile(f, &entries); err != nil {
		return nil, err
	}
	for _, e := range entries {
		t.Upsert(e)
	}
	return t, nil
}

// Upsert inserts e, replacing any existing entry with the same key in place.
// Last write wins; the table never holds duplicate keys.
func (t *Table) Upsert(e TunedEntry) {
	if i, ok := t.index[e.key()]; ok {
		t.entries[i] = e
		return
	}
	t.index[e.key()] = len(t.entries)
	t.entries = append(t.entries, e)
}

func (t *Table) Has(key common.ShapeKey) bool {
	_, ok := t.index[key]
	return ok
}

func (t *Table) Len() int {
	return len(t.entries)
}

func (t *Table) Entries() []TunedEntry {
	return t.entries
}

// Save overwrites path with the full table.
func (t *Table) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return gocsv.MarshalFile(&t.entries, f)
}
