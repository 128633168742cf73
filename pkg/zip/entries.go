package zip

import (
	"context"
	"fmt"

	"github.com/tidwall/btree"

	"github.com/beam-cloud/streamzip/pkg/common"
)

// entryIndex orders the materialized central directory by filename so single
// entries can be found without walking the slice.
type entryIndex struct {
	tree *btree.BTreeG[*common.CentralFileHeader]
}

func newEntryIndex(entries []*common.CentralFileHeader) *entryIndex {
	tree := btree.NewBTreeG(func(a, b *common.CentralFileHeader) bool {
		return a.Filename < b.Filename
	})
	for _, entry := range entries {
		tree.Set(entry)
	}
	return &entryIndex{tree: tree}
}

func (idx *entryIndex) get(name string) (*common.CentralFileHeader, bool) {
	probe := &common.CentralFileHeader{}
	probe.Filename = name
	return idx.tree.Get(probe)
}

func (e *Engine) setEntries(entries []*common.CentralFileHeader) {
	e.entries = entries
	e.index = newEntryIndex(entries)
}

// Entries materializes and returns the central directory without touching any
// payload. It returns nil for sequential sources, where listing would require
// consuming the stream.
func (e *Engine) Entries(ctx context.Context) ([]*common.CentralFileHeader, error) {
	if e.entries == nil {
		entries, err := e.readCentralDirectory(ctx)
		if err != nil {
			return nil, err
		}
		if entries == nil {
			return nil, nil
		}
		e.setEntries(entries)
	}
	return e.entries, nil
}

// ExtractFile extracts a single entry by name. With a central directory the
// name is checked up front; sequential sources pay a forward scan up to the
// matching entry.
func (e *Engine) ExtractFile(ctx context.Context, name string) ([]byte, error) {
	entries, err := e.Entries(ctx)
	if err != nil {
		return nil, err
	}
	if entries != nil {
		if _, ok := e.index.get(name); !ok {
			return nil, fmt.Errorf("%q: %w", name, common.ErrEntryNotFound)
		}
	}

	var data []byte
	found := false
	err = e.Unzip(ctx, func(hdr *common.FileHeader) Decision {
		if hdr.Filename != name {
			return Decision{}
		}
		found = true
		return Decision{
			Handler: func(ctx context.Context, b []byte) error {
				data = b
				return nil
			},
			Stop: true,
		}
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%q: %w", name, common.ErrEntryNotFound)
	}
	return data, nil
}
