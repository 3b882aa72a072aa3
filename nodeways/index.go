// Package nodeways maps OSM nodes to the conflation map segments passing
// through them and matches node sequences to segments.
package nodeways

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	log "github.com/sirupsen/logrus"
	"github.com/tebben/conflator/database"
)

// NodeWays holds, per segment id, the positions of a node in the segment's
// node chain in increasing order.
type NodeWays map[int64][]int

type Index struct {
	db *badger.DB
}

// Open opens the index stored in dir. An empty dir opens an in-memory index.
func Open(dir string) (*Index, error) {
	opts := badger.DefaultOptions(dir).WithLogger(log.WithField("component", "badger")).WithLoggingLevel(badger.WARNING)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("could not open Badger DB: %w", err)
	}
	return &Index{db: db}, nil
}

func (ix *Index) Close() error {
	return ix.db.Close()
}

func nodeKey(node int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(node))
	return key
}

// Put merges the entries into the index.
func (ix *Index) Put(entries map[int64]NodeWays) error {
	existing, err := ix.Lookup(keys(entries))
	if err != nil {
		return err
	}

	wb := ix.db.NewWriteBatch()
	defer wb.Cancel()

	for node, ways := range entries {
		merged := existing[node]
		if merged == nil {
			merged = make(NodeWays, len(ways))
		}
		for way, indexes := range ways {
			merged[way] = indexes
		}

		value, err := json.Marshal(merged)
		if err != nil {
			return err
		}
		if err := wb.Set(nodeKey(node), value); err != nil {
			return fmt.Errorf("could not store node %d: %w", node, err)
		}
	}

	return wb.Flush()
}

// Lookup returns the segments of every node found in the index.
func (ix *Index) Lookup(nodes []int64) (map[int64]NodeWays, error) {
	result := make(map[int64]NodeWays, len(nodes))

	err := ix.db.View(func(txn *badger.Txn) error {
		for _, node := range nodes {
			if _, ok := result[node]; ok {
				continue
			}

			item, err := txn.Get(nodeKey(node))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}

			var ways NodeWays
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &ways)
			}); err != nil {
				return fmt.Errorf("could not read node %d: %w", node, err)
			}
			result[node] = ways
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Build indexes the node chains of the segments file written by the process
// command.
func (ix *Index) Build(path string) error {
	total := 0

	err := database.ReadParquet(path, 10000, func(rows []database.SegmentRecord) error {
		entries := make(map[int64]NodeWays)
		for _, rec := range rows {
			if rec.ID == nil || rec.NodeIDs == nil {
				continue
			}

			nodes, err := database.ParseNodeIDs(*rec.NodeIDs)
			if err != nil {
				return fmt.Errorf("segment %d: %w", *rec.ID, err)
			}
			addSegment(entries, *rec.ID, nodes)
		}

		total += len(rows)
		log.Debugf("Indexed %d segments", total)
		return ix.Put(entries)
	})
	if err != nil {
		return err
	}

	log.Infof("Indexed %d segments from %s", total, path)
	return nil
}

func addSegment(entries map[int64]NodeWays, segment int64, nodes []int64) {
	for i, node := range nodes {
		if entries[node] == nil {
			entries[node] = make(NodeWays)
		}
		entries[node][segment] = append(entries[node][segment], i)
	}
}

func keys(entries map[int64]NodeWays) []int64 {
	result := make([]int64, 0, len(entries))
	for node := range entries {
		result = append(result, node)
	}
	return result
}
