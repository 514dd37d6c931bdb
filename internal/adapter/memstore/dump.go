package memstore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/dolmen-go/contextio"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/codec"
	"github.com/vinicius-lino-figueiredo/gedm/internal/adapter/data"
)

// ErrCorruptDump is returned by [Store.Restore] when the share of lines that
// could not be read exceeds the corrupt alert threshold.
type ErrCorruptDump struct {
	CorruptionRate        float64
	CorruptItems          int
	DataLength            int
	CorruptAlertThreshold float64
}

func (e ErrCorruptDump) Error() string {
	return fmt.Sprintf(
		"%.1f%% of the dump is corrupt (%d of %d lines), more than the given corruptAlertThreshold (%.1f%%)",
		e.CorruptionRate*100, e.CorruptItems, e.DataLength, e.CorruptAlertThreshold*100,
	)
}

// dumpLine is one line of a dump: either a document or an index definition.
type dumpLine struct {
	Collection string         `bson:"collection"`
	Doc        map[string]any `bson:"doc,omitempty"`
	Index      *dumpIndex     `bson:"index,omitempty"`
}

type dumpIndex struct {
	Name   string    `bson:"name"`
	Keys   []dumpKey `bson:"keys"`
	Unique bool      `bson:"unique,omitempty"`
	Sparse bool      `bson:"sparse,omitempty"`
}

type dumpKey struct {
	Key   string `bson:"key"`
	Order int64  `bson:"order"`
}

// Dump writes every index and document of the store to w as canonical
// extended JSON, one item per line.
func (s *Store) Dump(ctx context.Context, w io.Writer) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()
	return s.dump(ctx, w)
}

func (s *Store) dump(ctx context.Context, w io.Writer) error {
	wr := bufio.NewWriter(contextio.NewWriter(ctx, w))
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		c := s.collections[name]
		for _, idxName := range c.indexOrder {
			if idxName == idIndex {
				continue
			}
			info := c.indexes[idxName].Info()
			idx := &dumpIndex{Name: info.Name, Unique: info.Unique, Sparse: info.Sparse}
			for _, k := range info.Keys {
				idx.Keys = append(idx.Keys, dumpKey{Key: k.Key, Order: k.Order})
			}
			if err := writeLine(wr, dumpLine{Collection: name, Index: idx}); err != nil {
				return err
			}
		}
		for _, doc := range c.docs {
			if err := writeLine(wr, dumpLine{Collection: name, Doc: data.ToMap(doc)}); err != nil {
				return err
			}
		}
	}
	return wr.Flush()
}

func writeLine(w io.Writer, line dumpLine) error {
	b, err := bson.MarshalExtJSON(line, true, false)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", line.Collection, err)
	}
	_, err = w.Write(append(b, '\n'))
	return err
}

// Restore reads a dump written by [Store.Dump] into the store. Unreadable
// lines are skipped while they stay under the corrupt alert threshold.
func (s *Store) Restore(ctx context.Context, r io.Reader) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()

	collections := make(map[string]*collection)
	get := func(name string) (*collection, error) {
		if c, ok := collections[name]; ok {
			return c, nil
		}
		c, err := newCollection(s, name)
		if err != nil {
			return nil, err
		}
		collections[name] = c
		return c, nil
	}

	var corruptItems, dataLength int
	lineStream := bufio.NewScanner(contextio.NewReader(ctx, r))
	lineStream.Buffer(nil, 16*1024*1024)
	for lineStream.Scan() {
		b := lineStream.Bytes()
		if len(b) == 0 {
			continue
		}
		dataLength++
		var line dumpLine
		if err := bson.UnmarshalExtJSON(b, true, &line); err != nil || line.Collection == "" {
			corruptItems++
			continue
		}
		c, err := get(line.Collection)
		if err != nil {
			return err
		}
		if err := s.restoreLine(c, line); err != nil {
			s.logger.Warn("skipping dump line", slog.String("collection", line.Collection), slog.Any("error", err))
			corruptItems++
		}
	}
	if err := lineStream.Err(); err != nil {
		return err
	}

	if dataLength > 0 {
		corruptionRate := float64(corruptItems) / float64(dataLength)
		if corruptionRate > s.corruptAlertThreshold {
			return ErrCorruptDump{
				CorruptionRate:        corruptionRate,
				CorruptItems:          corruptItems,
				DataLength:            dataLength,
				CorruptAlertThreshold: s.corruptAlertThreshold,
			}
		}
	}
	for name, c := range collections {
		s.collections[name] = c
	}
	s.logger.Info("restored dump", slog.Int("collections", len(collections)), slog.Int("lines", dataLength))
	return nil
}

func (s *Store) restoreLine(c *collection, line dumpLine) error {
	if line.Index != nil {
		info := domain.IndexInfo{Name: line.Index.Name, Unique: line.Index.Unique, Sparse: line.Index.Sparse}
		for _, k := range line.Index.Keys {
			info.Keys = append(info.Keys, domain.SortName{Key: k.Key, Order: k.Order})
		}
		if _, ok := c.indexes[info.Name]; ok {
			return nil
		}
		return c.addIndex(info)
	}
	if line.Doc == nil {
		return errors.New("line holds neither a document nor an index")
	}
	doc, err := s.docFac(codec.Normalize(line.Doc))
	if err != nil {
		return err
	}
	if doc.ID() == nil {
		return errors.New("document has no _id")
	}
	return c.insert([]domain.Document{doc})
}

// dumpToFile writes the dump to a temporary file first and renames it over
// the dump file, so a failed write keeps the previous dump.
func (s *Store) dumpToFile(ctx context.Context) error {
	tmp := s.dumpFile + "~"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := s.dump(ctx, f); err != nil {
		return errors.Join(err, f.Close(), os.Remove(tmp))
	}
	if err := f.Sync(); err != nil {
		return errors.Join(err, f.Close())
	}
	if err := f.Close(); err != nil {
		return err
	}
	s.logger.Debug("wrote dump", slog.String("file", s.dumpFile))
	return os.Rename(tmp, s.dumpFile)
}
