package meta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/rs/zerolog"
)

type BadgerStore struct{ db *badger.DB }

// OpenBadger opens the store in dir. An empty dir keeps everything in memory.
func OpenBadger(dir string, logger zerolog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{logger.With().Str("component", "badger").Logger()})
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger %q: %w", dir, err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error { return s.db.Close() }

func getJSON(txn *badger.Txn, k string, v any) error {
	item, err := txn.Get([]byte(k))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%s: %w", k, ErrNotFound)
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error { return json.Unmarshal(val, v) })
}

func setJSON(txn *badger.Txn, k string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set([]byte(k), b)
}

func absent(txn *badger.Txn, k string) error {
	_, err := txn.Get([]byte(k))
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return nil
	case err != nil:
		return err
	default:
		return fmt.Errorf("%s: %w", k, ErrExists)
	}
}

// update maps badger's optimistic transaction conflicts onto ErrConflict.
func (s *BadgerStore) update(fn func(txn *badger.Txn) error) error {
	err := s.db.Update(fn)
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func (s *BadgerStore) PutUser(ctx context.Context, u User) error {
	return s.update(func(txn *badger.Txn) error {
		k := userKey(u.Username)
		if err := absent(txn, k); err != nil {
			return err
		}
		if err := txn.Set([]byte(userIDKey(u.ID)), []byte(u.Username)); err != nil {
			return err
		}
		return setJSON(txn, k, u)
	})
}

func (s *BadgerStore) GetUser(ctx context.Context, username string) (User, error) {
	var u User
	err := s.db.View(func(txn *badger.Txn) error { return getJSON(txn, userKey(username), &u) })
	return u, err
}

func (s *BadgerStore) UserByID(ctx context.Context, id string) (User, error) {
	var u User
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(userIDKey(id)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%s: %w", userIDKey(id), ErrNotFound)
		}
		if err != nil {
			return err
		}
		name, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return getJSON(txn, userKey(string(name)), &u)
	})
	return u, err
}

func (s *BadgerStore) CreateFile(ctx context.Context, f File) error {
	return s.update(func(txn *badger.Txn) error {
		k := fileKey(f.Owner, f.Path)
		if err := absent(txn, k); err != nil {
			return err
		}
		for _, b := range f.Blocks {
			if err := setJSON(txn, blockKey(b.ID), blockLoc{Owner: f.Owner, Path: f.Path}); err != nil {
				return err
			}
		}
		return setJSON(txn, k, f)
	})
}

func (s *BadgerStore) GetFile(ctx context.Context, owner, path string) (File, error) {
	var f File
	err := s.db.View(func(txn *badger.Txn) error { return getJSON(txn, fileKey(owner, path), &f) })
	return f, err
}

func (s *BadgerStore) UpdateFile(ctx context.Context, f File) (int64, error) {
	err := s.update(func(txn *badger.Txn) error {
		k := fileKey(f.Owner, f.Path)
		var cur File
		if err := getJSON(txn, k, &cur); err != nil {
			return err
		}
		if cur.Version != f.Version {
			return fmt.Errorf("%s: %w", k, ErrConflict)
		}
		f.Version++
		return setJSON(txn, k, f)
	})
	if err != nil {
		return 0, err
	}
	return f.Version, nil
}

func (s *BadgerStore) DeleteFile(ctx context.Context, owner, path string) (File, error) {
	var f File
	err := s.update(func(txn *badger.Txn) error {
		k := fileKey(owner, path)
		if err := getJSON(txn, k, &f); err != nil {
			return err
		}
		for _, b := range f.Blocks {
			if err := txn.Delete([]byte(blockKey(b.ID))); err != nil {
				return err
			}
		}
		return txn.Delete([]byte(k))
	})
	return f, err
}

func (s *BadgerStore) List(ctx context.Context, owner, dir string) ([]File, error) {
	var out []File
	err := s.db.View(func(txn *badger.Txn) error {
		p := []byte(dirPrefix(owner, dir))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			var f File
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &f) }); err != nil {
				return fmt.Errorf("%s: %w", it.Item().Key(), err)
			}
			out = append(out, f)
		}
		return nil
	})
	return out, err
}

func (s *BadgerStore) FileByBlock(ctx context.Context, blockID string) (File, error) {
	var f File
	err := s.db.View(func(txn *badger.Txn) error {
		var loc blockLoc
		if err := getJSON(txn, blockKey(blockID), &loc); err != nil {
			return err
		}
		return getJSON(txn, fileKey(loc.Owner, loc.Path), &f)
	})
	return f, err
}

// badgerLogger routes badger's internal logging into zerolog.
type badgerLogger struct{ l zerolog.Logger }

func (b badgerLogger) Errorf(f string, v ...interface{})   { b.l.Error().Msgf(f, v...) }
func (b badgerLogger) Warningf(f string, v ...interface{}) { b.l.Warn().Msgf(f, v...) }
func (b badgerLogger) Infof(f string, v ...interface{})    { b.l.Debug().Msgf(f, v...) }
func (b badgerLogger) Debugf(f string, v ...interface{})   { b.l.Trace().Msgf(f, v...) }
