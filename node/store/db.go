package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"lenscript.dev/script/consensus"

	bolt "go.etcd.io/bbolt"
)

var ErrCellExists = errors.New("store: cell already exists")

var (
	bucketCells = []byte("cells_by_outpoint")
	bucketCode  = []byte("code_by_data_hash")
)

type DB struct {
	dir      string
	db       *bolt.DB
	manifest *Manifest
}

func Open(datadir string, network string) (*DB, error) {
	if datadir == "" {
		return nil, fmt.Errorf("datadir required")
	}
	if network == "" {
		return nil, fmt.Errorf("network required")
	}

	dir := NetworkDir(datadir, network)
	if err := ensureDir(filepath.Join(dir, "db")); err != nil {
		return nil, err
	}

	path := filepath.Join(dir, "db", "kv.db")
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open bbolt: %w", err)
	}

	d := &DB{dir: dir, db: bdb}

	if err := d.db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketCells, bucketCode} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", string(b), err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	m, err := readManifest(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			_ = bdb.Close()
			return nil, fmt.Errorf("read manifest: %w", err)
		}
		m = &Manifest{SchemaVersion: SchemaVersionV1, Network: network}
		if err := writeManifestAtomic(dir, m); err != nil {
			_ = bdb.Close()
			return nil, err
		}
	}
	if m.SchemaVersion > SchemaVersionV1 {
		_ = bdb.Close()
		return nil, fmt.Errorf("manifest schema_version %d > supported %d", m.SchemaVersion, SchemaVersionV1)
	}
	if m.Network != network {
		_ = bdb.Close()
		return nil, fmt.Errorf("manifest network %q != %q", m.Network, network)
	}
	d.manifest = m
	return d, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DB) Dir() string { return d.dir }

func (d *DB) Manifest() *Manifest {
	if d == nil {
		return nil
	}
	return d.manifest
}

func (d *DB) SetManifest(m *Manifest) error {
	if d == nil {
		return fmt.Errorf("db: nil")
	}
	if err := writeManifestAtomic(d.dir, m); err != nil {
		return err
	}
	d.manifest = m
	return nil
}

// PutCode stores a script binary under its data hash and records it in the manifest.
func (d *DB) PutCode(code []byte) ([32]byte, error) {
	if len(code) == 0 {
		return [32]byte{}, fmt.Errorf("code: empty")
	}
	h := consensus.DataHash(code)
	if err := d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCode).Put(h[:], code)
	}); err != nil {
		return [32]byte{}, err
	}
	hh := consensus.HashHex(h)
	for _, known := range d.manifest.DeployedCode {
		if known == hh {
			return h, nil
		}
	}
	m := *d.manifest
	m.DeployedCode = append(append([]string(nil), d.manifest.DeployedCode...), hh)
	if err := d.SetManifest(&m); err != nil {
		return [32]byte{}, err
	}
	return h, nil
}

func (d *DB) GetCode(dataHash [32]byte) ([]byte, bool, error) {
	var out []byte
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCode).Get(dataHash[:])
		if v == nil {
			return nil
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if out == nil {
		return nil, false, nil
	}
	return out, true, nil
}

func (d *DB) GetCell(point consensus.OutPoint) (consensus.Cell, bool, error) {
	var out consensus.Cell
	var ok bool
	key := encodeOutPointKey(point)
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCells).Get(key)
		if v == nil {
			return nil
		}
		c, err := decodeCell(v)
		if err != nil {
			return err
		}
		out = c
		ok = true
		return nil
	})
	return out, ok, err
}

func (d *DB) PutCell(point consensus.OutPoint, c consensus.Cell) error {
	key := encodeOutPointKey(point)
	val, err := encodeCell(c)
	if err != nil {
		return err
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCells).Put(key, val)
	})
}

// InsertCell stores c at point and fails with ErrCellExists if point is already live.
func (d *DB) InsertCell(point consensus.OutPoint, c consensus.Cell) error {
	key := encodeOutPointKey(point)
	val, err := encodeCell(c)
	if err != nil {
		return err
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCells)
		if b.Get(key) != nil {
			return fmt.Errorf("%w: %x:%d", ErrCellExists, point.TxHash, point.Index)
		}
		return b.Put(key, val)
	})
}

func (d *DB) DeleteCell(point consensus.OutPoint) error {
	key := encodeOutPointKey(point)
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCells).Delete(key)
	})
}

// ApplyTx consumes inputs and creates outputs in one bbolt transaction.
func (d *DB) ApplyTx(txHash [32]byte, spent []consensus.OutPoint, created []consensus.Cell) error {
	if uint64(len(created)) > 0xffffffff {
		return fmt.Errorf("apply: too many outputs")
	}
	vals := make([][]byte, len(created))
	for i, c := range created {
		v, err := encodeCell(c)
		if err != nil {
			return fmt.Errorf("apply: output %d: %w", i, err)
		}
		vals[i] = v
	}
	var live uint64
	err := d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCells)
		for _, p := range spent {
			k := encodeOutPointKey(p)
			if b.Get(k) == nil {
				return fmt.Errorf("apply: missing input %x:%d", p.TxHash, p.Index)
			}
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		for i, v := range vals {
			p := consensus.OutPoint{TxHash: txHash, Index: uint32(i)} // #nosec G115 -- bounded above.
			if err := b.Put(encodeOutPointKey(p), v); err != nil {
				return err
			}
		}
		return b.ForEach(func(_, _ []byte) error {
			live++
			return nil
		})
	})
	if err != nil {
		return err
	}
	m := *d.manifest
	m.LiveCells = live
	return d.SetManifest(&m)
}

// LoadCells returns every live cell, keyed by outpoint.
func (d *DB) LoadCells() (map[consensus.OutPoint]consensus.Cell, error) {
	out := make(map[consensus.OutPoint]consensus.Cell)
	err := d.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCells).ForEach(func(k, v []byte) error {
			p, err := decodeOutPointKey(k)
			if err != nil {
				return err
			}
			c, err := decodeCell(v)
			if err != nil {
				return fmt.Errorf("cell %x:%d: %w", p.TxHash, p.Index, err)
			}
			out[p] = c
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

