package persistence

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/mirakessler/nudge/pkg"
)

// Bucket names for the append-only bbolt store.
const (
	FeedbackLogBucket  = "feedback_log"
	UserContextsBucket = "user_contexts"
)

// BoltStore is the bbolt-backed append-only log for feedback_log and
// user_contexts: bolt.Open with a timeout, CreateBucketIfNotExists at
// startup, and one Update/View transaction per operation. Both tables
// are intentionally append-only and never evicted.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the bbolt database at path and ensures its
// buckets exist.
func OpenBolt(path string) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	bs := &BoltStore{db: db}
	if err := bs.initBuckets(); err != nil {
		return nil, err
	}
	return bs, nil
}

func (bs *BoltStore) initBuckets() error {
	return bs.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{FeedbackLogBucket, UserContextsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// Close releases the underlying database handle.
func (bs *BoltStore) Close() error { return bs.db.Close() }

// AppendFeedback writes one feedback record keyed by an auto-incrementing
// sequence number, so the bucket preserves arrival order for an audit
// trail even if two records share a timestamp.
func (bs *BoltStore) AppendFeedback(rec pkg.FeedbackRecord) error {
	return bs.appendTo(FeedbackLogBucket, rec)
}

// AppendUserContext writes one raw Context snapshot to the audit log.
func (bs *BoltStore) AppendUserContext(ctx pkg.Context) error {
	return bs.appendTo(UserContextsBucket, ctx)
}

func (bs *BoltStore) appendTo(bucket string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %v", pkg.ErrPersistenceFailure, err)
	}
	return bs.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("%w: bucket %s not found", pkg.ErrPersistenceFailure, bucket)
		}
		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("%w: %v", pkg.ErrPersistenceFailure, err)
		}
		return b.Put(sequenceKey(seq), data)
	})
}

// ListFeedback returns every feedback record in insertion order.
func (bs *BoltStore) ListFeedback() ([]pkg.FeedbackRecord, error) {
	var out []pkg.FeedbackRecord
	err := bs.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(FeedbackLogBucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var rec pkg.FeedbackRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pkg.ErrPersistenceFailure, err)
	}
	return out, nil
}

func sequenceKey(seq uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return buf
}
