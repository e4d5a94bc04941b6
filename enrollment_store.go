package goEnroll

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	enrollmentKeyTag        = "ape" // active pending enrollment
	enrollmentUserTag       = "apu" // user -> active enrollment index
	enrollmentRecordVersion = 1
	enrollmentMaxRetries    = 4
)

var (
	errEnrollmentRecNotFound = errors.New("pending enrollment record not found")
	errEnrollmentRecExpired  = errors.New("pending enrollment record expired")
	errEnrollmentRecExceeded = errors.New("pending enrollment attempts exceeded")
	errEnrollmentRecBackend  = errors.New("pending enrollment store unavailable")
	errEnrollmentRecCorrupt  = errors.New("pending enrollment record corrupt")
)

// pendingEnrollment is the short-lived record between issue and confirm. The
// secret lives only here until confirmation promotes it to the UserProvider.
type pendingEnrollment struct {
	UserID     string
	Secret     []byte
	CodeHashes [][32]byte
	ExpiresAt  int64
	Attempts   uint16
}

type pendingEnrollmentStore struct {
	redis  *redis.Client
	prefix string
}

func newPendingEnrollmentStore(rdb *redis.Client, prefix string) *pendingEnrollmentStore {
	return &pendingEnrollmentStore{redis: rdb, prefix: prefix}
}

func (s *pendingEnrollmentStore) key(tenantID, enrollmentID string) string {
	return s.prefix + ":" + enrollmentKeyTag + ":" + tenantID + ":" + enrollmentID
}

func (s *pendingEnrollmentStore) userKey(tenantID, userID string) string {
	return s.prefix + ":" + enrollmentUserTag + ":" + tenantID + ":" + userID
}

// Save writes the record and points the per-user index at it. A user holds at
// most one live pending enrollment; re-issuing destroys the previous record so
// only the newest secret is confirmable.
func (s *pendingEnrollmentStore) Save(ctx context.Context, tenantID, enrollmentID string, rec *pendingEnrollment, ttl time.Duration) error {
	idxKey := s.userKey(tenantID, rec.UserID)
	prev, err := s.redis.Get(ctx, idxKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", errEnrollmentRecBackend, err)
	}

	payload := encodePendingEnrollment(rec)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if prev != "" && prev != enrollmentID {
			pipe.Del(ctx, s.key(tenantID, prev))
		}
		pipe.Set(ctx, s.key(tenantID, enrollmentID), payload, ttl)
		pipe.Set(ctx, idxKey, enrollmentID, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", errEnrollmentRecBackend, err)
	}
	return nil
}

func (s *pendingEnrollmentStore) Get(ctx context.Context, tenantID, enrollmentID string) (*pendingEnrollment, error) {
	raw, err := s.redis.Get(ctx, s.key(tenantID, enrollmentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errEnrollmentRecNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errEnrollmentRecBackend, err)
	}
	rec, err := decodePendingEnrollment(raw)
	if err != nil {
		return nil, err
	}
	if rec.ExpiresAt <= time.Now().Unix() {
		// Redis TTL normally collects this first; the explicit check covers
		// clock drift between writers.
		s.redis.Del(ctx, s.key(tenantID, enrollmentID))
		s.clearUserIndex(ctx, tenantID, rec.UserID, enrollmentID)
		return nil, errEnrollmentRecExpired
	}
	return rec, nil
}

// Delete removes the record and reports whether it existed. The per-user
// index entry is dropped only when it still points at this enrollment, so a
// newer re-issued record keeps its index.
func (s *pendingEnrollmentStore) Delete(ctx context.Context, tenantID, enrollmentID, userID string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(tenantID, enrollmentID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", errEnrollmentRecBackend, err)
	}
	s.clearUserIndex(ctx, tenantID, userID, enrollmentID)
	return n > 0, nil
}

// clearUserIndex is best effort; a stale entry is collected by its TTL.
func (s *pendingEnrollmentStore) clearUserIndex(ctx context.Context, tenantID, userID, enrollmentID string) {
	idxKey := s.userKey(tenantID, userID)
	cur, err := s.redis.Get(ctx, idxKey).Result()
	if err == nil && cur == enrollmentID {
		s.redis.Del(ctx, idxKey)
	}
}

// RecordFailure increments the attempt counter under WATCH so concurrent
// confirmations cannot lose increments. When the cap is reached the record is
// destroyed and errEnrollmentRecExceeded is returned.
func (s *pendingEnrollmentStore) RecordFailure(ctx context.Context, tenantID, enrollmentID string, maxAttempts int) error {
	key := s.key(tenantID, enrollmentID)

	for attempt := 0; attempt < enrollmentMaxRetries; attempt++ {
		var (
			exceeded bool
			owner    string
		)

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return errEnrollmentRecNotFound
			}
			if err != nil {
				return err
			}
			rec, err := decodePendingEnrollment(raw)
			if err != nil {
				return err
			}
			owner = rec.UserID
			rec.Attempts++
			if int(rec.Attempts) >= maxAttempts {
				exceeded = true
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}
			ttl, err := tx.TTL(ctx, key).Result()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = time.Until(time.Unix(rec.ExpiresAt, 0))
				if ttl <= 0 {
					exceeded = false
					_, derr := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						return nil
					})
					if derr != nil {
						return derr
					}
					return errEnrollmentRecExpired
				}
			}
			payload := encodePendingEnrollment(rec)
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, ttl)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, errEnrollmentRecExpired) {
			if owner != "" {
				s.clearUserIndex(ctx, tenantID, owner, enrollmentID)
			}
			return err
		}
		if errors.Is(err, errEnrollmentRecNotFound) || errors.Is(err, errEnrollmentRecCorrupt) {
			return err
		}
		if err != nil {
			return fmt.Errorf("%w: %v", errEnrollmentRecBackend, err)
		}
		if exceeded {
			s.clearUserIndex(ctx, tenantID, owner, enrollmentID)
			return errEnrollmentRecExceeded
		}
		return nil
	}
	return fmt.Errorf("%w: optimistic retries exhausted", errEnrollmentRecBackend)
}

func encodePendingEnrollment(rec *pendingEnrollment) []byte {
	var buf bytes.Buffer
	buf.WriteByte(enrollmentRecordVersion)
	binary.Write(&buf, binary.BigEndian, rec.ExpiresAt)
	binary.Write(&buf, binary.BigEndian, rec.Attempts)
	writeLenBytes(&buf, []byte(rec.UserID))
	writeLenBytes(&buf, rec.Secret)
	binary.Write(&buf, binary.BigEndian, uint16(len(rec.CodeHashes)))
	for _, h := range rec.CodeHashes {
		buf.Write(h[:])
	}
	return buf.Bytes()
}

func decodePendingEnrollment(raw []byte) (*pendingEnrollment, error) {
	buf := bytes.NewReader(raw)
	version, err := buf.ReadByte()
	if err != nil || version != enrollmentRecordVersion {
		return nil, errEnrollmentRecCorrupt
	}
	rec := &pendingEnrollment{}
	if err := binary.Read(buf, binary.BigEndian, &rec.ExpiresAt); err != nil {
		return nil, errEnrollmentRecCorrupt
	}
	if err := binary.Read(buf, binary.BigEndian, &rec.Attempts); err != nil {
		return nil, errEnrollmentRecCorrupt
	}
	userID, err := readLenBytes(buf)
	if err != nil {
		return nil, errEnrollmentRecCorrupt
	}
	rec.UserID = string(userID)
	if rec.Secret, err = readLenBytes(buf); err != nil {
		return nil, errEnrollmentRecCorrupt
	}
	var count uint16
	if err := binary.Read(buf, binary.BigEndian, &count); err != nil {
		return nil, errEnrollmentRecCorrupt
	}
	rec.CodeHashes = make([][32]byte, count)
	for i := range rec.CodeHashes {
		if _, err := io.ReadFull(buf, rec.CodeHashes[i][:]); err != nil {
			return nil, errEnrollmentRecCorrupt
		}
	}
	return rec, nil
}

func writeLenBytes(buf *bytes.Buffer, b []byte) {
	binary.Write(buf, binary.BigEndian, uint16(len(b)))
	buf.Write(b)
}

func readLenBytes(buf *bytes.Reader) ([]byte, error) {
	var n uint16
	if err := binary.Read(buf, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(buf, out); err != nil {
		return nil, err
	}
	return out, nil
}
