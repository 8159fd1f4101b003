package repository

import (
	"encoding/binary"
	"errors"
	"net/url"
	"time"

	json "github.com/goccy/go-json"

	"memoryd/internal/models"
)

const (
	envelopePlain byte = 0
	envelopeZstd  byte = 1

	envelopeHeader = 9
	keyPrefix      = "mem"
)

var errBadEnvelope = errors.New("malformed cache envelope")

// Entry is one encoded entity value with the version it was read at.
// For documents the version is the store row version; for message windows it is the last sequence number.
type Entry struct {
	Version int64
	Data    []byte
}

func (e *Entry) Decode(dest any) error {
	return json.Unmarshal(e.Data, dest)
}

// CacheKey namespaces by entity type and pair so invalidation can be scoped precisely.
func CacheKey(entity models.EntityType, key models.PairKey) string {
	return keyPrefix + ":" + string(entity) + ":" + url.QueryEscape(key.CreatorID) + ":" + url.QueryEscape(key.FanID)
}

func pairKeys(key models.PairKey) []string {
	keys := make([]string, 0, len(models.AllEntityTypes))
	for _, entity := range models.AllEntityTypes {
		keys = append(keys, CacheKey(entity, key))
	}
	return keys
}

func (r *MemoryRepository) ttl(entity models.EntityType) time.Duration {
	ttl := r.conf.Cache.TTL
	var d time.Duration
	switch entity {
	case models.EntityMessages:
		d = ttl.Messages
	case models.EntityEmotionalState:
		d = ttl.EmotionalState
	case models.EntityPersonality:
		d = ttl.Personality
	case models.EntityPreferences:
		d = ttl.Preferences
	case models.EntityEngagement:
		d = ttl.Engagement
	}
	if d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// encodeEnvelope lays out [flag][version uint64][payload], compressing large payloads.
func (r *MemoryRepository) encodeEnvelope(entry *Entry) ([]byte, error) {
	flag := envelopePlain
	payload := entry.Data
	threshold := r.conf.Cache.CompressThreshold
	if r.compressor != nil && threshold > 0 && len(payload) > threshold {
		compressed, err := r.compressor.Compress(payload)
		if err != nil {
			return nil, err
		}
		flag, payload = envelopeZstd, compressed
	}

	out := make([]byte, envelopeHeader+len(payload))
	out[0] = flag
	binary.BigEndian.PutUint64(out[1:envelopeHeader], uint64(entry.Version))
	copy(out[envelopeHeader:], payload)
	return out, nil
}

func (r *MemoryRepository) decodeEnvelope(raw []byte) (*Entry, error) {
	if len(raw) < envelopeHeader {
		return nil, errBadEnvelope
	}
	entry := &Entry{Version: int64(binary.BigEndian.Uint64(raw[1:envelopeHeader]))}
	payload := raw[envelopeHeader:]
	switch raw[0] {
	case envelopePlain:
		entry.Data = append([]byte(nil), payload...)
	case envelopeZstd:
		if r.compressor == nil {
			return nil, errBadEnvelope
		}
		data, err := r.compressor.Decompress(payload)
		if err != nil {
			return nil, err
		}
		entry.Data = data
	default:
		return nil, errBadEnvelope
	}
	return entry, nil
}
