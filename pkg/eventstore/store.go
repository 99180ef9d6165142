// Package eventstore implements the durable per-session event log of spec
// §4.2: store_event/replay_events_after with size/TTL limits, optional
// at-rest encryption, optional access control, and audit logging.
package eventstore

import (
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codeready-toolchain/research-mcp/pkg/corerr"
)

// Config holds construction-time options for a Store.
type Config struct {
	MaxEventsPerStream int
	MaxTotalEvents     int
	EventTTL           time.Duration
	CriticalStreams    map[string]bool // persisted immediately on store
	PersistenceRoot    string          // empty disables disk persistence
	EncryptionEnabled  bool
	KeyProvider        KeyProvider
	AccessControl      bool
	Authorizer         Authorizer
	Audit              AuditLogger
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.MaxEventsPerStream <= 0 {
		out.MaxEventsPerStream = 1000
	}
	if out.MaxTotalEvents <= 0 {
		out.MaxTotalEvents = 100_000
	}
	if out.EventTTL <= 0 {
		out.EventTTL = 24 * time.Hour
	}
	if out.CriticalStreams == nil {
		out.CriticalStreams = map[string]bool{}
	}
	return out
}

// Store is the persistent event store. The in-memory map is a single
// protected resource (spec §5): all reads/writes are serialized under mu.
type Store struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	byID     map[string]*Record  // eventID -> record
	byStream map[string][]string // streamID -> ordered eventIDs (insertion order; re-sorted on demand for replay)

	replayRequests atomic.Int64
	replayMisses   atomic.Int64

	now func() time.Time

	stopSweep   chan struct{}
	sweepDone   chan struct{}
	disposeOnce sync.Once
}

// New constructs a Store and starts its background TTL sweep, per spec
// §4.2: "every min(1h, event_ttl/4)".
func New(cfg Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	resolved := cfg.withDefaults()

	s := &Store{
		cfg:      resolved,
		logger:   logger.With("component", "eventstore"),
		byID:     make(map[string]*Record),
		byStream: make(map[string][]string),
		now:      time.Now,
	}

	sweepInterval := resolved.EventTTL / 4
	if sweepInterval > time.Hour || sweepInterval <= 0 {
		sweepInterval = time.Hour
	}
	s.stopSweep = make(chan struct{})
	s.sweepDone = make(chan struct{})
	go s.sweepLoop(sweepInterval)

	return s
}

// DisableSweep stops the background TTL sweep; intended for tests so no
// timer fires past the end of a test run (spec §5).
func (s *Store) DisableSweep() {
	s.disposeOnce.Do(func() {
		close(s.stopSweep)
		<-s.sweepDone
	})
}

func (s *Store) sweepLoop(interval time.Duration) {
	defer close(s.sweepDone)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-s.stopSweep:
			return
		case <-t.C:
			s.sweepExpired()
		}
	}
}

func (s *Store) sweepExpired() {
	cutoff := s.now().Add(-s.cfg.EventTTL)
	s.mu.Lock()
	defer s.mu.Unlock()
	for streamID, ids := range s.byStream {
		kept := ids[:0]
		for _, id := range ids {
			rec := s.byID[id]
			if rec != nil && rec.Timestamp.Before(cutoff) {
				delete(s.byID, id)
				continue
			}
			kept = append(kept, id)
		}
		if len(kept) == 0 {
			delete(s.byStream, streamID)
		} else {
			s.byStream[streamID] = kept
		}
	}
}

// StoreEvent implements spec §4.2 store_event.
func (s *Store) StoreEvent(streamID string, message any, userID string) (string, error) {
	now := s.now()
	sanitized := Sanitize(message)

	var stored any = sanitized
	encrypted := false
	if s.cfg.EncryptionEnabled {
		plaintext, err := marshalForEncryption(sanitized)
		if err != nil {
			s.audit(AuditRecord{Operation: AuditStoreEvent, Result: "failure", StreamID: streamID, UserID: userID, Details: err.Error(), Timestamp: now})
			return "", err
		}
		env, err := Encrypt(plaintext, s.cfg.KeyProvider)
		if err != nil {
			s.audit(AuditRecord{Operation: AuditStoreEvent, Result: "failure", StreamID: streamID, UserID: userID, Details: err.Error(), Timestamp: now})
			return "", err
		}
		stored = envelopeAsJSONRPC(env)
		encrypted = true
	}

	id := NewEventID(streamID, now)
	_, _, suffix, _ := ParseEventID(id)
	rec := &Record{
		ID:        id,
		StreamID:  streamID,
		Timestamp: now,
		Suffix:    suffix,
		Message:   stored,
		UserID:    userID,
		Encrypted: encrypted,
	}

	s.mu.Lock()
	s.byID[id] = rec
	s.byStream[streamID] = append(s.byStream[streamID], id)
	s.enforcePerStreamLimitLocked(streamID)
	s.enforceGlobalLimitLocked()
	s.mu.Unlock()

	if s.cfg.CriticalStreams[streamID] && s.cfg.PersistenceRoot != "" {
		if err := s.persistOne(rec); err != nil {
			s.logger.Error("failed to persist critical event", "stream_id", streamID, "error", err)
		}
	}

	s.audit(AuditRecord{Operation: AuditStoreEvent, Result: "success", StreamID: streamID, UserID: userID, EventID: id, Timestamp: now})
	return id, nil
}

func (s *Store) persistOne(rec *Record) error {
	var meta *metadata
	if rec.UserID != "" {
		meta = &metadata{UserID: rec.UserID}
	}
	path := eventPath(s.cfg.PersistenceRoot, rec.StreamID, rec.ID)
	return writeAtomic(path, diskRecord{
		StreamID:  rec.StreamID,
		Timestamp: rec.Timestamp,
		Message:   rec.Message,
		Metadata:  meta,
	})
}

// enforcePerStreamLimitLocked evicts oldest-first by timestamp. Caller
// holds s.mu.
func (s *Store) enforcePerStreamLimitLocked(streamID string) {
	ids := s.byStream[streamID]
	if len(ids) <= s.cfg.MaxEventsPerStream {
		return
	}
	sort.Slice(ids, func(i, j int) bool {
		return s.byID[ids[i]].Timestamp.Before(s.byID[ids[j]].Timestamp)
	})
	excess := len(ids) - s.cfg.MaxEventsPerStream
	for i := 0; i < excess; i++ {
		delete(s.byID, ids[i])
	}
	s.byStream[streamID] = append([]string{}, ids[excess:]...)
}

// enforceGlobalLimitLocked evicts oldest-first across all streams. Caller
// holds s.mu.
func (s *Store) enforceGlobalLimitLocked() {
	if len(s.byID) <= s.cfg.MaxTotalEvents {
		return
	}
	type kv struct {
		id  string
		rec *Record
	}
	all := make([]kv, 0, len(s.byID))
	for id, rec := range s.byID {
		all = append(all, kv{id, rec})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].rec.Timestamp.Before(all[j].rec.Timestamp) })

	excess := len(all) - s.cfg.MaxTotalEvents
	for i := 0; i < excess; i++ {
		id := all[i].id
		streamID := all[i].rec.StreamID
		delete(s.byID, id)
		s.byStream[streamID] = removeString(s.byStream[streamID], id)
	}
}

func removeString(ss []string, target string) []string {
	out := ss[:0]
	for _, s := range ss {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}

// ReplayEventsAfter implements spec §4.2 replay_events_after.
func (s *Store) ReplayEventsAfter(lastEventID string, send SendFunc, userID string) (string, error) {
	s.replayRequests.Add(1)

	streamID, _, _, ok := ParseEventID(lastEventID)
	if !ok {
		s.replayMisses.Add(1)
		return "", nil
	}

	if !s.haveEvent(lastEventID) {
		s.replayMisses.Add(1)
		return "", nil
	}

	if s.cfg.AccessControl && s.cfg.Authorizer != nil {
		if !s.cfg.Authorizer.Authorize(streamID, userID) {
			s.audit(AuditRecord{Operation: AuditReplay, Result: "failure", StreamID: streamID, UserID: userID, Details: "access denied", Timestamp: s.now()})
			return "", nil
		}
	}

	records := s.streamRecordsSorted(streamID)

	pos := -1
	for i, r := range records {
		if r.ID == lastEventID {
			pos = i
			break
		}
	}
	if pos < 0 {
		s.replayMisses.Add(1)
		return "", nil
	}

	replayed := 0
	for _, rec := range records[pos+1:] {
		message, err := s.decryptIfNeeded(rec)
		if err != nil {
			// Decryption failure for one record surfaces as a structured
			// error record, not an aborted replay (spec §4.2 step 4).
			message = map[string]any{
				"error": map[string]any{
					"type":    string(corerr.KindDecryptionFailure),
					"message": "failed to decrypt event",
				},
			}
		}
		if sendErr := send(rec.ID, message); sendErr != nil {
			break
		}
		replayed++
	}

	s.audit(AuditRecord{
		Operation: AuditReplay, Result: "success", StreamID: streamID, UserID: userID,
		Details: "replayed " + strconv.Itoa(replayed) + " events", Timestamp: s.now(),
	})
	return streamID, nil
}

func (s *Store) haveEvent(eventID string) bool {
	s.mu.Lock()
	_, ok := s.byID[eventID]
	s.mu.Unlock()
	if ok {
		return true
	}
	if s.cfg.PersistenceRoot == "" {
		return false
	}
	streamID, _, _, parseOK := ParseEventID(eventID)
	if !parseOK {
		return false
	}
	_, onDisk, _ := readDisk(eventPath(s.cfg.PersistenceRoot, streamID, eventID))
	return onDisk
}

// streamRecordsSorted returns every record of streamID in
// (timestamp, random_suffix) order (spec §4.2 ordering guarantee), merging
// in-memory records with critical-stream disk records not currently
// resident in memory.
func (s *Store) streamRecordsSorted(streamID string) []*Record {
	s.mu.Lock()
	ids := append([]string{}, s.byStream[streamID]...)
	out := make([]*Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.byID[id])
	}
	s.mu.Unlock()

	if s.cfg.PersistenceRoot != "" {
		out = append(out, s.loadStreamFromDisk(streamID, ids)...)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		_, _, suffixI, _ := ParseEventID(out[i].ID)
		_, _, suffixJ, _ := ParseEventID(out[j].ID)
		return suffixI < suffixJ
	})
	return out
}

func (s *Store) loadStreamFromDisk(streamID string, alreadyLoaded []string) []*Record {
	have := make(map[string]bool, len(alreadyLoaded))
	for _, id := range alreadyLoaded {
		have[id] = true
	}
	dir := filepath.Join(s.cfg.PersistenceRoot, streamID)
	entries, err := readDirSafe(dir)
	if err != nil {
		return nil
	}
	var out []*Record
	for _, name := range entries {
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		if have[id] {
			continue
		}
		rec, ok, err := readDisk(filepath.Join(dir, name))
		if err != nil || !ok {
			continue
		}
		_, ts, _, parseOK := ParseEventID(id)
		if !parseOK {
			ts = rec.Timestamp
		}
		userID := ""
		if rec.Metadata != nil {
			userID = rec.Metadata.UserID
		}
		out = append(out, &Record{
			ID: id, StreamID: streamID, Timestamp: ts, Message: rec.Message,
			UserID: userID, Encrypted: isEnvelope(rec.Message),
		})
	}
	return out
}

func (s *Store) decryptIfNeeded(rec *Record) (any, error) {
	if !rec.Encrypted {
		return rec.Message, nil
	}
	env, err := envelopeFromJSONRPC(rec.Message)
	if err != nil {
		return nil, err
	}
	plaintext, err := Decrypt(env, s.cfg.KeyProvider)
	if err != nil {
		return nil, err
	}
	return unmarshalDecrypted(plaintext)
}

// EraseUser deletes every in-memory record whose UserID equals userID,
// together with its event file on disk, and returns the count deleted
// (spec §4.2 User-erasure). Event files whose records are no longer held
// in memory are not scanned and stay on disk.
func (s *Store) EraseUser(userID string) int {
	s.mu.Lock()
	deleted := 0
	var toDeleteOnDisk []*Record
	for id, rec := range s.byID {
		if rec.UserID == userID {
			delete(s.byID, id)
			s.byStream[rec.StreamID] = removeString(s.byStream[rec.StreamID], id)
			toDeleteOnDisk = append(toDeleteOnDisk, rec)
			deleted++
		}
	}
	s.mu.Unlock()

	if s.cfg.PersistenceRoot != "" {
		for _, rec := range toDeleteOnDisk {
			_ = removeFile(eventPath(s.cfg.PersistenceRoot, rec.StreamID, rec.ID))
		}
	}

	s.audit(AuditRecord{Operation: AuditErasure, Result: "success", UserID: userID, Details: strconv.Itoa(deleted) + " records deleted", Timestamp: s.now()})
	return deleted
}

// Stats summarizes store state for the admin surface (spec §6).
type Stats struct {
	TotalEvents     int
	PerStreamCounts map[string]int
	ReplayRequests  int64
	ReplayMisses    int64
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int, len(s.byStream))
	for streamID, ids := range s.byStream {
		counts[streamID] = len(ids)
	}
	return Stats{
		TotalEvents:     len(s.byID),
		PerStreamCounts: counts,
		ReplayRequests:  s.replayRequests.Load(),
		ReplayMisses:    s.replayMisses.Load(),
	}
}

// Dispose flushes every in-memory event to disk, emits a dispose audit
// event, and clears in-memory maps.
func (s *Store) Dispose() {
	s.DisableSweep()

	if s.cfg.PersistenceRoot != "" {
		s.mu.Lock()
		all := make([]*Record, 0, len(s.byID))
		for _, rec := range s.byID {
			all = append(all, rec)
		}
		s.mu.Unlock()
		for _, rec := range all {
			if err := s.persistOne(rec); err != nil {
				s.logger.Error("failed to flush event on dispose", "event_id", rec.ID, "error", err)
			}
		}
	}

	s.audit(AuditRecord{Operation: AuditDispose, Result: "success", Timestamp: s.now()})

	s.mu.Lock()
	s.byID = make(map[string]*Record)
	s.byStream = make(map[string][]string)
	s.mu.Unlock()
}

func (s *Store) audit(rec AuditRecord) {
	if s.cfg.Audit != nil {
		s.cfg.Audit.Log(rec)
	}
}
