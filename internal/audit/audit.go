// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package audit implements the node's append-only activity log: every trust decision, authorization denial, and peer
// lifecycle transition is recorded here as a single JSON line, rotated
// by size, and optionally mirrored to an off-box sink in the
// background.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dawn-project/dawnnode/internal/logger"
	"github.com/dawn-project/dawnnode/pkg/storage"
)


// maxLogSize is the rotation threshold: once the active log file
// reaches this size the writer closes it and starts a new one, keeping
// the old file alongside with a timestamp suffix.
const maxLogSize = 100 * 1024 * 1024 // 100MB

// Event is one audit log entry.
type Event struct {
	Seq       int64                  `json:"seq"`
	Kind      string                 `json:"kind"`
	NodeID    string                 `json:"node_id"`
	PeerID    string                 `json:"peer_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Query filters Events on replay.
type Query struct {
	Kind   string
	PeerID string
	Since  time.Time
	Until  time.Time
	Limit  int
}

func (q Query) matches(e Event) bool {
	if q.Kind != "" && e.Kind != q.Kind {
		return false
	}
	if q.PeerID != "" && e.PeerID != q.PeerID {
		return false
	}
	if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && e.Timestamp.After(q.Until) {
		return false
	}
	return true
}

// Log is the append-only, rotating JSON-lines audit writer. A Log can
// optionally mirror every event to a storage.AuditSink in the
// background; mirroring is best-effort and never blocks Append.
type Log struct {
	dir    string
	nodeID string

	mu      sync.Mutex
	file    *os.File
	writer  *bufio.Writer
	size    int64
	nextSeq int64

	sink      storage.AuditSink
	mirrorCh  chan Event
	mirrorWG  sync.WaitGroup
	stopOnce  sync.Once
	stopCh    chan struct{}
	dropCount int64
}

// Open creates or resumes an audit log rooted at dir (typically
// <data_root>/audit). nodeID is stamped on every event this log
// writes.
func Open(dir, nodeID string) (*Log, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("audit: create dir: %w", err)
	}

	l := &Log{dir: dir, nodeID: nodeID, stopCh: make(chan struct{})}
	if err := l.openActiveFile(); err != nil {
		return nil, err
	}
	l.nextSeq = l.recoverNextSeq()
	return l, nil
}

// WithMirror attaches a background mirror sink with the given channel
// capacity. Call before the log starts receiving Append calls from
// multiple goroutines that expect mirroring to be live immediately.
func (l *Log) WithMirror(sink storage.AuditSink, bufferSize int) *Log {
	l.sink = sink
	l.mirrorCh = make(chan Event, bufferSize)
	l.mirrorWG.Add(1)
	go l.runMirror()
	return l
}

func (l *Log) activeFilePath() string {
	return filepath.Join(l.dir, "audit.jsonl")
}

func (l *Log) openActiveFile() error {
	path := l.activeFilePath()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("audit: open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("audit: stat log file: %w", err)
	}
	l.file = f
	l.writer = bufio.NewWriter(f)
	l.size = info.Size()
	return nil
}

// recoverNextSeq scans the active file for the highest seq already
// written, so a restart doesn't reuse sequence numbers.
func (l *Log) recoverNextSeq() int64 {
	for _, item := range l.replayFile(l.activeFilePath()) {
		if item.err != nil {
			continue
		}
		if item.event.Seq >= l.nextSeq {
			l.nextSeq = item.event.Seq + 1
		}
	}
	return l.nextSeq
}

// Append writes one event, assigning it the next sequence number, and
// queues it for mirroring if a sink is attached.
func (l *Log) Append(kind, peerID string, details map[string]interface{}) (Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := Event{
		Seq:       l.nextSeq,
		Kind:      kind,
		NodeID:    l.nodeID,
		PeerID:    peerID,
		Timestamp: time.Now().UTC(),
		Details:   details,
	}
	l.nextSeq++

	line, err := json.Marshal(e)
	if err != nil {
		return Event{}, fmt.Errorf("audit: marshal event: %w", err)
	}
	line = append(line, '\n')

	if _, err := l.writer.Write(line); err != nil {
		return Event{}, fmt.Errorf("audit: write event: %w", err)
	}
	if err := l.writer.Flush(); err != nil {
		return Event{}, fmt.Errorf("audit: flush event: %w", err)
	}
	l.size += int64(len(line))

	if l.size >= maxLogSize {
		if err := l.rotate(); err != nil {
			logger.ErrorMsg("audit: rotation failed", logger.Error(err))
		}
	}

	if l.mirrorCh != nil {
		select {
		case l.mirrorCh <- e:
		default:
			atomic.AddInt64(&l.dropCount, 1)
			logger.ErrorMsg("audit: mirror channel full, dropping event",
				logger.Int64("seq", e.Seq), logger.String("kind", e.Kind))
		}
	}

	return e, nil
}

// rotate closes the current active file and renames it aside with a
// timestamp suffix, starting a fresh active file. Caller holds l.mu.
func (l *Log) rotate() error {
	if err := l.writer.Flush(); err != nil {
		return err
	}
	if err := l.file.Close(); err != nil {
		return err
	}

	rotated := filepath.Join(l.dir, fmt.Sprintf("audit-%d.jsonl", time.Now().UTC().UnixNano()))
	if err := os.Rename(l.activeFilePath(), rotated); err != nil {
		return err
	}
	return l.openActiveFile()
}

// Query replays every on-disk segment (rotated and active, oldest
// first) and returns events matching q in that same order, stopping
// after the first Limit matches when Limit is positive.
func (l *Log) Query(q Query) ([]Event, error) {
	paths, err := l.segmentPaths()
	if err != nil {
		return nil, err
	}

	var out []Event
	for _, p := range paths {
		for _, item := range l.replayFile(p) {
			if item.err != nil {
				return out, item.err
			}
			if q.matches(item.event) {
				out = append(out, item.event)
				if q.Limit > 0 && len(out) >= q.Limit {
					return out, nil
				}
			}
		}
	}
	return out, nil
}

func (l *Log) segmentPaths() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("audit: list segments: %w", err)
	}
	var rotated []string
	active := ""
	for _, entry := range entries {
		name := entry.Name()
		if name == "audit.jsonl" {
			active = filepath.Join(l.dir, name)
			continue
		}
		if filepath.Ext(name) == ".jsonl" {
			rotated = append(rotated, filepath.Join(l.dir, name))
		}
	}
	if active != "" {
		rotated = append(rotated, active)
	}
	return rotated, nil
}

// replayFile decodes every line of a single JSON-lines segment, in
// order, returning one eventOrErr per line.
func (l *Log) replayFile(path string) []eventOrErr {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return []eventOrErr{{err: fmt.Errorf("audit: open segment %s: %w", path, err)}}
	}
	defer f.Close()

	var out []eventOrErr
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			out = append(out, eventOrErr{err: fmt.Errorf("audit: decode segment %s: %w", path, err)})
			continue
		}
		out = append(out, eventOrErr{event: e})
	}
	if err := scanner.Err(); err != nil {
		out = append(out, eventOrErr{err: fmt.Errorf("audit: scan segment %s: %w", path, err)})
	}
	return out
}

type eventOrErr struct {
	event Event
	err   error
}

// DroppedMirrorEvents reports how many events were dropped because the
// mirror channel was full.
func (l *Log) DroppedMirrorEvents() int64 {
	return atomic.LoadInt64(&l.dropCount)
}

// runMirror drains mirrorCh in batches and forwards them to the sink.
// Sink errors are logged and swallowed: the local log is authoritative,
// the mirror is a convenience.
func (l *Log) runMirror() {
	defer l.mirrorWG.Done()

	const batchSize = 50
	const flushInterval = 2 * time.Second

	batch := make([]Event, 0, batchSize)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		records := make([]storage.AuditRecord, len(batch))
		for i, e := range batch {
			records[i] = storage.AuditRecord{
				Seq: e.Seq, Kind: e.Kind, NodeID: e.NodeID,
				PeerID: e.PeerID, Timestamp: e.Timestamp, Details: e.Details,
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := l.sink.InsertBatch(ctx, records); err != nil {
			logger.ErrorMsg("audit: mirror batch failed", logger.Error(err))
		}
		cancel()
		batch = batch[:0]
	}

	for {
		select {
		case e, ok := <-l.mirrorCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, e)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-l.stopCh:
			for {
				select {
				case e := <-l.mirrorCh:
					batch = append(batch, e)
					if len(batch) >= batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// Writable reports whether the active segment file is open for
// writing, for the health seam's self-check.
func (l *Log) Writable() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file != nil
}

// Close flushes and closes the active segment and, if a mirror is
// running, drains and stops it.
func (l *Log) Close() error {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
	if l.mirrorCh != nil {
		l.mirrorWG.Wait()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.writer.Flush(); err != nil {
		return fmt.Errorf("audit: flush on close: %w", err)
	}
	err := l.file.Close()
	l.file = nil
	return err
}
