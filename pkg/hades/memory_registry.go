package hades

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gridcast/stlf/pkg/domain"
)

// MemoryRegistry keeps records in maps. Records created in the same instant
// are ordered by when they were first saved.
type MemoryRegistry struct {
	mu      sync.RWMutex
	seq     uint64
	runs    map[domain.RunID]sequenced[domain.TrainingRun]
	uploads map[domain.UploadID]sequenced[domain.Upload]
}

type sequenced[T any] struct {
	seq uint64
	rec T
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		runs:    make(map[domain.RunID]sequenced[domain.TrainingRun]),
		uploads: make(map[domain.UploadID]sequenced[domain.Upload]),
	}
}

// newer reports whether a sorts before b in newest-first order.
func newer(aTime time.Time, aSeq uint64, bTime time.Time, bSeq uint64) bool {
	if !aTime.Equal(bTime) {
		return aTime.After(bTime)
	}
	return aSeq > bSeq
}

func (r *MemoryRegistry) SaveUpload(ctx context.Context, upload domain.Upload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.uploads[upload.ID]
	if !ok {
		r.seq++
		entry.seq = r.seq
	}
	entry.rec = upload
	r.uploads[upload.ID] = entry
	return nil
}

func (r *MemoryRegistry) GetUpload(ctx context.Context, id domain.UploadID) (*domain.Upload, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.uploads[id]
	if !ok {
		return nil, ErrUploadNotFound
	}
	return &entry.rec, nil
}

func (r *MemoryRegistry) LatestUpload(ctx context.Context) (*domain.Upload, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *sequenced[domain.Upload]
	for _, entry := range r.uploads {
		if latest == nil || newer(entry.rec.CreatedAt, entry.seq, latest.rec.CreatedAt, latest.seq) {
			latest = &entry
		}
	}
	if latest == nil {
		return nil, ErrUploadNotFound
	}
	return &latest.rec, nil
}

func (r *MemoryRegistry) SaveRun(ctx context.Context, run domain.TrainingRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.runs[run.ID]
	if !ok {
		r.seq++
		entry.seq = r.seq
	}
	entry.rec = run
	r.runs[run.ID] = entry
	return nil
}

func (r *MemoryRegistry) GetRun(ctx context.Context, id domain.RunID) (*domain.TrainingRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return &entry.rec, nil
}

func (r *MemoryRegistry) ListRuns(ctx context.Context, limit int) ([]domain.TrainingRun, error) {
	r.mu.RLock()
	entries := make([]sequenced[domain.TrainingRun], 0, len(r.runs))
	for _, entry := range r.runs {
		entries = append(entries, entry)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return newer(entries[i].rec.CreatedAt, entries[i].seq, entries[j].rec.CreatedAt, entries[j].seq)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	list := make([]domain.TrainingRun, len(entries))
	for i, entry := range entries {
		list[i] = entry.rec
	}
	return list, nil
}

func (r *MemoryRegistry) LatestRun(ctx context.Context) (*domain.TrainingRun, error) {
	runs, err := r.ListRuns(ctx, 0)
	if err != nil {
		return nil, err
	}
	for _, run := range runs {
		if run.Status == domain.RunStatusSucceeded {
			return &run, nil
		}
	}
	return nil, ErrRunNotFound
}
