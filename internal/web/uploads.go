package web

import (
	"sync"

	"docsheet/pkg/models"
)

// maxTrackedUploads bounds the in-memory upload history.
const maxTrackedUploads = 100

// uploadRegistry keeps metadata of recent uploads in memory. The oldest
// entry is evicted once the limit is reached.
type uploadRegistry struct {
	mu    sync.Mutex
	limit int
	order []string
	byID  map[string]models.FileMetadata
}

func newUploadRegistry(limit int) *uploadRegistry {
	return &uploadRegistry{
		limit: limit,
		byID:  make(map[string]models.FileMetadata),
	}
}

func (u *uploadRegistry) put(meta models.FileMetadata) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if _, ok := u.byID[meta.ID]; !ok {
		u.order = append(u.order, meta.ID)
		if len(u.order) > u.limit {
			delete(u.byID, u.order[0])
			u.order = u.order[1:]
		}
	}
	u.byID[meta.ID] = meta
}

func (u *uploadRegistry) get(id string) (models.FileMetadata, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()

	meta, ok := u.byID[id]
	return meta, ok
}

func (u *uploadRegistry) remove(id string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	if _, ok := u.byID[id]; !ok {
		return false
	}
	delete(u.byID, id)
	for i, v := range u.order {
		if v == id {
			u.order = append(u.order[:i], u.order[i+1:]...)
			break
		}
	}
	return true
}

// list returns all uploads, newest first.
func (u *uploadRegistry) list() []models.FileMetadata {
	u.mu.Lock()
	defer u.mu.Unlock()

	out := make([]models.FileMetadata, 0, len(u.order))
	for i := len(u.order) - 1; i >= 0; i-- {
		out = append(out, u.byID[u.order[i]])
	}
	return out
}
