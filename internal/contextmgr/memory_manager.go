package contextmgr

import (
	"sync"

	"github.com/vfirsov/agentflow/contracts"
)

// MemoryManager guards read/write access to a project's short-term memory.
// The mutex here is shared across all projects, matching the teacher's
// coarse-grained choice of simplicity over per-project locks; contention is
// negligible since memory access is brief.
type MemoryManager struct {
	mu sync.RWMutex
}

// NewMemoryManager creates a new MemoryManager.
func NewMemoryManager() *MemoryManager {
	return &MemoryManager{}
}

// Get retrieves a value from a project's memory.
func (m *MemoryManager) Get(project *contracts.Project, key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if project == nil || project.Memory == nil {
		return "", false
	}
	val, ok := project.Memory[key]
	return val, ok
}

// Put stores a value in a project's memory, initializing the map if needed.
func (m *MemoryManager) Put(project *contracts.Project, key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if project == nil {
		return
	}
	if project.Memory == nil {
		project.Memory = make(map[string]string)
	}
	project.Memory[key] = value
}
