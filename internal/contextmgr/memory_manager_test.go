package contextmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vfirsov/agentflow/contracts"
)

func TestMemoryManager_PutGet(t *testing.T) {
	m := NewMemoryManager()
	project := &contracts.Project{}

	m.Put(project, "key", "value")
	val, ok := m.Get(project, "key")
	assert.True(t, ok)
	assert.Equal(t, "value", val)
}

func TestMemoryManager_MissingKey(t *testing.T) {
	m := NewMemoryManager()
	project := &contracts.Project{}

	_, ok := m.Get(project, "ghost")
	assert.False(t, ok)
}

func TestMemoryManager_NilProjectNoPanic(t *testing.T) {
	m := NewMemoryManager()
	m.Put(nil, "key", "value")
	val, ok := m.Get(nil, "key")
	assert.False(t, ok)
	assert.Equal(t, "", val)
}
