package memory_test

import (
	"testing"

	"github.com/aretw0/moments/pkg/adapters/memory"
	"github.com/aretw0/moments/pkg/ports"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunStorageContract(t, store)
}
