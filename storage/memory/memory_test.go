package memory_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/chimerakang/authsession-go/storage/memory"
)

func TestSaveLoadRemove(t *testing.T) {
	s := memory.New()

	if err := s.Save("k", "v"); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, found, err := s.Load("k")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !found {
		t.Fatal("Load() found = false, want true")
	}
	if got != "v" {
		t.Errorf("Load() = %q, want %q", got, "v")
	}

	if err := s.Remove("k"); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if _, found, _ := s.Load("k"); found {
		t.Error("Load() found = true after Remove, want false")
	}
}

func TestLoad_MissingKey(t *testing.T) {
	s := memory.New()

	_, found, err := s.Load("absent")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if found {
		t.Error("Load() found = true for absent key, want false")
	}
}

func TestSave_Overwrite(t *testing.T) {
	s := memory.New()

	s.Save("k", "old")
	s.Save("k", "new")

	got, _, _ := s.Load("k")
	if got != "new" {
		t.Errorf("Load() = %q, want %q", got, "new")
	}
}

func TestClear(t *testing.T) {
	s := memory.New()

	s.Save("a", "1")
	s.Save("b", "2")
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}

	if _, found, _ := s.Load("a"); found {
		t.Error("Load(a) found = true after Clear, want false")
	}
}

func TestAvailable(t *testing.T) {
	if !memory.New().Available() {
		t.Error("Available() = false, want true")
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := memory.New()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("k-%d", i%10)
				s.Save(key, fmt.Sprintf("v-%d-%d", g, i))
				s.Load(key)
			}
		}(g)
	}
	wg.Wait()
}
