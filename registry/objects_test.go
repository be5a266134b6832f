package registry

import (
	"errors"
	"fmt"
	"netcall/service"
	"sync"
	"testing"
)

func TestRegisterAndResolve(t *testing.T) {
	r := NewObjects(nil)
	shared := service.NewObject("SharedObject")

	r.Register("foo", shared)
	r.Register("bar", shared)

	for _, id := range []string{"foo", "bar"} {
		obj, err := r.Resolve(id)
		if err != nil {
			t.Fatalf("Resolve(%s) failed: %v", id, err)
		}
		if obj != shared {
			t.Fatalf("expect %s to resolve to the shared object", id)
		}
	}

	if _, err := r.Resolve("baz"); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expect ErrNotRegistered, got %v", err)
	}
	if _, err := r.Resolve("Foo"); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("ids are case-sensitive, got %v", err)
	}
}

func TestRegisterReplaces(t *testing.T) {
	r := NewObjects(nil)
	first := service.NewObject("First")
	second := service.NewObject("Second")

	r.Register("foo", first)
	r.Register("foo", second)

	obj, err := r.Resolve("foo")
	if err != nil {
		t.Fatal(err)
	}
	if obj != second {
		t.Fatalf("expect latest registration to win, got %s", obj.Name())
	}
	if ids := r.IDsOf(first); len(ids) != 0 {
		t.Fatalf("replaced target should have no ids, got %v", ids)
	}
}

func TestRegisterIgnoresInvalid(t *testing.T) {
	r := NewObjects(nil)
	r.Register("", service.NewObject("Anonymous"))
	r.Register("foo", nil)

	if ids := r.IDs(); len(ids) != 0 {
		t.Fatalf("expect empty registry, got %v", ids)
	}
}

func TestUnregisterScope(t *testing.T) {
	r := NewObjects(nil)
	shared := service.NewObject("SharedObject")
	other := service.NewObject("Other")

	r.Register("foo", shared)
	r.Register("bar", shared)
	r.Register("fizz", other)

	removed := r.Unregister(shared)
	if fmt.Sprint(removed) != "[bar foo]" {
		t.Fatalf("expect [bar foo] removed, got %v", removed)
	}
	if _, err := r.Resolve("fizz"); err != nil {
		t.Fatalf("unrelated id should survive, got %v", err)
	}
	if ids := r.IDs(); fmt.Sprint(ids) != "[fizz]" {
		t.Fatalf("expect [fizz], got %v", ids)
	}

	// Unregistering an unknown target is a no-op.
	if removed := r.Unregister(shared); len(removed) != 0 {
		t.Fatalf("expect nothing removed, got %v", removed)
	}
}

func TestObjectsConcurrent(t *testing.T) {
	r := NewObjects(nil)
	obj := service.NewObject("Concurrent")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("obj-%d", i)
			r.Register(id, obj)
			if _, err := r.Resolve(id); err != nil {
				t.Errorf("Resolve(%s) failed: %v", id, err)
			}
			_ = r.IDs()
		}(i)
	}
	wg.Wait()

	if n := len(r.IDsOf(obj)); n != 50 {
		t.Fatalf("expect 50 ids, got %d", n)
	}
}
