// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"testing"
)

// indexedGraph registers the given file groups and returns their index.
func indexedGraph(t *testing.T, fileGroups ...*Group) (*Graph, *Index) {
	t.Helper()
	g := NewGraph("/p")
	for _, fg := range fileGroups {
		if err := g.AddFileGroup(fg); err != nil {
			t.Fatalf("AddFileGroup(%s): %v", fg.Token, err)
		}
	}
	return g, NewIndex(g)
}

func TestIndex_TokenLookupsKeepDeclarationOrder(t *testing.T) {
	f := newTestForest()
	alpha := f.file("alpha")
	runA := f.fn(alpha, "run", 1, nil, nil)
	beta := f.file("beta")
	runB := f.fn(beta, "run", 1, nil, nil)

	_, idx := indexedGraph(t, alpha, beta)

	got := idx.NodesNamed("run")
	if len(got) != 2 {
		t.Fatalf("NodesNamed(run) returned %d, want 2", len(got))
	}
	if got[0] != runA || got[1] != runB {
		t.Errorf("NodesNamed(run) order = [%s, %s], want alpha then beta",
			got[0].QualifiedName(), got[1].QualifiedName())
	}
	if idx.NodesNamed("missing") != nil {
		t.Error("NodesNamed(missing) != nil")
	}
}

func TestIndex_ClassAndImportTokenLookups(t *testing.T) {
	f := newTestForest()
	fg := f.file("models")
	worker := f.class(fg, "Worker", 1)
	ctor := f.fn(worker, "__init__", 2, nil, nil)
	helper := f.fn(fg, "helper", 9, nil, nil)

	_, idx := indexedGraph(t, fg)

	if got := idx.ClassesNamed("Worker"); len(got) != 1 || got[0] != worker {
		t.Errorf("ClassesNamed(Worker) = %v, want the class group", got)
	}
	if got := idx.ClassesNamed("helper"); got != nil {
		t.Errorf("ClassesNamed(helper) = %v, want nil (functions are not classes)", got)
	}

	if got := idx.GroupsWithImportToken("models"); len(got) != 1 || got[0] != fg {
		t.Errorf("GroupsWithImportToken(models) = %v, want the file group", got)
	}
	if got := idx.GroupsWithImportToken("models.Worker"); len(got) != 1 || got[0] != worker {
		t.Errorf("GroupsWithImportToken(models.Worker) = %v, want the class group", got)
	}
	if got := idx.NodesWithImportToken("models.helper"); len(got) != 1 || got[0] != helper {
		t.Errorf("NodesWithImportToken(models.helper) = %v, want helper", got)
	}

	if got := idx.NodeByUID(ctor.UID); got != ctor {
		t.Errorf("NodeByUID(%s) = %v, want the constructor", ctor.UID, got)
	}
	if got := idx.GroupByUID(worker.UID); got != worker {
		t.Errorf("GroupByUID(%s) = %v, want the class group", worker.UID, got)
	}
	if got := idx.NodeByUID("node_ffffffff"); got != nil {
		t.Errorf("NodeByUID(unknown) = %v, want nil", got)
	}
}

func TestIndex_InheritanceChain(t *testing.T) {
	f := newTestForest()
	fg := f.file("zoo")
	animal := f.class(fg, "Animal", 1)
	f.fn(animal, "__init__", 2, nil, nil)
	mammal := f.class(fg, "Mammal", 5, "Animal")
	dog := f.class(fg, "Dog", 9, "Mammal", "Sidekick")
	sidekick := f.class(fg, "Sidekick", 13)

	_, idx := indexedGraph(t, fg)

	t.Run("breadth first, direct bases before their bases", func(t *testing.T) {
		chain := idx.InheritanceChain(dog)
		want := []*Group{mammal, sidekick, animal}
		if len(chain) != len(want) {
			t.Fatalf("chain length = %d, want %d", len(chain), len(want))
		}
		for i := range want {
			if chain[i] != want[i] {
				t.Errorf("chain[%d] = %s, want %s", i, chain[i].Token, want[i].Token)
			}
		}
	})

	t.Run("never contains the class itself", func(t *testing.T) {
		for _, grp := range idx.InheritanceChain(mammal) {
			if grp == mammal {
				t.Error("chain contains the starting class")
			}
		}
	})

	t.Run("empty for base classes and non-classes", func(t *testing.T) {
		if got := idx.InheritanceChain(animal); len(got) != 0 {
			t.Errorf("chain of base class = %v, want empty", got)
		}
		if got := idx.InheritanceChain(fg); got != nil {
			t.Errorf("chain of file group = %v, want nil", got)
		}
		if got := idx.InheritanceChain(nil); got != nil {
			t.Errorf("chain of nil = %v, want nil", got)
		}
	})

	t.Run("unresolvable base names are skipped", func(t *testing.T) {
		f2 := newTestForest()
		fg2 := f2.file("solo")
		orphan := f2.class(fg2, "Orphan", 1, "list", "dict")
		_, idx2 := indexedGraph(t, fg2)
		if got := idx2.InheritanceChain(orphan); len(got) != 0 {
			t.Errorf("chain with only foreign bases = %v, want empty", got)
		}
	})
}

func TestIndex_InheritanceChainCycleSafe(t *testing.T) {
	f := newTestForest()
	fg := f.file("loop")
	a := f.class(fg, "A", 1, "B")
	b := f.class(fg, "B", 5, "A")

	_, idx := indexedGraph(t, fg)

	chain := idx.InheritanceChain(a)
	if len(chain) != 1 || chain[0] != b {
		t.Fatalf("cyclic chain = %v, want exactly [B]", chain)
	}
}

func TestIndex_ConstructorFor(t *testing.T) {
	f := newTestForest()
	fg := f.file("zoo")
	animal := f.class(fg, "Animal", 1)
	baseCtor := f.fn(animal, "__init__", 2, nil, nil)
	dog := f.class(fg, "Dog", 5, "Animal")
	f.fn(dog, "bark", 6, nil, nil)
	cat := f.class(fg, "Cat", 9)
	ownCtor := f.fn(cat, "__new__", 10, nil, nil)
	ghost := f.class(fg, "Ghost", 13)

	_, idx := indexedGraph(t, fg)

	if got := idx.ConstructorFor(cat); got != ownCtor {
		t.Errorf("ConstructorFor(Cat) = %v, want its own __new__", got)
	}
	if got := idx.ConstructorFor(dog); got != baseCtor {
		t.Errorf("ConstructorFor(Dog) = %v, want inherited Animal.__init__", got)
	}
	if got := idx.ConstructorFor(ghost); got != nil {
		t.Errorf("ConstructorFor(Ghost) = %v, want nil", got)
	}
	if got := idx.ConstructorFor(nil); got != nil {
		t.Errorf("ConstructorFor(nil) = %v, want nil", got)
	}
}
