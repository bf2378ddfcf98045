package indexer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paperscope/paperscope/internal/indexer/index"
	"github.com/paperscope/paperscope/pkg/config"
	pkgerrors "github.com/paperscope/paperscope/pkg/errors"
)

// fakeLoader serves a swappable corpus and counts loads.
type fakeLoader struct {
	mu    sync.Mutex
	docs  []index.Document
	err   error
	calls int
}

func (f *fakeLoader) LoadAll(ctx context.Context) ([]index.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.docs, nil
}

func (f *fakeLoader) set(docs []index.Document, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = docs
	f.err = err
}

func (f *fakeLoader) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func corpus(ids ...string) []index.Document {
	docs := make([]index.Document, len(ids))
	for i, id := range ids {
		docs[i] = index.Document{ID: id, Title: "stochastic processes", Year: 2023}
	}
	return docs
}

func TestEngineRebuildSwapsIndex(t *testing.T) {
	loader := &fakeLoader{docs: corpus("2301.00001", "2301.00002")}
	e := NewEngine(loader, config.IndexConfig{}, nil)

	if e.Ready() {
		t.Fatal("engine ready before first build")
	}
	if e.Current() != nil {
		t.Fatal("Current() non-nil before first build")
	}

	stats, err := e.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if stats.DocCount != 2 {
		t.Errorf("DocCount = %d, want 2", stats.DocCount)
	}
	if !e.Ready() {
		t.Error("engine not ready after successful build")
	}
	if got := e.Current().Stats().DocCount; got != 2 {
		t.Errorf("current index DocCount = %d, want 2", got)
	}
}

// TestEngineFailedRebuildKeepsOldIndex covers both failure modes: a loader
// error and an empty corpus. The previously swapped index must keep serving.
func TestEngineFailedRebuildKeepsOldIndex(t *testing.T) {
	loader := &fakeLoader{docs: corpus("2301.00001", "2301.00002")}
	e := NewEngine(loader, config.IndexConfig{}, nil)

	if _, err := e.Rebuild(context.Background()); err != nil {
		t.Fatalf("initial Rebuild: %v", err)
	}
	before := e.Current()

	loader.set(nil, nil)
	_, err := e.Rebuild(context.Background())
	if !errors.Is(err, pkgerrors.ErrEmptyCorpus) {
		t.Errorf("empty corpus error = %v, want ErrEmptyCorpus", err)
	}
	if e.Current() != before {
		t.Error("empty corpus rebuild replaced the serving index")
	}

	loadErr := errors.New("connection refused")
	loader.set(nil, loadErr)
	_, err = e.Rebuild(context.Background())
	if !errors.Is(err, loadErr) {
		t.Errorf("loader error = %v, want wrapped %v", err, loadErr)
	}
	if e.Current() != before {
		t.Error("failed load replaced the serving index")
	}
}

func TestEngineLoaderErrorBeforeFirstBuild(t *testing.T) {
	loader := &fakeLoader{err: errors.New("no database")}
	e := NewEngine(loader, config.IndexConfig{}, nil)

	if _, err := e.Rebuild(context.Background()); err == nil {
		t.Fatal("expected error from failing loader")
	}
	if e.Ready() {
		t.Error("engine ready after failed first build")
	}
}

func TestEngineOnSwapHooks(t *testing.T) {
	loader := &fakeLoader{docs: corpus("2301.00001")}
	e := NewEngine(loader, config.IndexConfig{}, nil)

	var calls []index.Stats
	e.OnSwap(func(stats index.Stats, took time.Duration) {
		calls = append(calls, stats)
		if took < 0 {
			t.Errorf("took = %v, want >= 0", took)
		}
	})
	e.OnSwap(func(stats index.Stats, took time.Duration) {
		calls = append(calls, stats)
	})

	if _, err := e.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("swap hooks ran %d times, want 2", len(calls))
	}
	for _, stats := range calls {
		if stats.DocCount != 1 {
			t.Errorf("hook saw DocCount = %d, want 1", stats.DocCount)
		}
	}

	// Hooks must not fire on failed builds.
	loader.set(nil, nil)
	e.Rebuild(context.Background())
	if len(calls) != 2 {
		t.Errorf("swap hooks ran on a failed rebuild")
	}
}

// gatedLoader blocks inside LoadAll until released, so a test can pile up
// concurrent rebuild calls behind one in-flight build.
type gatedLoader struct {
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (g *gatedLoader) LoadAll(ctx context.Context) ([]index.Document, error) {
	g.calls.Add(1)
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
	return corpus("2301.00001"), nil
}

func TestEngineRebuildCoalescing(t *testing.T) {
	loader := &gatedLoader{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	e := NewEngine(loader, config.IndexConfig{}, nil)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	statsList := make([]index.Stats, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			statsList[i], errs[i] = e.Rebuild(context.Background())
		}(i)
	}

	// Wait for the first build to start, let the rest queue up behind it,
	// then release.
	<-loader.entered
	time.Sleep(50 * time.Millisecond)
	close(loader.release)
	wg.Wait()

	if got := loader.calls.Load(); got != 1 {
		t.Errorf("LoadAll ran %d times, want 1 shared build", got)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Errorf("caller %d: %v", i, errs[i])
		}
		if statsList[i].DocCount != 1 {
			t.Errorf("caller %d saw DocCount = %d, want 1", i, statsList[i].DocCount)
		}
	}
}

// TestEngineSnapshotSurvivesSwap checks that a snapshot taken before a
// rebuild keeps serving the old corpus.
func TestEngineSnapshotSurvivesSwap(t *testing.T) {
	loader := &fakeLoader{docs: corpus("2301.00001")}
	e := NewEngine(loader, config.IndexConfig{}, nil)

	if _, err := e.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	snapshot := e.Current()

	loader.set(corpus("2301.00001", "2301.00002", "2301.00003"), nil)
	if _, err := e.Rebuild(context.Background()); err != nil {
		t.Fatalf("second Rebuild: %v", err)
	}

	if got := snapshot.Stats().DocCount; got != 1 {
		t.Errorf("old snapshot DocCount = %d, want 1", got)
	}
	if got := e.Current().Stats().DocCount; got != 3 {
		t.Errorf("new index DocCount = %d, want 3", got)
	}
}

func TestEngineRebuildLoop(t *testing.T) {
	loader := &fakeLoader{docs: corpus("2301.00001")}
	e := NewEngine(loader, config.IndexConfig{RebuildInterval: 20 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	e.StartRebuildLoop(ctx)

	time.Sleep(70 * time.Millisecond)
	cancel()
	if got := loader.loadCount(); got < 2 {
		t.Errorf("rebuild loop ran %d times in 70ms at 20ms interval, want >= 2", got)
	}

	// After cancellation the loop must stop ticking.
	time.Sleep(30 * time.Millisecond)
	settled := loader.loadCount()
	time.Sleep(50 * time.Millisecond)
	if got := loader.loadCount(); got != settled {
		t.Errorf("rebuild loop still running after cancel: %d -> %d", settled, got)
	}
}

func TestEngineRebuildLoopDisabled(t *testing.T) {
	loader := &fakeLoader{docs: corpus("2301.00001")}
	e := NewEngine(loader, config.IndexConfig{}, nil)

	e.StartRebuildLoop(context.Background())
	time.Sleep(30 * time.Millisecond)
	if got := loader.loadCount(); got != 0 {
		t.Errorf("disabled loop rebuilt %d times, want 0", got)
	}
}
