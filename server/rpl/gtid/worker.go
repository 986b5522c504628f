package gtid

import (
	"sync"

	"github.com/zhukovaskychina/gtid-ledger/logger"
)

// compressSignal is the condvar Gtid_state::start_compress_thread and
// stop_compress_thread guard with LOCK_compress/COND_compress: one
// mutex serializes both "wake the worker" and "ask the worker to
// stop", so Stop can never race a signal that arrives between the
// terminate check and Wait.
type compressSignal struct {
	mu        sync.Mutex
	cond      *sync.Cond
	pending   bool
	terminate bool
}

func newCompressSignal() *compressSignal {
	s := &compressSignal{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// notify wakes the worker, and coalesces with any notification still
// unconsumed. It records the pending flag under s.mu, so it waits out
// a Compress or Reset currently holding that lock, and signals only
// after releasing it.
func (s *compressSignal) notify() {
	s.mu.Lock()
	s.pending = true
	s.mu.Unlock()
	s.cond.Signal()
}

// Worker is the singleton background goroutine that runs Compress
// whenever the append-count threshold fires, the same one-thread
// model Gtid_state's compression thread uses: compaction is never run
// concurrently with itself or with Reset, because both share this
// struct's condvar lock as their mutual-exclusion point.
type Worker struct {
	persistor *Persistor
	sig       *compressSignal

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// NewWorker returns a compaction worker bound to persistor. The
// persistor and the worker must share the same *compressSignal that
// Save/SaveSet/Reset use, or the threshold signal and the mutual
// exclusion with Reset both silently stop working.
func NewWorker(persistor *Persistor) *Worker {
	return &Worker{persistor: persistor, sig: persistor.sig}
}

// Start launches the compaction loop if it is not already running.
// Calling Start on an already-running Worker is a no-op.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	w.done = make(chan struct{})
	w.sig.mu.Lock()
	w.sig.terminate = false
	w.sig.mu.Unlock()
	go w.loop(w.done)
	logger.Info("gtid compaction worker started")
}

// Stop signals the loop to exit and blocks until it has. Calling Stop
// on a Worker that is not running is a no-op.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	done := w.done
	w.running = false
	w.mu.Unlock()

	w.sig.mu.Lock()
	w.sig.terminate = true
	w.sig.cond.Signal()
	w.sig.mu.Unlock()

	<-done
	logger.Info("gtid compaction worker stopped")
}

func (w *Worker) loop(done chan struct{}) {
	defer close(done)
	for {
		w.sig.mu.Lock()
		for !w.sig.pending && !w.sig.terminate {
			w.sig.cond.Wait()
		}
		if w.sig.terminate {
			w.sig.mu.Unlock()
			return
		}
		w.sig.pending = false
		w.sig.mu.Unlock()

		if err := w.persistor.Compress(); err != nil {
			logger.Warnf("gtid compaction pass failed: %v", err)
		}
	}
}
