package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/datallboy/gonzb/internal/assembler"
	"github.com/datallboy/gonzb/internal/events"
	"github.com/datallboy/gonzb/internal/logger"
	"github.com/datallboy/gonzb/internal/segment"
)

// progressInterval bounds how often a job goroutine publishes a progress
// event, coalescing many small segment completions into one update.
const progressInterval = 500 * time.Millisecond

// Downloader is the subset of segment.Downloader the Manager needs, kept as
// an interface so tests can substitute a fake without standing up real
// connection pools.
type Downloader interface {
	DownloadSegment(ctx context.Context, segmentID, messageID string) (*segment.Decoded, error)
}

// PostProcessor runs after every File in a Job finishes downloading:
// verification, PAR2 repair, and archive extraction. Implemented by
// processor.Processor, which drives internal/repair and internal/extraction
// and is composed by cmd/gonzbd. report
// lets the implementation advance the Job's visible Status as it moves
// between phases (e.g. to StatusRepairing before a PAR2 pass, StatusExtracting
// before unpacking an archive); report itself validates the transition via
// CanTransition and returns an error for an illegal one, so PostProcess
// implementations never assign j.Status directly.
type PostProcessor interface {
	PostProcess(ctx context.Context, j *Job, report func(Status) error) error
}

// History is the durable job record the Manager writes to on every status
// transition. Satisfied by app.Store (sqlite or postgres); nil disables
// persistence entirely (useful in tests).
type History interface {
	SaveJob(ctx context.Context, j *Job) error
}

// Manager owns the set of known Jobs and runs one goroutine per
// non-terminal Job, downloading its files concurrently and driving its
// Status through the state machine in status.go. Grounded on the teacher's
// single-active-job QueueManager loop, generalized to one goroutine per job
// so multiple downloads progress concurrently instead of strictly
// serially.
type Manager struct {
	downloader Downloader
	assembler  *assembler.Assembler
	postProc   PostProcessor
	history    History
	bus        *events.Bus
	log        *logger.Logger

	mu   sync.RWMutex
	jobs map[string]*managedJob
}

type managedJob struct {
	job    *Job
	cancel context.CancelFunc
	paused chan struct{} // closed while not paused; replaced on Pause
	mu     sync.Mutex
}

// New builds a Manager. assembler and bus must outlive every Job it's given.
// hist may be nil to disable history persistence.
func New(downloader Downloader, asm *assembler.Assembler, postProc PostProcessor, hist History, bus *events.Bus, log *logger.Logger) *Manager {
	return &Manager{
		downloader: downloader,
		assembler:  asm,
		postProc:   postProc,
		history:    hist,
		bus:        bus,
		log:        log,
		jobs:       make(map[string]*managedJob),
	}
}

// Submit registers j and starts its download goroutine. j.Status must be
// StatusQueued.
func (m *Manager) Submit(ctx context.Context, j *Job) error {
	if j.Status != StatusQueued {
		return fmt.Errorf("job: cannot submit job in status %s", j.Status)
	}
	j.TotalSize()
	j.CreatedAt = time.Now()

	jobCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel

	mj := &managedJob{job: j, cancel: cancel, paused: closedChan()}

	m.mu.Lock()
	m.jobs[j.ID] = mj
	m.mu.Unlock()

	m.saveHistory(ctx, j)
	go m.run(jobCtx, mj)
	return nil
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Get returns the Job by ID, or nil if unknown.
func (m *Manager) Get(id string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if mj, ok := m.jobs[id]; ok {
		return mj.job
	}
	return nil
}

// All returns every known Job, in no particular order.
func (m *Manager) All() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Job, 0, len(m.jobs))
	for _, mj := range m.jobs {
		out = append(out, mj.job)
	}
	return out
}

// Pause stops dispatching new segment fetches for a job; segments already
// in flight are allowed to finish (per the chosen dispatch-level pause
// semantics) before the goroutine blocks.
func (m *Manager) Pause(id string) error {
	mj, err := m.mustGet(id)
	if err != nil {
		return err
	}
	mj.mu.Lock()
	defer mj.mu.Unlock()
	if mj.job.Status != StatusDownloading {
		return fmt.Errorf("job: cannot pause job in status %s", mj.job.Status)
	}
	mj.job.Status = StatusPaused
	mj.paused = make(chan struct{})
	m.publishStatus(mj.job)
	return nil
}

// Resume un-pauses a job, letting its goroutine continue dispatching.
func (m *Manager) Resume(id string) error {
	mj, err := m.mustGet(id)
	if err != nil {
		return err
	}
	mj.mu.Lock()
	defer mj.mu.Unlock()
	if mj.job.Status != StatusPaused {
		return fmt.Errorf("job: cannot resume job in status %s", mj.job.Status)
	}
	mj.job.Status = StatusDownloading
	close(mj.paused)
	m.publishStatus(mj.job)
	return nil
}

// Cancel aborts a job's goroutine and marks it Deleted. removeFiles is left
// to the caller (the HTTP layer decides whether to also delete on-disk
// output); Cancel itself only stops further work.
func (m *Manager) Cancel(id string) error {
	mj, err := m.mustGet(id)
	if err != nil {
		return err
	}
	mj.mu.Lock()
	if !CanTransition(mj.job.Status, StatusDeleted) {
		mj.mu.Unlock()
		return fmt.Errorf("job: cannot cancel job in status %s", mj.job.Status)
	}
	mj.job.Status = StatusDeleted
	mj.mu.Unlock()

	mj.cancel()
	m.publishStatus(mj.job)
	return nil
}

func (m *Manager) mustGet(id string) (*managedJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mj, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job: unknown job %q", id)
	}
	return mj, nil
}

// run drives one job from Queued through to Completed or Failed. Every
// File is downloaded by its own goroutine, which fetches that File's
// segments one after another; a File finishes when all its segments are
// downloaded, assembled, and finalized.
func (m *Manager) run(ctx context.Context, mj *managedJob) {
	j := mj.job
	mj.mu.Lock()
	if j.Status != StatusQueued {
		// Cancelled before this goroutine started.
		mj.mu.Unlock()
		return
	}
	j.Status = StatusDownloading
	mj.mu.Unlock()
	j.StartedAt = time.Now()
	m.publishStatus(j)

	// transition moves j to `to` if the state machine in status.go allows
	// it, publishing the new status; it never assigns j.Status for an
	// illegal edge, so a buggy PostProcessor can't silently skip the model.
	transition := func(to Status) error {
		if !CanTransition(j.Status, to) {
			return fmt.Errorf("job: illegal transition %s -> %s", j.Status, to)
		}
		j.Status = to
		m.publishStatus(j)
		return nil
	}

	fail := func(err error) {
		j.Status = StatusFailed
		j.ErrorMsg = err.Error()
		m.publishStatus(j)
		if m.log != nil {
			m.log.Error("job %s: failed: %v", j.ID, err)
		}
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(j.Files))

	for _, f := range j.Files {
		wg.Add(1)
		go func(f *File) {
			defer wg.Done()
			if err := m.downloadFile(ctx, mj, f); err != nil {
				errCh <- err
			}
		}(f)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-done:
			break loop
		case <-ticker.C:
			m.publishProgress(j)
		case <-ctx.Done():
			return
		}
	}
	close(errCh)

	for err := range errCh {
		if err != nil {
			fail(err)
			return
		}
	}

	// Every File is downloaded; Assembling reflects the brief window where
	// segments are still being merged/finalized before verification begins.
	if err := transition(StatusAssembling); err != nil {
		fail(err)
		return
	}
	if err := transition(StatusChecking); err != nil {
		fail(err)
		return
	}

	if m.postProc != nil {
		if err := m.postProc.PostProcess(ctx, j, transition); err != nil {
			fail(err)
			return
		}
	}

	if err := transition(StatusCompleted); err != nil {
		fail(err)
		return
	}
	if m.bus != nil {
		fileName, path, providerID := j.active()
		m.bus.Publish(events.Event{
			JobID:      j.ID,
			Kind:       events.KindCompleted,
			Status:     string(j.Status),
			Filename:   fileName,
			Path:       path,
			Timestamp:  time.Now().Unix(),
			Size:       j.BytesWritten.Load(),
			ProviderID: providerID,
			ExternalID: j.ExternalID,
		})
	}
}

// downloadFile fetches every segment of f in order, assembling each one at
// its yEnc offset (or spilling it for a sequential merge when no offset is
// known), then finalizes f's on-disk file once all segments land.
func (m *Manager) downloadFile(ctx context.Context, mj *managedJob, f *File) error {
	j := mj.job

	if err := m.assembler.PreAllocate(f.PartPath, f.Size); err != nil {
		return fmt.Errorf("job: preallocating %s: %w", f.FileName, err)
	}

	var sequential []string
	for i := range f.Segments {
		seg := &f.Segments[i]

		select {
		case <-mj.pausedChan():
		case <-ctx.Done():
			return ctx.Err()
		}

		decoded, err := m.downloader.DownloadSegment(ctx, segmentKey(f, seg), seg.MessageID)
		if err != nil {
			return fmt.Errorf("job: segment %s: %w", seg.MessageID, err)
		}

		seg.Downloaded = true
		seg.Begin = decoded.Metadata.Begin
		seg.End = decoded.Metadata.Begin + int64(len(decoded.Data))
		j.setActive(f.FileName, f.FinalPath, decoded.ProviderID)

		if decoded.Metadata.Begin > 0 || decoded.Metadata.Total > 1 {
			if err := m.assembler.WriteAt(f.PartPath, decoded.Data, decoded.Metadata.Begin); err != nil {
				return fmt.Errorf("job: writing segment %s: %w", seg.MessageID, err)
			}
		} else {
			if err := m.assembler.Spill(segmentKey(f, seg), decoded.Data); err != nil {
				return fmt.Errorf("job: spilling segment %s: %w", seg.MessageID, err)
			}
			sequential = append(sequential, segmentKey(f, seg))
		}

		j.BytesWritten.Add(int64(len(decoded.Data)))
		j.recordBytes(time.Now(), j.BytesWritten.Load())
	}

	if len(sequential) > 0 {
		// MergeSpilled appends, so when every segment was spilled the
		// preallocated padding is dropped first and the data starts at 0.
		if len(sequential) == len(f.Segments) {
			if err := m.assembler.PreAllocate(f.PartPath, 0); err != nil {
				return fmt.Errorf("job: truncating %s: %w", f.FileName, err)
			}
		}
		if err := m.assembler.MergeSpilled(f.PartPath, sequential); err != nil {
			return fmt.Errorf("job: merging %s: %w", f.FileName, err)
		}
	}

	f.SetActualSize(f.Size)
	f.SetComplete(true)
	return m.assembler.Finalize(f.PartPath, f.Size)
}

func segmentKey(f *File, seg *StoredSegment) string {
	return fmt.Sprintf("%s-%d", f.FileName, seg.Number)
}

func (mj *managedJob) pausedChan() <-chan struct{} {
	mj.mu.Lock()
	defer mj.mu.Unlock()
	return mj.paused
}

func (m *Manager) publishStatus(j *Job) {
	m.saveHistory(context.Background(), j)
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.Event{
		JobID:      j.ID,
		Kind:       events.KindStatus,
		Status:     string(j.Status),
		Message:    j.ErrorMsg,
		ExternalID: j.ExternalID,
	})
}

// saveHistory persists j's current snapshot, best-effort: a history write
// failure is logged but never blocks or fails the download itself.
func (m *Manager) saveHistory(ctx context.Context, j *Job) {
	if m.history == nil {
		return
	}
	if err := m.history.SaveJob(ctx, j); err != nil && m.log != nil {
		m.log.Error("job %s: saving history: %v", j.ID, err)
	}
}

func (m *Manager) publishProgress(j *Job) {
	if m.bus == nil {
		return
	}
	fileName, path, providerID := j.active()
	m.bus.Publish(events.Event{
		JobID:          j.ID,
		Kind:           events.KindProgress,
		Status:         string(j.Status),
		Filename:       fileName,
		Path:           path,
		Percent:        j.Percent(),
		BytesWritten:   j.BytesWritten.Load(),
		TotalBytes:     j.TotalBytes,
		SpeedBytesPerS: j.Speed(),
		ETASeconds:     j.ETA(),
		ProviderID:     providerID,
		ExternalID:     j.ExternalID,
	})
}
