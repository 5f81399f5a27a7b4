package job

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/datallboy/gonzb/internal/nzb"
)

// StoredSegment is one article to fetch, carried alongside the byte range
// it occupies in its file's final assembled output (populated once the
// segment has been downloaded and its yEnc header parsed; zero until then).
type StoredSegment struct {
	Number    int
	Bytes     int64
	MessageID string

	Downloaded bool
	Begin      int64
	End        int64
}

// File is one output file within a Job, with its own segment list,
// assembly paths, and completion bookkeeping. Ported from the richer of the
// two teacher DownloadFile variants, generalized to StoredSegment.
type File struct {
	FileName string
	Size     int64
	Index    int
	IsPar2   bool
	Subject  string
	Groups   []string
	Poster   string

	PartPath  string
	FinalPath string

	Segments []StoredSegment

	actualSize atomic.Int64
	complete   atomic.Bool
}

// NewFile builds a File from a parsed NZB entry, deriving a sanitized
// on-disk name and computing the expected size from segment byte counts
// when the NZB itself doesn't carry a reliable size.
func NewFile(raw nzb.File, cleanName string, index int, outDir string) *File {
	var total int64
	segs := make([]StoredSegment, len(raw.Segments))
	for i, s := range raw.Segments {
		segs[i] = StoredSegment{Number: s.Number, Bytes: s.Bytes, MessageID: s.MessageID}
		total += s.Bytes
	}

	final := filepath.Join(outDir, cleanName)
	return &File{
		FileName:  cleanName,
		Size:      total,
		Index:     index,
		Subject:   raw.Subject,
		Groups:    raw.Groups,
		Poster:    raw.Poster,
		PartPath:  final + ".part",
		FinalPath: final,
		Segments:  segs,
		IsPar2:    strings.HasSuffix(strings.ToLower(cleanName), ".par2"),
	}
}

func (f *File) SetActualSize(n int64) { f.actualSize.Store(n) }
func (f *File) ActualSize() int64     { return f.actualSize.Load() }
func (f *File) SetComplete(v bool)    { f.complete.Store(v) }
func (f *File) IsComplete() bool      { return f.complete.Load() }

// Job is one NZB's entire download: every output File, its current Status,
// and the progress counters the orchestrator updates as segments complete.
// It consolidates what the teacher split across QueueItem, Release, and
// DownloadFile into a single type scoped to one download.
type Job struct {
	ID         string
	Name       string
	Password   string
	Category   string
	ExternalID string

	Files []*File

	Status    Status
	ErrorMsg  string
	CreatedAt time.Time
	StartedAt time.Time

	BytesWritten atomic.Int64
	TotalBytes   int64

	// speedEWMA and lastSampleAt back the exponentially weighted moving
	// average speed estimate. recordBytes is called from every downloadFile
	// goroutine of the job, so speedMu guards these fields.
	speedMu      sync.Mutex
	speedEWMA    float64
	lastSampleAt time.Time
	lastSampleBytes int64

	// activeMu guards the fields below, which record the file/provider the
	// job goroutine last touched. Several downloadFile goroutines run
	// concurrently for the same Job, so these are written from more than
	// one goroutine and need the lock.
	activeMu       sync.Mutex
	activeFile     string
	activePath     string
	activeProvider string

	cancel context.CancelFunc
}

// setActive records the file, on-disk path, and serving provider most
// recently touched by any of the job's downloadFile goroutines, for
// progress/completion events to report on. Last-write-wins: with several
// files downloading concurrently this names whichever one most recently
// completed a segment, not necessarily a single "current" file.
func (j *Job) setActive(fileName, path, providerID string) {
	j.activeMu.Lock()
	defer j.activeMu.Unlock()
	j.activeFile = fileName
	j.activePath = path
	j.activeProvider = providerID
}

// active returns the most recently recorded file name, path, and provider.
func (j *Job) active() (fileName, path, providerID string) {
	j.activeMu.Lock()
	defer j.activeMu.Unlock()
	return j.activeFile, j.activePath, j.activeProvider
}

// Percent returns download progress as a fraction in [0, 1], per spec.md §6's
// `percent 0–1` field convention. Returns 0 when TotalBytes isn't known yet
// rather than dividing by zero.
func (j *Job) Percent() float64 {
	if j.TotalBytes <= 0 {
		return 0
	}
	pct := float64(j.BytesWritten.Load()) / float64(j.TotalBytes)
	if pct > 1 {
		return 1
	}
	return pct
}

// TotalSize sums every File's expected size into TotalBytes. Call once
// after all Files are attached, before the job starts downloading.
func (j *Job) TotalSize() int64 {
	var total int64
	for _, f := range j.Files {
		total += f.Size
	}
	j.TotalBytes = total
	return total
}

// recordBytes updates the EWMA throughput estimate. alpha close to 1 favors
// the most recent sample; 0.3 gives a few-second smoothing window without
// lagging a sudden stall by more than a couple of progress ticks.
const speedEWMAAlpha = 0.3

func (j *Job) recordBytes(now time.Time, written int64) {
	j.speedMu.Lock()
	defer j.speedMu.Unlock()
	if j.lastSampleAt.IsZero() {
		j.lastSampleAt = now
		j.lastSampleBytes = written
		return
	}

	elapsed := now.Sub(j.lastSampleAt).Seconds()
	if elapsed <= 0 {
		return
	}
	delta := written - j.lastSampleBytes
	instantaneous := float64(delta) / elapsed

	if j.speedEWMA == 0 {
		j.speedEWMA = instantaneous
	} else {
		j.speedEWMA = speedEWMAAlpha*instantaneous + (1-speedEWMAAlpha)*j.speedEWMA
	}
	j.lastSampleAt = now
	j.lastSampleBytes = written
}

// Speed returns the current EWMA throughput estimate in bytes/sec.
func (j *Job) Speed() float64 {
	j.speedMu.Lock()
	defer j.speedMu.Unlock()
	return j.speedEWMA
}

// ETA estimates seconds remaining at the current speed. Returns 0 when the
// job is already complete, and -1 when speed is unknown (no samples yet).
func (j *Job) ETA() float64 {
	remaining := j.TotalBytes - j.BytesWritten.Load()
	if remaining <= 0 {
		return 0
	}
	speed := j.Speed()
	if speed <= 0 {
		return -1
	}
	return float64(remaining) / speed
}

// MarshalJSON flattens the atomic progress counters into plain fields; the
// embedded atomic.Int64 has no exported fields of its own to marshal.
func (j *Job) MarshalJSON() ([]byte, error) {
	type jobJSON struct {
		ID           string    `json:"id"`
		Name         string    `json:"name"`
		Category     string    `json:"category"`
		ExternalID   string    `json:"externalId,omitempty"`
		Files        []*File   `json:"files"`
		Status       Status    `json:"status"`
		ErrorMsg     string    `json:"error,omitempty"`
		CreatedAt    time.Time `json:"createdAt"`
		StartedAt    time.Time `json:"startedAt,omitempty"`
		BytesWritten int64     `json:"bytesWritten"`
		TotalBytes   int64     `json:"totalBytes"`
		SpeedBytesPS float64   `json:"speedBytesPerSecond"`
		ETASeconds   float64   `json:"etaSeconds"`
	}
	return json.Marshal(jobJSON{
		ID:           j.ID,
		Name:         j.Name,
		Category:     j.Category,
		ExternalID:   j.ExternalID,
		Files:        j.Files,
		Status:       j.Status,
		ErrorMsg:     j.ErrorMsg,
		CreatedAt:    j.CreatedAt,
		StartedAt:    j.StartedAt,
		BytesWritten: j.BytesWritten.Load(),
		TotalBytes:   j.TotalBytes,
		SpeedBytesPS: j.Speed(),
		ETASeconds:   j.ETA(),
	})
}

// MarshalJSON flattens File's atomic completion fields for the API.
func (f *File) MarshalJSON() ([]byte, error) {
	type fileJSON struct {
		FileName   string          `json:"fileName"`
		Size       int64           `json:"size"`
		Index      int             `json:"index"`
		IsPar2     bool            `json:"isPar2"`
		PartPath   string          `json:"partPath"`
		FinalPath  string          `json:"finalPath"`
		Segments   []StoredSegment `json:"segments"`
		ActualSize int64           `json:"actualSize"`
		Complete   bool            `json:"complete"`
	}
	return json.Marshal(fileJSON{
		FileName:   f.FileName,
		Size:       f.Size,
		Index:      f.Index,
		IsPar2:     f.IsPar2,
		PartPath:   f.PartPath,
		FinalPath:  f.FinalPath,
		Segments:   f.Segments,
		ActualSize: f.ActualSize(),
		Complete:   f.IsComplete(),
	})
}

// UnmarshalJSON restores a File from its MarshalJSON form, used when
// rehydrating job history from the persisted store.
func (f *File) UnmarshalJSON(data []byte) error {
	var fileJSON struct {
		FileName   string          `json:"fileName"`
		Size       int64           `json:"size"`
		Index      int             `json:"index"`
		IsPar2     bool            `json:"isPar2"`
		PartPath   string          `json:"partPath"`
		FinalPath  string          `json:"finalPath"`
		Segments   []StoredSegment `json:"segments"`
		ActualSize int64           `json:"actualSize"`
		Complete   bool            `json:"complete"`
	}
	if err := json.Unmarshal(data, &fileJSON); err != nil {
		return err
	}
	f.FileName = fileJSON.FileName
	f.Size = fileJSON.Size
	f.Index = fileJSON.Index
	f.IsPar2 = fileJSON.IsPar2
	f.PartPath = fileJSON.PartPath
	f.FinalPath = fileJSON.FinalPath
	f.Segments = fileJSON.Segments
	f.SetActualSize(fileJSON.ActualSize)
	f.SetComplete(fileJSON.Complete)
	return nil
}

// UnmarshalJSON restores a Job from its MarshalJSON form. The EWMA speed
// sample and cancel func are not persisted: a rehydrated Job is historical
// record only, never resubmitted to a Manager directly.
func (j *Job) UnmarshalJSON(data []byte) error {
	var jobJSON struct {
		ID           string    `json:"id"`
		Name         string    `json:"name"`
		Category     string    `json:"category"`
		ExternalID   string    `json:"externalId,omitempty"`
		Files        []*File   `json:"files"`
		Status       Status    `json:"status"`
		ErrorMsg     string    `json:"error,omitempty"`
		CreatedAt    time.Time `json:"createdAt"`
		StartedAt    time.Time `json:"startedAt,omitempty"`
		BytesWritten int64     `json:"bytesWritten"`
		TotalBytes   int64     `json:"totalBytes"`
	}
	if err := json.Unmarshal(data, &jobJSON); err != nil {
		return err
	}
	j.ID = jobJSON.ID
	j.Name = jobJSON.Name
	j.Category = jobJSON.Category
	j.ExternalID = jobJSON.ExternalID
	j.Files = jobJSON.Files
	j.Status = jobJSON.Status
	j.ErrorMsg = jobJSON.ErrorMsg
	j.CreatedAt = jobJSON.CreatedAt
	j.StartedAt = jobJSON.StartedAt
	j.TotalBytes = jobJSON.TotalBytes
	j.BytesWritten.Store(jobJSON.BytesWritten)
	return nil
}
