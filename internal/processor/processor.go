// Package processor turns a parsed NZB into job.Files ready for download,
// and runs post-download verification, PAR2 repair, and archive extraction.
// Grounded on the teacher's FileProcessor Prepare/Finalize split, adapted to
// build job.Job/job.File instead of the superseded domain.DownloadFile, and
// to drive the repair/extraction subsystems the teacher kept separate.
package processor

import (
	"context"
	"fmt"
	"os"

	"github.com/datallboy/gonzb/internal/extraction"
	"github.com/datallboy/gonzb/internal/job"
	"github.com/datallboy/gonzb/internal/logger"
	"github.com/datallboy/gonzb/internal/nzb"
)

// Repairer verifies and repairs a completed download directory using PAR2
// volumes. Implemented by internal/repair.CLIPar2.
type Repairer interface {
	Verify(path string) (bool, error)
	Repair(path string) error
}

// Builder turns a parsed NZB model into a ready-to-submit job.Job: it
// sanitizes subject lines into filenames and skips files that already
// exist (completed) on disk.
type Builder struct {
	log    *logger.Logger
	outDir string
}

func NewBuilder(l *logger.Logger, outDir string) *Builder {
	return &Builder{log: l, outDir: outDir}
}

// BuildJob constructs a job.Job from m, one job.File per NZB file entry
// that isn't already present at its final path.
func (b *Builder) BuildJob(id, name, password string, m *nzb.Model) (*job.Job, error) {
	j := &job.Job{ID: id, Name: name, Password: password, Status: job.StatusQueued}

	for i, raw := range m.Files {
		cleanName := sanitizeFileName(raw.Subject)

		f := job.NewFile(raw, cleanName, i, b.outDir)
		if _, err := os.Stat(f.FinalPath); err == nil {
			if b.log != nil {
				b.log.Info("skipping %s: already completed", f.FileName)
			}
			continue
		}
		j.Files = append(j.Files, f)
	}

	if len(j.Files) == 0 {
		return nil, fmt.Errorf("processor: nzb %q produced no files to download", name)
	}
	return j, nil
}

// Processor implements job.PostProcessor: once every file in a Job is
// downloaded it finalizes filenames, verifies/repairs via PAR2, then runs
// any extraction.Extractor that recognizes the job's output against it.
type Processor struct {
	log        *logger.Logger
	repairer   Repairer
	extractors []extraction.Extractor
	outDir     string
}

func NewProcessor(l *logger.Logger, repairer Repairer, extractors []extraction.Extractor, outDir string) *Processor {
	return &Processor{log: l, repairer: repairer, extractors: extractors, outDir: outDir}
}

// PostProcess renames every finished File from its .part path to its final
// path, runs PAR2 verification/repair over the job's output directory when
// a .par2 volume is present among the downloaded files, then extracts any
// archive among the finished files that a configured Extractor recognizes.
// report advances j's visible Status to Repairing/Extracting as those phases
// are entered; PostProcess never touches j.Status directly.
func (p *Processor) PostProcess(ctx context.Context, j *job.Job, report func(job.Status) error) error {
	for _, f := range j.Files {
		if !f.IsComplete() {
			continue
		}
		if err := moveFile(f.PartPath, f.FinalPath); err != nil {
			return fmt.Errorf("processor: finalizing %s: %w", f.FileName, err)
		}
		if p.log != nil {
			p.log.Info("completed: %s", f.FileName)
		}
	}

	if p.hasPar2(j) && p.repairer != nil {
		if report != nil {
			if err := report(job.StatusRepairing); err != nil {
				return err
			}
		}
		ok, err := p.repairer.Verify(p.outDir)
		if err != nil {
			return fmt.Errorf("processor: par2 verify: %w", err)
		}
		if !ok {
			if p.log != nil {
				p.log.Warn("job %s: par2 verify failed, attempting repair", j.ID)
			}
			if err := p.repairer.Repair(p.outDir); err != nil {
				return fmt.Errorf("processor: par2 repair: %w", err)
			}
		}
	}

	if p.hasExtractable(j) {
		if report != nil {
			if err := report(job.StatusExtracting); err != nil {
				return err
			}
		}
		for _, f := range j.Files {
			if !f.IsComplete() {
				continue
			}
			for _, ex := range p.extractors {
				can, err := ex.CanExtract(f.FinalPath)
				if err != nil || !can {
					continue
				}
				if p.log != nil {
					p.log.Info("job %s: extracting %s via %s", j.ID, f.FileName, ex.Name())
				}
				if _, err := ex.Extract(ctx, f.FinalPath, p.outDir); err != nil {
					return fmt.Errorf("processor: extracting %s: %w", f.FileName, err)
				}
				break
			}
		}
	}

	return nil
}

// hasExtractable reports whether any finished File in j is recognized by a
// configured Extractor, so PostProcess only announces StatusExtracting when
// it is actually about to extract something.
func (p *Processor) hasExtractable(j *job.Job) bool {
	for _, f := range j.Files {
		if !f.IsComplete() {
			continue
		}
		for _, ex := range p.extractors {
			if can, err := ex.CanExtract(f.FinalPath); err == nil && can {
				return true
			}
		}
	}
	return false
}

func (p *Processor) hasPar2(j *job.Job) bool {
	for _, f := range j.Files {
		if f.IsPar2 {
			return true
		}
	}
	return false
}
