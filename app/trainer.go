package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"goalcast/domain/core"
	"goalcast/domain/stage"
	"goalcast/internal/errors"
	"goalcast/internal/logging"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Job is one competition's raw input
type Job struct {
	Competition core.CompetitionID `json:"competition"`
	Path        string             `json:"path"`
}

var inputExtensions = map[string]bool{".csv": true, ".xlsx": true}

// DiscoverJobs lists every csv or xlsx file in dir as a job, ordered by
// file name. A directory holding two files for one competition is an
// input error.
func DiscoverJobs(dir string) ([]Job, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list raw directory %s", dir)
	}

	var jobs []Job
	seen := make(map[core.CompetitionID]string)
	for _, e := range entries {
		if e.IsDir() || !inputExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		job, err := JobFor(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[job.Competition]; dup {
			return nil, errors.Newf(errors.CodeInvalidInput, "competition %s has two inputs: %s and %s", job.Competition, prev, job.Path)
		}
		seen[job.Competition] = job.Path
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Path < jobs[j].Path })
	return jobs, nil
}

// JobFor names the competition of one input file
func JobFor(path string) (Job, error) {
	competition, err := core.CompetitionFromFile(path)
	if err != nil {
		return Job{}, errors.WithCode(errors.CodeInvalidInput, err)
	}
	return Job{Competition: competition, Path: path}, nil
}

// FilterJobs keeps the jobs of the named competitions, in job order. A
// competition with no input is a not-found error.
func FilterJobs(jobs []Job, competitions []core.CompetitionID) ([]Job, error) {
	if len(competitions) == 0 {
		return jobs, nil
	}
	want := make(map[core.CompetitionID]bool, len(competitions))
	for _, c := range competitions {
		want[c] = true
	}
	var out []Job
	for _, j := range jobs {
		if want[j.Competition] {
			out = append(out, j)
			delete(want, j.Competition)
		}
	}
	for _, c := range competitions {
		if want[c] {
			return nil, errors.WithCode(errors.CodeNotFound, fmt.Errorf("%w %s", core.ErrCompetitionMissing, c))
		}
	}
	return out, nil
}

// Trainer runs the pipeline over many competitions. Each competition
// succeeds or fails on its own; one failure never stops the rest.
type Trainer struct {
	pipeline    *Pipeline
	parallelism int
	log         *logrus.Entry
}

// NewTrainer creates a trainer running at most parallelism competitions
// at once
func NewTrainer(pipeline *Pipeline, parallelism int, log *logrus.Entry) *Trainer {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Trainer{pipeline: pipeline, parallelism: parallelism, log: logging.Component(log, "trainer")}
}

// RunAll trains every job and returns one report per job in job order
func (t *Trainer) RunAll(ctx context.Context, jobs []Job) []*Report {
	return t.each(ctx, jobs, t.pipeline.Run)
}

// PreprocessAll runs every job up to feature selection
func (t *Trainer) PreprocessAll(ctx context.Context, jobs []Job) []*Report {
	return t.each(ctx, jobs, t.pipeline.Preprocess)
}

func (t *Trainer) each(ctx context.Context, jobs []Job, fn func(context.Context, core.CompetitionID, string) *Report) []*Report {
	reports := make([]*Report, len(jobs))

	g := new(errgroup.Group)
	g.SetLimit(t.parallelism)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				reports[i] = cancelledReport(job.Competition, err)
				return nil
			}
			reports[i] = fn(ctx, job.Competition, job.Path)
			return nil
		})
	}
	_ = g.Wait()

	var done, skipped, failed int
	for _, r := range reports {
		switch {
		case r.Err == nil:
			done++
		case r.Skipped():
			skipped++
		default:
			failed++
		}
	}
	t.log.WithFields(logrus.Fields{
		"competitions": len(jobs),
		"completed":    done,
		"skipped":      skipped,
		"failed":       failed,
	}).Info("[Trainer] batch finished")
	return reports
}

func cancelledReport(competition core.CompetitionID, cause error) *Report {
	err := errors.Cancelled(cause)
	return &Report{
		Competition: competition,
		Stage:       stage.Pending,
		Error:       err.Error(),
		ErrorCode:   errors.GetCode(err),
		Err:         err,
	}
}
