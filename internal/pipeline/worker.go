package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/psylab/epochsync/internal/clocksync"
	"github.com/psylab/epochsync/internal/epoch"
	"github.com/psylab/epochsync/internal/loader"
	"github.com/psylab/epochsync/internal/logtree"
	"github.com/psylab/epochsync/internal/store"
)

// Worker runs the synchronization chain for a single job: parse and
// build the log tree, reorder it, extract condition windows, align them
// against the recorded triggers, persist the result.
type Worker struct {
	results *store.Store
	log     *slog.Logger
}

func NewWorker(results *store.Store, log *slog.Logger) *Worker {
	return &Worker{results: results, log: log}
}

// Process runs the full pipeline for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "session_id", job.SessionID)
	logData, triggerData, opts, keepTree := job.Input()

	// Phase 1: parse the log and build the tree.
	job.SetStatus(StatusParsing, "parsing")
	payload, err := loader.DecodeLogPayload(job.LogFilename, logData)
	if err != nil {
		w.fail(job, log, "parsing", fmt.Sprintf("decode log: %s", err))
		return
	}
	treeOpts := logtree.Options{
		EntryDelimiter: opts.EntryDelimiter,
		KVDelimiter:    opts.KVDelimiter,
		DepthKey:       opts.DepthKey,
	}
	records := logtree.ParseEntries(payload, treeOpts.EntryDelimiter, treeOpts.KVDelimiter)
	tree, err := logtree.BuildRecords(records, treeOpts)
	if err != nil {
		w.fail(job, log, "parsing", fmt.Sprintf("build tree: %s", err))
		return
	}
	entities := 0
	tree.Walk(func(n *logtree.Node) {
		if _, ok := n.Level(opts.DepthKey); ok {
			entities++
		}
	})
	job.UpdateProgress(func(p *Progress) {
		p.Entries = len(records)
		p.Entities = entities
	})
	log.Info("log tree built", "entries", len(records), "entities", entities)

	if ctx.Err() != nil {
		w.fail(job, log, "parsing", "canceled")
		return
	}

	// Phase 2: temporal reorder.
	job.SetStatus(StatusReordering, "reordering")
	logtree.Reorder(tree, opts.DepthKey, log)

	// Phase 3: extract condition windows.
	job.SetStatus(StatusExtracting, "extracting")
	ex := epoch.NewExtractor(opts.ConditionPatterns, log)
	specs := ex.Extract(tree)
	job.UpdateProgress(func(p *Progress) {
		p.EpochSpecs = len(specs)
		p.SkippedMarkers = ex.Skipped()
	})
	log.Info("conditions extracted", "specs", len(specs), "skipped", ex.Skipped())
	if len(specs) == 0 {
		w.fail(job, log, "extracting", "no condition windows matched")
		return
	}

	if ctx.Err() != nil {
		w.fail(job, log, "extracting", "canceled")
		return
	}

	// Phase 4: load the recorded triggers and align the clocks.
	job.SetStatus(StatusAligning, "aligning")
	triggers, err := loader.ReadTriggers(job.TriggerFilename, triggerData, opts.EDFSignal)
	if err != nil {
		w.fail(job, log, "aligning", fmt.Sprintf("load triggers: %s", err))
		return
	}
	job.UpdateProgress(func(p *Progress) {
		p.Triggers = len(triggers)
	})

	aligned, err := clocksync.Align(specs, triggers, log)
	if err != nil {
		w.fail(job, log, "aligning", err.Error())
		return
	}

	result := &Result{
		SessionID:      job.SessionID,
		Epochs:         clocksync.GroupByCondition(aligned),
		Aligned:        aligned,
		SkippedMarkers: ex.Skipped(),
	}
	if keepTree {
		result.Tree = tree
	}

	if w.results != nil {
		if err := w.results.Save(job.SessionID, result); err != nil {
			// The in-memory result still serves the API; persistence is
			// best effort.
			log.Warn("result persistence failed", "error", err)
		}
	}

	job.UpdateProgress(func(p *Progress) {
		p.AlignedEpochs = len(aligned)
	})
	job.SetResult(result)
	job.SetStatus(StatusCompleted, "completed")
	log.Info("session aligned", "epochs", len(aligned))
}

func (w *Worker) fail(job *Job, log *slog.Logger, phase, msg string) {
	log.Error("job failed", "phase", phase, "error", msg)
	job.AddError(msg)
	job.SetStatus(StatusFailed, phase)
}
