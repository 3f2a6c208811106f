package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dgallion1/planmark/internal/errreport"
	"github.com/dgallion1/planmark/internal/outline"
	"github.com/dgallion1/planmark/internal/parser"
	"github.com/dgallion1/planmark/internal/plan"
)

// Store is the part of the catalog ingestion writes to.
type Store interface {
	ListPages(ctx context.Context, documentID string) ([]plan.Page, error)
	CreatePage(ctx context.Context, p plan.Page) (plan.Page, error)
	CreateEntity(ctx context.Context, e plan.Entity) (plan.Entity, error)
	FindEntityByLabel(ctx context.Context, t plan.AnnotationType, parentRef, label string) (*plan.Entity, error)
}

// Worker processes one job at a time.
type Worker struct {
	store Store
	rep   *errreport.Reporter
	log   *slog.Logger

	maxConcurrentStore int
}

func NewWorker(store Store, rep *errreport.Reporter, log *slog.Logger, maxStore int) *Worker {
	return &Worker{
		store:              store,
		rep:                rep,
		log:                log,
		maxConcurrentStore: max(maxStore, 1),
	}
}

// Process runs a job to completion. The final status is completed,
// partial or failed.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "kind", job.Kind, "document_id", job.DocumentID)
	switch job.Kind {
	case KindPages:
		w.processPages(ctx, job, log)
	case KindOutline:
		w.processOutline(ctx, job, log)
	default:
		job.AddError(fmt.Sprintf("unknown job kind %q", job.Kind))
		job.SetStatus(StatusFailed, "parsing")
	}
}

func (w *Worker) processPages(ctx context.Context, job *Job, log *slog.Logger) {
	job.SetStatus(StatusParsing, "reading pages")
	pages, err := parser.ReadPages(bytes.NewReader(job.FileData()))
	if err != nil {
		log.Error("parse failed", "error", err)
		job.AddError(fmt.Sprintf("parse: %s", err))
		job.SetStatus(StatusFailed, "parsing")
		return
	}
	job.SetTotal(len(pages))
	log.Info("pages read", "pages", len(pages))

	job.SetStatus(StatusStoring, "creating pages")
	existing, err := errreport.Call(ctx, w.rep, "listPages", func(ctx context.Context) ([]plan.Page, error) {
		return w.store.ListPages(ctx, job.DocumentID)
	})
	if err != nil {
		log.Error("list pages failed", "error", err)
		job.AddError(fmt.Sprintf("list pages: %s", err))
		job.SetStatus(StatusFailed, "storing")
		return
	}
	have := make(map[int]string, len(existing))
	for _, p := range existing {
		have[p.Ordinal] = p.ID
	}

	for _, info := range pages {
		if id, ok := have[info.Ordinal]; ok {
			job.addPage(id)
			job.Done(false)
			continue
		}
		page := plan.Page{
			DocumentID:   job.DocumentID,
			Ordinal:      info.Ordinal,
			NativeWidth:  info.Width,
			NativeHeight: info.Height,
			Scale:        info.Scale(job.DrawingScale),
			PageType:     parser.SuggestPageType(info.Text),
		}
		created, err := errreport.Call(ctx, w.rep, "createPage", func(ctx context.Context) (plan.Page, error) {
			return w.store.CreatePage(ctx, page)
		})
		if err != nil {
			log.Error("create page failed", "ordinal", info.Ordinal, "error", err)
			job.Failed(fmt.Sprintf("page %d: %s", info.Ordinal, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		job.addPage(created.ID)
		job.Done(true)
	}
	job.finish()
	log.Info("pages stored", "status", job.Snapshot().Status)
}

func (w *Worker) processOutline(ctx context.Context, job *Job, log *slog.Logger) {
	job.SetStatus(StatusParsing, "parsing")
	p, err := parser.ForFile(job.Filename)
	if err != nil {
		log.Error("unsupported format", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "parsing")
		return
	}
	tree, err := p.Parse(bytes.NewReader(job.FileData()), job.Filename)
	if err == nil {
		err = tree.Validate()
	}
	if err != nil {
		log.Error("parse failed", "error", err)
		job.AddError(fmt.Sprintf("parse: %s", err))
		job.SetStatus(StatusFailed, "parsing")
		return
	}
	if job.Title == "" {
		job.Title = tree.Title
	}
	total := tree.Count()
	job.SetTotal(total)
	log.Info("outline parsed", "rooms", len(tree.Children), "nodes", total)
	if total == 0 {
		job.AddError("no rooms found")
		job.SetStatus(StatusFailed, "parsing")
		return
	}

	// Rooms are independent, so each room's subtree is written by its own
	// goroutine; parents always precede children within a subtree.
	job.SetStatus(StatusStoring, "creating entities")
	sem := make(chan struct{}, w.maxConcurrentStore)
	var wg sync.WaitGroup
	for _, room := range tree.Children {
		sem <- struct{}{}
		wg.Add(1)
		go func(room *outline.Node) {
			defer func() {
				<-sem
				wg.Done()
			}()
			w.storeSubtree(ctx, job, log, room, "", 1)
		}(room)
	}
	wg.Wait()
	job.finish()
	snap := job.Snapshot()
	log.Info("outline stored", "status", snap.Status, "created", snap.Progress.Created, "reused", snap.Progress.Reused)
}

// storeSubtree writes n and its descendants. When n cannot be written its
// descendants are counted as failed.
func (w *Worker) storeSubtree(ctx context.Context, job *Job, log *slog.Logger, n *outline.Node, parentID string, depth int) {
	t, _ := outline.TypeAtDepth(depth)
	id, created, err := w.ensureEntity(ctx, t, parentID, n)
	if err != nil {
		log.Error("store entity failed", "type", t, "label", n.Label, "error", err)
		job.Failed(fmt.Sprintf("%s %q (line %d): %s", t, n.Label, n.Line, err))
		skipped := (&outline.Outline{Children: n.Children}).Count()
		for range skipped {
			job.Failed(fmt.Sprintf("skipped under %q", n.Label))
		}
		return
	}
	job.Done(created)
	for _, c := range n.Children {
		w.storeSubtree(ctx, job, log, c, id, depth+1)
	}
}

// ensureEntity returns the existing entity with n's label under parentID or
// creates it.
func (w *Worker) ensureEntity(ctx context.Context, t plan.AnnotationType, parentID string, n *outline.Node) (string, bool, error) {
	find := func(ctx context.Context) (*plan.Entity, error) {
		return w.store.FindEntityByLabel(ctx, t, parentID, n.Label)
	}
	found, err := errreport.Call(ctx, w.rep, "findEntityByLabel", find)
	if err != nil {
		return "", false, err
	}
	if found != nil {
		return found.ID, false, nil
	}

	e := plan.Entity{Type: t, ParentID: parentID, Label: n.Label, Attrs: entityAttrs(n)}
	created, err := errreport.Call(ctx, w.rep, "createEntity", func(ctx context.Context) (plan.Entity, error) {
		return w.store.CreateEntity(ctx, e)
	})
	if errors.Is(err, plan.ErrDuplicate) {
		// Another writer won the race.
		if found, ferr := find(ctx); ferr == nil && found != nil {
			return found.ID, false, nil
		}
	}
	if err != nil {
		return "", false, err
	}
	return created.ID, true, nil
}

func entityAttrs(n *outline.Node) map[string]any {
	if len(n.Attrs) == 0 && strings.TrimSpace(n.Notes) == "" {
		return nil
	}
	attrs := make(map[string]any, len(n.Attrs)+1)
	for k, v := range n.Attrs {
		attrs[k] = v
	}
	if n.Notes != "" {
		attrs["notes"] = n.Notes
	}
	return attrs
}
