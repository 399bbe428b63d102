package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/relaychat/conductor/entity"
	"github.com/relaychat/conductor/events"
	"github.com/relaychat/conductor/logger"
	"github.com/relaychat/conductor/statestore"
	"github.com/relaychat/conductor/types"
)

// SummarizeFunc integrates evicted turns into a new narrative summary. It is
// satisfied by statestore.Summarizer adapted to Turn text, and must never
// mutate live-window turns (spec.md §4.3).
type SummarizeFunc func(ctx context.Context, conversationID string, evicted []Turn, existing LongTermSummary) (LongTermSummary, error)

// ExtractFunc augments pattern extraction with a model pass over a
// (query, answer) pair, returning entities to merge and store. It must
// itself apply no dedup writes — BackgroundPool merges before storing.
type ExtractFunc func(ctx context.Context, conversationID, query, answer, userName string) ([]entity.Entity, error)

// BackgroundPool runs the two asynchronous, best-effort learners fired
// after each turn (spec.md §2.7): abstractive summarization of evicted
// window messages, and entity extraction from the (query, answer) pair.
// Background workers never share mutable state with the foreground engine
// beyond the Entity Store / Summary record they eventually commit.
type BackgroundPool struct {
	store    statestore.Store
	entities *entity.Store
	index    statestore.MessageIndex
	corpusID string

	summarize SummarizeFunc
	extract   ExtractFunc

	bus *events.EventBus

	sem chan struct{}
	wg  sync.WaitGroup
	clk func() time.Time
}

// NewBackgroundPool creates a worker pool bounded to maxConcurrent
// in-flight background jobs.
func NewBackgroundPool(store statestore.Store, entities *entity.Store, summarize SummarizeFunc, extract ExtractFunc, maxConcurrent int) *BackgroundPool {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &BackgroundPool{
		store:     store,
		entities:  entities,
		summarize: summarize,
		extract:   extract,
		sem:       make(chan struct{}, maxConcurrent),
		clk:       time.Now,
	}
}

// WithMessageIndex attaches a semantic message index (spec.md §6.3's
// semantic_search vector store, backed here by statestore.MessageIndex)
// that committed turns are indexed into under corpusID, so semantic_search
// has conversational content to retrieve in addition to whatever an
// external knowledge-base adapter contributes.
func (p *BackgroundPool) WithMessageIndex(index statestore.MessageIndex, corpusID string) *BackgroundPool {
	p.index = index
	p.corpusID = corpusID
	return p
}

// WithEvents attaches an event bus; the pool publishes summary.updated and
// entities.stored events through it.
func (p *BackgroundPool) WithEvents(bus *events.EventBus) *BackgroundPool {
	p.bus = bus
	return p
}

func (p *BackgroundPool) emitter(conversationID string) *events.Emitter {
	if p.bus == nil {
		return nil
	}
	return events.NewEmitter(p.bus, "", conversationID, conversationID)
}

// EnqueueIndex fires best-effort semantic indexing of a committed turn
// without blocking the caller. A no-op when no MessageIndex is attached.
func (p *BackgroundPool) EnqueueIndex(turnIndex int, msg types.Message) {
	if p.index == nil {
		return
	}
	p.run(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := p.index.Index(ctx, p.corpusID, turnIndex, msg); err != nil {
			logger.DefaultLogger.Warn("memory: semantic index write failed", "corpus_id", p.corpusID, "error", err)
		}
	})
}

// EnqueueSummarize fires the Background Summarizer without blocking the
// caller.
func (p *BackgroundPool) EnqueueSummarize(conversationID string, evicted []Turn, existing LongTermSummary) {
	if p.summarize == nil {
		return
	}
	p.run(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		degraded := false
		updated, err := p.summarize(ctx, conversationID, evicted, existing)
		if err != nil {
			degraded = true
			logger.DefaultLogger.Warn("memory: summarizer failed, falling back to stub concatenation",
				"conversation_id", conversationID, "error", err)
			updated = LongTermSummary{
				Text:             interimSummary(existing.Text, evicted),
				CoveredTurnCount: existing.CoveredTurnCount + len(evicted),
				LastUpdated:      p.clk(),
			}
		}

		if accessor, ok := p.store.(statestore.SummaryAccessor); ok {
			_ = accessor.SaveSummary(ctx, conversationID, statestore.Summary{
				StartTurn: existing.CoveredTurnCount,
				EndTurn:   updated.CoveredTurnCount - 1,
				Content:   updated.Text,
				CreatedAt: p.clk(),
			})
		}
		if em := p.emitter(conversationID); em != nil {
			em.SummaryUpdated(updated.CoveredTurnCount, len(updated.Text), degraded)
		}
	})
}

// EnqueueExtract fires the Background Entity Extractor without blocking the
// caller. Pattern extraction always runs; the model-augmented pass is
// layered on top when extract is configured. The two outputs are merged via
// entity.Merge before a single store write (no double writes).
func (p *BackgroundPool) EnqueueExtract(conversationID, query, answer, userName string) {
	p.run(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		now := p.clk()
		extractionContext := strings.TrimSpace(query + " " + answer)
		found := entity.ExtractPatternEntities(query, conversationID, extractionContext, now)
		found = append(found, entity.ExtractPatternEntities(answer, conversationID, extractionContext, now)...)

		if p.extract != nil {
			aiFound, err := p.extract(ctx, conversationID, query, answer, userName)
			if err != nil {
				logger.DefaultLogger.Warn("memory: ai entity extraction failed, using pattern results only",
					"conversation_id", conversationID, "error", err)
			} else {
				found = mergeByKey(found, aiFound)
			}
		}

		if p.entities != nil && len(found) > 0 {
			if err := p.entities.StoreEntities(ctx, conversationID, found); err != nil {
				logger.DefaultLogger.Warn("memory: entity store write failed", "conversation_id", conversationID, "error", err)
			} else if em := p.emitter(conversationID); em != nil {
				em.EntitiesStored(len(found), len(found), 0)
			}
		}
	})
}

// mergeByKey merges two entity slices that may contain same-key duplicates
// (within or across the slices) before a single store write.
func mergeByKey(a, b []entity.Entity) []entity.Entity {
	byKey := map[string]entity.Entity{}
	order := make([]string, 0, len(a)+len(b))
	add := func(e entity.Entity) {
		if existing, ok := byKey[e.Key]; ok {
			byKey[e.Key] = entity.Merge(existing, e)
			return
		}
		byKey[e.Key] = e
		order = append(order, e.Key)
	}
	for _, e := range a {
		add(e)
	}
	for _, e := range b {
		add(e)
	}
	out := make([]entity.Entity, 0, len(order))
	for _, k := range order {
		out = append(out, byKey[k])
	}
	return out
}

// run submits a background job, blocking only on the pool's concurrency
// semaphore, never on the job itself.
func (p *BackgroundPool) run(fn func()) {
	p.wg.Add(1)
	p.sem <- struct{}{}
	go func() {
		defer p.wg.Done()
		defer func() { <-p.sem }()
		defer func() {
			if r := recover(); r != nil {
				logger.DefaultLogger.Error("memory: background job panicked", "panic", r)
			}
		}()
		fn()
	}()
}

// Wait blocks until all enqueued background jobs complete. Intended for
// tests and graceful shutdown only; the foreground engine never calls it.
func (p *BackgroundPool) Wait() {
	p.wg.Wait()
}
