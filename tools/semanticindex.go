package tools

import (
	"context"

	"github.com/relaychat/conductor/statestore"
)

// MessageIndexBackend adapts a statestore.MessageIndex-backed corpus into a
// SemanticSearchBackend (spec.md §4.4, §6.3: "the semantic-search adapter
// wraps a vector store"). It is the in-process reference implementation of
// that wrap, built on the teacher's embedding-backed message index
// (statestore.InMemoryIndex + providers.EmbeddingProvider) rather than an
// external vector database, so the tool family has a working default
// backend without a third-party vector store dependency.
//
// Messages are indexed under a single corpus conversation ID, independent
// of any particular chat conversation_id, since semantic_search targets a
// shared knowledge corpus rather than one conversation's live history (the
// per-conversation recall path is entity search plus the live window, not
// this tool).
type MessageIndexBackend struct {
	index    statestore.MessageIndex
	corpusID string
}

// NewMessageIndexBackend builds a SemanticSearchBackend over index, scoped
// to corpusID.
func NewMessageIndexBackend(index statestore.MessageIndex, corpusID string) *MessageIndexBackend {
	return &MessageIndexBackend{index: index, corpusID: corpusID}
}

// Search implements SemanticSearchBackend.
func (b *MessageIndexBackend) Search(ctx context.Context, query string, topK int) ([]SemanticSearchItem, error) {
	results, err := b.index.Search(ctx, b.corpusID, query, topK)
	if err != nil {
		return nil, err
	}
	items := make([]SemanticSearchItem, len(results))
	for i, r := range results {
		items[i] = SemanticSearchItem{
			Content: r.Message.Content,
			Score:   r.Score,
			SourceMetadata: map[string]any{
				"turn_index": r.TurnIndex,
			},
		}
	}
	return items, nil
}

var _ SemanticSearchBackend = (*MessageIndexBackend)(nil)
