package audit

import "context"

// Indexer is satisfied by *client.ESClient.
type Indexer interface {
	IndexDocument(ctx context.Context, index, id string, document interface{}) error
}

// ElasticsearchSink indexes each event as a document so support staff can
// search delivery history by recipient or message id.
type ElasticsearchSink struct {
	es    Indexer
	index string
}

func NewElasticsearchSink(es Indexer, index string) *ElasticsearchSink {
	return &ElasticsearchSink{es: es, index: index}
}

func (s *ElasticsearchSink) Record(ctx context.Context, e Event) error {
	if err := s.es.IndexDocument(ctx, s.index, e.ID, e); err != nil {
		return wrap("elasticsearch", err)
	}
	return nil
}
