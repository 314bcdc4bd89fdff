// Package vectorstore stores embedded corpus sections and answers similarity
// queries over them.
//
// Two providers are available behind the Store interface:
//
//   - chromem: embedded, optionally persisted to disk, no external services.
//   - qdrant: external Qdrant server over gRPC.
//
// Every stored Document carries the section id in its ID so search hits can be
// joined back to the relational corpus record.
//
// # Usage
//
//	store, err := vectorstore.NewStore(cfg, embedder, logger)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	hits, err := store.Search(ctx, "notice of termination", 5)
package vectorstore
