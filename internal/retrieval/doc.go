// Package retrieval turns one or more natural-language queries into a ranked,
// de-duplicated list of corpus passages.
//
// A Client runs a single similarity search and joins hits to their corpus
// records. A Pipeline fans a request out across queries, waits for every
// search, drops hits under the score floor and merges duplicates keeping the
// best score.
package retrieval
