// Package embeddings turns corpus sections and queries into vectors.
//
// Providers: local ONNX models through fastembed (cgo builds only), a Text
// Embeddings Inference (TEI) server over HTTP, and Ollama or OpenAI through
// langchaingo.
package embeddings
