package corpus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/lexflow/internal/vectorstore"
)

const ingestBatchSize = 64

// sectionFile is the on-disk layout: a top-level "sections" list.
type sectionFile struct {
	Sections []Section `json:"sections" yaml:"sections"`
}

// LoadSections reads sections from a JSON or YAML file.
func LoadSections(path string) ([]Section, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	secs, err := ParseSections(filepath.Ext(path), data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return secs, nil
}

// ParseSections decodes a section file and validates every entry.
func ParseSections(ext string, data []byte) ([]Section, error) {
	var file sectionFile
	switch strings.ToLower(ext) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&file); err != nil {
			return nil, err
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&file); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported section file extension %q", ext)
	}

	v := validator.New()
	seen := make(map[string]bool, len(file.Sections))
	for i, sec := range file.Sections {
		if err := v.Struct(sec); err != nil {
			return nil, fmt.Errorf("section %d: %w", i, err)
		}
		if seen[sec.ID] {
			return nil, fmt.Errorf("section %d: duplicate id %q", i, sec.ID)
		}
		seen[sec.ID] = true
	}
	return file.Sections, nil
}

// Ingester writes sections to both the record store and the vector index.
type Ingester struct {
	records *Store
	vectors vectorstore.Store
	logger  *zap.Logger
}

// NewIngester creates an Ingester.
func NewIngester(records *Store, vectors vectorstore.Store, logger *zap.Logger) *Ingester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingester{records: records, vectors: vectors, logger: logger}
}

// Ingest indexes the sections, then upserts the records and bumps the corpus
// version. Returns the new version.
func (in *Ingester) Ingest(ctx context.Context, sections []Section) (int64, error) {
	for start := 0; start < len(sections); start += ingestBatchSize {
		end := min(start+ingestBatchSize, len(sections))
		batch := sections[start:end]

		docs := make([]vectorstore.Document, len(batch))
		for i, sec := range batch {
			docs[i] = vectorstore.Document{
				ID:       sec.ID,
				Content:  sec.Text,
				Metadata: sec.VectorMetadata(),
			}
		}
		if _, err := in.vectors.AddDocuments(ctx, docs); err != nil {
			return 0, fmt.Errorf("indexing sections %d-%d: %w", start, end-1, err)
		}
		in.logger.Debug("indexed batch", zap.Int("from", start), zap.Int("to", end-1))
	}

	version, err := in.records.Upsert(ctx, sections)
	if err != nil {
		return 0, err
	}
	in.logger.Info("ingest complete",
		zap.Int("sections", len(sections)),
		zap.Int64("corpus_version", version),
	)
	return version, nil
}
