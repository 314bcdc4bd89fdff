package corpus

import (
	"fmt"
	"time"
)

// Section is one addressable unit of the legal corpus.
type Section struct {
	ID        string            `gorm:"primaryKey;size:191" json:"id" yaml:"id" validate:"required"`
	Chapter   string            `gorm:"size:64;index" json:"cap,omitempty" yaml:"cap,omitempty"`
	Number    string            `gorm:"size:64" json:"section,omitempty" yaml:"section,omitempty"`
	Title     string            `json:"title,omitempty" yaml:"title,omitempty"`
	Text      string            `gorm:"not null" json:"text" yaml:"text" validate:"required"`
	Metadata  map[string]string `gorm:"serializer:json" json:"metadata,omitempty" yaml:"metadata,omitempty"`
	CreatedAt time.Time         `json:"-" yaml:"-"`
	UpdatedAt time.Time         `json:"-" yaml:"-"`
}

// TableName pins the table name regardless of naming strategy.
func (Section) TableName() string { return "sections" }

// Label is the human citation for the section: "Cap. N, Section S" when both
// parts are known, otherwise the title, otherwise the id.
func (s Section) Label() string {
	return Label(s.Chapter, s.Number, s.Title, s.ID)
}

// Label builds a citation label from its parts.
func Label(chapter, number, title, id string) string {
	switch {
	case chapter != "" && number != "":
		return fmt.Sprintf("Cap. %s, Section %s", chapter, number)
	case title != "":
		return title
	default:
		return id
	}
}

// VectorMetadata is the metadata stored alongside the section's embedding.
func (s Section) VectorMetadata() map[string]any {
	md := make(map[string]any, len(s.Metadata)+3)
	for k, v := range s.Metadata {
		md[k] = v
	}
	if s.Chapter != "" {
		md["cap"] = s.Chapter
	}
	if s.Number != "" {
		md["section"] = s.Number
	}
	if s.Title != "" {
		md["title"] = s.Title
	}
	return md
}

// meta is the single-row table holding the corpus version.
type meta struct {
	Name      string `gorm:"primaryKey;size:64"`
	Version   int64  `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

func (meta) TableName() string { return "corpus_meta" }

const versionKey = "corpus"
