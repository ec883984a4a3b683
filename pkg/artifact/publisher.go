package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Attachment is a secondary artifact recorded alongside the primary archive.
type Attachment struct {
	Kind       string `json:"kind"`
	Classifier string `json:"classifier,omitempty"`
	Path       string `json:"path"`
}

// Publisher records attachments in the order they were made. It is safe for
// concurrent use.
type Publisher struct {
	mu          sync.Mutex
	attachments []Attachment
}

// NewPublisher returns an empty Publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Attach records an additional output without touching the primary archive.
// Kind and classifier identify an attachment; attaching the same pair again
// replaces the recorded path.
func (p *Publisher) Attach(kind, classifier, path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, a := range p.attachments {
		if a.Kind == kind && a.Classifier == classifier {
			p.attachments[i].Path = path
			return
		}
	}
	p.attachments = append(p.attachments, Attachment{Kind: kind, Classifier: classifier, Path: path})
}

// Attachments returns a copy of the recorded attachments.
func (p *Publisher) Attachments() []Attachment {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Attachment, len(p.attachments))
	copy(out, p.attachments)
	return out
}

// WriteManifest atomically writes the attachments as JSON to path.
func (p *Publisher) WriteManifest(path string) error {
	data, err := json.MarshalIndent(p.Attachments(), "", "  ")
	if err != nil {
		return fmt.Errorf("write attachments: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("write attachments: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".attachments-tmp-*")
	if err != nil {
		return fmt.Errorf("write attachments: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write attachments: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write attachments: close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write attachments: rename: %w", err)
	}
	return nil
}

// ReadManifest reads attachments written by WriteManifest. A missing file
// yields no attachments.
func ReadManifest(path string) ([]Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read attachments: %w", err)
	}
	var out []Attachment
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("read attachments: unmarshal: %w", err)
	}
	return out, nil
}
