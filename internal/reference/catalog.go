package reference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/speakingbuddy/pkg/features"
)

// CatalogFile is the top-level structure of a reference catalog YAML file.
type CatalogFile struct {
	Catalog CatalogMeta `yaml:"catalog"`
	Words   []Entry     `yaml:"words"`
}

// CatalogMeta holds catalog metadata.
type CatalogMeta struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`

	// Language is the BCP 47 tag of the words, e.g. "de".
	Language string `yaml:"language,omitempty"`
}

// entryKeys lists the keys accepted in a word entry.
var entryKeys = []string{"id", "word", "translation", "category", "audio_file", "features"}

// UnmarshalYAML implements [yaml.Unmarshaler]. A missing, null or
// `{placeholder: true}` features value leaves Features nil.
func (e *Entry) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: word entry must be a mapping", value.Line)
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		if k := value.Content[i]; !slices.Contains(entryKeys, k.Value) {
			return fmt.Errorf("line %d: field %s not found in word entry", k.Line, k.Value)
		}
	}

	var w struct {
		ID          string    `yaml:"id"`
		Word        string    `yaml:"word"`
		Translation string    `yaml:"translation"`
		Category    string    `yaml:"category"`
		AudioFile   string    `yaml:"audio_file"`
		Features    yaml.Node `yaml:"features"`
	}
	if err := value.Decode(&w); err != nil {
		return err
	}
	b, err := decodeFeaturesNode(&w.Features)
	if err != nil {
		return fmt.Errorf("word %q: %w", w.ID, err)
	}
	*e = Entry{
		ID:          w.ID,
		Word:        w.Word,
		Translation: w.Translation,
		Category:    w.Category,
		AudioFile:   w.AudioFile,
		Features:    b,
	}
	return nil
}

func decodeFeaturesNode(n *yaml.Node) (*features.Bundle, error) {
	if n.Kind == 0 || (n.Kind == yaml.ScalarNode && n.Tag == "!!null") {
		return nil, nil
	}
	var marker struct {
		Placeholder bool `yaml:"placeholder"`
	}
	if err := n.Decode(&marker); err != nil {
		return nil, fmt.Errorf("features: %w", err)
	}
	if marker.Placeholder {
		return nil, nil
	}
	return features.DecodeYAML(n)
}

// LoadCatalogFile reads and parses a catalog YAML file from disk.
func LoadCatalogFile(path string) (*CatalogFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reference: open catalog %q: %w", path, err)
	}
	defer f.Close()

	cf, err := LoadCatalogFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("reference: parse catalog %q: %w", path, err)
	}
	return cf, nil
}

// LoadCatalogFromReader parses catalog YAML from r and validates every
// entry. Unknown keys are rejected.
func LoadCatalogFromReader(r io.Reader) (*CatalogFile, error) {
	var cf CatalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cf); err != nil {
		if errors.Is(err, io.EOF) {
			return &cf, nil
		}
		return nil, fmt.Errorf("reference: decode catalog yaml: %w", err)
	}

	var errs []error
	for _, e := range cf.Words {
		errs = append(errs, e.Validate())
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &cf, nil
}

// ImportCatalog adds every word of cf to store and returns the number
// added. The first failure aborts the import.
func ImportCatalog(ctx context.Context, store *MemStore, cf *CatalogFile) (int, error) {
	if cf == nil {
		return 0, errors.New("reference: catalog must not be nil")
	}
	for i, e := range cf.Words {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := store.Add(ctx, e); err != nil {
			return i, fmt.Errorf("reference: import catalog %q: %w", cf.Catalog.Name, err)
		}
	}
	return len(cf.Words), nil
}

// LoadCatalogs loads every file in paths into a new [MemStore]. Word IDs
// must be unique across all files.
func LoadCatalogs(ctx context.Context, paths ...string) (*MemStore, error) {
	store := NewMemStore()
	for _, p := range paths {
		cf, err := LoadCatalogFile(p)
		if err != nil {
			return nil, err
		}
		if _, err := ImportCatalog(ctx, store, cf); err != nil {
			return nil, fmt.Errorf("%w (file %q)", err, p)
		}
	}
	return store, nil
}

// WriteCatalog encodes cf as YAML to w. Entries without features are
// written without a features key.
func WriteCatalog(w io.Writer, cf *CatalogFile) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cf); err != nil {
		return fmt.Errorf("reference: encode catalog: %w", err)
	}
	return enc.Close()
}

// WriteCatalogFile writes cf to path, replacing the file atomically.
func WriteCatalogFile(path string, cf *CatalogFile) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".catalog-*.yaml")
	if err != nil {
		return fmt.Errorf("reference: write catalog %q: %w", path, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = WriteCatalog(tmp, cf); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("reference: write catalog %q: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("reference: write catalog %q: %w", path, err)
	}
	return nil
}
