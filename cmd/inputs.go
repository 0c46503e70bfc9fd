package main

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/gazette-cli/internal/model"
)

// collectDocuments expands args into PDF documents. Directories are walked
// recursively for *.pdf files; explicit files are taken as given. The result
// is sorted by path with duplicates removed.
func collectDocuments(args []string) ([]model.SourceDocument, error) {
	seen := make(map[string]bool)
	var docs []model.SourceDocument

	add := func(path string) error {
		doc, err := model.NewSourceDocument(path)
		if err != nil {
			return err
		}
		if !seen[doc.Path] {
			seen[doc.Path] = true
			docs = append(docs, doc)
		}
		return nil
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, eris.Wrapf(err, "stat %s", arg)
		}
		if !info.IsDir() {
			if err := add(arg); err != nil {
				return nil, err
			}
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".pdf") {
				return nil
			}
			return add(path)
		})
		if err != nil {
			return nil, eris.Wrapf(err, "walk %s", arg)
		}
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}

// targetsFile is the YAML layout accepted by --targets:
//
//	targets:
//	  - 123456/SP
//	  - number: "98765"
//	    jurisdiction: RJ
type targetsFile struct {
	Targets []targetEntry `yaml:"targets"`
}

type targetEntry struct {
	model.Identity
}

// UnmarshalYAML accepts either an identity string or a number/jurisdiction
// mapping.
func (t *targetEntry) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		id, err := model.ParseIdentity(n.Value)
		if err != nil {
			return eris.Wrapf(err, "line %d", n.Line)
		}
		t.Identity = id
	case yaml.MappingNode:
		var raw struct {
			Number       string `yaml:"number"`
			Jurisdiction string `yaml:"jurisdiction"`
		}
		if err := n.Decode(&raw); err != nil {
			return err
		}
		id := model.NewIdentity(raw.Number, raw.Jurisdiction)
		if !id.Valid() {
			return eris.Errorf("line %d: invalid identity %s/%s", n.Line, raw.Number, raw.Jurisdiction)
		}
		t.Identity = id
	default:
		return eris.Errorf("line %d: target must be a string or a mapping", n.Line)
	}
	return nil
}

// loadTargets merges --oab flag values and the optional targets file,
// dropping duplicates while keeping first-seen order.
func loadTargets(flags []string, file string) ([]model.Identity, error) {
	var out []model.Identity
	seen := make(map[model.Identity]bool)
	add := func(id model.Identity) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	for _, f := range flags {
		id, err := model.ParseIdentity(f)
		if err != nil {
			return nil, eris.Wrap(err, "--oab")
		}
		add(id)
	}

	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, eris.Wrapf(err, "read targets file %s", file)
		}
		var tf targetsFile
		if err := yaml.Unmarshal(data, &tf); err != nil {
			return nil, eris.Wrapf(err, "parse targets file %s", file)
		}
		for _, t := range tf.Targets {
			add(t.Identity)
		}
	}
	return out, nil
}
