// Package e2e runs the whole stack over a generated site corpus: files on disk,
// re-index through the admin API, then search, grounded answers and conversation
// over HTTP.
package e2e

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SiteDocument is one file of the generated corpus.
type SiteDocument struct {
	// Path is relative to the corpus root, slash-separated.
	Path    string
	Title   string
	Content string
}

// Slug is the identifier the re-indexer derives from Path.
func (d SiteDocument) Slug() string {
	return strings.ToLower(strings.TrimSuffix(d.Path, filepath.Ext(d.Path)))
}

// QueryTestCase is a full-text query and the slug that must appear in its results.
type QueryTestCase struct {
	Query        string
	ExpectedSlug string
}

// Corpus holds the generated documents and queries.
type Corpus struct {
	Documents []SiteDocument
	TestCases []QueryTestCase
}

var topics = []struct {
	section string
	title   string
	phrase  string
	content string
}{
	{"journal", "Herons", "grey herons", "Walked to the river at dawn. Two grey herons stood in the shallows, perfectly still."},
	{"journal", "Storm", "thunderstorm rolled", "A thunderstorm rolled over the valley in the afternoon and the power went out for an hour."},
	{"journal", "Market", "saturday market", "Bought figs and sourdough at the saturday market; the baker remembered my name."},
	{"journal", "Lighthouse", "abandoned lighthouse", "Cycled out to the abandoned lighthouse on the headland and sketched the keeper's cottage."},
	{"journal", "Garden", "tomato seedlings", "Transplanted the tomato seedlings into the raised bed after the last frost."},
	{"journal", "Train", "night train", "Took the night train north; slept badly but woke to snow on the pines."},
	{"books", "Cartographer", "forgotten cartographer", "Chapter one of the novel introduces the forgotten cartographer who mapped the salt marshes."},
	{"books", "Orchard", "walled orchard", "The second chapter takes place in a walled orchard where the sisters bury a letter."},
	{"books", "Ferry", "midnight ferry", "In chapter three the midnight ferry breaks down halfway across the estuary."},
	{"books", "Archive", "municipal archive", "The detective spends chapter four in the municipal archive reading flood records."},
	{"wiki", "Sourdough", "sourdough starter", "A sourdough starter is a culture of wild yeast and lactobacilli fed with flour and water."},
	{"wiki", "Bicycles", "derailleur adjustment", "Derailleur adjustment starts with the limit screws, then cable tension, then indexing."},
	{"wiki", "Watercolour", "wet on wet", "Wet on wet watercolour lets pigments bloom; lift excess water with a thirsty brush."},
	{"wiki", "Birding", "field guide", "A good field guide groups birds by shape before colour, which helps with distant silhouettes."},
	{"wiki", "Composting", "hot composting", "Hot composting needs a balance of greens and browns and regular turning to stay above fifty degrees."},
	{"notes", "Reading", "reading list", "The reading list for winter: essays on walking, a history of maps, and two mysteries."},
}

// extensions rotates documents through the supported formats.
var extensions = []string{".md", ".txt", ".docx", ".md", ".xlsx"}

// BuildCorpus returns one document per topic and a query per distinctive phrase.
func BuildCorpus() *Corpus {
	c := &Corpus{}
	for i, t := range topics {
		name := strings.ToLower(t.title)
		path := fmt.Sprintf("%s/%02d-%s%s", t.section, i+1, name, extensions[i%len(extensions)])
		doc := SiteDocument{Path: path, Title: t.title, Content: t.content}
		c.Documents = append(c.Documents, doc)
		c.TestCases = append(c.TestCases, QueryTestCase{Query: t.phrase, ExpectedSlug: doc.Slug()})
	}
	return c
}

// WriteTo writes every document under root in its file format.
func (c *Corpus) WriteTo(root string) error {
	for _, d := range c.Documents {
		body, err := EncodeDocument(d)
		if err != nil {
			return fmt.Errorf("encode %s: %w", d.Path, err)
		}
		p := filepath.Join(root, filepath.FromSlash(d.Path))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(p, body, 0644); err != nil {
			return err
		}
	}
	return nil
}
