// Package abcdxml streams ABCD dataset XML archives into dataset and
// unit value maps without building a DOM.
package abcdxml

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gfbio/abcdcrawler/internal/fields"
	"github.com/gfbio/abcdcrawler/internal/value"
)

// Version identifies the detected ABCD schema version of a parsed
// document.
type Version int

const (
	VersionUnknown Version = iota
	Version206
	Version210
)

func (v Version) String() string {
	switch v {
	case Version206:
		return "2.06"
	case Version210:
		return "2.1"
	default:
		return "unknown"
	}
}

const (
	version206URI = "http://www.tdwg.org/schemas/abcd/2.06"
	version210URI = "http://www.tdwg.org/schemas/abcd/2.1"

	unitsPath = "/DataSets/DataSet/Units"
)

// ErrNoDatasetMetadata is returned when a document never reaches the
// dataset-level snapshot boundary (`/DataSets/DataSet/Units`'s start
// tag), meaning no dataset metadata was ever captured.
var ErrNoDatasetMetadata = errors.New("abcdxml: archive member contains no dataset metadata")

// Result holds one parsed archive member: the metadata of the dataset
// it belongs to, plus every occurrence record (unit) it carried.
type Result struct {
	DatasetID    string
	DatasetPath  string
	LandingPage  string
	ProviderName string
	Version      Version
	Dataset      value.Map
	Units        []value.Map
}

// Parser holds the reusable buffers of a single parse run. It is not
// safe for concurrent use, but a single Parser may be reused across
// many sequential Parse calls to avoid reallocating its path stack.
type Parser struct {
	dict             *fields.Dictionary
	landingPageField string

	segments []string
	pathBuf  []byte
	values   value.Map
}

// New creates a Parser against dict, resolving the dataset landing
// page from landingPageField when present in the parsed metadata.
func New(dict *fields.Dictionary, landingPageField string) *Parser {
	return &Parser{
		dict:             dict,
		landingPageField: landingPageField,
		values:           make(value.Map),
	}
}

// Parse streams r as ABCD XML, returning one Result describing the
// dataset-level metadata and every unit it contains.
//
// The returned landing page is landingPageProposal unless the parsed
// metadata carries a non-empty value at landingPageField, in which
// case that value wins.
func (p *Parser) Parse(ctx context.Context, datasetID, datasetPath, landingPageProposal, providerName string, r io.Reader) (*Result, error) {
	p.segments = p.segments[:0]
	p.values = make(value.Map)

	decoder := xml.NewDecoder(r)

	var (
		version     Version
		datasetData value.Map
		units       []value.Map
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("abcdxml: decode: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			p.segments = append(p.segments, t.Name.Local)

			switch p.currentPath() {
			case "/DataSets":
				for _, attr := range t.Attr {
					switch attr.Value {
					case version206URI:
						version = Version206
					case version210URI:
						version = Version210
					}
				}
			case unitsPath:
				datasetData = p.finishMap()
			}

		case xml.EndElement:
			name := t.Name.Local
			if len(p.segments) > 0 {
				p.segments = p.segments[:len(p.segments)-1]
			}
			if name == "Unit" && p.currentPath() == unitsPath {
				units = append(units, p.finishMap())
			}

		case xml.CharData:
			text := strings.TrimSpace(string(t))
			if text == "" {
				continue
			}
			path := p.currentPath()
			field, ok := p.dict.Lookup(path)
			if !ok {
				continue
			}
			if field.Numeric {
				if v, ok := value.Numeric(text); ok {
					p.values[path] = v
				}
			} else {
				p.values[path] = value.Text(text)
			}
		}
	}

	if datasetData == nil {
		return nil, ErrNoDatasetMetadata
	}

	landingPage := landingPageProposal
	if v, ok := datasetData[p.landingPageField]; ok && !v.IsNumeric() && v.Text != "" {
		landingPage = v.Text
	}

	return &Result{
		DatasetID:    datasetID,
		DatasetPath:  datasetPath,
		LandingPage:  landingPage,
		ProviderName: providerName,
		Version:      version,
		Dataset:      datasetData,
		Units:        units,
	}, nil
}

// currentPath renders the current element stack as a leading-slash
// path, reusing p.pathBuf across calls.
func (p *Parser) currentPath() string {
	p.pathBuf = p.pathBuf[:0]
	for _, seg := range p.segments {
		p.pathBuf = append(p.pathBuf, '/')
		p.pathBuf = append(p.pathBuf, seg...)
	}
	return string(p.pathBuf)
}

// finishMap returns the values accumulated since the last snapshot and
// resets the accumulator for the next one.
func (p *Parser) finishMap() value.Map {
	result := p.values
	p.values = make(value.Map)
	return result
}
