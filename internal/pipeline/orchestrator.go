// Package pipeline drives the full crawl: enumerate datasets, fetch
// and parse each archive, load it into the temporary schema, and
// finally migrate the temporary schema into the published one.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/gfbio/abcdcrawler/internal/abcdxml"
	"github.com/gfbio/abcdcrawler/internal/fetch"
	"github.com/gfbio/abcdcrawler/internal/fields"
	"github.com/gfbio/abcdcrawler/internal/store"
)

// Debug bounds which datasets a run processes, for local diagnosis of
// a feed without crawling it in full.
type Debug struct {
	DatasetStart int
	DatasetLimit int
}

// SchemaManager is the subset of *store.Manager the orchestrator
// needs, split out so tests can supply a fake in place of a real
// database connection.
type SchemaManager interface {
	InitTemporarySchema(ctx context.Context) error
	Migrate(ctx context.Context) error
}

// Loader is the subset of *store.Loader the orchestrator needs.
type Loader interface {
	InsertDataset(ctx context.Context, rec store.DatasetRecord) (key int, existing bool, err error)
}

// Orchestrator owns every collaborator the pipeline needs and runs the
// crawl loop. It is not safe for concurrent use: the pipeline is
// single-threaded by design, sharing one database connection and one
// parser across the whole run.
type Orchestrator struct {
	searchIndex     fetch.SearchIndex
	downloader      fetch.Downloader
	cache           *fetch.Cache
	tempFS          billy.Filesystem
	parser          *abcdxml.Parser
	manager         SchemaManager
	loader          Loader
	dict            *fields.Dictionary
	landingPageBase string
	debug           Debug
}

// New returns an Orchestrator wired from its collaborators.
func New(
	searchIndex fetch.SearchIndex,
	downloader fetch.Downloader,
	cache *fetch.Cache,
	tempDir string,
	dict *fields.Dictionary,
	landingPageField string,
	landingPageBase string,
	manager SchemaManager,
	loader Loader,
	debug Debug,
) (*Orchestrator, error) {
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("pipeline: create temp dir %s: %w", tempDir, err)
	}

	return &Orchestrator{
		searchIndex:     searchIndex,
		downloader:      downloader,
		cache:           cache,
		tempFS:          osfs.New(tempDir),
		parser:          abcdxml.New(dict, landingPageField),
		manager:         manager,
		loader:          loader,
		dict:            dict,
		landingPageBase: landingPageBase,
		debug:           debug,
	}, nil
}

// Run enumerates every dataset, loads each into the temporary schema,
// and migrates the temporary schema into the published one. A
// per-dataset failure is logged and skipped; it never aborts the run.
// A migration failure is logged but does not fail Run, matching the
// crawler's historic behavior of preferring a stale published schema
// over no schema at all.
func (o *Orchestrator) Run(ctx context.Context) error {
	datasets, err := o.searchIndex.Datasets(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: enumerate datasets: %w", err)
	}
	datasets = applyDebugWindow(datasets, o.debug)

	if err := o.manager.InitTemporarySchema(ctx); err != nil {
		return fmt.Errorf("pipeline: initialize schema: %w", err)
	}

	for _, d := range datasets {
		if err := o.processDataset(ctx, d); err != nil {
			log.Printf("pipeline: dataset %s: %v", d.ID, err)
			continue
		}
	}

	if err := o.manager.Migrate(ctx); err != nil {
		log.Printf("pipeline: migrate schema: %v", err)
	}
	return nil
}

func applyDebugWindow(datasets []fetch.DatasetDescriptor, debug Debug) []fetch.DatasetDescriptor {
	start := debug.DatasetStart
	if start < 0 {
		start = 0
	}
	if start > len(datasets) {
		start = len(datasets)
	}
	datasets = datasets[start:]

	if debug.DatasetLimit > 0 && debug.DatasetLimit < len(datasets) {
		datasets = datasets[:debug.DatasetLimit]
	}
	return datasets
}

// processDataset downloads one dataset's archive (falling back to a
// previously cached copy on download failure), parses every member,
// and inserts each into the temporary schema. The archive is only
// persisted back into the cache if every member inserted cleanly; an
// archive that was opened from the cache itself is left there as is.
func (o *Orchestrator) processDataset(ctx context.Context, d fetch.DatasetDescriptor) error {
	filename := fetch.SafeFilename(d.ID)
	cachePath := o.cache.Filesystem().Join(o.cache.Filesystem().Root(), filename)

	archivePath, err := o.fetchArchive(ctx, d, filename, cachePath)
	if err != nil {
		return err
	}
	defer o.tempFS.Remove(filename) //nolint:errcheck

	archive, err := fetch.OpenArchive(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archive.Close()

	landingPageProposal := fmt.Sprintf("%s?archive=%s", o.landingPageBase, d.URL)

	allInsertsSuccessful := true
	for {
		memberBytes, err := archive.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Printf("pipeline: dataset %s: read archive member: %v", d.ID, err)
			allInsertsSuccessful = false
			continue
		}

		result, err := o.parser.Parse(ctx, d.ID, archivePath, landingPageProposal, d.Publisher, bytes.NewReader(memberBytes))
		if err != nil {
			log.Printf("pipeline: dataset %s: parse member: %v", d.ID, err)
			allInsertsSuccessful = false
			continue
		}

		rec := store.DatasetRecord{
			DatasetID:    result.DatasetID,
			DatasetPath:  result.DatasetPath,
			LandingPage:  result.LandingPage,
			ProviderName: result.ProviderName,
			Dataset:      result.Dataset,
			Units:        result.Units,
		}
		if _, _, err := o.loader.InsertDataset(ctx, rec); err != nil {
			log.Printf("pipeline: dataset %s: insert: %v", d.ID, err)
			allInsertsSuccessful = false
		}
	}

	if allInsertsSuccessful && archive.Len() > 0 && archivePath != cachePath {
		if err := o.persistToCache(filename, archivePath); err != nil {
			log.Printf("pipeline: dataset %s: persist archive to cache: %v", d.ID, err)
		}
	}

	return nil
}

// fetchArchive downloads d's archive into the temp working directory,
// falling back to the cached copy from a prior run if the download
// fails. Returns the filesystem path the archive can be opened from.
func (o *Orchestrator) fetchArchive(ctx context.Context, d fetch.DatasetDescriptor, filename, cachePath string) (string, error) {
	tempPath := o.tempFS.Join(o.tempFS.Root(), filename)

	dest, err := o.tempFS.Create(filename)
	if err == nil {
		downloadErr := o.downloader.Download(ctx, d.URL, dest)
		dest.Close() //nolint:errcheck
		if downloadErr == nil {
			return tempPath, nil
		}
		log.Printf("pipeline: dataset %s: download failed, falling back to cache: %v", d.ID, downloadErr)
	}

	if _, statErr := os.Stat(cachePath); statErr != nil {
		return "", fmt.Errorf("download failed and no cached copy available: %w", err)
	}
	return cachePath, nil
}

func (o *Orchestrator) persistToCache(filename, archivePath string) error {
	src, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer src.Close()

	dest, err := o.cache.Filesystem().Create(filename)
	if err != nil {
		return err
	}
	defer dest.Close()

	_, err = io.Copy(dest, src)
	return err
}
