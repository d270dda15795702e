package propstat

import (
	"fmt"
	"io"
	"math/rand"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/propstat/propstat/internal/pkg/propfs"
	log "github.com/sirupsen/logrus"
)

// Job describes one aggregation over a single input.
type Job struct {
	// RunID distinguishes separate runs over the same input. Remote workers
	// only reuse results computed under the same RunID.
	RunID     string
	Input     string
	Extractor Extractor

	fileSystem propfs.FileSystem
}

// NewJob creates a Job over input. The filesystem is inferred from the input path.
func NewJob(input string, extractor Extractor) (*Job, error) {
	fs, err := propfs.InferFilesystem(input)
	if err != nil {
		return nil, err
	}
	return &Job{
		RunID:      newRunID(),
		Input:      input,
		Extractor:  extractor,
		fileSystem: fs,
	}, nil
}

func newRunID() string {
	return fmt.Sprintf("%x-%x", time.Now().UnixNano(), rand.Int63())
}

func (j *Job) open() (io.ReadCloser, error) {
	reader, err := j.fileSystem.OpenReader(j.Input)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s: %w", j.Input, err)
	}
	return reader, nil
}

// runStripe opens a private reader over the input and folds every record
// whose row index is congruent to rank modulo size.
func (j *Job) runStripe(rank, size int) (partial, error) {
	start := time.Now()

	reader, err := j.open()
	if err != nil {
		return partial{}, fmt.Errorf("rank %d: %w", rank, err)
	}
	defer reader.Close()

	p, err := scanStripe(reader, j.Extractor, rank, size)
	if err != nil {
		return partial{}, fmt.Errorf("rank %d: %w", rank, err)
	}
	p.Elapsed = time.Since(start)

	log.Debugf("Rank %d folded %d rows (%s scanned) in %s", rank, p.Rows, humanize.Bytes(uint64(p.Bytes)), p.Elapsed)
	return p, nil
}

// scanStripe reads every record from r so that row indices stay aligned
// across ranks, but only extracts fields from the rows owned by rank.
func scanStripe(r io.Reader, ex Extractor, rank, size int) (partial, error) {
	if size <= 0 {
		return partial{}, fmt.Errorf("invalid worker count %d", size)
	}

	p := partial{Rank: rank}
	source := newRecordSource(r)
	for row := 0; source.Next(); row++ {
		if row%size != rank {
			continue
		}
		p.Extrema.Observe(ex.Extract(source.Text()))
		p.Rows++
	}
	p.Bytes = source.BytesRead()

	if err := source.Err(); err != nil {
		return partial{}, err
	}
	return p, nil
}

// loadedRecords is the in-memory record array used by the shared-memory
// strategy.
type loadedRecords struct {
	sets   []FieldSet
	sizes  int // records with a size
	prices int // records with a price
	bytes  int64
}

// paired reports whether at least one size and one price were loaded.
func (l loadedRecords) paired() bool {
	return l.sizes > 0 && l.prices > 0
}

func (j *Job) loadRecords() (loadedRecords, error) {
	reader, err := j.open()
	if err != nil {
		return loadedRecords{}, err
	}
	defer reader.Close()

	loaded, err := loadFieldSets(reader, j.Extractor)
	if err != nil {
		return loadedRecords{}, err
	}
	log.Debugf("Loaded %d records (%d sizes, %d prices) from %s of input",
		len(loaded.sets), loaded.sizes, loaded.prices, humanize.Bytes(uint64(loaded.bytes)))
	return loaded, nil
}

// loadFieldSets materializes the field sets of every record in r. Records
// that contribute neither field are dropped.
func loadFieldSets(r io.Reader, ex Extractor) (loadedRecords, error) {
	var loaded loadedRecords

	source := newRecordSource(r)
	for source.Next() {
		set := ex.Extract(source.Text())
		if set.Empty() {
			continue
		}
		if set.Size.Valid {
			loaded.sizes++
		}
		if set.Price.Valid {
			loaded.prices++
		}
		loaded.sets = append(loaded.sets, set)
	}
	loaded.bytes = source.BytesRead()

	if err := source.Err(); err != nil {
		return loadedRecords{}, err
	}
	return loaded, nil
}
