// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package datafile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/hashicorp/go-multierror"

	"github.com/cardinalhq/lakewriter/internal/cloudstorage"
	"github.com/cardinalhq/lakewriter/internal/idgen"
	"github.com/cardinalhq/lakewriter/internal/partition"
	"github.com/cardinalhq/lakewriter/internal/tablewriter"
)

// ErrWriterClosed is returned by calls on a writer that was flushed or aborted.
var ErrWriterClosed = errors.New("datafile: writer is closed")

// Option configures a WriterBuilder.
type Option func(*WriterBuilder)

// WithIDGenerator sets the generator used to name uploaded files.
func WithIDGenerator(g idgen.IDGenerator) Option {
	return func(b *WriterBuilder) {
		b.ids = g
	}
}

// WithContent sets the content type recorded on every file.
func WithContent(c Content) Option {
	return func(b *WriterBuilder) {
		b.content = c
	}
}

// WriterBuilder builds data file writers that share one configuration and
// storage client.
type WriterBuilder struct {
	cfg     Config
	client  cloudstorage.Client
	ids     idgen.IDGenerator
	content Content
}

var _ tablewriter.Builder[*DataFile] = (*WriterBuilder)(nil)

// NewWriterBuilder validates cfg and returns a builder uploading through client.
func NewWriterBuilder(cfg Config, client cloudstorage.Client, opts ...Option) (*WriterBuilder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, errors.New("datafile: storage client cannot be nil")
	}
	b := &WriterBuilder{cfg: cfg, client: client, content: ContentData}
	for _, opt := range opts {
		opt(b)
	}
	if b.ids == nil {
		b.ids = idgen.NewULIDGenerator()
	}
	return b, nil
}

// Build implements tablewriter.Builder.
func (b *WriterBuilder) Build(ctx context.Context, schema *arrow.Schema) (tablewriter.Writer[*DataFile], error) {
	return b.BuildWriter(ctx, schema)
}

// BuildWriter returns a writer for batches with exactly schema.
func (b *WriterBuilder) BuildWriter(_ context.Context, schema *arrow.Schema) (*Writer, error) {
	if schema == nil {
		return nil, errors.New("datafile: schema cannot be nil")
	}
	codec, _ := parseCompression(b.cfg.Compression)
	return &Writer{
		cfg:     b.cfg,
		client:  b.client,
		ids:     b.ids,
		content: b.content,
		schema:  schema,
		props: parquet.NewWriterProperties(
			parquet.WithCompression(codec),
			parquet.WithDictionaryDefault(true),
			parquet.WithMaxRowGroupLength(b.cfg.GetChunkSize()),
		),
		arrowProps: pqarrow.NewArrowWriterProperties(
			pqarrow.WithStoreSchema(),
		),
	}, nil
}

type openFile struct {
	tmpPath string
	writer  *pqarrow.FileWriter
	rows    int64
}

// Writer streams batches into parquet files, rolling to a new file every
// TargetFileRows rows. Finished files are uploaded as soon as they roll.
// It is not safe for concurrent use.
type Writer struct {
	cfg        Config
	client     cloudstorage.Client
	ids        idgen.IDGenerator
	content    Content
	schema     *arrow.Schema
	props      *parquet.WriterProperties
	arrowProps pqarrow.ArrowWriterProperties

	current  *openFile
	files    []*DataFile
	uploaded []string
	closed   bool
}

var (
	_ tablewriter.Writer[*DataFile] = (*Writer)(nil)
	_ tablewriter.Aborter           = (*Writer)(nil)
)

// Write appends batch to the open file. The batch is not retained.
func (w *Writer) Write(ctx context.Context, batch arrow.Record) error {
	if w.closed {
		return ErrWriterClosed
	}
	if !batch.Schema().Equal(w.schema) {
		return fmt.Errorf("%w: batch schema %s does not match writer schema %s",
			partition.ErrSchemaMismatch, batch.Schema(), w.schema)
	}

	numRows := batch.NumRows()
	for offset := int64(0); offset < numRows; {
		if w.current == nil {
			if err := w.openFile(); err != nil {
				return err
			}
		}

		take := numRows - offset
		if w.cfg.TargetFileRows != NoRowLimitPerFile {
			take = min(take, w.cfg.TargetFileRows-w.current.rows)
		}

		var err error
		if take == numRows {
			err = w.current.writer.Write(batch)
		} else {
			slice := batch.NewSlice(offset, offset+take)
			err = w.current.writer.Write(slice)
			slice.Release()
		}
		if err != nil {
			return fmt.Errorf("failed to write record batch: %w", err)
		}
		w.current.rows += take
		offset += take

		if w.cfg.TargetFileRows != NoRowLimitPerFile && w.current.rows >= w.cfg.TargetFileRows {
			if err := w.finishFile(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Writer) openFile() error {
	tmpFile, err := os.CreateTemp(w.cfg.TmpDir, "datafile-*.parquet")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	pw, err := pqarrow.NewFileWriter(w.schema, tmpFile, w.props, w.arrowProps)
	if err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpFile.Name())
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}
	w.current = &openFile{tmpPath: tmpFile.Name(), writer: pw}
	return nil
}

// finishFile closes the open file, uploads it and records its DataFile.
func (w *Writer) finishFile(ctx context.Context) error {
	f := w.current
	w.current = nil
	defer func() { _ = os.Remove(f.tmpPath) }()

	// Closing the parquet writer also closes the underlying file.
	if err := f.writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}

	info, err := os.Stat(f.tmpPath)
	if err != nil {
		return fmt.Errorf("stat data file: %w", err)
	}
	stats, err := readFileStats(f.tmpPath)
	if err != nil {
		return err
	}

	key := path.Join(w.cfg.Prefix, w.ids.Make(time.Now())+".parquet")
	if err := w.client.UploadObject(ctx, w.cfg.Bucket, key, f.tmpPath); err != nil {
		return fmt.Errorf("upload data file %s: %w", key, err)
	}
	w.uploaded = append(w.uploaded, key)

	df := &DataFile{
		Content:         w.content,
		FilePath:        w.client.URL(w.cfg.Bucket, key),
		FileFormat:      FileFormatParquet,
		RecordCount:     stats.rows,
		FileSizeBytes:   info.Size(),
		ColumnSizes:     stats.columnSizes,
		ValueCounts:     stats.valueCounts,
		NullValueCounts: stats.nullCounts,
	}
	w.files = append(w.files, df)

	slog.Debug("Uploaded data file",
		slog.String("bucket", w.cfg.Bucket),
		slog.String("key", key),
		slog.Int64("records", df.RecordCount),
		slog.Int64("bytes", df.FileSizeBytes))
	return nil
}

// Flush finishes the open file and returns every file written, in write
// order. The writer is closed afterwards.
func (w *Writer) Flush(ctx context.Context) ([]*DataFile, error) {
	if w.closed {
		return nil, ErrWriterClosed
	}
	w.closed = true

	if w.current != nil {
		if err := w.finishFile(ctx); err != nil {
			return nil, err
		}
	}
	files := w.files
	w.files = nil
	return files, nil
}

// Abort discards the open file and deletes every file already uploaded,
// including files returned by an earlier Flush.
func (w *Writer) Abort() {
	w.closed = true
	w.files = nil

	var errs *multierror.Error
	if f := w.current; f != nil {
		w.current = nil
		if err := f.writer.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("close parquet writer: %w", err))
		}
		if err := os.Remove(f.tmpPath); err != nil && !os.IsNotExist(err) {
			errs = multierror.Append(errs, err)
		}
	}

	if len(w.uploaded) > 0 {
		keys := w.uploaded
		w.uploaded = nil
		failed, err := w.client.DeleteObjects(context.Background(), w.cfg.Bucket, keys)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("delete uploaded files: %w", err))
		}
		for _, key := range failed {
			errs = multierror.Append(errs, fmt.Errorf("failed to delete %s", key))
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		slog.Warn("Data file writer abort left files behind",
			slog.String("bucket", w.cfg.Bucket),
			slog.Any("error", err))
	}
}
