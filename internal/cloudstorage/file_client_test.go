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

package cloudstorage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFileClientLifecycle(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	client := NewFileClient(base)

	src := filepath.Join(t.TempDir(), "src.parquet")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))

	require.NoError(t, client.UploadObject(ctx, "bucket", "path/file.parquet", src))
	data, err := os.ReadFile(filepath.Join(base, "bucket", "path", "file.parquet"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	require.NoError(t, client.DeleteObject(ctx, "bucket", "path/file.parquet"))
	_, err = os.Stat(client.Path("bucket", "path/file.parquet"))
	require.True(t, os.IsNotExist(err))

	// Deleting again is not an error.
	require.NoError(t, client.DeleteObject(ctx, "bucket", "path/file.parquet"))
}

func TestFileClientDeleteObjects(t *testing.T) {
	ctx := context.Background()
	client := NewFileClient(t.TempDir())
	src := filepath.Join(t.TempDir(), "src")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	keys := []string{"a/1.parquet", "a/2.parquet", "b/3.parquet"}
	for _, k := range keys {
		require.NoError(t, client.UploadObject(ctx, "bkt", k, src))
	}

	failed, err := client.DeleteObjects(ctx, "bkt", keys)
	require.NoError(t, err)
	assert.Empty(t, failed)
	for _, k := range keys {
		_, err := os.Stat(client.Path("bkt", k))
		assert.True(t, os.IsNotExist(err), k)
	}
}

func TestFileClientUploadMissingSource(t *testing.T) {
	client := NewFileClient(t.TempDir())
	err := client.UploadObject(context.Background(), "bkt", "k", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestURLs(t *testing.T) {
	base := t.TempDir()
	fileURL := NewFileClient(base).URL("bkt", "data/x.parquet")
	assert.True(t, strings.HasPrefix(fileURL, "file://"), fileURL)
	assert.True(t, strings.HasSuffix(fileURL, "/bkt/data/x.parquet"), fileURL)

	s3c := &S3Client{}
	assert.Equal(t, "s3://bkt/data/x.parquet", s3c.URL("bkt", "data/x.parquet"))
}

func TestNewClient(t *testing.T) {
	ctx := context.Background()

	client, err := NewClient(ctx, Config{Provider: ProviderFile, BaseDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileClient{}, client)

	_, err = NewClient(ctx, Config{Provider: ProviderFile})
	require.Error(t, err)

	_, err = NewClient(ctx, Config{Provider: "azure"})
	require.ErrorContains(t, err, "unsupported storage provider")
}

func TestUploadTelemetry(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	defer otel.SetMeterProvider(prev)
	initTelemetry()

	client := NewFileClient(t.TempDir())
	src := filepath.Join(t.TempDir(), "src")
	require.NoError(t, os.WriteFile(src, []byte("12345"), 0o644))
	require.NoError(t, client.UploadObject(ctx, "bkt", "one", src))
	require.NoError(t, client.UploadObject(ctx, "bkt", "two", src))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	var countFound, bytesFound bool
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch m.Name {
			case "lakewriter.storage.upload.count":
				data := m.Data.(metricdata.Sum[int64])
				require.Equal(t, int64(2), data.DataPoints[0].Value)
				countFound = true
			case "lakewriter.storage.upload.bytes":
				data := m.Data.(metricdata.Sum[int64])
				require.Equal(t, int64(10), data.DataPoints[0].Value)
				bytesFound = true
			}
		}
	}
	require.True(t, countFound, "upload count metric not found")
	require.True(t, bytesFound, "upload bytes metric not found")
}
