// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiresService(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestLogger_WritesToStderrSink(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{
		Service:     "test",
		Stderr:      &buf,
		DisableFile: true,
	})
	require.NoError(t, err)
	defer logger.Close()

	logger.Info("hello", "key", "value")

	out := buf.String()
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "key=value")
	assert.Contains(t, out, "service=test")
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{
		Service:     "test",
		Level:       LevelWarn,
		Stderr:      &buf,
		DisableFile: true,
	})
	require.NoError(t, err)
	defer logger.Close()

	logger.Info("quiet")
	logger.Warn("loud")

	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")
}

func TestLogger_FileOutput(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Config{
		Service:       "filetest",
		Dir:           dir,
		DisableStderr: true,
	})
	require.NoError(t, err)

	logger.Info("persisted", "n", 7)
	require.NoError(t, logger.Close())

	data, err := readFile(t, dir, "filetest.log")
	require.NoError(t, err)
	assert.Contains(t, data, `"msg":"persisted"`)
	assert.Contains(t, data, `"n":7`)
}

func TestLogger_ExporterReceivesRecords(t *testing.T) {
	exp := NewBufferedExporter(10)
	logger, err := New(Config{
		Service:       "exp",
		DisableStderr: true,
		DisableFile:   true,
		Exporter:      exp,
	})
	require.NoError(t, err)
	defer logger.Close()

	logger.Error("boom", "code", "E42")

	records := exp.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "boom", records[0].Message)
	assert.Equal(t, "ERROR", records[0].Level)
	assert.Equal(t, "exp", records[0].Service)
	assert.Equal(t, "E42", records[0].Attrs["code"])
}

func TestBufferedExporter_DropsOldest(t *testing.T) {
	exp := NewBufferedExporter(2)
	logger, err := New(Config{
		Service:       "buf",
		DisableStderr: true,
		DisableFile:   true,
		Exporter:      exp,
	})
	require.NoError(t, err)
	defer logger.Close()

	logger.Info("one")
	logger.Info("two")
	logger.Info("three")

	records := exp.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "two", records[0].Message)
	assert.Equal(t, "three", records[1].Message)
}

func TestLogger_CloseIsIdempotent(t *testing.T) {
	logger, err := New(Config{Service: "close", DisableStderr: true, DisableFile: true})
	require.NoError(t, err)
	assert.NoError(t, logger.Close())
	assert.NoError(t, logger.Close())
}

func TestLevel_SlogMapping(t *testing.T) {
	assert.Equal(t, Level("debug").slogLevel().String(), "DEBUG")
	assert.Equal(t, Level("WARN").slogLevel().String(), "WARN")
	assert.Equal(t, Level("bogus").slogLevel().String(), "INFO")
}

func readFile(t *testing.T, dir, name string) (string, error) {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, name))
	return string(b), err
}
