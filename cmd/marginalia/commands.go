// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/poiesic/marginalia"
	"github.com/poiesic/marginalia/config"
	"github.com/poiesic/marginalia/ingestion"
	"github.com/poiesic/marginalia/rag"
	"github.com/poiesic/marginalia/storage"
	"github.com/urfave/cli/v2"
)

type commands struct {
	opts []marginalia.Option
}

// open loads the config named by --config and opens an engine from it.
func (cmds *commands) open(c *cli.Context) (*marginalia.Engine, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	engine, err := marginalia.Open(cfg, cmds.opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}
	return engine, nil
}

func (cmds *commands) initConfig(c *cli.Context) error {
	path := c.String("config")
	if _, err := os.Stat(path); err == nil && !c.Bool("force") {
		return fmt.Errorf("%s already exists, use --force to overwrite", path)
	}
	if err := config.Save(path, config.Default()); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Wrote %s\n", path)
	return nil
}

func (cmds *commands) ingest(c *cli.Context) error {
	paths := c.Args().Slice()
	if len(paths) == 0 {
		return errors.New("at least one file is required")
	}
	metadata, err := parseMetadata(c.StringSlice("meta"))
	if err != nil {
		return err
	}

	engine, err := cmds.open(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	pipeline, err := engine.NewIngestionPipeline(ingestion.WithProgress(c.App.ErrWriter))
	if err != nil {
		return fmt.Errorf("failed to create ingestion pipeline: %w", err)
	}
	defer pipeline.Release()

	ctx, cancel := signalContext()
	defer cancel()

	results, err := pipeline.IngestFiles(ctx, paths, metadata)
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(c.App.Writer, "FAILED  %s: %v\n", r.Path, r.Err)
			continue
		}
		fmt.Fprintf(c.App.Writer, "OK      %s  %s  %d chunks, %d tokens\n",
			r.Document.DocumentID, r.Path, r.Document.ChunkCount, r.Document.TotalTokens)
	}
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}
	return nil
}

func (cmds *commands) query(c *cli.Context) error {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return errors.New("a question is required")
	}
	filter, err := storage.ParseFilter(c.StringSlice("filter"))
	if err != nil {
		return err
	}

	req := rag.QueryRequest{
		Query:   question,
		Filters: filter,
		TopK:    c.Int("top-k"),
	}
	if c.IsSet("min-score") {
		score := float32(c.Float64("min-score"))
		req.MinScore = &score
	}

	engine, err := cmds.open(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, cancel := signalContext()
	defer cancel()

	answer, err := engine.Query(ctx, req)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	w := c.App.Writer
	fmt.Fprintln(w, answer.Answer)
	if len(answer.Citations) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Sources:")
		for i, cite := range answer.Citations {
			source := cite.Source
			if cite.Page != nil {
				source = fmt.Sprintf("%s, page %d", source, *cite.Page)
			}
			fmt.Fprintf(w, "  [%d] %s (score %.2f)\n", i+1, source, cite.RelevanceScore)
		}
	}
	fmt.Fprintf(c.App.ErrWriter, "%d documents, %d tokens, %.0fms\n",
		answer.RetrievedDocCount, answer.TokensUsed, answer.ProcessingTimeMs)
	return nil
}

func (cmds *commands) documents(c *cli.Context) error {
	engine, err := cmds.open(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	docs, err := engine.Documents(c.Context)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}
	if len(docs) == 0 {
		fmt.Fprintln(c.App.Writer, "No documents.")
		return nil
	}

	tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tTYPE\tSTATUS\tCHUNKS\tCREATED")
	for _, d := range docs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			d.DocumentID, d.Title, d.SourceType, d.Status, d.ChunkCount, d.CreatedAt.Format(time.DateTime))
	}
	return tw.Flush()
}

func (cmds *commands) deleteDocument(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("exactly one document id is required")
	}
	id := c.Args().First()

	engine, err := cmds.open(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.DeleteDocument(c.Context, id); err != nil {
		return fmt.Errorf("failed to delete %s: %w", id, err)
	}
	fmt.Fprintf(c.App.Writer, "Deleted %s\n", id)
	return nil
}

// parseMetadata turns key=value pairs into a metadata map.
func parseMetadata(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	m := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("metadata %q is not key=value", pair)
		}
		m[key] = strings.TrimSpace(value)
	}
	return m, nil
}
