package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"booklookup/internal/book"
)

type SearchCmd struct {
	Query  []string `arg:"" optional:"" help:"Free text query"`
	Title  string   `help:"Title to search for, combined with --author"`
	Author string   `help:"Author to search for"`
	Lang   string   `short:"l" help:"Preferred language, e.g. es or en"`
	Limit  int      `short:"n" default:"10" help:"Maximum results (1-20)"`
}

func (c *SearchCmd) Run(a *app) error {
	req := book.SearchRequest{
		Q:      strings.Join(c.Query, " "),
		Title:  c.Title,
		Author: c.Author,
		Lang:   c.Lang,
		Limit:  c.Limit,
	}
	q, err := req.Normalize()
	if err != nil {
		return err
	}

	results, err := a.service.Search(context.Background(), q, req.Limit, req.Lang)
	if err != nil {
		return err
	}
	return a.printJSON(results)
}

type GetCmd struct {
	ID string `arg:"" help:"Google Books volume id"`
}

func (c *GetCmd) Run(a *app) error {
	r, err := a.service.GetByExternalID(context.Background(), c.ID)
	if errors.Is(err, book.ErrNotFound) {
		return fmt.Errorf("no book with id %q", c.ID)
	}
	if err != nil {
		return err
	}
	return a.printJSON(r)
}

type StatsCmd struct{}

func (c *StatsCmd) Run(a *app) error {
	stats, err := a.service.CacheStats(context.Background())
	if err != nil {
		return err
	}
	return a.printJSON(stats)
}

type WarmCmd struct {
	Queries []string `arg:"" optional:"" help:"Queries to run"`
	File    string   `short:"f" type:"existingfile" help:"File with one query per line"`
	Lang    string   `short:"l" help:"Preferred language"`
	Limit   int      `short:"n" default:"10" help:"Results per query"`
}

func (c *WarmCmd) Run(a *app) error {
	queries := append([]string(nil), c.Queries...)
	if c.File != "" {
		lines, err := readLines(c.File)
		if err != nil {
			return err
		}
		queries = append(queries, lines...)
	}
	if len(queries) == 0 {
		return errors.New("nothing to warm: pass queries or --file")
	}

	ctx := context.Background()
	failed := 0
	for _, q := range queries {
		results, err := a.service.Search(ctx, q, c.Limit, c.Lang)
		if err != nil {
			failed++
			a.logger.Warn("warm query failed", "query", q, "error", err)
			continue
		}
		fresh := 0
		for _, r := range results {
			if !r.IsFromCache {
				fresh++
			}
		}
		fmt.Fprintf(a.out, "%-40s %2d results, %2d new\n", q, len(results), fresh)
	}
	if failed == len(queries) {
		return fmt.Errorf("all %d warm queries failed", failed)
	}
	return nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
