package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"booklookup/internal/book"
)

// ShellCmd keeps one process alive so repeated queries hit the memory cache.
// Lines starting with ":" are commands; anything else is a search.
type ShellCmd struct {
	Lang  string `short:"l" help:"Preferred language"`
	Limit int    `short:"n" default:"10" help:"Maximum results (1-20)"`
}

func (c *ShellCmd) Run(a *app) error {
	ctx := context.Background()
	sc := bufio.NewScanner(a.in)

	fmt.Fprintln(a.out, "type a query, :get <id>, :stats, :clear or :quit")
	for {
		fmt.Fprint(a.out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(a.out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if done := c.handle(ctx, a, line); done {
			return nil
		}
	}
}

func (c *ShellCmd) handle(ctx context.Context, a *app, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	var err error
	switch cmd {
	case ":quit", ":q":
		return true
	case ":clear":
		a.service.ClearMemoryCache()
		fmt.Fprintln(a.out, "memory cache cleared")
	case ":stats":
		var stats book.Stats
		if stats, err = a.service.CacheStats(ctx); err == nil {
			err = a.printJSON(stats)
		}
	case ":get":
		var r book.SearchResult
		if r, err = a.service.GetByExternalID(ctx, arg); err == nil {
			err = a.printJSON(r)
		}
	default:
		req := book.SearchRequest{Q: line, Lang: c.Lang, Limit: c.Limit}
		var q string
		if q, err = req.Normalize(); err == nil {
			err = c.search(ctx, a, q, req)
		}
	}

	if err != nil {
		if errors.Is(err, book.ErrNotFound) {
			fmt.Fprintln(a.out, "not found")
		} else {
			fmt.Fprintf(a.out, "error: %v\n", err)
		}
	}
	return false
}

func (c *ShellCmd) search(ctx context.Context, a *app, q string, req book.SearchRequest) error {
	results, err := a.service.Search(ctx, q, req.Limit, req.Lang)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(a.out, "no results")
		return nil
	}
	for i, r := range results {
		src := "provider"
		if r.IsFromCache {
			src = "store"
		}
		fmt.Fprintf(a.out, "%2d. %s - %s [%s, %s] %s\n", i+1, r.Title, strings.Join(r.Authors, ", "), r.Language, src, r.ExternalID)
	}
	return nil
}
