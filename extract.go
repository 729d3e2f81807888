// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/mpq

package mpq

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

// extractWorkItem stores one selected member with its prepared output path.
type extractWorkItem struct {
	relPath string
	info    FileInfo
}

// Extract writes selected members to dstDir. Extraction is parallelized by
// MaxWorkers; on failure it returns the first encountered error. Members
// without a resolvable name or key are skipped only when they were not
// explicitly selected.
func (a *Archive) Extract(ctx context.Context, dstDir string, opts ExtractOptions) error {
	if a == nil || a.ra == nil {
		return ErrNilReader
	}

	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return ErrClosed
	}

	workers := opts.MaxWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	entries := opts.Entries
	explicit := entries != nil
	if entries == nil {
		entries = a.Entries()
	}
	if len(entries) == 0 {
		return nil
	}

	dstRoot, err := filepath.Abs(dstDir)
	if err != nil {
		return fmt.Errorf("resolve output dir: %w", err)
	}
	if err := os.MkdirAll(dstRoot, 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	items := make([]extractWorkItem, 0, len(entries))
	for _, entry := range entries {
		if entry.NameGuessed && entry.Flags&FlagEncrypted != 0 && !explicit {
			// Unnamed encrypted members cannot be decoded; skip on full sweeps.
			continue
		}

		relPath, err := normalizeExtractEntryPath(entry.Name)
		if err != nil {
			if explicit {
				return err
			}
			continue
		}

		items = append(items, extractWorkItem{relPath: relPath, info: entry})
	}

	for _, item := range items {
		dir := filepath.Dir(filepath.Join(dstRoot, filepath.FromSlash(item.relPath)))
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create entry dir: %w", err)
		}
	}

	taskCh := make(chan extractWorkItem, len(items))
	errCh := make(chan error, len(items))
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Go(func() {
			for item := range taskCh {
				err := a.extractOne(ctx, dstRoot, item, opts.OnEntryDone)
				select {
				case errCh <- err:
				case <-ctx.Done():
					return
				}
			}
		})
	}

	for _, item := range items {
		select {
		case <-ctx.Done():
			close(taskCh)
			wg.Wait()
			return ctx.Err()
		case taskCh <- item:
		}
	}

	close(taskCh)
	wg.Wait()
	close(errCh)

	var first error
	for err := range errCh {
		if err != nil && first == nil {
			first = err
		}
	}

	return first
}

// extractOne decodes one member and writes it below dstRoot.
func (a *Archive) extractOne(ctx context.Context, dstRoot string, item extractWorkItem, done func(FileInfo, int64, string)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := a.ReadFile(item.info.Name)
	if err != nil {
		return fmt.Errorf("extract %s: %w", item.info.Name, err)
	}

	outPath := filepath.Join(dstRoot, filepath.FromSlash(item.relPath))
	if err := os.WriteFile(outPath, data, 0o640); err != nil {
		return fmt.Errorf("write %s: %w", item.relPath, err)
	}

	if done != nil {
		done(item.info, int64(len(data)), outPath)
	}

	return nil
}
