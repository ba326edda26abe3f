// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// history_cmd.go - Transcript history command.
//
// Command: history [subcommand]
// Short:   Browse and manage saved transcripts
// Aliases: hist
//
// Subcommands:
//   list (default)          List transcripts, newest first
//   show ID [--markdown]    Print one transcript
//   search QUERY            Find transcripts by title or content
//   export ID [-o PATH]     Export a transcript (--format markdown|json|html;
//                           with -o the file extension picks the format,
//                           a directory gets a generated file name)
//   delete ID               Delete one transcript
//   clear [--confirm]       Delete every transcript
//
// IDs may be shortened to any unique prefix.

package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/rigrun-stream/internal/config"
	"github.com/jeranaias/rigrun-stream/internal/export"
	"github.com/jeranaias/rigrun-stream/internal/storage"
	"github.com/jeranaias/rigrun-stream/internal/util"
)

// HandleHistory handles the "history" command.
func HandleHistory(cfg *config.Config, args Args) error {
	store, err := openTranscriptStore(cfg)
	if err != nil {
		return err
	}
	return runHistory(store, NewArgParser(args.Raw, "confirm", "markdown"), args.JSON, os.Stdout)
}

func runHistory(store *storage.TranscriptStore, p *ArgParser, jsonMode bool, out io.Writer) error {
	switch sub := strings.ToLower(p.Subcommand()); sub {
	case "", "list", "ls":
		return historyList(store, p, jsonMode, out)
	case "show", "view":
		return historyShow(store, p, jsonMode, out)
	case "search", "find":
		return historySearch(store, p, jsonMode, out)
	case "export":
		return historyExport(store, p, jsonMode, out)
	case "delete", "rm":
		return historyDelete(store, p, jsonMode, out)
	case "clear":
		return historyClear(store, p, jsonMode, out)
	default:
		return &ValidationError{
			Field:   "history subcommand",
			Value:   sub,
			Reason:  "unknown subcommand",
			Example: "rigrun-stream history [list|show ID|search QUERY|export ID|delete ID|clear]",
		}
	}
}

func historyList(store *storage.TranscriptStore, p *ArgParser, jsonMode bool, out io.Writer) error {
	metas, err := store.List()
	if err != nil {
		return err
	}
	limit, _, err := p.FlagInt("limit", "n")
	if err != nil {
		return err
	}
	if limit > 0 && len(metas) > limit {
		metas = metas[:limit]
	}
	return printMetas(metas, "history", jsonMode, out)
}

func historySearch(store *storage.TranscriptStore, p *ArgParser, jsonMode bool, out io.Writer) error {
	query := strings.Join(p.PositionalFrom(1), " ")
	if query == "" {
		return ErrMissingArgument("query", "rigrun-stream history search QUERY")
	}
	metas, err := store.Search(query)
	if err != nil {
		return err
	}
	return printMetas(metas, "history search", jsonMode, out)
}

func printMetas(metas []storage.TranscriptMeta, command string, jsonMode bool, out io.Writer) error {
	if jsonMode {
		if metas == nil {
			metas = []storage.TranscriptMeta{}
		}
		return NewJSONResponse(command, metas).Write(out)
	}
	fmt.Fprintln(out, storage.FormatList(metas))
	return nil
}

func historyShow(store *storage.TranscriptStore, p *ArgParser, jsonMode bool, out io.Writer) error {
	t, err := loadTranscriptArg(store, p, "show")
	if err != nil {
		return err
	}
	if jsonMode {
		return NewJSONResponse("history show", t).Write(out)
	}

	fmt.Fprintln(out, TitleStyle.Render(t.Title))
	fmt.Fprintf(out, "%s%s\n", RenderLabel("ID:", 10), t.ID)
	fmt.Fprintf(out, "%s%s\n", RenderLabel("Model:", 10), t.Model)
	fmt.Fprintf(out, "%s%s\n", RenderLabel("Updated:", 10), t.UpdatedAt.Format("2006-01-02 15:04"))
	fmt.Fprintln(out, RenderSeparator(util.StringWidth(t.Title)+10))

	markdown := useMarkdown(p.BoolFlag("markdown"))
	for _, e := range t.Entries {
		fmt.Fprintf(out, "\n%s\n", RenderRole(string(e.Role)))
		if markdown {
			fmt.Fprint(out, renderMarkdown(e.Content))
		} else {
			fmt.Fprintln(out, e.Content)
		}
		if e.Error != "" {
			fmt.Fprintln(out, WarningStyle.Render("[stream error] "+e.Error))
		}
	}
	return nil
}

func historyExport(store *storage.TranscriptStore, p *ArgParser, jsonMode bool, out io.Writer) error {
	t, err := loadTranscriptArg(store, p, "export")
	if err != nil {
		return err
	}

	path := p.Flag("output", "o")
	format := p.Flag("format")
	exporter, err := export.ForFormat(format, nil)
	if err != nil {
		return &ValidationError{Field: "--format", Value: format, Reason: "unsupported format", Example: "--format html"}
	}
	if path == "" {
		content, err := exporter.Export(t)
		if err != nil {
			return err
		}
		_, err = out.Write(content)
		return err
	}

	// A directory gets a generated file name; otherwise, without --format,
	// the file extension picks the format
	switch info, statErr := os.Stat(path); {
	case statErr == nil && info.IsDir():
		path = filepath.Join(path, export.FileName(t, exporter))
	case format == "":
		exporter = nil
	case filepath.Ext(path) == "":
		path += exporter.FileExtension()
	}
	if err := export.ToFile(t, path, exporter); err != nil {
		return err
	}
	if jsonMode {
		return NewJSONResponse("history export", map[string]string{"id": t.ID, "path": path}).Write(out)
	}
	fmt.Fprintf(out, "%s Exported %s to %s\n", SuccessStyle.Render("[OK]"), t.ID[:8], path)
	return nil
}

func historyDelete(store *storage.TranscriptStore, p *ArgParser, jsonMode bool, out io.Writer) error {
	id := p.Positional(1)
	if id == "" {
		return ErrMissingArgument("transcript ID", "rigrun-stream history delete ID")
	}
	resolved, err := store.Resolve(id)
	if err != nil {
		return err
	}
	if err := store.Delete(resolved); err != nil {
		return err
	}
	if jsonMode {
		return NewJSONResponse("history delete", map[string]string{"id": resolved}).Write(out)
	}
	fmt.Fprintf(out, "%s Deleted %s\n", SuccessStyle.Render("[OK]"), resolved)
	return nil
}

func historyClear(store *storage.TranscriptStore, p *ArgParser, jsonMode bool, out io.Writer) error {
	confirmed, err := RequireConfirmation(p.BoolFlag("confirm"), "delete all transcripts", jsonMode)
	if err != nil {
		return err
	}
	if !confirmed {
		ShowCancellationMessage()
		return nil
	}

	n, err := store.Clear()
	if err != nil {
		return err
	}
	if jsonMode {
		return NewJSONResponse("history clear", map[string]int{"removed": n}).Write(out)
	}
	fmt.Fprintf(out, "%s Removed %d transcript(s)\n", SuccessStyle.Render("[OK]"), n)
	return nil
}

func loadTranscriptArg(store *storage.TranscriptStore, p *ArgParser, sub string) (*storage.Transcript, error) {
	id := p.Positional(1)
	if id == "" {
		return nil, ErrMissingArgument("transcript ID", "rigrun-stream history "+sub+" ID")
	}
	return store.Load(id)
}
