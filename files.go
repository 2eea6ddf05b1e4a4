package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/alipan-go/internal/provider"
	"github.com/tonimelisma/alipan-go/internal/rangeread"
)

// getChunkSize is the extent of each parallel range request in get.
const getChunkSize = 8 << 20

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [target]",
		Short: "List a folder, or the drive roots when no target is given",
		Long: `List the children of a folder. A target is either a path on one of
the drives, written "backup:/Photos/2024" or "resource:docs", or a
document id as printed by ls --json.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runLs,
	}
}

func newStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <target>",
		Short: "Display file or folder metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  runStat,
	}
}

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <target> [local-path]",
		Short: "Download a file, or a byte range of it",
		Long: `Download a file. The file is fetched as parallel range requests into
<local-path>.partial, which is renamed into place once complete. A local
path of "-" writes to standard output.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runGet,
	}

	cmd.Flags().Int64("offset", 0, "first byte to download")
	cmd.Flags().Int64("length", 0, "number of bytes to download (0 = to the end)")

	return cmd
}

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <local-path> [folder]",
		Short: "Upload a file into a folder (default: the backup drive root)",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runPut,
	}

	cmd.Flags().String("name", "", "remote name (default: the local file name)")

	return cmd
}

func newRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <target>",
		Short: "Move a file or folder to the recycle bin",
		Args:  cobra.ExactArgs(1),
		RunE:  runRm,
	}

	cmd.Flags().BoolP("recursive", "r", false, "confirm deletion of a folder and its contents")

	return cmd
}

func newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <backup|resource> <query>",
		Short: "Find entries whose name matches query",
		Args:  cobra.ExactArgs(2),
		RunE:  runSearch,
	}
}

// resolveTarget turns a command-line target into a document id. Paths of
// the form "<root>:<path>" are walked one folder listing at a time; anything
// else is taken as a document id.
func resolveTarget(ctx context.Context, p *provider.Provider, target string) (string, error) {
	root, rest, ok := strings.Cut(target, ":")
	if !ok || (root != provider.RootBackup && root != provider.RootResource) {
		return target, nil
	}

	drives, err := p.ResolveDrives(ctx)
	if err != nil {
		return "", err
	}

	id := drives.Backup
	if root == provider.RootResource {
		id = drives.Resource
	}

	for _, name := range strings.Split(strings.Trim(rest, "/"), "/") {
		if name == "" {
			continue
		}

		listing, err := p.Fetch(ctx, id)
		if err != nil {
			return "", err
		}

		next := ""

		for i := range listing.Documents {
			if listing.Documents[i].Name == name {
				next = listing.Documents[i].ID

				break
			}
		}

		if next == "" {
			return "", fmt.Errorf("%q: %w", target, provider.ErrNotFound)
		}

		id = next
	}

	return id, nil
}

func runLs(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return runDrives(cmd, args)
	}

	ctx := cmd.Context()

	return withApp(ctx, func(a *app) error {
		id, err := resolveTarget(ctx, a.provider, args[0])
		if err != nil {
			return err
		}

		a.logger.Debug("ls", slog.String("document_id", id))

		listing, err := a.provider.Fetch(ctx, id)
		if err != nil {
			return fmt.Errorf("listing %q: %w", args[0], err)
		}

		docs := listing.Documents
		sortDocuments(docs)

		if flagJSON {
			return printJSON(cmd.OutOrStdout(), docs)
		}

		printDocuments(cmd.OutOrStdout(), docs)

		return nil
	})
}

// sortDocuments orders folders first, then by name.
func sortDocuments(docs []provider.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].IsDir() != docs[j].IsDir() {
			return docs[i].IsDir()
		}

		return docs[i].Name < docs[j].Name
	})
}

func printDocuments(w io.Writer, docs []provider.Document) {
	rows := make([][]string, 0, len(docs))

	for i := range docs {
		name, size := docs[i].Name, formatSize(docs[i].Size)
		if docs[i].IsDir() {
			name += "/"
			size = "-"
		}

		rows = append(rows, []string{name, size, formatTime(docs[i].LastModified), docs[i].ID})
	}

	printTable(w, []string{"NAME", "SIZE", "MODIFIED", "ID"}, rows, stdoutIsTerminal())
}

func runStat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	return withApp(ctx, func(a *app) error {
		id, err := resolveTarget(ctx, a.provider, args[0])
		if err != nil {
			return err
		}

		doc, err := a.provider.Stat(ctx, id)
		if err != nil {
			return err
		}

		if flagJSON {
			return printJSON(cmd.OutOrStdout(), doc)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Name:      %s\n", doc.Name)
		fmt.Fprintf(w, "ID:        %s\n", doc.ID)
		fmt.Fprintf(w, "Parent:    %s\n", doc.ParentID)
		fmt.Fprintf(w, "Type:      %s\n", doc.MimeType)

		if !doc.IsDir() {
			fmt.Fprintf(w, "Size:      %s (%d bytes)\n", formatSize(doc.Size), doc.Size)
		}

		fmt.Fprintf(w, "Modified:  %s\n", formatTime(doc.LastModified))
		fmt.Fprintf(w, "Flags:     %s\n", doc.Flags)

		return nil
	})
}

// byteRange clamps offset and length to a file of the given size. A zero
// length means "to the end".
func byteRange(size, offset, length int64) (int64, int64, error) {
	if offset < 0 || length < 0 {
		return 0, 0, errors.New("offset and length must not be negative")
	}

	if offset > size {
		return 0, 0, fmt.Errorf("offset %d is past the end of the file (%d bytes)", offset, size)
	}

	end := size
	if length > 0 && offset+length < size {
		end = offset + length
	}

	return offset, end, nil
}

func runGet(cmd *cobra.Command, args []string) error {
	offset, err := cmd.Flags().GetInt64("offset")
	if err != nil {
		return err
	}

	length, err := cmd.Flags().GetInt64("length")
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	return withApp(ctx, func(a *app) error {
		id, err := resolveTarget(ctx, a.provider, args[0])
		if err != nil {
			return err
		}

		doc, err := a.provider.Stat(ctx, id)
		if err != nil {
			return err
		}

		if doc.IsDir() {
			return fmt.Errorf("%q is a folder, not a file", args[0])
		}

		h, err := a.provider.OpenRead(ctx, id)
		if err != nil {
			return err
		}
		defer h.Close()

		start, end, err := byteRange(h.Size(), offset, length)
		if err != nil {
			return err
		}

		localPath := doc.Name
		if len(args) > 1 {
			localPath = args[1]
		}

		if localPath == "-" {
			return copyRange(ctx, cmd.OutOrStdout(), h, start, end)
		}

		partialPath := localPath + ".partial"

		if err := downloadRanges(ctx, h, partialPath, start, end, a.cfg.Transfers.Workers); err != nil {
			os.Remove(partialPath)

			return err
		}

		if err := os.Rename(partialPath, localPath); err != nil {
			return fmt.Errorf("renaming download to %q: %w", localPath, err)
		}

		a.logger.Debug("download complete", slog.String("local_path", localPath), slog.Int64("bytes", end-start))
		statusf("Downloaded %s (%s)\n", localPath, formatSize(end-start))

		return nil
	})
}

// copyRange streams [start, end) of h to w in order.
func copyRange(ctx context.Context, w io.Writer, h *rangeread.Handle, start, end int64) error {
	_, err := io.Copy(w, io.NewSectionReader(h.ReaderAt(ctx), start, end-start))

	return err
}

// downloadRanges fetches [start, end) of h into path as parallel chunked
// range requests, at most workers at a time.
func downloadRanges(ctx context.Context, h *rangeread.Handle, path string, start, end int64, workers int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %q: %w", path, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))

	for off := start; off < end; off += getChunkSize {
		n := min(int64(getChunkSize), end-off)

		g.Go(func() error {
			buf := make([]byte, n)

			got, err := h.ReadRange(gctx, buf, off)
			if err != nil {
				return err
			}

			if int64(got) != n {
				return fmt.Errorf("%w: short read at offset %d: %d of %d bytes", rangeread.ErrDownloadFailed, off, got, n)
			}

			if _, err := f.WriteAt(buf, off-start); err != nil {
				return fmt.Errorf("writing %q: %w", path, err)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		f.Close()

		return err
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %q: %w", path, err)
	}

	return nil
}

func runPut(cmd *cobra.Command, args []string) error {
	localPath := args[0]

	name, err := cmd.Flags().GetString("name")
	if err != nil {
		return err
	}

	if name == "" {
		name = filepath.Base(localPath)
	}

	folder := provider.RootBackup + ":"
	if len(args) > 1 {
		folder = args[1]
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening %q: %w", localPath, err)
	}
	defer f.Close()

	ctx := cmd.Context()

	return withApp(ctx, func(a *app) error {
		dirID, err := resolveTarget(ctx, a.provider, folder)
		if err != nil {
			return err
		}

		id, err := a.provider.Create(ctx, dirID, name)
		if err != nil {
			return err
		}

		w, err := a.provider.OpenWrite(id)
		if err != nil {
			return err
		}

		n, copyErr := io.Copy(w, f)
		if copyErr != nil {
			w.Abort(copyErr)
		}

		if err := w.CloseWrite(); err != nil {
			return err
		}

		if err := w.Wait(ctx); err != nil {
			return err
		}

		if copyErr != nil {
			return fmt.Errorf("reading %q: %w", localPath, copyErr)
		}

		a.logger.Debug("upload complete", slog.String("document_id", id), slog.Int64("bytes", n))
		statusf("Uploaded %s (%s)\n", name, formatSize(n))

		if flagJSON {
			return printJSON(cmd.OutOrStdout(), map[string]string{"id": id})
		}

		return nil
	})
}

func runRm(cmd *cobra.Command, args []string) error {
	recursive, err := cmd.Flags().GetBool("recursive")
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	return withApp(ctx, func(a *app) error {
		id, err := resolveTarget(ctx, a.provider, args[0])
		if err != nil {
			return err
		}

		doc, err := a.provider.Stat(ctx, id)
		if err != nil {
			return err
		}

		if !doc.Flags.Has(provider.FlagSupportsDelete) {
			return fmt.Errorf("%q cannot be deleted", args[0])
		}

		if doc.IsDir() && !recursive {
			return fmt.Errorf("%q is a folder; use -r to delete it and its contents", args[0])
		}

		if err := a.provider.Delete(ctx, id); err != nil {
			return err
		}

		statusf("Moved %s to the recycle bin.\n", doc.Name)

		return nil
	})
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	return withApp(ctx, func(a *app) error {
		docs, err := a.provider.Search(ctx, args[0], args[1])
		if err != nil {
			return err
		}

		if flagJSON {
			return printJSON(cmd.OutOrStdout(), docs)
		}

		printDocuments(cmd.OutOrStdout(), docs)

		return nil
	})
}
