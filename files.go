package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/filevault-go/internal/api"
)

func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls [folder]",
		Short: "List files and folders",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLs,
	}

	cmd.Flags().Bool("folders", false, "list only subfolders")

	return cmd
}

func newPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <local-file> [folder]",
		Short: "Upload a file",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runPut,
	}
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key> [local-path]",
		Short: "Download a file",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runGet,
	}
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <key>",
		Short: "Delete a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runRm,
	}
}

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <key|folder>",
		Short: "Display file or folder metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  runInfo,
	}

	cmd.Flags().Bool("folder", false, "treat the argument as a folder path")

	return cmd
}

func newShareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "share <file-id>",
		Short: "Create a public link to a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runShare,
	}
}

func newSharesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shares",
		Short: "List the files you have shared",
		Args:  cobra.NoArgs,
		RunE:  runShares,
	}
}

// cleanRemotePath strips leading/trailing slashes, returns "" for root.
func cleanRemotePath(p string) string {
	return strings.Trim(p, "/")
}

func runLs(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	folder := ""
	if len(args) > 0 {
		folder = cleanRemotePath(args[0])
	}

	onlyFolders, err := cmd.Flags().GetBool("folders")
	if err != nil {
		return err
	}

	cc.Logger.Debug("ls", slog.String("folder", folder), slog.Bool("folders_only", onlyFolders))

	var listing api.Listing

	if onlyFolders {
		folders, listErr := cc.Client.ListFolders(cmd.Context(), folder)
		if listErr != nil {
			return fmt.Errorf("listing folders in %q: %w", displayFolder(folder), listErr)
		}

		listing.Folders = folders
	} else {
		l, listErr := cc.Client.ListFiles(cmd.Context(), folder)
		if listErr != nil {
			return fmt.Errorf("listing %q: %w", displayFolder(folder), listErr)
		}

		listing = *l
	}

	if cc.Flags.JSON {
		return printListingJSON(cc.Stdout, &listing)
	}

	printListingTable(cc.Stdout, &listing)

	return nil
}

func displayFolder(folder string) string {
	if folder == "" {
		return "/"
	}

	return folder
}

// lsJSONItem is the JSON output schema for a single entry in ls output.
type lsJSONItem struct {
	Name       string `json:"name"`
	Key        string `json:"key,omitempty"`
	ID         string `json:"id"`
	Size       int64  `json:"size"`
	IsFolder   bool   `json:"is_folder"`
	UploadedAt string `json:"uploaded_at,omitempty"`
}

func printListingJSON(w io.Writer, l *api.Listing) error {
	out := make([]lsJSONItem, 0, len(l.Folders)+len(l.Files))

	for i := range l.Folders {
		out = append(out, lsJSONItem{Name: l.Folders[i].Name, ID: l.Folders[i].ID.String(), IsFolder: true})
	}

	for i := range l.Files {
		f := &l.Files[i]
		item := lsJSONItem{Name: f.DisplayName(), Key: f.Key(), ID: f.ID.String(), Size: f.Size}

		if !f.UploadedAt.IsZero() {
			item.UploadedAt = f.UploadedAt.UTC().Format("2006-01-02T15:04:05Z")
		}

		out = append(out, item)
	}

	return printJSON(w, out)
}

func printListingTable(w io.Writer, l *api.Listing) {
	sort.Slice(l.Folders, func(i, j int) bool { return l.Folders[i].Name < l.Folders[j].Name })
	sort.Slice(l.Files, func(i, j int) bool { return l.Files[i].DisplayName() < l.Files[j].DisplayName() })

	headers := []string{"NAME", "SIZE", "UPLOADED", "KEY"}
	rows := make([][]string, 0, len(l.Folders)+len(l.Files))
	now := time.Now()

	for i := range l.Folders {
		rows = append(rows, []string{l.Folders[i].Name + "/", "-", "", ""})
	}

	for i := range l.Files {
		f := &l.Files[i]

		rows = append(rows, []string{f.DisplayName(), formatSize(f.Size), formatUploaded(f.UploadedAt, now), f.Key()})
	}

	printTable(w, headers, rows)
}

func runPut(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	localPath := args[0]

	folder := ""
	if len(args) > 1 {
		folder = cleanRemotePath(args[1])
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening %q: %w", localPath, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %q: %w", localPath, err)
	}

	if fi.IsDir() {
		return fmt.Errorf("%q is a directory, not a file", localPath)
	}

	name := filepath.Base(localPath)

	var progress api.ProgressFunc
	if !cc.Flags.Quiet && isTerminal(cc.Stderr) {
		progress = func(percent int) {
			fmt.Fprintf(cc.Stderr, "\rUploading %s  %3d%%", name, percent)
		}
	}

	files, err := cc.Client.UploadFile(cmd.Context(), api.UploadRequest{
		Name:        name,
		Content:     f,
		Size:        fi.Size(),
		FolderPath:  folder,
		ContentType: mime.TypeByExtension(filepath.Ext(name)),
	}, progress)

	if progress != nil {
		fmt.Fprintln(cc.Stderr)
	}

	if err != nil {
		return fmt.Errorf("uploading %q: %w", localPath, err)
	}

	if cc.Flags.JSON {
		return printListingJSON(cc.Stdout, &api.Listing{Files: files})
	}

	for i := range files {
		cc.Statusf("Uploaded %s (%s) as %s\n", files[i].DisplayName(), formatSize(files[i].Size), files[i].Key())
	}

	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	key := cleanRemotePath(args[0])

	localPath := path.Base(key)
	if len(args) > 1 {
		localPath = args[1]
	}

	cc.Logger.Debug("get", slog.String("key", key), slog.String("local_path", localPath))

	url, err := cc.Client.DownloadURL(cmd.Context(), key)
	if err != nil {
		return fmt.Errorf("resolving download for %q: %w", key, err)
	}

	n, err := downloadTo(cmd, cc, url, localPath)
	if err != nil {
		return err
	}

	cc.Statusf("Downloaded %s (%s)\n", localPath, formatSize(n))

	return nil
}

// downloadTo streams url into localPath through a .partial file that is
// renamed into place only once the transfer completes.
func downloadTo(cmd *cobra.Command, cc *CLIContext, url, localPath string) (int64, error) {
	partialPath := localPath + ".partial"

	f, err := os.Create(partialPath)
	if err != nil {
		return 0, fmt.Errorf("creating %q: %w", partialPath, err)
	}

	release := trackCleanup(cmd.Context(), func() {
		if err := os.Remove(partialPath); err != nil && !os.IsNotExist(err) {
			cc.Logger.Warn("removing partial download failed", slog.String("error", err.Error()))
		}
	})
	defer release()

	n, dlErr := cc.Client.Download(cmd.Context(), url, f)
	closeErr := f.Close()

	if err := errors.Join(dlErr, closeErr); err != nil {
		if rmErr := os.Remove(partialPath); rmErr != nil {
			cc.Logger.Warn("removing partial download failed", slog.String("error", rmErr.Error()))
		}

		return 0, fmt.Errorf("downloading %q: %w", localPath, err)
	}

	if err := os.Rename(partialPath, localPath); err != nil {
		return 0, fmt.Errorf("renaming download to %q: %w", localPath, err)
	}

	return n, nil
}

func runRm(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	key := cleanRemotePath(args[0])

	if err := cc.Client.DeleteFile(cmd.Context(), key); err != nil {
		return fmt.Errorf("deleting %q: %w", key, err)
	}

	cc.Statusf("Deleted %s\n", key)

	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	target := cleanRemotePath(args[0])

	isFolder, err := cmd.Flags().GetBool("folder")
	if err != nil {
		return err
	}

	if isFolder {
		folder, infoErr := cc.Client.FolderInfo(cmd.Context(), target)
		if infoErr != nil {
			return fmt.Errorf("folder info for %q: %w", target, infoErr)
		}

		if cc.Flags.JSON {
			return printJSON(cc.Stdout, folder)
		}

		fmt.Fprintf(cc.Stdout, "Name:  %s\n", folder.Name)
		fmt.Fprintf(cc.Stdout, "Path:  %s\n", displayFolder(folder.Path))
		fmt.Fprintf(cc.Stdout, "ID:    %s\n", folder.ID)

		return nil
	}

	file, err := cc.Client.FileInfo(cmd.Context(), target)
	if err != nil {
		return fmt.Errorf("file info for %q: %w", target, err)
	}

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, file)
	}

	fmt.Fprintf(cc.Stdout, "Name:     %s\n", file.DisplayName())
	fmt.Fprintf(cc.Stdout, "Key:      %s\n", file.Key())
	fmt.Fprintf(cc.Stdout, "ID:       %s\n", file.ID)
	fmt.Fprintf(cc.Stdout, "Size:     %s (%d bytes)\n", formatSize(file.Size), file.Size)
	fmt.Fprintf(cc.Stdout, "Type:     %s\n", file.MimeType)
	fmt.Fprintf(cc.Stdout, "Folder:   %s\n", displayFolder(file.FolderPath))

	if !file.UploadedAt.IsZero() {
		fmt.Fprintf(cc.Stdout, "Uploaded: %s\n", file.UploadedAt.Format("2006-01-02 15:04:05"))
	}

	return nil
}

func runShare(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	share, err := cc.Client.ShareFile(cmd.Context(), api.ID(args[0]))
	if err != nil {
		return fmt.Errorf("sharing file %s: %w", args[0], err)
	}

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, share)
	}

	fmt.Fprintln(cc.Stdout, share.URL)

	return nil
}

func runShares(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	shares, err := cc.Client.SharedFiles(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing shares: %w", err)
	}

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, shares)
	}

	headers := []string{"FILE", "URL", "ACCESSES", "EXPIRES"}
	rows := make([][]string, 0, len(shares))
	now := time.Now()

	for i := range shares {
		s := &shares[i]

		name := s.ID.String()
		if s.File != nil {
			name = s.File.DisplayName()
		}

		rows = append(rows, []string{name, s.URL, strconv.Itoa(s.AccessCount), formatExpiry(s.ExpiresAt, now)})
	}

	printTable(cc.Stdout, headers, rows)

	return nil
}
