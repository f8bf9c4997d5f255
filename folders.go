package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <name> [parent]",
		Short: "Create a folder",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runMkdir,
	}
}

func newRmdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rmdir <folder>",
		Short: "Delete a folder",
		Args:  cobra.ExactArgs(1),
		RunE:  runRmdir,
	}
}

func runMkdir(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	name := cleanRemotePath(args[0])

	parent := ""
	if len(args) > 1 {
		parent = cleanRemotePath(args[1])
	}

	if name == "" {
		return fmt.Errorf("folder name must not be empty")
	}

	cc.Logger.Debug("mkdir", slog.String("name", name), slog.String("parent", parent))

	folder, err := cc.Client.CreateFolder(cmd.Context(), name, parent)
	if err != nil {
		return fmt.Errorf("creating folder %q: %w", name, err)
	}

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, folder)
	}

	cc.Statusf("Created folder %s in %s\n", folder.Name, displayFolder(folder.Path))

	return nil
}

func runRmdir(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	folder := cleanRemotePath(args[0])

	if folder == "" {
		return fmt.Errorf("refusing to delete the root folder")
	}

	if err := cc.Client.DeleteFolder(cmd.Context(), folder); err != nil {
		return fmt.Errorf("deleting folder %q: %w", folder, err)
	}

	cc.Statusf("Deleted folder %s\n", folder)

	return nil
}
