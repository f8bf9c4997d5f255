package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/filevault-go/internal/credstore"
)

var validThemes = map[string]bool{"light": true, "dark": true, "system": true}

func newThemeCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "theme [light|dark|system]",
		Short:     "Show or set the theme preference",
		Long:      "The theme preference is kept with the saved credentials but survives logout.",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"light", "dark", "system"},
		RunE:      runTheme,
	}
}

func runTheme(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	if len(args) == 0 {
		theme, ok := cc.Store.Get(ctx, credstore.KeyThemePreference)
		if !ok || theme == "" {
			theme = cc.Cfg.UI.Theme
		}

		fmt.Fprintln(cc.Stdout, theme)

		return nil
	}

	theme := args[0]
	if !validThemes[theme] {
		return fmt.Errorf("unknown theme %q: must be light, dark or system", theme)
	}

	if err := cc.Store.Set(ctx, credstore.KeyThemePreference, theme); err != nil {
		return fmt.Errorf("saving theme: %w", err)
	}

	cc.Statusf("Theme set to %s.\n", theme)

	return nil
}
