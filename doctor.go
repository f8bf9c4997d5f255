package main

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/filevault-go/internal/config"
	"github.com/tonimelisma/filevault-go/internal/metrics"
	"github.com/tonimelisma/filevault-go/internal/netdiag"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose connectivity and the saved session",
		Long: `Show which server URL is in use, probe it, and inspect the saved session.
When the server cannot be reached, platform-specific troubleshooting tips
are printed. Validating the session may renew or clear it.`,
		Args: cobra.NoArgs,
		RunE: runDoctor,
	}

	cmd.Flags().Bool("metrics", false, "print request metrics collected during the checks")
	cmd.Flags().Bool("show-config", false, "print the effective configuration")

	return cmd
}

// doctorReport is the JSON schema for `doctor --json`.
type doctorReport struct {
	Platform string               `json:"platform"`
	Device   string               `json:"device"`
	Mode     string               `json:"mode"`
	BaseURL  string               `json:"base_url,omitempty"`
	URLError string               `json:"url_error,omitempty"`
	Probe    *netdiag.ProbeResult `json:"probe,omitempty"`
	Tips     []string             `json:"tips,omitempty"`
	Auth     *netdiag.AuthReport  `json:"auth,omitempty"`
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	showMetrics, err := cmd.Flags().GetBool("metrics")
	if err != nil {
		return err
	}

	showConfig, err := cmd.Flags().GetBool("show-config")
	if err != nil {
		return err
	}

	report := doctorReport{
		Platform: cc.Target.Platform,
		Device:   cc.Target.Device,
		Mode:     cc.Target.Mode,
		BaseURL:  cc.BaseURL,
	}

	var unreachable error

	if cc.URLErr != nil {
		report.URLError = cc.URLErr.Error()
		unreachable = cc.URLErr
	} else {
		prober := netdiag.NewProber(&http.Client{}, cc.Cfg.Network.ProbeTimeoutDuration(), cc.Logger)
		probe := prober.Probe(ctx, cc.BaseURL)
		report.Probe = &probe

		if !probe.Reachable {
			report.Tips = netdiag.TroubleshootingTips(cc.Target, cc.BaseURL)
			unreachable = fmt.Errorf("server unreachable at %s", cc.BaseURL)
		}

		// A session check against an unreachable server only adds noise.
		var validator netdiag.Validator
		if probe.Reachable {
			validator = cc.Client
		}

		auth := netdiag.DebugAuth(ctx, cc.Store, validator, cc.Logger)
		report.Auth = &auth
	}

	if cc.Flags.JSON {
		if err := printJSON(cc.Stdout, report); err != nil {
			return err
		}
	} else {
		printDoctorText(cc.Stdout, &report)
	}

	if showConfig {
		if err := config.RenderEffective(cc.Cfg, cc.Stdout); err != nil {
			return fmt.Errorf("rendering config: %w", err)
		}
	}

	if showMetrics {
		if err := metrics.WriteText(cc.Stdout, cc.Registry); err != nil {
			return err
		}
	}

	return unreachable
}

func printDoctorText(w io.Writer, r *doctorReport) {
	fmt.Fprintf(w, "Target:   %s/%s (%s)\n", r.Platform, r.Device, r.Mode)

	if r.URLError != "" {
		fmt.Fprintf(w, "API URL:  unresolved: %s\n", r.URLError)
		return
	}

	fmt.Fprintf(w, "API URL:  %s\n", r.BaseURL)

	if p := r.Probe; p != nil {
		if p.Reachable {
			fmt.Fprintf(w, "Server:   reachable (HTTP %d, %s)\n", p.Status, p.Latency.Round(time.Millisecond))
		} else {
			fmt.Fprintf(w, "Server:   unreachable: %s\n", p.Error)
		}
	}

	if len(r.Tips) > 0 {
		fmt.Fprintln(w, "\nTroubleshooting:")

		for _, tip := range r.Tips {
			fmt.Fprintf(w, "  - %s\n", tip)
		}
	}

	if a := r.Auth; a != nil {
		fmt.Fprintln(w, "\nSession:")
		fmt.Fprintf(w, "  Token:         %t (%d chars, %s)\n", a.HasToken, a.TokenLength, a.TokenPreview)
		fmt.Fprintf(w, "  Refresh token: %t\n", a.HasRefreshToken)
		fmt.Fprintf(w, "  Cached user:   %t\n", a.HasUser)

		if a.Token != nil && a.Token.ExpiresAt != nil {
			fmt.Fprintf(w, "  Expires:       %s (expired: %t)\n", a.Token.ExpiresAt.Format(time.RFC3339), a.Token.Expired)
		}

		if a.HasToken && a.Error == "" && a.Valid {
			fmt.Fprintf(w, "  Valid:         true (%s)\n", a.User.Username)
		} else if a.Error != "" {
			fmt.Fprintf(w, "  Valid:         false: %s\n", a.Error)
		}

		for _, rec := range a.Recommendations {
			fmt.Fprintf(w, "  -> %s\n", rec)
		}
	}

	fmt.Fprintln(w)
}
