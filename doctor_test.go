package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/filevault-go/internal/netdiag"
)

func TestDoctor_ReachableWithSession(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	stdout, _ := h.mustRun(t, "--json", "doctor")

	var report doctorReport
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))

	assert.Equal(t, h.srv.APIURL(), report.BaseURL)
	require.NotNil(t, report.Probe)
	assert.True(t, report.Probe.Reachable)
	assert.Empty(t, report.Tips)

	require.NotNil(t, report.Auth)
	assert.True(t, report.Auth.HasToken)
	assert.True(t, report.Auth.HasRefreshToken)
	assert.True(t, report.Auth.Valid)
	require.NotNil(t, report.Auth.Token)
	assert.NotNil(t, report.Auth.Token.ExpiresAt)
	assert.False(t, report.Auth.Token.Expired)
}

func TestDoctor_TextWithoutSession(t *testing.T) {
	h := newHarness(t)

	stdout, _ := h.mustRun(t, "doctor")

	assert.Contains(t, stdout, "API URL:  "+h.srv.APIURL())
	assert.Contains(t, stdout, "Server:   reachable (HTTP 200")
	assert.Contains(t, stdout, "Token:         false")
}

func TestDoctor_Unreachable(t *testing.T) {
	h := newHarnessFor(t, nil, "http://127.0.0.1:1/api")

	stdout, _, err := h.run(t, "", "doctor")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server unreachable at http://127.0.0.1:1/api")

	assert.Contains(t, stdout, "Server:   unreachable")
	assert.Contains(t, stdout, "Troubleshooting:")
}

func TestDoctor_UnresolvedURL(t *testing.T) {
	h := newHarnessFor(t, nil, "")
	t.Setenv("FILEVAULT_MODE", netdiag.ModeRelease)

	stdout, _, err := h.run(t, "", "doctor")
	require.ErrorIs(t, err, netdiag.ErrProductionURLRequired)
	assert.Contains(t, stdout, "API URL:  unresolved")

	// Other commands refuse to run without a URL.
	_, _, err = h.run(t, "", "whoami")
	require.ErrorIs(t, err, netdiag.ErrProductionURLRequired)
}

func TestDoctor_ShowConfigAndMetrics(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	stdout, _ := h.mustRun(t, "doctor", "--show-config", "--metrics")

	assert.Contains(t, stdout, "[api]")
	assert.Contains(t, stdout, "[storage]")
	assert.Contains(t, stdout, "filevault_http_requests_total")
}

func TestPrintDoctorText_Tips(t *testing.T) {
	var buf bytes.Buffer

	printDoctorText(&buf, &doctorReport{
		Platform: netdiag.PlatformAndroid,
		Device:   netdiag.DeviceEmulator,
		Mode:     netdiag.ModeDevelopment,
		BaseURL:  "http://10.0.2.2:3001/api",
		Probe:    &netdiag.ProbeResult{Error: "connection refused"},
		Tips:     []string{"first tip"},
	})

	out := buf.String()
	assert.Contains(t, out, "Target:   android/emulator (development)")
	assert.Contains(t, out, "Server:   unreachable: connection refused")
	assert.Contains(t, out, "  - first tip")
}

func TestTheme_DefaultSetAndSurvivesLogout(t *testing.T) {
	h := newHarness(t)

	stdout, _ := h.mustRun(t, "theme")
	assert.Equal(t, "system\n", stdout)

	_, stderr := h.mustRun(t, "theme", "dark")
	assert.Contains(t, stderr, "Theme set to dark.")

	h.login(t)
	h.mustRun(t, "logout")

	stdout, _ = h.mustRun(t, "theme")
	assert.Equal(t, "dark\n", stdout)

	_, _, err := h.run(t, "", "theme", "neon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown theme")
}
