package netdiag

import "fmt"

// TroubleshootingTips lists what to check when baseURL cannot be reached
// from target.
func TroubleshootingTips(target Target, baseURL string) []string {
	tips := []string{
		"Make sure the backend server is running",
		fmt.Sprintf("Verify the server is accessible at: %s", baseURL),
		"Check your firewall settings",
	}

	if target.Mode == ModeRelease {
		return append(tips, "Check that this device has internet access")
	}

	tips = append(tips, "Ensure your device/emulator and computer are on the same network")

	switch target.Platform {
	case PlatformAndroid:
		if target.Device == DevicePhysical {
			tips = append(tips, "For Android devices: set api.dev_host to your computer's LAN address")
		} else {
			tips = append(tips, "For the Android emulator: use 10.0.2.2 instead of localhost")
		}
	case PlatformIOS:
		if target.Device == DevicePhysical {
			tips = append(tips, "For iOS devices: set api.dev_host to your computer's actual IP address")
		} else {
			tips = append(tips, "For the iOS simulator: localhost reaches your computer directly")
		}
	}

	return tips
}
