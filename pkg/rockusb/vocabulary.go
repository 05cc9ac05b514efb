package rockusb

import "regexp"

// Command vocabulary sent to upgrade_tool. This is the external tool's
// fixed text contract; every byte matters.
const (
	cmdRescan       = "r"
	cmdReturnToRoot = "cd"
)

func uploadLoaderCmd(loaderPath string) string {
	return "ul " + loaderPath + " -noreset"
}

func writeImageCmd(imagePath string) string {
	return "wl 0 " + imagePath
}

// Recognized output patterns. Centralized here so the grammar can be
// tested independently of the session control flow.
var (
	reInitialPrompt = regexp.MustCompile(`Rescan press <R>,Quit press <Q>:`)
	reFoundPrompt   = regexp.MustCompile(`Found (\d+) rockusb,Select input DevNo,Rescan press <R>,Quit press <Q>:`)
	reReadyPrompt   = regexp.MustCompile(`Rockusb>`)
	reProgress      = regexp.MustCompile(`Write LBA from file \((\d+)%\)`)
	reDescriptor    = regexp.MustCompile(`DevNo\s*=\s*(\d+)\D+Vid=0x([0-9A-Fa-f]+),Pid=0x([0-9A-Fa-f]+),LocationID=(\d+)`)
)

// Markers classified out of the text captured before a prompt.
const (
	markerNoDevices  = "No found rockusb"
	markerSelectable = "Select input DevNo"
	markerLoaderOK   = "Upgrade loader ok"
	markerLoaderFail = "Download Boot Fail"
	markerWriteFail  = "Write LBA failed!"
)

// MaskromHint is the remediation guidance attached to loader and write
// failures: the device has to be re-entered into maskrom recovery mode
// before the tool can talk to it again.
const MaskromHint = "if the device is connected, set it in Maskrom mode: https://wiki.radxa.com/Rock3/installusb-install-radxa-cm3-io"
