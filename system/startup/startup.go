package startup

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/greenside/irrigation-controller/internal/config"
)

// WriteBootScript emits a shell script of pinctrl lines that park the
// shift-register chain safe at boot: output-enable held high (outputs
// tristated), control lines low, sensor inputs pulled up. The daemon drops
// output-enable only once it owns the bit image.
func WriteBootScript(path string) error {
	var lines []string
	lines = append(lines, "#!/bin/bash", "", "# Irrigation GPIO pin configuration at boot", "")

	write := func(label string, pin int, opts string) {
		lines = append(lines, fmt.Sprintf("# %s", label))
		lines = append(lines, fmt.Sprintf("pinctrl set %d %s", pin, opts))
		lines = append(lines, "")
	}

	write("output enable (active low, parked off)", config.PinOutputEnable, "op pn dh")
	write("latch", config.PinLatch, "op pn dl")
	write("clock", config.PinClock, "op pn dl")
	write("data", config.PinData, "op pn dl")
	write("sensor 1", config.PinSensor1, "ip pu")
	write("sensor 2", config.PinSensor2, "ip pu")

	contents := strings.Join(lines, "\n") + "\n"
	return os.WriteFile(path, []byte(contents), 0755)
}

// InstallStartupService writes and enables a oneshot systemd unit running
// the boot script before the daemon starts.
func InstallStartupService(scriptPath string) error {
	unitContents := fmt.Sprintf(`[Unit]
Description=Configure irrigation GPIO pins at boot
Before=irrigation-controller.service
After=network.target

[Service]
Type=oneshot
ExecStart=%s

[Install]
WantedBy=multi-user.target
`, scriptPath)

	unitPath := "/etc/systemd/system/irrigation-gpio.service"
	if err := os.WriteFile(unitPath, []byte(unitContents), 0644); err != nil {
		return fmt.Errorf("failed to write systemd unit: %w", err)
	}

	for _, args := range [][]string{
		{"systemctl", "daemon-reload"},
		{"systemctl", "enable", "irrigation-gpio.service"},
	} {
		cmd := exec.Command(args[0], args[1:]...)
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("%s failed: %s (output: %s)", strings.Join(args, " "), err, string(out))
		}
	}
	return nil
}
