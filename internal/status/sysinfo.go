package status

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/utils"
)

// SysInfo renders the CPU, RAM and disk footer for the filesystem holding
// path. Metrics that cannot be read are left out.
func SysInfo(path string) string {
	if path == "" {
		path = "/"
	}
	var out string

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		out += fmt.Sprintf("\n\n<b>├⚙️ CPU »</b> <i>%.1f%%</i>", pct[0])
	} else if err != nil {
		logutils.Log.WithError(err).Debug("Failed to read CPU usage")
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		out += fmt.Sprintf("\n<b>├💾 RAM »</b> <i>%s / %s (%.1f%%)</i>",
			utils.SizeUnit(float64(vm.Used)), utils.SizeUnit(float64(vm.Total)), vm.UsedPercent)
	} else {
		logutils.Log.WithError(err).Debug("Failed to read memory usage")
	}

	if du, err := disk.Usage(path); err == nil {
		out += fmt.Sprintf("\n<b>╰💿 DISK »</b> <i>%s / %s (%.1f%%)</i>",
			utils.SizeUnit(float64(du.Used)), utils.SizeUnit(float64(du.Total)), du.UsedPercent)
	} else {
		logutils.Log.WithError(err).WithField("path", path).Debug("Failed to read disk usage")
	}
	return out
}
