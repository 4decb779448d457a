// Package sysinfo identifies the machine a result was produced on.
package sysinfo

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/klauspost/cpuid/v2"
	"github.com/shirou/gopsutil/v3/host"
)

const unknown = "unknown"

// Info is the environment written at the top of every detection report.
type Info struct {
	Hostname        string
	Platform        string
	PlatformVersion string
	Arch            string
	CPU             string
	LogicalCores    int
}

// Collect gathers host details. Fields that cannot be read are "unknown".
func Collect() Info {
	info := Info{
		Hostname:        unknown,
		Platform:        runtime.GOOS,
		PlatformVersion: unknown,
		Arch:            runtime.GOARCH,
		CPU:             strings.TrimSpace(cpuid.CPU.BrandName),
		LogicalCores:    cpuid.CPU.LogicalCores,
	}
	if info.CPU == "" {
		info.CPU = unknown
	}
	if info.LogicalCores == 0 {
		info.LogicalCores = runtime.NumCPU()
	}

	if h, err := host.Info(); err == nil {
		if h.Hostname != "" {
			info.Hostname = h.Hostname
		}
		if h.Platform != "" {
			info.Platform = h.Platform
		}
		if h.PlatformVersion != "" {
			info.PlatformVersion = h.PlatformVersion
		}
		if h.KernelArch != "" {
			info.Arch = h.KernelArch
		}
	} else if name, err := os.Hostname(); err == nil {
		info.Hostname = name
	}

	return info
}

// String renders the info as a single report line.
func (i Info) String() string {
	return fmt.Sprintf("%s %s %s (%s) %s x%d",
		i.Hostname, i.Platform, i.PlatformVersion, i.Arch, i.CPU, i.LogicalCores)
}

var describe = sync.OnceValue(func() string { return Collect().String() })

// Describe returns the environment line for this process. It is collected once.
func Describe() string {
	return describe()
}
