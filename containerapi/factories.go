package containerapi

import (
	"github.com/cgmgr/cgmgr/internal/cgroupfs"
	"github.com/cgmgr/cgmgr/internal/kernelops"
	"github.com/cgmgr/cgmgr/internal/resources"
	"github.com/cgmgr/cgmgr/internal/resources/blkio"
	"github.com/cgmgr/cgmgr/internal/resources/cpu"
	"github.com/cgmgr/cgmgr/internal/resources/device"
	"github.com/cgmgr/cgmgr/internal/resources/memory"
	"github.com/cgmgr/cgmgr/internal/resources/net"
	"github.com/cgmgr/cgmgr/internal/resources/perfevent"
)

// These thin wrappers exist only so InitMachine can register every resource
// factory with the same resources.Registry signature; each variant package
// already implements resources.Factory directly.

func cpuFactory(cgroups *cgroupfs.Factory, ops kernelops.Ops) resources.Factory {
	return cpu.NewFactory(cgroups, ops)
}

func memoryFactory(cgroups *cgroupfs.Factory, notifier cgroupfs.Notifier, ops kernelops.Ops) resources.Factory {
	return memory.NewFactory(cgroups, notifier, ops)
}

func blkioFactory(cgroups *cgroupfs.Factory, ops kernelops.Ops) resources.Factory {
	return blkio.NewFactory(cgroups, ops)
}

func netFactory(cgroups *cgroupfs.Factory, ops kernelops.Ops) resources.Factory {
	return net.NewFactory(cgroups, ops)
}

func perfEventFactory(cgroups *cgroupfs.Factory, ops kernelops.Ops) resources.Factory {
	return perfevent.NewFactory(cgroups, ops)
}

func deviceFactory(cgroups *cgroupfs.Factory, ops kernelops.Ops) resources.Factory {
	return device.NewFactory(cgroups, ops)
}
