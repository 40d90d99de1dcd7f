// Command ocallgwdemo runs a minimal enclave-side loop against hostsim,
// the in-process untrusted host, to exercise the OCALL Gateway without
// real SGX hardware. Grounded on example/hello-world/src/main.go's shape
// (an untrusted goroutine and a "trusted" one printing a greeting), here
// adapted to drive file and timing OCALLs instead of a gosecure call.
package main

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/sirupsen/logrus"

	"github.com/epfl-dcsl/ocallgw/boundary"
	"github.com/epfl-dcsl/ocallgw/erq"
	"github.com/epfl-dcsl/ocallgw/hostsim"
	"github.com/epfl-dcsl/ocallgw/ocall"
	"github.com/epfl-dcsl/ocallgw/ustack"
)

func sliceAddr(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

func main() {
	log := logrus.StandardLogger()
	log.SetLevel(logrus.InfoLevel)

	// "Enclave" memory: in the absence of real EPC pages, a heap-allocated
	// buffer this process owns plays the trusted region.
	enclaveMem := make([]byte, 4<<20)
	enclaveRegion := boundary.Region{Base: sliceAddr(enclaveMem), Size: uintptr(len(enclaveMem))}
	// The host region is deliberately oversized: in production it is
	// every address the enclave's own EPC range does not cover. A demo
	// binary has no separate untrusted address space to carve out, so it
	// treats everything outside enclaveRegion as host memory.
	hostRegion := boundary.Region{Base: 0, Size: 1 << 62}
	checker := boundary.New(enclaveRegion, hostRegion)

	stackMem := make([]byte, 1<<20)
	untrustedStack := ustack.NewFromSlice(stackMem)

	host := hostsim.New(log)
	waiter := hostsim.FutexWaiter{}

	queue := erq.New(64)
	var cell erq.Cell
	cell.Set(queue)

	pool := hostsim.StartWorkerPool(host, queue, waiter, 2, log)
	defer func() {
		if err := pool.Stop(); err != nil {
			log.WithError(err).Warn("worker pool stop returned an error")
		}
	}()

	gw := ocall.NewGateway(untrustedStack, checker, &cell, host, waiter,
		ocall.WithLogger(log))

	path := fmt.Sprintf("%s/ocallgwdemo-%d.txt", os.TempDir(), os.Getpid())
	defer os.Remove(path)

	fd, err := gw.Open(path, int32(os.O_RDWR|os.O_CREATE|os.O_TRUNC), 0o600)
	if err != nil {
		log.WithError(err).Fatal("open ocall failed")
	}
	if fd < 0 {
		log.WithField("ret", fd).Fatal("open ocall returned an error")
	}
	log.WithField("fd", fd).Info("opened file through the gateway")

	payload := []byte("hello from the enclave side\n")
	n, err := gw.Write(fd, sliceAddr(payload), uint32(len(payload)))
	if err != nil {
		log.WithError(err).Fatal("write ocall failed")
	}
	log.WithField("bytes", n).Info("wrote through the gateway")

	if ret, err := gw.Close(fd); err != nil || ret < 0 {
		log.WithError(err).WithField("ret", ret).Fatal("close ocall failed")
	}

	microsec, ret, err := gw.Gettime()
	if err != nil || ret < 0 {
		log.WithError(err).WithField("ret", ret).Fatal("gettime ocall failed")
	}
	log.WithField("unix_micros", microsec).Info("read host time through the gateway")

	log.Info("demo complete")
}
