// mock-firewall asks for connection decisions the way the firewall daemon
// does, for trying out a running fw-prompt.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nikicat/fw-prompt/internal/cli"
	"github.com/nikicat/fw-prompt/internal/daemon"
)

func main() {
	var (
		bus     = flag.String("bus", daemon.BusSystem, "Bus to call: system, session or a D-Bus address")
		app     = flag.String("app", "", "Application name (default: the sample request's)")
		address = flag.String("address", "", "Destination host")
		port    = flag.Int("port", 0, "Destination port")
		proto   = flag.String("proto", "", "Protocol: tcp, udp, icmp or icmpv6")
		pid     = flag.Int("pid", 0, "Process ID, -1 when unknown")
		count   = flag.Int("count", 1, "Number of concurrent requests")
	)
	flag.Parse()

	client, err := cli.DialBus(*bus)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	for i := range *count {
		req := daemon.SampleRequest()
		if *app != "" {
			req.Application = *app
		}
		if *address != "" {
			req.Address = *address
		}
		if *port != 0 {
			req.Port = int32(*port)
		}
		if *proto != "" {
			req.Proto = *proto
		}
		if *pid != 0 {
			req.PID = int32(*pid)
		}

		wg.Go(func() {
			res, err := client.RequestPrompt(ctx, req)
			if err != nil {
				fmt.Fprintf(os.Stderr, "request %d: %v\n", i, err)
				return
			}
			if res.IsAbandoned() {
				fmt.Printf("request %d: abandoned\n", i)
				return
			}
			fmt.Printf("request %d: %s %s\n", i, res.Scope, res.Rule)
		})
	}
	wg.Wait()
}
