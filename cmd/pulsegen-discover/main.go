package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rjboer/GoPulse/internal/mdns"
)

func main() {
	timeout := flag.Duration("timeout", 5*time.Second, "How long to browse")
	flag.Parse()

	fmt.Println("===============================================================")
	fmt.Println(" Pulse generator discovery")
	fmt.Println("===============================================================")
	fmt.Printf(" Service : %s.%s\n", mdns.Service, mdns.Domain)
	fmt.Printf(" Timeout : %s\n", *timeout)
	fmt.Println("---------------------------------------------------------------")

	start := time.Now()
	hosts, err := mdns.Discover(context.Background(), *timeout)
	duration := time.Since(start)

	if err != nil {
		fmt.Fprintf(os.Stderr, "Discovery error: %v\n", err)
		os.Exit(1)
	}

	if len(hosts) == 0 {
		fmt.Printf("No generators found (%s)\n", duration.Truncate(time.Millisecond))
		return
	}

	fmt.Printf("Discovered %d generator(s) in %s\n", len(hosts), duration.Truncate(time.Millisecond))
	fmt.Println("===============================================================")

	for i, h := range hosts {
		fmt.Printf(" Generator #%d\n", i+1)
		fmt.Println("---------------------------------------------------------------")
		fmt.Printf(" Instance : %s\n", h.Instance)
		fmt.Printf(" Hostname : %s\n", h.Hostname)
		fmt.Printf(" Port     : %d\n", h.Port)

		fmt.Println(" TXT Records:")
		if len(h.TXT) == 0 {
			fmt.Println("   <none>")
		}
		for _, txt := range h.TXT {
			fmt.Printf("   - %s\n", txt)
		}

		fmt.Println(" Control API:")
		urls := h.URLs()
		if len(urls) == 0 {
			fmt.Println("   <no addresses>")
		}
		for _, u := range urls {
			fmt.Printf("   - %s/api/transmit/status\n", u)
		}
		fmt.Println("===============================================================")
	}
}
