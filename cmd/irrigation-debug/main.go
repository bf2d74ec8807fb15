package main

import (
	"crypto/md5"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
)

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Small operator CLI that drives a running daemon through its HTTP API.
func main() {
	var host, password, command string
	var station, seconds, hours int
	flag.StringVar(&host, "host", "http://localhost:8080", "Base URL of the controller")
	flag.StringVar(&password, "pw", "", "Controller password (cleartext)")
	flag.StringVar(&command, "cmd", "", "Command to run: status, run, stop, stop-all, rain-delay")
	flag.IntVar(&station, "station", 0, "Station id for run/stop")
	flag.IntVar(&seconds, "t", 60, "Run seconds for run")
	flag.IntVar(&hours, "hours", 0, "Rain delay hours")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of irrigation-debug:")
		fmt.Println("  -host string\tBase URL of the controller (default 'http://localhost:8080')")
		fmt.Println("  -pw string\tController password")
		fmt.Println("  -cmd string\tCommand to run: status, run, stop, stop-all, rain-delay")
		fmt.Println("  -station int\tStation id for run/stop")
		fmt.Println("  -t int\tRun seconds for run")
		fmt.Println("  -hours int\tRain delay hours")
		os.Exit(0)
	}

	pw := md5hex(password)

	var path string
	params := url.Values{"pw": {pw}}
	switch command {
	case "status":
		path = "/jc"
	case "run":
		path = "/cm"
		params.Set("sid", fmt.Sprint(station))
		params.Set("en", "1")
		params.Set("t", fmt.Sprint(seconds))
	case "stop":
		path = "/cm"
		params.Set("sid", fmt.Sprint(station))
		params.Set("en", "0")
	case "stop-all":
		path = "/cv"
		params.Set("rsn", "1")
	case "rain-delay":
		path = "/cv"
		params.Set("rd", fmt.Sprint(hours))
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		os.Exit(1)
	}

	resp, err := http.Get(host + path + "?" + params.Encode())
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	fmt.Println(string(body))
}
