package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// remoteCmd talks to a running server's local admin endpoints.
func remoteCmd(args []string) {
	fs := flag.NewFlagSet("remote", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: admin remote [-url URL] list | show IDENTITY | delete IDENTITY")
		os.Exit(2)
	}
	base := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/saves"

	var (
		method = http.MethodGet
		u      = base
	)
	switch fs.Arg(0) {
	case "list":
	case "show", "delete":
		if fs.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "missing identity")
			os.Exit(2)
		}
		u = base + "/" + url.PathEscape(fs.Arg(1))
		if fs.Arg(0) == "delete" {
			method = http.MethodDelete
		}
	default:
		fmt.Fprintln(os.Stderr, "unknown remote command:", fs.Arg(0))
		os.Exit(2)
	}

	req, _ := http.NewRequest(method, u, nil)
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}
