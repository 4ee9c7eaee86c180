// Command dfc is the interactive client shell for the DFC/DFS store.
// It reads commands from stdin at a ">>> " prompt and dispatches them
// to the dfc orchestrator.
//
// Usage: dfc <config-file>
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/svmk2808/dfshard/internal/config"
	"github.com/svmk2808/dfshard/internal/dfc"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: dfc <config-file>")
		os.Exit(1)
	}
	cfg, err := config.LoadClientConfig(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "dfc: loading config: %v\n", err)
		os.Exit(1)
	}
	client := dfc.New(cfg)

	fmt.Printf("dfc: connected as %s, completeness=%s, %d servers configured\n",
		cfg.Username, cfg.Completeness, len(cfg.Servers))

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(">>> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd := strings.ToUpper(fields[0])
		switch cmd {
		case "EXIT", "QUIT":
			return
		case "LIST":
			runList(client, fields)
		case "MKDIR":
			runMkdir(client, fields)
		case "GET":
			runGet(client, fields)
		case "PUT":
			runPut(client, fields)
		default:
			fmt.Printf("unknown command %q (expected LIST|GET|PUT|MKDIR|EXIT)\n", fields[0])
		}
	}
}

func runList(client *dfc.Client, fields []string) {
	folder := ""
	if len(fields) >= 2 {
		folder = fields[1]
	}
	files, subfolders, err := client.List(folder)
	if err != nil {
		fmt.Printf("LIST failed: %v\n", err)
		return
	}
	if len(files) == 0 && len(subfolders) == 0 {
		fmt.Println("(empty)")
		return
	}
	for _, f := range subfolders {
		fmt.Println(f + "/")
	}
	for _, n := range files {
		fmt.Println(n)
	}
}

// splitRemotePath parses a remote path into its folder and basename,
// following the original client's extractFileNameAndFolder: everything
// up to the last "/" is the folder, everything after is the filename.
// A path with no "/" names a file in the root folder.
func splitRemotePath(path string) (folder, filename string) {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

func runMkdir(client *dfc.Client, fields []string) {
	if len(fields) != 2 {
		fmt.Println("usage: MKDIR <folder>")
		return
	}
	if err := client.Mkdir(fields[1]); err != nil {
		fmt.Printf("MKDIR failed: %v\n", err)
		return
	}
	fmt.Println("ok")
}

func runGet(client *dfc.Client, fields []string) {
	if len(fields) != 3 {
		fmt.Println("usage: GET <remote-path> <local-path>")
		return
	}
	folder, filename := splitRemotePath(fields[1])
	localPath := fields[2]
	data, err := client.Get(folder, filename)
	if err != nil {
		fmt.Printf("GET failed: %v\n", err)
		return
	}
	if err := os.WriteFile(localPath, data, 0o644); err != nil {
		fmt.Printf("GET succeeded but writing %s failed: %v\n", localPath, err)
		return
	}
	fmt.Printf("wrote %d bytes to %s\n", len(data), localPath)
}

func runPut(client *dfc.Client, fields []string) {
	if len(fields) != 3 {
		fmt.Println("usage: PUT <local-path> <remote-path>")
		return
	}
	localPath := fields[1]
	folder, filename := splitRemotePath(fields[2])
	data, err := os.ReadFile(localPath)
	if err != nil {
		fmt.Printf("PUT failed: reading %s: %v\n", localPath, err)
		return
	}
	if err := client.Put(folder, filename, data); err != nil {
		fmt.Printf("PUT failed: %v\n", err)
		return
	}
	fmt.Println("ok")
}
