// Command csopesy is the interactive console entrypoint: a
// line-oriented REPL over stdin dispatching to the cobra command tree
// built by pkg/console, backed by one pkg/system.System.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/csopesy/emulator/pkg/config"
	"github.com/csopesy/emulator/pkg/console"
	"github.com/csopesy/emulator/pkg/system"
)

func main() {
	log.SetFlags(0)

	configPath := flag.String("config", config.DefaultPath(), "path to the config.txt file")
	dataDir := flag.String("data-dir", ".", "directory for process logs, snapshots, and reports")
	flag.Parse()

	if *dataDir != "." {
		if err := os.MkdirAll(*dataDir, 0o755); err != nil {
			log.Fatalf("csopesy: could not create data directory: %v", err)
		}
	}

	sys := system.New(*dataDir)
	defer sys.Shutdown()

	fmt.Println("csopesy process-scheduler emulator")
	fmt.Println(`Type "initialize" to begin, "exit" to quit.`)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		args, err := tokenize(line)
		if err != nil {
			fmt.Println("Unknown command:", line)
			continue
		}

		root := console.Build(sys, os.Stdout, *configPath)
		root.SetArgs(args)
		if err := root.Execute(); err != nil {
			if errors.Is(err, console.ErrExit) {
				break
			}
			if isUnknownCommand(err) {
				fmt.Println("Unknown command:", line)
			}
		}
	}
}

// tokenize splits a console line on whitespace, except inside a
// double-quoted span — needed so `screen -c P 64 "DECLARE a 7; ..."`
// keeps its instruction text as one token.
func tokenize(line string) ([]string, error) {
	var out []string
	var cur strings.Builder
	inQuotes := false
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == ' ' && !inQuotes:
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	if inQuotes {
		return nil, fmt.Errorf("unterminated quote")
	}
	return out, nil
}

func isUnknownCommand(err error) bool {
	return strings.Contains(err.Error(), "unknown command")
}
