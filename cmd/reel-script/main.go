package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/reellabs/reel-core/internal/boardfile"
	"github.com/reellabs/reel-core/internal/scriptsource"
)

var version = "0.1.0-dev"

func main() {
	var boardPath string
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	validateCmd.StringVar(&boardPath, "file", "storyboard.yaml", "Path to storyboard file")

	var scriptPath string
	splitCmd := flag.NewFlagSet("split", flag.ExitOnError)
	splitCmd.StringVar(&scriptPath, "file", "script.txt", "Path to script file (txt or pdf)")

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'validate', 'split' or 'version'")
		os.Exit(2)
	}

	switch os.Args[1] {
	case "validate":
		validateCmd.Parse(os.Args[2:])
		doc, err := runValidate(boardPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("storyboard valid: %d scenes\n", len(doc.Scenes))
	case "split":
		splitCmd.Parse(os.Args[2:])
		lines, err := runSplit(scriptPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		for i, line := range lines {
			fmt.Printf("%3d  %s\n", i, line)
		}
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
}

func runValidate(path string) (boardfile.Document, error) {
	doc, err := boardfile.Load(path)
	if err != nil {
		return boardfile.Document{}, err
	}
	if err := boardfile.Validate(doc); err != nil {
		return boardfile.Document{}, err
	}
	return doc, nil
}

func runSplit(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return scriptsource.Lines(data)
}
