package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

func runChat(args []string) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	showContext := fs.Bool("context", true, "Print retrieved chunks")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, *configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	color.Cyan("\nChat with your inspiration vault (type 'exit' to quit)")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()
	contextLine := color.New(color.FgHiBlack).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if strings.ToLower(query) == "exit" {
			break
		}

		spinner := getSpinner("🔍 Searching your vault...")
		state, err := a.workflow.Invoke(ctx, query, nil)
		spinner.Finish()
		fmt.Print("\r")

		if err != nil {
			color.Red("Error: %v\n", err)
			continue
		}

		if len(state.Context) == 0 {
			color.Yellow("No matching chunks found")
		}
		if *showContext {
			for i, chunk := range state.Context {
				contextLine("[%d] %s\n", i+1, chunk)
			}
		}
		if state.Answer != "" {
			assistantPrompt("Assistant: %s\n", state.Answer)
		}
	}

	return scanner.Err()
}
