package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func main() {
	server := flag.String("server", "http://localhost:3210", "secgraph server URL")
	showTrace := flag.Bool("trace", false, "print the reasoning trace with every answer")
	flag.Parse()

	fmt.Println("secgraph CLI Chat")
	fmt.Printf("Server: %s\n", *server)
	fmt.Println("Type 'exit' or 'quit' to leave.")
	fmt.Println("Commands: /health, /trace")
	fmt.Println("---")

	var history []message

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Bye!")
			return
		}
		if input == "/health" {
			fetchHealth(*server)
			continue
		}
		if input == "/trace" {
			*showTrace = !*showTrace
			fmt.Printf("Reasoning trace: %v\n", *showTrace)
			continue
		}

		answer := sendMessage(*server, input, history, *showTrace)
		if answer != "" {
			history = append(history,
				message{Role: "user", Content: input},
				message{Role: "assistant", Content: answer},
			)
		}
	}
}

func fetchHealth(server string) {
	resp, err := http.Get(server + "/api/health")
	if err != nil {
		printError("Failed to fetch health: %v", err)
		return
	}
	defer resp.Body.Close()

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		printError("Failed to parse health: %v", err)
		return
	}
	icon := "\033[31m✗\033[0m"
	if body.Status == "ok" {
		icon = "\033[32m✓\033[0m"
	}
	fmt.Printf("  %s %s\n", icon, body.Status)
}

func sendMessage(server, content string, history []message, showTrace bool) string {
	body, _ := json.Marshal(map[string]interface{}{
		"message": content,
		"history": history,
	})

	client := &http.Client{Timeout: 120 * time.Second}
	resp, err := client.Post(
		server+"/api/chat",
		"application/json",
		bytes.NewReader(body),
	)
	if err != nil {
		printError("Request failed: %v", err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		printError("Server error (%d): %s", resp.StatusCode, string(data))
		return ""
	}

	var reply struct {
		Answer    string   `json:"answer"`
		Reasoning []string `json:"reasoning"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		printError("Failed to parse response: %v", err)
		return ""
	}

	if showTrace {
		for _, step := range reply.Reasoning {
			fmt.Printf("\033[90m  · %s\033[0m\n", step)
		}
	}
	fmt.Println(reply.Answer)
	return reply.Answer
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "\033[31m"+format+"\033[0m\n", args...)
}
