package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Interactive terminal client for the chat completions endpoint. Each reply
// is streamed delta by delta; session memory lives on the server.
type completionRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Stream         bool          `json:"stream"`
	IncludeContext bool          `json:"include_context"`
	SessionId      string        `json:"session_id,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type streamDelta struct {
	SessionId    string `json:"session_id,omitempty"`
	Delta        string `json:"delta,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
}

type errorEnvelope struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	baseURL := flag.String("url", "http://localhost:8010", "server base URL")
	model := flag.String("model", "gpt-4", "model to request")
	noContext := flag.Bool("no-context", false, "answer without document retrieval")
	flag.Parse()

	color.Cyan("Personal knowledge chat. Type a question, or 'exit' to quit.\n")

	sessionId := ""
	stdin := bufio.NewScanner(os.Stdin)
	for {
		color.Set(color.FgYellow)
		fmt.Print("you> ")
		color.Unset()

		if !stdin.Scan() {
			break
		}
		question := strings.TrimSpace(stdin.Text())
		if question == "" {
			continue
		}
		if question == "exit" || question == "quit" {
			break
		}

		newSession, err := ask(*baseURL, *model, sessionId, question, !*noContext)
		if err != nil {
			color.Red("error: %v", err)
			continue
		}
		sessionId = newSession
	}
}

func ask(baseURL, model, sessionId, question string, includeContext bool) (string, error) {
	payload, err := json.Marshal(completionRequest{
		Model:          model,
		Messages:       []chatMessage{{Role: "user", Content: question}},
		Stream:         true,
		IncludeContext: includeContext,
		SessionId:      sessionId,
	})
	if err != nil {
		return sessionId, err
	}

	resp, err := http.Post(baseURL+"/v1/chat/completions", "application/json", bytes.NewBuffer(payload))
	if err != nil {
		return sessionId, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var envelope errorEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && envelope.Error.Message != "" {
			return sessionId, fmt.Errorf("%s (%s)", envelope.Error.Message, envelope.Error.Kind)
		}
		return sessionId, fmt.Errorf("server returned %s", resp.Status)
	}

	green := color.New(color.FgGreen)
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		var envelope errorEnvelope
		if json.Unmarshal([]byte(data), &envelope) == nil && envelope.Error.Message != "" {
			fmt.Println()
			return sessionId, fmt.Errorf("%s (%s)", envelope.Error.Message, envelope.Error.Kind)
		}

		var event streamDelta
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue
		}
		if event.SessionId != "" {
			sessionId = event.SessionId
		}
		if event.Delta != "" {
			green.Print(event.Delta)
		}
		if event.FinishReason != "" {
			break
		}
	}
	fmt.Println()
	return sessionId, scanner.Err()
}
