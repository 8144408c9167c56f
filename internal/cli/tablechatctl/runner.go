package tablechatctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tablechat/tablechat/internal/chat"
)

type Options struct {
	BaseURL    string
	UserID     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("tablechatctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "TableChat API base URL")
	userID := fs.String("user", defaults.UserID, "User ID the event belongs to")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 10*time.Second), "HTTP timeout (e.g. 10s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))

	var (
		method = http.MethodPost
		path   = "/v1/events"
		event  chat.Event
	)
	switch command {
	case "health":
		method, path = http.MethodGet, "/v1/health"
	case "ready":
		method, path = http.MethodGet, "/v1/ready"
	case "text":
		if fs.NArg() < 2 {
			_, _ = fmt.Fprintln(stderr, "text requires a message argument")
			return 2
		}
		event = chat.Event{Type: chat.EventText, Text: strings.Join(fs.Args()[1:], " ")}
	case "select":
		if fs.NArg() != 2 {
			_, _ = fmt.Fprintln(stderr, "select requires exactly one option argument")
			return 2
		}
		event = chat.Event{Type: chat.EventSelect, Text: fs.Arg(1)}
	case "cancel":
		event = chat.Event{Type: chat.EventCancel}
	case "upload":
		if fs.NArg() != 2 {
			_, _ = fmt.Fprintln(stderr, "upload requires a file argument")
			return 2
		}
		data, err := os.ReadFile(fs.Arg(1))
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "read upload: %v\n", err)
			return 1
		}
		event = chat.Event{Type: chat.EventFile, FileName: filepath.Base(fs.Arg(1)), FileData: data}
	case "voice-file":
		if fs.NArg() != 2 {
			_, _ = fmt.Fprintln(stderr, "voice-file requires an audio file argument")
			return 2
		}
		data, err := os.ReadFile(fs.Arg(1))
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "read audio: %v\n", err)
			return 1
		}
		event = chat.Event{Type: chat.EventVoice, Audio: data}
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	var requestBody []byte
	if method == http.MethodPost {
		if strings.TrimSpace(*userID) == "" {
			_, _ = fmt.Fprintln(stderr, "-user is required for event commands")
			return 2
		}
		event.UserID = strings.TrimSpace(*userID)
		encoded, err := json.Marshal(event)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "encode event: %v\n", err)
			return 1
		}
		requestBody = encoded
	}

	endpoint := strings.TrimRight(*baseURL, "/") + path
	code, responseBody, err := doRequest(ctx, client, method, endpoint, requestBody)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func doRequest(ctx context.Context, client *http.Client, method, url string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: tablechatctl [flags] <command>")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health              GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready               GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  text <message>      send a text event")
	_, _ = fmt.Fprintln(w, "  select <option>     send a menu selection event")
	_, _ = fmt.Fprintln(w, "  upload <file>       send a dataset file event")
	_, _ = fmt.Fprintln(w, "  voice-file <file>   send a voice event from an audio file")
	_, _ = fmt.Fprintln(w, "  cancel              abort the in-flight operation")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
