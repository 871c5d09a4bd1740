// Command finops-chat is a terminal client for the assistant API.
//
// Usage:
//
//	finops-chat chat    [--api URL] [--token T] [--session ID]
//	finops-chat servers [--api URL] [--token T]
//	finops-chat tools   [--api URL] [--token T]
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/optimnow-labs/finops-assistant/internal/agui"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	switch os.Args[1] {
	case "chat":
		cmdChat(os.Args[2:])
	case "servers":
		cmdServers(os.Args[2:])
	case "tools":
		cmdTools(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: finops-chat <chat|servers|tools> [flags]")
	os.Exit(1)
}

type apiClient struct {
	base  string
	token string
	http  *http.Client
}

func commonFlags(fs *flag.FlagSet) (*string, *string) {
	api := fs.String("api", "http://localhost:8080", "assistant API base URL")
	token := fs.String("token", "", "bearer token (when the API enforces auth)")
	return api, token
}

func (c *apiClient) do(method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.http.Do(req)
}

func (c *apiClient) getJSON(path string, target any) error {
	resp, err := c.do("GET", path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

func cmdServers(args []string) {
	fs := flag.NewFlagSet("servers", flag.ExitOnError)
	api, token := commonFlags(fs)
	_ = fs.Parse(args)

	c := &apiClient{base: *api, token: *token, http: http.DefaultClient}
	var body struct {
		State   string `json:"state"`
		Servers []struct {
			Name      string `json:"name"`
			Command   string `json:"command"`
			Connected bool   `json:"connected"`
		} `json:"servers"`
	}
	if err := c.getJSON("/api/v1/registry", &body); err != nil {
		log.Fatalf("registry query failed: %v", err)
	}

	fmt.Printf("registry state: %s\n", body.State)
	for _, s := range body.Servers {
		status := "disconnected"
		if s.Connected {
			status = "connected"
		}
		fmt.Printf("  %-20s %-12s %s\n", s.Name, status, s.Command)
	}
}

func cmdTools(args []string) {
	fs := flag.NewFlagSet("tools", flag.ExitOnError)
	api, token := commonFlags(fs)
	_ = fs.Parse(args)

	c := &apiClient{base: *api, token: *token, http: http.DefaultClient}
	var body struct {
		Tools []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			Origin      string `json:"origin"`
			Server      string `json:"server"`
		} `json:"tools"`
	}
	if err := c.getJSON("/api/v1/tools", &body); err != nil {
		log.Fatalf("tools query failed: %v", err)
	}

	for _, t := range body.Tools {
		origin := t.Origin
		if t.Server != "" {
			origin = t.Origin + ":" + t.Server
		}
		fmt.Printf("  %-24s %-20s %s\n", t.Name, origin, t.Description)
	}
}

func cmdChat(args []string) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	api, token := commonFlags(fs)
	sessionID := fs.String("session", "", "resume an existing session")
	_ = fs.Parse(args)

	c := &apiClient{base: *api, token: *token, http: http.DefaultClient}

	id := *sessionID
	if id == "" {
		var created struct {
			SessionID   string `json:"session_id"`
			Registry    string `json:"registry"`
			LocalTools  int    `json:"local_tools"`
			RemoteTools int    `json:"remote_tools"`
		}
		resp, err := c.do("POST", "/api/v1/sessions", nil)
		if err != nil {
			log.Fatalf("create session failed: %v", err)
		}
		if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
			log.Fatalf("create session failed: %v", err)
		}
		resp.Body.Close()
		id = created.SessionID
		fmt.Printf("registry %s: %d local tools, %d remote tools\n",
			created.Registry, created.LocalTools, created.RemoteTools)
	}
	fmt.Printf("session %s (type a message, Ctrl-D to quit)\n", id)

	events, err := openStream(c, id)
	if err != nil {
		log.Fatalf("event stream failed: %v", err)
	}

	stdin := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !stdin.Scan() {
			fmt.Println()
			return
		}
		text := strings.TrimSpace(stdin.Text())
		if text == "" {
			continue
		}

		resp, err := c.do("POST", "/api/v1/sessions/"+id+"/messages", map[string]string{"content": text})
		if err != nil {
			log.Fatalf("send failed: %v", err)
		}
		if resp.StatusCode != http.StatusAccepted {
			raw, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			fmt.Fprintf(os.Stderr, "send rejected: %s %s\n", resp.Status, strings.TrimSpace(string(raw)))
			continue
		}
		resp.Body.Close()

		followRun(c, id, events, stdin)
	}
}

// followRun prints streamed events until the run finishes, answering
// consent prompts from stdin.
func followRun(c *apiClient, sessionID string, events <-chan agui.Event, stdin *bufio.Scanner) {
	for ev := range events {
		switch ev.Type {
		case agui.EventTextMessageContent:
			if data, ok := ev.Data.(map[string]any); ok {
				fmt.Print(data["delta"])
			}
		case agui.EventToolCallStart:
			if data, ok := ev.Data.(map[string]any); ok {
				fmt.Printf("\n[tool: %v]\n", data["tool_name"])
			}
		case agui.EventConsentRequested:
			if data, ok := ev.Data.(map[string]any); ok {
				fmt.Printf("\n%v\n", data["prompt"])
			}
			fmt.Print("approve? ")
			reply := "no"
			if stdin.Scan() {
				reply = strings.TrimSpace(stdin.Text())
			}
			resp, err := c.do("POST", "/api/v1/sessions/"+sessionID+"/consent", map[string]string{"reply": reply})
			if err != nil {
				fmt.Fprintf(os.Stderr, "consent reply failed: %v\n", err)
				continue
			}
			resp.Body.Close()
		case agui.EventConsentResolved:
			if data, ok := ev.Data.(map[string]any); ok {
				fmt.Printf("[%v]\n", data["message"])
			}
		case agui.EventRunError:
			if data, ok := ev.Data.(map[string]any); ok {
				fmt.Fprintf(os.Stderr, "\nrun failed: %v\n", data["message"])
			}
			return
		case agui.EventRunFinished:
			fmt.Println()
			return
		}
	}
}

// openStream connects to the session's SSE endpoint and decodes events.
func openStream(c *apiClient, sessionID string) (<-chan agui.Event, error) {
	path := "/api/v1/sessions/" + sessionID + "/stream"
	if c.token != "" {
		path += "?access_token=" + c.token
	}
	req, err := http.NewRequest("GET", c.base+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("stream: %s", resp.Status)
	}

	ch := make(chan agui.Event, 64)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			line := sc.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var ev agui.Event
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
				continue
			}
			ch <- ev
		}
	}()
	return ch, nil
}
