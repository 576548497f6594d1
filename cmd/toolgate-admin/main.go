// ABOUTME: Admin CLI for toolgate server management
// ABOUTME: Talks to the management REST API with JWT authentication

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
)

const banner = `
  _              _            _                        _           _
 | |_ ___   ___ | | __ _  __ _| |_ ___        __ _  __| |_ __ ___ (_)_ __
 | __/ _ \ / _ \| |/ _' |/ _' | __/ _ \_____ / _' |/ _' | '_ ' _ \| | '_ \
 | || (_) | (_) | | (_| | (_| | ||  __/_____| (_| | (_| | | | | | | | | | |
  \__\___/ \___/|_|\__, |\__,_|\__\___|      \__,_|\__,_|_| |_| |_|_|_| |_|
                   |___/
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	baseURL := os.Getenv("TOOLGATE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	client := &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   os.Getenv("TOOLGATE_TOKEN"),
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "login":
		err = cmdLogin(client, args)
	case "servers":
		err = cmdServers(client, args)
	case "tools":
		err = cmdTools(client, args)
	case "status":
		err = cmdStatus(client)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: toolgate-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  login                       Exchange the admin password for a token")
	fmt.Println("  status                      Show server readiness snapshot")
	fmt.Println("  servers                     List configured MCP servers")
	fmt.Println("  servers list                List configured MCP servers")
	fmt.Println("  servers add <name> <url>    Add a runtime MCP server")
	fmt.Println("  servers test <name> <url>   Test a server without registering")
	fmt.Println("  servers remove <name>       Remove a runtime MCP server")
	fmt.Println("  servers oauth-status <name> Show a server's OAuth state")
	fmt.Println("  tools [server]              List registered tools, grouped by server")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  TOOLGATE_URL     Server base URL (default: http://localhost:8080)")
	fmt.Println("  TOOLGATE_TOKEN   JWT authentication token")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  export TOOLGATE_TOKEN=\"$(toolgate-admin login)\"")
	fmt.Println("  toolgate-admin servers add knowledge http://localhost:8081")
	fmt.Println("  toolgate-admin servers add secured http://host:8080 --auth-token eyJhbG...")
	fmt.Println("  toolgate-admin tools knowledge")
	fmt.Println()
}

// apiClient wraps HTTP calls to the management API.
type apiClient struct {
	baseURL string
	token   string
}

func (c *apiClient) do(method, path string, body any) (map[string]any, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	httpClient := &http.Client{Timeout: 60 * time.Second}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if resp.StatusCode >= 400 {
		if detail, ok := decoded["detail"].(string); ok {
			return nil, fmt.Errorf("%s (HTTP %d)", detail, resp.StatusCode)
		}
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return decoded, nil
}

func cmdLogin(c *apiClient, args []string) error {
	password := os.Getenv("TOOLGATE_PASSWORD")
	if len(args) > 0 {
		password = args[0]
	}
	if password == "" {
		return fmt.Errorf("password required: toolgate-admin login <password> or set TOOLGATE_PASSWORD")
	}

	resp, err := c.do(http.MethodPost, "/auth/login", map[string]string{"password": password})
	if err != nil {
		return err
	}

	token, _ := resp["token"].(string)
	fmt.Println(token)
	return nil
}

func cmdStatus(c *apiClient) error {
	resp, err := c.do(http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("status: %v\n\n", resp["status"])

	servers, _ := resp["servers"].(map[string]any)
	if len(servers) == 0 {
		fmt.Println("no servers configured")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SERVER\tSTATUS\tTOOLS\tURL")
	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s, _ := servers[name].(map[string]any)
		fmt.Fprintf(w, "%s\t%v\t%v\t%v\n", name, s["status"], s["tools_count"], s["url"])
	}
	return w.Flush()
}

func cmdServers(c *apiClient, args []string) error {
	sub := "list"
	if len(args) > 0 {
		sub = args[0]
		args = args[1:]
	}

	switch sub {
	case "list":
		return serversList(c)
	case "add":
		return serversAdd(c, args)
	case "test":
		return serversTest(c, args)
	case "remove", "rm":
		if len(args) < 1 {
			return fmt.Errorf("usage: toolgate-admin servers remove <name>")
		}
		return serversRemove(c, args[0])
	case "oauth-status":
		if len(args) < 1 {
			return fmt.Errorf("usage: toolgate-admin servers oauth-status <name>")
		}
		return serversOAuthStatus(c, args[0])
	default:
		return fmt.Errorf("unknown subcommand: servers %s", sub)
	}
}

func serversList(c *apiClient) error {
	resp, err := c.do(http.MethodGet, "/api/v1/mcp/servers", nil)
	if err != nil {
		return err
	}

	servers, _ := resp["servers"].([]any)
	if len(servers) == 0 {
		fmt.Println("no servers configured")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATUS\tSOURCE\tTOOLS\tAUTH\tURL")
	for _, entry := range servers {
		s, _ := entry.(map[string]any)
		auth := ""
		if hasAuth, _ := s["has_auth"].(bool); hasAuth {
			auth = "yes"
		}
		fmt.Fprintf(w, "%v\t%s\t%v\t%v\t%s\t%v\n",
			s["name"], colorStatus(s["status"]), s["source"], s["tools_count"], auth, s["url"])
	}
	return w.Flush()
}

// parseServerArgs handles "<name> <url> [--transport t] [--timeout s] [--auth-token tok]".
func parseServerArgs(args []string) (map[string]any, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("usage: <name> <url> [--transport t] [--timeout seconds] [--auth-token token]")
	}
	body := map[string]any{
		"name": args[0],
		"url":  args[1],
	}
	rest := args[2:]
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case "--transport":
			if i+1 >= len(rest) {
				return nil, fmt.Errorf("--transport requires a value")
			}
			body["transport"] = rest[i+1]
			i++
		case "--timeout":
			if i+1 >= len(rest) {
				return nil, fmt.Errorf("--timeout requires a value")
			}
			var seconds float64
			if _, err := fmt.Sscanf(rest[i+1], "%f", &seconds); err != nil {
				return nil, fmt.Errorf("invalid timeout: %s", rest[i+1])
			}
			body["timeout"] = seconds
			i++
		case "--auth-token":
			if i+1 >= len(rest) {
				return nil, fmt.Errorf("--auth-token requires a value")
			}
			body["auth_token"] = rest[i+1]
			i++
		default:
			return nil, fmt.Errorf("unknown flag: %s", rest[i])
		}
	}
	return body, nil
}

func serversAdd(c *apiClient, args []string) error {
	body, err := parseServerArgs(args)
	if err != nil {
		return err
	}

	resp, err := c.do(http.MethodPost, "/api/v1/mcp/servers", body)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ %v\n", resp["message"])

	if server, ok := resp["server"].(map[string]any); ok {
		if tools, ok := server["tool_names"].([]any); ok {
			for _, tool := range tools {
				fmt.Printf("  - %v\n", tool)
			}
		}
	}
	return nil
}

func serversTest(c *apiClient, args []string) error {
	body, err := parseServerArgs(args)
	if err != nil {
		return err
	}

	resp, err := c.do(http.MethodPost, "/api/v1/mcp/servers/test", body)
	if err != nil {
		return err
	}

	fmt.Printf("status:    %s\n", colorStatus(resp["status"]))
	fmt.Printf("connected: %v\n", resp["connected"])
	if errMsg, ok := resp["error"].(string); ok && errMsg != "" {
		color.Yellow("error:     %s\n", errMsg)
	}
	if tools, ok := resp["tools"].([]any); ok && len(tools) > 0 {
		fmt.Printf("tools:     %d\n", len(tools))
		for _, entry := range tools {
			tool, _ := entry.(map[string]any)
			fmt.Printf("  - %v: %v\n", tool["prefixed_name"], tool["description"])
		}
	}
	return nil
}

func serversRemove(c *apiClient, name string) error {
	resp, err := c.do(http.MethodDelete, "/api/v1/mcp/servers/"+name, nil)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ %v (removed %v tools)\n", resp["message"], resp["tools_removed"])
	return nil
}

func serversOAuthStatus(c *apiClient, name string) error {
	resp, err := c.do(http.MethodGet, "/api/v1/mcp/oauth/status/"+name, nil)
	if err != nil {
		return err
	}

	yesNo := func(key string) string {
		if v, _ := resp[key].(bool); v {
			return "yes"
		}
		return "no"
	}
	fmt.Printf("server:           %v\n", resp["server"])
	fmt.Printf("authenticated:    %s\n", yesNo("authenticated"))
	fmt.Printf("oauth configured: %s\n", yesNo("oauth_configured"))
	fmt.Printf("refresh token:    %s\n", yesNo("has_refresh_token"))
	return nil
}

func cmdTools(c *apiClient, args []string) error {
	path := "/api/v1/mcp/tools"
	if len(args) > 0 {
		path += "?server=" + args[0]
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	byServer, _ := resp["by_server"].(map[string]any)
	if len(byServer) == 0 {
		fmt.Println("no tools registered")
		return nil
	}

	cyan := color.New(color.FgCyan)
	names := make([]string, 0, len(byServer))
	for name := range byServer {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cyan.Printf("%s:\n", name)
		if tools, ok := byServer[name].([]any); ok {
			for _, tool := range tools {
				fmt.Printf("  - %v\n", tool)
			}
		}
	}
	fmt.Printf("\ntotal: %v\n", resp["total"])
	return nil
}

func colorStatus(status any) string {
	s, _ := status.(string)
	switch s {
	case "healthy":
		return color.GreenString(s)
	case "connected":
		return color.CyanString(s)
	case "unhealthy", "error":
		return color.RedString(s)
	default:
		return s
	}
}
