// Package config parses the line-oriented text configuration files
// consumed by the dfc client and the dfs server, in the same
// bufio.Scanner style the teacher uses to read its tracker address
// list and session file.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/svmk2808/dfshard/internal/placement"
)

// MaxServers bounds the number of "Server" lines a client config may
// declare, matching the original fixed-size server table.
const MaxServers = 10

// MaxUsers bounds the number of credential lines a server config may
// declare.
const MaxUsers = 10

// Completeness selects the client's GET reconstruction threshold.
type Completeness string

const (
	// Strict requires at least 3 distinct piece ids before a file is
	// considered reconstructable — the spec-correct threshold for 2-of-4
	// placement with 3-of-4 survivability.
	Strict Completeness = "strict"
	// Legacy requires only 2 distinct piece ids, matching the original
	// reference implementation's looser rule. Kept for bug-compatibility.
	Legacy Completeness = "legacy"
)

// ServerEntry is one named back-end DFS instance a client can reach.
type ServerEntry struct {
	Name string
	Addr string
}

// ClientConfig is the parsed contents of a dfc config file.
type ClientConfig struct {
	Servers      []ServerEntry
	Username     string
	Password     string
	Completeness Completeness
}

// LoadClientConfig reads a dfc config file of the form:
//
//	Server <name> <host:port>
//	Username: <username>
//	Password: <password>
//	Completeness: strict|legacy
//
// Exactly placement.NumServers "Server" lines are required (more than
// MaxServers is rejected while parsing); "Completeness" is optional and
// defaults to Strict.
func LoadClientConfig(path string) (*ClientConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := &ClientConfig{Completeness: Strict}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		switch {
		case fields[0] == "Server":
			if len(fields) != 3 {
				return nil, fmt.Errorf("config: malformed Server line %q", line)
			}
			if len(cfg.Servers) >= MaxServers {
				return nil, fmt.Errorf("config: more than %d Server lines", MaxServers)
			}
			cfg.Servers = append(cfg.Servers, ServerEntry{Name: fields[1], Addr: fields[2]})
		case strings.HasPrefix(line, "Username:"):
			cfg.Username = strings.TrimSpace(strings.TrimPrefix(line, "Username:"))
		case strings.HasPrefix(line, "Password:"):
			cfg.Password = strings.TrimSpace(strings.TrimPrefix(line, "Password:"))
		case strings.HasPrefix(line, "Completeness:"):
			v := strings.TrimSpace(strings.TrimPrefix(line, "Completeness:"))
			switch Completeness(v) {
			case Strict, Legacy:
				cfg.Completeness = Completeness(v)
			default:
				return nil, fmt.Errorf("config: unknown Completeness value %q", v)
			}
		default:
			return nil, fmt.Errorf("config: unrecognized line %q", line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("config: Username and Password are required")
	}
	if len(cfg.Servers) != placement.NumServers {
		return nil, fmt.Errorf("config: expected exactly %d Server lines, got %d", placement.NumServers, len(cfg.Servers))
	}
	return cfg, nil
}

// ServerConfig is the parsed contents of a dfs credential file: one
// "<username> <password>" pair per line, up to MaxUsers entries.
type ServerConfig struct {
	Credentials map[string]string
}

// LoadServerConfig reads a dfs credential file.
func LoadServerConfig(path string) (*ServerConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := &ServerConfig{Credentials: make(map[string]string)}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("config: malformed credential line %q", line)
		}
		if len(cfg.Credentials) >= MaxUsers {
			return nil, fmt.Errorf("config: more than %d credential lines", MaxUsers)
		}
		cfg.Credentials[fields[0]] = fields[1]
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Authenticate reports whether username/password matches a configured
// credential pair.
func (c *ServerConfig) Authenticate(username, password string) bool {
	want, ok := c.Credentials[username]
	return ok && want == password
}
