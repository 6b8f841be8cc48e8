package exec

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/arnarg/shoper/internal/util"
	"github.com/kevinburke/ssh_config"
	"github.com/skeema/knownhosts"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/term"
)

const (
	sshAuthSock       = "SSH_AUTH_SOCK"
	defaultKnownHosts = "~/.ssh/known_hosts"
)

type sshExecutor struct {
	client *ssh.Client
}

// NewSSHExecutor connects to target ([user@]host[:port]) and returns an
// Executor that runs shell commands on it. Connection settings are
// resolved from the user's ssh config.
func NewSSHExecutor(target string) (Executor, error) {
	// Get config from target
	host, conf, err := configFromTarget(target)
	if err != nil {
		return nil, err
	}

	// Connect to host
	client, err := ssh.Dial("tcp", host, conf)
	if err != nil {
		return nil, err
	}

	return &sshExecutor{client}, nil
}

func (e *sshExecutor) Shell(ctx context.Context, shell, cmdline string) (Command, error) {
	// Try to start a new session
	sess, err := e.client.NewSession()
	if err != nil {
		return nil, err
	}

	return &sshCommand{
		sess:     sess,
		shell:    shell,
		line:     cmdline,
		exitCode: -1,
		ctx:      ctx,
	}, nil
}

func (e *sshExecutor) PathExists(path string) (bool, error) {
	return e.test("-e", path)
}

func (e *sshExecutor) IsDir(path string) (bool, error) {
	return e.test("-d", path)
}

func (e *sshExecutor) Remove(path string) error {
	sess, err := e.client.NewSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	return sess.Run(fmt.Sprintf("rm -rf -- %s", quoteArg(path)))
}

func (e *sshExecutor) IsLocal() bool {
	return false
}

func (e *sshExecutor) test(flag, path string) (bool, error) {
	sess, err := e.client.NewSession()
	if err != nil {
		return false, err
	}
	defer sess.Close()

	if err := sess.Run(fmt.Sprintf("test %s %s", flag, quoteArg(path))); err != nil {
		var eerr *ssh.ExitError
		if errors.As(err, &eerr) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

type sshCommand struct {
	sess  *ssh.Session
	shell string
	line  string
	dir   string
	env   []string

	exitCode int
	ctx      context.Context
}

func (c *sshCommand) SetStdin(r io.Reader) {
	c.sess.Stdin = r
}

func (c *sshCommand) SetStdout(w io.Writer) {
	c.sess.Stdout = w
}

func (c *sshCommand) SetStderr(w io.Writer) {
	c.sess.Stderr = w
}

func (c *sshCommand) SetDir(dir string) {
	c.dir = dir
}

func (c *sshCommand) SetEnv(env []string) {
	c.env = env
}

func (c *sshCommand) ExitCode() int {
	return c.exitCode
}

func (c *sshCommand) String() string {
	return c.line
}

func (c *sshCommand) Run() error {
	if err := c.Start(); err != nil {
		return err
	}

	return c.Wait()
}

func (c *sshCommand) Start() error {
	// Apply environment overrides. The server may refuse names not
	// listed in its AcceptEnv.
	for _, kv := range c.env {
		if k, v, ok := strings.Cut(kv, "="); ok {
			if err := c.sess.Setenv(k, v); err != nil {
				return err
			}
		}
	}

	// Build command string
	cmd := fmt.Sprintf("%s -c %s", c.shell, quoteArg(c.line))
	if c.dir != "" {
		cmd = fmt.Sprintf("cd %s && %s", quoteArg(c.dir), cmd)
	}

	// Start command
	return c.sess.Start(cmd)
}

func (c *sshCommand) Wait() error {
	defer c.sess.Close()

	var wg sync.WaitGroup

	lctx, cancel := context.WithCancel(context.Background())

	wg.Add(1)
	go func() {
		defer wg.Done()

		select {
		// Global context cancelled
		case <-c.ctx.Done():
			// Send sigint to session
			if err := c.sess.Signal(ssh.SIGINT); err != nil {
				fmt.Println(err)
			}

		// Local context cancelled
		case <-lctx.Done():
		}
	}()

	// Wait for session command
	err := c.sess.Wait()

	// Cancel local context
	cancel()

	// Wait for goroutine
	wg.Wait()

	if err == nil {
		c.exitCode = 0
		return nil
	}

	// A non-zero exit status is reported through ExitCode
	var eerr *ssh.ExitError
	if errors.As(err, &eerr) {
		c.exitCode = eerr.ExitStatus()
		return nil
	}

	return err
}

// quoteArg wraps s in single quotes for the remote shell.
func quoteArg(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func parseTarget(target string) (user string, host string, port string) {
	// Split on @
	parts := strings.SplitN(target, "@", 2)

	// If there's 2 parts, we have a user@host
	if len(parts) == 2 {
		user = parts[0]
		host = parts[1]
	} else {
		host = parts[0]
	}

	// Check if port is specified
	parts = strings.SplitN(host, ":", 2)

	// If there's 2 parts, we have host:port
	if len(parts) == 2 {
		host = parts[0]
		port = parts[1]
	}

	return
}

func configFromTarget(target string) (string, *ssh.ClientConfig, error) {
	// Get user and host
	user, host, port := parseTarget(target)

	// Set port, if not specified
	if port == "" {
		port = ssh_config.Get(host, "Port")
		// Still not set
		if port == "" {
			port = ssh_config.Default("Port")
		}
	}

	// Build config from host
	config, err := buildDefaultConfig(host, port)
	if err != nil {
		return "", nil, err
	}

	// Override if specified
	if user != "" {
		config.User = user
	}

	// If user is still unset, we use current user
	if config.User == "" {
		config.User = util.GetUser()
	}

	// Add password callback
	if term.IsTerminal(int(os.Stdin.Fd())) {
		config.Auth = append(
			config.Auth,
			ssh.PasswordCallback(func() (string, error) {
				fmt.Printf("%s@%s's password:\n", config.User, host)
				password, err := term.ReadPassword(int(os.Stdin.Fd()))
				if err != nil {
					return "", err
				}
				return string(password), nil
			}),
		)
	}

	return fmt.Sprintf("%s:%s", host, port), config, nil
}

func buildDefaultConfig(host, port string) (*ssh.ClientConfig, error) {
	// SSH config file parser
	settings := ssh_config.DefaultUserSettings

	// Initial config
	conf := &ssh.ClientConfig{
		User: settings.Get(host, "User"),
		Auth: []ssh.AuthMethod{},
	}

	// Check IdentitiesOnly
	identitiesOnly := false
	if ionly := settings.Get(host, "IdentitiesOnly"); ionly == "yes" {
		identitiesOnly = true
	}

	// Get IdentityFiles
	identityFiles := getIdentityFiles(settings, host)

	// Get agent path
	agentPath := getAgentPath(settings, host)

	// Make pubkey callback
	conf.Auth = append(
		conf.Auth,
		ssh.PublicKeysCallback(
			newPublicKeysCallback(identitiesOnly, agentPath, identityFiles),
		),
	)

	// Get known hosts file
	kh, err := knownhosts.New(
		getKnownHostsFiles(settings, host)...,
	)
	if err == nil {
		conf.HostKeyCallback = kh.HostKeyCallback()
		conf.HostKeyAlgorithms = kh.HostKeyAlgorithms(fmt.Sprintf("%s:%s", host, port))
	} else {
		return nil, err
	}

	return conf, nil
}

func getKnownHostsFiles(settings *ssh_config.UserSettings, host string) []string {
	if f, err := settings.GetStrict(host, "UserKnownHostsFile"); err == nil {
		files := []string{}

		for _, khf := range strings.Split(f, " ") {
			resolved := resolvePath(khf)

			if _, err := os.Stat(resolved); err == nil {
				files = append(files, resolved)
			}
		}

		return files
	}

	return []string{resolvePath(defaultKnownHosts)}
}

func resolvePath(p string) string {
	if strings.HasPrefix(p, "~/") {
		p = filepath.Join(util.GetHomeDir(), p[2:])
	}

	return os.ExpandEnv(p)
}

func configPath(p string) string {
	return fmt.Sprintf("%s/.ssh/%s", util.GetHomeDir(), p)
}

func getIdentityFiles(settings *ssh_config.UserSettings, host string) []string {
	files := []string{}

	for _, f := range settings.GetAll(host, "IdentityFile") {
		files = append(files, resolvePath(f))
	}

	// Default paths to check
	files = append(
		files,
		configPath("id_dsa"),
		configPath("id_ecdsa"),
		configPath("id_ecdsa_sk"),
		configPath("id_ed25519"),
		configPath("id_ed25519_sk"),
		configPath("id_rsa"),
	)

	return files
}

func getAgentPath(settings *ssh_config.UserSettings, host string) string {
	identityAgent := settings.Get(host, "IdentityAgent")
	if identityAgent != "" && identityAgent != sshAuthSock {
		return resolvePath(identityAgent)
	}
	if identityAgent == "none" {
		return ""
	}

	return os.Getenv(sshAuthSock)
}

func loadAgentKeys(agentPath string) ([]ssh.Signer, error) {
	conn, err := net.Dial("unix", agentPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	signers, err := agent.NewClient(conn).Signers()
	if err != nil {
		return nil, err
	}
	o := []ssh.Signer{}
	for _, s := range signers {
		_, err := s.Sign(rand.Reader, []byte(""))
		if err == nil {
			o = append(o, s)
		}
	}
	return o, nil
}

func loadPrivateKeyFromFS(path string) (ssh.Signer, error) {
	privateKey, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	return signer, nil
}

func newPublicKeysCallback(identitiesOnly bool, agentPath string, identityFiles []string) func() ([]ssh.Signer, error) {
	return func() ([]ssh.Signer, error) {
		keys := []ssh.Signer{}
		if !identitiesOnly {
			agentKeys, err := loadAgentKeys(agentPath)
			if err == nil && agentKeys != nil {
				keys = append(keys, agentKeys...)
			}
		}
		for _, path := range identityFiles {
			key, err := loadPrivateKeyFromFS(path)
			if err == nil && key != nil {
				keys = append(keys, key)
			}
		}
		return keys, nil
	}
}
