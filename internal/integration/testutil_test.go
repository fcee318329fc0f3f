package integration_test

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/ssh"

	"pkt.systems/labterm/core"
	"pkt.systems/labterm/httpapi"
	"pkt.systems/labterm/internal/appconfig"
	"pkt.systems/labterm/internal/auth"
	"pkt.systems/labterm/internal/eventbus"
	"pkt.systems/labterm/internal/persist"
	"pkt.systems/labterm/schema"
	"pkt.systems/labterm/sshserver"
)

const adminToken = "integration-admin-token"

// sinks forwards service events to the SSH bus and the HTTP hub.
type sinks []core.EventSink

func (s sinks) OnOutput(event schema.OutputEvent) {
	for _, sink := range s {
		sink.OnOutput(event)
	}
}

func (s sinks) OnTick(event schema.TickEvent) {
	for _, sink := range s {
		sink.OnTick(event)
	}
}

func (s sinks) OnLifecycle(event schema.LifecycleEvent) {
	for _, sink := range s {
		sink.OnLifecycle(event)
	}
}

type testServer struct {
	service   core.Service
	authStore *auth.Store
	bus       *eventbus.Bus
	hub       *httpapi.Hub
	archive   *persist.Store
	user      string
	password  string
	totp      string
	// plainUser has a password and no second factor.
	plainUser     string
	plainPassword string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	userFile := filepath.Join(t.TempDir(), "users.json")

	password := "test-password"
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	secret, err := totp.Generate(totp.GenerateOpts{Issuer: "labterm", AccountName: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	plainPassword := "plain-password"
	plainHash, err := bcrypt.GenerateFromPassword([]byte(plainPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	seeds := []appconfig.SeedUser{
		{Username: "tester", PasswordHash: string(hash), TOTPSecret: secret.Secret()},
		{Username: "student", PasswordHash: string(plainHash)},
	}
	authStore, err := auth.NewStoreWithLogger(userFile, seeds, nil)
	if err != nil {
		t.Fatal(err)
	}

	archive, err := persist.NewStore(filepath.Join(t.TempDir(), "transcripts"))
	if err != nil {
		t.Fatal(err)
	}
	bus := eventbus.New(nil)
	hub := httpapi.NewHub(1000)
	service, err := core.NewService(schema.ServiceConfig{
		DefaultLab:             "intro-linux",
		DefaultDurationSeconds: 600,
	}, core.ServiceDeps{
		EventSink:   sinks{bus, hub},
		Transcripts: archive,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = service.Shutdown(ctx)
	})

	return &testServer{
		service:       service,
		authStore:     authStore,
		bus:           bus,
		hub:           hub,
		archive:       archive,
		user:          "tester",
		password:      password,
		totp:          secret.Secret(),
		plainUser:     "student",
		plainPassword: plainPassword,
	}
}

func startSSHServer(t *testing.T, ts *testServer) (string, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())

	server := &sshserver.Server{
		Config: sshserver.Config{
			Addr:        ln.Addr().String(),
			HostKeyPath: fmt.Sprintf("%s/host_key", t.TempDir()),
			DefaultLab:  "intro-linux",
		},
		Listener:  ln,
		Service:   ts.service,
		AuthStore: ts.authStore,
		EventBus:  ts.bus,
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = server.ListenAndServe(ctx)
	}()

	stop := func() {
		cancel()
		_ = ln.Close()
		<-done
	}
	return ln.Addr().String(), stop
}

func startHTTPServer(t *testing.T, ts *testServer) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(httpapi.NewServer(httpapi.Config{
		AdminToken: adminToken,
	}, ts.service, ts.hub, ts.archive).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func sshDial(addr, user string, methods []ssh.AuthMethod) (*ssh.Client, error) {
	return ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            user,
		Auth:            methods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	})
}

func newTestSigner(t *testing.T) ssh.Signer {
	t.Helper()
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(key)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return signer
}

func registerSSHLoginKey(t *testing.T, ts *testServer, user string) ssh.Signer {
	t.Helper()
	signer := newTestSigner(t)
	pubKey := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(signer.PublicKey())))
	if _, err := ts.authStore.AddLoginPubKey(schema.UserID(user), pubKey); err != nil {
		t.Fatalf("add login pubkey: %v", err)
	}
	return signer
}

// dialPlain logs in the second-factor-free user with a password.
func dialPlain(t *testing.T, addr string, ts *testServer) *ssh.Client {
	t.Helper()
	client, err := sshDial(addr, ts.plainUser, []ssh.AuthMethod{ssh.Password(ts.plainPassword)})
	if err != nil {
		t.Fatalf("dial ssh: %v", err)
	}
	return client
}

type sshShell struct {
	stdin   io.WriteCloser
	output  *lockedBuffer
	session *ssh.Session
}

func startShell(t *testing.T, client *ssh.Client, env map[string]string) *sshShell {
	t.Helper()
	session, err := client.NewSession()
	if err != nil {
		t.Fatal(err)
	}
	for name, value := range env {
		if err := session.Setenv(name, value); err != nil {
			t.Fatalf("setenv %s: %v", name, err)
		}
	}
	if err := session.RequestPty("xterm-256color", 40, 100, ssh.TerminalModes{}); err != nil {
		t.Fatal(err)
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		t.Fatal(err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		t.Fatal(err)
	}
	if err := session.Shell(); err != nil {
		t.Fatal(err)
	}
	output := &lockedBuffer{}
	go func() {
		_, _ = io.Copy(output, stdout)
	}()
	return &sshShell{stdin: stdin, output: output, session: session}
}

func (s *sshShell) typeLine(t *testing.T, line string) {
	t.Helper()
	if _, err := fmt.Fprint(s.stdin, line+"\r"); err != nil {
		t.Fatal(err)
	}
}

func (s *sshShell) waitClosed(t *testing.T) {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- s.session.Wait()
	}()
	select {
	case <-time.After(5 * time.Second):
		t.Fatalf("session did not close")
	case <-done:
	}
}

func expectOutput(t *testing.T, buffer *lockedBuffer, substr string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if strings.Contains(buffer.String(), substr) {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %q in output: %q", substr, buffer.String())
}

func waitForSession(t *testing.T, ts *testServer, user string) schema.SessionSummary {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := ts.service.ListSessions(context.Background(), schema.ListSessionsRequest{UserID: schema.UserID(user)})
		if err != nil {
			t.Fatalf("list sessions: %v", err)
		}
		if len(resp.Sessions) > 0 {
			return resp.Sessions[0]
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("no session for %s", user)
	return schema.SessionSummary{}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

func containsAll(value string, terms ...string) bool {
	for _, term := range terms {
		if !strings.Contains(value, term) {
			return false
		}
	}
	return true
}

func requireLong(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}
