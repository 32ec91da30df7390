package sockets

import (
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// shortDir returns a temporary directory with a path short enough for
// unix sockets.
func shortDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "ds")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func TestProvisionPrimary_Unix(t *testing.T) {
	ep, err := ProvisionPrimary(Options{UseUnixSockets: true, RuntimeDir: shortDir(t), Concurrency: 3})
	if err != nil {
		t.Fatalf("ProvisionPrimary() error = %v", err)
	}
	defer ep.Close()

	if ep.Name != PrimaryName || ep.Kind != KindUnix || ep.Protocol != ProtocolSession {
		t.Errorf("endpoint = %s/%s/%s", ep.Name, ep.Kind, ep.Protocol)
	}
	if ep.Concurrency != 3 {
		t.Errorf("Concurrency = %d, want 3", ep.Concurrency)
	}
	if !strings.HasPrefix(ep.Address, "unix:") || strings.TrimPrefix(ep.Address, "unix:") != ep.Path {
		t.Errorf("Address = %q, Path = %q", ep.Address, ep.Path)
	}
	if len(ep.Path) > MaxPathLen()-10 {
		t.Errorf("path length %d exceeds limit", len(ep.Path))
	}

	info, err := os.Stat(ep.Path)
	if err != nil {
		t.Fatalf("stat socket: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	ep.Close()
	if _, err := os.Stat(ep.Path); !os.IsNotExist(err) {
		t.Errorf("socket path still exists after Close: %v", err)
	}
}

func TestProvisionPrimary_TCPFallback(t *testing.T) {
	ep, err := ProvisionPrimary(Options{UseUnixSockets: false, Concurrency: 0})
	if err != nil {
		t.Fatalf("ProvisionPrimary() error = %v", err)
	}
	defer ep.Close()

	if ep.Kind != KindTCP || !strings.HasPrefix(ep.Address, "tcp://127.0.0.1:") {
		t.Errorf("endpoint = %s %s", ep.Kind, ep.Address)
	}
	if ep.Concurrency != 1 {
		t.Errorf("Concurrency = %d, want 1", ep.Concurrency)
	}
	if ep.Path != "" {
		t.Errorf("Path = %q, want empty", ep.Path)
	}
}

func TestProvisionSecondary(t *testing.T) {
	ep, err := ProvisionSecondary()
	if err != nil {
		t.Fatalf("ProvisionSecondary() error = %v", err)
	}
	defer ep.Close()

	if ep.Name != SecondaryName || ep.Protocol != ProtocolHTTP || ep.Kind != KindTCP {
		t.Errorf("endpoint = %s/%s/%s", ep.Name, ep.Protocol, ep.Kind)
	}
	if strings.HasSuffix(ep.Address, ":0") {
		t.Errorf("Address = %q, want resolved port", ep.Address)
	}
	if got := ep.String(); got != "http;"+ep.Address+";http;1" {
		t.Errorf("String() = %q", got)
	}
}

func TestProvision_DistinctPaths(t *testing.T) {
	dir := shortDir(t)
	a, err := ProvisionPrimary(Options{UseUnixSockets: true, RuntimeDir: dir})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := ProvisionPrimary(Options{UseUnixSockets: true, RuntimeDir: dir})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if a.Path == b.Path {
		t.Errorf("two endpoints share path %q", a.Path)
	}
}

func TestEndpoint_DupIsIndependent(t *testing.T) {
	ep, err := ProvisionPrimary(Options{UseUnixSockets: true, RuntimeDir: shortDir(t)})
	if err != nil {
		t.Fatal(err)
	}
	defer ep.Close()

	first, err := ep.Dup()
	if err != nil {
		t.Fatalf("Dup() error = %v", err)
	}
	second, err := ep.Dup()
	if err != nil {
		t.Fatalf("Dup() error = %v", err)
	}
	defer second.Close()

	// Closing one duplicate must not affect the other.
	first.Close()

	accepted := make(chan error, 1)
	go func() {
		conn, err := second.Accept()
		if err == nil {
			_, err = conn.Write([]byte("ok"))
			conn.Close()
		}
		accepted <- err
	}()

	conn, err := net.DialTimeout("unix", ep.Path, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	buf, _ := io.ReadAll(conn)
	if string(buf) != "ok" {
		t.Errorf("read %q, want ok", buf)
	}
	if err := <-accepted; err != nil {
		t.Errorf("Accept() error = %v", err)
	}
}

func TestEndpoint_DupAfterClose(t *testing.T) {
	ep, err := ProvisionSecondary()
	if err != nil {
		t.Fatal(err)
	}
	ep.Close()
	ep.Close()

	if _, err := ep.Dup(); !errors.Is(err, ErrClosed) {
		t.Errorf("Dup() error = %v, want ErrClosed", err)
	}
}

func TestSocketPath(t *testing.T) {
	random := strings.Repeat("a", 32)
	limit := MaxPathLen() - 10

	tests := []struct {
		name       string
		dir        string
		wantName   string
		wantErr    error
		wantLength int
	}{
		{
			name:     "fits",
			dir:      "/tmp/x",
			wantName: socketPrefix + random,
		},
		{
			name:       "prefix kept, name shortened",
			dir:        "/" + strings.Repeat("d", limit-len(socketPrefix)-minRandomLen-2),
			wantName:   socketPrefix + random[:minRandomLen],
			wantLength: limit,
		},
		{
			name:       "prefix dropped",
			dir:        "/" + strings.Repeat("d", limit-minRandomLen-4),
			wantName:   random[:minRandomLen+2],
			wantLength: limit,
		},
		{
			name:    "no room",
			dir:     "/" + strings.Repeat("d", 200),
			wantErr: ErrPathTooLong,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := socketPath(tt.dir, random)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("socketPath() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("socketPath() error = %v", err)
			}
			if want := filepath.Join(tt.dir, tt.wantName); got != want {
				t.Errorf("socketPath() = %q, want %q", got, want)
			}
			if tt.wantLength != 0 && len(got) != tt.wantLength {
				t.Errorf("len(socketPath()) = %d, want %d", len(got), tt.wantLength)
			}
		})
	}
}

func TestSocketPath_LongDirStaysRandom(t *testing.T) {
	dir := "/" + strings.Repeat("d", MaxPathLen()-10-len(socketPrefix)-minRandomLen-2)
	a, err := socketPath(dir, randomName())
	if err != nil {
		t.Fatal(err)
	}
	b, err := socketPath(dir, randomName())
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Errorf("two generated paths are identical: %q", a)
	}
}

// sequence makes randomName return names in order.
func sequence(t *testing.T, names ...string) {
	t.Helper()
	orig := randomName
	t.Cleanup(func() { randomName = orig })
	next := 0
	randomName = func() string {
		name := names[next%len(names)]
		next++
		return name
	}
}

func TestProvisionPrimary_RetriesAddressInUse(t *testing.T) {
	dir := shortDir(t)
	backends := filepath.Join(dir, "backends")
	if err := os.Mkdir(backends, 0o700); err != nil {
		t.Fatal(err)
	}

	first, second := strings.Repeat("1", 32), strings.Repeat("2", 32)
	taken, err := socketPath(backends, first)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(taken, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	sequence(t, first, second)

	ep, err := ProvisionPrimary(Options{UseUnixSockets: true, RuntimeDir: dir})
	if err != nil {
		t.Fatalf("ProvisionPrimary() error = %v", err)
	}
	defer ep.Close()

	want, _ := socketPath(backends, second)
	if ep.Path != want {
		t.Errorf("Path = %q, want %q", ep.Path, want)
	}
	if _, err := os.Stat(taken); err != nil {
		t.Errorf("existing file was touched: %v", err)
	}
}

func TestProvisionPrimary_RejectsSharedDir(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, backends string)
	}{
		{
			name: "world writable",
			setup: func(t *testing.T, backends string) {
				if err := os.Mkdir(backends, 0o700); err != nil {
					t.Fatal(err)
				}
				if err := os.Chmod(backends, 0o777); err != nil {
					t.Fatal(err)
				}
			},
		},
		{
			name: "symlink",
			setup: func(t *testing.T, backends string) {
				target := shortDir(t)
				if err := os.Chmod(target, 0o700); err != nil {
					t.Fatal(err)
				}
				if err := os.Symlink(target, backends); err != nil {
					t.Fatal(err)
				}
			},
		},
		{
			name: "regular file",
			setup: func(t *testing.T, backends string) {
				if err := os.WriteFile(backends, nil, 0o600); err != nil {
					t.Fatal(err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := shortDir(t)
			tt.setup(t, filepath.Join(dir, "backends"))

			ep, err := ProvisionPrimary(Options{UseUnixSockets: true, RuntimeDir: dir})
			if err == nil {
				ep.Close()
				t.Fatal("ProvisionPrimary() succeeded on a shared directory")
			}
			if !errors.Is(err, ErrInsecureDir) {
				t.Errorf("ProvisionPrimary() error = %v, want ErrInsecureDir", err)
			}
		})
	}
}

func TestProvisionPrimary_PrivateTempDir(t *testing.T) {
	ep, err := ProvisionPrimary(Options{UseUnixSockets: true})
	if err != nil {
		t.Fatalf("ProvisionPrimary() error = %v", err)
	}

	backends := filepath.Dir(ep.Path)
	runtimeDir := filepath.Dir(backends)
	for _, dir := range []string{backends, runtimeDir} {
		info, err := os.Lstat(dir)
		if err != nil {
			t.Fatalf("stat %s: %v", dir, err)
		}
		if info.Mode().Perm() != 0o700 {
			t.Errorf("%s mode = %v, want 0700", dir, info.Mode().Perm())
		}
	}

	ep.Close()
	if _, err := os.Stat(runtimeDir); !os.IsNotExist(err) {
		t.Errorf("runtime dir still exists after Close: %v", err)
	}
}

func TestEndpoint_CloseKeepsConfiguredRuntimeDir(t *testing.T) {
	dir := shortDir(t)
	ep, err := ProvisionPrimary(Options{UseUnixSockets: true, RuntimeDir: dir})
	if err != nil {
		t.Fatal(err)
	}
	ep.Close()

	if _, err := os.Stat(filepath.Join(dir, "backends")); !os.IsNotExist(err) {
		t.Errorf("backends dir still exists after Close: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("configured runtime dir removed: %v", err)
	}
}

// fdFlags returns the descriptor flags of the listener's socket.
func fdFlags(t *testing.T, ln net.Listener) int {
	t.Helper()
	sc, ok := ln.(syscall.Conn)
	if !ok {
		t.Fatalf("%T has no raw descriptor", ln)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		t.Fatal(err)
	}
	var flags int
	var ferr error
	if err := raw.Control(func(fd uintptr) {
		flags, ferr = unix.FcntlInt(fd, unix.F_GETFD, 0)
	}); err != nil {
		t.Fatal(err)
	}
	if ferr != nil {
		t.Fatal(ferr)
	}
	return flags
}

func TestEndpoint_CloseOnExec(t *testing.T) {
	primary, secondary, err := Provision(Options{UseUnixSockets: true, RuntimeDir: shortDir(t)})
	if err != nil {
		t.Fatal(err)
	}
	defer primary.Close()
	defer secondary.Close()

	for _, ep := range []*Endpoint{primary, secondary} {
		flags, err := unix.FcntlInt(ep.file.Fd(), unix.F_GETFD, 0)
		if err != nil {
			t.Fatal(err)
		}
		if flags&unix.FD_CLOEXEC == 0 {
			t.Errorf("%s socket is inherited across exec", ep.Name)
		}
		if flags := fdFlags(t, ep.listener); flags&unix.FD_CLOEXEC == 0 {
			t.Errorf("%s listener is inherited across exec", ep.Name)
		}

		dup, err := ep.Dup()
		if err != nil {
			t.Fatal(err)
		}
		if flags := fdFlags(t, dup); flags&unix.FD_CLOEXEC == 0 {
			t.Errorf("%s duplicate is inherited across exec", ep.Name)
		}
		dup.Close()
	}
}

func TestEndpoint_Backlog(t *testing.T) {
	raw, err := os.ReadFile("/proc/sys/net/core/somaxconn")
	if err != nil {
		t.Skipf("somaxconn unknown: %v", err)
	}
	if n, _ := strconv.Atoi(strings.TrimSpace(string(raw))); n < Backlog {
		t.Skipf("somaxconn %d caps the backlog", n)
	}
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rl); err != nil || rl.Cur < 2*Backlog {
		t.Skip("not enough file descriptors")
	}

	ep, err := ProvisionPrimary(Options{UseUnixSockets: true, RuntimeDir: shortDir(t)})
	if err != nil {
		t.Fatal(err)
	}
	defer ep.Close()

	// Nothing accepts, so non-blocking connects succeed until the queue is full.
	var fds []int
	defer func() {
		for _, fd := range fds {
			unix.Close(fd)
		}
	}()
	for len(fds) < 2*Backlog {
		fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
		if err != nil {
			t.Fatal(err)
		}
		if err := unix.Connect(fd, &unix.SockaddrUnix{Name: ep.Path}); err != nil {
			unix.Close(fd)
			if !errors.Is(err, unix.EAGAIN) {
				t.Fatalf("connect %d: %v", len(fds), err)
			}
			break
		}
		fds = append(fds, fd)
	}

	if len(fds) < Backlog || len(fds) > Backlog+1 {
		t.Errorf("queued %d connections, want backlog %d", len(fds), Backlog)
	}
}
