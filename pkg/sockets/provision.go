package sockets

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// defaultPathMax is assumed when the platform does not report a sun_path size.
const defaultPathMax = 100

// minRandomLen is the number of random characters every socket name keeps.
const minRandomLen = 16

const socketPrefix = "backend."

var (
	// ErrPathTooLong is returned when the runtime directory leaves no room
	// for a random socket name.
	ErrPathTooLong = errors.New("runtime directory path too long for unix sockets")

	// ErrInsecureDir is returned when the socket directory is reachable by
	// other users.
	ErrInsecureDir = errors.New("socket directory is not private")
)

// randomName returns the random part of a socket name.
var randomName = func() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Options controls endpoint provisioning.
type Options struct {
	// UseUnixSockets selects a unix domain socket for the primary endpoint.
	UseUnixSockets bool

	// RuntimeDir holds the "backends" directory for unix sockets. Empty
	// creates a private temporary directory that is removed when the
	// endpoint is closed.
	RuntimeDir string

	// Concurrency is the number of workers that will serve the primary endpoint.
	Concurrency int
}

// Provision creates the primary and the secondary endpoint. If the secondary
// cannot be created the primary is closed again.
func Provision(opts Options) (primary, secondary *Endpoint, err error) {
	primary, err = ProvisionPrimary(opts)
	if err != nil {
		return nil, nil, err
	}
	secondary, err = ProvisionSecondary()
	if err != nil {
		primary.Close()
		return nil, nil, err
	}
	return primary, secondary, nil
}

// ProvisionPrimary creates the "main" endpoint.
func ProvisionPrimary(opts Options) (*Endpoint, error) {
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	var (
		ep  *Endpoint
		err error
	)
	if opts.UseUnixSockets {
		ep, err = provisionUnix(opts.RuntimeDir)
	} else {
		ep, err = listenLoopback()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create main socket: %w", err)
	}

	ep.Name = PrimaryName
	ep.Protocol = ProtocolSession
	ep.Concurrency = concurrency
	return ep, nil
}

// ProvisionSecondary creates the "http" endpoint on 127.0.0.1 with an
// ephemeral port.
func ProvisionSecondary() (*Endpoint, error) {
	ep, err := listenLoopback()
	if err != nil {
		return nil, fmt.Errorf("failed to create http socket: %w", err)
	}
	ep.Name = SecondaryName
	ep.Protocol = ProtocolHTTP
	ep.Concurrency = 1
	return ep, nil
}

// MaxPathLen returns the usable length of a unix socket path on this platform.
func MaxPathLen() int {
	if n := len(unix.RawSockaddrUnix{}.Path); n > 0 {
		return n
	}
	return defaultPathMax
}

// socketPath builds a socket path in dir from random, shortening the name
// so that the path fits the platform limit. At least minRandomLen random
// characters are kept; the prefix is dropped first.
func socketPath(dir, random string) (string, error) {
	room := MaxPathLen() - 10 - len(dir) - 1
	if room < minRandomLen || len(random) < minRandomLen {
		return "", fmt.Errorf("%w: %s", ErrPathTooLong, dir)
	}
	name := socketPrefix + random
	switch {
	case len(name) <= room:
	case room >= len(socketPrefix)+minRandomLen:
		name = name[:room]
	default:
		name = random[:min(room, len(random))]
	}
	return filepath.Join(dir, name), nil
}

func provisionUnix(runtimeDir string) (*Endpoint, error) {
	var owned []string
	if runtimeDir == "" {
		dir, err := os.MkdirTemp("", "dispatch.")
		if err != nil {
			return nil, fmt.Errorf("failed to create runtime directory: %w", err)
		}
		runtimeDir = dir
		owned = append(owned, dir)
	} else if err := os.MkdirAll(runtimeDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create runtime directory: %w", err)
	}

	dir := filepath.Join(runtimeDir, "backends")
	created, err := privateDir(dir)
	if err == nil {
		if created {
			owned = append([]string{dir}, owned...)
		}
		var ep *Endpoint
		ep, err = listenUnix(dir)
		if err == nil {
			ep.dirs = owned
			return ep, nil
		}
	}

	for _, d := range owned {
		_ = os.Remove(d)
	}
	return nil, err
}

// privateDir creates dir with mode 0700, or checks that an existing dir is
// a real directory owned by this user with no group or other access.
func privateDir(dir string) (created bool, err error) {
	if err := os.Mkdir(dir, 0o700); err == nil {
		return true, nil
	} else if !errors.Is(err, os.ErrExist) {
		return false, fmt.Errorf("failed to create socket directory: %w", err)
	}

	var st unix.Stat_t
	if err := unix.Lstat(dir, &st); err != nil {
		return false, fmt.Errorf("stat socket directory: %w", err)
	}
	switch {
	case st.Mode&unix.S_IFMT != unix.S_IFDIR:
		return false, fmt.Errorf("%w: %s is not a directory", ErrInsecureDir, dir)
	case int(st.Uid) != os.Getuid():
		return false, fmt.Errorf("%w: %s is owned by uid %d", ErrInsecureDir, dir, st.Uid)
	case st.Mode&0o077 != 0:
		return false, fmt.Errorf("%w: %s has mode %#o", ErrInsecureDir, dir, st.Mode&0o777)
	}
	return false, nil
}

func listenUnix(dir string) (*Endpoint, error) {
	for {
		path, err := socketPath(dir, randomName())
		if err != nil {
			return nil, err
		}

		fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
		if err != nil {
			return nil, fmt.Errorf("socket: %w", err)
		}

		if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
			_ = unix.Close(fd)
			if errors.Is(err, unix.EADDRINUSE) {
				continue
			}
			return nil, fmt.Errorf("bind %s: %w", path, err)
		}

		if err := os.Chmod(path, 0o600); err != nil {
			_ = unix.Close(fd)
			_ = os.Remove(path)
			return nil, fmt.Errorf("chmod %s: %w", path, err)
		}

		ep, err := listenFD(fd, path)
		if err != nil {
			_ = os.Remove(path)
			return nil, err
		}
		ep.Kind = KindUnix
		ep.Path = path
		ep.Address = "unix:" + path
		return ep, nil
	}
}

func listenLoopback() (*Endpoint, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("setsockopt: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrInet4{Addr: [4]byte{127, 0, 0, 1}}); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("bind 127.0.0.1:0: %w", err)
	}

	ep, err := listenFD(fd, "tcp")
	if err != nil {
		return nil, err
	}

	addr, ok := ep.listener.Addr().(*net.TCPAddr)
	if !ok {
		ep.Close()
		return nil, fmt.Errorf("unexpected listener address %v", ep.listener.Addr())
	}
	ep.Kind = KindTCP
	ep.Address = fmt.Sprintf("tcp://127.0.0.1:%d", addr.Port)
	return ep, nil
}

// listenFD puts a bound descriptor into listening state and wraps it. The
// descriptor is owned by the returned endpoint, or closed on error.
func listenFD(fd int, name string) (*Endpoint, error) {
	if err := unix.Listen(fd, Backlog); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("listen: %w", err)
	}

	file := os.NewFile(uintptr(fd), name)
	ln, err := net.FileListener(file)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("wrap listener: %w", err)
	}

	return &Endpoint{file: file, listener: ln}, nil
}
