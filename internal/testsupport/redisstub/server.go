// Package redisstub runs a minimal RESP server for notifier tests. It speaks
// just enough of the protocol for a real client to connect, authenticate, and
// PUBLISH, and it records every published message for assertions.
package redisstub

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
)

type Options struct {
	// Username, when set, must arrive as the first AUTH argument alongside
	// the password.
	Username string
	Password string
	// FailPublishes makes the first N PUBLISH commands return an error
	// before the stub starts accepting them. Used to exercise retries.
	FailPublishes int
}

// Message is one recorded PUBLISH.
type Message struct {
	Channel string
	Payload string
}

type Server struct {
	opts     Options
	listener net.Listener
	addr     string

	mu           sync.Mutex
	published    []Message
	failsLeft    int
	publishCalls int

	closed chan struct{}
}

func Start(opts Options) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	server := &Server{
		opts:      opts,
		listener:  ln,
		addr:      ln.Addr().String(),
		failsLeft: opts.FailPublishes,
		closed:    make(chan struct{}),
	}
	go server.serve()
	return server, nil
}

func (s *Server) Addr() string {
	return s.addr
}

// Published returns a copy of every recorded message in publish order.
func (s *Server) Published() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.published))
	copy(out, s.published)
	return out
}

// PublishAttempts counts every PUBLISH command seen, including rejected ones.
func (s *Server) PublishAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publishCalls
}

func (s *Server) Close() error {
	s.mu.Lock()
	select {
	case <-s.closed:
		s.mu.Unlock()
		return nil
	default:
	}
	close(s.closed)
	s.mu.Unlock()
	return s.listener.Close()
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			continue
		}
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)
	authenticated := s.opts.Password == "" && s.opts.Username == ""
	for {
		args, err := readArray(reader)
		if err != nil {
			return
		}
		if len(args) == 0 {
			if err := writeError(writer, "ERR wrong number of arguments"); err != nil {
				return
			}
			continue
		}
		switch strings.ToUpper(args[0]) {
		case "PING":
			if err := writeSimpleString(writer, "PONG"); err != nil {
				return
			}
		case "HELLO":
			// RESP3 is not implemented; clients fall back to RESP2 on error.
			if err := writeError(writer, "ERR unknown command 'HELLO'"); err != nil {
				return
			}
		case "AUTH":
			username := ""
			if len(args) == 3 {
				username = args[1]
			}
			password := args[len(args)-1]
			usernameOK := s.opts.Username == "" || username == s.opts.Username
			passwordOK := s.opts.Password == "" || password == s.opts.Password
			if usernameOK && passwordOK {
				authenticated = true
				if err := writeSimpleString(writer, "OK"); err != nil {
					return
				}
			} else if err := writeError(writer, "WRONGPASS invalid username-password pair"); err != nil {
				return
			}
		case "SELECT", "CLIENT":
			if err := writeSimpleString(writer, "OK"); err != nil {
				return
			}
		case "PUBLISH":
			if !authenticated {
				if err := writeError(writer, "NOAUTH Authentication required."); err != nil {
					return
				}
				continue
			}
			if len(args) != 3 {
				if err := writeError(writer, "ERR wrong number of arguments for 'publish'"); err != nil {
					return
				}
				continue
			}
			if !s.recordPublish(args[1], args[2]) {
				if err := writeError(writer, "LOADING Redis is loading the dataset in memory"); err != nil {
					return
				}
				continue
			}
			if err := writeInteger(writer, 1); err != nil {
				return
			}
		default:
			if err := writeError(writer, "ERR unsupported command"); err != nil {
				return
			}
		}
	}
}

func (s *Server) recordPublish(channel, payload string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishCalls++
	if s.failsLeft > 0 {
		s.failsLeft--
		return false
	}
	s.published = append(s.published, Message{Channel: channel, Payload: payload})
	return true
}

func readArray(r *bufio.Reader) ([]string, error) {
	prefix, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if prefix != '*' {
		return nil, fmt.Errorf("unexpected prefix %q", prefix)
	}
	length, err := readLength(r)
	if err != nil {
		return nil, err
	}
	args := make([]string, 0, length)
	for i := 0; i < length; i++ {
		arg, err := readBulkString(r)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	return args, nil
}

func readLength(r *bufio.Reader) (int, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return 0, err
	}
	line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
	return strconv.Atoi(line)
}

func readBulkString(r *bufio.Reader) (string, error) {
	prefix, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	if prefix != '$' {
		return "", fmt.Errorf("unexpected prefix %q", prefix)
	}
	length, err := readLength(r)
	if err != nil {
		return "", err
	}
	if length < 0 {
		return "", nil
	}
	buf := make([]byte, length+2)
	if _, err := readFull(r, buf); err != nil {
		return "", err
	}
	return string(buf[:length]), nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func writeSimpleString(w *bufio.Writer, value string) error {
	if _, err := fmt.Fprintf(w, "+%s\r\n", value); err != nil {
		return err
	}
	return w.Flush()
}

func writeInteger(w *bufio.Writer, value int64) error {
	if _, err := fmt.Fprintf(w, ":%d\r\n", value); err != nil {
		return err
	}
	return w.Flush()
}

func writeError(w *bufio.Writer, msg string) error {
	if _, err := fmt.Fprintf(w, "-%s\r\n", msg); err != nil {
		return err
	}
	return w.Flush()
}
