// Package dap implements fbdbg's transport and client for the Debug
// Adapter Protocol. It provides:
//   - Transport: low-level message sending/receiving over TCP or stdio
//   - Client: the concrete DebugSession, translating go-dap
//     request/response calls and events into the session package's
//     DebugSession interface and tagged Event union
//
// The protocol is described at: https://microsoft.github.io/debug-adapter-protocol/
package dap

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"
)

// Transport handles communication with a DAP server
type Transport struct {
	conn   io.ReadWriteCloser
	reader *bufio.Reader
	writer *bufio.Writer
	mu     sync.Mutex
	seq    int

	// log is set by NewClient once a Transport is wrapped in a Client;
	// nil until then, so a bare Transport used on its own stays silent.
	log *logrus.Entry
}

// NewTCPTransport creates a transport connected to a TCP address
func NewTCPTransport(address string) (*Transport, error) {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DAP server at %s: %w", address, err)
	}

	return &Transport{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		seq:    1,
	}, nil
}

// NewStdioTransport creates a transport using stdio streams
func NewStdioTransport(stdin io.WriteCloser, stdout io.ReadCloser) *Transport {
	// Create a combined ReadWriteCloser
	rwc := &stdioRWC{
		reader: stdout,
		writer: stdin,
	}

	return &Transport{
		conn:   rwc,
		reader: bufio.NewReader(stdout),
		writer: bufio.NewWriter(stdin),
		seq:    1,
	}
}

type stdioRWC struct {
	reader io.ReadCloser
	writer io.WriteCloser
}

func (s *stdioRWC) Read(p []byte) (n int, err error) {
	return s.reader.Read(p)
}

func (s *stdioRWC) Write(p []byte) (n int, err error) {
	return s.writer.Write(p)
}

func (s *stdioRWC) Close() error {
	err1 := s.reader.Close()
	err2 := s.writer.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// NextSeq returns the next sequence number
func (t *Transport) NextSeq() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	seq := t.seq
	t.seq++
	return seq
}

// Send sends a DAP message
func (t *Transport) Send(msg dap.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := dap.WriteProtocolMessage(t.writer, msg); err != nil {
		return fmt.Errorf("failed to write DAP message: %w", err)
	}

	if err := t.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush DAP message: %w", err)
	}

	if t.log != nil {
		t.log.WithField("type", fmt.Sprintf("%T", msg)).Trace("sent DAP message")
	}
	return nil
}

// Receive receives a DAP message
func (t *Transport) Receive() (dap.Message, error) {
	msg, err := dap.ReadProtocolMessage(t.reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read DAP message: %w", err)
	}
	if t.log != nil {
		t.log.WithField("type", fmt.Sprintf("%T", msg)).Trace("received DAP message")
	}
	return msg, nil
}

// Close closes the transport
func (t *Transport) Close() error {
	return t.conn.Close()
}
