// cmd/siggenctl/console.go
package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"siggen-service/internal/model"
)

var (
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	simulatedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	connectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// consoleSink prints notifications and simulated writes as they happen
type consoleSink struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsoleSink(out io.Writer) *consoleSink {
	return &consoleSink{out: out}
}

func (s *consoleSink) Notify(n model.Notification) {
	var tag string
	switch n.Type {
	case model.EventMessageSuccess:
		tag = successStyle.Render("OK  ")
	case model.EventMessageFail:
		tag = failStyle.Render("FAIL")
	case model.EventPortConnected:
		tag = connectedStyle.Render("PORT")
	default:
		return
	}

	line := fmt.Sprintf("%s %s", tag, n.Description)
	if n.ErrorCode != "" {
		line += " " + dimStyle.Render("["+n.ErrorCode+"]")
	}
	s.println(line)
}

func (s *consoleSink) ObserveWrite(port string, data []byte) {
	command := strings.TrimRight(string(data), "\r\n")
	s.println(fmt.Sprintf("%s %s", simulatedStyle.Render(port+" <-"), command))
}

func (s *consoleSink) println(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, line)
}
